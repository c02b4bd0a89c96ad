package image

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/security"
	"github.com/manash/clickgenius/pkg/models"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Uploader stores exported bytes and returns where they ended up.
type Uploader interface {
	Upload(ctx context.Context, params UploadParams) (string, error)
}

type FileUploader struct{}

func (*FileUploader) Upload(ctx context.Context, params UploadParams) (string, error) {
	if err := security.ValidateExportPath(params.Name); err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	log.FromContextOrDiscard(ctx).Info("writing thumbnail", "file", params.Name, "bytes", len(params.Data))

	if dir := filepath.Dir(params.Name); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(params.Name, params.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return params.Name, nil
}

// ObjectPutter is the subset of *s3.Client used for exports.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

func (u *S3Uploader) Upload(ctx context.Context, params UploadParams) (string, error) {
	key := path.Join(u.Prefix, filepath.ToSlash(params.Name))
	if err := security.ValidateObjectKey(key); err != nil {
		return "", fmt.Errorf("invalid object key: %w", err)
	}
	log.FromContextOrDiscard(ctx).Info("uploading thumbnail to s3",
		"bucket", u.Bucket, "key", key, "content_type", params.ContentType)

	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(params.ContentType),
		Body:        bytes.NewReader(params.Data),
		Metadata:    params.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to s3: %w", err)
	}
	return "s3://" + u.Bucket + "/" + key, nil
}

// Exporter writes thumbnails through an Uploader.
type Exporter struct {
	resolver *Resolver
	uploader Uploader
	// Concurrency bounds ExportAll; zero means four.
	Concurrency int
}

func NewExporter(resolver *Resolver, uploader Uploader) *Exporter {
	return &Exporter{resolver: resolver, uploader: uploader}
}

func (e *Exporter) Export(ctx context.Context, ref models.ImageRef, name string, metadata map[string]string) (string, error) {
	if ref.IsZero() {
		return "", ErrNoImageData
	}
	img, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = DefaultExportName
	}
	if filepath.Ext(name) == "" {
		name += "." + Extension(img.MIMEType)
	}
	return e.uploader.Upload(ctx, UploadParams{
		Name:        name,
		Data:        img.Data,
		ContentType: img.MIMEType,
		Metadata:    metadata,
	})
}

// ExportAll writes every reference as <base>-<n>.<ext>, concurrently.
// Locations are returned in input order.
func (e *Exporter) ExportAll(ctx context.Context, refs []models.ImageRef, base string, metadata map[string]string) ([]string, error) {
	if len(refs) == 0 {
		return nil, ErrNoImageData
	}
	if base == "" {
		base = strings.TrimSuffix(DefaultExportName, filepath.Ext(DefaultExportName))
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))

	limit := e.Concurrency
	if limit <= 0 {
		limit = 4
	}

	locations := make([]string, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			loc, err := e.Export(ctx, ref, fmt.Sprintf("%s-%d", base, i+1), metadata)
			if err != nil {
				return fmt.Errorf("failed to export version %d: %w", i+1, err)
			}
			locations[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locations, nil
}
