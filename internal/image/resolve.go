package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/manash/clickgenius/internal/security"
	"github.com/manash/clickgenius/pkg/models"
)

const maxRemoteImageBytes = 20 << 20

// Resolver turns any image reference into bytes. Data URIs are decoded,
// https URLs are fetched after passing the URL policy, and anything else is
// read from disk.
type Resolver struct {
	httpClient *http.Client
	policy     *security.URLPolicy
}

func NewResolver() *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		policy:     security.DefaultURLPolicy(),
	}
}

func NewResolverWithClient(client *http.Client, policy *security.URLPolicy) *Resolver {
	return &Resolver{httpClient: client, policy: policy}
}

func (r *Resolver) Resolve(ctx context.Context, ref models.ImageRef) (*Image, error) {
	switch s := string(ref); {
	case s == "":
		return nil, ErrEmptyRef
	case ref.IsDataURI():
		return ParseDataURI(ref)
	case strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://"):
		return r.download(ctx, s)
	default:
		data, err := os.ReadFile(s)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return &Image{Data: data, MIMEType: detectMIME(s, data)}, nil
	}
}

func (r *Resolver) download(ctx context.Context, url string) (*Image, error) {
	if r.policy != nil {
		if err := r.policy.Check(url); err != nil {
			return nil, fmt.Errorf("refusing to fetch image: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageBytes))
	if err != nil {
		return nil, err
	}

	mimeType := resp.Header.Get("Content-Type")
	if !IsImageMIME(mimeType) {
		mimeType = http.DetectContentType(data)
	}
	return &Image{Data: data, MIMEType: mimeType}, nil
}
