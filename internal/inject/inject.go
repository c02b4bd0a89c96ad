// Package inject wires the application's services together.
package inject

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/do"

	"github.com/manash/clickgenius/internal/config"
	"github.com/manash/clickgenius/internal/cost"
	"github.com/manash/clickgenius/internal/display"
	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/internal/provider/gemini"
	"github.com/manash/clickgenius/pkg/models"
)

const OutputName = "output"

// Setup registers lazy providers for every service. Nothing is constructed
// until it is first invoked.
func Setup(ctx context.Context, cfg *config.Config, out io.Writer) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*slog.Logger](injector, logger)
	do.ProvideNamedValue[io.Writer](injector, OutputName, out)

	do.Provide[project.Store](injector, func(i *do.Injector) (project.Store, error) {
		return NewStore(ctx, do.MustInvoke[*config.Config](i))
	})
	do.Provide[*image.Resolver](injector, func(i *do.Injector) (*image.Resolver, error) {
		return image.NewResolver(), nil
	})
	do.Provide[*cost.Meter](injector, func(i *do.Injector) (*cost.Meter, error) {
		cfg := do.MustInvoke[*config.Config](i).Provider()
		if err := cfg.Validate(models.DefaultRegistry()); err != nil {
			return nil, err
		}
		gen := gemini.NewWithBackend(cfg, gemini.NewBackend, do.MustInvoke[*image.Resolver](i))
		return cost.NewMeter(gen, func(mode models.Mode) string {
			return gemini.ResolveModel(cfg, mode)
		}), nil
	})
	do.Provide[provider.Generator](injector, func(i *do.Injector) (provider.Generator, error) {
		meter, err := do.Invoke[*cost.Meter](i)
		if err != nil {
			return nil, err
		}
		return meter, nil
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[image.Uploader](injector, func(i *do.Injector) (image.Uploader, error) {
		exp := do.MustInvoke[*config.Config](i).Export
		if exp.S3Bucket == "" {
			return &image.FileUploader{}, nil
		}
		client, err := do.Invoke[*s3.Client](i)
		if err != nil {
			return nil, err
		}
		return &image.S3Uploader{Client: client, Bucket: exp.S3Bucket, Prefix: exp.S3Prefix}, nil
	})
	do.Provide[*image.Exporter](injector, func(i *do.Injector) (*image.Exporter, error) {
		return image.NewExporter(do.MustInvoke[*image.Resolver](i), do.MustInvoke[image.Uploader](i)), nil
	})
	do.Provide[*display.Displayer](injector, func(i *do.Injector) (*display.Displayer, error) {
		w := do.MustInvokeNamed[io.Writer](i, OutputName)
		return display.New(w, do.MustInvoke[*image.Resolver](i)), nil
	})

	return injector
}

// NewStore opens the project store selected by the configuration.
func NewStore(ctx context.Context, cfg *config.Config) (project.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		rdb, err := project.DialRedis(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		if err != nil {
			return nil, err
		}
		return project.NewRedisStore(rdb), nil
	case config.DriverSQLite, "":
		path, err := cfg.SQLitePath()
		if err != nil {
			return nil, err
		}
		return project.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Storage.Driver)
	}
}
