package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/manash/clickgenius/pkg/models"
)

func TestGeneratorFunc(t *testing.T) {
	var got *models.GenerationRequest
	g := GeneratorFunc(func(_ context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
		got = req
		return &models.GenerationResponse{Text: "ok"}, nil
	})

	req := models.NewGenerationRequest("brighten", "")
	resp, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != req {
		t.Error("Generate() did not pass request through")
	}
	if resp.Text != "ok" {
		t.Errorf("Generate() Text = %q, want ok", resp.Text)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model != models.ModelFlashImage {
		t.Errorf("Model = %q, want %q", cfg.Model, models.ModelFlashImage)
	}
	if cfg.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Temperature)
	}
	if cfg.AspectRatio != "16:9" {
		t.Errorf("AspectRatio = %q, want 16:9", cfg.AspectRatio)
	}
}

func TestConfig_Validate(t *testing.T) {
	registry := models.DefaultRegistry()
	valid := DefaultConfig()
	valid.APIKey = "key"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing key", func(c *Config) { c.APIKey = "" }, ErrAPIKeyRequired},
		{"unknown model", func(c *Config) { c.Model = "dall-e-3" }, ErrModelNotSupported},
		{"bad ratio", func(c *Config) { c.AspectRatio = "5:1" }, models.ErrInvalidAspectRatio},
		{"bad temperature", func(c *Config) { c.Temperature = 3 }, models.ErrInvalidTemperature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate(registry)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrModelNotSupported) && !strings.Contains(err.Error(), models.ModelProImage) {
				t.Errorf("Validate() error = %v, want supported models listed", err)
			}
		})
	}
}

func TestRateLimitError(t *testing.T) {
	cause := errors.New("429 RESOURCE_EXHAUSTED")
	err := fmt.Errorf("%w: %w", ErrGenerationFailed, &RateLimitError{Model: "m", Err: cause})

	if !IsRateLimitError(err) {
		t.Error("IsRateLimitError() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !errors.Is(err, ErrGenerationFailed) {
		t.Error("errors.Is(err, ErrGenerationFailed) = false, want true")
	}
	if IsRateLimitError(cause) {
		t.Error("IsRateLimitError(plain) = true, want false")
	}
}
