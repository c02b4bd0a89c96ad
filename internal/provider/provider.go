// Package provider defines the contract between the editor and a hosted
// image-generation service.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manash/clickgenius/pkg/models"
)

var (
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrGenerationFailed  = errors.New("image generation failed")
	ErrModelNotSupported = errors.New("model not supported by provider")
	ErrEmptyResponse     = errors.New("empty response from model")
)

// UserFacingError is shown in the chat log whenever a generation call fails.
const UserFacingError = "Encountered an error. Please try again."

type Generator interface {
	Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	return f(ctx, req)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	AspectRatio string
	Timeout     time.Duration
}

const (
	DefaultTemperature = 0.7
	DefaultAspectRatio = "16:9"
	DefaultTimeout     = 120 * time.Second
)

func DefaultConfig() Config {
	return Config{
		Model:       models.ModelFlashImage,
		Temperature: DefaultTemperature,
		AspectRatio: DefaultAspectRatio,
		Timeout:     DefaultTimeout,
	}
}

func (c Config) Validate(registry *models.ModelRegistry) error {
	if c.APIKey == "" {
		return ErrAPIKeyRequired
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v", models.ErrInvalidTemperature, c.Temperature)
	}
	if registry == nil {
		return nil
	}
	cap, ok := registry.Get(c.Model)
	if !ok {
		return fmt.Errorf("%w: %s (supported: %s)", ErrModelNotSupported, c.Model, strings.Join(registry.List(), ", "))
	}
	return cap.ValidateAspectRatio(c.AspectRatio)
}

// RateLimitError is returned when the service rejects a call for quota reasons.
type RateLimitError struct {
	RetryAfter time.Duration
	Model      string
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %v", e.Model, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}
