// Package gemini implements the thumbnail generation gateway on top of the
// Gemini API.
//
// Each call is independent: a fresh client is built from the supplied
// configuration, the current image (if any) is attached inline, and the
// response is reduced to a single image reference plus descriptive text.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/pkg/models"
)

// FallbackText is returned when the model answers without any text.
const FallbackText = "I've polished your thumbnail! Ready for the front page."

const SystemInstruction = `You are an elite YouTube thumbnail art director. Every image you create or edit must grab attention in a crowded feed and earn the click.

Design rules:
1. Composition: use the rule of thirds, keep the subject large, and leave clean negative space on one side for title text.
2. Light and color: separate the subject from the background with rim light or a soft glow. Push saturation and favour high-contrast complementary palettes such as blue/orange or teal/yellow.
3. Subject: keep the subject tack sharp. When editing an existing image, preserve identity and facial expression exactly.
4. Background: when asked to remove or replace a background, use a shallow depth-of-field studio, a vivid gradient, or an energetic scene that fits the topic.
5. Output: 16:9, bold and uncluttered, readable at phone size.

Treat the user's task as a brief. Expand it into a detailed, professional visual description before rendering; never just echo it back.`

// registry describes the models the gateway knows about.
var registry = models.DefaultRegistry()

const inpaintingDirective = "Only change the region or element the task names; leave every other pixel of the current image untouched. "

// Backend is the part of the genai client the gateway needs.
type Backend interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// BackendFactory builds a Backend for a single call.
type BackendFactory func(ctx context.Context, cfg provider.Config) (Backend, error)

// NewBackend creates a genai client for the Gemini API backend.
func NewBackend(ctx context.Context, cfg provider.Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client.Models, nil
}

// Generator adapts the stateless gateway to provider.Generator.
type Generator struct {
	cfg        provider.Config
	newBackend BackendFactory
	resolver   *image.Resolver
}

var _ provider.Generator = (*Generator)(nil)

func New(cfg provider.Config) *Generator {
	return NewWithBackend(cfg, NewBackend, image.NewResolver())
}

func NewWithBackend(cfg provider.Config, factory BackendFactory, resolver *image.Resolver) *Generator {
	return &Generator{cfg: cfg, newBackend: factory, resolver: resolver}
}

func (g *Generator) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	backend, err := g.newBackend(ctx, g.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrGenerationFailed, err)
	}
	return Generate(ctx, backend, g.resolver, g.cfg, req)
}

// Generate runs one instruction against the model. A current image that
// cannot be resolved is logged and dropped; the call goes ahead text-only.
func Generate(ctx context.Context, backend Backend, resolver *image.Resolver, cfg provider.Config, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	logger := log.FromContextOrDiscard(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := ResolveModel(cfg, req.Mode)
	if !req.Current.IsZero() {
		if err := registry.CheckEdit(model); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrGenerationFailed, err)
		}
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(buildParts(ctx, resolver, req), genai.RoleUser),
	}

	start := time.Now()
	result, err := backend.GenerateContent(ctx, model, contents, BuildConfig(cfg, model))
	duration := time.Since(start)
	if err != nil {
		logger.Error("generation failed", "model", model, "duration_ms", duration.Milliseconds(), "error", err)
		if rlErr := checkRateLimitError(err, model); rlErr != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrGenerationFailed, rlErr)
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrGenerationFailed, err)
	}

	resp, err := ParseResponse(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrGenerationFailed, err)
	}

	logger.Info("generation completed",
		"model", model,
		"mode", req.Mode,
		"duration_ms", duration.Milliseconds(),
		"has_image", resp.HasImage(),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

// ResolveModel picks the model for a mode. Fast mode always uses the flash
// image model.
func ResolveModel(cfg provider.Config, mode models.Mode) string {
	if mode == models.ModeFast || cfg.Model == "" {
		return models.ModelFlashImage
	}
	return cfg.Model
}

func buildParts(ctx context.Context, resolver *image.Resolver, req *models.GenerationRequest) []*genai.Part {
	parts := []*genai.Part{
		genai.NewPartFromText("User Task: " + instructionFor(req)),
	}
	if req.Current.IsZero() || resolver == nil {
		return parts
	}

	img, err := resolver.Resolve(ctx, req.Current)
	if err != nil {
		log.FromContextOrDiscard(ctx).Warn("could not encode current image, sending text only", "error", err)
		return parts
	}
	return append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
}

func instructionFor(req *models.GenerationRequest) string {
	switch req.Mode {
	case models.ModeInpainting:
		return inpaintingDirective + req.Instruction
	default:
		return req.Instruction
	}
}

// BuildConfig converts the provider configuration into a request config for
// model. An unset aspect ratio falls back to the model's default.
func BuildConfig(cfg provider.Config, model string) *genai.GenerateContentConfig {
	aspect := cfg.AspectRatio
	if aspect == "" {
		aspect = provider.DefaultAspectRatio
		if cap, ok := registry.Get(model); ok && cap.DefaultAspectRatio != "" {
			aspect = cap.DefaultAspectRatio
		}
	}
	return &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: aspect},
		Temperature:        genai.Ptr(cfg.Temperature),
	}
}

// ParseResponse scans every part of every candidate. The last inline image
// wins and non-thought text parts are joined in order.
func ParseResponse(result *genai.GenerateContentResponse) (*models.GenerationResponse, error) {
	if result == nil {
		return nil, provider.ErrEmptyResponse
	}

	resp := &models.GenerationResponse{}
	var texts []string
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				resp.Image = image.DataURI(part.InlineData.Data, part.InlineData.MIMEType)
			}
			if t := strings.TrimSpace(part.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}

	resp.Text = strings.Join(texts, "\n")
	if resp.Text == "" {
		resp.Text = FallbackText
	}

	if result.UsageMetadata != nil {
		resp.Usage = models.Usage{
			PromptTokens:    result.UsageMetadata.PromptTokenCount,
			CandidateTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:     result.UsageMetadata.TotalTokenCount,
		}
	}
	return resp, nil
}

// checkRateLimitError returns a *provider.RateLimitError for quota failures
// and nil for everything else.
func checkRateLimitError(err error, model string) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	if apiErr.Code != http.StatusTooManyRequests && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return nil
	}
	return &provider.RateLimitError{
		RetryAfter: 60 * time.Second,
		Model:      model,
		Err:        err,
	}
}
