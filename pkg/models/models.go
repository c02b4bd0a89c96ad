package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrEmptyInstruction   = errors.New("instruction cannot be empty")
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio for model")
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 2")
	ErrInvalidMode        = errors.New("invalid generation mode")
	ErrEditNotSupported   = errors.New("image editing not supported by model")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string {
	return string(r)
}

// ImageRef points at an image. It is usually a data URI produced by the
// generation service, but may also be a local path or an https URL.
type ImageRef string

func (r ImageRef) IsZero() bool {
	return r == ""
}

func (r ImageRef) IsDataURI() bool {
	return strings.HasPrefix(string(r), "data:")
}

func (r ImageRef) String() string {
	return string(r)
}

type Message struct {
	ID        string
	Role      Role
	Text      string
	Image     ImageRef
	Timestamp time.Time
}

type Mode string

const (
	ModeFast       Mode = "fast"
	ModeCTR        Mode = "ctr"
	ModeInpainting Mode = "inpainting"
)

func ValidModes() []Mode {
	return []Mode{ModeFast, ModeCTR, ModeInpainting}
}

func (m Mode) IsValid() bool {
	return slices.Contains(ValidModes(), m)
}

func (m Mode) String() string {
	return string(m)
}

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: %v)", ErrInvalidMode, s, ValidModes())
	}
	return m, nil
}

type GenerationRequest struct {
	Instruction string
	Current     ImageRef
	Mode        Mode
}

func NewGenerationRequest(instruction string, current ImageRef) *GenerationRequest {
	return &GenerationRequest{
		Instruction: instruction,
		Current:     current,
		Mode:        ModeCTR,
	}
}

func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Instruction) == "" {
		return ErrEmptyInstruction
	}
	if r.Mode != "" && !r.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.Mode)
	}
	return nil
}

type GenerationResponse struct {
	Image ImageRef
	Text  string
	Usage Usage
}

func (r *GenerationResponse) HasImage() bool {
	return r != nil && !r.Image.IsZero()
}

type Usage struct {
	PromptTokens    int32
	CandidateTokens int32
	TotalTokens     int32
}

type ModelCapabilities struct {
	Name                  string
	SupportedAspectRatios []string
	DefaultAspectRatio    string
	SupportsEdit          bool
}

func (c *ModelCapabilities) ValidateAspectRatio(ratio string) error {
	if ratio != "" && !slices.Contains(c.SupportedAspectRatios, ratio) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidAspectRatio, ratio, c.SupportedAspectRatios)
	}
	return nil
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

// CheckEdit reports ErrEditNotSupported for registered models that cannot
// take an input image. Unregistered models are not checked.
func (r *ModelRegistry) CheckEdit(name string) error {
	if cap, ok := r.models[name]; ok && !cap.SupportsEdit {
		return fmt.Errorf("%w: %s", ErrEditNotSupported, name)
	}
	return nil
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

const (
	ModelFlashImage = "gemini-2.5-flash-image"
	ModelProImage   = "gemini-3-pro-image-preview"
)

var standardAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "2:3", "3:2", "4:5", "5:4", "21:9"}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:                  ModelFlashImage,
		SupportedAspectRatios: standardAspectRatios,
		DefaultAspectRatio:    "16:9",
		SupportsEdit:          true,
	})

	r.Register(&ModelCapabilities{
		Name:                  ModelProImage,
		SupportedAspectRatios: standardAspectRatios,
		DefaultAspectRatio:    "16:9",
		SupportsEdit:          true,
	})

	return r
}
