package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/pkg/models"
)

var (
	ErrBusy             = errors.New("a generation is already in progress")
	ErrAtFirstImage     = errors.New("already at first version")
	ErrAtLatestImage    = errors.New("already at latest version")
	ErrEmptyInstruction = models.ErrEmptyInstruction
)

// Persister saves a project snapshot. project.Store satisfies it.
type Persister interface {
	Save(ctx context.Context, p *project.Project) error
}

type Editor struct {
	mu        sync.Mutex
	state     State
	generator provider.Generator
	persister Persister

	now   func() time.Time
	newID func() string
}

type Option func(*Editor)

func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

func WithIDs(newID func() string) Option {
	return func(e *Editor) { e.newID = newID }
}

// New returns an editor for p. persister may be nil, in which case nothing
// is saved.
func New(p *project.Project, generator provider.Generator, persister Persister, opts ...Option) *Editor {
	e := &Editor{
		state:     FromProject(p),
		generator: generator,
		persister: persister,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

func (e *Editor) Current() models.ImageRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Current()
}

func (e *Editor) message(role models.Role, text string) models.Message {
	return models.Message{
		ID:        e.newID(),
		Role:      role,
		Text:      text,
		Timestamp: e.now(),
	}
}

// dispatch applies actions under the lock and returns the snapshot to save.
func (e *Editor) dispatch(actions ...Action) *project.Project {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(actions...)
}

// dispatchIdle is dispatch for transitions that must not interleave with a
// generation in flight.
func (e *Editor) dispatchIdle(actions ...Action) (*project.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Generating {
		return nil, ErrBusy
	}
	return e.apply(actions...), nil
}

// apply must be called with mu held.
func (e *Editor) apply(actions ...Action) *project.Project {
	for _, a := range actions {
		e.state = Reduce(e.state, a)
	}
	e.state = Reduce(e.state, Touched{At: e.now()})
	return e.state.Project()
}

func (e *Editor) persist(ctx context.Context, snapshot *project.Project) {
	if e.persister == nil {
		return
	}
	if err := e.persister.Save(ctx, snapshot); err != nil {
		log.FromContextOrDiscard(ctx).Warn("failed to save project", "project", snapshot.ID, "error", err)
	}
}

// Submit sends an instruction to the generator and records the exchange.
// When generation fails the chat log gets the fixed error reply and the
// returned message is that reply; the underlying error is also returned.
func (e *Editor) Submit(ctx context.Context, instruction string) (models.Message, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return models.Message{}, ErrEmptyInstruction
	}

	e.mu.Lock()
	if e.state.Generating {
		e.mu.Unlock()
		return models.Message{}, ErrBusy
	}
	req := &models.GenerationRequest{
		Instruction: instruction,
		Current:     e.state.Current(),
		Mode:        e.state.Mode,
	}
	e.state = Reduce(e.state, MessageSent{Message: e.message(models.RoleUser, instruction)})
	e.state = Reduce(e.state, Touched{At: e.now()})
	snapshot := e.state.Project()
	e.mu.Unlock()
	e.persist(ctx, snapshot)

	logger := log.FromContextOrDiscard(ctx).With("project", snapshot.ID)
	resp, err := e.generator.Generate(ctx, req)
	if err != nil {
		logger.Warn("generation failed", "error", err)
		reply := e.message(models.RoleAssistant, provider.UserFacingError)
		e.persist(ctx, e.dispatch(GenerationFailed{Message: reply}))
		return reply, err
	}

	text := resp.Text
	if text == "" {
		text = "Done."
	}
	reply := e.message(models.RoleAssistant, text)
	e.persist(ctx, e.dispatch(GenerationSucceeded{Image: resp.Image, Message: reply}))
	logger.Debug("generation recorded", "has_image", resp.HasImage())
	return reply, nil
}

// Upload loads a local image as the newest version. Files that are not
// images return image.ErrNotImage and leave the state untouched.
func (e *Editor) Upload(ctx context.Context, path string) (models.Message, error) {
	if e.isGenerating() {
		return models.Message{}, ErrBusy
	}

	up, err := image.LoadUpload(path)
	if errors.Is(err, image.ErrNotImage) {
		log.FromContextOrDiscard(ctx).Debug("ignoring non-image upload", "path", path)
		return models.Message{}, err
	}
	if err != nil {
		reply := e.message(models.RoleAssistant, UploadFailedText)
		e.persist(ctx, e.dispatch(UploadFailed{Message: reply}))
		return reply, fmt.Errorf("upload failed: %w", err)
	}

	reply := e.message(models.RoleAssistant, UploadedReply)
	e.persist(ctx, e.dispatch(ImageUploaded{
		Image:     up.Ref,
		UserMsg:   e.message(models.RoleUser, UploadedPrefix+up.Name),
		Assistant: reply,
	}))
	return reply, nil
}

func (e *Editor) Undo(ctx context.Context) (models.ImageRef, error) {
	e.mu.Lock()
	if e.state.Generating {
		e.mu.Unlock()
		return "", ErrBusy
	}
	if !e.state.History.CanUndo() {
		e.mu.Unlock()
		return "", ErrAtFirstImage
	}
	e.mu.Unlock()

	snapshot := e.dispatch(Undo{})
	e.persist(ctx, snapshot)
	return snapshot.Current(), nil
}

func (e *Editor) Redo(ctx context.Context) (models.ImageRef, error) {
	e.mu.Lock()
	if e.state.Generating {
		e.mu.Unlock()
		return "", ErrBusy
	}
	if !e.state.History.CanRedo() {
		e.mu.Unlock()
		return "", ErrAtLatestImage
	}
	e.mu.Unlock()

	snapshot := e.dispatch(Redo{})
	e.persist(ctx, snapshot)
	return snapshot.Current(), nil
}

// Reset drops every version. It returns ErrBusy while a generation is in
// flight.
func (e *Editor) Reset(ctx context.Context) error {
	return e.idle(ctx, ResetCanvas{})
}

func (e *Editor) SetMode(ctx context.Context, mode models.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
	}
	return e.idle(ctx, ModeChanged{Mode: mode})
}

func (e *Editor) Rename(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}
	return e.idle(ctx, Renamed{Name: name})
}

func (e *Editor) idle(ctx context.Context, a Action) error {
	snapshot, err := e.dispatchIdle(a)
	if err != nil {
		return err
	}
	e.persist(ctx, snapshot)
	return nil
}

// Save writes the current state regardless of whether anything changed.
func (e *Editor) Save(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	e.mu.Lock()
	snapshot := e.state.Project()
	e.mu.Unlock()
	return e.persister.Save(ctx, snapshot)
}

func (e *Editor) isGenerating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Generating
}
