// Package project persists editing projects: the version history, its
// cursor, and the chat log. Records are always read and written whole.
package project

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manash/clickgenius/pkg/models"
)

var (
	ErrNotFound    = errors.New("project not found")
	ErrAmbiguousID = errors.New("project ID prefix matches more than one project")
)

const DefaultName = "Untitled thumbnail"

type Project struct {
	ID        string
	Name      string
	Mode      models.Mode
	CreatedAt time.Time
	UpdatedAt time.Time
	Entries   []models.ImageRef
	Cursor    int
	Messages  []models.Message
}

func New(name string) *Project {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	now := time.Now().UTC()
	return &Project{
		ID:        uuid.New().String(),
		Name:      name,
		Mode:      models.ModeCTR,
		CreatedAt: now,
		UpdatedAt: now,
		Cursor:    -1,
	}
}

func (p *Project) Clone() *Project {
	c := *p
	c.Entries = slices.Clone(p.Entries)
	c.Messages = slices.Clone(p.Messages)
	return &c
}

func (p *Project) Current() models.ImageRef {
	if p.Cursor < 0 || p.Cursor >= len(p.Entries) {
		return ""
	}
	return p.Entries[p.Cursor]
}

func (p *Project) Summary() Summary {
	return Summary{
		ID:        p.ID,
		Name:      p.Name,
		Mode:      p.Mode,
		UpdatedAt: p.UpdatedAt,
		Versions:  len(p.Entries),
		Messages:  len(p.Messages),
	}
}

// Summary is the listing view of a project.
type Summary struct {
	ID        string
	Name      string
	Mode      models.Mode
	UpdatedAt time.Time
	Versions  int
	Messages  int
}

func (s Summary) ShortID() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

type Store interface {
	Save(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	// List returns summaries, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Find loads a project by full ID or unique ID prefix.
func Find(ctx context.Context, store Store, idOrPrefix string) (*Project, error) {
	p, err := store.Get(ctx, idOrPrefix)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	summaries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	var match string
	for _, s := range summaries {
		if !strings.HasPrefix(s.ID, idOrPrefix) {
			continue
		}
		if match != "" {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, idOrPrefix)
		}
		match = s.ID
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	}
	return store.Get(ctx, match)
}

func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
