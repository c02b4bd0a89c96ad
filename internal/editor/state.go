// Package editor holds the thumbnail editing state machine.
//
// State transitions are expressed as actions applied by Reduce, which never
// mutates its input. Editor drives the transitions for one project and saves
// the project after each one.
package editor

import (
	"slices"
	"time"

	"github.com/manash/clickgenius/internal/history"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/pkg/models"
)

const (
	UploadedPrefix   = "Uploaded: "
	UploadedReply    = "Image loaded. How should we optimize it?"
	UploadFailedText = "Upload failed."
)

type State struct {
	ProjectID  string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	History    *history.Store
	Messages   []models.Message
	Generating bool
	Mode       models.Mode
}

func FromProject(p *project.Project) State {
	mode := p.Mode
	if !mode.IsValid() {
		mode = models.ModeCTR
	}
	return State{
		ProjectID: p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		History:   history.Restore(p.Entries, p.Cursor),
		Messages:  slices.Clone(p.Messages),
		Mode:      mode,
	}
}

// Project snapshots the persistent part of the state.
func (s State) Project() *project.Project {
	return &project.Project{
		ID:        s.ProjectID,
		Name:      s.Name,
		Mode:      s.Mode,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Entries:   s.History.Entries(),
		Cursor:    s.History.Cursor(),
		Messages:  slices.Clone(s.Messages),
	}
}

func (s State) Current() models.ImageRef {
	return s.History.Current()
}

func (s State) clone() State {
	c := s
	c.History = s.History.Clone()
	c.Messages = slices.Clone(s.Messages)
	return c
}

type Action interface {
	action()
}

// MessageSent records the user's instruction and marks a generation in flight.
type MessageSent struct {
	Message models.Message
}

type GenerationSucceeded struct {
	Image   models.ImageRef
	Message models.Message
}

// GenerationFailed carries the assistant message shown in place of a result.
type GenerationFailed struct {
	Message models.Message
}

type ImageUploaded struct {
	Image     models.ImageRef
	UserMsg   models.Message
	Assistant models.Message
}

type UploadFailed struct {
	Message models.Message
}

type Undo struct{}

type Redo struct{}

// ResetCanvas drops every version. The chat log is kept.
type ResetCanvas struct{}

type ModeChanged struct {
	Mode models.Mode
}

type Renamed struct {
	Name string
}

type Touched struct {
	At time.Time
}

func (MessageSent) action()         {}
func (GenerationSucceeded) action() {}
func (GenerationFailed) action()    {}
func (ImageUploaded) action()       {}
func (UploadFailed) action()        {}
func (Undo) action()                {}
func (Redo) action()                {}
func (ResetCanvas) action()         {}
func (ModeChanged) action()         {}
func (Renamed) action()             {}
func (Touched) action()             {}

func Reduce(s State, a Action) State {
	next := s.clone()

	switch a := a.(type) {
	case MessageSent:
		next.Messages = append(next.Messages, a.Message)
		next.Generating = true
	case GenerationSucceeded:
		if !a.Image.IsZero() {
			next.History.Push(a.Image)
		}
		next.Messages = append(next.Messages, a.Message)
		next.Generating = false
	case GenerationFailed:
		next.Messages = append(next.Messages, a.Message)
		next.Generating = false
	case ImageUploaded:
		next.History.Push(a.Image)
		next.Messages = append(next.Messages, a.UserMsg, a.Assistant)
	case UploadFailed:
		next.Messages = append(next.Messages, a.Message)
	case Undo:
		next.History.StepBack()
	case Redo:
		next.History.StepForward()
	case ResetCanvas:
		next.History.Reset()
	case ModeChanged:
		if a.Mode.IsValid() {
			next.Mode = a.Mode
		}
	case Renamed:
		next.Name = a.Name
	case Touched:
		next.UpdatedAt = a.At
	}

	return next
}
