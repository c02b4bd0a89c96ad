// Package history keeps the linear undo/redo timeline of thumbnail versions.
package history

import (
	"slices"

	"github.com/manash/clickgenius/pkg/models"
)

// Store is an ordered list of image references with a cursor marking the
// version on screen. The cursor is -1 when the store is empty and otherwise
// indexes a valid entry. Pushing while the cursor is behind the latest entry
// discards everything after the cursor.
type Store struct {
	entries []models.ImageRef
	cursor  int
}

func New() *Store {
	return &Store{cursor: -1}
}

// Restore rebuilds a store from persisted entries. A cursor outside
// [-1, len-1] is clamped to the last entry.
func Restore(entries []models.ImageRef, cursor int) *Store {
	s := &Store{entries: slices.Clone(entries), cursor: cursor}
	if len(s.entries) == 0 {
		s.entries = nil
		s.cursor = -1
		return s
	}
	if s.cursor < 0 || s.cursor >= len(s.entries) {
		s.cursor = len(s.entries) - 1
	}
	return s
}

func (s *Store) Push(ref models.ImageRef) {
	s.entries = append(s.entries[:s.cursor+1], ref)
	s.cursor = len(s.entries) - 1
}

// StepBack moves the cursor one entry back and returns the entry now under it.
// At the first entry, or when empty, nothing changes and ok is false.
func (s *Store) StepBack() (models.ImageRef, bool) {
	if s.cursor <= 0 {
		return "", false
	}
	s.cursor--
	return s.entries[s.cursor], true
}

// StepForward is the inverse of StepBack.
func (s *Store) StepForward() (models.ImageRef, bool) {
	if s.cursor >= len(s.entries)-1 {
		return "", false
	}
	s.cursor++
	return s.entries[s.cursor], true
}

func (s *Store) Reset() {
	s.entries = nil
	s.cursor = -1
}

// Current returns the entry under the cursor, or the zero ref when empty.
func (s *Store) Current() models.ImageRef {
	if s.cursor < 0 {
		return ""
	}
	return s.entries[s.cursor]
}

func (s *Store) Entries() []models.ImageRef {
	return slices.Clone(s.entries)
}

func (s *Store) Cursor() int {
	return s.cursor
}

func (s *Store) Len() int {
	return len(s.entries)
}

func (s *Store) CanUndo() bool {
	return s.cursor > 0
}

func (s *Store) CanRedo() bool {
	return s.cursor < len(s.entries)-1
}

func (s *Store) Clone() *Store {
	return &Store{entries: slices.Clone(s.entries), cursor: s.cursor}
}
