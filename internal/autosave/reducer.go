// Package autosave models debounced saving of in-progress metadata edits.
//
// Reduce is a pure state transition. Session drives it with real timers and
// a commit callback; Hub keeps one Session per asset.
package autosave

import (
	"time"

	"github.com/timmy/stockmeta/internal/domain"
)

// Status is the visible save state of an editor.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
)

const (
	// DebounceDelay is how long an edit waits before it is committed.
	DebounceDelay = 3 * time.Second
	// SavedDisplay is how long StatusSaved is shown before returning to idle.
	SavedDisplay = 2 * time.Second
)

// Field names an editable metadata field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
	FieldKeywords    Field = "keywords"
)

// Valid reports whether f is an editable field.
func (f Field) Valid() bool {
	switch f {
	case FieldTitle, FieldDescription, FieldCategory, FieldKeywords:
		return true
	}
	return false
}

// State is the editor state for one asset.
type State struct {
	Status Status
	// Buffer holds what the user currently sees, including uncommitted edits.
	Buffer *domain.Metadata
	// Snapshot is the last value committed or received from outside.
	Snapshot *domain.Metadata
	// Pending is set while a debounce timer is armed.
	Pending bool
}

// NewState starts an editor on committed metadata.
func NewState(m *domain.Metadata) State {
	return State{Status: StatusIdle, Buffer: m.Clone(), Snapshot: m.Clone()}
}

// Effect is a side effect the driver must perform after a transition.
type Effect int

const (
	EffectArmDebounce Effect = iota + 1
	EffectCancelDebounce
	EffectCommit
	EffectArmSavedReset
)

// Event is an input to Reduce.
type Event interface{ event() }

// Edit changes a single field of the buffer.
type Edit struct {
	Field    Field
	Text     string
	Keywords []string
}

// Blur signals that the user left the field.
type Blur struct{}

// DebounceElapsed fires when the debounce timer expires.
type DebounceElapsed struct{}

// SavedElapsed fires when the saved indicator timer expires.
type SavedElapsed struct{}

// Apply replaces the whole buffer and commits at once. Used for structural
// edits such as adding a trend keyword or removing duplicates.
type Apply struct{ Metadata *domain.Metadata }

// Sync merges a change made elsewhere, for example by a bulk edit.
type Sync struct{ Metadata *domain.Metadata }

func (Edit) event()            {}
func (Blur) event()            {}
func (DebounceElapsed) event() {}
func (SavedElapsed) event()    {}
func (Apply) event()           {}
func (Sync) event()            {}

// Reduce returns the next state and the effects to run. The input state is
// not modified.
func Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Edit:
		if s.Buffer == nil || !e.Field.Valid() {
			return s, nil
		}
		s.Buffer = withField(s.Buffer, e)
		s.Status = StatusSaving
		s.Pending = true
		return s, []Effect{EffectArmDebounce}

	case DebounceElapsed:
		if !s.Pending {
			return s, nil
		}
		return commit(s, nil)

	case Blur:
		if !s.Pending || s.Buffer == nil {
			return s, nil
		}
		return commit(s, []Effect{EffectCancelDebounce})

	case Apply:
		if e.Metadata == nil {
			return s, nil
		}
		s.Buffer = e.Metadata.Clone()
		var effects []Effect
		if s.Pending {
			effects = append(effects, EffectCancelDebounce)
		}
		return commit(s, effects)

	case Sync:
		return mergeExternal(s, e.Metadata)

	case SavedElapsed:
		if s.Status == StatusSaved {
			s.Status = StatusIdle
		}
		return s, nil
	}
	return s, nil
}

func commit(s State, effects []Effect) (State, []Effect) {
	s.Pending = false
	s.Snapshot = s.Buffer.Clone()
	s.Status = StatusSaved
	return s, append(effects, EffectCommit, EffectArmSavedReset)
}

// mergeExternal merges only the fields that changed relative to the snapshot, so
// unrelated in-progress edits survive. A pending debounce stays armed and
// later commits the merged buffer.
func mergeExternal(s State, incoming *domain.Metadata) (State, []Effect) {
	if incoming == nil {
		return s, nil
	}
	if s.Snapshot == nil || s.Buffer == nil {
		s.Buffer = incoming.Clone()
		s.Snapshot = incoming.Clone()
		return s, nil
	}

	prev := s.Snapshot
	titleChanged := incoming.Title != prev.Title
	descChanged := incoming.Description != prev.Description
	catChanged := incoming.Category != prev.Category
	kwChanged := !domain.KeywordsEqual(incoming.Keywords, prev.Keywords)
	if !titleChanged && !descChanged && !catChanged && !kwChanged {
		return s, nil
	}

	buf := s.Buffer.Clone()
	if titleChanged {
		buf.Title = incoming.Title
	}
	if descChanged {
		buf.Description = incoming.Description
	}
	if catChanged {
		buf.Category = incoming.Category
	}
	if kwChanged {
		buf.Keywords = append([]string(nil), incoming.Keywords...)
	}
	s.Buffer = buf
	s.Snapshot = incoming.Clone()
	s.Status = StatusSaved
	return s, []Effect{EffectArmSavedReset}
}

func withField(m *domain.Metadata, e Edit) *domain.Metadata {
	c := m.Clone()
	switch e.Field {
	case FieldTitle:
		c.Title = e.Text
	case FieldDescription:
		c.Description = e.Text
	case FieldCategory:
		c.Category = e.Text
	case FieldKeywords:
		c.Keywords = append([]string{}, e.Keywords...)
	}
	return c
}
