package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/logger"
)

// Timer is the subset of *time.Timer a Session needs.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock schedules with the time package.
var RealClock Clock = realClock{}

// CommitFunc persists a committed buffer.
type CommitFunc func(ctx context.Context, m *domain.Metadata) error

// Session drives Reduce for a single asset editor.
type Session struct {
	id     string
	clock  Clock
	commit CommitFunc

	mu          sync.Mutex
	state       State
	debounce    Timer
	savedReset  Timer
	debounceGen uint64
	savedGen    uint64

	// commitSeq is taken under mu; appliedSeq is guarded by commitMu.
	commitSeq  uint64
	commitMu   sync.Mutex
	appliedSeq uint64
}

// NewSession creates an editor for the asset's current metadata.
func NewSession(id string, m *domain.Metadata, clock Clock, commit CommitFunc) *Session {
	if clock == nil {
		clock = RealClock
	}
	return &Session{
		id:     id,
		clock:  clock,
		commit: commit,
		state:  NewState(m),
	}
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Buffer = st.Buffer.Clone()
	st.Snapshot = st.Snapshot.Clone()
	return st
}

// Dispatch feeds ev to the reducer and runs the resulting effects.
func (s *Session) Dispatch(ev Event) State {
	return s.dispatch(ev, nil)
}

// Close stops any armed timers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopDebounce()
	s.stopSavedReset()
}

func (s *Session) dispatch(ev Event, valid func() bool) State {
	s.mu.Lock()
	if valid != nil && !valid() {
		st := s.state
		s.mu.Unlock()
		return st
	}

	next, effects := Reduce(s.state, ev)
	s.state = next

	var toCommit *domain.Metadata
	var seq uint64
	for _, eff := range effects {
		switch eff {
		case EffectArmDebounce:
			s.stopDebounce()
			s.debounceGen++
			gen := s.debounceGen
			s.debounce = s.clock.AfterFunc(DebounceDelay, func() {
				s.dispatch(DebounceElapsed{}, func() bool { return gen == s.debounceGen })
			})
		case EffectCancelDebounce:
			s.stopDebounce()
		case EffectCommit:
			toCommit = next.Buffer.Clone()
			s.commitSeq++
			seq = s.commitSeq
		case EffectArmSavedReset:
			s.stopSavedReset()
			s.savedGen++
			gen := s.savedGen
			s.savedReset = s.clock.AfterFunc(SavedDisplay, func() {
				s.dispatch(SavedElapsed{}, func() bool { return gen == s.savedGen })
			})
		}
	}
	s.mu.Unlock()

	if toCommit != nil {
		s.runCommit(seq, toCommit)
	}
	return next
}

// stopDebounce must be called with mu held. Bumping the generation keeps a
// callback that already fired from acting on the new state.
func (s *Session) stopDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.debounceGen++
}

func (s *Session) stopSavedReset() {
	if s.savedReset != nil {
		s.savedReset.Stop()
		s.savedReset = nil
	}
	s.savedGen++
}

// runCommit persists m unless a later commit already landed. Commits leave
// mu before running, so two of them can reach commitMu in either order.
func (s *Session) runCommit(seq uint64, m *domain.Metadata) {
	if s.commit == nil {
		return
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if seq <= s.appliedSeq {
		return
	}
	s.appliedSeq = seq

	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldAssetID:   s.id,
		logger.FieldComponent: "autosave",
	})
	if err := s.commit(ctx, m); err != nil {
		logger.CtxError(ctx, "Failed to commit draft: %v", err)
	}
}
