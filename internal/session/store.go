package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/eruna/internal/models"
)

var (
	// ErrUnknownSession is returned by the few Store methods that report
	// errors when the id is not live.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSaveInProgress is returned while another caller is saving the
	// session.
	ErrSaveInProgress = errors.New("session is already being saved")
)

type entry struct {
	mu     sync.Mutex
	s      *Session
	saving bool
}

// Store holds the live sessions keyed by id. Every mutation holds the
// session's own lock for its whole read-modify-write; reads return copies.
// Mutations addressing an unknown id are ignored and report false.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithIDGenerator replaces the random session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(st *Store) { st.newID = newID }
}

// NewStore creates an empty store.
func NewStore(log *slog.Logger, opts ...Option) *Store {
	st := &Store{
		sessions: make(map[string]*entry),
		now:      time.Now,
		newID:    uuid.NewString,
		log:      log,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// NewID returns a fresh session id.
func (st *Store) NewID() string {
	return st.newID()
}

// Open returns the live session with the given id, or builds one from items
// and stores it. created reports whether the factory ran.
func (st *Store) Open(routineID models.ID, id string, items []models.RoutineItem) (s *Session, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if e, ok := st.sessions[id]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.s.Clone(), false
	}
	s = New(routineID, id, items, st.now())
	st.sessions[id] = &entry{s: s}
	st.log.Debug("session created", "session_id", id, "routine_id", routineID, "steps", len(s.Steps))
	return s.Clone(), true
}

// Get returns a copy of the session.
func (st *Store) Get(id string) (*Session, bool) {
	e := st.lookup(id)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), true
}

// List returns copies of all live sessions, oldest first.
func (st *Store) List() []*Session {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.sessions))
	for _, e := range st.sessions {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.s.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Remove deletes the session. Its progress is gone afterwards. A session
// that is being saved is left alone and false is returned.
func (st *Store) Remove(id string) bool {
	return st.remove(id) == nil
}

func (st *Store) remove(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	e.mu.Lock()
	saving := e.saving
	e.mu.Unlock()
	if saving {
		return ErrSaveInProgress
	}
	delete(st.sessions, id)
	st.log.Debug("session removed", "session_id", id)
	return nil
}

// claimSave marks a completed session as being saved and returns a copy of
// it. Only one claim per session is held at a time; the holder either
// releases it or drops the session.
func (st *Store) claimSave(id string) (*Session, error) {
	e := st.lookup(id)
	if e == nil {
		return nil, ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saving {
		return nil, ErrSaveInProgress
	}
	if e.s.Status != StatusCompleted {
		return e.s.Clone(), ErrNotCompleted
	}
	e.saving = true
	return e.s.Clone(), nil
}

func (st *Store) releaseSave(id string) {
	if e := st.lookup(id); e != nil {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}
}

// drop removes a session whose save claim the caller holds.
func (st *Store) drop(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
	st.log.Debug("session removed", "session_id", id)
}

// UpdateDraft merges patch into the draft of setIndex on the current step.
// Indexes outside the planned sets are ignored.
func (st *Store) UpdateDraft(id string, setIndex int, patch DraftPatch) bool {
	return st.update(id, func(s *Session) bool {
		if s.Status != StatusActive {
			return false
		}
		step := s.Current()
		if step == nil || setIndex < 0 || setIndex >= step.Target.SetCount() {
			return false
		}
		for len(step.Drafts) <= setIndex {
			step.Drafts = append(step.Drafts, Draft{SetIndex: len(step.Drafts)})
		}
		d := &step.Drafts[setIndex]
		d.SetIndex = setIndex
		patch.apply(&d.Workload)
		return true
	})
}

// CompleteCurrentSet records the current set using the draft, falling back
// to the target for unset fields, then moves to the next set or exercise.
func (st *Store) CompleteCurrentSet(id string) bool {
	return st.recordSet(id, false)
}

// SkipCurrentSet records the current set as skipped, without workload, then
// moves on like CompleteCurrentSet.
func (st *Store) SkipCurrentSet(id string) bool {
	return st.recordSet(id, true)
}

func (st *Store) recordSet(id string, skipped bool) bool {
	return st.update(id, func(s *Session) bool {
		if s.Status != StatusActive {
			return false
		}
		step := s.Current()
		if step == nil {
			return false
		}
		if step.Done() {
			return s.advance()
		}

		started := s.lastSetEnd()
		ended := st.now()
		rec := SetRecord{
			SetIndex:  step.CurrentSet,
			StartedAt: &started,
			EndedAt:   &ended,
			Skipped:   skipped,
		}
		if !skipped {
			rec.Workload = step.draft(step.CurrentSet).Workload.withFallback(step.Target.Workload)
		}
		step.Performed = append(step.Performed, rec)

		if step.CurrentSet+1 < step.Target.SetCount() {
			step.CurrentSet++
		} else {
			s.advance()
		}
		return true
	})
}

// NextExerciseIfDone advances to the next exercise when the current one has
// all of its sets recorded.
func (st *Store) NextExerciseIfDone(id string) bool {
	return st.update(id, func(s *Session) bool {
		if s.Status != StatusActive {
			return false
		}
		step := s.Current()
		if step == nil || !step.Done() {
			return false
		}
		return s.advance()
	})
}

// Finish marks an active or paused session completed and stamps its end.
func (st *Store) Finish(id string) bool {
	return st.close(id, StatusCompleted)
}

// Abort cancels an active or paused session.
func (st *Store) Abort(id string) bool {
	return st.close(id, StatusAborted)
}

func (st *Store) close(id string, status Status) bool {
	return st.update(id, func(s *Session) bool {
		if s.Status.Terminal() {
			return false
		}
		now := st.now()
		s.Status = status
		s.EndedAt = &now
		return true
	})
}

// Pause suspends an active session. Set actions are ignored while paused.
func (st *Store) Pause(id string) bool {
	return st.transition(id, StatusActive, StatusPaused)
}

// Resume reactivates a paused session.
func (st *Store) Resume(id string) bool {
	return st.transition(id, StatusPaused, StatusActive)
}

func (st *Store) transition(id string, from, to Status) bool {
	return st.update(id, func(s *Session) bool {
		if s.Status != from {
			return false
		}
		s.Status = to
		return true
	})
}

func (st *Store) lookup(id string) *entry {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// update runs fn under the session lock. fn reports whether it changed
// anything.
func (st *Store) update(id string, fn func(*Session) bool) bool {
	e := st.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.s)
}
