package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/models"
)

// Snapshots persists encoded sessions so they survive a restart.
type Snapshots interface {
	Put(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) (map[string][]byte, error)
}

// ErrUnknownRoutine is wrapped by RoutineLoader errors when the routine does
// not exist.
var ErrUnknownRoutine = errors.New("unknown routine")

// RoutineLoader fetches the ordered items of a routine.
type RoutineLoader interface {
	LoadRoutineItems(ctx context.Context, routineID models.ID) ([]models.RoutineItem, error)
}

// Service ties the live store to its snapshot backend, the routine source
// and the reconciler. Every applied mutation is written through to the
// backend; a failed write is logged and counted but does not undo the
// mutation.
type Service struct {
	store   *Store
	snaps   Snapshots
	loader  RoutineLoader
	rec     *Reconciler
	metrics *metrics.Manager
	log     *slog.Logger
}

func NewService(store *Store, snaps Snapshots, loader RoutineLoader, rec *Reconciler, m *metrics.Manager, log *slog.Logger) *Service {
	return &Service{store: store, snaps: snaps, loader: loader, rec: rec, metrics: m, log: log}
}

// Restore loads every snapshot from the backend into the store. Snapshots
// that do not decode are skipped and reported in the returned error.
func (svc *Service) Restore(ctx context.Context) (int, error) {
	all, err := svc.snaps.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading session snapshots: %w", err)
	}
	var errs error
	n := 0
	for id, data := range all {
		if _, err := svc.store.Import(data); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("snapshot %s: %w", id, err))
			continue
		}
		n++
	}
	svc.metrics.GaugeLiveSessions.Set(float64(svc.store.Len()))
	svc.log.Info("sessions restored", "count", n, "skipped", len(all)-n)
	return n, errs
}

// Start opens a session for routineID. An empty id gets a generated one; an
// id that is already live returns that session unchanged.
func (svc *Service) Start(ctx context.Context, routineID models.ID, id string) (*Session, error) {
	if id == "" {
		id = svc.store.NewID()
	} else if s, ok := svc.store.Get(id); ok {
		return s, nil
	}

	items, err := svc.loader.LoadRoutineItems(ctx, routineID)
	if err != nil {
		return nil, fmt.Errorf("loading routine %s: %w", routineID, err)
	}
	s, created := svc.store.Open(routineID, id, items)
	if created {
		svc.metrics.CounterSessionsStarted.Inc()
		svc.metrics.GaugeLiveSessions.Set(float64(svc.store.Len()))
		svc.log.Info("session started", "session_id", id, "routine_id", routineID, "steps", len(s.Steps))
		svc.persist(ctx, id)
	}
	return s, nil
}

func (svc *Service) Get(id string) (*Session, bool) { return svc.store.Get(id) }

func (svc *Service) List() []*Session { return svc.store.List() }

// UpdateDraft edits a draft of the current step.
func (svc *Service) UpdateDraft(ctx context.Context, id string, setIndex int, patch DraftPatch) (*Session, bool) {
	return svc.apply(ctx, id, func() bool { return svc.store.UpdateDraft(id, setIndex, patch) })
}

// CompleteSet records the current set.
func (svc *Service) CompleteSet(ctx context.Context, id string) (*Session, bool) {
	s, ok := svc.apply(ctx, id, func() bool { return svc.store.CompleteCurrentSet(id) })
	if ok {
		svc.metrics.CounterSets.WithLabelValues("completed").Inc()
	}
	return s, ok
}

// SkipSet records the current set as skipped.
func (svc *Service) SkipSet(ctx context.Context, id string) (*Session, bool) {
	s, ok := svc.apply(ctx, id, func() bool { return svc.store.SkipCurrentSet(id) })
	if ok {
		svc.metrics.CounterSets.WithLabelValues("skipped").Inc()
	}
	return s, ok
}

// NextExercise advances past a fully recorded exercise.
func (svc *Service) NextExercise(ctx context.Context, id string) (*Session, bool) {
	return svc.apply(ctx, id, func() bool { return svc.store.NextExerciseIfDone(id) })
}

func (svc *Service) Pause(ctx context.Context, id string) (*Session, bool) {
	return svc.apply(ctx, id, func() bool { return svc.store.Pause(id) })
}

func (svc *Service) Resume(ctx context.Context, id string) (*Session, bool) {
	return svc.apply(ctx, id, func() bool { return svc.store.Resume(id) })
}

// Abort cancels the session. It stays live until discarded.
func (svc *Service) Abort(ctx context.Context, id string) (*Session, bool) {
	s, ok := svc.apply(ctx, id, func() bool { return svc.store.Abort(id) })
	if ok {
		svc.metrics.CounterSessionsClosed.WithLabelValues(string(StatusAborted)).Inc()
	}
	return s, ok
}

// Finish completes the session, saves it to the backend and removes it from
// the store. When the save fails the session stays live, already completed,
// so that Finish can be called again. While one Finish is saving a session,
// other calls for it fail with ErrSaveInProgress.
func (svc *Service) Finish(ctx context.Context, id string) (*Result, error) {
	if svc.store.Finish(id) {
		svc.metrics.CounterSessionsClosed.WithLabelValues(string(StatusCompleted)).Inc()
		svc.persist(ctx, id)
	}
	s, err := svc.store.claimSave(id)
	if errors.Is(err, ErrNotCompleted) {
		return nil, fmt.Errorf("finishing session %s (%s): %w", id, s.Status, err)
	}
	if err != nil {
		return nil, fmt.Errorf("finishing session %s: %w", id, err)
	}

	res, err := svc.rec.Reconcile(ctx, s)
	if err != nil {
		svc.store.releaseSave(id)
		return nil, err
	}
	svc.store.drop(id)
	svc.forget(ctx, id)
	return res, nil
}

// Discard removes the session from the store and the backend. It fails with
// ErrUnknownSession or, while the session is being saved, ErrSaveInProgress.
func (svc *Service) Discard(ctx context.Context, id string) error {
	if err := svc.store.remove(id); err != nil {
		return fmt.Errorf("discarding session %s: %w", id, err)
	}
	svc.forget(ctx, id)
	return nil
}

func (svc *Service) forget(ctx context.Context, id string) {
	svc.metrics.GaugeLiveSessions.Set(float64(svc.store.Len()))
	if err := svc.snaps.Delete(ctx, id); err != nil {
		svc.metrics.CounterPersistFailures.Inc()
		svc.log.Warn("deleting session snapshot failed", "session_id", id, "error", err)
	}
}

// Completed returns the live sessions that are finished but not yet saved.
func (svc *Service) Completed() []*Session {
	var out []*Session
	for _, s := range svc.store.List() {
		if s.Status == StatusCompleted {
			out = append(out, s)
		}
	}
	return out
}

func (svc *Service) apply(ctx context.Context, id string, fn func() bool) (*Session, bool) {
	if !fn() {
		return nil, false
	}
	svc.persist(ctx, id)
	return svc.store.Get(id)
}

func (svc *Service) persist(ctx context.Context, id string) {
	data, err := svc.store.Export(id)
	if err != nil {
		// removed concurrently
		return
	}
	if err := svc.snaps.Put(ctx, id, data); err != nil {
		svc.metrics.CounterPersistFailures.Inc()
		svc.log.Warn("writing session snapshot failed", "session_id", id, "error", err)
	}
}
