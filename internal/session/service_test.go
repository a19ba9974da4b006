package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/models"
)

type serviceFixture struct {
	svc    *Service
	store  *Store
	snaps  *memSnapshots
	writer *fakeWriter
	m      *metrics.Manager
}

func newServiceFixture() *serviceFixture {
	fx := &serviceFixture{
		store:  newTestStore(),
		snaps:  newMemSnapshots(),
		writer: &fakeWriter{},
	}
	rec := newTestReconciler(fx.writer)
	fx.m = rec.metrics
	loader := &fakeLoader{items: map[models.ID][]models.RoutineItem{
		"r1": {item("A", 0, n(2), f(10), nil), item("B", 1, n(1), nil, f(30))},
	}}
	fx.svc = NewService(fx.store, fx.snaps, loader, rec, fx.m, testLogger())
	return fx
}

// TestServiceStartPersists verifies that a started session is written to
// the snapshot backend.
func TestServiceStartPersists(t *testing.T) {
	fx := newServiceFixture()
	s, err := fx.svc.Start(context.Background(), "r1", "")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Len(t, s.Steps, 2)

	require.Contains(t, fx.snaps.data, "s1")
	var stored Session
	require.NoError(t, json.Unmarshal(fx.snaps.data["s1"], &stored))
	assert.Equal(t, models.ID("r1"), stored.RoutineID)
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.m.CounterSessionsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.m.GaugeLiveSessions))
}

// TestServiceStartExistingID returns the live session without reloading
// the routine.
func TestServiceStartExistingID(t *testing.T) {
	fx := newServiceFixture()
	_, err := fx.svc.Start(context.Background(), "r1", "mine")
	require.NoError(t, err)
	_, ok := fx.svc.CompleteSet(context.Background(), "mine")
	require.True(t, ok)

	fx.svc.loader = &fakeLoader{err: errors.New("must not be called")}
	s, err := fx.svc.Start(context.Background(), "r1", "mine")
	require.NoError(t, err)
	assert.Len(t, s.Steps[0].Performed, 1)
}

// TestServiceStartLoaderError surfaces routine loading failures.
func TestServiceStartLoaderError(t *testing.T) {
	fx := newServiceFixture()
	fx.svc.loader = &fakeLoader{err: errBackend}
	_, err := fx.svc.Start(context.Background(), "r1", "")
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, 0, fx.store.Len())
}

// TestServiceMutationsWriteThrough verifies that applied actions update the
// stored snapshot and ignored ones report false.
func TestServiceMutationsWriteThrough(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)

	got, ok := fx.svc.UpdateDraft(ctx, s.ID, 0, DraftPatch{Reps: Value(7)})
	require.True(t, ok)
	assert.Equal(t, 7.0, *got.Steps[0].Drafts[0].Reps)

	_, ok = fx.svc.SkipSet(ctx, s.ID)
	require.True(t, ok)
	_, ok = fx.svc.CompleteSet(ctx, s.ID)
	require.True(t, ok)

	var stored Session
	require.NoError(t, json.Unmarshal(fx.snaps.data[s.ID], &stored))
	assert.Equal(t, 1, stored.StepIndex)
	assert.Len(t, stored.Steps[0].Performed, 2)

	_, ok = fx.svc.Resume(ctx, s.ID)
	assert.False(t, ok)
	_, ok = fx.svc.CompleteSet(ctx, "unknown")
	assert.False(t, ok)

	assert.Equal(t, float64(1), testutil.ToFloat64(fx.m.CounterSets.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.m.CounterSets.WithLabelValues("skipped")))
}

// TestServicePersistFailureKeepsMutation verifies that a failing snapshot
// backend does not undo an action.
func TestServicePersistFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)

	fx.snaps.failPut = true
	got, ok := fx.svc.CompleteSet(ctx, s.ID)
	require.True(t, ok)
	assert.Len(t, got.Steps[0].Performed, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.m.CounterPersistFailures))
}

// TestServiceFinishRemovesOnSuccess verifies finish, save and removal from
// both the store and the backend.
func TestServiceFinishRemovesOnSuccess(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)
	_, ok := fx.svc.CompleteSet(ctx, s.ID)
	require.True(t, ok)

	res, err := fx.svc.Finish(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)
	_, ok = fx.svc.Get(s.ID)
	assert.False(t, ok)
	assert.NotContains(t, fx.snaps.data, s.ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.m.CounterSessionsClosed.WithLabelValues("completed")))
}

// TestServiceFinishFailureKeepsSession fails the second entry write and
// expects exactly one entry written and the session still live.
func TestServiceFinishFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, ok := fx.svc.CompleteSet(ctx, s.ID)
		require.True(t, ok)
	}
	fx.writer.failOn = 3

	_, err = fx.svc.Finish(ctx, s.ID)
	var rerr *ReconcileError
	require.ErrorAs(t, err, &rerr)
	assert.Len(t, fx.writer.entries, 1)

	kept, ok := fx.svc.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, kept.Status)
	assert.Contains(t, fx.snaps.data, s.ID)
	assert.Len(t, fx.svc.Completed(), 1)

	fx.writer.failOn = 0
	_, err = fx.svc.Finish(ctx, s.ID)
	require.NoError(t, err)
	_, ok = fx.svc.Get(s.ID)
	assert.False(t, ok)
}

// TestServiceFinishAbortedOrUnknown rejects sessions that cannot be saved.
func TestServiceFinishAbortedOrUnknown(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)
	_, ok := fx.svc.Abort(ctx, s.ID)
	require.True(t, ok)

	_, err = fx.svc.Finish(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = fx.svc.Finish(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Empty(t, fx.writer.records)
}

// TestServiceRestore loads snapshots back and reports broken ones.
func TestServiceRestore(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)
	_, ok := fx.svc.CompleteSet(ctx, s.ID)
	require.True(t, ok)
	fx.snaps.data["broken"] = []byte("{not json")

	restarted := newServiceFixture()
	restarted.snaps = fx.snaps
	restarted.svc.snaps = fx.snaps

	count, err := restarted.svc.Restore(ctx)
	assert.Equal(t, 1, count)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot broken")

	got, ok := restarted.svc.Get(s.ID)
	require.True(t, ok)
	assert.Len(t, got.Steps[0].Performed, 1)
}

// TestServiceDiscard removes a session from store and backend.
func TestServiceDiscard(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)

	assert.NoError(t, fx.svc.Discard(ctx, s.ID))
	assert.ErrorIs(t, fx.svc.Discard(ctx, s.ID), ErrUnknownSession)
	assert.Empty(t, fx.snaps.data)
	assert.Empty(t, fx.svc.List())
}

// TestServiceFinishConcurrent verifies that a session is saved once when a
// second caller finishes or discards it while the first save is running.
func TestServiceFinishConcurrent(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	s, err := fx.svc.Start(ctx, "r1", "")
	require.NoError(t, err)
	_, ok := fx.svc.CompleteSet(ctx, s.ID)
	require.True(t, ok)

	fx.writer.started = make(chan struct{})
	fx.writer.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := fx.svc.Finish(ctx, s.ID)
		done <- err
	}()
	<-fx.writer.started

	_, err = fx.svc.Finish(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSaveInProgress)
	assert.ErrorIs(t, fx.svc.Discard(ctx, s.ID), ErrSaveInProgress)
	assert.False(t, fx.store.Remove(s.ID))

	close(fx.writer.release)
	require.NoError(t, <-done)
	assert.Len(t, fx.writer.records, 1)
	assert.Len(t, fx.writer.entries, 1)
	_, ok = fx.svc.Get(s.ID)
	assert.False(t, ok)
	assert.NotContains(t, fx.snaps.data, s.ID)

	_, err = fx.svc.Finish(ctx, s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

// TestServiceStartUnknownRoutine verifies that no session is opened for a
// routine the backend does not have.
func TestServiceStartUnknownRoutine(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture()
	fx.svc.loader = &fakeLoader{err: fmt.Errorf("routine 999: %w", ErrUnknownRoutine)}

	_, err := fx.svc.Start(ctx, "999", "")
	assert.ErrorIs(t, err, ErrUnknownRoutine)
	assert.Empty(t, fx.svc.List())
	assert.Empty(t, fx.snaps.data)
}
