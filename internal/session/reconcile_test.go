package session

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/eruna/internal/models"
)

// finishedSession returns a completed session with steps A (2 sets) and
// B (1 set), all recorded. The second set of A is skipped.
func finishedSession(t *testing.T, st *Store) *Session {
	t.Helper()
	s, _ := st.Open("r1", "s-done", []models.RoutineItem{
		item("A", 0, n(2), f(10), f(20)),
		item("B", 1, n(1), f(5), nil),
	})
	require.True(t, st.CompleteCurrentSet(s.ID))
	require.True(t, st.SkipCurrentSet(s.ID))
	require.True(t, st.CompleteCurrentSet(s.ID))
	require.True(t, st.Finish(s.ID))
	return mustGet(t, st, s.ID)
}

// TestReconcileWriteOrder verifies one record followed by entries in
// exercise order, then set order.
func TestReconcileWriteOrder(t *testing.T) {
	st := newTestStore()
	s := finishedSession(t, st)
	w := &fakeWriter{}

	res, err := newTestReconciler(w).Reconcile(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, &Result{RecordID: "rec1", Entries: 3}, res)

	require.Len(t, w.records, 1)
	assert.Equal(t, models.RecordPayload{
		RoutineID: "r1",
		StartAt:   models.FormatTimestamp(s.StartedAt),
		EndAt:     "2025-01-01T10:00:00.000Z",
		Status:    "completed",
	}, w.records[0])

	type key struct {
		item models.ID
		set  int
	}
	var order []key
	for _, e := range w.entries {
		assert.Equal(t, models.ID("rec1"), e.RecordID)
		order = append(order, key{e.RoutineItemID, e.SetIndex})
	}
	assert.Equal(t, []key{{"A", 0}, {"A", 1}, {"B", 0}}, order)

	assert.Equal(t, 10.0, *w.entries[0].Reps)
	assert.Equal(t, 20.0, *w.entries[0].Weight)
	assert.True(t, w.entries[1].Skipped)
	assert.Nil(t, w.entries[1].Reps)
	assert.Nil(t, w.entries[1].Weight)
	assert.Equal(t, 5.0, *w.entries[2].Reps)
}

// TestReconcileEntryFailure fails the second entry write and expects only
// the first entry written and a ReconcileError wrapping the cause.
func TestReconcileEntryFailure(t *testing.T) {
	st := newTestStore()
	s := finishedSession(t, st)
	w := &fakeWriter{failOn: 3}
	r := newTestReconciler(w)

	_, err := r.Reconcile(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)
	assert.Contains(t, err.Error(), "could not save session")

	var rerr *ReconcileError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "s-done", rerr.SessionID)
	assert.Equal(t, models.ID("rec1"), rerr.RecordID)
	assert.Equal(t, 1, rerr.Written)
	assert.Equal(t, 3, rerr.Total)

	assert.Len(t, w.entries, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.CounterReconciles.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.CounterRecordItems))
}

// TestReconcileRecordFailure expects no entries when the record itself
// cannot be created.
func TestReconcileRecordFailure(t *testing.T) {
	st := newTestStore()
	s := finishedSession(t, st)
	w := &fakeWriter{failOn: 1}

	_, err := newTestReconciler(w).Reconcile(context.Background(), s)
	require.ErrorIs(t, err, errBackend)
	assert.Empty(t, w.records)
	assert.Empty(t, w.entries)
}

// TestReconcileRecordWithoutID rejects a backend response lacking an id.
func TestReconcileRecordWithoutID(t *testing.T) {
	st := newTestStore()
	s := finishedSession(t, st)
	w := &fakeWriter{noID: true}

	_, err := newTestReconciler(w).Reconcile(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
	assert.Empty(t, w.entries)
}

// TestReconcileCanceled stops between writes once the context is done.
func TestReconcileCanceled(t *testing.T) {
	st := newTestStore()
	s := finishedSession(t, st)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &fakeWriter{}
	_, err := newTestReconciler(w).Reconcile(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, w.records, 1)
	assert.Empty(t, w.entries)
}

// TestReconcileRetryDuplicatesEntries documents that a retry after a
// partial failure writes the earlier entries again.
func TestReconcileRetryDuplicatesEntries(t *testing.T) {
	st := newTestStore()
	s := finishedSession(t, st)
	w := &fakeWriter{failOn: 3}
	r := newTestReconciler(w)

	_, err := r.Reconcile(context.Background(), s)
	require.Error(t, err)
	_, err = r.Reconcile(context.Background(), s)
	require.NoError(t, err)

	assert.Len(t, w.records, 2)
	assert.Len(t, w.entries, 4)
}

// TestReconcileErrorMessage covers both message forms.
func TestReconcileErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	e := &ReconcileError{SessionID: "s1", Err: cause}
	assert.Equal(t, "could not save session s1: boom", e.Error())

	e = &ReconcileError{SessionID: "s1", RecordID: "9", Written: 2, Total: 5, Err: cause}
	assert.Equal(t, "could not save session s1 (record 9, 2 of 5 entries written): boom", e.Error())
	assert.Same(t, cause, errors.Unwrap(e))
}
