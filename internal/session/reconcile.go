package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/models"
)

// RecordWriter creates the persisted form of a finished session.
type RecordWriter interface {
	CreateRecord(ctx context.Context, p models.RecordPayload) (*models.Record, error)
	CreateRecordItem(ctx context.Context, p models.RecordItemPayload) (*models.RecordItem, error)
}

// ErrNotCompleted is returned when reconciling a session that was not
// finished.
var ErrNotCompleted = errors.New("session is not completed")

// ReconcileError reports a failed save. Entries written before the failure
// stay in the backend; a retry writes them again.
type ReconcileError struct {
	SessionID string
	RecordID  models.ID
	Written   int
	Total     int
	Err       error
}

func (e *ReconcileError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("could not save session %s: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("could not save session %s (record %s, %d of %d entries written): %v",
		e.SessionID, e.RecordID, e.Written, e.Total, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// Result describes a saved session.
type Result struct {
	RecordID models.ID `json:"recordId"`
	Entries  int       `json:"entries"`
}

// Reconciler writes finished sessions to the backend: one record, then one
// entry per recorded set in exercise order and set order. Writes are issued
// one at a time.
type Reconciler struct {
	w       RecordWriter
	metrics *metrics.Manager
	log     *slog.Logger
	now     func() time.Time
}

func NewReconciler(w RecordWriter, m *metrics.Manager, log *slog.Logger) *Reconciler {
	return &Reconciler{w: w, metrics: m, log: log, now: time.Now}
}

// Reconcile saves s. It does not touch any store; the caller removes the
// session once this returns without error.
func (r *Reconciler) Reconcile(ctx context.Context, s *Session) (*Result, error) {
	start := time.Now()
	defer func() {
		r.metrics.HistReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	total := s.RecordedSets()
	fail := func(recordID models.ID, written int, err error) error {
		r.metrics.CounterReconciles.WithLabelValues("failed").Inc()
		r.log.Error("session save failed",
			"session_id", s.ID, "record_id", recordID, "written", written, "total", total, "error", err)
		return &ReconcileError{SessionID: s.ID, RecordID: recordID, Written: written, Total: total, Err: err}
	}

	rec, err := r.w.CreateRecord(ctx, models.RecordPayload{
		RoutineID: s.RoutineID,
		StartAt:   models.FormatTimestamp(s.StartedAt),
		EndAt:     models.FormatTimestamp(r.now()),
		Status:    models.RecordStatusCompleted,
	})
	if err != nil {
		return nil, fail("", 0, fmt.Errorf("creating record: %w", err))
	}
	if rec == nil || rec.ID == "" {
		return nil, fail("", 0, errors.New("creating record: backend returned no id"))
	}

	written := 0
	for _, step := range s.Steps {
		for _, set := range step.Performed {
			if err := ctx.Err(); err != nil {
				return nil, fail(rec.ID, written, err)
			}
			_, err := r.w.CreateRecordItem(ctx, models.RecordItemPayload{
				RecordID:      rec.ID,
				RoutineItemID: step.RoutineItemID,
				SetIndex:      set.SetIndex,
				Reps:          set.Reps,
				Weight:        set.Weight,
				TimeSec:       set.TimeSec,
				RestSec:       set.RestSec,
				Skipped:       set.Skipped,
			})
			if err != nil {
				return nil, fail(rec.ID, written, fmt.Errorf("creating entry for set %d of %s: %w",
					set.SetIndex, step.RoutineItemID, err))
			}
			written++
			r.metrics.CounterRecordItems.Inc()
		}
	}

	r.metrics.CounterReconciles.WithLabelValues("saved").Inc()
	r.log.Info("session saved", "session_id", s.ID, "record_id", rec.ID, "entries", written)
	return &Result{RecordID: rec.ID, Entries: written}, nil
}
