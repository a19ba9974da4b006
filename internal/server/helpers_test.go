package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
	"github.com/claude/eruna/internal/storage"
)

const testAPIKey = "test-key"

var errUnavailable = errors.New("backend unavailable")

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

// fakeBackend serves routines and accepts records the way the REST backend
// does. failEntries makes every record entry write fail.
type fakeBackend struct {
	mu              sync.Mutex
	items           map[models.ID][]models.RoutineItem
	workouts        []models.Workout
	records         []models.RecordPayload
	entries         []models.RecordItemPayload
	createdItems    []models.RoutineItemPayload
	updatedItems    []models.ID
	deletedItems    []models.ID
	deletedRoutines []models.ID
	failEntries     bool
	loadErr         error
	invalidations   int

	// recordStarted, when set, is signalled as CreateRecord begins; the
	// call then waits for recordRelease.
	recordStarted chan struct{}
	recordRelease chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		items: map[models.ID][]models.RoutineItem{
			"r1": {
				{ID: "i1", RoutineID: "r1", WorkoutID: "w1", Order: 1, Sets: intp(2), Reps: floatp(10), Weight: floatp(40)},
				{ID: "i2", RoutineID: "r1", WorkoutID: "w2", Order: 2, Sets: intp(1), TimeSec: floatp(60)},
			},
		},
		workouts: []models.Workout{{ID: "w1", Name: "Squat"}, {ID: "w2", Name: "Plank"}},
	}
}

func (b *fakeBackend) LoadRoutineItems(ctx context.Context, routineID models.ID) ([]models.RoutineItem, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	b.mu.Lock()
	_, ok := b.items[routineID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("routine %s: %w", routineID, session.ErrUnknownRoutine)
	}
	return b.ListRoutineItems(ctx, routineID)
}

func (b *fakeBackend) ListRoutineItems(_ context.Context, routineID models.ID) ([]models.RoutineItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, ok := b.items[routineID]
	if !ok {
		return nil, fmt.Errorf("routine %s: %w", routineID, errUnavailable)
	}
	return append([]models.RoutineItem(nil), items...), nil
}

func (b *fakeBackend) ListWorkoutsJoined(context.Context) ([]models.Workout, error) {
	return b.workouts, nil
}

func (b *fakeBackend) InvalidateLookups() {
	b.mu.Lock()
	b.invalidations++
	b.mu.Unlock()
}

func (b *fakeBackend) CreateRoutine(_ context.Context, p models.RoutinePayload) (*models.Routine, error) {
	return &models.Routine{ID: "new-routine", Name: p.Name, Description: p.Description}, nil
}

func (b *fakeBackend) CreateRoutineItem(_ context.Context, p models.RoutineItemPayload) (*models.RoutineItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createdItems = append(b.createdItems, p)
	return &models.RoutineItem{ID: models.ID(fmt.Sprintf("ci%d", len(b.createdItems))), RoutineID: p.RoutineID, WorkoutID: p.WorkoutID, Order: p.Order}, nil
}

func (b *fakeBackend) UpdateRoutineItem(_ context.Context, id models.ID, p models.RoutineItemPayload) (*models.RoutineItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updatedItems = append(b.updatedItems, id)
	return &models.RoutineItem{ID: id, Order: p.Order}, nil
}

func (b *fakeBackend) DeleteRoutineItem(_ context.Context, id models.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletedItems = append(b.deletedItems, id)
	return nil
}

func (b *fakeBackend) DeleteRoutine(_ context.Context, id models.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletedRoutines = append(b.deletedRoutines, id)
	return nil
}

func (b *fakeBackend) CreateRecord(_ context.Context, p models.RecordPayload) (*models.Record, error) {
	if b.recordStarted != nil {
		b.recordStarted <- struct{}{}
		<-b.recordRelease
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, p)
	return &models.Record{ID: models.ID(fmt.Sprintf("rec%d", len(b.records)))}, nil
}

func (b *fakeBackend) CreateRecordItem(_ context.Context, p models.RecordItemPayload) (*models.RecordItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failEntries {
		return nil, errUnavailable
	}
	b.entries = append(b.entries, p)
	return &models.RecordItem{ID: "e", RecordID: p.RecordID}, nil
}

type testEnv struct {
	srv     *Server
	backend *fakeBackend
	snaps   *storage.Memory
	metrics *metrics.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, reg := metrics.NewTestManagerAndRegistry()
	backend := newFakeBackend()
	snaps := storage.NewMemory()

	ids := 0
	store := session.NewStore(log, session.WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("s%d", ids)
	}))
	svc := session.NewService(store, snaps, backend, session.NewReconciler(backend, m, log), m, log)

	return &testEnv{
		srv:     New(svc, backend, m, reg, testAPIKey, log),
		backend: backend,
		snaps:   snaps,
		metrics: m,
	}
}

// do sends an authenticated request through the full router.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

// startSession opens a session for routine r1 and returns its id.
func (e *testEnv) startSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"routineId": "r1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	var s session.Session
	decodeBody(t, rec, &s)
	return s.ID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
}
