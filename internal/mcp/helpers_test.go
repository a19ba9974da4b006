package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
	"github.com/claude/eruna/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

// fakeBackend serves one routine "r1" (squat 2x10 @40, plank 1x60s) and
// records what is saved.
type fakeBackend struct {
	mu          sync.Mutex
	records     []models.RecordPayload
	entries     []models.RecordItemPayload
	failEntries bool
}

func (b *fakeBackend) LoadRoutineItems(_ context.Context, routineID models.ID) ([]models.RoutineItem, error) {
	if routineID != "r1" {
		return nil, fmt.Errorf("routine %s: %w", routineID, session.ErrUnknownRoutine)
	}
	return []models.RoutineItem{
		{ID: "i1", RoutineID: "r1", WorkoutID: "w1", Order: 1, Sets: intp(2), Reps: floatp(10), Weight: floatp(40),
			Workout: &models.Workout{ID: "w1", Name: "Squat"}},
		{ID: "i2", RoutineID: "r1", WorkoutID: "w2", Order: 2, Sets: intp(1), TimeSec: floatp(60),
			Workout: &models.Workout{ID: "w2", Name: "Plank"}},
	}, nil
}

func (b *fakeBackend) ListWorkoutsJoined(context.Context) ([]models.Workout, error) {
	return []models.Workout{{ID: "w1", Name: "Squat"}, {ID: "w2", Name: "Plank"}}, nil
}

func (b *fakeBackend) CreateRecord(_ context.Context, p models.RecordPayload) (*models.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, p)
	return &models.Record{ID: models.ID(fmt.Sprintf("rec%d", len(b.records)))}, nil
}

func (b *fakeBackend) CreateRecordItem(_ context.Context, p models.RecordItemPayload) (*models.RecordItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failEntries {
		return nil, fmt.Errorf("backend unavailable")
	}
	b.entries = append(b.entries, p)
	return &models.RecordItem{ID: "e"}, nil
}

func newTestService(t *testing.T, backend *fakeBackend) *session.Service {
	t.Helper()
	log := testLogger()
	m := metrics.NewTestManager()
	var mu sync.Mutex
	ids := 0
	store := session.NewStore(log, session.WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		ids++
		return fmt.Sprintf("s%d", ids)
	}))
	return session.NewService(store, storage.NewMemory(), backend, session.NewReconciler(backend, m, log), m, log)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// resultText returns the text of a single-content tool result.
func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return text.Text
}
