package server

import (
	"net/http"
	"testing"

	"github.com/claude/eruna/internal/builder"
	"github.com/claude/eruna/internal/models"
)

// getDraft fetches the caller's draft.
func (e *testEnv) getDraft(t *testing.T) builder.Draft {
	t.Helper()
	var d builder.Draft
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/draft", nil), &d)
	return d
}

// TestDraftAssembleAndSave verifies a routine can be built up item by item
// and saved, after which the draft is empty again.
func TestDraftAssembleAndSave(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/draft", map[string]string{"name": "Push", "description": "upper"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body %s", rec.Code, rec.Body)
	}
	e.do(t, http.MethodPost, "/api/v1/draft/workouts", map[string]any{"workoutId": 7, "name": "Bench"})
	e.do(t, http.MethodPost, "/api/v1/draft/workouts", map[string]any{"workoutId": "w2", "name": "Plank"})
	rec = e.do(t, http.MethodPost, "/api/v1/draft/workouts", map[string]any{"workoutId": 7, "name": "Bench"})

	var d builder.Draft
	decodeBody(t, rec, &d)
	if len(d.Items) != 2 {
		t.Fatalf("items = %d, want 2 after adding one workout twice", len(d.Items))
	}
	if d.Name != "Push" || d.Description != "upper" {
		t.Errorf("draft = %+v", d)
	}
	plank := d.Items[1].TempID

	rec = e.do(t, http.MethodPatch, "/api/v1/draft/items/"+plank, map[string]any{
		"mode":   "duration",
		"config": map[string]any{"sets": 2, "timeSec": 45},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
	}
	var updated builder.Draft
	decodeBody(t, rec, &updated)
	if it := updated.Items[1]; it.Mode != builder.ModeDuration || *it.Config.TimeSec != 45 || it.Config.Reps != nil {
		t.Errorf("updated item = %+v", it)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/draft/save", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body)
	}
	var routine models.Routine
	decodeBody(t, rec, &routine)
	if routine.Name != "Push" {
		t.Errorf("routine = %+v", routine)
	}
	got := e.backend.createdItems
	if len(got) != 2 || got[0].WorkoutID != "7" || got[1].Order != 2 || *got[1].TimeSec != 45 {
		t.Errorf("created items = %+v", got)
	}

	if d := e.getDraft(t); d.Name != "" || len(d.Items) != 0 {
		t.Errorf("draft after save = %+v, want empty", d)
	}
}

// TestDraftRemoveAndClear verifies removing a workout and discarding the
// whole draft.
func TestDraftRemoveAndClear(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/draft/workouts", map[string]any{"workoutId": "w1", "name": "Row"})
	e.do(t, http.MethodPost, "/api/v1/draft/workouts", map[string]any{"workoutId": "w2", "name": "Plank"})

	rec := e.do(t, http.MethodDelete, "/api/v1/draft/workouts/w1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rec.Code)
	}
	var d builder.Draft
	decodeBody(t, rec, &d)
	if len(d.Items) != 1 || d.Items[0].WorkoutID != "w2" {
		t.Errorf("items = %+v", d.Items)
	}
	if rec := e.do(t, http.MethodDelete, "/api/v1/draft/workouts/w1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}

	if rec := e.do(t, http.MethodDelete, "/api/v1/draft", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if d := e.getDraft(t); len(d.Items) != 0 {
		t.Errorf("items after clear = %+v", d.Items)
	}
}

// TestDraftErrors verifies bad input is rejected and an unsaveable draft is
// kept.
func TestDraftErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing workout id", http.MethodPost, "/api/v1/draft/workouts", map[string]any{"name": "Row"}, http.StatusBadRequest},
		{"unknown item", http.MethodPatch, "/api/v1/draft/items/nope", map[string]any{"mode": "strength"}, http.StatusNotFound},
		{"empty update", http.MethodPatch, "/api/v1/draft/items/nope", map[string]any{}, http.StatusBadRequest},
		{"unknown mode", http.MethodPatch, "/api/v1/draft/items/nope", map[string]any{"mode": "yoga"}, http.StatusBadRequest},
		{"save without name", http.MethodPost, "/api/v1/draft/save", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := e.do(t, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	e.do(t, http.MethodPut, "/api/v1/draft", map[string]string{"name": "Legs"})
	if rec := e.do(t, http.MethodPost, "/api/v1/draft/save", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("save without items status = %d, want 400", rec.Code)
	}
	if d := e.getDraft(t); d.Name != "Legs" {
		t.Errorf("draft name = %q, want it kept after a failed save", d.Name)
	}
	if len(e.backend.createdItems) != 0 {
		t.Errorf("created items = %+v", e.backend.createdItems)
	}
}

// TestDraftPerUser verifies each tailnet user has a separate draft.
func TestDraftPerUser(t *testing.T) {
	e := newTestEnv(t)

	e.srv.SetTailscale(fakeWhoIs{login: "alice@example.com"})
	e.do(t, http.MethodPost, "/api/v1/draft/workouts", map[string]any{"workoutId": "w1", "name": "Row"})

	e.srv.SetTailscale(fakeWhoIs{login: "bob@example.com"})
	if d := e.getDraft(t); len(d.Items) != 0 {
		t.Errorf("bob sees %d items, want 0", len(d.Items))
	}

	e.srv.SetTailscale(fakeWhoIs{login: "alice@example.com"})
	if d := e.getDraft(t); len(d.Items) != 1 {
		t.Errorf("alice sees %d items, want 1", len(d.Items))
	}
}

// TestRefreshWorkouts verifies the catalog cache can be dropped on demand.
func TestRefreshWorkouts(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, http.MethodPost, "/api/v1/workouts/refresh", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if e.backend.invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", e.backend.invalidations)
	}
}
