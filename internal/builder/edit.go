package builder

import (
	"context"
	"fmt"

	"github.com/claude/eruna/internal/models"
)

// RoutineEditor changes saved routines.
type RoutineEditor interface {
	RoutineWriter
	ListRoutineItems(ctx context.Context, routineID models.ID) ([]models.RoutineItem, error)
	UpdateRoutineItem(ctx context.Context, id models.ID, p models.RoutineItemPayload) (*models.RoutineItem, error)
	DeleteRoutineItem(ctx context.Context, id models.ID) error
	DeleteRoutine(ctx context.Context, id models.ID) error
}

// Diff compares the items of a saved routine with a new workout selection.
// It returns the selected workouts that have no item yet, in selection
// order, and the items whose workout is no longer selected.
func Diff(existing []models.RoutineItem, selected []models.ID) (add []models.ID, remove []models.RoutineItem) {
	have := make(map[models.ID]bool, len(existing))
	for _, it := range existing {
		have[it.WorkoutID] = true
	}
	want := make(map[models.ID]bool, len(selected))
	for _, id := range selected {
		if !want[id] && !have[id] {
			add = append(add, id)
		}
		want[id] = true
	}
	for _, it := range existing {
		if !want[it.WorkoutID] {
			remove = append(remove, it)
		}
	}
	return add, remove
}

// SyncResult counts what Sync changed.
type SyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Sync makes the routine contain exactly the selected workouts. New items
// get the default config and are appended after the existing ones.
func Sync(ctx context.Context, ed RoutineEditor, routineID models.ID, selected []models.ID) (SyncResult, error) {
	var res SyncResult
	existing, err := ed.ListRoutineItems(ctx, routineID)
	if err != nil {
		return res, fmt.Errorf("listing items of routine %s: %w", routineID, err)
	}
	add, remove := Diff(existing, selected)

	for _, it := range remove {
		if err := ed.DeleteRoutineItem(ctx, it.ID); err != nil {
			return res, fmt.Errorf("removing item %s: %w", it.ID, err)
		}
		res.Removed++
	}

	next := 0
	for _, it := range existing {
		next = max(next, it.Order)
	}
	cfg := DefaultConfig()
	for _, workoutID := range add {
		next++
		_, err := ed.CreateRoutineItem(ctx, models.RoutineItemPayload{
			RoutineID: routineID,
			WorkoutID: workoutID,
			Order:     next,
			Sets:      cfg.Sets,
			Reps:      cfg.Reps,
			RestSec:   cfg.RestSec,
		})
		if err != nil {
			return res, fmt.Errorf("adding %s to routine %s: %w", workoutID, routineID, err)
		}
		res.Added++
	}
	return res, nil
}

// Reorder saves an edited item list: each item's order becomes its 1-based
// position, and only items whose order or workload changed are written.
// It returns the number of items updated.
func Reorder(ctx context.Context, ed RoutineEditor, original, edited []models.RoutineItem) (int, error) {
	orig := make(map[models.ID]models.RoutineItem, len(original))
	for _, it := range original {
		orig[it.ID] = it
	}

	updated := 0
	for i, it := range edited {
		order := i + 1
		prev, known := orig[it.ID]
		if known && prev.Order == order && sameWorkload(prev, it) {
			continue
		}
		_, err := ed.UpdateRoutineItem(ctx, it.ID, models.RoutineItemPayload{
			RoutineID: it.RoutineID,
			WorkoutID: it.WorkoutID,
			Order:     order,
			Sets:      it.Sets,
			Reps:      it.Reps,
			Weight:    it.Weight,
			TimeSec:   it.TimeSec,
			RestSec:   it.RestSec,
			Note:      it.Note,
		})
		if err != nil {
			return updated, fmt.Errorf("updating item %s: %w", it.ID, err)
		}
		updated++
	}
	return updated, nil
}

// DeleteRoutine removes a routine after deleting its items one at a time.
func DeleteRoutine(ctx context.Context, ed RoutineEditor, routineID models.ID) error {
	items, err := ed.ListRoutineItems(ctx, routineID)
	if err != nil {
		return fmt.Errorf("listing items of routine %s: %w", routineID, err)
	}
	for _, it := range items {
		if err := ed.DeleteRoutineItem(ctx, it.ID); err != nil {
			return fmt.Errorf("removing item %s: %w", it.ID, err)
		}
	}
	if err := ed.DeleteRoutine(ctx, routineID); err != nil {
		return fmt.Errorf("deleting routine %s: %w", routineID, err)
	}
	return nil
}

func sameWorkload(a, b models.RoutineItem) bool {
	return eqInt(a.Sets, b.Sets) &&
		eqFloat(a.Reps, b.Reps) &&
		eqFloat(a.Weight, b.Weight) &&
		eqFloat(a.TimeSec, b.TimeSec) &&
		eqFloat(a.RestSec, b.RestSec)
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
