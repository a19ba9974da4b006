package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/claude/eruna/internal/builder"
	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
)

var (
	_ session.RecordWriter  = (*Client)(nil)
	_ session.RoutineLoader = (*Client)(nil)
	_ builder.RoutineEditor = (*Client)(nil)
)

func entityPath(resource string, id models.ID) string {
	return "/" + resource + "/" + url.PathEscape(id.String())
}

// ListWorkoutCategories returns the category lookup, cached.
func (c *Client) ListWorkoutCategories(ctx context.Context) ([]models.WorkoutCategory, error) {
	var out []models.WorkoutCategory
	if err := c.cachedFetch(ctx, "/workoutCategories", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListWorkoutTypes returns the type lookup, cached.
func (c *Client) ListWorkoutTypes(ctx context.Context) ([]models.WorkoutType, error) {
	var out []models.WorkoutType
	if err := c.cachedFetch(ctx, "/workoutTypes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListWorkoutTargets returns the target lookup, cached.
func (c *Client) ListWorkoutTargets(ctx context.Context) ([]models.WorkoutTarget, error) {
	var out []models.WorkoutTarget
	if err := c.cachedFetch(ctx, "/workoutTargets", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListWorkouts returns the workout catalog, cached.
func (c *Client) ListWorkouts(ctx context.Context) ([]models.Workout, error) {
	var out []models.Workout
	if err := c.cachedFetch(ctx, "/workouts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListWorkoutsJoined returns the catalog with category, type and target
// attached to each workout.
func (c *Client) ListWorkoutsJoined(ctx context.Context) ([]models.Workout, error) {
	workouts, err := c.ListWorkouts(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := c.ListWorkoutCategories(ctx)
	if err != nil {
		return nil, err
	}
	types, err := c.ListWorkoutTypes(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := c.ListWorkoutTargets(ctx)
	if err != nil {
		return nil, err
	}

	catByID := index(categories, func(v models.WorkoutCategory) models.ID { return v.ID })
	typeByID := index(types, func(v models.WorkoutType) models.ID { return v.ID })
	targetByID := index(targets, func(v models.WorkoutTarget) models.ID { return v.ID })
	for i := range workouts {
		w := &workouts[i]
		if v, ok := catByID[w.CategoryID]; ok {
			w.Category = &v
		}
		if v, ok := typeByID[w.TypeID]; ok {
			w.Type = &v
		}
		if v, ok := targetByID[w.TargetID]; ok {
			w.Target = &v
		}
	}
	return workouts, nil
}

// GetRoutine fetches one routine.
func (c *Client) GetRoutine(ctx context.Context, id models.ID) (*models.Routine, error) {
	var out models.Routine
	if err := c.Fetch(ctx, entityPath("routines", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRoutineItems fetches the items of one routine. The backend filter is
// applied again locally since ids may come back as numbers or strings.
func (c *Client) ListRoutineItems(ctx context.Context, routineID models.ID) ([]models.RoutineItem, error) {
	var all []models.RoutineItem
	path := withQuery("/routineItems", url.Values{"routineId": {routineID.String()}})
	if err := c.Fetch(ctx, path, &all); err != nil {
		return nil, err
	}
	items := all[:0]
	for _, it := range all {
		if it.RoutineID == routineID {
			items = append(items, it)
		}
	}
	return items, nil
}

// LoadRoutineItems returns the items of a routine joined with their workout
// and workout type, sorted by order. A routine the backend does not know
// yields an error wrapping session.ErrUnknownRoutine.
func (c *Client) LoadRoutineItems(ctx context.Context, routineID models.ID) ([]models.RoutineItem, error) {
	if _, err := c.GetRoutine(ctx, routineID); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, fmt.Errorf("routine %s: %w", routineID, session.ErrUnknownRoutine)
		}
		return nil, fmt.Errorf("loading routine: %w", err)
	}
	items, err := c.ListRoutineItems(ctx, routineID)
	if err != nil {
		return nil, fmt.Errorf("loading routine items: %w", err)
	}
	workouts, err := c.ListWorkouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading workouts: %w", err)
	}
	types, err := c.ListWorkoutTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading workout types: %w", err)
	}

	workoutByID := index(workouts, func(v models.Workout) models.ID { return v.ID })
	typeByID := index(types, func(v models.WorkoutType) models.ID { return v.ID })
	for i := range items {
		w, ok := workoutByID[items[i].WorkoutID]
		if !ok {
			continue
		}
		if t, ok := typeByID[w.TypeID]; ok {
			w.Type = &t
		}
		items[i].Workout = &w
	}
	session.SortItems(items)
	return items, nil
}

// CreateRoutine creates a routine.
func (c *Client) CreateRoutine(ctx context.Context, p models.RoutinePayload) (*models.Routine, error) {
	var out models.Routine
	if err := c.Create(ctx, "/routines", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRoutine deletes a routine.
func (c *Client) DeleteRoutine(ctx context.Context, id models.ID) error {
	return c.Delete(ctx, entityPath("routines", id))
}

// CreateRoutineItem adds an item to a routine.
func (c *Client) CreateRoutineItem(ctx context.Context, p models.RoutineItemPayload) (*models.RoutineItem, error) {
	var out models.RoutineItem
	if err := c.Create(ctx, "/routineItems", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRoutineItem replaces an item's configuration.
func (c *Client) UpdateRoutineItem(ctx context.Context, id models.ID, p models.RoutineItemPayload) (*models.RoutineItem, error) {
	var out models.RoutineItem
	if err := c.Update(ctx, entityPath("routineItems", id), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRoutineItem removes an item from its routine.
func (c *Client) DeleteRoutineItem(ctx context.Context, id models.ID) error {
	return c.Delete(ctx, entityPath("routineItems", id))
}

// CreateRecord creates the record of a finished session.
func (c *Client) CreateRecord(ctx context.Context, p models.RecordPayload) (*models.Record, error) {
	var out models.Record
	if err := c.Create(ctx, "/records", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRecordItem creates one set entry of a record.
func (c *Client) CreateRecordItem(ctx context.Context, p models.RecordItemPayload) (*models.RecordItem, error) {
	var out models.RecordItem
	if err := c.Create(ctx, "/recordItems", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func index[T any](vals []T, key func(T) models.ID) map[models.ID]T {
	m := make(map[models.ID]T, len(vals))
	for _, v := range vals {
		m[key(v)] = v
	}
	return m
}
