// Package builder assembles routines from the workout catalog before they
// exist on the backend, and applies edits to saved ones.
package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/claude/eruna/internal/models"
)

// Mode is how a workout in a draft is measured.
type Mode string

const (
	ModeStrength Mode = "strength" // sets x reps x weight
	ModeRepOnly  Mode = "repOnly"  // sets x reps
	ModeDuration Mode = "duration" // sets x time
	ModeUnset    Mode = "unset"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeStrength, ModeRepOnly, ModeDuration, ModeUnset:
		return true
	}
	return false
}

var (
	ErrEmptyName = errors.New("routine name is required")
	ErrNoItems   = errors.New("routine has no workouts")
)

// Config is the planned workload of a draft item.
type Config struct {
	Sets    *int     `json:"sets,omitempty"`
	Reps    *float64 `json:"reps,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
	RestSec *float64 `json:"restSec,omitempty"`
	TimeSec *float64 `json:"timeSec,omitempty"`
}

// DefaultConfig is given to workouts when they are added to a draft.
func DefaultConfig() Config {
	sets, reps, rest := 3, 10.0, 60.0
	return Config{Sets: &sets, Reps: &reps, RestSec: &rest}
}

// Item is a selected workout. TempID identifies it until the routine is
// saved.
type Item struct {
	TempID    string    `json:"tempId"`
	WorkoutID models.ID `json:"workoutId"`
	Name      string    `json:"name"`
	Mode      Mode      `json:"mode"`
	Config    Config    `json:"config"`
	Notes     string    `json:"notes,omitempty"`
}

// RoutineWriter creates routines and their items.
type RoutineWriter interface {
	CreateRoutine(ctx context.Context, p models.RoutinePayload) (*models.Routine, error)
	CreateRoutineItem(ctx context.Context, p models.RoutineItemPayload) (*models.RoutineItem, error)
}

// Draft is a routine being assembled. It is not safe for concurrent use.
type Draft struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Items       []Item `json:"items"`

	newID func() string
}

// New returns an empty draft. newID generates item temp ids; nil uses
// random ones.
func New(newID func() string) *Draft {
	if newID == nil {
		newID = func() string { return "temp_" + uuid.NewString() }
	}
	return &Draft{Items: []Item{}, newID: newID}
}

func (d *Draft) SetName(name string) { d.Name = name }

// Contains reports whether the workout is selected.
func (d *Draft) Contains(workoutID models.ID) bool {
	return d.find(workoutID) >= 0
}

// Toggle adds the workout with the default config, or removes it when it is
// already selected. It reports whether the workout is now selected.
func (d *Draft) Toggle(workoutID models.ID, name string) bool {
	if i := d.find(workoutID); i >= 0 {
		d.Items = append(d.Items[:i], d.Items[i+1:]...)
		return false
	}
	d.Items = append(d.Items, Item{
		TempID:    d.newID(),
		WorkoutID: workoutID,
		Name:      name,
		Mode:      ModeUnset,
		Config:    DefaultConfig(),
	})
	return true
}

// UpdateItemConfig replaces the config of one item.
func (d *Draft) UpdateItemConfig(tempID string, cfg Config) bool {
	for i := range d.Items {
		if d.Items[i].TempID == tempID {
			d.Items[i].Config = cfg
			return true
		}
	}
	return false
}

// SetItemMode changes how one item is measured.
func (d *Draft) SetItemMode(tempID string, mode Mode) bool {
	for i := range d.Items {
		if d.Items[i].TempID == tempID {
			d.Items[i].Mode = mode
			return true
		}
	}
	return false
}

// Clear resets the draft.
func (d *Draft) Clear() {
	d.Name = ""
	d.Description = ""
	d.Items = []Item{}
}

// Save creates the routine, then its items one at a time in draft order.
// A failure part way leaves the routine with the items created so far.
func (d *Draft) Save(ctx context.Context, w RoutineWriter) (*models.Routine, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(d.Items) == 0 {
		return nil, ErrNoItems
	}

	routine, err := w.CreateRoutine(ctx, models.RoutinePayload{Name: name, Description: d.Description})
	if err != nil {
		return nil, fmt.Errorf("creating routine: %w", err)
	}
	for i, it := range d.Items {
		p := models.RoutineItemPayload{
			RoutineID: routine.ID,
			WorkoutID: it.WorkoutID,
			Order:     i + 1,
			Sets:      it.Config.Sets,
			Reps:      it.Config.Reps,
			Weight:    it.Config.Weight,
			TimeSec:   it.Config.TimeSec,
			RestSec:   it.Config.RestSec,
			Note:      it.Notes,
		}
		if _, err := w.CreateRoutineItem(ctx, p); err != nil {
			return routine, fmt.Errorf("adding %s to routine %s: %w", it.WorkoutID, routine.ID, err)
		}
	}
	return routine, nil
}

func (d *Draft) find(workoutID models.ID) int {
	for i := range d.Items {
		if d.Items[i].WorkoutID == workoutID {
			return i
		}
	}
	return -1
}
