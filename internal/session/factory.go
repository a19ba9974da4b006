package session

import (
	"sort"
	"time"

	"github.com/claude/eruna/internal/models"
)

// SortItems orders routine items by their configured order. Items with the
// same order keep the order they were fetched in.
func SortItems(items []models.RoutineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Order < items[j].Order
	})
}

// New builds a fresh active session. items must already be sorted (see
// SortItems). An empty item list yields a session without steps.
func New(routineID models.ID, id string, items []models.RoutineItem, now time.Time) *Session {
	s := &Session{
		ID:        id,
		RoutineID: routineID,
		StartedAt: now,
		Status:    StatusActive,
		Steps:     make([]Step, 0, len(items)),
	}
	for _, it := range items {
		s.Steps = append(s.Steps, newStep(it))
	}
	return s
}

func newStep(it models.RoutineItem) Step {
	target := Target{
		Sets: 1,
		Workload: Workload{
			Reps:    it.Reps,
			Weight:  it.Weight,
			TimeSec: it.TimeSec,
			RestSec: it.RestSec,
		},
	}
	if it.Sets != nil && *it.Sets > 0 {
		target.Sets = *it.Sets
	}

	var name string
	if it.Workout != nil {
		name = it.Workout.Name
	}

	drafts := make([]Draft, target.Sets)
	for i := range drafts {
		drafts[i] = Draft{SetIndex: i, Workload: target.Workload}
	}
	return Step{
		RoutineItemID: it.ID,
		WorkoutID:     it.WorkoutID,
		Name:          name,
		Target:        target,
		Performed:     []SetRecord{},
		Drafts:        drafts,
	}
}
