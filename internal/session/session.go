// Package session runs guided workout sessions: it builds a session from a
// routine, applies per-set actions to it, and writes the finished session
// back to the backend as a record with one entry per set.
package session

import (
	"time"

	"github.com/claude/eruna/internal/models"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Workload holds the optional per-set measurements. Pointees are never
// mutated in place, so copies may share them.
type Workload struct {
	Reps    *float64 `json:"reps,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
	TimeSec *float64 `json:"timeSec,omitempty"`
	RestSec *float64 `json:"restSec,omitempty"`
}

// withFallback fills each unset field of w from fb.
func (w Workload) withFallback(fb Workload) Workload {
	if w.Reps == nil {
		w.Reps = fb.Reps
	}
	if w.Weight == nil {
		w.Weight = fb.Weight
	}
	if w.TimeSec == nil {
		w.TimeSec = fb.TimeSec
	}
	if w.RestSec == nil {
		w.RestSec = fb.RestSec
	}
	return w
}

// Target is the planned workload for one exercise.
type Target struct {
	Sets int `json:"sets"`
	Workload
}

// SetCount returns the planned number of sets, never less than one.
func (t Target) SetCount() int {
	if t.Sets < 1 {
		return 1
	}
	return t.Sets
}

// SetRecord is the final outcome of one set. Skipped sets carry no workload.
type SetRecord struct {
	SetIndex int `json:"setIndex"`
	Workload
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Skipped   bool       `json:"skipped"`
}

// Draft is the editable value of a set that has not been recorded yet.
type Draft struct {
	SetIndex int `json:"setIndex"`
	Workload
}

// Step is the session state of one exercise.
type Step struct {
	RoutineItemID models.ID   `json:"routineItemId"`
	WorkoutID     models.ID   `json:"workoutId"`
	Name          string      `json:"name,omitempty"`
	Target        Target      `json:"target"`
	CurrentSet    int         `json:"currentSet"`
	Performed     []SetRecord `json:"performed"`
	Drafts        []Draft     `json:"drafts"`
}

// Done reports whether every planned set has been recorded.
func (st *Step) Done() bool {
	return len(st.Performed) >= st.Target.SetCount()
}

func (st *Step) draft(setIndex int) Draft {
	if setIndex >= 0 && setIndex < len(st.Drafts) {
		return st.Drafts[setIndex]
	}
	return Draft{SetIndex: setIndex}
}

// Session is one run of a routine.
type Session struct {
	ID        string     `json:"id"`
	RoutineID models.ID  `json:"routineId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Status    Status     `json:"status"`
	StepIndex int        `json:"stepIndex"`
	Steps     []Step     `json:"steps"`
}

// Current returns the step being performed, or nil for a session without
// steps.
func (s *Session) Current() *Step {
	if s.StepIndex < 0 || s.StepIndex >= len(s.Steps) {
		return nil
	}
	return &s.Steps[s.StepIndex]
}

// advance moves to the next step, saturating at the last one. It reports
// whether the index changed.
func (s *Session) advance() bool {
	next := min(s.StepIndex+1, len(s.Steps)-1)
	if next <= s.StepIndex {
		return false
	}
	s.StepIndex = next
	return true
}

// lastSetEnd is the end of the most recently recorded set, or the session
// start when nothing has been recorded.
func (s *Session) lastSetEnd() time.Time {
	var last time.Time
	for i := range s.Steps {
		for _, rec := range s.Steps[i].Performed {
			if rec.EndedAt != nil && rec.EndedAt.After(last) {
				last = *rec.EndedAt
			}
		}
	}
	if last.IsZero() {
		return s.StartedAt
	}
	return last
}

// RecordedSets counts performed and skipped sets across all steps.
func (s *Session) RecordedSets() int {
	n := 0
	for i := range s.Steps {
		n += len(s.Steps[i].Performed)
	}
	return n
}

// Clone returns a copy that shares no slices with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		st.Performed = append([]SetRecord(nil), st.Performed...)
		st.Drafts = append([]Draft(nil), st.Drafts...)
		c.Steps[i] = st
	}
	return &c
}

// Progress summarizes where a session stands.
type Progress struct {
	Exercise      int    `json:"exercise"`
	Exercises     int    `json:"exercises"`
	Name          string `json:"name,omitempty"`
	SetsDone      int    `json:"setsDone"`
	SetsPlanned   int    `json:"setsPlanned"`
	TotalRecorded int    `json:"totalRecorded"`
	TotalPlanned  int    `json:"totalPlanned"`
}

// Progress reports the 1-based exercise position and set counts of the
// current step. A session without steps reports zeros.
func (s *Session) Progress() Progress {
	p := Progress{Exercises: len(s.Steps), TotalRecorded: s.RecordedSets()}
	for i := range s.Steps {
		p.TotalPlanned += s.Steps[i].Target.SetCount()
	}
	if cur := s.Current(); cur != nil {
		p.Exercise = s.StepIndex + 1
		p.Name = cur.Name
		p.SetsDone = len(cur.Performed)
		p.SetsPlanned = cur.Target.SetCount()
	}
	return p
}
