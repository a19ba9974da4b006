package models

// Routine is a named, ordered workout plan owned by the backend.
type Routine struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   ID     `json:"createdBy,omitempty"`
	IsPublic    bool   `json:"isPublic,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// RoutineItem is one exercise slot of a routine with its planned targets.
// Missing targets stay nil; Sets defaults to 1 when a session is built.
type RoutineItem struct {
	ID        ID       `json:"id"`
	RoutineID ID       `json:"routineId"`
	WorkoutID ID       `json:"workoutId"`
	Order     int      `json:"order"`
	Sets      *int     `json:"sets,omitempty"`
	Reps      *float64 `json:"reps,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`
	TimeSec   *float64 `json:"timeSec,omitempty"`
	RestSec   *float64 `json:"restSec,omitempty"`
	Note      string   `json:"note,omitempty"`
	Workout   *Workout `json:"workout,omitempty"`
}

// RoutinePayload creates or updates a routine.
type RoutinePayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"isPublic"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// RoutineItemPayload creates or updates a routine item.
type RoutineItemPayload struct {
	RoutineID ID       `json:"routineId"`
	WorkoutID ID       `json:"workoutId"`
	Order     int      `json:"order"`
	Sets      *int     `json:"sets,omitempty"`
	Reps      *float64 `json:"reps,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`
	TimeSec   *float64 `json:"timeSec,omitempty"`
	RestSec   *float64 `json:"restSec,omitempty"`
	Note      string   `json:"note,omitempty"`
}
