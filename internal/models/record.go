package models

// RecordStatusCompleted is the only status a finished session is saved with.
const RecordStatusCompleted = "completed"

// Record is the persisted summary of one finished session.
type Record struct {
	ID        ID     `json:"id"`
	RoutineID ID     `json:"routineId"`
	StartAt   string `json:"startAt"`
	EndAt     string `json:"endAt"`
	Status    string `json:"status"`
}

// RecordPayload is the body of POST /records.
type RecordPayload struct {
	RoutineID ID     `json:"routineId"`
	StartAt   string `json:"startAt"`
	EndAt     string `json:"endAt"`
	Status    string `json:"status"`
}

// RecordItem is one performed or skipped set belonging to a Record.
type RecordItem struct {
	ID            ID       `json:"id"`
	RecordID      ID       `json:"recordId"`
	RoutineItemID ID       `json:"routineItemId"`
	SetIndex      int      `json:"setIndex"`
	Reps          *float64 `json:"reps,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	TimeSec       *float64 `json:"timeSec,omitempty"`
	RestSec       *float64 `json:"restSec,omitempty"`
	Skipped       bool     `json:"skipped"`
}

// RecordItemPayload is the body of POST /recordItems.
type RecordItemPayload struct {
	RecordID      ID       `json:"recordId"`
	RoutineItemID ID       `json:"routineItemId"`
	SetIndex      int      `json:"setIndex"`
	Reps          *float64 `json:"reps,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	TimeSec       *float64 `json:"timeSec,omitempty"`
	RestSec       *float64 `json:"restSec,omitempty"`
	Skipped       bool     `json:"skipped"`
}
