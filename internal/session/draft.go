package session

import (
	"encoding/json"
	"fmt"
)

// Field is one entry of a DraftPatch. The zero Field leaves the draft value
// alone; Value sets it; Null clears it so the target is used on completion.
type Field struct {
	set   bool
	value *float64
}

// Value returns a Field that sets the draft value to v.
func Value(v float64) Field {
	return Field{set: true, value: &v}
}

// Null returns a Field that clears the draft value.
func Null() Field {
	return Field{set: true}
}

// IsSet reports whether the field changes the draft.
func (f Field) IsSet() bool { return f.set }

// UnmarshalJSON maps null to Null and a number to Value. Keys missing from
// the JSON object leave the Field at its zero value.
func (f *Field) UnmarshalJSON(data []byte) error {
	f.set = true
	if string(data) == "null" {
		f.value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("draft value must be a number or null: %w", err)
	}
	f.value = &v
	return nil
}

func (f Field) apply(dst **float64) {
	if f.set {
		*dst = f.value
	}
}

// DraftPatch is a partial update of a draft.
type DraftPatch struct {
	Reps    Field `json:"reps"`
	Weight  Field `json:"weight"`
	TimeSec Field `json:"timeSec"`
	RestSec Field `json:"restSec"`
}

func (p DraftPatch) apply(w *Workload) {
	p.Reps.apply(&w.Reps)
	p.Weight.apply(&w.Weight)
	p.TimeSec.apply(&w.TimeSec)
	p.RestSec.apply(&w.RestSec)
}

// MarshalJSON writes only the fields that change the draft, cleared ones
// as null.
func (p DraftPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, 4)
	for key, f := range map[string]Field{
		"reps":    p.Reps,
		"weight":  p.Weight,
		"timeSec": p.TimeSec,
		"restSec": p.RestSec,
	} {
		if f.set {
			out[key] = f.value
		}
	}
	return json.Marshal(out)
}
