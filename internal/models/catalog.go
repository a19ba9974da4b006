package models

import (
	"encoding/json"
	"fmt"
)

// WorkoutCategory groups workouts by body region ("upper body", "core", ...).
type WorkoutCategory struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order,omitempty"`
}

// WorkoutType describes how a workout is measured.
type WorkoutType struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	UnitPrimary   string `json:"unit_primary,omitempty"`
	UnitSecondary string `json:"unit_secondary,omitempty"`
	Description   string `json:"description,omitempty"`
}

// WorkoutTarget is the muscle group a workout trains.
type WorkoutTarget struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Workout is a catalog entry. The nested Category, Type and Target are only
// populated by joined lookups.
type Workout struct {
	ID          ID               `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	CategoryID  ID               `json:"workoutCategoryId,omitempty"`
	TypeID      ID               `json:"workoutTypeId,omitempty"`
	TargetID    ID               `json:"workoutTargetId,omitempty"`
	Category    *WorkoutCategory `json:"category,omitempty"`
	Type        *WorkoutType     `json:"workoutType,omitempty"`
	Target      *WorkoutTarget   `json:"target,omitempty"`
}

// UnmarshalJSON accepts both the camelCase foreign keys and the older
// snake_case ones (category_id, type_id, target_id), as well as the nested
// objects under either naming.
func (w *Workout) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                ID               `json:"id"`
		Name              string           `json:"name"`
		Description       string           `json:"description"`
		WorkoutCategoryID ID               `json:"workoutCategoryId"`
		CategoryID        ID               `json:"category_id"`
		WorkoutTypeID     ID               `json:"workoutTypeId"`
		TypeID            ID               `json:"type_id"`
		WorkoutTargetID   ID               `json:"workoutTargetId"`
		TargetID          ID               `json:"target_id"`
		Category          *WorkoutCategory `json:"category"`
		WorkoutCategory   *WorkoutCategory `json:"workoutCategory"`
		Type              *WorkoutType     `json:"type"`
		WorkoutType       *WorkoutType     `json:"workoutType"`
		Target            *WorkoutTarget   `json:"target"`
		WorkoutTarget     *WorkoutTarget   `json:"workoutTarget"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding workout: %w", err)
	}
	*w = Workout{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		CategoryID:  firstID(raw.WorkoutCategoryID, raw.CategoryID),
		TypeID:      firstID(raw.WorkoutTypeID, raw.TypeID),
		TargetID:    firstID(raw.WorkoutTargetID, raw.TargetID),
		Category:    firstNonNil(raw.Category, raw.WorkoutCategory),
		Type:        firstNonNil(raw.WorkoutType, raw.Type),
		Target:      firstNonNil(raw.Target, raw.WorkoutTarget),
	}
	return nil
}

func firstID(ids ...ID) ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstNonNil[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
