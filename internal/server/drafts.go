package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/claude/eruna/internal/builder"
	"github.com/claude/eruna/internal/models"
)

// draftBook keeps one routine draft per user while it is being assembled.
// Drafts live only in memory.
type draftBook struct {
	mu     sync.Mutex
	drafts map[string]*lockedDraft
}

type lockedDraft struct {
	mu sync.Mutex
	d  *builder.Draft
}

func newDraftBook() *draftBook {
	return &draftBook{drafts: make(map[string]*lockedDraft)}
}

// get returns the draft of login, creating an empty one on first use.
func (b *draftBook) get(login string) *lockedDraft {
	b.mu.Lock()
	defer b.mu.Unlock()
	ld, ok := b.drafts[login]
	if !ok {
		ld = &lockedDraft{d: builder.New(nil)}
		b.drafts[login] = ld
	}
	return ld
}

// withDraft runs fn on the caller's draft under its lock.
func (s *Server) withDraft(r *http.Request, fn func(d *builder.Draft)) {
	ld := s.drafts.get(userInfoFromContext(r).Login)
	ld.mu.Lock()
	defer ld.mu.Unlock()
	fn(ld.d)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	s.withDraft(r, func(d *builder.Draft) {
		writeJSON(w, http.StatusOK, d)
	})
}

func (s *Server) handleRenameDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.withDraft(r, func(d *builder.Draft) {
		d.SetName(req.Name)
		if req.Description != nil {
			d.Description = *req.Description
		}
		writeJSON(w, http.StatusOK, d)
	})
}

func (s *Server) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	s.withDraft(r, func(d *builder.Draft) { d.Clear() })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddDraftWorkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkoutID models.ID `json:"workoutId"`
		Name      string    `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.WorkoutID == "" {
		writeError(w, http.StatusBadRequest, "workoutId is required")
		return
	}
	s.withDraft(r, func(d *builder.Draft) {
		// adding twice keeps the existing item and its config
		if !d.Contains(req.WorkoutID) {
			d.Toggle(req.WorkoutID, req.Name)
		}
		writeJSON(w, http.StatusOK, d)
	})
}

func (s *Server) handleRemoveDraftWorkout(w http.ResponseWriter, r *http.Request) {
	workoutID := models.ID(chi.URLParam(r, "workoutId"))
	s.withDraft(r, func(d *builder.Draft) {
		if !d.Contains(workoutID) {
			writeError(w, http.StatusNotFound, "workout not in draft")
			return
		}
		d.Toggle(workoutID, "")
		writeJSON(w, http.StatusOK, d)
	})
}

func (s *Server) handleUpdateDraftItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode   *builder.Mode   `json:"mode"`
		Config *builder.Config `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Mode == nil && req.Config == nil {
		writeError(w, http.StatusBadRequest, "mode or config is required")
		return
	}
	if req.Mode != nil && !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "unknown mode "+string(*req.Mode))
		return
	}
	tempID := chi.URLParam(r, "tempId")
	s.withDraft(r, func(d *builder.Draft) {
		found := true
		if req.Mode != nil {
			found = d.SetItemMode(tempID, *req.Mode)
		}
		if found && req.Config != nil {
			found = d.UpdateItemConfig(tempID, *req.Config)
		}
		if !found {
			writeError(w, http.StatusNotFound, "item not in draft")
			return
		}
		writeJSON(w, http.StatusOK, d)
	})
}

// handleSaveDraft creates the routine from the caller's draft. The draft is
// cleared only when every item was created.
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	s.withDraft(r, func(d *builder.Draft) {
		routine, err := d.Save(r.Context(), s.routines)
		switch {
		case errors.Is(err, builder.ErrEmptyName), errors.Is(err, builder.ErrNoItems):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			s.log.Error("saving draft", "name", d.Name, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":   err.Error(),
				"routine": routine,
			})
		default:
			d.Clear()
			writeJSON(w, http.StatusCreated, routine)
		}
	})
}
