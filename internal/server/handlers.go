package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/claude/eruna/internal/builder"
	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
)

// actionResponse is returned by every state-machine endpoint. Applied is
// false when the action was not valid in the session's current state; the
// session is returned unchanged in that case.
type actionResponse struct {
	Applied bool             `json:"applied"`
	Session *session.Session `json:"session"`
}

type startRequest struct {
	RoutineID models.ID `json:"routineId"`
	ID        string    `json:"id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.sessions.List()),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	workouts, err := s.routines.ListWorkoutsJoined(r.Context())
	if err != nil {
		s.log.Error("listing workouts", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}

func (s *Server) handleRefreshWorkouts(w http.ResponseWriter, r *http.Request) {
	s.routines.InvalidateLookups()
	s.log.Info("workout catalog cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.RoutineID == "" {
		writeError(w, http.StatusBadRequest, "routineId is required")
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.RoutineID, req.ID)
	if errors.Is(err, session.ErrUnknownRoutine) {
		writeError(w, http.StatusNotFound, "routine not found")
		return
	}
	if err != nil {
		s.log.Error("starting session", "routine_id", req.RoutineID, "user", userInfoFromContext(r).Login, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"progress": sess.Progress(),
	})
}

func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Discard(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSaveInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	setIndex, err := strconv.Atoi(chi.URLParam(r, "setIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid set index")
		return
	}
	var patch session.DraftPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	sess, applied := s.sessions.UpdateDraft(r.Context(), id, setIndex, patch)
	s.writeAction(w, id, sess, applied)
}

// sessionAction adapts a state-machine operation to a handler.
func (s *Server) sessionAction(op func(context.Context, string) (*session.Session, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, applied := op(r.Context(), id)
		s.writeAction(w, id, sess, applied)
	}
}

func (s *Server) writeAction(w http.ResponseWriter, id string, sess *session.Session, applied bool) {
	if !applied {
		var ok bool
		if sess, ok = s.sessions.Get(id); !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, actionResponse{Applied: applied, Session: sess})
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.sessions.Finish(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}

	var recErr *session.ReconcileError
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrNotCompleted), errors.Is(err, session.ErrSaveInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &recErr):
		s.log.Error("finishing session", "session_id", id, "written", recErr.Written, "error", err)
		sess, _ := s.sessions.Get(id)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"session": sess,
		})
	default:
		s.log.Error("finishing session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleSaveRoutine(w http.ResponseWriter, r *http.Request) {
	draft := builder.New(nil)
	if err := json.NewDecoder(r.Body).Decode(draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	routine, err := draft.Save(r.Context(), s.routines)
	switch {
	case errors.Is(err, builder.ErrEmptyName), errors.Is(err, builder.ErrNoItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.log.Error("saving routine", "name", draft.Name, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"routine": routine,
		})
	default:
		writeJSON(w, http.StatusCreated, routine)
	}
}

func (s *Server) handleSyncRoutine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkoutIDs []models.ID `json:"workoutIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := builder.Sync(r.Context(), s.routines, models.ID(chi.URLParam(r, "id")), req.WorkoutIDs)
	if err != nil {
		s.log.Error("syncing routine", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReorderRoutine(w http.ResponseWriter, r *http.Request) {
	var edited []models.RoutineItem
	if err := json.NewDecoder(r.Body).Decode(&edited); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	routineID := models.ID(chi.URLParam(r, "id"))
	original, err := s.routines.ListRoutineItems(r.Context(), routineID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	n, err := builder.Reorder(r.Context(), s.routines, original, edited)
	if err != nil {
		s.log.Error("reordering routine", "routine_id", routineID, "updated", n, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "updated": n})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	if err := builder.DeleteRoutine(r.Context(), s.routines, models.ID(chi.URLParam(r, "id"))); err != nil {
		s.log.Error("deleting routine", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
