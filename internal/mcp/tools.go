package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
)

// --- Tool definitions ---

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start a workout session from a routine. Each routine item becomes one exercise with its planned sets. Passing the id of a live session returns it unchanged."),
	mcp.WithString("routine_id", mcp.Required(), mcp.Description("Routine to run")),
	mcp.WithString("session_id", mcp.Description("Session id to use. Generated when omitted.")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get a live session with its progress: current exercise, sets done and planned, and every recorded set."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List all live sessions, oldest first."),
)

var toolUpdateDraft = mcp.NewTool("update_draft",
	mcp.WithDescription("Change the values that will be recorded for one set of the current exercise. Fields that are not given keep their value; fields named in 'clear' fall back to the routine's plan."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithNumber("set_index", mcp.Required(), mcp.Description("0-based set of the current exercise")),
	mcp.WithNumber("reps", mcp.Description("Repetitions")),
	mcp.WithNumber("weight", mcp.Description("Weight")),
	mcp.WithNumber("time_sec", mcp.Description("Duration in seconds")),
	mcp.WithNumber("rest_sec", mcp.Description("Rest after the set in seconds")),
	mcp.WithArray("clear", mcp.Description("Fields to reset to the plan: reps, weight, time_sec, rest_sec"), mcp.WithStringItems()),
)

var toolCompleteSet = mcp.NewTool("complete_set",
	mcp.WithDescription("Record the current set as performed and move to the next set, or to the next exercise after the last set."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolSkipSet = mcp.NewTool("skip_set",
	mcp.WithDescription("Record the current set as skipped and move on like complete_set."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolNextExercise = mcp.NewTool("next_exercise",
	mcp.WithDescription("Move to the next exercise once every set of the current one is recorded."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolPauseSession = mcp.NewTool("pause_session",
	mcp.WithDescription("Pause an active session. Sets cannot be recorded until it is resumed."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolResumeSession = mcp.NewTool("resume_session",
	mcp.WithDescription("Resume a paused session."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolAbortSession = mcp.NewTool("abort_session",
	mcp.WithDescription("Abandon a session without saving it."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolFinishSession = mcp.NewTool("finish_session",
	mcp.WithDescription("Finish the session and save it as a workout record with one entry per recorded set. On failure the session is kept and the call can be repeated."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var toolListWorkouts = mcp.NewTool("list_workouts",
	mcp.WithDescription("List the workout catalog with categories, types and targets."),
)

// --- Tool handlers ---

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routineID, err := req.RequireString("routine_id")
	if err != nil {
		return mcp.NewToolResultError("routine_id parameter is required"), nil
	}

	s, err := h.ds.StartSession(ctx, models.ID(routineID), req.GetString("session_id", ""))
	if err != nil {
		h.log.Error("mcp start_session", "routine_id", routineID, "error", err)
		return mcp.NewToolResultError("start failed: " + err.Error()), nil
	}
	return jsonResult(s)
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}

	s, err := h.ds.GetSession(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"session": s, "progress": s.Progress()})
}

func (h *handlers) listSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := h.ds.ListSessions(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sessions)
}

func (h *handlers) updateDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}
	setIndex, err := req.RequireInt("set_index")
	if err != nil {
		return mcp.NewToolResultError("set_index parameter is required"), nil
	}

	patch, err := draftPatch(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := h.ds.UpdateDraft(ctx, id, setIndex, patch)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

// draftPatch reads the workload arguments of update_draft.
func draftPatch(req mcp.CallToolRequest) (session.DraftPatch, error) {
	var p session.DraftPatch
	fields := map[string]*session.Field{
		"reps":     &p.Reps,
		"weight":   &p.Weight,
		"time_sec": &p.TimeSec,
		"rest_sec": &p.RestSec,
	}
	args := req.GetArguments()
	for name, field := range fields {
		if _, ok := args[name]; ok {
			*field = session.Value(req.GetFloat(name, 0))
		}
	}
	for _, name := range req.GetStringSlice("clear", nil) {
		field, ok := fields[name]
		if !ok {
			return p, fmt.Errorf("cannot clear unknown field %q", name)
		}
		*field = session.Null()
	}
	return p, nil
}

// act returns a handler for a session action that takes only the id.
func (h *handlers) act(action Action) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id parameter is required"), nil
		}
		res, err := h.ds.Act(ctx, id, action)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	}
}

func (h *handlers) finishSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}

	res, err := h.ds.FinishSession(ctx, id)
	if err != nil {
		h.log.Error("mcp finish_session", "session_id", id, "error", err)
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (h *handlers) listWorkouts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workouts, err := h.ds.ListWorkouts(ctx)
	if err != nil {
		h.log.Error("mcp list_workouts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(workouts)
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, session.ErrUnknownRoutine):
		return mcp.NewToolResultError("routine not found")
	case errors.Is(err, ErrNotFound):
		return mcp.NewToolResultError("session not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
