package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("eruna", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("eruna runs live workout sessions. Start a session from a routine, record or skip each set, adjust the planned reps/weight/time before completing a set, and finish the session to save it as a workout record."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolStartSession, Handler: h.startSession},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolListSessions, Handler: h.listSessions},
		server.ServerTool{Tool: toolUpdateDraft, Handler: h.updateDraft},
		server.ServerTool{Tool: toolCompleteSet, Handler: h.act(ActionComplete)},
		server.ServerTool{Tool: toolSkipSet, Handler: h.act(ActionSkip)},
		server.ServerTool{Tool: toolNextExercise, Handler: h.act(ActionNext)},
		server.ServerTool{Tool: toolPauseSession, Handler: h.act(ActionPause)},
		server.ServerTool{Tool: toolResumeSession, Handler: h.act(ActionResume)},
		server.ServerTool{Tool: toolAbortSession, Handler: h.act(ActionAbort)},
		server.ServerTool{Tool: toolFinishSession, Handler: h.finishSession},
		server.ServerTool{Tool: toolListWorkouts, Handler: h.listWorkouts},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resLiveSessions, Handler: h.liveSessions},
		server.ServerResource{Resource: resWorkoutCatalog, Handler: h.workoutCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resLiveSessions = mcp.NewResource(
	"eruna://live_sessions",
	"Live Sessions",
	mcp.WithResourceDescription("Every session currently held by the server, including finished ones that are not saved yet"),
	mcp.WithMIMEType("application/json"),
)

var resWorkoutCatalog = mcp.NewResource(
	"eruna://workout_catalog",
	"Workout Catalog",
	mcp.WithResourceDescription("All workouts with their category, type and target"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) liveSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.ds.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, sessions)
}

func (h *handlers) workoutCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	workouts, err := h.ds.ListWorkouts(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, workouts)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
