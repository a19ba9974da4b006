package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
)

// ErrNotFound is returned for session ids that are not live.
var ErrNotFound = errors.New("session not found")

// Action is a state-machine step that takes no arguments. The values match
// the HTTP route suffixes.
type Action string

const (
	ActionComplete Action = "complete"
	ActionSkip     Action = "skip"
	ActionNext     Action = "next"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionAbort    Action = "abort"
)

// ActionResult reports whether an action changed the session, with the
// session as it is afterwards.
type ActionResult struct {
	Applied bool             `json:"applied"`
	Session *session.Session `json:"session"`
}

// DataSource abstracts the session engine for MCP tools. Both Local
// (in-process) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	StartSession(ctx context.Context, routineID models.ID, id string) (*session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context) ([]*session.Session, error)
	UpdateDraft(ctx context.Context, id string, setIndex int, patch session.DraftPatch) (*ActionResult, error)
	Act(ctx context.Context, id string, action Action) (*ActionResult, error)
	FinishSession(ctx context.Context, id string) (*session.Result, error)
	ListWorkouts(ctx context.Context) ([]models.Workout, error)
}

// Catalog lists the workouts routines are built from.
type Catalog interface {
	ListWorkoutsJoined(ctx context.Context) ([]models.Workout, error)
}

// Local drives a session.Service in the same process.
type Local struct {
	svc     *session.Service
	catalog Catalog
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = (*Local)(nil)

func NewLocal(svc *session.Service, catalog Catalog) *Local {
	return &Local{svc: svc, catalog: catalog}
}

func (l *Local) StartSession(ctx context.Context, routineID models.ID, id string) (*session.Session, error) {
	return l.svc.Start(ctx, routineID, id)
}

func (l *Local) GetSession(_ context.Context, id string) (*session.Session, error) {
	s, ok := l.svc.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (l *Local) ListSessions(context.Context) ([]*session.Session, error) {
	return l.svc.List(), nil
}

func (l *Local) UpdateDraft(ctx context.Context, id string, setIndex int, patch session.DraftPatch) (*ActionResult, error) {
	s, applied := l.svc.UpdateDraft(ctx, id, setIndex, patch)
	return l.result(ctx, id, s, applied)
}

func (l *Local) Act(ctx context.Context, id string, action Action) (*ActionResult, error) {
	var op func(context.Context, string) (*session.Session, bool)
	switch action {
	case ActionComplete:
		op = l.svc.CompleteSet
	case ActionSkip:
		op = l.svc.SkipSet
	case ActionNext:
		op = l.svc.NextExercise
	case ActionPause:
		op = l.svc.Pause
	case ActionResume:
		op = l.svc.Resume
	case ActionAbort:
		op = l.svc.Abort
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	s, applied := op(ctx, id)
	return l.result(ctx, id, s, applied)
}

func (l *Local) FinishSession(ctx context.Context, id string) (*session.Result, error) {
	res, err := l.svc.Finish(ctx, id)
	if errors.Is(err, session.ErrUnknownSession) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return res, err
}

func (l *Local) ListWorkouts(ctx context.Context) ([]models.Workout, error) {
	return l.catalog.ListWorkoutsJoined(ctx)
}

func (l *Local) result(ctx context.Context, id string, s *session.Session, applied bool) (*ActionResult, error) {
	if !applied {
		var err error
		if s, err = l.GetSession(ctx, id); err != nil {
			return nil, err
		}
	}
	return &ActionResult{Applied: applied, Session: s}, nil
}
