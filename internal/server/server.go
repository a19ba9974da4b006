package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/client/tailscale/apitype"

	"github.com/claude/eruna/internal/builder"
	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
)

// Routines is the backend the routine endpoints work against.
type Routines interface {
	builder.RoutineEditor
	ListWorkoutsJoined(ctx context.Context) ([]models.Workout, error)
	// InvalidateLookups forgets cached catalog collections.
	InvalidateLookups()
}

// WhoIs resolves the tailnet identity behind a remote address.
type WhoIs interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions *session.Service
	routines Routines
	metrics  *metrics.Manager
	gatherer prometheus.Gatherer
	whois    WhoIs
	drafts   *draftBook
	log      *slog.Logger
	apiKey   string
	router   chi.Router
}

// New creates a new Server with all routes configured.
func New(sessions *session.Service, routines Routines, m *metrics.Manager, gatherer prometheus.Gatherer, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		sessions: sessions,
		routines: routines,
		metrics:  m,
		gatherer: gatherer,
		drafts:   newDraftBook(),
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale makes requests carry the tailnet identity of the caller
// instead of the local dev user.
func (s *Server) SetTailscale(w WhoIs) {
	s.whois = w
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(RequestMetrics(s.metrics))
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Use(s.identity)

		r.Get("/me", s.handleMe)
		r.Get("/workouts", s.handleListWorkouts)
		r.Post("/workouts/refresh", s.handleRefreshWorkouts)

		r.Route("/draft", func(r chi.Router) {
			r.Get("/", s.handleGetDraft)
			r.Put("/", s.handleRenameDraft)
			r.Delete("/", s.handleClearDraft)
			r.Post("/workouts", s.handleAddDraftWorkout)
			r.Delete("/workouts/{workoutId}", s.handleRemoveDraftWorkout)
			r.Patch("/items/{tempId}", s.handleUpdateDraftItem)
			r.Post("/save", s.handleSaveDraft)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDiscardSession)
				r.Patch("/drafts/{setIndex}", s.handleUpdateDraft)
				r.Post("/complete", s.sessionAction(s.sessions.CompleteSet))
				r.Post("/skip", s.sessionAction(s.sessions.SkipSet))
				r.Post("/next", s.sessionAction(s.sessions.NextExercise))
				r.Post("/pause", s.sessionAction(s.sessions.Pause))
				r.Post("/resume", s.sessionAction(s.sessions.Resume))
				r.Post("/abort", s.sessionAction(s.sessions.Abort))
				r.Post("/finish", s.handleFinishSession)
			})
		})

		r.Route("/routines", func(r chi.Router) {
			r.Post("/", s.handleSaveRoutine)
			r.Put("/{id}/workouts", s.handleSyncRoutine)
			r.Put("/{id}/items", s.handleReorderRoutine)
			r.Delete("/{id}", s.handleDeleteRoutine)
		})
	})
}

// Mount serves h at pattern behind the API key.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.With(APIKeyAuth(s.apiKey)).Handle(pattern, h)
}
