package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

const loginStateTTL = 10 * time.Minute

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is a self-routing http.Handler. Routes returns the path patterns it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Exchanger trades an OAuth2 authorization code for a token.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Authorizer drives the authorization code flow against the remote service.
type Authorizer interface {
	Exchanger
	AuthURL(state string) string
}

// Options configures a [Server].
type Options struct {
	RequestsPerMinute int // per client IP; zero disables rate limiting
	Logger            *log.Logger
}

// Server exposes the reconciliation engine over JSON HTTP.
type Server struct {
	engine *tasks.Engine
	auth   Authorizer
	logger *log.Logger
	router chi.Router
	states *stateStore
}

// New builds a [Server] and registers its routes. auth may be nil, in which case the login routes
// answer 503.
func New(engine *tasks.Engine, auth Authorizer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		engine: engine,
		auth:   auth,
		logger: shared.WithLogger(logger, "component", "http"),
		states: newStateStore(loginStateTTL),
	}
	s.router = NewRouter(s.logger, opts.RequestsPerMinute)
	s.routes()
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/login", s.handleLogin)
	r.Get("/callback", s.handleCallback)

	r.Route("/playlists", func(r chi.Router) {
		r.Get("/", s.handleListPlaylists)
		r.Post("/", s.handleCreatePlaylist)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPlaylist)
			r.Patch("/", s.handleUpdatePlaylist)
			r.Delete("/", s.handleDeletePlaylist)
			r.Get("/tracks", s.handlePlaylistTracks)
			r.Post("/restore", s.handleRestorePlaylist)
			r.Post("/sync", s.handleSyncPlaylist)
			r.Post("/revert", s.handleRevertPlaylist)
			r.Post("/dedupe", s.handleDedupePlaylist)
		})
	})

	r.Route("/bulk/tracks", func(r chi.Router) {
		r.Post("/", s.handleBulkAdd)
		r.Delete("/", s.handleBulkRemove)
	})

	r.Get("/tracks", s.handleListTracks)

	r.Route("/labels", func(r chi.Router) {
		r.Get("/", s.handleListLabels)
		r.Post("/", s.handleCreateLabel)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetLabel)
			r.Patch("/", s.handleUpdateLabel)
			r.Delete("/", s.handleDeleteLabel)
			r.Get("/tracks", s.handleLabelTracks)
			r.Post("/tracks", s.handleTagTracks)
			r.Delete("/tracks", s.handleUntagTracks)
		})
	})

	r.Post("/library/refresh", s.handleRefreshLibrary)
}
