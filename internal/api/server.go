package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voipbridge/voipbridge/internal/api/middleware"
	"github.com/voipbridge/voipbridge/internal/call"
	"github.com/voipbridge/voipbridge/internal/config"
	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
	"github.com/voipbridge/voipbridge/internal/pbx"
	"github.com/voipbridge/voipbridge/internal/presence"
	"github.com/voipbridge/voipbridge/internal/recording"
)

// EventArchiver mirrors webhook events to an external audit store.
type EventArchiver interface {
	Archive(ctx context.Context, instance string, ev *models.Event) error
}

// Deps bundles everything the HTTP layer needs. Archive, Probe and Metrics
// are optional; nil disables the corresponding feature.
type Deps struct {
	Cfg       *config.Config
	JWTSecret []byte

	Servers    database.ServerRepository
	Users      database.VoIPUserRepository
	Contacts   database.ContactRepository
	Calls      database.CallRepository
	Recordings database.RecordingRepository
	Events     database.EventRepository
	HoldMusic  database.HoldMusicRepository

	Reconciler *call.Service
	Recorder   *recording.Service
	Presence   *presence.Engine
	Probe      *pbx.Client
	Archive    EventArchiver
	Metrics    http.Handler
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	deps   Deps

	webhookLimiter *middleware.KeyRateLimiter
	authLimiter    *middleware.KeyRateLimiter
	apiLimiter     *middleware.KeyRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		deps:           deps,
		webhookLimiter: middleware.NewKeyRateLimiter(middleware.WebhookRateLimitConfig()),
		authLimiter:    middleware.NewKeyRateLimiter(middleware.AuthRateLimitConfig()),
		apiLimiter:     middleware.NewKeyRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.webhookLimiter.Stop()
	s.authLimiter.Stop()
	s.apiLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.deps.Cfg.CORSOrigins)))

	// PBX webhook. API-key authenticated inside the handler; rate limited
	// per key there as well.
	r.Post("/pbx/webhook", s.handlePBXWebhook)

	// Softphone client endpoints. Fixed wire shapes with an in-body
	// success flag; domain errors answer 200.
	r.Route("/voip", func(r chi.Router) {
		r.With(middleware.RateLimit(s.authLimiter)).
			Post("/auth/login", s.handleLogin)

		// Presence nudges from the client arrive without a token.
		r.Post("/webhook/notification", s.handleNotification)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.deps.JWTSecret))
			r.Use(middleware.RateLimit(s.apiLimiter))

			r.Get("/config", s.handleClientConfig)

			r.Post("/call/create", s.handleCallCreate)
			r.Post("/call/update", s.handleCallUpdate)
			r.Post("/call/update_duration", s.handleCallUpdateDuration)
			r.Get("/call/list", s.handleCallList)
			r.Post("/call/list", s.handleCallList)

			r.Get("/search/partner", s.handleSearchPartner)
			r.Get("/contacts/list", s.handleContactsList)
			r.Get("/users/list", s.handleUsersList)

			r.Post("/recording/create", s.handleRecordingCreate)
			r.Post("/recording/upload", s.handleRecordingUpload)

			r.Get("/hold_music/list", s.handleHoldMusicList)
			r.Get("/hold_music/file/{id}", s.handleHoldMusicFile)
		})
	})

	// Legacy upload route used by the browser recorder.
	r.With(middleware.RequireAuth(s.deps.JWTSecret)).
		Post("/voip_webrtc_freepbx/save_recording", s.handleSaveRecording)

	// Admin API under /api/v1 with the {data, error} envelope.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.deps.JWTSecret))
			r.Use(middleware.RateLimit(s.apiLimiter))

			r.Route("/servers", func(r chi.Router) {
				r.Get("/", s.handleServerList)
				r.Post("/", s.handleServerCreate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleServerGet)
					r.Put("/", s.handleServerUpdate)
					r.Post("/rotate-key", s.handleServerRotateKey)
					r.Post("/test", s.handleServerTest)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleUserList)
				r.Post("/", s.handleUserCreate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleUserGet)
					r.Put("/", s.handleUserUpdate)
				})
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", s.handleContactList)
				r.Post("/", s.handleContactCreate)
				r.Get("/{id}", s.handleContactGet)
			})

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", s.handleAdminCallList)
				r.Get("/{id}", s.handleAdminCallGet)
			})

			r.Route("/recordings", func(r chi.Router) {
				r.Get("/", s.handleAdminRecordingList)
				r.Get("/{id}/download", s.handleRecordingDownload)
				r.Delete("/{id}", s.handleRecordingDelete)
			})

			r.Get("/events", s.handleEventList)

			r.Route("/hold-music", func(r chi.Router) {
				r.Get("/", s.handleAdminHoldMusicList)
				r.Post("/", s.handleHoldMusicUpload)
				r.Put("/{id}", s.handleHoldMusicUpdate)
				r.Delete("/{id}", s.handleHoldMusicDelete)
			})
		})
	})

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
