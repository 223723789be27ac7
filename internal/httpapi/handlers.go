package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/obs"
	"ghginventory.org/internal/registry"
	"ghginventory.org/internal/stream"
)

const serviceName = "ghg-inventory-api"

// ReadyProbe checks that backing services are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP enforcement point in front of the registry.
type API struct {
	store      registry.Store
	auth       *auth.Service
	hub        *stream.Hub
	readyProbe readinessChecker
	version    string

	corsOrigins []string
	rateBurst   int
	ratePerSec  float64
	maxBody     int64
	heartbeat   time.Duration
}

// Option configures the API.
type Option func(*API)

// WithReadyProbe sets the readiness checker used by /readyz.
func WithReadyProbe(rp readinessChecker) Option {
	return func(a *API) { a.readyProbe = rp }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBody = n }
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(a *API) { a.heartbeat = d }
}

// New wires the API over the registry store and the auth service.
func New(store registry.Store, authSvc *auth.Service, hub *stream.Hub, opts ...Option) *API {
	a := &API{
		store:       store,
		auth:        authSvc,
		hub:         hub,
		readyProbe:  ReadyProbe{},
		version:     "dev",
		corsOrigins: []string{"http://localhost:3000"},
		rateBurst:   40,
		ratePerSec:  20,
		maxBody:     1 << 20,
		heartbeat:   25 * time.Second,
	}
	if a.hub == nil {
		a.hub = stream.New()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the routed and instrumented http.Handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recover)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBody) })

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/auth/profile", a.handleProfile)

			r.Get("/abilities", a.handleRules)
			r.Post("/abilities/check", a.handleCheck)
			r.Get("/abilities/stream", a.handleAbilityStream)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", a.listUsers)
				r.Post("/", a.createUser)
				r.Get("/{id}", a.getUser)
				r.Patch("/{id}", a.updateUser)
				r.Delete("/{id}", a.deleteUser)
			})

			r.Route("/companies", func(r chi.Router) {
				r.Get("/", a.listCompanies)
				r.Post("/", a.createCompany)
				r.Get("/{id}", a.getCompany)
				r.Patch("/{id}", a.updateCompany)
				r.Delete("/{id}", a.deleteCompany)
				r.Post("/{id}/suspend", a.suspendCompany)
				r.Post("/{id}/activate", a.activateCompany)
			})

			r.Route("/programmes", func(r chi.Router) {
				r.Get("/", a.listProgrammes)
				r.Post("/", a.createProgramme)
				r.Get("/stats", a.programmeStats)
				r.Get("/{id}", a.getProgramme)
				r.Post("/{id}/certify", a.certifyProgramme)
				r.Post("/{id}/retire", a.retireProgramme)
			})

			r.Post("/transfers", a.createTransfer)

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/years", a.inventoryYears)
				r.Get("/{year}/forest-land", a.getForestLand)
				r.Put("/{year}/forest-land", a.saveForestLand)
				r.Post("/{year}/forest-land/status", a.updateForestLandStatus)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return obs.Instrument(r)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
