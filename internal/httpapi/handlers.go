package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/lead"
	"leadtrack.io/internal/obs"
)

const (
	defaultRateBurst    = 10
	defaultRatePerSec   = 1.0
	defaultMaxBodyBytes = 1 << 20
)

// Pinger is satisfied by both stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe reports whether the backing store answers.
type ReadyProbe struct {
	Store Pinger
}

// Check returns nil when the store is reachable or none is configured.
func (p ReadyProbe) Check(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Store.Ping(ctx)
}

// Config carries the HTTP-layer knobs that are not services.
type Config struct {
	Version        string
	CORSOrigins    []string
	TrustedProxies []netip.Prefix
	RateBurst      int
	RatePerSec     float64
	MaxBodyBytes   int64
	Events         EventSource
}

type API struct {
	auth      *auth.Service
	directory *auth.Directory
	leads     *lead.Service
	ready     ReadyProbe
	events    EventSource

	version        string
	corsOrigins    []string
	trustedProxies []netip.Prefix
	rateBurst      int
	ratePerSec     float64
	maxBodyBytes   int64
}

func New(authSvc *auth.Service, dir *auth.Directory, leads *lead.Service, ready ReadyProbe, cfg Config) *API {
	obs.Init()
	a := &API{
		auth:           authSvc,
		directory:      dir,
		leads:          leads,
		ready:          ready,
		events:         cfg.Events,
		version:        cfg.Version,
		corsOrigins:    cfg.CORSOrigins,
		trustedProxies: cfg.TrustedProxies,
		rateBurst:      cfg.RateBurst,
		ratePerSec:     cfg.RatePerSec,
		maxBodyBytes:   cfg.MaxBodyBytes,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = defaultRateBurst
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = defaultRatePerSec
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = defaultMaxBodyBytes
	}
	return a
}

// Handler builds the routed handler with the middleware chain applied.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, ClientIP(a.trustedProxies), Logging, SecurityHeaders, CORS(a.corsOrigins), instrument)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(MaxBodyBytes(a.maxBodyBytes))

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(a.rateBurst, a.ratePerSec))
			r.Post("/auth/register", a.register)
			r.Post("/auth/login", a.login)
		})
		r.Post("/companies", a.createCompany)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/auth/me", a.me)

			r.Post("/leads", a.createLead)
			r.Get("/leads", a.listLeads)
			r.Get("/leads/events", a.leadEvents)
			r.Get("/leads/{id}", a.getLead)
			r.Patch("/leads/{id}", a.updateLead)
			r.With(RequireRole(auth.RoleAdmin, auth.RoleManager)).Delete("/leads/{id}", a.deleteLead)

			r.Get("/companies", a.listCompanies)
			r.Get("/companies/{id}", a.getCompany)
			r.With(RequireRole(auth.RoleAdmin, auth.RoleManager)).Patch("/companies/{id}", a.updateCompany)
			r.With(RequireRole(auth.RoleAdmin)).Delete("/companies/{id}", a.deleteCompany)

			r.With(RequireRole(auth.RoleAdmin, auth.RoleManager)).Patch("/users/assign", a.assignCompany)
			r.Get("/users/company/{id}", a.listCompanyUsers)
			r.With(RequireRole(auth.RoleAdmin, auth.RoleManager)).Put("/users/{id}", a.updateUser)
		})
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "leadtrack",
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func instrument(next http.Handler) http.Handler {
	return obs.Instrument(next, routePattern)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
