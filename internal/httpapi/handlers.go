package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/groups"
	"elaqe.org/internal/messaging"
	"elaqe.org/internal/obs"
	"elaqe.org/internal/ratelimit"
)

const serviceName = "elaqe-api"

// ReadyProbe checks the database behind the service. A nil DB is always ready.
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

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Ready        readinessChecker
	Version      string
	Resolver     *auth.Resolver
	Groups       *groups.Service
	Engine       *messaging.Engine
	Logs         *audit.Reader
	Limiter      ratelimit.Limiter
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	ready    readinessChecker
	version  string
	resolver *auth.Resolver
	groups   *groups.Service
	engine   *messaging.Engine
	logs     *audit.Reader
}

func New(d Deps) *API {
	if d.Ready == nil {
		d.Ready = ReadyProbe{}
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	a := &API{
		router:   chi.NewRouter(),
		ready:    d.Ready,
		version:  d.Version,
		resolver: d.Resolver,
		groups:   d.Groups,
		engine:   d.Engine,
		logs:     d.Logs,
	}

	r := a.router
	r.Use(RequestID, Logging, SecurityHeaders, CORS)
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, d.MaxBodyBytes) })
	if d.Limiter != nil {
		r.Use(func(next http.Handler) http.Handler { return RateLimit(next, d.Limiter) })
	}
	r.Use(obs.Instrument, a.withAuth)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/institutions/types", a.institutionTypes)
		r.Get("/institutions/{id}/groups", a.institutionGroups)
		r.Get("/institutions/{id}/messages/count", a.institutionMessageCount)
		r.Post("/institutions/{id}/messages", a.sendInstitutionMessage)
		r.Get("/employees/{id}/groups", a.employeeGroups)

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", a.createGroup)
			r.Get("/", a.listGroups)
			r.Get("/search", a.searchGroups)
			r.Get("/{id}", a.getGroup)
			r.Put("/{id}", a.updateGroup)
			r.Delete("/{id}", a.deleteGroup)
			r.Post("/{id}/members", a.addMember)
			r.Delete("/{id}/members/{employeeID}", a.removeMember)
			r.Post("/{id}/admins", a.addAdmin)
			r.Delete("/{id}/admins/{employeeID}", a.removeAdmin)
			r.Post("/{id}/messages", a.sendGroupMessage)
			r.Get("/{id}/messages", a.groupMessages)
			r.Get("/{id}/messages/search", a.searchGroupMessages)
			r.Get("/{id}/messages/unread-count", a.unreadCount)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/direct", a.sendDirectMessage)
			r.Get("/direct/{employeeID}", a.directMessages)
			r.Get("/logs", a.messageLogs)
			r.Put("/{id}", a.updateMessage)
			r.Delete("/{id}", a.deleteMessage)
			r.Put("/{id}/read", a.markRead)
		})

		r.Get("/users/{id}/logs", a.userLogs)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return a
}

func (a *API) Handler() http.Handler { return a.router }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
