/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: display resolution for the
// TVs, content management for the dashboard, and auth.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_signage/internal/audit"
	"github.com/friendsincode/heimdall_signage/internal/auth"
	"github.com/friendsincode/heimdall_signage/internal/cache"
	"github.com/friendsincode/heimdall_signage/internal/clock"
	"github.com/friendsincode/heimdall_signage/internal/devices"
	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/logbuffer"
	"github.com/friendsincode/heimdall_signage/internal/scheduling"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	engine    *scheduling.Service
	registry  *devices.Registry
	clk       clock.Clock
	cache     *cache.Cache
	auditSvc  *audit.Service
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, engine *scheduling.Service, registry *devices.Registry, clk clock.Clock, displayCache *cache.Cache, auditSvc *audit.Service, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		engine:    engine,
		registry:  registry,
		clk:       clk,
		cache:     displayCache,
		auditSvc:  auditSvc,
		bus:       bus,
		logBuffer: logBuf,
		logger:    logger,
	}
}

// Routes registers all endpoints on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints: the TVs poll these unauthenticated.
		r.Get("/display/{deviceID}", a.handleDisplay)
		r.Get("/devices", a.handleDevicesList)

		// Auth
		r.Post("/auth/signup", a.handleSignup)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/content", func(r chi.Router) {
				r.Get("/", a.handleContentList)
				r.Post("/", a.handleContentCreate)
				r.Route("/{itemID}", func(r chi.Router) {
					r.Get("/", a.handleContentGet)
					r.Put("/", a.handleContentUpdate)
					r.Delete("/", a.handleContentDelete)
				})
			})

			pr.Route("/dashboard", func(r chi.Router) {
				r.Get("/summary", a.handleDashboardSummary)
				r.Get("/active", a.handleDashboardActive)
				r.Get("/upcoming", a.handleDashboardUpcoming)
				r.Get("/devices/{deviceID}", a.handleDashboardDevice)
			})

			pr.With(auth.RequireRole("admin")).Post("/sweep", a.handleSweepTrigger)
			pr.With(auth.RequireRole("admin")).Get("/audit", a.handleAuditList)
			pr.With(auth.RequireRole("admin")).Get("/logs", a.handleLogsList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSweepTrigger(w http.ResponseWriter, r *http.Request) {
	report, err := a.engine.RunSweep(r.Context(), a.clk.Now())
	if err != nil {
		a.logger.Error().Err(err).Msg("manual sweep failed")
		writeError(w, http.StatusInternalServerError, "sweep_failed")
		return
	}

	payload := events.Payload{"trigger": "manual"}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		payload["actor_id"] = claims.UserID
	}
	a.bus.Publish(events.EventAuditSweepTrigger, payload)

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
