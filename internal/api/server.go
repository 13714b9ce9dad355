// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the guide, its status and catchup URLs over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/tvguide/internal/api/middleware"
	"github.com/ManuGH/tvguide/internal/catchup"
	"github.com/ManuGH/tvguide/internal/jobs"
	"github.com/ManuGH/tvguide/internal/playlist"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	// Session returns the active acquisition session; nil while none is loaded.
	Session func() *jobs.Session
	// Resolver builds catchup and live URLs.
	Resolver *catchup.Resolver
	// RefreshPerMinute limits POST /api/v1/epg/refresh per client IP; 0 disables.
	RefreshPerMinute int
	Clock            func() time.Time
	Version          string
}

// Server is the HTTP handler tree.
type Server struct {
	deps   Deps
	router chi.Router
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Resolver == nil {
		deps.Resolver = catchup.NewResolver()
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Observe)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/playlist.m3u", s.handlePlaylist)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/epg/status", s.handleStatus)
		r.With(middleware.RefreshRateLimit(deps.RefreshPerMinute)).Post("/epg/refresh", s.handleRefresh)
		r.Get("/epg/channels", s.handleChannels)
		r.Get("/epg/programmes", s.handleProgrammes)
		r.Get("/catchup", s.handleCatchup)
		r.Get("/live", s.handleLive)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) session(w http.ResponseWriter) *jobs.Session {
	var sess *jobs.Session
	if s.deps.Session != nil {
		sess = s.deps.Session()
	}
	if sess == nil {
		writeServiceUnavailable(w, "no playlist session loaded")
	}
	return sess
}

func (s *Server) channel(w http.ResponseWriter, r *http.Request, sess *jobs.Session) (playlist.Channel, bool) {
	name := r.URL.Query().Get("channel")
	if name == "" {
		writeBadRequest(w, "channel is required")
		return playlist.Channel{}, false
	}
	ch, ok := playlist.Find(sess.Channels(), name)
	if !ok {
		writeNotFound(w, "unknown channel "+name)
		return playlist.Channel{}, false
	}
	return ch, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.deps.Version})
}
