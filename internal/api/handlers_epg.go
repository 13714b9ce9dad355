// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/tvguide/internal/epg"
	"github.com/ManuGH/tvguide/internal/jobs"
	"github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/playlist"
)

const defaultUpcoming = 10

type statusResponse struct {
	jobs.Snapshot
	Channels      int    `json:"channels"`
	RetentionDays int    `json:"retention_days"`
	Version       string `json:"version,omitempty"`
}

type programmeView struct {
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CatchupID   string    `json:"catchup_id,omitempty"`
	Progress    *int      `json:"progress,omitempty"`
}

func viewOf(p epg.Programme, now time.Time, withProgress bool) programmeView {
	v := programmeView{
		Start:       p.StartTime().UTC(),
		Stop:        p.StopTime().UTC(),
		Title:       p.Title,
		Description: p.Description,
		CatchupID:   p.CatchupID,
	}
	if withProgress {
		pct := p.Progress(now)
		v.Progress = &pct
	}
	return v
}

func viewsOf(list []epg.Programme, now time.Time) []programmeView {
	out := make([]programmeView, 0, len(list))
	for _, p := range list {
		out = append(out, viewOf(p, now, false))
	}
	return out
}

type channelView struct {
	Name     string         `json:"name"`
	Group    string         `json:"group,omitempty"`
	Logo     string         `json:"logo,omitempty"`
	Key      string         `json:"key"`
	HasGuide bool           `json:"has_guide"`
	Catchup  bool           `json:"catchup"`
	Now      *programmeView `json:"now,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Snapshot:      sess.Snapshot(),
		Channels:      len(sess.Channels()),
		RetentionDays: sess.RetentionDays(),
		Version:       s.deps.Version,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")

	err := sess.ForceRefresh(r.Context())
	switch {
	case err == nil:
		logger.Info().Str(log.FieldEvent, "epg.refresh_forced").Msg("forced guide refresh")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "session_id": sess.ID()})
	case errors.Is(err, jobs.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, jobs.ErrNoSource):
		writeError(w, http.StatusConflict, "no_source", err.Error())
	default:
		logger.Warn().Err(err).Str(log.FieldEvent, "epg.refresh_failed").Msg("forced refresh rejected")
		writeServiceUnavailable(w, err.Error())
	}
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	now := s.deps.Clock()
	g := sess.Guide()
	catchupOn := sess.Settings().CatchupEnabled

	out := make([]channelView, 0, len(sess.Channels()))
	for _, ch := range sess.Channels() {
		key := sess.ResolveKey(ch)
		v := channelView{
			Name:     ch.Name,
			Group:    ch.Group,
			Logo:     ch.Logo,
			Key:      key,
			HasGuide: g.Index.Has(key),
			Catchup:  catchupOn,
		}
		if v.Logo == "" {
			v.Logo = g.Icon(key)
		}
		if p, ok := g.Index.Current(key, now); ok {
			pv := viewOf(p, now, true)
			v.Now = &pv
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProgrammes(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	ch, ok := s.channel(w, r, sess)
	if !ok {
		return
	}
	q := r.URL.Query()
	now := s.deps.Clock()
	key := sess.ResolveKey(ch)
	idx := sess.Guide().Index

	limit, err := intParam(q.Get("limit"), defaultUpcoming)
	if err != nil {
		writeBadRequest(w, "limit: "+err.Error())
		return
	}
	days, err := intParam(q.Get("days"), sess.RetentionDays())
	if err != nil {
		writeBadRequest(w, "days: "+err.Error())
		return
	}

	var list []programmeView
	switch view := q.Get("view"); view {
	case "", "upcoming":
		list = viewsOf(idx.Upcoming(key, now, limit), now)
	case "current":
		list = []programmeView{}
		if p, ok := idx.Current(key, now); ok {
			list = append(list, viewOf(p, now, true))
		}
	case "archive":
		list = viewsOf(idx.Archive(key, now, days), now)
	case "all":
		list = viewsOf(idx[key], now)
	default:
		writeBadRequest(w, "unknown view "+view)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel":    ch.Name,
		"key":        key,
		"programmes": list,
	})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, _ *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	if err := playlist.WriteM3U(w, sess.Channels(), sess.ResolveKey); err != nil {
		logger := log.WithComponent("api")
		logger.Warn().Err(err).Str(log.FieldEvent, "playlist.write_failed").Msg("failed to write playlist")
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
