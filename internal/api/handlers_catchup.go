// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/tvguide/internal/catchup"
)

type catchupResponse struct {
	Channel string       `json:"channel"`
	Mode    catchup.Mode `json:"mode"`
	Start   time.Time    `json:"start"`
	Stop    time.Time    `json:"stop"`
	URL     string       `json:"url"`
}

// handleCatchup resolves the archive URL of a past programme. start is
// required (epoch seconds); stop and catchup_id default to the guide entry
// starting at start.
func (s *Server) handleCatchup(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	if !sess.Settings().CatchupEnabled {
		writeError(w, http.StatusForbidden, "catchup_disabled", "catchup is disabled")
		return
	}
	ch, ok := s.channel(w, r, sess)
	if !ok {
		return
	}
	q := r.URL.Query()

	start, err := strconv.ParseInt(q.Get("start"), 10, 64)
	if err != nil {
		writeBadRequest(w, "start must be epoch seconds")
		return
	}
	stop := int64(0)
	if raw := q.Get("stop"); raw != "" {
		if stop, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeBadRequest(w, "stop must be epoch seconds")
			return
		}
	}
	catchupID := q.Get("catchup_id")

	if stop == 0 {
		key := sess.ResolveKey(ch)
		found := false
		for _, p := range sess.Guide().Index[key] {
			if p.Start == start {
				stop = p.Stop
				if catchupID == "" {
					catchupID = p.CatchupID
				}
				found = true
				break
			}
		}
		if !found {
			writeNotFound(w, "no programme starts at "+strconv.FormatInt(start, 10))
			return
		}
	}
	if stop <= start {
		writeBadRequest(w, "stop must be after start")
		return
	}

	startT, stopT := time.Unix(start, 0), time.Unix(stop, 0)
	res := s.deps.Resolver
	url := res.Resolve(ch.URL, ch.Catchup, res.Time(startT), res.Time(stopT), catchupID)
	writeJSON(w, http.StatusOK, catchupResponse{
		Channel: ch.Name,
		Mode:    ch.Catchup.Mode,
		Start:   startT.UTC(),
		Stop:    stopT.UTC(),
		URL:     url,
	})
}

// handleLive applies the now-playing substitution to the channel's stream URL.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w)
	if sess == nil {
		return
	}
	ch, ok := s.channel(w, r, sess)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"channel": ch.Name,
		"url":     s.deps.Resolver.NowURL(ch.URL),
	})
}
