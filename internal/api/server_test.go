// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvguide/internal/catchup"
	"github.com/ManuGH/tvguide/internal/epg"
	"github.com/ManuGH/tvguide/internal/jobs"
	"github.com/ManuGH/tvguide/internal/playlist"
	"github.com/ManuGH/tvguide/internal/worker"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type staticRunner struct{}

func (staticRunner) Run(context.Context, worker.Request, func(string)) (*epg.Guide, error) {
	g := epg.NewGuide()
	g.Aliases["ard.de"] = []string{"Das Erste"}
	g.Icons["das erste"] = "http://img/ard.png"
	g.Index["das erste"] = []epg.Programme{
		{Start: testNow.Add(-3 * time.Hour).Unix(), Stop: testNow.Add(-2 * time.Hour).Unix(), Title: "Morgen", CatchupID: "c1"},
		{Start: testNow.Add(-time.Hour).Unix(), Stop: testNow.Add(time.Hour).Unix(), Title: "Mittag"},
		{Start: testNow.Add(time.Hour).Unix(), Stop: testNow.Add(2 * time.Hour).Unix(), Title: "Abend"},
	}
	return g, nil
}

func testChannels() []playlist.Channel {
	return []playlist.Channel{
		{Name: "ARD HD", TvgID: "ard.de", URL: "http://stream/ard", Catchup: catchup.Normalize(catchup.Config{})},
		{Name: "Local", URL: "http://stream/local?x=1", Catchup: catchup.Normalize(catchup.Config{})},
	}
}

func newTestServer(t *testing.T, runner jobs.Runner, catchupOn bool) (*Server, *jobs.Session) {
	t.Helper()
	sess := jobs.NewSession(jobs.Options{
		Channels: testChannels(),
		Settings: jobs.Settings{
			Source:         "http://example.com/guide.xml",
			CatchupEnabled: catchupOn,
			WorkerTimeout:  5 * time.Second,
		},
		Runner: runner,
		Clock:  func() time.Time { return testNow },
	})
	t.Cleanup(sess.Close)
	require.NoError(t, sess.Start())

	srv := New(Deps{
		Session:          func() *jobs.Session { return sess },
		Resolver:         &catchup.Resolver{Now: func() time.Time { return testNow }, Location: time.UTC},
		RefreshPerMinute: 1,
		Clock:            func() time.Time { return testNow },
		Version:          "test",
	})
	return srv, sess
}

func settled(t *testing.T, sess *jobs.Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !sess.Acquiring() && sess.State() == jobs.StateReady
	}, 5*time.Second, 5*time.Millisecond)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, staticRunner{}, true)

	rec := do(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tvguide_http_requests_in_flight")
}

func TestStatus(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	rec := do(t, srv, http.MethodGet, "/api/v1/epg/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, jobs.StatusLoaded, body["status"])
	assert.EqualValues(t, 2, body["channels"])
	assert.EqualValues(t, 7, body["retention_days"])
}

func TestChannels(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	rec := do(t, srv, http.MethodGet, "/api/v1/epg/channels")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]channelView](t, rec)
	require.Len(t, got, 2)

	assert.Equal(t, "das erste", got[0].Key)
	assert.True(t, got[0].HasGuide)
	assert.True(t, got[0].Catchup)
	assert.Equal(t, "http://img/ard.png", got[0].Logo)
	require.NotNil(t, got[0].Now)
	assert.Equal(t, "Mittag", got[0].Now.Title)
	assert.Equal(t, 50, *got[0].Now.Progress)

	assert.Equal(t, "local", got[1].Key)
	assert.False(t, got[1].HasGuide)
	assert.Nil(t, got[1].Now)
	// Channels without catchup attributes fall back to shift mode.
	assert.True(t, got[1].Catchup)
}

func TestChannelsCatchupFollowsSetting(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, false)
	settled(t, sess)

	rec := do(t, srv, http.MethodGet, "/api/v1/epg/channels")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, ch := range decode[[]channelView](t, rec) {
		assert.False(t, ch.Catchup, ch.Name)
	}
}

func TestProgrammes(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	tests := []struct {
		query  string
		code   int
		titles []string
	}{
		{"channel=ARD+HD", http.StatusOK, []string{"Abend"}},
		{"channel=ARD+HD&view=current", http.StatusOK, []string{"Mittag"}},
		{"channel=ARD+HD&view=archive", http.StatusOK, []string{"Morgen"}},
		{"channel=ARD+HD&view=all", http.StatusOK, []string{"Morgen", "Mittag", "Abend"}},
		{"channel=Local&view=all", http.StatusOK, nil},
		{"channel=ARD+HD&view=bogus", http.StatusBadRequest, nil},
		{"channel=ARD+HD&limit=-1", http.StatusBadRequest, nil},
		{"channel=Nope", http.StatusNotFound, nil},
		{"", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/v1/epg/programmes?"+tt.query)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
				return
			}
			body := decode[struct {
				Programmes []programmeView `json:"programmes"`
			}](t, rec)
			var titles []string
			for _, p := range body.Programmes {
				titles = append(titles, p.Title)
			}
			assert.Equal(t, tt.titles, titles)
		})
	}
}

func TestCatchup(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	start := testNow.Add(-3 * time.Hour).Unix()
	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/catchup?channel=ARD+HD&start=%d", start))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[catchupResponse](t, rec)
	assert.Equal(t, catchup.ModeShift, body.Mode)
	assert.Equal(t, fmt.Sprintf("http://stream/ard?utc=%d&lutc=%d", start, testNow.Unix()), body.URL)
	assert.True(t, testNow.Add(-2*time.Hour).Equal(body.Stop))

	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/catchup?channel=ARD+HD&start=%d", start+1))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/catchup?channel=ARD+HD&start=%d&stop=%d", start, start))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/catchup?channel=ARD+HD&start=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatchupDisabled(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, false)
	settled(t, sess)

	rec := do(t, srv, http.MethodGet, "/api/v1/catchup?channel=ARD+HD&start=1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "catchup_disabled", decode[errorResponse](t, rec).Error)
}

func TestLive(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	rec := do(t, srv, http.MethodGet, "/api/v1/live?channel=Local")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://stream/local?x=1", decode[map[string]string](t, rec)["url"])
}

func TestRefreshIsRateLimited(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	rec := do(t, srv, http.MethodPost, "/api/v1/epg/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	settled(t, sess)

	rec = do(t, srv, http.MethodPost, "/api/v1/epg/refresh")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", decode[errorResponse](t, rec).Error)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestPlaylist(t *testing.T) {
	srv, sess := newTestServer(t, staticRunner{}, true)
	settled(t, sess)

	rec := do(t, srv, http.MethodGet, "/playlist.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/x-mpegurl", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "#EXTM3U\n"))
	assert.Contains(t, rec.Body.String(), `tvg-id="das erste"`)
}

func TestNoSession(t *testing.T) {
	srv := New(Deps{Session: func() *jobs.Session { return nil }})
	rec := do(t, srv, http.MethodGet, "/api/v1/epg/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovererReturnsJSON(t *testing.T) {
	srv := New(Deps{Session: func() *jobs.Session { panic("boom") }})
	rec := do(t, srv, http.MethodGet, "/api/v1/epg/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[errorResponse](t, rec).Error)
}
