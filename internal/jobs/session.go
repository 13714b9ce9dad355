// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/tvguide/internal/catchup"
	"github.com/ManuGH/tvguide/internal/epg"
	"github.com/ManuGH/tvguide/internal/epgcache"
	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/matcher"
	"github.com/ManuGH/tvguide/internal/metrics"
	"github.com/ManuGH/tvguide/internal/playlist"
	"github.com/ManuGH/tvguide/internal/worker"
)

// Session is the acquisition state of one loaded playlist. Construct one per
// playlist load and Close it on switch or exit.
type Session struct {
	id         string
	logger     zerolog.Logger
	runner     Runner
	store      *epgcache.Store
	clock      func() time.Time
	channels   []playlist.Channel
	playlistID string
	matcher    *matcher.Matcher

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	busy  atomic.Bool
	guide atomic.Pointer[epg.Guide]
	fresh atomic.Bool

	mu          sync.Mutex
	settings    Settings
	limiter     *rate.Limiter
	state       State
	status      string
	progress    string
	failed      bool
	closed      bool
	generatedAt time.Time
	cancel      context.CancelFunc // in-flight acquisition
	done        chan struct{}      // closed when the in-flight acquisition ends
}

// NewSession prepares a session. Nothing runs until Start.
func NewSession(opts Options) *Session {
	id := uuid.NewString()
	ctx, stop := context.WithCancel(xglog.ContextWithSessionID(context.Background(), id))

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	pid := opts.PlaylistIdentity
	if pid == "" {
		pid = playlist.Identity(opts.Channels)
	}

	s := &Session{
		id:         id,
		logger:     xglog.WithComponentFromContext(ctx, "jobs"),
		runner:     opts.Runner,
		store:      opts.Store,
		clock:      clock,
		channels:   opts.Channels,
		playlistID: pid,
		matcher:    matcher.New(),
		ctx:        ctx,
		stop:       stop,
		settings:   opts.Settings,
		limiter:    newLimiter(opts.Settings.AutoRefreshInterval),
		state:      StateIdle,
	}
	s.guide.Store(epg.NewGuide())
	metrics.SetSessionState(string(StateIdle))
	return s
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(0, 0)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// ID returns the session identifier attached to every log line.
func (s *Session) ID() string { return s.id }

// Start loads the cached generation and, when it is missing or stale and
// acquisition is allowed, triggers a background acquisition. It never waits
// for the worker.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	st := s.settings
	s.mu.Unlock()

	s.setState(StateLoadingCache, StatusLoadingCache)
	now := s.clock()

	haveCache := false
	if st.NoCache {
		s.deleteCache("nocache")
	} else if g, generated, ok := s.loadCache(st); ok {
		haveCache = true
		fresh := epg.IsFresh(g.Index, now)
		s.publish(g, fresh, generated)
		if fresh {
			s.setState(StateFresh, StatusLoaded)
			s.setState(StateReady, StatusLoaded)
			return nil
		}
		s.setState(StateStale, StatusOutdated)
	}

	switch {
	case st.Source == "":
		s.setState(StateReady, StatusNoSource)
	case !st.autoAcquire():
		if haveCache {
			s.setState(StateReady, StatusOutdated)
		} else {
			s.setState(StateReady, StatusDisabled)
		}
	default:
		s.mu.Lock()
		s.limiter.AllowN(now, 1)
		s.mu.Unlock()
		s.acquire("start")
	}
	return nil
}

func (s *Session) loadCache(st Settings) (*epg.Guide, time.Time, bool) {
	if s.store == nil {
		return nil, time.Time{}, false
	}
	rec, err := s.store.Load(s.identity(st))
	if err != nil {
		ev := s.logger.Debug()
		if !errors.Is(err, epgcache.ErrMiss) && !errors.Is(err, epgcache.ErrIdentityMismatch) {
			ev = s.logger.Warn()
		}
		ev.Err(err).Str(xglog.FieldEvent, "cache.miss").Msg("no usable guide cache")
		return nil, time.Time{}, false
	}
	g := rec.Guide()
	g.Sort()
	s.logger.Info().
		Str(xglog.FieldEvent, "cache.hit").
		Time("generated_at", rec.GeneratedAt).
		Int("keys", len(g.Index)).
		Msg("loaded guide from cache")
	return g, rec.GeneratedAt, true
}

func (s *Session) deleteCache(reason string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(); err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "cache.delete_failed").Msg("failed to delete guide cache")
		return
	}
	s.logger.Debug().Str(xglog.FieldEvent, "cache.deleted").Str("reason", reason).Msg("guide cache deleted")
}

func (s *Session) identity(st Settings) epgcache.Identity {
	return epgcache.Identity{
		Playlist:      s.playlistID,
		Source:        st.Source,
		OffsetHours:   st.OffsetHours,
		RetentionDays: s.retentionDays(st),
	}
}

func (s *Session) retentionDays(st Settings) int {
	return catchup.RetentionDays(playlist.CatchupConfigs(s.channels), st.CatchupEnabled)
}

// acquire starts a worker unless one is already running. It reports whether
// a new acquisition was started.
func (s *Session) acquire(reason string) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Debug().
			Str(xglog.FieldEvent, "acquire.skipped").
			Str("reason", reason).
			Msg("acquisition already in flight")
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.busy.Store(false)
		return false
	}
	st := s.settings
	timeout := st.WorkerTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(xglog.ContextWithJobID(s.ctx, uuid.NewString()), timeout)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.progress = ""
	s.wg.Add(1)
	s.mu.Unlock()

	s.setState(StateAcquiring, StatusUpdating)
	metrics.SetAcquiring(true)

	go func() {
		defer s.wg.Done()
		s.run(ctx, st, reason)
		cancel()

		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		s.busy.Store(false)
		metrics.SetAcquiring(false)
		close(done)
	}()
	return true
}

func (s *Session) run(ctx context.Context, st Settings, reason string) {
	logger := xglog.WithContext(ctx, s.logger)
	started := s.clock()
	t0 := time.Now()
	id := s.identity(st)

	logger.Info().
		Str(xglog.FieldEvent, "acquire.start").
		Str("reason", reason).
		Int("retention_days", id.RetentionDays).
		Float64("offset_hours", st.OffsetHours).
		Msg("starting guide acquisition")

	req := worker.Request{
		Source:        st.Source,
		OffsetHours:   st.OffsetHours,
		RetentionDays: id.RetentionDays,
		Now:           started,
		Timezone:      st.Timezone,
		MaxBytes:      st.MaxBytes,
		UserAgent:     st.UserAgent,
	}
	g, err := s.runner.Run(ctx, req, s.setProgress)
	elapsed := time.Since(t0)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.RecordAcquisition("cancelled", elapsed)
			logger.Info().Str(xglog.FieldEvent, "acquire.cancelled").Msg("guide acquisition cancelled")
			s.setState(StateReady, s.restingStatus())
			return
		}
		metrics.RecordAcquisition(failureResult(err), elapsed)
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "acquire.failed").
			Dur("elapsed", elapsed).
			Msg("guide acquisition failed")
		s.mu.Lock()
		s.failed = true
		s.mu.Unlock()
		s.setState(StateFailed, StatusError)
		s.setState(StateReady, StatusError)
		return
	}

	// A cancelled job no longer owns the published generation or the cache
	// file, even if the runner finished.
	if errors.Is(ctx.Err(), context.Canceled) {
		metrics.RecordAcquisition("cancelled", elapsed)
		logger.Info().Str(xglog.FieldEvent, "acquire.discarded").Msg("cancelled acquisition result discarded")
		s.setState(StateReady, s.restingStatus())
		return
	}

	now := s.clock()
	g.Sort()
	fresh := epg.IsFresh(g.Index, now)
	s.publish(g, fresh, now)

	if !st.NoCache && s.store != nil {
		if err := s.store.Save(id, epgcache.NewRecord(id, g, fresh, now)); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "cache.save_failed").Msg("failed to persist guide")
		}
	}

	stats := g.Stats()
	metrics.RecordAcquisition("success", elapsed)
	logger.Info().
		Str(xglog.FieldEvent, "acquire.done").
		Int("channels", stats.Channels).
		Int("keys", stats.Keys).
		Int("programmes", stats.Programmes).
		Bool("fresh", fresh).
		Dur("elapsed", elapsed).
		Msg("guide acquisition finished")
	s.setState(StateReady, StatusLoaded)
}

func failureResult(err error) string {
	switch {
	case errors.Is(err, worker.ErrWorkerTimeout):
		return "timeout"
	case errors.Is(err, worker.ErrWorkerCrash):
		return "crash"
	default:
		return "failed"
	}
}

// publish swaps in a new generation. Readers see the old or the new guide,
// never a mix.
func (s *Session) publish(g *epg.Guide, fresh bool, generated time.Time) {
	s.guide.Store(g)
	s.fresh.Store(fresh)
	s.matcher.Reset()

	s.mu.Lock()
	s.generatedAt = generated
	s.mu.Unlock()

	stats := g.Stats()
	metrics.RecordGuide(stats.Channels, stats.Keys, stats.Programmes, fresh)
}

func (s *Session) restingStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.failed:
		return StatusError
	case !s.fresh.Load():
		return StatusOutdated
	default:
		return StatusLoaded
	}
}

func (s *Session) setState(next State, status string) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.status = status
	s.mu.Unlock()

	metrics.SetSessionState(string(next))
	if prev != next {
		s.logger.Debug().
			Str(xglog.FieldEvent, "session.state").
			Str(xglog.FieldOldState, string(prev)).
			Str(xglog.FieldNewState, string(next)).
			Msg("session state changed")
	}
}

func (s *Session) setProgress(msg string) {
	s.mu.Lock()
	s.progress = msg
	s.mu.Unlock()
}

// Check re-evaluates freshness of the live generation at now. When it has
// gone stale, auto refresh is enabled, the last acquisition did not fail and
// the refresh limiter allows it, a new acquisition starts. It reports
// whether one did.
func (s *Session) Check(now time.Time) bool {
	g := s.guide.Load()
	fresh := epg.IsFresh(g.Index, now)
	if fresh != s.fresh.Swap(fresh) {
		stats := g.Stats()
		metrics.RecordGuide(stats.Channels, stats.Keys, stats.Programmes, fresh)
	}
	if fresh || s.busy.Load() {
		return false
	}

	s.mu.Lock()
	st := s.settings
	blocked := s.failed || s.closed || st.AutoRefreshInterval <= 0 || !st.autoAcquire()
	if !blocked && s.state == StateReady {
		s.status = StatusOutdated
	}
	allowed := !blocked && s.limiter.AllowN(now, 1)
	s.mu.Unlock()

	if !allowed {
		return false
	}
	return s.acquire("stale")
}

// ForceRefresh kills any in-flight worker and waits for it, deletes the disk
// cache, clears the failure flag and acquires unconditionally.
func (s *Session) ForceRefresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.deleteCache("forced")
	s.mu.Lock()
	s.failed = false
	source := s.settings.Source
	s.mu.Unlock()

	if source == "" {
		return ErrNoSource
	}
	if !s.acquire("forced") {
		return ErrBusy
	}
	return nil
}

// ApplySettings stores new settings. A change that invalidates the cached
// generation is handled like ForceRefresh. It reports whether a refresh was
// triggered.
func (s *Session) ApplySettings(ctx context.Context, next Settings) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	prev := s.settings
	s.settings = next
	if prev.AutoRefreshInterval != next.AutoRefreshInterval {
		s.limiter = newLimiter(next.AutoRefreshInterval)
	}
	s.mu.Unlock()

	if next.NoCache && !prev.NoCache {
		s.deleteCache("nocache")
	}
	if !prev.invalidates(next) {
		return false, nil
	}

	s.logger.Info().Str(xglog.FieldEvent, "session.settings_invalidate").Msg("settings change invalidates guide")
	if err := s.ForceRefresh(ctx); err != nil {
		if errors.Is(err, ErrNoSource) {
			s.publish(epg.NewGuide(), false, time.Time{})
			s.setState(StateReady, StatusNoSource)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Wait blocks until no acquisition is in flight or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done == nil {
			if !s.busy.Load() {
				return nil
			}
			// Between the CAS and the done channel being published.
			select {
			case <-time.After(10 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close kills any in-flight worker and waits for every session goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	s.setState(StateIdle, "")
	s.logger.Debug().Str(xglog.FieldEvent, "session.closed").Msg("session closed")
}

// State returns the current state machine node.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the user-facing status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Progress returns the latest worker progress message.
func (s *Session) Progress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Failed reports whether the last acquisition failed.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Acquiring reports whether a worker is in flight.
func (s *Session) Acquiring() bool { return s.busy.Load() }

// Guide returns the current generation; never nil.
func (s *Session) Guide() *epg.Guide { return s.guide.Load() }

// Channels returns the playlist the session was built for.
func (s *Session) Channels() []playlist.Channel { return s.channels }

// Settings returns the active settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// RetentionDays returns the decode window in days for the active settings.
func (s *Session) RetentionDays() int { return s.retentionDays(s.Settings()) }

// ResolveKey maps a playlist channel to its match key in the current generation.
func (s *Session) ResolveKey(ch playlist.Channel) string {
	return s.matcher.Resolve(ch, s.guide.Load())
}

// NowPlaying returns the programme airing on ch at now.
func (s *Session) NowPlaying(ch playlist.Channel, now time.Time) (epg.Programme, bool) {
	g := s.guide.Load()
	return g.Index.Current(s.matcher.Resolve(ch, g), now)
}

// Snapshot returns a consistent status view.
func (s *Session) Snapshot() Snapshot {
	g := s.guide.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Status:      s.status,
		Progress:    s.progress,
		Failed:      s.failed,
		Fresh:       s.fresh.Load(),
		Acquiring:   s.busy.Load(),
		GeneratedAt: s.generatedAt,
		Stats:       g.Stats(),
	}
}
