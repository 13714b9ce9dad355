// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides the Prometheus metrics of the guide service.
// Labels are bounded enums; no session or channel names are used as labels.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Acquisition

	acquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_epg_acquisitions_total",
		Help: "EPG acquisition attempts by result",
	}, []string{"result"}) // result=success|failed|timeout|crash|cancelled|skipped

	acquisitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tvguide_epg_acquisition_duration_seconds",
		Help:    "Wall time of EPG acquisitions including download and decode",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 300},
	})

	acquiring = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvguide_epg_acquiring",
		Help: "Whether an EPG acquisition is in flight (1) or not (0)",
	})

	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tvguide_epg_session_state",
		Help: "Current EPG session state (1 for the active state)",
	}, []string{"state"})

	// Guide contents

	guideChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvguide_epg_channels",
		Help: "Native XMLTV channels in the published guide",
	})
	guideKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvguide_epg_match_keys",
		Help: "Match keys in the published guide",
	})
	guideProgrammes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvguide_epg_programmes",
		Help: "Programme entries in the published guide",
	})
	guideFresh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvguide_epg_fresh",
		Help: "Whether the published guide covers the current time (1) or not (0)",
	})

	// Cache

	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_epg_cache_operations_total",
		Help: "EPG cache operations by outcome",
	}, []string{"outcome"}) // outcome=hit|miss|mismatch|corrupt|saved|save_error|deleted

	// Matching and catchup

	matchResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_channel_match_total",
		Help: "Channel to guide key resolutions by winning rule",
	}, []string{"rule"}) // rule=epg_name|tvg_id|tvg_name|tvg_name_underscore|name|none

	catchupResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_catchup_resolve_total",
		Help: "Catchup URL resolutions by mode and outcome",
	}, []string{"mode", "outcome"}) // outcome=template|rebuilt|fallback|unchanged

	// Source downloads

	sourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_epg_source_fetch_total",
		Help: "EPG source fetch attempts by scheme and outcome",
	}, []string{"scheme", "outcome"}) // outcome=success|retry|error

	sourceBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvguide_epg_source_bytes_total",
		Help: "Bytes read from EPG sources",
	})

	// Config

	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_config_reloads_total",
		Help: "Configuration reload attempts by outcome",
	}, []string{"outcome"}) // outcome=applied|invalid|unchanged

	// HTTP

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tvguide_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvguide_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	// Process lifecycle

	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_proc_terminate_total",
		Help: "Signals sent to worker process groups by signal and outcome",
	}, []string{"signal", "outcome"}) // outcome=sent|esrch|error

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvguide_proc_wait_total",
		Help: "Worker process exits observed during termination",
	}, []string{"outcome"}) // outcome=exit0|exit_nonzero|forced_exit0|forced_error
)

// States lists every value reported by SetSessionState.
var States = []string{"idle", "loading_cache", "fresh", "stale", "acquiring", "ready", "failed"}

func RecordAcquisition(result string, d time.Duration) {
	acquisitionsTotal.WithLabelValues(result).Inc()
	if d > 0 {
		acquisitionDuration.Observe(d.Seconds())
	}
}

func SetAcquiring(active bool) { acquiring.Set(boolToFloat(active)) }

// SetSessionState marks state as active and clears all others.
func SetSessionState(state string) {
	for _, s := range States {
		sessionState.WithLabelValues(s).Set(boolToFloat(s == state))
	}
}

// RecordGuide publishes the size of the current guide.
func RecordGuide(channels, keys, programmes int, fresh bool) {
	guideChannels.Set(float64(channels))
	guideKeys.Set(float64(keys))
	guideProgrammes.Set(float64(programmes))
	guideFresh.Set(boolToFloat(fresh))
}

func RecordCache(outcome string) { cacheOperations.WithLabelValues(outcome).Inc() }

func RecordMatch(rule string) { matchResolutions.WithLabelValues(rule).Inc() }

func RecordCatchupResolve(mode, outcome string) {
	catchupResolutions.WithLabelValues(mode, outcome).Inc()
}

func RecordSourceFetch(scheme, outcome string) {
	sourceFetches.WithLabelValues(scheme, outcome).Inc()
}

func AddSourceBytes(n int64) {
	if n > 0 {
		sourceBytes.Add(float64(n))
	}
}

func RecordConfigReload(outcome string) { configReloads.WithLabelValues(outcome).Inc() }

func IncProcTerminate(signal, outcome string) {
	procTerminate.WithLabelValues(signal, outcome).Inc()
}

// HTTPInFlight adjusts the in-flight request gauge by delta.
func HTTPInFlight(delta float64) { httpRequestsInFlight.Add(delta) }

// RecordHTTPRequest observes one served request. route must be a route
// pattern, never a raw path.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func IncProcWait(outcome string) { procWait.WithLabelValues(outcome).Inc() }

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
