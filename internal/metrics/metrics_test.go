// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestSetSessionStateIsExclusive(t *testing.T) {
	SetSessionState("acquiring")
	for _, s := range States {
		want := 0.0
		if s == "acquiring" {
			want = 1
		}
		assert.Equal(t, want, getGaugeValue(t, sessionState.WithLabelValues(s)), s)
	}

	SetSessionState("ready")
	assert.Equal(t, 0.0, getGaugeValue(t, sessionState.WithLabelValues("acquiring")))
	assert.Equal(t, 1.0, getGaugeValue(t, sessionState.WithLabelValues("ready")))
}

func TestRecordGuide(t *testing.T) {
	RecordGuide(3, 5, 42, true)
	assert.Equal(t, 3.0, getGaugeValue(t, guideChannels))
	assert.Equal(t, 5.0, getGaugeValue(t, guideKeys))
	assert.Equal(t, 42.0, getGaugeValue(t, guideProgrammes))
	assert.Equal(t, 1.0, getGaugeValue(t, guideFresh))

	RecordGuide(0, 0, 0, false)
	assert.Equal(t, 0.0, getGaugeValue(t, guideFresh))
}

func TestCountersIncrement(t *testing.T) {
	before := getCounterValue(t, acquisitionsTotal.WithLabelValues("success"))
	RecordAcquisition("success", 2*time.Second)
	assert.Equal(t, before+1, getCounterValue(t, acquisitionsTotal.WithLabelValues("success")))

	before = getCounterValue(t, cacheOperations.WithLabelValues("hit"))
	RecordCache("hit")
	assert.Equal(t, before+1, getCounterValue(t, cacheOperations.WithLabelValues("hit")))

	before = getCounterValue(t, sourceBytes)
	AddSourceBytes(-5)
	AddSourceBytes(100)
	assert.Equal(t, before+100, getCounterValue(t, sourceBytes))
}

func TestPromhttpExposure(t *testing.T) {
	RecordCatchupResolve("xc", "rebuilt")
	IncProcTerminate("SIGTERM", "sent")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, `tvguide_catchup_resolve_total{mode="xc",outcome="rebuilt"}`))
	assert.True(t, strings.Contains(out, `tvguide_proc_terminate_total{outcome="sent",signal="SIGTERM"}`))
}
