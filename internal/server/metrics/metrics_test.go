package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAuthEvent("login", OutcomeSuccess)
	m.RecordSwept(2)
	m.RecordRequest("/auth/login", "POST", "200", 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	registered := make(map[string]bool)
	for _, f := range families {
		registered[f.GetName()] = true
	}
	for _, name := range []string{
		"authkeeper_auth_events_total",
		"authkeeper_sessions_swept_total",
		"authkeeper_http_requests_total",
		"authkeeper_http_request_duration_seconds",
	} {
		assert.True(t, registered[name], "metric %q should be registered", name)
	}
}

func TestRecordAuthEvent_Increments(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAuthEvent("refresh", OutcomeInvalidToken)
	m.RecordAuthEvent("refresh", OutcomeInvalidToken)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthEvents.WithLabelValues("refresh", OutcomeInvalidToken)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AuthEvents.WithLabelValues("refresh", OutcomeSuccess)))
}

func TestRecordSwept_IgnoresZero(t *testing.T) {
	m := New(nil)

	m.RecordSwept(0)
	m.RecordSwept(5)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.SessionsSwept))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.RecordAuthEvent("login", OutcomeError)
	m.RecordSwept(1)
	m.RecordRequest("/", "GET", "200", time.Millisecond)
}
