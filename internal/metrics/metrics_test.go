package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFlush("users:80", "getUser", 3)
	m.ObserveClientJob("getUser", nil)
	m.ObserveClientJob("getUser", errors.New("boom"))
	m.ObserveAnomaly(AnomalyInvalidLine)
	m.ObserveBatch("getUser", 4, nil, time.Millisecond)
	m.ObserveLoadFailure("missing", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes.WithLabelValues("users:80", "getUser")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientJobs.WithLabelValues("getUser", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Anomalies.WithLabelValues(AnomalyInvalidLine)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ServerJobs.WithLabelValues("getUser", OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ServerJobs.WithLabelValues("missing", OutcomeError)))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "httprpc_client_flushes_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFlush("a", "b", 1)
	m.ObserveWireCall("a", "b", nil, time.Second)
	m.ObserveClientJob("b", nil)
	m.ObserveAnomaly(AnomalyDuplicate)
	m.ObserveRequest("b", "200")
	m.ObserveBatch("b", 1, nil, time.Second)
	m.ObserveLoadFailure("b", 1)
}
