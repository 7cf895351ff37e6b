package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MikhailWahib/minicask/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func getHistogramCount(o prometheus.Observer) uint64 {
	m := &dto.Metric{}
	_ = o.(prometheus.Metric).Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestObserveOperation(t *testing.T) {
	counter := metrics.Operations.WithLabelValues("set", metrics.ResultOK)
	hist := metrics.OperationLatency.WithLabelValues("set")
	initialCount := getCounterValue(counter)
	initialObs := getHistogramCount(hist)

	metrics.ObserveOperation("set", metrics.ResultOK, 5*time.Millisecond)
	metrics.ObserveOperation("set", metrics.ResultOK, time.Millisecond)

	assert.Equal(t, initialCount+2, getCounterValue(counter))
	assert.Equal(t, initialObs+2, getHistogramCount(hist))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	metrics.SegmentRotations.Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "minicask_segment_rotations_total"))
}
