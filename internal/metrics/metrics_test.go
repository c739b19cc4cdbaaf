package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"go.bryk.io/hive/internal/metrics"
)

func TestRegistryCollectsLabeledCounters(t *testing.T) {
	r, err := metrics.NewRegistry()
	require.NoError(t, err)

	r.PublishTotal.WithLabelValues("news").Inc()
	r.PublishTotal.WithLabelValues("news").Inc()
	r.AckTotal.WithLabelValues("sports").Inc()

	require.InDelta(t, 2, testutil.ToFloat64(r.PublishTotal.WithLabelValues("news")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.AckTotal.WithLabelValues("sports")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(r.AckTotal.WithLabelValues("news")), 0)
}

func TestRegistryGaugesAreSettable(t *testing.T) {
	r, err := metrics.NewRegistry()
	require.NoError(t, err)

	r.QueueReady.WithLabelValues("sports").Set(3)
	r.QueuePending.WithLabelValues("sports").Set(1)
	r.ConsumerCount.WithLabelValues("sports").Set(2)

	require.InDelta(t, 3, testutil.ToFloat64(r.QueueReady.WithLabelValues("sports")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.QueuePending.WithLabelValues("sports")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(r.ConsumerCount.WithLabelValues("sports")), 0)
}

func TestHandlerServesPlainTextExposition(t *testing.T) {
	r, err := metrics.NewRegistry()
	require.NoError(t, err)
	r.PublishTotal.WithLabelValues("news").Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
