package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BidPlaced()
		m.BidRejected("self_outbid")
		m.Transition("won")
		m.Purchase("completed")
		m.Webhook("ok")
		m.ObserveSweep(time.Second, 2)
	})
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.BidPlaced()
	m.BidPlaced()
	m.BidRejected("closed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bidsPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bidsRejected.WithLabelValues("closed")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crate_auction_bids_placed_total 2")
}
