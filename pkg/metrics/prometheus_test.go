package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordCacheLookup("bars", true)
	r.RecordCacheLookup("bars", true)
	r.RecordCacheLookup("bars", false)
	r.RecordProviderRequest("rate_limited")
	r.RecordScan(7, 2)
	r.RecordLastPrice("AAPL", 187.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("bars", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("bars", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerRequests.WithLabelValues("rate_limited")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.scanSymbols.WithLabelValues("succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.scanSymbols.WithLabelValues("failed")))
	assert.Equal(t, 187.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("AAPL")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
