package stats

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	require.NotNil(t, su, "expected StatsUpdater to be non-nil")
	require.NotNil(t, su.updateChan, "expected updateChan to be initialized")

	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler registered for GET /debug/vars")

	su.RegisterMetric("NumDeliveries")
	su.Run()
	defer su.Stop()

	su.Incr("NumDeliveries")
	su.Incr("NumDeliveries")
	su.Decr("NumDeliveries")

	assert.Eventually(t, func() bool {
		return su.vars.Get("NumDeliveries").String() == "1"
	}, time.Second, 10*time.Millisecond, "expected counter to settle at 1")
}
