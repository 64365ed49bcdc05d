package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveUpstream("catalog", "ok", 15*time.Millisecond)
	})

	before := counterValue(t, submissions.WithLabelValues("seat_loss"))
	IncSubmission("seat_loss")
	assert.Equal(t, before+1, counterValue(t, submissions.WithLabelValues("seat_loss")))

	before = counterValue(t, placementFailures.WithLabelValues("off_grid"))
	IncPlacementFailure("off_grid")
	IncPlacementFailure("off_grid")
	assert.Equal(t, before+2, counterValue(t, placementFailures.WithLabelValues("off_grid")))

	IncEligibilityBlocked("no_seats")
	assert.GreaterOrEqual(t, counterValue(t, eligibilityBlocks.WithLabelValues("no_seats")), 1.0)
}
