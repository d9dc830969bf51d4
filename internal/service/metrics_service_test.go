package service

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceQueueDepth(t *testing.T) {
	metrics := NewMetricsService()
	depth := 3
	require.NoError(t, metrics.RegisterQueueDepth("lifecycle-coordinator", func() int { return depth }))

	expected := `
# HELP worker_queue_depth Jobs buffered in a worker queue
# TYPE worker_queue_depth gauge
worker_queue_depth{queue="lifecycle-coordinator"} 3
`
	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "worker_queue_depth"))

	assert.Error(t, metrics.RegisterQueueDepth("lifecycle-coordinator", func() int { return 0 }), "duplicate registration")

	var nilMetrics *MetricsService
	assert.NoError(t, nilMetrics.RegisterQueueDepth("q", func() int { return 0 }))
}
