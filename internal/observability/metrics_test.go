package observability

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.JobsFailed.WithLabelValues("retry").Inc()
	m.JobsFailed.WithLabelValues("retry").Inc()
	m.LeasesLost.Inc()

	var metric dto.Metric
	require.NoError(t, m.JobsFailed.WithLabelValues("retry").Write(&metric))
	assert.InDelta(t, 2, metric.GetCounter().GetValue(), 1e-9)

	require.NoError(t, m.LeasesLost.Write(&metric))
	assert.InDelta(t, 1, metric.GetCounter().GetValue(), 1e-9)
}
