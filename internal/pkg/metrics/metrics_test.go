package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats struct{ sent, dropped, connections int64 }

func (f fixedStats) Stats() (int64, int64, int64) {
	return f.sent, f.dropped, f.connections
}

func TestRegisterNoticeHub(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterNoticeHub(reg, fixedStats{sent: 7, dropped: 2, connections: 3}))

	families, err := reg.Gather()
	require.NoError(t, err)

	got := make(map[string]float64)
	for _, mf := range families {
		require.Len(t, mf.GetMetric(), 1)
		got[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"teledrive_notices_sent_total":       7,
		"teledrive_notices_dropped_total":    2,
		"teledrive_notice_connections_total": 3,
	}, got)

	assert.Error(t, RegisterNoticeHub(reg, fixedStats{}))
}
