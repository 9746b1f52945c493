package monitor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransfer(t *testing.T) {
	m := NewMetrics("test")
	m.RecordTransfer(Fetched, 2048, 10*time.Millisecond)
	m.RecordTransfer(Fetched, 1024, 0)

	assert.Equal(t, 3072.0, testutil.ToFloat64(m.TransferBytes.WithLabelValues(Fetched)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransferCount.WithLabelValues(Fetched)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TransferCount.WithLabelValues(Served)))
}

func TestDroppedGauge(t *testing.T) {
	m := NewMetrics("test")
	m.DroppedGauge("test", func() int64 { return 7 })

	count, err := testutil.GatherAndCount(m.Registry, "test_gossip_datagrams_dropped")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPeersGauge(t *testing.T) {
	m := NewMetrics("test")
	n := 3
	m.PeersGauge("test", func() int { return n })

	count, err := testutil.GatherAndCount(m.Registry, "test_known_peers")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == "test_known_peers" {
			assert.Equal(t, 3.0, fam.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")
	a.DatagramsReceived.WithLabelValues("PING").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.DatagramsReceived.WithLabelValues("PING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DatagramsReceived.WithLabelValues("PING")))
}
