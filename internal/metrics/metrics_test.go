package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestSubscriberConnectedTracksGauge(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.SubscriberConnected()
	m.SubscriberConnected()
	m.SubscriberDisconnected()

	require.Equal(t, float64(1), gaugeValue(t, m.subscribersConnected))
}

func TestPublicationForwardedIncrementsCounter(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.PublicationForwarded()
	m.PublicationForwarded()

	require.Equal(t, float64(2), counterValue(t, m.publicationsForward))
}

func TestDuplicateIdentityRejectedIncrementsCounter(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.DuplicateIdentityRejected()

	require.Equal(t, float64(1), counterValue(t, m.duplicateIdentities))
}
