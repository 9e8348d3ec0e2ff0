package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Command("ActivatePortal")
	m.Command("ActivatePortal")
	m.ConnectResult(true)
	m.ConnectResult(false)
	m.ConnectResult(false)
	m.PortalStarts.Inc()
	m.AccessPoints.Set(4)
	m.SetPortalActive(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("ActivatePortal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PortalStarts))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.AccessPoints))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PortalActive))

	m.SetPortalActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PortalActive))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestNew_Unregistered(t *testing.T) {
	m := New(nil)
	m.Command("Exit")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("Exit")))
}
