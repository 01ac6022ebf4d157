package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnIsolatedRegistries(t *testing.T) {
	m1 := New(prometheus.NewRegistry())
	m2 := New(prometheus.NewRegistry())

	m1.PayoutsCredited.Inc()
	m1.AdminOperations.WithLabelValues("add_balance", "ok").Inc()

	assert.Equal(t, float64(1), value(t, m1.PayoutsCredited))
	assert.Equal(t, float64(0), value(t, m2.PayoutsCredited))
	assert.Equal(t, float64(1), value(t, m1.AdminOperations.WithLabelValues("add_balance", "ok")))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
