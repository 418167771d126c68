package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Sales.WithLabelValues("CASH").Inc()
	r.Sales.WithLabelValues("CASH").Inc()
	r.ShiftsOpened.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Sales.WithLabelValues("CASH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ShiftsOpened))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// a second recorder on a fresh registry must not panic
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
