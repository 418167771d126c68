package simulation

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationledger/backend/internal/logging"
	"stationledger/backend/internal/metrics"
	"stationledger/backend/internal/service"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/store/memory"
)

var start = time.Date(2025, time.February, 1, 6, 0, 0, 0, time.UTC)

func newService() *service.Service {
	repo := memory.NewSeeded()
	return service.New(repo, nil, service.DefaultPolicy(),
		service.WithLogger(logging.Discard()),
		service.WithMetrics(metrics.New(prometheus.NewRegistry())))
}

func TestRunKeepsLedgerConsistent(t *testing.T) {
	svc := newService()
	cfg := DemoConfig(start, 5)
	driver := New(svc, cfg, rand.New(rand.NewPCG(42, 7)), logging.Discard())

	sum, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, sum.Shifts)
	assert.GreaterOrEqual(t, sum.Sales, 10*cfg.MinSales)
	assert.LessOrEqual(t, sum.Sales, 10*cfg.MaxSales)
	assert.Equal(t, 5*2, sum.Dips)
	assert.True(t, sum.SalesTotal.IsPositive())
	assert.True(t, sum.Deposited.IsPositive(), "five days of sales must cross the deposit threshold")

	statement, err := svc.VerifySafe(context.Background(), store.DemoStationID)
	require.NoError(t, err)
	assert.True(t, statement.Safe.CurrentBalance.Equal(sum.FinalBalance))
	assert.Len(t, statement.Transactions, sum.LedgerRows)

	expected := sum.CashDeclared.Add(sum.CreditRepaid).Sub(sum.Deposited).Sub(sum.Expenses)
	assert.True(t, expected.Equal(sum.FinalBalance), "balance %s, derived %s", sum.FinalBalance, expected)
}

func TestRunIsDeterministicForASeed(t *testing.T) {
	run := func() *Summary {
		sum, err := New(newService(), DemoConfig(start, 2), rand.New(rand.NewPCG(1, 2)), logging.Discard()).Run(context.Background())
		require.NoError(t, err)
		return sum
	}
	a, b := run(), run()
	assert.Equal(t, a.Sales, b.Sales)
	assert.True(t, a.SalesTotal.Equal(b.SalesTotal))
	assert.True(t, a.FinalBalance.Equal(b.FinalBalance))
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := DemoConfig(start, 0)
	_, err := New(newService(), cfg, nil, logging.Discard()).Run(context.Background())
	assert.Error(t, err)

	cfg = DemoConfig(start, 1)
	cfg.StationID = "st-missing"
	_, err = New(newService(), cfg, nil, logging.Discard()).Run(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
