package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/logging"
	"stationledger/backend/internal/metrics"
	"stationledger/backend/internal/service"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/store/memory"
)

var at = time.Date(2025, time.April, 1, 22, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*service.Service, *metrics.Recorder) {
	t.Helper()
	repo := memory.NewSeeded()
	rec := metrics.New(prometheus.NewRegistry())
	svc := service.New(repo, nil, service.DefaultPolicy(), service.WithLogger(logging.Discard()), service.WithMetrics(rec))
	return svc, rec
}

func TestRunOnceReordersAndDeposits(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	_, err := svc.PostSafeTransaction(ctx, domain.SafePosting{
		SafeID:      store.DemoSafeID,
		Type:        domain.SafeTxCashFuelSales,
		Amount:      decimal.NewFromInt(720000),
		Timestamp:   at,
		PerformedBy: store.DemoManagerID,
	})
	require.NoError(t, err)
	_, err = svc.PerformDip(ctx, domain.DipRequest{
		TankID:        store.DemoTankDiesel,
		MeasuredLevel: decimal.NewFromInt(1500),
		PerformedBy:   store.DemoManagerID,
		Timestamp:     at,
	})
	require.NoError(t, err)

	sweeper := NewSweeper(svc, Config{
		Stations: []string{store.DemoStationID, "st-missing"},
		BankID:   store.DemoBankID,
		Operator: "system-sweeper",
	}, logging.Discard(), rec)
	sweeper.RunOnce(ctx, at.Add(time.Minute))

	assert.Equal(t, float64(1), testutil.ToFloat64(rec.SweepRuns.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.SweepRuns.WithLabelValues("error")))

	statement, err := svc.VerifySafe(ctx, store.DemoStationID)
	require.NoError(t, err)
	assert.True(t, statement.Safe.CurrentBalance.Equal(decimal.NewFromInt(50000)))

	report, err := svc.CheckInventory(ctx, domain.InventoryCheckRequest{StationID: store.DemoStationID, Timestamp: at.Add(2 * time.Minute)})
	require.NoError(t, err)
	for _, status := range report.Tanks {
		assert.False(t, status.Low, status.Tank.ID)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	svc, rec := newService(t)
	sweeper := NewSweeper(svc, Config{
		Stations: []string{store.DemoStationID},
		Operator: "system-sweeper",
		Interval: 10 * time.Millisecond,
	}, logging.Discard(), rec)
	sweeper.now = func() time.Time { return at }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(rec.SweepRuns.WithLabelValues("ok")) >= 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
