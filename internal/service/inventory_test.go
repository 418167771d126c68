package service

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
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/store/memory"
	"stationledger/backend/internal/topology"
)

func TestPerformDipSetsMeasuredLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dip, err := f.svc.PerformDip(ctx, domain.DipRequest{
		TankID:        store.DemoTankPetrol,
		MeasuredLevel: dec("4990"),
		PerformedBy:   store.DemoManagerID,
		Timestamp:     t0,
	})
	require.NoError(t, err)
	assert.True(t, dip.SystemLevel.Equal(dec("5000")))
	assert.True(t, dip.Variance.Equal(dec("-10")))
	assert.False(t, dip.OverCapacity)
	assert.True(t, f.tank(t, store.DemoTankPetrol).CurrentLevel.Equal(dec("4990")))

	dip, err = f.svc.PerformDip(ctx, domain.DipRequest{
		TankID:        store.DemoTankPetrol,
		MeasuredLevel: dec("14000"),
		PerformedBy:   store.DemoManagerID,
		Timestamp:     t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, dip.OverCapacity)
	assert.True(t, f.tank(t, store.DemoTankPetrol).CurrentLevel.Equal(dec("14000")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DipsOverCapacity))

	_, err = f.svc.PerformDip(ctx, domain.DipRequest{
		TankID:        store.DemoTankPetrol,
		MeasuredLevel: dec("-1"),
		PerformedBy:   store.DemoManagerID,
		Timestamp:     t0.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = f.svc.PerformDip(ctx, domain.DipRequest{
		TankID:        "tank-missing",
		MeasuredLevel: dec("1"),
		PerformedBy:   store.DemoManagerID,
		Timestamp:     t0,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReceiveDeliveryFlagsOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	delivery, err := f.svc.ReceiveDelivery(ctx, domain.DeliveryRequest{
		TankID:     store.DemoTankPetrol,
		Liters:     dec("6000"),
		Reference:  "INV-1",
		ReceivedBy: store.DemoManagerID,
		Timestamp:  t0,
	})
	require.NoError(t, err)
	assert.False(t, delivery.Flagged)
	assert.True(t, delivery.LevelAfter.Equal(dec("11000")))

	delivery, err = f.svc.ReceiveDelivery(ctx, domain.DeliveryRequest{
		TankID:     store.DemoTankPetrol,
		Liters:     dec("3000"),
		ReceivedBy: store.DemoManagerID,
		Timestamp:  t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, delivery.Flagged)
	assert.True(t, delivery.OverflowLiters.Equal(dec("500")))
	assert.True(t, f.tank(t, store.DemoTankPetrol).CurrentLevel.Equal(dec("14000")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DeliveriesFlagged))

	_, err = f.svc.ReceiveDelivery(ctx, domain.DeliveryRequest{
		TankID:     store.DemoTankPetrol,
		Liters:     dec("0"),
		ReceivedBy: store.DemoManagerID,
		Timestamp:  t0,
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestCheckInventoryAutoReorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PerformDip(ctx, domain.DipRequest{
		TankID:        store.DemoTankPetrol,
		MeasuredLevel: dec("1000"),
		PerformedBy:   store.DemoManagerID,
		Timestamp:     t0,
	})
	require.NoError(t, err)

	report, err := f.svc.CheckInventory(ctx, domain.InventoryCheckRequest{
		StationID: store.DemoStationID,
		Timestamp: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, report.Tanks, 2)
	assert.Empty(t, report.Deliveries)
	low := map[string]bool{}
	for _, status := range report.Tanks {
		low[status.Tank.ID] = status.Low
	}
	assert.True(t, low[store.DemoTankPetrol])
	assert.False(t, low[store.DemoTankDiesel])

	_, err = f.svc.CheckInventory(ctx, domain.InventoryCheckRequest{
		StationID:   store.DemoStationID,
		AutoReorder: true,
		Timestamp:   t0.Add(time.Hour),
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput, "auto reorder needs a receiver")

	report, err = f.svc.CheckInventory(ctx, domain.InventoryCheckRequest{
		StationID:   store.DemoStationID,
		AutoReorder: true,
		ReceivedBy:  store.DemoManagerID,
		Timestamp:   t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, report.Deliveries, 1)
	assert.Equal(t, store.DemoTankPetrol, report.Deliveries[0].TankID)
	assert.True(t, report.Deliveries[0].Liters.Equal(dec("9800")))
	assert.False(t, report.Deliveries[0].Flagged)
	for _, status := range report.Tanks {
		assert.False(t, status.Low, status.Tank.ID)
	}
	assert.True(t, f.tank(t, store.DemoTankPetrol).CurrentLevel.Equal(dec("10800")))

	_, err = f.svc.CheckInventory(ctx, domain.InventoryCheckRequest{StationID: "st-missing", Timestamp: t0})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type mapCache struct {
	entries map[string]*domain.StationSnapshot
	deletes int
}

func (c *mapCache) Get(_ context.Context, stationID string) (*domain.StationSnapshot, bool, error) {
	snap, ok := c.entries[stationID]
	return snap, ok, nil
}

func (c *mapCache) Set(_ context.Context, stationID string, value *domain.StationSnapshot, _ time.Duration) error {
	c.entries[stationID] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, stationID string) error {
	c.deletes++
	delete(c.entries, stationID)
	return nil
}

func TestTankWritesRefreshCachedStation(t *testing.T) {
	repo := memory.NewSeeded()
	c := &mapCache{entries: map[string]*domain.StationSnapshot{}}
	logger := logging.Discard()
	svc := New(repo, topology.NewReader(repo, c, time.Hour, logger), DefaultPolicy(),
		WithLogger(logger), WithMetrics(metrics.New(prometheus.NewRegistry())))
	ctx := context.Background()

	level := func() decimal.Decimal {
		t.Helper()
		snap, err := svc.Station(ctx, store.DemoStationID)
		require.NoError(t, err)
		for _, tank := range snap.Tanks {
			if tank.ID == store.DemoTankPetrol {
				return tank.CurrentLevel
			}
		}
		t.Fatalf("tank %s missing from snapshot", store.DemoTankPetrol)
		return decimal.Zero
	}
	require.True(t, level().Equal(dec("5000")))

	_, err := svc.PerformDip(ctx, domain.DipRequest{TankID: store.DemoTankPetrol, MeasuredLevel: dec("4990"), PerformedBy: store.DemoManagerID, Timestamp: t0})
	require.NoError(t, err)
	assert.True(t, level().Equal(dec("4990")))

	_, err = svc.ReceiveDelivery(ctx, domain.DeliveryRequest{TankID: store.DemoTankPetrol, Liters: dec("10"), ReceivedBy: store.DemoManagerID, Timestamp: t0})
	require.NoError(t, err)
	assert.True(t, level().Equal(dec("5000")))

	shift, err := svc.OpenShift(ctx, domain.OpenShiftRequest{StationID: store.DemoStationID, OpenedBy: store.DemoManagerID, Roster: demoRoster(), Timestamp: t0})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, domain.CloseShiftRequest{
		StationID:  store.DemoStationID,
		ShiftID:    shift.Shift.ID,
		ClosedBy:   store.DemoManagerID,
		Timestamp:  t0.Add(8 * time.Hour),
		LitersSold: map[string]decimal.Decimal{store.DemoNozzles[0]: dec("100")},
	})
	require.NoError(t, err)
	assert.True(t, level().Equal(dec("4900")))
	assert.Equal(t, 3, c.deletes)
}
