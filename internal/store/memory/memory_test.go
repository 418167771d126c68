package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

var t0 = time.Date(2025, time.March, 3, 6, 0, 0, 0, time.UTC)

func TestWithTxDiscardsWritesOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q store.Queries) error {
		require.NoError(t, q.UpdateTankLevel(ctx, store.DemoTankPetrol, decimal.NewFromInt(1)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	var tank *domain.Tank
	require.NoError(t, s.View(ctx, func(q store.Queries) error {
		var err error
		tank, err = q.GetTank(ctx, store.DemoTankPetrol)
		return err
	}))
	assert.True(t, tank.CurrentLevel.Equal(decimal.NewFromInt(5000)))
}

func TestWithTxCancelledContextRollsBack(t *testing.T) {
	s := NewSeeded()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTx(ctx, func(q store.Queries) error {
		cancel()
		return q.UpdateTankLevel(ctx, store.DemoTankPetrol, decimal.Zero)
	})
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.View(context.Background(), func(q store.Queries) error {
		tank, err := q.GetTank(context.Background(), store.DemoTankPetrol)
		require.NoError(t, err)
		assert.True(t, tank.CurrentLevel.Equal(decimal.NewFromInt(5000)))
		return nil
	}))
}

func TestCreateShiftRejectsSecondOpenShift(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	open := func(id string) error {
		return s.WithTx(ctx, func(q store.Queries) error {
			return q.CreateShift(ctx, domain.Shift{ID: id, StationID: store.DemoStationID, Status: domain.ShiftStatusOpen, StartTime: t0})
		})
	}

	require.NoError(t, open("shift-a"))
	require.ErrorIs(t, open("shift-b"), store.ErrConflict)

	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		shift, err := q.GetShift(ctx, "shift-a")
		require.NoError(t, err)
		shift.Status = domain.ShiftStatusClosed
		return q.UpdateShift(ctx, *shift)
	}))
	require.NoError(t, open("shift-b"))
}

func TestSwapSafeBalanceDetectsStaleBalance(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithTx(ctx, func(q store.Queries) error {
		return q.SwapSafeBalance(ctx, store.DemoSafeID, decimal.NewFromInt(10), decimal.NewFromInt(20), t0)
	})
	require.ErrorIs(t, err, store.ErrIntegrity)

	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		return q.SwapSafeBalance(ctx, store.DemoSafeID, decimal.Zero, decimal.NewFromInt(20), t0)
	}))
}

func TestPriceAtPicksLatestEffectiveRow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		return q.CreatePrice(ctx, domain.Price{ID: "price-lp92-2", FuelID: store.DemoFuelPetrol, PricePerLiter: decimal.NewFromInt(399), EffectiveDate: t0})
	}))

	require.NoError(t, s.View(ctx, func(q store.Queries) error {
		before, err := q.PriceAt(ctx, store.DemoFuelPetrol, t0.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, "370", before.PricePerLiter.String())

		at, err := q.PriceAt(ctx, store.DemoFuelPetrol, t0)
		require.NoError(t, err)
		assert.Equal(t, "399", at.PricePerLiter.String())

		_, err = q.PriceAt(ctx, store.DemoFuelPetrol, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}

func TestLastMeterReadingUsesLatestClosedAssignment(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	closedAt := t0.Add(8 * time.Hour)
	end := decimal.RequireFromString("24.32")

	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		if err := q.CreateShift(ctx, domain.Shift{ID: "shift-a", StationID: store.DemoStationID, Status: domain.ShiftStatusClosed, StartTime: t0}); err != nil {
			return err
		}
		return q.CreateAssignment(ctx, domain.ShiftAssignment{
			ID:                "asg-a",
			ShiftID:           "shift-a",
			NozzleID:          store.DemoNozzles[0],
			StartMeterReading: decimal.Zero,
			EndMeterReading:   &end,
			Status:            domain.AssignmentClosed,
			ClosedAt:          &closedAt,
		})
	}))

	require.NoError(t, s.View(ctx, func(q store.Queries) error {
		reading, err := q.LastMeterReading(ctx, store.DemoNozzles[0])
		require.NoError(t, err)
		assert.True(t, reading.Equal(end))

		untouched, err := q.LastMeterReading(ctx, store.DemoNozzles[1])
		require.NoError(t, err)
		assert.True(t, untouched.IsZero())
		return nil
	}))
}

func TestLastMeterReadingFollowsCreationOrder(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	first := decimal.RequireFromString("100")
	second := decimal.RequireFromString("150")
	late := t0.Add(8 * time.Hour)
	early := t0.Add(5 * time.Hour)

	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		for i, asg := range []struct {
			end      *decimal.Decimal
			closedAt *time.Time
		}{{&first, &late}, {&second, &early}} {
			shiftID := fmt.Sprintf("shift-%d", i)
			if err := q.CreateShift(ctx, domain.Shift{ID: shiftID, StationID: store.DemoStationID, Status: domain.ShiftStatusClosed, StartTime: t0}); err != nil {
				return err
			}
			if err := q.CreateAssignment(ctx, domain.ShiftAssignment{
				ID:              fmt.Sprintf("asg-%d", i),
				ShiftID:         shiftID,
				NozzleID:        store.DemoNozzles[0],
				EndMeterReading: asg.end,
				Status:          domain.AssignmentClosed,
				ClosedAt:        asg.closedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(q store.Queries) error {
		reading, err := q.LastMeterReading(ctx, store.DemoNozzles[0])
		require.NoError(t, err)
		assert.True(t, reading.Equal(second), "got %s", reading)

		last, err := q.LastClosedShift(ctx, store.DemoStationID)
		assert.ErrorIs(t, err, store.ErrNotFound, "shifts without an end time are ignored")
		assert.Nil(t, last)
		return nil
	}))
}
