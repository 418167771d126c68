package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("STATIONLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STATIONLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	migrator, err := NewMigrator(databaseURL, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	s, err := New(context.Background(), databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// seedStation writes a minimal station with its own ids so runs do not
// collide with each other.
func seedStation(t *testing.T, s *Store) (stationID string, safeID string) {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	stationID = fmt.Sprintf("st-it-%d", stamp)
	safeID = fmt.Sprintf("safe-it-%d", stamp)

	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		if err := q.CreateStation(ctx, domain.Station{ID: stationID, OrganizationID: "org-it", Code: fmt.Sprintf("IT%d", stamp), Name: "Integration"}); err != nil {
			return err
		}
		return q.CreateSafe(ctx, domain.Safe{ID: safeID, StationID: stationID, UpdatedAt: time.Now().UTC()})
	}))

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM safe_transactions WHERE safe_id = $1`, safeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM safes WHERE id = $1`, safeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shifts WHERE station_id = $1`, stationID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, stationID)
	})
	return stationID, safeID
}

func TestOpenShiftUniqueIndexRejectsSecondOpenShift(t *testing.T) {
	s := newIntegrationStore(t)
	stationID, _ := seedStation(t, s)
	ctx := context.Background()
	now := time.Now().UTC()

	open := func(id string) error {
		return s.WithTx(ctx, func(q store.Queries) error {
			return q.CreateShift(ctx, domain.Shift{ID: id, StationID: stationID, Number: id, Status: domain.ShiftStatusOpen, StartTime: now, OpenedBy: "it"})
		})
	}

	require.NoError(t, open(stationID+"-a"))
	require.ErrorIs(t, open(stationID+"-b"), store.ErrConflict)
}

func TestSwapSafeBalanceCompareAndSwap(t *testing.T) {
	s := newIntegrationStore(t)
	_, safeID := seedStation(t, s)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.WithTx(ctx, func(q store.Queries) error {
		return q.SwapSafeBalance(ctx, safeID, decimal.NewFromInt(5), decimal.NewFromInt(10), now)
	})
	require.ErrorIs(t, err, store.ErrIntegrity)

	require.NoError(t, s.WithTx(ctx, func(q store.Queries) error {
		if err := q.InsertSafeTransaction(ctx, domain.SafeTransaction{
			ID: safeID + "-tx1", SafeID: safeID, Type: domain.SafeTxAdjustment,
			Amount: decimal.NewFromInt(10), BalanceBefore: decimal.Zero, BalanceAfter: decimal.NewFromInt(10),
			Timestamp: now, PerformedBy: "it",
		}); err != nil {
			return err
		}
		return q.SwapSafeBalance(ctx, safeID, decimal.Zero, decimal.NewFromInt(10), now)
	}))

	require.NoError(t, s.View(ctx, func(q store.Queries) error {
		safe, err := q.GetSafe(ctx, safeID)
		require.NoError(t, err)
		assert.True(t, safe.CurrentBalance.Equal(decimal.NewFromInt(10)))

		rows, err := q.ListSafeTransactions(ctx, safeID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].BalanceAfter.Equal(decimal.NewFromInt(10)))
		return nil
	}))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newIntegrationStore(t)
	_, safeID := seedStation(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q store.Queries) error {
		if err := q.SwapSafeBalance(ctx, safeID, decimal.Zero, decimal.NewFromInt(99), time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(q store.Queries) error {
		safe, err := q.GetSafe(ctx, safeID)
		require.NoError(t, err)
		assert.True(t, safe.CurrentBalance.IsZero())
		return nil
	}))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db", migrateURL("postgres://u:p@localhost:5432/db"))
	assert.Equal(t, "pgx5://localhost/db", migrateURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://localhost/db", migrateURL("pgx5://localhost/db"))
}
