package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationledger/backend/internal/domain"
)

func TestNoopTopologyCacheAlwaysMisses(t *testing.T) {
	var c TopologyCache = NoopTopologyCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "st-1", &domain.StationSnapshot{}, time.Minute))
	snap, ok, err := c.Get(ctx, "st-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestRedisTopologyCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("STATIONLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set STATIONLEDGER_TEST_REDIS_ADDR to run redis integration test")
	}
	ctx := context.Background()
	c := NewRedisTopologyCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	stationID := "st-cache-it-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Delete(ctx, stationID) })

	_, ok, err := c.Get(ctx, stationID)
	require.NoError(t, err)
	assert.False(t, ok)

	want := &domain.StationSnapshot{
		Station: domain.Station{ID: stationID, Code: "IT"},
		Tanks:   []domain.Tank{{ID: "tank-1", StationID: stationID, Capacity: decimal.NewFromInt(13500)}},
	}
	require.NoError(t, c.Set(ctx, stationID, want, time.Minute))

	got, ok, err := c.Get(ctx, stationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stationID, got.Station.ID)
	require.Len(t, got.Tanks, 1)
	assert.True(t, got.Tanks[0].Capacity.Equal(decimal.NewFromInt(13500)))

	require.NoError(t, c.Delete(ctx, stationID))
	_, ok, err = c.Get(ctx, stationID)
	require.NoError(t, err)
	assert.False(t, ok)
}
