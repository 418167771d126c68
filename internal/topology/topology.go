// Package topology answers read-only questions about a station: its tanks,
// pumps and nozzles, where each nozzle's meter starts and what fuel costs at
// a given instant.
package topology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/cache"
	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

type Reader struct {
	repo   store.Repository
	cache  cache.TopologyCache
	ttl    time.Duration
	logger *logrus.Logger
}

func NewReader(repo store.Repository, c cache.TopologyCache, ttl time.Duration, logger *logrus.Logger) *Reader {
	if c == nil {
		c = cache.NoopTopologyCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reader{repo: repo, cache: c, ttl: ttl, logger: logger}
}

// Snapshot returns the station structure, from cache when possible. Cache
// failures are logged and fall through to the store.
func (r *Reader) Snapshot(ctx context.Context, stationID string) (*domain.StationSnapshot, error) {
	snap, ok, err := r.cache.Get(ctx, stationID)
	if err != nil {
		r.logger.WithError(err).WithField("station_id", stationID).Warn("topology cache read failed")
	}
	if ok && snap != nil {
		return snap, nil
	}

	var loaded *domain.StationSnapshot
	if err := r.repo.View(ctx, func(q store.Queries) error {
		var err error
		loaded, err = Load(ctx, q, stationID)
		return err
	}); err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, stationID, loaded, r.ttl); err != nil {
		r.logger.WithError(err).WithField("station_id", stationID).Warn("topology cache write failed")
	}
	return loaded, nil
}

func (r *Reader) Invalidate(ctx context.Context, stationID string) error {
	return r.cache.Delete(ctx, stationID)
}

// Load reads the station structure straight from q.
func Load(ctx context.Context, q store.Queries, stationID string) (*domain.StationSnapshot, error) {
	station, err := q.GetStation(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", stationID, err)
	}
	tanks, err := q.ListTanks(ctx, stationID)
	if err != nil {
		return nil, err
	}
	pumps, err := q.ListPumps(ctx, stationID)
	if err != nil {
		return nil, err
	}
	nozzles, err := q.ListNozzles(ctx, stationID)
	if err != nil {
		return nil, err
	}
	return &domain.StationSnapshot{Station: *station, Tanks: tanks, Pumps: pumps, Nozzles: nozzles}, nil
}

// StartingMeter is the end reading of the nozzle's most recently closed
// assignment, or zero for a nozzle that has never been on a shift.
func StartingMeter(ctx context.Context, q store.Queries, nozzleID string) (decimal.Decimal, error) {
	return q.LastMeterReading(ctx, nozzleID)
}

// PriceAt returns the price row in force at the instant: the latest row
// whose effective date is not after it.
func PriceAt(ctx context.Context, q store.Queries, fuelID string, at time.Time) (*domain.Price, error) {
	price, err := q.PriceAt(ctx, fuelID, at)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no price for fuel %s at %s: %w", fuelID, at.Format(time.RFC3339), err)
	}
	return price, err
}

// FuelForNozzle resolves the fuel a nozzle dispenses through its tank.
func FuelForNozzle(snap *domain.StationSnapshot, nozzleID string) (domain.Nozzle, domain.Tank, error) {
	nozzle, ok := snap.Nozzle(nozzleID)
	if !ok {
		return domain.Nozzle{}, domain.Tank{}, fmt.Errorf("nozzle %s at station %s: %w", nozzleID, snap.Station.ID, store.ErrNotFound)
	}
	tank, ok := snap.Tank(nozzle.TankID)
	if !ok {
		return domain.Nozzle{}, domain.Tank{}, fmt.Errorf("tank %s for nozzle %s: %w", nozzle.TankID, nozzleID, store.ErrNotFound)
	}
	return nozzle, tank, nil
}
