package cache

import (
	"context"
	"time"

	"stationledger/backend/internal/domain"
)

type TopologyCache interface {
	Get(ctx context.Context, stationID string) (*domain.StationSnapshot, bool, error)
	Set(ctx context.Context, stationID string, value *domain.StationSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, stationID string) error
}

type NoopTopologyCache struct{}

func (NoopTopologyCache) Get(_ context.Context, _ string) (*domain.StationSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopTopologyCache) Set(_ context.Context, _ string, _ *domain.StationSnapshot, _ time.Duration) error {
	return nil
}

func (NoopTopologyCache) Delete(_ context.Context, _ string) error {
	return nil
}
