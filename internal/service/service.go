package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/metrics"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/topology"
	"stationledger/backend/internal/xid"
)

// Service is the shift reconciliation and safe ledger engine. Every write
// runs in one store transaction; every timestamp comes from the caller.
type Service struct {
	repo    store.Repository
	topo    *topology.Reader
	policy  Policy
	logger  *logrus.Logger
	metrics *metrics.Recorder
}

type Option func(*Service)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func New(repo store.Repository, topo *topology.Reader, policy Policy, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		topo:    topo,
		policy:  policy,
		logger:  logrus.StandardLogger(),
		metrics: metrics.New(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.topo == nil {
		s.topo = topology.NewReader(repo, nil, time.Minute, s.logger)
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

// snapshot loads the station structure. It must be called outside WithTx:
// the reader opens its own read view.
func (s *Service) snapshot(ctx context.Context, stationID string) (*domain.StationSnapshot, error) {
	snap, err := s.topo.Snapshot(ctx, stationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("", "station %s", stationID)
	}
	return snap, err
}

// refreshTopology drops the cached snapshot after tank levels change. A
// failure only leaves the cache stale until its TTL, so it is logged.
func (s *Service) refreshTopology(ctx context.Context, stationID string) {
	if err := s.topo.Invalidate(ctx, stationID); err != nil {
		s.logger.WithError(err).WithField("station_id", stationID).Warn("topology cache invalidation failed")
	}
}

// Station returns the structure of a station: tanks, pumps and nozzles.
func (s *Service) Station(ctx context.Context, stationID string) (*domain.StationSnapshot, error) {
	return s.snapshot(ctx, stationID)
}

func (s *Service) audit(ctx context.Context, q store.Queries, stationID string, actor string, action string, entityType string, entityID string, detail string, at time.Time) error {
	if actor == "" {
		actor = "system"
	}
	if err := q.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		StationID:  stationID,
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  at,
	}); err != nil {
		return fmt.Errorf("audit %s %s/%s: %w", action, entityType, entityID, err)
	}
	return nil
}

// AuditTrail returns the most recent audit entries of a station, newest first.
func (s *Service) AuditTrail(ctx context.Context, stationID string, limit int) ([]domain.AuditLog, error) {
	var entries []domain.AuditLog
	err := s.repo.View(ctx, func(q store.Queries) error {
		var err error
		entries, err = q.ListAuditLogs(ctx, stationID, limit)
		return err
	})
	return entries, err
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
