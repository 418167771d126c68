// Package scheduler runs the periodic station housekeeping: inventory checks
// with automatic reorder and the safe-to-bank deposit sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/metrics"
	"stationledger/backend/internal/service"
)

type Sweeper struct {
	svc      *service.Service
	stations []string
	bankID   string
	operator string
	interval time.Duration
	now      func() time.Time
	logger   *logrus.Logger
	metrics  *metrics.Recorder
}

type Config struct {
	Stations []string
	// BankID enables the deposit sweep; empty skips it.
	BankID   string
	Operator string
	Interval time.Duration
}

func NewSweeper(svc *service.Service, cfg Config, logger *logrus.Logger, m *metrics.Recorder) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		stations: cfg.Stations,
		bankID:   cfg.BankID,
		operator: cfg.Operator,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

// Start blocks until ctx is cancelled, sweeping every interval.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || s.svc == nil || len(s.stations) == 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"stations": len(s.stations),
		"interval": s.interval.String(),
	}).Info("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx, s.now().UTC())
		}
	}
}

// RunOnce sweeps every configured station at the given instant. A failing
// station is logged and does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context, at time.Time) {
	for _, stationID := range s.stations {
		if stationID == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.sweepStation(ctx, stationID, at); err != nil {
			s.metrics.SweepRuns.WithLabelValues("error").Inc()
			s.logger.WithError(err).WithField("station_id", stationID).Error("station sweep failed")
			continue
		}
		s.metrics.SweepRuns.WithLabelValues("ok").Inc()
	}
}

func (s *Sweeper) sweepStation(ctx context.Context, stationID string, at time.Time) error {
	report, err := s.svc.CheckInventory(ctx, domain.InventoryCheckRequest{
		StationID:   stationID,
		AutoReorder: true,
		ReceivedBy:  s.operator,
		Timestamp:   at,
	})
	if err != nil {
		return err
	}
	fields := logrus.Fields{"station_id": stationID, "reorders": len(report.Deliveries)}

	if s.bankID != "" {
		deposit, err := s.svc.BankDeposit(ctx, domain.BankDepositRequest{
			StationID:   stationID,
			BankID:      s.bankID,
			PerformedBy: s.operator,
			Timestamp:   at,
		})
		if err != nil {
			return err
		}
		if deposit != nil {
			fields["deposited"] = deposit.Amount.String()
		}
	}
	s.logger.WithFields(fields).Debug("station swept")
	return nil
}
