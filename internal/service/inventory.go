package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/xid"
)

// PerformDip records a physical tank measurement and makes it the system
// level.
func (s *Service) PerformDip(ctx context.Context, req domain.DipRequest) (*domain.TankDip, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}
	if err := checkNotNegative("MeasuredLevel", req.MeasuredLevel); err != nil {
		return nil, err
	}

	var (
		dip       domain.TankDip
		stationID string
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		tank, err := q.GetTankForUpdate(ctx, req.TankID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "tank %s", req.TankID)
			}
			return err
		}
		stationID = tank.StationID
		dip = domain.TankDip{
			ID:            xid.New("dip"),
			TankID:        tank.ID,
			SystemLevel:   tank.CurrentLevel,
			MeasuredLevel: req.MeasuredLevel,
			Variance:      req.MeasuredLevel.Sub(tank.CurrentLevel),
			OverCapacity:  req.MeasuredLevel.GreaterThan(tank.Capacity),
			DippedAt:      req.Timestamp,
			PerformedBy:   req.PerformedBy,
		}
		if err := q.CreateTankDip(ctx, dip); err != nil {
			return err
		}
		if err := q.UpdateTankLevel(ctx, tank.ID, req.MeasuredLevel); err != nil {
			return err
		}
		return s.audit(ctx, q, tank.StationID, req.PerformedBy, "tank_dip", "tank", tank.ID,
			fmt.Sprintf("system=%s,measured=%s", dip.SystemLevel, dip.MeasuredLevel), req.Timestamp)
	})
	if err != nil {
		return nil, err
	}

	s.refreshTopology(ctx, stationID)
	fields := logrus.Fields{
		"station_id": stationID,
		"tank_id":    dip.TankID,
		"system":     dip.SystemLevel.String(),
		"measured":   dip.MeasuredLevel.String(),
		"variance":   dip.Variance.String(),
	}
	if dip.OverCapacity {
		s.metrics.DipsOverCapacity.Inc()
		s.logger.WithFields(fields).Warn("dip measured above tank capacity")
	} else {
		s.logger.WithFields(fields).Info("tank dipped")
	}
	return &dip, nil
}

// ReceiveDelivery adds delivered fuel to a tank. Overflow is applied and
// flagged rather than refused.
func (s *Service) ReceiveDelivery(ctx context.Context, req domain.DeliveryRequest) (*domain.Delivery, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}
	if err := checkPositive("Liters", req.Liters); err != nil {
		return nil, err
	}

	var (
		delivery  *domain.Delivery
		stationID string
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		var err error
		delivery, stationID, err = s.receive(ctx, q, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.refreshTopology(ctx, stationID)
	s.logDelivery(*delivery)
	return delivery, nil
}

func (s *Service) receive(ctx context.Context, q store.Queries, req domain.DeliveryRequest) (*domain.Delivery, string, error) {
	tank, err := q.GetTankForUpdate(ctx, req.TankID)
	if err != nil {
		if isNotFound(err) {
			return nil, "", notFound("", "tank %s", req.TankID)
		}
		return nil, "", err
	}
	after := tank.CurrentLevel.Add(req.Liters)
	overflow := decimal.Max(decimal.Zero, after.Sub(tank.Capacity))
	delivery := domain.Delivery{
		ID:             xid.New("dlv"),
		TankID:         tank.ID,
		Liters:         req.Liters,
		LevelBefore:    tank.CurrentLevel,
		LevelAfter:     after,
		OverflowLiters: overflow,
		Flagged:        overflow.IsPositive(),
		Reference:      req.Reference,
		DeliveredAt:    req.Timestamp,
		ReceivedBy:     req.ReceivedBy,
	}
	if err := q.CreateDelivery(ctx, delivery); err != nil {
		return nil, "", err
	}
	if err := q.UpdateTankLevel(ctx, tank.ID, after); err != nil {
		return nil, "", err
	}
	if err := s.audit(ctx, q, tank.StationID, req.ReceivedBy, "tank_delivery", "tank", tank.ID,
		fmt.Sprintf("liters=%s,level_after=%s", req.Liters, after), req.Timestamp); err != nil {
		return nil, "", err
	}
	return &delivery, tank.StationID, nil
}

func (s *Service) logDelivery(d domain.Delivery) {
	fields := logrus.Fields{
		"tank_id":     d.TankID,
		"liters":      d.Liters.String(),
		"level_after": d.LevelAfter.String(),
	}
	if d.Flagged {
		s.metrics.DeliveriesFlagged.Inc()
		s.logger.WithFields(fields).WithField("overflow", d.OverflowLiters.String()).Warn("delivery overflowed tank capacity")
		return
	}
	s.logger.WithFields(fields).Info("delivery received")
}

// CheckInventory reports every tank of the station with its fill ratio.
// With AutoReorder each low tank receives enough fuel to reach the refill
// ratio.
func (s *Service) CheckInventory(ctx context.Context, req domain.InventoryCheckRequest) (*domain.InventoryReport, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}

	report := domain.InventoryReport{StationID: req.StationID, CheckedAt: req.Timestamp}
	run := s.repo.View
	if req.AutoReorder {
		run = s.repo.WithTx
	}
	err := run(ctx, func(q store.Queries) error {
		if _, err := q.GetStation(ctx, req.StationID); err != nil {
			if isNotFound(err) {
				return notFound("", "station %s", req.StationID)
			}
			return err
		}
		tanks, err := q.ListTanks(ctx, req.StationID)
		if err != nil {
			return err
		}
		report.Tanks = report.Tanks[:0]
		report.Deliveries = report.Deliveries[:0]
		for _, tank := range tanks {
			status := tankStatus(tank, s.policy.LowStockRatio)
			if status.Low && req.AutoReorder {
				refill := s.policy.RefillRatio.Mul(tank.Capacity).Sub(tank.CurrentLevel).Round(domain.LitersScale)
				if refill.IsPositive() {
					delivery, _, err := s.receive(ctx, q, domain.DeliveryRequest{
						TankID:     tank.ID,
						Liters:     refill,
						Reference:  "auto-reorder",
						ReceivedBy: req.ReceivedBy,
						Timestamp:  req.Timestamp,
					})
					if err != nil {
						return err
					}
					report.Deliveries = append(report.Deliveries, *delivery)
					tank.CurrentLevel = delivery.LevelAfter
					status = tankStatus(tank, s.policy.LowStockRatio)
				}
			}
			report.Tanks = append(report.Tanks, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report.Deliveries) > 0 {
		s.refreshTopology(ctx, req.StationID)
	}
	for _, d := range report.Deliveries {
		s.logDelivery(d)
	}
	for _, status := range report.Tanks {
		if status.Low {
			s.logger.WithFields(logrus.Fields{
				"station_id": req.StationID,
				"tank_id":    status.Tank.ID,
				"fill_ratio": status.FillRatio.String(),
			}).Warn("tank below low stock ratio")
		}
	}
	return &report, nil
}

func tankStatus(tank domain.Tank, lowRatio decimal.Decimal) domain.TankStatus {
	ratio := decimal.Zero
	if tank.Capacity.IsPositive() {
		ratio = tank.CurrentLevel.DivRound(tank.Capacity, 4)
	}
	return domain.TankStatus{Tank: tank, FillRatio: ratio, Low: ratio.LessThan(lowRatio)}
}
