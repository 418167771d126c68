package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/topology"
	"stationledger/backend/internal/xid"
)

func shiftNumber(stationCode string, at time.Time) string {
	return stationCode + "-" + at.UTC().Format("20060102-1504")
}

// OpenShift opens a shift with one active assignment per nozzle of the
// station. The roster must name a pumper for every nozzle.
func (s *Service) OpenShift(ctx context.Context, req domain.OpenShiftRequest) (*domain.ShiftResponse, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}

	snap, err := s.snapshot(ctx, req.StationID)
	if err != nil {
		return nil, err
	}
	if len(snap.Nozzles) == 0 {
		return nil, invalid("StationID", "station %s has no nozzles", req.StationID)
	}
	for _, nozzle := range snap.Nozzles {
		if req.Roster[nozzle.ID] == "" {
			return nil, invalid("Roster", "no pumper for nozzle %s", nozzle.ID)
		}
	}
	for nozzleID := range req.Roster {
		if _, ok := snap.Nozzle(nozzleID); !ok {
			return nil, invalid("Roster", "nozzle %s is not at station %s", nozzleID, req.StationID)
		}
	}

	var resp domain.ShiftResponse
	err = s.repo.WithTx(ctx, func(q store.Queries) error {
		manager, err := q.GetStaff(ctx, req.OpenedBy)
		if err != nil && !isNotFound(err) {
			return err
		}
		if manager == nil || !manager.Active || manager.Role != domain.RoleManager || manager.OrganizationID != snap.Station.OrganizationID {
			return notFound(ReasonNoManager, "staff %s is not an active manager of organization %s", req.OpenedBy, snap.Station.OrganizationID)
		}

		if existing, err := q.GetOpenShift(ctx, req.StationID); err == nil {
			return conflict(ReasonShiftAlreadyOpen, "station %s already has open shift %s", req.StationID, existing.ID)
		} else if !isNotFound(err) {
			return err
		}
		last, err := q.LastClosedShift(ctx, req.StationID)
		switch {
		case err == nil && req.Timestamp.Before(*last.EndTime):
			return integrity(ReasonTimeRegression, "open at %s is before shift %s ended at %s",
				req.Timestamp.Format(time.RFC3339), last.ID, last.EndTime.Format(time.RFC3339))
		case err != nil && !isNotFound(err):
			return err
		}

		shift := domain.Shift{
			ID:        xid.New("shift"),
			StationID: req.StationID,
			Number:    shiftNumber(snap.Station.Code, req.Timestamp),
			Status:    domain.ShiftStatusOpen,
			StartTime: req.Timestamp,
			OpenedBy:  req.OpenedBy,
		}
		if err := q.CreateShift(ctx, shift); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return conflict(ReasonShiftAlreadyOpen, "station %s already has an open shift", req.StationID)
			}
			return err
		}

		assignments := make([]domain.ShiftAssignment, 0, len(snap.Nozzles))
		for _, nozzle := range snap.Nozzles {
			start, err := topology.StartingMeter(ctx, q, nozzle.ID)
			if err != nil {
				return err
			}
			assignment := domain.ShiftAssignment{
				ID:                xid.New("asg"),
				ShiftID:           shift.ID,
				NozzleID:          nozzle.ID,
				TankID:            nozzle.TankID,
				PumperName:        req.Roster[nozzle.ID],
				StartMeterReading: start,
				Status:            domain.AssignmentActive,
			}
			if err := q.CreateAssignment(ctx, assignment); err != nil {
				return err
			}
			assignments = append(assignments, assignment)
		}

		resp = domain.ShiftResponse{Shift: shift, Assignments: assignments}
		return s.audit(ctx, q, req.StationID, req.OpenedBy, "shift_open", "shift", shift.ID,
			fmt.Sprintf("number=%s,nozzles=%d", shift.Number, len(assignments)), req.Timestamp)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ShiftsOpened.Inc()
	s.logger.WithFields(logrus.Fields{
		"station_id": req.StationID,
		"shift_id":   resp.Shift.ID,
		"number":     resp.Shift.Number,
	}).Info("shift opened")
	return &resp, nil
}

// CloseShift closes every assignment from the per-nozzle liters, moves the
// tanks, reconciles declared cash against expected cash and posts the
// declared cash to the safe. A close that declares no cash posts nothing and
// leaves SafeTransaction nil. Nothing is written unless every step succeeds.
func (s *Service) CloseShift(ctx context.Context, req domain.CloseShiftRequest) (*domain.ShiftCloseResult, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}
	for field, amount := range map[string]decimal.Decimal{
		"CardTotal":    req.CardTotal,
		"CreditTotal":  req.CreditTotal,
		"DeclaredCash": req.DeclaredCash,
	} {
		if err := checkNotNegative(field, amount); err != nil {
			return nil, err
		}
		if err := checkCents(field, amount); err != nil {
			return nil, err
		}
	}

	snap, err := s.snapshot(ctx, req.StationID)
	if err != nil {
		return nil, err
	}

	var result domain.ShiftCloseResult
	err = s.repo.WithTx(ctx, func(q store.Queries) error {
		shift, err := q.GetShiftForUpdate(ctx, req.ShiftID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "shift %s", req.ShiftID)
			}
			return err
		}
		if shift.StationID != req.StationID {
			return notFound("", "shift %s at station %s", req.ShiftID, req.StationID)
		}
		if shift.Status != domain.ShiftStatusOpen {
			return conflict(ReasonShiftNotOpen, "shift %s is %s", shift.ID, shift.Status)
		}
		if req.Timestamp.Before(shift.StartTime) {
			return integrity(ReasonTimeRegression, "close at %s is before shift start %s",
				req.Timestamp.Format(time.RFC3339), shift.StartTime.Format(time.RFC3339))
		}

		assignments, err := q.ListAssignments(ctx, shift.ID)
		if err != nil {
			return err
		}
		assigned := make(map[string]bool, len(assignments))
		for _, a := range assignments {
			assigned[a.NozzleID] = true
		}
		for nozzleID := range req.LitersSold {
			if !assigned[nozzleID] {
				return invalid("LitersSold", "nozzle %s has no assignment in shift %s", nozzleID, shift.ID)
			}
		}

		totalSales := decimal.Zero
		totalVolume := decimal.Zero
		touched := make([]*domain.Tank, 0, len(assignments))
		tanks := make(map[string]*domain.Tank, len(assignments))
		for i := range assignments {
			a := &assignments[i]
			liters := req.LitersSold[a.NozzleID]
			if liters.IsNegative() {
				return integrity(ReasonMeterRegression, "nozzle %s: negative liters %s", a.NozzleID, liters)
			}
			if a.Status != domain.AssignmentActive {
				return integrity(ReasonMeterRegression, "assignment %s is already %s", a.ID, a.Status)
			}
			end := a.StartMeterReading.Add(liters)
			if nozzle, ok := snap.Nozzle(a.NozzleID); ok && nozzle.MeterMax.IsPositive() && end.GreaterThan(nozzle.MeterMax) {
				return integrity(ReasonMeterOverflow, "nozzle %s: end meter %s exceeds %s", a.NozzleID, end, nozzle.MeterMax)
			}
			closedAt := req.Timestamp
			a.EndMeterReading = &end
			a.Status = domain.AssignmentClosed
			a.ClosedAt = &closedAt
			if err := q.UpdateAssignment(ctx, *a); err != nil {
				return err
			}
			if liters.IsZero() {
				continue
			}

			tank, ok := tanks[a.TankID]
			if !ok {
				tank, err = q.GetTankForUpdate(ctx, a.TankID)
				if err != nil {
					return err
				}
				tanks[tank.ID] = tank
				touched = append(touched, tank)
			}
			tank.CurrentLevel = tank.CurrentLevel.Sub(liters)
			if err := q.UpdateTankLevel(ctx, tank.ID, tank.CurrentLevel); err != nil {
				return err
			}

			price, err := topology.PriceAt(ctx, q, tank.FuelID, req.Timestamp)
			if err != nil {
				if isNotFound(err) {
					return notFound("", "%v", err)
				}
				return err
			}
			totalSales = totalSales.Add(money(liters.Mul(price.PricePerLiter)))
			totalVolume = totalVolume.Add(liters)
		}

		var discrepancies []domain.TankDiscrepancy
		for _, tank := range touched {
			if tank.CurrentLevel.IsNegative() || tank.CurrentLevel.GreaterThan(tank.Capacity) {
				discrepancies = append(discrepancies, domain.TankDiscrepancy{TankID: tank.ID, Level: tank.CurrentLevel, Capacity: tank.Capacity})
			}
		}

		if req.CardTotal.IsPositive() {
			terminal, err := q.StationTerminal(ctx, req.StationID)
			switch {
			case isNotFound(err):
				s.logger.WithFields(logrus.Fields{"station_id": req.StationID, "shift_id": shift.ID}).
					Warn("no POS terminal at station, card batch skipped")
			case err != nil:
				return err
			default:
				batch := domain.POSBatch{
					ID:         xid.New("batch"),
					TerminalID: terminal.ID,
					ShiftID:    shift.ID,
					Amount:     req.CardTotal,
					BatchedAt:  req.Timestamp,
				}
				if err := q.CreatePOSBatch(ctx, batch); err != nil {
					return err
				}
				result.POSBatch = &batch
			}
		}

		recon := reconcile(totalSales, req.CardTotal, req.CreditTotal, req.DeclaredCash)

		if req.DeclaredCash.IsPositive() {
			safe, err := q.GetStationSafe(ctx, req.StationID)
			if err != nil {
				if isNotFound(err) {
					return notFound("", "safe for station %s", req.StationID)
				}
				return err
			}
			posted, err := s.post(ctx, q, domain.SafePosting{
				SafeID:      safe.ID,
				Type:        domain.SafeTxCashFuelSales,
				Amount:      req.DeclaredCash,
				Timestamp:   req.Timestamp,
				PerformedBy: req.ClosedBy,
				Description: "cash fuel sales " + shift.Number,
				ShiftID:     shift.ID,
			})
			if err != nil {
				return err
			}
			result.SafeTransaction = posted
		}

		sales, err := q.ListSales(ctx, shift.ID)
		if err != nil {
			return err
		}

		end := req.Timestamp
		shift.Status = domain.ShiftStatusClosed
		shift.EndTime = &end
		shift.ClosedBy = req.ClosedBy
		shift.Declared = &domain.DeclaredAmounts{
			Cash:     req.DeclaredCash,
			Card:     req.CardTotal,
			Credit:   req.CreditTotal,
			Expected: recon.Expected,
			Variance: recon.Variance,
			Shortage: recon.Shortage,
			Excess:   recon.Excess,
		}
		shift.Statistics = &domain.ShiftStatistics{
			TotalSales:       totalSales,
			TotalVolume:      totalVolume,
			TransactionCount: len(sales),
		}
		if err := q.UpdateShift(ctx, *shift); err != nil {
			return err
		}

		result.Shift = *shift
		result.Assignments = assignments
		result.Reconciliation = recon
		result.Discrepancies = discrepancies
		return s.audit(ctx, q, req.StationID, req.ClosedBy, "shift_close", "shift", shift.ID,
			fmt.Sprintf("expected=%s,declared=%s,variance=%s", recon.Expected, recon.Declared, recon.Variance), req.Timestamp)
	})
	if err != nil {
		return nil, err
	}

	if result.Shift.Statistics != nil && result.Shift.Statistics.TotalVolume.IsPositive() {
		s.refreshTopology(ctx, req.StationID)
	}
	s.metrics.ShiftsClosed.Inc()
	s.metrics.CashVariance.Observe(result.Reconciliation.Variance.InexactFloat64())
	if result.SafeTransaction != nil {
		s.metrics.SafePostings.WithLabelValues(domain.SafeTxCashFuelSales).Inc()
	}
	fields := logrus.Fields{
		"station_id": req.StationID,
		"shift_id":   req.ShiftID,
		"expected":   result.Reconciliation.Expected.String(),
		"declared":   result.Reconciliation.Declared.String(),
		"variance":   result.Reconciliation.Variance.String(),
	}
	for _, d := range result.Discrepancies {
		s.metrics.TankDiscrepancies.Inc()
		s.logger.WithFields(logrus.Fields{"station_id": req.StationID, "tank_id": d.TankID, "level": d.Level.String(), "capacity": d.Capacity.String()}).
			Warn("tank level outside capacity after shift close")
	}
	if result.Reconciliation.Variance.Abs().GreaterThan(s.policy.VarianceAlert) {
		s.logger.WithFields(fields).Warn("shift closed with cash variance above alert level")
	} else {
		s.logger.WithFields(fields).Info("shift closed")
	}
	return &result, nil
}

// reconcile derives expected cash and the declared-vs-expected variance.
func reconcile(totalSales, card, credit, declared decimal.Decimal) domain.Reconciliation {
	expected := money(totalSales.Sub(card).Sub(credit))
	variance := declared.Sub(expected)
	r := domain.Reconciliation{
		TotalFuelSales: totalSales,
		Expected:       expected,
		Declared:       declared,
		Variance:       variance,
		Shortage:       decimal.Zero,
		Excess:         decimal.Zero,
	}
	if variance.IsNegative() {
		r.Shortage = variance.Neg()
	} else {
		r.Excess = variance
	}
	return r
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (*domain.ShiftResponse, error) {
	var resp domain.ShiftResponse
	err := s.repo.View(ctx, func(q store.Queries) error {
		shift, err := q.GetShift(ctx, shiftID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "shift %s", shiftID)
			}
			return err
		}
		assignments, err := q.ListAssignments(ctx, shift.ID)
		if err != nil {
			return err
		}
		resp = domain.ShiftResponse{Shift: *shift, Assignments: assignments}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Service) GetOpenShift(ctx context.Context, stationID string) (*domain.ShiftResponse, error) {
	var shiftID string
	err := s.repo.View(ctx, func(q store.Queries) error {
		shift, err := q.GetOpenShift(ctx, stationID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "open shift at station %s", stationID)
			}
			return err
		}
		shiftID = shift.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetShift(ctx, shiftID)
}
