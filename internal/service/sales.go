package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/topology"
	"stationledger/backend/internal/xid"
)

// RecordSale accrues one sale against the nozzle's active assignment. The
// liters are derived from the amount and the price in force at the sale.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (*domain.SaleResult, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}
	if err := checkPositive("Amount", req.Amount); err != nil {
		return nil, err
	}
	if err := checkCents("Amount", req.Amount); err != nil {
		return nil, err
	}
	if req.Tender != domain.TenderCredit && req.CustomerID != "" {
		return nil, invalid("CustomerID", "only credit sales carry a customer")
	}

	snap, err := s.snapshot(ctx, req.StationID)
	if err != nil {
		return nil, err
	}
	_, tank, err := topology.FuelForNozzle(snap, req.NozzleID)
	if err != nil {
		return nil, notFound(ReasonNoAssignment, "%v", err)
	}

	var (
		result   domain.SaleResult
		overdraw bool
	)
	err = s.repo.WithTx(ctx, func(q store.Queries) error {
		shift, err := q.GetShift(ctx, req.ShiftID)
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
			return integrity(ReasonTimeRegression, "sale at %s is before shift start %s",
				req.Timestamp.Format(time.RFC3339), shift.StartTime.Format(time.RFC3339))
		}

		assignments, err := q.ListAssignments(ctx, shift.ID)
		if err != nil {
			return err
		}
		var assignment *domain.ShiftAssignment
		for i := range assignments {
			if assignments[i].NozzleID == req.NozzleID && assignments[i].Status == domain.AssignmentActive {
				assignment = &assignments[i]
				break
			}
		}
		if assignment == nil {
			return notFound(ReasonNoAssignment, "nozzle %s has no active assignment in shift %s", req.NozzleID, shift.ID)
		}

		price, err := topology.PriceAt(ctx, q, tank.FuelID, req.Timestamp)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "%v", err)
			}
			return err
		}

		if req.Tender == domain.TenderCredit {
			customer, err := q.GetCustomer(ctx, req.CustomerID)
			if err != nil && !isNotFound(err) {
				return err
			}
			if customer == nil || !customer.Active || customer.OrganizationID != snap.Station.OrganizationID {
				return notFound("", "active credit customer %s", req.CustomerID)
			}
			balance, err := q.CreditBalance(ctx, customer.ID)
			if err != nil {
				return err
			}
			if balance.Add(req.Amount).GreaterThan(customer.CreditLimit) {
				if s.policy.EnforceCreditLimit {
					return policy(ReasonCreditLimitExceeded, "customer %s owes %s, limit %s, sale %s", customer.ID, balance, customer.CreditLimit, req.Amount)
				}
				overdraw = true
			}
		}

		sale := domain.Sale{
			ID:           xid.New("sale"),
			StationID:    req.StationID,
			ShiftID:      shift.ID,
			AssignmentID: assignment.ID,
			NozzleID:     req.NozzleID,
			FuelID:       tank.FuelID,
			PriceID:      price.ID,
			UnitPrice:    price.PricePerLiter,
			Liters:       req.Amount.DivRound(price.PricePerLiter, domain.LitersScale),
			Amount:       req.Amount,
			Tender:       req.Tender,
			CustomerID:   req.CustomerID,
			SoldAt:       req.Timestamp,
			RecordedBy:   req.RecordedBy,
		}
		if err := q.CreateSale(ctx, sale); err != nil {
			return err
		}
		result = domain.SaleResult{
			SaleID:   sale.ID,
			NozzleID: sale.NozzleID,
			Liters:   sale.Liters,
			Amount:   sale.Amount,
			Tender:   sale.Tender,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if overdraw {
		s.logger.WithFields(logrus.Fields{
			"station_id":  req.StationID,
			"customer_id": req.CustomerID,
			"amount":      req.Amount.String(),
		}).Warn("credit sale accepted above customer limit")
	}
	s.metrics.Sales.WithLabelValues(req.Tender).Inc()
	s.metrics.SaleAmount.WithLabelValues(req.Tender).Add(req.Amount.InexactFloat64())
	return &result, nil
}

// SummarizeShift folds every recorded sale of the shift into the totals a
// CloseShift request needs.
func (s *Service) SummarizeShift(ctx context.Context, shiftID string) (*domain.ShiftSummary, error) {
	acc := NewAccumulator(shiftID)
	err := s.repo.View(ctx, func(q store.Queries) error {
		if _, err := q.GetShift(ctx, shiftID); err != nil {
			if isNotFound(err) {
				return notFound("", "shift %s", shiftID)
			}
			return err
		}
		sales, err := q.ListSales(ctx, shiftID)
		if err != nil {
			return err
		}
		for _, sale := range sales {
			acc.Add(domain.SaleResult{
				SaleID:   sale.ID,
				NozzleID: sale.NozzleID,
				Liters:   sale.Liters,
				Amount:   sale.Amount,
				Tender:   sale.Tender,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	summary := acc.Summary()
	return &summary, nil
}

// Accumulator keeps running sale totals for a shift. It is safe for
// concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	summary domain.ShiftSummary
}

func NewAccumulator(shiftID string) *Accumulator {
	return &Accumulator{summary: domain.ShiftSummary{
		ShiftID:        shiftID,
		LitersByNozzle: map[string]decimal.Decimal{},
		CashTotal:      decimal.Zero,
		CardTotal:      decimal.Zero,
		CreditTotal:    decimal.Zero,
		SalesTotal:     decimal.Zero,
	}}
}

func (a *Accumulator) Add(r domain.SaleResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.LitersByNozzle[r.NozzleID] = a.summary.LitersByNozzle[r.NozzleID].Add(r.Liters)
	switch r.Tender {
	case domain.TenderCash:
		a.summary.CashTotal = a.summary.CashTotal.Add(r.Amount)
	case domain.TenderCard:
		a.summary.CardTotal = a.summary.CardTotal.Add(r.Amount)
	case domain.TenderCredit:
		a.summary.CreditTotal = a.summary.CreditTotal.Add(r.Amount)
	}
	a.summary.SalesTotal = a.summary.SalesTotal.Add(r.Amount)
	a.summary.Count++
}

// Summary returns a copy of the running totals.
func (a *Accumulator) Summary() domain.ShiftSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.summary
	out.LitersByNozzle = make(map[string]decimal.Decimal, len(a.summary.LitersByNozzle))
	for k, v := range a.summary.LitersByNozzle {
		out.LitersByNozzle[k] = v
	}
	return out
}

// CloseRequest builds a CloseShift request from the totals. The declared
// cash is what the cashier counted, not derived here.
func (a *Accumulator) CloseRequest(stationID, closedBy string, declaredCash decimal.Decimal, at time.Time) domain.CloseShiftRequest {
	summary := a.Summary()
	return domain.CloseShiftRequest{
		StationID:    stationID,
		ShiftID:      summary.ShiftID,
		ClosedBy:     closedBy,
		Timestamp:    at,
		LitersSold:   summary.LitersByNozzle,
		CardTotal:    summary.CardTotal,
		CreditTotal:  summary.CreditTotal,
		DeclaredCash: declaredCash,
	}
}

// RecordCreditPayment takes a customer's cash repayment into the safe.
func (s *Service) RecordCreditPayment(ctx context.Context, req domain.CreditPaymentRequest) (*domain.CreditPayment, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}
	if err := checkPositive("Amount", req.Amount); err != nil {
		return nil, err
	}
	if err := checkCents("Amount", req.Amount); err != nil {
		return nil, err
	}

	var (
		payment *domain.CreditPayment
		row     *domain.SafeTransaction
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		customer, err := q.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "credit customer %s", req.CustomerID)
			}
			return err
		}
		balance, err := q.CreditBalance(ctx, customer.ID)
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(balance) {
			return policy(ReasonOverPayment, "customer %s owes %s, got %s", customer.ID, balance, req.Amount)
		}
		safe, err := stationSafe(ctx, q, req.StationID)
		if err != nil {
			return err
		}
		row, err = s.post(ctx, q, domain.SafePosting{
			SafeID:      safe.ID,
			Type:        domain.SafeTxCreditPayment,
			Amount:      req.Amount,
			Timestamp:   req.Timestamp,
			PerformedBy: req.ReceivedBy,
			Description: fmt.Sprintf("credit payment from %s", customer.Name),
		})
		if err != nil {
			return err
		}
		payment = &domain.CreditPayment{
			ID:                xid.New("cpay"),
			CustomerID:        customer.ID,
			StationID:         req.StationID,
			Amount:            req.Amount,
			SafeTransactionID: row.ID,
			PaidAt:            req.Timestamp,
			ReceivedBy:        req.ReceivedBy,
		}
		return q.CreateCreditPayment(ctx, *payment)
	})
	if err != nil {
		return nil, err
	}
	s.logPosting(row)
	return payment, nil
}

// CustomerBalance is what the customer owes: credit sales less payments.
func (s *Service) CustomerBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.repo.View(ctx, func(q store.Queries) error {
		if _, err := q.GetCustomer(ctx, customerID); err != nil {
			if isNotFound(err) {
				return notFound("", "credit customer %s", customerID)
			}
			return err
		}
		var err error
		balance, err = q.CreditBalance(ctx, customerID)
		return err
	})
	return balance, err
}
