package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/xid"
)

// post is the only code path that changes a safe balance. It must run inside
// a WithTx callback.
func (s *Service) post(ctx context.Context, q store.Queries, p domain.SafePosting) (*domain.SafeTransaction, error) {
	if err := checkStruct(p); err != nil {
		return nil, err
	}
	if err := checkTimestamp(p.Timestamp); err != nil {
		return nil, err
	}
	if !domain.IsSupportedSafeTxType(p.Type) {
		return nil, invalid("Type", "unsupported safe transaction type %q", p.Type)
	}
	if p.Amount.IsZero() {
		return nil, invalid("Amount", "must not be zero")
	}
	if err := checkCents("Amount", p.Amount); err != nil {
		return nil, err
	}

	safe, err := q.GetSafeForUpdate(ctx, p.SafeID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("", "safe %s", p.SafeID)
		}
		return nil, err
	}

	before := safe.CurrentBalance
	after := before.Add(p.Amount)
	if after.IsNegative() {
		return nil, policy(ReasonInsufficientFunds, "safe %s holds %s, cannot post %s %s", safe.ID, before, p.Type, p.Amount)
	}

	row := domain.SafeTransaction{
		ID:            xid.New("stx"),
		SafeID:        safe.ID,
		Type:          p.Type,
		Amount:        p.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Timestamp:     p.Timestamp,
		PerformedBy:   p.PerformedBy,
		Description:   p.Description,
		ShiftID:       p.ShiftID,
	}
	if err := q.InsertSafeTransaction(ctx, row); err != nil {
		return nil, err
	}
	if err := q.SwapSafeBalance(ctx, safe.ID, before, after, p.Timestamp); err != nil {
		if errors.Is(err, store.ErrIntegrity) {
			return nil, integrity(ReasonBalanceMismatch, "safe %s balance moved away from %s", safe.ID, before)
		}
		return nil, err
	}
	if err := s.audit(ctx, q, safe.StationID, p.PerformedBy, "safe_post", "safe_transaction", row.ID,
		fmt.Sprintf("type=%s,amount=%s,balance_after=%s", row.Type, row.Amount, row.BalanceAfter), p.Timestamp); err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) logPosting(row *domain.SafeTransaction) {
	s.metrics.SafePostings.WithLabelValues(row.Type).Inc()
	s.logger.WithFields(logrus.Fields{
		"safe_id":       row.SafeID,
		"type":          row.Type,
		"amount":        row.Amount.String(),
		"balance_after": row.BalanceAfter.String(),
	}).Info("safe posting recorded")
}

// PostSafeTransaction appends one signed posting to the safe ledger.
func (s *Service) PostSafeTransaction(ctx context.Context, p domain.SafePosting) (*domain.SafeTransaction, error) {
	var row *domain.SafeTransaction
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		var err error
		row, err = s.post(ctx, q, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logPosting(row)
	return row, nil
}

func stationSafe(ctx context.Context, q store.Queries, stationID string) (*domain.Safe, error) {
	safe, err := q.GetStationSafe(ctx, stationID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("", "safe for station %s", stationID)
		}
		return nil, err
	}
	return safe, nil
}

// BankDeposit sweeps the safe down to the policy float once its balance
// exceeds the deposit threshold. It returns nil, nil when no deposit is due.
func (s *Service) BankDeposit(ctx context.Context, req domain.BankDepositRequest) (*domain.Deposit, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}

	var (
		deposit *domain.Deposit
		row     *domain.SafeTransaction
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		bank, err := q.GetBank(ctx, req.BankID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "bank %s", req.BankID)
			}
			return err
		}
		safe, err := stationSafe(ctx, q, req.StationID)
		if err != nil {
			return err
		}
		safe, err = q.GetSafeForUpdate(ctx, safe.ID)
		if err != nil {
			return err
		}
		if !safe.CurrentBalance.GreaterThan(s.policy.DepositThreshold) {
			return nil
		}

		amount := money(safe.CurrentBalance.Sub(s.policy.DepositFloat))
		row, err = s.post(ctx, q, domain.SafePosting{
			SafeID:      safe.ID,
			Type:        domain.SafeTxBankDeposit,
			Amount:      amount.Neg(),
			Timestamp:   req.Timestamp,
			PerformedBy: req.PerformedBy,
			Description: "deposit to " + bank.Name,
		})
		if err != nil {
			return err
		}
		deposit = &domain.Deposit{
			ID:                xid.New("dep"),
			StationID:         req.StationID,
			BankID:            bank.ID,
			Amount:            amount,
			SafeTransactionID: row.ID,
			DepositedAt:       req.Timestamp,
			PerformedBy:       req.PerformedBy,
		}
		return q.CreateDeposit(ctx, *deposit)
	})
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		s.logger.WithField("station_id", req.StationID).Debug("safe below deposit threshold")
		return nil, nil
	}
	s.logPosting(row)
	return deposit, nil
}

// PayExpense pays an expense from the safe. When the safe cannot cover it
// the expense is skipped: nil, nil and a warning.
func (s *Service) PayExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.Expense, error) {
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
		expense *domain.Expense
		row     *domain.SafeTransaction
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		safe, err := stationSafe(ctx, q, req.StationID)
		if err != nil {
			return err
		}
		row, err = s.post(ctx, q, domain.SafePosting{
			SafeID:      safe.ID,
			Type:        domain.SafeTxExpense,
			Amount:      req.Amount.Neg(),
			Timestamp:   req.Timestamp,
			PerformedBy: req.PerformedBy,
			Description: req.Category + ": " + req.Description,
		})
		if err != nil {
			return err
		}
		expense = &domain.Expense{
			ID:                xid.New("exp"),
			StationID:         req.StationID,
			Category:          req.Category,
			Description:       req.Description,
			Amount:            req.Amount,
			SafeTransactionID: row.ID,
			PaidAt:            req.Timestamp,
			PerformedBy:       req.PerformedBy,
		}
		return q.CreateExpense(ctx, *expense)
	})
	var perr *PolicyError
	if errors.As(err, &perr) && perr.Reason == ReasonInsufficientFunds {
		s.metrics.ExpensesSkipped.Inc()
		s.logger.WithFields(logrus.Fields{
			"station_id": req.StationID,
			"category":   req.Category,
			"amount":     req.Amount.String(),
		}).Warn("expense skipped, safe cannot cover it")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logPosting(row)
	return expense, nil
}

// DisburseLoan pays a loan out of the safe and opens it.
func (s *Service) DisburseLoan(ctx context.Context, req domain.LoanRequest) (*domain.Loan, error) {
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
		loan *domain.Loan
		row  *domain.SafeTransaction
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		safe, err := stationSafe(ctx, q, req.StationID)
		if err != nil {
			return err
		}
		row, err = s.post(ctx, q, domain.SafePosting{
			SafeID:      safe.ID,
			Type:        domain.SafeTxLoanDisbursement,
			Amount:      req.Amount.Neg(),
			Timestamp:   req.Timestamp,
			PerformedBy: req.PerformedBy,
			Description: "loan to " + req.Borrower,
		})
		if err != nil {
			return err
		}
		loan = &domain.Loan{
			ID:                xid.New("loan"),
			StationID:         req.StationID,
			Borrower:          req.Borrower,
			Principal:         req.Amount,
			Outstanding:       req.Amount,
			Status:            domain.LoanStatusOpen,
			IssuedAt:          req.Timestamp,
			SafeTransactionID: row.ID,
		}
		return q.CreateLoan(ctx, *loan)
	})
	if err != nil {
		return nil, err
	}
	s.logPosting(row)
	return loan, nil
}

// RepayLoan takes a repayment into the safe and settles the loan once
// nothing is outstanding.
func (s *Service) RepayLoan(ctx context.Context, req domain.LoanRepaymentRequest) (*domain.Loan, error) {
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
		loan *domain.Loan
		row  *domain.SafeTransaction
	)
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		var err error
		loan, err = q.GetLoanForUpdate(ctx, req.LoanID)
		if err != nil {
			if isNotFound(err) {
				return notFound("", "loan %s", req.LoanID)
			}
			return err
		}
		if loan.Status != domain.LoanStatusOpen {
			return conflict(ReasonLoanSettled, "loan %s is %s", loan.ID, loan.Status)
		}
		if req.Amount.GreaterThan(loan.Outstanding) {
			return policy(ReasonOverPayment, "loan %s has %s outstanding, got %s", loan.ID, loan.Outstanding, req.Amount)
		}
		safe, err := stationSafe(ctx, q, loan.StationID)
		if err != nil {
			return err
		}
		row, err = s.post(ctx, q, domain.SafePosting{
			SafeID:      safe.ID,
			Type:        domain.SafeTxLoanPayment,
			Amount:      req.Amount,
			Timestamp:   req.Timestamp,
			PerformedBy: req.PerformedBy,
			Description: "repayment from " + loan.Borrower,
		})
		if err != nil {
			return err
		}
		loan.Outstanding = loan.Outstanding.Sub(req.Amount)
		if loan.Outstanding.IsZero() {
			loan.Status = domain.LoanStatusSettled
		}
		return q.UpdateLoan(ctx, *loan)
	})
	if err != nil {
		return nil, err
	}
	s.logPosting(row)
	return loan, nil
}

func (s *Service) SafeStatement(ctx context.Context, stationID string) (*domain.SafeStatement, error) {
	var statement domain.SafeStatement
	err := s.repo.View(ctx, func(q store.Queries) error {
		safe, err := stationSafe(ctx, q, stationID)
		if err != nil {
			return err
		}
		rows, err := q.ListSafeTransactions(ctx, safe.ID)
		if err != nil {
			return err
		}
		statement = domain.SafeStatement{Safe: *safe, Transactions: rows}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &statement, nil
}

// VerifySafe replays the ledger from the opening balance. Every row must
// start where the previous one ended and the last must end at the current
// balance.
func (s *Service) VerifySafe(ctx context.Context, stationID string) (*domain.SafeStatement, error) {
	statement, err := s.SafeStatement(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if err := replay(statement.Safe, statement.Transactions); err != nil {
		s.logger.WithError(err).WithField("safe_id", statement.Safe.ID).Error("safe ledger failed verification")
		return nil, err
	}
	return statement, nil
}

func replay(safe domain.Safe, rows []domain.SafeTransaction) error {
	running := safe.OpeningBalance
	for i, row := range rows {
		if !row.BalanceBefore.Equal(running) {
			return integrity(ReasonBrokenChain, "row %d (%s) starts at %s, previous balance %s", i, row.ID, row.BalanceBefore, running)
		}
		if !row.BalanceBefore.Add(row.Amount).Equal(row.BalanceAfter) {
			return integrity(ReasonBalanceMismatch, "row %d (%s): %s + %s != %s", i, row.ID, row.BalanceBefore, row.Amount, row.BalanceAfter)
		}
		if row.BalanceAfter.IsNegative() {
			return integrity(ReasonBalanceMismatch, "row %d (%s) leaves a negative balance %s", i, row.ID, row.BalanceAfter)
		}
		running = row.BalanceAfter
	}
	if !running.Equal(safe.CurrentBalance) {
		return integrity(ReasonBalanceMismatch, "ledger ends at %s, safe holds %s", running, safe.CurrentBalance)
	}
	return nil
}
