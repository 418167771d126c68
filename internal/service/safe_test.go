package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

func TestBankDepositSweepsDownToFloat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "600000")

	deposit, err := f.svc.BankDeposit(ctx, domain.BankDepositRequest{
		StationID:   store.DemoStationID,
		BankID:      store.DemoBankID,
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, deposit)
	assert.True(t, deposit.Amount.Equal(dec("550000")))

	statement, err := f.svc.VerifySafe(ctx, store.DemoStationID)
	require.NoError(t, err)
	assert.True(t, statement.Safe.CurrentBalance.Equal(dec("50000")))
	last := statement.Transactions[len(statement.Transactions)-1]
	assert.Equal(t, domain.SafeTxBankDeposit, last.Type)
	assert.True(t, last.Amount.Equal(dec("-550000")))
	assert.Equal(t, deposit.SafeTransactionID, last.ID)

	again, err := f.svc.BankDeposit(ctx, domain.BankDepositRequest{
		StationID:   store.DemoStationID,
		BankID:      store.DemoBankID,
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestBankDepositAtThresholdIsNoop(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "500000")

	deposit, err := f.svc.BankDeposit(context.Background(), domain.BankDepositRequest{
		StationID:   store.DemoStationID,
		BankID:      store.DemoBankID,
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Nil(t, deposit)
}

func TestBankDepositUnknownBank(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "600000")

	_, err := f.svc.BankDeposit(context.Background(), domain.BankDepositRequest{
		StationID:   store.DemoStationID,
		BankID:      "bank-missing",
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0.Add(time.Hour),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostSafeTransactionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posting := domain.SafePosting{
		SafeID:      store.DemoSafeID,
		Type:        domain.SafeTxAdjustment,
		Amount:      dec("-1"),
		Timestamp:   t0,
		PerformedBy: store.DemoManagerID,
	}

	_, err := f.svc.PostSafeTransaction(ctx, posting)
	var perr *PolicyError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonInsufficientFunds, perr.Reason)

	posting.Amount = decimal.Zero
	_, err = f.svc.PostSafeTransaction(ctx, posting)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	posting.Amount = dec("10")
	posting.Type = "WIRE"
	_, err = f.svc.PostSafeTransaction(ctx, posting)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	posting.Type = domain.SafeTxAdjustment
	posting.SafeID = "safe-missing"
	_, err = f.svc.PostSafeTransaction(ctx, posting)
	assert.ErrorIs(t, err, store.ErrNotFound)

	posting.SafeID = store.DemoSafeID
	row, err := f.svc.PostSafeTransaction(ctx, posting)
	require.NoError(t, err)
	assert.True(t, row.BalanceBefore.IsZero())
	assert.True(t, row.BalanceAfter.Equal(dec("10")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SafePostings.WithLabelValues(domain.SafeTxAdjustment)))
}

func TestParallelPostingsKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const workers = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.PostSafeTransaction(ctx, domain.SafePosting{
				SafeID:      store.DemoSafeID,
				Type:        domain.SafeTxCashFuelSales,
				Amount:      dec("100"),
				Timestamp:   t0.Add(time.Duration(i) * time.Second),
				PerformedBy: store.DemoCashierID,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	statement, err := f.svc.VerifySafe(ctx, store.DemoStationID)
	require.NoError(t, err)
	assert.Len(t, statement.Transactions, workers)
	assert.True(t, statement.Safe.CurrentBalance.Equal(dec("5000")))
}

func TestPayExpenseSkipsWhenSafeShort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.ExpenseRequest{
		StationID:   store.DemoStationID,
		Category:    "utilities",
		Description: "electricity",
		Amount:      dec("1000"),
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0,
	}

	expense, err := f.svc.PayExpense(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, expense)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ExpensesSkipped))

	f.fund(t, "5000")
	expense, err = f.svc.PayExpense(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, expense)

	statement, err := f.svc.VerifySafe(ctx, store.DemoStationID)
	require.NoError(t, err)
	assert.True(t, statement.Safe.CurrentBalance.Equal(dec("4000")))

	req.Amount = dec("-5")
	_, err = f.svc.PayExpense(ctx, req)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestLoanLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.DisburseLoan(ctx, domain.LoanRequest{
		StationID:   store.DemoStationID,
		Borrower:    "Kamal",
		Amount:      dec("4000"),
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0,
	})
	var perr *PolicyError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonInsufficientFunds, perr.Reason)

	f.fund(t, "10000")
	loan, err := f.svc.DisburseLoan(ctx, domain.LoanRequest{
		StationID:   store.DemoStationID,
		Borrower:    "Kamal",
		Amount:      dec("4000"),
		PerformedBy: store.DemoManagerID,
		Timestamp:   t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOpen, loan.Status)

	repay := domain.LoanRepaymentRequest{
		LoanID:      loan.ID,
		Amount:      dec("5000"),
		PerformedBy: store.DemoCashierID,
		Timestamp:   t0.Add(2 * time.Hour),
	}
	_, err = f.svc.RepayLoan(ctx, repay)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonOverPayment, perr.Reason)

	repay.Amount = dec("1500")
	loan, err = f.svc.RepayLoan(ctx, repay)
	require.NoError(t, err)
	assert.True(t, loan.Outstanding.Equal(dec("2500")))
	assert.Equal(t, domain.LoanStatusOpen, loan.Status)

	repay.Amount = dec("2500")
	loan, err = f.svc.RepayLoan(ctx, repay)
	require.NoError(t, err)
	assert.True(t, loan.Outstanding.IsZero())
	assert.Equal(t, domain.LoanStatusSettled, loan.Status)

	repay.Amount = dec("1")
	_, err = f.svc.RepayLoan(ctx, repay)
	assert.ErrorIs(t, err, store.ErrConflict)

	statement, err := f.svc.VerifySafe(ctx, store.DemoStationID)
	require.NoError(t, err)
	assert.True(t, statement.Safe.CurrentBalance.Equal(dec("10000")))
}

func TestReplayDetectsBrokenLedger(t *testing.T) {
	safe := domain.Safe{ID: "safe-x", OpeningBalance: dec("100"), CurrentBalance: dec("150")}
	rows := []domain.SafeTransaction{
		{ID: "a", Amount: dec("100"), BalanceBefore: dec("100"), BalanceAfter: dec("200")},
		{ID: "b", Amount: dec("-50"), BalanceBefore: dec("200"), BalanceAfter: dec("150")},
	}
	require.NoError(t, replay(safe, rows))

	var ierr *IntegrityError

	chain := append([]domain.SafeTransaction(nil), rows...)
	chain[1].BalanceBefore = dec("190")
	chain[1].BalanceAfter = dec("140")
	require.ErrorAs(t, replay(safe, chain), &ierr)
	assert.Equal(t, ReasonBrokenChain, ierr.Reason)

	arithmetic := append([]domain.SafeTransaction(nil), rows...)
	arithmetic[0].Amount = dec("90")
	require.ErrorAs(t, replay(safe, arithmetic), &ierr)
	assert.Equal(t, ReasonBalanceMismatch, ierr.Reason)

	drifted := safe
	drifted.CurrentBalance = dec("151")
	require.ErrorAs(t, replay(drifted, rows), &ierr)
	assert.Equal(t, ReasonBalanceMismatch, ierr.Reason)
}

func TestStationWithoutSafe(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SafeStatement(context.Background(), "st-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
