package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

const safeColumns = `id, station_id, opening_balance, current_balance, updated_at`

func scanSafe(row rowScanner) (*domain.Safe, error) {
	var safe domain.Safe
	if err := row.Scan(&safe.ID, &safe.StationID, &safe.OpeningBalance, &safe.CurrentBalance, &safe.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &safe, nil
}

func (q *queries) CreateSafe(ctx context.Context, safe domain.Safe) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO safes (`+safeColumns+`)
		VALUES ($1,$2,$3,$4,$5)
	`, safe.ID, safe.StationID, safe.OpeningBalance, safe.CurrentBalance, safe.UpdatedAt)
	return insertErr(err)
}

func (q *queries) GetSafe(ctx context.Context, safeID string) (*domain.Safe, error) {
	return scanSafe(q.db.QueryRowContext(ctx, `SELECT `+safeColumns+` FROM safes WHERE id = $1`, safeID))
}

func (q *queries) GetSafeForUpdate(ctx context.Context, safeID string) (*domain.Safe, error) {
	return scanSafe(q.db.QueryRowContext(ctx, `SELECT `+safeColumns+` FROM safes WHERE id = $1 FOR UPDATE`, safeID))
}

func (q *queries) GetStationSafe(ctx context.Context, stationID string) (*domain.Safe, error) {
	return scanSafe(q.db.QueryRowContext(ctx, `SELECT `+safeColumns+` FROM safes WHERE station_id = $1`, stationID))
}

func (q *queries) SwapSafeBalance(ctx context.Context, safeID string, expected decimal.Decimal, next decimal.Decimal, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE safes
		SET current_balance = $3, updated_at = $4
		WHERE id = $1 AND current_balance = $2
	`, safeID, expected, next, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := q.GetSafe(ctx, safeID); err != nil {
			return err
		}
		return store.ErrIntegrity
	}
	return nil
}

func (q *queries) InsertSafeTransaction(ctx context.Context, tx domain.SafeTransaction) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO safe_transactions (id, safe_id, type, amount, balance_before, balance_after, occurred_at, performed_by, description, shift_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, tx.ID, tx.SafeID, tx.Type, tx.Amount, tx.BalanceBefore, tx.BalanceAfter, tx.Timestamp, tx.PerformedBy, tx.Description, nullIfEmpty(tx.ShiftID))
	return insertErr(err)
}

func (q *queries) ListSafeTransactions(ctx context.Context, safeID string) ([]domain.SafeTransaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, safe_id, type, amount, balance_before, balance_after, occurred_at, performed_by, description, shift_id
		FROM safe_transactions
		WHERE safe_id = $1
		ORDER BY seq
	`, safeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SafeTransaction, 0, 64)
	for rows.Next() {
		var (
			tx      domain.SafeTransaction
			shiftID sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.SafeID, &tx.Type, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
			&tx.Timestamp, &tx.PerformedBy, &tx.Description, &shiftID); err != nil {
			return nil, err
		}
		tx.ShiftID = shiftID.String
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (q *queries) CreateDeposit(ctx context.Context, d domain.Deposit) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO deposits (id, station_id, bank_id, amount, safe_transaction_id, deposited_at, performed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, d.ID, d.StationID, d.BankID, d.Amount, d.SafeTransactionID, d.DepositedAt, d.PerformedBy)
	return insertErr(err)
}

func (q *queries) CreateExpense(ctx context.Context, e domain.Expense) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO expenses (id, station_id, category, description, amount, safe_transaction_id, paid_at, performed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.StationID, e.Category, e.Description, e.Amount, e.SafeTransactionID, e.PaidAt, e.PerformedBy)
	return insertErr(err)
}

const loanColumns = `id, station_id, borrower, principal, outstanding, status, issued_at, safe_transaction_id`

func (q *queries) CreateLoan(ctx context.Context, l domain.Loan) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, l.ID, l.StationID, l.Borrower, l.Principal, l.Outstanding, l.Status, l.IssuedAt, l.SafeTransactionID)
	return insertErr(err)
}

func (q *queries) GetLoanForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	var l domain.Loan
	err := q.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID).
		Scan(&l.ID, &l.StationID, &l.Borrower, &l.Principal, &l.Outstanding, &l.Status, &l.IssuedAt, &l.SafeTransactionID)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (q *queries) UpdateLoan(ctx context.Context, l domain.Loan) error {
	return expectOne(q.db.ExecContext(ctx, `
		UPDATE loans SET outstanding = $2, status = $3 WHERE id = $1
	`, l.ID, l.Outstanding, l.Status))
}

func (q *queries) CreateTankDip(ctx context.Context, dip domain.TankDip) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tank_dips (id, tank_id, system_level, measured_level, variance, over_capacity, dipped_at, performed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, dip.ID, dip.TankID, dip.SystemLevel, dip.MeasuredLevel, dip.Variance, dip.OverCapacity, dip.DippedAt, dip.PerformedBy)
	return insertErr(err)
}

func (q *queries) CreateDelivery(ctx context.Context, d domain.Delivery) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, tank_id, liters, level_before, level_after, overflow_liters, flagged, reference, delivered_at, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, d.ID, d.TankID, d.Liters, d.LevelBefore, d.LevelAfter, d.OverflowLiters, d.Flagged, nullIfEmpty(d.Reference), d.DeliveredAt, d.ReceivedBy)
	return insertErr(err)
}

func (q *queries) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, station_id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.StationID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return insertErr(err)
}

func (q *queries) ListAuditLogs(ctx context.Context, stationID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, station_id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR station_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StationID, &entry.Actor, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
