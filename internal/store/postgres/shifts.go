package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
)

const shiftColumns = `id, station_id, number, status, start_time, end_time, opened_by, closed_by,
	declared_cash, declared_card, declared_credit, expected_cash, cash_variance, cash_shortage, cash_excess,
	total_sales, total_volume, transaction_count`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var (
		shift    domain.Shift
		endTime  sql.NullTime
		closedBy sql.NullString
		cash     decimal.NullDecimal
		card     decimal.NullDecimal
		credit   decimal.NullDecimal
		expected decimal.NullDecimal
		variance decimal.NullDecimal
		shortage decimal.NullDecimal
		excess   decimal.NullDecimal
		sales    decimal.NullDecimal
		volume   decimal.NullDecimal
		count    sql.NullInt64
	)
	err := row.Scan(&shift.ID, &shift.StationID, &shift.Number, &shift.Status, &shift.StartTime, &endTime,
		&shift.OpenedBy, &closedBy, &cash, &card, &credit, &expected, &variance, &shortage, &excess,
		&sales, &volume, &count)
	if err != nil {
		return nil, notFound(err)
	}
	shift.EndTime = timePtr(endTime)
	shift.ClosedBy = closedBy.String
	if cash.Valid {
		shift.Declared = &domain.DeclaredAmounts{
			Cash:     cash.Decimal,
			Card:     card.Decimal,
			Credit:   credit.Decimal,
			Expected: expected.Decimal,
			Variance: variance.Decimal,
			Shortage: shortage.Decimal,
			Excess:   excess.Decimal,
		}
	}
	if sales.Valid {
		shift.Statistics = &domain.ShiftStatistics{
			TotalSales:       sales.Decimal,
			TotalVolume:      volume.Decimal,
			TransactionCount: int(count.Int64),
		}
	}
	return &shift, nil
}

func shiftArgs(shift domain.Shift) []any {
	args := []any{
		shift.ID, shift.StationID, shift.Number, shift.Status, shift.StartTime, nullTime(shift.EndTime),
		shift.OpenedBy, nullIfEmpty(shift.ClosedBy),
	}
	if d := shift.Declared; d != nil {
		args = append(args, d.Cash, d.Card, d.Credit, d.Expected, d.Variance, d.Shortage, d.Excess)
	} else {
		args = append(args, nil, nil, nil, nil, nil, nil, nil)
	}
	if st := shift.Statistics; st != nil {
		args = append(args, st.TotalSales, st.TotalVolume, st.TransactionCount)
	} else {
		args = append(args, nil, nil, nil)
	}
	return args
}

func (q *queries) CreateShift(ctx context.Context, shift domain.Shift) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, shiftArgs(shift)...)
	return insertErr(err)
}

func (q *queries) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return scanShift(q.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, shiftID))
}

func (q *queries) GetShiftForUpdate(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return scanShift(q.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1 FOR UPDATE`, shiftID))
}

func (q *queries) GetOpenShift(ctx context.Context, stationID string) (*domain.Shift, error) {
	return scanShift(q.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE station_id = $1 AND status = 'OPEN'
	`, stationID))
}

func (q *queries) LastClosedShift(ctx context.Context, stationID string) (*domain.Shift, error) {
	return scanShift(q.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE station_id = $1 AND status = 'CLOSED'
		ORDER BY end_time DESC
		LIMIT 1
	`, stationID))
}

func (q *queries) UpdateShift(ctx context.Context, shift domain.Shift) error {
	return expectOne(q.db.ExecContext(ctx, `
		UPDATE shifts
		SET station_id = $2, number = $3, status = $4, start_time = $5, end_time = $6, opened_by = $7, closed_by = $8,
			declared_cash = $9, declared_card = $10, declared_credit = $11, expected_cash = $12,
			cash_variance = $13, cash_shortage = $14, cash_excess = $15,
			total_sales = $16, total_volume = $17, transaction_count = $18
		WHERE id = $1
	`, shiftArgs(shift)...))
}

const assignmentColumns = `id, shift_id, nozzle_id, tank_id, pumper_name, start_meter_reading, end_meter_reading, status, closed_at`

func (q *queries) CreateAssignment(ctx context.Context, a domain.ShiftAssignment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO shift_assignments (`+assignmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.ShiftID, a.NozzleID, a.TankID, a.PumperName, a.StartMeterReading, nullDecimal(a.EndMeterReading), a.Status, nullTime(a.ClosedAt))
	return insertErr(err)
}

func (q *queries) ListAssignments(ctx context.Context, shiftID string) ([]domain.ShiftAssignment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM shift_assignments
		WHERE shift_id = $1
		ORDER BY seq
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ShiftAssignment, 0, 8)
	for rows.Next() {
		var (
			a        domain.ShiftAssignment
			end      decimal.NullDecimal
			closedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.ShiftID, &a.NozzleID, &a.TankID, &a.PumperName, &a.StartMeterReading, &end, &a.Status, &closedAt); err != nil {
			return nil, err
		}
		if end.Valid {
			reading := end.Decimal
			a.EndMeterReading = &reading
		}
		a.ClosedAt = timePtr(closedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) UpdateAssignment(ctx context.Context, a domain.ShiftAssignment) error {
	return expectOne(q.db.ExecContext(ctx, `
		UPDATE shift_assignments
		SET end_meter_reading = $2, status = $3, closed_at = $4
		WHERE id = $1
	`, a.ID, nullDecimal(a.EndMeterReading), a.Status, nullTime(a.ClosedAt)))
}

func (q *queries) CreatePOSBatch(ctx context.Context, batch domain.POSBatch) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pos_batches (id, terminal_id, shift_id, amount, batched_at)
		VALUES ($1,$2,$3,$4,$5)
	`, batch.ID, batch.TerminalID, batch.ShiftID, batch.Amount, batch.BatchedAt)
	return insertErr(err)
}

func (q *queries) CreateSale(ctx context.Context, sale domain.Sale) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sales (id, station_id, shift_id, assignment_id, nozzle_id, fuel_id, price_id, unit_price,
			liters, amount, tender, customer_id, sold_at, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.StationID, sale.ShiftID, sale.AssignmentID, sale.NozzleID, sale.FuelID, sale.PriceID, sale.UnitPrice,
		sale.Liters, sale.Amount, sale.Tender, nullIfEmpty(sale.CustomerID), sale.SoldAt, sale.RecordedBy)
	return insertErr(err)
}

func (q *queries) ListSales(ctx context.Context, shiftID string) ([]domain.Sale, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, station_id, shift_id, assignment_id, nozzle_id, fuel_id, price_id, unit_price,
			liters, amount, tender, customer_id, sold_at, recorded_by
		FROM sales
		WHERE shift_id = $1
		ORDER BY seq
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var (
			sale       domain.Sale
			customerID sql.NullString
		)
		if err := rows.Scan(&sale.ID, &sale.StationID, &sale.ShiftID, &sale.AssignmentID, &sale.NozzleID, &sale.FuelID,
			&sale.PriceID, &sale.UnitPrice, &sale.Liters, &sale.Amount, &sale.Tender, &customerID, &sale.SoldAt, &sale.RecordedBy); err != nil {
			return nil, err
		}
		sale.CustomerID = customerID.String
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (q *queries) CreateCustomer(ctx context.Context, customer domain.CreditCustomer) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO credit_customers (id, organization_id, name, credit_limit, active)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.OrganizationID, customer.Name, customer.CreditLimit, customer.Active)
	return insertErr(err)
}

func (q *queries) GetCustomer(ctx context.Context, customerID string) (*domain.CreditCustomer, error) {
	var c domain.CreditCustomer
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, credit_limit, active
		FROM credit_customers
		WHERE id = $1
	`, customerID).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.CreditLimit, &c.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (q *queries) CreditBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(amount) FROM sales WHERE customer_id = $1 AND tender = 'CREDIT'), 0)
			- COALESCE((SELECT SUM(amount) FROM credit_payments WHERE customer_id = $1), 0)
	`, customerID).Scan(&balance)
	return balance, err
}

func (q *queries) CreateCreditPayment(ctx context.Context, p domain.CreditPayment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO credit_payments (id, customer_id, station_id, amount, safe_transaction_id, paid_at, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.CustomerID, p.StationID, p.Amount, p.SafeTransactionID, p.PaidAt, p.ReceivedBy)
	return insertErr(err)
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
