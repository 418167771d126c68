package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

func (q *queries) CreateStation(ctx context.Context, station domain.Station) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stations (id, organization_id, code, name)
		VALUES ($1,$2,$3,$4)
	`, station.ID, station.OrganizationID, station.Code, station.Name)
	return insertErr(err)
}

func (q *queries) GetStation(ctx context.Context, stationID string) (*domain.Station, error) {
	var st domain.Station
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, code, name
		FROM stations
		WHERE id = $1
	`, stationID).Scan(&st.ID, &st.OrganizationID, &st.Code, &st.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (q *queries) ListStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, organization_id, code, name
		FROM stations
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Station, 0, 8)
	for rows.Next() {
		var st domain.Station
		if err := rows.Scan(&st.ID, &st.OrganizationID, &st.Code, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (q *queries) CreateFuel(ctx context.Context, fuel domain.Fuel) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO fuels (id, code, name) VALUES ($1,$2,$3)
	`, fuel.ID, fuel.Code, fuel.Name)
	return insertErr(err)
}

func (q *queries) CreatePrice(ctx context.Context, price domain.Price) error {
	if price.ID == "" || !price.PricePerLiter.IsPositive() {
		return store.ErrInvalidInput
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO fuel_prices (id, fuel_id, price_per_liter, effective_date)
		VALUES ($1,$2,$3,$4)
	`, price.ID, price.FuelID, price.PricePerLiter, price.EffectiveDate)
	return insertErr(err)
}

func (q *queries) PriceAt(ctx context.Context, fuelID string, at time.Time) (*domain.Price, error) {
	var p domain.Price
	err := q.db.QueryRowContext(ctx, `
		SELECT id, fuel_id, price_per_liter, effective_date
		FROM fuel_prices
		WHERE fuel_id = $1 AND effective_date <= $2
		ORDER BY effective_date DESC, id DESC
		LIMIT 1
	`, fuelID, at).Scan(&p.ID, &p.FuelID, &p.PricePerLiter, &p.EffectiveDate)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const tankColumns = `id, station_id, fuel_id, name, capacity, current_level`

func scanTank(row rowScanner) (*domain.Tank, error) {
	var t domain.Tank
	if err := row.Scan(&t.ID, &t.StationID, &t.FuelID, &t.Name, &t.Capacity, &t.CurrentLevel); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (q *queries) CreateTank(ctx context.Context, tank domain.Tank) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tanks (`+tankColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, tank.ID, tank.StationID, tank.FuelID, tank.Name, tank.Capacity, tank.CurrentLevel)
	return insertErr(err)
}

func (q *queries) GetTank(ctx context.Context, tankID string) (*domain.Tank, error) {
	return scanTank(q.db.QueryRowContext(ctx, `SELECT `+tankColumns+` FROM tanks WHERE id = $1`, tankID))
}

func (q *queries) GetTankForUpdate(ctx context.Context, tankID string) (*domain.Tank, error) {
	return scanTank(q.db.QueryRowContext(ctx, `SELECT `+tankColumns+` FROM tanks WHERE id = $1 FOR UPDATE`, tankID))
}

func (q *queries) ListTanks(ctx context.Context, stationID string) ([]domain.Tank, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+tankColumns+` FROM tanks WHERE station_id = $1 ORDER BY id`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Tank, 0, 4)
	for rows.Next() {
		t, err := scanTank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (q *queries) UpdateTankLevel(ctx context.Context, tankID string, level decimal.Decimal) error {
	return expectOne(q.db.ExecContext(ctx, `UPDATE tanks SET current_level = $2 WHERE id = $1`, tankID, level))
}

func (q *queries) CreatePump(ctx context.Context, pump domain.Pump) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pumps (id, station_id, name) VALUES ($1,$2,$3)
	`, pump.ID, pump.StationID, pump.Name)
	return insertErr(err)
}

func (q *queries) ListPumps(ctx context.Context, stationID string) ([]domain.Pump, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, station_id, name FROM pumps WHERE station_id = $1 ORDER BY id
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Pump, 0, 4)
	for rows.Next() {
		var p domain.Pump
		if err := rows.Scan(&p.ID, &p.StationID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) CreateNozzle(ctx context.Context, nozzle domain.Nozzle) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO nozzles (id, station_id, pump_id, tank_id, number, meter_max)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, nozzle.ID, nozzle.StationID, nozzle.PumpID, nozzle.TankID, nozzle.Number, nozzle.MeterMax)
	return insertErr(err)
}

func (q *queries) ListNozzles(ctx context.Context, stationID string) ([]domain.Nozzle, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, station_id, pump_id, tank_id, number, meter_max
		FROM nozzles
		WHERE station_id = $1
		ORDER BY number
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Nozzle, 0, 8)
	for rows.Next() {
		var n domain.Nozzle
		if err := rows.Scan(&n.ID, &n.StationID, &n.PumpID, &n.TankID, &n.Number, &n.MeterMax); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *queries) LastMeterReading(ctx context.Context, nozzleID string) (decimal.Decimal, error) {
	var reading decimal.Decimal
	err := q.db.QueryRowContext(ctx, `
		SELECT end_meter_reading
		FROM shift_assignments
		WHERE nozzle_id = $1 AND status = 'CLOSED' AND end_meter_reading IS NOT NULL
		ORDER BY seq DESC
		LIMIT 1
	`, nozzleID).Scan(&reading)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return reading, nil
}

func (q *queries) CreateStaff(ctx context.Context, staff domain.Staff) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO staff (id, organization_id, station_id, name, role, active)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, staff.ID, staff.OrganizationID, staff.StationID, staff.Name, staff.Role, staff.Active)
	return insertErr(err)
}

func (q *queries) GetStaff(ctx context.Context, staffID string) (*domain.Staff, error) {
	var st domain.Staff
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, station_id, name, role, active
		FROM staff
		WHERE id = $1
	`, staffID).Scan(&st.ID, &st.OrganizationID, &st.StationID, &st.Name, &st.Role, &st.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (q *queries) CreateTerminal(ctx context.Context, terminal domain.POSTerminal) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pos_terminals (id, station_id, name) VALUES ($1,$2,$3)
	`, terminal.ID, terminal.StationID, terminal.Name)
	return insertErr(err)
}

func (q *queries) StationTerminal(ctx context.Context, stationID string) (*domain.POSTerminal, error) {
	var t domain.POSTerminal
	err := q.db.QueryRowContext(ctx, `
		SELECT id, station_id, name
		FROM pos_terminals
		WHERE station_id = $1
		ORDER BY id
		LIMIT 1
	`, stationID).Scan(&t.ID, &t.StationID, &t.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (q *queries) CreateBank(ctx context.Context, bank domain.Bank) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO banks (id, name, account_number) VALUES ($1,$2,$3)
	`, bank.ID, bank.Name, bank.AccountNumber)
	return insertErr(err)
}

func (q *queries) GetBank(ctx context.Context, bankID string) (*domain.Bank, error) {
	var b domain.Bank
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, account_number FROM banks WHERE id = $1
	`, bankID).Scan(&b.ID, &b.Name, &b.AccountNumber)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}
