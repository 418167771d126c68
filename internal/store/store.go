package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
)

// Repository runs Queries either read-only or inside a single all-or-nothing
// transaction. An error returned from fn rolls the transaction back.
type Repository interface {
	View(ctx context.Context, fn func(q Queries) error) error
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// Queries is the persistence surface of the engine. The ForUpdate variants
// lock the row until the surrounding transaction ends.
type Queries interface {
	// topology
	CreateStation(ctx context.Context, station domain.Station) error
	GetStation(ctx context.Context, stationID string) (*domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
	CreateFuel(ctx context.Context, fuel domain.Fuel) error
	CreatePrice(ctx context.Context, price domain.Price) error
	PriceAt(ctx context.Context, fuelID string, at time.Time) (*domain.Price, error)
	CreateTank(ctx context.Context, tank domain.Tank) error
	GetTank(ctx context.Context, tankID string) (*domain.Tank, error)
	GetTankForUpdate(ctx context.Context, tankID string) (*domain.Tank, error)
	ListTanks(ctx context.Context, stationID string) ([]domain.Tank, error)
	UpdateTankLevel(ctx context.Context, tankID string, level decimal.Decimal) error
	CreatePump(ctx context.Context, pump domain.Pump) error
	ListPumps(ctx context.Context, stationID string) ([]domain.Pump, error)
	CreateNozzle(ctx context.Context, nozzle domain.Nozzle) error
	ListNozzles(ctx context.Context, stationID string) ([]domain.Nozzle, error)
	LastMeterReading(ctx context.Context, nozzleID string) (decimal.Decimal, error)
	CreateStaff(ctx context.Context, staff domain.Staff) error
	GetStaff(ctx context.Context, staffID string) (*domain.Staff, error)
	CreateTerminal(ctx context.Context, terminal domain.POSTerminal) error
	StationTerminal(ctx context.Context, stationID string) (*domain.POSTerminal, error)
	CreateBank(ctx context.Context, bank domain.Bank) error
	GetBank(ctx context.Context, bankID string) (*domain.Bank, error)

	// shifts
	CreateShift(ctx context.Context, shift domain.Shift) error
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	GetShiftForUpdate(ctx context.Context, shiftID string) (*domain.Shift, error)
	GetOpenShift(ctx context.Context, stationID string) (*domain.Shift, error)
	// LastClosedShift is the station's closed shift with the latest end time.
	LastClosedShift(ctx context.Context, stationID string) (*domain.Shift, error)
	UpdateShift(ctx context.Context, shift domain.Shift) error
	CreateAssignment(ctx context.Context, assignment domain.ShiftAssignment) error
	ListAssignments(ctx context.Context, shiftID string) ([]domain.ShiftAssignment, error)
	UpdateAssignment(ctx context.Context, assignment domain.ShiftAssignment) error
	CreatePOSBatch(ctx context.Context, batch domain.POSBatch) error

	// sales and credit
	CreateSale(ctx context.Context, sale domain.Sale) error
	ListSales(ctx context.Context, shiftID string) ([]domain.Sale, error)
	CreateCustomer(ctx context.Context, customer domain.CreditCustomer) error
	GetCustomer(ctx context.Context, customerID string) (*domain.CreditCustomer, error)
	CreditBalance(ctx context.Context, customerID string) (decimal.Decimal, error)
	CreateCreditPayment(ctx context.Context, payment domain.CreditPayment) error

	// safe
	CreateSafe(ctx context.Context, safe domain.Safe) error
	GetSafe(ctx context.Context, safeID string) (*domain.Safe, error)
	GetSafeForUpdate(ctx context.Context, safeID string) (*domain.Safe, error)
	GetStationSafe(ctx context.Context, stationID string) (*domain.Safe, error)
	// SwapSafeBalance moves the balance from expected to next; ErrIntegrity
	// when the stored balance is no longer expected.
	SwapSafeBalance(ctx context.Context, safeID string, expected decimal.Decimal, next decimal.Decimal, at time.Time) error
	InsertSafeTransaction(ctx context.Context, tx domain.SafeTransaction) error
	ListSafeTransactions(ctx context.Context, safeID string) ([]domain.SafeTransaction, error)
	CreateDeposit(ctx context.Context, deposit domain.Deposit) error
	CreateExpense(ctx context.Context, expense domain.Expense) error
	CreateLoan(ctx context.Context, loan domain.Loan) error
	GetLoanForUpdate(ctx context.Context, loanID string) (*domain.Loan, error)
	UpdateLoan(ctx context.Context, loan domain.Loan) error

	// inventory
	CreateTankDip(ctx context.Context, dip domain.TankDip) error
	CreateDelivery(ctx context.Context, delivery domain.Delivery) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, stationID string, limit int) ([]domain.AuditLog, error)
}
