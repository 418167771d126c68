package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is rounded to cents, volume to micro-liters.
const (
	MoneyScale  int32 = 2
	LitersScale int32 = 6
)

type Station struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
}

type Fuel struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Price struct {
	ID            string          `json:"id"`
	FuelID        string          `json:"fuel_id"`
	PricePerLiter decimal.Decimal `json:"price_per_liter"`
	EffectiveDate time.Time       `json:"effective_date"`
}

type Tank struct {
	ID           string          `json:"id"`
	StationID    string          `json:"station_id"`
	FuelID       string          `json:"fuel_id"`
	Name         string          `json:"name"`
	Capacity     decimal.Decimal `json:"capacity"`
	CurrentLevel decimal.Decimal `json:"current_level"`
}

type Pump struct {
	ID        string `json:"id"`
	StationID string `json:"station_id"`
	Name      string `json:"name"`
}

type Nozzle struct {
	ID        string          `json:"id"`
	StationID string          `json:"station_id"`
	PumpID    string          `json:"pump_id"`
	TankID    string          `json:"tank_id"`
	Number    int             `json:"number"`
	MeterMax  decimal.Decimal `json:"meter_max"`
}

type Staff struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	StationID      string `json:"station_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Active         bool   `json:"active"`
}

type POSTerminal struct {
	ID        string `json:"id"`
	StationID string `json:"station_id"`
	Name      string `json:"name"`
}

type POSBatch struct {
	ID         string          `json:"id"`
	TerminalID string          `json:"terminal_id"`
	ShiftID    string          `json:"shift_id"`
	Amount     decimal.Decimal `json:"amount"`
	BatchedAt  time.Time       `json:"batched_at"`
}

type Bank struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
}

type CreditCustomer struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	Active         bool            `json:"active"`
}

type CreditPayment struct {
	ID                string          `json:"id"`
	CustomerID        string          `json:"customer_id"`
	StationID         string          `json:"station_id"`
	Amount            decimal.Decimal `json:"amount"`
	SafeTransactionID string          `json:"safe_transaction_id"`
	PaidAt            time.Time       `json:"paid_at"`
	ReceivedBy        string          `json:"received_by"`
}

// DeclaredAmounts is frozen on the shift when it closes.
type DeclaredAmounts struct {
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Credit   decimal.Decimal `json:"credit"`
	Expected decimal.Decimal `json:"expected"`
	Variance decimal.Decimal `json:"variance"`
	Shortage decimal.Decimal `json:"shortage"`
	Excess   decimal.Decimal `json:"excess"`
}

type ShiftStatistics struct {
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	TransactionCount int             `json:"transaction_count"`
}

type Shift struct {
	ID         string           `json:"id"`
	StationID  string           `json:"station_id"`
	Number     string           `json:"number"`
	Status     string           `json:"status"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	OpenedBy   string           `json:"opened_by"`
	ClosedBy   string           `json:"closed_by,omitempty"`
	Declared   *DeclaredAmounts `json:"declared,omitempty"`
	Statistics *ShiftStatistics `json:"statistics,omitempty"`
}

type ShiftAssignment struct {
	ID                string           `json:"id"`
	ShiftID           string           `json:"shift_id"`
	NozzleID          string           `json:"nozzle_id"`
	TankID            string           `json:"tank_id"`
	PumperName        string           `json:"pumper_name"`
	StartMeterReading decimal.Decimal  `json:"start_meter_reading"`
	EndMeterReading   *decimal.Decimal `json:"end_meter_reading,omitempty"`
	Status            string           `json:"status"`
	ClosedAt          *time.Time       `json:"closed_at,omitempty"`
}

// LitersSold is the meter delta of a closed assignment.
func (a ShiftAssignment) LitersSold() decimal.Decimal {
	if a.EndMeterReading == nil {
		return decimal.Zero
	}
	return a.EndMeterReading.Sub(a.StartMeterReading)
}

type Sale struct {
	ID           string          `json:"id"`
	StationID    string          `json:"station_id"`
	ShiftID      string          `json:"shift_id"`
	AssignmentID string          `json:"assignment_id"`
	NozzleID     string          `json:"nozzle_id"`
	FuelID       string          `json:"fuel_id"`
	PriceID      string          `json:"price_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Liters       decimal.Decimal `json:"liters"`
	Amount       decimal.Decimal `json:"amount"`
	Tender       string          `json:"tender"`
	CustomerID   string          `json:"customer_id,omitempty"`
	SoldAt       time.Time       `json:"sold_at"`
	RecordedBy   string          `json:"recorded_by"`
}

type Safe struct {
	ID             string          `json:"id"`
	StationID      string          `json:"station_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SafeTransaction is an immutable safe ledger row.
type SafeTransaction struct {
	ID            string          `json:"id"`
	SafeID        string          `json:"safe_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Timestamp     time.Time       `json:"timestamp"`
	PerformedBy   string          `json:"performed_by"`
	Description   string          `json:"description"`
	ShiftID       string          `json:"shift_id,omitempty"`
}

type Deposit struct {
	ID                string          `json:"id"`
	StationID         string          `json:"station_id"`
	BankID            string          `json:"bank_id"`
	Amount            decimal.Decimal `json:"amount"`
	SafeTransactionID string          `json:"safe_transaction_id"`
	DepositedAt       time.Time       `json:"deposited_at"`
	PerformedBy       string          `json:"performed_by"`
}

type Expense struct {
	ID                string          `json:"id"`
	StationID         string          `json:"station_id"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	SafeTransactionID string          `json:"safe_transaction_id"`
	PaidAt            time.Time       `json:"paid_at"`
	PerformedBy       string          `json:"performed_by"`
}

type Loan struct {
	ID                string          `json:"id"`
	StationID         string          `json:"station_id"`
	Borrower          string          `json:"borrower"`
	Principal         decimal.Decimal `json:"principal"`
	Outstanding       decimal.Decimal `json:"outstanding"`
	Status            string          `json:"status"`
	IssuedAt          time.Time       `json:"issued_at"`
	SafeTransactionID string          `json:"safe_transaction_id"`
}

type TankDip struct {
	ID            string          `json:"id"`
	TankID        string          `json:"tank_id"`
	SystemLevel   decimal.Decimal `json:"system_level"`
	MeasuredLevel decimal.Decimal `json:"measured_level"`
	Variance      decimal.Decimal `json:"variance"`
	OverCapacity  bool            `json:"over_capacity"`
	DippedAt      time.Time       `json:"dipped_at"`
	PerformedBy   string          `json:"performed_by"`
}

type Delivery struct {
	ID             string          `json:"id"`
	TankID         string          `json:"tank_id"`
	Liters         decimal.Decimal `json:"liters"`
	LevelBefore    decimal.Decimal `json:"level_before"`
	LevelAfter     decimal.Decimal `json:"level_after"`
	OverflowLiters decimal.Decimal `json:"overflow_liters"`
	Flagged        bool            `json:"flagged"`
	Reference      string          `json:"reference,omitempty"`
	DeliveredAt    time.Time       `json:"delivered_at"`
	ReceivedBy     string          `json:"received_by"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	StationID  string    `json:"station_id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	AssignmentActive = "ACTIVE"
	AssignmentClosed = "CLOSED"
)

const (
	TenderCash   = "CASH"
	TenderCard   = "CARD"
	TenderCredit = "CREDIT"
)

const (
	RoleManager = "MANAGER"
	RoleCashier = "CASHIER"
	RolePumper  = "PUMPER"
)

const (
	SafeTxOpeningBalance   = "OPENING_BALANCE"
	SafeTxCashFuelSales    = "CASH_FUEL_SALES"
	SafeTxBankDeposit      = "BANK_DEPOSIT"
	SafeTxExpense          = "EXPENSE"
	SafeTxLoanDisbursement = "LOAN_DISBURSEMENT"
	SafeTxLoanPayment      = "LOAN_PAYMENT"
	SafeTxCreditPayment    = "CREDIT_PAYMENT"
	SafeTxAdjustment       = "ADJUSTMENT"
)

const (
	LoanStatusOpen    = "OPEN"
	LoanStatusSettled = "SETTLED"
)

func IsSupportedTender(tender string) bool {
	switch tender {
	case TenderCash, TenderCard, TenderCredit:
		return true
	default:
		return false
	}
}

func IsSupportedSafeTxType(txType string) bool {
	switch txType {
	case SafeTxOpeningBalance, SafeTxCashFuelSales, SafeTxBankDeposit, SafeTxExpense,
		SafeTxLoanDisbursement, SafeTxLoanPayment, SafeTxCreditPayment, SafeTxAdjustment:
		return true
	default:
		return false
	}
}

// StationSnapshot is the station structure as read at one point in time.
// Tank levels in it are informational; writers always re-read the tank.
type StationSnapshot struct {
	Station Station  `json:"station"`
	Tanks   []Tank   `json:"tanks"`
	Pumps   []Pump   `json:"pumps"`
	Nozzles []Nozzle `json:"nozzles"`
}

func (s StationSnapshot) Nozzle(nozzleID string) (Nozzle, bool) {
	for _, n := range s.Nozzles {
		if n.ID == nozzleID {
			return n, true
		}
	}
	return Nozzle{}, false
}

func (s StationSnapshot) Tank(tankID string) (Tank, bool) {
	for _, t := range s.Tanks {
		if t.ID == tankID {
			return t, true
		}
	}
	return Tank{}, false
}
