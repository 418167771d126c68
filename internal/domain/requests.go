package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OpenShiftRequest struct {
	StationID string `json:"station_id" validate:"required"`
	OpenedBy  string `json:"opened_by" validate:"required"`
	// Roster maps nozzle id to the pumper working it for the shift.
	Roster    map[string]string `json:"roster" validate:"required,min=1,dive,keys,required,endkeys,required"`
	Timestamp time.Time         `json:"timestamp"`
}

type ShiftResponse struct {
	Shift       Shift             `json:"shift"`
	Assignments []ShiftAssignment `json:"assignments"`
}

type RecordSaleRequest struct {
	StationID  string          `json:"station_id" validate:"required"`
	ShiftID    string          `json:"shift_id" validate:"required"`
	NozzleID   string          `json:"nozzle_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Tender     string          `json:"tender" validate:"required,oneof=CASH CARD CREDIT"`
	CustomerID string          `json:"customer_id,omitempty" validate:"required_if=Tender CREDIT"`
	RecordedBy string          `json:"recorded_by"`
	Timestamp  time.Time       `json:"timestamp"`
}

type SaleResult struct {
	SaleID   string          `json:"sale_id"`
	NozzleID string          `json:"nozzle_id"`
	Liters   decimal.Decimal `json:"liters"`
	Amount   decimal.Decimal `json:"amount"`
	Tender   string          `json:"tender"`
}

type ShiftSummary struct {
	ShiftID        string                     `json:"shift_id"`
	LitersByNozzle map[string]decimal.Decimal `json:"liters_by_nozzle"`
	CashTotal      decimal.Decimal            `json:"cash_total"`
	CardTotal      decimal.Decimal            `json:"card_total"`
	CreditTotal    decimal.Decimal            `json:"credit_total"`
	SalesTotal     decimal.Decimal            `json:"sales_total"`
	Count          int                        `json:"count"`
}

type CloseShiftRequest struct {
	StationID    string                     `json:"station_id" validate:"required"`
	ShiftID      string                     `json:"shift_id" validate:"required"`
	ClosedBy     string                     `json:"closed_by" validate:"required"`
	Timestamp    time.Time                  `json:"timestamp"`
	LitersSold   map[string]decimal.Decimal `json:"liters_sold"`
	CardTotal    decimal.Decimal            `json:"card_total"`
	CreditTotal  decimal.Decimal            `json:"credit_total"`
	DeclaredCash decimal.Decimal            `json:"declared_cash"`
}

type Reconciliation struct {
	TotalFuelSales decimal.Decimal `json:"total_fuel_sales"`
	Expected       decimal.Decimal `json:"expected"`
	Declared       decimal.Decimal `json:"declared"`
	Variance       decimal.Decimal `json:"variance"`
	Shortage       decimal.Decimal `json:"shortage"`
	Excess         decimal.Decimal `json:"excess"`
}

// TankDiscrepancy reports a tank pushed outside [0, capacity] by a close.
type TankDiscrepancy struct {
	TankID   string          `json:"tank_id"`
	Level    decimal.Decimal `json:"level"`
	Capacity decimal.Decimal `json:"capacity"`
}

type ShiftCloseResult struct {
	Shift           Shift             `json:"shift"`
	Assignments     []ShiftAssignment `json:"assignments"`
	Reconciliation  Reconciliation    `json:"reconciliation"`
	SafeTransaction *SafeTransaction  `json:"safe_transaction,omitempty"`
	POSBatch        *POSBatch         `json:"pos_batch,omitempty"`
	Discrepancies   []TankDiscrepancy `json:"discrepancies,omitempty"`
}

type SafePosting struct {
	SafeID      string          `json:"safe_id" validate:"required"`
	Type        string          `json:"type" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
	PerformedBy string          `json:"performed_by" validate:"required"`
	Description string          `json:"description"`
	ShiftID     string          `json:"shift_id,omitempty"`
}

type BankDepositRequest struct {
	StationID   string    `json:"station_id" validate:"required"`
	BankID      string    `json:"bank_id" validate:"required"`
	PerformedBy string    `json:"performed_by" validate:"required"`
	Timestamp   time.Time `json:"timestamp"`
}

type ExpenseRequest struct {
	StationID   string          `json:"station_id" validate:"required"`
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PerformedBy string          `json:"performed_by" validate:"required"`
	Timestamp   time.Time       `json:"timestamp"`
}

type LoanRequest struct {
	StationID   string          `json:"station_id" validate:"required"`
	Borrower    string          `json:"borrower" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	PerformedBy string          `json:"performed_by" validate:"required"`
	Timestamp   time.Time       `json:"timestamp"`
}

type LoanRepaymentRequest struct {
	LoanID      string          `json:"loan_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	PerformedBy string          `json:"performed_by" validate:"required"`
	Timestamp   time.Time       `json:"timestamp"`
}

type CreditPaymentRequest struct {
	StationID  string          `json:"station_id" validate:"required"`
	CustomerID string          `json:"customer_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	ReceivedBy string          `json:"received_by" validate:"required"`
	Timestamp  time.Time       `json:"timestamp"`
}

type SafeStatement struct {
	Safe         Safe              `json:"safe"`
	Transactions []SafeTransaction `json:"transactions"`
}

type DipRequest struct {
	TankID        string          `json:"tank_id" validate:"required"`
	MeasuredLevel decimal.Decimal `json:"measured_level"`
	PerformedBy   string          `json:"performed_by" validate:"required"`
	Timestamp     time.Time       `json:"timestamp"`
}

type DeliveryRequest struct {
	TankID     string          `json:"tank_id" validate:"required"`
	Liters     decimal.Decimal `json:"liters"`
	Reference  string          `json:"reference"`
	ReceivedBy string          `json:"received_by" validate:"required"`
	Timestamp  time.Time       `json:"timestamp"`
}

type InventoryCheckRequest struct {
	StationID   string    `json:"station_id" validate:"required"`
	AutoReorder bool      `json:"auto_reorder"`
	ReceivedBy  string    `json:"received_by" validate:"required_if=AutoReorder true"`
	Timestamp   time.Time `json:"timestamp"`
}

type TankStatus struct {
	Tank      Tank            `json:"tank"`
	FillRatio decimal.Decimal `json:"fill_ratio"`
	Low       bool            `json:"low"`
}

type InventoryReport struct {
	StationID  string       `json:"station_id"`
	CheckedAt  time.Time    `json:"checked_at"`
	Tanks      []TankStatus `json:"tanks"`
	Deliveries []Delivery   `json:"deliveries,omitempty"`
}
