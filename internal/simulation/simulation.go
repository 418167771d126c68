// Package simulation drives the ledger engine through whole trading days
// with randomized rosters, sales, cash counts and expenses.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/service"
	"stationledger/backend/internal/store"
)

type Config struct {
	StationID    string
	ManagerID    string
	CashierID    string
	BankID       string
	CustomerID   string
	Pumpers      []string
	Start        time.Time
	Days         int
	ShiftsPerDay int
	MinSales     int
	MaxSales     int
	MinAmount    int64
	MaxAmount    int64
	// ExpenseProbability is the chance of one expense after each shift.
	ExpenseProbability float64
	// CashJitter bounds how far the counted cash strays from the cash sales.
	CashJitter int64
}

// DemoConfig runs against the seeded demo station.
func DemoConfig(start time.Time, days int) Config {
	return Config{
		StationID:          store.DemoStationID,
		ManagerID:          store.DemoManagerID,
		CashierID:          store.DemoCashierID,
		BankID:             store.DemoBankID,
		CustomerID:         store.DemoCustomerID,
		Pumpers:            store.DemoPumpers,
		Start:              start,
		Days:               days,
		ShiftsPerDay:       2,
		MinSales:           20,
		MaxSales:           50,
		MinAmount:          500,
		MaxAmount:          15000,
		ExpenseProbability: 0.3,
		CashJitter:         200,
	}
}

type Summary struct {
	Days            int             `json:"days"`
	Shifts          int             `json:"shifts"`
	Sales           int             `json:"sales"`
	SalesTotal      decimal.Decimal `json:"sales_total"`
	CashDeclared    decimal.Decimal `json:"cash_declared"`
	NetVariance     decimal.Decimal `json:"net_variance"`
	Deposited       decimal.Decimal `json:"deposited"`
	Expenses        decimal.Decimal `json:"expenses"`
	ExpensesSkipped int             `json:"expenses_skipped"`
	CreditRefused   int             `json:"credit_refused"`
	CreditRepaid    decimal.Decimal `json:"credit_repaid"`
	Reorders        int             `json:"reorders"`
	Dips            int             `json:"dips"`
	FinalBalance    decimal.Decimal `json:"final_balance"`
	LedgerRows      int             `json:"ledger_rows"`
}

type Driver struct {
	svc    *service.Service
	cfg    Config
	rng    *rand.Rand
	logger *logrus.Logger
}

func New(svc *service.Service, cfg Config, rng *rand.Rand, logger *logrus.Logger) *Driver {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(cfg.Start.UnixNano()), 0x5eed))
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Driver{svc: svc, cfg: cfg, rng: rng, logger: logger}
}

func (d *Driver) validate() error {
	switch {
	case d.cfg.Days < 1:
		return errors.New("days must be at least 1")
	case d.cfg.ShiftsPerDay < 1 || d.cfg.ShiftsPerDay > 24:
		return errors.New("shifts per day must be within [1, 24]")
	case d.cfg.MinSales < 0 || d.cfg.MaxSales < d.cfg.MinSales:
		return errors.New("sales range is invalid")
	case d.cfg.MinAmount < 1 || d.cfg.MaxAmount < d.cfg.MinAmount:
		return errors.New("amount range is invalid")
	case len(d.cfg.Pumpers) == 0:
		return errors.New("at least one pumper is required")
	case d.cfg.Start.IsZero():
		return errors.New("start time is required")
	}
	return nil
}

// Run plays every configured day and verifies the safe ledger at the end.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	station, err := d.svc.Station(ctx, d.cfg.StationID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Days: d.cfg.Days}
	shiftLength := 24 * time.Hour / time.Duration(d.cfg.ShiftsPerDay)
	for day := 0; day < d.cfg.Days; day++ {
		dayStart := d.cfg.Start.AddDate(0, 0, day)
		for n := 0; n < d.cfg.ShiftsPerDay; n++ {
			start := dayStart.Add(time.Duration(n) * shiftLength)
			if err := d.runShift(ctx, station, start, shiftLength, sum); err != nil {
				return sum, fmt.Errorf("day %d shift %d: %w", day+1, n+1, err)
			}
		}
		if err := d.endOfDay(ctx, dayStart.Add(24*time.Hour-time.Minute), sum); err != nil {
			return sum, fmt.Errorf("day %d close: %w", day+1, err)
		}
	}

	statement, err := d.svc.VerifySafe(ctx, d.cfg.StationID)
	if err != nil {
		return sum, err
	}
	sum.FinalBalance = statement.Safe.CurrentBalance
	sum.LedgerRows = len(statement.Transactions)
	return sum, nil
}

func (d *Driver) roster(nozzles []domain.Nozzle) map[string]string {
	pumpers := append([]string(nil), d.cfg.Pumpers...)
	d.rng.Shuffle(len(pumpers), func(i, j int) { pumpers[i], pumpers[j] = pumpers[j], pumpers[i] })
	roster := make(map[string]string, len(nozzles))
	for i, nozzle := range nozzles {
		roster[nozzle.ID] = pumpers[i%len(pumpers)]
	}
	return roster
}

func (d *Driver) tender() string {
	switch r := d.rng.Float64(); {
	case r < 0.7:
		return domain.TenderCash
	case r < 0.9:
		return domain.TenderCard
	default:
		return domain.TenderCredit
	}
}

func (d *Driver) between(lo, hi int64) int64 {
	return lo + d.rng.Int64N(hi-lo+1)
}

func (d *Driver) runShift(ctx context.Context, station *domain.StationSnapshot, start time.Time, length time.Duration, sum *Summary) error {
	opened, err := d.svc.OpenShift(ctx, domain.OpenShiftRequest{
		StationID: d.cfg.StationID,
		OpenedBy:  d.cfg.ManagerID,
		Roster:    d.roster(station.Nozzles),
		Timestamp: start,
	})
	if err != nil {
		return err
	}
	shiftID := opened.Shift.ID
	acc := service.NewAccumulator(shiftID)

	count := int(d.between(int64(d.cfg.MinSales), int64(d.cfg.MaxSales)))
	step := length / time.Duration(count+2)
	for i := 0; i < count; i++ {
		req := domain.RecordSaleRequest{
			StationID:  d.cfg.StationID,
			ShiftID:    shiftID,
			NozzleID:   station.Nozzles[d.rng.IntN(len(station.Nozzles))].ID,
			Amount:     decimal.NewFromInt(d.between(d.cfg.MinAmount, d.cfg.MaxAmount)),
			Tender:     d.tender(),
			RecordedBy: d.cfg.CashierID,
			Timestamp:  start.Add(time.Duration(i+1) * step),
		}
		if req.Tender == domain.TenderCredit {
			if d.cfg.CustomerID == "" {
				req.Tender = domain.TenderCash
			} else {
				req.CustomerID = d.cfg.CustomerID
			}
		}
		res, err := d.svc.RecordSale(ctx, req)
		var perr *service.PolicyError
		if errors.As(err, &perr) && perr.Reason == service.ReasonCreditLimitExceeded {
			sum.CreditRefused++
			req.Tender, req.CustomerID = domain.TenderCash, ""
			res, err = d.svc.RecordSale(ctx, req)
		}
		if err != nil {
			return err
		}
		acc.Add(*res)
	}

	totals := acc.Summary()
	jitter := d.between(-d.cfg.CashJitter, d.cfg.CashJitter)
	declared := decimal.Max(decimal.Zero, totals.CashTotal.Add(decimal.NewFromInt(jitter)))
	closedAt := start.Add(length - step)
	result, err := d.svc.CloseShift(ctx, acc.CloseRequest(d.cfg.StationID, d.cfg.ManagerID, declared, closedAt))
	if err != nil {
		return err
	}

	sum.Shifts++
	sum.Sales += totals.Count
	sum.SalesTotal = sum.SalesTotal.Add(result.Reconciliation.TotalFuelSales)
	sum.CashDeclared = sum.CashDeclared.Add(declared)
	sum.NetVariance = sum.NetVariance.Add(result.Reconciliation.Variance)

	if d.cfg.BankID != "" {
		deposit, err := d.svc.BankDeposit(ctx, domain.BankDepositRequest{
			StationID:   d.cfg.StationID,
			BankID:      d.cfg.BankID,
			PerformedBy: d.cfg.ManagerID,
			Timestamp:   closedAt.Add(time.Second),
		})
		if err != nil {
			return err
		}
		if deposit != nil {
			sum.Deposited = sum.Deposited.Add(deposit.Amount)
		}
	}

	if d.rng.Float64() < d.cfg.ExpenseProbability {
		categories := []string{"utilities", "maintenance", "supplies", "transport"}
		amount := decimal.NewFromInt(d.between(1000, 20000))
		expense, err := d.svc.PayExpense(ctx, domain.ExpenseRequest{
			StationID:   d.cfg.StationID,
			Category:    categories[d.rng.IntN(len(categories))],
			Description: "shift " + result.Shift.Number,
			Amount:      amount,
			PerformedBy: d.cfg.ManagerID,
			Timestamp:   closedAt.Add(2 * time.Second),
		})
		if err != nil {
			return err
		}
		if expense == nil {
			sum.ExpensesSkipped++
		} else {
			sum.Expenses = sum.Expenses.Add(expense.Amount)
		}
	}

	d.logger.WithFields(logrus.Fields{
		"shift":    result.Shift.Number,
		"sales":    totals.Count,
		"expected": result.Reconciliation.Expected.String(),
		"declared": declared.String(),
	}).Debug("simulated shift")
	return nil
}

// endOfDay dips every tank, reorders low tanks and collects half of the
// credit customer's balance.
func (d *Driver) endOfDay(ctx context.Context, at time.Time, sum *Summary) error {
	report, err := d.svc.CheckInventory(ctx, domain.InventoryCheckRequest{StationID: d.cfg.StationID, Timestamp: at})
	if err != nil {
		return err
	}
	for _, status := range report.Tanks {
		// measured level within +/-0.2% of the book level
		drift := decimal.NewFromFloat(1 + (d.rng.Float64()-0.5)*0.004)
		measured := decimal.Max(decimal.Zero, status.Tank.CurrentLevel.Mul(drift).Round(2))
		if _, err := d.svc.PerformDip(ctx, domain.DipRequest{
			TankID:        status.Tank.ID,
			MeasuredLevel: measured,
			PerformedBy:   d.cfg.ManagerID,
			Timestamp:     at,
		}); err != nil {
			return err
		}
		sum.Dips++
	}

	reorder, err := d.svc.CheckInventory(ctx, domain.InventoryCheckRequest{
		StationID:   d.cfg.StationID,
		AutoReorder: true,
		ReceivedBy:  d.cfg.ManagerID,
		Timestamp:   at.Add(time.Second),
	})
	if err != nil {
		return err
	}
	sum.Reorders += len(reorder.Deliveries)

	if d.cfg.CustomerID == "" {
		return nil
	}
	owed, err := d.svc.CustomerBalance(ctx, d.cfg.CustomerID)
	if err != nil {
		return err
	}
	payment := owed.Div(decimal.NewFromInt(2)).Round(domain.MoneyScale)
	if !payment.IsPositive() {
		return nil
	}
	if _, err := d.svc.RecordCreditPayment(ctx, domain.CreditPaymentRequest{
		StationID:  d.cfg.StationID,
		CustomerID: d.cfg.CustomerID,
		Amount:     payment,
		ReceivedBy: d.cfg.CashierID,
		Timestamp:  at.Add(2 * time.Second),
	}); err != nil {
		return err
	}
	sum.CreditRepaid = sum.CreditRepaid.Add(payment)
	return nil
}
