package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
)

// Fixed identifiers of the demo station used by the seeded stores, the
// simulation driver and tests.
const (
	DemoOrganizationID = "org-demo"
	DemoStationID      = "st-cmb01"
	DemoSafeID         = "safe-cmb01"
	DemoBankID         = "bank-boc"
	DemoTerminalID     = "pos-cmb01"
	DemoManagerID      = "staff-manager"
	DemoCashierID      = "staff-cashier"
	DemoCustomerID     = "cust-transport"
	DemoFuelPetrol     = "fuel-lp92"
	DemoFuelDiesel     = "fuel-lad"
	DemoTankPetrol     = "tank-lp92"
	DemoTankDiesel     = "tank-lad"
)

var DemoPumpers = []string{"Kamal", "Nimal", "Sunil", "Saman"}

// DemoNozzles lists the nozzles of the demo station in pump order.
var DemoNozzles = []string{"nz-1", "nz-2", "nz-3", "nz-4"}

// SeedDemo writes a single station topology: two tanks, two pumps with two
// nozzles each, a manager, a cashier, pumpers, a safe, a bank, one POS
// terminal and one credit customer.
func SeedDemo(ctx context.Context, q Queries, at time.Time) error {
	station := domain.Station{ID: DemoStationID, OrganizationID: DemoOrganizationID, Code: "CMB01", Name: "Colombo 01"}
	if err := q.CreateStation(ctx, station); err != nil {
		return err
	}

	fuels := []domain.Fuel{
		{ID: DemoFuelPetrol, Code: "LP92", Name: "Lanka Petrol 92"},
		{ID: DemoFuelDiesel, Code: "LAD", Name: "Lanka Auto Diesel"},
	}
	for _, fuel := range fuels {
		if err := q.CreateFuel(ctx, fuel); err != nil {
			return err
		}
	}

	effective := at.AddDate(0, 0, -30)
	prices := []domain.Price{
		{ID: "price-lp92-1", FuelID: DemoFuelPetrol, PricePerLiter: decimal.NewFromInt(370), EffectiveDate: effective},
		{ID: "price-lad-1", FuelID: DemoFuelDiesel, PricePerLiter: decimal.NewFromInt(355), EffectiveDate: effective},
	}
	for _, price := range prices {
		if err := q.CreatePrice(ctx, price); err != nil {
			return err
		}
	}

	tanks := []domain.Tank{
		{ID: DemoTankPetrol, StationID: DemoStationID, FuelID: DemoFuelPetrol, Name: "Tank 1 (LP92)", Capacity: decimal.NewFromInt(13500), CurrentLevel: decimal.NewFromInt(5000)},
		{ID: DemoTankDiesel, StationID: DemoStationID, FuelID: DemoFuelDiesel, Name: "Tank 2 (LAD)", Capacity: decimal.NewFromInt(20000), CurrentLevel: decimal.NewFromInt(12000)},
	}
	for _, tank := range tanks {
		if err := q.CreateTank(ctx, tank); err != nil {
			return err
		}
	}

	for _, pump := range []domain.Pump{
		{ID: "pump-1", StationID: DemoStationID, Name: "Pump 1"},
		{ID: "pump-2", StationID: DemoStationID, Name: "Pump 2"},
	} {
		if err := q.CreatePump(ctx, pump); err != nil {
			return err
		}
	}

	meterMax := decimal.RequireFromString("9999999.99")
	nozzles := []domain.Nozzle{
		{ID: DemoNozzles[0], StationID: DemoStationID, PumpID: "pump-1", TankID: DemoTankPetrol, Number: 1, MeterMax: meterMax},
		{ID: DemoNozzles[1], StationID: DemoStationID, PumpID: "pump-1", TankID: DemoTankDiesel, Number: 2, MeterMax: meterMax},
		{ID: DemoNozzles[2], StationID: DemoStationID, PumpID: "pump-2", TankID: DemoTankPetrol, Number: 3, MeterMax: meterMax},
		{ID: DemoNozzles[3], StationID: DemoStationID, PumpID: "pump-2", TankID: DemoTankDiesel, Number: 4, MeterMax: meterMax},
	}
	for _, nozzle := range nozzles {
		if err := q.CreateNozzle(ctx, nozzle); err != nil {
			return err
		}
	}

	staff := []domain.Staff{
		{ID: DemoManagerID, OrganizationID: DemoOrganizationID, StationID: DemoStationID, Name: "Ruwan Perera", Role: domain.RoleManager, Active: true},
		{ID: DemoCashierID, OrganizationID: DemoOrganizationID, StationID: DemoStationID, Name: "Dilani Silva", Role: domain.RoleCashier, Active: true},
	}
	for i, name := range DemoPumpers {
		staff = append(staff, domain.Staff{
			ID:             "staff-pumper-" + string(rune('1'+i)),
			OrganizationID: DemoOrganizationID,
			StationID:      DemoStationID,
			Name:           name,
			Role:           domain.RolePumper,
			Active:         true,
		})
	}
	for _, member := range staff {
		if err := q.CreateStaff(ctx, member); err != nil {
			return err
		}
	}

	if err := q.CreateSafe(ctx, domain.Safe{
		ID:             DemoSafeID,
		StationID:      DemoStationID,
		OpeningBalance: decimal.Zero,
		CurrentBalance: decimal.Zero,
		UpdatedAt:      at,
	}); err != nil {
		return err
	}
	if err := q.CreateBank(ctx, domain.Bank{ID: DemoBankID, Name: "Bank of Ceylon", AccountNumber: "0001-2345-6789"}); err != nil {
		return err
	}
	if err := q.CreateTerminal(ctx, domain.POSTerminal{ID: DemoTerminalID, StationID: DemoStationID, Name: "Forecourt POS"}); err != nil {
		return err
	}
	return q.CreateCustomer(ctx, domain.CreditCustomer{
		ID:             DemoCustomerID,
		OrganizationID: DemoOrganizationID,
		Name:           "Lanka Transport Co.",
		CreditLimit:    decimal.NewFromInt(100000),
		Active:         true,
	})
}
