package memory

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
	"stationledger/backend/internal/store"
)

type state struct {
	stations         map[string]domain.Station
	fuels            map[string]domain.Fuel
	pricesByFuel     map[string][]domain.Price
	tanks            map[string]domain.Tank
	pumps            map[string]domain.Pump
	nozzles          map[string]domain.Nozzle
	staff            map[string]domain.Staff
	terminals        map[string]domain.POSTerminal
	banks            map[string]domain.Bank
	shifts           map[string]domain.Shift
	openShiftByKey   map[string]string
	assignments      map[string]domain.ShiftAssignment
	assignmentsByKey map[string][]string
	assignmentOrder  []string
	salesByShift     map[string][]domain.Sale
	customers        map[string]domain.CreditCustomer
	creditPayments   map[string][]domain.CreditPayment
	safes            map[string]domain.Safe
	safeTxs          map[string][]domain.SafeTransaction
	posBatches       []domain.POSBatch
	deposits         []domain.Deposit
	expenses         []domain.Expense
	loans            map[string]domain.Loan
	dips             []domain.TankDip
	deliveries       []domain.Delivery
	auditLogs        []domain.AuditLog
}

var _ store.Queries = (*state)(nil)

func newState() *state {
	return &state{
		stations:         make(map[string]domain.Station),
		fuels:            make(map[string]domain.Fuel),
		pricesByFuel:     make(map[string][]domain.Price),
		tanks:            make(map[string]domain.Tank),
		pumps:            make(map[string]domain.Pump),
		nozzles:          make(map[string]domain.Nozzle),
		staff:            make(map[string]domain.Staff),
		terminals:        make(map[string]domain.POSTerminal),
		banks:            make(map[string]domain.Bank),
		shifts:           make(map[string]domain.Shift),
		openShiftByKey:   make(map[string]string),
		assignments:      make(map[string]domain.ShiftAssignment),
		assignmentsByKey: make(map[string][]string),
		salesByShift:     make(map[string][]domain.Sale),
		customers:        make(map[string]domain.CreditCustomer),
		creditPayments:   make(map[string][]domain.CreditPayment),
		safes:            make(map[string]domain.Safe),
		safeTxs:          make(map[string][]domain.SafeTransaction),
		loans:            make(map[string]domain.Loan),
		auditLogs:        make([]domain.AuditLog, 0, 128),
	}
}

func (s *state) clone() *state {
	return &state{
		stations:         maps.Clone(s.stations),
		fuels:            maps.Clone(s.fuels),
		pricesByFuel:     cloneIndex(s.pricesByFuel),
		tanks:            maps.Clone(s.tanks),
		pumps:            maps.Clone(s.pumps),
		nozzles:          maps.Clone(s.nozzles),
		staff:            maps.Clone(s.staff),
		terminals:        maps.Clone(s.terminals),
		banks:            maps.Clone(s.banks),
		shifts:           maps.Clone(s.shifts),
		openShiftByKey:   maps.Clone(s.openShiftByKey),
		assignments:      maps.Clone(s.assignments),
		assignmentsByKey: cloneIndex(s.assignmentsByKey),
		assignmentOrder:  slices.Clone(s.assignmentOrder),
		salesByShift:     cloneIndex(s.salesByShift),
		customers:        maps.Clone(s.customers),
		creditPayments:   cloneIndex(s.creditPayments),
		safes:            maps.Clone(s.safes),
		safeTxs:          cloneIndex(s.safeTxs),
		posBatches:       slices.Clone(s.posBatches),
		deposits:         slices.Clone(s.deposits),
		expenses:         slices.Clone(s.expenses),
		loans:            maps.Clone(s.loans),
		dips:             slices.Clone(s.dips),
		deliveries:       slices.Clone(s.deliveries),
		auditLogs:        slices.Clone(s.auditLogs),
	}
}

func found[T any](m map[string]T, id string) (*T, error) {
	v, ok := m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

// topology

func (s *state) CreateStation(_ context.Context, station domain.Station) error {
	return insert(s.stations, station.ID, station)
}

func (s *state) GetStation(_ context.Context, stationID string) (*domain.Station, error) {
	return found(s.stations, stationID)
}

func (s *state) ListStations(_ context.Context) ([]domain.Station, error) {
	return sortedValues(s.stations, func(a, b domain.Station) bool { return a.Code < b.Code }), nil
}

func (s *state) CreateFuel(_ context.Context, fuel domain.Fuel) error {
	return insert(s.fuels, fuel.ID, fuel)
}

func (s *state) CreatePrice(_ context.Context, price domain.Price) error {
	if price.ID == "" || !price.PricePerLiter.IsPositive() {
		return store.ErrInvalidInput
	}
	if _, ok := s.fuels[price.FuelID]; !ok {
		return store.ErrNotFound
	}
	rows := append(s.pricesByFuel[price.FuelID], price)
	slices.SortStableFunc(rows, func(a, b domain.Price) int { return a.EffectiveDate.Compare(b.EffectiveDate) })
	s.pricesByFuel[price.FuelID] = rows
	return nil
}

func (s *state) PriceAt(_ context.Context, fuelID string, at time.Time) (*domain.Price, error) {
	rows := s.pricesByFuel[fuelID]
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].EffectiveDate.After(at) {
			price := rows[i]
			return &price, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) CreateTank(_ context.Context, tank domain.Tank) error {
	if _, ok := s.stations[tank.StationID]; !ok {
		return store.ErrNotFound
	}
	return insert(s.tanks, tank.ID, tank)
}

func (s *state) GetTank(_ context.Context, tankID string) (*domain.Tank, error) {
	return found(s.tanks, tankID)
}

func (s *state) GetTankForUpdate(ctx context.Context, tankID string) (*domain.Tank, error) {
	return s.GetTank(ctx, tankID)
}

func (s *state) ListTanks(_ context.Context, stationID string) ([]domain.Tank, error) {
	out := make([]domain.Tank, 0, 4)
	for _, tank := range sortedValues(s.tanks, func(a, b domain.Tank) bool { return a.ID < b.ID }) {
		if tank.StationID == stationID {
			out = append(out, tank)
		}
	}
	return out, nil
}

func (s *state) UpdateTankLevel(_ context.Context, tankID string, level decimal.Decimal) error {
	tank, ok := s.tanks[tankID]
	if !ok {
		return store.ErrNotFound
	}
	tank.CurrentLevel = level
	s.tanks[tankID] = tank
	return nil
}

func (s *state) CreatePump(_ context.Context, pump domain.Pump) error {
	return insert(s.pumps, pump.ID, pump)
}

func (s *state) ListPumps(_ context.Context, stationID string) ([]domain.Pump, error) {
	out := make([]domain.Pump, 0, 4)
	for _, pump := range sortedValues(s.pumps, func(a, b domain.Pump) bool { return a.ID < b.ID }) {
		if pump.StationID == stationID {
			out = append(out, pump)
		}
	}
	return out, nil
}

func (s *state) CreateNozzle(_ context.Context, nozzle domain.Nozzle) error {
	if _, ok := s.tanks[nozzle.TankID]; !ok {
		return store.ErrNotFound
	}
	return insert(s.nozzles, nozzle.ID, nozzle)
}

func (s *state) ListNozzles(_ context.Context, stationID string) ([]domain.Nozzle, error) {
	out := make([]domain.Nozzle, 0, 8)
	for _, nozzle := range sortedValues(s.nozzles, func(a, b domain.Nozzle) bool { return a.Number < b.Number }) {
		if nozzle.StationID == stationID {
			out = append(out, nozzle)
		}
	}
	return out, nil
}

// LastMeterReading walks assignments newest first by creation order, so a
// caller-supplied close time cannot reorder readings.
func (s *state) LastMeterReading(_ context.Context, nozzleID string) (decimal.Decimal, error) {
	for i := len(s.assignmentOrder) - 1; i >= 0; i-- {
		a := s.assignments[s.assignmentOrder[i]]
		if a.NozzleID != nozzleID || a.Status != domain.AssignmentClosed || a.EndMeterReading == nil {
			continue
		}
		return *a.EndMeterReading, nil
	}
	return decimal.Zero, nil
}

func (s *state) CreateStaff(_ context.Context, staff domain.Staff) error {
	return insert(s.staff, staff.ID, staff)
}

func (s *state) GetStaff(_ context.Context, staffID string) (*domain.Staff, error) {
	return found(s.staff, staffID)
}

func (s *state) CreateTerminal(_ context.Context, terminal domain.POSTerminal) error {
	return insert(s.terminals, terminal.ID, terminal)
}

func (s *state) StationTerminal(_ context.Context, stationID string) (*domain.POSTerminal, error) {
	for _, terminal := range sortedValues(s.terminals, func(a, b domain.POSTerminal) bool { return a.ID < b.ID }) {
		if terminal.StationID == stationID {
			return &terminal, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) CreateBank(_ context.Context, bank domain.Bank) error {
	return insert(s.banks, bank.ID, bank)
}

func (s *state) GetBank(_ context.Context, bankID string) (*domain.Bank, error) {
	return found(s.banks, bankID)
}

// shifts

func cloneShift(shift domain.Shift) domain.Shift {
	if shift.EndTime != nil {
		end := *shift.EndTime
		shift.EndTime = &end
	}
	if shift.Declared != nil {
		declared := *shift.Declared
		shift.Declared = &declared
	}
	if shift.Statistics != nil {
		stats := *shift.Statistics
		shift.Statistics = &stats
	}
	return shift
}

func (s *state) CreateShift(_ context.Context, shift domain.Shift) error {
	if shift.Status == domain.ShiftStatusOpen {
		if _, exists := s.openShiftByKey[shift.StationID]; exists {
			return store.ErrConflict
		}
	}
	if err := insert(s.shifts, shift.ID, cloneShift(shift)); err != nil {
		return err
	}
	if shift.Status == domain.ShiftStatusOpen {
		s.openShiftByKey[shift.StationID] = shift.ID
	}
	return nil
}

func (s *state) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *state) GetShiftForUpdate(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return s.GetShift(ctx, shiftID)
}

func (s *state) GetOpenShift(ctx context.Context, stationID string) (*domain.Shift, error) {
	shiftID, ok := s.openShiftByKey[stationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetShift(ctx, shiftID)
}

func (s *state) LastClosedShift(_ context.Context, stationID string) (*domain.Shift, error) {
	var last *domain.Shift
	for _, shift := range s.shifts {
		if shift.StationID != stationID || shift.Status != domain.ShiftStatusClosed || shift.EndTime == nil {
			continue
		}
		if last == nil || shift.EndTime.After(*last.EndTime) {
			copyShift := cloneShift(shift)
			last = &copyShift
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	return last, nil
}

func (s *state) UpdateShift(_ context.Context, shift domain.Shift) error {
	if _, ok := s.shifts[shift.ID]; !ok {
		return store.ErrNotFound
	}
	s.shifts[shift.ID] = cloneShift(shift)
	if shift.Status != domain.ShiftStatusOpen && s.openShiftByKey[shift.StationID] == shift.ID {
		delete(s.openShiftByKey, shift.StationID)
	}
	return nil
}

func (s *state) CreateAssignment(_ context.Context, assignment domain.ShiftAssignment) error {
	if _, ok := s.shifts[assignment.ShiftID]; !ok {
		return store.ErrNotFound
	}
	if err := insert(s.assignments, assignment.ID, assignment); err != nil {
		return err
	}
	s.assignmentsByKey[assignment.ShiftID] = append(s.assignmentsByKey[assignment.ShiftID], assignment.ID)
	s.assignmentOrder = append(s.assignmentOrder, assignment.ID)
	return nil
}

func (s *state) ListAssignments(_ context.Context, shiftID string) ([]domain.ShiftAssignment, error) {
	ids := s.assignmentsByKey[shiftID]
	out := make([]domain.ShiftAssignment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.assignments[id])
	}
	return out, nil
}

func (s *state) UpdateAssignment(_ context.Context, assignment domain.ShiftAssignment) error {
	if _, ok := s.assignments[assignment.ID]; !ok {
		return store.ErrNotFound
	}
	s.assignments[assignment.ID] = assignment
	return nil
}

func (s *state) CreatePOSBatch(_ context.Context, batch domain.POSBatch) error {
	s.posBatches = append(s.posBatches, batch)
	return nil
}

// sales and credit

func (s *state) CreateSale(_ context.Context, sale domain.Sale) error {
	if _, ok := s.shifts[sale.ShiftID]; !ok {
		return store.ErrNotFound
	}
	s.salesByShift[sale.ShiftID] = append(s.salesByShift[sale.ShiftID], sale)
	return nil
}

func (s *state) ListSales(_ context.Context, shiftID string) ([]domain.Sale, error) {
	return slices.Clone(s.salesByShift[shiftID]), nil
}

func (s *state) CreateCustomer(_ context.Context, customer domain.CreditCustomer) error {
	return insert(s.customers, customer.ID, customer)
}

func (s *state) GetCustomer(_ context.Context, customerID string) (*domain.CreditCustomer, error) {
	return found(s.customers, customerID)
}

func (s *state) CreditBalance(_ context.Context, customerID string) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, sales := range s.salesByShift {
		for _, sale := range sales {
			if sale.Tender == domain.TenderCredit && sale.CustomerID == customerID {
				balance = balance.Add(sale.Amount)
			}
		}
	}
	for _, payment := range s.creditPayments[customerID] {
		balance = balance.Sub(payment.Amount)
	}
	return balance, nil
}

func (s *state) CreateCreditPayment(_ context.Context, payment domain.CreditPayment) error {
	if _, ok := s.customers[payment.CustomerID]; !ok {
		return store.ErrNotFound
	}
	s.creditPayments[payment.CustomerID] = append(s.creditPayments[payment.CustomerID], payment)
	return nil
}

// safe

func (s *state) CreateSafe(_ context.Context, safe domain.Safe) error {
	for _, existing := range s.safes {
		if existing.StationID == safe.StationID {
			return store.ErrConflict
		}
	}
	return insert(s.safes, safe.ID, safe)
}

func (s *state) GetSafe(_ context.Context, safeID string) (*domain.Safe, error) {
	return found(s.safes, safeID)
}

func (s *state) GetSafeForUpdate(ctx context.Context, safeID string) (*domain.Safe, error) {
	return s.GetSafe(ctx, safeID)
}

func (s *state) GetStationSafe(_ context.Context, stationID string) (*domain.Safe, error) {
	for _, safe := range s.safes {
		if safe.StationID == stationID {
			return &safe, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) SwapSafeBalance(_ context.Context, safeID string, expected decimal.Decimal, next decimal.Decimal, at time.Time) error {
	safe, ok := s.safes[safeID]
	if !ok {
		return store.ErrNotFound
	}
	if !safe.CurrentBalance.Equal(expected) {
		return store.ErrIntegrity
	}
	safe.CurrentBalance = next
	safe.UpdatedAt = at
	s.safes[safeID] = safe
	return nil
}

func (s *state) InsertSafeTransaction(_ context.Context, tx domain.SafeTransaction) error {
	if _, ok := s.safes[tx.SafeID]; !ok {
		return store.ErrNotFound
	}
	s.safeTxs[tx.SafeID] = append(s.safeTxs[tx.SafeID], tx)
	return nil
}

func (s *state) ListSafeTransactions(_ context.Context, safeID string) ([]domain.SafeTransaction, error) {
	return slices.Clone(s.safeTxs[safeID]), nil
}

func (s *state) CreateDeposit(_ context.Context, deposit domain.Deposit) error {
	s.deposits = append(s.deposits, deposit)
	return nil
}

func (s *state) CreateExpense(_ context.Context, expense domain.Expense) error {
	s.expenses = append(s.expenses, expense)
	return nil
}

func (s *state) CreateLoan(_ context.Context, loan domain.Loan) error {
	return insert(s.loans, loan.ID, loan)
}

func (s *state) GetLoanForUpdate(_ context.Context, loanID string) (*domain.Loan, error) {
	return found(s.loans, loanID)
}

func (s *state) UpdateLoan(_ context.Context, loan domain.Loan) error {
	if _, ok := s.loans[loan.ID]; !ok {
		return store.ErrNotFound
	}
	s.loans[loan.ID] = loan
	return nil
}

// inventory

func (s *state) CreateTankDip(_ context.Context, dip domain.TankDip) error {
	s.dips = append(s.dips, dip)
	return nil
}

func (s *state) CreateDelivery(_ context.Context, delivery domain.Delivery) error {
	s.deliveries = append(s.deliveries, delivery)
	return nil
}

func (s *state) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *state) ListAuditLogs(_ context.Context, stationID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if stationID != "" && s.auditLogs[i].StationID != stationID {
			continue
		}
		out = append(out, s.auditLogs[i])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
