package storage

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"fuelstation/internal/models"
)

// memoryState is the full content of a MemoryStorage. All records are stored
// by value so copying the maps yields an independent snapshot.
type memoryState struct {
	customers map[int64]models.Customer
	admins    map[int64]models.Admin
	fuels     map[int64]models.Fuel
	tanks     map[int64]models.Tank
	bank      *models.Bank

	nextCustomerID int64
	nextAdminID    int64
	nextFuelID     int64
	nextTankID     int64
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.customers = maps.Clone(s.customers)
	c.admins = maps.Clone(s.admins)
	c.fuels = maps.Clone(s.fuels)
	c.tanks = maps.Clone(s.tanks)
	if s.bank != nil {
		b := *s.bank
		c.bank = &b
	}
	return &c
}

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development and testing; data is lost on restart.
//
// A transaction holds the write lock for its whole duration, so transactions
// are fully serialized. On error the state captured at the start is restored.
type MemoryStorage struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		state: &memoryState{
			customers: make(map[int64]models.Customer),
			admins:    make(map[int64]models.Admin),
			fuels:     make(map[int64]models.Fuel),
			tanks:     make(map[int64]models.Tank),
		},
	}, nil
}

func (m *MemoryStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.state.customers {
		if c.Login == customer.Login {
			return fmt.Errorf("customer %q: %w", customer.Login, ErrAlreadyExists)
		}
	}

	m.state.nextCustomerID++
	customer.ID = m.state.nextCustomerID
	m.state.customers[customer.ID] = *customer
	return nil
}

func (m *MemoryStorage) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.customer(id)
}

func (m *MemoryStorage) GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.state.customers {
		if c.Login == login {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("customer %q: %w", login, ErrNotFound)
}

func (m *MemoryStorage) SetCustomerToken(ctx context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.state.customers[id]
	if !ok {
		return fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	c.SessionToken = token
	m.state.customers[id] = c
	return nil
}

func (m *MemoryStorage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.state.admins {
		if a.Login == admin.Login {
			return fmt.Errorf("admin %q: %w", admin.Login, ErrAlreadyExists)
		}
	}

	m.state.nextAdminID++
	admin.ID = m.state.nextAdminID
	m.state.admins[admin.ID] = *admin
	return nil
}

func (m *MemoryStorage) GetAdminByLogin(ctx context.Context, login string) (*models.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.state.admins {
		if a.Login == login {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("admin %q: %w", login, ErrNotFound)
}

func (m *MemoryStorage) GetAdminByToken(ctx context.Context, token string) (*models.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.state.admins {
		if a.HasSession(token) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("admin session: %w", ErrNotFound)
}

func (m *MemoryStorage) SetAdminToken(ctx context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.state.admins[id]
	if !ok {
		return fmt.Errorf("admin %d: %w", id, ErrNotFound)
	}
	a.SessionToken = token
	m.state.admins[id] = a
	return nil
}

func (m *MemoryStorage) CreateFuel(ctx context.Context, fuel *models.Fuel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextFuelID++
	fuel.ID = m.state.nextFuelID
	m.state.fuels[fuel.ID] = *fuel
	return nil
}

func (m *MemoryStorage) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.fuel(id)
}

func (m *MemoryStorage) Fuels(ctx context.Context) ([]*models.Fuel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(m.state.fuels))
	fuels := make([]*models.Fuel, 0, len(ids))
	for _, id := range ids {
		f := m.state.fuels[id]
		fuels = append(fuels, &f)
	}
	return fuels, nil
}

func (m *MemoryStorage) FuelStock(ctx context.Context) ([]*models.FuelStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type totals struct{ stored, capacity int64 }
	byFuel := make(map[int64]*totals)
	for _, t := range m.state.tanks {
		tt, ok := byFuel[t.FuelID]
		if !ok {
			tt = &totals{}
			byFuel[t.FuelID] = tt
		}
		tt.stored += t.Stored
		tt.capacity += t.Capacity
	}

	stock := make([]*models.FuelStock, 0, len(byFuel))
	for _, id := range slices.Sorted(maps.Keys(byFuel)) {
		f, ok := m.state.fuels[id]
		if !ok {
			continue
		}
		tt := byFuel[id]
		stock = append(stock, &models.FuelStock{
			ID:          f.ID,
			Name:        f.Name,
			Price:       f.Price,
			Category:    f.Category,
			Stored:      tt.stored,
			Capacity:    tt.capacity,
			FillPercent: models.FillPercent(tt.stored, tt.capacity),
		})
	}
	return stock, nil
}

func (m *MemoryStorage) UpdateFuelPrice(ctx context.Context, id int64, price int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.state.fuels[id]
	if !ok {
		return fmt.Errorf("fuel %d: %w", id, ErrNotFound)
	}
	f.Price = price
	m.state.fuels[id] = f
	return nil
}

func (m *MemoryStorage) CreateTank(ctx context.Context, tank *models.Tank) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.fuels[tank.FuelID]; !ok {
		return fmt.Errorf("fuel %d: %w", tank.FuelID, ErrNotFound)
	}
	if err := tank.Validate(); err != nil {
		return err
	}

	m.state.nextTankID++
	tank.ID = m.state.nextTankID
	m.state.tanks[tank.ID] = *tank
	return nil
}

func (m *MemoryStorage) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.fuelTanks(fuelID), nil
}

func (m *MemoryStorage) GetBank(ctx context.Context) (*models.Bank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getBank()
}

// WithTx runs fn holding the write lock. Writes go straight to the live
// state; a failed fn swaps the pre-transaction snapshot back in.
func (m *MemoryStorage) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.state.clone()
	tx := &memoryTx{state: m.state}
	if err := fn(ctx, tx); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}

// memoryTx is only used while the owning MemoryStorage holds its write lock.
type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return tx.state.customer(id)
}

func (tx *memoryTx) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	return tx.state.fuel(id)
}

func (tx *memoryTx) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	return tx.state.fuelTanks(fuelID), nil
}

func (tx *memoryTx) GetBank(ctx context.Context) (*models.Bank, error) {
	return tx.state.getBank()
}

func (tx *memoryTx) UpdateTankStored(ctx context.Context, tankID, expected, value int64) error {
	t, ok := tx.state.tanks[tankID]
	if !ok {
		return fmt.Errorf("tank %d: %w", tankID, ErrNotFound)
	}
	if t.Stored != expected {
		return fmt.Errorf("tank %d stored %d, expected %d: %w", tankID, t.Stored, expected, ErrConflict)
	}
	t.Stored = value
	if err := t.Validate(); err != nil {
		return fmt.Errorf("tank %d: %w", tankID, err)
	}
	tx.state.tanks[tankID] = t
	return nil
}

func (tx *memoryTx) UpdateCustomerBalance(ctx context.Context, customerID, expected, value int64) error {
	c, ok := tx.state.customers[customerID]
	if !ok {
		return fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
	}
	if c.Balance != expected {
		return fmt.Errorf("customer %d balance %d, expected %d: %w", customerID, c.Balance, expected, ErrConflict)
	}
	if value < 0 {
		return fmt.Errorf("customer %d: balance cannot be negative", customerID)
	}
	c.Balance = value
	tx.state.customers[customerID] = c
	return nil
}

func (tx *memoryTx) CreditBank(ctx context.Context, amount int64) error {
	if tx.state.bank == nil {
		tx.state.bank = &models.Bank{ID: BankID}
	}
	if tx.state.bank.Total > math.MaxInt64-amount {
		return fmt.Errorf("bank total %d plus %d: %w", tx.state.bank.Total, amount, models.ErrCostOverflow)
	}
	tx.state.bank.Total += amount
	return nil
}

func (tx *memoryTx) DebitBank(ctx context.Context, amount int64) error {
	if tx.state.bank == nil {
		return fmt.Errorf("bank: %w", ErrNotFound)
	}
	if tx.state.bank.Total < amount {
		return fmt.Errorf("bank total %d below %d: %w", tx.state.bank.Total, amount, ErrConflict)
	}
	tx.state.bank.Total -= amount
	return nil
}

func (s *memoryState) customer(id int64) (*models.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *memoryState) fuel(id int64) (*models.Fuel, error) {
	f, ok := s.fuels[id]
	if !ok {
		return nil, fmt.Errorf("fuel %d: %w", id, ErrNotFound)
	}
	return &f, nil
}

func (s *memoryState) fuelTanks(fuelID int64) []models.Tank {
	var tanks []models.Tank
	for _, t := range s.tanks {
		if t.FuelID == fuelID {
			tanks = append(tanks, t)
		}
	}
	slices.SortFunc(tanks, func(a, b models.Tank) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return tanks
}

func (s *memoryState) getBank() (*models.Bank, error) {
	if s.bank == nil {
		return nil, fmt.Errorf("bank: %w", ErrNotFound)
	}
	b := *s.bank
	return &b, nil
}
