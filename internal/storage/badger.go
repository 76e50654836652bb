package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sethvargo/go-retry"

	"fuelstation/internal/models"
)

// BadgerStorage implements Storage on an embedded Badger key-value store.
//
// Key layout (numeric IDs are zero-padded so prefix scans return them in
// ascending order):
//
//	customer/<id>            customerRecord
//	customer_login/<login>   customer id
//	admin/<id>               adminRecord
//	admin_login/<login>      admin id
//	fuel/<id>                fuelRecord
//	tank/<id>                tankRecord
//	fuel_tank/<fuel>/<tank>  empty, indexes tanks by fuel
//	bank                     bankRecord
//
// Transactions are Badger's optimistic transactions: a transaction whose
// reads were overwritten by a concurrent commit is retried, and fails with
// ErrConflict once the retries are used up.
type BadgerStorage struct {
	db   *badger.DB
	seqs map[string]*badger.Sequence

	maxCommitRetries uint64
}

// defaultCommitRetries bounds how often WithTx reruns a conflicting transaction.
const defaultCommitRetries = 32

// Records are the persisted shapes. They are kept apart from the models so
// that fields hidden from API JSON (password hashes) are still stored.
type customerRecord struct {
	ID           int64  `json:"id"`
	Login        string `json:"login"`
	PasswordHash string `json:"password_hash"`
	Balance      int64  `json:"balance"`
	SessionToken string `json:"session_token,omitempty"`
}

type adminRecord struct {
	ID           int64  `json:"id"`
	Login        string `json:"login"`
	PasswordHash string `json:"password_hash"`
	SessionToken string `json:"session_token,omitempty"`
}

type fuelRecord struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Category string `json:"category,omitempty"`
}

type tankRecord struct {
	ID       int64 `json:"id"`
	FuelID   int64 `json:"fuel_id"`
	Stored   int64 `json:"stored"`
	Capacity int64 `json:"capacity"`
}

type bankRecord struct {
	ID    int64 `json:"id"`
	Total int64 `json:"total"`
}

const (
	seqCustomer = "customer"
	seqAdmin    = "admin"
	seqFuel     = "fuel"
	seqTank     = "tank"

	sequenceBandwidth = 100
)

var bankKey = []byte("bank")

func customerKey(id int64) []byte { return []byte(fmt.Sprintf("customer/%020d", id)) }
func customerLoginKey(l string) []byte { return []byte("customer_login/" + l) }
func adminKey(id int64) []byte { return []byte(fmt.Sprintf("admin/%020d", id)) }
func adminLoginKey(l string) []byte { return []byte("admin_login/" + l) }
func fuelKey(id int64) []byte { return []byte(fmt.Sprintf("fuel/%020d", id)) }
func tankKey(id int64) []byte { return []byte(fmt.Sprintf("tank/%020d", id)) }

func fuelTankKey(fuelID, tankID int64) []byte {
	return []byte(fmt.Sprintf("fuel_tank/%020d/%020d", fuelID, tankID))
}

func fuelTankPrefix(fuelID int64) []byte {
	return []byte(fmt.Sprintf("fuel_tank/%020d/", fuelID))
}

// NewBadgerStorage opens (or creates) the store at config.Path. An empty path
// opens an in-memory store.
func NewBadgerStorage(config Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path).WithLogger(nil)
	if strings.TrimSpace(config.Path) == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	bs := &BadgerStorage{
		db:               db,
		seqs:             make(map[string]*badger.Sequence),
		maxCommitRetries: defaultCommitRetries,
	}
	for _, name := range []string{seqCustomer, seqAdmin, seqFuel, seqTank} {
		seq, err := db.GetSequence([]byte("seq/"+name), sequenceBandwidth)
		if err != nil {
			bs.Close()
			return nil, fmt.Errorf("failed to open %s sequence: %w", name, err)
		}
		bs.seqs[name] = seq
	}

	return bs, nil
}

// nextID returns the next ID for name. Sequences start at 0; IDs start at 1.
func (bs *BadgerStorage) nextID(name string) (int64, error) {
	n, err := bs.seqs[name].Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	return int64(n) + 1, nil
}

// update runs fn in a read-write transaction, mapping Badger's commit
// conflict to ErrConflict.
func (bs *BadgerStorage) update(fn func(txn *badger.Txn) error) error {
	err := bs.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger commit: %w", ErrConflict)
	}
	return err
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getIndex(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		id, err = strconv.ParseInt(string(val), 10, 64)
		return err
	})
	return id, err
}

func setIndex(txn *badger.Txn, key []byte, id int64) error {
	return txn.Set(key, []byte(strconv.FormatInt(id, 10)))
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

func (r customerRecord) model() *models.Customer {
	return &models.Customer{ID: r.ID, Login: r.Login, PasswordHash: r.PasswordHash, Balance: r.Balance, SessionToken: r.SessionToken}
}

func (r adminRecord) model() *models.Admin {
	return &models.Admin{ID: r.ID, Login: r.Login, PasswordHash: r.PasswordHash, SessionToken: r.SessionToken}
}

func (r fuelRecord) model() (*models.Fuel, error) {
	category, err := models.ParseCategory(r.Category)
	if err != nil {
		return nil, err
	}
	return &models.Fuel{ID: r.ID, Name: r.Name, Price: r.Price, Category: category}, nil
}

func (r tankRecord) model() models.Tank {
	return models.Tank{ID: r.ID, FuelID: r.FuelID, Stored: r.Stored, Capacity: r.Capacity}
}

func (bs *BadgerStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return bs.update(func(txn *badger.Txn) error {
		taken, err := exists(txn, customerLoginKey(customer.Login))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("customer %q: %w", customer.Login, ErrAlreadyExists)
		}

		id, err := bs.nextID(seqCustomer)
		if err != nil {
			return err
		}
		rec := customerRecord{
			ID:           id,
			Login:        customer.Login,
			PasswordHash: customer.PasswordHash,
			Balance:      customer.Balance,
			SessionToken: customer.SessionToken,
		}
		if err := setJSON(txn, customerKey(id), rec); err != nil {
			return err
		}
		if err := setIndex(txn, customerLoginKey(customer.Login), id); err != nil {
			return err
		}
		customer.ID = id
		return nil
	})
}

func badgerCustomer(txn *badger.Txn, id int64) (*customerRecord, error) {
	var rec customerRecord
	if err := getJSON(txn, customerKey(id), &rec); err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, err)
	}
	return &rec, nil
}

func (bs *BadgerStorage) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c *models.Customer
	err := bs.db.View(func(txn *badger.Txn) error {
		rec, err := badgerCustomer(txn, id)
		if err != nil {
			return err
		}
		c = rec.model()
		return nil
	})
	return c, err
}

func (bs *BadgerStorage) GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error) {
	var c *models.Customer
	err := bs.db.View(func(txn *badger.Txn) error {
		id, err := getIndex(txn, customerLoginKey(login))
		if err != nil {
			return fmt.Errorf("customer %q: %w", login, err)
		}
		rec, err := badgerCustomer(txn, id)
		if err != nil {
			return err
		}
		c = rec.model()
		return nil
	})
	return c, err
}

func (bs *BadgerStorage) SetCustomerToken(ctx context.Context, id int64, token string) error {
	return bs.update(func(txn *badger.Txn) error {
		rec, err := badgerCustomer(txn, id)
		if err != nil {
			return err
		}
		rec.SessionToken = token
		return setJSON(txn, customerKey(id), rec)
	})
}

func (bs *BadgerStorage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	return bs.update(func(txn *badger.Txn) error {
		taken, err := exists(txn, adminLoginKey(admin.Login))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("admin %q: %w", admin.Login, ErrAlreadyExists)
		}

		id, err := bs.nextID(seqAdmin)
		if err != nil {
			return err
		}
		rec := adminRecord{ID: id, Login: admin.Login, PasswordHash: admin.PasswordHash, SessionToken: admin.SessionToken}
		if err := setJSON(txn, adminKey(id), rec); err != nil {
			return err
		}
		if err := setIndex(txn, adminLoginKey(admin.Login), id); err != nil {
			return err
		}
		admin.ID = id
		return nil
	})
}

func (bs *BadgerStorage) GetAdminByLogin(ctx context.Context, login string) (*models.Admin, error) {
	var a *models.Admin
	err := bs.db.View(func(txn *badger.Txn) error {
		id, err := getIndex(txn, adminLoginKey(login))
		if err != nil {
			return fmt.Errorf("admin %q: %w", login, err)
		}
		var rec adminRecord
		if err := getJSON(txn, adminKey(id), &rec); err != nil {
			return fmt.Errorf("admin %d: %w", id, err)
		}
		a = rec.model()
		return nil
	})
	return a, err
}

// GetAdminByToken scans the admin records; the admin set is small.
func (bs *BadgerStorage) GetAdminByToken(ctx context.Context, token string) (*models.Admin, error) {
	var found *models.Admin
	err := bs.db.View(func(txn *badger.Txn) error {
		prefix := []byte("admin/")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec adminRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if a := rec.model(); a.HasSession(token) {
				found = a
				return nil
			}
		}
		return fmt.Errorf("admin session: %w", ErrNotFound)
	})
	return found, err
}

func (bs *BadgerStorage) SetAdminToken(ctx context.Context, id int64, token string) error {
	return bs.update(func(txn *badger.Txn) error {
		var rec adminRecord
		if err := getJSON(txn, adminKey(id), &rec); err != nil {
			return fmt.Errorf("admin %d: %w", id, err)
		}
		rec.SessionToken = token
		return setJSON(txn, adminKey(id), rec)
	})
}

func (bs *BadgerStorage) CreateFuel(ctx context.Context, fuel *models.Fuel) error {
	return bs.update(func(txn *badger.Txn) error {
		id, err := bs.nextID(seqFuel)
		if err != nil {
			return err
		}
		rec := fuelRecord{ID: id, Name: fuel.Name, Price: fuel.Price, Category: string(fuel.Category)}
		if err := setJSON(txn, fuelKey(id), rec); err != nil {
			return err
		}
		fuel.ID = id
		return nil
	})
}

func badgerFuel(txn *badger.Txn, id int64) (*models.Fuel, error) {
	var rec fuelRecord
	if err := getJSON(txn, fuelKey(id), &rec); err != nil {
		return nil, fmt.Errorf("fuel %d: %w", id, err)
	}
	return rec.model()
}

func (bs *BadgerStorage) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	var f *models.Fuel
	err := bs.db.View(func(txn *badger.Txn) error {
		var err error
		f, err = badgerFuel(txn, id)
		return err
	})
	return f, err
}

func badgerFuels(txn *badger.Txn) ([]*models.Fuel, error) {
	prefix := []byte("fuel/")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var fuels []*models.Fuel
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec fuelRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, err
		}
		f, err := rec.model()
		if err != nil {
			return nil, err
		}
		fuels = append(fuels, f)
	}
	return fuels, nil
}

func (bs *BadgerStorage) Fuels(ctx context.Context) ([]*models.Fuel, error) {
	var fuels []*models.Fuel
	err := bs.db.View(func(txn *badger.Txn) error {
		var err error
		fuels, err = badgerFuels(txn)
		return err
	})
	return fuels, err
}

func (bs *BadgerStorage) FuelStock(ctx context.Context) ([]*models.FuelStock, error) {
	var stock []*models.FuelStock
	err := bs.db.View(func(txn *badger.Txn) error {
		fuels, err := badgerFuels(txn)
		if err != nil {
			return err
		}
		for _, f := range fuels {
			tanks, err := badgerTanks(txn, f.ID)
			if err != nil {
				return err
			}
			if len(tanks) == 0 {
				continue
			}
			var stored, capacity int64
			for _, t := range tanks {
				stored += t.Stored
				capacity += t.Capacity
			}
			stock = append(stock, fuelStockFromTotals(f.ID, f.Name, f.Price, f.Category, stored, capacity))
		}
		return nil
	})
	return stock, err
}

func (bs *BadgerStorage) UpdateFuelPrice(ctx context.Context, id int64, price int64) error {
	return bs.update(func(txn *badger.Txn) error {
		var rec fuelRecord
		if err := getJSON(txn, fuelKey(id), &rec); err != nil {
			return fmt.Errorf("fuel %d: %w", id, err)
		}
		rec.Price = price
		return setJSON(txn, fuelKey(id), rec)
	})
}

func (bs *BadgerStorage) CreateTank(ctx context.Context, tank *models.Tank) error {
	if err := tank.Validate(); err != nil {
		return err
	}
	return bs.update(func(txn *badger.Txn) error {
		if _, err := badgerFuel(txn, tank.FuelID); err != nil {
			return err
		}
		id, err := bs.nextID(seqTank)
		if err != nil {
			return err
		}
		rec := tankRecord{ID: id, FuelID: tank.FuelID, Stored: tank.Stored, Capacity: tank.Capacity}
		if err := setJSON(txn, tankKey(id), rec); err != nil {
			return err
		}
		if err := txn.Set(fuelTankKey(tank.FuelID, id), nil); err != nil {
			return err
		}
		tank.ID = id
		return nil
	})
}

func badgerTanks(txn *badger.Txn, fuelID int64) ([]models.Tank, error) {
	prefix := fuelTankPrefix(fuelID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var ids []int64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := string(it.Item().Key())
		id, err := strconv.ParseInt(strings.TrimPrefix(key, string(prefix)), 10, 64)
		if err != nil {
			it.Close()
			return nil, fmt.Errorf("malformed tank index key %q: %w", key, err)
		}
		ids = append(ids, id)
	}
	it.Close()

	tanks := make([]models.Tank, 0, len(ids))
	for _, id := range ids {
		var rec tankRecord
		if err := getJSON(txn, tankKey(id), &rec); err != nil {
			return nil, fmt.Errorf("tank %d: %w", id, err)
		}
		tanks = append(tanks, rec.model())
	}
	return tanks, nil
}

func (bs *BadgerStorage) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	var tanks []models.Tank
	err := bs.db.View(func(txn *badger.Txn) error {
		var err error
		tanks, err = badgerTanks(txn, fuelID)
		return err
	})
	return tanks, err
}

func badgerBank(txn *badger.Txn) (*models.Bank, error) {
	var rec bankRecord
	if err := getJSON(txn, bankKey, &rec); err != nil {
		return nil, fmt.Errorf("bank: %w", err)
	}
	return &models.Bank{ID: rec.ID, Total: rec.Total}, nil
}

func (bs *BadgerStorage) GetBank(ctx context.Context) (*models.Bank, error) {
	var b *models.Bank
	err := bs.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = badgerBank(txn)
		return err
	})
	return b, err
}

// WithTx runs fn in one Badger read-write transaction. Nothing is written
// unless fn succeeds and the commit finds no conflicting writer. A commit
// conflict reruns fn in a fresh transaction with backoff; fn must therefore
// derive everything it returns from the reads it makes through tx.
func (bs *BadgerStorage) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := 0
	err := retry.Do(ctx, bs.commitBackoff(), func(ctx context.Context) error {
		attempts++
		err := bs.db.Update(func(txn *badger.Txn) error {
			return fn(ctx, &badgerTx{txn: txn})
		})
		if errors.Is(err, badger.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger commit after %d attempts: %w", attempts, ErrConflict)
	}
	return err
}

// commitBackoff spreads retries of conflicting transactions. Every sale
// writes the bank key, so concurrent purchases always collide on it.
func (bs *BadgerStorage) commitBackoff() retry.Backoff {
	b := retry.NewExponential(500 * time.Microsecond)
	b = retry.WithJitterPercent(50, b)
	b = retry.WithCappedDuration(20*time.Millisecond, b)
	return retry.WithMaxRetries(bs.maxCommitRetries, b)
}

func (bs *BadgerStorage) Ping(ctx context.Context) error {
	if bs.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

// Close releases the ID sequences and closes the database.
func (bs *BadgerStorage) Close() error {
	var errs []error
	for name, seq := range bs.seqs {
		if err := seq.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s sequence: %w", name, err))
		}
	}
	if err := bs.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	rec, err := badgerCustomer(t.txn, id)
	if err != nil {
		return nil, err
	}
	return rec.model(), nil
}

func (t *badgerTx) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	return badgerFuel(t.txn, id)
}

func (t *badgerTx) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	return badgerTanks(t.txn, fuelID)
}

func (t *badgerTx) GetBank(ctx context.Context) (*models.Bank, error) {
	return badgerBank(t.txn)
}

func (t *badgerTx) UpdateTankStored(ctx context.Context, tankID, expected, value int64) error {
	var rec tankRecord
	if err := getJSON(t.txn, tankKey(tankID), &rec); err != nil {
		return fmt.Errorf("tank %d: %w", tankID, err)
	}
	if rec.Stored != expected {
		return fmt.Errorf("tank %d stored %d, expected %d: %w", tankID, rec.Stored, expected, ErrConflict)
	}
	rec.Stored = value
	tank := rec.model()
	if err := tank.Validate(); err != nil {
		return fmt.Errorf("tank %d: %w", tankID, err)
	}
	return setJSON(t.txn, tankKey(tankID), rec)
}

func (t *badgerTx) UpdateCustomerBalance(ctx context.Context, customerID, expected, value int64) error {
	rec, err := badgerCustomer(t.txn, customerID)
	if err != nil {
		return err
	}
	if rec.Balance != expected {
		return fmt.Errorf("customer %d balance %d, expected %d: %w", customerID, rec.Balance, expected, ErrConflict)
	}
	if value < 0 {
		return fmt.Errorf("customer %d: balance cannot be negative", customerID)
	}
	rec.Balance = value
	return setJSON(t.txn, customerKey(customerID), rec)
}

func (t *badgerTx) CreditBank(ctx context.Context, amount int64) error {
	rec := bankRecord{ID: BankID}
	if err := getJSON(t.txn, bankKey, &rec); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("bank: %w", err)
	}
	if rec.Total > math.MaxInt64-amount {
		return fmt.Errorf("bank total %d plus %d: %w", rec.Total, amount, models.ErrCostOverflow)
	}
	rec.Total += amount
	return setJSON(t.txn, bankKey, rec)
}

func (t *badgerTx) DebitBank(ctx context.Context, amount int64) error {
	var rec bankRecord
	if err := getJSON(t.txn, bankKey, &rec); err != nil {
		return fmt.Errorf("bank: %w", err)
	}
	if rec.Total < amount {
		return fmt.Errorf("bank total %d below %d: %w", rec.Total, amount, ErrConflict)
	}
	rec.Total -= amount
	return setJSON(t.txn, bankKey, rec)
}
