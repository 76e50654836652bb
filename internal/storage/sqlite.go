package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fuelstation/internal/models"
)

// SQLiteStorage implements Storage on a single SQLite connection. SQLite
// allows one writer at a time; pinning the pool to one connection turns that
// into plain serialization of transactions instead of SQLITE_BUSY errors.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database, enables foreign keys and applies the
// embedded migrations.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{db: db}, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (ss *SQLiteStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	err := ss.db.QueryRowContext(ctx,
		`INSERT INTO customer (login, password_hash, balance, session_token)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		customer.Login, customer.PasswordHash, customer.Balance, nullToken(customer.SessionToken),
	).Scan(&customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer %q: %w", customer.Login, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return sqlGetCustomer(ctx, ss.db, `WHERE id = ?`, id)
}

func (ss *SQLiteStorage) GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error) {
	return sqlGetCustomer(ctx, ss.db, `WHERE login = ?`, login)
}

func (ss *SQLiteStorage) SetCustomerToken(ctx context.Context, id int64, token string) error {
	res, err := ss.db.ExecContext(ctx, `UPDATE customer SET session_token = ? WHERE id = ?`, nullToken(token), id)
	if err != nil {
		return fmt.Errorf("failed to set customer token: %w", err)
	}
	return requireRow(res, fmt.Sprintf("customer %d", id))
}

func (ss *SQLiteStorage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	err := ss.db.QueryRowContext(ctx,
		`INSERT INTO admin (login, password_hash, session_token) VALUES (?, ?, ?) RETURNING id`,
		admin.Login, admin.PasswordHash, nullToken(admin.SessionToken),
	).Scan(&admin.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("admin %q: %w", admin.Login, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) GetAdminByLogin(ctx context.Context, login string) (*models.Admin, error) {
	return sqlGetAdmin(ctx, ss.db, `WHERE login = ?`, login)
}

func (ss *SQLiteStorage) GetAdminByToken(ctx context.Context, token string) (*models.Admin, error) {
	if token == "" {
		return nil, fmt.Errorf("admin session: %w", ErrNotFound)
	}
	return sqlGetAdmin(ctx, ss.db, `WHERE session_token = ?`, token)
}

func (ss *SQLiteStorage) SetAdminToken(ctx context.Context, id int64, token string) error {
	res, err := ss.db.ExecContext(ctx, `UPDATE admin SET session_token = ? WHERE id = ?`, nullToken(token), id)
	if err != nil {
		return fmt.Errorf("failed to set admin token: %w", err)
	}
	return requireRow(res, fmt.Sprintf("admin %d", id))
}

func (ss *SQLiteStorage) CreateFuel(ctx context.Context, fuel *models.Fuel) error {
	err := ss.db.QueryRowContext(ctx,
		`INSERT INTO fuel (name, price, fuel_type) VALUES (?, ?, ?) RETURNING id`,
		fuel.Name, fuel.Price, nullCategory(fuel.Category),
	).Scan(&fuel.ID)
	if err != nil {
		return fmt.Errorf("failed to create fuel: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	return sqlGetFuel(ctx, ss.db, id)
}

func (ss *SQLiteStorage) Fuels(ctx context.Context) ([]*models.Fuel, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT id, name, price, fuel_type FROM fuel ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fuels: %w", err)
	}
	defer rows.Close()

	var fuels []*models.Fuel
	for rows.Next() {
		f, err := scanFuel(rows)
		if err != nil {
			return nil, err
		}
		fuels = append(fuels, f)
	}
	return fuels, rows.Err()
}

func (ss *SQLiteStorage) FuelStock(ctx context.Context) ([]*models.FuelStock, error) {
	rows, err := ss.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.price, f.fuel_type, SUM(t.stored), SUM(t.capacity)
		 FROM fuel f
		 JOIN tank t ON t.fuel_id = f.id
		 GROUP BY f.id, f.name, f.price, f.fuel_type
		 ORDER BY f.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load fuel stock: %w", err)
	}
	defer rows.Close()

	var stock []*models.FuelStock
	for rows.Next() {
		var (
			id, price, stored, capacity int64
			name                        string
			fuelType                    sql.NullString
		)
		if err := rows.Scan(&id, &name, &price, &fuelType, &stored, &capacity); err != nil {
			return nil, fmt.Errorf("failed to scan fuel stock: %w", err)
		}
		category, err := categoryFromNull(fuelType)
		if err != nil {
			return nil, err
		}
		stock = append(stock, fuelStockFromTotals(id, name, price, category, stored, capacity))
	}
	return stock, rows.Err()
}

func (ss *SQLiteStorage) UpdateFuelPrice(ctx context.Context, id int64, price int64) error {
	res, err := ss.db.ExecContext(ctx, `UPDATE fuel SET price = ? WHERE id = ?`, price, id)
	if err != nil {
		return fmt.Errorf("failed to update fuel price: %w", err)
	}
	return requireRow(res, fmt.Sprintf("fuel %d", id))
}

func (ss *SQLiteStorage) CreateTank(ctx context.Context, tank *models.Tank) error {
	if err := tank.Validate(); err != nil {
		return err
	}
	if _, err := sqlGetFuel(ctx, ss.db, tank.FuelID); err != nil {
		return err
	}
	err := ss.db.QueryRowContext(ctx,
		`INSERT INTO tank (fuel_id, stored, capacity) VALUES (?, ?, ?) RETURNING id`,
		tank.FuelID, tank.Stored, tank.Capacity,
	).Scan(&tank.ID)
	if err != nil {
		return fmt.Errorf("failed to create tank: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	return sqlTanks(ctx, ss.db, fuelID)
}

func (ss *SQLiteStorage) GetBank(ctx context.Context) (*models.Bank, error) {
	return sqlGetBank(ctx, ss.db)
}

// WithTx runs fn in a database transaction, rolling back on any error.
func (ss *SQLiteStorage) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// sqliteTx adapts a *sql.Tx to the Tx interface. Row locks are unnecessary:
// the single connection means no other transaction runs concurrently.
type sqliteTx struct {
	q queryer
}

func (t *sqliteTx) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return sqlGetCustomer(ctx, t.q, `WHERE id = ?`, id)
}

func (t *sqliteTx) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	return sqlGetFuel(ctx, t.q, id)
}

func (t *sqliteTx) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	return sqlTanks(ctx, t.q, fuelID)
}

func (t *sqliteTx) GetBank(ctx context.Context) (*models.Bank, error) {
	return sqlGetBank(ctx, t.q)
}

func (t *sqliteTx) UpdateTankStored(ctx context.Context, tankID, expected, value int64) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE tank SET stored = ? WHERE id = ? AND stored = ?`, value, tankID, expected)
	if err != nil {
		return fmt.Errorf("failed to update tank %d: %w", tankID, err)
	}
	return t.conditional(ctx, res, `SELECT 1 FROM tank WHERE id = ?`, tankID, fmt.Sprintf("tank %d", tankID))
}

func (t *sqliteTx) UpdateCustomerBalance(ctx context.Context, customerID, expected, value int64) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE customer SET balance = ? WHERE id = ? AND balance = ?`, value, customerID, expected)
	if err != nil {
		return fmt.Errorf("failed to update customer %d balance: %w", customerID, err)
	}
	return t.conditional(ctx, res, `SELECT 1 FROM customer WHERE id = ?`, customerID, fmt.Sprintf("customer %d", customerID))
}

func (t *sqliteTx) CreditBank(ctx context.Context, amount int64) error {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO bank (id, total) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET total = bank.total + excluded.total
		 WHERE bank.total <= ? - excluded.total`,
		BankID, amount, int64(math.MaxInt64))
	if err != nil {
		return fmt.Errorf("failed to credit bank: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bank credit of %d: %w", amount, models.ErrCostOverflow)
	}
	return nil
}

func (t *sqliteTx) DebitBank(ctx context.Context, amount int64) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE bank SET total = total - ? WHERE id = ? AND total >= ?`, amount, BankID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit bank: %w", err)
	}
	return t.conditional(ctx, res, `SELECT 1 FROM bank WHERE id = ?`, BankID, "bank")
}

// conditional resolves a guarded UPDATE: no affected row means either the
// row is missing (ErrNotFound) or its guard failed (ErrConflict).
func (t *sqliteTx) conditional(ctx context.Context, res sql.Result, existsQuery string, id int64, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	if err := t.q.QueryRowContext(ctx, existsQuery, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return fmt.Errorf("failed to check %s: %w", what, err)
	}
	return fmt.Errorf("%s: %w", what, ErrConflict)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func sqlGetCustomer(ctx context.Context, q queryer, where string, arg any) (*models.Customer, error) {
	var (
		c     models.Customer
		token sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, login, password_hash, balance, session_token FROM customer `+where, arg,
	).Scan(&c.ID, &c.Login, &c.PasswordHash, &c.Balance, &token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.SessionToken = tokenFromNull(token)
	return &c, nil
}

func sqlGetAdmin(ctx context.Context, q queryer, where string, arg any) (*models.Admin, error) {
	var (
		a     models.Admin
		token sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, login, password_hash, session_token FROM admin `+where+` ORDER BY id LIMIT 1`, arg,
	).Scan(&a.ID, &a.Login, &a.PasswordHash, &token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	a.SessionToken = tokenFromNull(token)
	return &a, nil
}

func scanFuel(row rowScanner) (*models.Fuel, error) {
	var (
		f        models.Fuel
		fuelType sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Price, &fuelType); err != nil {
		return nil, err
	}
	category, err := categoryFromNull(fuelType)
	if err != nil {
		return nil, err
	}
	f.Category = category
	return &f, nil
}

func sqlGetFuel(ctx context.Context, q queryer, id int64) (*models.Fuel, error) {
	f, err := scanFuel(q.QueryRowContext(ctx, `SELECT id, name, price, fuel_type FROM fuel WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fuel %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fuel: %w", err)
	}
	return f, nil
}

func sqlTanks(ctx context.Context, q queryer, fuelID int64) ([]models.Tank, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, fuel_id, stored, capacity FROM tank WHERE fuel_id = ? ORDER BY id`, fuelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tanks: %w", err)
	}
	defer rows.Close()

	var tanks []models.Tank
	for rows.Next() {
		var t models.Tank
		if err := rows.Scan(&t.ID, &t.FuelID, &t.Stored, &t.Capacity); err != nil {
			return nil, fmt.Errorf("failed to scan tank: %w", err)
		}
		tanks = append(tanks, t)
	}
	return tanks, rows.Err()
}

func sqlGetBank(ctx context.Context, q queryer) (*models.Bank, error) {
	var b models.Bank
	err := q.QueryRowContext(ctx, `SELECT id, total FROM bank WHERE id = ?`, BankID).Scan(&b.ID, &b.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bank: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bank: %w", err)
	}
	return &b, nil
}
