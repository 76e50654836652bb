package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"fuelstation/internal/models"
)

// PostgresStorage implements the Storage interface using PostgreSQL through a
// pgx connection pool. Transactions run at read committed and take row locks
// (SELECT ... FOR UPDATE) on everything they read, so concurrent purchases
// against the same tanks or customer queue behind each other.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgUniqueViolation = "23505"

// NewPostgresStorage creates the pool, verifies connectivity and applies the
// embedded migrations.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, db, goose.DialectPostgres, "postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (ps *PostgresStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO customer (login, password_hash, balance, session_token)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		customer.Login, customer.PasswordHash, customer.Balance, pgTextToken(customer.SessionToken),
	).Scan(&customer.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("customer %q: %w", customer.Login, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return pgGetCustomer(ctx, ps.pool, `WHERE id = $1`, id)
}

func (ps *PostgresStorage) GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error) {
	return pgGetCustomer(ctx, ps.pool, `WHERE login = $1`, login)
}

func (ps *PostgresStorage) SetCustomerToken(ctx context.Context, id int64, token string) error {
	tag, err := ps.pool.Exec(ctx, `UPDATE customer SET session_token = $1 WHERE id = $2`, pgTextToken(token), id)
	if err != nil {
		return fmt.Errorf("failed to set customer token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO admin (login, password_hash, session_token) VALUES ($1, $2, $3) RETURNING id`,
		admin.Login, admin.PasswordHash, pgTextToken(admin.SessionToken),
	).Scan(&admin.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("admin %q: %w", admin.Login, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) GetAdminByLogin(ctx context.Context, login string) (*models.Admin, error) {
	return pgGetAdmin(ctx, ps.pool, `WHERE login = $1`, login)
}

func (ps *PostgresStorage) GetAdminByToken(ctx context.Context, token string) (*models.Admin, error) {
	if token == "" {
		return nil, fmt.Errorf("admin session: %w", ErrNotFound)
	}
	return pgGetAdmin(ctx, ps.pool, `WHERE session_token = $1`, token)
}

func (ps *PostgresStorage) SetAdminToken(ctx context.Context, id int64, token string) error {
	tag, err := ps.pool.Exec(ctx, `UPDATE admin SET session_token = $1 WHERE id = $2`, pgTextToken(token), id)
	if err != nil {
		return fmt.Errorf("failed to set admin token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("admin %d: %w", id, ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) CreateFuel(ctx context.Context, fuel *models.Fuel) error {
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO fuel (name, price, fuel_type) VALUES ($1, $2, $3) RETURNING id`,
		fuel.Name, fuel.Price, pgTextCategory(fuel.Category),
	).Scan(&fuel.ID)
	if err != nil {
		return fmt.Errorf("failed to create fuel: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	return pgGetFuel(ctx, ps.pool, id, false)
}

func (ps *PostgresStorage) Fuels(ctx context.Context) ([]*models.Fuel, error) {
	rows, err := ps.pool.Query(ctx, `SELECT id, name, price, fuel_type FROM fuel ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fuels: %w", err)
	}
	defer rows.Close()

	var fuels []*models.Fuel
	for rows.Next() {
		f, err := pgScanFuel(rows)
		if err != nil {
			return nil, err
		}
		fuels = append(fuels, f)
	}
	return fuels, rows.Err()
}

func (ps *PostgresStorage) FuelStock(ctx context.Context) ([]*models.FuelStock, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT f.id, f.name, f.price, f.fuel_type, SUM(t.stored)::BIGINT, SUM(t.capacity)::BIGINT
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
			fuelType                    pgtype.Text
		)
		if err := rows.Scan(&id, &name, &price, &fuelType, &stored, &capacity); err != nil {
			return nil, fmt.Errorf("failed to scan fuel stock: %w", err)
		}
		category, err := pgCategoryFromText(fuelType)
		if err != nil {
			return nil, err
		}
		stock = append(stock, fuelStockFromTotals(id, name, price, category, stored, capacity))
	}
	return stock, rows.Err()
}

func (ps *PostgresStorage) UpdateFuelPrice(ctx context.Context, id int64, price int64) error {
	tag, err := ps.pool.Exec(ctx, `UPDATE fuel SET price = $1 WHERE id = $2`, price, id)
	if err != nil {
		return fmt.Errorf("failed to update fuel price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fuel %d: %w", id, ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) CreateTank(ctx context.Context, tank *models.Tank) error {
	if err := tank.Validate(); err != nil {
		return err
	}
	if _, err := pgGetFuel(ctx, ps.pool, tank.FuelID, false); err != nil {
		return err
	}
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO tank (fuel_id, stored, capacity) VALUES ($1, $2, $3) RETURNING id`,
		tank.FuelID, tank.Stored, tank.Capacity,
	).Scan(&tank.ID)
	if err != nil {
		return fmt.Errorf("failed to create tank: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	return pgTanks(ctx, ps.pool, fuelID, false)
}

func (ps *PostgresStorage) GetBank(ctx context.Context) (*models.Bank, error) {
	return pgGetBank(ctx, ps.pool, false)
}

// WithTx runs fn in a read committed transaction whose reads lock their rows.
func (ps *PostgresStorage) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := ps.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the storage connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return pgGetCustomer(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	return pgGetFuel(ctx, t.tx, id, true)
}

func (t *postgresTx) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	return pgTanks(ctx, t.tx, fuelID, true)
}

func (t *postgresTx) GetBank(ctx context.Context) (*models.Bank, error) {
	return pgGetBank(ctx, t.tx, true)
}

func (t *postgresTx) UpdateTankStored(ctx context.Context, tankID, expected, value int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tank SET stored = $1 WHERE id = $2 AND stored = $3`, value, tankID, expected)
	if err != nil {
		return fmt.Errorf("failed to update tank %d: %w", tankID, err)
	}
	return t.conditional(ctx, tag, `SELECT 1 FROM tank WHERE id = $1`, tankID, fmt.Sprintf("tank %d", tankID))
}

func (t *postgresTx) UpdateCustomerBalance(ctx context.Context, customerID, expected, value int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE customer SET balance = $1 WHERE id = $2 AND balance = $3`, value, customerID, expected)
	if err != nil {
		return fmt.Errorf("failed to update customer %d balance: %w", customerID, err)
	}
	return t.conditional(ctx, tag, `SELECT 1 FROM customer WHERE id = $1`, customerID, fmt.Sprintf("customer %d", customerID))
}

func (t *postgresTx) CreditBank(ctx context.Context, amount int64) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO bank (id, total) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET total = bank.total + EXCLUDED.total
		 WHERE bank.total <= $3 - EXCLUDED.total`,
		BankID, amount, int64(math.MaxInt64))
	if err != nil {
		return fmt.Errorf("failed to credit bank: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank credit of %d: %w", amount, models.ErrCostOverflow)
	}
	return nil
}

func (t *postgresTx) DebitBank(ctx context.Context, amount int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bank SET total = total - $1 WHERE id = $2 AND total >= $1`, amount, BankID)
	if err != nil {
		return fmt.Errorf("failed to debit bank: %w", err)
	}
	return t.conditional(ctx, tag, `SELECT 1 FROM bank WHERE id = $1`, BankID, "bank")
}

func (t *postgresTx) conditional(ctx context.Context, tag pgconn.CommandTag, existsQuery string, id int64, what string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var one int
	if err := t.tx.QueryRow(ctx, existsQuery, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return fmt.Errorf("failed to check %s: %w", what, err)
	}
	return fmt.Errorf("%s: %w", what, ErrConflict)
}

func forUpdate(lock bool) string {
	if lock {
		return ` FOR UPDATE`
	}
	return ``
}

func pgGetCustomer(ctx context.Context, q pgQuerier, where string, arg any) (*models.Customer, error) {
	var (
		c     models.Customer
		token pgtype.Text
	)
	err := q.QueryRow(ctx,
		`SELECT id, login, password_hash, balance, session_token FROM customer `+where, arg,
	).Scan(&c.ID, &c.Login, &c.PasswordHash, &c.Balance, &token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.SessionToken = pgTokenFromText(token)
	return &c, nil
}

func pgGetAdmin(ctx context.Context, q pgQuerier, where string, arg any) (*models.Admin, error) {
	var (
		a     models.Admin
		token pgtype.Text
	)
	err := q.QueryRow(ctx,
		`SELECT id, login, password_hash, session_token FROM admin `+where+` ORDER BY id LIMIT 1`, arg,
	).Scan(&a.ID, &a.Login, &a.PasswordHash, &token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("admin: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	a.SessionToken = pgTokenFromText(token)
	return &a, nil
}

func pgScanFuel(row pgx.Row) (*models.Fuel, error) {
	var (
		f        models.Fuel
		fuelType pgtype.Text
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Price, &fuelType); err != nil {
		return nil, err
	}
	category, err := pgCategoryFromText(fuelType)
	if err != nil {
		return nil, err
	}
	f.Category = category
	return &f, nil
}

func pgGetFuel(ctx context.Context, q pgQuerier, id int64, lock bool) (*models.Fuel, error) {
	f, err := pgScanFuel(q.QueryRow(ctx,
		`SELECT id, name, price, fuel_type FROM fuel WHERE id = $1`+forUpdate(lock), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fuel %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fuel: %w", err)
	}
	return f, nil
}

func pgTanks(ctx context.Context, q pgQuerier, fuelID int64, lock bool) ([]models.Tank, error) {
	rows, err := q.Query(ctx,
		`SELECT id, fuel_id, stored, capacity FROM tank WHERE fuel_id = $1 ORDER BY id`+forUpdate(lock), fuelID)
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

func pgGetBank(ctx context.Context, q pgQuerier, lock bool) (*models.Bank, error) {
	var b models.Bank
	err := q.QueryRow(ctx, `SELECT id, total FROM bank WHERE id = $1`+forUpdate(lock), BankID).Scan(&b.ID, &b.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bank: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bank: %w", err)
	}
	return &b, nil
}
