package storage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/internal/models"
)

// runStorageSuite exercises the Storage contract against a fresh store per
// subtest. Every backend test calls it with its own constructor.
func runStorageSuite(t *testing.T, newStore func(t *testing.T) Storage) {
	t.Run("Customer Operations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := models.NewCustomer("alice", "hash", 100000)
		require.NoError(t, s.CreateCustomer(ctx, c))
		assert.NotZero(t, c.ID)

		got, err := s.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Login)
		assert.Equal(t, int64(100000), got.Balance)
		assert.Empty(t, got.SessionToken)

		byLogin, err := s.GetCustomerByLogin(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, c.ID, byLogin.ID)

		dup := models.NewCustomer("alice", "other", 0)
		err = s.CreateCustomer(ctx, dup)
		assert.ErrorIs(t, err, ErrAlreadyExists)

		require.NoError(t, s.SetCustomerToken(ctx, c.ID, "tok-1"))
		got, err = s.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", got.SessionToken)

		require.NoError(t, s.SetCustomerToken(ctx, c.ID, "tok-2"))
		got, err = s.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok-2", got.SessionToken)

		_, err = s.GetCustomer(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetCustomerByLogin(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.SetCustomerToken(ctx, 9999, "x"), ErrNotFound)
	})

	t.Run("Admin Operations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := models.NewAdmin("root", "hash")
		require.NoError(t, s.CreateAdmin(ctx, a))
		assert.NotZero(t, a.ID)
		assert.ErrorIs(t, s.CreateAdmin(ctx, models.NewAdmin("root", "x")), ErrAlreadyExists)

		got, err := s.GetAdminByLogin(ctx, "root")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		_, err = s.GetAdminByToken(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound, "empty token never authenticates")

		require.NoError(t, s.SetAdminToken(ctx, a.ID, "admin-tok"))
		got, err = s.GetAdminByToken(ctx, "admin-tok")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		require.NoError(t, s.SetAdminToken(ctx, a.ID, "admin-tok-2"))
		_, err = s.GetAdminByToken(ctx, "admin-tok")
		assert.ErrorIs(t, err, ErrNotFound, "previous token is invalidated")
	})

	t.Run("Fuel And Tank Operations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		petrol := models.NewFuel("Petrol 95", 55, models.CategoryPetrol)
		require.NoError(t, s.CreateFuel(ctx, petrol))
		diesel := models.NewFuel("Diesel", 50, models.CategoryDiesel)
		require.NoError(t, s.CreateFuel(ctx, diesel))
		bare := models.NewFuel("Hydrogen", 90, models.CategoryGas)
		require.NoError(t, s.CreateFuel(ctx, bare))

		require.NoError(t, s.CreateTank(ctx, models.NewTank(petrol.ID, 300, 1000)))
		require.NoError(t, s.CreateTank(ctx, models.NewTank(petrol.ID, 200, 500)))
		require.NoError(t, s.CreateTank(ctx, models.NewTank(diesel.ID, 0, 800)))

		assert.ErrorIs(t, s.CreateTank(ctx, models.NewTank(9999, 0, 10)), ErrNotFound)
		assert.Error(t, s.CreateTank(ctx, models.NewTank(petrol.ID, 20, 10)))

		fuels, err := s.Fuels(ctx)
		require.NoError(t, err)
		require.Len(t, fuels, 3)
		assert.Equal(t, petrol.ID, fuels[0].ID)
		assert.Equal(t, models.CategoryDiesel, fuels[1].Category)

		stock, err := s.FuelStock(ctx)
		require.NoError(t, err)
		require.Len(t, stock, 2, "fuels without tanks are not listed")
		assert.Equal(t, petrol.ID, stock[0].ID)
		assert.Equal(t, int64(500), stock[0].Stored)
		assert.Equal(t, int64(1500), stock[0].Capacity)
		assert.InDelta(t, 33.33, stock[0].FillPercent, 0.01)
		assert.Equal(t, int64(0), stock[1].Stored)

		tanks, err := s.Tanks(ctx, petrol.ID)
		require.NoError(t, err)
		require.Len(t, tanks, 2)
		assert.Less(t, tanks[0].ID, tanks[1].ID)
		assert.Equal(t, int64(300), tanks[0].Stored)

		tanks, err = s.Tanks(ctx, bare.ID)
		require.NoError(t, err)
		assert.Empty(t, tanks)

		require.NoError(t, s.UpdateFuelPrice(ctx, petrol.ID, 60))
		got, err := s.GetFuel(ctx, petrol.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(60), got.Price)
		assert.ErrorIs(t, s.UpdateFuelPrice(ctx, 9999, 1), ErrNotFound)

		_, err = s.GetFuel(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Transaction Commit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, fuel, tank := seedSale(t, s)

		_, err := s.GetBank(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			cust, err := tx.GetCustomer(ctx, c.ID)
			if err != nil {
				return err
			}
			f, err := tx.GetFuel(ctx, fuel.ID)
			if err != nil {
				return err
			}
			tanks, err := tx.Tanks(ctx, fuel.ID)
			if err != nil {
				return err
			}
			if err := tx.UpdateTankStored(ctx, tanks[0].ID, tanks[0].Stored, tanks[0].Stored-10); err != nil {
				return err
			}
			cost := f.Price * 10
			if err := tx.UpdateCustomerBalance(ctx, cust.ID, cust.Balance, cust.Balance-cost); err != nil {
				return err
			}
			return tx.CreditBank(ctx, cost)
		})
		require.NoError(t, err)

		tanks, err := s.Tanks(ctx, fuel.ID)
		require.NoError(t, err)
		assert.Equal(t, tank.Stored-10, tanks[0].Stored)

		got, err := s.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000-550), got.Balance)

		bank, err := s.GetBank(ctx)
		require.NoError(t, err)
		assert.Equal(t, BankID, bank.ID)
		assert.Equal(t, int64(550), bank.Total)

		// A second credit accumulates on the existing bank row
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreditBank(ctx, 50)
		}))
		bank, err = s.GetBank(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(600), bank.Total)
	})

	t.Run("Transaction Rollback", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, fuel, tank := seedSale(t, s)

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.UpdateTankStored(ctx, tank.ID, tank.Stored, 0); err != nil {
				return err
			}
			if err := tx.UpdateCustomerBalance(ctx, c.ID, c.Balance, 0); err != nil {
				return err
			}
			if err := tx.CreditBank(ctx, 999); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		tanks, err := s.Tanks(ctx, fuel.ID)
		require.NoError(t, err)
		assert.Equal(t, tank.Stored, tanks[0].Stored)

		got, err := s.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Balance, got.Balance)

		_, err = s.GetBank(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Conditional Writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, _, tank := seedSale(t, s)

		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.UpdateTankStored(ctx, tank.ID, tank.Stored+1, 0)
		})
		assert.ErrorIs(t, err, ErrConflict)

		err = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.UpdateCustomerBalance(ctx, c.ID, c.Balance-1, 0)
		})
		assert.ErrorIs(t, err, ErrConflict)

		err = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.UpdateTankStored(ctx, 9999, 0, 0)
		})
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.UpdateCustomerBalance(ctx, 9999, 0, 0)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Bank Debit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.DebitBank(ctx, 1)
		})
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreditBank(ctx, 100)
		}))

		err = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.DebitBank(ctx, 101)
		})
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.DebitBank(ctx, 100)
		}))
		bank, err := s.GetBank(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), bank.Total)
	})

	t.Run("Bank Credit Overflow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreditBank(ctx, math.MaxInt64-10)
		}))

		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreditBank(ctx, 11)
		})
		assert.ErrorIs(t, err, models.ErrCostOverflow)

		bank, err := s.GetBank(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64-10), bank.Total)

		// Exactly reaching the limit is fine
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreditBank(ctx, 10)
		}))
		bank, err = s.GetBank(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), bank.Total)
	})

	t.Run("Reads See Own Writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, fuel, tank := seedSale(t, s)

		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.UpdateTankStored(ctx, tank.ID, tank.Stored, 1); err != nil {
				return err
			}
			tanks, err := tx.Tanks(ctx, fuel.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(1), tanks[0].Stored)

			if err := tx.UpdateCustomerBalance(ctx, c.ID, c.Balance, 7); err != nil {
				return err
			}
			cust, err := tx.GetCustomer(ctx, c.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(7), cust.Balance)

			if err := tx.CreditBank(ctx, 5); err != nil {
				return err
			}
			bank, err := tx.GetBank(ctx)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(5), bank.Total)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Concurrent Transactions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, fuel, _ := seedSale(t, s)

		const workers = 10
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int64
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
					tanks, err := tx.Tanks(ctx, fuel.ID)
					if err != nil {
						return err
					}
					if tanks[0].Stored < 10 {
						return nil
					}
					return tx.UpdateTankStored(ctx, tanks[0].ID, tanks[0].Stored, tanks[0].Stored-10)
				})
				if err == nil {
					mu.Lock()
					committed++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrConflict)
				}
			}()
		}
		wg.Wait()

		tanks, err := s.Tanks(ctx, fuel.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100)-committed*10, tanks[0].Stored, "every committed draw is reflected exactly once")
	})
}

// seedSale creates one customer with 1000, one petrol fuel at 55 and one tank
// holding 100 of 1000.
func seedSale(t *testing.T, s Storage) (*models.Customer, *models.Fuel, *models.Tank) {
	t.Helper()
	ctx := context.Background()

	c := models.NewCustomer("buyer", "hash", 1000)
	require.NoError(t, s.CreateCustomer(ctx, c))

	f := models.NewFuel("Petrol 95", 55, models.CategoryPetrol)
	require.NoError(t, s.CreateFuel(ctx, f))

	tank := models.NewTank(f.ID, 100, 1000)
	require.NoError(t, s.CreateTank(ctx, tank))

	return c, f, tank
}
