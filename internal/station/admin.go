package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fuelstation/internal/allocator"
	"fuelstation/internal/models"
	"fuelstation/internal/storage"
)

// Refill tops up a fuel's tanks by amount units. The bank pays half the
// unit price per unit; the bank must already exist and cover the cost.
func (s *Service) Refill(ctx context.Context, fuelID, amount int64, adminToken string) error {
	err := s.refill(ctx, fuelID, amount, adminToken)
	s.metrics.operation(ctx, "refill", err)
	return err
}

func (s *Service) refill(ctx context.Context, fuelID, amount int64, adminToken string) error {
	admin, err := s.authorizeAdmin(ctx, adminToken)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return NewInvalidRequestError("amount must be positive", nil)
	}

	var cost int64
	err = s.storage.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		fuel, err := tx.GetFuel(ctx, fuelID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return NewFuelNotFoundError(fuelID)
			}
			return err
		}

		cost, err = models.RefillCost(fuel.Price, amount)
		if err != nil {
			return NewInvalidRequestError("refill cost is too large", err)
		}

		bank, err := tx.GetBank(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return NewLedgerUninitializedError()
			}
			return err
		}
		if bank.Total < cost {
			return NewInsufficientLedgerFundsError(bank.Total, cost)
		}

		tanks, err := tx.Tanks(ctx, fuelID)
		if err != nil {
			return err
		}
		plan, err := allocator.AllocateCapacity(tanks, amount)
		if err != nil {
			if errors.Is(err, allocator.ErrInsufficientSpace) {
				return NewInsufficientCapacityError(fuelID, amount)
			}
			return NewInvalidRequestError("invalid amount", err)
		}

		if err := tx.DebitBank(ctx, cost); err != nil {
			return fmt.Errorf("failed to debit bank: %w", err)
		}
		for _, step := range plan.Steps {
			if err := tx.UpdateTankStored(ctx, step.TankID, step.Before, step.After); err != nil {
				return fmt.Errorf("failed to fill %d into tank %d: %w", step.Amount, step.TankID, err)
			}
		}
		return nil
	})
	if err != nil {
		return asServiceError("refill failed", err)
	}

	s.metrics.refilled(ctx, cost, amount)
	slog.Info("Refill committed",
		"admin", admin.Login,
		"fuel_id", fuelID,
		"amount", amount,
		"cost", cost,
	)
	return nil
}

// SetPrice changes a fuel's unit price. It touches a single row, so it runs
// outside a transaction.
func (s *Service) SetPrice(ctx context.Context, fuelID, price int64, adminToken string) error {
	err := s.setPrice(ctx, fuelID, price, adminToken)
	s.metrics.operation(ctx, "set_price", err)
	return err
}

func (s *Service) setPrice(ctx context.Context, fuelID, price int64, adminToken string) error {
	admin, err := s.authorizeAdmin(ctx, adminToken)
	if err != nil {
		return err
	}
	if price < 0 {
		return NewInvalidRequestError("price cannot be negative", nil)
	}

	if err := s.storage.UpdateFuelPrice(ctx, fuelID, price); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewFuelNotFoundError(fuelID)
		}
		return NewStoreFailureError("failed to update price", err)
	}

	slog.Info("Fuel price updated",
		"admin", admin.Login,
		"fuel_id", fuelID,
		"price", models.FormatMoney(price),
	)
	return nil
}
