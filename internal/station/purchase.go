package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"fuelstation/internal/allocator"
	"fuelstation/internal/models"
	"fuelstation/internal/storage"
)

// fuelState is a fuel and its tanks as read inside a purchase transaction.
// A nil fuel means the ID does not exist.
type fuelState struct {
	fuel  *models.Fuel
	tanks []models.Tank
}

// Purchase buys quantity units of one fuel for the customer and returns the
// balance left after the sale.
func (s *Service) Purchase(ctx context.Context, customerID, fuelID, quantity int64, token string) (int64, error) {
	item := models.LineItem{FuelID: fuelID, Quantity: quantity}
	balance, err := s.sell(ctx, customerID, []models.LineItem{item}, token, false)
	s.metrics.operation(ctx, "purchase", err)
	return balance, err
}

// PurchaseBatch buys every line in one transaction. Either all lines are
// sold or none is. A fuel may appear at most once per batch.
func (s *Service) PurchaseBatch(ctx context.Context, customerID int64, items []models.LineItem, token string) (int64, error) {
	balance, err := s.sell(ctx, customerID, items, token, true)
	s.metrics.operation(ctx, "purchase_batch", err)
	return balance, err
}

// validateLines checks the request shape. sell calls it only after the
// session check has passed.
func validateLines(items []models.LineItem, batch bool) error {
	if len(items) == 0 {
		return NewEmptyRequestError()
	}

	seen := make(map[int64]struct{}, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			if !batch {
				return NewInvalidRequestError("quantity must be positive", nil)
			}
			return NewInvalidRequestError(fmt.Sprintf("items[%d]: quantity must be positive", i), nil)
		}
		if _, dup := seen[item.FuelID]; dup {
			return NewInvalidRequestError(fmt.Sprintf("fuel %d appears more than once", item.FuelID), nil)
		}
		seen[item.FuelID] = struct{}{}
	}
	return nil
}

// sell runs the purchase protocol for one or more distinct fuels: session
// check, line validation, per-line stock and cost checks in request order,
// funds check, then the tank draws, one balance debit and one bank credit.
func (s *Service) sell(ctx context.Context, customerID int64, items []models.LineItem, token string, batch bool) (int64, error) {
	var (
		newBalance int64
		total      int64
		units      int64
	)

	err := s.storage.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		total, units = 0, 0

		customer, err := authorizeCustomer(ctx, tx, customerID, token)
		if err != nil {
			return err
		}
		if err := validateLines(items, batch); err != nil {
			return err
		}

		states, err := readFuels(ctx, tx, items)
		if err != nil {
			return err
		}

		plans := make([]*allocator.Plan, 0, len(items))
		for _, item := range items {
			plan, cost, err := planLine(states[item.FuelID], item)
			if err != nil {
				return err
			}
			if total > math.MaxInt64-cost {
				return NewInvalidRequestError("purchase total is too large", models.ErrCostOverflow)
			}
			total += cost
			plans = append(plans, plan)
			if !plan.Binary {
				units += plan.Total
			}
		}

		if !customer.CanAfford(total) {
			return NewInsufficientFundsError(customer.Balance, total)
		}

		for _, plan := range plans {
			for _, step := range plan.Steps {
				if err := tx.UpdateTankStored(ctx, step.TankID, step.Before, step.After); err != nil {
					return fmt.Errorf("failed to draw %d from tank %d: %w", step.Amount, step.TankID, err)
				}
			}
		}

		newBalance = customer.Balance - total
		if err := tx.UpdateCustomerBalance(ctx, customer.ID, customer.Balance, newBalance); err != nil {
			return fmt.Errorf("failed to debit customer %d: %w", customer.ID, err)
		}
		if err := tx.CreditBank(ctx, total); err != nil {
			if errors.Is(err, models.ErrCostOverflow) {
				return NewInvalidRequestError("bank total would overflow", err)
			}
			return fmt.Errorf("failed to credit bank: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, asServiceError("purchase failed", err)
	}

	s.metrics.sold(ctx, total, units)
	slog.Debug("Purchase committed",
		"customer_id", customerID,
		"lines", len(items),
		"cost", total,
		"balance", newBalance,
	)
	return newBalance, nil
}

// readFuels loads every requested fuel with its tanks. Fuels are read in
// ascending ID order so that concurrent batches lock rows in the same order.
func readFuels(ctx context.Context, tx storage.Tx, items []models.LineItem) (map[int64]fuelState, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.FuelID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	states := make(map[int64]fuelState, len(ids))
	for _, id := range ids {
		fuel, err := tx.GetFuel(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				states[id] = fuelState{}
				continue
			}
			return nil, err
		}
		tanks, err := tx.Tanks(ctx, id)
		if err != nil {
			return nil, err
		}
		states[id] = fuelState{fuel: fuel, tanks: tanks}
	}
	return states, nil
}

// planLine checks one line against the fuel state and prices it.
func planLine(state fuelState, item models.LineItem) (*allocator.Plan, int64, error) {
	if state.fuel == nil {
		return nil, 0, NewFuelNotFoundError(item.FuelID)
	}

	plan, err := allocator.Allocate(state.tanks, item.Quantity, state.fuel.Category.IsBinary())
	if err != nil {
		if errors.Is(err, allocator.ErrInsufficientStock) {
			return nil, 0, NewInsufficientStockError(item.FuelID, item.Quantity)
		}
		return nil, 0, NewInvalidRequestError("invalid quantity", err)
	}

	cost, err := models.PurchaseCost(state.fuel.Price, item.Quantity)
	if err != nil {
		return nil, 0, NewInvalidRequestError(fmt.Sprintf("cost of fuel %d is too large", item.FuelID), err)
	}
	return plan, cost, nil
}
