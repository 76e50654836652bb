// Package allocator plans how a requested quantity is drawn from, or filled
// into, the tanks backing one fuel.
//
// Planning is pure: it never touches storage. Tanks are visited in ascending
// ID order so the same input always yields the same plan, and every step
// records the tank level it was computed against so the caller can apply it
// as a conditional write.
package allocator

import (
	"errors"
	"sort"

	"fuelstation/internal/models"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientSpace = errors.New("insufficient tank space")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Step is one tank's share of a plan.
type Step struct {
	TankID int64
	Before int64
	After  int64
	Amount int64
}

// Plan is the ordered per-tank breakdown of a draw or a fill. A binary plan
// carries no steps.
type Plan struct {
	Steps  []Step
	Total  int64
	Binary bool
}

// Allocate plans a draw of quantity units.
//
// Binary (unmetered) fuels are feasible when any tank holds stock and the
// returned plan does not touch tank levels. Metered fuels are feasible when
// the summed stock covers quantity; tanks are drained greedily in ID order,
// skipping empty ones.
func Allocate(tanks []models.Tank, quantity int64, binary bool) (*Plan, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	ordered := sortedByID(tanks)

	if binary {
		for _, t := range ordered {
			if t.Stored > 0 {
				return &Plan{Binary: true}, nil
			}
		}
		return nil, ErrInsufficientStock
	}

	var available int64
	for _, t := range ordered {
		if t.Stored > 0 {
			available += t.Stored
		}
	}
	if available < quantity {
		return nil, ErrInsufficientStock
	}

	plan := &Plan{Total: quantity}
	remaining := quantity
	for _, t := range ordered {
		if remaining == 0 {
			break
		}
		if t.Stored <= 0 {
			continue
		}
		take := min(remaining, t.Stored)
		plan.Steps = append(plan.Steps, Step{
			TankID: t.ID,
			Before: t.Stored,
			After:  t.Stored - take,
			Amount: take,
		})
		remaining -= take
	}

	return plan, nil
}

// AllocateCapacity plans a fill of amount units, topping tanks up in ID order
// until the amount is placed.
func AllocateCapacity(tanks []models.Tank, amount int64) (*Plan, error) {
	if amount <= 0 {
		return nil, ErrInvalidQuantity
	}

	ordered := sortedByID(tanks)

	var free int64
	for _, t := range ordered {
		if space := t.FreeSpace(); space > 0 {
			free += space
		}
	}
	if free < amount {
		return nil, ErrInsufficientSpace
	}

	plan := &Plan{Total: amount}
	remaining := amount
	for _, t := range ordered {
		if remaining == 0 {
			break
		}
		space := t.FreeSpace()
		if space <= 0 {
			continue
		}
		put := min(remaining, space)
		plan.Steps = append(plan.Steps, Step{
			TankID: t.ID,
			Before: t.Stored,
			After:  t.Stored + put,
			Amount: put,
		})
		remaining -= put
	}

	return plan, nil
}

func sortedByID(tanks []models.Tank) []models.Tank {
	ordered := make([]models.Tank, len(tanks))
	copy(ordered, tanks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}
