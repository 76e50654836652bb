// Package models - Product, inventory and ledger entities.
// This file defines the persisted shapes the transaction engine mutates.
//
// Monetary Model:
// - All money is int64 minor currency units (cents); no floating point in the
//   authoritative path
// - All stock quantities are int64 whole product units
// - Floating point appears only in display helpers (fill percentage)
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Category selects the inventory semantics of a fuel.
type Category string

// Fuel categories. Electricity is unmetered-binary: availability is a gate,
// not a depleting pool. Every other category is metered.
const (
	CategoryPetrol      Category = "petrol"
	CategoryDiesel      Category = "diesel"
	CategoryGas         Category = "gas"
	CategoryElectricity Category = "electricity"
)

// ErrCostOverflow is returned when price * quantity does not fit in int64.
var ErrCostOverflow = errors.New("cost overflows int64")

// ParseCategory maps a stored category string to a Category. An empty value
// reads as petrol, which is what rows created before categories existed hold.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case "", CategoryPetrol:
		return CategoryPetrol, nil
	case CategoryDiesel:
		return CategoryDiesel, nil
	case CategoryGas:
		return CategoryGas, nil
	case CategoryElectricity:
		return CategoryElectricity, nil
	default:
		return "", fmt.Errorf("unknown fuel category: %q", s)
	}
}

// IsBinary reports whether the category is unmetered-binary.
func (c Category) IsBinary() bool {
	return c == CategoryElectricity
}

// Fuel is a product sold by the station.
type Fuel struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Category Category `json:"category"`
}

// Tank is a physical storage unit backing exactly one fuel.
//
// Invariant: 0 <= Stored <= Capacity after every mutation.
type Tank struct {
	ID       int64 `json:"id"`
	FuelID   int64 `json:"fuel_id"`
	Stored   int64 `json:"stored"`
	Capacity int64 `json:"capacity"`
}

// Bank is the singleton ledger of revenue collected from sales.
type Bank struct {
	ID    int64 `json:"id"`
	Total int64 `json:"total"`
}

// FuelStock is the catalog read model: a fuel with stock summed across its tanks.
type FuelStock struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Price       int64    `json:"price"`
	Category    Category `json:"category"`
	Stored      int64    `json:"stored"`
	Capacity    int64    `json:"capacity"`
	FillPercent float64  `json:"fill_percent"`
}

// NewFuel creates a fuel with the given price and category.
func NewFuel(name string, price int64, category Category) *Fuel {
	return &Fuel{
		Name:     strings.TrimSpace(name),
		Price:    price,
		Category: category,
	}
}

// Validate checks the fuel's fields.
func (f *Fuel) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("fuel name is required")
	}
	if f.Price < 0 {
		return errors.New("fuel price cannot be negative")
	}
	if _, err := ParseCategory(string(f.Category)); err != nil {
		return err
	}
	return nil
}

// NewTank creates a tank for the given fuel.
func NewTank(fuelID, stored, capacity int64) *Tank {
	return &Tank{
		FuelID:   fuelID,
		Stored:   stored,
		Capacity: capacity,
	}
}

// Validate checks the stored/capacity invariant.
func (t *Tank) Validate() error {
	if t.Capacity < 0 {
		return errors.New("tank capacity cannot be negative")
	}
	if t.Stored < 0 {
		return errors.New("tank stored quantity cannot be negative")
	}
	if t.Stored > t.Capacity {
		return fmt.Errorf("tank stored quantity %d exceeds capacity %d", t.Stored, t.Capacity)
	}
	return nil
}

// FreeSpace returns how much more the tank can hold.
func (t *Tank) FreeSpace() int64 {
	return t.Capacity - t.Stored
}

// FillPercent returns the stored share of capacity in percent.
func FillPercent(stored, capacity int64) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(stored) / float64(capacity) * 100
}

// PurchaseCost returns price * quantity.
func PurchaseCost(price, quantity int64) (int64, error) {
	return mulCost(price, quantity)
}

// RefillCost returns the wholesale cost of replenishing amount units: half the
// unit price (truncated) per unit.
func RefillCost(price, amount int64) (int64, error) {
	return mulCost(price/2, amount)
}

func mulCost(unit, quantity int64) (int64, error) {
	if unit == 0 || quantity == 0 {
		return 0, nil
	}
	if unit < 0 || quantity < 0 {
		return 0, fmt.Errorf("negative cost operand: %d * %d", unit, quantity)
	}
	if unit > math.MaxInt64/quantity {
		return 0, ErrCostOverflow
	}
	return unit * quantity, nil
}

// FormatMoney renders minor units as a fixed two-decimal amount, e.g. 5550 -> "55.50".
func FormatMoney(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
