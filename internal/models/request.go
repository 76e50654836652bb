// Package models - API request types and input validation.
// This file defines all incoming API request structures.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input data for consistent processing (trimmed logins)
// - Shape checks only; stock, balance and ledger rules belong to the engine
package models

import (
	"errors"
	"fmt"
	"strings"
)

// CredentialsRequest is the body of registration and both login endpoints.
type CredentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (r *CredentialsRequest) Validate() error {
	return ValidateCredentials(r.Login, r.Password)
}

func (r *CredentialsRequest) Normalize() {
	r.Login = strings.TrimSpace(r.Login)
}

// PurchaseRequest buys quantity units of one fuel.
//
// Electricity quantities are billed but never drawn from the tanks; any tank
// with stock makes the charger available.
type PurchaseRequest struct {
	FuelID   int64 `json:"fuel_id"`
	Quantity int64 `json:"quantity"`
}

func (r *PurchaseRequest) Validate() error {
	if r.FuelID <= 0 {
		return errors.New("fuel_id must be positive")
	}
	if r.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

// LineItem is one fuel/quantity pair of a batch purchase.
type LineItem struct {
	FuelID   int64 `json:"fuel_id"`
	Quantity int64 `json:"quantity"`
}

// BatchPurchaseRequest buys several fuels in one all-or-nothing transaction.
type BatchPurchaseRequest struct {
	Items []LineItem `json:"items"`
}

// Validate checks each line. An empty list is left for the engine, which
// reports it as its own error kind.
func (r *BatchPurchaseRequest) Validate() error {
	for i, item := range r.Items {
		if item.FuelID <= 0 {
			return fmt.Errorf("items[%d]: fuel_id must be positive", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive", i)
		}
	}
	return nil
}

type SetPriceRequest struct {
	Price int64 `json:"price"`
}

func (r *SetPriceRequest) Validate() error {
	if r.Price < 0 {
		return errors.New("price cannot be negative")
	}
	return nil
}

type RefillRequest struct {
	Amount int64 `json:"amount"`
}

func (r *RefillRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}
