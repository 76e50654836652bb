// Package models - Account entities for customers and station administrators.
// This file defines the two authenticated principals of the station.
//
// Session Model:
// - A principal holds at most one live session token
// - A successful login overwrites the previous token, invalidating it
// - An empty token means "no session"; it never authenticates anything
// - Password hashes are never serialized into API responses
package models

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// Customer is a buyer with a prepaid balance kept in minor currency units.
//
// Invariants:
// - Balance is never negative; only the purchase engine debits it
// - Login is unique across customers
type Customer struct {
	ID           int64  `json:"id"`
	Login        string `json:"login"`
	PasswordHash string `json:"-"`
	Balance      int64  `json:"balance"`
	SessionToken string `json:"session_token,omitempty"`
}

// Admin governs price changes and refills. It has the same authentication
// shape as Customer but no balance.
type Admin struct {
	ID           int64  `json:"id"`
	Login        string `json:"login"`
	PasswordHash string `json:"-"`
	SessionToken string `json:"session_token,omitempty"`
}

// NewCustomer creates a customer with the given starting balance and no session.
func NewCustomer(login, passwordHash string, balance int64) *Customer {
	return &Customer{
		Login:        strings.TrimSpace(login),
		PasswordHash: passwordHash,
		Balance:      balance,
	}
}

// NewAdmin creates an admin with no session.
func NewAdmin(login, passwordHash string) *Admin {
	return &Admin{
		Login:        strings.TrimSpace(login),
		PasswordHash: passwordHash,
	}
}

// HasSession reports whether token matches the customer's live session.
func (c *Customer) HasSession(token string) bool {
	return tokensMatch(c.SessionToken, token)
}

// HasSession reports whether token matches the admin's live session.
func (a *Admin) HasSession(token string) bool {
	return tokensMatch(a.SessionToken, token)
}

// CanAfford reports whether the balance covers cost.
func (c *Customer) CanAfford(cost int64) bool {
	return c.Balance >= cost
}

func tokensMatch(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// ValidateCredentials checks the shape of a login/password pair before any
// hashing work is spent on it.
func ValidateCredentials(login, password string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return errors.New("login is required")
	}
	if len(login) > 64 {
		return errors.New("login must be at most 64 characters")
	}
	if password == "" {
		return errors.New("password is required")
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}
