// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Money is reported both as integer minor units and as a display string
// - Optional fields use omitempty to reduce response size
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// CustomerResponse is returned by registration and customer login. The
// token is only set by login.
type CustomerResponse struct {
	ID             int64  `json:"id"`
	Login          string `json:"login"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	Token          string `json:"token,omitempty"`
}

func (r *CustomerResponse) FromCustomer(c *Customer) {
	r.ID = c.ID
	r.Login = c.Login
	r.Balance = c.Balance
	r.BalanceDisplay = FormatMoney(c.Balance)
	r.Token = c.SessionToken
}

type AdminLoginResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Token string `json:"token"`
}

// PurchaseResponse reports the customer's balance after the committed purchase.
type PurchaseResponse struct {
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

func NewPurchaseResponse(balance int64) *PurchaseResponse {
	return &PurchaseResponse{
		Balance:        balance,
		BalanceDisplay: FormatMoney(balance),
	}
}

type FuelInfo struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Price        int64    `json:"price"`
	PriceDisplay string   `json:"price_display"`
	Category     Category `json:"category"`
	Stored       int64    `json:"stored"`
	Capacity     int64    `json:"capacity"`
	FillPercent  float64  `json:"fill_percent"`
}

func (fi *FuelInfo) FromStock(s *FuelStock) {
	fi.ID = s.ID
	fi.Name = s.Name
	fi.Price = s.Price
	fi.PriceDisplay = FormatMoney(s.Price)
	fi.Category = s.Category
	fi.Stored = s.Stored
	fi.Capacity = s.Capacity
	fi.FillPercent = s.FillPercent
}

type ListFuelsResponse struct {
	Fuels      []FuelInfo `json:"fuels"`
	TotalCount int        `json:"total_count"`
}

func NewListFuelsResponse(stock []*FuelStock) *ListFuelsResponse {
	resp := &ListFuelsResponse{
		Fuels:      make([]FuelInfo, 0, len(stock)),
		TotalCount: len(stock),
	}
	for _, s := range stock {
		var fi FuelInfo
		fi.FromStock(s)
		resp.Fuels = append(resp.Fuels, fi)
	}
	return resp
}

type BankResponse struct {
	ID           int64  `json:"id"`
	Total        int64  `json:"total"`
	TotalDisplay string `json:"total_display"`
}

func NewBankResponse(b *Bank) *BankResponse {
	return &BankResponse{
		ID:           b.ID,
		Total:        b.Total,
		TotalDisplay: FormatMoney(b.Total),
	}
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse provides structured error information.
//
// Error Handling Design:
// - Consistent error structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Human-readable messages for user interfaces
// - Details map for field-specific validation errors
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Station failure kinds share their code with the engine's error kinds
const (
	ErrorCodeNotFound                = "NOT_FOUND"                 // 404: Resource doesn't exist
	ErrorCodeBadRequest              = "BAD_REQUEST"               // 400: Invalid request format
	ErrorCodeInvalidRequest          = "INVALID_REQUEST"           // 400: Invalid request data
	ErrorCodeEmptyRequest            = "EMPTY_REQUEST"             // 400: Batch without lines
	ErrorCodeInternalError           = "INTERNAL_ERROR"            // 500: Server-side error
	ErrorCodeStoreFailure            = "STORE_FAILURE"             // 500: Ledger store failed
	ErrorCodeUnauthorized            = "UNAUTHORIZED"              // 401: Authentication required
	ErrorCodeInsufficientFunds       = "INSUFFICIENT_FUNDS"        // 402: Balance below cost
	ErrorCodeConflict                = "CONFLICT"                  // 409: Resource conflict
	ErrorCodeInsufficientStock       = "INSUFFICIENT_STOCK"        // 409: Tanks cannot cover the quantity
	ErrorCodeInsufficientCapacity    = "INSUFFICIENT_CAPACITY"     // 409: Tanks cannot hold the refill
	ErrorCodeInsufficientLedgerFunds = "INSUFFICIENT_LEDGER_FUNDS" // 409: Bank below refill cost
	ErrorCodeLedgerUninitialized     = "LEDGER_UNINITIALIZED"      // 409: No bank record yet
	ErrorCodeRateLimited             = "RATE_LIMITED"              // 429: Too many attempts
	ErrorCodeServiceUnavailable      = "SERVICE_UNAVAILABLE"       // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
