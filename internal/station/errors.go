package station

import (
	"errors"
	"fmt"
	"net/http"

	"fuelstation/internal/models"
)

// Kind classifies a station failure. Kinds share their string value with the
// API error codes.
type Kind string

const (
	KindUnauthorized            Kind = models.ErrorCodeUnauthorized
	KindNotFound                Kind = models.ErrorCodeNotFound
	KindInsufficientStock       Kind = models.ErrorCodeInsufficientStock
	KindInsufficientCapacity    Kind = models.ErrorCodeInsufficientCapacity
	KindInsufficientFunds       Kind = models.ErrorCodeInsufficientFunds
	KindInsufficientLedgerFunds Kind = models.ErrorCodeInsufficientLedgerFunds
	KindLedgerUninitialized     Kind = models.ErrorCodeLedgerUninitialized
	KindEmptyRequest            Kind = models.ErrorCodeEmptyRequest
	KindRateLimited             Kind = models.ErrorCodeRateLimited
	KindStoreFailure            Kind = models.ErrorCodeStoreFailure
	KindInvalidRequest          Kind = models.ErrorCodeInvalidRequest
	KindConflict                Kind = models.ErrorCodeConflict
)

// ServiceError represents errors from the station service with HTTP context
type ServiceError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first ServiceError in err's chain, or the
// empty kind if there is none.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Error constructors for common service errors

func NewUnauthorizedError() *ServiceError {
	return &ServiceError{
		Kind:       KindUnauthorized,
		Message:    "invalid or missing session token",
		StatusCode: http.StatusUnauthorized,
	}
}

// NewInvalidCredentialsError is returned by both logins for an unknown login
// and a wrong password alike.
func NewInvalidCredentialsError() *ServiceError {
	return &ServiceError{
		Kind:       KindUnauthorized,
		Message:    "invalid login or password",
		StatusCode: http.StatusUnauthorized,
	}
}

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Kind:       KindNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewCustomerNotFoundError(id int64) *ServiceError {
	return NewNotFoundError(fmt.Sprintf("customer %d not found", id))
}

func NewFuelNotFoundError(id int64) *ServiceError {
	return NewNotFoundError(fmt.Sprintf("fuel %d not found", id))
}

func NewInsufficientStockError(fuelID, quantity int64) *ServiceError {
	return &ServiceError{
		Kind:       KindInsufficientStock,
		Message:    fmt.Sprintf("fuel %d cannot supply %d units", fuelID, quantity),
		StatusCode: http.StatusConflict,
	}
}

func NewInsufficientCapacityError(fuelID, amount int64) *ServiceError {
	return &ServiceError{
		Kind:       KindInsufficientCapacity,
		Message:    fmt.Sprintf("tanks of fuel %d cannot hold %d more units", fuelID, amount),
		StatusCode: http.StatusConflict,
	}
}

func NewInsufficientFundsError(balance, cost int64) *ServiceError {
	return &ServiceError{
		Kind:       KindInsufficientFunds,
		Message:    fmt.Sprintf("balance %s does not cover cost %s", models.FormatMoney(balance), models.FormatMoney(cost)),
		StatusCode: http.StatusPaymentRequired,
	}
}

func NewInsufficientLedgerFundsError(total, cost int64) *ServiceError {
	return &ServiceError{
		Kind:       KindInsufficientLedgerFunds,
		Message:    fmt.Sprintf("bank total %s does not cover refill cost %s", models.FormatMoney(total), models.FormatMoney(cost)),
		StatusCode: http.StatusConflict,
	}
}

func NewLedgerUninitializedError() *ServiceError {
	return &ServiceError{
		Kind:       KindLedgerUninitialized,
		Message:    "bank has not been initialized by a sale",
		StatusCode: http.StatusConflict,
	}
}

func NewEmptyRequestError() *ServiceError {
	return &ServiceError{
		Kind:       KindEmptyRequest,
		Message:    "purchase contains no items",
		StatusCode: http.StatusBadRequest,
	}
}

func NewRateLimitedError(key string) *ServiceError {
	return &ServiceError{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("too many attempts for %s, try again later", key),
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewStoreFailureError(message string, err error) *ServiceError {
	return &ServiceError{
		Kind:       KindStoreFailure,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Kind:       KindInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewConflictError(message string) *ServiceError {
	return &ServiceError{
		Kind:       KindConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// asServiceError passes ServiceErrors through and reports anything else as a
// store failure.
func asServiceError(message string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return NewStoreFailureError(message, err)
}
