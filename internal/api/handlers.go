package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"fuelstation/internal/models"
	"fuelstation/internal/ratelimit"
	"fuelstation/internal/station"
	"fuelstation/internal/storage"
	"fuelstation/internal/version"
)

// maxBodyBytes caps request bodies; the largest legitimate body is a batch
// purchase with a handful of lines.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP handlers for the station API
type Handlers struct {
	service station.ServiceInterface
	storage storage.Storage
	version version.Info

	specOnce sync.Once
	spec     openAPIDocument
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithStorage lets the health check ping the ledger store.
func WithStorage(s storage.Storage) HandlerOption {
	return func(h *Handlers) { h.storage = s }
}

// WithVersion sets the build information reported by the health check.
func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance
func NewHandlers(service station.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register handles customer registration
// POST /api/v1/customers
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	customer, err := h.service.Register(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}

	var resp models.CustomerResponse
	resp.FromCustomer(customer)
	resp.Token = ""
	h.writeJSONResponse(w, http.StatusCreated, resp)
}

// CustomerLogin handles customer login
// POST /api/v1/customers/login
func (h *Handlers) CustomerLogin(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()

	customer, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		slog.Warn("Customer login failed",
			"event", "security_audit",
			"login", req.Login,
			"client_ip", ratelimit.ClientIP(r),
			"error", err.Error())
		h.writeServiceErrorResponse(w, err)
		return
	}

	var resp models.CustomerResponse
	resp.FromCustomer(customer)
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// AdminLogin handles admin login
// POST /api/v1/admin/login
func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()

	admin, err := h.service.AdminLogin(r.Context(), req.Login, req.Password)
	if err != nil {
		slog.Warn("Admin login failed",
			"event", "security_audit",
			"login", req.Login,
			"client_ip", ratelimit.ClientIP(r),
			"error", err.Error())
		h.writeServiceErrorResponse(w, err)
		return
	}

	slog.Info("Admin logged in",
		"event", "security_audit",
		"admin_id", admin.ID,
		"client_ip", ratelimit.ClientIP(r))

	h.writeJSONResponse(w, http.StatusOK, models.AdminLoginResponse{
		ID:    admin.ID,
		Login: admin.Login,
		Token: admin.SessionToken,
	})
}

// ListFuels handles catalog requests
// GET /api/v1/fuels
func (h *Handlers) ListFuels(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.Fuels(r.Context())
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewListFuelsResponse(stock))
}

// AdminListFuels handles stock listing for operators
// GET /api/v1/admin/fuels
func (h *Handlers) AdminListFuels(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.AdminFuels(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewListFuelsResponse(stock))
}

// Purchase handles single-fuel purchases
// POST /api/v1/customers/{id}/purchases
func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req models.PurchaseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	balance, err := h.service.Purchase(r.Context(), customerID, req.FuelID, req.Quantity, tokenFromContext(r.Context()))
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewPurchaseResponse(balance))
}

// PurchaseBatch handles multi-fuel purchases
// POST /api/v1/customers/{id}/purchases/batch
func (h *Handlers) PurchaseBatch(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req models.BatchPurchaseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	balance, err := h.service.PurchaseBatch(r.Context(), customerID, req.Items, tokenFromContext(r.Context()))
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewPurchaseResponse(balance))
}

// SetPrice handles price changes
// PUT /api/v1/admin/fuels/{id}/price
func (h *Handlers) SetPrice(w http.ResponseWriter, r *http.Request) {
	fuelID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req models.SetPriceRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	if err := h.service.SetPrice(r.Context(), fuelID, req.Price, tokenFromContext(r.Context())); err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Price updated"})
}

// Refill handles tank replenishment
// POST /api/v1/admin/fuels/{id}/refill
func (h *Handlers) Refill(w http.ResponseWriter, r *http.Request) {
	fuelID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req models.RefillRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	if err := h.service.Refill(r.Context(), fuelID, req.Amount, tokenFromContext(r.Context())); err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Refill completed"})
}

// BankInfo reports the ledger total
// GET /api/v1/admin/bank
func (h *Handlers) BankInfo(w http.ResponseWriter, r *http.Request) {
	bank, err := h.service.BankInfo(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewBankResponse(bank))
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version

	statusCode := http.StatusOK
	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			slog.Error("Storage health check failed", "error", err)
			response.Status = models.StatusUnhealthy
			response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
			statusCode = http.StatusServiceUnavailable
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, statusCode, response)
}

// decodeJSON decodes the request body into dst, writing a 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		h.writeErrorResponse(w, http.StatusUnsupportedMediaType, models.ErrorCodeBadRequest, "Content-Type must be application/json")
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return false
	}
	return true
}

// pathID parses the {id} route variable, writing a 400 when it is not a
// positive integer.
func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}

// writeServiceErrorResponse maps a station error onto its HTTP status and
// code. Anything else is reported as an internal error without detail.
func (h *Handlers) writeServiceErrorResponse(w http.ResponseWriter, err error) {
	var se *station.ServiceError
	if errors.As(err, &se) {
		if se.StatusCode >= http.StatusInternalServerError {
			slog.Error("Station operation failed", "kind", se.Kind, "error", err)
		}
		h.writeErrorResponse(w, se.StatusCode, string(se.Kind), se.Message)
		return
	}

	slog.Error("Unexpected handler error", "error", err)
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing left to report to the client
		slog.Error("Error encoding JSON response", "error", err)
	}
}
