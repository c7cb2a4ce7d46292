/*
handlers.go - HTTP API handlers for the dairy ledger service

PURPOSE:
  Exposes the ledger core via REST. Handles HTTP request/response and
  JSON serialization, and delegates to the domain logic in ledger/ and
  delivery/.

ENDPOINTS:
  Ledger:
    POST   /api/ledger                     Record entry
    GET    /api/ledger                     List entries (filters)
    GET    /api/ledger/{id}                Fetch one entry
    PUT    /api/ledger/{id}                Clear one entry ({cleared: true})
    DELETE /api/ledger/{id}                Void entry (observable delete)
    POST   /api/ledger/bulk-clear          Atomic bulk clear
    POST   /api/ledger/{id}/refund         Bounded reversal entry
    GET    /api/ledger/reconciliation      Cash position report

  Users:
    GET    /api/users                      List users
    POST   /api/users                      Register user

  Deliveries:
    POST   /api/deliveries                 Register delivery stop
    GET    /api/deliveries                 List stops
    GET    /api/deliveries/{id}            Fetch stop
    POST   /api/deliveries/{id}/delivered  Mark delivered (produces entry)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Entry/delivery not found
  - 500: Internal errors

ACTOR IDENTITY:
  The acting admin is passed explicitly per request (X-Actor-Id header
  or created_by body field), never held in ambient global state.

SECURITY NOTE:
  No authentication middleware; session issuance is out of scope here
  and endpoints are expected to sit behind an authenticating proxy.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dairyops/ledger-engine/delivery"
	"github.com/dairyops/ledger-engine/ledger"
	"github.com/dairyops/ledger-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Writer     *ledger.Writer
	Clearing   *ledger.Clearing
	Refunds    *ledger.Refunds
	Reconciler *ledger.Reconciler
	Deliveries *delivery.Service
}

// NewHandler wires the domain services around the given store.
func NewHandler(store *sqlite.Store) *Handler {
	writer := ledger.NewWriter(store)
	return &Handler{
		Store:      store,
		Writer:     writer,
		Clearing:   ledger.NewClearing(store),
		Refunds:    ledger.NewRefunds(store),
		Reconciler: ledger.NewReconciler(store),
		Deliveries: delivery.NewService(store, writer),
	}
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// CreateEntry records a new ledger entry.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Writer.Record(r.Context(), ledger.NewEntry{
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Mode:           ledger.PaymentMode(req.Mode),
		Reference:      req.Reference,
		ReceiptURL:     req.ReceiptURL,
		Cleared:        req.Cleared,
		CreatedBy:      actorID(r, req.CreatedBy),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(w, "Failed to record entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// ListEntries returns entries matching the query filters.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	var f ledger.Filter

	q := r.URL.Query()
	if v := q.Get("from_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from_date (use YYYY-MM-DD)", err)
			return
		}
		f.From = &t
	}
	if v := q.Get("to_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to_date (use YYYY-MM-DD)", err)
			return
		}
		f.To = &t
	}
	if v := q.Get("mode"); v != "" {
		mode, ok := ledger.ParseMode(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown payment mode", nil)
			return
		}
		f.Mode = mode
	}
	if v := q.Get("cleared"); v != "" {
		cleared := v == "true" || v == "1"
		f.Cleared = &cleared
	}
	f.Search = q.Get("search")

	entries, err := h.Store.ListEntries(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetEntry returns a single entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.Store.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get entry", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// UpdateEntry handles the generic update contract. Cleared is the only
// mutable field, and only in the uncleared -> cleared direction; the
// flag never flips back through this path.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Cleared {
		writeError(w, http.StatusBadRequest, "Entries cannot be un-cleared", nil)
		return
	}

	entry, err := h.Clearing.ClearOne(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to clear entry", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// DeleteEntry voids an entry. Externally the entry disappears from
// listings and reports; internally the row stays as a tombstone.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := h.Store.VoidEntry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete entry", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// BulkClear clears a set of entries in one atomic statement.
func (h *Handler) BulkClear(w http.ResponseWriter, r *http.Request) {
	var req BulkClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	count, err := h.Clearing.ClearBulk(r.Context(), req.EntryIDs)
	if err != nil {
		writeDomainError(w, "Failed to bulk clear", err)
		return
	}

	writeJSON(w, http.StatusOK, BulkClearResponse{ClearedCount: count})
}

// RefundEntry creates a bounded reversal of an existing entry.
func (h *Handler) RefundEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reversal, err := h.Refunds.Refund(r.Context(), ledger.RefundInput{
		EntryID:        id,
		Amount:         req.Amount,
		ReceiptURL:     req.ReceiptURL,
		CreatedBy:      actorID(r, ""),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(w, "Failed to refund entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(reversal))
}

// Reconcile returns the cash position report for a date range.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := time.Parse("2006-01-02", q.Get("from_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing from_date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing to_date (use YYYY-MM-DD)", err)
		return
	}

	report, err := h.Reconciler.Reconcile(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, "Failed to build reconciliation report", err)
		return
	}

	writeJSON(w, http.StatusOK, toReconciliationDTO(report))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = UserDTO{ID: u.ID, Name: u.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers an admin user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if err := h.Store.SaveUser(r.Context(), sqlite.User{ID: req.ID, Name: req.Name}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, UserDTO{ID: req.ID, Name: req.Name})
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// CreateDelivery registers a pending delivery stop.
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, err := h.Deliveries.Create(r.Context(), req.ShopName, req.Address)
	if err != nil {
		writeDomainError(w, "Failed to create delivery", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeliveryDTO(d))
}

// ListDeliveries returns delivery stops, optionally filtered by status.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.Deliveries.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries", err)
		return
	}

	dtos := make([]DeliveryDTO, len(deliveries))
	for i, d := range deliveries {
		dtos[i] = toDeliveryDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDelivery returns a single delivery stop.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.Deliveries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(d))
}

// MarkDelivered records a delivery outcome. When a collected amount is
// present the stop produces a ledger entry through the Entry Writer.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MarkDeliveredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, entry, err := h.Deliveries.MarkDelivered(r.Context(), id,
		req.CollectedAmount, ledger.PaymentMode(req.Mode), actorID(r, ""))
	if err != nil {
		writeDomainError(w, "Failed to mark delivered", err)
		return
	}

	resp := MarkDeliveredResponse{Delivery: toDeliveryDTO(d)}
	if entry != nil {
		dto := toEntryDTO(*entry)
		resp.Entry = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data (dev/demo only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// actorID resolves the acting admin for a request: the X-Actor-Id
// header wins, then the body-supplied fallback. Empty means a
// system-generated entry.
func actorID(r *http.Request, fallback string) string {
	if v := r.Header.Get("X-Actor-Id"); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
