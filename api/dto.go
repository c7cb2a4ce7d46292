/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the JSON boundary as decimal.Decimal (serialized as a
  quoted decimal string), never float64, so stored values round-trip
  exactly.

VALIDATION:
  Validation happens in the domain layer (ledger package), not in DTOs.
  DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dairyops/ledger-engine/ledger"
	"github.com/dairyops/ledger-engine/store/sqlite"
)

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          string          `json:"id"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Mode        string          `json:"mode"`
	Reference   string          `json:"reference,omitempty"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
	Cleared     bool            `json:"cleared"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// CreateEntryRequest is the request to record a ledger entry.
type CreateEntryRequest struct {
	FromAccount    string          `json:"from_account"`
	ToAccount      string          `json:"to_account"`
	Amount         decimal.Decimal `json:"amount"`
	Mode           string          `json:"mode"`
	Reference      string          `json:"reference,omitempty"`
	ReceiptURL     string          `json:"receipt_url,omitempty"`
	Cleared        bool            `json:"cleared,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// UpdateEntryRequest carries the only mutable field of an entry.
type UpdateEntryRequest struct {
	Cleared bool `json:"cleared"`
}

// BulkClearRequest is the request to clear a set of entries atomically.
type BulkClearRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

// BulkClearResponse reports how many rows actually changed.
type BulkClearResponse struct {
	ClearedCount int64 `json:"cleared_count"`
}

// RefundRequest is the request to issue a bounded reversal.
type RefundRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ReceiptURL     string          `json:"receipt_url,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconciliationDTO is the period-scoped cash position report.
type ReconciliationDTO struct {
	Period           PeriodDTO      `json:"period"`
	Summary          SummaryDTO     `json:"summary"`
	ByMode           []ModeGroupDTO `json:"by_mode"`
	Transactions     []EntryDTO     `json:"transactions"`
	TransactionCount int            `json:"transaction_count"`
}

// PeriodDTO is the reported date range.
type PeriodDTO struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// SummaryDTO carries the report-level totals.
type SummaryDTO struct {
	TotalCashInflow  decimal.Decimal `json:"total_cash_inflow"`
	TotalCashOutflow decimal.Decimal `json:"total_cash_outflow"`
	NetCashPosition  decimal.Decimal `json:"net_cash_position"`
	ClearedNetCash   decimal.Decimal `json:"cleared_net_cash"`
	UnclearedNetCash decimal.Decimal `json:"uncleared_net_cash"`
}

// ModeGroupDTO is the aggregate for one (mode, cleared) bucket.
type ModeGroupDTO struct {
	Mode        string          `json:"mode"`
	Cleared     bool            `json:"cleared"`
	Count       int             `json:"count"`
	CashInflow  decimal.Decimal `json:"cash_inflow"`
	CashOutflow decimal.Decimal `json:"cash_outflow"`
	Net         decimal.Decimal `json:"net"`
}

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents an admin user in API responses.
type UserDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateUserRequest is the request to register a user.
type CreateUserRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// =============================================================================
// DELIVERIES
// =============================================================================

// DeliveryDTO represents a delivery stop.
type DeliveryDTO struct {
	ID              string           `json:"id"`
	ShopName        string           `json:"shop_name"`
	Address         string           `json:"address,omitempty"`
	Status          string           `json:"status"`
	CollectedAmount *decimal.Decimal `json:"collected_amount,omitempty"`
	Mode            string           `json:"mode,omitempty"`
	DeliveredAt     string           `json:"delivered_at,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

// CreateDeliveryRequest is the request to register a delivery stop.
type CreateDeliveryRequest struct {
	ShopName string `json:"shop_name"`
	Address  string `json:"address,omitempty"`
}

// MarkDeliveredRequest records the outcome of a delivery stop.
// A nil collected amount means nothing was collected at the door and
// no ledger entry is produced.
type MarkDeliveredRequest struct {
	CollectedAmount *decimal.Decimal `json:"collected_amount,omitempty"`
	Mode            string           `json:"mode,omitempty"`
}

// MarkDeliveredResponse returns the updated stop and, when payment was
// collected, the ledger entry it produced.
type MarkDeliveredResponse struct {
	Delivery DeliveryDTO `json:"delivery"`
	Entry    *EntryDTO   `json:"entry,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		FromAccount: e.FromAccount,
		ToAccount:   e.ToAccount,
		Amount:      e.Amount,
		Mode:        string(e.Mode),
		Reference:   e.Reference,
		ReceiptURL:  e.ReceiptURL,
		Cleared:     e.Cleared,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toDeliveryDTO(d sqlite.DeliveryRecord) DeliveryDTO {
	dto := DeliveryDTO{
		ID:              d.ID,
		ShopName:        d.ShopName,
		Address:         d.Address,
		Status:          d.Status,
		CollectedAmount: d.CollectedAmount,
		Mode:            d.Mode,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
	if d.DeliveredAt != nil {
		dto.DeliveredAt = d.DeliveredAt.Format(time.RFC3339)
	}
	return dto
}

func toReconciliationDTO(r ledger.Report) ReconciliationDTO {
	byMode := make([]ModeGroupDTO, len(r.Groups))
	for i, g := range r.Groups {
		byMode[i] = ModeGroupDTO{
			Mode:        string(g.Mode),
			Cleared:     g.Cleared,
			Count:       g.Count,
			CashInflow:  g.Inflow,
			CashOutflow: g.Outflow,
			Net:         g.Net,
		}
	}

	return ReconciliationDTO{
		Period: PeriodDTO{
			FromDate: r.From.Format("2006-01-02"),
			ToDate:   r.To.Format("2006-01-02"),
		},
		Summary: SummaryDTO{
			TotalCashInflow:  r.TotalInflow,
			TotalCashOutflow: r.TotalOutflow,
			NetCashPosition:  r.NetPosition,
			ClearedNetCash:   r.ClearedNet,
			UnclearedNetCash: r.UnclearedNet,
		},
		ByMode:           byMode,
		Transactions:     toEntryDTOs(r.CashEntries),
		TransactionCount: r.EntryCount,
	}
}
