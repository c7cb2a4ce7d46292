/*
Package delivery owns the delivery-stop workflow on the producer side of
the ledger: when a stop is marked delivered with a collected amount, the
service synchronously records a ledger entry through the Entry Writer.
The ledger core never polls or subscribes for delivery events; this
package is responsible for the call.
*/
package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dairyops/ledger-engine/ledger"
	"github.com/dairyops/ledger-engine/store/sqlite"
)

const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// CollectionAccount returns the company-side account label credited
// when payment is collected at the door. Cash goes to the cash box,
// everything else lands in the bank.
func CollectionAccount(mode ledger.PaymentMode) string {
	if mode == ledger.ModeCash {
		return "Company Cash"
	}
	return "Company Bank"
}

// Service manages delivery stops and produces delivery-triggered
// ledger entries.
type Service struct {
	store  *sqlite.Store
	writer *ledger.Writer
}

// NewService creates a delivery service.
func NewService(store *sqlite.Store, writer *ledger.Writer) *Service {
	return &Service{store: store, writer: writer}
}

// Create registers a new pending delivery stop.
func (s *Service) Create(ctx context.Context, shopName, address string) (sqlite.DeliveryRecord, error) {
	if strings.TrimSpace(shopName) == "" {
		return sqlite.DeliveryRecord{}, fmt.Errorf("shop name must not be empty: %w", ledger.ErrValidation)
	}

	d := sqlite.DeliveryRecord{
		ID:        uuid.NewString(),
		ShopName:  strings.TrimSpace(shopName),
		Address:   address,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveDelivery(ctx, d); err != nil {
		return sqlite.DeliveryRecord{}, fmt.Errorf("save delivery: %w", err)
	}
	return d, nil
}

// MarkDelivered transitions a stop to delivered. When collected is
// non-nil, the payment captured at the door is recorded as a ledger
// entry: shop on one side, the company cash/bank account on the other.
// Returns the updated stop and the created entry (nil when nothing was
// collected).
func (s *Service) MarkDelivered(ctx context.Context, id string, collected *decimal.Decimal, mode ledger.PaymentMode, actor string) (sqlite.DeliveryRecord, *ledger.Entry, error) {
	d, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		return sqlite.DeliveryRecord{}, nil, fmt.Errorf("load delivery %s: %w", id, err)
	}
	if d == nil {
		return sqlite.DeliveryRecord{}, nil, ledger.ErrNotFound
	}
	if d.Status == StatusDelivered {
		return sqlite.DeliveryRecord{}, nil, fmt.Errorf("delivery %s already delivered: %w", id, ledger.ErrValidation)
	}

	var entry *ledger.Entry
	if collected != nil {
		e, err := s.writer.Record(ctx, ledger.NewEntry{
			FromAccount: d.ShopName,
			ToAccount:   CollectionAccount(mode),
			Amount:      *collected,
			Mode:        mode,
			Reference:   "delivery:" + d.ID,
			CreatedBy:   actor,
			// One entry per delivered stop even if the request is retried.
			IdempotencyKey: "delivery-" + d.ID,
		})
		if err != nil {
			return sqlite.DeliveryRecord{}, nil, err
		}
		entry = &e
	}

	now := time.Now().UTC()
	d.Status = StatusDelivered
	d.CollectedAmount = collected
	d.Mode = string(mode)
	d.DeliveredAt = &now

	if err := s.store.SaveDelivery(ctx, *d); err != nil {
		return sqlite.DeliveryRecord{}, nil, fmt.Errorf("update delivery %s: %w", id, err)
	}
	return *d, entry, nil
}

// List returns delivery stops, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]sqlite.DeliveryRecord, error) {
	return s.store.ListDeliveries(ctx, status)
}

// Get returns one delivery stop or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (sqlite.DeliveryRecord, error) {
	d, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		return sqlite.DeliveryRecord{}, err
	}
	if d == nil {
		return sqlite.DeliveryRecord{}, ledger.ErrNotFound
	}
	return *d, nil
}
