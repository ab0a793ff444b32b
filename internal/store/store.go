package store

import (
	"context"
	"errors"
	"fmt"

	"stokraja/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSeriesExhausted   = errors.New("invoice series exhausted")
	ErrConflict          = errors.New("write conflict")
	ErrInvalidInput      = errors.New("invalid input")
)

// ReconcileOutcome reports what one transactional settlement of a tracking
// entry did. Skipped means the entry had already left pending (a previous or
// concurrent run settled it) and nothing was mutated.
type ReconcileOutcome struct {
	Entry   domain.SaleTrackingEntry
	Log     *domain.ReconciliationLogEntry
	Skipped bool
}

type Repository interface {
	// Batch ledger. Batches are append-only; deductions are the only writes
	// to quantity, and a drained batch flips to inactive in the same step.
	CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error)
	ListBatches(ctx context.Context, storeID string, productID string, activeOnly bool, limit int) ([]domain.InventoryBatch, error)

	// DeductForSale is the legacy-mode synchronous path: plan FIFO against
	// the live ledger and apply it in one transaction scoped to the product.
	// A shortfall aborts the transaction with ErrInsufficientStock; on
	// success the applied deductions and a deduct log entry are committed
	// together.
	DeductForSale(ctx context.Context, storeID string, productID string, quantity int) ([]domain.BatchDeduction, error)

	// Tracking store. CreateTrackingEntry is idempotent on
	// (orderID, productID): replays return the existing entry with
	// created=false.
	CreateTrackingEntry(ctx context.Context, entry domain.SaleTrackingEntry) (*domain.SaleTrackingEntry, bool, error)
	GetTrackingEntry(ctx context.Context, id string) (*domain.SaleTrackingEntry, error)
	ListPendingTracking(ctx context.Context, companyID string, storeID string, limit int) ([]domain.SaleTrackingEntry, error)
	ListTracking(ctx context.Context, storeID string, status string, limit int) ([]domain.SaleTrackingEntry, error)

	// ReconcileEntry settles one pending entry in a single transaction:
	// re-read (skip if no longer pending), FIFO-deduct against active
	// batches, update entry status, append exactly one log entry.
	ReconcileEntry(ctx context.Context, id string) (*ReconcileOutcome, error)

	// MarkTrackingError is the best-effort fallback when settlement itself
	// failed outside the transaction (engine error isolation).
	MarkTrackingError(ctx context.Context, id string, message string) error

	ListReconciliationLog(ctx context.Context, productID string, limit int) ([]domain.ReconciliationLogEntry, error)

	// Product summaries: projector-owned, merge-only writes.
	GetProductSummary(ctx context.Context, storeID string, productID string) (*domain.ProductSummary, error)
	SaveProductSummary(ctx context.Context, summary domain.ProductSummary) error

	// Invoice series.
	CreateInvoiceSeries(ctx context.Context, series domain.InvoiceSeries) (*domain.InvoiceSeries, error)
	GetInvoiceSeries(ctx context.Context, deviceID string) (*domain.InvoiceSeries, error)
	// AllocateInvoiceNumber increments the device's series inside a
	// serializable transaction and returns the formatted number. Exhausted
	// series fail with ErrSeriesExhausted and write nothing.
	AllocateInvoiceNumber(ctx context.Context, deviceID string) (string, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// FormatInvoiceNumber renders an allocated number the way receipts print it:
// prefix plus the zero-padded sequence value.
func FormatInvoiceNumber(prefix string, value int64) string {
	return fmt.Sprintf("%s%06d", prefix, value)
}
