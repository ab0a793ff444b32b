// Package sale records incoming sales. Two recorders share one interface:
// the legacy recorder deducts stock synchronously at the point of sale, the
// deferred recorder only writes tracking entries and leaves deduction to the
// reconciliation engine.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/invoice"
	"stokraja/backend/internal/projector"
	"stokraja/backend/internal/store"
	"stokraja/backend/internal/xid"
)

const (
	ModeLegacy    = "legacy"
	ModeReconcile = "reconcile"
)

type Recorder interface {
	RecordSale(ctx context.Context, saleCtx domain.SaleContext, lines []domain.SaleLine) (domain.SaleResult, error)
}

// NewRecorder picks the recorder for the configured mode. Unknown modes fall
// back to reconcile, the mode new deployments run in.
func NewRecorder(mode string, repo store.Repository, allocator *invoice.Allocator, proj *projector.Projector, defaultCompanyID string, defaultStoreID string) Recorder {
	if strings.ToLower(strings.TrimSpace(mode)) == ModeLegacy {
		return &LegacyRecorder{
			repo:             repo,
			allocator:        allocator,
			projector:        proj,
			defaultCompanyID: defaultCompanyID,
			defaultStoreID:   defaultStoreID,
		}
	}
	return &DeferredRecorder{
		repo:             repo,
		allocator:        allocator,
		defaultCompanyID: defaultCompanyID,
		defaultStoreID:   defaultStoreID,
	}
}

func normalizeSale(saleCtx domain.SaleContext, lines []domain.SaleLine, defaultCompanyID string, defaultStoreID string) (domain.SaleContext, []domain.SaleLine, error) {
	if saleCtx.CompanyID == "" {
		saleCtx.CompanyID = defaultCompanyID
	}
	if saleCtx.StoreID == "" {
		saleCtx.StoreID = defaultStoreID
	}
	if saleCtx.OrderID == "" {
		saleCtx.OrderID = xid.New("order")
	}

	merged := make(map[string]domain.SaleLine, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || line.Quantity < 1 {
			return saleCtx, nil, store.ErrInvalidInput
		}
		existing, seen := merged[line.ProductID]
		if !seen {
			order = append(order, line.ProductID)
			merged[line.ProductID] = line
			continue
		}
		existing.Quantity += line.Quantity
		merged[line.ProductID] = existing
	}
	if len(order) == 0 {
		return saleCtx, nil, store.ErrInvalidInput
	}

	normalized := make([]domain.SaleLine, 0, len(order))
	for _, productID := range order {
		normalized = append(normalized, merged[productID])
	}
	return saleCtx, normalized, nil
}

func allocateInvoice(ctx context.Context, allocator *invoice.Allocator, deviceID string) (string, error) {
	if allocator == nil || deviceID == "" {
		return "", nil
	}
	number, err := allocator.Allocate(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Device has no series registered; the sale proceeds unnumbered
			// rather than blocking the lane until an admin provisions one.
			log.Printf("[sale] WARN: device %s has no invoice series, sale proceeds unnumbered", deviceID)
			return "", nil
		}
		return "", err
	}
	return number, nil
}

// LegacyRecorder is the synchronous path: each line FIFO-deducts inside its
// own transaction, so a line that cannot be covered fails hard while earlier
// lines stay committed.
type LegacyRecorder struct {
	repo             store.Repository
	allocator        *invoice.Allocator
	projector        *projector.Projector
	defaultCompanyID string
	defaultStoreID   string
}

func (r *LegacyRecorder) RecordSale(ctx context.Context, saleCtx domain.SaleContext, lines []domain.SaleLine) (domain.SaleResult, error) {
	saleCtx, normalized, err := normalizeSale(saleCtx, lines, r.defaultCompanyID, r.defaultStoreID)
	if err != nil {
		return domain.SaleResult{}, err
	}

	invoiceNumber, err := allocateInvoice(ctx, r.allocator, saleCtx.DeviceID)
	if err != nil {
		return domain.SaleResult{}, err
	}

	result := domain.SaleResult{
		Success:       true,
		OrderID:       saleCtx.OrderID,
		InvoiceNumber: invoiceNumber,
	}

	for _, line := range normalized {
		_, err := r.repo.DeductForSale(ctx, saleCtx.StoreID, line.ProductID, line.Quantity)
		if err != nil {
			result.Success = false
			message := "deduction failed"
			if errors.Is(err, store.ErrInsufficientStock) {
				message = "insufficient stock"
			}
			result.Errors = append(result.Errors, domain.SaleLineError{
				ProductID: line.ProductID,
				Message:   message,
			})
			if !errors.Is(err, store.ErrInsufficientStock) {
				return result, fmt.Errorf("deduct product %s: %w", line.ProductID, err)
			}
			continue
		}

		if r.projector != nil {
			if _, err := r.projector.Recompute(ctx, saleCtx.StoreID, line.ProductID); err != nil {
				log.Printf("[sale] WARN: summary recompute failed store=%s product=%s: %v", saleCtx.StoreID, line.ProductID, err)
			}
		}
	}

	return result, nil
}

// DeferredRecorder writes one pending tracking entry per line and returns
// immediately. Replays with the same order ID are absorbed by the tracking
// store's uniqueness on (order, product).
type DeferredRecorder struct {
	repo             store.Repository
	allocator        *invoice.Allocator
	defaultCompanyID string
	defaultStoreID   string
}

func (r *DeferredRecorder) RecordSale(ctx context.Context, saleCtx domain.SaleContext, lines []domain.SaleLine) (domain.SaleResult, error) {
	saleCtx, normalized, err := normalizeSale(saleCtx, lines, r.defaultCompanyID, r.defaultStoreID)
	if err != nil {
		return domain.SaleResult{}, err
	}

	now := time.Now().UTC()
	anyCreated := false
	for _, line := range normalized {
		_, created, err := r.repo.CreateTrackingEntry(ctx, domain.SaleTrackingEntry{
			CompanyID: saleCtx.CompanyID,
			StoreID:   saleCtx.StoreID,
			OrderID:   saleCtx.OrderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Status:    domain.TrackingStatusPending,
			CreatedAt: now,
		})
		if err != nil {
			return domain.SaleResult{}, fmt.Errorf("track product %s: %w", line.ProductID, err)
		}
		if created {
			anyCreated = true
		} else {
			log.Printf("[sale] duplicate line absorbed order=%s product=%s", saleCtx.OrderID, line.ProductID)
		}
	}

	// A pure replay created nothing; skipping allocation keeps retries from
	// burning invoice numbers.
	invoiceNumber := ""
	if anyCreated {
		invoiceNumber, err = allocateInvoice(ctx, r.allocator, saleCtx.DeviceID)
		if err != nil {
			return domain.SaleResult{}, err
		}
	}

	return domain.SaleResult{
		Success:       true,
		OrderID:       saleCtx.OrderID,
		InvoiceNumber: invoiceNumber,
	}, nil
}
