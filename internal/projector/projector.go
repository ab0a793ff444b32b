// Package projector maintains the per-product stock summary, a derived view
// of the batch ledger. Summaries are always recomputable from scratch, so the
// projector overwrites rather than increments.
package projector

import (
	"context"
	"errors"
	"log"
	"time"

	"stokraja/backend/internal/cache"
	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/store"
)

type Projector struct {
	repo  store.Repository
	cache cache.SummaryCache
}

func New(repo store.Repository, summaryCache cache.SummaryCache) *Projector {
	if summaryCache == nil {
		summaryCache = cache.NewNoopSummaryCache()
	}
	return &Projector{repo: repo, cache: summaryCache}
}

// Recompute rebuilds one product's summary from its active batches: total
// stock is the sum of remaining quantities, selling price follows the most
// recently received active batch. No active batches means zero stock and no
// quotable price.
func (p *Projector) Recompute(ctx context.Context, storeID string, productID string) (domain.ProductSummary, error) {
	if storeID == "" || productID == "" {
		return domain.ProductSummary{}, store.ErrInvalidInput
	}

	batches, err := p.repo.ListBatches(ctx, storeID, productID, true, 0)
	if err != nil {
		return domain.ProductSummary{}, err
	}

	summary := domain.ProductSummary{
		ProductID:   productID,
		StoreID:     storeID,
		LastUpdated: time.Now().UTC(),
	}

	var newest time.Time
	for _, batch := range batches {
		summary.TotalStock += batch.Quantity
		if batch.ReceivedAt.After(newest) {
			newest = batch.ReceivedAt
			summary.SellingPriceCents = batch.UnitPriceCents
		}
	}

	if err := p.repo.SaveProductSummary(ctx, summary); err != nil {
		return domain.ProductSummary{}, err
	}

	if err := p.cache.SetSummary(ctx, summary); err != nil {
		log.Printf("[projector] WARN: failed to cache summary store=%s product=%s: %v", storeID, productID, err)
	}

	return summary, nil
}

// Summary serves reads, preferring the cache and falling back to the stored
// projection. A missing projection is rebuilt on the spot.
func (p *Projector) Summary(ctx context.Context, storeID string, productID string) (domain.ProductSummary, error) {
	if storeID == "" || productID == "" {
		return domain.ProductSummary{}, store.ErrInvalidInput
	}

	if cached, ok, err := p.cache.GetSummary(ctx, storeID, productID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[projector] WARN: summary cache read failed store=%s product=%s: %v", storeID, productID, err)
	}

	stored, err := p.repo.GetProductSummary(ctx, storeID, productID)
	if err == nil {
		return *stored, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.ProductSummary{}, err
	}

	return p.Recompute(ctx, storeID, productID)
}
