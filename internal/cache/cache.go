package cache

import (
	"context"

	"stokraja/backend/internal/domain"
)

type SummaryCache interface {
	GetSummary(ctx context.Context, storeID string, productID string) (domain.ProductSummary, bool, error)
	SetSummary(ctx context.Context, summary domain.ProductSummary) error
}

type NoopSummaryCache struct{}

func NewNoopSummaryCache() NoopSummaryCache {
	return NoopSummaryCache{}
}

func (NoopSummaryCache) GetSummary(_ context.Context, _ string, _ string) (domain.ProductSummary, bool, error) {
	return domain.ProductSummary{}, false, nil
}

func (NoopSummaryCache) SetSummary(_ context.Context, _ domain.ProductSummary) error {
	return nil
}
