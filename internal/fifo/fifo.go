// Package fifo plans oldest-batch-first stock deductions. Planning is pure:
// it never mutates batches and is safe to call speculatively.
package fifo

import (
	"slices"

	"stokraja/backend/internal/domain"
)

// Plan is the outcome of planning a deduction: which batches to draw from and
// how much demand could not be covered.
type Plan struct {
	Deductions []domain.BatchDeduction
	Shortfall  int
}

// Processed returns how many units the plan actually covers.
func (p Plan) Processed() int {
	total := 0
	for _, d := range p.Deductions {
		total += d.Quantity
	}
	return total
}

// Sort orders batches for consumption: ReceivedAt ascending, batch ID as a
// deterministic tiebreak.
func Sort(batches []domain.InventoryBatch) {
	slices.SortFunc(batches, func(a, b domain.InventoryBatch) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			if a.ID == b.ID {
				return 0
			}
			if a.ID < b.ID {
				return -1
			}
			return 1
		}
		if a.ReceivedAt.Before(b.ReceivedAt) {
			return -1
		}
		return 1
	})
}

// Compute greedily consumes each active batch up to its available quantity
// until need reaches zero or batches run out. Inactive and empty batches are
// skipped. need <= 0 yields an empty plan with zero shortfall.
func Compute(batches []domain.InventoryBatch, need int) Plan {
	if need <= 0 {
		return Plan{Deductions: []domain.BatchDeduction{}}
	}

	ordered := make([]domain.InventoryBatch, len(batches))
	copy(ordered, batches)
	Sort(ordered)

	remaining := need
	deductions := make([]domain.BatchDeduction, 0, len(ordered))
	for _, batch := range ordered {
		if remaining == 0 {
			break
		}
		if batch.Status != domain.BatchStatusActive || batch.Quantity < 1 {
			continue
		}
		take := remaining
		if take > batch.Quantity {
			take = batch.Quantity
		}
		deductions = append(deductions, domain.BatchDeduction{BatchID: batch.ID, Quantity: take})
		remaining -= take
	}

	return Plan{Deductions: deductions, Shortfall: remaining}
}
