package fifo

import (
	"testing"
	"time"

	"stokraja/backend/internal/domain"
)

func batch(id string, qty int, receivedHoursAgo int) domain.InventoryBatch {
	return domain.InventoryBatch{
		ID:         id,
		StoreID:    "main-store",
		ProductID:  "PRD-TEST-01",
		Quantity:   qty,
		Status:     domain.BatchStatusActive,
		ReceivedAt: time.Now().UTC().Add(-time.Duration(receivedHoursAgo) * time.Hour),
	}
}

func TestComputeSpansBatchesOldestFirst(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch("batch-b", 10, 24),
		batch("batch-a", 5, 72),
	}

	plan := Compute(batches, 7)
	if plan.Shortfall != 0 {
		t.Fatalf("expected no shortfall, got %d", plan.Shortfall)
	}
	if len(plan.Deductions) != 2 {
		t.Fatalf("expected 2 deductions, got %d", len(plan.Deductions))
	}
	if plan.Deductions[0].BatchID != "batch-a" || plan.Deductions[0].Quantity != 5 {
		t.Fatalf("expected oldest batch drained first, got %+v", plan.Deductions[0])
	}
	if plan.Deductions[1].BatchID != "batch-b" || plan.Deductions[1].Quantity != 2 {
		t.Fatalf("expected remainder from newer batch, got %+v", plan.Deductions[1])
	}
	if plan.Processed() != 7 {
		t.Fatalf("expected 7 units processed, got %d", plan.Processed())
	}
}

func TestComputeReportsShortfall(t *testing.T) {
	plan := Compute([]domain.InventoryBatch{batch("batch-a", 3, 24)}, 10)
	if plan.Shortfall != 7 {
		t.Fatalf("expected shortfall 7, got %d", plan.Shortfall)
	}
	if len(plan.Deductions) != 1 || plan.Deductions[0].Quantity != 3 {
		t.Fatalf("expected partial deduction of 3, got %+v", plan.Deductions)
	}
}

func TestComputeIgnoresNonPositiveNeed(t *testing.T) {
	plan := Compute([]domain.InventoryBatch{batch("batch-a", 3, 24)}, 0)
	if len(plan.Deductions) != 0 || plan.Shortfall != 0 {
		t.Fatalf("expected empty plan for zero need, got %+v", plan)
	}

	plan = Compute([]domain.InventoryBatch{batch("batch-a", 3, 24)}, -5)
	if len(plan.Deductions) != 0 || plan.Shortfall != 0 {
		t.Fatalf("expected empty plan for negative need, got %+v", plan)
	}
}

func TestComputeWithNoBatchesShortfallsEntirely(t *testing.T) {
	plan := Compute(nil, 4)
	if plan.Shortfall != 4 || len(plan.Deductions) != 0 {
		t.Fatalf("expected full shortfall, got %+v", plan)
	}
}

func TestComputeSkipsInactiveAndEmptyBatches(t *testing.T) {
	inactive := batch("batch-dead", 50, 96)
	inactive.Status = domain.BatchStatusInactive
	empty := batch("batch-empty", 0, 80)

	plan := Compute([]domain.InventoryBatch{inactive, empty, batch("batch-live", 6, 24)}, 5)
	if plan.Shortfall != 0 {
		t.Fatalf("expected no shortfall, got %d", plan.Shortfall)
	}
	if len(plan.Deductions) != 1 || plan.Deductions[0].BatchID != "batch-live" {
		t.Fatalf("expected only the live batch used, got %+v", plan.Deductions)
	}
}

func TestComputeTiesBrokenByBatchID(t *testing.T) {
	at := time.Now().UTC().Add(-24 * time.Hour)
	first := batch("batch-a", 2, 0)
	first.ReceivedAt = at
	second := batch("batch-b", 2, 0)
	second.ReceivedAt = at

	plan := Compute([]domain.InventoryBatch{second, first}, 3)
	if plan.Deductions[0].BatchID != "batch-a" {
		t.Fatalf("expected deterministic tiebreak on id, got %+v", plan.Deductions)
	}
}

func TestComputeNeverMutatesInput(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch("batch-b", 10, 24),
		batch("batch-a", 5, 72),
	}

	_ = Compute(batches, 12)
	if batches[0].ID != "batch-b" || batches[0].Quantity != 10 {
		t.Fatalf("expected input order and quantities untouched, got %+v", batches)
	}
	if batches[1].Quantity != 5 {
		t.Fatalf("expected input quantities untouched, got %+v", batches[1])
	}
}

func TestComputeConservation(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch("batch-a", 7, 96),
		batch("batch-b", 11, 72),
		batch("batch-c", 4, 24),
	}

	for need := 1; need <= 30; need++ {
		plan := Compute(batches, need)
		if plan.Processed()+plan.Shortfall != need {
			t.Fatalf("need %d: processed %d + shortfall %d does not add up", need, plan.Processed(), plan.Shortfall)
		}
		for _, d := range plan.Deductions {
			if d.Quantity < 1 {
				t.Fatalf("need %d: non-positive deduction %+v", need, d)
			}
		}
	}
}
