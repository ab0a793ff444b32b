package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"stokraja/backend/internal/domain"
)

func TestReconcileEntryDeductsAcrossBatches(t *testing.T) {
	databaseURL := os.Getenv("STOKRAJA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOKRAJA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("PRD-RECON-IT-%d", stamp)
	orderID := fmt.Sprintf("order-recon-it-%d", stamp)
	storeID := "main-store"

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM reconciliation_log WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_tracking_entries WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_summaries WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_batches WHERE product_id = $1`, productID)
	})

	now := time.Now().UTC()
	older, err := s.CreateBatch(ctx, domain.InventoryBatch{
		StoreID:        storeID,
		ProductID:      productID,
		Quantity:       10,
		UnitPriceCents: 3500,
		ReceivedAt:     now.Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create older batch: %v", err)
	}
	newer, err := s.CreateBatch(ctx, domain.InventoryBatch{
		StoreID:        storeID,
		ProductID:      productID,
		Quantity:       20,
		UnitPriceCents: 3600,
		ReceivedAt:     now.Add(-1 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create newer batch: %v", err)
	}

	entry, created, err := s.CreateTrackingEntry(ctx, domain.SaleTrackingEntry{
		CompanyID: "main-company",
		StoreID:   storeID,
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  15,
	})
	if err != nil {
		t.Fatalf("create tracking entry: %v", err)
	}
	if !created {
		t.Fatalf("expected fresh tracking entry")
	}

	outcome, err := s.ReconcileEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("reconcile entry: %v", err)
	}
	if outcome.Skipped {
		t.Fatalf("expected entry to be settled, not skipped")
	}
	if outcome.Entry.Status != domain.TrackingStatusReconciled {
		t.Fatalf("expected reconciled status, got %s", outcome.Entry.Status)
	}
	if outcome.Log == nil || len(outcome.Log.BatchesUsed) != 2 {
		t.Fatalf("expected deduction across 2 batches, got %+v", outcome.Log)
	}

	var olderQty int
	var olderStatus string
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity, status
		FROM inventory_batches
		WHERE id = $1
	`, older.ID).Scan(&olderQty, &olderStatus); err != nil {
		t.Fatalf("query older batch: %v", err)
	}
	if olderQty != 0 || olderStatus != domain.BatchStatusInactive {
		t.Fatalf("expected older batch drained and inactive, got qty=%d status=%s", olderQty, olderStatus)
	}

	var newerQty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity
		FROM inventory_batches
		WHERE id = $1
	`, newer.ID).Scan(&newerQty); err != nil {
		t.Fatalf("query newer batch: %v", err)
	}
	if newerQty != 15 {
		t.Fatalf("expected 15 left in newer batch, got %d", newerQty)
	}

	// Replaying the same order line must be absorbed, not duplicated.
	replay, created, err := s.CreateTrackingEntry(ctx, domain.SaleTrackingEntry{
		CompanyID: "main-company",
		StoreID:   storeID,
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  15,
	})
	if err != nil {
		t.Fatalf("replay tracking entry: %v", err)
	}
	if created || replay.ID != entry.ID {
		t.Fatalf("expected replay to return the settled entry, got created=%v id=%s", created, replay.ID)
	}

	second, err := s.ReconcileEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if !second.Skipped {
		t.Fatalf("expected settled entry to be skipped on second pass")
	}
}
