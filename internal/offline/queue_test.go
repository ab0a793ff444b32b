package offline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/invoice"
	"stokraja/backend/internal/sale"
	"stokraja/backend/internal/store/memory"
)

func newTestQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offline-queue.jsonl")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("open queue failed: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q, path
}

func offlineSale(id string, productID string, qty int) domain.OfflineSale {
	return domain.OfflineSale{
		ClientSaleID: id,
		Context: domain.SaleContext{
			CompanyID: "main-company",
			StoreID:   "main-store",
			DeviceID:  "terminal-a1",
		},
		Lines: []domain.SaleLine{{ProductID: productID, Quantity: qty}},
	}
}

func TestEnqueueAndPending(t *testing.T) {
	q, _ := newTestQueue(t)

	if err := q.Enqueue(offlineSale("sale-1", "PRD-MIE-01", 2)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Enqueue(offlineSale("sale-2", "PRD-KOPI-01", 1)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending sales, got %d", len(pending))
	}
	if pending[0].ClientSaleID != "sale-1" {
		t.Fatalf("expected capture order preserved, got %+v", pending)
	}
}

func TestEnqueueRejectsInvalidSale(t *testing.T) {
	q, _ := newTestQueue(t)

	if err := q.Enqueue(domain.OfflineSale{}); err == nil {
		t.Fatalf("expected invalid sale to be rejected")
	}
	if err := q.Enqueue(domain.OfflineSale{ClientSaleID: "sale-x"}); err == nil {
		t.Fatalf("expected sale without lines to be rejected")
	}
}

func TestReplayRecordsSalesAndMarksSynced(t *testing.T) {
	q, _ := newTestQueue(t)
	repo := memory.NewSeeded()
	recorder := sale.NewRecorder(sale.ModeReconcile, repo, invoice.NewAllocator(repo), nil, "main-company", "main-store")
	ctx := context.Background()

	if err := q.Enqueue(offlineSale("sale-r1", "PRD-MIE-01", 3)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	resp, err := q.Replay(ctx, recorder)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(resp.Statuses) != 1 || resp.Statuses[0].Status != "accepted" {
		t.Fatalf("expected one accepted status, got %+v", resp.Statuses)
	}

	// The client sale id became the server-side order id.
	pending, err := repo.ListPendingTracking(ctx, "main-company", "main-store", 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].OrderID != "sale-r1" {
		t.Fatalf("expected tracking entry keyed by client sale id, got %+v", pending)
	}

	if got := q.Pending(); len(got) != 0 {
		t.Fatalf("expected nothing pending after replay, got %+v", got)
	}
}

func TestReplayDuplicatesAreAbsorbedServerSide(t *testing.T) {
	q, _ := newTestQueue(t)
	repo := memory.NewSeeded()
	recorder := sale.NewRecorder(sale.ModeReconcile, repo, invoice.NewAllocator(repo), nil, "main-company", "main-store")
	ctx := context.Background()

	if err := q.Enqueue(offlineSale("sale-dup", "PRD-MIE-01", 3)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, err := q.Replay(ctx, recorder); err != nil {
		t.Fatalf("first replay failed: %v", err)
	}
	// Re-send everything as if the synced markers were lost client-side.
	if _, err := recorder.RecordSale(ctx, domain.SaleContext{
		CompanyID: "main-company", StoreID: "main-store", OrderID: "sale-dup",
	}, []domain.SaleLine{{ProductID: "PRD-MIE-01", Quantity: 3}}); err != nil {
		t.Fatalf("duplicate record failed: %v", err)
	}

	pending, err := repo.ListPendingTracking(ctx, "main-company", "main-store", 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected duplicates absorbed, got %d entries", len(pending))
	}
}

func TestSyncedMarkersSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline-queue.jsonl")
	repo := memory.NewSeeded()
	recorder := sale.NewRecorder(sale.ModeReconcile, repo, invoice.NewAllocator(repo), nil, "main-company", "main-store")
	ctx := context.Background()

	q, err := Open(path)
	if err != nil {
		t.Fatalf("open queue failed: %v", err)
	}
	if err := q.Enqueue(offlineSale("sale-s1", "PRD-MIE-01", 1)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Enqueue(offlineSale("sale-s2", "PRD-KOPI-01", 1)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := q.Replay(ctx, recorder); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if pending := reopened.Pending(); len(pending) != 0 {
		t.Fatalf("expected synced sales to stay synced across restart, got %+v", pending)
	}
}

func TestFailedReplayStaysQueued(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(offlineSale("sale-f1", "PRD-MIE-01", 1)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	resp, err := q.Replay(ctx, failingRecorder{})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(resp.Statuses) != 1 || resp.Statuses[0].Status != "failed" {
		t.Fatalf("expected failed status, got %+v", resp.Statuses)
	}

	if pending := q.Pending(); len(pending) != 1 {
		t.Fatalf("expected failed sale to stay queued, got %+v", pending)
	}
}

func TestOpenSkipsTornJournalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline-queue.jsonl")
	content := `{"kind":"sale","sale":{"client_sale_id":"sale-ok","context":{"company_id":"main-company","store_id":"main-store","order_id":"","cashier_id":"","device_id":""},"lines":[{"product_id":"PRD-MIE-01","quantity":1,"unit_price_cents":0}]}}
{"kind":"sa`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write journal failed: %v", err)
	}

	q, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer q.Close()

	if pending := q.Pending(); len(pending) != 1 || pending[0].ClientSaleID != "sale-ok" {
		t.Fatalf("expected the intact record only, got %+v", pending)
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordSale(context.Context, domain.SaleContext, []domain.SaleLine) (domain.SaleResult, error) {
	return domain.SaleResult{}, errors.New("backend unreachable")
}
