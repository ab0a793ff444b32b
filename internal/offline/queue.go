// Package offline journals sales captured while a terminal is disconnected
// and replays them once connectivity returns. The journal is an append-only
// JSON-lines file; replay relies on server-side order idempotency, so a crash
// mid-replay at worst re-sends sales the server already absorbed.
package offline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/sale"
	"stokraja/backend/internal/store"
)

const (
	recordKindSale   = "sale"
	recordKindSynced = "synced"
)

// record is one journal line: either a captured sale or a marker that a
// previously captured sale has been replayed successfully.
type record struct {
	Kind string              `json:"kind"`
	Sale *domain.OfflineSale `json:"sale,omitempty"`
	// ClientSaleID is set on synced markers.
	ClientSaleID string `json:"client_sale_id,omitempty"`
}

type Queue struct {
	mu   sync.Mutex
	path string
	file *os.File

	// sales holds unsynced entries in capture order; synced tracks markers so
	// reloads skip already-replayed sales.
	sales  []domain.OfflineSale
	synced map[string]bool
}

// Open loads (or creates) the journal at path and rebuilds the pending set
// from its records.
func Open(path string) (*Queue, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	q := &Queue{
		path:   path,
		file:   file,
		synced: make(map[string]bool),
	}
	if err := q.load(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) load() error {
	scanner := bufio.NewScanner(q.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn final line from a crash mid-append is dropped.
			log.Printf("[offline] WARN: skipping corrupt journal line: %v", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	for _, rec := range records {
		switch rec.Kind {
		case recordKindSynced:
			q.synced[rec.ClientSaleID] = true
		case recordKindSale:
			if rec.Sale != nil {
				q.sales = append(q.sales, *rec.Sale)
			}
		}
	}

	pending := 0
	for _, s := range q.sales {
		if !q.synced[s.ClientSaleID] {
			pending++
		}
	}
	if pending > 0 {
		log.Printf("[offline] journal %s loaded with %d pending sales", q.path, pending)
	}
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.file.Close()
}

func (q *Queue) append(rec record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := q.file.Write(payload); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	// fsync before acknowledging: a captured sale must survive power loss.
	if err := q.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Enqueue captures one sale for later replay. The ClientSaleID doubles as the
// server-side order ID, which is what makes replays idempotent.
func (q *Queue) Enqueue(offlineSale domain.OfflineSale) error {
	if offlineSale.ClientSaleID == "" || len(offlineSale.Lines) == 0 {
		return store.ErrInvalidInput
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.append(record{Kind: recordKindSale, Sale: &offlineSale}); err != nil {
		return err
	}
	q.sales = append(q.sales, offlineSale)
	return nil
}

// Pending returns the sales still awaiting replay, oldest first.
func (q *Queue) Pending() []domain.OfflineSale {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]domain.OfflineSale, 0, len(q.sales))
	for _, s := range q.sales {
		if !q.synced[s.ClientSaleID] {
			pending = append(pending, s)
		}
	}
	return pending
}

// Replay pushes every pending sale through the recorder in capture order.
// Failed sales stay queued for the next replay; successes are marked synced
// in the journal so a restart does not re-send them.
func (q *Queue) Replay(ctx context.Context, recorder sale.Recorder) (domain.OfflineSyncResponse, error) {
	pending := q.Pending()

	resp := domain.OfflineSyncResponse{
		Statuses: make([]domain.OfflineSyncStatus, 0, len(pending)),
	}

	for _, offlineSale := range pending {
		if err := ctx.Err(); err != nil {
			return resp, err
		}

		saleCtx := offlineSale.Context
		saleCtx.OrderID = offlineSale.ClientSaleID

		status := domain.OfflineSyncStatus{ClientSaleID: offlineSale.ClientSaleID}
		result, err := recorder.RecordSale(ctx, saleCtx, offlineSale.Lines)
		if err != nil {
			status.Status = "failed"
			status.Reason = err.Error()
			resp.Statuses = append(resp.Statuses, status)
			continue
		}

		if err := q.markSynced(offlineSale.ClientSaleID); err != nil {
			// The sale landed server-side; the journal marker did not. The
			// next replay re-sends it and idempotency absorbs the duplicate.
			log.Printf("[offline] WARN: could not mark sale %s synced: %v", offlineSale.ClientSaleID, err)
		}

		status.Status = "accepted"
		status.InvoiceNumber = result.InvoiceNumber
		resp.Statuses = append(resp.Statuses, status)
	}

	return resp, nil
}

func (q *Queue) markSynced(clientSaleID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.append(record{Kind: recordKindSynced, ClientSaleID: clientSaleID}); err != nil {
		return err
	}
	q.synced[clientSaleID] = true
	return nil
}
