// Command offline-sync drains a terminal's offline sale journal against the
// backend. It logs in with terminal credentials, replays every pending sale
// through POST /api/v1/sales, and marks the journal entries synced. Safe to
// re-run: client sale ids double as order ids, so the server absorbs
// duplicates.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stokraja/backend/internal/config"
	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/offline"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()
	baseURL := envOr("SYNC_API_URL", "http://localhost:"+cfg.Port)
	username := os.Getenv("SYNC_USERNAME")
	password := os.Getenv("SYNC_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("SYNC_USERNAME and SYNC_PASSWORD must be set")
	}

	queue, err := offline.Open(cfg.OfflineJournalPath)
	if err != nil {
		log.Fatalf("open journal %s: %v", cfg.OfflineJournalPath, err)
	}
	defer queue.Close()

	pending := queue.Pending()
	if len(pending) == 0 {
		log.Printf("journal %s has nothing to sync", cfg.OfflineJournalPath)
		return
	}
	log.Printf("replaying %d pending sales against %s", len(pending), baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	recorder, err := newHTTPRecorder(ctx, baseURL, username, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	resp, err := queue.Replay(ctx, recorder)
	if err != nil {
		log.Fatalf("replay aborted: %v", err)
	}

	failed := 0
	for _, status := range resp.Statuses {
		if status.Status != "accepted" {
			failed++
			log.Printf("sale %s: %s (%s)", status.ClientSaleID, status.Status, status.Reason)
			continue
		}
		if status.InvoiceNumber != "" {
			log.Printf("sale %s: accepted as %s", status.ClientSaleID, status.InvoiceNumber)
		} else {
			log.Printf("sale %s: accepted", status.ClientSaleID)
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d sales failed; they stay queued for the next run", failed, len(resp.Statuses))
	}
	log.Printf("all %d sales synced", len(resp.Statuses))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// httpRecorder satisfies sale.Recorder over the backend's HTTP surface, so the
// queue replays through exactly the contract an online terminal uses.
type httpRecorder struct {
	baseURL string
	token   string
	client  *http.Client
}

func newHTTPRecorder(ctx context.Context, baseURL, username, password string) (*httpRecorder, error) {
	r := &httpRecorder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}

	var login domain.LoginResponse
	err := r.post(ctx, "/api/v1/auth/login", domain.LoginRequest{
		Username: username,
		Password: password,
	}, &login)
	if err != nil {
		return nil, err
	}
	r.token = login.AccessToken
	return r, nil
}

func (r *httpRecorder) RecordSale(ctx context.Context, saleCtx domain.SaleContext, lines []domain.SaleLine) (domain.SaleResult, error) {
	var result domain.SaleResult
	err := r.post(ctx, "/api/v1/sales", struct {
		Context domain.SaleContext `json:"context"`
		Lines   []domain.SaleLine  `json:"lines"`
	}{Context: saleCtx, Lines: lines}, &result)
	if err != nil {
		return domain.SaleResult{}, err
	}
	return result, nil
}

func (r *httpRecorder) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
