package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stokraja/backend/internal/cache"
	"stokraja/backend/internal/invoice"
	"stokraja/backend/internal/projector"
	"stokraja/backend/internal/recon"
	"stokraja/backend/internal/sale"
	"stokraja/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real recorder/engine so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, mode string) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	proj := projector.New(repo, cache.NewNoopSummaryCache())
	allocator := invoice.NewAllocator(repo)
	recorder := sale.NewRecorder(mode, repo, allocator, proj, "main-company", "main-store")
	engine := recon.NewEngine(repo, proj)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(repo, recorder, allocator, proj, engine, auth, "*", "main-store"), repo
}

func loginToken(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed for %s: %d (%s)", username, rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token, got %v", body)
	}
	return token
}

func doJSON(handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()

	rec := doJSON(handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLoginRateLimit(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "badpass"})
	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", lastCode)
	}
}

func TestSalesRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRecordSaleCreatesTrackingEntries(t *testing.T) {
	api, repo := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	token := loginToken(t, handler, "terminal", "terminal123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"context": map[string]any{
			"company_id": "main-company",
			"store_id":   "main-store",
			"order_id":   "order-api-1",
			"device_id":  "terminal-a1",
		},
		"lines": []map[string]any{
			{"product_id": "PRD-MIE-01", "quantity": 4},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var result map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result["invoice_number"] != "INV-A1-000001" {
		t.Fatalf("expected allocated invoice number, got %v", result)
	}

	pending, err := repo.ListPendingTracking(context.Background(), "main-company", "main-store", 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].OrderID != "order-api-1" {
		t.Fatalf("expected one tracking entry, got %+v", pending)
	}
}

func TestReconciliationRunRequiresScope(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/reconciliation/run", token, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unscoped run, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestReconciliationRunSettlesSale(t *testing.T) {
	api, repo := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	terminalToken := loginToken(t, handler, "terminal", "terminal123")
	adminToken := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", terminalToken, map[string]any{
		"context": map[string]any{"order_id": "order-api-2"},
		"lines":   []map[string]any{{"product_id": "PRD-KOPI-01", "quantity": 10}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("record sale failed: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/reconciliation/run", adminToken, map[string]any{
		"store_id": "main-store",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result["processed"] != float64(1) {
		t.Fatalf("expected 1 processed, got %v", result)
	}

	summary, err := repo.GetProductSummary(context.Background(), "main-store", "PRD-KOPI-01")
	if err != nil {
		t.Fatalf("get summary failed: %v", err)
	}
	if summary.TotalStock != 50 {
		t.Fatalf("expected 50 left, got %d", summary.TotalStock)
	}
}

func TestReconciliationEndpointsAreAdminOnly(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	token := loginToken(t, handler, "terminal", "terminal123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/reconciliation/run", token, map[string]any{"store_id": "main-store"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for terminal role, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/tracking", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for terminal role, got %d", rec.Code)
	}
}

func TestProductSummaryEndpoint(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	token := loginToken(t, handler, "terminal", "terminal123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/products/PRD-MIE-01/summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var summary map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if summary["total_stock"] != float64(200) {
		t.Fatalf("expected total stock 200, got %v", summary)
	}
}

func TestBatchReceiveUpdatesSummary(t *testing.T) {
	api, repo := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/inventory/batches", token, map[string]any{
		"store_id":         "main-store",
		"product_id":       "PRD-MIE-01",
		"lot_code":         "LOT-MIE-C",
		"quantity":         50,
		"unit_price_cents": 3700,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	summary, err := repo.GetProductSummary(context.Background(), "main-store", "PRD-MIE-01")
	if err != nil {
		t.Fatalf("get summary failed: %v", err)
	}
	if summary.TotalStock != 250 {
		t.Fatalf("expected 250 after restock, got %d", summary.TotalStock)
	}
	if summary.SellingPriceCents != 3700 {
		t.Fatalf("expected price to follow newest batch, got %d", summary.SellingPriceCents)
	}
}

func TestInvoiceSeriesLifecycle(t *testing.T) {
	api, _ := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	adminToken := loginToken(t, handler, "admin", "admin123")
	terminalToken := loginToken(t, handler, "terminal", "terminal123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/invoice-series", adminToken, map[string]any{
		"device_id": "terminal-b2",
		"prefix":    "INV-B2-",
		"start":     1,
		"end":       3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	for i := 1; i <= 3; i++ {
		rec = doJSON(handler, http.MethodPost, "/api/v1/invoice-series/terminal-b2/allocate", terminalToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("allocate %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/invoice-series/terminal-b2/allocate", terminalToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on exhausted series, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOfflineSyncAbsorbsDuplicates(t *testing.T) {
	api, repo := newTestAPI(t, sale.ModeReconcile)
	handler := api.Handler()
	token := loginToken(t, handler, "terminal", "terminal123")

	payload := map[string]any{
		"envelope_id": "env-1",
		"sales": []map[string]any{
			{
				"client_sale_id": "client-sale-1",
				"context": map[string]any{
					"company_id": "main-company",
					"store_id":   "main-store",
				},
				"lines": []map[string]any{{"product_id": "PRD-MIE-01", "quantity": 2}},
			},
		},
	}

	for i := 0; i < 2; i++ {
		rec := doJSON(handler, http.MethodPost, "/api/v1/sales/offline-sync", token, payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("sync %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}

	pending, err := repo.ListPendingTracking(context.Background(), "main-company", "main-store", 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected duplicate envelope absorbed, got %d entries", len(pending))
	}
}
