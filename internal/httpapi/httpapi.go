package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/invoice"
	"stokraja/backend/internal/projector"
	"stokraja/backend/internal/recon"
	"stokraja/backend/internal/sale"
	"stokraja/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type API struct {
	repo           store.Repository
	recorder       sale.Recorder
	allocator      *invoice.Allocator
	projector      *projector.Projector
	engine         *recon.Engine
	auth           *AuthManager
	allowedOrigin  string
	defaultStoreID string
	loginLimiter   *attemptLimiter
}

func New(repo store.Repository, recorder sale.Recorder, allocator *invoice.Allocator, proj *projector.Projector, engine *recon.Engine, auth *AuthManager, allowedOrigin string, defaultStoreID string) *API {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	return &API{
		repo:           repo,
		recorder:       recorder,
		allocator:      allocator,
		projector:      proj,
		engine:         engine,
		auth:           auth,
		allowedOrigin:  allowedOrigin,
		defaultStoreID: defaultStoreID,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "terminal", "admin"))
	mux.HandleFunc("/api/v1/sales/offline-sync", a.requireAuth(a.handleOfflineSync, "terminal", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductSummary, "terminal", "admin"))
	mux.HandleFunc("/api/v1/invoice-series", a.requireAuth(a.handleInvoiceSeries, "admin"))
	mux.HandleFunc("/api/v1/invoice-series/", a.requireAuth(a.handleInvoiceSeriesActions, "terminal", "admin"))

	mux.HandleFunc("/api/v1/inventory/batches", a.requireAuth(a.handleBatches, "admin"))
	mux.HandleFunc("/api/v1/reconciliation/run", a.requireAuth(a.handleReconciliationRun, "admin"))
	mux.HandleFunc("/api/v1/reconciliation/log", a.requireAuth(a.handleReconciliationLog, "admin"))
	mux.HandleFunc("/api/v1/tracking", a.requireAuth(a.handleTracking, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type saleRequest struct {
	Context domain.SaleContext `json:"context"`
	Lines   []domain.SaleLine  `json:"lines"`
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.recorder.RecordSale(r.Context(), req.Context, req.Lines)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func (a *API) handleOfflineSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.OfflineSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := domain.OfflineSyncResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.OfflineSyncStatus, 0, len(req.Sales)),
	}

	for _, offlineSale := range req.Sales {
		status := domain.OfflineSyncStatus{ClientSaleID: offlineSale.ClientSaleID}
		if offlineSale.ClientSaleID == "" {
			status.Status = "rejected"
			status.Reason = "client sale id required"
			resp.Statuses = append(resp.Statuses, status)
			continue
		}

		saleCtx := offlineSale.Context
		saleCtx.OrderID = offlineSale.ClientSaleID

		result, err := a.recorder.RecordSale(r.Context(), saleCtx, offlineSale.Lines)
		if err != nil {
			status.Status = "rejected"
			status.Reason = err.Error()
			resp.Statuses = append(resp.Statuses, status)
			continue
		}

		status.Status = "accepted"
		status.InvoiceNumber = result.InvoiceNumber
		resp.Statuses = append(resp.Statuses, status)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProductSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/products/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/summary") {
		writeError(w, http.StatusBadRequest, errors.New("invalid product summary path"))
		return
	}
	productID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/summary")
	productID = strings.TrimSpace(strings.Trim(productID, "/"))
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
	if storeID == "" {
		storeID = a.defaultStoreID
	}

	summary, err := a.projector.Summary(r.Context(), storeID, productID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleInvoiceSeries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
		series, err := a.allocator.GetSeries(r.Context(), deviceID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"series": series})
	case http.MethodPost:
		var req domain.InvoiceSeriesCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		series, err := a.allocator.CreateSeries(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"series": series})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoiceSeriesActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/invoice-series/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/allocate") {
		writeError(w, http.StatusBadRequest, errors.New("invalid invoice series action path"))
		return
	}
	deviceID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/allocate")
	deviceID = strings.TrimSpace(strings.Trim(deviceID, "/"))
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, errors.New("device id required"))
		return
	}

	number, err := a.allocator.Allocate(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice_number": number})
}

func (a *API) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
		if storeID == "" {
			storeID = a.defaultStoreID
		}
		productID := strings.TrimSpace(r.URL.Query().Get("product_id"))
		activeOnly := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("active_only")), "true")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 500)

		batches, err := a.repo.ListBatches(r.Context(), storeID, productID, activeOnly, limit)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
	case http.MethodPost:
		var req domain.BatchReceiveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.StoreID == "" {
			req.StoreID = a.defaultStoreID
		}

		batch, err := a.repo.CreateBatch(r.Context(), domain.InventoryBatch{
			StoreID:        req.StoreID,
			ProductID:      strings.TrimSpace(req.ProductID),
			LotCode:        strings.TrimSpace(req.LotCode),
			Quantity:       req.Quantity,
			UnitPriceCents: req.UnitPriceCents,
			Notes:          strings.TrimSpace(req.Notes),
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}

		if _, err := a.projector.Recompute(r.Context(), batch.StoreID, batch.ProductID); err != nil {
			log.Printf("[httpapi] WARN: summary recompute failed store=%s product=%s: %v", batch.StoreID, batch.ProductID, err)
		}

		writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReconciliationRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var scope domain.ReconcileScope
	if err := decodeJSON(r, &scope); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.engine.Sweep(r.Context(), scope)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleReconciliationLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	productID := strings.TrimSpace(r.URL.Query().Get("product_id"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	entries, err := a.repo.ListReconciliationLog(r.Context(), productID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	entries, err := a.repo.ListTracking(r.Context(), storeID, status, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeStoreError maps store sentinels to HTTP statuses the terminals expect.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrSeriesExhausted), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses get a generic message so internals never leak; 4xx are
	// user-facing and keep the original error text.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
