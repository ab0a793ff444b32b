package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/fifo"
	"stokraja/backend/internal/store"
	"stokraja/backend/internal/xid"
)

// Store is the in-memory repository used by tests and DB-less dev mode. The
// single mutex stands in for the per-product transactions the postgres store
// runs; every composite method mutates under one critical section so the same
// atomicity guarantees hold.
type Store struct {
	mu              sync.RWMutex
	batchesByID     map[string]*domain.InventoryBatch
	trackingByID    map[string]*domain.SaleTrackingEntry
	trackingByKey   map[string]string // orderID|productID -> tracking id
	reconciliations []domain.ReconciliationLogEntry
	summaries       map[string]domain.ProductSummary // storeID|productID
	seriesByDevice  map[string]*domain.InvoiceSeries
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		batchesByID:     make(map[string]*domain.InventoryBatch),
		trackingByID:    make(map[string]*domain.SaleTrackingEntry),
		trackingByKey:   make(map[string]string),
		reconciliations: make([]domain.ReconciliationLogEntry, 0, 128),
		summaries:       make(map[string]domain.ProductSummary),
		seriesByDevice:  make(map[string]*domain.InvoiceSeries),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_TERMINAL_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These are never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	terminalPwd := envOr("SEED_TERMINAL_PASSWORD", "terminal123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_TERMINAL_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_TERMINAL_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"terminal", terminalPwd, "terminal"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	batches := []domain.InventoryBatch{
		{ID: "batch-mie-1", StoreID: "main-store", ProductID: "PRD-MIE-01", LotCode: "LOT-MIE-A", Quantity: 80, UnitPriceCents: 3500, Status: domain.BatchStatusActive, ReceivedAt: now.Add(-72 * time.Hour)},
		{ID: "batch-mie-2", StoreID: "main-store", ProductID: "PRD-MIE-01", LotCode: "LOT-MIE-B", Quantity: 120, UnitPriceCents: 3600, Status: domain.BatchStatusActive, ReceivedAt: now.Add(-24 * time.Hour)},
		{ID: "batch-kopi-1", StoreID: "main-store", ProductID: "PRD-KOPI-01", LotCode: "LOT-KOPI-A", Quantity: 60, UnitPriceCents: 2600, Status: domain.BatchStatusActive, ReceivedAt: now.Add(-48 * time.Hour)},
		{ID: "batch-gula-1", StoreID: "main-store", ProductID: "PRD-GULA-01", LotCode: "LOT-GULA-A", Quantity: 40, UnitPriceCents: 17400, Status: domain.BatchStatusActive, ReceivedAt: now.Add(-96 * time.Hour)},
	}
	for i := range batches {
		b := batches[i]
		s.batchesByID[b.ID] = &b
	}

	s.seriesByDevice["terminal-a1"] = &domain.InvoiceSeries{
		DeviceID: "terminal-a1",
		Prefix:   "INV-A1-",
		Start:    1,
		End:      999999,
		Current:  0,
	}

	return s
}

func summaryKey(storeID string, productID string) string {
	return storeID + "|" + productID
}

func trackingKey(orderID string, productID string) string {
	return orderID + "|" + productID
}

func (s *Store) CreateBatch(_ context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if strings.TrimSpace(batch.StoreID) == "" || strings.TrimSpace(batch.ProductID) == "" || batch.Quantity < 1 || batch.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if _, exists := s.batchesByID[batch.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if batch.Status == "" {
		batch.Status = domain.BatchStatusActive
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	stored := batch
	s.batchesByID[stored.ID] = &stored
	created := stored
	return &created, nil
}

func (s *Store) ListBatches(_ context.Context, storeID string, productID string, activeOnly bool, limit int) ([]domain.InventoryBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBatchesLocked(storeID, productID, activeOnly, limit), nil
}

func (s *Store) listBatchesLocked(storeID string, productID string, activeOnly bool, limit int) []domain.InventoryBatch {
	if limit < 1 {
		limit = 500
	}

	batches := make([]domain.InventoryBatch, 0, 16)
	for _, b := range s.batchesByID {
		if storeID != "" && b.StoreID != storeID {
			continue
		}
		if productID != "" && b.ProductID != productID {
			continue
		}
		if activeOnly && (b.Status != domain.BatchStatusActive || b.Quantity < 1) {
			continue
		}
		batches = append(batches, *b)
	}
	fifo.Sort(batches)
	if len(batches) > limit {
		batches = batches[:limit]
	}
	return batches
}

// applyDeductionsLocked decrements the planned batches and flips drained
// batches inactive. Caller holds the write lock.
func (s *Store) applyDeductionsLocked(deductions []domain.BatchDeduction) {
	for _, d := range deductions {
		batch, exists := s.batchesByID[d.BatchID]
		if !exists {
			continue
		}
		batch.Quantity -= d.Quantity
		if batch.Quantity <= 0 {
			batch.Quantity = 0
			batch.Status = domain.BatchStatusInactive
		}
	}
}

func (s *Store) DeductForSale(_ context.Context, storeID string, productID string, quantity int) ([]domain.BatchDeduction, error) {
	if storeID == "" || productID == "" || quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batches := s.listBatchesLocked(storeID, productID, true, 0)
	plan := fifo.Compute(batches, quantity)
	if plan.Shortfall > 0 {
		return nil, store.ErrInsufficientStock
	}

	s.applyDeductionsLocked(plan.Deductions)
	s.reconciliations = append(s.reconciliations, domain.ReconciliationLogEntry{
		ID:                xid.New("rlog"),
		StoreID:           storeID,
		ProductID:         productID,
		QuantityProcessed: quantity,
		BatchesUsed:       plan.Deductions,
		Action:            domain.LogActionDeduct,
		CreatedAt:         time.Now().UTC(),
	})

	return plan.Deductions, nil
}

func (s *Store) CreateTrackingEntry(_ context.Context, entry domain.SaleTrackingEntry) (*domain.SaleTrackingEntry, bool, error) {
	if entry.OrderID == "" || entry.ProductID == "" || entry.StoreID == "" {
		return nil, false, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := trackingKey(entry.OrderID, entry.ProductID)
	if existingID, exists := s.trackingByKey[key]; exists {
		existing := *s.trackingByID[existingID]
		return &existing, false, nil
	}

	if entry.ID == "" {
		entry.ID = xid.New("trk")
	}
	if entry.Status == "" {
		entry.Status = domain.TrackingStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	stored := entry
	s.trackingByID[stored.ID] = &stored
	s.trackingByKey[key] = stored.ID
	created := stored
	return &created, true, nil
}

func (s *Store) GetTrackingEntry(_ context.Context, id string) (*domain.SaleTrackingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.trackingByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := *entry
	return &found, nil
}

func (s *Store) ListPendingTracking(_ context.Context, companyID string, storeID string, limit int) ([]domain.SaleTrackingEntry, error) {
	if limit < 1 {
		limit = 500
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.SaleTrackingEntry, 0, 32)
	for _, e := range s.trackingByID {
		if e.Status != domain.TrackingStatusPending {
			continue
		}
		if companyID != "" && e.CompanyID != companyID {
			continue
		}
		if storeID != "" && e.StoreID != storeID {
			continue
		}
		entries = append(entries, *e)
	}
	sortTrackingByCreatedAt(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) ListTracking(_ context.Context, storeID string, status string, limit int) ([]domain.SaleTrackingEntry, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.SaleTrackingEntry, 0, 32)
	for _, e := range s.trackingByID {
		if storeID != "" && e.StoreID != storeID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		entries = append(entries, *e)
	}
	sortTrackingByCreatedAt(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func sortTrackingByCreatedAt(entries []domain.SaleTrackingEntry) {
	slices.SortFunc(entries, func(a, b domain.SaleTrackingEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func (s *Store) ReconcileEntry(_ context.Context, id string) (*store.ReconcileOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.trackingByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if entry.Status != domain.TrackingStatusPending {
		settled := *entry
		return &store.ReconcileOutcome{Entry: settled, Skipped: true}, nil
	}

	now := time.Now().UTC()

	if entry.Quantity <= 0 {
		entry.Status = domain.TrackingStatusReconciled
		entry.ReconciledAt = &now
		settled := *entry
		return &store.ReconcileOutcome{Entry: settled}, nil
	}

	batches := s.listBatchesLocked(entry.StoreID, entry.ProductID, true, 0)

	logEntry := domain.ReconciliationLogEntry{
		ID:         xid.New("rlog"),
		TrackingID: entry.ID,
		StoreID:    entry.StoreID,
		ProductID:  entry.ProductID,
		CreatedAt:  now,
	}

	if len(batches) == 0 {
		entry.Status = domain.TrackingStatusError
		entry.Remaining = entry.Quantity
		entry.Message = domain.MessageNoInventory
		entry.ReconciledAt = &now
		logEntry.BatchesUsed = []domain.BatchDeduction{}
		logEntry.Action = domain.LogActionError
		logEntry.Message = domain.MessageNoInventory
	} else {
		plan := fifo.Compute(batches, entry.Quantity)
		s.applyDeductionsLocked(plan.Deductions)

		processed := plan.Processed()
		logEntry.QuantityProcessed = processed
		logEntry.BatchesUsed = plan.Deductions
		entry.ReconciledAt = &now
		if plan.Shortfall == 0 {
			entry.Status = domain.TrackingStatusReconciled
			entry.Remaining = 0
			logEntry.Action = domain.LogActionDeduct
		} else {
			entry.Status = domain.TrackingStatusError
			entry.Remaining = plan.Shortfall
			entry.Message = "partial"
			logEntry.Action = domain.LogActionPartial
			logEntry.Message = "partial"
		}
	}

	s.reconciliations = append(s.reconciliations, logEntry)
	settled := *entry
	logCopy := logEntry
	return &store.ReconcileOutcome{Entry: settled, Log: &logCopy}, nil
}

func (s *Store) MarkTrackingError(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.trackingByID[id]
	if !exists {
		return store.ErrNotFound
	}
	if entry.Status != domain.TrackingStatusPending {
		return nil
	}
	now := time.Now().UTC()
	entry.Status = domain.TrackingStatusError
	entry.Message = message
	entry.ReconciledAt = &now
	return nil
}

func (s *Store) ListReconciliationLog(_ context.Context, productID string, limit int) ([]domain.ReconciliationLogEntry, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.ReconciliationLogEntry, 0, limit)
	for i := len(s.reconciliations) - 1; i >= 0 && len(entries) < limit; i-- {
		e := s.reconciliations[i]
		if productID != "" && e.ProductID != productID {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) GetProductSummary(_ context.Context, storeID string, productID string) (*domain.ProductSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, exists := s.summaries[summaryKey(storeID, productID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := summary
	return &found, nil
}

func (s *Store) SaveProductSummary(_ context.Context, summary domain.ProductSummary) error {
	if summary.StoreID == "" || summary.ProductID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if summary.LastUpdated.IsZero() {
		summary.LastUpdated = time.Now().UTC()
	}
	s.summaries[summaryKey(summary.StoreID, summary.ProductID)] = summary
	return nil
}

func (s *Store) CreateInvoiceSeries(_ context.Context, series domain.InvoiceSeries) (*domain.InvoiceSeries, error) {
	if series.DeviceID == "" || series.Start < 1 || series.End < series.Start {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seriesByDevice[series.DeviceID]; exists {
		return nil, store.ErrInvalidInput
	}
	// A fresh series has handed out nothing yet: Current sits one below
	// Start so the first allocation returns Start itself.
	if series.Current == 0 {
		series.Current = series.Start - 1
	}
	if series.Current < series.Start-1 || series.Current > series.End {
		return nil, store.ErrInvalidInput
	}

	stored := series
	s.seriesByDevice[stored.DeviceID] = &stored
	created := stored
	return &created, nil
}

func (s *Store) GetInvoiceSeries(_ context.Context, deviceID string) (*domain.InvoiceSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, exists := s.seriesByDevice[deviceID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := *series
	return &found, nil
}

func (s *Store) AllocateInvoiceNumber(_ context.Context, deviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, exists := s.seriesByDevice[deviceID]
	if !exists {
		return "", store.ErrNotFound
	}
	if series.Current+1 > series.End {
		return "", store.ErrSeriesExhausted
	}
	series.Current++
	return store.FormatInvoiceNumber(series.Prefix, series.Current), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
