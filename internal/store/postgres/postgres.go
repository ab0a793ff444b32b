package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/fifo"
	"stokraja/backend/internal/store"
	"stokraja/backend/internal/xid"
)

// serializableAttempts bounds the optimistic retry loop: a transaction that
// loses a serialization race is replayed from scratch rather than surfacing
// the conflict to the caller.
const serializableAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withSerializable runs fn inside a serializable transaction and replays it
// on serialization failures (SQLSTATE 40001/40P01). Store sentinel errors
// abort immediately; only conflicts are retried.
func (s *Store) withSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < serializableAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}

		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
		} else {
			_ = tx.Rollback()
		}

		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return errors.Join(store.ErrConflict, lastErr)
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if batch.StoreID == "" || batch.ProductID == "" || batch.Quantity < 1 || batch.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.Status == "" {
		batch.Status = domain.BatchStatusActive
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_batches (
			id, store_id, product_id, lot_code, quantity, unit_price_cents,
			status, notes, received_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, batch.ID, batch.StoreID, batch.ProductID, nullIfEmpty(batch.LotCode), batch.Quantity,
		batch.UnitPriceCents, batch.Status, nullIfEmpty(batch.Notes), batch.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := batch
	return &created, nil
}

func (s *Store) ListBatches(ctx context.Context, storeID string, productID string, activeOnly bool, limit int) ([]domain.InventoryBatch, error) {
	if limit < 1 {
		limit = 500
	}

	query := `
		SELECT id, store_id, product_id, COALESCE(lot_code,''), quantity,
			unit_price_cents, status, COALESCE(notes,''), received_at
		FROM inventory_batches
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR product_id = $2)
	`
	if activeOnly {
		query += ` AND status = 'active' AND quantity > 0`
	}
	query += `
		ORDER BY received_at ASC, id ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, storeID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows)
}

func scanBatches(rows *sql.Rows) ([]domain.InventoryBatch, error) {
	batches := make([]domain.InventoryBatch, 0, 16)
	for rows.Next() {
		var b domain.InventoryBatch
		if err := rows.Scan(&b.ID, &b.StoreID, &b.ProductID, &b.LotCode, &b.Quantity,
			&b.UnitPriceCents, &b.Status, &b.Notes, &b.ReceivedAt); err != nil {
			return nil, err
		}
		b.ReceivedAt = b.ReceivedAt.UTC()
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// lockActiveBatches reads the product's consumable batches FOR UPDATE inside
// the caller's transaction, already in FIFO order.
func lockActiveBatches(ctx context.Context, tx *sql.Tx, storeID string, productID string) ([]domain.InventoryBatch, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, store_id, product_id, COALESCE(lot_code,''), quantity,
			unit_price_cents, status, COALESCE(notes,''), received_at
		FROM inventory_batches
		WHERE store_id = $1 AND product_id = $2 AND status = 'active' AND quantity > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE
	`, storeID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows)
}

func applyDeductions(ctx context.Context, tx *sql.Tx, deductions []domain.BatchDeduction) error {
	for _, d := range deductions {
		_, err := tx.ExecContext(ctx, `
			UPDATE inventory_batches
			SET quantity = quantity - $1,
				status = CASE WHEN quantity - $1 <= 0 THEN 'inactive' ELSE status END,
				updated_at = now()
			WHERE id = $2
		`, d.Quantity, d.BatchID)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertReconciliationLog(ctx context.Context, tx *sql.Tx, entry domain.ReconciliationLogEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("rlog")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.BatchesUsed == nil {
		entry.BatchesUsed = []domain.BatchDeduction{}
	}
	batchesJSON, err := json.Marshal(entry.BatchesUsed)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reconciliation_log (
			id, tracking_id, store_id, product_id, quantity_processed,
			batches_used, action, message, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, nullIfEmpty(entry.TrackingID), entry.StoreID, entry.ProductID,
		entry.QuantityProcessed, batchesJSON, entry.Action, nullIfEmpty(entry.Message), entry.CreatedAt)
	return err
}

func (s *Store) DeductForSale(ctx context.Context, storeID string, productID string, quantity int) ([]domain.BatchDeduction, error) {
	if storeID == "" || productID == "" || quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	var applied []domain.BatchDeduction
	err := s.withSerializable(ctx, func(tx *sql.Tx) error {
		batches, err := lockActiveBatches(ctx, tx, storeID, productID)
		if err != nil {
			return err
		}

		plan := fifo.Compute(batches, quantity)
		if plan.Shortfall > 0 {
			return store.ErrInsufficientStock
		}
		if err := applyDeductions(ctx, tx, plan.Deductions); err != nil {
			return err
		}
		if err := insertReconciliationLog(ctx, tx, domain.ReconciliationLogEntry{
			StoreID:           storeID,
			ProductID:         productID,
			QuantityProcessed: quantity,
			BatchesUsed:       plan.Deductions,
			Action:            domain.LogActionDeduct,
		}); err != nil {
			return err
		}

		applied = plan.Deductions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Store) CreateTrackingEntry(ctx context.Context, entry domain.SaleTrackingEntry) (*domain.SaleTrackingEntry, bool, error) {
	if entry.OrderID == "" || entry.ProductID == "" || entry.StoreID == "" {
		return nil, false, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_tracking_entries (
			id, company_id, store_id, order_id, product_id, quantity,
			status, remaining, message, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.CompanyID, entry.StoreID, entry.OrderID, entry.ProductID,
		entry.Quantity, entry.Status, entry.Remaining, nullIfEmpty(entry.Message), entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findTrackingByOrderLine(ctx, entry.OrderID, entry.ProductID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	created := entry
	return &created, true, nil
}

func (s *Store) findTrackingByOrderLine(ctx context.Context, orderID string, productID string) (*domain.SaleTrackingEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, store_id, order_id, product_id, quantity,
			status, remaining, COALESCE(message,''), created_at, reconciled_at
		FROM sale_tracking_entries
		WHERE order_id = $1 AND product_id = $2
	`, orderID, productID)
	return scanTrackingRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrackingRow(row rowScanner) (*domain.SaleTrackingEntry, error) {
	var entry domain.SaleTrackingEntry
	var reconciledAt sql.NullTime
	err := row.Scan(&entry.ID, &entry.CompanyID, &entry.StoreID, &entry.OrderID,
		&entry.ProductID, &entry.Quantity, &entry.Status, &entry.Remaining,
		&entry.Message, &entry.CreatedAt, &reconciledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if reconciledAt.Valid {
		at := reconciledAt.Time.UTC()
		entry.ReconciledAt = &at
	}
	return &entry, nil
}

func (s *Store) GetTrackingEntry(ctx context.Context, id string) (*domain.SaleTrackingEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, store_id, order_id, product_id, quantity,
			status, remaining, COALESCE(message,''), created_at, reconciled_at
		FROM sale_tracking_entries
		WHERE id = $1
	`, id)
	return scanTrackingRow(row)
}

func (s *Store) ListPendingTracking(ctx context.Context, companyID string, storeID string, limit int) ([]domain.SaleTrackingEntry, error) {
	if limit < 1 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, store_id, order_id, product_id, quantity,
			status, remaining, COALESCE(message,''), created_at, reconciled_at
		FROM sale_tracking_entries
		WHERE status = 'pending'
			AND ($1 = '' OR company_id = $1)
			AND ($2 = '' OR store_id = $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, companyID, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrackingRows(rows)
}

func (s *Store) ListTracking(ctx context.Context, storeID string, status string, limit int) ([]domain.SaleTrackingEntry, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, store_id, order_id, product_id, quantity,
			status, remaining, COALESCE(message,''), created_at, reconciled_at
		FROM sale_tracking_entries
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrackingRows(rows)
}

func scanTrackingRows(rows *sql.Rows) ([]domain.SaleTrackingEntry, error) {
	entries := make([]domain.SaleTrackingEntry, 0, 32)
	for rows.Next() {
		entry, err := scanTrackingRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ReconcileEntry(ctx context.Context, id string) (*store.ReconcileOutcome, error) {
	var outcome *store.ReconcileOutcome
	err := s.withSerializable(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, company_id, store_id, order_id, product_id, quantity,
				status, remaining, COALESCE(message,''), created_at, reconciled_at
			FROM sale_tracking_entries
			WHERE id = $1
			FOR UPDATE
		`, id)
		entry, err := scanTrackingRow(row)
		if err != nil {
			return err
		}

		// A previous or concurrent run settled this entry already.
		if entry.Status != domain.TrackingStatusPending {
			outcome = &store.ReconcileOutcome{Entry: *entry, Skipped: true}
			return nil
		}

		now := time.Now().UTC()

		if entry.Quantity <= 0 {
			if err := settleTracking(ctx, tx, entry.ID, domain.TrackingStatusReconciled, 0, "", now); err != nil {
				return err
			}
			entry.Status = domain.TrackingStatusReconciled
			entry.ReconciledAt = &now
			outcome = &store.ReconcileOutcome{Entry: *entry}
			return nil
		}

		batches, err := lockActiveBatches(ctx, tx, entry.StoreID, entry.ProductID)
		if err != nil {
			return err
		}

		logEntry := domain.ReconciliationLogEntry{
			TrackingID: entry.ID,
			StoreID:    entry.StoreID,
			ProductID:  entry.ProductID,
			CreatedAt:  now,
		}

		if len(batches) == 0 {
			if err := settleTracking(ctx, tx, entry.ID, domain.TrackingStatusError, entry.Quantity, domain.MessageNoInventory, now); err != nil {
				return err
			}
			entry.Status = domain.TrackingStatusError
			entry.Remaining = entry.Quantity
			entry.Message = domain.MessageNoInventory
			entry.ReconciledAt = &now
			logEntry.Action = domain.LogActionError
			logEntry.Message = domain.MessageNoInventory
		} else {
			plan := fifo.Compute(batches, entry.Quantity)
			if err := applyDeductions(ctx, tx, plan.Deductions); err != nil {
				return err
			}
			logEntry.QuantityProcessed = plan.Processed()
			logEntry.BatchesUsed = plan.Deductions
			entry.ReconciledAt = &now
			if plan.Shortfall == 0 {
				if err := settleTracking(ctx, tx, entry.ID, domain.TrackingStatusReconciled, 0, "", now); err != nil {
					return err
				}
				entry.Status = domain.TrackingStatusReconciled
				entry.Remaining = 0
				logEntry.Action = domain.LogActionDeduct
			} else {
				if err := settleTracking(ctx, tx, entry.ID, domain.TrackingStatusError, plan.Shortfall, "partial", now); err != nil {
					return err
				}
				entry.Status = domain.TrackingStatusError
				entry.Remaining = plan.Shortfall
				entry.Message = "partial"
				logEntry.Action = domain.LogActionPartial
				logEntry.Message = "partial"
			}
		}

		if err := insertReconciliationLog(ctx, tx, logEntry); err != nil {
			return err
		}
		outcome = &store.ReconcileOutcome{Entry: *entry, Log: &logEntry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func settleTracking(ctx context.Context, tx *sql.Tx, id string, status string, remaining int, message string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sale_tracking_entries
		SET status = $2, remaining = $3, message = $4, reconciled_at = $5
		WHERE id = $1
	`, id, status, remaining, nullIfEmpty(message), at)
	return err
}

func (s *Store) MarkTrackingError(ctx context.Context, id string, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_tracking_entries
		SET status = 'error', message = $2, reconciled_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, message)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Entry missing or already settled; either way there is nothing to do.
		return nil
	}
	return nil
}

func (s *Store) ListReconciliationLog(ctx context.Context, productID string, limit int) ([]domain.ReconciliationLogEntry, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(tracking_id,''), store_id, product_id,
			quantity_processed, batches_used, action, COALESCE(message,''), created_at
		FROM reconciliation_log
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ReconciliationLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.ReconciliationLogEntry
		var batchesJSON []byte
		if err := rows.Scan(&entry.ID, &entry.TrackingID, &entry.StoreID, &entry.ProductID,
			&entry.QuantityProcessed, &batchesJSON, &entry.Action, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		if err := json.Unmarshal(batchesJSON, &entry.BatchesUsed); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetProductSummary(ctx context.Context, storeID string, productID string) (*domain.ProductSummary, error) {
	var summary domain.ProductSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, store_id, total_stock, selling_price_cents, last_updated
		FROM product_summaries
		WHERE store_id = $1 AND product_id = $2
	`, storeID, productID).Scan(&summary.ProductID, &summary.StoreID, &summary.TotalStock,
		&summary.SellingPriceCents, &summary.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	summary.LastUpdated = summary.LastUpdated.UTC()
	return &summary, nil
}

func (s *Store) SaveProductSummary(ctx context.Context, summary domain.ProductSummary) error {
	if summary.StoreID == "" || summary.ProductID == "" {
		return store.ErrInvalidInput
	}
	if summary.LastUpdated.IsZero() {
		summary.LastUpdated = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_summaries (store_id, product_id, total_stock, selling_price_cents, last_updated)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (store_id, product_id)
		DO UPDATE SET total_stock = EXCLUDED.total_stock,
			selling_price_cents = EXCLUDED.selling_price_cents,
			last_updated = EXCLUDED.last_updated
	`, summary.StoreID, summary.ProductID, summary.TotalStock, summary.SellingPriceCents, summary.LastUpdated)
	return err
}

func (s *Store) CreateInvoiceSeries(ctx context.Context, series domain.InvoiceSeries) (*domain.InvoiceSeries, error) {
	if series.DeviceID == "" || series.Start < 1 || series.End < series.Start {
		return nil, store.ErrInvalidInput
	}
	if series.Current == 0 {
		series.Current = series.Start - 1
	}
	if series.Current < series.Start-1 || series.Current > series.End {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_series (device_id, prefix, range_start, range_end, current, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, series.DeviceID, series.Prefix, series.Start, series.End, series.Current)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := series
	return &created, nil
}

func (s *Store) GetInvoiceSeries(ctx context.Context, deviceID string) (*domain.InvoiceSeries, error) {
	var series domain.InvoiceSeries
	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, prefix, range_start, range_end, current
		FROM invoice_series
		WHERE device_id = $1
	`, deviceID).Scan(&series.DeviceID, &series.Prefix, &series.Start, &series.End, &series.Current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &series, nil
}

func (s *Store) AllocateInvoiceNumber(ctx context.Context, deviceID string) (string, error) {
	var number string
	err := s.withSerializable(ctx, func(tx *sql.Tx) error {
		var series domain.InvoiceSeries
		err := tx.QueryRowContext(ctx, `
			SELECT device_id, prefix, range_start, range_end, current
			FROM invoice_series
			WHERE device_id = $1
			FOR UPDATE
		`, deviceID).Scan(&series.DeviceID, &series.Prefix, &series.Start, &series.End, &series.Current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if series.Current+1 > series.End {
			return store.ErrSeriesExhausted
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE invoice_series
			SET current = current + 1, updated_at = now()
			WHERE device_id = $1
		`, deviceID)
		if err != nil {
			return err
		}

		number = store.FormatInvoiceNumber(series.Prefix, series.Current+1)
		return nil
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
