package domain

import "time"

const (
	BatchStatusActive   = "active"
	BatchStatusInactive = "inactive"
)

const (
	TrackingStatusPending    = "pending"
	TrackingStatusReconciled = "reconciled"
	TrackingStatusError      = "error"
)

const (
	LogActionDeduct  = "deduct"
	LogActionPartial = "partial"
	LogActionError   = "error"
)

const MessageNoInventory = "no-inventory"

// InventoryBatch is one received lot of a product. Batches are append-only:
// restocks create new batches, and a drained batch goes inactive and is never
// resurrected.
type InventoryBatch struct {
	ID             string    `json:"id"`
	StoreID        string    `json:"store_id"`
	ProductID      string    `json:"product_id"`
	LotCode        string    `json:"lot_code,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// BatchDeduction is one planned (or applied) draw against a batch. The FIFO
// planner emits these and the reconciliation log records them.
type BatchDeduction struct {
	BatchID  string `json:"batch_id"`
	Quantity int    `json:"quantity"`
}

// ProductSummary is a derived projection: recomputable from the batch ledger
// at any time and owned exclusively by the projector.
type ProductSummary struct {
	ProductID         string    `json:"product_id"`
	StoreID           string    `json:"store_id"`
	TotalStock        int       `json:"total_stock"`
	SellingPriceCents int64     `json:"selling_price_cents"`
	LastUpdated       time.Time `json:"last_updated"`
}

// SaleTrackingEntry is one line item of one sale, the unit of reconciliation
// work. pending -> reconciled | error; terminal states are never reprocessed.
type SaleTrackingEntry struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	StoreID      string     `json:"store_id"`
	OrderID      string     `json:"order_id"`
	ProductID    string     `json:"product_id"`
	Quantity     int        `json:"quantity"`
	Status       string     `json:"status"`
	Remaining    int        `json:"remaining,omitempty"`
	Message      string     `json:"message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
}

// ReconciliationLogEntry is the write-once audit record for one processed
// tracking entry (or one legacy-mode deduction).
type ReconciliationLogEntry struct {
	ID                string           `json:"id"`
	TrackingID        string           `json:"tracking_id,omitempty"`
	StoreID           string           `json:"store_id"`
	ProductID         string           `json:"product_id"`
	QuantityProcessed int              `json:"quantity_processed"`
	BatchesUsed       []BatchDeduction `json:"batches_used"`
	Action            string           `json:"action"`
	Message           string           `json:"message,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// InvoiceSeries is the bounded invoice-number range assigned to one device.
// Invariant: Start <= Current <= End. Current is the last number handed out;
// Current == End means the series is exhausted.
type InvoiceSeries struct {
	DeviceID string `json:"device_id"`
	Prefix   string `json:"prefix"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Current  int64  `json:"current"`
}

// SaleContext identifies the sale an incoming line set belongs to. OrderID is
// the idempotency anchor: retries with the same OrderID must not double-count.
type SaleContext struct {
	CompanyID string `json:"company_id"`
	StoreID   string `json:"store_id"`
	OrderID   string `json:"order_id"`
	CashierID string `json:"cashier_id"`
	DeviceID  string `json:"device_id"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SaleLineError struct {
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

type SaleResult struct {
	Success       bool            `json:"success"`
	OrderID       string          `json:"order_id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Errors        []SaleLineError `json:"errors,omitempty"`
}

// ReconcileScope bounds an engine invocation. On-demand callers must set at
// least one of CompanyID/StoreID; only the scheduler sweeps unscoped.
type ReconcileScope struct {
	CompanyID string `json:"company_id,omitempty"`
	StoreID   string `json:"store_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type SweepResult struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
}

type BatchReceiveRequest struct {
	StoreID        string `json:"store_id"`
	ProductID      string `json:"product_id"`
	LotCode        string `json:"lot_code"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Notes          string `json:"notes"`
}

type InvoiceSeriesCreateRequest struct {
	DeviceID string `json:"device_id"`
	Prefix   string `json:"prefix"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// OfflineSale is one queued sale captured while a terminal was disconnected.
// ClientSaleID doubles as the OrderID so server-side idempotency absorbs
// duplicate replays.
type OfflineSale struct {
	ClientSaleID string      `json:"client_sale_id"`
	Context      SaleContext `json:"context"`
	Lines        []SaleLine  `json:"lines"`
}

type OfflineSyncRequest struct {
	EnvelopeID string        `json:"envelope_id"`
	Sales      []OfflineSale `json:"sales"`
}

type OfflineSyncStatus struct {
	ClientSaleID  string `json:"client_sale_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
}

type OfflineSyncResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Statuses   []OfflineSyncStatus `json:"statuses"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
