package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleStatusCompleted = "COMPLETED"
	SaleStatusVoided    = "VOIDED"
	SaleStatusRefunded  = "REFUNDED"
)

const (
	MovementSale       = "SALE"
	MovementAdjustment = "ADJUSTMENT"
	MovementPurchase   = "PURCHASE"
	MovementInitial    = "INITIAL"
)

const (
	PaymentCash     = "CASH"
	PaymentCard     = "CARD"
	PaymentQRIS     = "QRIS"
	PaymentEWallet  = "EWALLET"
	PaymentTransfer = "TRANSFER"
)

const (
	AuditSaleRecord      = "SALE_RECORD"
	AuditSaleVoid        = "SALE_VOID"
	AuditSaleRefund      = "SALE_REFUND"
	AuditLowStockTrigger = "LOW_STOCK_TRIGGER"
	AuditStockAdjust     = "STOCK_ADJUST"
	AuditShiftOpen       = "SHIFT_OPEN"
	AuditShiftClose      = "SHIFT_CLOSE"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Product is the read-only catalogue view the ledger needs.
type Product struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	MinStock int             `json:"min_stock"`
	Taxable  bool            `json:"taxable"`
	Active   bool            `json:"active"`
}

type Shift struct {
	ID        string     `json:"id"`
	OutletID  string     `json:"outlet_id"`
	CashierID string     `json:"cashier_id"`
	Status    string     `json:"status"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type Sale struct {
	ID             string          `json:"id"`
	ReceiptNumber  string          `json:"receipt_number"`
	OutletID       string          `json:"outlet_id"`
	CashierID      string          `json:"cashier_id"`
	ShiftID        string          `json:"shift_id"`
	TotalGross     decimal.Decimal `json:"total_gross"`
	TotalDiscount  decimal.Decimal `json:"total_discount"`
	ManualDiscount decimal.Decimal `json:"manual_discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalNet       decimal.Decimal `json:"total_net"`
	Status         string          `json:"status"`
	SoldAt         time.Time       `json:"sold_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []SaleLineItem  `json:"items"`
	Payments       []Payment       `json:"payments"`
}

type SaleLineItem struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type Payment struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

type InventoryRecord struct {
	ID        string              `json:"id"`
	ProductID string              `json:"product_id"`
	OutletID  string              `json:"outlet_id"`
	Quantity  int                 `json:"quantity"`
	CostPrice decimal.NullDecimal `json:"cost_price"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type StockMovement struct {
	ID              string    `json:"id"`
	InventoryID     string    `json:"inventory_id"`
	ProductID       string    `json:"product_id"`
	OutletID        string    `json:"outlet_id"`
	Delta           int       `json:"delta"`
	Type            string    `json:"type"`
	Note            string    `json:"note"`
	ActorID         string    `json:"actor_id"`
	RelatedSaleID   string    `json:"related_sale_id,omitempty"`
	RelatedRefundID string    `json:"related_refund_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type LowStockAlert struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	OutletID    string     `json:"outlet_id"`
	AlertDay    time.Time  `json:"alert_day"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty"`
	Note        string     `json:"note"`
}

func (a LowStockAlert) Open() bool {
	return a.ClearedAt == nil
}

type Refund struct {
	ID         string           `json:"id"`
	SaleID     string           `json:"sale_id"`
	Amount     decimal.Decimal  `json:"amount"`
	Reason     string           `json:"reason"`
	ApprovedBy string           `json:"approved_by"`
	CreatedAt  time.Time        `json:"created_at"`
	Items      []RefundLineItem `json:"items"`
}

type RefundLineItem struct {
	ID             string `json:"id"`
	RefundID       string `json:"refund_id"`
	SaleLineItemID string `json:"sale_line_item_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
}

type AuditLog struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id"`
	OutletID   string         `json:"outlet_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

type SaleFilter struct {
	OutletID string
	Status   string
	From     time.Time
	To       time.Time
}

type MovementFilter struct {
	ProductID string
	OutletID  string
	Limit     int
}

type AlertFilter struct {
	OutletID string
	OpenOnly bool
	Limit    int
}

type AuditFilter struct {
	OutletID string
	Action   string
	From     time.Time
	To       time.Time
	Limit    int
}
