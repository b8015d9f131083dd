package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleItemInput struct {
	ProductID    string           `json:"product_id"`
	Quantity     int              `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	LineDiscount decimal.Decimal  `json:"line_discount"`
}

type PaymentInput struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

type SaleRequest struct {
	OutletID       string           `json:"outlet_id"`
	CashierID      string           `json:"cashier_id"`
	ShiftID        string           `json:"shift_id"`
	ReceiptNumber  string           `json:"receipt_number"`
	Items          []SaleItemInput  `json:"items"`
	ManualDiscount decimal.Decimal  `json:"manual_discount"`
	Payments       []PaymentInput   `json:"payments"`
	TaxRatePercent *decimal.Decimal `json:"tax_rate_percent,omitempty"`
}

// LowStockOutcome reports what the evaluator did for one (product, outlet) pair.
type LowStockOutcome struct {
	ProductID string `json:"product_id"`
	OutletID  string `json:"outlet_id"`
	Result    string `json:"result"`
	AlertID   string `json:"alert_id,omitempty"`
}

type SaleSummary struct {
	SaleID        string            `json:"sale_id"`
	ReceiptNumber string            `json:"receipt_number"`
	Status        string            `json:"status"`
	TotalNet      decimal.Decimal   `json:"total_net"`
	TaxAmount     decimal.Decimal   `json:"tax_amount"`
	SoldAt        time.Time         `json:"sold_at"`
	LowStock      []LowStockOutcome `json:"low_stock,omitempty"`
}

type VoidRequest struct {
	SaleID     string `json:"sale_id"`
	Reason     string `json:"reason"`
	ActorID    string `json:"actor_id"`
	ManagerPIN string `json:"manager_pin,omitempty"`
}

type VoidResponse struct {
	SaleID       string            `json:"sale_id"`
	Status       string            `json:"status"`
	RestockedQty int               `json:"restocked_qty"`
	VoidedAt     time.Time         `json:"voided_at"`
	LowStock     []LowStockOutcome `json:"low_stock,omitempty"`
}

type RefundRequest struct {
	SaleID     string           `json:"sale_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Reason     string           `json:"reason"`
	ActorID    string           `json:"actor_id"`
	ApprovedBy string           `json:"approved_by"`
	ManagerPIN string           `json:"manager_pin,omitempty"`
}

type RefundResponse struct {
	Refund       Refund            `json:"refund"`
	Status       string            `json:"status"`
	RestockedQty int               `json:"restocked_qty"`
	LowStock     []LowStockOutcome `json:"low_stock,omitempty"`
}

type StockAdjustRequest struct {
	ProductID string           `json:"product_id"`
	OutletID  string           `json:"outlet_id"`
	Delta     int              `json:"delta"`
	Type      string           `json:"type"`
	Note      string           `json:"note"`
	ActorID   string           `json:"actor_id"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
}

type LowStockEvaluateRequest struct {
	ProductID string `json:"product_id"`
	OutletID  string `json:"outlet_id"`
	ActorID   string `json:"actor_id"`
}

type InventoryView struct {
	Record    InventoryRecord `json:"record"`
	Movements []StockMovement `json:"movements"`
}

type ShiftOpenRequest struct {
	OutletID  string `json:"outlet_id"`
	CashierID string `json:"cashier_id"`
}

type ShiftCloseRequest struct {
	OutletID string `json:"outlet_id"`
	ActorID  string `json:"actor_id"`
}

type DailySummary struct {
	Date          string          `json:"date"`
	OutletID      string          `json:"outlet_id,omitempty"`
	SaleCount     int             `json:"sale_count"`
	StatusCounts  map[string]int  `json:"status_counts"`
	TotalGross    decimal.Decimal `json:"total_gross"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	TotalNet      decimal.Decimal `json:"total_net"`
	TotalItems    int             `json:"total_items"`
	CashPayments  decimal.Decimal `json:"cash_payments"`
	Sales         []Sale          `json:"sales"`
}

type TrendPoint struct {
	Date  string          `json:"date"`
	Net   decimal.Decimal `json:"net"`
	Count int             `json:"count"`
}

type TrendSummary struct {
	CurrentNet    decimal.Decimal `json:"current_net"`
	PreviousNet   decimal.Decimal `json:"previous_net"`
	CurrentCount  int             `json:"current_count"`
	PreviousCount int             `json:"previous_count"`
	PercentChange decimal.Decimal `json:"percent_change"`
}

type WeeklyTrend struct {
	OutletID      string       `json:"outlet_id,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	Series        []TrendPoint `json:"series"`
	Summary       TrendSummary `json:"summary"`
}
