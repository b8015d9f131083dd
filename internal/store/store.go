package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicateReceipt   = errors.New("duplicate receipt number")
	ErrRefundExists       = errors.New("refund already exists for sale")
	ErrStatusChanged      = errors.New("sale status changed concurrently")
)

// Repository is the ledger's view of persistence. Every mutation goes through
// WithTx so the sale, its stock movements, alerts and audit rows commit or
// roll back together.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetActiveShift(ctx context.Context, outletID string) (*domain.Shift, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	GetInventory(ctx context.Context, productID string, outletID string) (*domain.InventoryRecord, error)
	ListStockMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)
	ListLowStockAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.LowStockAlert, error)
	ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error)
}

// Tx is a transaction-scoped handle. Implementations must not open nested
// transactions from any of these methods.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, outletID string, closedAt time.Time) (*domain.Shift, error)

	CreateSale(ctx context.Context, sale domain.Sale) error
	// LockSale loads a sale with its line items and holds it against
	// concurrent reversal until the transaction ends.
	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, id string, from string, to string, at time.Time) error
	HasRefund(ctx context.Context, saleID string) (bool, error)
	CreateRefund(ctx context.Context, refund domain.Refund) error

	// AdjustInventory adds delta to the (product, outlet) quantity in one
	// atomic step, creating the record on first touch.
	AdjustInventory(ctx context.Context, productID string, outletID string, delta int, costPrice decimal.NullDecimal, at time.Time) (*domain.InventoryRecord, error)
	GetInventory(ctx context.Context, productID string, outletID string) (*domain.InventoryRecord, error)
	AppendStockMovement(ctx context.Context, movement domain.StockMovement) error

	FindAlertForDay(ctx context.Context, productID string, outletID string, dayStart time.Time, dayEnd time.Time) (*domain.LowStockAlert, error)
	CreateAlert(ctx context.Context, alert domain.LowStockAlert) error
	UpdateAlert(ctx context.Context, alert domain.LowStockAlert) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

func InventoryKey(productID string, outletID string) string {
	return productID + "|" + outletID
}
