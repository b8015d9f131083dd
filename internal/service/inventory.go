package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

// Adjustment is one signed change to a (product, outlet) stock balance.
type Adjustment struct {
	ProductID       string
	OutletID        string
	Delta           int
	Type            string
	ActorID         string
	Note            string
	RelatedSaleID   string
	RelatedRefundID string
	CostPrice       decimal.NullDecimal
}

// InventoryLedger owns stock quantities and the append-only movement log.
// It never opens a transaction of its own.
type InventoryLedger struct {
	now func() time.Time
}

func NewInventoryLedger(now func() time.Time) *InventoryLedger {
	return &InventoryLedger{now: now}
}

// Adjust applies delta with a single atomic increment and appends the matching
// movement row. Quantity is not floored at zero.
func (l *InventoryLedger) Adjust(ctx context.Context, tx store.Tx, adj Adjustment) (*domain.InventoryRecord, error) {
	if strings.TrimSpace(adj.ProductID) == "" || strings.TrimSpace(adj.OutletID) == "" {
		return nil, fmt.Errorf("%w: product and outlet required", store.ErrInvalidTransaction)
	}
	if adj.Delta == 0 {
		return nil, fmt.Errorf("%w: zero stock delta", store.ErrInvalidTransaction)
	}
	if !isMovementType(adj.Type) {
		return nil, fmt.Errorf("%w: unknown movement type %q", store.ErrInvalidTransaction, adj.Type)
	}
	if adj.ActorID == "" {
		adj.ActorID = "system"
	}

	at := l.now()
	rec, err := tx.AdjustInventory(ctx, adj.ProductID, adj.OutletID, adj.Delta, adj.CostPrice, at)
	if err != nil {
		return nil, fmt.Errorf("adjust inventory %s@%s: %w", adj.ProductID, adj.OutletID, err)
	}

	err = tx.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryID:     rec.ID,
		ProductID:       adj.ProductID,
		OutletID:        adj.OutletID,
		Delta:           adj.Delta,
		Type:            adj.Type,
		Note:            adj.Note,
		ActorID:         adj.ActorID,
		RelatedSaleID:   adj.RelatedSaleID,
		RelatedRefundID: adj.RelatedRefundID,
		CreatedAt:       at,
	})
	if err != nil {
		return nil, fmt.Errorf("append stock movement %s@%s: %w", adj.ProductID, adj.OutletID, err)
	}
	return rec, nil
}

func isMovementType(t string) bool {
	switch t {
	case domain.MovementSale, domain.MovementAdjustment, domain.MovementPurchase, domain.MovementInitial:
		return true
	default:
		return false
	}
}
