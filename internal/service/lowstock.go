package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

const (
	LowStockTriggered = "triggered"
	LowStockCleared   = "cleared"
	LowStockUnchanged = "unchanged"
)

// LowStockEvaluator keeps at most one open alert per (product, outlet, UTC day).
type LowStockEvaluator struct {
	now func() time.Time
}

func NewLowStockEvaluator(now func() time.Time) *LowStockEvaluator {
	return &LowStockEvaluator{now: now}
}

// Evaluate compares the current quantity with the product's minimum and opens,
// reopens or clears today's alert. The returned alert is nil for unchanged
// results with no alert on file.
func (e *LowStockEvaluator) Evaluate(ctx context.Context, tx store.Tx, productID string, outletID string) (string, *domain.LowStockAlert, error) {
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LowStockUnchanged, nil, nil
		}
		return "", nil, err
	}
	if product.MinStock <= 0 {
		return LowStockUnchanged, nil, nil
	}

	quantity := 0
	rec, err := tx.GetInventory(ctx, productID, outletID)
	switch {
	case err == nil:
		quantity = rec.Quantity
	case !errors.Is(err, store.ErrNotFound):
		return "", nil, err
	}

	now := e.now()
	dayStart := dayStartUTC(now)
	alert, err := tx.FindAlertForDay(ctx, productID, outletID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", nil, err
	}

	if quantity <= product.MinStock {
		note := fmt.Sprintf("stok %d <= minimum %d", quantity, product.MinStock)
		if alert == nil {
			created := domain.LowStockAlert{
				ID:          xid.New("alert"),
				ProductID:   productID,
				OutletID:    outletID,
				AlertDay:    dayStart,
				TriggeredAt: now,
				Note:        note,
			}
			if err := tx.CreateAlert(ctx, created); err != nil {
				return "", nil, err
			}
			return LowStockTriggered, &created, nil
		}
		if !alert.Open() {
			alert.ClearedAt = nil
			alert.TriggeredAt = now
			alert.Note = note
			if err := tx.UpdateAlert(ctx, *alert); err != nil {
				return "", nil, err
			}
			return LowStockTriggered, alert, nil
		}
		return LowStockUnchanged, alert, nil
	}

	if alert != nil && alert.Open() {
		alert.ClearedAt = &now
		if err := tx.UpdateAlert(ctx, *alert); err != nil {
			return "", nil, err
		}
		return LowStockCleared, alert, nil
	}
	return LowStockUnchanged, alert, nil
}
