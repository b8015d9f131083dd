package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
)

func TestWithTxDiscardsStateOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.AdjustInventory(ctx, "SKU-MIE-01", DefaultOutletID, -5, decimal.NullDecimal{}, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := tx.CreateShift(ctx, domain.Shift{OutletID: DefaultOutletID, CashierID: "kasir-a"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	rec, err := s.GetInventory(ctx, "SKU-MIE-01", DefaultOutletID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if rec.Quantity != 120 {
		t.Fatalf("expected quantity 120 after rollback, got %d", rec.Quantity)
	}
	if _, err := s.GetActiveShift(ctx, DefaultOutletID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no active shift after rollback, got %v", err)
	}
}

func TestAdjustInventoryCreatesNegativeRecordOnFirstTouch(t *testing.T) {
	s := New()
	ctx := context.Background()

	var rec *domain.InventoryRecord
	err := s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.AdjustInventory(ctx, "SKU-X", "outlet-2", -3, decimal.NullDecimal{}, time.Now().UTC())
		return err
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if rec.Quantity != -3 {
		t.Fatalf("expected -3, got %d", rec.Quantity)
	}
}

func TestCreateSaleRejectsDuplicateReceipt(t *testing.T) {
	s := New()
	ctx := context.Background()
	sale := domain.Sale{
		ID:            "sale-1",
		ReceiptNumber: "R-001",
		OutletID:      DefaultOutletID,
		Status:        domain.SaleStatusCompleted,
		Items:         []domain.SaleLineItem{{ID: "li-1", ProductID: "SKU-X", Quantity: 1}},
	}
	if err := s.WithTx(ctx, func(tx store.Tx) error { return tx.CreateSale(ctx, sale) }); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	sale.ID = "sale-2"
	err := s.WithTx(ctx, func(tx store.Tx) error { return tx.CreateSale(ctx, sale) })
	if !errors.Is(err, store.ErrDuplicateReceipt) {
		t.Fatalf("expected duplicate receipt, got %v", err)
	}
}

func TestFindAlertForDayUsesTriggerWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	alert := domain.LowStockAlert{
		ID:          "alert-1",
		ProductID:   "SKU-X",
		OutletID:    DefaultOutletID,
		AlertDay:    day,
		TriggeredAt: day.Add(9 * time.Hour),
	}

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateAlert(ctx, alert); err != nil {
			return err
		}
		found, err := tx.FindAlertForDay(ctx, "SKU-X", DefaultOutletID, day, day.Add(24*time.Hour))
		if err != nil {
			return err
		}
		if found.ID != "alert-1" {
			t.Fatalf("expected alert-1, got %s", found.ID)
		}
		_, err = tx.FindAlertForDay(ctx, "SKU-X", DefaultOutletID, day.Add(24*time.Hour), day.Add(48*time.Hour))
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found for next day, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
