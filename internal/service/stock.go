package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// AdjustStock records a manual stock change. It does not run the low-stock
// evaluator; callers that want that use EvaluateLowStock.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.InventoryRecord, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.OutletID = s.outletOrDefault(req.OutletID)
	req.ActorID = actorOr(ctx, req.ActorID)
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if req.Type == "" {
		req.Type = domain.MovementAdjustment
	}
	if req.Type == domain.MovementSale {
		return domain.InventoryRecord{}, fmt.Errorf("%w: SALE movements are written by sales only", store.ErrInvalidTransaction)
	}

	var cost decimal.NullDecimal
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.InventoryRecord{}, fmt.Errorf("%w: negative cost price", store.ErrInvalidTransaction)
		}
		cost = decimal.NewNullDecimal(*req.CostPrice)
	}

	var rec *domain.InventoryRecord
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, req.ProductID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown product %s", store.ErrInvalidTransaction, req.ProductID)
			}
			return err
		}

		var err error
		rec, err = s.ledger.Adjust(ctx, tx, Adjustment{
			ProductID: req.ProductID,
			OutletID:  req.OutletID,
			Delta:     req.Delta,
			Type:      req.Type,
			ActorID:   req.ActorID,
			Note:      strings.TrimSpace(req.Note),
			CostPrice: cost,
		})
		if err != nil {
			return err
		}

		return s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditStockAdjust,
			ActorID:    req.ActorID,
			OutletID:   req.OutletID,
			EntityType: "inventory",
			EntityID:   rec.ID,
			Details: map[string]any{
				"product_id": req.ProductID,
				"delta":      req.Delta,
				"type":       req.Type,
				"quantity":   rec.Quantity,
				"note":       strings.TrimSpace(req.Note),
			},
		})
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logger.Info("stock adjusted",
		zap.String("product_id", req.ProductID),
		zap.String("outlet_id", req.OutletID),
		zap.Int("delta", req.Delta),
		zap.Int("quantity", rec.Quantity))
	return *rec, nil
}

// EvaluateLowStock runs the evaluator for one pair in its own transaction.
func (s *Service) EvaluateLowStock(ctx context.Context, req domain.LowStockEvaluateRequest) (domain.LowStockOutcome, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.LowStockOutcome{}, fmt.Errorf("%w: product required", store.ErrInvalidTransaction)
	}
	outletID := s.outletOrDefault(req.OutletID)
	actorID := actorOr(ctx, req.ActorID)

	outcome := domain.LowStockOutcome{ProductID: productID, OutletID: outletID, Result: LowStockUnchanged}
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		outcomes, err := s.evaluatePairs(ctx, tx, []stockPair{{productID: productID, outletID: outletID}}, actorID)
		if err != nil {
			return err
		}
		if len(outcomes) > 0 {
			outcome = outcomes[0]
		}
		return nil
	})
	if err != nil {
		return domain.LowStockOutcome{}, err
	}
	return outcome, nil
}

// GetInventory returns the balance of a pair with its most recent movements.
func (s *Service) GetInventory(ctx context.Context, productID string, outletID string, limit int) (domain.InventoryView, error) {
	productID = strings.TrimSpace(productID)
	outletID = s.outletOrDefault(outletID)

	rec, err := s.repo.GetInventory(ctx, productID, outletID)
	if err != nil {
		return domain.InventoryView{}, err
	}
	movements, err := s.repo.ListStockMovements(ctx, domain.MovementFilter{
		ProductID: productID,
		OutletID:  outletID,
		Limit:     clampLimit(limit),
	})
	if err != nil {
		return domain.InventoryView{}, err
	}
	return domain.InventoryView{Record: *rec, Movements: movements}, nil
}

func (s *Service) ListLowStockAlerts(ctx context.Context, outletID string, openOnly bool, limit int) ([]domain.LowStockAlert, error) {
	return s.repo.ListLowStockAlerts(ctx, domain.AlertFilter{
		OutletID: strings.TrimSpace(outletID),
		OpenOnly: openOnly,
		Limit:    clampLimit(limit),
	})
}

// ListAuditLogs filters by outlet, action and an optional UTC day.
func (s *Service) ListAuditLogs(ctx context.Context, outletID string, action string, date string, limit int) ([]domain.AuditLog, error) {
	filter := domain.AuditFilter{
		OutletID: strings.TrimSpace(outletID),
		Action:   strings.ToUpper(strings.TrimSpace(action)),
		Limit:    clampLimit(limit),
	}
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date, s.now())
		if err != nil {
			return nil, err
		}
		filter.From = day
		filter.To = day.Add(24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, filter)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
