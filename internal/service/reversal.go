package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

type reversal struct {
	targetStatus string
	note         string
	actorID      string
	refundID     string
}

// VoidSale cancels a COMPLETED sale and puts every line back on the shelf.
// No refund record is created.
func (s *Service) VoidSale(ctx context.Context, req domain.VoidRequest) (domain.VoidResponse, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.ActorID = actorOr(ctx, req.ActorID)
	reason := reasonOrDefault(req.Reason)

	if _, err := s.reversible(ctx, req.SaleID); err != nil {
		return domain.VoidResponse{}, err
	}

	now := s.now()
	var (
		restocked int
		outcomes  []domain.LowStockOutcome
	)
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		sale, err := lockCompleted(ctx, tx, req.SaleID)
		if err != nil {
			return err
		}

		restocked, outcomes, err = s.reverse(ctx, tx, sale, reversal{
			targetStatus: domain.SaleStatusVoided,
			note:         "Void struk " + sale.ReceiptNumber,
			actorID:      req.ActorID,
		})
		if err != nil {
			return err
		}

		return s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditSaleVoid,
			ActorID:    req.ActorID,
			OutletID:   sale.OutletID,
			EntityType: "sale",
			EntityID:   sale.ID,
			Details: map[string]any{
				"receipt_number": sale.ReceiptNumber,
				"reason":         reason,
				"restocked_qty":  restocked,
			},
			At: now,
		})
	})
	if err != nil {
		s.logger.Warn("void sale failed", zap.String("sale_id", req.SaleID), zap.Error(err))
		return domain.VoidResponse{}, err
	}

	s.logger.Info("sale voided",
		zap.String("sale_id", req.SaleID),
		zap.String("actor_id", req.ActorID),
		zap.Int("restocked_qty", restocked))

	return domain.VoidResponse{
		SaleID:       req.SaleID,
		Status:       domain.SaleStatusVoided,
		RestockedQty: restocked,
		VoidedAt:     now,
		LowStock:     outcomes,
	}, nil
}

// RefundSale reverses a COMPLETED sale with a money refund. Stock for every
// line is restored in full whatever amount is refunded.
func (s *Service) RefundSale(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.ActorID = actorOr(ctx, req.ActorID)
	reason := reasonOrDefault(req.Reason)
	approvedBy := approverOr(ctx, req.ApprovedBy, req.ActorID)

	current, err := s.reversible(ctx, req.SaleID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() || req.Amount.GreaterThan(current.TotalNet) {
			return domain.RefundResponse{}, fmt.Errorf("%w: refund amount %s must be within (0, %s]",
				store.ErrInvalidTransaction, req.Amount.String(), current.TotalNet.String())
		}
	}

	now := s.now()
	var (
		refund    domain.Refund
		restocked int
		outcomes  []domain.LowStockOutcome
	)
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		sale, err := lockCompleted(ctx, tx, req.SaleID)
		if err != nil {
			return err
		}
		exists, err := tx.HasRefund(ctx, sale.ID)
		if err != nil {
			return err
		}
		if exists {
			return &AlreadyProcessedError{SaleID: sale.ID, Status: sale.Status}
		}

		amount := sale.TotalNet
		if req.Amount != nil {
			amount = *req.Amount
		}
		refund = domain.Refund{
			ID:         xid.New("refund"),
			SaleID:     sale.ID,
			Amount:     amount,
			Reason:     reason,
			ApprovedBy: approvedBy,
			CreatedAt:  now,
			Items:      make([]domain.RefundLineItem, 0, len(sale.Items)),
		}
		for _, item := range sale.Items {
			refund.Items = append(refund.Items, domain.RefundLineItem{
				ID:             xid.New("rli"),
				RefundID:       refund.ID,
				SaleLineItemID: item.ID,
				ProductID:      item.ProductID,
				Quantity:       item.Quantity,
			})
		}

		restocked, outcomes, err = s.reverse(ctx, tx, sale, reversal{
			targetStatus: domain.SaleStatusRefunded,
			note:         "Refund struk " + sale.ReceiptNumber,
			actorID:      req.ActorID,
			refundID:     refund.ID,
		})
		if err != nil {
			return err
		}

		if err := tx.CreateRefund(ctx, refund); err != nil {
			if errors.Is(err, store.ErrRefundExists) {
				return &AlreadyProcessedError{SaleID: sale.ID, Status: domain.SaleStatusRefunded}
			}
			return err
		}

		return s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditSaleRefund,
			ActorID:    req.ActorID,
			OutletID:   sale.OutletID,
			EntityType: "sale",
			EntityID:   sale.ID,
			Details: map[string]any{
				"receipt_number": sale.ReceiptNumber,
				"refund_id":      refund.ID,
				"amount":         amount.String(),
				"reason":         reason,
				"approved_by":    approvedBy,
				"restocked_qty":  restocked,
			},
			At: now,
		})
	})
	if err != nil {
		s.logger.Warn("refund sale failed", zap.String("sale_id", req.SaleID), zap.Error(err))
		return domain.RefundResponse{}, err
	}

	s.logger.Info("sale refunded",
		zap.String("sale_id", req.SaleID),
		zap.String("refund_id", refund.ID),
		zap.String("amount", refund.Amount.String()),
		zap.Int("restocked_qty", restocked))

	return domain.RefundResponse{
		Refund:       refund,
		Status:       domain.SaleStatusRefunded,
		RestockedQty: restocked,
		LowStock:     outcomes,
	}, nil
}

// reversible runs the checks that need no lock: the sale exists, is still
// COMPLETED and its outlet has an open shift.
func (s *Service) reversible(ctx context.Context, saleID string) (*domain.Sale, error) {
	if saleID == "" {
		return nil, fmt.Errorf("%w: sale id required", store.ErrInvalidTransaction)
	}
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, &AlreadyProcessedError{SaleID: sale.ID, Status: sale.Status}
	}
	if _, err := s.activeShift(ctx, sale.OutletID); err != nil {
		return nil, err
	}
	return sale, nil
}

func lockCompleted(ctx context.Context, tx store.Tx, saleID string) (*domain.Sale, error) {
	sale, err := tx.LockSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, &AlreadyProcessedError{SaleID: sale.ID, Status: sale.Status}
	}
	return sale, nil
}

// reverse restocks every line, evaluates low stock and moves the sale to its
// terminal status. It returns the total quantity put back.
func (s *Service) reverse(ctx context.Context, tx store.Tx, sale *domain.Sale, r reversal) (int, []domain.LowStockOutcome, error) {
	restocked := 0
	for _, item := range itemsInLockOrder(sale.Items) {
		_, err := s.ledger.Adjust(ctx, tx, Adjustment{
			ProductID:       item.ProductID,
			OutletID:        sale.OutletID,
			Delta:           item.Quantity,
			Type:            domain.MovementAdjustment,
			ActorID:         r.actorID,
			Note:            r.note,
			RelatedSaleID:   sale.ID,
			RelatedRefundID: r.refundID,
		})
		if err != nil {
			return 0, nil, err
		}
		restocked += item.Quantity
	}

	outcomes, err := s.evaluatePairs(ctx, tx, pairsOf(*sale), r.actorID)
	if err != nil {
		return 0, nil, err
	}

	err = tx.UpdateSaleStatus(ctx, sale.ID, domain.SaleStatusCompleted, r.targetStatus, s.now())
	if err != nil {
		if errors.Is(err, store.ErrStatusChanged) {
			return 0, nil, &AlreadyProcessedError{SaleID: sale.ID, Status: currentStatus(ctx, tx, sale.ID)}
		}
		return 0, nil, err
	}
	return restocked, outcomes, nil
}

// currentStatus re-reads the status after a lost compare-and-set.
func currentStatus(ctx context.Context, tx store.Tx, saleID string) string {
	sale, err := tx.LockSale(ctx, saleID)
	if err != nil {
		return "unknown"
	}
	return sale.Status
}

func reasonOrDefault(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "unspecified"
	}
	return reason
}
