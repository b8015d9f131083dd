package service

import (
	"context"

	"go.uber.org/zap"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	outletID := s.outletOrDefault(req.OutletID)
	cashierID := actorOr(ctx, req.CashierID)
	now := s.now()

	var opened *domain.Shift
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		opened, err = tx.CreateShift(ctx, domain.Shift{
			ID:        xid.New("shift"),
			OutletID:  outletID,
			CashierID: cashierID,
			Status:    domain.ShiftStatusOpen,
			OpenedAt:  now,
		})
		if err != nil {
			return err
		}
		return s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditShiftOpen,
			ActorID:    cashierID,
			OutletID:   outletID,
			EntityType: "shift",
			EntityID:   opened.ID,
			At:         now,
		})
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logger.Info("shift opened", zap.String("shift_id", opened.ID), zap.String("outlet_id", outletID), zap.String("cashier_id", cashierID))
	return *opened, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	outletID := s.outletOrDefault(req.OutletID)
	actorID := actorOr(ctx, req.ActorID)
	now := s.now()

	var closed *domain.Shift
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		closed, err = tx.CloseActiveShift(ctx, outletID, now)
		if err != nil {
			return err
		}
		return s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditShiftClose,
			ActorID:    actorID,
			OutletID:   outletID,
			EntityType: "shift",
			EntityID:   closed.ID,
			Details: map[string]any{
				"opened_at": closed.OpenedAt,
				"cashier":   closed.CashierID,
			},
			At: now,
		})
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logger.Info("shift closed", zap.String("shift_id", closed.ID), zap.String("outlet_id", outletID))
	return *closed, nil
}

// ActiveShift returns the open shift of an outlet or ErrShiftNotActive.
func (s *Service) ActiveShift(ctx context.Context, outletID string) (domain.Shift, error) {
	shift, err := s.activeShift(ctx, s.outletOrDefault(outletID))
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}
