package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirledger/internal/domain"
	"kasirledger/internal/pricing"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

type stockPair struct {
	productID string
	outletID  string
}

// RecordSale validates and prices a sale, then in one transaction stores it,
// deducts stock per line, evaluates low stock for each touched pair and
// writes the audit trail.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleSummary, error) {
	req.OutletID = s.outletOrDefault(req.OutletID)
	req.CashierID = actorOr(ctx, req.CashierID)
	req.ReceiptNumber = strings.TrimSpace(req.ReceiptNumber)
	req.ShiftID = strings.TrimSpace(req.ShiftID)

	if err := validateSaleRequest(req); err != nil {
		return domain.SaleSummary{}, err
	}

	shift, err := s.activeShift(ctx, req.OutletID)
	if err != nil {
		return domain.SaleSummary{}, err
	}
	if req.ShiftID != "" && req.ShiftID != shift.ID {
		return domain.SaleSummary{}, fmt.Errorf("%w: shift %s is not the open shift of %s", ErrShiftNotActive, req.ShiftID, req.OutletID)
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.SaleSummary{}, err
	}

	lines := make([]pricing.Line, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return domain.SaleSummary{}, fmt.Errorf("%w: unknown product %s", store.ErrInvalidTransaction, item.ProductID)
		}
		unitPrice := product.Price
		if item.UnitPrice != nil {
			unitPrice = *item.UnitPrice
		}
		lines = append(lines, pricing.Line{
			UnitPrice:    unitPrice,
			Quantity:     item.Quantity,
			LineDiscount: item.LineDiscount,
			Taxable:      product.Taxable,
		})
	}

	taxRate := s.defaultTaxRate
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}
	totals, err := pricing.Calculate(lines, req.ManualDiscount, pricing.TaxPolicy{RatePercent: taxRate})
	if err != nil {
		return domain.SaleSummary{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	if err := pricing.EnforceDiscountLimit(totals.TotalGross, totals.TotalDiscount, s.discountLimit); err != nil {
		return domain.SaleSummary{}, err
	}
	amounts := make([]decimal.Decimal, 0, len(req.Payments))
	for _, p := range req.Payments {
		amounts = append(amounts, p.Amount)
	}
	if err := pricing.EnsurePaymentsCoverTotal(amounts, totals.TotalNet); err != nil {
		return domain.SaleSummary{}, err
	}

	now := s.now()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		ReceiptNumber:  req.ReceiptNumber,
		OutletID:       req.OutletID,
		CashierID:      req.CashierID,
		ShiftID:        shift.ID,
		TotalGross:     totals.TotalGross,
		TotalDiscount:  totals.TotalDiscount,
		ManualDiscount: totals.ManualDiscount,
		TaxRatePercent: taxRate,
		TaxAmount:      totals.TaxAmount,
		TotalNet:       totals.TotalNet,
		Status:         domain.SaleStatusCompleted,
		SoldAt:         now,
		UpdatedAt:      now,
		Items:          make([]domain.SaleLineItem, 0, len(req.Items)),
		Payments:       make([]domain.Payment, 0, len(req.Payments)),
	}
	for i, item := range req.Items {
		lt := totals.Lines[i]
		sale.Items = append(sale.Items, domain.SaleLineItem{
			ID:           xid.New("sli"),
			SaleID:       sale.ID,
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			UnitPrice:    lines[i].UnitPrice,
			LineDiscount: lt.LineDiscount,
			TaxAmount:    lt.Tax,
			LineTotal:    lt.Total,
		})
	}
	for _, p := range req.Payments {
		sale.Payments = append(sale.Payments, domain.Payment{
			ID:        xid.New("pay"),
			SaleID:    sale.ID,
			Method:    p.Method,
			Amount:    p.Amount,
			Reference: strings.TrimSpace(p.Reference),
		})
	}

	var outcomes []domain.LowStockOutcome
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}

		note := "Penjualan struk " + sale.ReceiptNumber
		for _, item := range itemsInLockOrder(sale.Items) {
			_, err := s.ledger.Adjust(ctx, tx, Adjustment{
				ProductID:     item.ProductID,
				OutletID:      sale.OutletID,
				Delta:         -item.Quantity,
				Type:          domain.MovementSale,
				ActorID:       sale.CashierID,
				Note:          note,
				RelatedSaleID: sale.ID,
			})
			if err != nil {
				return err
			}
		}

		var err error
		outcomes, err = s.evaluatePairs(ctx, tx, pairsOf(sale), sale.CashierID)
		if err != nil {
			return err
		}

		return s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditSaleRecord,
			ActorID:    sale.CashierID,
			OutletID:   sale.OutletID,
			EntityType: "sale",
			EntityID:   sale.ID,
			Details: map[string]any{
				"receipt_number": sale.ReceiptNumber,
				"shift_id":       sale.ShiftID,
				"total_gross":    sale.TotalGross.String(),
				"total_discount": sale.TotalDiscount.String(),
				"tax_amount":     sale.TaxAmount.String(),
				"total_net":      sale.TotalNet.String(),
				"item_count":     len(sale.Items),
				"payments":       paymentMethods(sale.Payments),
			},
			At: now,
		})
	})
	if err != nil {
		s.logger.Warn("record sale failed",
			zap.String("receipt_number", req.ReceiptNumber),
			zap.String("outlet_id", req.OutletID),
			zap.Error(err))
		return domain.SaleSummary{}, err
	}

	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("receipt_number", sale.ReceiptNumber),
		zap.String("outlet_id", sale.OutletID),
		zap.String("total_net", sale.TotalNet.String()),
		zap.Int("low_stock_events", len(outcomes)))

	return domain.SaleSummary{
		SaleID:        sale.ID,
		ReceiptNumber: sale.ReceiptNumber,
		Status:        sale.Status,
		TotalNet:      sale.TotalNet,
		TaxAmount:     sale.TaxAmount,
		SoldAt:        sale.SoldAt,
		LowStock:      outcomes,
	}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// evaluatePairs runs the low-stock evaluator for each pair and audits every
// trigger. Only triggered and cleared results are reported back.
func (s *Service) evaluatePairs(ctx context.Context, tx store.Tx, pairs []stockPair, actorID string) ([]domain.LowStockOutcome, error) {
	outcomes := make([]domain.LowStockOutcome, 0, len(pairs))
	for _, pair := range pairs {
		result, alert, err := s.evaluator.Evaluate(ctx, tx, pair.productID, pair.outletID)
		if err != nil {
			return nil, fmt.Errorf("evaluate low stock %s@%s: %w", pair.productID, pair.outletID, err)
		}
		if result == LowStockUnchanged {
			continue
		}

		outcome := domain.LowStockOutcome{ProductID: pair.productID, OutletID: pair.outletID, Result: result}
		if alert != nil {
			outcome.AlertID = alert.ID
		}
		outcomes = append(outcomes, outcome)

		if result != LowStockTriggered {
			continue
		}
		err = s.audit.Write(ctx, tx, AuditEntry{
			Action:     domain.AuditLowStockTrigger,
			ActorID:    actorID,
			OutletID:   pair.outletID,
			EntityType: "low_stock_alert",
			EntityID:   alert.ID,
			Details: map[string]any{
				"product_id": pair.productID,
				"note":       alert.Note,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

func validateSaleRequest(req domain.SaleRequest) error {
	if req.ReceiptNumber == "" {
		return fmt.Errorf("%w: receipt number required", store.ErrInvalidTransaction)
	}
	if req.CashierID == "" {
		return fmt.Errorf("%w: cashier required", store.ErrInvalidTransaction)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: sale has no items", store.ErrInvalidTransaction)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no product", store.ErrInvalidTransaction, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be positive", store.ErrInvalidTransaction, i)
		}
		if item.LineDiscount.IsNegative() || (item.UnitPrice != nil && item.UnitPrice.IsNegative()) {
			return fmt.Errorf("%w: item %d has negative price or discount", store.ErrInvalidTransaction, i)
		}
	}
	if req.ManualDiscount.IsNegative() {
		return fmt.Errorf("%w: negative manual discount", store.ErrInvalidTransaction)
	}
	if len(req.Payments) == 0 {
		return fmt.Errorf("%w: at least one payment required", store.ErrInvalidTransaction)
	}
	for i, p := range req.Payments {
		if !isSupportedPaymentMethod(p.Method) {
			return fmt.Errorf("%w: payment %d method %q not supported", store.ErrInvalidTransaction, i, p.Method)
		}
		if !p.Amount.IsPositive() {
			return fmt.Errorf("%w: payment %d amount must be positive", store.ErrInvalidTransaction, i)
		}
	}
	return nil
}

// itemsInLockOrder sorts by product so concurrent sales touch inventory rows
// in the same order.
func itemsInLockOrder(items []domain.SaleLineItem) []domain.SaleLineItem {
	ordered := make([]domain.SaleLineItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ProductID < ordered[j].ProductID
	})
	return ordered
}

func pairsOf(sale domain.Sale) []stockPair {
	seen := make(map[string]bool, len(sale.Items))
	pairs := make([]stockPair, 0, len(sale.Items))
	for _, item := range itemsInLockOrder(sale.Items) {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		pairs = append(pairs, stockPair{productID: item.ProductID, outletID: sale.OutletID})
	}
	return pairs
}

func paymentMethods(payments []domain.Payment) []string {
	methods := make([]string, 0, len(payments))
	for _, p := range payments {
		methods = append(methods, p.Method)
	}
	return methods
}
