package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
)

const trendDays = 7

// DailySummary aggregates every sale sold within the UTC day of date,
// whatever its status. An empty date means today.
func (s *Service) DailySummary(ctx context.Context, date string, outletID string) (domain.DailySummary, error) {
	day, err := parseDay(date, s.now())
	if err != nil {
		return domain.DailySummary{}, err
	}
	outletID = strings.TrimSpace(outletID)

	key := fmt.Sprintf("daily:%s:%s", day.Format("2006-01-02"), outletID)
	var cached domain.DailySummary
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{
		OutletID: outletID,
		From:     day,
		To:       day.AddDate(0, 0, 1),
	})
	if err != nil {
		return domain.DailySummary{}, err
	}

	summary := domain.DailySummary{
		Date:          day.Format("2006-01-02"),
		OutletID:      outletID,
		SaleCount:     len(sales),
		StatusCounts:  map[string]int{},
		TotalGross:    decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalTax:      decimal.Zero,
		TotalNet:      decimal.Zero,
		CashPayments:  decimal.Zero,
		Sales:         sales,
	}
	for _, sale := range sales {
		summary.StatusCounts[sale.Status]++
		summary.TotalGross = summary.TotalGross.Add(sale.TotalGross)
		summary.TotalDiscount = summary.TotalDiscount.Add(sale.TotalDiscount)
		summary.TotalTax = summary.TotalTax.Add(sale.TaxAmount)
		summary.TotalNet = summary.TotalNet.Add(sale.TotalNet)
		for _, item := range sale.Items {
			summary.TotalItems += item.Quantity
		}
		for _, p := range sale.Payments {
			if p.Method == domain.PaymentCash {
				summary.CashPayments = summary.CashPayments.Add(p.Amount)
			}
		}
	}

	s.cacheSet(ctx, key, summary)
	return summary, nil
}

// WeeklyTrend compares COMPLETED sales of the last seven UTC days with the
// seven days before. With paymentMethod set, only sales that took at least
// one payment of that method are counted.
func (s *Service) WeeklyTrend(ctx context.Context, outletID string, paymentMethod string) (domain.WeeklyTrend, error) {
	outletID = strings.TrimSpace(outletID)
	paymentMethod = strings.ToUpper(strings.TrimSpace(paymentMethod))
	if paymentMethod != "" && !isSupportedPaymentMethod(paymentMethod) {
		return domain.WeeklyTrend{}, fmt.Errorf("%w: payment method %q not supported", store.ErrInvalidTransaction, paymentMethod)
	}

	today := dayStartUTC(s.now())
	key := fmt.Sprintf("weekly:%s:%s:%s", today.Format("2006-01-02"), outletID, paymentMethod)
	var cached domain.WeeklyTrend
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	currentStart := today.AddDate(0, 0, -(trendDays - 1))
	previousStart := currentStart.AddDate(0, 0, -trendDays)
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{
		OutletID: outletID,
		Status:   domain.SaleStatusCompleted,
		From:     previousStart,
		To:       today.AddDate(0, 0, 1),
	})
	if err != nil {
		return domain.WeeklyTrend{}, err
	}

	series := make([]domain.TrendPoint, trendDays)
	for i := range series {
		series[i] = domain.TrendPoint{
			Date: currentStart.AddDate(0, 0, i).Format("2006-01-02"),
			Net:  decimal.Zero,
		}
	}
	summary := domain.TrendSummary{
		CurrentNet:  decimal.Zero,
		PreviousNet: decimal.Zero,
	}

	for _, sale := range sales {
		if paymentMethod != "" && !paidWith(sale, paymentMethod) {
			continue
		}
		soldDay := dayStartUTC(sale.SoldAt)
		if soldDay.Before(currentStart) {
			summary.PreviousNet = summary.PreviousNet.Add(sale.TotalNet)
			summary.PreviousCount++
			continue
		}
		idx := int(soldDay.Sub(currentStart) / (24 * time.Hour))
		if idx >= trendDays {
			continue
		}
		series[idx].Net = series[idx].Net.Add(sale.TotalNet)
		series[idx].Count++
		summary.CurrentNet = summary.CurrentNet.Add(sale.TotalNet)
		summary.CurrentCount++
	}
	summary.PercentChange = percentChange(summary.CurrentNet, summary.PreviousNet)

	trend := domain.WeeklyTrend{
		OutletID:      outletID,
		PaymentMethod: paymentMethod,
		Series:        series,
		Summary:       summary,
	}
	s.cacheSet(ctx, key, trend)
	return trend, nil
}

func percentChange(current decimal.Decimal, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
}

func paidWith(sale domain.Sale, method string) bool {
	for _, p := range sale.Payments {
		if p.Method == method {
			return true
		}
	}
	return false
}

func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	hit, err := s.summaries.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("summary cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if err := s.summaries.Set(ctx, key, value, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
	}
}
