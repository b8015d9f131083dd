// Package pricing computes sale totals and enforces the monetary invariants
// of a sale: discount limit and payment reconciliation. It has no I/O.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrDiscountExceeded = errors.New("discount exceeded")
	ErrPaymentMismatch  = errors.New("payment mismatch")
	ErrInvalidInput     = errors.New("invalid pricing input")
)

// PaymentEpsilon is the largest tolerated gap between paid amount and net total.
var PaymentEpsilon = decimal.NewFromFloat(0.5)

var hundred = decimal.NewFromInt(100)

type Line struct {
	UnitPrice    decimal.Decimal
	Quantity     int
	LineDiscount decimal.Decimal
	Taxable      bool
}

// TaxPolicy is a flat rate applied to the taxable, net-of-discount subset of a sale.
type TaxPolicy struct {
	RatePercent decimal.Decimal
}

type LineTotals struct {
	Gross        decimal.Decimal
	LineDiscount decimal.Decimal
	ManualShare  decimal.Decimal
	TaxableBase  decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
}

type Totals struct {
	Lines          []LineTotals
	TotalGross     decimal.Decimal
	LineDiscount   decimal.Decimal
	ManualDiscount decimal.Decimal
	TotalDiscount  decimal.Decimal
	TaxableBase    decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalNet       decimal.Decimal
}

type DiscountExceededError struct {
	Gross        decimal.Decimal
	Discount     decimal.Decimal
	LimitPercent decimal.Decimal
	Allowed      decimal.Decimal
}

func (e *DiscountExceededError) Error() string {
	return fmt.Sprintf("discount %s exceeds %s%% of gross %s (allowed %s)",
		e.Discount.String(), e.LimitPercent.String(), e.Gross.String(), e.Allowed.String())
}

func (e *DiscountExceededError) Is(target error) bool {
	return target == ErrDiscountExceeded
}

type PaymentMismatchError struct {
	Paid       decimal.Decimal
	TotalNet   decimal.Decimal
	Difference decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payments %s do not match net total %s (difference %s)",
		e.Paid.String(), e.TotalNet.String(), e.Difference.String())
}

func (e *PaymentMismatchError) Is(target error) bool {
	return target == ErrPaymentMismatch
}

// Calculate prices a sale. The manual discount is spread over lines in
// proportion to their net-of-line-discount value, and tax is rounded to whole
// currency units per taxable line before being summed.
func Calculate(lines []Line, manualDiscount decimal.Decimal, policy TaxPolicy) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, fmt.Errorf("%w: no lines", ErrInvalidInput)
	}
	if manualDiscount.IsNegative() {
		return Totals{}, fmt.Errorf("%w: negative manual discount", ErrInvalidInput)
	}
	if policy.RatePercent.IsNegative() || policy.RatePercent.GreaterThan(hundred) {
		return Totals{}, fmt.Errorf("%w: tax rate %s out of range", ErrInvalidInput, policy.RatePercent.String())
	}

	out := Totals{
		Lines:          make([]LineTotals, len(lines)),
		ManualDiscount: manualDiscount,
	}

	nets := make([]decimal.Decimal, len(lines))
	netSum := decimal.Zero
	for i, line := range lines {
		if line.Quantity < 1 {
			return Totals{}, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidInput, i)
		}
		if line.UnitPrice.IsNegative() || line.LineDiscount.IsNegative() {
			return Totals{}, fmt.Errorf("%w: line %d has negative price or discount", ErrInvalidInput, i)
		}
		gross := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if line.LineDiscount.GreaterThan(gross) {
			return Totals{}, fmt.Errorf("%w: line %d discount exceeds line gross", ErrInvalidInput, i)
		}
		nets[i] = gross.Sub(line.LineDiscount)
		netSum = netSum.Add(nets[i])

		out.Lines[i].Gross = gross
		out.Lines[i].LineDiscount = line.LineDiscount
		out.TotalGross = out.TotalGross.Add(gross)
		out.LineDiscount = out.LineDiscount.Add(line.LineDiscount)
	}
	if manualDiscount.GreaterThan(netSum) {
		return Totals{}, fmt.Errorf("%w: manual discount exceeds net of line discounts", ErrInvalidInput)
	}

	rate := policy.RatePercent.Div(hundred)
	for i, line := range lines {
		share := decimal.Zero
		if manualDiscount.IsPositive() {
			share = manualDiscount.Mul(nets[i]).Div(netSum)
		}
		lt := &out.Lines[i]
		lt.ManualShare = share
		lt.Tax = decimal.Zero
		if line.Taxable {
			lt.TaxableBase = nets[i].Sub(share)
			lt.Tax = lt.TaxableBase.Mul(rate).Round(0)
			out.TaxableBase = out.TaxableBase.Add(lt.TaxableBase)
		}
		lt.Total = lt.Gross.Sub(lt.LineDiscount).Add(lt.Tax)
		out.TaxAmount = out.TaxAmount.Add(lt.Tax)
	}

	out.TotalDiscount = out.LineDiscount.Add(manualDiscount)
	out.TotalNet = out.TotalGross.Sub(out.TotalDiscount).Add(out.TaxAmount)
	return out, nil
}

// EnforceDiscountLimit rejects a discount above limitPercent of gross.
func EnforceDiscountLimit(gross, discount, limitPercent decimal.Decimal) error {
	allowed := gross.Mul(limitPercent).Div(hundred)
	if discount.GreaterThan(allowed) {
		return &DiscountExceededError{
			Gross:        gross,
			Discount:     discount,
			LimitPercent: limitPercent,
			Allowed:      allowed,
		}
	}
	return nil
}

// EnsurePaymentsCoverTotal rejects both over- and under-payment beyond PaymentEpsilon.
func EnsurePaymentsCoverTotal(amounts []decimal.Decimal, totalNet decimal.Decimal) error {
	paid := decimal.Sum(decimal.Zero, amounts...)
	diff := paid.Sub(totalNet)
	if diff.Abs().GreaterThan(PaymentEpsilon) {
		return &PaymentMismatchError{Paid: paid, TotalNet: totalNet, Difference: diff}
	}
	return nil
}
