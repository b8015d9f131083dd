package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCalculateLineDiscountNoTax(t *testing.T) {
	totals, err := Calculate([]Line{
		{UnitPrice: d("85000"), Quantity: 2, LineDiscount: d("10000")},
	}, decimal.Zero, TaxPolicy{})
	require.NoError(t, err)

	assert.True(t, totals.TotalGross.Equal(d("170000")), "gross %s", totals.TotalGross)
	assert.True(t, totals.TotalDiscount.Equal(d("10000")), "discount %s", totals.TotalDiscount)
	assert.True(t, totals.TaxAmount.IsZero())
	assert.True(t, totals.TotalNet.Equal(d("160000")), "net %s", totals.TotalNet)
	assert.True(t, totals.Lines[0].Total.Equal(d("160000")))

	require.NoError(t, EnsurePaymentsCoverTotal([]decimal.Decimal{d("160000")}, totals.TotalNet))
}

func TestCalculateRoundsTaxPerLine(t *testing.T) {
	totals, err := Calculate([]Line{
		{UnitPrice: d("1005"), Quantity: 1, Taxable: true},
		{UnitPrice: d("1005"), Quantity: 1, Taxable: true},
	}, decimal.Zero, TaxPolicy{RatePercent: d("10")})
	require.NoError(t, err)

	// 100.5 per line rounds up twice; rounding the aggregate would give 201.
	assert.True(t, totals.Lines[0].Tax.Equal(d("101")), "line tax %s", totals.Lines[0].Tax)
	assert.True(t, totals.TaxAmount.Equal(d("202")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.TotalNet.Equal(d("2212")), "net %s", totals.TotalNet)
}

func TestCalculateProratesManualDiscountOntoTaxableBase(t *testing.T) {
	totals, err := Calculate([]Line{
		{UnitPrice: d("1000"), Quantity: 1, Taxable: true},
		{UnitPrice: d("1000"), Quantity: 1, Taxable: false},
	}, d("200"), TaxPolicy{RatePercent: d("10")})
	require.NoError(t, err)

	assert.True(t, totals.TaxableBase.Equal(d("900")), "taxable base %s", totals.TaxableBase)
	assert.True(t, totals.TaxAmount.Equal(d("90")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.TotalDiscount.Equal(d("200")))
	assert.True(t, totals.TotalNet.Equal(d("1890")), "net %s", totals.TotalNet)
	assert.True(t, totals.Lines[1].Tax.IsZero())
}

func TestCalculateRejectsInvalidLines(t *testing.T) {
	cases := map[string][]Line{
		"empty":             nil,
		"zero quantity":     {{UnitPrice: d("100"), Quantity: 0}},
		"negative price":    {{UnitPrice: d("-1"), Quantity: 1}},
		"negative discount": {{UnitPrice: d("100"), Quantity: 1, LineDiscount: d("-5")}},
		"discount > gross":  {{UnitPrice: d("100"), Quantity: 1, LineDiscount: d("101")}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Calculate(lines, decimal.Zero, TaxPolicy{})
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := Calculate([]Line{{UnitPrice: d("100"), Quantity: 1}}, d("150"), TaxPolicy{})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Calculate([]Line{{UnitPrice: d("100"), Quantity: 1}}, decimal.Zero, TaxPolicy{RatePercent: d("101")})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEnforceDiscountLimit(t *testing.T) {
	require.NoError(t, EnforceDiscountLimit(d("100000"), d("50000"), d("50")))

	err := EnforceDiscountLimit(d("100000"), d("60000"), d("50"))
	require.ErrorIs(t, err, ErrDiscountExceeded)

	var exceeded *DiscountExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.True(t, exceeded.Allowed.Equal(d("50000")))
	assert.True(t, exceeded.Discount.Equal(d("60000")))
}

func TestEnsurePaymentsCoverTotal(t *testing.T) {
	total := d("160000")

	require.NoError(t, EnsurePaymentsCoverTotal([]decimal.Decimal{d("100000"), d("60000")}, total))
	require.NoError(t, EnsurePaymentsCoverTotal([]decimal.Decimal{d("160000.4")}, total))
	require.NoError(t, EnsurePaymentsCoverTotal([]decimal.Decimal{d("159999.5")}, total))

	err := EnsurePaymentsCoverTotal([]decimal.Decimal{d("159000")}, total)
	require.ErrorIs(t, err, ErrPaymentMismatch)

	var mismatch *PaymentMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.True(t, mismatch.Difference.Equal(d("-1000")))

	err = EnsurePaymentsCoverTotal([]decimal.Decimal{d("160001")}, total)
	require.ErrorIs(t, err, ErrPaymentMismatch)
}
