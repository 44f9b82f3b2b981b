package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestComputeRecap(t *testing.T) {
	lines := []Line{
		{Quantity: dec(t, "10"), UnitPrice: dec(t, "2.000"), VATPct: dec(t, "19")},
		{Quantity: dec(t, "2"), UnitPrice: dec(t, "2.500"), DiscountPct: dec(t, "10"), VATPct: dec(t, "7")},
	}

	totals := Compute(lines, Adjustments{})

	assert.Equal(t, "25.000", Money(totals.NetAmount))
	assert.Equal(t, "0.500", Money(totals.Discount))
	assert.Equal(t, "24.500", Money(totals.NetAfterDiscount))
	assert.Equal(t, "4.115", Money(totals.VAT))
	assert.Equal(t, "1.00", Percent(totals.FodecPct))
	assert.Equal(t, "0.245", Money(totals.Fodec))
	assert.Equal(t, "0.000", Money(totals.StampDuty))
	assert.Equal(t, "28.860", Money(totals.GrandTotal))

	assert.Equal(t, "0.000", Money(totals.Buckets[0].Base))
	assert.Equal(t, "4.500", Money(totals.Buckets[1].Base))
	assert.Equal(t, "0.315", Money(totals.Buckets[1].VAT))
	assert.Equal(t, "0.000", Money(totals.Buckets[2].Base))
	assert.Equal(t, "20.000", Money(totals.Buckets[3].Base))
	assert.Equal(t, "3.800", Money(totals.Buckets[3].VAT))
	assert.True(t, totals.Unbucketed.IsZero())
}

func TestComputeAlwaysReportsFourBuckets(t *testing.T) {
	totals := Compute(nil, Adjustments{})

	require.Len(t, totals.Buckets, 4)
	for i, rate := range StandardRates {
		assert.Equal(t, rate, totals.Buckets[i].Rate)
		assert.True(t, totals.Buckets[i].Base.IsZero())
		assert.True(t, totals.Buckets[i].VAT.IsZero())
	}
	assert.Equal(t, "0.000", Money(totals.GrandTotal))
}

func TestComputeNonStandardRateIsUnbucketed(t *testing.T) {
	lines := []Line{
		{Quantity: dec(t, "1"), UnitPrice: dec(t, "10"), VATPct: dec(t, "12")},
		{Quantity: dec(t, "1"), UnitPrice: dec(t, "5"), VATPct: dec(t, "12")},
		{Quantity: dec(t, "1"), UnitPrice: dec(t, "100"), VATPct: dec(t, "19")},
	}

	totals := Compute(lines, Adjustments{})

	assert.Equal(t, "15.000", Money(totals.Unbucketed))
	assert.Equal(t, []string{"12"}, totals.UnbucketedRates)
	assert.Equal(t, "115.000", Money(totals.NetAfterDiscount))
	assert.Equal(t, "19.000", Money(totals.VAT))
	assert.False(t, IsStandardRate(dec(t, "12")))
	assert.True(t, IsStandardRate(dec(t, "13.00")))
}

func TestComputeAdjustments(t *testing.T) {
	zero := decimal.Zero
	lines := []Line{{Quantity: dec(t, "3"), UnitPrice: dec(t, "1.250"), VATPct: dec(t, "0")}}

	totals := Compute(lines, Adjustments{FodecPct: &zero, StampDuty: dec(t, "1")})

	assert.Equal(t, "3.750", Money(totals.NetAfterDiscount))
	assert.True(t, totals.Fodec.IsZero())
	assert.Equal(t, "3.750", Money(totals.Buckets[0].Base))
	assert.Equal(t, "4.750", Money(totals.GrandTotal))
}

func TestLineNet(t *testing.T) {
	line := Line{Quantity: dec(t, "4"), UnitPrice: dec(t, "12.345"), DiscountPct: dec(t, "12.5")}
	assert.Equal(t, "49.380", Money(line.Gross()))
	assert.Equal(t, "43.208", Money(Round3(line.Net())))
}
