// Package pricing computes the totals and VAT recap of a formal quote.
package pricing

import (
	"github.com/shopspring/decimal"
)

// StandardRates are the only VAT rates with their own recap bucket, in
// display order.
var StandardRates = []int32{0, 7, 13, 19}

// DefaultFodecPct applies when a quote does not set its own FODEC rate.
var DefaultFodecPct = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// Line is the priced part of a quote row.
type Line struct {
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	DiscountPct decimal.Decimal `json:"discountPct"`
	VATPct      decimal.Decimal `json:"vatPct"`
}

// Gross is quantity times unit price.
func (l Line) Gross() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Net is the gross amount after the line discount.
func (l Line) Net() decimal.Decimal {
	return l.Gross().Mul(hundred.Sub(l.DiscountPct)).Div(hundred)
}

// Adjustments are the quote-level inputs of the recap.
type Adjustments struct {
	// FodecPct overrides DefaultFodecPct when set.
	FodecPct  *decimal.Decimal `json:"fodecPct,omitempty"`
	StampDuty decimal.Decimal  `json:"stampDuty"`
}

// Bucket is the taxable base and VAT amount of one standard rate.
type Bucket struct {
	Rate int32
	Base decimal.Decimal
	VAT  decimal.Decimal
}

// Totals is the full recap of a quote. Amounts are unrounded; use Round3
// for display.
type Totals struct {
	NetAmount        decimal.Decimal
	Discount         decimal.Decimal
	NetAfterDiscount decimal.Decimal
	FodecPct         decimal.Decimal
	Fodec            decimal.Decimal
	VAT              decimal.Decimal
	StampDuty        decimal.Decimal
	GrandTotal       decimal.Decimal
	Buckets          [4]Bucket

	// Unbucketed is the net base of lines whose VAT rate is not standard.
	// Those lines count in the net totals but carry no VAT.
	Unbucketed      decimal.Decimal
	UnbucketedRates []string
}

// IsStandardRate reports whether pct has its own recap bucket.
func IsStandardRate(pct decimal.Decimal) bool {
	return bucketIndex(pct) >= 0
}

func bucketIndex(pct decimal.Decimal) int {
	for i, rate := range StandardRates {
		if pct.Equal(decimal.NewFromInt32(rate)) {
			return i
		}
	}
	return -1
}

// Compute builds the recap for the given lines.
func Compute(lines []Line, adj Adjustments) Totals {
	var t Totals
	for i, rate := range StandardRates {
		t.Buckets[i] = Bucket{Rate: rate, Base: decimal.Zero, VAT: decimal.Zero}
	}
	t.NetAmount = decimal.Zero
	t.Discount = decimal.Zero
	t.NetAfterDiscount = decimal.Zero
	t.Unbucketed = decimal.Zero

	seen := make(map[string]struct{})
	for _, line := range lines {
		gross := line.Gross()
		net := line.Net()
		t.NetAmount = t.NetAmount.Add(gross)
		t.Discount = t.Discount.Add(gross.Sub(net))
		t.NetAfterDiscount = t.NetAfterDiscount.Add(net)

		idx := bucketIndex(line.VATPct)
		if idx < 0 {
			t.Unbucketed = t.Unbucketed.Add(net)
			key := line.VATPct.String()
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				t.UnbucketedRates = append(t.UnbucketedRates, key)
			}
			continue
		}
		t.Buckets[idx].Base = t.Buckets[idx].Base.Add(net)
	}

	t.VAT = decimal.Zero
	for i := range t.Buckets {
		b := &t.Buckets[i]
		b.VAT = b.Base.Mul(decimal.NewFromInt32(b.Rate)).Div(hundred)
		t.VAT = t.VAT.Add(b.VAT)
	}

	t.FodecPct = DefaultFodecPct
	if adj.FodecPct != nil {
		t.FodecPct = *adj.FodecPct
	}
	t.Fodec = t.NetAfterDiscount.Mul(t.FodecPct).Div(hundred)
	t.StampDuty = adj.StampDuty
	t.GrandTotal = t.NetAfterDiscount.Add(t.Fodec).Add(t.VAT).Add(t.StampDuty)
	return t
}

// Round3 rounds a currency amount to millimes.
func Round3(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// Money formats a currency amount with three decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(3)
}

// Percent formats a rate or quantity with two decimals.
func Percent(d decimal.Decimal) string {
	return d.StringFixed(2)
}
