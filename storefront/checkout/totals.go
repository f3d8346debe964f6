// Package checkout derives the charges shown at checkout from the cart and
// the customer's slot and tip choices.
package checkout

import (
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/shopspring/decimal"
)

// TaxRate is applied to the item total and rounded to whole rupees.
var TaxRate = decimal.RequireFromString("0.068")

// Tip presets offered at checkout; custom tips below MinCustomTip are not
// accepted.
var TipPresets = []float64{50, 75, 100}

const (
	MinCustomTip = 25.0
	// MaxLineCount is the most units of one line the storefront lets a
	// customer pick. The cart store itself does not enforce it.
	MaxLineCount = 3
)

// Calculate returns the totals for items with the given tip and slot
// surcharge. Negative tip or surcharge values count as zero.
func Calculate(items []domain.LineItem, tip, slotSurcharge float64) domain.Totals {
	itemTotal := domain.ItemTotal(items)
	tax := itemTotal.Mul(TaxRate).Round(0)

	t := nonNegative(tip)
	s := nonNegative(slotSurcharge)
	total := itemTotal.Add(tax).Add(t).Add(s)

	return domain.Totals{
		ItemTotal:     itemTotal.InexactFloat64(),
		Tax:           tax.InexactFloat64(),
		Tip:           t.InexactFloat64(),
		SlotSurcharge: s.InexactFloat64(),
		Total:         total.InexactFloat64(),
	}
}

func nonNegative(v float64) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ResolveTip turns the customer's tip choice into the amount charged: a
// preset is taken as is, a custom amount only when it reaches MinCustomTip.
func ResolveTip(preset float64, custom float64, useCustom bool) float64 {
	if useCustom {
		if custom < MinCustomTip {
			return 0
		}
		return custom
	}
	for _, p := range TipPresets {
		if p == preset {
			return p
		}
	}
	return 0
}

// CategoryTotals buckets line subtotals by category, as on the cart summary.
// Lines without a category fall under "other".
func CategoryTotals(items []domain.LineItem) map[string]float64 {
	sums := make(map[string]decimal.Decimal)
	for _, it := range items {
		cat := it.Category
		if cat == "" {
			cat = "other"
		}
		line := decimal.NewFromFloat(float64(it.Price)).Mul(decimal.NewFromInt(int64(it.Count)))
		sums[cat] = sums[cat].Add(line)
	}
	out := make(map[string]float64, len(sums))
	for cat, sum := range sums {
		out[cat] = sum.InexactFloat64()
	}
	return out
}

// CanIncrement reports whether one more unit of a line with count units may
// be added under MaxLineCount.
func CanIncrement(count int) bool {
	return count < MaxLineCount
}
