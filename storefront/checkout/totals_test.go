package checkout

import (
	"testing"

	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		items     []domain.LineItem
		tip       float64
		surcharge float64
		want      domain.Totals
	}{
		{
			name:      "items total 3000",
			items:     []domain.LineItem{{ProductID: "a", Price: 1000, Count: 2}, {ProductID: "b", Price: 500, Count: 2}},
			tip:       75,
			surcharge: 100,
			want:      domain.Totals{ItemTotal: 3000, Tax: 204, Tip: 75, SlotSurcharge: 100, Total: 3379},
		},
		{
			name: "empty cart",
			want: domain.Totals{},
		},
		{
			name:  "tax rounds half up",
			items: []domain.LineItem{{ProductID: "a", Price: 125, Count: 1}},
			// 125 * 0.068 = 8.5
			want: domain.Totals{ItemTotal: 125, Tax: 9, Total: 134},
		},
		{
			name:  "tax rounds down below half",
			items: []domain.LineItem{{ProductID: "a", Price: 499, Count: 1}},
			// 33.932
			want: domain.Totals{ItemTotal: 499, Tax: 34, Total: 533},
		},
		{
			name:      "negative inputs count as zero",
			items:     []domain.LineItem{{ProductID: "a", Price: 100, Count: 1}},
			tip:       -50,
			surcharge: -10,
			want:      domain.Totals{ItemTotal: 100, Tax: 7, Total: 107},
		},
		{
			name:  "fractional prices",
			items: []domain.LineItem{{ProductID: "a", Price: price.Amount(price.Normalize("₹0.10")), Count: 3}},
			tip:   25,
			want:  domain.Totals{ItemTotal: 0.3, Tax: 0, Tip: 25, Total: 25.3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Calculate(tt.items, tt.tip, tt.surcharge))
		})
	}
}

func TestCalculate_IsPure(t *testing.T) {
	items := []domain.LineItem{{ProductID: "a", Price: 1499, Count: 2}}
	first := Calculate(items, 50, 0)
	assert.Equal(t, first, Calculate(items, 50, 0))
	assert.Equal(t, 2, items[0].Count)
}

func TestResolveTip(t *testing.T) {
	assert.Equal(t, 75.0, ResolveTip(75, 0, false))
	assert.Equal(t, 0.0, ResolveTip(60, 0, false))
	assert.Equal(t, 40.0, ResolveTip(0, 40, true))
	assert.Equal(t, 25.0, ResolveTip(0, 25, true))
	assert.Equal(t, 0.0, ResolveTip(100, 24.99, true))
}

func TestCategoryTotals(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "a", Price: 300, Count: 2, Category: "cleaning"},
		{ProductID: "b", Price: 150, Count: 1, Category: "cleaning"},
		{ProductID: "c", Price: 99, Count: 1},
	}
	assert.Equal(t, map[string]float64{"cleaning": 750, "other": 99}, CategoryTotals(items))
}

func TestCanIncrement(t *testing.T) {
	assert.True(t, CanIncrement(2))
	assert.False(t, CanIncrement(MaxLineCount))
}
