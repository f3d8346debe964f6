package domain

import (
	"github.com/fjod/homeservices/storefront/price"
	"github.com/shopspring/decimal"
)

// SubService is one service bundled into a line item, shown on receipts.
type SubService struct {
	Details string       `json:"details" bson:"details"`
	Price   price.Amount `json:"price" bson:"price"`
}

// LineItem is one cart entry. ProductID is its identity within a cart;
// ServerID is the id the remote mirror assigned to it, empty until known.
type LineItem struct {
	ProductID       string       `json:"productId"`
	ServerID        string       `json:"id,omitempty"`
	Title           string       `json:"title"`
	Price           price.Amount `json:"price"`
	Count           int          `json:"count"`
	Content         []SubService `json:"content,omitempty"`
	SavedSelections []SubService `json:"savedSelections,omitempty"`
	Category        string       `json:"category,omitempty"`
}

// Subtotal is the line's unit price times its count.
func (l LineItem) Subtotal() float64 {
	return float64(l.Price) * float64(l.Count)
}

// Clone returns a copy that shares no slices with l.
func (l LineItem) Clone() LineItem {
	out := l
	if l.Content != nil {
		out.Content = append([]SubService(nil), l.Content...)
	}
	if l.SavedSelections != nil {
		out.SavedSelections = append([]SubService(nil), l.SavedSelections...)
	}
	return out
}

func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// SumSubServices adds up the prices of the given sub-services.
func SumSubServices(services []SubService) float64 {
	var sum float64
	for _, s := range services {
		sum += float64(s.Price)
	}
	return sum
}

// ItemTotal is the exact sum of price*count over items.
func ItemTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		p := decimal.NewFromFloat(float64(it.Price))
		total = total.Add(p.Mul(decimal.NewFromInt(int64(it.Count))))
	}
	return total
}
