package domain

import "github.com/fjod/homeservices/storefront/price"

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Package is a purchasable bundle as the catalog returns it.
type Package struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Price    price.Amount `json:"price"`
	Items    []SubService `json:"items"`
	Addons   []SubService `json:"addons,omitempty"`
	Category string       `json:"category"`
}

// TimeSlot is a bookable visit window; ExtraCharge is the slot surcharge.
type TimeSlot struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	ExtraCharge price.Amount `json:"extraCharge"`
}
