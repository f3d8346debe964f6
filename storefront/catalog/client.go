// Package catalog reads packages and time slots from the catalog service
// and turns a package selection into a cart line.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/homeservices/storefront/apiclient"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/shopspring/decimal"
)

const basePath = "/api/v1/catalog"

var ErrUnknownAddon = errors.New("addon is not offered with this package")

type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if err := c.api.Do(ctx, http.MethodGet, basePath+"/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Packages lists packages, narrowed to category when it is not empty.
func (c *Client) Packages(ctx context.Context, category string) ([]domain.Package, error) {
	path := basePath + "/packages"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out []domain.Package
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Package(ctx context.Context, id string) (domain.Package, error) {
	var out domain.Package
	err := c.api.Do(ctx, http.MethodGet, basePath+"/packages/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Slots(ctx context.Context) ([]domain.TimeSlot, error) {
	var out []domain.TimeSlot
	if err := c.api.Do(ctx, http.MethodGet, basePath+"/slots", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LineFromPackage builds the cart line for pkg with the chosen addons.
// The unit price is the sum of the package's services and the addons,
// falling back to the package's list price when it has no priced services.
// A positive override replaces the computed price.
func LineFromPackage(pkg domain.Package, addons []string, override float64) (domain.LineItem, error) {
	offered := make(map[string]domain.SubService, len(pkg.Addons))
	for _, a := range pkg.Addons {
		offered[a.Details] = a
	}
	var extras []domain.SubService
	for _, name := range addons {
		a, ok := offered[name]
		if !ok {
			return domain.LineItem{}, fmt.Errorf("%w: %q", ErrUnknownAddon, name)
		}
		extras = append(extras, a)
	}

	base := sum(pkg.Items)
	if base.IsZero() {
		base = decimal.NewFromFloat(pkg.Price.Float64())
	}
	unit := base.Add(sum(extras))
	if override > 0 {
		unit = decimal.NewFromFloat(override)
	}

	content := append(append([]domain.SubService(nil), pkg.Items...), extras...)
	return domain.LineItem{
		ProductID:       pkg.ID,
		Title:           pkg.Name,
		Price:           price.Amount(unit.InexactFloat64()),
		Count:           1,
		Content:         content,
		SavedSelections: extras,
		Category:        pkg.Category,
	}, nil
}

func sum(services []domain.SubService) decimal.Decimal {
	total := decimal.Zero
	for _, s := range services {
		total = total.Add(decimal.NewFromFloat(s.Price.Float64()))
	}
	return total
}
