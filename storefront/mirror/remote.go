package mirror

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/homeservices/storefront/apiclient"
	"github.com/fjod/homeservices/storefront/domain"
)

// Remote is the cart collection resource as the syncer sees it.
type Remote interface {
	List(ctx context.Context) ([]domain.LineItem, error)
	Create(ctx context.Context, item domain.LineItem) (domain.LineItem, error)
	Update(ctx context.Context, serverID string, patch Patch) (domain.LineItem, error)
	Delete(ctx context.Context, serverID string) error
}

// Patch is a partial line update; nil fields are left alone remotely.
type Patch struct {
	Count   *int                `json:"count,omitempty"`
	Content []domain.SubService `json:"content,omitempty"`
}

const itemsPath = "/api/v1/cart/items"

// HTTPRemote talks to the cart service through the gateway.
type HTTPRemote struct {
	api *apiclient.Client
}

func NewHTTPRemote(api *apiclient.Client) *HTTPRemote {
	return &HTTPRemote{api: api}
}

func (r *HTTPRemote) List(ctx context.Context) ([]domain.LineItem, error) {
	var items []domain.LineItem
	if err := r.api.Do(ctx, http.MethodGet, itemsPath, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *HTTPRemote) Create(ctx context.Context, item domain.LineItem) (domain.LineItem, error) {
	item.ServerID = ""
	var created domain.LineItem
	err := r.api.Do(ctx, http.MethodPost, itemsPath, item, &created)
	return created, err
}

func (r *HTTPRemote) Update(ctx context.Context, serverID string, patch Patch) (domain.LineItem, error) {
	var updated domain.LineItem
	err := r.api.Do(ctx, http.MethodPut, itemsPath+"/"+url.PathEscape(serverID), patch, &updated)
	return updated, err
}

func (r *HTTPRemote) Delete(ctx context.Context, serverID string) error {
	return r.api.Do(ctx, http.MethodDelete, itemsPath+"/"+url.PathEscape(serverID), nil, nil)
}
