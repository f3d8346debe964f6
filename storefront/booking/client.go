package booking

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/homeservices/storefront/apiclient"
	"github.com/fjod/homeservices/storefront/domain"
)

const (
	bookingsPath         = "/api/v1/bookings"
	headerIdempotencyKey = "Idempotency-Key"
)

// HTTPClient talks to the booking service through the gateway.
type HTTPClient struct {
	api *apiclient.Client
}

func NewHTTPClient(api *apiclient.Client) *HTTPClient {
	return &HTTPClient{api: api}
}

func (c *HTTPClient) Submit(ctx context.Context, idempotencyKey string, rec domain.BookingRecord) (domain.Confirmation, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{headerIdempotencyKey: []string{idempotencyKey}}
	}
	var conf domain.Confirmation
	err := c.api.DoWithHeader(ctx, http.MethodPost, bookingsPath, header, rec, &conf)
	return conf, err
}

func (c *HTTPClient) List(ctx context.Context) ([]domain.BookingRecord, error) {
	var out []domain.BookingRecord
	if err := c.api.Do(ctx, http.MethodGet, bookingsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Get(ctx context.Context, id string) (domain.BookingRecord, error) {
	var out domain.BookingRecord
	err := c.api.Do(ctx, http.MethodGet, bookingsPath+"/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	return c.api.Do(ctx, http.MethodDelete, bookingsPath+"/"+url.PathEscape(id), nil, nil)
}
