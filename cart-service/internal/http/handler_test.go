package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/homeservices/cart-service/internal/domain"
	"github.com/fjod/homeservices/cart-service/internal/repository"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceMock struct {
	cart      *domain.Cart
	err       error
	added     domain.CartLine
	patch     domain.LinePatch
	removed   bool
	lastUser  string
	lastLine  string
	clearHits int
}

func (s *serviceMock) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	s.lastUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return s.cart, nil
}

func (s *serviceMock) AddLine(_ context.Context, userID string, line domain.CartLine) (domain.CartLine, error) {
	s.lastUser = userID
	s.added = line
	if s.err != nil {
		return domain.CartLine{}, s.err
	}
	line.ID = "line-1"
	return line, nil
}

func (s *serviceMock) UpdateLine(_ context.Context, userID, lineID string, patch domain.LinePatch) (domain.CartLine, bool, error) {
	s.lastUser, s.lastLine, s.patch = userID, lineID, patch
	if s.err != nil {
		return domain.CartLine{}, false, s.err
	}
	if s.removed {
		return domain.CartLine{}, true, nil
	}
	return domain.CartLine{ID: lineID, ProductID: "pkg-1", Count: *patch.Count}, false, nil
}

func (s *serviceMock) RemoveLine(_ context.Context, userID, lineID string) error {
	s.lastUser, s.lastLine = userID, lineID
	return s.err
}

func (s *serviceMock) ClearCart(_ context.Context, userID string) error {
	s.lastUser = userID
	s.clearHits++
	return s.err
}

func newRouter(svc CartService) http.Handler {
	r := chi.NewRouter()
	NewCartHandler(svc, 5*time.Second, nil).Routes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(httpx.HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListItems_Success(t *testing.T) {
	svc := &serviceMock{cart: &domain.Cart{
		UserID: "user-1",
		Items:  []domain.CartLine{{ID: "line-1", ProductID: "pkg-1", Title: "Sofa cleaning", Price: 799, Count: 2}},
	}}

	rec := doRequest(t, newRouter(svc), http.MethodGet, "/api/v1/cart/items", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []domain.CartLine
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "line-1", got[0].ID)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, "user-1", svc.lastUser)
}

func TestListItems_EmptyCartIsEmptyArray(t *testing.T) {
	svc := &serviceMock{cart: &domain.Cart{UserID: "user-1"}}

	rec := doRequest(t, newRouter(svc), http.MethodGet, "/api/v1/cart/items", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRoutes_RequireIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/items", nil)
	rec := httptest.NewRecorder()
	newRouter(&serviceMock{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddItem_Created(t *testing.T) {
	svc := &serviceMock{}
	body := map[string]any{
		"id":        "client-chosen",
		"productId": "pkg-1",
		"title":     "Sofa cleaning",
		"price":     "₹799",
		"count":     1,
	}

	rec := doRequest(t, newRouter(svc), http.MethodPost, "/api/v1/cart/items", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, svc.added.ID)
	assert.Equal(t, 799.0, svc.added.Price.Float64())

	var got domain.CartLine
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "line-1", got.ID)
}

func TestAddItem_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "missing product", body: map[string]any{"title": "x", "count": 1}},
		{name: "zero count", body: map[string]any{"productId": "pkg-1", "count": 0}},
		{name: "not an object", body: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceMock{}
			rec := doRequest(t, newRouter(svc), http.MethodPost, "/api/v1/cart/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.added.ProductID)
		})
	}
}

func TestUpdateItem(t *testing.T) {
	svc := &serviceMock{}

	rec := doRequest(t, newRouter(svc), http.MethodPut, "/api/v1/cart/items/line-7", map[string]any{"count": 4})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "line-7", svc.lastLine)
	require.NotNil(t, svc.patch.Count)
	assert.Equal(t, 4, *svc.patch.Count)
}

func TestUpdateItem_RemovedIsNoContent(t *testing.T) {
	svc := &serviceMock{removed: true}

	rec := doRequest(t, newRouter(svc), http.MethodPut, "/api/v1/cart/items/line-7", map[string]any{"count": 0})

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateItem_EmptyPatch(t *testing.T) {
	rec := doRequest(t, newRouter(&serviceMock{}), http.MethodPut, "/api/v1/cart/items/line-7", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateItem_NotFound(t *testing.T) {
	svc := &serviceMock{err: repository.ErrItemNotFound}

	rec := doRequest(t, newRouter(svc), http.MethodPut, "/api/v1/cart/items/gone", map[string]any{"count": 2})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveItem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "removed", want: http.StatusNoContent},
		{name: "unknown line", err: repository.ErrItemNotFound, want: http.StatusNotFound},
		{name: "storage failure", err: errors.New("mongo down"), want: http.StatusInternalServerError},
		{name: "timeout", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceMock{err: tt.err}
			rec := doRequest(t, newRouter(svc), http.MethodDelete, "/api/v1/cart/items/line-3", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "line-3", svc.lastLine)
		})
	}
}

func TestClearCart(t *testing.T) {
	svc := &serviceMock{}

	rec := doRequest(t, newRouter(svc), http.MethodDelete, "/api/v1/cart", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.clearHits)
}
