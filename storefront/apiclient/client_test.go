package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SendsAuthAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"doubled": in["n"] * 2})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Token: "tok", Name: "test"})
	var out map[string]int
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/x", map[string]int{"n": 21}, &out))
	assert.Equal(t, 42, out["doubled"])
}

func TestDo_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"item not found in cart","code":"not_found"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Name: "test"})
	err := c.Do(context.Background(), http.MethodDelete, "/items/1", nil, nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "item not found in cart", apiErr.Message)
}
