package price

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	s := "₹2,999"
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"rupee string", "₹499", 499},
		{"thousands separators", "₹1,49,999.50", 149999.5},
		{"dollar with spaces", " $ 12.75 ", 12.75},
		{"plain number string", "300", 300},
		{"float", 499.0, 499},
		{"int", 75, 75},
		{"int64", int64(100), 100},
		{"decimal", decimal.RequireFromString("19.99"), 19.99},
		{"json number", json.Number("42.5"), 42.5},
		{"string pointer", &s, 2999},
		{"nil", nil, 0},
		{"nil pointer", (*string)(nil), 0},
		{"empty", "", 0},
		{"letters only", "free", 0},
		{"garbage", "1.2.3", 0},
		{"NaN", math.NaN(), 0},
		{"Inf", math.Inf(1), 0},
		{"unsupported type", struct{}{}, 0},
		{"negative", "-₹50", -50},
		{"ascii rupee", "Rs. 499", 499},
		{"ascii rupee no space", "Rs.499", 499},
		{"ascii rupee grouped", "Rs 1,499.50", 1499.5},
		{"inr code", "INR 2,500", 2500},
		{"whole rupee suffix", "₹499/-", 499},
		{"whole rupee suffix ascii", "Rs.1,200/-", 1200},
		{"trailing text", "₹349 onwards", 349},
		{"leading plus", "+75", 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "₹499", Format(499))
	assert.Equal(t, "₹1,499.5", Format(1499.5))
	assert.Equal(t, "₹1,234,567.25", Format(1234567.25))
	assert.Equal(t, "-₹50", Format(-50))
	assert.Equal(t, "₹0", Format(math.NaN()))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []any{"₹499", "₹1,499.50", "Rs. 499", "Rs.499", "₹499/-", "INR 2,500", 0.1 + 0.2, 3379.0, "abc", nil, 1e15, -12.5, "₹0.05", 123456789.123}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(Format(once)), "input %v", in)
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var payload struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
		D Amount `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"₹1,299","b":450,"c":null,"d":"n/a"}`), &payload))
	assert.Equal(t, Amount(1299), payload.A)
	assert.Equal(t, Amount(450), payload.B)
	assert.Equal(t, Amount(0), payload.C)
	assert.Equal(t, Amount(0), payload.D)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1299,"b":450,"c":0,"d":0}`, string(out))
}
