package price

import (
	"bytes"
	"encoding/json"
)

// Amount is a canonical numeric price. It accepts either a JSON number or a
// currency-formatted JSON string and always marshals as a number, so nothing
// past the decoding boundary has to care which one a producer sent.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || len(data) == 0 {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(Normalize(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*a = 0
		return nil
	}
	*a = Amount(Normalize(n))
	return nil
}

func (a Amount) Float64() float64 {
	return float64(a)
}

func (a Amount) String() string {
	return Format(float64(a))
}
