// Package price turns the loosely typed prices found in catalog data and
// client payloads ("₹1,499", "499", 499.0, null) into one numeric form.
package price

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencySymbol is prefixed by Format.
const CurrencySymbol = "₹"

var (
	// currency words and symbols, including the ASCII rupee "Rs." whose
	// dot must not reach the number
	currency = regexp.MustCompile(`(?i)\b(?:rs\.?|inr|usd)|[₹$€£]`)
	// "₹499/-" marks a whole-rupee amount
	wholeSuffix = regexp.MustCompile(`/[-=]\s*$`)
	separators  = regexp.MustCompile(`[,\s_]`)
	number      = regexp.MustCompile(`[-+]?(?:\d+(?:\.\d+)?|\.\d+)`)
)

// Normalize returns the numeric value of v. Strings lose currency symbols,
// thousands separators and whitespace, then the first number in what is
// left is parsed. nil, empty and unparseable input yield 0; Normalize
// never panics.
func Normalize(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case Amount:
		return finite(float64(x))
	case decimal.Decimal:
		return x.InexactFloat64()
	case json.Number:
		return parse(string(x))
	case string:
		return parse(x)
	case *string:
		if x == nil {
			return 0
		}
		return parse(*x)
	case *float64:
		if x == nil {
			return 0
		}
		return finite(*x)
	default:
		return 0
	}
}

func parse(s string) float64 {
	s = wholeSuffix.ReplaceAllString(s, "")
	s = currency.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "")
	loc := number.FindStringIndex(s)
	if loc == nil {
		return 0
	}
	// "1.2.3" has no single reading
	if rest := s[loc[1]:]; len(rest) > 1 && rest[0] == '.' && rest[1] >= '0' && rest[1] <= '9' {
		return 0
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s[loc[0]:loc[1]], "+"))
	if err != nil {
		return 0
	}
	f, _ := strconv.ParseFloat(d.String(), 64)
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var printer = message.NewPrinter(language.English)

// Format renders v for display, e.g. 1499.5 -> "₹1,499.5". The fraction
// uses the shortest representation that parses back to v, so
// Normalize(Format(Normalize(x))) == Normalize(x).
func Format(v float64) string {
	v = finite(v)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	text := strconv.FormatFloat(v, 'f', -1, 64)
	whole, frac, _ := strings.Cut(text, ".")

	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		// beyond int64, skip grouping
		return sign + CurrencySymbol + text
	}
	grouped := printer.Sprintf("%d", n)
	if frac != "" {
		grouped += "." + frac
	}
	return sign + CurrencySymbol + grouped
}
