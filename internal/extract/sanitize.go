package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

var amountKeys = map[string]bool{
	"amount":         true,
	"total":          true,
	"agi":            true,
	"taxable_income": true,
	"tax":            true,
	"refund_or_owed": true,
	"federal_amount": true,
	"net_position":   true,
	"marginal":       true,
	"effective":      true,
}

// NormalizeAmounts walks a decoded JSON document and coerces money-like
// strings in amount fields to numbers ("$1,234.50" -> 1234.5, "(500)" ->
// -500, "24%" -> 0.24). Null members are dropped from objects, and so is a
// year given as 0 or blank. Values that
// cannot be coerced are left alone for schema validation to reject.
func NormalizeAmounts(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil || (k == "year" && unknownYear(val)) {
				delete(t, k)
				continue
			}
			if s, ok := val.(string); ok {
				if amountKeys[k] {
					if n, ok := parseMoney(s); ok {
						t[k] = n
					}
					continue
				}
				if k == "year" {
					if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
						t[k] = float64(n)
					}
				}
				continue
			}
			t[k] = NormalizeAmounts(val)
		}
		return t
	case []any:
		out := t[:0]
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, NormalizeAmounts(item))
		}
		return out
	default:
		return v
	}
}

// unknownYear reports a year the model left as 0 or blank.
func unknownYear(v any) bool {
	switch y := v.(type) {
	case json.Number:
		f, err := y.Float64()
		return err == nil && f == 0
	case float64:
		return y == 0
	case string:
		s := strings.TrimSpace(y)
		return s == "" || s == "0"
	}
	return false
}

func parseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		n /= 100
	}
	if neg {
		n = -n
	}
	return n, true
}
