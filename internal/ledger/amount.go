package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	amountPlaces      = 4
	defaultDecimals   = 6
	millisecondsFloor = 1_000_000_000_000
)

// ScaleRaw converts an integer token amount with the given decimals to 4-place fixed point.
func ScaleRaw(raw string, decimals int) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty raw amount")
	}
	if decimals < 0 || decimals > 36 {
		return decimal.Zero, fmt.Errorf("unsupported decimals %d", decimals)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid raw amount %q: %w", raw, err)
	}
	if !v.Equal(v.Truncate(0)) || v.IsNegative() {
		return decimal.Zero, fmt.Errorf("raw amount %q is not a non-negative integer", raw)
	}
	return v.Shift(int32(-decimals)).RoundBank(amountPlaces), nil
}

// ParseScaled parses an already scaled decimal string.
func ParseScaled(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", s)
	}
	return v.RoundBank(amountPlaces), nil
}

// ParseDecimals reads a decimals field that providers send either as a number or a string.
func ParseDecimals(v any) int {
	switch d := v.(type) {
	case json.Number:
		if n, err := d.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(d)
	case int:
		return d
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(d)); err == nil {
			return n
		}
	}
	return defaultDecimals
}

// RawString renders a raw amount sent either as a JSON number or a string.
func RawString(v any) string {
	switch r := v.(type) {
	case json.Number:
		return r.String()
	case string:
		return r
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64)
	default:
		return ""
	}
}

// UnixTimestamp accepts both millisecond and second epochs.
func UnixTimestamp(ts int64) time.Time {
	if ts > millisecondsFloor {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
