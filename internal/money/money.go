// Package money converts between decimal amounts and integer minor units.
package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of minor units (paise, cents) in one major unit
const MinorUnitsPerMajor = 100

// ErrInvalidAmount is returned for amounts that are not finite, not positive, or too large
var ErrInvalidAmount = errors.New("invalid amount")

// Exponents outside this window are rejected before any arithmetic; rescaling
// to them costs time proportional to the exponent.
const (
	minExponent = -18
	maxExponent = 18
)

var (
	factor   = decimal.NewFromInt(MinorUnitsPerMajor)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// Amount is a caller-supplied decimal amount in major units.
// It decodes from either a JSON string or a JSON number.
type Amount string

// Minor converts the amount to positive integer minor units
func (a Amount) Minor() (int64, error) {
	return Parse(string(a))
}

// UnmarshalJSON accepts "12.50" and 12.50 alike
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	*a = Amount(n.String())
	return nil
}

// Parse converts a decimal string in major units to positive minor units,
// rounding half away from zero.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: not a number", ErrInvalidAmount)
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return 0, fmt.Errorf("%w: exponent out of range", ErrInvalidAmount)
	}
	return toMinor(d)
}

func toMinor(d decimal.Decimal) (int64, error) {
	minor := d.Mul(factor).Round(0)
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: exceeds the maximum amount", ErrInvalidAmount)
	}
	if !minor.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than 0", ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

// Format renders minor units as a major-unit decimal string with two places
func Format(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
