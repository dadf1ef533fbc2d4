// Package money implements the ledger's fixed-scale amount type.
//
// Spec §6 requires amounts to be carried internally as a scaled integer to
// avoid floating-point drift, with a free-text two-decimal-place external
// form. Amount is that scaled integer: one unit equals one hundredth of the
// currency's base denomination ("cents").
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of decimal places the external representation carries.
const Scale = 2

// scaleFactor is 10^Scale.
const scaleFactor = 100

// Amount is a signed fixed-point value, scaled by 10^Scale. Negative
// values can be represented and parsed; the core rejects them at the API
// boundary.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromCents wraps a raw scaled integer (already in hundredths).
func FromCents(cents int64) Amount {
	return Amount(cents)
}

// Cents returns the raw scaled integer value.
func (a Amount) Cents() int64 {
	return int64(a)
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// IsNegative reports whether the amount is less than zero. The core rejects
// negative amounts at the API boundary; this exists for that validation.
func (a Amount) IsNegative() bool {
	return a < 0
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MulFrac returns round(a * num / den), using round-half-away-from-zero,
// matching the spec's "round(x, 2)" offline-anchor rule when num/den
// expresses a decimal fraction (e.g. num=4, den=10 for 0.4).
func (a Amount) MulFrac(num, den int64) Amount {
	prod := int64(a) * num
	half := den / 2
	if prod >= 0 {
		return Amount((prod + half) / den)
	}
	return Amount((prod - half) / den)
}

// String renders the amount in its free-text two-decimal form, e.g. "12.34".
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / scaleFactor
	frac := v % scaleFactor
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// Parse reads the free-text two-decimal form ("12.34", "12", "-1.5") into
// an Amount. It rejects more than Scale fractional digits rather than
// silently rounding, since a caller supplying three decimals is almost
// always a unit-confusion bug.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var frac int64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > Scale {
			return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, Scale)
		}
		for len(fracStr) < Scale {
			fracStr += "0"
		}
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}

	total := whole*scaleFactor + frac
	if neg {
		total = -total
	}
	return Amount(total), nil
}
