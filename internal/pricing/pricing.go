package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice parses a base-10 decimal price string. Negative values are
// rejected; marketplaces never quote negative offers, so a negative here means
// a corrupt payload.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("negative price %q", s)
	}
	return d, nil
}

// FromRawAmount converts an integer token amount at the given decimals into a
// decimal price, e.g. ("150000000000000000", 18) -> 0.15.
func FromRawAmount(raw string, decimals int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("empty raw amount")
	}
	i, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("invalid raw amount %q", raw)
	}
	if i.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("negative raw amount %q", raw)
	}
	return decimal.NewFromBigInt(i, -decimals), nil
}

// ToRawAmount converts a decimal price into an integer token amount string at
// the given decimals, truncating any excess precision.
func ToRawAmount(d decimal.Decimal, decimals int32) string {
	return d.Shift(decimals).Truncate(0).String()
}

// FloorToTick floors d to the tick grid. Flooring, never rounding, guarantees
// the result does not exceed d. A non-positive tick returns d unchanged.
func FloorToTick(d, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return d
	}
	return d.Div(tick).Floor().Mul(tick)
}
