package transfer

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Lamport scale: 1 SOL = 10^9 lamports.
const (
	Decimals       = 9
	LamportsPerSOL = 1_000_000_000
)

// Exponent window accepted before any rescaling. Values outside it are
// either below one lamport or far above the uint64 range.
const (
	minExponent = -(Decimals + 30)
	maxExponent = 20
)

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ParseAmount parses a SOL amount. The result is positive, has at most
// nine fractional digits and fits in a uint64 lamport count.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	// Fractional lamports are rejected rather than rounded.
	if !d.Equal(d.Truncate(Decimals)) {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Shift(Decimals).GreaterThan(maxLamports) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ToLamports converts a SOL amount accepted by ParseAmount to lamports.
func ToLamports(sol decimal.Decimal) uint64 {
	return sol.Shift(Decimals).BigInt().Uint64()
}

// LamportsToSOL converts lamports to SOL without loss.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -Decimals)
}
