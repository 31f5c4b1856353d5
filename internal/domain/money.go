package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept on balances and amounts.
const AmountScale = 2

var (
	minorUnitsPerMajor = decimal.NewFromInt(100)

	MinDepositAmount  = decimal.RequireFromString("100.00")
	MaxDepositAmount  = decimal.RequireFromString("1000000.00")
	MinTransferAmount = decimal.RequireFromString("10.00")
)

// NormalizeAmount rounds d to the ledger scale.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// ParseAmount parses a decimal string and rejects values with more precision than the ledger keeps.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(NormalizeAmount(d)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", s, AmountScale)
	}
	return d, nil
}

// FromMinorUnits converts a provider amount (kobo, cents) to major units.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorUnitsPerMajor).Round(AmountScale)
}

// ToMinorUnits converts major units to the provider's minor unit, truncating sub-minor digits.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(minorUnitsPerMajor).IntPart()
}

// FormatAmount renders d with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}
