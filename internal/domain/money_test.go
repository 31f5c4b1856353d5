package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, "1500.50", FormatAmount(FromMinorUnits(150_050)))
	assert.Equal(t, "0.01", FormatAmount(FromMinorUnits(1)))
	assert.True(t, FromMinorUnits(0).IsZero())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(150_050), ToMinorUnits(decimal.RequireFromString("1500.50")))
	assert.Equal(t, int64(10_000), ToMinorUnits(decimal.NewFromInt(100)))
	// Sub-kobo digits are dropped rather than rounded up.
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.019")))
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("987654.32")
	assert.True(t, amount.Equal(FromMinorUnits(ToMinorUnits(amount))))
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("250.75")
	require.NoError(t, err)
	assert.Equal(t, "250.75", FormatAmount(d))

	_, err = ParseAmount("10.001")
	require.Error(t, err)

	_, err = ParseAmount("ten")
	require.Error(t, err)
}
