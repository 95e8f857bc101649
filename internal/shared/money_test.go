package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	require.Equal(t, "$0.00", FormatMoney(decimal.Zero))
	require.Equal(t, "$1,234.50", FormatMoney(decimal.RequireFromString("1234.5")))
	require.Equal(t, "-$10.01", FormatMoney(decimal.RequireFromString("-10.005")))
}
