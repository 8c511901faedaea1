package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

func TestParseDecimalAmountValid(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     string
	}{
		{"1.5 with 18 decimals", "1.5", 18, "1500000000000000000"},
		{"0.1 with 8 decimals", "0.1", 8, "10000000"},
		{"100 no decimal", "100", 18, "100000000000000000000"},
		{".5 no integer", ".5", 18, "500000000000000000"},
		{"0 value", "0", 18, "0"},
		{"0.0 value", "0.0", 8, "0"},
		{"many decimals truncated", "1.123456789012345678901234", 18, "1123456789012345678"},
		{"fewer decimals padded", "1.1", 8, "110000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalAmount(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDecimalAmountInvalid(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
	}{
		{"empty string", "", 18},
		{"negative", "-1", 18},
		{"multiple decimals", "1.2.3", 18},
		{"letters", "abc", 18},
		{"letters in decimal", "1.abc", 18},
		{"letters in integer", "abc.1", 18},
		{"spaces", " 1.5", 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecimalAmount(tt.amount, tt.decimals)
			require.ErrorIs(t, err, halerr.ErrInvalidRequest)
		})
	}
}

func TestFormatDecimalAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals int
		want     string
	}{
		{"1.5 ETH", new(big.Int).SetUint64(1500000000000000000), 18, "1.5"},
		{"nil amount", nil, 18, "0"},
		{"zero", big.NewInt(0), 8, "0.0"},
		{"small value", big.NewInt(1), 18, "0.000000000000000001"},
		{"large value", mustBigInt("123456789012345678901234567890"), 18, "123456789012.34567890123456789"},
		{"negative", big.NewInt(-1500000000000000000), 18, "-1.5"},
		{"negative with trailing zeros", big.NewInt(-10000000), 8, "-0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDecimalAmount(tt.amount, tt.decimals))
		})
	}
}

func mustBigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big int: " + s)
	}
	return n
}
