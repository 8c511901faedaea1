package chain

import (
	"math/big"
	"strings"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// ParseDecimalAmount parses a non-negative decimal string into smallest
// units. "1.5" with 18 decimals is 1500000000000000000. Excess decimal
// digits beyond the token's precision are truncated.
func ParseDecimalAmount(amount string, decimalPlaces int) (*big.Int, error) {
	invalid := halerr.Wrap(halerr.ErrInvalidRequest, "invalid amount %q", amount)

	if amount == "" || strings.HasPrefix(amount, "-") {
		return nil, invalid
	}
	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, invalid
	}

	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}
	intVal, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, invalid
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalPlaces)), nil)
	result := new(big.Int).Mul(intVal, scale)

	if len(parts) == 2 && parts[1] != "" {
		decPart := parts[1]
		for _, c := range decPart {
			if c < '0' || c > '9' {
				return nil, invalid
			}
		}
		for len(decPart) < decimalPlaces {
			decPart += "0"
		}
		decPart = decPart[:decimalPlaces]

		decVal, ok := new(big.Int).SetString(decPart, 10)
		if !ok {
			return nil, invalid
		}
		result.Add(result, decVal)
	}

	return result, nil
}

// FormatDecimalAmount renders smallest units as a decimal string,
// trimming trailing zeros. 1500000000000000000 with 18 decimals is
// "1.5".
func FormatDecimalAmount(amount *big.Int, decimalPlaces int) string {
	if amount == nil {
		return "0"
	}
	if amount.Sign() < 0 {
		return "-" + FormatDecimalAmount(new(big.Int).Abs(amount), decimalPlaces)
	}

	str := amount.String()
	for len(str) <= decimalPlaces {
		str = "0" + str
	}

	pos := len(str) - decimalPlaces
	result := str[:pos] + "." + str[pos:]
	for len(result) > 1 && result[len(result)-1] == '0' && result[len(result)-2] != '.' {
		result = result[:len(result)-1]
	}
	return result
}
