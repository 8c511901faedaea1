// Package shamir implements Shamir's Secret Sharing over GF(2^8).
// Wallet seeds are split 2-of-3: any two shares reconstruct the seed,
// a single share reveals nothing about it.
package shamir

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Default split parameters for wallet seeds.
const (
	// DefaultShares is the number of shares generated per wallet seed.
	DefaultShares = 3

	// DefaultThreshold is the number of shares required to reconstruct.
	DefaultThreshold = 2
)

// Split divides a secret into n shares, requiring k shares to reconstruct.
// Each byte of the secret gets its own random polynomial of degree k-1, so
// shares from different Split calls over the same secret never cross-combine.
// Shares are encoded as halyard-v1-<threshold>-<index>-<hex>.
func Split(secret []byte, n, k int) ([]string, error) {
	if k < 2 {
		return nil, ErrThresholdInvalid
	}
	if n < k {
		return nil, ErrSharesInsufficient
	}
	if n > 255 {
		return nil, ErrSharesExceedMax
	}
	if len(secret) == 0 {
		return nil, ErrSecretEmpty
	}

	// (k-1) random coefficients per secret byte.
	coeffs := make([]byte, len(secret)*(k-1))
	if _, err := rand.Read(coeffs); err != nil {
		return nil, fmt.Errorf("generating random coefficients: %w", err)
	}

	return evaluatePolynomials(secret, coeffs, n, k), nil
}

// SplitSeed splits a wallet seed with the default 2-of-3 parameters.
func SplitSeed(seed []byte) ([]string, error) {
	return Split(seed, DefaultShares, DefaultThreshold)
}

func evaluatePolynomials(secret, coeffs []byte, n, k int) []string {
	shares := make([]string, n)

	for x := 1; x <= n; x++ {
		shareValue := make([]byte, len(secret))
		xByte := byte(x)

		for i, secretByte := range secret {
			// P(x) = secret[i] + c_1*x + ... + c_(k-1)*x^(k-1)
			coeffStart := i * (k - 1)

			val := secretByte
			xPoly := xByte

			for j := 0; j < k-1; j++ {
				c := coeffs[coeffStart+j]
				val = gfAdd(val, gfMul(c, xPoly))

				if j < k-2 {
					xPoly = gfMul(xPoly, xByte)
				}
			}
			shareValue[i] = val
		}

		shares[x-1] = fmt.Sprintf("halyard-v1-%d-%d-%x", k, x, shareValue)
	}

	return shares
}

// Combine reconstructs a secret from a list of shares. At least k unique
// shares are required, where k is the threshold embedded in the shares.
func Combine(shareStrings []string) ([]byte, error) {
	if len(shareStrings) == 0 {
		return nil, ErrNoShares
	}

	uniqueShares, secretLen, err := parseAndValidateShares(shareStrings)
	if err != nil {
		return nil, err
	}

	return interpolateSecret(uniqueShares, secretLen), nil
}

type parsedShare struct {
	x byte
	y []byte
}

func parseAndValidateShares(shareStrings []string) ([]parsedShare, int, error) {
	uniqueShares, firstThreshold, secretLen, err := processShares(shareStrings)
	if err != nil {
		return nil, 0, err
	}

	if len(uniqueShares) < firstThreshold {
		return nil, 0, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughUniqueShares, len(uniqueShares), firstThreshold)
	}

	return uniqueShares, secretLen, nil
}

func processShares(shareStrings []string) ([]parsedShare, int, int, error) {
	var firstThreshold int
	var secretLen int
	var uniqueShares []parsedShare
	usedIndices := make(map[byte]bool)

	for _, s := range shareStrings {
		p, k, err := parseShare(s)
		if err != nil {
			return nil, 0, 0, err
		}

		if len(uniqueShares) == 0 {
			firstThreshold = k
			secretLen = len(p.y)
		}

		if k != firstThreshold {
			return nil, 0, 0, ErrThresholdMismatch
		}
		if len(p.y) != secretLen {
			return nil, 0, 0, ErrLengthMismatch
		}

		if usedIndices[p.x] {
			continue // skip duplicate index
		}

		usedIndices[p.x] = true
		uniqueShares = append(uniqueShares, p)

		if len(uniqueShares) == firstThreshold {
			break
		}
	}
	return uniqueShares, firstThreshold, secretLen, nil
}

func parseShare(s string) (parsedShare, int, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return parsedShare{}, 0, fmt.Errorf("%w: %s", ErrInvalidShareFormat, s)
	}

	if parts[0] != "halyard" || parts[1] != "v1" {
		return parsedShare{}, 0, fmt.Errorf("%w: %s", ErrUnsupportedVersion, s)
	}

	k, err := strconv.Atoi(parts[2])
	if err != nil || k < 2 {
		return parsedShare{}, 0, fmt.Errorf("%w: %s", ErrInvalidThreshold, s)
	}

	idx, err := strconv.Atoi(parts[3])
	if err != nil || idx < 1 || idx > 255 {
		return parsedShare{}, 0, fmt.Errorf("%w: %s", ErrInvalidIndex, s)
	}

	val, err := hex.DecodeString(parts[4])
	if err != nil {
		return parsedShare{}, 0, fmt.Errorf("%w: %s", ErrInvalidHex, s)
	}

	return parsedShare{x: byte(idx), y: val}, k, nil
}

// interpolateSecret evaluates the Lagrange interpolation at x=0 for each
// byte position. The weights depend only on the x-coordinates, so they are
// computed once and reused across bytes.
func interpolateSecret(uniqueShares []parsedShare, secretLen int) []byte {
	weights := make([]byte, len(uniqueShares))
	for i, sI := range uniqueShares {
		weight := byte(1)
		for j, sJ := range uniqueShares {
			if i == j {
				continue
			}
			// weight *= x_j / (x_j - x_i); subtraction is XOR in GF(2^8).
			top := sJ.x
			bottom := gfSub(sJ.x, sI.x)
			weight = gfMul(weight, gfDiv(top, bottom))
		}
		weights[i] = weight
	}

	secret := make([]byte, secretLen)
	for i := 0; i < secretLen; i++ {
		var val byte
		for j, s := range uniqueShares {
			val = gfAdd(val, gfMul(s.y[i], weights[j]))
		}
		secret[i] = val
	}

	return secret
}

// Zero overwrites a raw secret byte slice. Share strings are immutable;
// callers should zero the reconstructed secret as soon as it is consumed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
