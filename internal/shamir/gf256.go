package shamir

import "sync"

// gf256.go implements arithmetic in GF(2^8) with the Rijndael field
// polynomial x^8 + x^4 + x^3 + x + 1 (0x11b), using log/exp tables
// built from the generator g=3.

const (
	primitivePolynomial = 0x11b
	fieldSize           = 256
)

var (
	//nolint:gochecknoglobals // precomputed table
	expTable [fieldSize]byte
	//nolint:gochecknoglobals // precomputed table
	logTable [fieldSize]byte
	//nolint:gochecknoglobals // one-time table initialization
	tablesInit sync.Once
)

func initTables() {
	tablesInit.Do(func() {
		var x uint16 = 1
		for i := 0; i < fieldSize-1; i++ {
			expTable[i] = byte(x)
			logTable[x] = byte(i)

			// Multiply by the generator 3: x*3 = (x<<1) ^ x, reduced mod 0x11b.
			x = (x << 1) ^ x
			if x >= fieldSize {
				x ^= primitivePolynomial
			}
		}
	})
}

// gfAdd adds two field elements. Addition in GF(2^n) is XOR.
func gfAdd(a, b byte) byte {
	return a ^ b
}

// gfSub subtracts two field elements. Identical to addition in GF(2^n).
func gfSub(a, b byte) byte {
	return a ^ b
}

// gfMul multiplies two field elements via the log/exp tables.
func gfMul(a, b byte) byte {
	initTables()
	if a == 0 || b == 0 {
		return 0
	}
	logA := int(logTable[a])
	logB := int(logTable[b])
	return expTable[(logA+logB)%(fieldSize-1)]
}

// gfDiv divides a by b. Division by zero cannot occur for valid share sets
// because duplicate x-coordinates are filtered before interpolation.
func gfDiv(a, b byte) byte {
	initTables()
	if b == 0 {
		panic("division by zero in GF(2^8)")
	}
	if a == 0 {
		return 0
	}
	diff := (int(logTable[a]) - int(logTable[b])) % (fieldSize - 1)
	if diff < 0 {
		diff += fieldSize - 1
	}
	return expTable[diff]
}
