package shamir

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestSplitCombine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		secretLen int
		n, k      int
	}{
		{"SeedDefault", 32, 3, 2},
		{"ShortSecret", 16, 5, 3},
		{"LongSecret", 64, 5, 3},
		{"ThresholdSameAsN", 32, 5, 5},
		{"MinShares", 32, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			secret := make([]byte, tt.secretLen)
			if _, err := rand.Read(secret); err != nil {
				t.Fatalf("generating secret: %v", err)
			}

			shares, err := Split(secret, tt.n, tt.k)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if len(shares) != tt.n {
				t.Errorf("expected %d shares, got %d", tt.n, len(shares))
			}
			for _, s := range shares {
				if !strings.HasPrefix(s, "halyard-v1-") {
					t.Errorf("bad share prefix: %s", s)
				}
			}

			// All shares.
			recovered, err := Combine(shares)
			if err != nil {
				t.Fatalf("Combine with all shares: %v", err)
			}
			if !bytes.Equal(secret, recovered) {
				t.Errorf("recovered mismatch: got %x, want %x", recovered, secret)
			}

			// Exactly k shares, first and last subsets.
			for _, subset := range [][]string{shares[:tt.k], shares[len(shares)-tt.k:]} {
				got, err := Combine(subset)
				if err != nil {
					t.Fatalf("Combine with k shares: %v", err)
				}
				if !bytes.Equal(secret, got) {
					t.Errorf("subset recovered mismatch")
				}
			}
		})
	}
}

func TestSplitSeed_AnyTwoOfThree(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("generating seed: %v", err)
	}

	shares, err := SplitSeed(seed)
	if err != nil {
		t.Fatalf("SplitSeed: %v", err)
	}
	if len(shares) != DefaultShares {
		t.Fatalf("expected %d shares, got %d", DefaultShares, len(shares))
	}

	pairs := [][2]int{{0, 1}, {0, 2}, {1, 2}, {2, 0}}
	for _, p := range pairs {
		got, err := Combine([]string{shares[p[0]], shares[p[1]]})
		if err != nil {
			t.Fatalf("Combine(%d,%d): %v", p[0], p[1], err)
		}
		if !bytes.Equal(seed, got) {
			t.Errorf("pair (%d,%d) recovered mismatch", p[0], p[1])
		}
	}
}

func TestCombine_InsufficientShares(t *testing.T) {
	t.Parallel()

	secret := []byte("super secret entropy bytes here!")
	shares, err := Split(secret, 3, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if _, err := Combine(shares[:1]); err == nil {
		t.Error("expected error combining a single share")
	}

	// Duplicate of the same share does not count as two unique shares.
	if _, err := Combine([]string{shares[0], shares[0]}); err == nil {
		t.Error("expected error combining duplicate shares")
	}
}

func TestCombine_RotatedSharesDoNotCrossCombine(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("generating seed: %v", err)
	}

	oldShares, err := SplitSeed(seed)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	newShares, err := SplitSeed(seed)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}

	// One old + one new share with distinct indices parses fine but must not
	// reconstruct the seed (the random polynomials differ per split).
	got, err := Combine([]string{oldShares[0], newShares[1]})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if bytes.Equal(seed, got) {
		t.Error("shares from different rotations must not reconstruct the seed")
	}
}

func TestCombine_MalformedShares(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		share string
	}{
		{"Empty", ""},
		{"WrongPrefix", "vault-v1-2-1-aabb"},
		{"WrongVersion", "halyard-v2-2-1-aabb"},
		{"BadThreshold", "halyard-v1-x-1-aabb"},
		{"BadIndex", "halyard-v1-2-0-aabb"},
		{"BadHex", "halyard-v1-2-1-zzzz"},
		{"TooFewParts", "halyard-v1-2-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Combine([]string{tt.share}); err == nil {
				t.Errorf("expected error for share %q", tt.share)
			}
		})
	}
}

func TestSplit_InvalidParams(t *testing.T) {
	t.Parallel()

	secret := []byte("s")

	if _, err := Split(secret, 3, 1); err == nil {
		t.Error("expected error for k < 2")
	}
	if _, err := Split(secret, 1, 2); err == nil {
		t.Error("expected error for n < k")
	}
	if _, err := Split(secret, 256, 2); err == nil {
		t.Error("expected error for n > 255")
	}
	if _, err := Split(nil, 3, 2); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestCombine_ThresholdMismatch(t *testing.T) {
	t.Parallel()

	secret := []byte("mismatched threshold test bytes!")
	a, err := Split(secret, 3, 2)
	if err != nil {
		t.Fatalf("Split k=2: %v", err)
	}
	b, err := Split(secret, 4, 3)
	if err != nil {
		t.Fatalf("Split k=3: %v", err)
	}

	if _, err := Combine([]string{a[0], b[1]}); err == nil {
		t.Error("expected threshold mismatch error")
	}
}

func TestSingleShareRevealsNothing(t *testing.T) {
	t.Parallel()

	// With a fixed secret, a single share's value bytes should differ across
	// splits (fresh random polynomials). This is a smoke test of the
	// information-theoretic property, not a proof.
	secret := bytes.Repeat([]byte{0x42}, 32)

	first, err := SplitSeed(secret)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	second, err := SplitSeed(secret)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if first[0] == second[0] {
		t.Error("share values should be randomized across splits")
	}
}
