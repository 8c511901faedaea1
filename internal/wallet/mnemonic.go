// Package wallet provides BIP39 mnemonic handling and BIP44 key
// derivation for the EVM chains the daemon signs on.
package wallet

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"
)

var (
	// ErrInvalidWordCount indicates the mnemonic must be 12 or 24 words.
	ErrInvalidWordCount = errors.New("word count must be 12 or 24")

	// ErrInvalidMnemonic indicates the mnemonic is not valid.
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

	// whitespaceRegex matches one or more whitespace characters.
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// numberedListRegex matches numbered list prefixes like "1." "2)" "3:"
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)

	// bulletListRegex matches bullet prefixes like "- " "* " "• "
	bulletListRegex = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// GenerateEntropy creates fresh mnemonic entropy. wordCount must be 12
// (128 bits) or 24 (256 bits). The entropy is the secret that gets
// Shamir-split; callers must zeroize it when done.
func GenerateEntropy(wordCount int) ([]byte, error) {
	var bitSize int
	switch wordCount {
	case 12:
		bitSize = 128
	case 24:
		bitSize = 256
	default:
		return nil, ErrInvalidWordCount
	}
	return bip39.NewEntropy(bitSize)
}

// EntropyToMnemonic renders entropy as its BIP39 phrase.
func EntropyToMnemonic(entropy []byte) (string, error) {
	return bip39.NewMnemonic(entropy)
}

// EntropyToSeed derives the 64-byte BIP39 seed for entropy with an
// empty BIP39 passphrase. Callers must zeroize the result.
func EntropyToSeed(entropy []byte) ([]byte, error) {
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

// ValidateMnemonic checks word count, word validity, and checksum.
func ValidateMnemonic(mnemonic string) error {
	if mnemonic == "" {
		return ErrInvalidMnemonic
	}

	normalized := NormalizeMnemonicInput(mnemonic)

	words := strings.Fields(normalized)
	if len(words) != 12 && len(words) != 24 {
		return ErrInvalidMnemonic
	}

	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return ErrInvalidMnemonic
	}
	return nil
}

// NormalizeMnemonicInput cleans up pasted mnemonic text: lowercases,
// strips numbered-list and bullet prefixes, replaces commas, and
// collapses whitespace. Agents paste phrases in every shape imaginable.
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// MnemonicToSeed converts a mnemonic phrase to a 64-byte seed. The
// returned seed must be zeroized after use.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	normalized := NormalizeMnemonicInput(mnemonic)
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return nil, ErrInvalidMnemonic
	}
	return bip39.NewSeed(normalized, passphrase), nil
}

// MnemonicToEntropy recovers the raw entropy behind a valid phrase.
func MnemonicToEntropy(mnemonic string) ([]byte, error) {
	normalized := NormalizeMnemonicInput(mnemonic)
	entropy, err := bip39.EntropyFromMnemonic(normalized)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return entropy, nil
}

// IsValidWord checks if a word is in the BIP39 word list.
func IsValidWord(word string) bool {
	word = strings.ToLower(word)
	for _, w := range bip39.GetWordList() {
		if w == word {
			return true
		}
	}
	return false
}

// MaxTypoDistance is the maximum Levenshtein distance to consider a
// suggestion. Words further away are too different to suggest.
const MaxTypoDistance = 2

// TypoInfo describes a detected typo and its closest BIP39 word.
type TypoInfo struct {
	Index      int
	Word       string
	Suggestion string
	Distance   int
}

// SuggestWord finds the closest BIP39 word to the input, or "" when
// nothing is within MaxTypoDistance.
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.GetWordList() {
		dist := levenshtein.ComputeDistance(input, word)
		if dist == 0 {
			return word
		}
		if dist < minDist {
			minDist = dist
			suggestion = word
		}
	}
	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos scans a phrase for words outside the BIP39 list and
// suggests corrections.
func DetectTypos(mnemonic string) []TypoInfo {
	if mnemonic == "" {
		return nil
	}

	words := strings.Fields(NormalizeMnemonicInput(mnemonic))
	var typos []TypoInfo
	for i, word := range words {
		if IsValidWord(word) {
			continue
		}
		suggestion := SuggestWord(word)
		distance := 0
		if suggestion != "" {
			distance = levenshtein.ComputeDistance(word, suggestion)
		}
		typos = append(typos, TypoInfo{
			Index:      i,
			Word:       word,
			Suggestion: suggestion,
			Distance:   distance,
		})
	}
	return typos
}
