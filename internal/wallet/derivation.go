package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/halyard-sh/halyard/internal/vaultcrypto"
)

// evmCoinType is the BIP44 coin type shared by all EVM chains.
const evmCoinType = 60

// hdNetParams satisfies hdkeychain.NetworkParams for BIP32 derivation.
// Standard Bitcoin mainnet HD version bytes; only the key math matters
// here, the xprv/xpub encodings are never persisted.
type hdNetParams struct{}

func (hdNetParams) HDPrivKeyVersion() [4]byte { return [4]byte{0x04, 0x88, 0xAD, 0xE4} }
func (hdNetParams) HDPubKeyVersion() [4]byte  { return [4]byte{0x04, 0x88, 0xB2, 0x1E} }

// Address is one derived account address.
type Address struct {
	// Path is the full BIP44 derivation path.
	Path string `json:"path"`

	// Index is the address index within the account.
	Index uint32 `json:"index"`

	// Address is the EIP-55 checksummed address.
	Address string `json:"address"`

	// PublicKey is the uncompressed public key hex (without 04 prefix).
	PublicKey string `json:"public_key"`
}

// DerivationPath returns the BIP44 path for an EVM account/index pair.
func DerivationPath(account, index uint32) string {
	return fmt.Sprintf("m/44'/%d'/%d'/0/%d", evmCoinType, account, index)
}

// DeriveEVMAddress derives the address at m/44'/60'/account'/0/index
// from a BIP39 seed.
func DeriveEVMAddress(seed []byte, account, index uint32) (*Address, error) {
	privBytes, err := DeriveEVMPrivateKey(seed, account, index)
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(privBytes)

	priv, err := crypto.ToECDSA(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse derived private key: %w", err)
	}

	addr := crypto.PubkeyToAddress(priv.PublicKey)
	pub := crypto.FromECDSAPub(&priv.PublicKey)

	return &Address{
		Path:      DerivationPath(account, index),
		Index:     index,
		Address:   addr.Hex(),
		PublicKey: hex.EncodeToString(pub[1:]),
	}, nil
}

// DeriveEVMPrivateKey derives the 32-byte private key for signing.
// The caller must zeroize the result on every exit path.
func DeriveEVMPrivateKey(seed []byte, account, index uint32) ([]byte, error) {
	masterKey, err := hdkeychain.NewMaster(seed, hdNetParams{})
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	key, err := deriveBIP44Key(masterKey, account, index)
	if err != nil {
		return nil, err
	}

	serialized, err := key.SerializedPrivKey()
	if err != nil {
		return nil, fmt.Errorf("serialize private key: %w", err)
	}
	privKey := make([]byte, 32)
	copy(privKey, serialized)
	return privKey, nil
}

// deriveBIP44Key walks m / 44' / 60' / account' / 0 / index.
func deriveBIP44Key(masterKey *hdkeychain.ExtendedKey, account, index uint32) (*hdkeychain.ExtendedKey, error) {
	purposeKey, err := masterKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + 44)
	if err != nil {
		return nil, fmt.Errorf("derive purpose key: %w", err)
	}

	coinTypeKey, err := purposeKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + evmCoinType)
	if err != nil {
		return nil, fmt.Errorf("derive coin type key: %w", err)
	}

	accountKey, err := coinTypeKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + account)
	if err != nil {
		return nil, fmt.Errorf("derive account key: %w", err)
	}

	changeKey, err := accountKey.ChildBIP32Std(0)
	if err != nil {
		return nil, fmt.Errorf("derive change key: %w", err)
	}

	indexKey, err := changeKey.ChildBIP32Std(index)
	if err != nil {
		return nil, fmt.Errorf("derive index key: %w", err)
	}
	return indexKey, nil
}

// IsValidEVMAddress reports whether address is a well-formed 0x address.
func IsValidEVMAddress(address string) bool {
	return common.IsHexAddress(address)
}

// ParseImportedPrivateKey validates a pasted hex private key and
// returns the raw 32 bytes plus the checksummed address it controls.
// The caller must zeroize the returned key.
func ParseImportedPrivateKey(input string) ([]byte, string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "0x"))
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return nil, "", ErrInvalidPrivateKey
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		vaultcrypto.ZeroBytes(raw)
		return nil, "", ErrInvalidPrivateKey
	}
	return raw, crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}
