package wallet

import halerr "github.com/halyard-sh/halyard/pkg/errors"

// ErrInvalidPrivateKey indicates pasted key material does not decode to
// a usable secp256k1 private key.
var ErrInvalidPrivateKey = halerr.WithSuggestion(halerr.ErrInvalidKeyMaterial,
	"private keys are 32 bytes of hex, with or without a 0x prefix")
