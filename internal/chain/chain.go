// Package chain defines the adapter boundary between the execution
// coordinator and the networks it signs on, plus the EVM adapter
// implementation.
package chain

import (
	"context"
	"math/big"
)

// ID identifies a supported network.
type ID string

// Supported network identifiers.
const (
	Ethereum  ID = "ethereum"
	Base      ID = "base"
	Arbitrum  ID = "arbitrum"
	Optimism  ID = "optimism"
	Polygon   ID = "polygon"
	BSC       ID = "bsc"
	Avalanche ID = "avalanche"
	Solana    ID = "solana"
)

// evmChainIDs maps EVM networks to their canonical numeric chain id,
// used as the replay-protection domain when signing.
var evmChainIDs = map[ID]int64{
	Ethereum:  1,
	Base:      8453,
	Arbitrum:  42161,
	Optimism:  10,
	Polygon:   137,
	BSC:       56,
	Avalanche: 43114,
}

// nativeSymbols maps networks to their gas token.
var nativeSymbols = map[ID]string{
	Ethereum:  "ETH",
	Base:      "ETH",
	Arbitrum:  "ETH",
	Optimism:  "ETH",
	Polygon:   "POL",
	BSC:       "BNB",
	Avalanche: "AVAX",
	Solana:    "SOL",
}

// String returns the network identifier string.
func (id ID) String() string { return string(id) }

// IsValid reports whether the network is known.
func (id ID) IsValid() bool {
	_, evm := evmChainIDs[id]
	return evm || id == Solana
}

// IsEVM reports whether the network speaks the Ethereum JSON-RPC and
// transaction format.
func (id ID) IsEVM() bool {
	_, ok := evmChainIDs[id]
	return ok
}

// ChainID returns the EVM numeric chain id, or 0 for non-EVM networks.
func (id ID) ChainID() int64 { return evmChainIDs[id] }

// NativeSymbol returns the gas token symbol for the network.
func (id ID) NativeSymbol() string { return nativeSymbols[id] }

// NativeDecimals returns the decimal places of the gas token.
func (id ID) NativeDecimals() int {
	if id == Solana {
		return 9
	}
	return 18
}

// ParseID parses a string into an ID.
func ParseID(s string) (ID, bool) {
	id := ID(s)
	return id, id.IsValid()
}

// EVMChains returns the EVM networks in a stable order.
func EVMChains() []ID {
	return []ID{Ethereum, Base, Arbitrum, Optimism, Polygon, BSC, Avalanche}
}

// AllChains returns every known network.
func AllChains() []ID {
	return append(EVMChains(), Solana)
}

// SendRequest describes a transaction to sign and broadcast. Amounts
// are in the smallest unit (wei). The private key is borrowed: the
// adapter must never retain it past the call, and the caller zeroizes
// it afterwards.
type SendRequest struct {
	From       string
	To         string
	Amount     *big.Int
	Data       []byte
	Token      string // ERC-20 contract, empty for native
	GasLimit   uint64 // optional override
	PrivateKey []byte
}

// TxResult is the outcome of a broadcast transaction.
type TxResult struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Token    string `json:"token,omitempty"`
	Fee      string `json:"fee"`
	GasLimit uint64 `json:"gas_limit,omitempty"`
	Status   string `json:"status"`
}

// Reader provides the read-only surface of an adapter.
type Reader interface {
	// ID returns the network this adapter serves.
	ID() ID

	// NativeBalance returns the gas-token balance in smallest units.
	NativeBalance(ctx context.Context, address string) (*big.Int, error)

	// TokenBalance returns a token balance in the token's smallest
	// units.
	TokenBalance(ctx context.Context, address, token string) (*big.Int, error)

	// ValidateAddress checks whether an address is well formed for
	// this network.
	ValidateAddress(address string) error
}

// Adapter is the full surface the execution coordinator needs:
// simulation is always consulted before broadcast, and Send performs
// sign plus broadcast as one operation so the key's exposure window
// stays inside the adapter call.
type Adapter interface {
	Reader

	// Simulate dry-runs the request against current network state. An
	// error means broadcasting would revert or fail.
	Simulate(ctx context.Context, req SendRequest) error

	// Send signs and broadcasts the request.
	Send(ctx context.Context, req SendRequest) (*TxResult, error)
}
