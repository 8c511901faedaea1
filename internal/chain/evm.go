package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// erc20 function selectors.
var (
	selBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selTransfer  = []byte{0xa9, 0x05, 0x9c, 0xbb}
)

// evmBackend is the slice of ethclient the adapter uses, kept narrow
// so tests can substitute a fake without a node.
type evmBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVM is the adapter for Ethereum-compatible networks. One instance
// serves one network over one RPC endpoint.
type EVM struct {
	id       ID
	endpoint string
	backend  evmBackend
	limiter  *RateLimiter
	retry    RetryConfig
}

// NewEVM dials an Ethereum JSON-RPC endpoint for the given network.
func NewEVM(id ID, endpoint string) (*EVM, error) {
	if !id.IsEVM() {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "%s is not an EVM network", id)
	}
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, halerr.Wrap(err, "dialing %s endpoint", id)
	}
	return &EVM{
		id:       id,
		endpoint: endpoint,
		backend:  client,
		limiter:  DefaultRateLimiter(),
		retry:    DefaultRetryConfig(),
	}, nil
}

// newEVMWithBackend wires a fake backend in tests.
func newEVMWithBackend(id ID, backend evmBackend) *EVM {
	return &EVM{
		id:       id,
		endpoint: "test",
		backend:  backend,
		limiter:  NewRateLimiter(1000, 1000),
		retry:    RetryConfig{MaxAttempts: 1, BaseDelay: 0, MaxDelay: 0},
	}
}

// ID returns the network this adapter serves.
func (e *EVM) ID() ID { return e.id }

// ValidateAddress checks for a well-formed 0x-prefixed hex address.
func (e *EVM) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return halerr.Wrap(halerr.ErrInvalidRequest, "invalid %s address %q", e.id, address)
	}
	return nil
}

// NativeBalance returns the gas-token balance in wei.
func (e *EVM) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if err := e.ValidateAddress(address); err != nil {
		return nil, err
	}
	if err := e.limiter.Wait(ctx, e.endpoint); err != nil {
		return nil, err
	}
	return RetryWithConfig(ctx, e.retry, func() (*big.Int, error) {
		return e.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	})
}

// TokenBalance returns an ERC-20 balance in the token's smallest units.
func (e *EVM) TokenBalance(ctx context.Context, address, token string) (*big.Int, error) {
	if err := e.ValidateAddress(address); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(token) {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "invalid token contract %q", token)
	}
	if err := e.limiter.Wait(ctx, e.endpoint); err != nil {
		return nil, err
	}

	contract := common.HexToAddress(token)
	data := append([]byte{}, selBalanceOf...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	out, err := RetryWithConfig(ctx, e.retry, func() ([]byte, error) {
		return e.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "contract %s returned no balance data", token)
	}
	return new(big.Int).SetBytes(out), nil
}

// callMsg converts a SendRequest into the message shape used by both
// simulation and gas estimation.
func (e *EVM) callMsg(req SendRequest) (ethereum.CallMsg, error) {
	if err := e.ValidateAddress(req.From); err != nil {
		return ethereum.CallMsg{}, err
	}
	if err := e.ValidateAddress(req.To); err != nil {
		return ethereum.CallMsg{}, err
	}

	msg := ethereum.CallMsg{From: common.HexToAddress(req.From)}
	if req.Token != "" {
		if !common.IsHexAddress(req.Token) {
			return ethereum.CallMsg{}, halerr.Wrap(halerr.ErrInvalidRequest, "invalid token contract %q", req.Token)
		}
		contract := common.HexToAddress(req.Token)
		msg.To = &contract
		msg.Data = encodeTransfer(common.HexToAddress(req.To), req.Amount)
	} else {
		to := common.HexToAddress(req.To)
		msg.To = &to
		msg.Value = req.Amount
		msg.Data = req.Data
	}
	return msg, nil
}

// Simulate dry-runs the request via gas estimation, which executes the
// call against pending state and surfaces reverts.
func (e *EVM) Simulate(ctx context.Context, req SendRequest) error {
	msg, err := e.callMsg(req)
	if err != nil {
		return err
	}
	if err := e.limiter.Wait(ctx, e.endpoint); err != nil {
		return err
	}
	if _, err := e.backend.EstimateGas(ctx, msg); err != nil {
		return halerr.Wrap(halerr.ErrSimulationFailed, "%s: %v", e.id, err)
	}
	return nil
}

// Send signs the request with an EIP-1559 dynamic fee transaction and
// broadcasts it. Broadcast is attempted exactly once: a lost response
// does not mean a lost transaction, so retrying risks a double spend.
func (e *EVM) Send(ctx context.Context, req SendRequest) (*TxResult, error) {
	msg, err := e.callMsg(req)
	if err != nil {
		return nil, err
	}

	key, err := crypto.ToECDSA(req.PrivateKey)
	if err != nil {
		return nil, halerr.Wrap(halerr.ErrInvalidKeyMaterial, "parsing signing key")
	}

	if err := e.limiter.Wait(ctx, e.endpoint); err != nil {
		return nil, err
	}

	nonce, err := RetryWithConfig(ctx, e.retry, func() (uint64, error) {
		return e.backend.PendingNonceAt(ctx, msg.From)
	})
	if err != nil {
		return nil, halerr.Wrap(err, "fetching nonce")
	}

	tip, err := RetryWithConfig(ctx, e.retry, func() (*big.Int, error) {
		return e.backend.SuggestGasTipCap(ctx)
	})
	if err != nil {
		return nil, halerr.Wrap(err, "fetching gas tip")
	}

	head, err := RetryWithConfig(ctx, e.retry, func() (*types.Header, error) {
		return e.backend.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, halerr.Wrap(err, "fetching chain head")
	}

	// feeCap = 2*baseFee + tip leaves headroom for six consecutive
	// full blocks before the transaction stalls.
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = e.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, halerr.Wrap(halerr.ErrSimulationFailed, "%s: %v", e.id, err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(e.id.ChainID()),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        msg.To,
		Value:     msg.Value,
		Data:      msg.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(e.id.ChainID())), key)
	if err != nil {
		return nil, halerr.Wrap(err, "signing transaction")
	}

	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return nil, halerr.Wrap(halerr.ErrBroadcastFailed, "%s: %v", e.id, err)
	}

	amount := "0"
	if req.Amount != nil {
		amount = req.Amount.String()
	}
	maxFee := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gasLimit))
	return &TxResult{
		Hash:     signed.Hash().Hex(),
		From:     req.From,
		To:       req.To,
		Amount:   amount,
		Token:    req.Token,
		Fee:      maxFee.String(),
		GasLimit: gasLimit,
		Status:   "pending",
	}, nil
}

// encodeTransfer builds calldata for erc20 transfer(to, amount).
func encodeTransfer(to common.Address, amount *big.Int) []byte {
	data := append([]byte{}, selTransfer...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	if amount == nil {
		amount = new(big.Int)
	}
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

var _ Adapter = (*EVM)(nil)
