package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

type fakeBackend struct {
	balance     *big.Int
	callResult  []byte
	callMsgs    []ethereum.CallMsg
	nonce       uint64
	tip         *big.Int
	baseFee     *big.Int
	gasEstimate uint64
	estimateErr error
	sendErr     error
	sent        []*types.Transaction
}

func (f *fakeBackend) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.callMsgs = append(f.callMsgs, msg)
	return f.callResult, nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return f.tip, nil
}

func (f *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.gasEstimate, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

const (
	testFrom = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	testTo   = "0x1111111111111111111111111111111111111111"
	// Any valid secp256k1 scalar works for signing tests.
	testKeyHex = "4c0883a69102937d6231471b5dbb6204fe512961708279f1d7b1b8e3e4b0a2b2"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := hex.DecodeString(testKeyHex)
	require.NoError(t, err)
	return key
}

func TestEVMNativeBalance(t *testing.T) {
	backend := &fakeBackend{balance: big.NewInt(42)}
	adapter := newEVMWithBackend(Base, backend)

	got, err := adapter.NativeBalance(context.Background(), testFrom)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), got)

	_, err = adapter.NativeBalance(context.Background(), "not an address")
	require.ErrorIs(t, err, halerr.ErrInvalidRequest)
}

func TestEVMTokenBalanceCalldata(t *testing.T) {
	backend := &fakeBackend{callResult: common.LeftPadBytes(big.NewInt(1000).Bytes(), 32)}
	adapter := newEVMWithBackend(Ethereum, backend)

	token := "0x2222222222222222222222222222222222222222"
	got, err := adapter.TokenBalance(context.Background(), testFrom, token)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), got)

	require.Len(t, backend.callMsgs, 1)
	msg := backend.callMsgs[0]
	assert.Equal(t, common.HexToAddress(token), *msg.To)
	require.Len(t, msg.Data, 36)
	assert.Equal(t, selBalanceOf, msg.Data[:4])
	assert.Equal(t, common.HexToAddress(testFrom).Bytes(), msg.Data[16:36])
}

func TestEVMSimulateFailureMapsToSimulationFailed(t *testing.T) {
	backend := &fakeBackend{estimateErr: errors.New("execution reverted")}
	adapter := newEVMWithBackend(Arbitrum, backend)

	err := adapter.Simulate(context.Background(), SendRequest{
		From:   testFrom,
		To:     testTo,
		Amount: big.NewInt(1),
	})
	require.ErrorIs(t, err, halerr.ErrSimulationFailed)
}

func TestEVMSendNativeTransfer(t *testing.T) {
	backend := &fakeBackend{
		nonce:       7,
		tip:         big.NewInt(2),
		baseFee:     big.NewInt(100),
		gasEstimate: 21000,
	}
	adapter := newEVMWithBackend(Base, backend)

	res, err := adapter.Send(context.Background(), SendRequest{
		From:       testFrom,
		To:         testTo,
		Amount:     big.NewInt(1e15),
		PrivateKey: testKey(t),
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, big.NewInt(8453), tx.ChainId())
	assert.Equal(t, common.HexToAddress(testTo), *tx.To())
	assert.Equal(t, big.NewInt(1e15), tx.Value())
	assert.Equal(t, uint64(21000), tx.Gas())
	// feeCap = 2*baseFee + tip
	assert.Equal(t, big.NewInt(202), tx.GasFeeCap())

	assert.Equal(t, tx.Hash().Hex(), res.Hash)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, "1000000000000000", res.Amount)
}

func TestEVMSendTokenTransfer(t *testing.T) {
	backend := &fakeBackend{
		tip:         big.NewInt(1),
		baseFee:     big.NewInt(10),
		gasEstimate: 60000,
	}
	adapter := newEVMWithBackend(Ethereum, backend)

	token := "0x2222222222222222222222222222222222222222"
	_, err := adapter.Send(context.Background(), SendRequest{
		From:       testFrom,
		To:         testTo,
		Amount:     big.NewInt(5000),
		Token:      token,
		PrivateKey: testKey(t),
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, common.HexToAddress(token), *tx.To())
	assert.Equal(t, int64(0), tx.Value().Int64())
	require.Len(t, tx.Data(), 68)
	assert.Equal(t, selTransfer, tx.Data()[:4])
	assert.Equal(t, common.HexToAddress(testTo).Bytes(), tx.Data()[16:36])
	assert.Equal(t, big.NewInt(5000), new(big.Int).SetBytes(tx.Data()[36:]))
}

func TestEVMSendBroadcastFailure(t *testing.T) {
	backend := &fakeBackend{
		tip:         big.NewInt(1),
		baseFee:     big.NewInt(10),
		gasEstimate: 21000,
		sendErr:     errors.New("nonce too low"),
	}
	adapter := newEVMWithBackend(Ethereum, backend)

	_, err := adapter.Send(context.Background(), SendRequest{
		From:       testFrom,
		To:         testTo,
		Amount:     big.NewInt(1),
		PrivateKey: testKey(t),
	})
	require.ErrorIs(t, err, halerr.ErrBroadcastFailed)
	assert.Empty(t, backend.sent)
}

func TestEVMRejectsBadKey(t *testing.T) {
	backend := &fakeBackend{tip: big.NewInt(1), baseFee: big.NewInt(10), gasEstimate: 21000}
	adapter := newEVMWithBackend(Ethereum, backend)

	_, err := adapter.Send(context.Background(), SendRequest{
		From:       testFrom,
		To:         testTo,
		Amount:     big.NewInt(1),
		PrivateKey: []byte{1, 2, 3},
	})
	require.ErrorIs(t, err, halerr.ErrInvalidKeyMaterial)
}

func TestNewEVMRejectsNonEVM(t *testing.T) {
	_, err := NewEVM(Solana, "http://localhost")
	require.ErrorIs(t, err, halerr.ErrInvalidRequest)
}

func TestChainMetadata(t *testing.T) {
	assert.True(t, Base.IsEVM())
	assert.False(t, Solana.IsEVM())
	assert.Equal(t, int64(8453), Base.ChainID())
	assert.Equal(t, "ETH", Base.NativeSymbol())
	assert.Equal(t, 9, Solana.NativeDecimals())

	id, ok := ParseID("polygon")
	assert.True(t, ok)
	assert.Equal(t, Polygon, id)
	_, ok = ParseID("dogecoin")
	assert.False(t, ok)
}
