package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/backup"
	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/chain/chaintest"
	"github.com/halyard-sh/halyard/internal/engine"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/price"
	"github.com/halyard-sh/halyard/internal/session"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
)

var fastKDF = vaultcrypto.KDFParams{MemoryKiB: 64, Time: 1, Parallelism: 1}

const testDest = "0x1111111111111111111111111111111111111111"

// testClient drives one daemon connection over in-memory pipes.
type testClient struct {
	t      *testing.T
	w      io.Writer
	sc     *bufio.Scanner
	nextID int
	done   chan error
}

type testDaemon struct {
	ks     *keystore.Keystore
	fake   *chaintest.Fake
	sess   *session.Manager
	srv    *Server
	client *testClient
}

func newTestDaemon(t *testing.T, opts ...ServerOption) *testDaemon {
	t.Helper()

	ks, err := keystore.Open(t.TempDir(), keystore.WithKDFParams(fastKDF))
	require.NoError(t, err)
	_, err = ks.CreateWallet("main", 12, nil)
	require.NoError(t, err)

	policies, err := policy.NewStore(filepath.Join(t.TempDir(), "policy.yaml"))
	require.NoError(t, err)
	p := policy.Default()
	p.SendAllowAny = true
	p.AutoApproveUSD = 100
	p.ConfirmUpToUSD = 1000
	p.HardBlockOverUSD = 1000
	p.MaxUSDPerTx = 500
	p.MaxUSDPerDay = 800
	require.NoError(t, policies.Update("", p))

	sess := session.NewManager(session.DefaultTTL)
	fake := chaintest.NewFake(chain.Base)
	prices := &price.Fixed{Native: map[chain.ID]float64{chain.Base: 1000}}
	coord := engine.New(ks, policies, sess, prices, engine.WithAdapter(fake))

	opts = append([]ServerOption{
		WithVersion("test"),
		WithBackups(backup.NewService(t.TempDir(), ks)),
	}, opts...)
	srv := NewServer(ks, policies, sess, coord, opts...)

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { done <- srv.ServeConn(ctx, serverIn, serverOut) }()
	t.Cleanup(func() { _ = clientOut.Close() })

	sc := bufio.NewScanner(clientIn)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &testDaemon{
		ks:   ks,
		fake: fake,
		sess: sess,
		srv:  srv,
		client: &testClient{
			t:    t,
			w:    clientOut,
			sc:   sc,
			done: done,
		},
	}
}

func (c *testClient) send(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(c.t, err)
	_, err = c.w.Write(append(data, '\n'))
	require.NoError(c.t, err)
}

func (c *testClient) read() *message {
	c.t.Helper()
	require.True(c.t, c.sc.Scan(), "connection closed early: %v", c.sc.Err())
	var m message
	require.NoError(c.t, json.Unmarshal(c.sc.Bytes(), &m))
	return &m
}

// call sends a request and returns the next message, which for
// non-eliciting methods is its response.
func (c *testClient) call(method string, params any) *message {
	c.t.Helper()
	c.nextID++
	c.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID,
		"method":  method,
		"params":  params,
	})
	return c.read()
}

func (c *testClient) callOK(method string, params any, out any) {
	c.t.Helper()
	m := c.call(method, params)
	require.Nil(c.t, m.Error, "%s failed: %+v", method, m.Error)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(m.Result, out))
	}
}

func TestStatusAndWalletList(t *testing.T) {
	d := newTestDaemon(t)

	var st statusResult
	d.client.callOK("status", nil, &st)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, 1, st.Wallets)
	assert.Equal(t, "main", st.ActiveWallet)
	assert.False(t, st.Unlocked)

	var wallets []keystore.WalletRecord
	d.client.callOK("wallet/list", nil, &wallets)
	require.Len(t, wallets, 1)
	assert.Equal(t, "main", wallets[0].Name)
}

func TestWalletCreateAndSelect(t *testing.T) {
	d := newTestDaemon(t)

	var created walletCreateResult
	d.client.callOK("wallet/create", map[string]any{"name": "trading", "words": 12}, &created)
	assert.Equal(t, "trading", created.Wallet.Name)
	assert.NotEmpty(t, created.Mnemonic)
	assert.NotEmpty(t, created.OfflineShare)

	var selected keystore.WalletRecord
	d.client.callOK("wallet/select", map[string]any{"name": "trading"}, &selected)

	var st statusResult
	d.client.callOK("status", nil, &st)
	assert.Equal(t, "trading", st.ActiveWallet)
}

func TestUnknownMethod(t *testing.T) {
	d := newTestDaemon(t)
	m := d.client.call("definitely/not/a/method", nil)
	require.NotNil(t, m.Error)
	assert.Equal(t, codeMethodNotFound, m.Error.Code)
}

func TestMalformedLineGetsParseError(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.client.w.Write([]byte("this is not json\n"))
	require.NoError(t, err)
	m := d.client.read()
	require.NotNil(t, m.Error)
	assert.Equal(t, codeParse, m.Error.Code)
}

func TestExecuteAutoApproveOverRPC(t *testing.T) {
	d := newTestDaemon(t)

	var res executeResult
	d.client.callOK("execute", map[string]any{
		"kind":   "send",
		"chain":  "base",
		"to":     testDest,
		"amount": "0.05",
	}, &res)
	assert.Equal(t, "auto_approve", res.Tier)
	require.NotNil(t, res.Result)
	assert.Len(t, d.fake.Sent(), 1)
}

func TestExecuteElicitationAccept(t *testing.T) {
	d := newTestDaemon(t)

	// $200 forces a confirmation round-trip before the response.
	d.client.nextID++
	d.client.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      d.client.nextID,
		"method":  "execute",
		"params": map[string]any{
			"kind": "send", "chain": "base", "to": testDest, "amount": "0.2",
		},
	})

	elicit := d.client.read()
	require.Equal(t, "elicitation/create", elicit.Method)
	var e elicitation
	require.NoError(t, json.Unmarshal(elicit.Params, &e))
	assert.NotEmpty(t, e.Token)
	assert.Equal(t, "send", e.Summary.Kind)
	require.NotNil(t, e.Summary.USDValue)
	assert.InDelta(t, 200, *e.Summary.USDValue, 0.001)

	d.client.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(elicit.ID),
		"result":  map[string]string{"action": "accept"},
	})

	resp := d.client.read()
	require.Nil(t, resp.Error)
	var res executeResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "require_confirm", res.Tier)
	require.NotNil(t, res.Result)
	assert.Len(t, d.fake.Sent(), 1)
}

func TestExecuteElicitationDecline(t *testing.T) {
	d := newTestDaemon(t)

	d.client.nextID++
	d.client.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      d.client.nextID,
		"method":  "execute",
		"params": map[string]any{
			"kind": "send", "chain": "base", "to": testDest, "amount": "0.2",
		},
	})

	elicit := d.client.read()
	require.Equal(t, "elicitation/create", elicit.Method)
	d.client.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(elicit.ID),
		"result":  map[string]string{"action": "decline"},
	})

	resp := d.client.read()
	require.NotNil(t, resp.Error)
	assert.Equal(t, "user_declined", resp.Error.Data.Code)
	assert.Empty(t, d.fake.Sent())

	hist, err := d.ks.History()
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestOutOfBandApproveDecline(t *testing.T) {
	d := newTestDaemon(t)

	// Park two approvals directly on the coordinator, then resolve
	// them through the RPC surface.
	out1, err := d.srv.coord.Execute(context.Background(), engine.Request{
		Kind: policy.KindSend, Chain: chain.Base, To: testDest, Amount: "0.2",
	})
	require.NoError(t, err)
	out2, err := d.srv.coord.Execute(context.Background(), engine.Request{
		Kind: policy.KindSend, Chain: chain.Base, To: testDest, Amount: "0.3",
	})
	require.NoError(t, err)

	var parked []json.RawMessage
	d.client.callOK("approvals", nil, &parked)
	assert.Len(t, parked, 2)

	var res chain.TxResult
	d.client.callOK("approve", map[string]string{"token": out1.Approval.Token}, &res)
	assert.NotEmpty(t, res.Hash)

	d.client.callOK("decline", map[string]string{"token": out2.Approval.Token}, nil)

	m := d.client.call("approve", map[string]string{"token": out2.Approval.Token})
	require.NotNil(t, m.Error)
	assert.Equal(t, "approval_not_found", m.Error.Data.Code)
}

func TestHardBlockSurfacesPolicyError(t *testing.T) {
	d := newTestDaemon(t)

	m := d.client.call("execute", map[string]any{
		"kind": "send", "chain": "base", "to": testDest, "amount": "0.6",
	})
	require.NotNil(t, m.Error)
	require.NotNil(t, m.Error.Data)
	assert.Equal(t, "policy_violation", m.Error.Data.Code)
}

func TestSessionLifecycleOverRPC(t *testing.T) {
	d := newTestDaemon(t)

	var st sessionStatusResult
	d.client.callOK("session/status", nil, &st)
	assert.False(t, st.Unlocked)

	d.client.callOK("session/unlock", map[string]string{"passphrase": "correct horse battery"}, &st)
	assert.True(t, st.Unlocked)
	require.NotNil(t, st.ExpiresAt)

	d.client.callOK("session/lock", nil, &st)
	assert.False(t, st.Unlocked)
}

func TestBalanceOverRPC(t *testing.T) {
	d := newTestDaemon(t)
	rec, _, err := d.ks.ActiveWallet()
	require.NoError(t, err)
	d.fake.SetBalance(rec.EVMAddresses[0], bigWei(2))

	var res balanceResult
	d.client.callOK("balance", map[string]any{"chain": "base"}, &res)
	assert.Equal(t, rec.EVMAddresses[0], res.Address)
	assert.Equal(t, "2000000000000000000", res.Balance)
}

func TestPolicyGetSetReset(t *testing.T) {
	d := newTestDaemon(t)

	var got policy.Policy
	d.client.callOK("policy/get", map[string]string{"wallet": "main"}, &got)
	assert.True(t, got.SendAllowAny)

	got.SendAllowAny = false
	d.client.callOK("policy/set", map[string]any{"wallet": "main", "policy": got}, &got)
	assert.False(t, got.SendAllowAny)

	d.client.callOK("policy/reset", map[string]string{"wallet": "main"}, &got)
	assert.True(t, got.SendAllowAny)
}

func TestBackupOverRPC(t *testing.T) {
	d := newTestDaemon(t)

	var created backupCreateResult
	d.client.callOK("backup/create", map[string]string{"passphrase": "backup horse battery"}, &created)
	assert.NotEmpty(t, created.Path)
	require.Len(t, created.Manifest.Wallets, 1)

	var names []string
	d.client.callOK("backup/list", nil, &names)
	require.Len(t, names, 1)

	var m backup.Manifest
	d.client.callOK("backup/verify", map[string]string{"path": created.Path}, &m)
	assert.Equal(t, "main", m.Wallets[0].Name)
}

func TestRecoverMnemonicRequiresAccept(t *testing.T) {
	d := newTestDaemon(t)

	d.client.nextID++
	d.client.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      d.client.nextID,
		"method":  "wallet/recover_mnemonic",
		"params":  map[string]string{"name": "main"},
	})

	elicit := d.client.read()
	require.Equal(t, "elicitation/create", elicit.Method)
	d.client.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(elicit.ID),
		"result":  map[string]string{"action": "decline"},
	})

	resp := d.client.read()
	require.NotNil(t, resp.Error)
	assert.Equal(t, "user_declined", resp.Error.Data.Code)
}

func TestIdleShutdown(t *testing.T) {
	d := newTestDaemon(t, WithIdleShutdown(60*time.Millisecond))

	select {
	case err := <-d.client.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down while idle")
	}
}

func TestHistoryOverRPC(t *testing.T) {
	d := newTestDaemon(t)

	var res executeResult
	d.client.callOK("execute", map[string]any{
		"kind": "send", "chain": "base", "to": testDest, "amount": "0.05",
	}, &res)

	var hist []keystore.HistoryEntry
	d.client.callOK("history", nil, &hist)
	require.Len(t, hist, 1)
	assert.Equal(t, "send", hist[0].Type)

	var audit []keystore.AuditEntry
	d.client.callOK("audit", nil, &audit)
	require.NotEmpty(t, audit)
	assert.Equal(t, "executed", audit[len(audit)-1].Outcome)
}

func bigWei(eth int64) *big.Int {
	wei := new(big.Int).SetInt64(eth)
	return wei.Mul(wei, new(big.Int).SetInt64(1_000_000_000_000_000_000))
}
