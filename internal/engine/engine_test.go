package engine

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/chain/chaintest"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/price"
	"github.com/halyard-sh/halyard/internal/session"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// fastKDF keeps passphrase derivation cheap for tests.
var fastKDF = vaultcrypto.KDFParams{MemoryKiB: 64, Time: 1, Parallelism: 1}

const testDest = "0x1111111111111111111111111111111111111111"

type testEnv struct {
	ks    *keystore.Keystore
	fake  *chaintest.Fake
	sess  *session.Manager
	coord *Coordinator
}

// openPolicy permits any recipient and auto-approves up to $100, so
// tests can steer outcomes purely by amount.
func openPolicy() policy.Policy {
	p := policy.Default()
	p.SendAllowAny = true
	p.AutoApproveUSD = 100
	p.ConfirmUpToUSD = 1000
	p.HardBlockOverUSD = 1000
	p.MaxUSDPerTx = 500
	p.MaxUSDPerDay = 800
	return p
}

func newTestEnv(t *testing.T, p policy.Policy, opts ...Option) *testEnv {
	t.Helper()

	ks, err := keystore.Open(t.TempDir(), keystore.WithKDFParams(fastKDF))
	require.NoError(t, err)
	_, err = ks.CreateWallet("main", 12, nil)
	require.NoError(t, err)

	policies, err := policy.NewStore(t.TempDir() + "/policy.yaml")
	require.NoError(t, err)
	require.NoError(t, policies.Update("", p))

	prices := &price.Fixed{Native: map[chain.ID]float64{chain.Base: 1000}}
	fake := chaintest.NewFake(chain.Base)
	sess := session.NewManager(session.DefaultTTL)

	opts = append([]Option{WithAdapter(fake)}, opts...)
	return &testEnv{
		ks:    ks,
		fake:  fake,
		sess:  sess,
		coord: New(ks, policies, sess, prices, opts...),
	}
}

func sendReq(amount string) Request {
	return Request{
		Kind:   policy.KindSend,
		Chain:  chain.Base,
		To:     testDest,
		Amount: amount,
	}
}

func (e *testEnv) history(t *testing.T) []keystore.HistoryEntry {
	t.Helper()
	entries, err := e.ks.History()
	require.NoError(t, err)
	return entries
}

func (e *testEnv) lastAudit(t *testing.T) keystore.AuditEntry {
	t.Helper()
	entries, err := e.ks.ReadAudit()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func TestExecuteAutoApprove(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	// 0.05 ETH at $1000 is $50, under the $100 auto-approve floor.
	out, err := e.coord.Execute(context.Background(), sendReq("0.05"))
	require.NoError(t, err)
	assert.Equal(t, policy.TierAutoApprove, out.Decision.Tier)
	require.NotNil(t, out.Result)
	assert.Nil(t, out.Approval)

	sent := e.fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testDest, sent[0].To)
	assert.Equal(t, "50000000000000000", sent[0].Amount.String())

	hist := e.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, "send", hist[0].Type)
	assert.Equal(t, "main", hist[0].Wallet)
	assert.Equal(t, out.Result.Hash, hist[0].TxID)
	require.NotNil(t, hist[0].USDValue)
	assert.InDelta(t, 50, *hist[0].USDValue, 0.001)

	audit := e.lastAudit(t)
	assert.Equal(t, "executed", audit.Outcome)
	assert.Equal(t, out.Result.Hash, audit.TxID)
}

func TestExecuteRequireConfirmThenApprove(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	// $200 sits between the auto-approve floor and the confirm ceiling.
	out, err := e.coord.Execute(context.Background(), sendReq("0.2"))
	require.NoError(t, err)
	assert.Equal(t, policy.TierRequireConfirm, out.Decision.Tier)
	require.NotNil(t, out.Approval)
	assert.Nil(t, out.Result)
	assert.Empty(t, e.fake.Sent(), "nothing broadcast before confirmation")
	assert.Empty(t, e.history(t))
	assert.Equal(t, "pending_approval", e.lastAudit(t).Outcome)

	res, err := e.coord.Approve(context.Background(), out.Approval.Token)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Len(t, e.fake.Sent(), 1)

	hist := e.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, res.Hash, hist[0].TxID)
	assert.Equal(t, policy.TierRequireConfirm.String(), hist[0].Tier)
	assert.Equal(t, "approved", e.lastAudit(t).Outcome)

	// The token is single-use.
	_, err = e.coord.Approve(context.Background(), out.Approval.Token)
	assert.ErrorIs(t, err, halerr.ErrApprovalNotFound)
}

func TestExecuteDecline(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	out, err := e.coord.Execute(context.Background(), sendReq("0.2"))
	require.NoError(t, err)
	require.NotNil(t, out.Approval)

	require.NoError(t, e.coord.Decline(out.Approval.Token))
	assert.Empty(t, e.fake.Sent())
	assert.Empty(t, e.history(t))
	assert.Equal(t, "declined", e.lastAudit(t).Outcome)

	assert.ErrorIs(t, e.coord.Decline(out.Approval.Token), halerr.ErrApprovalNotFound)
}

func TestExecuteHardBlock(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	// $600 exceeds the $500 per-transaction cap.
	out, err := e.coord.Execute(context.Background(), sendReq("0.6"))
	require.Error(t, err)
	assert.ErrorIs(t, err, halerr.ErrPolicyViolation)
	assert.Equal(t, policy.TierHardBlock, out.Decision.Tier)
	assert.Empty(t, e.fake.Sent())
	assert.Empty(t, e.history(t))
	assert.Equal(t, "blocked", e.lastAudit(t).Outcome)
}

func TestExecuteBlockedRecipient(t *testing.T) {
	p := openPolicy()
	p.SendAllowAny = false
	p.SendAllowlist = nil
	e := newTestEnv(t, p)

	_, err := e.coord.Execute(context.Background(), sendReq("0.01"))
	assert.ErrorIs(t, err, halerr.ErrPolicyViolation)
	assert.Empty(t, e.history(t))
}

func TestSimulationFailureWritesNoHistory(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	e.fake.SimulateErr = halerr.Wrap(halerr.ErrSimulationFailed, "execution reverted")

	_, err := e.coord.Execute(context.Background(), sendReq("0.05"))
	assert.ErrorIs(t, err, halerr.ErrSimulationFailed)
	assert.Empty(t, e.fake.Sent())
	assert.Empty(t, e.history(t))
	assert.Equal(t, "failed", e.lastAudit(t).Outcome)
}

func TestBroadcastFailureWritesNoHistory(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	e.fake.SendErr = halerr.Wrap(halerr.ErrBroadcastFailed, "nonce too low")

	_, err := e.coord.Execute(context.Background(), sendReq("0.05"))
	assert.ErrorIs(t, err, halerr.ErrBroadcastFailed)
	assert.Empty(t, e.history(t))
}

func TestSigningKeyZeroizedAfterBroadcast(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	_, err := e.coord.Execute(context.Background(), sendReq("0.05"))
	require.NoError(t, err)

	key := e.fake.LastKey()
	require.NotEmpty(t, key)
	for i, b := range key {
		assert.Zerof(t, b, "key byte %d not zeroized", i)
	}
}

func TestDailySpendAccumulates(t *testing.T) {
	p := openPolicy()
	p.AutoApproveUSD = 500
	e := newTestEnv(t, p)

	// Two $300 sends fit the $800 daily budget; the third does not.
	for i := 0; i < 2; i++ {
		_, err := e.coord.Execute(context.Background(), sendReq("0.3"))
		require.NoError(t, err)
	}
	out, err := e.coord.Execute(context.Background(), sendReq("0.3"))
	assert.ErrorIs(t, err, halerr.ErrPolicyViolation)
	assert.Equal(t, policy.ReasonUSDCapExceeded, out.Decision.Reason)
	assert.Len(t, e.history(t), 2)
}

func TestUnknownUSDValueFailsClosed(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	e.coord.prices = &price.Fixed{} // no quotes at all

	_, err := e.coord.Execute(context.Background(), sendReq("0.05"))
	assert.ErrorIs(t, err, halerr.ErrPolicyViolation)
	assert.Empty(t, e.history(t))
}

func TestPassphraseWalletNeedsSession(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	passKey, err := e.ks.DerivePassphraseKey([]byte("correct horse battery"))
	require.NoError(t, err)

	_, err = e.ks.CreateWallet("vault", 12, passKey)
	require.NoError(t, err)
	require.NoError(t, e.ks.SetActive("vault", 0))

	_, err = e.coord.Execute(context.Background(), sendReq("0.05"))
	assert.ErrorIs(t, err, halerr.ErrPassphraseRequired)
	assert.Empty(t, e.history(t))

	require.NoError(t, e.sess.Unlock(passKey))
	out, err := e.coord.Execute(context.Background(), sendReq("0.05"))
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Len(t, e.history(t), 1)
}

func TestExecuteNamedWalletAndAccount(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	_, account, err := e.ks.AddAccount("main", nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), account)

	req := sendReq("0.05")
	req.Wallet = "main"
	req.Account = 1
	out, err := e.coord.Execute(context.Background(), req)
	require.NoError(t, err)

	rec, err := e.ks.GetWallet("main")
	require.NoError(t, err)
	sent := e.fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, rec.EVMAddresses[1], sent[0].From)
	assert.NotNil(t, out.Result)

	req.Account = 5
	_, err = e.coord.Execute(context.Background(), req)
	assert.ErrorIs(t, err, halerr.ErrAccountOutOfRange)
}

func TestExecuteMissingAdapter(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	req := sendReq("0.05")
	req.Chain = chain.Arbitrum
	e.coord.prices.(*price.Fixed).Native[chain.Arbitrum] = 1000

	_, err := e.coord.Execute(context.Background(), req)
	assert.ErrorIs(t, err, halerr.ErrInvalidRequest)
	assert.Empty(t, e.history(t))
	assert.Equal(t, "failed", e.lastAudit(t).Outcome)
}

func TestExecuteRejectsMalformedRequests(t *testing.T) {
	e := newTestEnv(t, openPolicy())

	cases := []Request{
		{Chain: chain.Base, To: testDest, Amount: "1"},                           // no kind
		{Kind: policy.KindSend, Chain: "dogecoin", To: testDest, Amount: "1"},    // bad chain
		{Kind: policy.KindSend, Chain: chain.Base, To: testDest},                 // no amount
		{Kind: policy.KindSend, Chain: chain.Base, To: testDest, Amount: "nope"}, // bad amount
	}
	for _, req := range cases {
		_, err := e.coord.Execute(context.Background(), req)
		assert.ErrorIs(t, err, halerr.ErrInvalidRequest)
	}
	assert.Empty(t, e.fake.Sent())
}

func TestApprovalsDoNotTimeOut(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	e := newTestEnv(t, openPolicy(), WithClock(clock))

	out, err := e.coord.Execute(context.Background(), sendReq("0.2"))
	require.NoError(t, err)
	require.NotNil(t, out.Approval)
	assert.Equal(t, now, out.Approval.CreatedAt)
	assert.Len(t, e.coord.Pending(), 1)

	// Human response time is unbounded; a day-old approval is still
	// redeemable.
	mu.Lock()
	now = now.Add(24 * time.Hour)
	mu.Unlock()

	assert.Len(t, e.coord.Pending(), 1)
	res, err := e.coord.Approve(context.Background(), out.Approval.Token)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

// slowAdapter counts concurrent Sends to prove the mutation slot
// serializes broadcasts.
type slowAdapter struct {
	*chaintest.Fake
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *slowAdapter) Send(ctx context.Context, req chain.SendRequest) (*chain.TxResult, error) {
	n := s.inFlight.Add(1)
	if prev := s.maxSeen.Load(); n > prev {
		s.maxSeen.Store(n)
	}
	time.Sleep(2 * time.Millisecond)
	s.inFlight.Add(-1)
	return s.Fake.Send(ctx, req)
}

func TestMutationSlotSerializesBroadcasts(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	slow := &slowAdapter{Fake: e.fake}
	e.coord.adapters[chain.Base] = slow

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.coord.Execute(context.Background(), sendReq("0.01"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), slow.maxSeen.Load())
	assert.Len(t, e.fake.Sent(), 8)
	assert.Len(t, e.history(t), 8)
}

func TestBalanceRead(t *testing.T) {
	e := newTestEnv(t, openPolicy())
	rec, _, err := e.ks.ActiveWallet()
	require.NoError(t, err)
	e.fake.SetBalance(rec.EVMAddresses[0], big.NewInt(1_500_000_000_000_000_000))

	bal, addr, err := e.coord.Balance(context.Background(), "", 0, chain.Base, "")
	require.NoError(t, err)
	assert.Equal(t, rec.EVMAddresses[0], addr)
	assert.Equal(t, "1500000000000000000", bal.String())
	assert.Empty(t, e.history(t), "reads leave no trace")
}

func TestInternalTransferStrictCountsAgainstBudget(t *testing.T) {
	p := openPolicy()
	p.InternalTransfersExempt = false
	p.AutoApproveUSD = 500
	e := newTestEnv(t, p)

	req := sendReq("0.3")
	req.Kind = policy.KindInternalTransfer
	_, err := e.coord.Execute(context.Background(), req)
	require.NoError(t, err)

	hist := e.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, "internal_transfer_strict", hist[0].Type)

	spend, err := e.ks.DailySpendUSD("main", e.ks.CurrentDayKey())
	require.NoError(t, err)
	assert.InDelta(t, 300, spend, 0.001)
}
