package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/keystore"
)

func seedHistory(t *testing.T) {
	t.Helper()
	ks, err := openKeystore()
	require.NoError(t, err)

	usd := 12.5
	require.NoError(t, ks.AppendHistory(keystore.HistoryEntry{
		Type:        "send",
		Wallet:      "treasury",
		Chain:       "base",
		Destination: "0x1111111111111111111111111111111111111111",
		Asset:       "ETH",
		Amount:      "0.005",
		USDValue:    &usd,
		TxID:        "0xaaaa",
		Tier:        "auto_approve",
	}))
	require.NoError(t, ks.AppendHistory(keystore.HistoryEntry{
		Type:   "swap",
		Wallet: "scratch",
		Chain:  "arbitrum",
	}))
}

func TestHistoryEmpty(t *testing.T) {
	_, buf := setupTestEnv(t)

	require.NoError(t, runHistory(historyCmd, nil))
	assert.Contains(t, buf.String(), "no executed operations")
}

func TestHistoryTable(t *testing.T) {
	_, buf := setupTestEnv(t)
	seedHistory(t)

	require.NoError(t, runHistory(historyCmd, nil))
	out := buf.String()
	assert.Contains(t, out, "send")
	assert.Contains(t, out, "treasury")
	assert.Contains(t, out, "$12.50")
	assert.Contains(t, out, "spent today")
}

func TestHistoryWalletFilter(t *testing.T) {
	_, buf := setupTestEnv(t)
	seedHistory(t)

	historyWallet = "scratch"
	require.NoError(t, runHistory(historyCmd, nil))
	out := buf.String()
	assert.Contains(t, out, "scratch")
	assert.NotContains(t, out, "treasury")
}

func TestHistoryLimit(t *testing.T) {
	_, buf := setupTestEnv(t)
	seedHistory(t)

	historyLimit = 1
	require.NoError(t, runHistory(historyCmd, nil))
	out := buf.String()
	assert.Contains(t, out, "swap")
	assert.NotContains(t, out, "send")
}

func TestAuditTable(t *testing.T) {
	_, buf := setupTestEnv(t)

	ks, err := openKeystore()
	require.NoError(t, err)
	require.NoError(t, ks.AppendAudit(keystore.AuditEntry{
		Type:    "send",
		Wallet:  "treasury",
		Tier:    "hard_block",
		Reason:  "exceeds hard block ceiling",
		Outcome: "blocked",
	}))

	require.NoError(t, runAudit(auditCmd, nil))
	out := buf.String()
	assert.Contains(t, out, "hard_block")
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "exceeds hard block ceiling")
}

func TestTruncateMiddle(t *testing.T) {
	assert.Equal(t, "short", truncateMiddle("short", 16))
	long := "0x1111111111111111111111111111111111111111"
	got := truncateMiddle(long, 16)
	assert.Len(t, got, 16)
	assert.Contains(t, got, "..")
}
