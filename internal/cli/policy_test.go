package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/policy"
)

func TestPolicyShowDefault(t *testing.T) {
	_, buf := setupTestEnv(t)

	require.NoError(t, runPolicyShow(policyShowCmd, nil))
	out := buf.String()
	assert.Contains(t, out, "max_usd_per_day")
	assert.Contains(t, out, "auto_approve_usd")
}

func TestPolicyShowWalletWithoutOverride(t *testing.T) {
	_, buf := setupTestEnv(t)

	policyWallet = "treasury"
	require.NoError(t, runPolicyShow(policyShowCmd, nil))
	assert.Contains(t, buf.String(), "follows the global policy")
}

func TestPolicySetWalletOverride(t *testing.T) {
	setupTestEnv(t)

	policyWallet = "scratch"
	policyDisable = []string{"perps", "nft"}
	require.NoError(t, runPolicySet(policySetCmd, nil))

	store, err := openPolicies()
	require.NoError(t, err)
	require.True(t, store.HasOverride("scratch"))

	eff := store.Effective("scratch")
	assert.False(t, eff.EnablePerps)
	assert.False(t, eff.EnableNFT)
	assert.True(t, eff.EnableSend)

	// The global policy is untouched.
	assert.True(t, store.Effective("").EnablePerps)
}

func TestPolicySetFromFile(t *testing.T) {
	tmp, _ := setupTestEnv(t)

	path := filepath.Join(tmp, "tight.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_usd_per_day: 42\nenable_send: false\n"), 0o600))

	policyFile = path
	require.NoError(t, runPolicySet(policySetCmd, nil))

	store, err := openPolicies()
	require.NoError(t, err)
	eff := store.Effective("")
	assert.InDelta(t, 42.0, eff.MaxUSDPerDay, 0.001)
	assert.False(t, eff.EnableSend)
	// Fields the file omits keep their defaults.
	assert.InDelta(t, policy.Default().MaxUSDPerTx, eff.MaxUSDPerTx, 0.001)
}

func TestPolicyResetOverride(t *testing.T) {
	setupTestEnv(t)

	policyWallet = "scratch"
	policyDisable = []string{"send"}
	require.NoError(t, runPolicySet(policySetCmd, nil))

	require.NoError(t, runPolicyReset(policyResetCmd, nil))

	store, err := openPolicies()
	require.NoError(t, err)
	assert.False(t, store.HasOverride("scratch"))
	assert.True(t, store.Effective("scratch").EnableSend)
}

func TestPolicyResetGlobal(t *testing.T) {
	setupTestEnv(t)

	policyDisable = []string{"swap"}
	require.NoError(t, runPolicySet(policySetCmd, nil))
	policyDisable = nil

	require.NoError(t, runPolicyReset(policyResetCmd, nil))

	store, err := openPolicies()
	require.NoError(t, err)
	eff := store.Effective("")
	assert.True(t, eff.EnableSwap)
	assert.InDelta(t, policy.Default().MaxUSDPerDay, eff.MaxUSDPerDay, 0.001)
}

func TestApplyPolicyFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Float64("auto-approve-usd", 0, "")
	cmd.Flags().Float64("max-usd-per-day", 0, "")
	cmd.Flags().Uint32("max-slippage-bps", 0, "")
	cmd.Flags().StringSlice("send-allowlist", nil, "")
	require.NoError(t, cmd.Flags().Set("auto-approve-usd", "25"))
	require.NoError(t, cmd.Flags().Set("max-usd-per-day", "1000"))
	require.NoError(t, cmd.Flags().Set("max-slippage-bps", "50"))
	require.NoError(t, cmd.Flags().Set("send-allowlist", "0xabc,0xdef"))

	p := policy.Default()
	require.NoError(t, applyPolicyFlags(cmd, &p))

	assert.InDelta(t, 25.0, p.AutoApproveUSD, 0.001)
	assert.InDelta(t, 1000.0, p.MaxUSDPerDay, 0.001)
	assert.Equal(t, uint32(50), p.MaxSlippageBps)
	assert.Equal(t, []string{"0xabc", "0xdef"}, p.SendAllowlist)
	// Untouched fields keep their values.
	assert.InDelta(t, policy.Default().ConfirmUpToUSD, p.ConfirmUpToUSD, 0.001)
}

func TestSetToggleUnknownOperation(t *testing.T) {
	p := policy.Default()
	require.NoError(t, setToggle(&p, "Staking", false))
	assert.False(t, p.EnableStaking)

	err := setToggle(&p, "teleport", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}
