package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/output"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
)

// statusCmd reports the running daemon's state.
var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show daemon status",
	Example: `  halyard status`,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

// unlockCmd starts a passphrase session on the daemon.
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock passphrase-protected wallets for the session TTL",
	Long: `Unlock passphrase-protected wallets on the running daemon. The derived
key is cached in locked memory for the configured session TTL and shared
by every connected agent; the passphrase itself is never stored.`,
	Example: `  halyard unlock`,
	Args:    cobra.NoArgs,
	RunE:    runUnlock,
}

// lockCmd ends the daemon session immediately.
var lockCmd = &cobra.Command{
	Use:     "lock",
	Short:   "End the passphrase session immediately",
	Example: `  halyard lock`,
	Args:    cobra.NoArgs,
	RunE:    runLock,
}

// approvalsCmd lists operations parked for human confirmation.
var approvalsCmd = &cobra.Command{
	Use:     "approvals",
	Short:   "List operations waiting for confirmation",
	Example: `  halyard approvals`,
	Args:    cobra.NoArgs,
	RunE:    runApprovals,
}

// approveCmd resolves a parked operation and executes it.
var approveCmd = &cobra.Command{
	Use:     "approve <token>",
	Short:   "Approve and execute a parked operation",
	Example: `  halyard approve 1f3a9c...`,
	Args:    cobra.ExactArgs(1),
	RunE:    runApprove,
}

// declineCmd resolves a parked operation without executing it.
var declineCmd = &cobra.Command{
	Use:     "decline <token>",
	Short:   "Decline a parked operation",
	Example: `  halyard decline 1f3a9c...`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDecline,
}

type daemonStatus struct {
	Version       string `json:"version"`
	Unlocked      bool   `json:"unlocked"`
	Wallets       int    `json:"wallets"`
	ActiveWallet  string `json:"active_wallet,omitempty"`
	ActiveAccount uint32 `json:"active_account"`
	Counters      struct {
		RequestsTotal int64 `json:"requests_total"`
		Executed      int64 `json:"executed"`
		Blocked       int64 `json:"blocked"`
		Declined      int64 `json:"declined"`
	} `json:"counters"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var st daemonStatus
	if err := client.call("status", nil, &st); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), st)
	}
	_ = formatter.Printf("Daemon:         %s\n", st.Version)
	_ = formatter.Printf("Session:        %s\n", lockState(st.Unlocked))
	_ = formatter.Printf("Wallets:        %d\n", st.Wallets)
	if st.ActiveWallet != "" {
		_ = formatter.Printf("Active wallet:  %s (account %d)\n", st.ActiveWallet, st.ActiveAccount)
	}
	_ = formatter.Printf("Requests:       %d (executed %d, blocked %d, declined %d)\n",
		st.Counters.RequestsTotal, st.Counters.Executed, st.Counters.Blocked, st.Counters.Declined)
	return nil
}

func lockState(unlocked bool) string {
	if unlocked {
		return "unlocked"
	}
	return "locked"
}

func runUnlock(_ *cobra.Command, _ []string) error {
	passphrase, err := promptPassphraseFn("Enter passphrase: ")
	if err != nil {
		return err
	}
	defer vaultcrypto.ZeroBytes(passphrase)

	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var res struct {
		Unlocked  bool       `json:"unlocked"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	params := map[string]string{"passphrase": string(passphrase)}
	if err := client.call("session/unlock", params, &res); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), res)
	}
	if res.ExpiresAt != nil {
		output.Successf("Session unlocked until %s", res.ExpiresAt.Local().Format(time.Kitchen))
	} else {
		output.Success("Session unlocked")
	}
	return nil
}

func runLock(_ *cobra.Command, _ []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.call("session/lock", nil, nil); err != nil {
		return err
	}
	return output.FormatSuccess(formatter.Writer(), "session locked", formatter.Format())
}

type pendingApproval struct {
	Token     string    `json:"token"`
	Wallet    string    `json:"wallet"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Request   struct {
		Kind   string `json:"kind"`
		Chain  string `json:"chain"`
		To     string `json:"to,omitempty"`
		Amount string `json:"amount"`
	} `json:"request"`
}

func runApprovals(_ *cobra.Command, _ []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var pending []pendingApproval
	if err := client.call("approvals", nil, &pending); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), pending)
	}
	if len(pending) == 0 {
		return formatter.Println("No pending approvals.")
	}
	tbl := output.NewTable("TOKEN", "KIND", "WALLET", "CHAIN", "AMOUNT", "REASON", "AGE")
	for _, p := range pending {
		tbl.AddRow(p.Token, p.Request.Kind, p.Wallet, p.Request.Chain, p.Request.Amount,
			p.Reason, time.Since(p.CreatedAt).Round(time.Second).String())
	}
	return tbl.Render(formatter.Writer())
}

func runApprove(_ *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var res struct {
		Hash string `json:"hash"`
	}
	if err := client.call("approve", map[string]string{"token": args[0]}, &res); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), res)
	}
	output.Successf("Executed: %s", res.Hash)
	return nil
}

func runDecline(_ *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.call("decline", map[string]string{"token": args[0]}, nil); err != nil {
		return err
	}
	return output.FormatSuccess(formatter.Writer(), "operation declined", formatter.Format())
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(statusCmd, unlockCmd, lockCmd, approvalsCmd, approveCmd, declineCmd)
}
