package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/backup"
	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/engine"
	"github.com/halyard-sh/halyard/internal/price"
	"github.com/halyard-sh/halyard/internal/rpc"
	"github.com/halyard-sh/halyard/internal/session"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	"github.com/halyard-sh/halyard/internal/version"
)

var (
	serveStdio  bool
	serveSocket string
)

// serveCmd runs the halyard daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the halyard daemon",
	Long: `Run the halyard daemon. Agents connect over a unix socket (or stdio
with --stdio) and speak line-delimited JSON-RPC. The daemon holds the
keystore lock for its lifetime; a second daemon on the same keystore
fails fast.

Set ` + "`HALYARD_PASSPHRASE`" + ` to unlock passphrase-protected wallets at
startup without an interactive prompt.`,
	Example: `  halyard serve
  halyard serve --stdio
  halyard serve --socket /run/halyard/halyard.sock`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	vaultcrypto.SetMemoryLock(cfg.Security.MemoryLock)

	ks, err := openKeystore()
	if err != nil {
		return err
	}
	lock, err := ks.AcquireLock()
	if err != nil {
		return err
	}
	defer lock.Release()

	policies, err := openPolicies()
	if err != nil {
		return err
	}

	var sessOpts []session.Option
	if cfg.Security.SessionSlidingTTL {
		sessOpts = append(sessOpts, session.WithSlidingTTL())
	}
	sess := session.NewManager(time.Duration(cfg.Security.SessionTTLMinutes)*time.Minute, sessOpts...)

	source, err := price.NewBinance(cfg.Prices.BinanceBaseURL)
	if err != nil {
		return err
	}
	prices := price.NewCached(source, time.Duration(cfg.Prices.CacheTTLSeconds)*time.Second)

	engOpts := []engine.Option{engine.WithLogger(logger)}
	for _, id := range cfg.EnabledEVMChains() {
		adapter, aerr := chain.NewEVM(id, cfg.RPCEndpoint(id))
		if aerr != nil {
			logger.Error("skipping %s: %v", id, aerr)
			continue
		}
		engOpts = append(engOpts, engine.WithAdapter(adapter))
	}
	coord := engine.New(ks, policies, sess, prices, engOpts...)

	srv := rpc.NewServer(ks, policies, sess, coord,
		rpc.WithLogger(logger),
		rpc.WithVersion(version.Current()),
		rpc.WithBackups(backup.NewService(backupDir(), ks)),
		rpc.WithIdleShutdown(time.Duration(cfg.Security.IdleShutdownMinutes)*time.Minute),
	)
	if err := srv.HeadlessUnlock(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveStdio {
		logger.Debug("serving on stdio")
		return srv.ServeConn(ctx, os.Stdin, os.Stdout)
	}

	sock := serveSocket
	if sock == "" {
		sock = socketPath()
	}
	logger.Debug("serving on %s", sock)
	return srv.ServeUnix(ctx, sock)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve a single client on stdin/stdout")
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "unix socket path (default: <home>/halyard.sock)")
	rootCmd.AddCommand(serveCmd)
}
