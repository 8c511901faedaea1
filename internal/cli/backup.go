package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/backup"
	"github.com/halyard-sh/halyard/internal/output"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and restore encrypted keystore backups",
	Long: `Create and restore encrypted keystore backups. A backup is a single
age-encrypted file carrying the whole keystore directory, so restoring
it reproduces wallets, shares, history, and audit log exactly. The
backup passphrase is independent of any wallet passphrase.`,
}

var (
	backupDest       string
	backupPassVerify bool
)

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an encrypted backup of the keystore",
	Args:  cobra.NoArgs,
	RunE:  runBackupCreate,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore a backup into a new keystore directory",
	Long: `Restore a backup into a new keystore directory. The destination must
be empty or missing; restoring over a live keystore is refused.`,
	Example: `  halyard backup restore ~/.halyard/backups/halyard-backup-20260830-120000.hbk
  halyard backup restore backup.hbk --dest /mnt/recovery/keystore`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the backup directory",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify a backup's integrity",
	Long: `Verify a backup's structure and checksum. With --passphrase, also
prove the passphrase decrypts the archive.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupVerify,
}

func runBackupCreate(_ *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	svc := backup.NewService(backupDir(), ks)

	pass, err := promptNewPassphraseFn()
	if err != nil {
		return err
	}
	defer vaultcrypto.ZeroBytes(pass)

	b, path, err := svc.Create(string(pass))
	if err != nil {
		return err
	}

	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{
			"path":     path,
			"manifest": b.Manifest,
		})
	}
	output.Successf("backup written to %s", path)
	_ = formatter.Printf("  wallets: %d  files: %d  created: %s\n",
		len(b.Manifest.Wallets), b.Manifest.FileCount,
		b.Manifest.CreatedAt.Format(time.RFC3339))
	return nil
}

func runBackupRestore(_ *cobra.Command, args []string) error {
	dest := backupDest
	if dest == "" {
		dest = keystoreDir()
	}

	pass, err := promptPassphraseFn("Backup passphrase: ")
	if err != nil {
		return err
	}
	defer vaultcrypto.ZeroBytes(pass)

	svc := backup.NewService(backupDir(), nil)
	if err := svc.Restore(args[0], string(pass), dest); err != nil {
		return err
	}
	return output.FormatSuccess(formatter.Writer(), "keystore restored to "+dest, formatter.Format())
}

func runBackupList(_ *cobra.Command, _ []string) error {
	svc := backup.NewService(backupDir(), nil)
	names, err := svc.List()
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{"backups": names})
	}
	if len(names) == 0 {
		return formatter.Println("no backups found in " + backupDir())
	}
	tbl := output.NewTable("NAME", "SIZE", "MODIFIED")
	for _, name := range names {
		path := svc.BackupPath(name)
		size, modified := "?", "?"
		if fi, serr := os.Stat(path); serr == nil {
			size = formatByteSize(fi.Size())
			modified = fi.ModTime().Format("2006-01-02 15:04")
		}
		tbl.AddRow(name, size, modified)
	}
	return tbl.Render(formatter.Writer())
}

func formatByteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}

func runBackupVerify(_ *cobra.Command, args []string) error {
	svc := backup.NewService(backupDir(), nil)

	var (
		manifest *backup.Manifest
		err      error
	)
	if backupPassVerify {
		var pass []byte
		pass, err = promptPassphraseFn("Backup passphrase: ")
		if err != nil {
			return err
		}
		manifest, err = svc.VerifyWithDecryption(args[0], string(pass))
		vaultcrypto.ZeroBytes(pass)
	} else {
		manifest, err = svc.Verify(args[0])
	}
	if err != nil {
		return err
	}

	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{
			"valid":     true,
			"decrypted": backupPassVerify,
			"manifest":  manifest,
		})
	}
	output.Successf("backup is valid (%d files, created %s)",
		manifest.FileCount, manifest.CreatedAt.Format(time.RFC3339))
	if len(manifest.Wallets) > 0 {
		tbl := output.NewTable("WALLET", "KIND", "ACCOUNTS")
		for _, w := range manifest.Wallets {
			tbl.AddRow(w.Name, w.Kind, strconv.FormatUint(uint64(w.Accounts), 10))
		}
		if rerr := tbl.Render(formatter.Writer()); rerr != nil {
			return rerr
		}
	}
	if !backupPassVerify {
		return formatter.Println("run with --passphrase to also test decryption")
	}
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	backupRestoreCmd.Flags().StringVar(&backupDest, "dest", "", "destination directory (default: the keystore directory)")
	backupVerifyCmd.Flags().BoolVar(&backupPassVerify, "passphrase", false, "also verify the passphrase decrypts the archive")

	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd, backupListCmd, backupVerifyCmd)
	rootCmd.AddCommand(backupCmd)
}
