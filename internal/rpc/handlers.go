package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/halyard-sh/halyard/internal/backup"
	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/engine"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/metrics"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

func (s *Server) registerHandlers() {
	s.handlers = map[string]handler{
		"status": s.handleStatus,

		"wallet/create":           s.handleWalletCreate,
		"wallet/import":           s.handleWalletImport,
		"wallet/list":             s.handleWalletList,
		"wallet/select":           s.handleWalletSelect,
		"wallet/add_account":      s.handleAddAccount,
		"wallet/remove":           s.handleWalletRemove,
		"wallet/rotate_shares":    s.handleRotateShares,
		"wallet/export_shares":    s.handleExportShares,
		"wallet/verify_share":     s.handleVerifyShare,
		"wallet/recover_mnemonic": s.handleRecoverMnemonic,

		"session/unlock": s.handleSessionUnlock,
		"session/lock":   s.handleSessionLock,
		"session/status": s.handleSessionStatus,

		"balance":   s.handleBalance,
		"execute":   s.handleExecute,
		"approve":   s.handleApprove,
		"decline":   s.handleDecline,
		"approvals": s.handleApprovals,

		"policy/get":   s.handlePolicyGet,
		"policy/set":   s.handlePolicySet,
		"policy/reset": s.handlePolicyReset,

		"history": s.handleHistory,
		"audit":   s.handleAudit,

		"backup/create": s.handleBackupCreate,
		"backup/list":   s.handleBackupList,
		"backup/verify": s.handleBackupVerify,
	}
}

func decode[T any](params json.RawMessage) (*T, error) {
	var v T
	if len(params) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "decoding params: %v", err)
	}
	return &v, nil
}

// passKeyFor resolves the passphrase master key for a keystore write:
// an explicit passphrase wins, then the unlocked session, then nil
// (machine-bound). The cleanup zeroizes only keys this call derived.
func (s *Server) passKeyFor(passphrase string) ([]byte, func(), error) {
	if passphrase != "" {
		key, err := s.ks.DerivePassphraseKey([]byte(passphrase))
		if err != nil {
			return nil, nil, err
		}
		return key, func() { vaultcrypto.ZeroBytes(key) }, nil
	}
	if key, ok := s.sess.Key(); ok {
		return key, func() {}, nil
	}
	return nil, func() {}, nil
}

type statusResult struct {
	Version       string           `json:"version"`
	Unlocked      bool             `json:"unlocked"`
	Wallets       int              `json:"wallets"`
	ActiveWallet  string           `json:"active_wallet,omitempty"`
	ActiveAccount uint32           `json:"active_account"`
	Counters      metrics.Snapshot `json:"counters"`
}

func (s *Server) handleStatus(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	records, err := s.ks.ListWallets()
	if err != nil {
		return nil, err
	}
	res := statusResult{
		Version:  s.version,
		Unlocked: s.sess.Unlocked(),
		Wallets:  len(records),
		Counters: s.stats.Snapshot(),
	}
	if rec, account, aerr := s.ks.ActiveWallet(); aerr == nil {
		res.ActiveWallet = rec.Name
		res.ActiveAccount = account
	}
	return res, nil
}

type walletCreateParams struct {
	Name       string `json:"name"`
	Words      int    `json:"words,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

type walletCreateResult struct {
	Wallet keystore.WalletRecord `json:"wallet"`

	// Shown exactly once; the daemon keeps only the fingerprint.
	Mnemonic         string `json:"mnemonic"`
	OfflineShare     string `json:"offline_share"`
	ShareFingerprint string `json:"share_fingerprint"`
}

func (s *Server) handleWalletCreate(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletCreateParams](params)
	if err != nil {
		return nil, err
	}
	if p.Words == 0 {
		p.Words = 24
	}
	passKey, cleanup, err := s.passKeyFor(p.Passphrase)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	res, err := s.ks.CreateWallet(p.Name, p.Words, passKey)
	if err != nil {
		return nil, err
	}
	return walletCreateResult{
		Wallet:           res.Record,
		Mnemonic:         res.Mnemonic,
		OfflineShare:     res.OfflineShare,
		ShareFingerprint: res.ShareFingerprint,
	}, nil
}

type walletImportParams struct {
	Name       string `json:"name"`
	Material   string `json:"material"`
	Passphrase string `json:"passphrase,omitempty"`
}

func (s *Server) handleWalletImport(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletImportParams](params)
	if err != nil {
		return nil, err
	}
	passKey, cleanup, err := s.passKeyFor(p.Passphrase)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return s.ks.ImportWallet(p.Name, p.Material, passKey)
}

func (s *Server) handleWalletList(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	return s.ks.ListWallets()
}

type walletSelectParams struct {
	Name    string `json:"name"`
	Account uint32 `json:"account,omitempty"`
}

func (s *Server) handleWalletSelect(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletSelectParams](params)
	if err != nil {
		return nil, err
	}
	if err := s.ks.SetActive(p.Name, p.Account); err != nil {
		return nil, err
	}
	return s.ks.GetWallet(p.Name)
}

type walletNameParams struct {
	Name string `json:"name"`
}

type addAccountResult struct {
	Wallet  keystore.WalletRecord `json:"wallet"`
	Account uint32                `json:"account"`
	Address string                `json:"address"`
}

func (s *Server) handleAddAccount(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletNameParams](params)
	if err != nil {
		return nil, err
	}
	passKey, cleanup, err := s.passKeyFor("")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rec, account, err := s.ks.AddAccount(p.Name, passKey)
	if err != nil {
		return nil, err
	}
	return addAccountResult{
		Wallet:  rec,
		Account: account,
		Address: rec.EVMAddresses[account],
	}, nil
}

func (s *Server) handleWalletRemove(ctx context.Context, c *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletNameParams](params)
	if err != nil {
		return nil, err
	}
	// Removal destroys live shares, so it always rides the
	// confirmation rail even for auto-approve-everything policies.
	accepted, err := c.elicit(ctx, &elicitation{
		Reason:   "wallet_removal",
		Detail:   "removing wallet " + p.Name + " deletes its share files",
		Summary:  opFacts{Kind: "wallet_remove", Wallet: p.Name},
		Question: "Remove wallet " + p.Name + "? Funds are unrecoverable without the mnemonic or offline share.",
		Options:  []string{"accept", "decline"},
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, halerr.Wrap(halerr.ErrUserDeclined, "wallet removal declined")
	}
	if err := s.ks.RemoveWallet(p.Name); err != nil {
		return nil, err
	}
	return map[string]string{"removed": p.Name}, nil
}

func (s *Server) handleRotateShares(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletNameParams](params)
	if err != nil {
		return nil, err
	}
	passKey, cleanup, err := s.passKeyFor("")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return s.ks.RotateShares(p.Name, passKey)
}

func (s *Server) handleExportShares(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletNameParams](params)
	if err != nil {
		return nil, err
	}
	return s.ks.ExportShares(p.Name)
}

type verifyShareParams struct {
	Name  string `json:"name"`
	Share string `json:"share"`
}

func (s *Server) handleVerifyShare(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[verifyShareParams](params)
	if err != nil {
		return nil, err
	}
	ok, err := s.ks.VerifyOfflineShare(p.Name, p.Share)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"valid": ok}, nil
}

func (s *Server) handleRecoverMnemonic(ctx context.Context, c *conn, params json.RawMessage) (any, error) {
	p, err := decode[walletNameParams](params)
	if err != nil {
		return nil, err
	}
	// The mnemonic is the whole wallet; never hand it out without an
	// explicit human accept.
	accepted, err := c.elicit(ctx, &elicitation{
		Reason:   "mnemonic_export",
		Summary:  opFacts{Kind: "recover_mnemonic", Wallet: p.Name},
		Question: "Reveal the recovery mnemonic for wallet " + p.Name + "?",
		Options:  []string{"accept", "decline"},
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, halerr.Wrap(halerr.ErrUserDeclined, "mnemonic export declined")
	}

	passKey, cleanup, err := s.passKeyFor("")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	mnemonic, err := s.ks.RecoverMnemonic(p.Name, passKey)
	if err != nil {
		return nil, err
	}
	return map[string]string{"mnemonic": mnemonic}, nil
}

type unlockParams struct {
	Passphrase string `json:"passphrase"`
}

func (s *Server) handleSessionUnlock(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[unlockParams](params)
	if err != nil {
		return nil, err
	}
	if p.Passphrase == "" {
		return nil, halerr.Wrap(halerr.ErrPassphraseRequired, "empty passphrase")
	}
	key, err := s.ks.DerivePassphraseKey([]byte(p.Passphrase))
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(key)
	if err := s.sess.Unlock(key); err != nil {
		return nil, err
	}
	return s.sessionStatus(), nil
}

func (s *Server) handleSessionLock(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	s.sess.Invalidate()
	return s.sessionStatus(), nil
}

func (s *Server) handleSessionStatus(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	return s.sessionStatus(), nil
}

type sessionStatusResult struct {
	Unlocked  bool       `json:"unlocked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) sessionStatus() sessionStatusResult {
	res := sessionStatusResult{Unlocked: s.sess.Unlocked()}
	if at, ok := s.sess.ExpiresAt(); ok {
		res.ExpiresAt = &at
	}
	return res
}

type balanceParams struct {
	Wallet  string   `json:"wallet,omitempty"`
	Account uint32   `json:"account,omitempty"`
	Chain   chain.ID `json:"chain"`
	Token   string   `json:"token,omitempty"`
}

type balanceResult struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Balance string `json:"balance"`
	Token   string `json:"token,omitempty"`
}

func (s *Server) handleBalance(ctx context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[balanceParams](params)
	if err != nil {
		return nil, err
	}
	bal, addr, err := s.coord.Balance(ctx, p.Wallet, p.Account, p.Chain, p.Token)
	if err != nil {
		return nil, err
	}
	return balanceResult{
		Address: addr,
		Chain:   string(p.Chain),
		Balance: bal.String(),
		Token:   p.Token,
	}, nil
}

type executeResult struct {
	Tier   string          `json:"tier"`
	Reason string          `json:"reason,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Result *chain.TxResult `json:"result,omitempty"`
}

// handleExecute runs the full pipeline. A require-confirm decision
// turns into an elicitation round-trip on the caller's connection; the
// caller's accept or decline resolves the parked approval before the
// response goes out.
func (s *Server) handleExecute(ctx context.Context, c *conn, params json.RawMessage) (any, error) {
	req, err := decode[engine.Request](params)
	if err != nil {
		return nil, err
	}
	out, err := s.coord.Execute(ctx, *req)
	if err != nil {
		if out != nil && out.Decision.Tier == policy.TierHardBlock {
			s.stats.RecordBlocked()
		}
		return nil, err
	}
	if out.Approval == nil && out.Result != nil {
		s.stats.RecordExecuted()
	}
	res := executeResult{
		Tier:   out.Decision.Tier.String(),
		Reason: out.Decision.Reason,
		Detail: out.Decision.Detail,
		Result: out.Result,
	}
	if out.Approval == nil {
		return res, nil
	}

	accepted, err := c.elicit(ctx, &elicitation{
		Token:  out.Approval.Token,
		Reason: out.Decision.Reason,
		Detail: out.Decision.Detail,
		Summary: opFacts{
			Kind:     string(req.Kind),
			Wallet:   out.Approval.Wallet,
			Chain:    string(req.Chain),
			To:       req.To,
			Amount:   req.Amount,
			Asset:    req.AssetSymbol(),
			USDValue: out.Approval.Facts.USDValue,
		},
		Question: "Approve this operation?",
		Options:  []string{"accept", "decline"},
	})
	if err != nil {
		// The approval stays parked; an operator can still resolve it
		// out of band via approve/decline.
		return nil, err
	}
	if !accepted {
		if derr := s.coord.Decline(out.Approval.Token); derr != nil {
			return nil, derr
		}
		s.stats.RecordDeclined()
		return nil, halerr.Wrap(halerr.ErrUserDeclined, "operation declined")
	}
	txr, err := s.coord.Approve(ctx, out.Approval.Token)
	if err != nil {
		return nil, err
	}
	s.stats.RecordExecuted()
	res.Result = txr
	return res, nil
}

type tokenParams struct {
	Token string `json:"token"`
}

func (s *Server) handleApprove(ctx context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[tokenParams](params)
	if err != nil {
		return nil, err
	}
	txr, err := s.coord.Approve(ctx, p.Token)
	if err != nil {
		return nil, err
	}
	s.stats.RecordExecuted()
	return txr, nil
}

func (s *Server) handleDecline(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[tokenParams](params)
	if err != nil {
		return nil, err
	}
	if err := s.coord.Decline(p.Token); err != nil {
		return nil, err
	}
	s.stats.RecordDeclined()
	return map[string]string{"declined": p.Token}, nil
}

func (s *Server) handleApprovals(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	return s.coord.Pending(), nil
}

type policyScopeParams struct {
	Wallet string `json:"wallet,omitempty"`
}

func (s *Server) handlePolicyGet(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[policyScopeParams](params)
	if err != nil {
		return nil, err
	}
	return s.policies.Effective(p.Wallet), nil
}

type policySetParams struct {
	Wallet string        `json:"wallet,omitempty"`
	Policy policy.Policy `json:"policy"`
}

func (s *Server) handlePolicySet(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[policySetParams](params)
	if err != nil {
		return nil, err
	}
	if err := s.policies.Update(p.Wallet, p.Policy); err != nil {
		return nil, err
	}
	return s.policies.Effective(p.Wallet), nil
}

func (s *Server) handlePolicyReset(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	p, err := decode[policyScopeParams](params)
	if err != nil {
		return nil, err
	}
	if err := s.policies.RemoveOverride(p.Wallet); err != nil {
		return nil, err
	}
	return s.policies.Effective(p.Wallet), nil
}

func (s *Server) handleHistory(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	return s.ks.History()
}

func (s *Server) handleAudit(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	return s.ks.ReadAudit()
}

type backupCreateParams struct {
	Passphrase string `json:"passphrase"`
}

type backupCreateResult struct {
	Path     string          `json:"path"`
	Manifest backup.Manifest `json:"manifest"`
}

func (s *Server) handleBackupCreate(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	if s.backups == nil {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "backups are not configured")
	}
	p, err := decode[backupCreateParams](params)
	if err != nil {
		return nil, err
	}
	b, path, err := s.backups.Create(p.Passphrase)
	if err != nil {
		return nil, err
	}
	return backupCreateResult{Path: path, Manifest: b.Manifest}, nil
}

func (s *Server) handleBackupList(_ context.Context, _ *conn, _ json.RawMessage) (any, error) {
	if s.backups == nil {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "backups are not configured")
	}
	return s.backups.List()
}

type backupVerifyParams struct {
	Path string `json:"path"`
}

func (s *Server) handleBackupVerify(_ context.Context, _ *conn, params json.RawMessage) (any, error) {
	if s.backups == nil {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "backups are not configured")
	}
	p, err := decode[backupVerifyParams](params)
	if err != nil {
		return nil, err
	}
	return s.backups.Verify(p.Path)
}
