package keystore

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/halyard-sh/halyard/internal/fileutil"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// HistoryEntry is one line of tx_history.jsonl. History is written
// only after a broadcast (or completed off-chain write); evaluations,
// declines, and simulation failures never appear here.
type HistoryEntry struct {
	Timestamp   time.Time `json:"ts"`
	Day         string    `json:"day"`
	Type        string    `json:"type"`
	Wallet      string    `json:"wallet"`
	Chain       string    `json:"chain,omitempty"`
	Destination string    `json:"to,omitempty"`
	Asset       string    `json:"asset,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	USDValue    *float64  `json:"usd_value,omitempty"`
	TxID        string    `json:"tx_id,omitempty"`
	Tier        string    `json:"tier,omitempty"`
}

// spendTypes are the history entry types that count against the daily
// USD budget. Reads, closes returning value, and withdrawals do not
// consume budget.
var spendTypes = map[string]bool{
	"send":                     true,
	"swap":                     true,
	"perp_open":                true,
	"perp_modify":              true,
	"limit_order":              true,
	"nft_buy":                  true,
	"nft_bid":                  true,
	"pumpfun_buy":              true,
	"bridge":                   true,
	"lend":                     true,
	"borrow":                   true,
	"repay_borrow":             true,
	"stake":                    true,
	"provide_liquidity":        true,
	"place_prediction":         true,
	"internal_transfer_strict": true,
}

// DayKey formats a time as the UTC day bucket history entries are
// aggregated under.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CurrentDayKey is DayKey for the keystore's clock.
func (k *Keystore) CurrentDayKey() string {
	return DayKey(k.now())
}

// AppendHistory appends one entry to the transaction history. Missing
// timestamp and day fields are filled from the keystore clock.
func (k *Keystore) AppendHistory(e HistoryEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = k.now().UTC()
	}
	if e.Day == "" {
		e.Day = DayKey(e.Timestamp)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return halerr.Wrap(err, "encoding history entry")
	}
	return fileutil.AppendLine(k.historyPath(), line)
}

// History returns all entries, oldest first. A missing file is an
// empty history.
func (k *Keystore) History() ([]HistoryEntry, error) {
	return readHistoryFile(k.historyPath())
}

// DailySpendUSD sums the USD value of budget-consuming entries for a
// wallet on the given day. An empty wallet name sums across wallets.
func (k *Keystore) DailySpendUSD(walletName, day string) (float64, error) {
	entries, err := k.History()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, e := range entries {
		if e.Day != day || !spendTypes[e.Type] || e.USDValue == nil {
			continue
		}
		if walletName != "" && e.Wallet != walletName {
			continue
		}
		total += *e.USDValue
	}
	return total, nil
}

// AuditEntry is one line of audit.jsonl. Every evaluated request gets
// an audit entry regardless of outcome; the audit log is the record of
// decisions, history is the record of effects.
type AuditEntry struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Wallet    string    `json:"wallet,omitempty"`
	Chain     string    `json:"chain,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Outcome   string    `json:"outcome"`
	USDValue  *float64  `json:"usd_value,omitempty"`
	TxID      string    `json:"tx_id,omitempty"`
}

// AppendAudit appends one entry to the audit log.
func (k *Keystore) AppendAudit(e AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = k.now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return halerr.Wrap(err, "encoding audit entry")
	}
	return fileutil.AppendLine(k.auditPath(), line)
}

// ReadAudit returns all audit entries, oldest first.
func (k *Keystore) ReadAudit() ([]AuditEntry, error) {
	f, err := os.Open(k.auditPath()) //nolint:gosec // keystore-internal path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, halerr.Wrap(err, "opening audit log")
	}
	defer func() { _ = f.Close() }()

	var out []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "parsing audit log: %v", err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, halerr.Wrap(err, "reading audit log")
	}
	return out, nil
}

func readHistoryFile(path string) ([]HistoryEntry, error) {
	f, err := os.Open(path) //nolint:gosec // keystore-internal path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, halerr.Wrap(err, "opening history")
	}
	defer func() { _ = f.Close() }()

	var out []HistoryEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e HistoryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "parsing history: %v", err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, halerr.Wrap(err, "reading history")
	}
	return out, nil
}
