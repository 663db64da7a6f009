package settlement

import (
	"context"
	"fmt"

	"github.com/Proxy-Agent-Network/highcourt/types"
)

// FundsLedger is the economic ledger the court settles against. The
// token/ledger implementation lives outside the core; the core only
// requires idempotent transfers keyed so a retry cannot double-spend.
type FundsLedger interface {
	// Transfer moves amount from one account to another exactly once per
	// idempotency key and returns a transaction reference.
	Transfer(ctx context.Context, from, to string, amount int64, idemKey string) (string, error)
}

// JournalLedger is the embedded leveldb-backed ledger. Each transfer is
// journaled under its idempotency key; a replay returns the original
// transaction reference without moving funds again.
type JournalLedger struct {
	store *types.Storage
}

func NewJournalLedger(store *types.Storage) *JournalLedger {
	return &JournalLedger{store: store}
}

type journalEntry struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	TxRef  string `json:"tx_ref"`
}

func (j *JournalLedger) Transfer(_ context.Context, from, to string, amount int64, idemKey string) (string, error) {
	key := []byte("ledgertx/" + idemKey)
	existing := &journalEntry{}
	if ok, err := j.store.Get(key, existing); err != nil {
		return "", err
	} else if ok {
		return existing.TxRef, nil
	}
	entry := &journalEntry{From: from, To: to, Amount: amount}
	ref, _, err := types.CanonicalSHA256(map[string]any{
		"from": from, "to": to, "amount": amount, "key": idemKey,
	})
	if err != nil {
		return "", err
	}
	entry.TxRef = ref
	fresh, err := j.store.PutIfAbsent(key, entry)
	if err != nil {
		return "", err
	}
	if !fresh {
		// lost a race with a concurrent retry; return the journaled ref
		if _, err := j.store.Get(key, existing); err != nil {
			return "", err
		}
		return existing.TxRef, nil
	}
	return ref, nil
}

// EscrowAccount holds the dispute value while a case is live.
func EscrowAccount(caseID string) string { return "escrow:" + caseID }

// BondAccount holds a juror's staked bond.
func BondAccount(nodeID string) string { return "bond:" + nodeID }

// TreasuryAccount receives slashed bonds.
const TreasuryAccount = "treasury"

// JurorAccount receives adjudication rewards.
func JurorAccount(nodeID string) string { return "juror:" + nodeID }

// TransferKey builds the idempotency key for one settlement movement.
func TransferKey(caseID, jurorID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", caseID, jurorID, kind)
}
