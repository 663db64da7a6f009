package settlement

import (
	"context"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/Proxy-Agent-Network/highcourt/utils"
	"github.com/sirupsen/logrus"
)

// Engine applies a computed settlement. Ledger failures here are the one
// fatal class in the system: a sealed verdict cannot be left unsettled,
// so every movement retries with backoff under its idempotency key.
type Engine struct {
	settlements *types.SettlementStorage
	reputation  *reputation.Ledger
	funds       FundsLedger
	policy      Policy
	log         *logrus.Entry
}

func NewEngine(
	settlements *types.SettlementStorage,
	rep *reputation.Ledger,
	funds FundsLedger,
	policy Policy,
	log *logrus.Entry,
) *Engine {
	return &Engine{
		settlements: settlements,
		reputation:  rep,
		funds:       funds,
		policy:      policy,
		log:         log.WithField("module", "settlement"),
	}
}

// Apply settles a sealed manifest. Safe to call again after a crash or a
// ledger outage: every transfer and reputation delta is keyed, and the
// stored record wins once written.
func (e *Engine) Apply(ctx context.Context, m *types.VerdictManifest) (*types.SettlementRecord, error) {
	if existing, ok, err := e.settlements.Get(m.CaseID); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}
	rec := Compute(m, e.policy)

	for _, jurorID := range rec.RewardedJurorIDs {
		amount := rec.PayoutAmounts[jurorID]
		ref, err := e.transfer(ctx, EscrowAccount(m.CaseID), JurorAccount(jurorID), amount, TransferKey(m.CaseID, jurorID, "reward"))
		if err != nil {
			return nil, err
		}
		rec.LedgerTxRefs = append(rec.LedgerTxRefs, ref)
		if _, err := e.reputation.Apply(m.CaseID, jurorID, reputation.KindReward, e.policy.RewardReputation, 0); err != nil {
			return nil, err
		}
	}
	for _, jurorID := range rec.SlashedJurorIDs {
		amount := rec.SlashAmounts[jurorID]
		ref, err := e.transfer(ctx, BondAccount(jurorID), TreasuryAccount, amount, TransferKey(m.CaseID, jurorID, "slash"))
		if err != nil {
			return nil, err
		}
		rec.LedgerTxRefs = append(rec.LedgerTxRefs, ref)
		if _, err := e.reputation.Apply(m.CaseID, jurorID, reputation.KindDissent, e.policy.DissentReputation, -amount); err != nil {
			return nil, err
		}
	}
	rec.SettledAt = time.Now().Unix()
	if _, err := e.settlements.Put(rec); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"case":     m.CaseID,
		"rewarded": len(rec.RewardedJurorIDs),
		"slashed":  len(rec.SlashedJurorIDs),
	}).Info("verdict settled")
	return rec, nil
}

func (e *Engine) transfer(ctx context.Context, from, to string, amount int64, key string) (string, error) {
	var ref string
	err := utils.Retry(ctx, 8, 200*time.Millisecond, 10*time.Second, func() error {
		var err error
		ref, err = e.funds.Transfer(ctx, from, to, amount, key)
		if err != nil {
			e.log.WithError(err).WithField("key", key).Warn("ledger transfer failed, retrying")
		}
		return err
	})
	return ref, err
}

// Record returns the stored settlement for export.
func (e *Engine) Record(caseID string) (*types.SettlementRecord, bool, error) {
	return e.settlements.Get(caseID)
}

// Audit recomputes the settlement for a manifest and checks it against
// the stored record.
func (e *Engine) Audit(m *types.VerdictManifest) error {
	rec, ok, err := e.settlements.Get(m.CaseID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return Recompute(m, e.policy, rec)
}
