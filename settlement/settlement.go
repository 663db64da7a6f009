// Package settlement turns a sealed VerdictManifest into economic
// consequences. Compute is a pure function of the manifest and the
// policy: any auditor can re-run it and get byte-identical slashed and
// rewarded sets. Apply pushes the result onto the funds ledger and the
// reputation store through idempotent keys, so retries after a partial
// failure never pay or punish twice.
package settlement

import (
	"fmt"
	"sort"

	"github.com/Proxy-Agent-Network/highcourt/types"
)

type Policy struct {
	DissentSlashBps   int64 // of bond, per severity unit
	DissentReputation int64
	RewardRateBps     int64 // of dispute value, split across the majority
	RewardReputation  int64
}

// Compute derives the settlement from a manifest. Jurors who voted with
// the majority split the reward pool; dissenters lose a severity-scaled
// fraction of their bond. Non-responders never appear in the reveals and
// were already penalized at the summons stage.
func Compute(m *types.VerdictManifest, p Policy) *types.SettlementRecord {
	rec := &types.SettlementRecord{
		CaseID:        m.CaseID,
		PayoutAmounts: make(map[string]int64),
		SlashAmounts:  make(map[string]int64),
	}
	var majority, dissent []types.VoteReveal
	for _, r := range m.Reveals {
		if r.Vote == m.Outcome {
			majority = append(majority, r)
		} else {
			dissent = append(dissent, r)
		}
	}
	rewardPool := m.DisputeValue * p.RewardRateBps / 10000
	perJuror := int64(0)
	if len(majority) > 0 {
		perJuror = rewardPool / int64(len(majority))
	}
	for _, r := range majority {
		rec.RewardedJurorIDs = append(rec.RewardedJurorIDs, r.JurorID)
		rec.PayoutAmounts[r.JurorID] = perJuror
	}
	for _, r := range dissent {
		slash := r.Bond * p.DissentSlashBps * m.Severity / 10000
		if slash > r.Bond {
			slash = r.Bond
		}
		rec.SlashedJurorIDs = append(rec.SlashedJurorIDs, r.JurorID)
		rec.SlashAmounts[r.JurorID] = slash
	}
	sort.Strings(rec.RewardedJurorIDs)
	sort.Strings(rec.SlashedJurorIDs)
	return rec
}

// Recompute is the audit entry point: derive the settlement again and
// report whether it matches the recorded one.
func Recompute(m *types.VerdictManifest, p Policy, recorded *types.SettlementRecord) error {
	derived := Compute(m, p)
	if !equalStringSlices(derived.RewardedJurorIDs, recorded.RewardedJurorIDs) {
		return fmt.Errorf("rewarded set mismatch: derived %v, recorded %v", derived.RewardedJurorIDs, recorded.RewardedJurorIDs)
	}
	if !equalStringSlices(derived.SlashedJurorIDs, recorded.SlashedJurorIDs) {
		return fmt.Errorf("slashed set mismatch: derived %v, recorded %v", derived.SlashedJurorIDs, recorded.SlashedJurorIDs)
	}
	for id, amount := range derived.PayoutAmounts {
		if recorded.PayoutAmounts[id] != amount {
			return fmt.Errorf("payout mismatch for %s: derived %d, recorded %d", id, amount, recorded.PayoutAmounts[id])
		}
	}
	for id, amount := range derived.SlashAmounts {
		if recorded.SlashAmounts[id] != amount {
			return fmt.Errorf("slash mismatch for %s: derived %d, recorded %d", id, amount, recorded.SlashAmounts[id])
		}
	}
	return nil
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
