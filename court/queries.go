package court

import (
	"fmt"

	"github.com/Proxy-Agent-Network/highcourt/types"
)

// Read surfaces for the API layer. Everything here is observation only;
// mutation goes through the engine's operation methods.

func (e *Engine) Case(caseID string) (*types.Case, bool, error) {
	c, ok, err := e.cases.Get(caseID)
	if err != nil || !ok {
		return nil, ok, err
	}
	// plaintext evidence never leaves the core
	c.Evidence = nil
	return c, true, nil
}

func (e *Engine) Panel(caseID string) (*types.Panel, bool, error) {
	return e.panels.Get(caseID)
}

// CaseSummonses is the dispatch tracking feed for one case.
func (e *Engine) CaseSummonses(caseID string) ([]*types.Summons, error) {
	return e.summonsStore.ListByCase(caseID)
}

// SummonsFeed lists a node's outstanding summonses: the juror console's
// poll surface {case, deadline, category, potential yield}.
func (e *Engine) SummonsFeed(nodeID string) ([]*types.Summons, error) {
	var out []*types.Summons
	err := e.summonsStore.ListAll(func(sm *types.Summons) error {
		if sm.JurorID == nodeID && sm.Status == types.SummonsPending {
			out = append(out, sm)
		}
		return nil
	})
	return out, err
}

// Shard delivers a juror's sealed evidence blob. Only ciphertext and the
// content-address digest cross this boundary.
func (e *Engine) Shard(caseID, jurorID string) (*types.EvidenceShard, error) {
	sh, ok, err := e.vault.Shard(caseID, jurorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no evidence shard for juror %s on case %s", jurorID, caseID)
	}
	return sh, nil
}

// Verdict exports the sealed manifest and settlement for auditors and
// the economic ledger.
func (e *Engine) Verdict(caseID string) (*types.VerdictManifest, *types.SettlementRecord, error) {
	manifest, ok, err := e.collector.Manifest(caseID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("case %s has no finalized verdict", caseID)
	}
	record, _, err := e.settle.Record(caseID)
	if err != nil {
		return nil, nil, err
	}
	return manifest, record, nil
}

// AuditVerdict recomputes the settlement from the manifest and checks it
// against the stored record.
func (e *Engine) AuditVerdict(caseID string) error {
	manifest, ok, err := e.collector.Manifest(caseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("case %s has no finalized verdict", caseID)
	}
	return e.settle.Audit(manifest)
}

// Enroll registers a roster candidate against the top eligibility tier.
func (e *Engine) Enroll(c types.Candidate, now int64) error {
	return e.ledger.Enroll(c, e.cfg.Court.Tiers[0], e.cfg.Court.MinBond, now)
}
