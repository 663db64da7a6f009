package court

import (
	"context"
	"errors"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/ballot"
	"github.com/Proxy-Agent-Network/highcourt/entropy"
	"github.com/Proxy-Agent-Network/highcourt/types"
)

// sweepLoop is the single place deadlines are enforced. Nothing in the
// engine ever blocks waiting on a juror: acknowledgments, receipts and
// ballots arrive as external events, and the sweep picks up whatever
// the deadline passed by.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	interval := time.Duration(e.cfg.Court.SweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.closed:
			return
		case now := <-ticker.C:
			e.Sweep(context.Background(), now)
		}
	}
}

// Sweep runs one pass over every live case. Exported so tests and
// operators can drive time explicitly instead of waiting on the ticker.
func (e *Engine) Sweep(ctx context.Context, now time.Time) {
	if _, err := e.summons.Sweep(now); err != nil {
		e.log.WithError(err).Warn("summons sweep failed")
	}
	// snapshot first: List holds the storage lock while walking, and the
	// per-case handlers go back to storage
	var live []*types.Case
	err := e.cases.List(func(c *types.Case) error {
		live = append(live, c)
		return nil
	})
	if err != nil {
		e.log.WithError(err).Warn("case sweep failed")
		return
	}
	for _, c := range live {
		switch c.Status {
		case types.CaseOpen:
			if err := e.draftPanel(ctx, c.CaseID); err != nil && !errors.Is(err, entropy.ErrSeedUnavailable) {
				e.log.WithError(err).WithField("case", c.CaseID).Warn("draft retry failed")
			}
		case types.CasePanelDrafted:
			if err := e.maybeSeal(c.CaseID, now); err != nil {
				e.log.WithError(err).WithField("case", c.CaseID).Warn("seal attempt failed")
			}
		case types.CaseVoting:
			if err := e.collector.CheckWindow(c, now); err != nil {
				if ballot.IsQuorumTimeoutError(err) {
					e.escalate(ctx, c, now)
				} else {
					e.log.WithError(err).WithField("case", c.CaseID).Warn("window check failed")
				}
			}
		case types.CaseFinalized:
			e.retrySettlement(ctx, c.CaseID)
		}
	}
}

// escalate expires a case whose voting window lapsed short of quorum and
// queues a fresh, non-overlapping draft.
func (e *Engine) escalate(ctx context.Context, c *types.Case, now time.Time) {
	unlock := e.lockCase(c.CaseID)
	defer unlock()
	cur, ok, err := e.cases.Get(c.CaseID)
	if err != nil || !ok || cur.Status != types.CaseVoting {
		return
	}
	// a quorum-reaching ballot may seal the verdict between the window
	// check and this lock; a sealed case finalizes, it never expires
	manifest, done, err := e.collector.Manifest(c.CaseID)
	if err != nil {
		e.log.WithError(err).WithField("case", c.CaseID).Warn("manifest check failed")
		return
	}
	if done {
		if err := e.finalizeLocked(ctx, c.CaseID, manifest); err != nil {
			e.log.WithError(err).WithField("case", c.CaseID).Warn("late finalization failed")
		}
		return
	}
	if err := e.transition(cur, types.CaseExpired); err != nil {
		e.log.WithError(err).WithField("case", c.CaseID).Warn("expiry transition failed")
		return
	}
	e.log.WithField("case", c.CaseID).Warn("voting window expired short of quorum, escalating")
	if err := e.redraft(cur, now); err != nil {
		e.log.WithError(err).WithField("case", c.CaseID).Warn("escalation redraft failed")
	}
}

// retrySettlement re-applies settlement for finalized cases whose record
// has not landed yet; Apply is idempotent, so this is safe to repeat.
func (e *Engine) retrySettlement(ctx context.Context, caseID string) {
	manifest, ok, err := e.collector.Manifest(caseID)
	if err != nil || !ok {
		return
	}
	if _, ok, err := e.settle.Record(caseID); err != nil || ok {
		return
	}
	if _, err := e.settle.Apply(ctx, manifest); err != nil {
		e.log.WithError(err).WithField("case", caseID).Error("settlement retry failed")
	}
}
