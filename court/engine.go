// Package court drives each case through its state machine: draft the
// panel from public entropy, dispatch summonses, seal evidence for the
// acknowledged roster, open blind voting, settle the verdict. Cases
// progress independently and concurrently; the only cross-case shared
// state is the reputation ledger, which serializes its own mutations.
package court

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/ballot"
	"github.com/Proxy-Agent-Network/highcourt/config"
	"github.com/Proxy-Agent-Network/highcourt/entropy"
	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/selection"
	"github.com/Proxy-Agent-Network/highcourt/settlement"
	"github.com/Proxy-Agent-Network/highcourt/summons"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/Proxy-Agent-Network/highcourt/vault"
	"github.com/google/uuid"
	"github.com/niclabs/tcrsa"
	"github.com/sirupsen/logrus"
)

type Engine struct {
	cfg *config.Config
	log *logrus.Entry

	cases        *types.CaseStorage
	panels       *types.PanelStorage
	ledger       *reputation.Ledger
	source       entropy.Source
	selector     *selection.Selector
	summons      *summons.Manager
	summonsStore *types.SummonsStorage
	vault        *vault.Vault
	shards       *types.ShardStorage
	ballots      *types.BallotStorage
	collector    *ballot.Collector
	settle       *settlement.Engine

	caseLocks sync.Map // caseID -> *sync.Mutex
	closed    chan struct{}
	wg        sync.WaitGroup
}

func NewEngine(cfg *config.Config, storage *types.Storage, source entropy.Source, keyMeta *tcrsa.KeyMeta, log *logrus.Entry) *Engine {
	ledger := reputation.NewLedger(storage, log)
	ballots := types.NewBallotStorage(storage)
	summonses := types.NewSummonsStorage(storage)
	sm := summons.NewManager(
		summonses,
		ledger,
		time.Duration(cfg.Court.SummonsWindow)*time.Minute,
		time.Duration(cfg.Court.RedraftCooldown)*time.Minute,
		cfg.Slashing.NonResponsePenalty,
		cfg.Court.Quorum,
		cfg.Slashing.RewardRateBps,
		log,
	)
	shards := types.NewShardStorage(storage)
	v := vault.NewVault(shards, log)
	collector := ballot.NewCollector(
		ballots,
		types.NewVerdictStorage(storage),
		sm,
		v,
		ledger,
		cfg.Court.Quorum,
		keyMeta,
		log,
	)
	settle := settlement.NewEngine(
		types.NewSettlementStorage(storage),
		ledger,
		settlement.NewJournalLedger(storage),
		settlement.Policy{
			DissentSlashBps:   cfg.Slashing.DissentSlashBps,
			DissentReputation: cfg.Slashing.DissentReputation,
			RewardRateBps:     cfg.Slashing.RewardRateBps,
			RewardReputation:  cfg.Slashing.RewardReputation,
		},
		log,
	)
	return &Engine{
		cfg:          cfg,
		log:          log.WithField("module", "court"),
		cases:        types.NewCaseStorage(storage),
		panels:       types.NewPanelStorage(storage),
		ledger:       ledger,
		source:       source,
		selector:     selection.NewSelector(ledger, cfg.Court.Tiers, cfg.Court.MinBond, cfg.Court.PanelSize, log),
		summons:      sm,
		summonsStore: summonses,
		vault:        v,
		shards:       shards,
		ballots:      ballots,
		collector:    collector,
		settle:       settle,
		closed:       make(chan struct{}),
	}
}

func (e *Engine) Start() {
	e.wg.Add(1)
	go e.sweepLoop()
	e.log.Info("adjudication engine started")
}

func (e *Engine) Stop() {
	close(e.closed)
	e.wg.Wait()
}

func (e *Engine) Reputation() *reputation.Ledger { return e.ledger }

func (e *Engine) lockCase(caseID string) func() {
	muIface, _ := e.caseLocks.LoadOrStore(caseID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// OpenCase ingests a dispute and immediately attempts the first draft.
// When the epoch seed is not public yet the case stays OPEN and the
// sweep retries.
func (e *Engine) OpenCase(ctx context.Context, category string, severity, disputeValue int64, evidence []byte) (*types.Case, error) {
	if severity < 1 || severity > 5 {
		return nil, fmt.Errorf("severity %d outside 1..5", severity)
	}
	if len(evidence) == 0 {
		return nil, fmt.Errorf("a case needs evidence")
	}
	c := &types.Case{
		CaseID:       uuid.NewString(),
		Category:     category,
		Severity:     severity,
		Evidence:     evidence,
		EvidenceHash: types.EvidenceHash(evidence),
		DisputeValue: disputeValue,
		OpenedAt:     time.Now().Unix(),
		Status:       types.CaseOpen,
	}
	if err := e.cases.Put(c); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"case":     c.CaseID,
		"category": category,
		"severity": severity,
	}).Info("case opened")
	if err := e.draftPanel(ctx, c.CaseID); err != nil && !errors.Is(err, entropy.ErrSeedUnavailable) {
		e.log.WithError(err).WithField("case", c.CaseID).Warn("initial draft failed, sweep will retry")
	}
	return c, nil
}

func (e *Engine) transition(c *types.Case, next types.CaseStatus) error {
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("case %s cannot move %s -> %s", c.CaseID, c.Status, next)
	}
	c.Status = next
	return e.cases.Put(c)
}

func (e *Engine) draftPanel(ctx context.Context, caseID string) error {
	unlock := e.lockCase(caseID)
	defer unlock()
	c, ok, err := e.cases.Get(caseID)
	if err != nil {
		return err
	}
	if !ok || c.Status != types.CaseOpen {
		return nil
	}
	seed, err := e.source.Seed(ctx, e.epochFor(c))
	if err != nil {
		return err
	}
	exclude := make(map[string]bool, len(c.Excluded))
	for _, id := range c.Excluded {
		exclude[id] = true
	}
	now := time.Now()
	panel, err := e.selector.DrawPanel(c.CaseID, seed, exclude, now.Unix())
	if err != nil {
		return err
	}
	if _, err := e.panels.Put(panel); err != nil {
		return err
	}
	if err := e.transition(c, types.CasePanelDrafted); err != nil {
		return err
	}
	if _, err := e.summons.Issue(c, panel, now); err != nil {
		return err
	}
	return nil
}

// Acknowledge records a juror's acceptance and, when the roster settles
// with a quorum-capable count, moves straight on to evidence sealing.
func (e *Engine) Acknowledge(caseID, jurorID string, sig []byte) (*types.Summons, error) {
	sm, err := e.summons.Acknowledge(caseID, jurorID, sig, time.Now())
	if err != nil {
		return nil, err
	}
	if err := e.maybeSeal(caseID, time.Now()); err != nil {
		e.log.WithError(err).WithField("case", caseID).Warn("sealing attempt failed")
	}
	return sm, nil
}

// maybeSeal advances a drafted case once the acknowledgment phase is
// over: evidence is sealed for the acknowledged roster and blind voting
// opens. A roster that settles below quorum triggers a redraft instead;
// a weakened panel never proceeds.
func (e *Engine) maybeSeal(caseID string, now time.Time) error {
	unlock := e.lockCase(caseID)
	defer unlock()
	c, ok, err := e.cases.Get(caseID)
	if err != nil || !ok {
		return err
	}
	if c.Status != types.CasePanelDrafted {
		return nil
	}
	settled, err := e.summons.RosterSettled(caseID)
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}
	acked, err := e.summons.AcknowledgedJurors(caseID)
	if err != nil {
		return err
	}
	if len(acked) < e.cfg.Court.Quorum {
		return e.redraft(c, now)
	}
	jurors := make([]types.Candidate, 0, len(acked))
	for _, id := range acked {
		standing, ok, err := e.ledger.Get(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("acknowledged juror %s has no standing", id)
		}
		jurors = append(jurors, standing.Candidate)
	}
	if _, err := e.vault.Seal(c.CaseID, c.Evidence, jurors); err != nil {
		return err
	}
	if err := e.transition(c, types.CaseEvidenceSealed); err != nil {
		return err
	}
	c.VotingOpens = now.Unix()
	c.VotingCloses = now.Add(time.Duration(e.cfg.Court.VotingWindow) * time.Minute).Unix()
	if err := e.transition(c, types.CaseVoting); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"case":   c.CaseID,
		"jurors": len(jurors),
		"closes": c.VotingCloses,
	}).Info("evidence sealed, blind voting open")
	return nil
}

// redraft abandons the current panel and reopens the case for a fresh,
// non-overlapping draw. Prior panel members are excluded for this case;
// non-responders additionally sit out the ledger cool-down.
func (e *Engine) redraft(c *types.Case, now time.Time) error {
	if c.Redrafts >= e.cfg.Court.MaxRedrafts {
		e.log.WithField("case", c.CaseID).Error("redraft budget exhausted, case stays expired")
		// no further adjudication will read the plaintext
		c.Evidence = nil
		if c.Status == types.CaseExpired {
			return e.cases.Put(c)
		}
		return e.transition(c, types.CaseExpired)
	}
	panel, ok, err := e.panels.Get(c.CaseID)
	if err != nil {
		return err
	}
	if ok {
		c.Excluded = appendUnique(c.Excluded, panel.JurorIDs)
		if err := e.panels.Delete(c.CaseID); err != nil {
			return err
		}
	}
	if err := e.summonsReset(c.CaseID); err != nil {
		return err
	}
	c.Redrafts++
	c.VotingOpens, c.VotingCloses = 0, 0
	if c.Status == types.CaseOpen {
		// already reopened by a prior escalation step
	} else if err := e.transition(c, types.CaseOpen); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"case": c.CaseID, "redrafts": c.Redrafts}).Warn("panel redrafted")
	return nil
}

// summonsReset clears the aborted roster's working state. Applied
// penalty markers stay, so a juror already penalized is never hit twice.
func (e *Engine) summonsReset(caseID string) error {
	if err := e.ballots.DeleteByCase(caseID); err != nil {
		return err
	}
	if err := e.shards.DeleteByCase(caseID); err != nil {
		return err
	}
	return e.summonsStore.DeleteByCase(caseID)
}

// SubmitUnsealReceipt verifies a juror's hardware-signed attestation that
// the shard was decrypted intact.
func (e *Engine) SubmitUnsealReceipt(caseID, jurorID string, plaintextHash []byte, sig []byte) error {
	c, ok, err := e.cases.Get(caseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown case %s", caseID)
	}
	if c.Status != types.CaseEvidenceSealed && c.Status != types.CaseVoting {
		return fmt.Errorf("case %s is %s, no sealed evidence outstanding", caseID, c.Status)
	}
	return e.vault.VerifyUnsealReceipt(caseID, jurorID, plaintextHash, sig, time.Now())
}

// SubmitBallot routes one blind vote to the collector and finalizes the
// case if this vote reached quorum.
func (e *Engine) SubmitBallot(ctx context.Context, caseID, jurorID string, vote types.Vote, sig []byte, quorumShare []byte) (*types.VerdictManifest, error) {
	c, ok, err := e.cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("unknown case %s", caseID)
	}
	manifest, err := e.collector.Submit(c, jurorID, vote, sig, quorumShare, time.Now())
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, nil
	}
	if err := e.finalize(ctx, c, manifest); err != nil {
		return manifest, err
	}
	return manifest, nil
}

func (e *Engine) finalize(ctx context.Context, c *types.Case, manifest *types.VerdictManifest) error {
	unlock := e.lockCase(c.CaseID)
	defer unlock()
	return e.finalizeLocked(ctx, c.CaseID, manifest)
}

// finalizeLocked requires the caller to hold the case lock.
func (e *Engine) finalizeLocked(ctx context.Context, caseID string, manifest *types.VerdictManifest) error {
	cur, ok, err := e.cases.Get(caseID)
	if err != nil || !ok {
		return err
	}
	if cur.Status == types.CaseVoting {
		// plaintext served its purpose; only the hash stays on the record
		cur.Evidence = nil
		if err := e.transition(cur, types.CaseFinalized); err != nil {
			return err
		}
	}
	if _, err := e.settle.Apply(ctx, manifest); err != nil {
		e.log.WithError(err).WithField("case", caseID).Error("settlement incomplete, sweep will retry")
		return err
	}
	return nil
}

func (e *Engine) epochFor(c *types.Case) uint64 {
	return entropy.EpochAt(c.OpenedAt)
}

func appendUnique(dst []string, add []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, id := range dst {
		seen[id] = true
	}
	for _, id := range add {
		if !seen[id] {
			dst = append(dst, id)
			seen[id] = true
		}
	}
	return dst
}
