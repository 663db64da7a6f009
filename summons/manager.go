// Package summons dispatches duty notices to a drafted panel and tracks
// acknowledgments against the response window. Non-response costs
// reputation and a cool-down from redrafts; it never blocks the case,
// which either reaches a quorum-capable roster or is redrafted.
package summons

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/sirupsen/logrus"
)

// SummonsExpiredError reports a response that arrived after the window.
type SummonsExpiredError struct {
	CaseID   string
	JurorID  string
	Deadline int64
}

func (e SummonsExpiredError) Error() string {
	return fmt.Sprintf("summons window expired for juror %s on case %s (deadline %d)", e.JurorID, e.CaseID, e.Deadline)
}

func IsSummonsExpiredError(err error) bool {
	return errors.As(err, &SummonsExpiredError{})
}

type Manager struct {
	summonses *types.SummonsStorage
	ledger    *reputation.Ledger
	window    time.Duration
	cooldown  time.Duration
	penalty   int64 // reputation delta, negative
	quorum    int
	yieldBps  int64
	log       *logrus.Entry

	// serializes status changes so an acknowledgment and a sweep expiry
	// can never interleave on the same summons
	mu sync.Mutex
}

func NewManager(
	summonses *types.SummonsStorage,
	ledger *reputation.Ledger,
	window, cooldown time.Duration,
	penalty int64,
	quorum int,
	yieldBps int64,
	log *logrus.Entry,
) *Manager {
	return &Manager{
		summonses: summonses,
		ledger:    ledger,
		window:    window,
		cooldown:  cooldown,
		penalty:   penalty,
		quorum:    quorum,
		yieldBps:  yieldBps,
		log:       log.WithField("module", "summons"),
	}
}

// Issue creates one summons per drafted juror with a shared deadline and
// a tracking hash for the dispatch feed.
func (m *Manager) Issue(c *types.Case, panel *types.Panel, now time.Time) ([]*types.Summons, error) {
	issued := now.Unix()
	deadline := now.Add(m.window).Unix()
	yield := c.DisputeValue * m.yieldBps / 10000 / int64(len(panel.JurorIDs))
	out := make([]*types.Summons, 0, len(panel.JurorIDs))
	for _, jurorID := range panel.JurorIDs {
		sm := &types.Summons{
			CaseID:         c.CaseID,
			JurorID:        jurorID,
			IssuedAt:       issued,
			Deadline:       deadline,
			Status:         types.SummonsPending,
			TrackingHash:   types.TrackingHash(jurorID, issued),
			PotentialYield: yield,
		}
		if err := m.summonses.Put(sm); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	m.log.WithFields(logrus.Fields{
		"case":     c.CaseID,
		"jurors":   len(out),
		"deadline": deadline,
	}).Info("convocation dispatched")
	return out, nil
}

// Acknowledge records a juror's acceptance of duty. The signature must
// recover to the juror's registered identity and arrive inside the
// window; a late acknowledgment expires the summons on the spot rather
// than waiting for the sweep.
func (m *Manager) Acknowledge(caseID, jurorID string, sig []byte, now time.Time) (*types.Summons, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok, err := m.summonses.Get(caseID, jurorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no active summons for node %s on case %s", jurorID, caseID)
	}
	switch sm.Status {
	case types.SummonsAcknowledged:
		return sm, nil
	case types.SummonsExpired:
		return nil, SummonsExpiredError{CaseID: caseID, JurorID: jurorID, Deadline: sm.Deadline}
	}
	if now.Unix() > sm.Deadline {
		if _, err := m.expire(sm, now); err != nil {
			return nil, err
		}
		return nil, SummonsExpiredError{CaseID: caseID, JurorID: jurorID, Deadline: sm.Deadline}
	}
	signer, err := types.RecoverSigner(types.SummonsAckDigest(caseID, jurorID), sig)
	if err != nil {
		return nil, fmt.Errorf("acknowledgment signature malformed: %w", err)
	}
	if signer != jurorID {
		return nil, fmt.Errorf("acknowledgment signed by %s, summons addressed to %s", signer, jurorID)
	}
	sm.Status = types.SummonsAcknowledged
	if err := m.summonses.Put(sm); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"case": caseID, "node": jurorID}).Info("duty acknowledged")
	return sm, nil
}

// Sweep expires every pending summons past its deadline and applies the
// non-response penalty once per (case, juror). Returns expired juror ids
// grouped by case so the engine can decide on redrafts.
func (m *Manager) Sweep(now time.Time) (map[string][]string, error) {
	expired := make(map[string][]string)
	var pending []*types.Summons
	err := m.summonses.ListAll(func(sm *types.Summons) error {
		if sm.Status == types.SummonsPending && now.Unix() > sm.Deadline {
			pending = append(pending, sm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, sm := range pending {
		m.mu.Lock()
		stomped, err := m.expire(sm, now)
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if stomped {
			expired[sm.CaseID] = append(expired[sm.CaseID], sm.JurorID)
		}
	}
	return expired, nil
}

// expire re-reads the summons under the manager lock before writing: an
// acknowledgment that landed after the sweep's snapshot must win, and a
// responded juror is never penalized. Callers hold m.mu.
func (m *Manager) expire(sm *types.Summons, now time.Time) (bool, error) {
	cur, ok, err := m.summonses.Get(sm.CaseID, sm.JurorID)
	if err != nil {
		return false, err
	}
	if !ok || cur.Status != types.SummonsPending {
		return false, nil
	}
	cur.Status = types.SummonsExpired
	if err := m.summonses.Put(cur); err != nil {
		return false, err
	}
	applied, err := m.ledger.Apply(cur.CaseID, cur.JurorID, reputation.KindNonResponse, m.penalty, 0)
	if err != nil {
		return false, err
	}
	if applied {
		if err := m.ledger.StartCooldown(cur.JurorID, now.Add(m.cooldown).Unix()); err != nil {
			return false, err
		}
		m.log.WithFields(logrus.Fields{
			"case":    cur.CaseID,
			"node":    cur.JurorID,
			"penalty": m.penalty,
		}).Warn("summons expired, reputation penalty applied")
	}
	return true, nil
}

// AcknowledgedJurors lists the roster members who accepted duty.
func (m *Manager) AcknowledgedJurors(caseID string) ([]string, error) {
	all, err := m.summonses.ListByCase(caseID)
	if err != nil {
		return nil, err
	}
	var acked []string
	for _, sm := range all {
		if sm.Status == types.SummonsAcknowledged {
			acked = append(acked, sm.JurorID)
		}
	}
	return acked, nil
}

// QuorumCapable reports whether enough jurors acknowledged for the case
// to proceed to evidence sealing.
func (m *Manager) QuorumCapable(caseID string) (bool, error) {
	acked, err := m.AcknowledgedJurors(caseID)
	if err != nil {
		return false, err
	}
	return len(acked) >= m.quorum, nil
}

// RosterSettled reports whether every summons has left PENDING, i.e. the
// acknowledgment phase can no longer change the roster.
func (m *Manager) RosterSettled(caseID string) (bool, error) {
	all, err := m.summonses.ListByCase(caseID)
	if err != nil {
		return false, err
	}
	for _, sm := range all {
		if sm.Status == types.SummonsPending {
			return false, nil
		}
	}
	return len(all) > 0, nil
}
