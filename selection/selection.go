// Package selection draws a fixed-size juror panel from the eligible
// pool. The draw is a pure function of (pool snapshot, seed, case id):
// each candidate gets an ordering digest and the lowest N win. Identical
// inputs always reproduce the identical panel; nothing about the outcome
// is knowable before the seed is public.
package selection

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/Proxy-Agent-Network/highcourt/entropy"
	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
)

// InsufficientPoolError is returned when the eligible pool cannot seat a
// full panel, even at the widest tier.
type InsufficientPoolError struct {
	Need int
	Have int
	Tier int64
}

func (e InsufficientPoolError) Error() string {
	return fmt.Sprintf("eligible pool has %d candidates at tier %d, panel needs %d", e.Have, e.Tier, e.Need)
}

func IsInsufficientPoolError(err error) bool {
	return errors.As(err, &InsufficientPoolError{})
}

func orderingDigest(seed []byte, caseID, nodeID string) []byte {
	h := sha3.New256()
	h.Write(seed)
	h.Write([]byte(caseID))
	h.Write([]byte(nodeID))
	return h.Sum(nil)
}

// Draw selects size jurors from pool without replacement. Pool order does
// not matter: ordering comes entirely from the per-candidate digest, with
// the node ID as tie-break.
func Draw(pool []types.Candidate, seed []byte, caseID string, size int, now int64) (*types.Panel, error) {
	if len(seed) < entropy.SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, need at least %d", len(seed), entropy.SeedSize)
	}
	if len(pool) < size {
		return nil, InsufficientPoolError{Need: size, Have: len(pool)}
	}
	type ranked struct {
		nodeID string
		digest []byte
	}
	ranks := make([]ranked, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, c := range pool {
		if seen[c.NodeID] {
			continue
		}
		seen[c.NodeID] = true
		ranks = append(ranks, ranked{nodeID: c.NodeID, digest: orderingDigest(seed, caseID, c.NodeID)})
	}
	if len(ranks) < size {
		return nil, InsufficientPoolError{Need: size, Have: len(ranks)}
	}
	sort.Slice(ranks, func(i, j int) bool {
		if c := bytes.Compare(ranks[i].digest, ranks[j].digest); c != 0 {
			return c < 0
		}
		return ranks[i].nodeID < ranks[j].nodeID
	})
	jurors := make([]string, size)
	for i := 0; i < size; i++ {
		jurors[i] = ranks[i].nodeID
	}
	seedCopy := make([]byte, len(seed))
	copy(seedCopy, seed)
	return &types.Panel{
		CaseID:    caseID,
		Seed:      seedCopy,
		JurorIDs:  jurors,
		DraftedAt: now,
	}, nil
}

// Selector binds the draw to the reputation ledger and the tier-widening
// fallback policy: a short pool widens eligibility one tier at a time
// instead of ever seating a smaller panel.
type Selector struct {
	ledger  *reputation.Ledger
	tiers   []int64
	minBond int64
	size    int
	log     *logrus.Entry
}

func NewSelector(ledger *reputation.Ledger, tiers []int64, minBond int64, size int, log *logrus.Entry) *Selector {
	return &Selector{
		ledger:  ledger,
		tiers:   tiers,
		minBond: minBond,
		size:    size,
		log:     log.WithField("module", "selection"),
	}
}

func (s *Selector) DrawPanel(caseID string, seed []byte, exclude map[string]bool, now int64) (*types.Panel, error) {
	var lastErr error
	for i, tier := range s.tiers {
		pool, err := s.ledger.Snapshot(tier, s.minBond, now, exclude)
		if err != nil {
			return nil, err
		}
		panel, err := Draw(pool, seed, caseID, s.size, now)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"case": caseID,
				"tier": tier,
				"pool": len(pool),
			}).Info("panel drafted")
			return panel, nil
		}
		if !IsInsufficientPoolError(err) {
			return nil, err
		}
		lastErr = InsufficientPoolError{Need: s.size, Have: len(pool), Tier: tier}
		if i+1 < len(s.tiers) {
			s.log.WithFields(logrus.Fields{
				"case": caseID,
				"tier": tier,
				"pool": len(pool),
			}).Warn("pool too small, widening eligibility tier")
		}
	}
	return nil, lastErr
}
