// Package reputation holds per-node standing, eligibility and bonds. It
// is the one shared mutable resource across concurrent cases, so every
// mutation is applied through an idempotent (case, juror, kind) key.
package reputation

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

const (
	MinScore = 0
	MaxScore = 1000
)

// Mutation kinds. The sweep penalty and the dissent slash use distinct
// kinds so a non-responder is never penalized twice for the same case.
const (
	KindNonResponse = "non-response"
	KindDissent     = "dissent"
	KindReward      = "reward"
)

type Ledger struct {
	store *types.Storage
	log   *logrus.Entry
	mu    sync.Mutex
}

func NewLedger(store *types.Storage, log *logrus.Entry) *Ledger {
	return &Ledger{store: store, log: log.WithField("module", "reputation")}
}

// Enroll registers a candidate on the roster. The node ID must be the
// address derived from the submitted public key, and the candidate must
// clear the top eligibility tier and the bond minimum.
func (l *Ledger) Enroll(c types.Candidate, minScore, minBond int64, now int64) error {
	pub, err := crypto.UnmarshalPubkey(c.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	derived := crypto.PubkeyToAddress(*pub).Hex()
	if c.NodeID == "" {
		c.NodeID = derived
	} else if c.NodeID != derived {
		return fmt.Errorf("node id %s does not match public key address %s", c.NodeID, derived)
	}
	if c.ReputationScore < minScore {
		return fmt.Errorf("reputation %d below tier threshold %d", c.ReputationScore, minScore)
	}
	if c.BondAmount < minBond {
		return fmt.Errorf("bond %d below minimum %d", c.BondAmount, minBond)
	}
	standing := &types.Standing{Candidate: c, EnrolledAt: now}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Put(types.StandingKey(c.NodeID), standing); err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{
		"node":  c.NodeID,
		"score": c.ReputationScore,
		"bond":  c.BondAmount,
	}).Info("candidate enrolled")
	return nil
}

func (l *Ledger) Get(nodeID string) (*types.Standing, bool, error) {
	s := &types.Standing{}
	ok, err := l.store.Get(types.StandingKey(nodeID), s)
	return s, ok, err
}

// Snapshot returns the eligible pool at this instant, sorted by node ID
// so selection always sees a stable ordering. Nodes inside a redraft
// cool-down or in the exclude set are filtered out.
func (l *Ledger) Snapshot(minScore, minBond int64, now int64, exclude map[string]bool) ([]types.Candidate, error) {
	var pool []types.Candidate
	err := l.store.Iterate(types.StandingPrefixAll, func(_, v []byte) error {
		s := &types.Standing{}
		if err := json.Unmarshal(v, s); err != nil {
			return err
		}
		c := s.Candidate
		if c.ReputationScore < minScore || c.BondAmount < minBond {
			return nil
		}
		if s.CooldownUntil > now {
			return nil
		}
		if exclude[c.NodeID] {
			return nil
		}
		pool = append(pool, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].NodeID < pool[j].NodeID })
	return pool, nil
}

// StartCooldown bars a non-responder from redrafts until the given time.
func (l *Ledger) StartCooldown(nodeID string, until int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &types.Standing{}
	ok, err := l.store.Get(types.StandingKey(nodeID), s)
	if err != nil || !ok {
		return err
	}
	if until > s.CooldownUntil {
		s.CooldownUntil = until
	}
	return l.store.Put(types.StandingKey(nodeID), s)
}

// Apply mutates one node's standing exactly once per (case, juror, kind).
// A replayed application returns false with no further effect, which is
// what lets settlement retries tolerate crashes mid-write.
func (l *Ledger) Apply(caseID, jurorID, kind string, scoreDelta, bondDelta int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	marker := appliedKey(caseID, jurorID, kind)
	fresh, err := l.store.PutIfAbsent(marker, map[string]int64{"score": scoreDelta, "bond": bondDelta})
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}
	s := &types.Standing{}
	ok, err := l.store.Get(types.StandingKey(jurorID), s)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("no standing for node %s", jurorID)
	}
	s.Candidate.ReputationScore = clamp(s.Candidate.ReputationScore+scoreDelta, MinScore, MaxScore)
	s.Candidate.BondAmount += bondDelta
	if s.Candidate.BondAmount < 0 {
		s.Candidate.BondAmount = 0
	}
	if err := l.store.Put(types.StandingKey(jurorID), s); err != nil {
		return false, err
	}
	l.log.WithFields(logrus.Fields{
		"case":  caseID,
		"node":  jurorID,
		"kind":  kind,
		"score": scoreDelta,
		"bond":  bondDelta,
	}).Debug("standing mutated")
	return true, nil
}

func appliedKey(caseID, jurorID, kind string) []byte {
	return []byte(fmt.Sprintf("applied/%s/%s/%s", caseID, jurorID, kind))
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
