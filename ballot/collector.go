// Package ballot collects one signed blind vote per acknowledged juror
// and seals the tally the moment quorum is reached. Votes stay opaque to
// every reader, including other jurors, until closure; the only write
// path is a conditional insert keyed by (case, juror), so a second vote
// for the same pair can never mutate state.
package ballot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/summons"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/Proxy-Agent-Network/highcourt/vault"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/niclabs/tcrsa"
	"github.com/sirupsen/logrus"
)

type DuplicateVoteError struct {
	CaseID  string
	JurorID string
}

func (e DuplicateVoteError) Error() string {
	return fmt.Sprintf("vote already recorded for juror %s on case %s", e.JurorID, e.CaseID)
}

func IsDuplicateVoteError(err error) bool {
	return errors.As(err, &DuplicateVoteError{})
}

type UnauthorizedJurorError struct {
	CaseID  string
	JurorID string
	Reason  string
}

func (e UnauthorizedJurorError) Error() string {
	return fmt.Sprintf("juror %s not authorized to vote on case %s: %s", e.JurorID, e.CaseID, e.Reason)
}

func IsUnauthorizedJurorError(err error) bool {
	return errors.As(err, &UnauthorizedJurorError{})
}

// QuorumTimeoutError reports a voting window that closed short of quorum.
type QuorumTimeoutError struct {
	CaseID   string
	Received int
	Needed   int
}

func (e QuorumTimeoutError) Error() string {
	return fmt.Sprintf("case %s expired with %d of %d required ballots", e.CaseID, e.Received, e.Needed)
}

func IsQuorumTimeoutError(err error) bool {
	return errors.As(err, &QuorumTimeoutError{})
}

type Collector struct {
	ballots  *types.BallotStorage
	verdicts *types.VerdictStorage
	summons  *summons.Manager
	vault    *vault.Vault
	ledger   *reputation.Ledger
	quorum   int
	keyMeta  *tcrsa.KeyMeta // nil disables threshold certificates
	log      *logrus.Entry

	// serializes closure so exactly one submission seals the tally
	closeMu sync.Mutex
}

func NewCollector(
	ballots *types.BallotStorage,
	verdicts *types.VerdictStorage,
	sm *summons.Manager,
	v *vault.Vault,
	ledger *reputation.Ledger,
	quorum int,
	keyMeta *tcrsa.KeyMeta,
	log *logrus.Entry,
) *Collector {
	return &Collector{
		ballots:  ballots,
		verdicts: verdicts,
		summons:  sm,
		vault:    v,
		ledger:   ledger,
		quorum:   quorum,
		keyMeta:  keyMeta,
		log:      log.WithField("module", "ballot"),
	}
}

// Submit validates and stores one ballot. When this ballot is the one
// that reaches quorum, the sealed VerdictManifest is returned; otherwise
// the manifest is nil and the vote rests, unrevealed, until closure.
func (c *Collector) Submit(kase *types.Case, jurorID string, vote types.Vote, sig []byte, quorumShare []byte, now time.Time) (*types.VerdictManifest, error) {
	if kase.Status != types.CaseVoting {
		return nil, fmt.Errorf("case %s is %s, voting not open", kase.CaseID, kase.Status)
	}
	if kase.VotingCloses > 0 && now.Unix() > kase.VotingCloses {
		received, err := c.ballots.CountByCase(kase.CaseID)
		if err != nil {
			return nil, err
		}
		return nil, QuorumTimeoutError{CaseID: kase.CaseID, Received: received, Needed: c.quorum}
	}
	if !vote.Valid() {
		return nil, fmt.Errorf("vote %q is not a valid verdict option", vote)
	}
	if err := c.authorize(kase.CaseID, jurorID); err != nil {
		return nil, err
	}
	signer, err := types.RecoverSigner(types.BallotDigest(kase.CaseID, jurorID, vote), sig)
	if err != nil {
		return nil, fmt.Errorf("ballot signature malformed: %w", err)
	}
	if signer != jurorID {
		return nil, UnauthorizedJurorError{CaseID: kase.CaseID, JurorID: jurorID, Reason: "ballot signed by " + signer}
	}
	if quorumShare != nil && c.keyMeta != nil {
		if _, err := verifyQuorumShare(c.keyMeta, kase.CaseID, quorumShare); err != nil {
			return nil, err
		}
	}
	b := &types.Ballot{
		CaseID:      kase.CaseID,
		JurorID:     jurorID,
		Vote:        vote,
		Signature:   sig,
		QuorumShare: quorumShare,
		SubmittedAt: now.Unix(),
	}
	fresh, err := c.ballots.PutIfAbsent(b)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, DuplicateVoteError{CaseID: kase.CaseID, JurorID: jurorID}
	}
	c.log.WithFields(logrus.Fields{"case": kase.CaseID, "node": jurorID}).Info("blind ballot recorded")
	return c.tryClose(kase, now)
}

func (c *Collector) authorize(caseID, jurorID string) error {
	acked, err := c.summons.AcknowledgedJurors(caseID)
	if err != nil {
		return err
	}
	member := false
	for _, id := range acked {
		if id == jurorID {
			member = true
			break
		}
	}
	if !member {
		return UnauthorizedJurorError{CaseID: caseID, JurorID: jurorID, Reason: "not on the acknowledged panel"}
	}
	suspended, err := c.vault.Suspended(caseID, jurorID)
	if err != nil {
		return err
	}
	if suspended {
		return UnauthorizedJurorError{CaseID: caseID, JurorID: jurorID, Reason: "evidence shard suspended"}
	}
	return nil
}

// tryClose seals the tally once quorum is reached. The mutex guarantees
// a single closure even when the quorum-reaching ballots race.
func (c *Collector) tryClose(kase *types.Case, now time.Time) (*types.VerdictManifest, error) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if _, done, err := c.verdicts.Get(kase.CaseID); err != nil {
		return nil, err
	} else if done {
		return nil, nil
	}
	cast, err := c.ballots.ListByCase(kase.CaseID)
	if err != nil {
		return nil, err
	}
	if len(cast) < c.quorum {
		return nil, nil
	}
	return c.seal(kase, cast, now)
}

func (c *Collector) seal(kase *types.Case, cast []*types.Ballot, now time.Time) (*types.VerdictManifest, error) {
	upheld, rejected := 0, 0
	reveals := make([]types.VoteReveal, 0, len(cast))
	signatures := make([]hexutil.Bytes, 0, len(cast))
	var shares tcrsa.SigShareList
	for _, b := range cast {
		if b.Vote == types.VoteUphold {
			upheld++
		} else {
			rejected++
		}
		bond := int64(0)
		if standing, ok, err := c.ledger.Get(b.JurorID); err != nil {
			return nil, err
		} else if ok {
			bond = standing.Candidate.BondAmount
		}
		reveals = append(reveals, types.VoteReveal{JurorID: b.JurorID, Vote: b.Vote, Bond: bond})
		signatures = append(signatures, hexutil.Bytes(b.Signature))
		if b.QuorumShare != nil && c.keyMeta != nil {
			share, err := verifyQuorumShare(c.keyMeta, kase.CaseID, b.QuorumShare)
			if err == nil {
				shares = append(shares, share)
			}
		}
	}
	outcome := types.VoteUphold
	if rejected > upheld {
		outcome = types.VoteReject
	}
	manifest := &types.VerdictManifest{
		CaseID:           kase.CaseID,
		UpheldCount:      upheld,
		RejectedCount:    rejected,
		Outcome:          outcome,
		Severity:         kase.Severity,
		DisputeValue:     kase.DisputeValue,
		Reveals:          reveals,
		QuorumSignatures: signatures,
		FinalizedAt:      now.Unix(),
	}
	if c.keyMeta != nil && len(shares) >= int(c.keyMeta.K) {
		proof, err := joinQuorumShares(c.keyMeta, kase.CaseID, shares)
		if err != nil {
			c.log.WithError(err).WithField("case", kase.CaseID).Warn("quorum certificate join failed, manifest carries raw signatures only")
		} else {
			manifest.QuorumProof = proof
		}
	}
	fresh, err := c.verdicts.Put(manifest)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, nil
	}
	c.log.WithFields(logrus.Fields{
		"case":     kase.CaseID,
		"upheld":   upheld,
		"rejected": rejected,
		"outcome":  outcome,
	}).Info("quorum reached, verdict sealed")
	return manifest, nil
}

// Manifest exposes only finalized verdicts; pending tallies are not
// readable through any collector surface.
func (c *Collector) Manifest(caseID string) (*types.VerdictManifest, bool, error) {
	return c.verdicts.Get(caseID)
}

// CheckWindow returns a QuorumTimeoutError when the voting window has
// passed without quorum; the engine escalates the case on it.
func (c *Collector) CheckWindow(kase *types.Case, now time.Time) error {
	if kase.Status != types.CaseVoting || kase.VotingCloses == 0 || now.Unix() <= kase.VotingCloses {
		return nil
	}
	if _, done, err := c.verdicts.Get(kase.CaseID); err != nil {
		return err
	} else if done {
		return nil
	}
	received, err := c.ballots.CountByCase(kase.CaseID)
	if err != nil {
		return err
	}
	if received >= c.quorum {
		return nil
	}
	return QuorumTimeoutError{CaseID: kase.CaseID, Received: received, Needed: c.quorum}
}
