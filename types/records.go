package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Candidate is one enrolled node as seen by the selection service. The
// reputation ledger owns the record; selection reads immutable snapshots.
type Candidate struct {
	NodeID          string        `json:"node_id"`
	PublicKey       hexutil.Bytes `json:"public_key"` // uncompressed secp256k1
	ReputationScore int64         `json:"reputation_score"`
	BondAmount      int64         `json:"bond_amount"`
	Region          string        `json:"region"`
}

type Case struct {
	CaseID       string        `json:"case_id"`
	Category     string        `json:"category"`
	Severity     int64         `json:"severity"` // 1..5
	Evidence     hexutil.Bytes `json:"evidence,omitempty"`
	EvidenceHash hexutil.Bytes `json:"evidence_hash,omitempty"`
	DisputeValue int64         `json:"dispute_value"` // sats in escrow
	OpenedAt     int64         `json:"opened_at"`
	Status       CaseStatus    `json:"status"`
	Redrafts     int           `json:"redrafts"`
	VotingOpens  int64         `json:"voting_opens,omitempty"`
	VotingCloses int64         `json:"voting_closes,omitempty"`
	// Excluded lists jurors barred from future drafts of this case, so an
	// escalation always seats a fresh, non-overlapping panel.
	Excluded []string `json:"excluded,omitempty"`
}

// Panel is immutable once drafted: same eligible-pool snapshot plus the
// same seed always reproduces the same juror set.
type Panel struct {
	CaseID    string        `json:"case_id"`
	Seed      hexutil.Bytes `json:"seed"`
	JurorIDs  []string      `json:"juror_ids"`
	DraftedAt int64         `json:"drafted_at"`
}

func (p *Panel) Contains(jurorID string) bool {
	for _, id := range p.JurorIDs {
		if id == jurorID {
			return true
		}
	}
	return false
}

type Summons struct {
	CaseID       string        `json:"case_id"`
	JurorID      string        `json:"juror_id"`
	IssuedAt     int64         `json:"issued_at"`
	Deadline     int64         `json:"deadline"`
	Status       SummonsStatus `json:"status"`
	TrackingHash string        `json:"tracking_hash"`
	// PotentialYield is the projected reward for serving, surfaced to the
	// juror console alongside the deadline.
	PotentialYield int64 `json:"potential_yield"`
}

type EvidenceShard struct {
	CaseID        string        `json:"case_id"`
	JurorID       string        `json:"juror_id"`
	Ciphertext    hexutil.Bytes `json:"ciphertext"`
	PlaintextHash hexutil.Bytes `json:"plaintext_hash"`
	Suspended     bool          `json:"suspended,omitempty"`
	UnsealedAt    int64         `json:"unsealed_at,omitempty"`
}

type Ballot struct {
	CaseID      string        `json:"case_id"`
	JurorID     string        `json:"juror_id"`
	Vote        Vote          `json:"vote"`
	Signature   hexutil.Bytes `json:"signature"`
	QuorumShare []byte        `json:"quorum_share,omitempty"` // tcrsa sig share, JSON
	SubmittedAt int64         `json:"submitted_at"`
}

// VoteReveal is one juror's vote disclosed after closure, with the bond
// snapshot taken at that moment so settlement stays a pure function of
// the manifest.
type VoteReveal struct {
	JurorID string `json:"juror_id"`
	Vote    Vote   `json:"vote"`
	Bond    int64  `json:"bond"`
}

type VerdictManifest struct {
	CaseID           string          `json:"case_id"`
	UpheldCount      int             `json:"upheld_count"`
	RejectedCount    int             `json:"rejected_count"`
	Outcome          Vote            `json:"outcome"`
	Severity         int64           `json:"severity"`
	DisputeValue     int64           `json:"dispute_value"`
	Reveals          []VoteReveal    `json:"reveals"`
	QuorumSignatures []hexutil.Bytes `json:"quorum_signatures"`
	QuorumProof      hexutil.Bytes   `json:"quorum_proof,omitempty"` // joined threshold signature
	FinalizedAt      int64           `json:"finalized_at"`
}

type SettlementRecord struct {
	CaseID           string           `json:"case_id"`
	SlashedJurorIDs  []string         `json:"slashed_juror_ids"`
	RewardedJurorIDs []string         `json:"rewarded_juror_ids"`
	PayoutAmounts    map[string]int64 `json:"payout_amounts"`
	SlashAmounts     map[string]int64 `json:"slash_amounts"`
	LedgerTxRefs     []string         `json:"ledger_tx_refs"`
	SettledAt        int64            `json:"settled_at"`
}

// Standing is the reputation ledger's view of a node; it outlives any case.
type Standing struct {
	Candidate     Candidate `json:"candidate"`
	EnrolledAt    int64     `json:"enrolled_at"`
	CooldownUntil int64     `json:"cooldown_until,omitempty"`
}

func CaseKey(caseID string) []byte { return []byte("case/" + caseID) }

func PanelKey(caseID string) []byte { return []byte("panel/" + caseID) }

func SummonsKey(caseID, jurorID string) []byte {
	return []byte(fmt.Sprintf("summons/%s/%s", caseID, jurorID))
}

func SummonsPrefix(caseID string) []byte { return []byte("summons/" + caseID + "/") }

func ShardKey(caseID, jurorID string) []byte {
	return []byte(fmt.Sprintf("shard/%s/%s", caseID, jurorID))
}

func ShardPrefix(caseID string) []byte { return []byte("shard/" + caseID + "/") }

func BallotKey(caseID, jurorID string) []byte {
	return []byte(fmt.Sprintf("ballot/%s/%s", caseID, jurorID))
}

func BallotPrefix(caseID string) []byte { return []byte("ballot/" + caseID + "/") }

func VerdictKey(caseID string) []byte { return []byte("verdict/" + caseID) }

func SettlementKey(caseID string) []byte { return []byte("settlement/" + caseID) }

func StandingKey(nodeID string) []byte { return []byte("standing/" + nodeID) }

var StandingPrefixAll = []byte("standing/")
