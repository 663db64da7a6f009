package types

// CaseStatus is the server-held state machine for one dispute. Transitions
// are validated here so ordering is enforced by the type, not by convention.
type CaseStatus string

const (
	CaseOpen           CaseStatus = "OPEN"
	CasePanelDrafted   CaseStatus = "PANEL_DRAFTED"
	CaseEvidenceSealed CaseStatus = "EVIDENCE_SEALED"
	CaseVoting         CaseStatus = "VOTING"
	CaseFinalized      CaseStatus = "FINALIZED"
	CaseExpired        CaseStatus = "EXPIRED"
)

var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseOpen:           {CasePanelDrafted, CaseExpired},
	CasePanelDrafted:   {CaseEvidenceSealed, CaseOpen, CaseExpired}, // back to OPEN on redraft
	CaseEvidenceSealed: {CaseVoting, CaseExpired},
	CaseVoting:         {CaseFinalized, CaseExpired},
	CaseFinalized:      {},
	CaseExpired:        {CaseOpen}, // escalation drafts a fresh panel
}

func (s CaseStatus) CanTransition(next CaseStatus) bool {
	for _, allowed := range caseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the record is immutable. Only FINALIZED is truly
// terminal; EXPIRED cases may still be escalated into a fresh draft.
func (s CaseStatus) Terminal() bool {
	return s == CaseFinalized
}

type SummonsStatus string

const (
	SummonsPending      SummonsStatus = "PENDING"
	SummonsAcknowledged SummonsStatus = "ACKNOWLEDGED"
	SummonsExpired      SummonsStatus = "EXPIRED"
)

type Vote string

const (
	VoteUphold Vote = "UPHOLD"
	VoteReject Vote = "REJECT"
)

func (v Vote) Valid() bool {
	return v == VoteUphold || v == VoteReject
}
