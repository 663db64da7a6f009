package ballot

import (
	stdcrypto "crypto"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/niclabs/tcrsa"
)

// Quorum certificate helpers. Jurors hold threshold-RSA key shares; each
// ballot may carry a signature share over the case's verdict digest. On
// closure the shares are joined into one signature that proves, on its
// own, that a quorum of distinct jurors voted.

func prepareQuorumDoc(meta *tcrsa.KeyMeta, caseID string) ([]byte, error) {
	return tcrsa.PrepareDocumentHash(meta.PublicKey.Size(), stdcrypto.SHA256, types.VerdictDigest(caseID))
}

// SignQuorumShare is the juror-side half, exercised by clients and tests.
func SignQuorumShare(share *tcrsa.KeyShare, meta *tcrsa.KeyMeta, caseID string) ([]byte, error) {
	doc, err := prepareQuorumDoc(meta, caseID)
	if err != nil {
		return nil, err
	}
	sigShare, err := share.Sign(doc, stdcrypto.SHA256, meta)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sigShare)
}

func verifyQuorumShare(meta *tcrsa.KeyMeta, caseID string, raw []byte) (*tcrsa.SigShare, error) {
	doc, err := prepareQuorumDoc(meta, caseID)
	if err != nil {
		return nil, err
	}
	sigShare := new(tcrsa.SigShare)
	if err := json.Unmarshal(raw, sigShare); err != nil {
		return nil, fmt.Errorf("quorum share malformed: %w", err)
	}
	if err := sigShare.Verify(doc, meta); err != nil {
		return nil, fmt.Errorf("quorum share invalid: %w", err)
	}
	return sigShare, nil
}

// VerifyQuorumProof checks a joined certificate against the court's
// threshold public key. Anyone holding the key metadata can audit a
// verdict without juror key material.
func VerifyQuorumProof(meta *tcrsa.KeyMeta, caseID string, proof []byte) error {
	return rsa.VerifyPKCS1v15(meta.PublicKey, stdcrypto.SHA256, types.VerdictDigest(caseID), proof)
}

func joinQuorumShares(meta *tcrsa.KeyMeta, caseID string, shares tcrsa.SigShareList) ([]byte, error) {
	if len(shares) < int(meta.K) {
		return nil, fmt.Errorf("have %d quorum shares, threshold is %d", len(shares), meta.K)
	}
	doc, err := prepareQuorumDoc(meta, caseID)
	if err != nil {
		return nil, err
	}
	sig, err := shares.Join(doc, meta)
	if err != nil {
		return nil, err
	}
	return sig, nil
}
