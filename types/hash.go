package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// CanonicalSHA256 hashes json.Marshal bytes with SHA-256 hex. Settlement
// transaction references are derived through it.
func CanonicalSHA256(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// TrackingHash is the short dispatch reference printed on a summons.
func TrackingHash(nodeID string, issuedAt int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", nodeID, issuedAt)))
	return hex.EncodeToString(sum[:])[:12]
}

// EvidenceHash is the plaintext integrity digest carried by every shard.
func EvidenceHash(plaintext []byte) []byte {
	sum := sha256.Sum256(plaintext)
	return sum[:]
}

// Signature digests. Every externally signed payload is domain-separated
// so an acknowledgment can never be replayed as a ballot.

func SummonsAckDigest(caseID, jurorID string) []byte {
	return crypto.Keccak256([]byte("highcourt/summons-ack"), []byte(caseID), []byte(jurorID))
}

func UnsealReceiptDigest(caseID, jurorID string, plaintextHash []byte) []byte {
	return crypto.Keccak256([]byte("highcourt/unseal-receipt"), []byte(caseID), []byte(jurorID), plaintextHash)
}

func BallotDigest(caseID, jurorID string, vote Vote) []byte {
	return crypto.Keccak256([]byte("highcourt/ballot"), []byte(caseID), []byte(jurorID), []byte(vote))
}

// VerdictDigest is what juror quorum shares are signed over: the tally is
// unknown until closure, so shares commit to the case alone.
func VerdictDigest(caseID string) []byte {
	return crypto.Keccak256([]byte("highcourt/verdict"), []byte(caseID))
}

// RecoverSigner returns the node ID (hex address) that produced sig over
// digest. Callers compare it against the registered juror identity.
func RecoverSigner(digest []byte, sig []byte) (string, error) {
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
