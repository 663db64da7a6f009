// Package vault seals case evidence for a panel. One ciphertext per
// acknowledged juror, encrypted under that juror's hardware-bound key;
// the court keeps no decryption key and never sees an unsealed byte.
// Unsealing happens on the juror's hardware; the vault only verifies the
// signed receipt and the plaintext digest the juror reports back.
package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/sirupsen/logrus"
)

// EvidenceIntegrityError flags a receipt whose reported plaintext digest
// does not match the sealed digest. The juror's shard is suspended and
// can no longer back a valid ballot.
type EvidenceIntegrityError struct {
	CaseID  string
	JurorID string
}

func (e EvidenceIntegrityError) Error() string {
	return fmt.Sprintf("evidence digest mismatch for juror %s on case %s", e.JurorID, e.CaseID)
}

func IsEvidenceIntegrityError(err error) bool {
	return errors.As(err, &EvidenceIntegrityError{})
}

type Vault struct {
	shards *types.ShardStorage
	log    *logrus.Entry
}

func NewVault(shards *types.ShardStorage, log *logrus.Entry) *Vault {
	return &Vault{shards: shards, log: log.WithField("module", "vault")}
}

// Seal produces one EvidenceShard per juror. Every shard carries the
// same plaintext digest; only the addressed juror's private key can
// recover the content.
func (v *Vault) Seal(caseID string, plaintext []byte, jurors []types.Candidate) ([]*types.EvidenceShard, error) {
	digest := types.EvidenceHash(plaintext)
	out := make([]*types.EvidenceShard, 0, len(jurors))
	for _, juror := range jurors {
		pub, err := crypto.UnmarshalPubkey(juror.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("juror %s public key: %w", juror.NodeID, err)
		}
		ciphertext, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), plaintext, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("seal for juror %s: %w", juror.NodeID, err)
		}
		shard := &types.EvidenceShard{
			CaseID:        caseID,
			JurorID:       juror.NodeID,
			Ciphertext:    ciphertext,
			PlaintextHash: digest,
		}
		if err := v.shards.Put(shard); err != nil {
			return nil, err
		}
		out = append(out, shard)
	}
	v.log.WithFields(logrus.Fields{"case": caseID, "shards": len(out)}).Info("evidence sealed")
	return out, nil
}

// Shard returns the ciphertext blob for delivery to its addressed juror.
func (v *Vault) Shard(caseID, jurorID string) (*types.EvidenceShard, bool, error) {
	return v.shards.Get(caseID, jurorID)
}

// VerifyUnsealReceipt checks a juror's signed attestation that an
// authenticated unseal occurred. A digest mismatch suspends the shard.
func (v *Vault) VerifyUnsealReceipt(caseID, jurorID string, reportedHash []byte, sig []byte, now time.Time) error {
	shard, ok, err := v.shards.Get(caseID, jurorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no evidence shard for juror %s on case %s", jurorID, caseID)
	}
	signer, err := types.RecoverSigner(types.UnsealReceiptDigest(caseID, jurorID, reportedHash), sig)
	if err != nil {
		return fmt.Errorf("unseal receipt signature malformed: %w", err)
	}
	if signer != jurorID {
		return fmt.Errorf("unseal receipt signed by %s, shard addressed to %s", signer, jurorID)
	}
	if !bytes.Equal(reportedHash, shard.PlaintextHash) {
		shard.Suspended = true
		if err := v.shards.Put(shard); err != nil {
			return err
		}
		v.log.WithFields(logrus.Fields{"case": caseID, "node": jurorID}).Error("evidence integrity failure, shard suspended")
		return EvidenceIntegrityError{CaseID: caseID, JurorID: jurorID}
	}
	if shard.UnsealedAt == 0 {
		shard.UnsealedAt = now.Unix()
		if err := v.shards.Put(shard); err != nil {
			return err
		}
	}
	return nil
}

// Suspended reports whether the juror's shard failed integrity checks.
func (v *Vault) Suspended(caseID, jurorID string) (bool, error) {
	shard, ok, err := v.shards.Get(caseID, jurorID)
	if err != nil || !ok {
		return false, err
	}
	return shard.Suspended, nil
}
