package reputation

import (
	"path/filepath"
	"testing"

	"github.com/Proxy-Agent-Network/highcourt/logging"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := types.OpenStorage(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewLedger(s, logging.GetLogger().WithField("test", t.Name()))
}

func newCandidate(t *testing.T, score, bond int64) types.Candidate {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return types.Candidate{
		NodeID:          crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PublicKey:       crypto.FromECDSAPub(&key.PublicKey),
		ReputationScore: score,
		BondAmount:      bond,
		Region:          "eu-west",
	}
}

func TestEnroll(t *testing.T) {
	l := newTestLedger(t)
	c := newCandidate(t, 800, 2_000_000)
	require.NoError(t, l.Enroll(c, 700, 1_000_000, 100))

	standing, ok, err := l.Get(c.NodeID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.NodeID, standing.Candidate.NodeID)
	assert.Equal(t, int64(100), standing.EnrolledAt)
}

func TestEnroll_Rejections(t *testing.T) {
	l := newTestLedger(t)

	low := newCandidate(t, 650, 2_000_000)
	assert.Error(t, l.Enroll(low, 700, 1_000_000, 0))

	poor := newCandidate(t, 800, 500_000)
	assert.Error(t, l.Enroll(poor, 700, 1_000_000, 0))

	// node id must match the key it claims
	imposter := newCandidate(t, 800, 2_000_000)
	imposter.NodeID = newCandidate(t, 800, 2_000_000).NodeID
	assert.Error(t, l.Enroll(imposter, 700, 1_000_000, 0))
}

func TestSnapshot_Filters(t *testing.T) {
	l := newTestLedger(t)
	eligible := newCandidate(t, 750, 1_500_000)
	lowScore := newCandidate(t, 720, 1_500_000)
	cooled := newCandidate(t, 900, 1_500_000)
	require.NoError(t, l.Enroll(eligible, 700, 1_000_000, 0))
	require.NoError(t, l.Enroll(lowScore, 700, 1_000_000, 0))
	require.NoError(t, l.Enroll(cooled, 700, 1_000_000, 0))
	require.NoError(t, l.StartCooldown(cooled.NodeID, 5000))

	pool, err := l.Snapshot(730, 1_000_000, 1000, nil)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, eligible.NodeID, pool[0].NodeID)

	// cool-down lapses
	pool, err = l.Snapshot(730, 1_000_000, 6000, nil)
	require.NoError(t, err)
	assert.Len(t, pool, 2)

	// explicit exclusion wins regardless of standing
	pool, err = l.Snapshot(730, 1_000_000, 6000, map[string]bool{cooled.NodeID: true})
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, eligible.NodeID, pool[0].NodeID)
}

func TestApply_Idempotent(t *testing.T) {
	l := newTestLedger(t)
	c := newCandidate(t, 800, 2_000_000)
	require.NoError(t, l.Enroll(c, 700, 1_000_000, 0))

	applied, err := l.Apply("case-1", c.NodeID, KindNonResponse, -50, 0)
	require.NoError(t, err)
	assert.True(t, applied)

	// replay is a no-op
	applied, err = l.Apply("case-1", c.NodeID, KindNonResponse, -50, 0)
	require.NoError(t, err)
	assert.False(t, applied)

	standing, _, err := l.Get(c.NodeID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), standing.Candidate.ReputationScore)

	// a different kind for the same pair still applies
	applied, err = l.Apply("case-1", c.NodeID, KindDissent, -25, -300_000)
	require.NoError(t, err)
	assert.True(t, applied)

	standing, _, err = l.Get(c.NodeID)
	require.NoError(t, err)
	assert.Equal(t, int64(725), standing.Candidate.ReputationScore)
	assert.Equal(t, int64(1_700_000), standing.Candidate.BondAmount)
}

func TestApply_ClampsScore(t *testing.T) {
	l := newTestLedger(t)
	c := newCandidate(t, 710, 2_000_000)
	require.NoError(t, l.Enroll(c, 700, 1_000_000, 0))

	_, err := l.Apply("case-1", c.NodeID, KindDissent, -900, 0)
	require.NoError(t, err)
	standing, _, err := l.Get(c.NodeID)
	require.NoError(t, err)
	assert.Equal(t, int64(MinScore), standing.Candidate.ReputationScore)
}
