package selection

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Proxy-Agent-Network/highcourt/logging"
	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(n int) []types.Candidate {
	pool := make([]types.Candidate, n)
	for i := range pool {
		pool[i] = types.Candidate{
			NodeID:          fmt.Sprintf("node-%02d", i),
			ReputationScore: 800,
			BondAmount:      2_000_000,
		}
	}
	return pool
}

func TestDraw_Deterministic(t *testing.T) {
	seed := sha256.Sum256([]byte("EPOCH_1"))
	pool := testPool(10)

	first, err := Draw(pool, seed[:], "case-1", 7, 100)
	require.NoError(t, err)
	second, err := Draw(pool, seed[:], "case-1", 7, 200)
	require.NoError(t, err)

	assert.Equal(t, first.JurorIDs, second.JurorIDs)
	assert.Len(t, first.JurorIDs, 7)
}

func TestDraw_NoDuplicates(t *testing.T) {
	seed := sha256.Sum256([]byte("EPOCH_1"))
	panel, err := Draw(testPool(10), seed[:], "case-1", 7, 0)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, id := range panel.JurorIDs {
		assert.False(t, seen[id], "juror %s drawn twice", id)
		seen[id] = true
	}
}

func TestDraw_PoolOrderIrrelevant(t *testing.T) {
	seed := sha256.Sum256([]byte("EPOCH_1"))
	pool := testPool(10)
	reversed := make([]types.Candidate, len(pool))
	for i := range pool {
		reversed[len(pool)-1-i] = pool[i]
	}

	a, err := Draw(pool, seed[:], "case-1", 7, 0)
	require.NoError(t, err)
	b, err := Draw(reversed, seed[:], "case-1", 7, 0)
	require.NoError(t, err)
	assert.Equal(t, a.JurorIDs, b.JurorIDs)
}

func TestDraw_CaseIDChangesPanel(t *testing.T) {
	seed := sha256.Sum256([]byte("EPOCH_1"))
	pool := testPool(30)

	a, err := Draw(pool, seed[:], "case-1", 7, 0)
	require.NoError(t, err)
	b, err := Draw(pool, seed[:], "case-2", 7, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.JurorIDs, b.JurorIDs)
}

func TestDraw_InsufficientPool(t *testing.T) {
	seed := sha256.Sum256([]byte("EPOCH_1"))
	_, err := Draw(testPool(5), seed[:], "case-1", 7, 0)
	require.Error(t, err)
	assert.True(t, IsInsufficientPoolError(err))
}

func TestDraw_RejectsShortSeed(t *testing.T) {
	_, err := Draw(testPool(10), []byte("short"), "case-1", 7, 0)
	assert.Error(t, err)
	assert.False(t, IsInsufficientPoolError(err))
}

func newTestSelector(t *testing.T, size int) (*Selector, *reputation.Ledger) {
	t.Helper()
	s, err := types.OpenStorage(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	log := logging.GetLogger().WithField("test", t.Name())
	ledger := reputation.NewLedger(s, log)
	return NewSelector(ledger, []int64{700, 600, 500}, 1_000_000, size, log), ledger
}

func enroll(t *testing.T, ledger *reputation.Ledger, score int64) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := types.Candidate{
		NodeID:          crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PublicKey:       crypto.FromECDSAPub(&key.PublicKey),
		ReputationScore: score,
		BondAmount:      2_000_000,
	}
	require.NoError(t, ledger.Enroll(c, 500, 1_000_000, 0))
	return c.NodeID
}

func TestSelector_WidensTiers(t *testing.T) {
	sel, ledger := newTestSelector(t, 3)
	// only two candidates clear the top tier; the third draw needs tier 600
	enroll(t, ledger, 750)
	enroll(t, ledger, 720)
	enroll(t, ledger, 640)

	seed := sha256.Sum256([]byte("EPOCH_1"))
	panel, err := sel.DrawPanel("case-1", seed[:], nil, 100)
	require.NoError(t, err)
	assert.Len(t, panel.JurorIDs, 3)
}

func TestSelector_ExhaustsTiers(t *testing.T) {
	sel, ledger := newTestSelector(t, 3)
	enroll(t, ledger, 950)
	enroll(t, ledger, 510)

	seed := sha256.Sum256([]byte("EPOCH_1"))
	_, err := sel.DrawPanel("case-1", seed[:], nil, 100)
	require.Error(t, err)
	assert.True(t, IsInsufficientPoolError(err))
}
