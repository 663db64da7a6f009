package settlement

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Proxy-Agent-Network/highcourt/logging"
	"github.com/Proxy-Agent-Network/highcourt/reputation"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{
	DissentSlashBps:   600,
	DissentReputation: -25,
	RewardRateBps:     500,
	RewardReputation:  10,
}

func testManifest() *types.VerdictManifest {
	return &types.VerdictManifest{
		CaseID:        "case-1",
		UpheldCount:   5,
		RejectedCount: 2,
		Outcome:       types.VoteUphold,
		Severity:      3,
		DisputeValue:  10_000_000,
		Reveals: []types.VoteReveal{
			{JurorID: "0xA1", Vote: types.VoteUphold, Bond: 2_000_000},
			{JurorID: "0xA2", Vote: types.VoteUphold, Bond: 2_000_000},
			{JurorID: "0xA3", Vote: types.VoteUphold, Bond: 2_000_000},
			{JurorID: "0xA4", Vote: types.VoteUphold, Bond: 2_000_000},
			{JurorID: "0xA5", Vote: types.VoteUphold, Bond: 2_000_000},
			{JurorID: "0xB1", Vote: types.VoteReject, Bond: 2_000_000},
			{JurorID: "0xB2", Vote: types.VoteReject, Bond: 1_500_000},
		},
	}
}

func TestCompute(t *testing.T) {
	rec := Compute(testManifest(), testPolicy)

	assert.Equal(t, []string{"0xA1", "0xA2", "0xA3", "0xA4", "0xA5"}, rec.RewardedJurorIDs)
	assert.Equal(t, []string{"0xB1", "0xB2"}, rec.SlashedJurorIDs)

	// 5% of 10M split five ways
	for _, id := range rec.RewardedJurorIDs {
		assert.Equal(t, int64(100_000), rec.PayoutAmounts[id])
	}
	// 6% per severity unit, severity 3 -> 18% of bond
	assert.Equal(t, int64(360_000), rec.SlashAmounts["0xB1"])
	assert.Equal(t, int64(270_000), rec.SlashAmounts["0xB2"])
}

func TestCompute_SlashCappedAtBond(t *testing.T) {
	m := testManifest()
	m.Severity = 5
	m.Reveals[6].Bond = 100_000

	rec := Compute(m, Policy{DissentSlashBps: 2500, RewardRateBps: 500})
	assert.Equal(t, int64(100_000), rec.SlashAmounts["0xB2"])
}

func TestRecompute(t *testing.T) {
	m := testManifest()
	rec := Compute(m, testPolicy)
	require.NoError(t, Recompute(m, testPolicy, rec))

	tampered := Compute(m, testPolicy)
	tampered.PayoutAmounts["0xA1"] += 1
	assert.Error(t, Recompute(m, testPolicy, tampered))

	shifted := Compute(m, testPolicy)
	shifted.SlashedJurorIDs = shifted.SlashedJurorIDs[:1]
	assert.Error(t, Recompute(m, testPolicy, shifted))
}

func TestCompute_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genInputs := gopter.CombineGens(
		gen.Int64Range(1, 100_000_000), // dispute value
		gen.Int64Range(1, 5),           // severity
		gen.SliceOfN(7, gen.Bool()),    // vote pattern
	)

	properties.Property("settlement is pure and conserves bounds", prop.ForAll(
		func(values []interface{}) bool {
			m := &types.VerdictManifest{
				CaseID:       "case-p",
				Outcome:      types.VoteUphold,
				Severity:     values[1].(int64),
				DisputeValue: values[0].(int64),
			}
			for i, upheld := range values[2].([]bool) {
				vote := types.VoteReject
				if upheld {
					vote = types.VoteUphold
				}
				m.Reveals = append(m.Reveals, types.VoteReveal{
					JurorID: fmt.Sprintf("0x%02d", i),
					Vote:    vote,
					Bond:    2_000_000,
				})
			}
			a := Compute(m, testPolicy)
			b := Compute(m, testPolicy)
			if !equalStringSlices(a.RewardedJurorIDs, b.RewardedJurorIDs) ||
				!equalStringSlices(a.SlashedJurorIDs, b.SlashedJurorIDs) {
				return false
			}
			// no juror is both rewarded and slashed, no slash exceeds the bond,
			// total payout never exceeds the reward pool
			slashed := make(map[string]bool)
			for _, id := range a.SlashedJurorIDs {
				slashed[id] = true
				if a.SlashAmounts[id] > 2_000_000 || a.SlashAmounts[id] < 0 {
					return false
				}
			}
			total := int64(0)
			for _, id := range a.RewardedJurorIDs {
				if slashed[id] {
					return false
				}
				total += a.PayoutAmounts[id]
			}
			return total <= m.DisputeValue*testPolicy.RewardRateBps/10000
		},
		genInputs,
	))

	properties.TestingRun(t)
}

func newTestEngine(t *testing.T) (*Engine, *reputation.Ledger) {
	t.Helper()
	s, err := types.OpenStorage(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	log := logging.GetLogger().WithField("test", t.Name())
	rep := reputation.NewLedger(s, log)
	return NewEngine(types.NewSettlementStorage(s), rep, NewJournalLedger(s), testPolicy, log), rep
}

func enrolledManifest(t *testing.T, rep *reputation.Ledger) *types.VerdictManifest {
	t.Helper()
	m := testManifest()
	for i := range m.Reveals {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		cand := types.Candidate{
			NodeID:          crypto.PubkeyToAddress(key.PublicKey).Hex(),
			PublicKey:       crypto.FromECDSAPub(&key.PublicKey),
			ReputationScore: 800,
			BondAmount:      m.Reveals[i].Bond,
		}
		require.NoError(t, rep.Enroll(cand, 700, 1_000_000, 0))
		m.Reveals[i].JurorID = cand.NodeID
	}
	return m
}

func TestApply(t *testing.T) {
	e, rep := newTestEngine(t)
	m := enrolledManifest(t, rep)

	rec, err := e.Apply(context.Background(), m)
	require.NoError(t, err)
	assert.Len(t, rec.RewardedJurorIDs, 5)
	assert.Len(t, rec.SlashedJurorIDs, 2)
	assert.Len(t, rec.LedgerTxRefs, 7)
	assert.NotZero(t, rec.SettledAt)

	majority, _, err := rep.Get(rec.RewardedJurorIDs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(810), majority.Candidate.ReputationScore)

	dissenter, _, err := rep.Get(m.Reveals[5].JurorID)
	require.NoError(t, err)
	assert.Equal(t, int64(775), dissenter.Candidate.ReputationScore)
	assert.Equal(t, int64(1_640_000), dissenter.Candidate.BondAmount)
}

func TestApply_Idempotent(t *testing.T) {
	e, rep := newTestEngine(t)
	m := enrolledManifest(t, rep)

	first, err := e.Apply(context.Background(), m)
	require.NoError(t, err)
	second, err := e.Apply(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, first.SettledAt, second.SettledAt)
	assert.Equal(t, first.LedgerTxRefs, second.LedgerTxRefs)

	// the replay moved no funds and touched no standing
	dissenter, _, err := rep.Get(m.Reveals[5].JurorID)
	require.NoError(t, err)
	assert.Equal(t, int64(775), dissenter.Candidate.ReputationScore)
	assert.Equal(t, int64(1_640_000), dissenter.Candidate.BondAmount)

	require.NoError(t, e.Audit(m))
}

func TestJournalLedger_ReplayReturnsOriginalRef(t *testing.T) {
	s, err := types.OpenStorage(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	l := NewJournalLedger(s)

	ctx := context.Background()
	ref1, err := l.Transfer(ctx, "escrow:c1", "juror:n1", 100_000, TransferKey("c1", "n1", "reward"))
	require.NoError(t, err)
	ref2, err := l.Transfer(ctx, "escrow:c1", "juror:n1", 100_000, TransferKey("c1", "n1", "reward"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	ref3, err := l.Transfer(ctx, "bond:n1", "treasury", 360_000, TransferKey("c1", "n1", "slash"))
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref3)
}
