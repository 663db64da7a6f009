package api

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Proxy-Agent-Network/highcourt/config"
	"github.com/Proxy-Agent-Network/highcourt/court"
	"github.com/Proxy-Agent-Network/highcourt/entropy"
	"github.com/Proxy-Agent-Network/highcourt/logging"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiHarness struct {
	ts    *httptest.Server
	keys  map[string]*ecdsa.PrivateKey
	nodes []string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Court.PanelSize = 3
	cfg.Court.Quorum = 2

	s, err := types.OpenStorage(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seed := sha256.Sum256([]byte("EPOCH_SEED"))
	src, err := entropy.NewFixedSource(seed[:])
	require.NoError(t, err)

	log := logging.GetLogger().WithField("test", t.Name())
	engine := court.NewEngine(cfg, s, src, nil, log)
	srv := NewServer(":0", engine, log)

	h := &apiHarness{
		ts:   httptest.NewServer(srv.http.Handler),
		keys: make(map[string]*ecdsa.PrivateKey),
	}
	t.Cleanup(h.ts.Close)
	return h
}

func (h *apiHarness) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (h *apiHarness) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(h.ts.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func (h *apiHarness) enroll(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		nodeID := crypto.PubkeyToAddress(key.PublicKey).Hex()
		resp, _ := h.post(t, "/v1/roster/enroll", map[string]any{
			"node_id":          nodeID,
			"public_key":       fmt.Sprintf("0x%x", crypto.FromECDSAPub(&key.PublicKey)),
			"reputation_score": 800,
			"bond_amount":      2_000_000,
			"region":           "eu-west",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		h.keys[nodeID] = key
		h.nodes = append(h.nodes, nodeID)
	}
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	resp, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "online", body["status"])
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	h.enroll(t, 10)

	resp, body := h.post(t, "/v1/cases", map[string]any{
		"category":      "task-dispute",
		"severity":      3,
		"dispute_value": 10_000_000,
		"evidence":      fmt.Sprintf("0x%x", []byte("deliverable never shipped")),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	caseID := body["case_id"].(string)
	require.NotEmpty(t, caseID)
	assert.Equal(t, "PANEL_DRAFTED", body["status"])

	resp, _ = h.get(t, "/v1/cases/"+caseID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// roster tracking lists one summons per drafted juror
	resp, err := http.Get(h.ts.URL + "/v1/summons/status/" + caseID)
	require.NoError(t, err)
	var roster []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roster))
	resp.Body.Close()
	require.Len(t, roster, 3)

	var panel []string
	for _, sm := range roster {
		panel = append(panel, sm["juror_id"].(string))
		assert.Equal(t, "PENDING", sm["status"])
	}

	for _, nodeID := range panel {
		sig, err := crypto.Sign(types.SummonsAckDigest(caseID, nodeID), h.keys[nodeID])
		require.NoError(t, err)
		resp, _ := h.post(t, "/v1/summons/acknowledge", map[string]any{
			"case_id":   caseID,
			"node_id":   nodeID,
			"signature": fmt.Sprintf("0x%x", sig),
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body = h.get(t, "/v1/cases/"+caseID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "VOTING", body["status"])

	// each juror can pull exactly their own shard
	resp, shard := h.get(t, "/v1/evidence/"+caseID+"/"+panel[0])
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, shard["ciphertext"])

	vote := func(i int, v types.Vote) (*http.Response, map[string]any) {
		sig, err := crypto.Sign(types.BallotDigest(caseID, panel[i], v), h.keys[panel[i]])
		require.NoError(t, err)
		return h.post(t, "/v1/ballots", map[string]any{
			"case_id":   caseID,
			"node_id":   panel[i],
			"vote":      v,
			"signature": fmt.Sprintf("0x%x", sig),
		})
	}

	resp, body = vote(0, types.VoteUphold)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "BALLOT_RECORDED", body["status"])

	// verdict is not readable while the tally is blind
	resp, _ = h.get(t, "/v1/verdicts/"+caseID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = vote(1, types.VoteUphold)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "QUORUM_REACHED", body["status"])

	// a second ballot from the same juror conflicts
	resp, _ = vote(0, types.VoteUphold)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.get(t, "/v1/verdicts/"+caseID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	manifest := body["manifest"].(map[string]any)
	assert.Equal(t, "UPHOLD", manifest["outcome"])
	require.NotNil(t, body["settlement"])

	resp, body = h.get(t, "/v1/verdicts/"+caseID+"/audit")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SETTLEMENT_REPRODUCIBLE", body["status"])
}

func TestAcknowledge_BadSignature(t *testing.T) {
	h := newAPIHarness(t)
	h.enroll(t, 10)

	_, body := h.post(t, "/v1/cases", map[string]any{
		"category":      "task-dispute",
		"severity":      1,
		"dispute_value": 1_000_000,
		"evidence":      fmt.Sprintf("0x%x", []byte("evidence")),
	})
	caseID := body["case_id"].(string)

	resp, err := http.Get(h.ts.URL + "/v1/summons/status/" + caseID)
	require.NoError(t, err)
	var roster []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roster))
	resp.Body.Close()
	juror := roster[0]["juror_id"].(string)

	// signature from a key that is not the juror's
	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(types.SummonsAckDigest(caseID, juror), stranger)
	require.NoError(t, err)
	resp2, _ := h.post(t, "/v1/summons/acknowledge", map[string]any{
		"case_id":   caseID,
		"node_id":   juror,
		"signature": fmt.Sprintf("0x%x", sig),
	})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestSummonsFeed_RequiresNodeID(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.get(t, "/v1/summons")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
