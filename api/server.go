// Package api is the thin client-facing surface over the court engine.
// The juror consoles and the dispute-raising subsystem talk JSON over
// HTTP; the engine remains the single source of truth for case state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/ballot"
	"github.com/Proxy-Agent-Network/highcourt/court"
	"github.com/Proxy-Agent-Network/highcourt/selection"
	"github.com/Proxy-Agent-Network/highcourt/summons"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/Proxy-Agent-Network/highcourt/vault"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	engine *court.Engine
	log    *logrus.Entry
	http   *http.Server
}

func NewServer(listen string, engine *court.Engine, log *logrus.Entry) *Server {
	s := &Server{engine: engine, log: log.WithField("module", "api")}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/roster/enroll", s.handleEnroll)
		r.Post("/cases", s.handleOpenCase)
		r.Get("/cases/{caseID}", s.handleGetCase)
		r.Get("/summons", s.handleSummonsFeed)
		r.Get("/summons/status/{caseID}", s.handleSummonsStatus)
		r.Post("/summons/acknowledge", s.handleAcknowledge)
		r.Get("/evidence/{caseID}/{nodeID}", s.handleEvidence)
		r.Post("/evidence/receipt", s.handleUnsealReceipt)
		r.Post("/ballots", s.handleBallot)
		r.Get("/verdicts/{caseID}", s.handleVerdict)
		r.Get("/verdicts/{caseID}/audit", s.handleAudit)
	})
	s.http = &http.Server{Addr: listen, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *Server) Start() error {
	s.log.WithField("listen", s.http.Addr).Info("api listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the case-local error taxonomy onto status codes and
// always hands the client an explicit reason.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case ballot.IsDuplicateVoteError(err):
		status = http.StatusConflict
	case ballot.IsUnauthorizedJurorError(err):
		status = http.StatusForbidden
	case ballot.IsQuorumTimeoutError(err), summons.IsSummonsExpiredError(err):
		status = http.StatusGone
	case vault.IsEvidenceIntegrityError(err):
		status = http.StatusUnprocessableEntity
	case selection.IsInsufficientPoolError(err):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

type enrollRequest struct {
	NodeID          string        `json:"node_id,omitempty"`
	PublicKey       hexutil.Bytes `json:"public_key"`
	ReputationScore int64         `json:"reputation_score"`
	BondAmount      int64         `json:"bond_amount"`
	Region          string        `json:"region"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err)
		return
	}
	err := s.engine.Enroll(types.Candidate{
		NodeID:          req.NodeID,
		PublicKey:       req.PublicKey,
		ReputationScore: req.ReputationScore,
		BondAmount:      req.BondAmount,
		Region:          req.Region,
	}, time.Now().Unix())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ENROLLED"})
}

type openCaseRequest struct {
	Category     string        `json:"category"`
	Severity     int64         `json:"severity"`
	DisputeValue int64         `json:"dispute_value"`
	Evidence     hexutil.Bytes `json:"evidence"`
}

func (s *Server) handleOpenCase(w http.ResponseWriter, r *http.Request) {
	var req openCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := s.engine.OpenCase(r.Context(), req.Category, req.Severity, req.DisputeValue, req.Evidence)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"case_id": c.CaseID, "status": string(c.Status)})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, ok, err := s.engine.Case(chi.URLParam(r, "caseID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "case not found"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSummonsFeed(w http.ResponseWriter, r *http.Request) {
	nodeID := r.URL.Query().Get("node_id")
	if nodeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "node_id is required"})
		return
	}
	feed, err := s.engine.SummonsFeed(nodeID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleSummonsStatus(w http.ResponseWriter, r *http.Request) {
	roster, err := s.engine.CaseSummonses(chi.URLParam(r, "caseID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if len(roster) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no roster for case"})
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

type acknowledgeRequest struct {
	CaseID    string        `json:"case_id"`
	NodeID    string        `json:"node_id"`
	Signature hexutil.Bytes `json:"signature"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err)
		return
	}
	sm, err := s.engine.Acknowledge(req.CaseID, req.NodeID, req.Signature)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sm)
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	sh, err := s.engine.Shard(chi.URLParam(r, "caseID"), chi.URLParam(r, "nodeID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type unsealReceiptRequest struct {
	CaseID        string        `json:"case_id"`
	NodeID        string        `json:"node_id"`
	PlaintextHash hexutil.Bytes `json:"plaintext_hash"`
	Signature     hexutil.Bytes `json:"signature"`
}

func (s *Server) handleUnsealReceipt(w http.ResponseWriter, r *http.Request) {
	var req unsealReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.engine.SubmitUnsealReceipt(req.CaseID, req.NodeID, req.PlaintextHash, req.Signature); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "RECEIPT_VERIFIED"})
}

type ballotRequest struct {
	CaseID      string        `json:"case_id"`
	NodeID      string        `json:"node_id"`
	Vote        types.Vote    `json:"vote"`
	Signature   hexutil.Bytes `json:"signature"`
	QuorumShare []byte        `json:"quorum_share,omitempty"`
}

func (s *Server) handleBallot(w http.ResponseWriter, r *http.Request) {
	var req ballotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err)
		return
	}
	manifest, err := s.engine.SubmitBallot(r.Context(), req.CaseID, req.NodeID, req.Vote, req.Signature, req.QuorumShare)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := map[string]any{"status": "BALLOT_RECORDED"}
	if manifest != nil {
		resp["status"] = "QUORUM_REACHED"
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	manifest, record, err := s.engine.Verdict(chi.URLParam(r, "caseID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"manifest": manifest, "settlement": record})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AuditVerdict(chi.URLParam(r, "caseID")); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "SETTLEMENT_REPRODUCIBLE"})
}
