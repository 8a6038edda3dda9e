// File: api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adi3433/securevote-pro/merkle"
	"github.com/adi3433/securevote-pro/service"
)

type RegisterVotersRequest struct {
	VoterIDs []string `json:"voter_ids"`
}

type IssueOTACsRequest struct {
	VoterIDs []string `json:"voter_ids"`
}

type CastVoteRequest struct {
	OTAC        string `json:"otac"`
	CandidateID string `json:"candidate_id"`
}

type VerifyProofRequest struct {
	Leaf      string             `json:"leaf"`
	LeafIndex int                `json:"leaf_index"`
	Proof     []merkle.ProofStep `json:"proof"`
	Root      string             `json:"root"`
}

type VerifyProofResponse struct {
	Valid bool `json:"valid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Server is the HTTP surface over the ledger engine. Everything behind
// it is plumbing; authentication and templating live outside this
// module.
type Server struct {
	votingService *service.VotingService
	queue         *service.QueueProcessor
	listenAddress string
	logger        *slog.Logger
	promGatherer  prometheus.Gatherer
	httpServer    *http.Server
}

func NewServer(
	votingService *service.VotingService,
	queue *service.QueueProcessor,
	listenAddress string,
	logger *slog.Logger,
	promGatherer prometheus.Gatherer,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if promGatherer == nil {
		promGatherer = prometheus.DefaultGatherer
	}
	return &Server{
		votingService: votingService,
		queue:         queue,
		listenAddress: listenAddress,
		logger:        logger,
		promGatherer:  promGatherer,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/register-voters", s.handleRegisterVoters)
	mux.HandleFunc("/admin/issue-otacs", s.handleIssueOTACs)
	mux.HandleFunc("/admin/ballot-lookup/", s.handleBallotLookup)
	mux.HandleFunc("/cast-vote", s.handleCastVote)
	mux.HandleFunc("/results", s.handleResults)
	mux.HandleFunc("/generate-proof/", s.handleGenerateProof)
	mux.HandleFunc("/verify-proof", s.handleVerifyProof)
	mux.HandleFunc("/api/undoLast", s.handleUndoLast)
	mux.HandleFunc("/api/auditTrail", s.handleAuditTrail)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.promGatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.listenAddress,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("api listening", "address", s.listenAddress)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRegisterVoters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req RegisterVotersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.votingService.RegisterVoters(req.VoterIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIssueOTACs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req IssueOTACsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.votingService.IssueCredentials(req.VoterIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.queue.Submit(r.Context(), req.OTAC, req.CandidateID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.votingService.GetResults())
}

func (s *Server) handleGenerateProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	commitment := strings.TrimPrefix(r.URL.Path, "/generate-proof/")
	if commitment == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing commitment"))
		return
	}
	proof, err := s.votingService.GetProof(commitment)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req VerifyProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	valid := s.votingService.VerifyProof(req.Leaf, req.LeafIndex, req.Proof, req.Root)
	s.writeJSON(w, http.StatusOK, VerifyProofResponse{Valid: valid})
}

func (s *Server) handleUndoLast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	result, err := s.votingService.UndoLast()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = parsed
	}
	trail, err := s.votingService.AuditTrail(limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	stats, err := s.votingService.GetStats()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBallotLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	commitment := strings.TrimPrefix(r.URL.Path, "/admin/ballot-lookup/")
	if commitment == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing commitment"))
		return
	}
	ballot, err := s.votingService.LookupBallot(commitment)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ballot)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps engine sentinels to HTTP status codes.
// Integrity violations surface as 500s and are logged loudly; they are
// never silently repaired.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	kind := ""
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownCredential):
		status, kind = http.StatusUnauthorized, "unknown_credential"
	case errors.Is(err, service.ErrCredentialUsed):
		status, kind = http.StatusConflict, "credential_already_used"
	case errors.Is(err, service.ErrVoterAlreadyVoted):
		status, kind = http.StatusConflict, "voter_already_voted"
	case errors.Is(err, service.ErrInvalidCandidate):
		status, kind = http.StatusBadRequest, "invalid_candidate"
	case errors.Is(err, service.ErrLeafNotFound):
		status, kind = http.StatusNotFound, "leaf_not_found"
	case errors.Is(err, service.ErrEmptyAuditStack):
		status, kind = http.StatusConflict, "empty_audit_stack"
	case errors.Is(err, service.ErrDemoOnly):
		status, kind = http.StatusForbidden, "demo_only"
	case errors.Is(err, service.ErrNotUndoable):
		status, kind = http.StatusConflict, "not_undoable"
	case errors.Is(err, service.ErrIntegrityViolation):
		kind = "integrity_violation"
		s.logger.Error("ledger integrity violation", "error", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusRequestTimeout, "timeout"
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
