package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi3433/securevote-pro/service"
	"github.com/adi3433/securevote-pro/storage"
)

func newTestServer(t *testing.T) (*Server, *service.QueueProcessor) {
	t.Helper()
	store, err := storage.NewSQLiteStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	votingService, err := service.NewVotingService(store, service.Options{
		Salt:           "test-salt",
		DemoMode:       true,
		BloomCapacity:  1000,
		BloomErrorRate: 0.01,
		AuditStackMax:  100,
		PromRegistry:   registry,
	})
	require.NoError(t, err)

	queue := service.NewQueueProcessor(votingService, 8)
	queue.Start()
	t.Cleanup(queue.Stop)

	return NewServer(votingService, queue, ":0", nil, registry), queue
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCastVoteFlow(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.routes()

	rec := doJSON(t, mux, http.MethodPost, "/admin/register-voters",
		RegisterVotersRequest{VoterIDs: []string{"v1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/admin/issue-otacs",
		IssueOTACsRequest{VoterIDs: []string{"v1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decode[service.IssuanceResult](t, rec)
	require.Len(t, issued.Credentials, 1)
	otac := issued.Credentials[0].OTAC

	rec = doJSON(t, mux, http.MethodPost, "/cast-vote",
		CastVoteRequest{OTAC: otac, CandidateID: "A"})
	require.Equal(t, http.StatusOK, rec.Code)
	cast := decode[service.CastResult](t, rec)
	assert.Equal(t, uint64(1), cast.Seq)
	assert.NotEmpty(t, cast.Commitment)

	// Second use of the credential conflicts.
	rec = doJSON(t, mux, http.MethodPost, "/cast-vote",
		CastVoteRequest{OTAC: otac, CandidateID: "A"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "credential_already_used", errResp.Kind)

	// Proof round trip through the HTTP surface.
	rec = doJSON(t, mux, http.MethodGet, "/generate-proof/"+cast.Commitment, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	proof := decode[service.ProofResult](t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/verify-proof", VerifyProofRequest{
		Leaf:      cast.Commitment,
		LeafIndex: proof.LeafIndex,
		Proof:     proof.Proof,
		Root:      proof.Root,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[VerifyProofResponse](t, rec).Valid)

	rec = doJSON(t, mux, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[service.Results](t, rec)
	assert.Equal(t, uint64(1), results.Tally["A"])
}

func TestErrorMapping(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.routes()

	rec := doJSON(t, mux, http.MethodPost, "/cast-vote",
		CastVoteRequest{OTAC: "unknown-token-that-was-never-issued", CandidateID: "A"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unknown_credential", decode[ErrorResponse](t, rec).Kind)

	rec = doJSON(t, mux, http.MethodGet, "/generate-proof/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "leaf_not_found", decode[ErrorResponse](t, rec).Kind)

	rec = doJSON(t, mux, http.MethodPost, "/api/undoLast", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "empty_audit_stack", decode[ErrorResponse](t, rec).Kind)

	// Wrong method.
	rec = doJSON(t, mux, http.MethodGet, "/cast-vote", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUndoEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.routes()

	doJSON(t, mux, http.MethodPost, "/admin/register-voters",
		RegisterVotersRequest{VoterIDs: []string{"v1"}})
	rec := doJSON(t, mux, http.MethodPost, "/admin/issue-otacs",
		IssueOTACsRequest{VoterIDs: []string{"v1"}})
	otac := decode[service.IssuanceResult](t, rec).Credentials[0].OTAC

	rec = doJSON(t, mux, http.MethodPost, "/cast-vote",
		CastVoteRequest{OTAC: otac, CandidateID: "A"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/undoLast", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	undo := decode[service.UndoResult](t, rec)
	assert.Equal(t, "CAST", undo.RevertedKind)

	rec = doJSON(t, mux, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[service.Stats](t, rec)
	assert.Equal(t, 0, stats.LeafCount)
}

func TestHealthAndStats(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.routes()

	rec := doJSON(t, mux, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/auditTrail?limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
