// File: service/voting_service.go
package service

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adi3433/securevote-pro/audit"
	"github.com/adi3433/securevote-pro/bloom"
	"github.com/adi3433/securevote-pro/encryption"
	"github.com/adi3433/securevote-pro/merkle"
	"github.com/adi3433/securevote-pro/models"
	"github.com/adi3433/securevote-pro/storage"
)

// CastState tracks the guarded transitions of a cast-vote attempt.
type CastState string

const (
	StateReceived            CastState = "RECEIVED"
	StateFilterChecked       CastState = "FILTER_CHECKED"
	StateCredentialValidated CastState = "CREDENTIAL_VALIDATED"
	StateApplied             CastState = "APPLIED"
	StateRejected            CastState = "REJECTED"
)

// Options configures a VotingService.
type Options struct {
	Salt           string
	DemoMode       bool
	BloomCapacity  uint64
	BloomErrorRate float64
	AuditStackMax  int
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
}

// VotingService is the single entry point for every ledger mutation. The
// Merkle tree, tally, duplicate filter, sequence counter, and audit stack
// form one logical resource guarded by mu: cast and undo take the write
// lock for their full protocol, reads run concurrently under RLock.
type VotingService struct {
	store      storage.Store
	crypto     *encryption.CryptoService
	filter     *bloom.Filter
	tree       *merkle.Tree
	auditStack *audit.Stack
	tally      map[string]uint64
	seq        uint64
	demoMode   bool
	poisoned   bool
	receiptKey *ecdsa.PrivateKey
	metrics    *Metrics
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewVotingService wires the engine and reconstructs in-memory state from
// the durable store: the tree is rebuilt from the ordered leaves and its
// root cross-checked against the newest recorded root. A mismatch means
// the store was tampered with or corrupted and the service refuses to
// start.
func NewVotingService(store storage.Store, opts Options) (*VotingService, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	vs := &VotingService{
		store:      store,
		crypto:     encryption.NewCryptoService(opts.Salt),
		filter:     bloom.New(opts.BloomCapacity, opts.BloomErrorRate),
		tree:       merkle.NewTree(),
		auditStack: audit.NewStack(opts.AuditStackMax),
		tally:      make(map[string]uint64),
		demoMode:   opts.DemoMode,
		metrics:    NewMetrics(opts.PromRegistry),
		logger:     logger,
	}

	key, err := vs.crypto.GenerateReceiptKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt key: %w", err)
	}
	vs.receiptKey = key

	if err := vs.loadExistingState(); err != nil {
		return nil, err
	}
	return vs, nil
}

// loadExistingState rebuilds the tree, tally, sequence counter, and
// duplicate filter from durable storage after a restart.
func (vs *VotingService) loadExistingState() error {
	leaves, err := vs.store.LeavesOrdered()
	if err != nil {
		return fmt.Errorf("failed to load leaves: %w", err)
	}
	commitments := make([]string, len(leaves))
	for i, leaf := range leaves {
		if leaf.Seq != uint64(i)+1 {
			return fmt.Errorf("%w: leaf sequence gap at seq %d", ErrIntegrityViolation, leaf.Seq)
		}
		commitments[i] = leaf.Commitment
	}
	vs.tree.Rebuild(commitments)
	vs.seq = uint64(len(leaves))

	latest, err := vs.store.LatestAuditRow()
	if err != nil {
		return fmt.Errorf("failed to load audit rows: %w", err)
	}
	if latest != nil && latest.NewRoot != "" && latest.NewRoot != vs.tree.Root() {
		return fmt.Errorf(
			"%w: rebuilt root %s does not match recorded root %s",
			ErrIntegrityViolation, vs.tree.Root(), latest.NewRoot,
		)
	}

	tally, err := vs.store.TallySnapshot()
	if err != nil {
		return fmt.Errorf("failed to load tally: %w", err)
	}
	vs.tally = tally

	voterHashes, err := vs.store.AllVoterHashes()
	if err != nil {
		return fmt.Errorf("failed to load voter hashes: %w", err)
	}
	for _, h := range voterHashes {
		vs.filter.Add(h)
	}
	mappingHashes, err := vs.store.AllMappingHashes()
	if err != nil {
		return fmt.Errorf("failed to load credential hashes: %w", err)
	}
	for _, h := range mappingHashes {
		vs.filter.Add(h)
	}

	if len(leaves) > 0 {
		vs.logger.Info("restored ledger state",
			"leaf_count", len(leaves),
			"root", vs.tree.Root(),
		)
	}
	return nil
}

// RegistrationResult summarizes a voter registration batch.
type RegistrationResult struct {
	Registered int   `json:"registered_count"`
	Duplicates int   `json:"duplicate_count"`
	Total      int64 `json:"total_voters"`
}

// RegisterVoters stores salted hashes for the given voter identities.
// Already-registered voters are counted as duplicates and skipped.
func (vs *VotingService) RegisterVoters(voterIDs []string) (*RegistrationResult, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	registered := 0
	duplicates := 0
	for _, voterID := range voterIDs {
		voterHash := vs.crypto.HashVoterID(voterID)
		existing, err := vs.store.GetVoter(voterHash)
		if err != nil {
			return nil, fmt.Errorf("failed to look up voter: %w", err)
		}
		if existing != nil {
			duplicates++
			continue
		}
		if err := vs.store.CreateVoter(models.Voter{VoterIDHash: voterHash}); err != nil {
			return nil, fmt.Errorf("failed to register voter: %w", err)
		}
		vs.filter.Add(voterHash)
		registered++
	}
	vs.metrics.recordFilter(vs.filter.Stats().FillRatio)

	event := models.AuditEvent{
		ID:       uuid.NewString(),
		Kind:     models.AuditKindRegister,
		PrevRoot: vs.tree.Root(),
		NewRoot:  vs.tree.Root(),
		Batch: &models.BatchDetails{
			Attempted:  len(voterIDs),
			Applied:    registered,
			Duplicates: duplicates,
		},
	}
	// Durable row first; the stack never holds an event with no row.
	if err := vs.appendAuditRow(event); err != nil {
		return nil, err
	}
	vs.auditStack.Push(event)

	counts, err := vs.store.VoterCounts()
	if err != nil {
		return nil, fmt.Errorf("failed to count voters: %w", err)
	}
	vs.logger.Info("registered voters", "registered", registered, "duplicates", duplicates)
	return &RegistrationResult{
		Registered: registered,
		Duplicates: duplicates,
		Total:      counts.Registered,
	}, nil
}

// IssuedCredential pairs a voter ID with its plaintext OTAC. The OTAC is
// returned exactly once and never retrievable afterwards.
type IssuedCredential struct {
	VoterID string `json:"voter_id"`
	OTAC    string `json:"otac"`
}

// IssuanceResult summarizes a credential issuance batch.
type IssuanceResult struct {
	Credentials []IssuedCredential `json:"otacs"`
	Issued      int                `json:"issued_count"`
	Skipped     int                `json:"skipped_count"`
}

// IssueCredentials generates one OTAC per registered voter, stores only
// the hashed mapping, and returns the plaintext tokens to the caller.
// Unregistered voter IDs are skipped.
func (vs *VotingService) IssueCredentials(voterIDs []string) (*IssuanceResult, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	result := &IssuanceResult{}
	for _, voterID := range voterIDs {
		voterHash := vs.crypto.HashVoterID(voterID)
		voter, err := vs.store.GetVoter(voterHash)
		if err != nil {
			return nil, fmt.Errorf("failed to look up voter: %w", err)
		}
		if voter == nil {
			result.Skipped++
			continue
		}
		otac, err := vs.crypto.GenerateOTAC()
		if err != nil {
			return nil, err
		}
		otacHash, err := vs.crypto.HashOTAC(otac)
		if err != nil {
			return nil, err
		}
		if err := vs.store.CreateMapping(models.CredentialMapping{
			OTACHash:    otacHash,
			VoterIDHash: voterHash,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("failed to store credential mapping: %w", err)
		}
		vs.filter.Add(otacHash)
		result.Credentials = append(result.Credentials, IssuedCredential{
			VoterID: voterID,
			OTAC:    otac,
		})
		result.Issued++
	}
	vs.metrics.recordFilter(vs.filter.Stats().FillRatio)

	event := models.AuditEvent{
		ID:       uuid.NewString(),
		Kind:     models.AuditKindIssue,
		PrevRoot: vs.tree.Root(),
		NewRoot:  vs.tree.Root(),
		Batch: &models.BatchDetails{
			Attempted: len(voterIDs),
			Applied:   result.Issued,
			Skipped:   result.Skipped,
		},
	}
	if err := vs.appendAuditRow(event); err != nil {
		return nil, err
	}
	vs.auditStack.Push(event)

	vs.logger.Info("issued credentials", "issued", result.Issued, "skipped", result.Skipped)
	return result, nil
}

// CastResult is the caller-visible outcome of a successful vote cast.
type CastResult struct {
	Seq        uint64              `json:"seq"`
	Commitment string              `json:"commitment"`
	Nonce      string              `json:"nonce"`
	NewRoot    string              `json:"new_root"`
	Receipt    *encryption.Receipt `json:"receipt"`
	State      CastState           `json:"state"`
}

// CastVote runs the cast protocol: filter pre-check, authoritative
// credential and voter checks, commitment, then the atomic apply. The
// whole path holds the write lock; once the apply begins it runs to
// completion or leaves no trace.
func (vs *VotingService) CastVote(otac, candidateID string) (*CastResult, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.poisoned {
		return nil, ErrIntegrityViolation
	}
	if candidateID == "" {
		return nil, vs.reject(ErrInvalidCandidate)
	}

	otacHash, err := vs.crypto.HashOTAC(otac)
	if err != nil {
		return nil, vs.reject(ErrUnknownCredential)
	}

	// Step 1: probabilistic pre-check. A negative is authoritative (the
	// filter never false-negatives); a positive still has to pass the
	// durable lookup below.
	if !vs.filter.MightContain(otacHash) {
		return nil, vs.reject(ErrUnknownCredential)
	}

	// Step 2: authoritative lookup. Filter false positives die here.
	mapping, err := vs.store.GetMapping(otacHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	if mapping == nil {
		return nil, vs.reject(ErrUnknownCredential)
	}
	if mapping.Used {
		return nil, vs.reject(ErrCredentialUsed)
	}
	voter, err := vs.store.GetVoter(mapping.VoterIDHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up voter: %w", err)
	}
	if voter == nil {
		return nil, vs.reject(ErrUnknownCredential)
	}
	if voter.HasVoted {
		return nil, vs.reject(ErrVoterAlreadyVoted)
	}

	// Step 3: ballot commitment.
	commitment, nonce, err := vs.crypto.CommitBallot(candidateID)
	if err != nil {
		return nil, err
	}

	// Step 4: atomic apply. The new tree is staged aside so an apply
	// failure leaves the in-memory state untouched.
	seq := vs.seq + 1
	prevRoot := vs.tree.Root()
	staged := merkle.NewTree(append(vs.tree.Leaves(), commitment)...)
	newRoot := staged.Root()

	now := time.Now().UTC()
	event := models.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      models.AuditKindCast,
		Timestamp: now,
		PrevRoot:  prevRoot,
		NewRoot:   newRoot,
		Cast: &models.CastDetails{
			VoterIDHash: mapping.VoterIDHash,
			OTACHash:    otacHash,
			Commitment:  commitment,
			CandidateID: candidateID,
			Nonce:       nonce,
			Seq:         seq,
		},
	}
	auditRow, err := auditRowFromEvent(event)
	if err != nil {
		return nil, err
	}

	// Signed before the apply: after the transaction commits the cast
	// must not be reported as failed for any reason.
	receipt, err := vs.crypto.SignReceipt(seq, commitment, newRoot, vs.receiptKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}

	record := storage.CastRecord{
		Details: *event.Cast,
		Ballot: models.Ballot{
			Seq:         seq,
			Commitment:  commitment,
			CandidateID: candidateID,
			Nonce:       nonce,
			CreatedAt:   now,
		},
		Leaf: models.MerkleLeaf{
			Seq:        seq,
			Commitment: commitment,
		},
		AuditRow: auditRow,
	}
	if err := vs.store.ApplyCast(record); err != nil {
		return nil, fmt.Errorf("failed to apply cast: %w", err)
	}

	// Durable state committed; flip the in-memory state to match.
	vs.tree = staged
	vs.seq = seq
	vs.tally[candidateID]++
	vs.auditStack.Push(event)
	vs.metrics.recordCast(vs.tree.LeafCount(), vs.filter.Stats().FillRatio)

	vs.logger.Info("vote cast", "seq", seq, "new_root", newRoot)
	return &CastResult{
		Seq:        seq,
		Commitment: commitment,
		Nonce:      nonce,
		NewRoot:    newRoot,
		Receipt:    receipt,
		State:      StateApplied,
	}, nil
}

var rejectionKinds = map[error]string{
	ErrUnknownCredential: "unknown_credential",
	ErrCredentialUsed:    "credential_used",
	ErrVoterAlreadyVoted: "voter_already_voted",
	ErrInvalidCandidate:  "invalid_candidate",
}

func (vs *VotingService) reject(err error) error {
	kind, ok := rejectionKinds[err]
	if !ok {
		kind = "other"
	}
	vs.metrics.recordRejection(kind)
	return err
}

// ProofResult carries an inclusion proof for one ballot commitment.
type ProofResult struct {
	Commitment string             `json:"commitment"`
	LeafIndex  int                `json:"leaf_index"`
	Proof      []merkle.ProofStep `json:"proof"`
	Root       string             `json:"root"`
	TreeSize   int                `json:"tree_size"`
}

// GetProof produces the inclusion proof for the ballot with the given
// commitment against the current root.
func (vs *VotingService) GetProof(commitment string) (*ProofResult, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	ballot, err := vs.store.BallotByCommitment(commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ballot: %w", err)
	}
	if ballot == nil {
		return nil, ErrLeafNotFound
	}
	index := int(ballot.Seq) - 1
	proof, err := vs.tree.ProofFor(index)
	if err != nil {
		return nil, fmt.Errorf("failed to build proof: %w", err)
	}
	return &ProofResult{
		Commitment: commitment,
		LeafIndex:  index,
		Proof:      proof,
		Root:       vs.tree.Root(),
		TreeSize:   vs.tree.LeafCount(),
	}, nil
}

// VerifyProof checks an inclusion proof against the given root.
func (vs *VotingService) VerifyProof(leaf string, index int, proof []merkle.ProofStep, root string) bool {
	return merkle.Verify(leaf, index, proof, root)
}

// Results is the public tally.
type Results struct {
	Tally      map[string]uint64 `json:"results"`
	TotalVotes uint64            `json:"total_votes"`
	MerkleRoot string            `json:"merkle_root"`
}

func (vs *VotingService) GetResults() *Results {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	tally := make(map[string]uint64, len(vs.tally))
	var total uint64
	for candidate, count := range vs.tally {
		tally[candidate] = count
		total += count
	}
	return &Results{
		Tally:      tally,
		TotalVotes: total,
		MerkleRoot: vs.tree.Root(),
	}
}

// Stats is the full observability snapshot.
type Stats struct {
	Tally       map[string]uint64   `json:"tally"`
	Root        string              `json:"root"`
	LeafCount   int                 `json:"leaf_count"`
	Voters      storage.VoterCounts `json:"voters"`
	MerkleStats merkle.Stats        `json:"merkle_stats"`
	FilterStats bloom.Stats         `json:"bloom_filter_stats"`
	AuditStats  audit.Stats         `json:"audit_stack_stats"`
	DemoMode    bool                `json:"demo_mode"`
	ReceiptKey  string              `json:"receipt_public_key"`
}

func (vs *VotingService) GetStats() (*Stats, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	counts, err := vs.store.VoterCounts()
	if err != nil {
		return nil, fmt.Errorf("failed to count voters: %w", err)
	}
	tally := make(map[string]uint64, len(vs.tally))
	for candidate, count := range vs.tally {
		tally[candidate] = count
	}
	return &Stats{
		Tally:       tally,
		Root:        vs.tree.Root(),
		LeafCount:   vs.tree.LeafCount(),
		Voters:      counts,
		MerkleStats: vs.tree.Stats(),
		FilterStats: vs.filter.Stats(),
		AuditStats:  vs.auditStack.Stats(),
		DemoMode:    vs.demoMode,
		ReceiptKey:  vs.crypto.PublicKeyHex(&vs.receiptKey.PublicKey),
	}, nil
}

// UndoResult reports a completed undo.
type UndoResult struct {
	RevertedKind string `json:"reverted_kind"`
	NewRoot      string `json:"new_root"`
}

// UndoLast reverses the most recent cast: the trailing ballot and leaf
// are removed, the tally decremented, the voter and credential restored,
// and the tree rebuilt from the remaining leaves. The rebuilt root must
// equal the recorded prev_root byte for byte; a mismatch poisons the
// service and no further mutation is accepted.
func (vs *VotingService) UndoLast() (*UndoResult, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if !vs.demoMode {
		return nil, ErrDemoOnly
	}
	if vs.poisoned {
		return nil, ErrIntegrityViolation
	}

	event, err := vs.auditStack.Pop()
	if err != nil {
		return nil, ErrEmptyAuditStack
	}
	if event.Kind != models.AuditKindCast {
		vs.auditStack.Push(event)
		return nil, fmt.Errorf("%w: %s", ErrNotUndoable, event.Kind)
	}
	details := event.Cast

	leaves := vs.tree.Leaves()
	if len(leaves) == 0 || leaves[len(leaves)-1] != details.Commitment {
		vs.auditStack.Push(event)
		vs.poisoned = true
		return nil, fmt.Errorf("%w: trailing leaf does not match last cast", ErrIntegrityViolation)
	}
	staged := merkle.NewTree(leaves[:len(leaves)-1]...)
	if staged.Root() != event.PrevRoot {
		vs.auditStack.Push(event)
		vs.poisoned = true
		vs.logger.Error("rebuilt root mismatch on undo",
			"rebuilt", staged.Root(),
			"recorded", event.PrevRoot,
		)
		return nil, fmt.Errorf("%w: rebuilt root does not match recorded prev_root", ErrIntegrityViolation)
	}

	undoEvent := models.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      models.AuditKindUndo,
		Timestamp: time.Now().UTC(),
		PrevRoot:  event.NewRoot,
		NewRoot:   staged.Root(),
		Cast:      details,
	}
	undoRow, err := auditRowFromEvent(undoEvent)
	if err != nil {
		return nil, err
	}
	if err := vs.store.ApplyUndo(*details, undoRow); err != nil {
		vs.auditStack.Push(event)
		return nil, fmt.Errorf("failed to apply undo: %w", err)
	}

	vs.tree = staged
	vs.seq--
	if vs.tally[details.CandidateID] > 1 {
		vs.tally[details.CandidateID]--
	} else {
		delete(vs.tally, details.CandidateID)
	}
	vs.metrics.recordUndo(vs.tree.LeafCount())

	vs.logger.Info("undid last cast", "seq", details.Seq, "new_root", staged.Root())
	return &UndoResult{
		RevertedKind: string(event.Kind),
		NewRoot:      staged.Root(),
	}, nil
}

// AuditTrailEntry is one persisted audit row with voter hashes redacted.
type AuditTrailEntry struct {
	ID        uint            `json:"id"`
	EventID   string          `json:"event_id"`
	Kind      string          `json:"kind"`
	Details   json.RawMessage `json:"details"`
	PrevRoot  string          `json:"prev_root,omitempty"`
	NewRoot   string          `json:"new_root,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuditTrail returns recent persisted audit rows, most recent first.
// Voter hashes in the details are redacted before leaving the engine.
func (vs *VotingService) AuditTrail(limit int) ([]AuditTrailEntry, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	rows, err := vs.store.AuditRows(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit rows: %w", err)
	}
	trail := make([]AuditTrailEntry, 0, len(rows))
	for _, row := range rows {
		trail = append(trail, AuditTrailEntry{
			ID:        row.ID,
			EventID:   row.EventID,
			Kind:      row.Kind,
			Details:   redactDetails(row.Details),
			PrevRoot:  row.PrevRoot,
			NewRoot:   row.NewRoot,
			Timestamp: row.CreatedAt,
		})
	}
	return trail, nil
}

// LookupBallot returns ballot metadata by commitment.
func (vs *VotingService) LookupBallot(commitment string) (*models.Ballot, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	ballot, err := vs.store.BallotByCommitment(commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ballot: %w", err)
	}
	if ballot == nil {
		return nil, ErrLeafNotFound
	}
	return ballot, nil
}

// ReceiptPublicKey exposes the key receipts verify against.
func (vs *VotingService) ReceiptPublicKey() *ecdsa.PublicKey {
	return &vs.receiptKey.PublicKey
}

// Crypto exposes the hashing service for verification flows.
func (vs *VotingService) Crypto() *encryption.CryptoService {
	return vs.crypto
}

func (vs *VotingService) appendAuditRow(event models.AuditEvent) error {
	row, err := auditRowFromEvent(event)
	if err != nil {
		return err
	}
	if err := vs.store.AppendAuditRow(row); err != nil {
		return fmt.Errorf("failed to persist audit event: %w", err)
	}
	return nil
}

func auditRowFromEvent(event models.AuditEvent) (models.AuditRow, error) {
	var payload any
	switch {
	case event.Cast != nil:
		payload = event.Cast
	case event.Batch != nil:
		payload = event.Batch
	default:
		payload = struct{}{}
	}
	details, err := json.Marshal(payload)
	if err != nil {
		return models.AuditRow{}, fmt.Errorf("failed to encode audit details: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return models.AuditRow{
		EventID:   event.ID,
		Kind:      string(event.Kind),
		Details:   string(details),
		PrevRoot:  event.PrevRoot,
		NewRoot:   event.NewRoot,
		CreatedAt: ts,
	}, nil
}

// redactDetails strips voter hashes from a details payload before it is
// shown on the audit trail.
func redactDetails(details string) json.RawMessage {
	if details == "" {
		return json.RawMessage("{}")
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(details), &decoded); err != nil {
		return json.RawMessage("{}")
	}
	if _, ok := decoded["voter_id_hash"]; ok {
		decoded["voter_id_hash"] = "***REDACTED***"
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}
