package models

import "time"

type AuditKind string

const (
	AuditKindRegister AuditKind = "REGISTER_VOTERS"
	AuditKindIssue    AuditKind = "ISSUE_OTACS"
	AuditKindCast     AuditKind = "CAST"
	AuditKindUndo     AuditKind = "UNDO"
)

// CastDetails captures enough state to reverse a single cast: the voter
// whose flag was flipped, the credential that was consumed, and the
// ballot that was appended.
type CastDetails struct {
	VoterIDHash string `json:"voter_id_hash"`
	OTACHash    string `json:"otac_hash"`
	Commitment  string `json:"commitment"`
	CandidateID string `json:"candidate_id"`
	Nonce       string `json:"nonce"`
	Seq         uint64 `json:"seq"`
}

// BatchDetails summarizes a registration or issuance batch.
type BatchDetails struct {
	Attempted  int `json:"attempted"`
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates,omitempty"`
	Skipped    int `json:"skipped,omitempty"`
}

// AuditEvent records one ledger mutation together with the Merkle root
// before and after it. Events are immutable once pushed.
type AuditEvent struct {
	ID        string        `json:"id"`
	Kind      AuditKind     `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	PrevRoot  string        `json:"prev_root,omitempty"`
	NewRoot   string        `json:"new_root,omitempty"`
	Cast      *CastDetails  `json:"cast,omitempty"`
	Batch     *BatchDetails `json:"batch,omitempty"`
}
