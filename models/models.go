// File: models/models.go
package models

import "time"

// Voter holds only a salted hash of the voter identity. Raw IDs are never
// persisted anywhere in the system.
type Voter struct {
	VoterIDHash string `gorm:"primaryKey" json:"voter_id_hash"`
	HasVoted    bool   `json:"has_voted"`
}

// CredentialMapping links a hashed one-time access code to a voter hash.
// The plaintext OTAC is returned once at issuance and never stored.
type CredentialMapping struct {
	OTACHash    string    `gorm:"primaryKey" json:"otac_hash"`
	VoterIDHash string    `gorm:"index" json:"voter_id_hash"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ballot is immutable once created. Seq is 1-based and strictly
// increasing; the ballot's Merkle leaf lives at index Seq-1.
type Ballot struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Seq         uint64    `gorm:"uniqueIndex" json:"seq"`
	Commitment  string    `gorm:"uniqueIndex" json:"commitment"`
	CandidateID string    `json:"candidate_id"`
	Nonce       string    `json:"nonce"`
	CreatedAt   time.Time `json:"created_at"`
}

// MerkleLeaf is the durable copy of a committed leaf, ordered by Seq.
type MerkleLeaf struct {
	Seq        uint64 `gorm:"primaryKey" json:"seq"`
	Commitment string `json:"commitment"`
}

// TallyEntry is a per-candidate vote count, updated in lock-step with
// ballot appends and removals.
type TallyEntry struct {
	CandidateID string `gorm:"primaryKey" json:"candidate_id"`
	Count       uint64 `json:"count"`
}

// AuditRow is the persisted form of an audit event.
type AuditRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   string    `gorm:"index" json:"event_id"`
	Kind      string    `json:"kind"`
	Details   string    `json:"details"`
	PrevRoot  string    `json:"prev_root"`
	NewRoot   string    `json:"new_root"`
	CreatedAt time.Time `json:"created_at"`
}
