// File: storage/storage.go
package storage

import "github.com/adi3433/securevote-pro/models"

// CastRecord bundles the rows written by one vote cast. ApplyCast writes
// all of them in a single transaction; a partial application must never
// be observable.
type CastRecord struct {
	Details  models.CastDetails
	Ballot   models.Ballot
	Leaf     models.MerkleLeaf
	AuditRow models.AuditRow
}

// VoterCounts is the registered/voted breakdown for the stats surface.
type VoterCounts struct {
	Registered int64 `json:"registered"`
	Voted      int64 `json:"voted"`
}

// Store is the durable backing for the ledger engine. Writes are assumed
// durable once a method returns nil; ordered leaf retrieval by seq is the
// basis for startup reconstruction and undo.
type Store interface {
	// Voters
	GetVoter(voterIDHash string) (*models.Voter, error)
	CreateVoter(voter models.Voter) error
	VoterCounts() (VoterCounts, error)

	// Credential mappings
	GetMapping(otacHash string) (*models.CredentialMapping, error)
	CreateMapping(mapping models.CredentialMapping) error

	// Digest listings used to reseed the duplicate filter on startup.
	AllVoterHashes() ([]string, error)
	AllMappingHashes() ([]string, error)

	// Ballots and leaves
	BallotByCommitment(commitment string) (*models.Ballot, error)
	LeavesOrdered() ([]models.MerkleLeaf, error)

	// Tally
	TallySnapshot() (map[string]uint64, error)

	// Audit
	AuditRows(limit int) ([]models.AuditRow, error)
	LatestAuditRow() (*models.AuditRow, error)
	AppendAuditRow(row models.AuditRow) error

	// ApplyCast atomically marks the credential used, flips the voter's
	// has_voted flag, inserts the ballot and leaf, increments the tally,
	// and appends the audit row. All or nothing.
	ApplyCast(record CastRecord) error

	// ApplyUndo atomically reverses a cast identified by its details and
	// appends the UNDO audit row.
	ApplyUndo(details models.CastDetails, auditRow models.AuditRow) error

	Close() error
}
