package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adi3433/securevote-pro/models"
)

// SQLiteStore implements Store over gorm with the pure-Go sqlite driver.
// An empty dataDir selects a shared in-memory database, which is what the
// tests use.
type SQLiteStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSQLiteStore(dataDir string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var db *gorm.DB
	var err error
	if dataDir == "" {
		db, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	} else {
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(dataDir, "securevote.sqlite")
		db, err = gorm.Open(
			sqlite.Open(dbPath),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Voter{},
		&models.CredentialMapping{},
		&models.Ballot{},
		&models.MerkleLeaf{},
		&models.TallyEntry{},
		&models.AuditRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Debug("opened ballot store", "data_dir", dataDir)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) GetVoter(voterIDHash string) (*models.Voter, error) {
	var voter models.Voter
	result := s.db.First(&voter, "voter_id_hash = ?", voterIDHash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &voter, nil
}

func (s *SQLiteStore) CreateVoter(voter models.Voter) error {
	return s.db.Create(&voter).Error
}

func (s *SQLiteStore) VoterCounts() (VoterCounts, error) {
	var counts VoterCounts
	if err := s.db.Model(&models.Voter{}).Count(&counts.Registered).Error; err != nil {
		return counts, err
	}
	err := s.db.Model(&models.Voter{}).
		Where("has_voted = ?", true).
		Count(&counts.Voted).Error
	return counts, err
}

func (s *SQLiteStore) GetMapping(otacHash string) (*models.CredentialMapping, error) {
	var mapping models.CredentialMapping
	result := s.db.First(&mapping, "otac_hash = ?", otacHash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &mapping, nil
}

func (s *SQLiteStore) CreateMapping(mapping models.CredentialMapping) error {
	return s.db.Create(&mapping).Error
}

func (s *SQLiteStore) AllVoterHashes() ([]string, error) {
	var hashes []string
	err := s.db.Model(&models.Voter{}).Pluck("voter_id_hash", &hashes).Error
	return hashes, err
}

func (s *SQLiteStore) AllMappingHashes() ([]string, error) {
	var hashes []string
	err := s.db.Model(&models.CredentialMapping{}).Pluck("otac_hash", &hashes).Error
	return hashes, err
}

func (s *SQLiteStore) BallotByCommitment(commitment string) (*models.Ballot, error) {
	var ballot models.Ballot
	result := s.db.First(&ballot, "commitment = ?", commitment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &ballot, nil
}

func (s *SQLiteStore) LeavesOrdered() ([]models.MerkleLeaf, error) {
	var leaves []models.MerkleLeaf
	err := s.db.Order("seq asc").Find(&leaves).Error
	return leaves, err
}

func (s *SQLiteStore) TallySnapshot() (map[string]uint64, error) {
	var entries []models.TallyEntry
	if err := s.db.Find(&entries).Error; err != nil {
		return nil, err
	}
	tally := make(map[string]uint64, len(entries))
	for _, entry := range entries {
		tally[entry.CandidateID] = entry.Count
	}
	return tally, nil
}

func (s *SQLiteStore) AuditRows(limit int) ([]models.AuditRow, error) {
	var rows []models.AuditRow
	query := s.db.Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (s *SQLiteStore) LatestAuditRow() (*models.AuditRow, error) {
	var row models.AuditRow
	result := s.db.Order("id desc").First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &row, nil
}

func (s *SQLiteStore) AppendAuditRow(row models.AuditRow) error {
	return s.db.Create(&row).Error
}

// ApplyCast writes every row of a cast in one transaction so a partial
// application is never observable.
func (s *SQLiteStore) ApplyCast(record CastRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CredentialMapping{}).
			Where("otac_hash = ? AND used = ?", record.Details.OTACHash, false).
			Update("used", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return fmt.Errorf("credential %s already consumed", record.Details.OTACHash)
		}
		if err := tx.Model(&models.Voter{}).
			Where("voter_id_hash = ?", record.Details.VoterIDHash).
			Update("has_voted", true).Error; err != nil {
			return err
		}
		if err := tx.Create(&record.Ballot).Error; err != nil {
			return err
		}
		if err := tx.Create(&record.Leaf).Error; err != nil {
			return err
		}
		if err := incrementTally(tx, record.Ballot.CandidateID, 1); err != nil {
			return err
		}
		return tx.Create(&record.AuditRow).Error
	})
}

// ApplyUndo reverses a cast in one transaction: trailing ballot and leaf
// removed, tally decremented, voter flag and credential mapping restored,
// UNDO audit row appended.
func (s *SQLiteStore) ApplyUndo(details models.CastDetails, auditRow models.AuditRow) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Voter{}).
			Where("voter_id_hash = ?", details.VoterIDHash).
			Update("has_voted", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.CredentialMapping{}).
			Where("otac_hash = ?", details.OTACHash).
			Update("used", false).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Ballot{}, "commitment = ?", details.Commitment).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.MerkleLeaf{}, "seq = ?", details.Seq).Error; err != nil {
			return err
		}
		if err := incrementTally(tx, details.CandidateID, -1); err != nil {
			return err
		}
		return tx.Create(&auditRow).Error
	})
}

func incrementTally(tx *gorm.DB, candidateID string, delta int64) error {
	var entry models.TallyEntry
	result := tx.First(&entry, "candidate_id = ?", candidateID)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if delta < 0 {
			return fmt.Errorf("no tally entry for candidate %s", candidateID)
		}
		return tx.Create(&models.TallyEntry{
			CandidateID: candidateID,
			Count:       uint64(delta),
		}).Error
	}
	if delta < 0 && entry.Count == 0 {
		return fmt.Errorf("tally underflow for candidate %s", candidateID)
	}
	entry.Count = uint64(int64(entry.Count) + delta)
	if entry.Count == 0 {
		return tx.Delete(&entry).Error
	}
	return tx.Save(&entry).Error
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
