package dal

import (
	"encoding/json"
	"errors"
	"fmt"

	"flowboost/ledger"
	"flowboost/models"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// InitDB creates and returns a database connection.
func InitDB(dbPath string, log *zap.Logger) *gorm.DB {
	db, err := gorm.Open(
		sqlite.Open(dbPath),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		log.Fatal("Failed to connect to DB.", zap.Error(err))
	}
	log.Info("Connected to database.")

	if err := db.AutoMigrate(&models.RoleRecord{}, &models.GuildSettings{}); err != nil {
		log.Fatal("Failed to migrate database.", zap.Error(err))
	}
	log.Info("Migrated database.")

	return db
}

// Store is the durable role ledger, one row per owning user.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the given database connection as a ledger store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the ledger record for the given owner, or nil if absent.
func (s *Store) Get(ownerID string) (*ledger.Record, error) {
	var row models.RoleRecord
	err := s.db.Where(&models.RoleRecord{UserID: ownerID}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record, err := rowToRecord(row)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Put inserts or updates the given ledger record.
func (s *Store) Put(record ledger.Record) error {
	giftedTo, err := json.Marshal(record.GiftedTo)
	if err != nil {
		return fmt.Errorf("encode gifted_to for %v: %w", record.OwnerID, err)
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_id", "gifted_to", "boosts"}),
	}).Create(&models.RoleRecord{
		UserID:   record.OwnerID,
		RoleID:   record.RoleID,
		GiftedTo: string(giftedTo),
		Boosts:   record.Boosts,
	}).Error
}

// Delete removes the ledger record for the given owner. Rows are
// removed outright; a soft-deleted row would block re-creation through
// the unique index on user_id.
func (s *Store) Delete(ownerID string) error {
	return s.db.Unscoped().
		Where(&models.RoleRecord{UserID: ownerID}).
		Delete(&models.RoleRecord{}).Error
}

// ListAll returns every record in the ledger.
func (s *Store) ListAll() ([]ledger.Record, error) {
	var rows []models.RoleRecord
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]ledger.Record, 0, len(rows))
	for _, row := range rows {
		record, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func rowToRecord(row models.RoleRecord) (ledger.Record, error) {
	var giftedTo []string
	if row.GiftedTo != "" {
		if err := json.Unmarshal([]byte(row.GiftedTo), &giftedTo); err != nil {
			return ledger.Record{}, fmt.Errorf(
				"decode gifted_to for %v: %w", row.UserID, err,
			)
		}
	}

	return ledger.Record{
		OwnerID:  row.UserID,
		RoleID:   row.RoleID,
		GiftedTo: giftedTo,
		Boosts:   row.Boosts,
	}, nil
}

// UpsertBoostChannel inserts or updates the boost announcement channel
// for the given guild.
func UpsertBoostChannel(guildID string, channelID string, db *gorm.DB) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"boost_channel_id"}),
	}).Create(&models.GuildSettings{
		GuildID:        guildID,
		BoostChannelID: channelID,
	}).Error
}

// GetBoostChannel returns the saved boost announcement channel for the
// given guild.
func GetBoostChannel(guildID string, db *gorm.DB) (string, error) {
	var settings models.GuildSettings
	err := db.Where(&models.GuildSettings{GuildID: guildID}).Take(&settings).Error
	if err != nil {
		return "", err
	}
	return settings.BoostChannelID, nil
}
