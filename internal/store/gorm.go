package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tbot/internal/ledger"
)

var _ Store = (*GormStore)(nil)

// RewardRecord is the SQL row of a user's reward record
type RewardRecord struct {
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	Version   int64     `json:"version"`
	Points    int64     `json:"points"`                     // Denormalized for reporting
	Document  string    `json:"document" gorm:"type:jsonb"` // ledger.Record as JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GormStore struct {
	db *gorm.DB
}

// NewGormStore expects a db opened with TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID string) (ledger.Record, error) {
	var row RewardRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Record{}, ErrNotFound
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("get %s: %w", userID, err)
	}
	var rec ledger.Record
	if err := json.Unmarshal([]byte(row.Document), &rec); err != nil {
		return ledger.Record{}, fmt.Errorf("decode %s: %w", userID, err)
	}
	rec.UserID = row.UserId
	rec.Version = row.Version
	return rec, nil
}

func (s *GormStore) Insert(ctx context.Context, rec ledger.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(&RewardRecord{
		UserId:   rec.UserID,
		Version:  rec.Version,
		Points:   rec.Points,
		Document: string(doc),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.UserID, err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, rec ledger.Record) error {
	next := rec.Clone()
	next.Version++
	doc, err := json.Marshal(next)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&RewardRecord{}).
		Where("user_id = ? AND version = ?", rec.UserID, rec.Version).
		Updates(map[string]interface{}{
			"version":    next.Version,
			"points":     next.Points,
			"document":   string(doc),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", rec.UserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
