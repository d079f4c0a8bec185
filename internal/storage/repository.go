package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// KV

func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry KVEntry
	err := r.db.WithContext(ctx).Where("kv_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (r *Repository) Set(ctx context.Context, key, value string) error {
	return upsert(r.db.WithContext(ctx), key, value)
}

func (r *Repository) SetMany(ctx context.Context, values map[string]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range values {
			if err := upsert(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) Remove(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("kv_key = ?", key).Delete(&KVEntry{}).Error
}

func upsert(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}).Error
}

// Portfolio Snapshots

func (r *Repository) SaveSnapshot(snapshot *PortfolioSnapshot) error {
	return r.db.Create(snapshot).Error
}

func (r *Repository) LatestSnapshot() (*PortfolioSnapshot, error) {
	var snapshot PortfolioSnapshot
	err := r.db.Order("created_at DESC").Order("id DESC").First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *Repository) RecentSnapshots(limit int) ([]PortfolioSnapshot, error) {
	var snapshots []PortfolioSnapshot
	err := r.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&snapshots).Error
	return snapshots, err
}
