package storage

import "time"

// KVEntry backs the KV interface on SQLite.
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;primaryKey;size:191"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

type PortfolioSnapshot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Cash           float64 `gorm:"not null" json:"cash"`
	InvestedValue  float64 `json:"invested_value"`
	UnrealizedPL   float64 `gorm:"column:unrealized_pl" json:"unrealized_pl"`
	TotalEquity    float64 `gorm:"not null" json:"total_equity"`
	PositionsCount int     `json:"positions_count"`
	PositionsJSON  string  `gorm:"type:text" json:"positions_json"`
}
