package models

import "time"

// CacheStatus is the terminal status recorded against a cache entry.
type CacheStatus string

const (
	CacheStatusSuccess CacheStatus = "success"
	CacheStatusError   CacheStatus = "error"
	CacheStatusTimeout CacheStatus = "timeout"
)

// CacheEntry is the Cache Service's persisted row, backing the
// `lint_results` table. Result is stored as a serialized ExecutionResult;
// the Cache Service owns (de)serialization so callers never see the raw
// column.
type CacheEntry struct {
	ID           uint        `gorm:"primaryKey;autoIncrement"`
	ContentHash  string      `gorm:"column:content_hash;index:idx_lookup;not null"`
	LinterType   string      `gorm:"column:linter_type;index:idx_lookup;not null"`
	OptionsHash  string      `gorm:"column:options_hash;index:idx_lookup;not null"`
	Format       Format      `gorm:"column:format;not null"`
	Result       string      `gorm:"column:result;type:text"`
	Status       CacheStatus `gorm:"column:status;not null"`
	ErrorMessage string      `gorm:"column:error_message"`
	CreatedAt    time.Time   `gorm:"column:created_at;index"`
	ExpiresAt    time.Time   `gorm:"column:expires_at;index"`
}

// TableName pins the GORM table name to the name used by spec.md's
// persisted-state layout.
func (CacheEntry) TableName() string { return "lint_results" }
