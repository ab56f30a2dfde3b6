package models

import "time"

// MetricRecord is one append-only row in the `api_metrics` audit table.
type MetricRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Endpoint       string    `gorm:"column:endpoint;index"`
	Method         string    `gorm:"column:method"`
	StatusCode     int       `gorm:"column:status_code"`
	ResponseTimeMs int64     `gorm:"column:response_time_ms"`
	CacheHit       bool      `gorm:"column:cache_hit"`
	LinterType     string    `gorm:"column:linter_type"`
	Format         string    `gorm:"column:format"`
	ErrorType      string    `gorm:"column:error_type"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

// TableName pins the GORM table name to spec.md's persisted-state layout.
func (MetricRecord) TableName() string { return "api_metrics" }
