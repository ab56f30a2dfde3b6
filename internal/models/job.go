package models

import "time"

// JobStatus is a job record's lifecycle state. pending -> running ->
// {completed, failed, cancelled}; the three latter states are terminal.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether status is one of the job lifecycle's final
// states, after which no further transition is permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobRecord is the Job Manager's persisted row, backing the `lint_jobs`
// table.
type JobRecord struct {
	JobID           string     `gorm:"column:job_id;primaryKey"`
	LinterType      string     `gorm:"column:linter_type;not null"`
	Format          Format     `gorm:"column:format;not null"`
	Content         string     `gorm:"column:content;type:text"`
	Archive         string     `gorm:"column:archive;type:text"`
	Filename        string     `gorm:"column:filename"`
	OptionsJSON     string     `gorm:"column:options;type:text"`
	Status          JobStatus  `gorm:"column:status;index;not null"`
	ResultJSON      string     `gorm:"column:result;type:text"`
	ErrorMessage    string     `gorm:"column:error_message"`
	ExecutionTimeMs int64      `gorm:"column:execution_time_ms"`
	ProcessID       string     `gorm:"column:process_id"`
	CreatedAt       time.Time  `gorm:"column:created_at;index"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
}

// TableName pins the GORM table name to spec.md's persisted-state layout.
func (JobRecord) TableName() string { return "lint_jobs" }
