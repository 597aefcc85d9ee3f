package models

import "time"

type JobType string

const (
	JobTypeSync       JobType = "sync"
	JobTypeTrash      JobType = "trash"
	JobTypeDelete     JobType = "delete"
	JobTypeApplyLabel JobType = "apply_label"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a status never transitions further.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job is a durable, resumable unit of work against one account.
type Job struct {
	ID                 string
	AccountID          string
	UserID             string
	Type               JobType
	Status             JobStatus
	Filter             *Filter  // serialized filter for trash/delete/archive jobs
	AddLabels          []string // apply_label jobs only
	RemoveLabels       []string // apply_label jobs only
	ResolvedIDs        []string // trash/delete/apply_label jobs: the id set frozen at job start
	TotalMessages      int64
	ProcessedMessages  int64
	NextPageToken      string
	LastError          string
	RetryCount         int
	ResumedAt          *time.Time
	ProcessedAtResume  int64
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// QueryCacheEntry is a handle an agent can use to refer to a previously
// shown filtered result set when asking for confirmation of a mutation.
type QueryCacheEntry struct {
	QueryID   string
	AccountID string
	Filter    Filter
	Count     int64
	SizeBytes int64
	CreatedAt time.Time
}
