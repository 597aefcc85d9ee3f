package models

import "time"

// SyncStatus is the lifecycle state of an Account's mirror.
type SyncStatus string

const (
	SyncStatusIdle        SyncStatus = "idle"
	SyncStatusStatsOnly   SyncStatus = "stats_only"
	SyncStatusSyncing     SyncStatus = "syncing"
	SyncStatusCompleted   SyncStatus = "completed"
	SyncStatusError       SyncStatus = "error"
	SyncStatusAuthExpired SyncStatus = "auth_expired"
)

// Account represents one user's connection to one mailbox.
type Account struct {
	ID               string
	UserID           string
	Provider         string // always "gmail" for now
	Email            string
	SyncStatus       SyncStatus
	SyncStartedAt    *time.Time
	SyncCompletedAt  *time.Time
	SyncError        *string
	HistoryID        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OAuthToken is the single active credential row for an Account.
// AccessToken/RefreshToken are ciphertext at rest; see internal/crypto.
type OAuthToken struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    time.Time
}
