package models

// Attachment describes one attachment entry stored in Email.Attachments.
type Attachment struct {
	Filename string `json:"filename"`
	Mime     string `json:"mime"`
	Size     int64  `json:"size"`
}

// Email is the mirror row for one Gmail message belonging to one account.
// Primary key is (MessageID, AccountID).
type Email struct {
	MessageID        string
	AccountID        string
	ThreadID         string
	Subject          string
	Snippet          string
	FromEmail        string
	FromName         string
	Labels           []string
	Category         *string
	SizeBytes        int64
	HasAttachments   int
	Attachments      []Attachment
	IsUnread         bool
	IsStarred        bool
	IsTrash          bool
	IsSpam           bool
	IsImportant      bool
	InternalDate     int64 // ms since epoch, authoritative
	SyncedAt         int64 // ms since epoch
	UnsubscribeLink  *string
}

// DeriveFlagsAndCategory recomputes Category and the five boolean flags
// from Labels. It is the single source of truth invoked on every write
// path that touches labels, so Labels and the flags never drift apart.
func (e *Email) DeriveFlagsAndCategory() {
	e.IsUnread = hasLabel(e.Labels, "UNREAD")
	e.IsStarred = hasLabel(e.Labels, "STARRED")
	e.IsTrash = hasLabel(e.Labels, "TRASH")
	e.IsSpam = hasLabel(e.Labels, "SPAM")
	e.IsImportant = hasLabel(e.Labels, "IMPORTANT")
	e.Category = deriveCategory(e.Labels)
}

func deriveCategory(labels []string) *string {
	for _, l := range labels {
		if len(l) > len("CATEGORY_") && l[:len("CATEGORY_")] == "CATEGORY_" {
			v := l
			return &v
		}
	}
	if hasLabel(labels, "SENT") {
		v := "SENT"
		return &v
	}
	return nil
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

// IsSent and IsArchived are computed on the fly from labels/flags for the
// filter grammar; they are not materialized columns.
func IsSent(labels []string) bool {
	return hasLabel(labels, "SENT")
}

func IsArchived(labels []string, isTrash, isSpam bool) bool {
	return !hasLabel(labels, "INBOX") && !isTrash && !isSpam
}

// MergeLabels applies an add/remove delta and returns the resulting set,
// preserving insertion order of the original slice followed by newly added
// labels (order is not semantically meaningful but keeps tests stable).
func MergeLabels(current, added, removed []string) []string {
	remove := make(map[string]bool, len(removed))
	for _, r := range removed {
		remove[r] = true
	}
	have := make(map[string]bool, len(current)+len(added))
	out := make([]string, 0, len(current)+len(added))
	for _, l := range current {
		if remove[l] || have[l] {
			continue
		}
		have[l] = true
		out = append(out, l)
	}
	for _, l := range added {
		if remove[l] || have[l] {
			continue
		}
		have[l] = true
		out = append(out, l)
	}
	return out
}

// Sender is the rebuildable per-(account,email) aggregate.
type Sender struct {
	AccountID string
	Email     string
	Name      string
	Count     int64
	TotalSize int64
}

// DeletedEmail is the Eternal Memory archive row.
type DeletedEmail struct {
	MessageID       string
	AccountID       string
	ThreadID        string
	Subject         string
	Snippet         string
	FromEmail       string
	FromName        string
	Labels          []string
	Category        *string
	SizeBytes       int64
	HasAttachments  int
	Attachments     []Attachment
	IsUnread        bool
	IsStarred       bool
	IsSpam          bool
	IsImportant     bool
	InternalDate    int64
	UnsubscribeLink *string
	DeletedAt       int64
}

// UnsubscribedSender records a user's click-through on List-Unsubscribe.
type UnsubscribedSender struct {
	AccountID   string
	SenderEmail string
	CreatedAt   int64
}
