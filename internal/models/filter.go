package models

// TriState models true|false|absent without conflating absent with false.
type TriState int

const (
	TriAbsent TriState = iota
	TriTrue
	TriFalse
)

func Tri(b bool) TriState {
	if b {
		return TriTrue
	}
	return TriFalse
}

// Filter is the engine-agnostic filter grammar shared by queries and
// mutations. All fields are optional; the zero value of a field means "no constraint"
// except the TriState booleans, which default to TriAbsent.
type Filter struct {
	Sender        string   // case-insensitive substring over from_name ∪ from_email
	SenderEmail   []string // comma list, case-insensitive equality, OR'd
	SenderDomain  []string // comma list, case-insensitive suffix match against "@domain", OR'd
	Category      string   // exact label id
	DateFrom      *int64   // inclusive, internal_date
	DateTo        *int64   // inclusive, internal_date
	SizeMin       *int64   // inclusive, bytes
	SizeMax       *int64   // inclusive, bytes
	IsUnread      TriState
	IsStarred     TriState
	HasAttachments TriState
	IsTrash       TriState
	IsSpam        TriState
	IsImportant   TriState
	IsSent        TriState
	IsArchived    TriState
	LabelIDs      []string // comma list; row matches if labels contains ANY
	Search        string   // subject substring with OR/AND mini-grammar
}

type SortField string

const (
	SortByDate SortField = "date"
	SortBySize SortField = "size"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type Sort struct {
	Field SortField
	Order SortOrder
}

type Page struct {
	Limit  int
	Offset int
}

// BreakdownBy enumerates the group-by dimensions a breakdown request
// can use.
type BreakdownBy string

const (
	BreakdownBySender   BreakdownBy = "sender"
	BreakdownByCategory BreakdownBy = "category"
	BreakdownByMonth    BreakdownBy = "month"
)

type BreakdownRow struct {
	Key       string
	Label     string
	Count     int64
	TotalSize int64
}

// Stats is the shape returned by calculate_stats.
type Stats struct {
	Total      int64
	Unread     int64
	Categories map[string]int64 // promotions/social/updates/forums/primary
	Size       SizeStats
	Age        AgeStats
	Senders    SenderStats
	Trash      CohortStats
	Spam       CohortStats
	Cleanup    CleanupStats
}

type SizeStats struct {
	Larger5MB        int64
	Larger10MB       int64
	TotalStorageBytes int64
	TrashStorageBytes int64
}

type AgeStats struct {
	OlderThan1Year  int64
	OlderThan2Years int64
}

type SenderStats struct {
	UniqueCount int64
}

type CohortStats struct {
	Count int64
	SizeBytes int64
}

type CleanupStats struct {
	PerCategory      map[string]CohortStats
	ReadPromotions   CohortStats
	OlderThan1Year   CohortStats
	OlderThan2Years  CohortStats
	LargerThan5MB    CohortStats
	LargerThan10MB   CohortStats
}
