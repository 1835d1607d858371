package database

// Queue item states. An event row is always in exactly one of these.
const (
	StatePending   = "pending"
	StatePublished = "published"
	StateRejected  = "rejected"
	StateArchived  = "archived"
)

// Location confidence levels assigned by the resolver.
const (
	ConfidenceHigh    = "high"
	ConfidenceMedium  = "medium"
	ConfidenceLow     = "low"
	ConfidenceUnknown = "unknown"
)

// Event is a canonical event record. The ID is a deterministic hash of
// (normalized title, start time rounded to the minute, source domain),
// so re-scraping unchanged content never creates a second row.
type Event struct {
	ID                 string
	Title              string
	Description        string
	LocationName       string
	Lat                *float64
	Lon                *float64
	LocationConfidence string
	NeedsReview        bool
	StartTime          *string // RFC3339
	EndTime            *string // RFC3339
	URL                string
	Source             string
	Category           string
	CategoryConfidence float64
	CategoryMethod     string // "ai", "keyword" or "default"
	State              string
	Notes              string
	CreatedAt          *string
	UpdatedAt          *string
}

// HistoryEntry records a single state transition of an event.
type HistoryEntry struct {
	ID        int64
	EventID   string
	Timestamp string
	Actor     string // "scraper", "editor:<id>" or "system:archiver"
	FromState string
	ToState   string
	Reason    *string
}

// Location is a verified-locations/organizers store record. Unverified
// rows are resolver candidates awaiting editorial promotion.
type Location struct {
	ID        int64
	Name      string
	Aliases   []string
	Lat       *float64
	Lon       *float64
	Kind      string // "location" or "organizer"
	Verified  bool
	Notes     string
	CreatedAt *string
	UpdatedAt *string
}

// RunReport holds the persisted summary of one scrape invocation.
type RunReport struct {
	ID                int64
	RanAt             *string
	SourcesAttempted  int
	SourcesSucceeded  int
	EventsFound       int
	EventsNew         int
	Duplicates        int
	SourceErrors      map[string]string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalEvents       int
	Pending           int
	Published         int
	Rejected          int
	Archived          int
	NeedsReview       int
	TotalLocations    int
	VerifiedLocations int
	Runs              int
}
