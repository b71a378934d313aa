package model

import "time"

// Account is a tracked external social account.
type Account struct {
	ID          string
	ExternalRef string
	Name        string
	CreatedAt   time.Time
}

// Post is a tracked external post belonging to an account.
type Post struct {
	ID          string
	AccountID   string
	ExternalRef string
	Title       string
	PublishedAt time.Time
}

// AccountStats is a point-in-time metric snapshot for an account.
type AccountStats struct {
	AccountID  string
	Followers  int64
	Views      int64
	CollectedAt time.Time
}

// PostStats is a point-in-time metric snapshot for a post.
type PostStats struct {
	PostID       string
	Views        int64
	Likes        int64
	CommentCount int64
	CollectedAt  time.Time
}

// Comment is a collected comment on a post. ExternalID is unique per post
// and anchors incremental collection: a stored ExternalID means everything
// older was already captured.
type Comment struct {
	ID         int64
	PostID     string
	ExternalID string
	AuthorRef  string
	Content    string
	LikeCount  int
	PublishedAt time.Time
	// Sentiment stays empty until the analyzer labels it; set at most once.
	Sentiment string
	CreatedAt time.Time
}

// Sentiment labels returned by the analyzer.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Keyword is a per-post keyword with its sentiment polarity. The keyword
// set for a post is replaced wholesale on each analysis cycle.
type Keyword struct {
	PostID   string
	Keyword  string
	Polarity string // positive or negative
}

// JobState is the lifecycle state of a named job run.
type JobState string

const (
	JobRunning JobState = "running"
	JobSuccess JobState = "success"
	JobFailed  JobState = "failed"
)

// JobStatus is the latest observed state of a named job.
type JobStatus struct {
	Name      string     `json:"name"`
	State     JobState   `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	LastError string     `json:"last_error,omitempty"`
}
