// Package crawl defines core types shared across subsystems.
package crawl

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Crawl type values recorded in job metadata.
const (
	CrawlTypeDiscover = "discover"
	CrawlTypeArticle  = "article"
	CrawlTypeSource   = "source"
)

// Default job knobs.
const (
	DefaultPriority   = 5
	SitemapPriority   = 10
	DefaultMaxRetries = 3
)

// Job represents one unit of crawl work: fetch/process this URL for this source.
type Job struct {
	ID           string            `json:"id"`
	SourceID     string            `json:"source_id"`
	URL          string            `json:"url"`
	Status       JobStatus         `json:"status"`
	Priority     int               `json:"priority"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	DispatchedAt *time.Time        `json:"dispatched_at,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// CanRetry reports whether the job still has retry budget left.
func (j Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IsTerminal reports whether the job reached a final state.
func (j Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CrawlType returns the job's crawl type, defaulting to article.
func (j Job) CrawlType() string {
	if j.Metadata != nil {
		if t := j.Metadata[MetaCrawlType]; t != "" {
			return t
		}
	}
	return CrawlTypeArticle
}

// Metadata keys recorded on jobs for discovery provenance.
const (
	MetaCrawlType      = "crawl_type"
	MetaDiscoveredFrom = "discovered_from"
	MetaSitemapURL     = "sitemap_url"
	MetaArticleID      = "article_id"
)

// Source is a registered origin from which content is crawled.
// It is owned by an external collaborator and consumed read-only here.
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	URL       string `json:"url"`
	Active    bool   `json:"active"`
	Frequency string `json:"frequency"`
}

// Article is the output of a successful article fetch.
type Article struct {
	ID          string            `json:"id"`
	SourceID    string            `json:"source_id"`
	JobID       string            `json:"job_id,omitempty"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Excerpt     string            `json:"excerpt,omitempty"`
	ContentHash string            `json:"content_hash"`
	WordCount   int               `json:"word_count"`
	Language    string            `json:"language,omitempty"`
	IsDuplicate bool              `json:"is_duplicate"`
	FetchedAt   time.Time         `json:"fetched_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Fingerprint records the dedup hash of an article's normalized content.
// SimilarityScore and SimilarHashes are reserved for near-duplicate linkage.
type Fingerprint struct {
	Hash            string   `json:"hash"`
	HashType        string   `json:"hash_type"`
	SimilarityScore float64  `json:"similarity_score,omitempty"`
	SimilarHashes   []string `json:"similar_hashes,omitempty"`
}

// HashTypeSHA256Normalized is the guaranteed exact-dedup hash type.
const HashTypeSHA256Normalized = "sha256-normalized"

// JobStats summarizes the job table for health reporting.
type JobStats struct {
	Pending              int     `json:"pending"`
	Running              int     `json:"running"`
	Completed            int     `json:"completed"`
	Failed               int     `json:"failed"`
	Stuck                int     `json:"stuck"`
	SuccessRate          float64 `json:"success_rate"`
	AvgCompletionSeconds float64 `json:"avg_completion_seconds"`
}

// Result reports the outcome of executing a single job.
type Result struct {
	JobID           string
	ArticlesCreated int
	URLsDiscovered  int
	Duplicate       bool
	Err             error
}

// QueueItem wraps a claimed job ready for execution on a lane.
type QueueItem struct {
	Job     Job
	Lane    string
	Attempt int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}
