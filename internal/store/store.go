// Package store persists athlete records, match links, and benchmark
// standards. Two implementations share one interface: postgres for the
// hosted deployment, sqlite for single-operator runs and tests.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/usat-research/talentid-cli/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// LinkFilter selects match links for review and export.
type LinkFilter struct {
	Status   model.VerificationStatus `json:"status,omitempty"`
	EventKey string                   `json:"event_key,omitempty"`
	MinScore int                      `json:"min_score,omitempty"`
	Limit    int                      `json:"limit,omitempty"`
	Offset   int                      `json:"offset,omitempty"`
}

// LinkDetail is a match link joined with both sides of the pairing, the
// shape review tooling consumes.
type LinkDetail struct {
	Link      model.MatchLink       `json:"link"`
	Source    model.SourceRecord    `json:"source"`
	Candidate model.CandidateRecord `json:"candidate"`
}

// CachedPage is a fetched page held for reuse inside its TTL.
type CachedPage struct {
	URL        string    `json:"url"`
	Body       string    `json:"body"`
	Title      string    `json:"title"`
	StatusCode int       `json:"status_code"`
	Strategy   string    `json:"strategy"`
	FetchedAt  time.Time `json:"fetched_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store is the persistence surface for the pipeline.
//
// Upserts are idempotent on each record's natural key: source records on
// (first name, last name, event, year), candidates on external ID, links on
// (source, candidate). UpsertLink must never overwrite reviewer-assigned
// statuses or notes.
type Store interface {
	// Records
	UpsertSource(ctx context.Context, rec model.SourceRecord) (int64, error)
	UpsertCandidate(ctx context.Context, rec model.CandidateRecord) (int64, error)
	ListSources(ctx context.Context, eventKey string, limit int) ([]model.SourceRecord, error)
	UnmatchedSources(ctx context.Context, limit int) ([]model.SourceRecord, error)

	// Links
	UpsertLink(ctx context.Context, link model.MatchLink) (int64, error)
	ListLinks(ctx context.Context, filter LinkFilter) ([]LinkDetail, error)
	SetLinkReview(ctx context.Context, linkID int64, status model.VerificationStatus, notes, reviewer string) error
	CountLinksByStatus(ctx context.Context) (map[model.VerificationStatus]int, error)

	// Benchmarks
	ReplaceBenchmarks(ctx context.Context, standards []model.BenchmarkStandard) error
	GetBenchmarks(ctx context.Context, gender model.Gender, ageGroup, eventKey string) ([]model.BenchmarkStandard, error)

	// Page cache
	GetCachedPage(ctx context.Context, url string) (*CachedPage, error)
	SetCachedPage(ctx context.Context, page CachedPage) error
	DeleteExpiredPages(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
