package model

import (
	"encoding/json"
	"time"
)

// Gender is the single-letter gender code used by both scraped datasets.
type Gender string

const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderUnknown Gender = ""
)

// SourceRecord is an athlete performance entry from the track dataset.
// Names are case-folded and whitespace-normalized at creation; the pair
// (FirstName, LastName) is the natural identity key for upserts.
type SourceRecord struct {
	ID              int64           `json:"id"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Affiliation     string          `json:"affiliation"`
	EventKey        string          `json:"event_key"`
	PerformanceTime float64         `json:"performance_time"` // canonical seconds
	Year            int             `json:"year"`
	Gender          Gender          `json:"gender,omitempty"`
	Hometown        string          `json:"hometown,omitempty"`
	BirthYear       *int            `json:"birth_year,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
	ScrapedAt       time.Time       `json:"scraped_at"`
}

// FullName returns the normalized "first last" form used for matching.
func (r SourceRecord) FullName() string {
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// CandidateRecord is an athlete profile from the swim dataset evaluated as a
// possible identity match. ExternalID is derived from the profile URL path
// and is the natural key for upserts; a record without one is unlinkable and
// only held transiently.
type CandidateRecord struct {
	ID          int64              `json:"id"`
	ExternalID  string             `json:"external_id,omitempty"`
	Name        string             `json:"name"`
	Hometown    string             `json:"hometown,omitempty"`
	BirthYear   *int               `json:"birth_year,omitempty"`
	Affiliation string             `json:"affiliation,omitempty"`
	BestTimes   map[string]float64 `json:"best_times,omitempty"` // event key -> canonical seconds
	SourceURL   string             `json:"source_url"`
	Raw         json.RawMessage    `json:"raw,omitempty"`
	ScrapedAt   time.Time          `json:"scraped_at"`
}

// Linkable reports whether the candidate carries a durable identity.
func (c CandidateRecord) Linkable() bool {
	return c.ExternalID != ""
}
