package model

// RecordState is the per-source-record position in the pipeline state machine.
type RecordState string

const (
	StatePending   RecordState = "pending"
	StateFetching  RecordState = "fetching"
	StateExtracted RecordState = "extracted"
	StateScored    RecordState = "scored"
	StatePersisted RecordState = "persisted"
	StateSkipped   RecordState = "skipped"
)

// BatchCounts summarizes a pipeline run. A batch always completes and
// reports counts; individual record failures increment Skipped or Errors
// instead of aborting.
type BatchCounts struct {
	Fetched      int `json:"fetched"`
	Extracted    int `json:"extracted"`
	Scored       int `json:"scored"`
	AutoVerified int `json:"auto_verified"`
	ManualReview int `json:"manual_review"`
	NoMatch      int `json:"no_match"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

// Add folds another set of counts into the receiver.
func (c *BatchCounts) Add(o BatchCounts) {
	c.Fetched += o.Fetched
	c.Extracted += o.Extracted
	c.Scored += o.Scored
	c.AutoVerified += o.AutoVerified
	c.ManualReview += o.ManualReview
	c.NoMatch += o.NoMatch
	c.Skipped += o.Skipped
	c.Errors += o.Errors
}
