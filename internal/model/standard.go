package model

// BenchmarkStandard is one tier cutoff from the benchmark table. Standards
// sharing (Gender, AgeGroup, EventKey) form an ordered ladder from
// most-elite to least-elite by DisplayRank ascending.
type BenchmarkStandard struct {
	ID            int64   `json:"id"`
	Gender        Gender  `json:"gender"`
	AgeGroup      string  `json:"age_group"`
	EventKey      string  `json:"event_key"`
	Tier          string  `json:"tier"`
	CutoffSeconds float64 `json:"cutoff_seconds"`
	ColorCode     string  `json:"color_code,omitempty"`
	DisplayRank   int     `json:"display_rank"`
}

// ClassificationResult is the derived outcome of checking an athlete time
// against a benchmark ladder. It is recomputed on demand, never a source of
// truth.
type ClassificationResult struct {
	LinkID       int64   `json:"link_id,omitempty"`
	SourceID     int64   `json:"source_id,omitempty"`
	EventKey     string  `json:"event_key"`
	AthleteTime  float64 `json:"athlete_time"`
	Tier         string  `json:"tier"`
	ColorCode    string  `json:"color_code,omitempty"`
	Cutoff       float64 `json:"cutoff_seconds"`
	Differential float64 `json:"time_differential"` // athlete time minus cutoff; negative is faster
}
