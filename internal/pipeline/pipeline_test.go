package pipeline

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/fetch"
	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/store"
)

const testSearchURL = "https://swim.test/search?q=%s"

func testPipelineConfig() *config.Config {
	return &config.Config{
		Match: config.MatchConfig{
			NameWeight:             0.9,
			RejectThreshold:        75,
			FuzzyThreshold:         80,
			HometownExactBonus:     20,
			HometownFuzzyBonus:     10,
			BirthYearExactBonus:    15,
			BirthYearOffByOneBonus: 5,
			AffiliationFuzzyBonus:  10,
			AutoVerifyThreshold:    90,
			ManualReviewThreshold:  70,
		},
		Pipeline: config.PipelineConfig{Workers: 2, UpsertRetries: 1},
		Extract:  config.ExtractConfig{MaxPerEvent: 500, DualTimeSide: "first"},
	}
}

// stubFetcher serves canned bodies by exact URL and records every fetch.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, eris.Errorf("stub: no page for %s", url)
	}
	return &fetch.Result{
		URL:        url,
		Body:       body,
		StatusCode: 200,
		Strategy:   "stub",
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func newTestPipeline(t *testing.T, f *stubFetcher) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	p := New(testPipelineConfig(), st, f).WithSearchURL(testSearchURL).Year(2025)
	return p, st
}

const resultsPage = `
<div class="results-section">
  <div class="custom-table-title"><h3>5000 Meters (Men)</h3></div>
  <div class="performance-list">
    <div class="performance-list-row">
      <div class="col-place">1</div>
      <div class="col-athlete"><a href="/athletes/1">SMITH, John</a></div>
      <div class="col-team"><a href="/teams/9">Oregon</a></div>
      <div class="col-narrow" data-label="Time">13:45.12</div>
    </div>
    <div class="performance-list-row">
      <div class="col-place">2</div>
      <div class="col-athlete">Jane Doe</div>
      <div class="col-team">Stanford</div>
      <div class="col-narrow" data-label="Time">13:59.80</div>
    </div>
  </div>
</div>`

const searchPage = `
<div class="search-results">
  <a href="/swimmer/111/">Barry Nobody</a>
  <a href="/swimmer/123456/">John Smith</a>
</div>`

const matchingProfile = `
<html><head>
<script type="application/ld+json">
{"@type":"Person","name":"John Smith","birthDate":"2006-03-14"}
</script>
</head><body>
<h1>John Smith</h1>
<table class="times-table">
  <tr><th>Event</th><th>Time</th></tr>
  <tr><td>200 Free LCM</td><td>1:52.40</td></tr>
</table>
</body></html>`

const unrelatedProfile = `
<html><body><h1>Barry Nobody</h1></body></html>`

func TestScrapeSources(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://track.test/results/5000m": resultsPage,
	}}
	p, st := newTestPipeline(t, f)

	counts := p.ScrapeSources(context.Background(), []string{"https://track.test/results/5000m"})

	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 2, counts.Extracted)
	assert.Equal(t, 0, counts.Errors)

	sources, err := st.ListSources(context.Background(), "5000m", 10)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "john", sources[0].FirstName)
	assert.Equal(t, "smith", sources[0].LastName)
	assert.Equal(t, 2025, sources[0].Year)
	assert.InDelta(t, 825.12, sources[0].PerformanceTime, 0.001)
}

func TestScrapeSourcesCountsPageFailures(t *testing.T) {
	f := &stubFetcher{
		pages: map[string]string{"https://track.test/ok": resultsPage},
		fail:  map[string]error{"https://track.test/down": eris.New("boom")},
	}
	p, _ := newTestPipeline(t, f)

	counts := p.ScrapeSources(context.Background(), []string{
		"https://track.test/ok",
		"https://track.test/down",
	})

	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 2, counts.Extracted)
	assert.Equal(t, 1, counts.Errors, "a dead page must not abort the batch")
}

func TestScrapeSourcesSkipsUnreadablePage(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://track.test/empty": `<html><body><p>Please verify you are human.</p></body></html>`,
	}}
	p, _ := newTestPipeline(t, f)

	counts := p.ScrapeSources(context.Background(), []string{"https://track.test/empty"})
	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 0, counts.Extracted)
	assert.Equal(t, 1, counts.Skipped)
}

func seedSource(t *testing.T, st store.Store) int64 {
	t.Helper()
	id, err := st.UpsertSource(context.Background(), model.SourceRecord{
		FirstName:       "john",
		LastName:        "smith",
		Affiliation:     "Oregon",
		EventKey:        "5000m",
		PerformanceTime: 825.12,
		Year:            2025,
		Gender:          model.GenderMale,
	})
	require.NoError(t, err)
	return id
}

func TestMatchSourcesAutoVerifies(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://swim.test/search?q=john+smith": searchPage,
		"https://swim.test/swimmer/111/":        unrelatedProfile,
		"https://swim.test/swimmer/123456/":     matchingProfile,
	}}
	p, st := newTestPipeline(t, f)
	sourceID := seedSource(t, st)

	counts := p.MatchSources(context.Background())

	assert.Equal(t, 1, counts.Scored)
	assert.Equal(t, 1, counts.AutoVerified)
	assert.Equal(t, 0, counts.Errors)

	links, err := st.ListLinks(context.Background(), store.LinkFilter{})
	require.NoError(t, err)
	require.Len(t, links, 1)

	link := links[0].Link
	assert.Equal(t, sourceID, link.SourceID)
	assert.Equal(t, model.StatusAutoVerified, link.Status)
	assert.Equal(t, 100, link.NameRatio)
	assert.Equal(t, 90, link.Score, "exact name with no bonus fields lands at the weighted ratio")
	assert.Contains(t, link.Rationale, "name_ratio=100")
	assert.Contains(t, link.Rationale, "total_score=90")
	assert.Equal(t, "123456", links[0].Candidate.ExternalID, "the lookalike must lose to the real match")
}

func TestMatchSourcesNoCandidates(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://swim.test/search?q=john+smith": `<div class="search-results"><p>No results.</p></div>`,
	}}
	p, st := newTestPipeline(t, f)
	seedSource(t, st)

	counts := p.MatchSources(context.Background())
	assert.Equal(t, 1, counts.NoMatch)
	assert.Equal(t, 0, counts.Scored)

	links, err := st.ListLinks(context.Background(), store.LinkFilter{})
	require.NoError(t, err)
	assert.Empty(t, links, "no-candidate sources get no link and stay eligible for the next run")
}

func TestMatchSourcesSkipsOnSearchFailure(t *testing.T) {
	f := &stubFetcher{fail: map[string]error{
		"https://swim.test/search?q=john+smith": eris.New("blocked"),
	}}
	p, st := newTestPipeline(t, f)
	seedSource(t, st)

	counts := p.MatchSources(context.Background())
	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 1, counts.Errors)
}

func TestRunFullBatch(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://track.test/results/5000m":      resultsPage,
		"https://swim.test/search?q=john+smith": searchPage,
		"https://swim.test/search?q=jane+doe":   `<div></div>`,
		"https://swim.test/swimmer/111/":        unrelatedProfile,
		"https://swim.test/swimmer/123456/":     matchingProfile,
	}}
	p, _ := newTestPipeline(t, f)

	report, err := p.Run(context.Background(), []string{"https://track.test/results/5000m"})
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Counts.Extracted)
	assert.Equal(t, 1, report.Counts.AutoVerified)
	assert.Equal(t, 1, report.Counts.NoMatch, "jane doe's empty search page counts as no match")
	assert.False(t, report.StartedAt.IsZero())
}

func TestExportManualReview(t *testing.T) {
	p, st := newTestPipeline(t, &stubFetcher{})
	ctx := context.Background()

	sourceID := seedSource(t, st)
	candID, err := st.UpsertCandidate(ctx, model.CandidateRecord{
		ExternalID: "123456",
		Name:       "john smith",
		SourceURL:  "https://www.swimcloud.com/swimmer/123456/",
	})
	require.NoError(t, err)
	_, err = st.UpsertLink(ctx, model.MatchLink{
		SourceID:    sourceID,
		CandidateID: candID,
		Score:       78,
		NameRatio:   87,
		Rationale:   "name_ratio=87; total_score=78",
		Status:      model.StatusManualReview,
		MatchedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := p.ExportManualReview(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"runner_id,first_name,last_name,swimcloud_url,match_score,verification_status,match_explanation",
		lines[0])
	assert.Contains(t, lines[1], ",john,smith,https://www.swimcloud.com/swimmer/123456/,78,manual_review,")
	assert.Contains(t, lines[1], "name_ratio=87; total_score=78")
}

func TestExportManualReviewEmpty(t *testing.T) {
	p, _ := newTestPipeline(t, &stubFetcher{})

	var buf bytes.Buffer
	n, err := p.ExportManualReview(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t,
		"runner_id,first_name,last_name,swimcloud_url,match_score,verification_status,match_explanation",
		strings.TrimSpace(buf.String()), "header is written even with nothing to review")
}
