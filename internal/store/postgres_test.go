package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usat-research/talentid-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_UpsertSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO source_records`).
		WithArgs("john", "smith", "Oregon", "5000m", 825.12, 2025, "M", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.UpsertSource(context.Background(), model.SourceRecord{
		FirstName:       "john",
		LastName:        "smith",
		Affiliation:     "Oregon",
		EventKey:        "5000m",
		PerformanceTime: 825.12,
		Year:            2025,
		Gender:          model.GenderMale,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCandidateRequiresExternalID(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.UpsertCandidate(context.Background(), model.CandidateRecord{Name: "john smith"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external id")
}

func TestPostgresStore_UpsertLinkPreservesReviewerStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// The statement itself carries the preservation rule; what matters here
	// is that re-scoring goes through it rather than a blind update.
	mock.ExpectQuery(`ON CONFLICT \(source_id, candidate_id\) DO UPDATE SET(?s:.*)CASE WHEN match_links\.status IN \('verified', 'rejected'\)`).
		WithArgs(int64(1), int64(2), 95, 100, 0, 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), "auto_verified", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.UpsertLink(context.Background(), model.MatchLink{
		SourceID:    1,
		CandidateID: 2,
		Score:       95,
		NameRatio:   100,
		Status:      model.StatusAutoVerified,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetLinkReviewRejectsMachineStatus(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.SetLinkReview(context.Background(), 1, model.StatusAutoVerified, "", "coach")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verified or rejected")
}

func TestPostgresStore_SetLinkReviewNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE match_links SET status`).
		WithArgs("verified", "confirmed by coach", "coach", pgxmock.AnyArg(), int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetLinkReview(context.Background(), 99, model.StatusVerified, "confirmed by coach", "coach")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedPage_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT url, body, title, status_code, strategy, fetched_at, expires_at`).
		WithArgs("https://unknown.example").
		WillReturnError(pgx.ErrNoRows)

	page, err := s.GetCachedPage(context.Background(), "https://unknown.example")
	require.NoError(t, err)
	assert.Nil(t, page)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceBenchmarks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM benchmark_standards`).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(
		[]string{"benchmark_standards"},
		[]string{"gender", "age_group", "event_key", "tier", "cutoff_seconds", "color_code", "display_rank"},
	).WillReturnResult(2)
	mock.ExpectCommit()

	err := s.ReplaceBenchmarks(context.Background(), []model.BenchmarkStandard{
		{Gender: model.GenderMale, EventKey: "5000m", Tier: "World Leading", CutoffSeconds: 780, DisplayRank: 1},
		{Gender: model.GenderMale, EventKey: "5000m", Tier: "Development Potential", CutoffSeconds: 900, DisplayRank: 4},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountLinksByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM match_links GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("auto_verified", 12).
			AddRow("manual_review", 5))

	counts, err := s.CountLinksByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, counts[model.StatusAutoVerified])
	assert.Equal(t, 5, counts[model.StatusManualReview])
	assert.NoError(t, mock.ExpectationsWereMet())
}
