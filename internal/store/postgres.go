package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/usat-research/talentid-cli/internal/db"
	"github.com/usat-research/talentid-cli/internal/model"
)

// PostgresStore implements Store on pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	upsertSourceSQL = `INSERT INTO source_records
		(first_name, last_name, affiliation, event_key, performance_time, year, gender, hometown, birth_year, raw, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (first_name, last_name, event_key, year) DO UPDATE SET
			affiliation = EXCLUDED.affiliation,
			performance_time = EXCLUDED.performance_time,
			gender = EXCLUDED.gender,
			hometown = EXCLUDED.hometown,
			birth_year = EXCLUDED.birth_year,
			raw = EXCLUDED.raw,
			scraped_at = EXCLUDED.scraped_at
		RETURNING id`

	upsertCandidateSQL = `INSERT INTO candidate_records
		(external_id, name, hometown, birth_year, affiliation, best_times, source_url, raw, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			hometown = EXCLUDED.hometown,
			birth_year = EXCLUDED.birth_year,
			affiliation = EXCLUDED.affiliation,
			best_times = EXCLUDED.best_times,
			source_url = EXCLUDED.source_url,
			raw = EXCLUDED.raw,
			scraped_at = EXCLUDED.scraped_at
		RETURNING id`

	// Reviewer-assigned statuses and annotations survive re-scoring: the
	// status only updates when the existing one is machine-assigned, and
	// reviewer columns are never in the update set.
	upsertLinkSQL = `INSERT INTO match_links
		(source_id, candidate_id, score, name_ratio, hometown_bonus, birth_year_bonus, affiliation_bonus, matched_on, rationale, status, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_id, candidate_id) DO UPDATE SET
			score = EXCLUDED.score,
			name_ratio = EXCLUDED.name_ratio,
			hometown_bonus = EXCLUDED.hometown_bonus,
			birth_year_bonus = EXCLUDED.birth_year_bonus,
			affiliation_bonus = EXCLUDED.affiliation_bonus,
			matched_on = EXCLUDED.matched_on,
			rationale = EXCLUDED.rationale,
			status = CASE WHEN match_links.status IN ('verified', 'rejected')
				THEN match_links.status ELSE EXCLUDED.status END,
			matched_at = EXCLUDED.matched_at
		RETURNING id`

	getCachedPageSQL = `SELECT url, body, title, status_code, strategy, fetched_at, expires_at
		FROM page_cache WHERE url = $1 AND expires_at > now()`

	setCachedPageSQL = `INSERT INTO page_cache (url, body, title, status_code, strategy, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			body = $2, title = $3, status_code = $4, strategy = $5, fetched_at = $6, expires_at = $7`
)

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"upsert_source":    upsertSourceSQL,
	"upsert_candidate": upsertCandidateSQL,
	"upsert_link":      upsertLinkSQL,
	"get_cached_page":  getCachedPageSQL,
	"set_cached_page":  setCachedPageSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; tests inject pgxmock here.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source_records (
	id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	first_name       TEXT NOT NULL,
	last_name        TEXT NOT NULL,
	affiliation      TEXT NOT NULL DEFAULT '',
	event_key        TEXT NOT NULL,
	performance_time DOUBLE PRECISION NOT NULL,
	year             INTEGER NOT NULL,
	gender           TEXT NOT NULL DEFAULT '',
	hometown         TEXT NOT NULL DEFAULT '',
	birth_year       INTEGER,
	raw              JSONB,
	scraped_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (first_name, last_name, event_key, year)
);

CREATE TABLE IF NOT EXISTS candidate_records (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	hometown    TEXT NOT NULL DEFAULT '',
	birth_year  INTEGER,
	affiliation TEXT NOT NULL DEFAULT '',
	best_times  JSONB,
	source_url  TEXT NOT NULL DEFAULT '',
	raw         JSONB,
	scraped_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_links (
	id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	source_id         BIGINT NOT NULL REFERENCES source_records(id),
	candidate_id      BIGINT NOT NULL REFERENCES candidate_records(id),
	score             INTEGER NOT NULL CHECK (score >= 0 AND score <= 100),
	name_ratio        INTEGER NOT NULL DEFAULT 0,
	hometown_bonus    INTEGER NOT NULL DEFAULT 0,
	birth_year_bonus  INTEGER NOT NULL DEFAULT 0,
	affiliation_bonus INTEGER NOT NULL DEFAULT 0,
	matched_on        JSONB,
	rationale         TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	reviewer_notes    TEXT NOT NULL DEFAULT '',
	reviewed_by       TEXT NOT NULL DEFAULT '',
	reviewed_at       TIMESTAMPTZ,
	matched_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, candidate_id)
);

CREATE TABLE IF NOT EXISTS benchmark_standards (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	gender         TEXT NOT NULL,
	age_group      TEXT NOT NULL DEFAULT '',
	event_key      TEXT NOT NULL,
	tier           TEXT NOT NULL,
	cutoff_seconds DOUBLE PRECISION NOT NULL,
	color_code     TEXT NOT NULL DEFAULT '',
	display_rank   INTEGER NOT NULL,
	UNIQUE (gender, age_group, event_key, tier)
);

CREATE TABLE IF NOT EXISTS page_cache (
	url         TEXT PRIMARY KEY,
	body        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	strategy    TEXT NOT NULL DEFAULT '',
	fetched_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_records_event ON source_records(event_key);
CREATE INDEX IF NOT EXISTS idx_match_links_status ON match_links(status);
CREATE INDEX IF NOT EXISTS idx_match_links_source ON match_links(source_id);
CREATE INDEX IF NOT EXISTS idx_benchmarks_ladder ON benchmark_standards(gender, age_group, event_key, display_rank);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires ON page_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) UpsertSource(ctx context.Context, rec model.SourceRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertSourceSQL,
		rec.FirstName, rec.LastName, rec.Affiliation, rec.EventKey, rec.PerformanceTime,
		rec.Year, string(rec.Gender), rec.Hometown, rec.BirthYear, rec.Raw, rec.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert source %s %s", rec.FirstName, rec.LastName)
	}
	return id, nil
}

func (s *PostgresStore) UpsertCandidate(ctx context.Context, rec model.CandidateRecord) (int64, error) {
	if !rec.Linkable() {
		return 0, eris.New("postgres: candidate has no external id")
	}
	timesJSON, err := json.Marshal(rec.BestTimes)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal best times")
	}

	var id int64
	err = s.pool.QueryRow(ctx, upsertCandidateSQL,
		rec.ExternalID, rec.Name, rec.Hometown, rec.BirthYear, rec.Affiliation,
		timesJSON, rec.SourceURL, rec.Raw, rec.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert candidate %s", rec.ExternalID)
	}
	return id, nil
}

const sourceColumns = `id, first_name, last_name, affiliation, event_key, performance_time, year, gender, hometown, birth_year, raw, scraped_at`

func (s *PostgresStore) ListSources(ctx context.Context, eventKey string, limit int) ([]model.SourceRecord, error) {
	query := `SELECT ` + sourceColumns + ` FROM source_records WHERE true`
	args := []any{}
	argIdx := 1

	if eventKey != "" {
		query += fmt.Sprintf(` AND event_key = $%d`, argIdx)
		args = append(args, eventKey)
		argIdx++
	}
	query += ` ORDER BY performance_time ASC`
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()
	return scanSources(rows)
}

func (s *PostgresStore) UnmatchedSources(ctx context.Context, limit int) ([]model.SourceRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM source_records sr
		 WHERE NOT EXISTS (SELECT 1 FROM match_links ml WHERE ml.source_id = sr.id)
		 ORDER BY sr.id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unmatched sources")
	}
	defer rows.Close()
	return scanSources(rows)
}

func scanSources(rows pgx.Rows) ([]model.SourceRecord, error) {
	var out []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		var gender string
		if err := rows.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Affiliation, &r.EventKey,
			&r.PerformanceTime, &r.Year, &gender, &r.Hometown, &r.BirthYear, &r.Raw, &r.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		r.Gender = model.Gender(gender)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sources")
}

func (s *PostgresStore) UpsertLink(ctx context.Context, link model.MatchLink) (int64, error) {
	matchedOn, err := json.Marshal(link.MatchedOn)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal matched_on")
	}
	if link.MatchedAt.IsZero() {
		link.MatchedAt = time.Now().UTC()
	}

	var id int64
	err = s.pool.QueryRow(ctx, upsertLinkSQL,
		link.SourceID, link.CandidateID, link.Score, link.NameRatio,
		link.HometownBonus, link.BirthYearBonus, link.AffiliationBonus,
		matchedOn, link.Rationale, string(link.Status), link.MatchedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert link source=%d candidate=%d", link.SourceID, link.CandidateID)
	}
	return id, nil
}

func (s *PostgresStore) ListLinks(ctx context.Context, filter LinkFilter) ([]LinkDetail, error) {
	query := `SELECT
		ml.id, ml.source_id, ml.candidate_id, ml.score, ml.name_ratio,
		ml.hometown_bonus, ml.birth_year_bonus, ml.affiliation_bonus,
		ml.matched_on, ml.rationale, ml.status, ml.reviewer_notes, ml.reviewed_by, ml.reviewed_at, ml.matched_at,
		sr.id, sr.first_name, sr.last_name, sr.affiliation, sr.event_key, sr.performance_time, sr.year, sr.gender, sr.hometown, sr.birth_year,
		cr.id, cr.external_id, cr.name, cr.hometown, cr.birth_year, cr.affiliation, cr.best_times, cr.source_url
		FROM match_links ml
		JOIN source_records sr ON sr.id = ml.source_id
		JOIN candidate_records cr ON cr.id = ml.candidate_id
		WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND ml.status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.EventKey != "" {
		query += fmt.Sprintf(` AND sr.event_key = $%d`, argIdx)
		args = append(args, filter.EventKey)
		argIdx++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND ml.score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	query += ` ORDER BY ml.score DESC, ml.id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list links")
	}
	defer rows.Close()

	var out []LinkDetail
	for rows.Next() {
		var d LinkDetail
		var matchedOn, bestTimes []byte
		var linkStatus, srcGender string
		if err := rows.Scan(
			&d.Link.ID, &d.Link.SourceID, &d.Link.CandidateID, &d.Link.Score, &d.Link.NameRatio,
			&d.Link.HometownBonus, &d.Link.BirthYearBonus, &d.Link.AffiliationBonus,
			&matchedOn, &d.Link.Rationale, &linkStatus, &d.Link.ReviewerNotes, &d.Link.ReviewedBy, &d.Link.ReviewedAt, &d.Link.MatchedAt,
			&d.Source.ID, &d.Source.FirstName, &d.Source.LastName, &d.Source.Affiliation, &d.Source.EventKey,
			&d.Source.PerformanceTime, &d.Source.Year, &srcGender, &d.Source.Hometown, &d.Source.BirthYear,
			&d.Candidate.ID, &d.Candidate.ExternalID, &d.Candidate.Name, &d.Candidate.Hometown,
			&d.Candidate.BirthYear, &d.Candidate.Affiliation, &bestTimes, &d.Candidate.SourceURL,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link detail")
		}
		d.Link.Status = model.VerificationStatus(linkStatus)
		d.Source.Gender = model.Gender(srcGender)
		if len(matchedOn) > 0 {
			if err := json.Unmarshal(matchedOn, &d.Link.MatchedOn); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal matched_on")
			}
		}
		if len(bestTimes) > 0 {
			if err := json.Unmarshal(bestTimes, &d.Candidate.BestTimes); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal best_times")
			}
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate links")
}

func (s *PostgresStore) SetLinkReview(ctx context.Context, linkID int64, status model.VerificationStatus, notes, reviewer string) error {
	if !status.HumanAssigned() {
		return eris.Errorf("postgres: review status must be verified or rejected, got %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE match_links SET status = $1, reviewer_notes = $2, reviewed_by = $3, reviewed_at = $4 WHERE id = $5`,
		string(status), notes, reviewer, time.Now().UTC(), linkID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: review link %d", linkID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "link %d", linkID)
	}
	return nil
}

func (s *PostgresStore) CountLinksByStatus(ctx context.Context) (map[model.VerificationStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM match_links GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count links")
	}
	defer rows.Close()

	counts := make(map[model.VerificationStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.VerificationStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate counts")
}

// ReplaceBenchmarks swaps the whole benchmark table inside one transaction,
// loading rows with the COPY protocol.
func (s *PostgresStore) ReplaceBenchmarks(ctx context.Context, standards []model.BenchmarkStandard) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin benchmark reload")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM benchmark_standards`); err != nil {
		return eris.Wrap(err, "postgres: clear benchmarks")
	}

	rows := make([][]any, 0, len(standards))
	for _, st := range standards {
		rows = append(rows, []any{
			string(st.Gender), st.AgeGroup, st.EventKey, st.Tier,
			st.CutoffSeconds, st.ColorCode, st.DisplayRank,
		})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"benchmark_standards"},
		[]string{"gender", "age_group", "event_key", "tier", "cutoff_seconds", "color_code", "display_rank"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return eris.Wrap(err, "postgres: copy benchmarks")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit benchmark reload")
}

func (s *PostgresStore) GetBenchmarks(ctx context.Context, gender model.Gender, ageGroup, eventKey string) ([]model.BenchmarkStandard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, gender, age_group, event_key, tier, cutoff_seconds, color_code, display_rank
		 FROM benchmark_standards
		 WHERE gender = $1 AND age_group = $2 AND event_key = $3
		 ORDER BY display_rank ASC`,
		string(gender), ageGroup, eventKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get benchmarks")
	}
	defer rows.Close()

	var out []model.BenchmarkStandard
	for rows.Next() {
		var st model.BenchmarkStandard
		var g string
		if err := rows.Scan(&st.ID, &g, &st.AgeGroup, &st.EventKey, &st.Tier,
			&st.CutoffSeconds, &st.ColorCode, &st.DisplayRank); err != nil {
			return nil, eris.Wrap(err, "postgres: scan benchmark")
		}
		st.Gender = model.Gender(g)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate benchmarks")
}

func (s *PostgresStore) GetCachedPage(ctx context.Context, url string) (*CachedPage, error) {
	var p CachedPage
	err := s.pool.QueryRow(ctx, getCachedPageSQL, url).Scan(
		&p.URL, &p.Body, &p.Title, &p.StatusCode, &p.Strategy, &p.FetchedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached page")
	}
	return &p, nil
}

func (s *PostgresStore) SetCachedPage(ctx context.Context, page CachedPage) error {
	_, err := s.pool.Exec(ctx, setCachedPageSQL,
		page.URL, page.Body, page.Title, page.StatusCode, page.Strategy, page.FetchedAt, page.ExpiresAt)
	return eris.Wrap(err, "postgres: set cached page")
}

func (s *PostgresStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM page_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired pages")
	}
	return int(tag.RowsAffected()), nil
}
