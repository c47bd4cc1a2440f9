package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/usat-research/talentid-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Use ":memory:" for ephemeral stores.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS source_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name       TEXT NOT NULL,
	last_name        TEXT NOT NULL,
	affiliation      TEXT NOT NULL DEFAULT '',
	event_key        TEXT NOT NULL,
	performance_time REAL NOT NULL,
	year             INTEGER NOT NULL,
	gender           TEXT NOT NULL DEFAULT '',
	hometown         TEXT NOT NULL DEFAULT '',
	birth_year       INTEGER,
	raw              TEXT,
	scraped_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (first_name, last_name, event_key, year)
);

CREATE TABLE IF NOT EXISTS candidate_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	hometown    TEXT NOT NULL DEFAULT '',
	birth_year  INTEGER,
	affiliation TEXT NOT NULL DEFAULT '',
	best_times  TEXT,
	source_url  TEXT NOT NULL DEFAULT '',
	raw         TEXT,
	scraped_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS match_links (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id         INTEGER NOT NULL REFERENCES source_records(id),
	candidate_id      INTEGER NOT NULL REFERENCES candidate_records(id),
	score             INTEGER NOT NULL CHECK (score >= 0 AND score <= 100),
	name_ratio        INTEGER NOT NULL DEFAULT 0,
	hometown_bonus    INTEGER NOT NULL DEFAULT 0,
	birth_year_bonus  INTEGER NOT NULL DEFAULT 0,
	affiliation_bonus INTEGER NOT NULL DEFAULT 0,
	matched_on        TEXT,
	rationale         TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	reviewer_notes    TEXT NOT NULL DEFAULT '',
	reviewed_by       TEXT NOT NULL DEFAULT '',
	reviewed_at       DATETIME,
	matched_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source_id, candidate_id)
);

CREATE TABLE IF NOT EXISTS benchmark_standards (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	gender         TEXT NOT NULL,
	age_group      TEXT NOT NULL DEFAULT '',
	event_key      TEXT NOT NULL,
	tier           TEXT NOT NULL,
	cutoff_seconds REAL NOT NULL,
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
	fetched_at  DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_records_event ON source_records(event_key);
CREATE INDEX IF NOT EXISTS idx_match_links_status ON match_links(status);
CREATE INDEX IF NOT EXISTS idx_match_links_source ON match_links(source_id);
CREATE INDEX IF NOT EXISTS idx_benchmarks_ladder ON benchmark_standards(gender, age_group, event_key, display_rank);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires ON page_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, rec model.SourceRecord) (int64, error) {
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO source_records
		 (first_name, last_name, affiliation, event_key, performance_time, year, gender, hometown, birth_year, raw, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (first_name, last_name, event_key, year) DO UPDATE SET
			affiliation = excluded.affiliation,
			performance_time = excluded.performance_time,
			gender = excluded.gender,
			hometown = excluded.hometown,
			birth_year = excluded.birth_year,
			raw = excluded.raw,
			scraped_at = excluded.scraped_at
		 RETURNING id`,
		rec.FirstName, rec.LastName, rec.Affiliation, rec.EventKey, rec.PerformanceTime,
		rec.Year, string(rec.Gender), rec.Hometown, rec.BirthYear, nullableJSON(rec.Raw), rec.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert source %s %s", rec.FirstName, rec.LastName)
	}
	return id, nil
}

func (s *SQLiteStore) UpsertCandidate(ctx context.Context, rec model.CandidateRecord) (int64, error) {
	if !rec.Linkable() {
		return 0, eris.New("sqlite: candidate has no external id")
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}
	timesJSON, err := json.Marshal(rec.BestTimes)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal best times")
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO candidate_records
		 (external_id, name, hometown, birth_year, affiliation, best_times, source_url, raw, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
			name = excluded.name,
			hometown = excluded.hometown,
			birth_year = excluded.birth_year,
			affiliation = excluded.affiliation,
			best_times = excluded.best_times,
			source_url = excluded.source_url,
			raw = excluded.raw,
			scraped_at = excluded.scraped_at
		 RETURNING id`,
		rec.ExternalID, rec.Name, rec.Hometown, rec.BirthYear, rec.Affiliation,
		string(timesJSON), rec.SourceURL, nullableJSON(rec.Raw), rec.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert candidate %s", rec.ExternalID)
	}
	return id, nil
}

const sqliteSourceColumns = `id, first_name, last_name, affiliation, event_key, performance_time, year, gender, hometown, birth_year, raw, scraped_at`

func (s *SQLiteStore) ListSources(ctx context.Context, eventKey string, limit int) ([]model.SourceRecord, error) {
	query := `SELECT ` + sqliteSourceColumns + ` FROM source_records WHERE 1=1`
	var args []any
	if eventKey != "" {
		query += ` AND event_key = ?`
		args = append(args, eventKey)
	}
	query += ` ORDER BY performance_time ASC LIMIT ?`
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()
	return scanSQLiteSources(rows)
}

func (s *SQLiteStore) UnmatchedSources(ctx context.Context, limit int) ([]model.SourceRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM source_records sr
		 WHERE NOT EXISTS (SELECT 1 FROM match_links ml WHERE ml.source_id = sr.id)
		 ORDER BY sr.id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unmatched sources")
	}
	defer rows.Close()
	return scanSQLiteSources(rows)
}

func scanSQLiteSources(rows *sql.Rows) ([]model.SourceRecord, error) {
	var out []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		var gender string
		var birthYear sql.NullInt64
		var raw sql.NullString
		if err := rows.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Affiliation, &r.EventKey,
			&r.PerformanceTime, &r.Year, &gender, &r.Hometown, &birthYear, &raw, &r.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		r.Gender = model.Gender(gender)
		if birthYear.Valid {
			y := int(birthYear.Int64)
			r.BirthYear = &y
		}
		if raw.Valid {
			r.Raw = []byte(raw.String)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sources")
}

func (s *SQLiteStore) UpsertLink(ctx context.Context, link model.MatchLink) (int64, error) {
	matchedOn, err := json.Marshal(link.MatchedOn)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal matched_on")
	}
	if link.MatchedAt.IsZero() {
		link.MatchedAt = time.Now().UTC()
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO match_links
		 (source_id, candidate_id, score, name_ratio, hometown_bonus, birth_year_bonus, affiliation_bonus, matched_on, rationale, status, matched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, candidate_id) DO UPDATE SET
			score = excluded.score,
			name_ratio = excluded.name_ratio,
			hometown_bonus = excluded.hometown_bonus,
			birth_year_bonus = excluded.birth_year_bonus,
			affiliation_bonus = excluded.affiliation_bonus,
			matched_on = excluded.matched_on,
			rationale = excluded.rationale,
			status = CASE WHEN match_links.status IN ('verified', 'rejected')
				THEN match_links.status ELSE excluded.status END,
			matched_at = excluded.matched_at
		 RETURNING id`,
		link.SourceID, link.CandidateID, link.Score, link.NameRatio,
		link.HometownBonus, link.BirthYearBonus, link.AffiliationBonus,
		string(matchedOn), link.Rationale, string(link.Status), link.MatchedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert link source=%d candidate=%d", link.SourceID, link.CandidateID)
	}
	return id, nil
}

func (s *SQLiteStore) ListLinks(ctx context.Context, filter LinkFilter) ([]LinkDetail, error) {
	query := `SELECT
		ml.id, ml.source_id, ml.candidate_id, ml.score, ml.name_ratio,
		ml.hometown_bonus, ml.birth_year_bonus, ml.affiliation_bonus,
		ml.matched_on, ml.rationale, ml.status, ml.reviewer_notes, ml.reviewed_by, ml.reviewed_at, ml.matched_at,
		sr.id, sr.first_name, sr.last_name, sr.affiliation, sr.event_key, sr.performance_time, sr.year, sr.gender, sr.hometown, sr.birth_year,
		cr.id, cr.external_id, cr.name, cr.hometown, cr.birth_year, cr.affiliation, cr.best_times, cr.source_url
		FROM match_links ml
		JOIN source_records sr ON sr.id = ml.source_id
		JOIN candidate_records cr ON cr.id = ml.candidate_id
		WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND ml.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.EventKey != "" {
		query += ` AND sr.event_key = ?`
		args = append(args, filter.EventKey)
	}
	if filter.MinScore > 0 {
		query += ` AND ml.score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY ml.score DESC, ml.id ASC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list links")
	}
	defer rows.Close()

	var out []LinkDetail
	for rows.Next() {
		var d LinkDetail
		var matchedOn, bestTimes sql.NullString
		var linkStatus, srcGender string
		var reviewedAt sql.NullTime
		var srcBirth, candBirth sql.NullInt64
		if err := rows.Scan(
			&d.Link.ID, &d.Link.SourceID, &d.Link.CandidateID, &d.Link.Score, &d.Link.NameRatio,
			&d.Link.HometownBonus, &d.Link.BirthYearBonus, &d.Link.AffiliationBonus,
			&matchedOn, &d.Link.Rationale, &linkStatus, &d.Link.ReviewerNotes, &d.Link.ReviewedBy, &reviewedAt, &d.Link.MatchedAt,
			&d.Source.ID, &d.Source.FirstName, &d.Source.LastName, &d.Source.Affiliation, &d.Source.EventKey,
			&d.Source.PerformanceTime, &d.Source.Year, &srcGender, &d.Source.Hometown, &srcBirth,
			&d.Candidate.ID, &d.Candidate.ExternalID, &d.Candidate.Name, &d.Candidate.Hometown,
			&candBirth, &d.Candidate.Affiliation, &bestTimes, &d.Candidate.SourceURL,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link detail")
		}
		d.Link.Status = model.VerificationStatus(linkStatus)
		d.Source.Gender = model.Gender(srcGender)
		if reviewedAt.Valid {
			t := reviewedAt.Time
			d.Link.ReviewedAt = &t
		}
		if srcBirth.Valid {
			y := int(srcBirth.Int64)
			d.Source.BirthYear = &y
		}
		if candBirth.Valid {
			y := int(candBirth.Int64)
			d.Candidate.BirthYear = &y
		}
		if matchedOn.Valid && matchedOn.String != "" && matchedOn.String != "null" {
			if err := json.Unmarshal([]byte(matchedOn.String), &d.Link.MatchedOn); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal matched_on")
			}
		}
		if bestTimes.Valid && bestTimes.String != "" && bestTimes.String != "null" {
			if err := json.Unmarshal([]byte(bestTimes.String), &d.Candidate.BestTimes); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal best_times")
			}
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate links")
}

func (s *SQLiteStore) SetLinkReview(ctx context.Context, linkID int64, status model.VerificationStatus, notes, reviewer string) error {
	if !status.HumanAssigned() {
		return eris.Errorf("sqlite: review status must be verified or rejected, got %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_links SET status = ?, reviewer_notes = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ?`,
		string(status), notes, reviewer, time.Now().UTC(), linkID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: review link %d", linkID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "link %d", linkID)
	}
	return nil
}

func (s *SQLiteStore) CountLinksByStatus(ctx context.Context) (map[model.VerificationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM match_links GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count links")
	}
	defer rows.Close()

	counts := make(map[model.VerificationStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.VerificationStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate counts")
}

func (s *SQLiteStore) ReplaceBenchmarks(ctx context.Context, standards []model.BenchmarkStandard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin benchmark reload")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM benchmark_standards`); err != nil {
		return eris.Wrap(err, "sqlite: clear benchmarks")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO benchmark_standards (gender, age_group, event_key, tier, cutoff_seconds, color_code, display_rank)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare benchmark insert")
	}
	defer stmt.Close()

	for _, st := range standards {
		if _, err := stmt.ExecContext(ctx,
			string(st.Gender), st.AgeGroup, st.EventKey, st.Tier,
			st.CutoffSeconds, st.ColorCode, st.DisplayRank,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert benchmark %s %s %s", st.Gender, st.EventKey, st.Tier)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit benchmark reload")
}

func (s *SQLiteStore) GetBenchmarks(ctx context.Context, gender model.Gender, ageGroup, eventKey string) ([]model.BenchmarkStandard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gender, age_group, event_key, tier, cutoff_seconds, color_code, display_rank
		 FROM benchmark_standards
		 WHERE gender = ? AND age_group = ? AND event_key = ?
		 ORDER BY display_rank ASC`,
		string(gender), ageGroup, eventKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get benchmarks")
	}
	defer rows.Close()

	var out []model.BenchmarkStandard
	for rows.Next() {
		var st model.BenchmarkStandard
		var g string
		if err := rows.Scan(&st.ID, &g, &st.AgeGroup, &st.EventKey, &st.Tier,
			&st.CutoffSeconds, &st.ColorCode, &st.DisplayRank); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan benchmark")
		}
		st.Gender = model.Gender(g)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate benchmarks")
}

func (s *SQLiteStore) GetCachedPage(ctx context.Context, url string) (*CachedPage, error) {
	var p CachedPage
	err := s.db.QueryRowContext(ctx,
		`SELECT url, body, title, status_code, strategy, fetched_at, expires_at
		 FROM page_cache WHERE url = ? AND expires_at > ?`,
		url, time.Now().UTC(),
	).Scan(&p.URL, &p.Body, &p.Title, &p.StatusCode, &p.Strategy, &p.FetchedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached page")
	}
	return &p, nil
}

func (s *SQLiteStore) SetCachedPage(ctx context.Context, page CachedPage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_cache (url, body, title, status_code, strategy, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET
			body = excluded.body, title = excluded.title, status_code = excluded.status_code,
			strategy = excluded.strategy, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		page.URL, page.Body, page.Title, page.StatusCode, page.Strategy, page.FetchedAt, page.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached page")
}

func (s *SQLiteStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired pages")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
