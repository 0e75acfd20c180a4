// Package sqlite provides the default durable persistence gateway: six
// relational tables in an embedded SQLite file, with the secondary indexes
// needed for owner-scoped range scans and cascade deletes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"rankmine/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS competitions (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	score_min    REAL NOT NULL,
	score_max    REAL NOT NULL,
	score_step   REAL NOT NULL,
	score_unit   TEXT NOT NULL DEFAULT '',
	scoring_mode TEXT NOT NULL DEFAULT '',
	ui_theme     TEXT NOT NULL DEFAULT '',
	ui_density   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_competitions_updated ON competitions(updated_at);

CREATE TABLE IF NOT EXISTS contestants (
	id             TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL,
	name           TEXT NOT NULL,
	accent_color   TEXT NOT NULL DEFAULT '',
	order_index    INTEGER,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contestants_competition ON contestants(competition_id);

CREATE TABLE IF NOT EXISTS rounds (
	id             TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL,
	title          TEXT NOT NULL,
	order_index    INTEGER NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rounds_competition ON rounds(competition_id);
CREATE INDEX IF NOT EXISTS idx_rounds_order ON rounds(competition_id, order_index);

CREATE TABLE IF NOT EXISTS entries (
	key            TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL,
	round_id       TEXT NOT NULL,
	contestant_id  TEXT NOT NULL,
	score          REAL,
	note           TEXT NOT NULL DEFAULT '',
	link           TEXT NOT NULL DEFAULT '',
	asset_id       TEXT NOT NULL DEFAULT '',
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_competition ON entries(competition_id);
CREATE INDEX IF NOT EXISTS idx_entries_round ON entries(round_id);
CREATE INDEX IF NOT EXISTS idx_entries_contestant ON entries(contestant_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_triple ON entries(competition_id, round_id, contestant_id);

CREATE TABLE IF NOT EXISTS asset_meta (
	id             TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL,
	mime_type      TEXT NOT NULL DEFAULT '',
	size_bytes     INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_asset_meta_competition ON asset_meta(competition_id);

CREATE TABLE IF NOT EXISTS templates (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	score_min   REAL NOT NULL,
	score_max   REAL NOT NULL,
	score_step  REAL NOT NULL,
	score_unit  TEXT NOT NULL DEFAULT '',
	scoring_mode TEXT NOT NULL DEFAULT '',
	contestants TEXT NOT NULL DEFAULT '[]',
	rounds      TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_templates_updated ON templates(updated_at);
`

// Store is the SQLite-backed persistence gateway.
type Store struct {
	db    *sql.DB
	path  string
	nowFn func() time.Time
}

// NewStore opens (creating if needed) the SQLite database at path and ensures
// the schema exists.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "rankmine.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{
		db:    db,
		path:  path,
		nowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetNowFunc replaces the store's time provider for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn within one SQL transaction; any error rolls
// every statement back, so no partial cascade is ever observable.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{tx: tx, now: s.nowFn()}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx  *sql.Tx
	now time.Time
}

var _ domain.Transaction = (*sqlTx)(nil)

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (t *sqlTx) PutCompetition(c domain.Competition) error {
	_, err := t.tx.Exec(`INSERT INTO competitions
		(id, title, score_min, score_max, score_step, score_unit, scoring_mode, ui_theme, ui_density, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, score_min=excluded.score_min, score_max=excluded.score_max,
			score_step=excluded.score_step, score_unit=excluded.score_unit, scoring_mode=excluded.scoring_mode,
			ui_theme=excluded.ui_theme, ui_density=excluded.ui_density, updated_at=excluded.updated_at`,
		c.ID, c.Title, c.Scoring.Min, c.Scoring.Max, c.Scoring.Step, c.Scoring.Unit, string(c.Scoring.Mode),
		c.UI.Theme, c.UI.Density, millis(c.CreatedAt), millis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put competition: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteCompetition(id string) error {
	for _, stmt := range []string{
		`DELETE FROM competitions WHERE id=?`,
		`DELETE FROM contestants WHERE competition_id=?`,
		`DELETE FROM rounds WHERE competition_id=?`,
		`DELETE FROM entries WHERE competition_id=?`,
		`DELETE FROM asset_meta WHERE competition_id=?`,
	} {
		if _, err := t.tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("cascade competition %s: %w", id, err)
		}
	}
	return nil
}

func (t *sqlTx) TouchCompetition(id string, at time.Time) error {
	if _, err := t.tx.Exec(`UPDATE competitions SET updated_at=? WHERE id=?`, millis(at), id); err != nil {
		return fmt.Errorf("touch competition %s: %w", id, err)
	}
	return nil
}

func (t *sqlTx) PutContestant(c domain.Contestant) error {
	var order sql.NullInt64
	if c.OrderIndex != nil {
		order = sql.NullInt64{Int64: int64(*c.OrderIndex), Valid: true}
	}
	_, err := t.tx.Exec(`INSERT INTO contestants (id, competition_id, name, accent_color, order_index, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, accent_color=excluded.accent_color, order_index=excluded.order_index`,
		c.ID, c.CompetitionID, c.Name, c.AccentColor, order, millis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("put contestant: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteContestant(id string) error {
	var competitionID string
	err := t.tx.QueryRow(`SELECT competition_id FROM contestants WHERE id=?`, id).Scan(&competitionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup contestant %s: %w", id, err)
	}
	if _, err := t.tx.Exec(`DELETE FROM contestants WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete contestant: %w", err)
	}
	if _, err := t.tx.Exec(`DELETE FROM entries WHERE contestant_id=?`, id); err != nil {
		return fmt.Errorf("cascade contestant entries: %w", err)
	}
	return t.TouchCompetition(competitionID, t.now)
}

func (t *sqlTx) PutRound(r domain.Round) error {
	_, err := t.tx.Exec(`INSERT INTO rounds (id, competition_id, title, order_index, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title, order_index=excluded.order_index`,
		r.ID, r.CompetitionID, r.Title, r.OrderIndex, millis(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("put round: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteRound(id string) error {
	var competitionID string
	err := t.tx.QueryRow(`SELECT competition_id FROM rounds WHERE id=?`, id).Scan(&competitionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup round %s: %w", id, err)
	}
	if _, err := t.tx.Exec(`DELETE FROM rounds WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete round: %w", err)
	}
	if _, err := t.tx.Exec(`DELETE FROM entries WHERE round_id=?`, id); err != nil {
		return fmt.Errorf("cascade round entries: %w", err)
	}
	return t.TouchCompetition(competitionID, t.now)
}

func (t *sqlTx) PutEntry(e domain.Entry) error {
	var score sql.NullFloat64
	if e.Score != nil {
		score = sql.NullFloat64{Float64: *e.Score, Valid: true}
	}
	_, err := t.tx.Exec(`INSERT INTO entries
		(key, competition_id, round_id, contestant_id, score, note, link, asset_id, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			score=excluded.score, note=excluded.note, link=excluded.link,
			asset_id=excluded.asset_id, updated_at=excluded.updated_at`,
		e.Key, e.CompetitionID, e.RoundID, e.ContestantID, score, e.Note, e.Link, e.AssetID, millis(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

func (t *sqlTx) PutEntries(entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := t.PutEntry(e); err != nil {
			return err
		}
	}
	return t.TouchCompetition(entries[len(entries)-1].CompetitionID, t.now)
}

func (t *sqlTx) DeleteEntry(key string) error {
	if _, err := t.tx.Exec(`DELETE FROM entries WHERE key=?`, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (t *sqlTx) PutAssetMeta(m domain.AssetMeta) error {
	_, err := t.tx.Exec(`INSERT INTO asset_meta (id, competition_id, mime_type, size_bytes, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET mime_type=excluded.mime_type, size_bytes=excluded.size_bytes`,
		m.ID, m.CompetitionID, m.MimeType, m.SizeBytes, millis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("put asset meta: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteAssetMeta(id string) error {
	if _, err := t.tx.Exec(`DELETE FROM asset_meta WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete asset meta: %w", err)
	}
	return nil
}

func (t *sqlTx) PutTemplate(tpl domain.Template) error {
	contestants, err := json.Marshal(tpl.Contestants)
	if err != nil {
		return fmt.Errorf("encode template contestants: %w", err)
	}
	rounds, err := json.Marshal(tpl.Rounds)
	if err != nil {
		return fmt.Errorf("encode template rounds: %w", err)
	}
	_, err = t.tx.Exec(`INSERT INTO templates
		(id, name, score_min, score_max, score_step, score_unit, scoring_mode, contestants, rounds, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, score_min=excluded.score_min, score_max=excluded.score_max,
			score_step=excluded.score_step, score_unit=excluded.score_unit, scoring_mode=excluded.scoring_mode,
			contestants=excluded.contestants, rounds=excluded.rounds, updated_at=excluded.updated_at`,
		tpl.ID, tpl.Name, tpl.Scoring.Min, tpl.Scoring.Max, tpl.Scoring.Step, tpl.Scoring.Unit,
		string(tpl.Scoring.Mode), string(contestants), string(rounds), millis(tpl.CreatedAt), millis(tpl.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteTemplate(id string) error {
	if _, err := t.tx.Exec(`DELETE FROM templates WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func scanCompetition(scan func(dest ...any) error) (domain.Competition, error) {
	var (
		c                    domain.Competition
		mode                 string
		createdAt, updatedAt int64
	)
	err := scan(&c.ID, &c.Title, &c.Scoring.Min, &c.Scoring.Max, &c.Scoring.Step, &c.Scoring.Unit,
		&mode, &c.UI.Theme, &c.UI.Density, &createdAt, &updatedAt)
	if err != nil {
		return domain.Competition{}, err
	}
	c.Scoring.Mode = domain.ScoringMode(mode)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	// Rows persisted before scoring bounds were configurable hydrate to the
	// defaults instead of a degenerate zero range.
	if (c.Scoring == domain.ScoringConfig{}) {
		c.Scoring = domain.DefaultScoring()
	}
	return c, nil
}

const competitionCols = `id, title, score_min, score_max, score_step, score_unit, scoring_mode, ui_theme, ui_density, created_at, updated_at`

func (s *Store) GetCompetition(ctx context.Context, id string) (domain.Competition, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+competitionCols+` FROM competitions WHERE id=?`, id)
	c, err := scanCompetition(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Competition{}, false, nil
	}
	if err != nil {
		return domain.Competition{}, false, fmt.Errorf("get competition: %w", err)
	}
	return c, true, nil
}

func (s *Store) ListCompetitions(ctx context.Context) ([]domain.Competition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+competitionCols+` FROM competitions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Competition
	for rows.Next() {
		c, err := scanCompetition(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan competition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListContestants(ctx context.Context, competitionID string) ([]domain.Contestant, error) {
	// Legacy rows without an order index sort after indexed ones; loading
	// assigns them a persistent index.
	rows, err := s.db.QueryContext(ctx, `SELECT id, competition_id, name, accent_color, order_index, created_at
		FROM contestants WHERE competition_id=?
		ORDER BY order_index IS NULL, order_index ASC, created_at ASC, id ASC`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list contestants: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Contestant
	for rows.Next() {
		var (
			c         domain.Contestant
			order     sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.CompetitionID, &c.Name, &c.AccentColor, &order, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contestant: %w", err)
		}
		if order.Valid {
			idx := int(order.Int64)
			c.OrderIndex = &idx
		}
		c.CreatedAt = fromMillis(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListRounds(ctx context.Context, competitionID string) ([]domain.Round, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, competition_id, title, order_index, created_at
		FROM rounds WHERE competition_id=? ORDER BY order_index ASC, id ASC`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Round
	for rows.Next() {
		var (
			r         domain.Round
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.CompetitionID, &r.Title, &r.OrderIndex, &createdAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, competitionID string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, competition_id, round_id, contestant_id, score, note, link, asset_id, updated_at
		FROM entries WHERE competition_id=? ORDER BY key ASC`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Entry
	for rows.Next() {
		var (
			e         domain.Entry
			score     sql.NullFloat64
			updatedAt int64
		)
		if err := rows.Scan(&e.Key, &e.CompetitionID, &e.RoundID, &e.ContestantID, &score, &e.Note, &e.Link, &e.AssetID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if score.Valid {
			v := score.Float64
			e.Score = &v
		}
		e.UpdatedAt = fromMillis(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetAssetMeta(ctx context.Context, id string) (domain.AssetMeta, bool, error) {
	var (
		m         domain.AssetMeta
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, competition_id, mime_type, size_bytes, created_at
		FROM asset_meta WHERE id=?`, id).Scan(&m.ID, &m.CompetitionID, &m.MimeType, &m.SizeBytes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AssetMeta{}, false, nil
	}
	if err != nil {
		return domain.AssetMeta{}, false, fmt.Errorf("get asset meta: %w", err)
	}
	m.CreatedAt = fromMillis(createdAt)
	return m, true, nil
}

func (s *Store) ListAssetMeta(ctx context.Context, competitionID string) ([]domain.AssetMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, competition_id, mime_type, size_bytes, created_at
		FROM asset_meta WHERE competition_id=? ORDER BY created_at ASC, id ASC`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list asset meta: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.AssetMeta
	for rows.Next() {
		var (
			m         domain.AssetMeta
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.CompetitionID, &m.MimeType, &m.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan asset meta: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanTemplate(scan func(dest ...any) error) (domain.Template, error) {
	var (
		tpl                  domain.Template
		mode                 string
		contestants, rounds  string
		createdAt, updatedAt int64
	)
	err := scan(&tpl.ID, &tpl.Name, &tpl.Scoring.Min, &tpl.Scoring.Max, &tpl.Scoring.Step, &tpl.Scoring.Unit,
		&mode, &contestants, &rounds, &createdAt, &updatedAt)
	if err != nil {
		return domain.Template{}, err
	}
	tpl.Scoring.Mode = domain.ScoringMode(mode)
	if err := json.Unmarshal([]byte(contestants), &tpl.Contestants); err != nil {
		return domain.Template{}, fmt.Errorf("decode template contestants: %w", err)
	}
	if err := json.Unmarshal([]byte(rounds), &tpl.Rounds); err != nil {
		return domain.Template{}, fmt.Errorf("decode template rounds: %w", err)
	}
	tpl.CreatedAt = fromMillis(createdAt)
	tpl.UpdatedAt = fromMillis(updatedAt)
	return tpl, nil
}

const templateCols = `id, name, score_min, score_max, score_step, score_unit, scoring_mode, contestants, rounds, created_at, updated_at`

func (s *Store) GetTemplate(ctx context.Context, id string) (domain.Template, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE id=?`, id)
	tpl, err := scanTemplate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Template{}, false, nil
	}
	if err != nil {
		return domain.Template{}, false, fmt.Errorf("get template: %w", err)
	}
	return tpl, true, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateCols+` FROM templates ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}
