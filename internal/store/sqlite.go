package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix nanoseconds so range predicates compare numerically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// A single writer connection keeps read-modify-write transactions serialized.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS user_profiles (
	user_id        TEXT PRIMARY KEY,
	profile_type   TEXT NOT NULL,
	monthly_income REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS category_spend (
	user_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	amount   REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, category)
);

CREATE TABLE IF NOT EXISTS budget_rules (
	user_id             TEXT NOT NULL,
	category_key        TEXT NOT NULL,
	category            TEXT NOT NULL,
	monthly_limit_cents INTEGER NOT NULL,
	PRIMARY KEY (user_id, category_key)
);

CREATE TABLE IF NOT EXISTS override_tokens (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	merchant     TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS geofences (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	name      TEXT NOT NULL,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL,
	radius_m  REAL NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	policy    TEXT NOT NULL,
	position  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS location_pings (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	accuracy_m REAL,
	ts         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS last_positions (
	user_id   TEXT PRIMARY KEY,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL,
	ts        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dwell_pings (
	user_id TEXT NOT NULL,
	ts      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dwell_configs (
	user_id              TEXT PRIMARY KEY,
	block_ping_threshold INTEGER NOT NULL,
	dwell_window_minutes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS obligations (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL UNIQUE,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	amount     REAL NOT NULL,
	due_date   INTEGER NOT NULL,
	mandatory  INTEGER NOT NULL DEFAULT 0,
	importance REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	decision     TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	amount_cents INTEGER NOT NULL,
	merchant     TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	ts           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_override_tokens_lookup ON override_tokens(user_id, merchant, amount_cents);
CREATE INDEX IF NOT EXISTS idx_override_tokens_expires_at ON override_tokens(expires_at);
CREATE INDEX IF NOT EXISTS idx_geofences_user ON geofences(user_id, position);
CREATE INDEX IF NOT EXISTS idx_location_pings_user_ts ON location_pings(user_id, ts);
CREATE INDEX IF NOT EXISTS idx_dwell_pings_user_ts ON dwell_pings(user_id, ts);
CREATE INDEX IF NOT EXISTS idx_obligations_user_due ON obligations(user_id, due_date);
CREATE INDEX IF NOT EXISTS idx_audit_events_user_ts ON audit_events(user_id, ts);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// --- Profiles ---

func (s *SQLiteStore) EnsureProfile(ctx context.Context, def model.UserProfile) (model.UserProfile, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, profile_type, monthly_income) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		def.UserID, string(def.ProfileType), def.MonthlyIncome,
	)
	if err != nil {
		return model.UserProfile{}, eris.Wrapf(err, "sqlite: ensure profile %s", def.UserID)
	}

	p := model.UserProfile{UserID: def.UserID}
	var pt string
	err = s.db.QueryRowContext(ctx,
		`SELECT profile_type, monthly_income FROM user_profiles WHERE user_id = ?`, def.UserID,
	).Scan(&pt, &p.MonthlyIncome)
	if err != nil {
		return model.UserProfile{}, eris.Wrapf(err, "sqlite: get profile %s", def.UserID)
	}
	p.ProfileType = model.ProfileType(pt)
	return p, nil
}

func (s *SQLiteStore) PutProfile(ctx context.Context, p model.UserProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, profile_type, monthly_income) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET profile_type = excluded.profile_type, monthly_income = excluded.monthly_income`,
		p.UserID, string(p.ProfileType), p.MonthlyIncome,
	)
	return eris.Wrapf(err, "sqlite: put profile %s", p.UserID)
}

// --- Spend ledger ---

func (s *SQLiteStore) CategorySpend(ctx context.Context, userID, cat string) (float64, error) {
	var amount float64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM category_spend WHERE user_id = ? AND category = ?`, userID, cat,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: category spend %s/%s", userID, cat)
	}
	return amount, nil
}

func (s *SQLiteStore) AddSpend(ctx context.Context, userID, cat string, amount float64) (float64, error) {
	var after float64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO category_spend (user_id, category, amount) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, category) DO UPDATE SET amount = category_spend.amount + excluded.amount
		 RETURNING amount`,
		userID, cat, amount,
	).Scan(&after)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: add spend %s/%s", userID, cat)
	}
	return after, nil
}

func (s *SQLiteStore) SpendByCategory(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, amount FROM category_spend WHERE user_id = ?`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: spend by category %s", userID)
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]float64)
	for rows.Next() {
		var cat string
		var amount float64
		if err := rows.Scan(&cat, &amount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spend")
		}
		out[cat] = amount
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate spend")
}

// --- Budget rules ---

func (s *SQLiteStore) PutRule(ctx context.Context, r model.BudgetRule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_rules (user_id, category_key, category, monthly_limit_cents) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, category_key) DO UPDATE SET category = excluded.category, monthly_limit_cents = excluded.monthly_limit_cents`,
		r.UserID, category.Fold(r.Category), r.Category, r.MonthlyLimitCents,
	)
	return eris.Wrapf(err, "sqlite: put rule %s/%s", r.UserID, r.Category)
}

func (s *SQLiteStore) MonthlyLimit(ctx context.Context, userID, cat string) (int64, bool, error) {
	var limit int64
	err := s.db.QueryRowContext(ctx,
		`SELECT monthly_limit_cents FROM budget_rules WHERE user_id = ? AND category_key = ?`,
		userID, category.Fold(cat),
	).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: monthly limit %s/%s", userID, cat)
	}
	return limit, true, nil
}

// --- Override tokens ---

func (s *SQLiteStore) InsertToken(ctx context.Context, tok model.OverrideToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO override_tokens (id, user_id, merchant, amount_cents, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tok.ID, tok.UserID, tok.Merchant, tok.AmountCents, nanos(tok.CreatedAt), nanos(tok.ExpiresAt),
	)
	return eris.Wrapf(err, "sqlite: insert token %s", tok.ID)
}

func (s *SQLiteStore) TakeToken(ctx context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: take token: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM override_tokens WHERE user_id = ? AND merchant = ? AND amount_cents = ? AND expires_at <= ?`,
		userID, merchant, amountCents, nanos(now),
	); err != nil {
		return false, eris.Wrap(err, "sqlite: take token: purge expired")
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM override_tokens WHERE id = (
			SELECT id FROM override_tokens
			WHERE user_id = ? AND merchant = ? AND amount_cents = ? AND expires_at > ?
			ORDER BY created_at, rowid LIMIT 1)`,
		userID, merchant, amountCents, nanos(now),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: take token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: take token: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: take token: commit")
	}
	return n == 1, nil
}

func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM override_tokens WHERE expires_at <= ?`, nanos(now))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired tokens")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: delete expired tokens: rows affected")
}

// --- Geofences ---

func (s *SQLiteStore) PutGeofence(ctx context.Context, g model.Geofence) (model.Geofence, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Position == 0 {
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM geofences WHERE user_id = ?`, g.UserID,
		).Scan(&g.Position)
		if err != nil {
			return g, eris.Wrapf(err, "sqlite: next geofence position %s", g.UserID)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geofences (id, user_id, name, latitude, longitude, radius_m, category, policy, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, latitude = excluded.latitude,
		   longitude = excluded.longitude, radius_m = excluded.radius_m, category = excluded.category,
		   policy = excluded.policy, position = excluded.position`,
		g.ID, g.UserID, g.Name, g.Latitude, g.Longitude, g.RadiusM, g.Category, string(g.Policy), g.Position,
	)
	if err != nil {
		return g, eris.Wrapf(err, "sqlite: put geofence %s", g.ID)
	}
	return g, nil
}

func (s *SQLiteStore) ListGeofences(ctx context.Context, userID string) ([]model.Geofence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, latitude, longitude, radius_m, category, policy, position
		 FROM geofences WHERE user_id = ? ORDER BY position, rowid`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list geofences %s", userID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Geofence
	for rows.Next() {
		var g model.Geofence
		var policy string
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Latitude, &g.Longitude, &g.RadiusM, &g.Category, &policy, &g.Position); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan geofence")
		}
		g.Policy = model.FencePolicy(policy)
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate geofences")
}

func (s *SQLiteStore) DeleteGeofence(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM geofences WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete geofence %s", id)
	}
	return checkRowsAffected(res, "geofence", id)
}

// --- Location pings ---

func (s *SQLiteStore) AppendPing(ctx context.Context, p model.LocationPing) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO location_pings (id, user_id, latitude, longitude, accuracy_m, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Latitude, p.Longitude, p.AccuracyM, nanos(p.Timestamp),
	)
	return eris.Wrapf(err, "sqlite: append ping %s", p.UserID)
}

func (s *SQLiteStore) LatestPing(ctx context.Context, userID string) (*model.LocationPing, error) {
	var p model.LocationPing
	var acc sql.NullFloat64
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, latitude, longitude, accuracy_m, ts FROM location_pings
		 WHERE user_id = ? ORDER BY ts DESC, rowid DESC LIMIT 1`, userID,
	).Scan(&p.ID, &p.UserID, &p.Latitude, &p.Longitude, &acc, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest ping %s", userID)
	}
	if acc.Valid {
		p.AccuracyM = &acc.Float64
	}
	p.Timestamp = fromNanos(ts)
	return &p, nil
}

// --- Dwell state ---

func (s *SQLiteStore) SwapPosition(ctx context.Context, userID string, pos model.Position) (*model.Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: swap position: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var prev *model.Position
	var p model.Position
	var ts int64
	err = tx.QueryRowContext(ctx,
		`SELECT latitude, longitude, ts FROM last_positions WHERE user_id = ?`, userID,
	).Scan(&p.Latitude, &p.Longitude, &ts)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, eris.Wrapf(err, "sqlite: swap position %s", userID)
	default:
		p.Timestamp = fromNanos(ts)
		prev = &p
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO last_positions (user_id, latitude, longitude, ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude, ts = excluded.ts`,
		userID, pos.Latitude, pos.Longitude, nanos(pos.Timestamp),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: store position %s", userID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: swap position: commit")
	}
	return prev, nil
}

func (s *SQLiteStore) RecordDwell(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: record dwell: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dwell_pings WHERE user_id = ? AND ts < ?`, userID, nanos(at.Add(-window)),
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: record dwell: evict")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dwell_pings (user_id, ts) VALUES (?, ?)`, userID, nanos(at),
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: record dwell: insert")
	}
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dwell_pings WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "sqlite: record dwell: count")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: record dwell: commit")
	}
	return count, nil
}

func (s *SQLiteStore) PutDwellConfig(ctx context.Context, c model.DwellConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dwell_configs (user_id, block_ping_threshold, dwell_window_minutes) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET block_ping_threshold = excluded.block_ping_threshold,
		   dwell_window_minutes = excluded.dwell_window_minutes`,
		c.UserID, c.BlockPingThreshold, c.DwellWindowMinutes,
	)
	return eris.Wrapf(err, "sqlite: put dwell config %s", c.UserID)
}

func (s *SQLiteStore) DwellConfig(ctx context.Context, userID string) (*model.DwellConfig, error) {
	c := model.DwellConfig{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT block_ping_threshold, dwell_window_minutes FROM dwell_configs WHERE user_id = ?`, userID,
	).Scan(&c.BlockPingThreshold, &c.DwellWindowMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: dwell config %s", userID)
	}
	return &c, nil
}

// --- Obligations ---

func (s *SQLiteStore) PutObligation(ctx context.Context, o model.Obligation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO obligations (event_id, user_id, name, category, amount, due_date, mandatory, importance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name,
		   category = excluded.category, amount = excluded.amount, due_date = excluded.due_date,
		   mandatory = excluded.mandatory, importance = excluded.importance`,
		o.EventID, o.UserID, o.Name, o.Category, o.Amount, nanos(o.DueDate), o.Mandatory, o.Importance,
	)
	return eris.Wrapf(err, "sqlite: put obligation %s", o.EventID)
}

func (s *SQLiteStore) UpcomingObligations(ctx context.Context, userID string, from, to time.Time) ([]model.Obligation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, name, category, amount, due_date, mandatory, importance
		 FROM obligations WHERE user_id = ? AND due_date >= ? AND due_date <= ? ORDER BY seq`,
		userID, nanos(from), nanos(to))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upcoming obligations %s", userID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Obligation
	for rows.Next() {
		var o model.Obligation
		var due int64
		if err := rows.Scan(&o.EventID, &o.UserID, &o.Name, &o.Category, &o.Amount, &due, &o.Mandatory, &o.Importance); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan obligation")
		}
		o.DueDate = fromNanos(due)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate obligations")
}

// --- Audit journal ---

func (s *SQLiteStore) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, user_id, event_type, decision, reason, amount_cents, merchant, category, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, string(ev.EventType), string(ev.Decision), ev.Reason, ev.AmountCents, ev.Merchant, ev.Category, nanos(ev.Timestamp),
	)
	return eris.Wrapf(err, "sqlite: append audit %s", ev.ID)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, userID string, from, to time.Time) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, decision, reason, amount_cents, merchant, category, ts
		 FROM audit_events WHERE user_id = ? AND ts >= ? AND ts < ? ORDER BY ts, rowid`,
		userID, nanos(from), nanos(to))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit %s", userID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var et, dec string
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.UserID, &et, &dec, &ev.Reason, &ev.AmountCents, &ev.Merchant, &ev.Category, &ts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		ev.EventType = model.AuditEventType(et)
		ev.Decision = model.AuthDecision(dec)
		ev.Timestamp = fromNanos(ts)
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate audit")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
