package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/db"
	"github.com/guardian-card/guardian-core/internal/geo"
	"github.com/guardian-card/guardian-core/internal/model"
)

// PostgresStore implements Store using pgxpool. Geofence centers and
// location pings are PostGIS points exchanged as EWKB.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection for the hot
// authorization path.
var preparedStatements = map[string]string{
	"take_token":    takeTokenSQL,
	"add_spend":     addSpendSQL,
	"monthly_limit": `SELECT monthly_limit_cents FROM budget_rules WHERE user_id = $1 AND category_key = $2`,
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

// Pool returns the underlying pool for bulk loaders.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id        TEXT PRIMARY KEY,
	profile_type   TEXT NOT NULL,
	monthly_income DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS category_spend (
	user_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	amount   DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, category)
);

CREATE TABLE IF NOT EXISTS budget_rules (
	user_id             TEXT NOT NULL,
	category_key        TEXT NOT NULL,
	category            TEXT NOT NULL,
	monthly_limit_cents BIGINT NOT NULL,
	PRIMARY KEY (user_id, category_key)
);

CREATE TABLE IF NOT EXISTS override_tokens (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	merchant     TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS geofences (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id  TEXT NOT NULL,
	name     TEXT NOT NULL,
	center   geometry(Point, 4326) NOT NULL,
	radius_m DOUBLE PRECISION NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	policy   TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS location_pings (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	geom       geometry(Point, 4326) NOT NULL,
	accuracy_m DOUBLE PRECISION,
	ts         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS last_positions (
	user_id   TEXT PRIMARY KEY,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	ts        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dwell_pings (
	id      BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	ts      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dwell_configs (
	user_id              TEXT PRIMARY KEY,
	block_ping_threshold INTEGER NOT NULL,
	dwell_window_minutes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS obligations (
	seq        BIGSERIAL,
	event_id   TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	amount     DOUBLE PRECISION NOT NULL,
	due_date   TIMESTAMPTZ NOT NULL,
	mandatory  BOOLEAN NOT NULL DEFAULT false,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	decision     TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	amount_cents BIGINT NOT NULL,
	merchant     TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	ts           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_override_tokens_lookup ON override_tokens(user_id, merchant, amount_cents);
CREATE INDEX IF NOT EXISTS idx_override_tokens_expires_at ON override_tokens(expires_at);
CREATE INDEX IF NOT EXISTS idx_geofences_user ON geofences(user_id, position);
CREATE INDEX IF NOT EXISTS idx_geofences_center ON geofences USING GIST(center);
CREATE INDEX IF NOT EXISTS idx_location_pings_user_ts ON location_pings(user_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_dwell_pings_user_ts ON dwell_pings(user_id, ts);
CREATE INDEX IF NOT EXISTS idx_obligations_user_due ON obligations(user_id, due_date);
CREATE INDEX IF NOT EXISTS idx_audit_events_user_ts ON audit_events(user_id, ts);
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

// --- Profiles ---

func (s *PostgresStore) EnsureProfile(ctx context.Context, def model.UserProfile) (model.UserProfile, error) {
	p := model.UserProfile{UserID: def.UserID}
	var pt string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_profiles (user_id, profile_type, monthly_income) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING profile_type, monthly_income`,
		def.UserID, string(def.ProfileType), def.MonthlyIncome,
	).Scan(&pt, &p.MonthlyIncome)
	if err != nil {
		return model.UserProfile{}, eris.Wrapf(err, "postgres: ensure profile %s", def.UserID)
	}
	p.ProfileType = model.ProfileType(pt)
	return p, nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, p model.UserProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, profile_type, monthly_income) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET profile_type = EXCLUDED.profile_type, monthly_income = EXCLUDED.monthly_income`,
		p.UserID, string(p.ProfileType), p.MonthlyIncome,
	)
	return eris.Wrapf(err, "postgres: put profile %s", p.UserID)
}

// --- Spend ledger ---

const addSpendSQL = `INSERT INTO category_spend (user_id, category, amount) VALUES ($1, $2, $3)
ON CONFLICT (user_id, category) DO UPDATE SET amount = category_spend.amount + EXCLUDED.amount
RETURNING amount`

func (s *PostgresStore) CategorySpend(ctx context.Context, userID, cat string) (float64, error) {
	var amount float64
	err := s.pool.QueryRow(ctx,
		`SELECT amount FROM category_spend WHERE user_id = $1 AND category = $2`, userID, cat,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: category spend %s/%s", userID, cat)
	}
	return amount, nil
}

func (s *PostgresStore) AddSpend(ctx context.Context, userID, cat string, amount float64) (float64, error) {
	var after float64
	if err := s.pool.QueryRow(ctx, addSpendSQL, userID, cat, amount).Scan(&after); err != nil {
		return 0, eris.Wrapf(err, "postgres: add spend %s/%s", userID, cat)
	}
	return after, nil
}

func (s *PostgresStore) SpendByCategory(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, amount FROM category_spend WHERE user_id = $1`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: spend by category %s", userID)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var cat string
		var amount float64
		if err := rows.Scan(&cat, &amount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan spend")
		}
		out[cat] = amount
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate spend")
}

// --- Budget rules ---

func (s *PostgresStore) PutRule(ctx context.Context, r model.BudgetRule) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budget_rules (user_id, category_key, category, monthly_limit_cents) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, category_key) DO UPDATE SET category = EXCLUDED.category, monthly_limit_cents = EXCLUDED.monthly_limit_cents`,
		r.UserID, category.Fold(r.Category), r.Category, r.MonthlyLimitCents,
	)
	return eris.Wrapf(err, "postgres: put rule %s/%s", r.UserID, r.Category)
}

func (s *PostgresStore) MonthlyLimit(ctx context.Context, userID, cat string) (int64, bool, error) {
	var limit int64
	err := s.pool.QueryRow(ctx,
		`SELECT monthly_limit_cents FROM budget_rules WHERE user_id = $1 AND category_key = $2`,
		userID, category.Fold(cat),
	).Scan(&limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: monthly limit %s/%s", userID, cat)
	}
	return limit, true, nil
}

// --- Override tokens ---

// takeTokenSQL deletes exactly one live token. SKIP LOCKED lets concurrent
// redeemers race without blocking; the loser sees no row.
const takeTokenSQL = `DELETE FROM override_tokens WHERE id = (
	SELECT id FROM override_tokens
	WHERE user_id = $1 AND merchant = $2 AND amount_cents = $3 AND expires_at > $4
	ORDER BY created_at LIMIT 1
	FOR UPDATE SKIP LOCKED)
RETURNING id`

func (s *PostgresStore) InsertToken(ctx context.Context, tok model.OverrideToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO override_tokens (id, user_id, merchant, amount_cents, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.ID, tok.UserID, tok.Merchant, tok.AmountCents, tok.CreatedAt, tok.ExpiresAt,
	)
	return eris.Wrapf(err, "postgres: insert token %s", tok.ID)
}

func (s *PostgresStore) TakeToken(ctx context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, takeTokenSQL, userID, merchant, amountCents, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: take token %s/%s", userID, merchant)
	}
	return true, nil
}

func (s *PostgresStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM override_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired tokens")
	}
	return int(tag.RowsAffected()), nil
}

// --- Geofences ---

func (s *PostgresStore) PutGeofence(ctx context.Context, g model.Geofence) (model.Geofence, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	center, err := geo.EncodeEWKB(geo.Point{Lat: g.Latitude, Lon: g.Longitude})
	if err != nil {
		return g, eris.Wrapf(err, "postgres: put geofence %s", g.ID)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO geofences (id, user_id, name, center, radius_m, category, policy, position)
		 VALUES ($1, $2, $3, ST_GeomFromEWKB($4), $5, $6, $7,
		   CASE WHEN $8 > 0 THEN $8 ELSE (SELECT COALESCE(MAX(position), 0) + 1 FROM geofences WHERE user_id = $2) END)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, center = EXCLUDED.center, radius_m = EXCLUDED.radius_m,
		   category = EXCLUDED.category, policy = EXCLUDED.policy, position = EXCLUDED.position
		 RETURNING position`,
		g.ID, g.UserID, g.Name, center, g.RadiusM, g.Category, string(g.Policy), g.Position,
	).Scan(&g.Position)
	if err != nil {
		return g, eris.Wrapf(err, "postgres: put geofence %s", g.ID)
	}
	return g, nil
}

func (s *PostgresStore) ListGeofences(ctx context.Context, userID string) ([]model.Geofence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, ST_AsEWKB(center), radius_m, category, policy, position
		 FROM geofences WHERE user_id = $1 ORDER BY position, id`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list geofences %s", userID)
	}
	defer rows.Close()

	var out []model.Geofence
	for rows.Next() {
		var g model.Geofence
		var center []byte
		var policy string
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &center, &g.RadiusM, &g.Category, &policy, &g.Position); err != nil {
			return nil, eris.Wrap(err, "postgres: scan geofence")
		}
		pt, err := geo.DecodeEWKB(center)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: geofence %s center", g.ID)
		}
		g.Latitude, g.Longitude = pt.Lat, pt.Lon
		g.Policy = model.FencePolicy(policy)
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate geofences")
}

func (s *PostgresStore) DeleteGeofence(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM geofences WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete geofence %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "geofence %s", id)
	}
	return nil
}

// --- Location pings ---

var pingColumns = []string{"id", "user_id", "geom", "accuracy_m", "ts"}

func pingRow(p model.LocationPing) ([]any, error) {
	g, err := geo.EncodeEWKB(geo.Point{Lat: p.Latitude, Lon: p.Longitude})
	if err != nil {
		return nil, err
	}
	return []any{p.ID, p.UserID, g, p.AccuracyM, p.Timestamp}, nil
}

func (s *PostgresStore) AppendPing(ctx context.Context, p model.LocationPing) error {
	row, err := pingRow(p)
	if err != nil {
		return eris.Wrapf(err, "postgres: append ping %s", p.UserID)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO location_pings (id, user_id, geom, accuracy_m, ts) VALUES ($1, $2, ST_GeomFromEWKB($3), $4, $5)`,
		row...,
	)
	return eris.Wrapf(err, "postgres: append ping %s", p.UserID)
}

func (s *PostgresStore) LatestPing(ctx context.Context, userID string) (*model.LocationPing, error) {
	var p model.LocationPing
	var g []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, ST_AsEWKB(geom), accuracy_m, ts FROM location_pings
		 WHERE user_id = $1 ORDER BY ts DESC LIMIT 1`, userID,
	).Scan(&p.ID, &p.UserID, &g, &p.AccuracyM, &p.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest ping %s", userID)
	}
	pt, err := geo.DecodeEWKB(g)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest ping %s", userID)
	}
	p.Latitude, p.Longitude = pt.Lat, pt.Lon
	return &p, nil
}

// ImportPings bulk-loads historical pings with COPY.
func (s *PostgresStore) ImportPings(ctx context.Context, pings []model.LocationPing) (int64, error) {
	rows := make([][]any, 0, len(pings))
	for _, p := range pings {
		row, err := pingRow(p)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import ping %s", p.ID)
		}
		rows = append(rows, row)
	}
	return db.CopyFrom(ctx, s.pool, "location_pings", pingColumns, rows)
}

// --- Dwell state ---

func (s *PostgresStore) SwapPosition(ctx context.Context, userID string, pos model.Position) (*model.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: swap position: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var prev *model.Position
	var p model.Position
	err = tx.QueryRow(ctx,
		`SELECT latitude, longitude, ts FROM last_positions WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&p.Latitude, &p.Longitude, &p.Timestamp)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, eris.Wrapf(err, "postgres: swap position %s", userID)
	default:
		prev = &p
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO last_positions (user_id, latitude, longitude, ts) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, ts = EXCLUDED.ts`,
		userID, pos.Latitude, pos.Longitude, pos.Timestamp,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: store position %s", userID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: swap position: commit")
	}
	return prev, nil
}

func (s *PostgresStore) RecordDwell(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: record dwell: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM dwell_pings WHERE user_id = $1 AND ts < $2`, userID, at.Add(-window),
	); err != nil {
		return 0, eris.Wrap(err, "postgres: record dwell: evict")
	}
	var count int
	if err := tx.QueryRow(ctx,
		`WITH ins AS (INSERT INTO dwell_pings (user_id, ts) VALUES ($1, $2) RETURNING 1)
		 SELECT (SELECT COUNT(*) FROM dwell_pings WHERE user_id = $1) + (SELECT COUNT(*) FROM ins)`,
		userID, at,
	).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "postgres: record dwell: insert")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: record dwell: commit")
	}
	return count, nil
}

func (s *PostgresStore) PutDwellConfig(ctx context.Context, c model.DwellConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dwell_configs (user_id, block_ping_threshold, dwell_window_minutes) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET block_ping_threshold = EXCLUDED.block_ping_threshold,
		   dwell_window_minutes = EXCLUDED.dwell_window_minutes`,
		c.UserID, c.BlockPingThreshold, c.DwellWindowMinutes,
	)
	return eris.Wrapf(err, "postgres: put dwell config %s", c.UserID)
}

func (s *PostgresStore) DwellConfig(ctx context.Context, userID string) (*model.DwellConfig, error) {
	c := model.DwellConfig{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT block_ping_threshold, dwell_window_minutes FROM dwell_configs WHERE user_id = $1`, userID,
	).Scan(&c.BlockPingThreshold, &c.DwellWindowMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: dwell config %s", userID)
	}
	return &c, nil
}

// --- Obligations ---

var obligationColumns = []string{"event_id", "user_id", "name", "category", "amount", "due_date", "mandatory", "importance"}

func obligationRow(o model.Obligation) []any {
	return []any{o.EventID, o.UserID, o.Name, o.Category, o.Amount, o.DueDate, o.Mandatory, o.Importance}
}

func (s *PostgresStore) PutObligation(ctx context.Context, o model.Obligation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO obligations (event_id, user_id, name, category, amount, due_date, mandatory, importance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id) DO UPDATE SET user_id = EXCLUDED.user_id, name = EXCLUDED.name,
		   category = EXCLUDED.category, amount = EXCLUDED.amount, due_date = EXCLUDED.due_date,
		   mandatory = EXCLUDED.mandatory, importance = EXCLUDED.importance`,
		obligationRow(o)...,
	)
	return eris.Wrapf(err, "postgres: put obligation %s", o.EventID)
}

// ImportObligations upserts a calendar export in one transaction.
func (s *PostgresStore) ImportObligations(ctx context.Context, obs []model.Obligation) (int64, error) {
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = obligationRow(o)
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "obligations",
		Columns:      obligationColumns,
		ConflictKeys: []string{"event_id"},
	}, rows)
}

func (s *PostgresStore) UpcomingObligations(ctx context.Context, userID string, from, to time.Time) ([]model.Obligation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, user_id, name, category, amount, due_date, mandatory, importance
		 FROM obligations WHERE user_id = $1 AND due_date >= $2 AND due_date <= $3 ORDER BY seq`,
		userID, from, to)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upcoming obligations %s", userID)
	}
	defer rows.Close()

	var out []model.Obligation
	for rows.Next() {
		var o model.Obligation
		if err := rows.Scan(&o.EventID, &o.UserID, &o.Name, &o.Category, &o.Amount, &o.DueDate, &o.Mandatory, &o.Importance); err != nil {
			return nil, eris.Wrap(err, "postgres: scan obligation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate obligations")
}

// --- Audit journal ---

func (s *PostgresStore) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, user_id, event_type, decision, reason, amount_cents, merchant, category, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.UserID, string(ev.EventType), string(ev.Decision), ev.Reason, ev.AmountCents, ev.Merchant, ev.Category, ev.Timestamp,
	)
	return eris.Wrapf(err, "postgres: append audit %s", ev.ID)
}

func (s *PostgresStore) ListAudit(ctx context.Context, userID string, from, to time.Time) ([]model.AuditEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, event_type, decision, reason, amount_cents, merchant, category, ts
		 FROM audit_events WHERE user_id = $1 AND ts >= $2 AND ts < $3 ORDER BY ts`,
		userID, from, to)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audit %s", userID)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var et, dec string
		if err := rows.Scan(&ev.ID, &ev.UserID, &et, &dec, &ev.Reason, &ev.AmountCents, &ev.Merchant, &ev.Category, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		ev.EventType = model.AuditEventType(et)
		ev.Decision = model.AuthDecision(dec)
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate audit")
}
