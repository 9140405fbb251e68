// Package store persists guardian state: profiles, spend ledgers, budget
// rules, override tokens, geofences, location pings, dwell windows,
// obligations and the audit journal.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/guardian-card/guardian-core/internal/model"
)

// ErrNotFound is returned when a management lookup finds nothing.
var ErrNotFound = eris.New("not found")

// TokenStore persists override tokens.
type TokenStore interface {
	InsertToken(ctx context.Context, tok model.OverrideToken) error
	TakeToken(ctx context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// DwellStore holds last positions and dwell ping windows.
type DwellStore interface {
	SwapPosition(ctx context.Context, userID string, pos model.Position) (*model.Position, error)
	RecordDwell(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error)
}

// Store defines the full persistence contract.
type Store interface {
	TokenStore
	DwellStore

	// Profiles
	EnsureProfile(ctx context.Context, def model.UserProfile) (model.UserProfile, error)
	PutProfile(ctx context.Context, p model.UserProfile) error

	// Spend ledger
	CategorySpend(ctx context.Context, userID, category string) (float64, error)
	AddSpend(ctx context.Context, userID, category string, amount float64) (float64, error)
	SpendByCategory(ctx context.Context, userID string) (map[string]float64, error)

	// Budget rules
	PutRule(ctx context.Context, r model.BudgetRule) error
	MonthlyLimit(ctx context.Context, userID, category string) (int64, bool, error)

	// Geofences
	PutGeofence(ctx context.Context, g model.Geofence) (model.Geofence, error)
	ListGeofences(ctx context.Context, userID string) ([]model.Geofence, error)
	DeleteGeofence(ctx context.Context, userID, id string) error

	// Location pings
	AppendPing(ctx context.Context, p model.LocationPing) error
	LatestPing(ctx context.Context, userID string) (*model.LocationPing, error)

	// Dwell configuration
	PutDwellConfig(ctx context.Context, c model.DwellConfig) error
	DwellConfig(ctx context.Context, userID string) (*model.DwellConfig, error)

	// Obligations
	PutObligation(ctx context.Context, o model.Obligation) error
	UpcomingObligations(ctx context.Context, userID string, from, to time.Time) ([]model.Obligation, error)

	// Audit journal
	AppendAudit(ctx context.Context, ev model.AuditEvent) error
	ListAudit(ctx context.Context, userID string, from, to time.Time) ([]model.AuditEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Composite overlays a Redis-backed token and dwell store on a primary store.
type Composite struct {
	Store
	Tokens TokenStore
	Dwell  DwellStore
}

// InsertToken implements TokenStore.
func (c *Composite) InsertToken(ctx context.Context, tok model.OverrideToken) error {
	return c.Tokens.InsertToken(ctx, tok)
}

// TakeToken implements TokenStore.
func (c *Composite) TakeToken(ctx context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error) {
	return c.Tokens.TakeToken(ctx, userID, merchant, amountCents, now)
}

// DeleteExpiredTokens implements TokenStore.
func (c *Composite) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	return c.Tokens.DeleteExpiredTokens(ctx, now)
}

// SwapPosition implements DwellStore.
func (c *Composite) SwapPosition(ctx context.Context, userID string, pos model.Position) (*model.Position, error) {
	return c.Dwell.SwapPosition(ctx, userID, pos)
}

// RecordDwell implements DwellStore.
func (c *Composite) RecordDwell(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	return c.Dwell.RecordDwell(ctx, userID, at, window)
}

// Close closes the overlay stores that can be closed, then the primary store.
func (c *Composite) Close() error {
	seen := map[any]bool{}
	for _, o := range []any{c.Tokens, c.Dwell} {
		if closer, ok := o.(interface{ Close() error }); ok && !seen[o] {
			seen[o] = true
			_ = closer.Close()
		}
	}
	return c.Store.Close()
}

// WithRedis returns base with tokens and dwell state served by r.
func WithRedis(base Store, r *RedisStore) Store {
	return &Composite{Store: base, Tokens: r, Dwell: r}
}
