// Package override issues and redeems single-use approval tokens keyed by
// (user, merchant, amount).
package override

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/model"
)

// DefaultTTL is how long a token stays redeemable when no TTL is given.
const DefaultTTL = 5 * time.Minute

// Store persists override tokens. TakeToken must atomically delete one live
// token matching the triple and report whether it found one; concurrent
// callers racing for the same token must see exactly one success.
type Store interface {
	InsertToken(ctx context.Context, tok model.OverrideToken) error
	TakeToken(ctx context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTTL sets the default token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger issues and redeems override tokens.
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewLedger creates a Ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create inserts a token that expires ttl from now. A non-positive ttl uses
// the ledger default. Tokens for the same triple may coexist.
func (l *Ledger) Create(ctx context.Context, userID, merchant string, amountCents int64, ttl time.Duration) (model.OverrideToken, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	now := l.now().UTC()
	tok := model.OverrideToken{
		ID:          uuid.New().String(),
		UserID:      userID,
		Merchant:    merchant,
		AmountCents: amountCents,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := l.store.InsertToken(ctx, tok); err != nil {
		return model.OverrideToken{}, eris.Wrap(err, "override: create")
	}
	zap.L().Debug("override token created",
		zap.String("user_id", userID),
		zap.String("merchant", merchant),
		zap.Int64("amount_cents", amountCents),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

// Redeem consumes one live token for the exact triple. It returns false when
// none exists, including when another caller consumed it first.
func (l *Ledger) Redeem(ctx context.Context, userID, merchant string, amountCents int64) (bool, error) {
	ok, err := l.store.TakeToken(ctx, userID, merchant, amountCents, l.now().UTC())
	if err != nil {
		return false, eris.Wrap(err, "override: redeem")
	}
	return ok, nil
}

// Sweep deletes expired tokens and returns how many were removed.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	n, err := l.store.DeleteExpiredTokens(ctx, l.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "override: sweep")
	}
	return n, nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (l *Ledger) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := l.Sweep(ctx)
				if err != nil {
					zap.L().Warn("override sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					zap.L().Info("override sweep", zap.Int("deleted", n))
				}
			}
		}
	}()
}
