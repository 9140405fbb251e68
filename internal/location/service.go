// Package location records raw GPS samples that geofence evaluation reads.
package location

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/keylock"
	"github.com/guardian-card/guardian-core/internal/model"
)

// Store is the ping history the service appends to.
type Store interface {
	AppendPing(ctx context.Context, p model.LocationPing) error
	LatestPing(ctx context.Context, userID string) (*model.LocationPing, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for pings without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocker shares a per-user lock with other components.
func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) { s.locks = l }
}

// Service validates and stores location pings.
type Service struct {
	store Store
	locks *keylock.Locker
	now   func() time.Time
}

// NewService creates a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, locks: keylock.New(0), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record validates req and appends it to the user's history. A ping older
// than the latest stored one is rejected; equal timestamps are accepted.
func (s *Service) Record(ctx context.Context, req model.PingRequest) (model.LocationPing, error) {
	if err := checkFinite(req.Lat, req.Lon, req.AccuracyM); err != nil {
		return model.LocationPing{}, err
	}
	if err := model.Validate(req); err != nil {
		return model.LocationPing{}, err
	}

	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	ping := model.LocationPing{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Latitude:  *req.Lat,
		Longitude: *req.Lon,
		AccuracyM: req.AccuracyM,
		Timestamp: at.UTC(),
	}

	unlock := s.locks.Lock(req.UserID)
	defer unlock()

	latest, err := s.store.LatestPing(ctx, req.UserID)
	if err != nil {
		return model.LocationPing{}, eris.Wrap(err, "location: latest ping")
	}
	if latest != nil && ping.Timestamp.Before(latest.Timestamp) {
		return model.LocationPing{}, model.Invalid("ping at %s is older than latest ping at %s",
			ping.Timestamp.Format(time.RFC3339), latest.Timestamp.Format(time.RFC3339))
	}

	if err := s.store.AppendPing(ctx, ping); err != nil {
		return model.LocationPing{}, eris.Wrap(err, "location: append ping")
	}
	zap.L().Debug("location ping recorded", zap.String("user_id", ping.UserID))
	return ping, nil
}

func checkFinite(lat, lon, acc *float64) error {
	for name, v := range map[string]*float64{"lat": lat, "lon": lon, "accuracy_m": acc} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return model.Invalid("%s must be a finite number", name)
		}
	}
	return nil
}
