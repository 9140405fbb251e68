package location

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/store"
)

func ptr(v float64) *float64 { return &v }

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRecord_Stores(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st)
	ctx := context.Background()

	ping, err := svc.Record(ctx, model.PingRequest{UserID: "u1", Lat: ptr(40.7), Lon: ptr(-74.0), AccuracyM: ptr(12), At: base})
	require.NoError(t, err)
	assert.NotEmpty(t, ping.ID)
	assert.Equal(t, base, ping.Timestamp)

	latest, err := st.LatestPing(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ping.ID, latest.ID)
	assert.InDelta(t, 40.7, latest.Latitude, 1e-12)
}

func TestRecord_DefaultsTimestamp(t *testing.T) {
	svc := NewService(store.NewMemory(), WithClock(func() time.Time { return base }))
	ping, err := svc.Record(context.Background(), model.PingRequest{UserID: "u1", Lat: ptr(0), Lon: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, base, ping.Timestamp)
}

func TestRecord_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  model.PingRequest
	}{
		{"missing user", model.PingRequest{Lat: ptr(0), Lon: ptr(0)}},
		{"missing lat", model.PingRequest{UserID: "u1", Lon: ptr(0)}},
		{"lat out of range", model.PingRequest{UserID: "u1", Lat: ptr(91), Lon: ptr(0)}},
		{"lon out of range", model.PingRequest{UserID: "u1", Lat: ptr(0), Lon: ptr(-181)}},
		{"nan lat", model.PingRequest{UserID: "u1", Lat: ptr(math.NaN()), Lon: ptr(0)}},
		{"inf lon", model.PingRequest{UserID: "u1", Lat: ptr(0), Lon: ptr(math.Inf(1))}},
		{"negative accuracy", model.PingRequest{UserID: "u1", Lat: ptr(0), Lon: ptr(0), AccuracyM: ptr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			_, err := NewService(st).Record(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err))

			latest, err := st.LatestPing(context.Background(), "u1")
			require.NoError(t, err)
			assert.Nil(t, latest)
		})
	}
}

func TestRecord_RejectsOutOfOrder(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	_, err := svc.Record(ctx, model.PingRequest{UserID: "u1", Lat: ptr(1), Lon: ptr(1), At: base})
	require.NoError(t, err)

	_, err = svc.Record(ctx, model.PingRequest{UserID: "u1", Lat: ptr(2), Lon: ptr(2), At: base.Add(-time.Second)})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	_, err = svc.Record(ctx, model.PingRequest{UserID: "u1", Lat: ptr(3), Lon: ptr(3), At: base})
	require.NoError(t, err, "equal timestamps are accepted")

	// Ordering is per user.
	_, err = svc.Record(ctx, model.PingRequest{UserID: "u2", Lat: ptr(3), Lon: ptr(3), At: base.Add(-time.Hour)})
	require.NoError(t, err)
}

type brokenStore struct{}

func (brokenStore) AppendPing(context.Context, model.LocationPing) error { return errors.New("disk full") }
func (brokenStore) LatestPing(context.Context, string) (*model.LocationPing, error) {
	return nil, nil
}

func TestRecord_StoreError(t *testing.T) {
	_, err := NewService(brokenStore{}).Record(context.Background(), model.PingRequest{UserID: "u1", Lat: ptr(0), Lon: ptr(0)})
	require.Error(t, err)
	assert.False(t, model.IsValidation(err))
	assert.Contains(t, err.Error(), "append ping")
}
