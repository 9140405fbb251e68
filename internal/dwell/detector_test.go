package dwell

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/keylock"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/notify"
	"github.com/guardian-card/guardian-core/internal/places"
	"github.com/guardian-card/guardian-core/internal/store"
)

func ptr(v float64) *float64 { return &v }

var t0 = time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)

var diner = model.Place{ID: "d1", Name: "Joe's Diner", Types: []string{"restaurant"}, Lat: 40.7, Lon: -74.0}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type harness struct {
	det      *Detector
	store    *store.MemoryStore
	notifier *recordingNotifier
}

func newHarness(cfg config.DwellConfig, poi ...model.Place) *harness {
	st := store.NewMemory()
	n := &recordingNotifier{}
	return &harness{
		det:      NewDetector(st, places.NewStaticProvider(poi), cfg, WithNotifier(n)),
		store:    st,
		notifier: n,
	}
}

func (h *harness) check(t *testing.T, lat, lon float64, at time.Time) model.LocationCheck {
	t.Helper()
	out, err := h.det.Check(context.Background(), model.LocationCheckRequest{UserID: "u1", Lat: ptr(lat), Lon: ptr(lon), At: at})
	require.NoError(t, err)
	return out
}

// wideGap isolates window behaviour from the stationary gap limit.
func wideGap() config.DwellConfig {
	cfg := DefaultConfig()
	cfg.MaxStationaryGapSecs = 3600
	return cfg
}

func TestStationary(t *testing.T) {
	p := model.Position{Latitude: 40.7, Longitude: -74.0, Timestamp: t0}

	tests := []struct {
		name string
		cur  model.Position
		want bool
	}{
		{"same spot", model.Position{Latitude: 40.7, Longitude: -74.0, Timestamp: t0.Add(time.Minute)}, true},
		{"shuffling", model.Position{Latitude: 40.7003, Longitude: -74.0, Timestamp: t0.Add(time.Minute)}, true},
		{"driving", model.Position{Latitude: 40.71, Longitude: -74.0, Timestamp: t0.Add(time.Minute)}, false},
		{"gap too long", model.Position{Latitude: 40.7, Longitude: -74.0, Timestamp: t0.Add(11 * time.Minute)}, false},
		{"gap at limit", model.Position{Latitude: 40.7, Longitude: -74.0, Timestamp: t0.Add(10 * time.Minute)}, true},
		{"zero dt", model.Position{Latitude: 40.7, Longitude: -74.0, Timestamp: t0}, false},
		{"backwards", model.Position{Latitude: 40.7, Longitude: -74.0, Timestamp: t0.Add(-time.Minute)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stationary(p, tt.cur, 1.0, 600))
		})
	}
}

func TestCheck_FirstPingNeverStationary(t *testing.T) {
	h := newHarness(DefaultConfig(), diner)
	out := h.check(t, 40.7, -74.0, t0)
	assert.Equal(t, model.LocationOK, out.Decision)
	assert.False(t, out.Stationary)
	assert.Equal(t, "Joe's Diner", out.NearestPlace)
	assert.Nil(t, out.Stats)
}

func TestCheck_BlocksAfterThreeStationaryPings(t *testing.T) {
	h := newHarness(DefaultConfig(), diner)

	h.check(t, 40.7, -74.0, t0)
	out := h.check(t, 40.7, -74.0, t0.Add(10*time.Minute))
	assert.Equal(t, model.LocationOK, out.Decision)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 1, out.Stats.RecentStationaryPings)

	out = h.check(t, 40.7, -74.0, t0.Add(20*time.Minute))
	assert.Equal(t, model.LocationOK, out.Decision)
	h.det.Wait()
	assert.Empty(t, h.notifier.events)

	out = h.check(t, 40.7, -74.0, t0.Add(29*time.Minute))
	assert.Equal(t, model.LocationBlock, out.Decision)
	assert.True(t, out.Stationary)
	require.NotNil(t, out.Stats)
	assert.Equal(t, model.DwellStats{RecentStationaryPings: 3, WindowMinutes: 30}, *out.Stats)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, model.Notification{Type: "behavior", Code: notify.CodeRestaurantStationary, Severity: "warning"}, out.Notifications[0])

	h.det.Wait()
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, "u1", h.notifier.events[0].UserID)
	assert.Equal(t, t0.Add(29*time.Minute), h.notifier.events[0].Timestamp)
}

func TestCheck_WindowEvictsOldPings(t *testing.T) {
	within := newHarness(wideGap(), diner)
	within.check(t, 40.7, -74.0, t0)
	within.check(t, 40.7, -74.0, t0.Add(1*time.Minute))
	within.check(t, 40.7, -74.0, t0.Add(15*time.Minute))
	out := within.check(t, 40.7, -74.0, t0.Add(30*time.Minute))
	assert.Equal(t, model.LocationBlock, out.Decision)

	spread := newHarness(wideGap(), diner)
	spread.check(t, 40.7, -74.0, t0)
	spread.check(t, 40.7, -74.0, t0.Add(1*time.Minute))
	spread.check(t, 40.7, -74.0, t0.Add(16*time.Minute))
	out = spread.check(t, 40.7, -74.0, t0.Add(32*time.Minute))
	assert.Equal(t, model.LocationOK, out.Decision)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 2, out.Stats.RecentStationaryPings)
}

func TestCheck_NoRestaurantLeavesCounterAlone(t *testing.T) {
	pharmacy := model.Place{ID: "p1", Name: "Pharmacy", Types: []string{"pharmacy"}, Lat: 40.7, Lon: -74.0}
	h := newHarness(DefaultConfig(), pharmacy)

	for i := 0; i < 5; i++ {
		out := h.check(t, 40.7, -74.0, t0.Add(time.Duration(i)*time.Minute))
		assert.Equal(t, model.LocationOK, out.Decision)
		assert.Empty(t, out.NearestPlace)
		assert.Nil(t, out.Stats)
	}

	n, err := h.store.RecordDwell(context.Background(), "u1", t0.Add(5*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only this ping is in the window")
}

func TestCheck_RestaurantOutsideRadius(t *testing.T) {
	// About 67 m north: inside the search radius but beyond the restaurant radius.
	farDiner := model.Place{ID: "d2", Name: "Far Diner", Types: []string{"restaurant"}, Lat: 40.7006, Lon: -74.0}
	h := newHarness(DefaultConfig(), farDiner)
	h.check(t, 40.7, -74.0, t0)
	out := h.check(t, 40.7, -74.0, t0.Add(time.Minute))
	assert.True(t, out.Stationary)
	assert.Empty(t, out.NearestPlace)
	assert.Nil(t, out.Stats)
}

func TestCheck_MovingDoesNotCount(t *testing.T) {
	h := newHarness(DefaultConfig(), diner)
	h.check(t, 40.71, -74.0, t0)
	out := h.check(t, 40.7, -74.0, t0.Add(time.Minute))
	assert.False(t, out.Stationary)
	assert.Equal(t, "Joe's Diner", out.NearestPlace)
	assert.Nil(t, out.Stats)
}

func TestCheck_PerUserThresholds(t *testing.T) {
	h := newHarness(DefaultConfig(), diner)
	require.NoError(t, h.det.Configure(context.Background(), model.DwellConfig{UserID: "u1", BlockPingThreshold: 1}))

	h.check(t, 40.7, -74.0, t0)
	out := h.check(t, 40.7, -74.0, t0.Add(time.Minute))
	assert.Equal(t, model.LocationBlock, out.Decision)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 30, out.Stats.WindowMinutes, "zero window falls back to the default")
}

func TestConfigure_Validation(t *testing.T) {
	h := newHarness(DefaultConfig())
	err := h.det.Configure(context.Background(), model.DwellConfig{UserID: "u1", BlockPingThreshold: -1})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

type failingPlaces struct{}

func (failingPlaces) Name() string { return "failing" }

func (failingPlaces) Nearby(context.Context, float64, float64, float64) ([]model.Place, error) {
	return nil, errors.New("provider timeout")
}

func TestCheck_ProviderFailureIsOK(t *testing.T) {
	st := store.NewMemory()
	det := NewDetector(st, failingPlaces{}, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		out, err := det.Check(ctx, model.LocationCheckRequest{UserID: "u1", Lat: ptr(40.7), Lon: ptr(-74.0), At: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, model.LocationOK, out.Decision)
	}
}

func TestCheck_Validation(t *testing.T) {
	h := newHarness(DefaultConfig(), diner)
	ctx := context.Background()

	bad := []model.LocationCheckRequest{
		{Lat: ptr(40.7), Lon: ptr(-74.0)},
		{UserID: "u1", Lon: ptr(-74.0)},
		{UserID: "u1", Lat: ptr(95), Lon: ptr(-74.0)},
		{UserID: "u1", Lat: ptr(math.NaN()), Lon: ptr(-74.0)},
	}
	for _, req := range bad {
		_, err := h.det.Check(ctx, req)
		require.Error(t, err)
		assert.True(t, model.IsValidation(err))
	}

	prev, err := h.store.SwapPosition(ctx, "u1", model.Position{})
	require.NoError(t, err)
	assert.Nil(t, prev, "rejected checks do not move the user")
}

func TestCheck_DefaultsTimestamp(t *testing.T) {
	st := store.NewMemory()
	det := NewDetector(st, places.NewStaticProvider(nil), config.DwellConfig{}, WithClock(func() time.Time { return t0 }))
	_, err := det.Check(context.Background(), model.LocationCheckRequest{UserID: "u1", Lat: ptr(1), Lon: ptr(1)})
	require.NoError(t, err)

	prev, err := st.SwapPosition(context.Background(), "u1", model.Position{})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, t0, prev.Timestamp)
}

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	ctxErrs []error
}

func (b *blockingNotifier) Notify(ctx context.Context, _ notify.Event) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
}

// lockCheckingProvider checks whether the user's lock is free while a lookup
// is in flight.
type lockCheckingProvider struct {
	locks *keylock.Locker
	user  string
	free  []bool
	inner places.Provider
}

func (p *lockCheckingProvider) Name() string { return "lock-check" }

func (p *lockCheckingProvider) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]model.Place, error) {
	acquired := make(chan struct{})
	go func() {
		unlock := p.locks.Lock(p.user)
		unlock()
		close(acquired)
	}()
	select {
	case <-acquired:
		p.free = append(p.free, true)
	case <-time.After(time.Second):
		p.free = append(p.free, false)
	}
	return p.inner.Nearby(ctx, lat, lon, radiusM)
}

func TestCheck_PlacesLookupRunsOutsideUserLock(t *testing.T) {
	locks := keylock.New(0)
	provider := &lockCheckingProvider{locks: locks, user: "u1", inner: places.NewStaticProvider([]model.Place{diner})}
	det := NewDetector(store.NewMemory(), provider, DefaultConfig(), WithLocker(locks))

	_, err := det.Check(context.Background(), model.LocationCheckRequest{UserID: "u1", Lat: ptr(40.7), Lon: ptr(-74.0), At: t0})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, provider.free)
}

func TestCheck_NotificationDoesNotHoldUserLock(t *testing.T) {
	locks := keylock.New(0)
	n := &blockingNotifier{release: make(chan struct{})}
	det := NewDetector(store.NewMemory(), places.NewStaticProvider([]model.Place{diner}), DefaultConfig(),
		WithLocker(locks), WithNotifier(n))

	ctx, cancel := context.WithCancel(context.Background())
	var out model.LocationCheck
	for _, m := range []time.Duration{0, 10, 20, 29} {
		var err error
		out, err = det.Check(ctx, model.LocationCheckRequest{UserID: "u1", Lat: ptr(40.7), Lon: ptr(-74.0), At: t0.Add(m * time.Minute)})
		require.NoError(t, err)
	}
	require.Equal(t, model.LocationBlock, out.Decision)
	cancel()

	// The delivery is still parked, yet the user's lock is free.
	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("u1")
		unlock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("user lock held while a notification was pending")
	}

	close(n.release)
	det.Wait()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.ctxErrs, 1)
	assert.NoError(t, n.ctxErrs[0], "delivery must not inherit request cancellation")
}
