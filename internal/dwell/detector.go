// Package dwell detects users lingering near restaurant-like places.
//
// Each check compares the new position with the previous one to decide
// whether the user is stationary. Stationary pings within a short distance
// of a dining place are counted in a per-user sliding window; once the
// count reaches the block threshold the check answers block and a
// notification is sent.
package dwell

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/geo"
	"github.com/guardian-card/guardian-core/internal/keylock"
	"github.com/guardian-card/guardian-core/internal/metrics"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/notify"
	"github.com/guardian-card/guardian-core/internal/places"
)

// Store holds positions, dwell windows and per-user thresholds.
type Store interface {
	SwapPosition(ctx context.Context, userID string, pos model.Position) (*model.Position, error)
	RecordDwell(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error)
	PutDwellConfig(ctx context.Context, c model.DwellConfig) error
	DwellConfig(ctx context.Context, userID string) (*model.DwellConfig, error)
}

// DefaultConfig returns the built-in detector settings.
func DefaultConfig() config.DwellConfig {
	return config.DwellConfig{
		StationarySpeedMPS:   1.0,
		MaxStationaryGapSecs: 600,
		BlockPingThreshold:   3,
		DwellWindowMinutes:   30,
		SearchRadiusM:        100,
		RestaurantRadiusM:    50,
	}
}

// notifyTimeout bounds a single background notification delivery.
const notifyTimeout = 10 * time.Second

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the time source for checks without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLocker shares a per-user lock with other components.
func WithLocker(l *keylock.Locker) Option {
	return func(d *Detector) { d.locks = l }
}

// WithNotifier sets where block notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Detector) { d.notifier = n }
}

// WithTemplates sets the notification template table.
func WithTemplates(t notify.TemplateSet) Option {
	return func(d *Detector) {
		if t != nil {
			d.templates = t
		}
	}
}

// Detector evaluates location checks.
type Detector struct {
	store     Store
	places    places.Provider
	notifier  notify.Notifier
	templates notify.TemplateSet
	cfg       config.DwellConfig
	locks     *keylock.Locker
	now       func() time.Time

	pending sync.WaitGroup
}

// NewDetector creates a Detector. Zero fields in cfg take their defaults.
func NewDetector(store Store, provider places.Provider, cfg config.DwellConfig, opts ...Option) *Detector {
	def := DefaultConfig()
	if cfg.StationarySpeedMPS <= 0 {
		cfg.StationarySpeedMPS = def.StationarySpeedMPS
	}
	if cfg.MaxStationaryGapSecs <= 0 {
		cfg.MaxStationaryGapSecs = def.MaxStationaryGapSecs
	}
	if cfg.BlockPingThreshold <= 0 {
		cfg.BlockPingThreshold = def.BlockPingThreshold
	}
	if cfg.DwellWindowMinutes <= 0 {
		cfg.DwellWindowMinutes = def.DwellWindowMinutes
	}
	if cfg.SearchRadiusM <= 0 {
		cfg.SearchRadiusM = def.SearchRadiusM
	}
	if cfg.RestaurantRadiusM <= 0 {
		cfg.RestaurantRadiusM = def.RestaurantRadiusM
	}

	d := &Detector{
		store:     store,
		places:    places.NewSafeProvider(provider),
		notifier:  notify.LogNotifier{},
		templates: notify.DefaultTemplates(),
		cfg:       cfg,
		locks:     keylock.New(0),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stationary reports whether moving from prev to cur counts as standing
// still. A non-positive elapsed time is never stationary.
func Stationary(prev, cur model.Position, speedMPS, maxGapSecs float64) bool {
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return false
	}
	dist := geo.Haversine(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
	return dist/dt < speedMPS && dt <= maxGapSecs
}

// Check evaluates one location sample. Places lookups that fail are treated
// as nothing nearby, so the only errors are invalid input and store failures.
// The per-user lock covers only the position swap and the window update;
// the places lookup runs before it and notifications are delivered in the
// background.
func (d *Detector) Check(ctx context.Context, req model.LocationCheckRequest) (model.LocationCheck, error) {
	if req.Lat != nil && (math.IsNaN(*req.Lat) || math.IsInf(*req.Lat, 0)) ||
		req.Lon != nil && (math.IsNaN(*req.Lon) || math.IsInf(*req.Lon, 0)) {
		return model.LocationCheck{}, model.Invalid("lat and lon must be finite numbers")
	}
	if err := model.Validate(req); err != nil {
		return model.LocationCheck{}, err
	}

	at := req.At
	if at.IsZero() {
		at = d.now()
	}
	cur := model.Position{Latitude: *req.Lat, Longitude: *req.Lon, Timestamp: at.UTC()}

	found, _ := d.places.Nearby(ctx, cur.Latitude, cur.Longitude, d.cfg.SearchRadiusM)
	nearest := places.NearestRestaurant(found, cur.Latitude, cur.Longitude, d.cfg.RestaurantRadiusM)

	out := model.LocationCheck{Decision: model.LocationOK}
	if nearest != nil {
		out.NearestPlace = nearest.Name
	}

	threshold, err := d.track(ctx, req.UserID, cur, nearest != nil, &out)
	if err != nil {
		return model.LocationCheck{}, err
	}

	if out.Stats != nil && out.Stats.RecentStationaryPings >= threshold {
		out.Decision = model.LocationBlock
		n := d.templates.Build(notify.CodeRestaurantStationary)
		out.Notifications = []model.Notification{n}
		d.dispatch(ctx, notify.Event{UserID: req.UserID, Notification: n, Timestamp: cur.Timestamp})
	}
	d.finish(req.UserID, out)
	return out, nil
}

// track swaps in the new position and, when the user is stationary near a
// restaurant, records the ping in the dwell window. It fills out.Stationary
// and out.Stats and returns the block threshold in effect.
func (d *Detector) track(ctx context.Context, userID string, cur model.Position, nearRestaurant bool, out *model.LocationCheck) (int, error) {
	unlock := d.locks.Lock(userID)
	defer unlock()

	prev, err := d.store.SwapPosition(ctx, userID, cur)
	if err != nil {
		return 0, eris.Wrap(err, "dwell: swap position")
	}
	out.Stationary = prev != nil && Stationary(*prev, cur, d.cfg.StationarySpeedMPS, d.cfg.MaxStationaryGapSecs)
	if !nearRestaurant || !out.Stationary {
		return 0, nil
	}

	threshold, windowMin, err := d.thresholds(ctx, userID)
	if err != nil {
		return 0, err
	}
	count, err := d.store.RecordDwell(ctx, userID, cur.Timestamp, time.Duration(windowMin)*time.Minute)
	if err != nil {
		return 0, eris.Wrap(err, "dwell: record")
	}
	out.Stats = &model.DwellStats{RecentStationaryPings: count, WindowMinutes: windowMin}
	return threshold, nil
}

// dispatch delivers ev in the background. Delivery outlives the request
// context but is bounded by notifyTimeout.
func (d *Detector) dispatch(ctx context.Context, ev notify.Event) {
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		d.notifier.Notify(nctx, ev)
	}()
}

// Wait blocks until every dispatched notification has been delivered.
func (d *Detector) Wait() {
	d.pending.Wait()
}

// Configure stores per-user thresholds. Zero fields fall back to the
// detector defaults at check time.
func (d *Detector) Configure(ctx context.Context, c model.DwellConfig) error {
	if err := model.Validate(c); err != nil {
		return err
	}
	if err := d.store.PutDwellConfig(ctx, c); err != nil {
		return eris.Wrap(err, "dwell: put config")
	}
	return nil
}

func (d *Detector) thresholds(ctx context.Context, userID string) (int, int, error) {
	threshold, window := d.cfg.BlockPingThreshold, d.cfg.DwellWindowMinutes
	uc, err := d.store.DwellConfig(ctx, userID)
	if err != nil {
		return 0, 0, eris.Wrap(err, "dwell: load config")
	}
	if uc != nil {
		if uc.BlockPingThreshold > 0 {
			threshold = uc.BlockPingThreshold
		}
		if uc.DwellWindowMinutes > 0 {
			window = uc.DwellWindowMinutes
		}
	}
	return threshold, window, nil
}

func (d *Detector) finish(userID string, out model.LocationCheck) {
	metrics.DwellChecks.WithLabelValues(string(out.Decision)).Inc()
	zap.L().Debug("dwell check",
		zap.String("user_id", userID),
		zap.String("decision", string(out.Decision)),
		zap.Bool("stationary", out.Stationary),
		zap.String("nearest_place", out.NearestPlace),
	)
}
