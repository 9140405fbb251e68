// Package geofence matches a user's latest position against their risk
// zones and manages those zones.
package geofence

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/geo"
	"github.com/guardian-card/guardian-core/internal/model"
)

// Store is the persistence the evaluator needs.
type Store interface {
	PutGeofence(ctx context.Context, g model.Geofence) (model.Geofence, error)
	ListGeofences(ctx context.Context, userID string) ([]model.Geofence, error)
	DeleteGeofence(ctx context.Context, userID, id string) error
	LatestPing(ctx context.Context, userID string) (*model.LocationPing, error)
}

// Match is the fence a position fell inside.
type Match struct {
	Fence     model.Geofence
	DistanceM float64
}

// Evaluator resolves which fence, if any, governs a charge.
type Evaluator struct {
	store Store
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// Applies reports whether fence f governs a charge in cat. Unscoped fences
// govern every charge; scoped fences only charges in the same category,
// compared without regard to case.
func Applies(f model.Geofence, cat string) bool {
	if strings.TrimSpace(f.Category) == "" {
		return true
	}
	return category.SameScope(f.Category, cat)
}

// Evaluate checks the user's most recent ping against their fences in
// configured order and returns the first fence containing it. A nil Match
// means no fence applies, including when no ping is on file.
func (e *Evaluator) Evaluate(ctx context.Context, userID, cat string) (*Match, error) {
	ping, err := e.store.LatestPing(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "geofence: latest ping")
	}
	if ping == nil {
		return nil, nil
	}
	fences, err := e.store.ListGeofences(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "geofence: list")
	}
	return FirstMatch(fences, geo.Point{Lat: ping.Latitude, Lon: ping.Longitude}, cat), nil
}

// FirstMatch returns the first applicable fence whose radius contains p.
func FirstMatch(fences []model.Geofence, p geo.Point, cat string) *Match {
	for _, f := range fences {
		if !Applies(f, cat) {
			continue
		}
		d := geo.Distance(p, geo.Point{Lat: f.Latitude, Lon: f.Longitude})
		if d <= f.RadiusM {
			zap.L().Debug("geofence matched",
				zap.String("fence", f.Name),
				zap.String("policy", string(f.Policy)),
				zap.Float64("distance_m", d),
			)
			return &Match{Fence: f, DistanceM: d}
		}
	}
	return nil
}

// Create validates and stores a fence. Policy defaults to block and name to
// "Geofence".
func (e *Evaluator) Create(ctx context.Context, g model.Geofence) (model.Geofence, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		g.Name = "Geofence"
	}
	g.Policy = model.FencePolicy(strings.ToLower(strings.TrimSpace(string(g.Policy))))
	if g.Policy == "" {
		g.Policy = model.PolicyBlock
	}
	g.Category = strings.TrimSpace(g.Category)
	if math.IsNaN(g.Latitude) || math.IsNaN(g.Longitude) || math.IsNaN(g.RadiusM) || math.IsInf(g.RadiusM, 0) {
		return model.Geofence{}, model.Invalid("geofence coordinates must be finite")
	}
	if err := model.Validate(g); err != nil {
		return model.Geofence{}, err
	}
	out, err := e.store.PutGeofence(ctx, g)
	if err != nil {
		return model.Geofence{}, eris.Wrap(err, "geofence: create")
	}
	return out, nil
}

// List returns the user's fences in evaluation order.
func (e *Evaluator) List(ctx context.Context, userID string) ([]model.Geofence, error) {
	fences, err := e.store.ListGeofences(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "geofence: list")
	}
	return fences, nil
}

// Delete removes a fence. Missing fences report store.ErrNotFound.
func (e *Evaluator) Delete(ctx context.Context, userID, id string) error {
	if err := e.store.DeleteGeofence(ctx, userID, id); err != nil {
		return eris.Wrap(err, "geofence: delete")
	}
	return nil
}
