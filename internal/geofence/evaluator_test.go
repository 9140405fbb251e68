package geofence

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/geo"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/store"
)

// Roughly 111 m per 0.001 degree of latitude.
var center = geo.Point{Lat: 40.7128, Lon: -74.0060}

func fence(name, cat string, policy model.FencePolicy, radius float64) model.Geofence {
	return model.Geofence{
		UserID: "u1", Name: name, Latitude: center.Lat, Longitude: center.Lon,
		RadiusM: radius, Category: cat, Policy: policy,
	}
}

func TestApplies(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		cat   string
		want  bool
	}{
		{"unscoped applies to all", "", "groceries", true},
		{"unscoped applies to none", "", "", true},
		{"same scope", "alcohol", "alcohol", true},
		{"case-insensitive", "Alcohol", "ALCOHOL", true},
		{"other scope", "alcohol", "groceries", false},
		{"scoped fence without category", "alcohol", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Applies(model.Geofence{Category: tt.scope}, tt.cat))
		})
	}
}

func TestFirstMatch(t *testing.T) {
	fences := []model.Geofence{
		fence("bar district", "alcohol", model.PolicyBlock, 500),
		fence("mall", "", model.PolicyWarn, 200),
		fence("casino", "", model.PolicyBlock, 200),
	}
	near := geo.Point{Lat: center.Lat + 0.001, Lon: center.Lon}
	far := geo.Point{Lat: center.Lat + 0.01, Lon: center.Lon}

	m := FirstMatch(fences, near, "alcohol")
	require.NotNil(t, m)
	assert.Equal(t, "bar district", m.Fence.Name)

	m = FirstMatch(fences, near, "groceries")
	require.NotNil(t, m)
	assert.Equal(t, "mall", m.Fence.Name)
	assert.InDelta(t, 111, m.DistanceM, 1)

	assert.Nil(t, FirstMatch(fences, far, "groceries"))
	assert.Nil(t, FirstMatch(nil, near, "groceries"))
}

func TestFirstMatch_BoundaryInclusive(t *testing.T) {
	p := geo.Point{Lat: center.Lat + 0.001, Lon: center.Lon}
	d := geo.Distance(p, center)

	assert.NotNil(t, FirstMatch([]model.Geofence{fence("edge", "", model.PolicyBlock, d)}, p, ""))
	assert.Nil(t, FirstMatch([]model.Geofence{fence("edge", "", model.PolicyBlock, d-0.01)}, p, ""))
}

func TestEvaluate(t *testing.T) {
	mem := store.NewMemory()
	e := NewEvaluator(mem)
	ctx := context.Background()

	_, err := e.Create(ctx, fence("liquor store", "alcohol", model.PolicyBlock, 150))
	require.NoError(t, err)

	// No ping on file
	m, err := e.Evaluate(ctx, "u1", "alcohol")
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, mem.AppendPing(ctx, model.LocationPing{
		ID: "p1", UserID: "u1", Latitude: center.Lat, Longitude: center.Lon, Timestamp: time.Now(),
	}))

	m, err = e.Evaluate(ctx, "u1", "alcohol")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.PolicyBlock, m.Fence.Policy)

	m, err = e.Evaluate(ctx, "u1", "groceries")
	require.NoError(t, err)
	assert.Nil(t, m)
}

type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) LatestPing(context.Context, string) (*model.LocationPing, error) {
	return nil, errors.New("timeout")
}

func TestEvaluate_StoreError(t *testing.T) {
	e := NewEvaluator(brokenStore{store.NewMemory()})
	_, err := e.Evaluate(context.Background(), "u1", "")
	assert.ErrorContains(t, err, "geofence: latest ping")
}

func TestCreate_DefaultsAndValidation(t *testing.T) {
	e := NewEvaluator(store.NewMemory())
	ctx := context.Background()

	g, err := e.Create(ctx, model.Geofence{UserID: "u1", Latitude: 1, Longitude: 2, RadiusM: 10, Policy: "WARN"})
	require.NoError(t, err)
	assert.Equal(t, "Geofence", g.Name)
	assert.Equal(t, model.PolicyWarn, g.Policy)
	assert.NotEmpty(t, g.ID)

	g, err = e.Create(ctx, model.Geofence{UserID: "u1", Name: "casino", Latitude: 1, Longitude: 2, RadiusM: 10})
	require.NoError(t, err)
	assert.Equal(t, model.PolicyBlock, g.Policy)

	bad := []model.Geofence{
		{UserID: "u1", Latitude: 1, Longitude: 2, RadiusM: 0},
		{UserID: "u1", Latitude: 91, Longitude: 2, RadiusM: 10},
		{UserID: "u1", Latitude: 1, Longitude: 2, RadiusM: 10, Policy: "ignore"},
		{UserID: "u1", Latitude: math.NaN(), Longitude: 2, RadiusM: 10},
		{Latitude: 1, Longitude: 2, RadiusM: 10},
	}
	for i, b := range bad {
		_, err := e.Create(ctx, b)
		require.Error(t, err, i)
		assert.True(t, model.IsValidation(err), i)
	}

	fences, err := e.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, fences, 2)
	assert.Equal(t, "Geofence", fences[0].Name)

	require.NoError(t, e.Delete(ctx, "u1", fences[0].ID))
	assert.ErrorIs(t, e.Delete(ctx, "u1", fences[0].ID), store.ErrNotFound)
}
