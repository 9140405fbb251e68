package places

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/model"
)

func TestIsRestaurantLike(t *testing.T) {
	tests := []struct {
		types []string
		want  bool
	}{
		{[]string{"restaurant"}, true},
		{[]string{"food", "meal_takeaway"}, true},
		{[]string{"night_club"}, true},
		{[]string{"bakery"}, true},
		{[]string{"pharmacy", "store"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRestaurantLike(model.Place{Types: tt.types}), "%v", tt.types)
	}
}

func TestNearestRestaurant(t *testing.T) {
	found := []model.Place{
		{ID: "pharm", Types: []string{"pharmacy"}, Lat: 40.70001, Lon: -74.0},
		{ID: "cafe", Types: []string{"cafe"}, Lat: 40.7003, Lon: -74.0},
		{ID: "bar", Types: []string{"bar"}, Lat: 40.7001, Lon: -74.0},
		{ID: "diner", Types: []string{"restaurant"}, Lat: 40.7008, Lon: -74.0},
	}

	got := NearestRestaurant(found, 40.7, -74.0, 50)
	require.NotNil(t, got)
	assert.Equal(t, "bar", got.ID)

	// The diner is about 89 m away; only cafe and bar qualify within 50 m.
	got = NearestRestaurant(found[3:], 40.7, -74.0, 50)
	assert.Nil(t, got)
}

func TestNearestRestaurant_None(t *testing.T) {
	assert.Nil(t, NearestRestaurant(nil, 0, 0, 50))
	assert.Nil(t, NearestRestaurant([]model.Place{{Types: []string{"gym"}}}, 0, 0, 50))
}
