package places

import (
	"github.com/guardian-card/guardian-core/internal/geo"
	"github.com/guardian-card/guardian-core/internal/model"
)

// RestaurantTypes are the place types treated as dining.
var RestaurantTypes = map[string]bool{
	"restaurant":    true,
	"cafe":          true,
	"bar":           true,
	"meal_takeaway": true,
	"meal_delivery": true,
	"bakery":        true,
	"night_club":    true,
}

// IsRestaurantLike reports whether any of the place's types is a dining type.
func IsRestaurantLike(p model.Place) bool {
	for _, t := range p.Types {
		if RestaurantTypes[t] {
			return true
		}
	}
	return false
}

// NearestRestaurant returns the closest restaurant-like place within maxM
// meters of (lat, lon), or nil. Ties keep the earlier place.
func NearestRestaurant(found []model.Place, lat, lon, maxM float64) *model.Place {
	var best *model.Place
	bestD := 0.0
	for i := range found {
		p := found[i]
		if !IsRestaurantLike(p) {
			continue
		}
		d := geo.Haversine(lat, lon, p.Lat, p.Lon)
		if d > maxM {
			continue
		}
		if best == nil || d < bestD {
			best = &found[i]
			bestD = d
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
