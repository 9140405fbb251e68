package model

import "time"

// FencePolicy is the action taken when a user is inside a geofence.
type FencePolicy string

const (
	PolicyBlock FencePolicy = "block"
	PolicyWarn  FencePolicy = "warn"
)

// Geofence is a named circular risk zone owned by a user.
type Geofence struct {
	ID        string      `json:"id" yaml:"id"`
	UserID    string      `json:"user_id" yaml:"user_id" validate:"required"`
	Name      string      `json:"name" yaml:"name"`
	Latitude  float64     `json:"latitude" yaml:"latitude" validate:"latitude"`
	Longitude float64     `json:"longitude" yaml:"longitude" validate:"longitude"`
	RadiusM   float64     `json:"radius_m" yaml:"radius_m" validate:"gt=0"`
	Category  string      `json:"category,omitempty" yaml:"category"`
	Policy    FencePolicy `json:"policy" yaml:"policy" validate:"required,oneof=block warn"`
	Position  int         `json:"position" yaml:"position"`
}

// LocationPing is a single GPS sample.
type LocationPing struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id" validate:"required"`
	Latitude  float64   `json:"latitude" yaml:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" yaml:"longitude" validate:"longitude"`
	AccuracyM *float64  `json:"accuracy_m,omitempty" yaml:"accuracy_m" validate:"omitempty,gte=0"`
	Timestamp time.Time `json:"ts" yaml:"ts"`
}

// Position is the last known location used for stationary detection.
type Position struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Timestamp time.Time `json:"ts"`
}

// Place is a point of interest returned by a places provider.
type Place struct {
	ID    string   `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Types []string `json:"types" yaml:"types"`
	Lat   float64  `json:"lat" yaml:"lat"`
	Lon   float64  `json:"lon" yaml:"lon"`
}

// DwellConfig holds per-user dwell thresholds. Zero fields fall back to defaults.
type DwellConfig struct {
	UserID             string `json:"user_id" yaml:"user_id" validate:"required"`
	BlockPingThreshold int    `json:"block_ping_threshold" yaml:"block_ping_threshold" validate:"gte=0"`
	DwellWindowMinutes int    `json:"dwell_window_minutes" yaml:"dwell_window_minutes" validate:"gte=0"`
}

// LocationDecision is the verdict of the dwell detector.
type LocationDecision string

const (
	LocationOK    LocationDecision = "ok"
	LocationBlock LocationDecision = "block"
)

// LocationCheckRequest asks the dwell detector to evaluate a position.
type LocationCheckRequest struct {
	UserID string    `json:"user_id" validate:"required"`
	Lat    *float64  `json:"lat" validate:"required,latitude"`
	Lon    *float64  `json:"lon" validate:"required,longitude"`
	At     time.Time `json:"ts,omitempty"`
}

// DwellStats summarises the sliding window at the time of a block.
type DwellStats struct {
	RecentStationaryPings int `json:"recent_stationary_pings_near_restaurants"`
	WindowMinutes         int `json:"window_minutes"`
}

// Notification is an event surfaced to the user.
type Notification struct {
	Type     string `json:"type" yaml:"type"`
	Code     string `json:"code" yaml:"code"`
	Severity string `json:"severity" yaml:"severity"`
}

// LocationCheck is the outcome of a dwell check.
type LocationCheck struct {
	Decision      LocationDecision `json:"decision"`
	Stationary    bool             `json:"stationary"`
	NearestPlace  string           `json:"nearest_place,omitempty"`
	Stats         *DwellStats      `json:"stats,omitempty"`
	Notifications []Notification   `json:"notifications,omitempty"`
}

// PingRequest records a raw GPS sample.
type PingRequest struct {
	UserID    string    `json:"user_id" validate:"required"`
	Lat       *float64  `json:"lat" validate:"required,latitude"`
	Lon       *float64  `json:"lon" validate:"required,longitude"`
	AccuracyM *float64  `json:"accuracy_m,omitempty" validate:"omitempty,gte=0"`
	At        time.Time `json:"ts,omitempty"`
}
