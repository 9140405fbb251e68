// Package places answers "what is near this coordinate" for the dwell
// detector. Providers are swappable; SafeProvider turns any failure into an
// empty answer so location checks never fail on a provider outage.
package places

import (
	"context"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/geo"
	"github.com/guardian-card/guardian-core/internal/metrics"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/resilience"
	gplaces "github.com/guardian-card/guardian-core/pkg/places"
)

// Provider looks up points of interest around a coordinate.
type Provider interface {
	Name() string
	Nearby(ctx context.Context, lat, lon, radiusM float64) ([]model.Place, error)
}

// StaticProvider serves a fixed dataset filtered by great-circle distance.
type StaticProvider struct {
	places []model.Place
}

// NewStaticProvider wraps an in-memory dataset.
func NewStaticProvider(places []model.Place) *StaticProvider {
	return &StaticProvider{places: places}
}

type staticFile struct {
	Places []model.Place `yaml:"places"`
}

// LoadStatic reads a YAML dataset of the form `places: [{id, name, types, lat, lon}]`.
// An empty path yields an empty provider.
func LoadStatic(path string) (*StaticProvider, error) {
	if path == "" {
		return NewStaticProvider(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "places: read %s", path)
	}
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "places: parse %s", path)
	}
	return NewStaticProvider(f.Places), nil
}

// Name implements Provider.
func (s *StaticProvider) Name() string { return "static" }

// Nearby implements Provider. Results are ordered by distance.
func (s *StaticProvider) Nearby(_ context.Context, lat, lon, radiusM float64) ([]model.Place, error) {
	type hit struct {
		p model.Place
		d float64
	}
	var hits []hit
	for _, p := range s.places {
		if d := geo.Haversine(lat, lon, p.Lat, p.Lon); d <= radiusM {
			hits = append(hits, hit{p, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].d < hits[j].d })

	out := make([]model.Place, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out, nil
}

// GoogleProvider queries the Places Nearby Search API through a circuit breaker.
type GoogleProvider struct {
	client  gplaces.Client
	breaker *resilience.Breaker
}

// NewGoogleProvider wraps a places client.
func NewGoogleProvider(client gplaces.Client, breaker *resilience.Breaker) *GoogleProvider {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{})
	}
	return &GoogleProvider{client: client, breaker: breaker}
}

// Name implements Provider.
func (g *GoogleProvider) Name() string { return "google" }

// Nearby implements Provider.
func (g *GoogleProvider) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]model.Place, error) {
	results, err := resilience.Do(ctx, g.breaker, func(ctx context.Context) ([]gplaces.Result, error) {
		return g.client.Nearby(ctx, lat, lon, radiusM)
	})
	if err != nil {
		return nil, eris.Wrap(err, "places: google nearby")
	}
	out := make([]model.Place, 0, len(results))
	for _, r := range results {
		out = append(out, model.Place{
			ID:    r.PlaceID,
			Name:  r.Name,
			Types: r.Types,
			Lat:   r.Lat,
			Lon:   r.Lon,
		})
	}
	return out, nil
}

// SafeProvider never returns an error: failures become an empty list.
type SafeProvider struct {
	inner Provider
}

// NewSafeProvider wraps inner.
func NewSafeProvider(inner Provider) *SafeProvider {
	return &SafeProvider{inner: inner}
}

// Name implements Provider.
func (s *SafeProvider) Name() string { return s.inner.Name() }

// Nearby implements Provider.
func (s *SafeProvider) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]model.Place, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return []model.Place{}, nil
	}
	found, err := s.inner.Nearby(ctx, lat, lon, radiusM)
	if err != nil {
		zap.L().Warn("places lookup failed, treating as no nearby places",
			zap.String("provider", s.inner.Name()),
			zap.Error(err),
		)
		metrics.PlacesFailures.WithLabelValues(s.inner.Name()).Inc()
		return []model.Place{}, nil
	}
	if found == nil {
		found = []model.Place{}
	}
	return found, nil
}

// New builds the configured provider, already wrapped in a SafeProvider.
func New(cfg config.PlacesConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "static":
		p, err := LoadStatic(cfg.StaticPath)
		if err != nil {
			return nil, err
		}
		return NewSafeProvider(p), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, eris.New("places: google_api_key is required for the google provider")
		}
		client := gplaces.NewClient(cfg.GoogleAPIKey,
			gplaces.WithBaseURL(cfg.BaseURL),
			gplaces.WithTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
			gplaces.WithRateLimit(cfg.RateLimitRPS),
		)
		bcfg := resilience.FromSettings(cfg.FailureThreshold, cfg.ResetTimeoutSecs)
		bcfg.OnStateChange = func(from, to resilience.State) {
			zap.L().Info("places breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		return NewSafeProvider(NewGoogleProvider(client, resilience.NewBreaker(bcfg))), nil
	default:
		return nil, eris.Errorf("places: unknown provider %q", cfg.Provider)
	}
}
