// Package scoring estimates how avoidable a card transaction is by blending
// a trained model with budget and obligation heuristics.
package scoring

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/model"
)

// DefaultThreshold applies to profiles without a configured threshold.
const DefaultThreshold = 0.6

// DefaultScoringConfig returns a config.ScoringConfig with the stock
// thresholds. Saver is strictest.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Model:          "prior",
		DefaultProfile: string(model.ProfileAverage),
		DefaultIncome:  3000,
		Thresholds: map[string]float64{
			"saver":   0.4,
			"average": 0.6,
			"spender": 0.75,
		},
		Timezone: "UTC",
	}
}

// Threshold returns the block threshold for profile. Keys are matched
// case-insensitively since viper lowercases map keys.
func Threshold(c config.ScoringConfig, profile model.ProfileType) float64 {
	if v, ok := c.Thresholds[string(profile)]; ok {
		return v
	}
	want := strings.ToLower(string(profile))
	for k, v := range c.Thresholds {
		if strings.ToLower(k) == want {
			return v
		}
	}
	return DefaultThreshold
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string
	for k, v := range c.Thresholds {
		if v < 0 || v > 1 {
			errs = append(errs, "threshold "+k+" must be within [0,1]")
		}
	}
	if !model.ProfileType(c.DefaultProfile).Valid() {
		errs = append(errs, "default_profile must be Saver, Average or Spender")
	}
	if c.DefaultIncome < 0 {
		errs = append(errs, "default_income must be >= 0")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, "timezone must be a valid IANA zone")
	}
	if len(errs) > 0 {
		return eris.Errorf("scoring: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
