package category

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/model"
)

func TestResolve(t *testing.T) {
	c := Default()
	tests := []struct {
		name     string
		merchant string
		mcc      int
		want     string
	}{
		{"merchant match", "Starbucks", 0, FastFood},
		{"merchant wins over mcc", "Whole Foods", 5921, Groceries},
		{"mcc fallback", "Corner Deli", 5912, PharmacyHealth},
		{"unknown merchant and mcc", "Mystery Shop", 1234, MiscOnline},
		{"merchant match is exact", "starbucks", 0, MiscOnline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Resolve(tt.merchant, tt.mcc))
		})
	}
}

func TestBudgetRatio(t *testing.T) {
	c := Default()
	assert.InDelta(t, 0.15, c.BudgetRatio(Groceries), 1e-9)
	assert.InDelta(t, DefaultBudgetRatio, c.BudgetRatio("PET_SUPPLIES"), 1e-9)
}

func TestEssentialAndDiscretionaryAreDisjoint(t *testing.T) {
	c := Default()
	for _, cat := range c.Essential {
		assert.False(t, c.IsDiscretionary(cat), cat)
	}
	assert.True(t, c.IsEssential(Groceries))
	assert.True(t, c.IsDiscretionary(FastFood))
	assert.False(t, c.IsEssential(Subscription))
	assert.False(t, c.IsDiscretionary(Subscription))
}

func TestSaverScoreRoundTrip(t *testing.T) {
	c := Default()
	for _, p := range []model.ProfileType{model.ProfileSaver, model.ProfileAverage, model.ProfileSpender} {
		assert.Equal(t, p, c.ProfileForSaverScore(c.SaverScore(p)))
	}
	assert.Equal(t, 1, c.SaverScore("Unknown"))
	assert.InDelta(t, 1.0, c.Multiplier("Unknown"), 1e-9)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	body := `
catalog:
  budget_ratios:
    GROCERIES: 0.20
  merchants:
    GROCERIES: ["Corner Market"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, c.BudgetRatio(Groceries), 1e-9)
	assert.InDelta(t, 0.05, c.BudgetRatio(FastFood), 1e-9)
	assert.Equal(t, Groceries, c.Resolve("Corner Market", 0))
	// Replaced merchant table no longer knows Starbucks; MCC still resolves.
	assert.Equal(t, FastFood, c.Resolve("Starbucks", 5814))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
