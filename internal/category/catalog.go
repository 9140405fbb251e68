// Package category maps merchants and MCC codes to spending categories and
// holds the per-category budgeting constants.
package category

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/guardian-card/guardian-core/internal/model"
)

// Category codes.
const (
	RentBills      = "RENT_BILLS"
	Groceries      = "GROCERIES"
	FastFood       = "FAST_FOOD"
	Alcohol        = "ALCOHOL"
	Clothing       = "CLOTHING"
	Electronics    = "ELECTRONICS"
	PharmacyHealth = "PHARMACY_HEALTH"
	Transport      = "TRANSPORT"
	Subscription   = "SUBSCRIPTION"
	MiscOnline     = "MISC_ONLINE"
)

// DefaultBudgetRatio applies to categories without a configured ratio.
const DefaultBudgetRatio = 0.10

// Catalog holds merchant mappings and category constants.
type Catalog struct {
	Merchants         map[string][]string           `yaml:"merchants"`
	MCC               map[string]int                `yaml:"mcc"`
	BudgetRatios      map[string]float64            `yaml:"budget_ratios"`
	Essential         []string                      `yaml:"essential"`
	Discretionary     []string                      `yaml:"discretionary"`
	BaseAvoidability  map[string]float64            `yaml:"base_avoidability"`
	SaverScores       map[model.ProfileType]int     `yaml:"saver_scores"`
	ProfileMultiplier map[model.ProfileType]float64 `yaml:"profile_multiplier"`
	Fallback          string                        `yaml:"fallback"`

	merchantIndex map[string]string
	mccIndex      map[int]string
	essential     map[string]bool
	discretionary map[string]bool
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{
		Merchants: map[string][]string{
			RentBills:      {"LandlordCo", "UtilityBills", "PropManagement"},
			Groceries:      {"Whole Foods", "Trader Joe's", "Safeway", "Walmart", "Target"},
			FastFood:       {"McDonald's", "Starbucks", "Chipotle", "Subway", "Taco Bell", "Panera"},
			Alcohol:        {"Total Wine", "BevMo", "Local Liquor", "Wine Shop", "Bar & Grill"},
			Clothing:       {"Zara", "H&M", "Nike", "Adidas", "Gap", "Uniqlo", "Macy's"},
			Electronics:    {"Apple Store", "Best Buy", "Amazon Electronics", "Newegg", "B&H Photo"},
			PharmacyHealth: {"CVS", "Walgreens", "Rite Aid", "GNC", "Vitamin Shoppe"},
			Transport:      {"Uber", "Lyft", "Gas Station", "Shell", "Chevron", "Metro Card"},
			Subscription:   {"Netflix", "Spotify", "Disney+", "Hulu", "YouTube Premium", "Amazon Prime"},
			MiscOnline:     {"Amazon", "eBay", "Etsy", "AliExpress", "Shein"},
		},
		MCC: map[string]int{
			RentBills:      6513,
			Groceries:      5411,
			FastFood:       5814,
			Alcohol:        5921,
			Clothing:       5651,
			Electronics:    5732,
			PharmacyHealth: 5912,
			Transport:      4121,
			Subscription:   4899,
			MiscOnline:     5999,
		},
		BudgetRatios: map[string]float64{
			RentBills:      0.30,
			Groceries:      0.15,
			FastFood:       0.05,
			Alcohol:        0.03,
			Clothing:       0.05,
			Electronics:    0.08,
			PharmacyHealth: 0.05,
			Transport:      0.10,
			Subscription:   0.03,
			MiscOnline:     0.05,
		},
		Essential:     []string{RentBills, Groceries, PharmacyHealth, Transport},
		Discretionary: []string{FastFood, Alcohol, Clothing, Electronics, MiscOnline},
		BaseAvoidability: map[string]float64{
			RentBills:      0.05,
			Groceries:      0.15,
			FastFood:       0.75,
			Alcohol:        0.80,
			Clothing:       0.60,
			Electronics:    0.70,
			PharmacyHealth: 0.20,
			Transport:      0.30,
			Subscription:   0.40,
			MiscOnline:     0.65,
		},
		SaverScores: map[model.ProfileType]int{
			model.ProfileSaver:   2,
			model.ProfileAverage: 1,
			model.ProfileSpender: 0,
		},
		ProfileMultiplier: map[model.ProfileType]float64{
			model.ProfileSaver:   0.7,
			model.ProfileAverage: 1.0,
			model.ProfileSpender: 1.3,
		},
		Fallback: MiscOnline,
	}
	c.index()
	return c
}

// Load reads a catalog from YAML. Sections left out keep their defaults.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "category: read catalog %s", path)
	}

	var wrapper struct {
		Catalog Catalog `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "category: parse catalog")
	}

	c := Default()
	o := wrapper.Catalog
	if len(o.Merchants) > 0 {
		c.Merchants = o.Merchants
	}
	if len(o.MCC) > 0 {
		c.MCC = o.MCC
	}
	for k, v := range o.BudgetRatios {
		c.BudgetRatios[k] = v
	}
	if len(o.Essential) > 0 {
		c.Essential = o.Essential
	}
	if len(o.Discretionary) > 0 {
		c.Discretionary = o.Discretionary
	}
	for k, v := range o.BaseAvoidability {
		c.BaseAvoidability[k] = v
	}
	for k, v := range o.SaverScores {
		c.SaverScores[k] = v
	}
	for k, v := range o.ProfileMultiplier {
		c.ProfileMultiplier[k] = v
	}
	if o.Fallback != "" {
		c.Fallback = o.Fallback
	}
	c.index()
	return c, nil
}

func (c *Catalog) index() {
	c.merchantIndex = make(map[string]string)
	for cat, merchants := range c.Merchants {
		for _, m := range merchants {
			c.merchantIndex[m] = cat
		}
	}
	c.mccIndex = make(map[int]string, len(c.MCC))
	for cat, code := range c.MCC {
		c.mccIndex[code] = cat
	}
	c.essential = toSet(c.Essential)
	c.discretionary = toSet(c.Discretionary)
}

// Resolve returns the base category for a merchant name (exact match), then
// the MCC code, then the fallback category.
func (c *Catalog) Resolve(merchant string, mcc int) string {
	if cat, ok := c.merchantIndex[merchant]; ok {
		return cat
	}
	if cat, ok := c.mccIndex[mcc]; ok {
		return cat
	}
	return c.Fallback
}

// BudgetRatio returns the share of monthly income allotted to cat.
func (c *Catalog) BudgetRatio(cat string) float64 {
	if r, ok := c.BudgetRatios[cat]; ok {
		return r
	}
	return DefaultBudgetRatio
}

// IsEssential reports whether cat is an essential category.
func (c *Catalog) IsEssential(cat string) bool { return c.essential[cat] }

// IsDiscretionary reports whether cat is a "wants" category.
func (c *Catalog) IsDiscretionary(cat string) bool { return c.discretionary[cat] }

// DiscretionaryCategories returns the "wants" categories in configured order.
func (c *Catalog) DiscretionaryCategories() []string {
	out := make([]string, len(c.Discretionary))
	copy(out, c.Discretionary)
	return out
}

// SaverScore returns the numeric saver score for a profile (Average when unknown).
func (c *Catalog) SaverScore(p model.ProfileType) int {
	if s, ok := c.SaverScores[p]; ok {
		return s
	}
	return c.SaverScores[model.ProfileAverage]
}

// ProfileForSaverScore inverts SaverScore.
func (c *Catalog) ProfileForSaverScore(score int) model.ProfileType {
	for p, s := range c.SaverScores {
		if s == score {
			return p
		}
	}
	return model.ProfileAverage
}

// Multiplier returns the avoidability multiplier for a profile (1.0 when unknown).
func (c *Catalog) Multiplier(p model.ProfileType) float64 {
	if m, ok := c.ProfileMultiplier[p]; ok {
		return m
	}
	return 1.0
}

// Prior returns the base avoidability probability for cat.
func (c *Catalog) Prior(cat string) float64 {
	if p, ok := c.BaseAvoidability[cat]; ok {
		return p
	}
	return c.BaseAvoidability[c.Fallback]
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
