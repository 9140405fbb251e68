package scoring

import (
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/config"
)

// ErrModelMissing is returned at construction when the probability model
// cannot be loaded. It is fatal: the scorer cannot run without a model.
var ErrModelMissing = eris.New("scoring: probability model missing")

// NoMicroCategory labels transactions that were not sub-clustered.
const NoMicroCategory = "NONE"

// Features is the input contract of the probability model.
type Features struct {
	Amount        float64
	HourOfDay     int
	DayOfWeek     int
	SaverScore    int
	BaseCategory  string
	MicroCategory string
	Channel       string
}

func (f Features) numeric(name string) (float64, bool) {
	switch name {
	case "amount":
		return f.Amount, true
	case "hour_of_day":
		return float64(f.HourOfDay), true
	case "day_of_week":
		return float64(f.DayOfWeek), true
	case "saver_score":
		return float64(f.SaverScore), true
	}
	return 0, false
}

func (f Features) categorical(name string) (string, bool) {
	switch name {
	case "base_category":
		return f.BaseCategory, true
	case "micro_category":
		return f.MicroCategory, true
	case "channel":
		return f.Channel, true
	}
	return "", false
}

// Predictor returns the probability that a transaction is avoidable.
type Predictor interface {
	Predict(f Features) float64
}

// Clusterer assigns a micro-category label to a grocery basket.
type Clusterer interface {
	Cluster(amount float64, hour, dow int) string
}

// PriorModel scores from the catalog's per-category avoidability prior
// scaled by the profile multiplier, capped at 0.95.
type PriorModel struct {
	Catalog *category.Catalog
}

// Predict implements Predictor.
func (m PriorModel) Predict(f Features) float64 {
	profile := m.Catalog.ProfileForSaverScore(f.SaverScore)
	return math.Min(0.95, m.Catalog.Prior(f.BaseCategory)*m.Catalog.Multiplier(profile))
}

// NumericFeature is one standard-scaled input of the logistic model.
type NumericFeature struct {
	Name  string  `json:"name" yaml:"name"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Scale float64 `json:"scale" yaml:"scale"`
	Coef  float64 `json:"coef" yaml:"coef"`
}

// Artifact is the serialized form of a trained model: a logistic regression
// over scaled numeric features and one-hot categoricals, plus optional
// k-means centroids for grocery baskets.
type Artifact struct {
	Intercept   float64                       `json:"intercept" yaml:"intercept"`
	Numeric     []NumericFeature              `json:"numeric" yaml:"numeric"`
	Categorical map[string]map[string]float64 `json:"categorical" yaml:"categorical"`
	Centroids   [][]float64                   `json:"grocery_centroids,omitempty" yaml:"grocery_centroids,omitempty"`
}

// LoadArtifact reads a JSON or YAML artifact. A missing file wraps
// ErrModelMissing.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrModelMissing, "artifact %s not found", path)
		}
		return nil, eris.Wrapf(err, "scoring: read artifact %s", path)
	}

	var a Artifact
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &a)
	} else {
		err = yaml.Unmarshal(data, &a)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: parse artifact %s", path)
	}
	if len(a.Numeric) == 0 && len(a.Categorical) == 0 {
		return nil, eris.Wrapf(ErrModelMissing, "artifact %s has no coefficients", path)
	}
	for _, c := range a.Centroids {
		if len(c) != 3 {
			return nil, eris.Errorf("scoring: artifact %s: centroids need 3 dimensions", path)
		}
	}
	return &a, nil
}

// LogisticModel evaluates a trained logistic regression.
type LogisticModel struct {
	a *Artifact
}

// NewLogisticModel wraps an artifact.
func NewLogisticModel(a *Artifact) *LogisticModel {
	return &LogisticModel{a: a}
}

// Predict implements Predictor. Unknown categorical values contribute
// nothing, matching a one-hot encoder that ignores unseen levels.
func (m *LogisticModel) Predict(f Features) float64 {
	z := m.a.Intercept
	for _, nf := range m.a.Numeric {
		x, ok := f.numeric(nf.Name)
		if !ok {
			continue
		}
		scale := nf.Scale
		if scale == 0 {
			scale = 1
		}
		z += nf.Coef * (x - nf.Mean) / scale
	}
	for name, levels := range m.a.Categorical {
		if v, ok := f.categorical(name); ok {
			z += levels[v]
		}
	}
	return 1 / (1 + math.Exp(-z))
}

// KMeansClusterer labels a basket with the index of its nearest centroid
// over (amount, hour, day of week).
type KMeansClusterer struct {
	centroids [][]float64
}

// NewKMeansClusterer returns nil when there are no centroids.
func NewKMeansClusterer(centroids [][]float64) *KMeansClusterer {
	if len(centroids) == 0 {
		return nil
	}
	return &KMeansClusterer{centroids: centroids}
}

// Cluster implements Clusterer.
func (k *KMeansClusterer) Cluster(amount float64, hour, dow int) string {
	p := [3]float64{amount, float64(hour), float64(dow)}
	best, bestD := 0, math.Inf(1)
	for i, c := range k.centroids {
		d := 0.0
		for j := range p {
			diff := p[j] - c[j]
			d += diff * diff
		}
		if d < bestD {
			best, bestD = i, d
		}
	}
	return strconv.Itoa(best)
}

// NewModel builds the predictor selected by cfg.Model and, when the artifact
// carries centroids, a clusterer. The clusterer may be nil.
func NewModel(cfg config.ScoringConfig, catalog *category.Catalog) (Predictor, Clusterer, error) {
	switch cfg.Model {
	case "", "prior":
		if cfg.ModelPath == "" {
			return PriorModel{Catalog: catalog}, nil, nil
		}
		// A prior model may still borrow grocery centroids from an artifact.
		a, err := LoadArtifact(cfg.ModelPath)
		if err != nil {
			return nil, nil, err
		}
		return PriorModel{Catalog: catalog}, clustererOrNil(a), nil
	case "logistic":
		if cfg.ModelPath == "" {
			return nil, nil, eris.Wrap(ErrModelMissing, "scoring.model_path is empty")
		}
		a, err := LoadArtifact(cfg.ModelPath)
		if err != nil {
			return nil, nil, err
		}
		return NewLogisticModel(a), clustererOrNil(a), nil
	default:
		return nil, nil, eris.Wrapf(ErrModelMissing, "unknown model kind %q", cfg.Model)
	}
}

func clustererOrNil(a *Artifact) Clusterer {
	if k := NewKMeansClusterer(a.Centroids); k != nil {
		return k
	}
	return nil
}
