package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/store"
)

var seedFile string

// fixtures is the YAML layout accepted by the seed command.
type fixtures struct {
	Profiles     []model.UserProfile  `yaml:"profiles"`
	Rules        []model.BudgetRule   `yaml:"rules"`
	Geofences    []model.Geofence     `yaml:"geofences"`
	Obligations  []model.Obligation   `yaml:"obligations"`
	DwellConfigs []model.DwellConfig  `yaml:"dwell_configs"`
	Pings        []model.LocationPing `yaml:"pings"`
}

// bulkImporter is implemented by stores with a fast bulk load path.
type bulkImporter interface {
	ImportObligations(ctx context.Context, obs []model.Obligation) (int64, error)
	ImportPings(ctx context.Context, pings []model.LocationPing) (int64, error)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load profiles, rules, geofences, obligations and pings from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := seedFile
		if path == "" {
			path = cfg.Seed.Path
		}
		if path == "" {
			return eris.New("seed: --file or seed.path is required")
		}
		fx, err := loadFixtures(path)
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), "seed")
		if err != nil {
			return err
		}
		defer env.Close()

		return applyFixtures(cmd.Context(), env, fx)
	},
}

func loadFixtures(path string) (*fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	var fx fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, eris.Wrapf(err, "seed: parse %s", path)
	}
	return &fx, nil
}

func applyFixtures(ctx context.Context, env *appEnv, fx *fixtures) error {
	for _, p := range fx.Profiles {
		if err := model.Validate(p); err != nil {
			return eris.Wrapf(err, "seed: profile %s", p.UserID)
		}
		if err := env.Store.PutProfile(ctx, p); err != nil {
			return eris.Wrap(err, "seed: profile")
		}
	}
	for _, r := range fx.Rules {
		if _, err := env.Authorize.PutRule(ctx, r); err != nil {
			return eris.Wrapf(err, "seed: rule %s/%s", r.UserID, r.Category)
		}
	}
	for _, g := range fx.Geofences {
		if _, err := env.Geofences.Create(ctx, g); err != nil {
			return eris.Wrapf(err, "seed: geofence %s", g.Name)
		}
	}
	for _, c := range fx.DwellConfigs {
		if err := env.Dwell.Configure(ctx, c); err != nil {
			return eris.Wrapf(err, "seed: dwell config %s", c.UserID)
		}
	}

	bulk, _ := baseStore(env.Store).(bulkImporter)
	if err := seedObligations(ctx, env.Store, bulk, fx.Obligations); err != nil {
		return err
	}
	if err := seedPings(ctx, env.Store, bulk, fx.Pings); err != nil {
		return err
	}

	zap.L().Info("seed complete",
		zap.Int("profiles", len(fx.Profiles)),
		zap.Int("rules", len(fx.Rules)),
		zap.Int("geofences", len(fx.Geofences)),
		zap.Int("obligations", len(fx.Obligations)),
		zap.Int("dwell_configs", len(fx.DwellConfigs)),
		zap.Int("pings", len(fx.Pings)),
	)
	return nil
}

func seedObligations(ctx context.Context, st store.Store, bulk bulkImporter, obs []model.Obligation) error {
	for _, o := range obs {
		if err := model.Validate(o); err != nil {
			return eris.Wrapf(err, "seed: obligation %s", o.EventID)
		}
	}
	if len(obs) == 0 {
		return nil
	}
	if bulk != nil {
		if _, err := bulk.ImportObligations(ctx, obs); err != nil {
			return eris.Wrap(err, "seed: import obligations")
		}
		return nil
	}
	for _, o := range obs {
		if err := st.PutObligation(ctx, o); err != nil {
			return eris.Wrap(err, "seed: obligation")
		}
	}
	return nil
}

func seedPings(ctx context.Context, st store.Store, bulk bulkImporter, pings []model.LocationPing) error {
	for i := range pings {
		if pings[i].ID == "" {
			pings[i].ID = uuid.New().String()
		}
		pings[i].Timestamp = pings[i].Timestamp.UTC()
		if err := model.Validate(pings[i]); err != nil {
			return eris.Wrapf(err, "seed: ping %d", i)
		}
	}
	if len(pings) == 0 {
		return nil
	}
	if bulk != nil {
		if _, err := bulk.ImportPings(ctx, pings); err != nil {
			return eris.Wrap(err, "seed: import pings")
		}
		return nil
	}
	for _, p := range pings {
		if err := st.AppendPing(ctx, p); err != nil {
			return eris.Wrap(err, "seed: ping")
		}
	}
	return nil
}

// baseStore unwraps a Redis overlay to the primary store.
func baseStore(st store.Store) store.Store {
	if c, ok := st.(*store.Composite); ok {
		return c.Store
	}
	return st
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "fixtures file (default seed.path)")
	rootCmd.AddCommand(seedCmd)
}
