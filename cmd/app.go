package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/api"
	"github.com/guardian-card/guardian-core/internal/audit"
	"github.com/guardian-card/guardian-core/internal/authorize"
	"github.com/guardian-card/guardian-core/internal/budget"
	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/dwell"
	"github.com/guardian-card/guardian-core/internal/geofence"
	"github.com/guardian-card/guardian-core/internal/keylock"
	"github.com/guardian-card/guardian-core/internal/location"
	"github.com/guardian-card/guardian-core/internal/notify"
	"github.com/guardian-card/guardian-core/internal/obligations"
	"github.com/guardian-card/guardian-core/internal/override"
	"github.com/guardian-card/guardian-core/internal/places"
	"github.com/guardian-card/guardian-core/internal/scoring"
	"github.com/guardian-card/guardian-core/internal/store"
)

// appEnv holds the store and every service built from the loaded config.
type appEnv struct {
	Store     store.Store
	Catalog   *category.Catalog
	Scorer    *scoring.Scorer
	Authorize *authorize.Service
	Ledger    *override.Ledger
	Location  *location.Service
	Dwell     *dwell.Detector
	Geofences *geofence.Evaluator
	Journal   *audit.Journal
}

// Close waits for pending notifications, then releases the store.
func (e *appEnv) Close() {
	if e.Dwell != nil {
		e.Dwell.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Services returns the HTTP adapter's dependencies.
func (e *appEnv) Services() api.Services {
	return api.Services{
		Scorer:    e.Scorer,
		Authorize: e.Authorize,
		Location:  e.Location,
		Dwell:     e.Dwell,
		Geofences: e.Geofences,
		Journal:   e.Journal,
	}
}

// initApp validates cfg for mode, opens and migrates the store and wires the
// services. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env, err := buildServices(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildServices wires the decision services over st.
func buildServices(st store.Store) (*appEnv, error) {
	catalog := category.Default()
	if cfg.Catalog.Path != "" {
		c, err := category.Load(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	predictor, clusterer, err := scoring.NewModel(cfg.Scoring, catalog)
	if err != nil {
		return nil, eris.Wrap(err, "load scoring model")
	}

	loc, err := time.LoadLocation(cfg.Scoring.Timezone)
	if err != nil {
		return nil, eris.Wrap(err, "load timezone")
	}

	locks := keylock.New(0)
	tracker := budget.NewTracker(st, catalog)
	planner := obligations.NewPlanner(st, cfg.Obligations, obligations.WithLocation(loc))

	scoreOpts := []scoring.Option{scoring.WithLocker(locks)}
	if clusterer != nil {
		scoreOpts = append(scoreOpts, scoring.WithClusterer(clusterer))
	}
	scorer, err := scoring.NewScorer(cfg.Scoring, st, tracker, planner, catalog, predictor, scoreOpts...)
	if err != nil {
		return nil, err
	}

	provider, err := places.New(cfg.Places)
	if err != nil {
		return nil, err
	}

	templates, err := notify.LoadTemplates(cfg.Notify.TemplatesPath)
	if err != nil {
		return nil, err
	}

	ledger := override.NewLedger(st, override.WithTTL(cfg.Override.TTL))
	fences := geofence.NewEvaluator(st)
	journal := audit.NewJournal(st)

	zap.L().Debug("services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("model", cfg.Scoring.Model),
		zap.String("solver", cfg.Obligations.Solver),
		zap.String("places", provider.Name()),
	)

	return &appEnv{
		Store:     st,
		Catalog:   catalog,
		Scorer:    scorer,
		Authorize: authorize.NewService(fences, ledger, tracker, journal, st, cfg.Override.TTL),
		Ledger:    ledger,
		Location:  location.NewService(st, location.WithLocker(locks)),
		Dwell: dwell.NewDetector(st, provider, cfg.Dwell,
			dwell.WithLocker(locks),
			dwell.WithNotifier(notify.New(cfg.Notify)),
			dwell.WithTemplates(templates),
		),
		Geofences: fences,
		Journal:   journal,
	}, nil
}
