// Package obligations reserves income for upcoming payments and works out
// how much a user can still spend safely.
package obligations

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/model"
)

// Source supplies obligations due within [from, to].
type Source interface {
	UpcomingObligations(ctx context.Context, userID string, from, to time.Time) ([]model.Obligation, error)
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() config.ObligationsConfig {
	return config.ObligationsConfig{
		EssentialsRatio: 0.30,
		SavingsRatio:    0.15,
		BufferRatio:     0.10,
		HorizonDays:     30,
		Solver:          "greedy",
		ExactMaxCells:   DefaultMaxCells,
	}
}

type cached struct {
	date    string
	summary model.ObligationsSummary
}

// Planner computes obligation summaries and caches one per user per local
// calendar day.
type Planner struct {
	source   Source
	cfg      config.ObligationsConfig
	selector Selector
	loc      *time.Location
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cached
	group singleflight.Group
}

// Option configures a Planner.
type Option func(*Planner)

// WithLocation sets the zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(p *Planner) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithSelector overrides the selector chosen from cfg.Solver.
func WithSelector(s Selector) Option {
	return func(p *Planner) { p.selector = s }
}

// NewPlanner creates a Planner.
func NewPlanner(source Source, cfg config.ObligationsConfig, opts ...Option) *Planner {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	p := &Planner{
		source:   source,
		cfg:      cfg,
		selector: NewSelector(cfg.Solver, cfg.ExactMaxCells),
		loc:      time.UTC,
		now:      time.Now,
		cache:    make(map[string]cached),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Summary returns the user's summary for today with SafeLeft computed from
// discretionarySpent. The expensive part is computed at most once per user
// per day; later calls only refresh SafeLeft.
func (p *Planner) Summary(ctx context.Context, userID string, income, discretionarySpent float64) (model.ObligationsSummary, error) {
	today := p.now().In(p.loc)
	date := today.Format(time.DateOnly)

	p.mu.Lock()
	c, ok := p.cache[userID]
	p.mu.Unlock()

	if !ok || c.date != date {
		v, err, _ := p.group.Do(userID+"|"+date, func() (any, error) {
			s, err := p.Compute(ctx, userID, income, today)
			if err != nil {
				return nil, err
			}
			p.mu.Lock()
			p.cache[userID] = cached{date: date, summary: s}
			p.mu.Unlock()
			return s, nil
		})
		if err != nil {
			return model.ObligationsSummary{}, err
		}
		c = cached{date: date, summary: v.(model.ObligationsSummary)}
	}

	out := c.summary
	out.ChosenOptionalIDs = slices.Clone(c.summary.ChosenOptionalIDs)
	out.Obligations = slices.Clone(c.summary.Obligations)
	out.SafeLeft = math.Max(0, out.FreeToSpend-discretionarySpent)
	return out, nil
}

// Compute builds a fresh summary for the day containing today, bypassing the
// cache. SafeLeft is left equal to FreeToSpend.
func (p *Planner) Compute(ctx context.Context, userID string, income float64, today time.Time) (model.ObligationsSummary, error) {
	local := today.In(p.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
	to := from.AddDate(0, 0, p.cfg.HorizonDays)

	obligations, err := p.source.UpcomingObligations(ctx, userID, from, to)
	if err != nil {
		return model.ObligationsSummary{}, eris.Wrap(err, "obligations: load")
	}

	s := model.ObligationsSummary{
		UserID:             userID,
		Date:               local.Format(time.DateOnly),
		Solver:             p.selector.Name(),
		BaselineEssentials: income * p.cfg.EssentialsRatio,
		SavingsGoal:        income * p.cfg.SavingsRatio,
		SafetyBuffer:       income * p.cfg.BufferRatio,
		ChosenOptionalIDs:  []string{},
		Obligations:        make([]model.ObligationStatus, 0, len(obligations)),
	}
	reserve := s.BaselineEssentials + s.SavingsGoal + s.SafetyBuffer

	var optional []Item
	var optionalIdx []int
	for i, o := range obligations {
		if o.Mandatory {
			s.MandatoryNeeded += o.Amount
			continue
		}
		optional = append(optional, Item{ID: o.EventID, Amount: o.Amount, Importance: o.Importance})
		optionalIdx = append(optionalIdx, i)
	}

	s.BudgetForOptional = math.Max(0, income-s.MandatoryNeeded-reserve)
	selected := make(map[int]bool)
	for _, i := range p.selector.Select(optional, s.BudgetForOptional) {
		s.OptionalChosenNeeded += optional[i].Amount
		s.ChosenOptionalIDs = append(s.ChosenOptionalIDs, optional[i].ID)
		selected[optionalIdx[i]] = true
	}

	s.ReservedObligations = s.MandatoryNeeded + s.OptionalChosenNeeded
	s.FreeToSpend = math.Max(0, income-s.ReservedObligations-reserve)
	s.SafeLeft = s.FreeToSpend

	for i, o := range obligations {
		s.Obligations = append(s.Obligations, model.ObligationStatus{
			Obligation: o,
			Selected:   o.Mandatory || selected[i],
		})
	}

	zap.L().Debug("obligations summary computed",
		zap.String("user_id", userID),
		zap.String("solver", s.Solver),
		zap.Float64("mandatory_needed", s.MandatoryNeeded),
		zap.Float64("optional_chosen_needed", s.OptionalChosenNeeded),
		zap.Float64("free_to_spend", s.FreeToSpend),
	)
	return s, nil
}
