package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/budget"
	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/keylock"
	"github.com/guardian-card/guardian-core/internal/metrics"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/obligations"
)

// Heuristic floors and factors.
const (
	starvationFloor     = 0.98
	majorityFloor       = 0.80
	majorityShare       = 0.5
	overrunBase         = 0.9
	overrunSlope        = 0.1
	overrunCap          = 0.99
	essentialDiscount   = 0.5
	essentialRatioLimit = 1.3
)

const (
	reasonModel     = "Model thinks this might be avoidable."
	reasonEssential = "This looks like an essential recurring expense."
)

// ProfileStore provisions and returns user profiles.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, def model.UserProfile) (model.UserProfile, error)
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClusterer enables grocery sub-clustering.
func WithClusterer(c Clusterer) Option {
	return func(s *Scorer) { s.clusterer = c }
}

// WithLocker shares a per-user lock set with other components.
func WithLocker(l *keylock.Locker) Option {
	return func(s *Scorer) {
		if l != nil {
			s.locks = l
		}
	}
}

// Scorer computes avoidability scores.
type Scorer struct {
	cfg       config.ScoringConfig
	loc       *time.Location
	profiles  ProfileStore
	tracker   *budget.Tracker
	planner   *obligations.Planner
	catalog   *category.Catalog
	predictor Predictor
	clusterer Clusterer
	locks     *keylock.Locker
}

// NewScorer creates a Scorer. A nil predictor is ErrModelMissing.
func NewScorer(cfg config.ScoringConfig, profiles ProfileStore, tracker *budget.Tracker, planner *obligations.Planner, catalog *category.Catalog, predictor Predictor, opts ...Option) (*Scorer, error) {
	if predictor == nil {
		return nil, ErrModelMissing
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	loc, _ := time.LoadLocation(cfg.Timezone)
	s := &Scorer{
		cfg:       cfg,
		loc:       loc,
		profiles:  profiles,
		tracker:   tracker,
		planner:   planner,
		catalog:   catalog,
		predictor: predictor,
		locks:     keylock.New(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score evaluates req and posts its amount to the category ledger whatever
// the decision. Invalid requests fail before any state changes.
func (s *Scorer) Score(ctx context.Context, req model.ScoreRequest) (model.ScoreResponse, error) {
	start := time.Now()
	if err := model.Validate(req); err != nil {
		return model.ScoreResponse{}, err
	}
	ts, err := ParseTimestamp(req.Timestamp, s.loc)
	if err != nil {
		return model.ScoreResponse{}, err
	}

	unlock := s.locks.Lock(req.UserID)
	defer unlock()

	profile, err := s.profiles.EnsureProfile(ctx, model.UserProfile{
		UserID:        req.UserID,
		ProfileType:   model.ProfileType(s.cfg.DefaultProfile),
		MonthlyIncome: s.cfg.DefaultIncome,
	})
	if err != nil {
		return model.ScoreResponse{}, eris.Wrap(err, "scoring: load profile")
	}

	hour, dow := CalendarFeatures(ts)
	cat := s.catalog.Resolve(req.MerchantName, req.MCC)
	micro := NoMicroCategory
	if cat == category.Groceries && s.clusterer != nil {
		micro = s.clusterer.Cluster(req.Amount, hour, dow)
	}

	pML := clamp01(s.predictor.Predict(Features{
		Amount:        req.Amount,
		HourOfDay:     hour,
		DayOfWeek:     dow,
		SaverScore:    s.catalog.SaverScore(profile.ProfileType),
		BaseCategory:  cat,
		MicroCategory: micro,
		Channel:       req.Channel,
	}))

	proj, err := s.tracker.Project(ctx, req.UserID, cat, req.Amount, profile.MonthlyIncome)
	if err != nil {
		return model.ScoreResponse{}, eris.Wrap(err, "scoring: project budget")
	}
	discretionary, err := s.tracker.DiscretionarySpent(ctx, req.UserID)
	if err != nil {
		return model.ScoreResponse{}, eris.Wrap(err, "scoring: discretionary spend")
	}
	summary, err := s.planner.Summary(ctx, req.UserID, profile.MonthlyIncome, discretionary)
	if err != nil {
		return model.ScoreResponse{}, eris.Wrap(err, "scoring: obligations")
	}

	o := s.overlay(cat, req.Amount, pML, proj, summary)

	threshold := Threshold(s.cfg, profile.ProfileType)
	decision := model.ScoreAllow
	if o.pAvoid >= threshold {
		decision = model.ScoreBlock
	}

	after, err := s.tracker.Post(ctx, req.UserID, cat, req.Amount)
	if err != nil {
		return model.ScoreResponse{}, eris.Wrap(err, "scoring: post spend")
	}

	resp := model.ScoreResponse{
		Decision: decision,
		PAvoid:   o.pAvoid,
		Reason:   o.reason,
		Debug: model.ScoreDebug{
			PML:                  pML,
			OverBudgetRatio:      proj.Ratio,
			Threshold:            threshold,
			SpendBefore:          proj.SpendBefore,
			SpendAfter:           after,
			CategoryBudget:       proj.Budget,
			BaseCategory:         cat,
			MicroCategory:        micro,
			ProfileType:          profile.ProfileType,
			HourOfDay:            hour,
			DayOfWeek:            dow,
			MandatoryNeeded:      summary.MandatoryNeeded,
			OptionalChosenNeeded: summary.OptionalChosenNeeded,
			ReservedObligations:  summary.ReservedObligations,
			FreeToSpend:          summary.FreeToSpend,
			SafeLeft:             summary.SafeLeft,
			DiscretionarySpent:   discretionary,
			Branch:               o.branch,
			EssentialDiscount:    o.discounted,
		},
	}

	metrics.ScoreDecisions.WithLabelValues(string(decision), o.branch).Inc()
	metrics.ScoreLatency.Observe(time.Since(start).Seconds())
	zap.L().Debug("transaction scored",
		zap.String("user_id", req.UserID),
		zap.String("category", cat),
		zap.String("branch", o.branch),
		zap.Float64("p_avoid", o.pAvoid),
		zap.String("decision", string(decision)),
	)
	return resp, nil
}

// Obligations returns today's obligations summary for a user, using the
// same profile income and discretionary spend that scoring sees.
func (s *Scorer) Obligations(ctx context.Context, userID string) (model.ObligationsSummary, error) {
	if userID == "" {
		return model.ObligationsSummary{}, model.Invalid("user_id is required")
	}
	profile, err := s.profiles.EnsureProfile(ctx, model.UserProfile{
		UserID:        userID,
		ProfileType:   model.ProfileType(s.cfg.DefaultProfile),
		MonthlyIncome: s.cfg.DefaultIncome,
	})
	if err != nil {
		return model.ObligationsSummary{}, eris.Wrap(err, "scoring: load profile")
	}
	discretionary, err := s.tracker.DiscretionarySpent(ctx, userID)
	if err != nil {
		return model.ObligationsSummary{}, eris.Wrap(err, "scoring: discretionary spend")
	}
	summary, err := s.planner.Summary(ctx, userID, profile.MonthlyIncome, discretionary)
	if err != nil {
		return model.ObligationsSummary{}, eris.Wrap(err, "scoring: obligations")
	}
	return summary, nil
}

type overlayResult struct {
	pAvoid     float64
	reason     string
	branch     string
	discounted bool
}

// overlay applies the heuristics to pML. At most one of the obligation and
// budget branches fires; the essential discount only combines with the
// budget path.
func (s *Scorer) overlay(cat string, amount, pML float64, proj budget.Projection, summary model.ObligationsSummary) overlayResult {
	r := overlayResult{pAvoid: pML, reason: reasonModel, branch: model.BranchModel}
	discretionary := s.catalog.IsDiscretionary(cat)

	switch {
	case discretionary && summary.SafeLeft <= 0:
		r.pAvoid = math.Max(pML, starvationFloor)
		r.branch = model.BranchObligationStarvation
		r.reason = fmt.Sprintf(
			"Your upcoming obligations (%.0f reserved) leave nothing safe to spend this month. This %.0f %s purchase would eat into money you need.",
			summary.ReservedObligations, amount, cat)
	case discretionary && amount > summary.SafeLeft*majorityShare:
		r.pAvoid = math.Max(pML, majorityFloor)
		r.branch = model.BranchObligationMajority
		r.reason = fmt.Sprintf(
			"This %.0f purchase is more than half of the %.0f you can safely spend after reserving for upcoming obligations.",
			amount, summary.SafeLeft)
	default:
		if discretionary && proj.Ratio > 1.0 {
			r.pAvoid = math.Max(pML, math.Min(overrunBase+overrunSlope*(proj.Ratio-1.0), overrunCap))
			r.branch = model.BranchBudgetOverrun
			r.reason = fmt.Sprintf(
				"You've already spent %.0f in %s this month. This %.0f purchase will push you to %.0f%% of your %s budget.",
				proj.SpendBefore, cat, amount, proj.Ratio*100, cat)
		}
		if s.catalog.IsEssential(cat) && proj.Ratio <= essentialRatioLimit {
			r.pAvoid *= essentialDiscount
			r.discounted = true
			r.reason = reasonEssential
			if r.branch == model.BranchModel {
				r.branch = model.BranchEssentialDiscount
			}
		}
	}
	return r
}

func clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
