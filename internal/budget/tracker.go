// Package budget tracks per-user category spend and evaluates it against
// configured limits and income shares.
package budget

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/category"
)

// Store is the persistence the tracker needs.
type Store interface {
	CategorySpend(ctx context.Context, userID, cat string) (float64, error)
	AddSpend(ctx context.Context, userID, cat string, amount float64) (float64, error)
	SpendByCategory(ctx context.Context, userID string) (map[string]float64, error)
	MonthlyLimit(ctx context.Context, userID, cat string) (int64, bool, error)
}

// Projection is the budget position a charge would produce.
type Projection struct {
	Budget      float64
	SpendBefore float64
	SpendAfter  float64
	Ratio       float64
}

// Tracker evaluates spend against rules and income-derived budgets.
type Tracker struct {
	store   Store
	catalog *category.Catalog
}

// NewTracker creates a Tracker.
func NewTracker(store Store, catalog *category.Catalog) *Tracker {
	return &Tracker{store: store, catalog: catalog}
}

// IsRisky applies the half-limit rule: a charge is risky when it exceeds half
// the monthly limit configured for (user, category). Limits are minor units
// and halved with integer division. No rule or a zero limit is never risky.
func (t *Tracker) IsRisky(ctx context.Context, userID string, amountCents int64, cat string) (bool, error) {
	limit, ok, err := t.store.MonthlyLimit(ctx, userID, cat)
	if err != nil {
		return false, eris.Wrap(err, "budget: is risky")
	}
	if !ok || limit == 0 {
		return false, nil
	}
	return amountCents > limit/2, nil
}

// Ratio returns (spendBefore + amount) / budget, or 0 when budget is zero.
func Ratio(spendBefore, amount, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	return (spendBefore + amount) / budget
}

// Project computes the over-budget ratio a charge would reach without
// recording it.
func (t *Tracker) Project(ctx context.Context, userID, cat string, amount, income float64) (Projection, error) {
	before, err := t.store.CategorySpend(ctx, userID, cat)
	if err != nil {
		return Projection{}, eris.Wrap(err, "budget: project")
	}
	budget := income * t.catalog.BudgetRatio(cat)
	return Projection{
		Budget:      budget,
		SpendBefore: before,
		SpendAfter:  before + amount,
		Ratio:       Ratio(before, amount, budget),
	}, nil
}

// OverBudgetRatio is Project reduced to the ratio.
func (t *Tracker) OverBudgetRatio(ctx context.Context, userID, cat string, amount, income float64) (float64, error) {
	p, err := t.Project(ctx, userID, cat, amount, income)
	return p.Ratio, err
}

// Post adds amount to the category ledger and returns the new total. It is
// called for every scored charge whatever the decision.
func (t *Tracker) Post(ctx context.Context, userID, cat string, amount float64) (float64, error) {
	after, err := t.store.AddSpend(ctx, userID, cat, amount)
	if err != nil {
		return 0, eris.Wrap(err, "budget: post")
	}
	zap.L().Debug("spend posted",
		zap.String("user_id", userID),
		zap.String("category", cat),
		zap.Float64("amount", amount),
		zap.Float64("spend_after", after),
	)
	return after, nil
}

// DiscretionarySpent sums month-to-date spend across the "wants" categories.
func (t *Tracker) DiscretionarySpent(ctx context.Context, userID string) (float64, error) {
	spend, err := t.store.SpendByCategory(ctx, userID)
	if err != nil {
		return 0, eris.Wrap(err, "budget: discretionary spent")
	}
	total := 0.0
	for _, cat := range t.catalog.DiscretionaryCategories() {
		total += spend[cat]
	}
	return total, nil
}
