package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/budget"
	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/obligations"
	"github.com/guardian-card/guardian-core/internal/store"
)

var scoringDay = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixedPredictor float64

func (p fixedPredictor) Predict(Features) float64 { return float64(p) }

type recordingClusterer struct {
	calls int
}

func (c *recordingClusterer) Cluster(float64, int, int) string {
	c.calls++
	return "2"
}

type harness struct {
	store  *store.MemoryStore
	scorer *Scorer
}

func newHarness(t *testing.T, predictor Predictor, opts ...Option) *harness {
	t.Helper()
	mem := store.NewMemory()
	catalog := category.Default()
	planner := obligations.NewPlanner(mem, obligations.DefaultConfig(),
		obligations.WithClock(func() time.Time { return scoringDay }))
	s, err := NewScorer(DefaultScoringConfig(), mem, budget.NewTracker(mem, catalog), planner, catalog, predictor, opts...)
	require.NoError(t, err)
	return &harness{store: mem, scorer: s}
}

func (h *harness) profile(t *testing.T, userID string, p model.ProfileType, income float64) {
	t.Helper()
	require.NoError(t, h.store.PutProfile(context.Background(), model.UserProfile{UserID: userID, ProfileType: p, MonthlyIncome: income}))
}

func (h *harness) spend(t *testing.T, userID, cat string, amount float64) {
	t.Helper()
	_, err := h.store.AddSpend(context.Background(), userID, cat, amount)
	require.NoError(t, err)
}

func req(userID, merchant string, amount float64) model.ScoreRequest {
	return model.ScoreRequest{
		UserID:       userID,
		Amount:       amount,
		MerchantName: merchant,
		Timestamp:    "2025-03-10T14:30:00",
		Channel:      "online",
	}
}

func TestScore_SaverGroceriesEssentialDiscount(t *testing.T) {
	h := newHarness(t, PriorModel{Catalog: category.Default()})
	h.profile(t, "u1", model.ProfileSaver, 2000)
	h.spend(t, "u1", category.Groceries, 290)

	resp, err := h.scorer.Score(context.Background(), req("u1", "Whole Foods", 20))
	require.NoError(t, err)

	// prior 0.15 * saver multiplier 0.7, then halved
	assert.InDelta(t, 0.105, resp.Debug.PML, 1e-9)
	assert.InDelta(t, 0.0525, resp.PAvoid, 1e-9)
	assert.InDelta(t, 310.0/300.0, resp.Debug.OverBudgetRatio, 1e-9)
	assert.InDelta(t, 300, resp.Debug.CategoryBudget, 1e-9)
	assert.InDelta(t, 0.4, resp.Debug.Threshold, 1e-9)
	assert.Equal(t, model.ScoreAllow, resp.Decision)
	assert.Equal(t, model.BranchEssentialDiscount, resp.Debug.Branch)
	assert.True(t, resp.Debug.EssentialDiscount)
	assert.Equal(t, reasonEssential, resp.Reason)
	assert.InDelta(t, 290, resp.Debug.SpendBefore, 1e-9)
	assert.InDelta(t, 310, resp.Debug.SpendAfter, 1e-9)
	assert.Equal(t, category.Groceries, resp.Debug.BaseCategory)
	assert.Equal(t, 14, resp.Debug.HourOfDay)
	assert.Equal(t, 0, resp.Debug.DayOfWeek)
}

func TestScore_SaverGroceriesHalvedStillBlocks(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.9))
	h.profile(t, "u1", model.ProfileSaver, 2000)
	h.spend(t, "u1", category.Groceries, 290)

	resp, err := h.scorer.Score(context.Background(), req("u1", "Whole Foods", 20))
	require.NoError(t, err)
	assert.InDelta(t, 0.45, resp.PAvoid, 1e-9)
	assert.Equal(t, model.ScoreBlock, resp.Decision)
}

func TestScore_EssentialOverLimitNotDiscounted(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.3))
	h.profile(t, "u1", model.ProfileAverage, 2000)
	h.spend(t, "u1", category.Groceries, 400)

	resp, err := h.scorer.Score(context.Background(), req("u1", "Whole Foods", 20))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, resp.PAvoid, 1e-9)
	assert.False(t, resp.Debug.EssentialDiscount)
	assert.Equal(t, model.BranchModel, resp.Debug.Branch)
}

func TestScore_ObligationStarvation(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.1))
	h.profile(t, "u1", model.ProfileSpender, 1000)
	require.NoError(t, h.store.PutObligation(context.Background(), model.Obligation{
		EventID: "rent", UserID: "u1", Name: "Rent", Amount: 500, Mandatory: true,
		DueDate: scoringDay.Add(48 * time.Hour),
	}))

	resp, err := h.scorer.Score(context.Background(), req("u1", "McDonald's", 5))
	require.NoError(t, err)
	assert.InDelta(t, 0.98, resp.PAvoid, 1e-9)
	assert.Equal(t, model.ScoreBlock, resp.Decision)
	assert.Equal(t, model.BranchObligationStarvation, resp.Debug.Branch)
	assert.Zero(t, resp.Debug.SafeLeft)
	assert.InDelta(t, 500, resp.Debug.ReservedObligations, 1e-9)
	assert.Contains(t, resp.Reason, "500 reserved")
}

func TestScore_ObligationMajority(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.2))
	h.profile(t, "u1", model.ProfileAverage, 3000)

	// free to spend is 0.45 * 3000 = 1350
	resp, err := h.scorer.Score(context.Background(), req("u1", "Best Buy", 700))
	require.NoError(t, err)
	assert.InDelta(t, 0.80, resp.PAvoid, 1e-9)
	assert.Equal(t, model.BranchObligationMajority, resp.Debug.Branch)
	assert.Equal(t, model.ScoreBlock, resp.Decision)
	assert.InDelta(t, 1350, resp.Debug.SafeLeft, 1e-9)
}

func TestScore_BudgetOverrun(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.2))
	h.profile(t, "u1", model.ProfileSpender, 3000)
	h.spend(t, "u1", category.FastFood, 100)

	// budget 150, ratio (100+100)/150
	resp, err := h.scorer.Score(context.Background(), req("u1", "Chipotle", 100))
	require.NoError(t, err)
	ratio := 200.0 / 150.0
	assert.InDelta(t, ratio, resp.Debug.OverBudgetRatio, 1e-9)
	assert.InDelta(t, 0.9+0.1*(ratio-1), resp.PAvoid, 1e-9)
	assert.Equal(t, model.BranchBudgetOverrun, resp.Debug.Branch)
	assert.Equal(t, model.ScoreBlock, resp.Decision)
	assert.Equal(t, "You've already spent 100 in FAST_FOOD this month. This 100 purchase will push you to 133% of your FAST_FOOD budget.", resp.Reason)
}

func TestScore_BudgetOverrunCapped(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.2))
	h.profile(t, "u1", model.ProfileSpender, 100000)
	h.spend(t, "u1", category.Alcohol, 30000)

	resp, err := h.scorer.Score(context.Background(), req("u1", "Total Wine", 10))
	require.NoError(t, err)
	assert.InDelta(t, 0.99, resp.PAvoid, 1e-9)
}

func TestScore_ModelBranch(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.5))
	h.profile(t, "u1", model.ProfileSpender, 3000)

	resp, err := h.scorer.Score(context.Background(), req("u1", "Best Buy", 10))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, resp.PAvoid, 1e-9)
	assert.Equal(t, model.ScoreAllow, resp.Decision)
	assert.Equal(t, model.BranchModel, resp.Debug.Branch)
	assert.Equal(t, reasonModel, resp.Reason)
}

func TestScore_UnknownUserProvisioned(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.1))

	resp, err := h.scorer.Score(context.Background(), req("new-user", "Netflix", 10))
	require.NoError(t, err)
	assert.Equal(t, model.ProfileAverage, resp.Debug.ProfileType)

	p, err := h.store.EnsureProfile(context.Background(), model.UserProfile{UserID: "new-user"})
	require.NoError(t, err)
	assert.InDelta(t, 3000, p.MonthlyIncome, 1e-9)
}

func TestScore_ValidationMutatesNothing(t *testing.T) {
	h := newHarness(t, fixedPredictor(0.1))
	ctx := context.Background()

	tests := []struct {
		name string
		req  model.ScoreRequest
	}{
		{"bad timestamp", model.ScoreRequest{UserID: "u1", Amount: 10, MerchantName: "Netflix", Timestamp: "yesterday"}},
		{"missing timestamp", model.ScoreRequest{UserID: "u1", Amount: 10, MerchantName: "Netflix"}},
		{"zero amount", model.ScoreRequest{UserID: "u1", Amount: 0, MerchantName: "Netflix", Timestamp: "2025-03-10T10:00:00"}},
		{"missing merchant", model.ScoreRequest{UserID: "u1", Amount: 10, Timestamp: "2025-03-10T10:00:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.scorer.Score(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err))
		})
	}

	spend, err := h.store.SpendByCategory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, spend)
}

func TestScore_EssentialIdempotent(t *testing.T) {
	h := newHarness(t, PriorModel{Catalog: category.Default()})
	h.profile(t, "u1", model.ProfileSaver, 2000)
	h.spend(t, "u1", category.Groceries, 290)

	first, err := h.scorer.Score(context.Background(), req("u1", "Whole Foods", 20))
	require.NoError(t, err)
	second, err := h.scorer.Score(context.Background(), req("u1", "Whole Foods", 20))
	require.NoError(t, err)

	assert.Equal(t, first.PAvoid, second.PAvoid)
	assert.Equal(t, first.Decision, second.Decision)
}

func TestScore_GroceryClusterer(t *testing.T) {
	c := &recordingClusterer{}
	h := newHarness(t, fixedPredictor(0.1), WithClusterer(c))

	resp, err := h.scorer.Score(context.Background(), req("u1", "Safeway", 40))
	require.NoError(t, err)
	assert.Equal(t, "2", resp.Debug.MicroCategory)

	resp, err = h.scorer.Score(context.Background(), req("u1", "Netflix", 10))
	require.NoError(t, err)
	assert.Equal(t, NoMicroCategory, resp.Debug.MicroCategory)
	assert.Equal(t, 1, c.calls)
}

func TestNewScorer_NilPredictor(t *testing.T) {
	mem := store.NewMemory()
	_, err := NewScorer(DefaultScoringConfig(), mem, nil, nil, category.Default(), nil)
	assert.ErrorIs(t, err, ErrModelMissing)
}

// TestScore_MonotonicSpend checks that the ledger equals the sum of scored
// amounts whatever the decisions were.
func TestScore_MonotonicSpend(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("ledger equals sum of amounts", prop.ForAll(
		func(amounts []int) bool {
			h := newHarness(t, fixedPredictor(0.7))
			ctx := context.Background()
			total := 0.0
			for _, a := range amounts {
				if _, err := h.scorer.Score(ctx, req("u1", "Zara", float64(a))); err != nil {
					return false
				}
				total += float64(a)
			}
			got, err := h.store.CategorySpend(ctx, "u1", category.Clothing)
			return err == nil && got == total
		},
		gen.SliceOf(gen.IntRange(1, 500)),
	))

	properties.TestingRun(t)
}

func TestObligations_UsesProfileAndDiscretionarySpend(t *testing.T) {
	h := newHarness(t, PriorModel{Catalog: category.Default()})
	h.spend(t, "u1", category.FastFood, 100)

	summary, err := h.scorer.Obligations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", summary.Date)
	assert.InDelta(t, 1350, summary.FreeToSpend, 1e-9)
	assert.InDelta(t, 1250, summary.SafeLeft, 1e-9)

	_, err = h.scorer.Obligations(context.Background(), "")
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}
