package model

// ScoreDecision is the verdict of the avoidability scorer.
type ScoreDecision string

const (
	ScoreAllow ScoreDecision = "ALLOW"
	ScoreBlock ScoreDecision = "BLOCK"
)

// Heuristic branch names recorded in ScoreDebug.Branch.
const (
	BranchModel                = "model"
	BranchObligationStarvation = "obligation_starvation"
	BranchObligationMajority   = "obligation_majority"
	BranchBudgetOverrun        = "budget_overrun"
	BranchEssentialDiscount    = "essential_discount"
)

// ScoreRequest is a transaction submitted for avoidability scoring.
type ScoreRequest struct {
	UserID       string  `json:"user_id" validate:"required"`
	Amount       float64 `json:"amount" validate:"gt=0"`
	MerchantName string  `json:"merchant_name" validate:"required"`
	MCC          int     `json:"mcc" validate:"gte=0"`
	Timestamp    string  `json:"timestamp" validate:"required"`
	Channel      string  `json:"channel"`
}

// ScoreResponse is the outcome of scoring a transaction.
type ScoreResponse struct {
	Decision ScoreDecision `json:"decision"`
	PAvoid   float64       `json:"p_avoid"`
	Reason   string        `json:"reason"`
	Debug    ScoreDebug    `json:"debug"`
}

// ScoreDebug carries every intermediate quantity behind a score.
type ScoreDebug struct {
	PML                  float64     `json:"p_ml"`
	OverBudgetRatio      float64     `json:"over_budget_ratio"`
	Threshold            float64     `json:"threshold"`
	SpendBefore          float64     `json:"spend_before"`
	SpendAfter           float64     `json:"spend_after"`
	CategoryBudget       float64     `json:"category_budget"`
	BaseCategory         string      `json:"base_category"`
	MicroCategory        string      `json:"micro_category"`
	ProfileType          ProfileType `json:"profile_type"`
	HourOfDay            int         `json:"hour_of_day"`
	DayOfWeek            int         `json:"day_of_week"`
	MandatoryNeeded      float64     `json:"mandatory_needed"`
	OptionalChosenNeeded float64     `json:"optional_chosen_needed"`
	ReservedObligations  float64     `json:"reserved_obligations"`
	FreeToSpend          float64     `json:"free_to_spend"`
	SafeLeft             float64     `json:"safe_left"`
	DiscretionarySpent   float64     `json:"discretionary_spent"`
	Branch               string      `json:"branch"`
	EssentialDiscount    bool        `json:"essential_discount"`
}
