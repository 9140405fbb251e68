package model

import "time"

// Obligation is a known upcoming payment competing for income.
type Obligation struct {
	EventID    string    `json:"event_id" yaml:"event_id" validate:"required"`
	UserID     string    `json:"user_id" yaml:"user_id"`
	Name       string    `json:"name" yaml:"name"`
	Category   string    `json:"category" yaml:"category"`
	Amount     float64   `json:"amount" yaml:"amount" validate:"gte=0"`
	DueDate    time.Time `json:"due_date" yaml:"due_date"`
	Mandatory  bool      `json:"mandatory" yaml:"mandatory"`
	Importance float64   `json:"importance" yaml:"importance" validate:"gte=0,lte=1"`
}

// ObligationStatus is an obligation annotated with its allocation outcome.
type ObligationStatus struct {
	Obligation
	Selected bool `json:"selected"`
}

// ObligationsSummary is the daily budget reservation for a user.
type ObligationsSummary struct {
	UserID               string             `json:"user_id"`
	Date                 string             `json:"date"`
	Solver               string             `json:"solver"`
	BaselineEssentials   float64            `json:"baseline_essentials"`
	SavingsGoal          float64            `json:"savings_goal"`
	SafetyBuffer         float64            `json:"safety_buffer"`
	MandatoryNeeded      float64            `json:"mandatory_needed"`
	BudgetForOptional    float64            `json:"budget_for_optional"`
	OptionalChosenNeeded float64            `json:"optional_chosen_needed"`
	ReservedObligations  float64            `json:"reserved_obligations"`
	FreeToSpend          float64            `json:"free_to_spend"`
	SafeLeft             float64            `json:"safe_left"`
	ChosenOptionalIDs    []string           `json:"chosen_optional_ids"`
	Obligations          []ObligationStatus `json:"all_obligations"`
}
