package model

// ProfileType is a user's spending archetype.
type ProfileType string

const (
	ProfileSaver   ProfileType = "Saver"
	ProfileAverage ProfileType = "Average"
	ProfileSpender ProfileType = "Spender"
)

// Valid reports whether p is one of the known archetypes.
func (p ProfileType) Valid() bool {
	switch p {
	case ProfileSaver, ProfileAverage, ProfileSpender:
		return true
	}
	return false
}

// UserProfile holds the archetype and income used for scoring.
type UserProfile struct {
	UserID        string      `json:"user_id" yaml:"user_id" validate:"required"`
	ProfileType   ProfileType `json:"profile_type" yaml:"profile_type" validate:"required,oneof=Saver Average Spender"`
	MonthlyIncome float64     `json:"monthly_income" yaml:"monthly_income" validate:"gte=0"`
}

// BudgetRule is a per-user monthly limit for one category, in minor units.
type BudgetRule struct {
	UserID            string `json:"user_id" yaml:"user_id" validate:"required"`
	Category          string `json:"category" yaml:"category"`
	MonthlyLimitCents int64  `json:"monthly_limit_cents" yaml:"monthly_limit_cents" validate:"gte=0"`
}
