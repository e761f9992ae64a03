package events

import (
	"greensteps/amount"
)

type StepsSubmitted struct {
	User          string        `json:"user"`
	Steps         uint64        `json:"steps"`
	CarbonCredits amount.Amount `json:"carbon_credits"`
	TokensEarned  amount.Amount `json:"tokens_earned"`
	Week          int           `json:"week"`
}

type WeeklyRewardsClaimed struct {
	User          string        `json:"user"`
	CarbonCredits amount.Amount `json:"carbon_credits"`
	TokensEarned  amount.Amount `json:"tokens_earned"`
	Week          int           `json:"week"`
}

type RateChanged struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

type RoleGranted struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

type RoleRevoked struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

type OwnershipTransferred struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type TokensStaked struct {
	User        string        `json:"user"`
	Amount      amount.Amount `json:"amount"`
	StartTime   int64         `json:"start_time"`
	EndTime     int64         `json:"end_time"`
	BonusEarned amount.Amount `json:"bonus_earned"`
}

type StakeClaimed struct {
	User        string        `json:"user"`
	Amount      amount.Amount `json:"amount"`
	BonusEarned amount.Amount `json:"bonus_earned"`
}

type StakeCancelled struct {
	User     string        `json:"user"`
	Amount   amount.Amount `json:"amount"`
	Refunded amount.Amount `json:"refunded"`
	Early    bool          `json:"early"`
}
