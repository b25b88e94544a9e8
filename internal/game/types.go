package game

import "time"

type Dashboard struct {
	BalanceMicros      int64          `json:"balance_micros"`
	Level              int64          `json:"level"`
	Experience         int64          `json:"experience"`
	NextLevelXP        int64          `json:"next_level_xp"`
	ClickValueMicros   int64          `json:"click_value_micros"`
	ClickUpgradeMicros int64          `json:"click_upgrade_micros"`
	IncomePerSecMicros int64          `json:"income_per_sec_micros"`
	TotalEarnedMicros  int64          `json:"total_earned_micros"`
	TotalClicks        int64          `json:"total_clicks"`
	Assets             []AssetView    `json:"assets"`
	Businesses         []BusinessView `json:"businesses"`
	Boosters           []BoosterView  `json:"boosters"`
	LastTickAt         time.Time      `json:"last_tick_at"`
}

type AssetView struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Owned              int64  `json:"owned"`
	NextPriceMicros    int64  `json:"next_price_micros"`
	SellValueMicros    int64  `json:"sell_value_micros"`
	IncomePerSecMicros int64  `json:"income_per_sec_micros"`
}

type BusinessView struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Owned              bool   `json:"owned"`
	Quantity           int64  `json:"quantity"`
	NextPriceMicros    int64  `json:"next_price_micros"`
	IncomePerSecMicros int64  `json:"income_per_sec_micros"`
}

// BoosterView is an active booster with the time it has left.
type BoosterView struct {
	ActiveMultiplier
	RemainingMs int64 `json:"remaining_ms"`
}

type ClickResult struct {
	Clicks        int64 `json:"clicks"`
	EarnedMicros  int64 `json:"earned_micros"`
	BalanceMicros int64 `json:"balance_micros"`
	LevelUps      int64 `json:"level_ups"`
}

type TradeResult struct {
	ID            string `json:"id"`
	Quantity      int64  `json:"quantity"`
	Owned         int64  `json:"owned"`
	AmountMicros  int64  `json:"amount_micros"`
	BalanceMicros int64  `json:"balance_micros"`
	LevelUps      int64  `json:"level_ups"`
}

type TickResult struct {
	ElapsedMs           int64 `json:"elapsed_ms"`
	EarnedMicros        int64 `json:"earned_micros"`
	RatePerSecondMicros int64 `json:"rate_per_second_micros"`
	Capped              bool  `json:"capped"`
}

type GambleResult struct {
	StakeMicros   int64   `json:"stake_micros"`
	Won           bool    `json:"won"`
	PayoutMicros  int64   `json:"payout_micros"`
	Multiplier    float64 `json:"multiplier"`
	BalanceMicros int64   `json:"balance_micros"`
}
