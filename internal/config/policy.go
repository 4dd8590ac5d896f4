package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Policy holds the game-balance knobs. Decimal values are written as
// strings in the TOML file, e.g. daily_rate = "0.10".
type Policy struct {
	Contest ContestRules `toml:"contest"`
	Proof   ProofRules   `toml:"proof"`
	Steal   StealRules   `toml:"steal"`
	Debt    DebtRules    `toml:"debt"`
}

type ContestRules struct {
	ProofWindow time.Duration `toml:"proof_window"`
}

type ProofRules struct {
	ViewDurationHours int `toml:"view_duration_hours"`
	UnlimitedViews    int `toml:"unlimited_views"`
}

type StealRules struct {
	MinTargetBalance  int64         `toml:"min_target_balance"`
	OnlineWindow      time.Duration `toml:"online_window"`
	DefenseWindow     time.Duration `toml:"defense_window"`
	MinigameTimeout   time.Duration `toml:"minigame_timeout"`
	DefendBonus       int64         `toml:"defend_bonus"`
	PenaltyMultiplier int64         `toml:"penalty_multiplier"`
	BasePercent       int64         `toml:"base_percent"`
	MinPercent        int64         `toml:"min_percent"`
	MaxPercent        int64         `toml:"max_percent"`
}

type DebtRules struct {
	MinTrustScore       int             `toml:"min_trust_score"`
	MaxDebtMultiple     decimal.Decimal `toml:"max_debt_multiple"`
	DailyRate           decimal.Decimal `toml:"daily_rate"`
	Term                time.Duration   `toml:"term"`
	AccrualInterval     time.Duration   `toml:"accrual_interval"`
	OverdueTrustPenalty int             `toml:"overdue_trust_penalty"`
	SeizureFraction     decimal.Decimal `toml:"seizure_fraction"`
	Rounding            string          `toml:"rounding"`
}

func DefaultPolicy() Policy {
	return Policy{
		Contest: ContestRules{
			ProofWindow: 24 * time.Hour,
		},
		Proof: ProofRules{
			ViewDurationHours: 24,
			UnlimitedViews:    1 << 30,
		},
		Steal: StealRules{
			MinTargetBalance:  100,
			OnlineWindow:      5 * time.Minute,
			DefenseWindow:     10 * time.Second,
			MinigameTimeout:   30 * time.Minute,
			DefendBonus:       25,
			PenaltyMultiplier: 2,
			BasePercent:       10,
			MinPercent:        5,
			MaxPercent:        40,
		},
		Debt: DebtRules{
			MinTrustScore:       30,
			MaxDebtMultiple:     decimal.NewFromInt(3),
			DailyRate:           decimal.RequireFromString("0.10"),
			Term:                7 * 24 * time.Hour,
			AccrualInterval:     24 * time.Hour,
			OverdueTrustPenalty: 15,
			SeizureFraction:     decimal.RequireFromString("0.5"),
			Rounding:            "floor",
		},
	}
}

// LoadPolicy overlays the TOML file at path on top of DefaultPolicy. An
// empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	if _, err := toml.DecodeFile(path, &policy); err != nil {
		return Policy{}, fmt.Errorf("decode policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return policy, nil
}

func (p Policy) Validate() error {
	if p.Contest.ProofWindow <= 0 {
		return fmt.Errorf("contest.proof_window must be positive")
	}
	if p.Proof.ViewDurationHours <= 0 || p.Proof.UnlimitedViews <= 1 {
		return fmt.Errorf("proof limits must be positive")
	}
	if p.Steal.DefenseWindow <= 0 || p.Steal.OnlineWindow <= 0 || p.Steal.MinigameTimeout <= 0 {
		return fmt.Errorf("steal windows must be positive")
	}
	if p.Steal.MinPercent <= 0 || p.Steal.MaxPercent > 100 || p.Steal.MinPercent > p.Steal.MaxPercent {
		return fmt.Errorf("steal percent bounds out of range")
	}
	if p.Debt.DailyRate.IsNegative() || p.Debt.SeizureFraction.IsNegative() || p.Debt.SeizureFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("debt rates out of range")
	}
	if p.Debt.Term <= 0 {
		return fmt.Errorf("debt.term must be positive")
	}
	// Accrual divides elapsed time into whole intervals.
	if p.Debt.AccrualInterval <= 0 {
		return fmt.Errorf("debt.accrual_interval must be positive")
	}
	switch p.Debt.Rounding {
	case "floor", "ceil":
	default:
		return fmt.Errorf("debt.rounding must be floor or ceil, got %q", p.Debt.Rounding)
	}
	return nil
}
