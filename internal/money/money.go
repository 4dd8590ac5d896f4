package money

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrFractional    = errors.New("amount must be a whole number of coins")
)

type Rounding string

const (
	RoundFloor Rounding = "floor"
	RoundCeil  Rounding = "ceil"
)

// ParseCoins parses a positive whole coin amount such as "250".
func ParseCoins(input string) (int64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(input), "+")
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Contains(trimmed, ".") {
		return 0, ErrFractional
	}
	if !isDigits(trimmed) {
		return 0, ErrInvalidAmount
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, ErrInvalidAmount
	}
	return value, nil
}

// PercentOf returns floor(amount * pct / 100).
func PercentOf(amount, pct int64) int64 {
	return decimal.NewFromInt(amount).Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Floor().IntPart()
}

// ApplyRate returns amount * rate rounded to whole coins.
func ApplyRate(amount int64, rate decimal.Decimal, mode Rounding) int64 {
	product := decimal.NewFromInt(amount).Mul(rate)
	if mode == RoundCeil {
		return product.Ceil().IntPart()
	}
	return product.Floor().IntPart()
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func Clamp(value, lo, hi int64) int64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
