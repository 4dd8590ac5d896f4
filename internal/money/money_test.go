package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCoins(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr error
	}{
		{"250", 250, nil},
		{" +7 ", 7, nil},
		{"0", 0, ErrInvalidAmount},
		{"-5", 0, ErrInvalidAmount},
		{"1.5", 0, ErrFractional},
		{"abc", 0, ErrInvalidAmount},
		{"", 0, ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseCoins(tc.in)
		if err != tc.wantErr {
			t.Fatalf("ParseCoins(%q) err = %v, want %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseCoins(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPercentOfFloors(t *testing.T) {
	if got := PercentOf(1000, 25); got != 250 {
		t.Fatalf("expected 250, got %d", got)
	}
	if got := PercentOf(999, 25); got != 249 {
		t.Fatalf("expected 249, got %d", got)
	}
}

func TestApplyRateRounding(t *testing.T) {
	rate := decimal.RequireFromString("0.10")
	if got := ApplyRate(121, rate, RoundFloor); got != 12 {
		t.Fatalf("floor: expected 12, got %d", got)
	}
	if got := ApplyRate(121, rate, RoundCeil); got != 13 {
		t.Fatalf("ceil: expected 13, got %d", got)
	}
	if got := ApplyRate(110, rate, RoundCeil); got != 11 {
		t.Fatalf("exact product must not round up, got %d", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(120, 0, 100) != 100 || Clamp(-3, 0, 100) != 0 || Clamp(42, 0, 100) != 42 {
		t.Fatal("clamp out of bounds")
	}
}
