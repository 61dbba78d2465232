package money

import (
	"math"
	"testing"
)

func TestRoundRupeesHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{1.49, 1},
		{199.5, 200},
		{-0.5, -1},
		{-2.4, -2},
	}
	for _, tc := range cases {
		if got := RoundRupees(tc.in); got != tc.want {
			t.Fatalf("RoundRupees(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSplitInclusiveTaxAdditivity(t *testing.T) {
	grosses := []float64{0, 1, 99.99, 200, 1234.56, 100000}
	rates := []float64{0, 5, 12, 18, 28}

	for _, gross := range grosses {
		for _, rate := range rates {
			base, tax := SplitInclusiveTax(gross, rate)
			if diff := math.Abs(base + tax - gross); diff > 1e-9 {
				t.Fatalf("split(%v, %v): base %v + tax %v != gross (diff %v)", gross, rate, base, tax, diff)
			}
			if base < 0 || tax < 0 {
				t.Fatalf("split(%v, %v): negative component base=%v tax=%v", gross, rate, base, tax)
			}
		}
	}
}

func TestSplitInclusiveTaxZeroRate(t *testing.T) {
	base, tax := SplitInclusiveTax(250, 0)
	if base != 250 || tax != 0 {
		t.Fatalf("expected {250, 0}, got {%v, %v}", base, tax)
	}
}

func TestSplitInclusiveTaxReferenceExample(t *testing.T) {
	// 200 gross at 18% inclusive: base 169.49, tax 30.51.
	base, tax := SplitInclusiveTax(200, 18)
	if got := Round2(base); got != 169.49 {
		t.Fatalf("base = %v, want 169.49", got)
	}
	if got := Round2(tax); got != 30.51 {
		t.Fatalf("tax = %v, want 30.51", got)
	}
}

func TestSanitize(t *testing.T) {
	if Sanitize(math.NaN()) != 0 {
		t.Fatalf("NaN should sanitize to 0")
	}
	if Sanitize(math.Inf(1)) != 0 || Sanitize(math.Inf(-1)) != 0 {
		t.Fatalf("infinities should sanitize to 0")
	}
	if Sanitize(-12.5) != 0 {
		t.Fatalf("negatives should sanitize to 0")
	}
	if Sanitize(42.5) != 42.5 {
		t.Fatalf("valid values must pass through")
	}
}
