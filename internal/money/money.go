// Package money holds the currency rounding and GST reverse-split
// arithmetic every other package leans on. Amounts are rupees as
// float64; rupee totals round to whole units, ledger fields to paise.
package money

import "math"

// RoundRupees rounds half away from zero to the nearest whole rupee.
func RoundRupees(x float64) float64 {
	return math.Round(x)
}

// Round2 rounds to two decimal places, half away from zero. Used for
// ledger fields (pre-tax base, GST) and display amounts.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// SplitInclusiveTax reverse-derives the pre-tax base and tax portion
// from a tax-inclusive gross amount. base + tax == gross exactly,
// because tax is computed as the remainder. ratePercent 0 (or below)
// yields {gross, 0}.
func SplitInclusiveTax(gross float64, ratePercent float64) (base float64, tax float64) {
	if ratePercent <= 0 {
		return gross, 0
	}
	base = gross / (1 + ratePercent/100)
	return base, gross - base
}

// Sanitize coerces NaN, infinities and negative values to zero. Input
// coming off a UI number field can arrive malformed; the billing
// engine clamps instead of erroring wherever a safe default exists.
func Sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}
