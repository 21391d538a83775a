package money

import "math"

// Round2 rounds a dollar amount to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DollarsToCents converts a dollar amount to integer cents.
func DollarsToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// CentsToDollars converts integer cents to a dollar amount.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100
}
