package market

import "math"

// PipsToPrice converts a pip distance to a price distance.
func PipsToPrice(pips, pipSize float64) float64 {
	return pips * pipSize
}

// RoundTo rounds a price to the given number of decimal digits.
func RoundTo(price float64, digits int) float64 {
	if digits < 0 {
		return price
	}
	p := math.Pow(10, float64(digits))
	return math.Round(price*p) / p
}
