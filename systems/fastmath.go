package systems

import "math"

// Fast math functions for hot-path particle updates.
// These avoid float32->float64 conversions that Go's math package requires.

// fastInvSqrt approximates 1/sqrt(x) with one Newton step.
func fastInvSqrt(x float32) float32 {
	if x <= 0 {
		return 0
	}
	i := math.Float32bits(x)
	i = 0x5f375a86 - (i >> 1)
	y := math.Float32frombits(i)
	return y * (1.5 - 0.5*x*y*y)
}

// fastSqrt approximates sqrt(x) using fast inverse sqrt.
func fastSqrt(x float32) float32 {
	return x * fastInvSqrt(x)
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
