package utils

import "math"

// SilenceGain is the gain (-60dB) at which a decaying layer is considered inaudible.
const SilenceGain = 0.001

// DecayFactorForBudget returns the per-play attenuation that brings a layer
// from unity gain down to floor after exactly plays repetitions.
func DecayFactorForBudget(plays int, floor float64) float64 {
	if plays <= 0 {
		return 1
	}
	floor = Clamp(floor, SilenceGain, 1)
	return math.Pow(floor, 1/float64(plays))
}

// GainAfter returns the gain left after applying factor n times.
func GainAfter(factor float64, n int) float64 {
	return math.Pow(factor, float64(n))
}
