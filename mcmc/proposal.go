package mcmc

import (
	"math"
	"math/rand"
)

// Proposal returns a new value given the current one.
type Proposal func(x float64) float64

// NormalProposal returns normal proposal function.
func NormalProposal(rng *rand.Rand, sd float64) Proposal {
	if sd <= 0 {
		panic("sd should be > 0")
	}
	return func(x float64) float64 {
		return x + rng.NormFloat64()*sd
	}
}

// Prior returns log prior density.
type Prior func(x float64) float64

// FlatPrior is the improper uniform prior.
func FlatPrior(float64) float64 {
	return 0
}

// UniformPrior returns uniform prior on [min, max].
func UniformPrior(min, max float64) Prior {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		if x < min || x > max {
			return math.Inf(-1)
		}
		return -math.Log(max - min)
	}
}

// ExponentialPrior returns exponential prior.
func ExponentialPrior(rate float64) Prior {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	return func(x float64) float64 {
		if x < 0 {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	}
}

// GammaPrior returns gamma prior with given shape and scale.
func GammaPrior(shape, scale float64) Prior {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	g, _ := math.Lgamma(shape)
	return func(x float64) float64 {
		if x <= 0 {
			return math.Inf(-1)
		}
		return (shape-1)*math.Log(x) - x/scale - shape*math.Log(scale) - g
	}
}
