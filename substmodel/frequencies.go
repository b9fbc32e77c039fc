package substmodel

import (
	"fmt"
	"math"
)

// FreqTolerance is the allowed deviation of the frequency sum from 1.
const FreqTolerance = 1e-6

// Frequencies are equilibrium state frequencies.
type Frequencies []float64

// NewFrequencies validates and copies pi.
func NewFrequencies(pi []float64) (Frequencies, error) {
	f := make(Frequencies, len(pi))
	copy(f, pi)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// EqualFrequencies returns n equal frequencies.
func EqualFrequencies(n int) Frequencies {
	f := make(Frequencies, n)
	for i := range f {
		f[i] = 1 / float64(n)
	}
	return f
}

// EmpiricalFrequencies counts states in seqs. Values outside of
// [0, n) are treated as missing data.
func EmpiricalFrequencies(n int, seqs ...[]int) (Frequencies, error) {
	f := make(Frequencies, n)
	total := 0.0
	for _, seq := range seqs {
		for _, s := range seq {
			if s < 0 || s >= n {
				continue
			}
			f[s]++
			total++
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no observed states", ErrInvalidFrequencies)
	}
	for i := range f {
		f[i] /= total
	}
	return f, nil
}

// Validate checks that frequencies are non-negative and sum to 1.
func (f Frequencies) Validate() error {
	if len(f) < 2 {
		return fmt.Errorf("%w: %d states", ErrDimensionMismatch, len(f))
	}
	sum := 0.0
	for i, v := range f {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: pi[%d]=%v", ErrInvalidFrequencies, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > FreqTolerance {
		return fmt.Errorf("%w: sum is %v", ErrInvalidFrequencies, sum)
	}
	return nil
}

// Copy returns a copy.
func (f Frequencies) Copy() Frequencies {
	return append(Frequencies(nil), f...)
}
