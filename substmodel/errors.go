package substmodel

import "errors"

var (
	// ErrDimensionMismatch is returned when the number of rates or
	// frequencies does not match the state count.
	ErrDimensionMismatch = errors.New("substmodel: dimension mismatch")
	// ErrInvalidFrequencies is returned for negative frequencies or
	// frequencies not summing to 1.
	ErrInvalidFrequencies = errors.New("substmodel: invalid frequencies")
	// ErrDegenerateRates is returned when the substitution scale is zero
	// or not finite.
	ErrDegenerateRates = errors.New("substmodel: degenerate rate matrix")
	// ErrInvalidParameter is returned when a parameter is out of its
	// valid range.
	ErrInvalidParameter = errors.New("substmodel: invalid parameter")
)
