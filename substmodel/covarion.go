package substmodel

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// CovarionMode selects how switching between hidden rate classes
// depends on the hidden frequencies.
type CovarionMode int

const (
	// CovarionReversible weights switching rates by the hidden
	// frequencies, so the model is reversible for any of them.
	CovarionReversible CovarionMode = iota
	// CovarionUnweighted uses the same switching rate in both
	// directions. The product frequencies are stationary only if the
	// hidden frequencies are equal.
	CovarionUnweighted
)

// BinaryCovarion is a binary model where every site is either in a slow
// (rate alpha) or in a fast hidden class and switches between them with
// switchRate. States are ordered 0-slow, 1-slow, 0-fast, 1-fast.
type BinaryCovarion struct {
	*BaseModel
	alpha      float64
	switchRate float64
	vfreq      Frequencies
	hfreq      Frequencies
	mode       CovarionMode
}

// NewBinaryCovarion creates a covarion model from visible and hidden
// frequencies, two values each.
func NewBinaryCovarion(alpha, switchRate float64, vfreq, hfreq []float64, mode CovarionMode, opts ...Option) (*BinaryCovarion, error) {
	v, h, err := covarionFrequencies(vfreq, hfreq)
	if err != nil {
		return nil, fmt.Errorf("covarion: %w", err)
	}
	b, err := newBaseModel("covarion", product(v, h), opts)
	if err != nil {
		return nil, err
	}
	m := &BinaryCovarion{
		BaseModel:  b,
		alpha:      alpha,
		switchRate: switchRate,
		vfreq:      v,
		hfreq:      h,
		mode:       mode,
	}
	m.addParameter(&m.alpha, "alpha")
	m.addParameter(&m.switchRate, "switchRate")
	m.rateMatrix = m.buildRateMatrix
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("covarion: %w", err)
	}
	return m, nil
}

func covarionFrequencies(vfreq, hfreq []float64) (Frequencies, Frequencies, error) {
	if len(vfreq) != 2 || len(hfreq) != 2 {
		return nil, nil, fmt.Errorf("%w: need 2 visible and 2 hidden frequencies", ErrDimensionMismatch)
	}
	v, err := NewFrequencies(vfreq)
	if err != nil {
		return nil, nil, err
	}
	h, err := NewFrequencies(hfreq)
	if err != nil {
		return nil, nil, err
	}
	return v, h, nil
}

// product returns frequencies of the combined states.
func product(v, h Frequencies) Frequencies {
	return Frequencies{v[0] * h[0], v[1] * h[0], v[0] * h[1], v[1] * h[1]}
}

// SetFrequencies sets visible frequencies from two values, or both
// visible and hidden frequencies from the four product frequencies
// returned by Frequencies.
func (m *BinaryCovarion) SetFrequencies(pi []float64) error {
	if len(pi) != 4 {
		return m.SetCovarionFrequencies(pi, m.hfreq)
	}
	v, h, err := factorFrequencies(pi)
	if err != nil {
		return err
	}
	return m.SetCovarionFrequencies(v, h)
}

// factorFrequencies splits combined state frequencies into visible and
// hidden marginals. The combined frequencies must be their product.
func factorFrequencies(pi []float64) (Frequencies, Frequencies, error) {
	f, err := NewFrequencies(pi)
	if err != nil {
		return nil, nil, err
	}
	v := Frequencies{f[0] + f[2], f[1] + f[3]}
	h := Frequencies{f[0] + f[1], f[2] + f[3]}
	for i, p := range product(v, h) {
		if math.Abs(p-f[i]) > FreqTolerance {
			return nil, nil, fmt.Errorf("%w: %v is not a product of visible and hidden frequencies", ErrInvalidFrequencies, pi)
		}
	}
	return v, h, nil
}

// SetCovarionFrequencies sets both visible and hidden frequencies.
func (m *BinaryCovarion) SetCovarionFrequencies(vfreq, hfreq []float64) error {
	v, h, err := covarionFrequencies(vfreq, hfreq)
	if err != nil {
		return err
	}
	m.vfreq, m.hfreq = v, h
	m.pi = product(v, h)
	m.Invalidate()
	return nil
}

// buildRateMatrix normalizes the matrix to one visible substitution per
// unit time: switches between hidden classes are not counted.
func (m *BinaryCovarion) buildRateMatrix() (*mat64.Dense, error) {
	a, s := m.alpha, m.switchRate
	p0, p1 := m.vfreq[0], m.vfreq[1]
	toFast, toSlow := s, s
	if m.mode == CovarionReversible {
		toFast, toSlow = s*m.hfreq[1], s*m.hfreq[0]
	}

	q := mat64.NewDense(4, 4, []float64{
		0, a * p1, toFast, 0,
		a * p0, 0, 0, toFast,
		toSlow, 0, 0, p1,
		0, toSlow, p0, 0,
	})
	if err := Normalize(q, m.pi); err != nil {
		return nil, err
	}
	switching := switchingProportion(q, m.pi)
	if switching >= 1 || math.IsNaN(switching) {
		return nil, fmt.Errorf("%w: switching proportion is %v", ErrDegenerateRates, switching)
	}
	q.Scale(1/(1-switching), q)
	return q, nil
}

// switchingProportion returns the part of the substitution rate of q
// spent on switching between hidden classes.
func switchingProportion(q mat64.Matrix, pi Frequencies) float64 {
	return q.At(0, 2)*pi[2] + q.At(2, 0)*pi[0] + q.At(1, 3)*pi[3] + q.At(3, 1)*pi[1]
}

// SubstitutionScale returns the expected number of visible
// substitutions per unit time for the rate matrix q of the model.
func (m *BinaryCovarion) SubstitutionScale(q mat64.Matrix) float64 {
	scale := 0.0
	for i, p := range m.pi {
		scale -= q.At(i, i) * p
	}
	return scale - switchingProportion(q, m.pi)
}
