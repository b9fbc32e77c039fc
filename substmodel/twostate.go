package substmodel

import (
	"fmt"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/ctmc/eigen"
)

// TwoState is the binary model. With frequencies p0 and p1,
// P_ij(t) = p_j + (delta_ij - p_j)*exp(-t/(2*p0*p1)).
type TwoState struct {
	*BaseModel
}

// NewTwoState creates a binary model with frequencies pi.
func NewTwoState(pi []float64, opts ...Option) (*TwoState, error) {
	b, err := newBaseModel("binary", pi, opts)
	if err != nil {
		return nil, err
	}
	if b.n != 2 {
		return nil, fmt.Errorf("binary: %w: %d frequencies, need 2", ErrDimensionMismatch, b.n)
	}
	m := &TwoState{b}
	m.rateMatrix = func() (*mat64.Dense, error) {
		return BuildRateMatrix([]float64{1}, m.pi, true)
	}
	m.spectrum = m.decomposition
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("binary: %w", err)
	}
	return m, nil
}

func (m *TwoState) decomposition() (*eigen.Decomposition, error) {
	p0, p1 := m.pi[0], m.pi[1]
	if p0*p1 == 0 {
		return nil, fmt.Errorf("binary: %w: frequencies %v", ErrDegenerateRates, m.pi)
	}
	d := eigen.NewDecomposition(2)
	d.Values[1] = -1 / (2 * p0 * p1)
	copy(d.Vectors, []float64{
		1, p1,
		1, -p0,
	})
	copy(d.Inverse, []float64{
		p0, p1,
		1, -1,
	})
	return d, nil
}

// TransitionProbabilities computes P(time*rate) in closed form.
func (m *TwoState) TransitionProbabilities(time, rate float64, dst []float64) ([]float64, error) {
	t, err := distance(time, rate)
	if err != nil {
		return nil, err
	}
	d, err := m.EigenDecomposition()
	if err != nil {
		return nil, err
	}
	dst = allocate(dst, 2)
	e := expt(d.Values[1], t)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			pj := d.Inverse[j]
			if i == j {
				dst[i*2+j] = pj + (1-pj)*e
			} else {
				dst[i*2+j] = pj - pj*e
			}
		}
	}
	return dst, nil
}
