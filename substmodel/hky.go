package substmodel

import (
	"fmt"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/ctmc/eigen"
)

// TN93 is the Tamura-Nei nucleotide model with separate transition
// rates for purines (kappa1, A<->G) and pyrimidines (kappa2, C<->T).
// Its eigensystem and transition probabilities are computed in closed
// form. States are ordered as in Nucleotides.
type TN93 struct {
	*BaseModel
	kappa1 float64
	kappa2 float64
	// equal makes kappa2 follow kappa1
	equal bool
}

// HKY is TN93 with a single transition/transversion ratio.
type HKY struct {
	*TN93
}

func newTN93(name string, kappa1, kappa2 float64, equal, fixed bool, pi []float64, opts []Option) (*TN93, error) {
	b, err := newBaseModel(name, pi, opts)
	if err != nil {
		return nil, err
	}
	if b.n != 4 {
		return nil, fmt.Errorf("%s: %w: %d frequencies, need 4", name, ErrDimensionMismatch, b.n)
	}
	m := &TN93{
		BaseModel: b,
		kappa1:    kappa1,
		kappa2:    kappa2,
		equal:     equal,
	}
	switch {
	case fixed:
	case equal:
		m.addParameter(&m.kappa1, "kappa")
	default:
		m.addParameter(&m.kappa1, "kappa1")
		m.addParameter(&m.kappa2, "kappa2")
	}
	m.rateMatrix = func() (*mat64.Dense, error) {
		k1, k2 := m.kappas()
		return BuildRateMatrix([]float64{1, k1, 1, 1, k2, 1}, m.pi, true)
	}
	m.spectrum = m.decomposition
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// NewTN93 creates a TN93 model.
func NewTN93(kappa1, kappa2 float64, pi []float64, opts ...Option) (*TN93, error) {
	return newTN93("TN93", kappa1, kappa2, false, false, pi, opts)
}

// NewHKY creates an HKY model.
func NewHKY(kappa float64, pi []float64, opts ...Option) (*HKY, error) {
	m, err := newTN93("HKY", kappa, kappa, true, false, pi, opts)
	if err != nil {
		return nil, err
	}
	return &HKY{m}, nil
}

// NewF81 creates an F81 model, HKY with kappa fixed to 1.
func NewF81(pi []float64, opts ...Option) (*HKY, error) {
	m, err := newTN93("F81", 1, 1, true, true, pi, opts)
	if err != nil {
		return nil, err
	}
	return &HKY{m}, nil
}

// NewJC69 creates the Jukes-Cantor model.
func NewJC69(opts ...Option) (*HKY, error) {
	m, err := newTN93("JC69", 1, 1, true, true, EqualFrequencies(4), opts)
	if err != nil {
		return nil, err
	}
	m.equalFreq = true
	return &HKY{m}, nil
}

func (m *TN93) kappas() (float64, float64) {
	if m.equal {
		return m.kappa1, m.kappa1
	}
	return m.kappa1, m.kappa2
}

// Kappa returns kappa of an HKY model.
func (m *HKY) Kappa() float64 {
	return m.kappa1
}

// decomposition returns the analytic eigensystem. Eigenvalues are
// 0, b, b*ay and b*ar, where b=-1/(2(piR*piY+k1*piA*piG+k2*piC*piT)),
// ar=1+piR*(k1-1) and ay=1+piY*(k2-1). The first row of the inverse
// holds the frequencies.
func (m *TN93) decomposition() (*eigen.Decomposition, error) {
	k1, k2 := m.kappas()
	pA, pC, pG, pT := m.pi[0], m.pi[1], m.pi[2], m.pi[3]
	pR := pA + pG
	pY := pC + pT
	if pR == 0 || pY == 0 {
		return nil, fmt.Errorf("%s: %w: purine and pyrimidine frequencies must be positive", m.name, ErrInvalidFrequencies)
	}
	s := 2 * (pR*pY + k1*pA*pG + k2*pC*pT)
	if s == 0 {
		return nil, fmt.Errorf("%s: %w: substitution scale is 0", m.name, ErrDegenerateRates)
	}
	beta := -1 / s

	d := eigen.NewDecomposition(4)
	d.Values[0] = 0
	d.Values[1] = beta
	d.Values[2] = beta * (1 + pY*(k2-1))
	d.Values[3] = beta * (1 + pR*(k1-1))

	copy(d.Vectors, []float64{
		1, 1 / pR, 0, pG / pR,
		1, -1 / pY, pT / pY, 0,
		1, 1 / pR, 0, -pA / pR,
		1, -1 / pY, -pC / pY, 0,
	})
	copy(d.Inverse, []float64{
		pA, pC, pG, pT,
		pA * pY, -pC * pR, pG * pY, -pT * pR,
		0, 1, 0, -1,
		1, 0, -1, 0,
	})
	return d, nil
}

func purine(i int) bool {
	return i == 0 || i == 2
}

// TransitionProbabilities computes P(time*rate) with the closed form
// Tamura-Nei expressions.
func (m *TN93) TransitionProbabilities(time, rate float64, dst []float64) ([]float64, error) {
	t, err := distance(time, rate)
	if err != nil {
		return nil, err
	}
	d, err := m.EigenDecomposition()
	if err != nil {
		return nil, err
	}
	dst = allocate(dst, 4)

	pi := d.Inverse[:4]
	pR := pi[0] + pi[2]
	pY := pi[1] + pi[3]
	e1 := expt(d.Values[1], t)
	eY := expt(d.Values[2], t)
	eR := expt(d.Values[3], t)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			pj := pi[j]
			delta := 0.0
			if i == j {
				delta = 1
			}
			var p float64
			switch {
			case purine(i) != purine(j):
				p = pj * (1 - e1)
			case purine(i):
				p = pj + pj*pY/pR*e1 + (delta-pj/pR)*eR
			default:
				p = pj + pj*pR/pY*e1 + (delta-pj/pY)*eY
			}
			dst[i*4+j] = p
		}
	}
	return dst, nil
}
