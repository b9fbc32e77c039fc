package substmodel

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// Nucleotides is the state order of all nucleotide models.
const Nucleotides = "ACGT"

// General is a substitution model with a free rate per pair of states.
// Reversible models have n(n-1)/2 rates (see ReversibleIndex),
// non-reversible ones have n(n-1) (see NonReversibleIndex).
type General struct {
	*BaseModel
	rates      []float64
	reversible bool
}

func newGeneral(name string, rates, pi []float64, names []string, reversible bool, opts []Option) (*General, error) {
	b, err := newBaseModel(name, pi, opts)
	if err != nil {
		return nil, err
	}
	m := &General{
		BaseModel:  b,
		rates:      append([]float64(nil), rates...),
		reversible: reversible,
	}
	if len(names) != len(m.rates) {
		return nil, fmt.Errorf("%s: %w: %d rates, need %d", name, ErrDimensionMismatch, len(m.rates), len(names))
	}
	for i, n := range names {
		m.addParameter(&m.rates[i], n)
	}
	m.rateMatrix = func() (*mat64.Dense, error) {
		return BuildRateMatrix(m.rates, m.pi, m.reversible)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

func stateName(i int, states string) string {
	if len(states) > i {
		return states[i : i+1]
	}
	return fmt.Sprint(i)
}

func rateNames(n int, states string, reversible bool) []string {
	var names []string
	sep := ""
	if len(states) < n {
		sep = "_"
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || (reversible && j < i) {
				continue
			}
			names = append(names, "rate"+stateName(i, states)+sep+stateName(j, states))
		}
	}
	return names
}

// NewGeneral creates a reversible model with n(n-1)/2 relative rates,
// where n is the number of frequencies.
func NewGeneral(rates, pi []float64, opts ...Option) (*General, error) {
	return newGeneral("general", rates, pi, rateNames(len(pi), "", true), true, opts)
}

// NewNonReversible creates a model with n(n-1) relative rates. Only the
// row sum and normalization constraints are applied.
func NewNonReversible(rates, pi []float64, opts ...Option) (*General, error) {
	return newGeneral("nonreversible", rates, pi, rateNames(len(pi), "", false), false, opts)
}

// NewGTR creates the general time reversible nucleotide model. Rates are
// in the order AC, AG, AT, CG, CT, GT.
func NewGTR(rates, pi []float64, opts ...Option) (*General, error) {
	return newGeneral("GTR", rates, pi, rateNames(4, Nucleotides, true), true, opts)
}

// NewSYM creates GTR with equal frequencies.
func NewSYM(rates []float64, opts ...Option) (*General, error) {
	m, err := newGeneral("SYM", rates, EqualFrequencies(4), rateNames(4, Nucleotides, true), true, opts)
	if err != nil {
		return nil, err
	}
	m.equalFreq = true
	return m, nil
}

// Rates returns a copy of the relative rates.
func (m *General) Rates() []float64 {
	return append([]float64(nil), m.rates...)
}

// Reversible returns true if detailed balance is enforced.
func (m *General) Reversible() bool {
	return m.reversible
}
