package substmodel

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// ReversibleRates returns the number of free rates of a reversible
// model with n states.
func ReversibleRates(n int) int {
	return n * (n - 1) / 2
}

// NonReversibleRates returns the number of free rates of a
// non-reversible model with n states.
func NonReversibleRates(n int) int {
	return n * (n - 1)
}

// ReversibleIndex returns the rate index for the cell (i, j), i != j.
// Rates are the upper triangle in row-major order: (0,1), (0,2), ...,
// (0,n-1), (1,2), ... The cell (j, i) shares the rate with (i, j).
func ReversibleIndex(i, j, n int) int {
	if i > j {
		i, j = j, i
	}
	return i*n - i*(i+1)/2 + j - i - 1
}

// NonReversibleIndex returns the rate index for the cell (i, j),
// i != j. Rates fill the matrix row by row skipping the diagonal, so
// rate k belongs to the row k/(n-1) and the column k%(n-1), shifted by
// one if it is not below the row.
func NonReversibleIndex(i, j, n int) int {
	if j > i {
		return i*(n-1) + j - 1
	}
	return i*(n-1) + j
}

// BuildRateMatrix creates a normalized rate matrix. For reversible
// models rates has n(n-1)/2 elements and the cell (i, j) is multiplied
// by pi[j]. Otherwise rates has n(n-1) elements used as is.
func BuildRateMatrix(rates []float64, pi Frequencies, reversible bool) (*mat64.Dense, error) {
	n := len(pi)
	want := NonReversibleRates(n)
	if reversible {
		want = ReversibleRates(n)
	}
	if len(rates) != want {
		return nil, fmt.Errorf("%w: %d rates for %d states, need %d", ErrDimensionMismatch, len(rates), n, want)
	}
	for i, r := range rates {
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("%w: rate[%d]=%v", ErrInvalidParameter, i, r)
		}
	}

	q := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if reversible {
				q.Set(i, j, rates[ReversibleIndex(i, j, n)]*pi[j])
			} else {
				q.Set(i, j, rates[NonReversibleIndex(i, j, n)])
			}
		}
	}
	if err := Normalize(q, pi); err != nil {
		return nil, err
	}
	return q, nil
}

// Normalize sets the diagonal so that rows sum to zero and scales q to
// one expected substitution per unit time.
func Normalize(q *mat64.Dense, pi Frequencies) error {
	scale := setDiagonal(q, pi)
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: substitution scale is %v", ErrDegenerateRates, scale)
	}
	q.Scale(1/scale, q)
	return nil
}

// setDiagonal sets q[i][i] to minus the row sum and returns the
// expected number of substitutions per unit time.
func setDiagonal(q *mat64.Dense, pi Frequencies) (scale float64) {
	n, _ := q.Dims()
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if i != j {
				sum += q.At(i, j)
			}
		}
		q.Set(i, i, -sum)
		scale += sum * pi[i]
	}
	return
}
