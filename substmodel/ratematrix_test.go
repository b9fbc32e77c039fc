package substmodel

import (
	"errors"
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
)

func TestReversibleIndex(tst *testing.T) {
	for n := 2; n <= 20; n++ {
		seen := make(map[int]bool)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				k := ReversibleIndex(i, j, n)
				if k != ReversibleIndex(j, i, n) {
					tst.Errorf("n=%d: (%d,%d) and (%d,%d) have different indices", n, i, j, j, i)
				}
				if k < 0 || k >= ReversibleRates(n) || seen[k] {
					tst.Errorf("n=%d: bad or duplicate index %d for (%d,%d)", n, k, i, j)
				}
				seen[k] = true
			}
		}
		if len(seen) != ReversibleRates(n) {
			tst.Errorf("n=%d: %d indices, expected %d", n, len(seen), ReversibleRates(n))
		}
	}

	// nucleotide order: AC, AG, AT, CG, CT, GT
	exp := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	for k, c := range exp {
		if ReversibleIndex(c[0], c[1], 4) != k {
			tst.Errorf("(%d,%d) should map to %d", c[0], c[1], k)
		}
	}
}

func TestNonReversibleIndex(tst *testing.T) {
	for n := 2; n <= 20; n++ {
		for k := 0; k < NonReversibleRates(n); k++ {
			i := k / (n - 1)
			j := k % (n - 1)
			if j >= i {
				j++
			}
			if got := NonReversibleIndex(i, j, n); got != k {
				tst.Errorf("n=%d: (%d,%d) maps to %d, expected %d", n, i, j, got, k)
			}
		}
	}
}

func checkRateMatrix(tst *testing.T, name string, q *mat64.Dense, pi Frequencies, reversible bool) {
	n, _ := q.Dims()
	scale := 0.0
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += q.At(i, j)
			if i != j && q.At(i, j) < 0 {
				tst.Errorf("%s: negative rate Q[%d,%d]=%v", name, i, j, q.At(i, j))
			}
			if reversible && !appreq(pi[i]*q.At(i, j), pi[j]*q.At(j, i), 1e-12) {
				tst.Errorf("%s: detailed balance violated for (%d,%d)", name, i, j)
			}
		}
		if !appreq(sum, 0, 1e-12) {
			tst.Errorf("%s: row %d sums to %v", name, i, sum)
		}
		scale -= q.At(i, i) * pi[i]
	}
	if !appreq(scale, 1, 1e-12) {
		tst.Errorf("%s: substitution scale is %v", name, scale)
	}
}

func TestBuildRateMatrix(tst *testing.T) {
	pi := Frequencies{.2, .3, .25, .25}
	q, err := BuildRateMatrix([]float64{0.2, 10, 0.3, 0.4, 5, 0.5}, pi, true)
	if err != nil {
		tst.Fatal(err)
	}
	checkRateMatrix(tst, "GTR", q, pi, true)

	q, err = BuildRateMatrix([]float64{1, 2, 0.5, 3, 0.2, 1.5}, Frequencies{.3, .3, .4}, false)
	if err != nil {
		tst.Fatal(err)
	}
	checkRateMatrix(tst, "nonreversible", q, Frequencies{.3, .3, .4}, false)
}

func TestRateMapping(tst *testing.T) {
	pi := EqualFrequencies(4)
	// only A<->G
	q, err := BuildRateMatrix([]float64{0, 1, 0, 0, 0, 0}, pi, true)
	if err != nil {
		tst.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			ag := (i == 0 && j == 2) || (i == 2 && j == 0)
			if i != j && ag != (q.At(i, j) > 0) {
				tst.Errorf("Q[%d,%d]=%v", i, j, q.At(i, j))
			}
		}
	}

	// distinct non-reversible rates keep their ratios
	rates := []float64{1, 2, 3, 4, 5, 6}
	q, err = BuildRateMatrix(rates, EqualFrequencies(3), false)
	if err != nil {
		tst.Fatal(err)
	}
	exp := [][]float64{{0, 1, 2}, {3, 0, 4}, {5, 6, 0}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && !appreq(q.At(i, j)/q.At(0, 1), exp[i][j], 1e-12) {
				tst.Errorf("Q[%d,%d]/Q[0,1]=%v, expected %v", i, j, q.At(i, j)/q.At(0, 1), exp[i][j])
			}
		}
	}
}

func TestBuildRateMatrixErrors(tst *testing.T) {
	pi := EqualFrequencies(4)
	if _, err := BuildRateMatrix(make([]float64, 6), pi, true); !errors.Is(err, ErrDegenerateRates) {
		tst.Error("zero rates: expected ErrDegenerateRates, got", err)
	}
	if _, err := BuildRateMatrix(make([]float64, 12), pi, false); !errors.Is(err, ErrDegenerateRates) {
		tst.Error("zero rates: expected ErrDegenerateRates, got", err)
	}
	if _, err := BuildRateMatrix([]float64{1, 1, 1}, pi, true); !errors.Is(err, ErrDimensionMismatch) {
		tst.Error("expected ErrDimensionMismatch, got", err)
	}
	if _, err := BuildRateMatrix([]float64{1, -1, 1, 1, 1, 1}, pi, true); !errors.Is(err, ErrInvalidParameter) {
		tst.Error("expected ErrInvalidParameter, got", err)
	}
	if _, err := BuildRateMatrix([]float64{1, math.NaN(), 1, 1, 1, 1}, pi, true); !errors.Is(err, ErrInvalidParameter) {
		tst.Error("expected ErrInvalidParameter, got", err)
	}
}

func TestFrequencies(tst *testing.T) {
	if _, err := NewFrequencies([]float64{.5, .6}); !errors.Is(err, ErrInvalidFrequencies) {
		tst.Error("expected ErrInvalidFrequencies, got", err)
	}
	if _, err := NewFrequencies([]float64{1.5, -.5}); !errors.Is(err, ErrInvalidFrequencies) {
		tst.Error("expected ErrInvalidFrequencies, got", err)
	}
	if _, err := NewFrequencies([]float64{1}); !errors.Is(err, ErrDimensionMismatch) {
		tst.Error("expected ErrDimensionMismatch, got", err)
	}
	if _, err := NewFrequencies([]float64{.5, .5 + 1e-7}); err != nil {
		tst.Error("deviation within tolerance should be accepted:", err)
	}

	f, err := EmpiricalFrequencies(4, []int{0, 1, 2, 3, -1}, []int{0, 0, 9})
	if err != nil {
		tst.Fatal(err)
	}
	if !cmp(f, []float64{.5, 1. / 6, 1. / 6, 1. / 6}, smallDiff) {
		tst.Error("Empirical frequencies:", f)
	}
	if _, err := EmpiricalFrequencies(4, []int{-1}); !errors.Is(err, ErrInvalidFrequencies) {
		tst.Error("expected ErrInvalidFrequencies, got", err)
	}
}
