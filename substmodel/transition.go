package substmodel

import (
	"math"

	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"

	"bitbucket.org/Davydov/ctmc/eigen"
)

// zeroEigen is the largest magnitude of an eigenvalue treated as the
// stationary one when t is infinite.
const zeroEigen = 1e-8

// TransitionProbabilities computes P(t) = V*exp(D*t)*V^-1 into dst, a
// row-major n*n slice. If dst is nil, it is allocated. Small negative
// values caused by rounding are replaced by their absolute values.
func TransitionProbabilities(d *eigen.Decomposition, t float64, dst []float64) []float64 {
	n := d.N
	if dst == nil {
		dst = make([]float64, n*n)
	}
	if len(dst) != n*n {
		panic("transition probabilities: wrong destination length")
	}

	// scaled holds exp(D*t)*V^-1
	scaled := make([]float64, n*n)
	for k := 0; k < n; k++ {
		e := expt(d.Values[k], t)
		row := d.Inverse[k*n : (k+1)*n]
		for j, v := range row {
			scaled[k*n+j] = e * v
		}
	}
	blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(n, d.Vectors), general(n, scaled),
		0, general(n, dst))
	for i, v := range dst {
		dst[i] = math.Abs(v)
	}
	return dst
}

func expt(lambda, t float64) float64 {
	if math.IsInf(t, 1) {
		if math.Abs(lambda) < zeroEigen {
			return 1
		}
		return 0
	}
	return math.Exp(lambda * t)
}

func general(n int, data []float64) blas64.General {
	return blas64.General{Rows: n, Cols: n, Stride: n, Data: data}
}
