package eigen

import (
	"errors"
	"fmt"
	"math"

	"github.com/gonum/matrix"
	"github.com/gonum/matrix/mat64"
)

// inverseTolerance is the largest allowed deviation of V·V⁻¹ from the
// identity.
const inverseTolerance = 1e-8

// GonumSystem decomposes matrices with LAPACK Geev as exposed by
// mat64.Eigen, and inverts eigenvectors with mat64.
type GonumSystem struct{}

// Decompose computes the eigendecomposition of q. q is not modified.
func (GonumSystem) Decompose(q *mat64.Dense) (*Decomposition, error) {
	r, c := q.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: got %dx%d", ErrDimension, r, c)
	}
	n := r

	var e mat64.Eigen
	if ok := e.Factorize(q, false, true); !ok {
		log.Errorf("Geev failed for %dx%d matrix", n, n)
		return nil, fmt.Errorf("%w: n=%d, geev failed", ErrNotConverged, n)
	}
	v := e.Vectors()
	iv := mat64.NewDense(n, n, nil)
	if err := iv.Inverse(v); err != nil {
		var cond matrix.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			log.Errorf("Inverting %dx%d eigenvector matrix: %v", n, n, err)
			return nil, fmt.Errorf("%w: n=%d: %v", ErrSingular, n, err)
		}
		// a large condition number is only a warning, the inverse is
		// rejected if it does not invert
		if dev := inverseDeviation(v, iv); dev > inverseTolerance {
			log.Errorf("Inverting %dx%d eigenvector matrix: %v, deviation %g", n, n, err, dev)
			return nil, fmt.Errorf("%w: n=%d: %v, deviation %g", ErrSingular, n, err, dev)
		}
		log.Warningf("Inverting %dx%d eigenvector matrix: %v", n, n, err)
	}

	d := NewDecomposition(n)
	for i, l := range e.Values(nil) {
		d.Values[i] = real(l)
		d.Imag[i] = imag(l)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Vectors[i*n+j] = v.At(i, j)
			d.Inverse[i*n+j] = iv.At(i, j)
		}
	}
	return d, nil
}

// inverseDeviation returns max |V·V⁻¹ - I|.
func inverseDeviation(v, iv mat64.Matrix) float64 {
	n, _ := v.Dims()
	var p mat64.Dense
	p.Mul(v, iv)
	dev := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e := p.At(i, j)
			if i == j {
				e--
			}
			if math.IsNaN(e) {
				return math.Inf(1)
			}
			dev = math.Max(dev, math.Abs(e))
		}
	}
	return dev
}
