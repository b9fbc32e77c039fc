// Package eigen implements real eigendecomposition of rate matrices.
package eigen

import (
	"errors"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("eigen")

var (
	// ErrNotConverged is returned when the QR iterations exceed n*30.
	ErrNotConverged = errors.New("eigen: eigenvalues did not converge")
	// ErrSingular is returned when the eigenvector matrix cannot be inverted.
	ErrSingular = errors.New("eigen: singular eigenvector matrix")
	// ErrDimension is returned for non-square or wrongly sized input.
	ErrDimension = errors.New("eigen: dimension mismatch")
)

// System decomposes a square matrix. Decompose may use q as a working
// buffer, its content is undefined after the call.
type System interface {
	Decompose(q *mat64.Dense) (*Decomposition, error)
}

// Decomposition stores right eigenvectors, their inverse and
// eigenvalues. Matrices are flat and row-major. Only real parts of
// eigenvalues take part in computations, imaginary parts are kept for
// diagnostics.
type Decomposition struct {
	N       int
	Vectors []float64
	Inverse []float64
	Values  []float64
	Imag    []float64
}

// NewDecomposition allocates a zero decomposition for n states.
func NewDecomposition(n int) *Decomposition {
	return &Decomposition{
		N:       n,
		Vectors: make([]float64, n*n),
		Inverse: make([]float64, n*n),
		Values:  make([]float64, n),
		Imag:    make([]float64, n),
	}
}

// Copy returns a deep copy.
func (d *Decomposition) Copy() *Decomposition {
	c := NewDecomposition(d.N)
	copy(c.Vectors, d.Vectors)
	copy(c.Inverse, d.Inverse)
	copy(c.Values, d.Values)
	copy(c.Imag, d.Imag)
	return c
}

// IsComplex returns true if any eigenvalue has a non-zero imaginary part.
func (d *Decomposition) IsComplex() bool {
	for _, v := range d.Imag {
		if v != 0 {
			return true
		}
	}
	return false
}

// Dense returns V and V^-1 as matrices. Data is copied.
func (d *Decomposition) Dense() (v, iv *mat64.Dense) {
	v = mat64.NewDense(d.N, d.N, append([]float64(nil), d.Vectors...))
	iv = mat64.NewDense(d.N, d.N, append([]float64(nil), d.Inverse...))
	return
}

// Reconstruct computes V*diag(values)*V^-1.
func (d *Decomposition) Reconstruct() *mat64.Dense {
	v, iv := d.Dense()
	for i := 0; i < d.N; i++ {
		for j := 0; j < d.N; j++ {
			iv.Set(i, j, iv.At(i, j)*d.Values[i])
		}
	}
	res := mat64.NewDense(d.N, d.N, nil)
	res.Mul(v, iv)
	return res
}
