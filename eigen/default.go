package eigen

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// epsilon replaces exact zero pivots in the LU decomposition.
const epsilon = 2.220446049250313e-16

// square is a row view over a flat n*n buffer.
type square [][]float64

func rows(data []float64, n, stride int) square {
	s := make(square, n)
	for i := range s {
		s[i] = data[i*stride : i*stride+n]
	}
	return s
}

// DefaultSystem reduces a matrix to the upper Hessenberg form by
// stabilized elementary similarity transformations, finds eigenvalues
// and eigenvectors with the shifted QR algorithm and inverts the
// eigenvectors by LU decomposition. This follows the EISPACK routines
// ELMHES, ELTRAN and HQR2; loop indices in those routines are one-based
// and are kept so here.
type DefaultSystem struct {
	n int
}

// NewDefaultSystem creates a DefaultSystem for n*n matrices.
func NewDefaultSystem(n int) *DefaultSystem {
	return &DefaultSystem{n: n}
}

// Decompose computes the eigendecomposition of q, overwriting q.
func (s *DefaultSystem) Decompose(q *mat64.Dense) (*Decomposition, error) {
	r, c := q.Dims()
	if r != c || r != s.n {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrDimension, r, c, s.n, s.n)
	}
	n := s.n
	raw := q.RawMatrix()
	h := rows(raw.Data, n, raw.Stride)

	d := NewDecomposition(n)
	zz := rows(d.Vectors, n, n)
	ordr := make([]int, n)

	elmhes(h, ordr)
	eltran(h, zz, ordr)
	if err := hqr2(h, zz, d.Values, d.Imag); err != nil {
		log.Errorf("QR failed for %dx%d matrix: %v", n, n, err)
		return nil, err
	}
	if err := luInverse(zz, rows(d.Inverse, n, n)); err != nil {
		log.Errorf("Inverting %dx%d eigenvector matrix: %v", n, n, err)
		return nil, err
	}
	return d, nil
}

// elmhes reduces a to the upper Hessenberg form. Multipliers are
// stored below the subdiagonal, the row interchanges in ordr.
func elmhes(a square, ordr []int) {
	n := len(a)
	for i := range ordr {
		ordr[i] = 0
	}
	for m := 2; m < n; m++ {
		x := 0.0
		i := m
		for j := m; j <= n; j++ {
			if math.Abs(a[j-1][m-2]) > math.Abs(x) {
				x = a[j-1][m-2]
				i = j
			}
		}
		ordr[m-1] = i
		if i != m {
			for j := m - 2; j < n; j++ {
				a[i-1][j], a[m-1][j] = a[m-1][j], a[i-1][j]
			}
			for j := 0; j < n; j++ {
				a[j][i-1], a[j][m-1] = a[j][m-1], a[j][i-1]
			}
		}
		if x == 0 {
			continue
		}
		for i := m; i < n; i++ {
			y := a[i][m-2]
			if y == 0 {
				continue
			}
			y /= x
			a[i][m-2] = y
			for j := m - 1; j < n; j++ {
				a[i][j] -= y * a[m-1][j]
			}
			for j := 0; j < n; j++ {
				a[j][m-1] += y * a[j][i]
			}
		}
	}
}

// eltran accumulates the transformations recorded by elmhes into zz.
func eltran(a, zz square, ordr []int) {
	n := len(a)
	for i := range zz {
		for j := range zz[i] {
			zz[i][j] = 0
		}
		zz[i][i] = 1
	}
	if n <= 2 {
		return
	}
	for m := n - 1; m >= 2; m-- {
		for i := m; i < n; i++ {
			zz[i][m-1] = a[i][m-2]
		}
		i := ordr[m-1]
		if i != m {
			for j := m - 1; j < n; j++ {
				zz[m-1][j] = zz[i-1][j]
				zz[i-1][j] = 0
			}
			zz[i-1][m-1] = 1
		}
	}
}

// cdiv performs complex division (ar+i*ai)/(br+i*bi).
func cdiv(ar, ai, br, bi float64) (cr, ci float64) {
	s := math.Abs(br) + math.Abs(bi)
	ars := ar / s
	ais := ai / s
	brs := br / s
	bis := bi / s
	s = brs*brs + bis*bis
	cr = (ars*brs + ais*bis) / s
	ci = (ais*brs - ars*bis) / s
	return
}

// hqr2 computes eigenvalues (wr, wi) and eigenvectors of the upper
// Hessenberg matrix h. On entry zz holds the transformation produced
// by eltran, on return its columns are the eigenvectors. For a complex
// pair the real and imaginary parts occupy two adjacent columns.
func hqr2(h, zz square, wr, wi []float64) error {
	n := len(h)
	norm := 0.0
	for i := 0; i < n; i++ {
		for j := max(i-1, 0); j < n; j++ {
			norm += math.Abs(h[i][j])
		}
	}

	var p, q, r, s, w, x, y, z float64
	t := 0.0
	itn := n * 30
	en := n
	for en >= 1 {
		its := 0
		na := en - 1
		var l int
		for {
			// look for a single small subdiagonal element
			l = 1
			for ll := en; ll > 1; ll-- {
				s = math.Abs(h[ll-2][ll-2]) + math.Abs(h[ll-1][ll-1])
				if s == 0 {
					s = norm
				}
				if s+math.Abs(h[ll-1][ll-2]) == s {
					l = ll
					break
				}
			}
			x = h[en-1][en-1]
			if l == en || l == na {
				break
			}
			if itn == 0 {
				return fmt.Errorf("%w: n=%d, %d iterations", ErrNotConverged, n, n*30)
			}
			y = h[na-1][na-1]
			w = h[en-1][na-1] * h[na-1][en-1]
			if its == 10 || its == 20 {
				// exceptional shift
				t += x
				for i := 0; i < en; i++ {
					h[i][i] -= x
				}
				s = math.Abs(h[en-1][na-1]) + math.Abs(h[na-1][en-3])
				x = 0.75 * s
				y = x
				w = -0.4375 * s * s
			}
			its++
			itn--

			// look for two consecutive small subdiagonal elements
			var m int
			for m = en - 2; m >= l; m-- {
				z = h[m-1][m-1]
				r = x - z
				s = y - z
				p = (r*s-w)/h[m][m-1] + h[m-1][m]
				q = h[m][m] - z - r - s
				r = h[m+1][m]
				s = math.Abs(p) + math.Abs(q) + math.Abs(r)
				p /= s
				q /= s
				r /= s
				if m == l {
					break
				}
				tst1 := math.Abs(p) * (math.Abs(h[m-2][m-2]) + math.Abs(z) + math.Abs(h[m][m]))
				if tst1+math.Abs(h[m-1][m-2])*(math.Abs(q)+math.Abs(r)) == tst1 {
					break
				}
			}
			for i := m + 2; i <= en; i++ {
				h[i-1][i-3] = 0
				if i != m+2 {
					h[i-1][i-4] = 0
				}
			}

			// double QR step on rows l..en and columns m..en
			for k := m; k <= na; k++ {
				last := k == na
				if k != m {
					p = h[k-1][k-2]
					q = h[k][k-2]
					r = 0
					if !last {
						r = h[k+1][k-2]
					}
					x = math.Abs(p) + math.Abs(q) + math.Abs(r)
					if x != 0 {
						p /= x
						q /= x
						r /= x
					}
				}
				if x == 0 {
					continue
				}
				s = math.Sqrt(p*p + q*q + r*r)
				if p < 0 {
					s = -s
				}
				if k != m {
					h[k-1][k-2] = -s * x
				} else if l != m {
					h[k-1][k-2] = -h[k-1][k-2]
				}
				p += s
				x = p / s
				y = q / s
				z = r / s
				q /= p
				r /= p
				jmax := min(en, k+3)
				if last {
					for j := k - 1; j < n; j++ {
						p = h[k-1][j] + q*h[k][j]
						h[k-1][j] -= p * x
						h[k][j] -= p * y
					}
					for i := 0; i < jmax; i++ {
						p = x*h[i][k-1] + y*h[i][k]
						h[i][k-1] -= p
						h[i][k] -= p * q
					}
					for i := 0; i < n; i++ {
						p = x*zz[i][k-1] + y*zz[i][k]
						zz[i][k-1] -= p
						zz[i][k] -= p * q
					}
				} else {
					for j := k - 1; j < n; j++ {
						p = h[k-1][j] + q*h[k][j] + r*h[k+1][j]
						h[k-1][j] -= p * x
						h[k][j] -= p * y
						h[k+1][j] -= p * z
					}
					for i := 0; i < jmax; i++ {
						p = x*h[i][k-1] + y*h[i][k] + z*h[i][k+1]
						h[i][k-1] -= p
						h[i][k] -= p * q
						h[i][k+1] -= p * r
					}
					for i := 0; i < n; i++ {
						p = x*zz[i][k-1] + y*zz[i][k] + z*zz[i][k+1]
						zz[i][k-1] -= p
						zz[i][k] -= p * q
						zz[i][k+1] -= p * r
					}
				}
			}
		}

		if l == en {
			// one root found
			h[en-1][en-1] = x + t
			wr[en-1] = h[en-1][en-1]
			wi[en-1] = 0
			en = na
			continue
		}

		// two roots found
		y = h[na-1][na-1]
		w = h[en-1][na-1] * h[na-1][en-1]
		p = (y - x) / 2
		q = p*p + w
		z = math.Sqrt(math.Abs(q))
		h[en-1][en-1] = x + t
		x = h[en-1][en-1]
		h[na-1][na-1] = y + t
		if q >= 0 {
			// real pair
			if p < 0 {
				z = p - math.Abs(z)
			} else {
				z = p + math.Abs(z)
			}
			wr[na-1] = x + z
			wr[en-1] = wr[na-1]
			if z != 0 {
				wr[en-1] = x - w/z
			}
			wi[na-1] = 0
			wi[en-1] = 0
			x = h[en-1][na-1]
			s = math.Abs(x) + math.Abs(z)
			p = x / s
			q = z / s
			r = math.Sqrt(p*p + q*q)
			p /= r
			q /= r
			for j := na - 1; j < n; j++ {
				z = h[na-1][j]
				h[na-1][j] = q*z + p*h[en-1][j]
				h[en-1][j] = q*h[en-1][j] - p*z
			}
			for i := 0; i < en; i++ {
				z = h[i][na-1]
				h[i][na-1] = q*z + p*h[i][en-1]
				h[i][en-1] = q*h[i][en-1] - p*z
			}
			for i := 0; i < n; i++ {
				z = zz[i][na-1]
				zz[i][na-1] = q*z + p*zz[i][en-1]
				zz[i][en-1] = q*zz[i][en-1] - p*z
			}
		} else {
			// complex pair
			wr[na-1] = x + p
			wr[en-1] = x + p
			wi[na-1] = z
			wi[en-1] = -z
		}
		en -= 2
	}

	if norm == 0 {
		return nil
	}
	backSubstitute(h, wr, wi, norm)

	// multiply by the transformation matrix to get vectors of the
	// original matrix
	for j := n - 1; j >= 0; j-- {
		m := min(j+1, n)
		for i := 0; i < n; i++ {
			z := 0.0
			for k := 0; k < m; k++ {
				z += zz[i][k] * h[k][j]
			}
			zz[i][j] = z
		}
	}
	return nil
}

// backSubstitute finds the eigenvectors of the upper quasi-triangular
// matrix h. Vectors are written into the upper triangle of h.
func backSubstitute(h square, wr, wi []float64, norm float64) {
	n := len(h)
	var p, q, r, s, t, w, x, y, z float64
	for en := n; en >= 1; en-- {
		p = wr[en-1]
		q = wi[en-1]
		na := en - 1
		switch {
		case q == 0:
			// real vector
			m := en
			h[en-1][en-1] = 1
			for i := en - 2; i >= 0; i-- {
				w = h[i][i] - p
				r = 0
				for j := m - 1; j < en; j++ {
					r += h[i][j] * h[j][en-1]
				}
				if wi[i] < 0 {
					z = w
					s = r
					continue
				}
				m = i + 1
				if wi[i] == 0 {
					t = w
					if t == 0 {
						t = perturb(norm, norm)
					}
					h[i][en-1] = -(r / t)
				} else {
					// solve real equations
					x = h[i][i+1]
					y = h[i+1][i]
					q = (wr[i]-p)*(wr[i]-p) + wi[i]*wi[i]
					t = (x*s - z*r) / q
					h[i][en-1] = t
					if math.Abs(x) > math.Abs(z) {
						h[i+1][en-1] = (-r - w*t) / x
					} else {
						h[i+1][en-1] = (-s - y*t) / z
					}
				}
				// overflow control
				t = math.Abs(h[i][en-1])
				if t != 0 && t+1/t <= t {
					for j := i; j < en; j++ {
						h[j][en-1] /= t
					}
				}
			}
		case q < 0:
			// complex vector, last component imaginary
			m := na
			if math.Abs(h[en-1][na-1]) > math.Abs(h[na-1][en-1]) {
				h[na-1][na-1] = q / h[en-1][na-1]
				h[na-1][en-1] = (p - h[en-1][en-1]) / h[en-1][na-1]
			} else {
				h[na-1][na-1], h[na-1][en-1] = cdiv(0, -h[na-1][en-1], h[na-1][na-1]-p, q)
			}
			h[en-1][na-1] = 0
			h[en-1][en-1] = 1
			for i := en - 3; i >= 0; i-- {
				w = h[i][i] - p
				ra, sa := 0.0, 0.0
				for j := m - 1; j < en; j++ {
					ra += h[i][j] * h[j][na-1]
					sa += h[i][j] * h[j][en-1]
				}
				if wi[i] < 0 {
					z = w
					r = ra
					s = sa
					continue
				}
				m = i + 1
				if wi[i] == 0 {
					h[i][na-1], h[i][en-1] = cdiv(-ra, -sa, w, q)
				} else {
					// solve complex equations
					x = h[i][i+1]
					y = h[i+1][i]
					vr := (wr[i]-p)*(wr[i]-p) + wi[i]*wi[i] - q*q
					vi := (wr[i] - p) * 2 * q
					if vr == 0 && vi == 0 {
						tst1 := norm * (math.Abs(w) + math.Abs(q) + math.Abs(x) + math.Abs(y) + math.Abs(z))
						vr = perturb(tst1, tst1)
					}
					h[i][na-1], h[i][en-1] = cdiv(x*r-z*ra+q*sa, x*s-z*sa-q*ra, vr, vi)
					if math.Abs(x) > math.Abs(z)+math.Abs(q) {
						h[i+1][na-1] = (q*h[i][en-1] - w*h[i][na-1] - ra) / x
						h[i+1][en-1] = (-sa - w*h[i][en-1] - q*h[i][na-1]) / x
					} else {
						h[i+1][na-1], h[i+1][en-1] = cdiv(-r-y*h[i][na-1], -s-y*h[i][en-1], z, q)
					}
				}
				// overflow control
				t = math.Max(math.Abs(h[i][na-1]), math.Abs(h[i][en-1]))
				if t != 0 && t+1/t <= t {
					for j := i; j < en; j++ {
						h[j][na-1] /= t
						h[j][en-1] /= t
					}
				}
			}
		}
	}
}

// perturb returns the largest power-of-0.01 fraction of start which
// no longer changes base when added to it.
func perturb(base, start float64) float64 {
	v := start
	for {
		v *= 0.01
		if base+v <= base {
			return v
		}
	}
}

// luInverse inverts in into out using LU decomposition with scaled
// partial pivoting.
func luInverse(in, out square) error {
	n := len(in)
	a := make(square, n)
	for i := range a {
		a[i] = append([]float64(nil), in[i]...)
	}
	index := make([]int, n)
	wk := make([]float64, n)

	for i := 0; i < n; i++ {
		maxb := 0.0
		for j := 0; j < n; j++ {
			maxb = math.Max(maxb, math.Abs(a[i][j]))
		}
		if maxb == 0 {
			return fmt.Errorf("%w: n=%d, row %d is zero", ErrSingular, n, i)
		}
		wk[i] = 1 / maxb
	}

	maxi := 0
	for j := 0; j < n; j++ {
		for i := 0; i < j; i++ {
			sum := a[i][j]
			for k := 0; k < i; k++ {
				sum -= a[i][k] * a[k][j]
			}
			a[i][j] = sum
		}
		maxb := 0.0
		for i := j; i < n; i++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= a[i][k] * a[k][j]
			}
			a[i][j] = sum
			if tmp := wk[i] * math.Abs(sum); tmp >= maxb {
				maxb = tmp
				maxi = i
			}
		}
		if j != maxi {
			a[maxi], a[j] = a[j], a[maxi]
			wk[maxi] = wk[j]
		}
		index[j] = maxi
		if a[j][j] == 0 {
			a[j][j] = epsilon
		}
		if j != n-1 {
			tmp := 1 / a[j][j]
			for i := j + 1; i < n; i++ {
				a[i][j] *= tmp
			}
		}
	}

	// solve for every column of the identity
	for jx := 0; jx < n; jx++ {
		for i := range wk {
			wk[i] = 0
		}
		wk[jx] = 1
		l := -1
		for i := 0; i < n; i++ {
			idx := index[i]
			sum := wk[idx]
			wk[idx] = wk[i]
			if l != -1 {
				for j := l; j < i; j++ {
					sum -= a[i][j] * wk[j]
				}
			} else if sum != 0 {
				l = i
			}
			wk[i] = sum
		}
		for i := n - 1; i >= 0; i-- {
			sum := wk[i]
			for j := i + 1; j < n; j++ {
				sum -= a[i][j] * wk[j]
			}
			wk[i] = sum / a[i][i]
		}
		for i := 0; i < n; i++ {
			out[i][jx] = wk[i]
		}
	}
	return nil
}
