// Package optimize finds maximum likelihood parameter values with the
// downhill simplex method.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/ctmc/parameter"
)

// log is the global logging variable.
var log = logging.MustGetLogger("optimize")

const (
	tiny  = 1e-10
	small = 1e-6
)

// ErrNoParameters is returned when there is nothing to optimize.
var ErrNoParameters = errors.New("optimize: no parameters to optimize")

// Target is a likelihood function of its parameters.
type Target interface {
	Parameters() parameter.FloatParameters
	LogLikelihood(ctx context.Context) (float64, error)
}

// Summary stores optimization results.
type Summary struct {
	Iterations int                `json:"iterations"`
	Calls      int                `json:"likelihoodCalls"`
	Converged  bool               `json:"converged"`
	MaxLnL     float64            `json:"maxLnL"`
	Parameters map[string]float64 `json:"parameters"`
}

// Simplex is the Nelder-Mead downhill simplex maximizer. Vertices are
// parameter vectors, they are evaluated by setting the values on the
// target.
type Simplex struct {
	target Target
	pars   parameter.FloatParameters
	out    io.Writer

	// Delta is the initial simplex size.
	Delta float64
	// FTol is the relative likelihood tolerance.
	FTol float64
	// RepPeriod is how often the best vertex is written.
	RepPeriod int

	points [][]float64
	l      []float64
	psum   []float64
	try    []float64

	i         int
	calls     int
	converged bool
	maxL      float64
}

// NewSimplex creates an optimizer for target.
func NewSimplex(target Target) *Simplex {
	return &Simplex{
		target:    target,
		pars:      target.Parameters(),
		out:       io.Discard,
		Delta:     0.5,
		FTol:      tiny,
		RepPeriod: 10,
	}
}

// SetOutput sets the writer for the progress lines.
func (s *Simplex) SetOutput(w io.Writer) {
	s.out = w
}

// likelihood returns the likelihood at x, -Inf if x is out of bounds
// or the model cannot be computed.
func (s *Simplex) likelihood(ctx context.Context, x []float64) (float64, error) {
	for j, v := range x {
		if !s.pars[j].ValueInRange(v) {
			return math.Inf(-1), nil
		}
	}
	if err := s.pars.SetValues(x); err != nil {
		return 0, err
	}
	s.calls++
	l, err := s.target.LogLikelihood(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.Debugf("%v: %v", x, err)
		return math.Inf(-1), nil
	}
	if math.IsNaN(l) {
		return math.Inf(-1), nil
	}
	return l, nil
}

// createSimplex builds the simplex around x0, shifting every
// coordinate by delta in turn.
func (s *Simplex) createSimplex(ctx context.Context, x0 []float64) error {
	n := len(x0)
	s.points = make([][]float64, n+1)
	s.l = make([]float64, n+1)
	for i := range s.points {
		s.points[i] = append([]float64(nil), x0...)
	}
	for j := 0; j < n; j++ {
		par := s.pars[j]
		v := x0[j] + s.Delta
		if !par.ValueInRange(v) {
			v = x0[j] - s.Delta
		}
		if !par.ValueInRange(v) {
			v = (x0[j] + par.GetMax()) / 2
		}
		s.points[j+1][j] = v
	}
	for i, x := range s.points {
		l, err := s.likelihood(ctx, x)
		if err != nil {
			return err
		}
		s.l[i] = l
	}
	return nil
}

func (s *Simplex) calcPsum() {
	if s.psum == nil {
		s.psum = make([]float64, len(s.pars))
	}
	for j := range s.psum {
		s.psum[j] = 0
		for _, x := range s.points {
			s.psum[j] += x[j]
		}
	}
}

// amotry extrapolates by factor fac through the face of the simplex
// across from the lowest point and replaces it if the new point is
// better.
func (s *Simplex) amotry(ctx context.Context, ilo int, fac float64) (float64, error) {
	if s.try == nil {
		s.try = make([]float64, len(s.pars))
	}
	s.calcPsum()
	ndim := len(s.pars)
	fac1 := (1 - fac) / float64(ndim)
	fac2 := fac1 - fac
	for j := range s.try {
		s.try[j] = s.psum[j]*fac1 - s.points[ilo][j]*fac2
	}
	l, err := s.likelihood(ctx, s.try)
	if err != nil {
		return 0, err
	}
	if l > s.l[ilo] {
		s.points[ilo], s.try = s.try, s.points[ilo]
		s.l[ilo] = l
	}
	return l, nil
}

// shrink contracts all the points towards ihi.
func (s *Simplex) shrink(ctx context.Context, ihi int) error {
	for i, x := range s.points {
		if i == ihi {
			continue
		}
		for j := range x {
			x[j] = 0.5 * (x[j] + s.points[ihi][j])
		}
		l, err := s.likelihood(ctx, x)
		if err != nil {
			return err
		}
		s.l[i] = l
	}
	return nil
}

// order returns the lowest, next-lowest and highest points.
func (s *Simplex) order() (ilo, inlo, ihi int) {
	if s.l[0] < s.l[1] {
		ilo, inlo, ihi = 0, 1, 1
	} else {
		ilo, inlo, ihi = 1, 0, 0
	}
	for i := 2; i < len(s.points); i++ {
		if s.l[i] >= s.l[ihi] {
			ihi = i
		}
		if s.l[i] < s.l[ilo] {
			inlo = ilo
			ilo = i
		} else if s.l[i] < s.l[inlo] {
			inlo = i
		}
	}
	return
}

// Run maximizes the likelihood for at most the given number of
// iterations. On success target parameters are set to the best point.
// If ctx is done, its error is returned.
func (s *Simplex) Run(ctx context.Context, iterations int) error {
	if len(s.pars) == 0 {
		return ErrNoParameters
	}
	x0 := s.pars.Values(nil)
	if _, err := s.target.LogLikelihood(ctx); err != nil {
		return fmt.Errorf("optimize: starting point: %w", err)
	}
	if err := s.createSimplex(ctx, x0); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "iteration\tlikelihood\t%s\n", s.pars.NamesString())
	repeat := false
	oldL := 0.0
	var ihi int
Iter:
	for s.i = 1; s.i <= iterations; s.i++ {
		var ilo, inlo int
		ilo, inlo, ihi = s.order()
		llo, lnlo, lhi := s.l[ilo], s.l[inlo], s.l[ihi]
		if s.i%s.RepPeriod == 0 {
			log.Debugf("%d: L=%f (%f)", s.i, lhi, lhi-llo)
			fmt.Fprintf(s.out, "%d\t%f\t%s\n", s.i, lhi, floatsString(s.points[ihi]))
		}

		rtol := 2 * math.Abs(lhi-llo) / (math.Abs(llo) + math.Abs(lhi) + tiny)
		if rtol < s.FTol {
			if repeat && math.Abs(oldL-lhi) < small {
				s.converged = true
				break Iter
			}
			repeat = true
			oldL = lhi
			log.Info("Converged, restarting the simplex")
			best := append([]float64(nil), s.points[ihi]...)
			if err := s.createSimplex(ctx, best); err != nil {
				return err
			}
			continue
		}

		l, err := s.amotry(ctx, ilo, -1)
		if err != nil {
			return err
		}
		switch {
		case l >= lhi:
			if _, err := s.amotry(ctx, ilo, 2); err != nil {
				return err
			}
		case l <= lnlo:
			l, err := s.amotry(ctx, ilo, 0.5)
			if err != nil {
				return err
			}
			if l <= llo {
				if err := s.shrink(ctx, ihi); err != nil {
					return err
				}
			}
		}
		if err := ctx.Err(); err != nil {
			log.Warningf("Stopping at iteration %d: %v", s.i, err)
			return err
		}
	}
	if s.i > iterations {
		s.i = iterations
		log.Warningf("Iterations exceeded (%d)", iterations)
	}

	_, _, ihi = s.order()
	if err := s.pars.SetValues(s.points[ihi]); err != nil {
		return err
	}
	s.maxL = s.l[ihi]
	log.Noticef("Maximum likelihood: %v", s.maxL)
	log.Infof("Parameter  names: %v", s.pars.NamesString())
	log.Infof("Parameter values: %v", s.pars.ValuesString())
	fmt.Fprintf(s.out, "%d\t%f\t%s\n", s.i, s.maxL, s.pars.ValuesString())
	return nil
}

// Summary returns optimization results.
func (s *Simplex) Summary() Summary {
	return Summary{
		Iterations: s.i,
		Calls:      s.calls,
		Converged:  s.converged,
		MaxLnL:     s.maxL,
		Parameters: s.pars.Map(),
	}
}

func floatsString(x []float64) string {
	res := ""
	for i, v := range x {
		if i != 0 {
			res += "\t"
		}
		res += fmt.Sprintf("%f", v)
	}
	return res
}
