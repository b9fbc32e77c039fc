// Package sitemodel implements among-site rate variation on top of a
// substitution model: a mutation rate, discrete gamma categories and a
// proportion of invariant sites.
package sitemodel

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/ctmc/dist"
	"bitbucket.org/Davydov/ctmc/parameter"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

var log = logging.MustGetLogger("sitemodel")

// ErrInvalidParameter is returned when a site model parameter is out
// of its range.
var ErrInvalidParameter = errors.New("sitemodel: invalid parameter")

// ErrDuplicateParameter is returned when a site model parameter has
// the name of a substitution model parameter.
var ErrDuplicateParameter = errors.New("sitemodel: duplicate parameter name")

// SiteModel splits sites into rate categories. If the proportion of
// invariant sites is used, category 0 has rate zero. Rates of the
// variable categories are rescaled so that the mean rate is mu.
type SiteModel struct {
	model substmodel.Model

	mu    float64
	alpha float64
	pinv  float64

	gammaCategories int
	median          bool
	invariant       bool

	parameters parameter.FloatParameters
}

// Option configures a site model.
type Option func(*SiteModel)

// WithGamma adds k gamma categories with shape alpha. If median is
// true, categories are represented by their medians.
func WithGamma(alpha float64, k int, median bool) Option {
	return func(s *SiteModel) {
		s.alpha = alpha
		s.gammaCategories = k
		s.median = median
	}
}

// WithInvariant adds a category of invariant sites with proportion p.
func WithInvariant(p float64) Option {
	return func(s *SiteModel) {
		s.pinv = p
		s.invariant = true
	}
}

// WithMu sets the mutation rate.
func WithMu(mu float64) Option {
	return func(s *SiteModel) {
		s.mu = mu
	}
}

// New creates a site model for m. Without options there is a single
// category with rate 1.
func New(m substmodel.Model, opts ...Option) (*SiteModel, error) {
	s := &SiteModel{
		model:           m,
		mu:              1,
		gammaCategories: 1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.gammaCategories < 1 {
		return nil, fmt.Errorf("%w: %d gamma categories", ErrInvalidParameter, s.gammaCategories)
	}

	s.parameters.Append(parameter.NewPositive(&s.mu, "mu"))
	if s.gammaCategories > 1 {
		s.parameters.Append(parameter.NewPositive(&s.alpha, "alpha"))
	}
	if s.invariant {
		p := parameter.NewBasicFloatParameter(&s.pinv, "pinv")
		p.SetMin(0)
		// all sites invariant is not allowed
		p.SetMax(1 - 1e-6)
		s.parameters.Append(p)
	}
	for _, par := range s.parameters {
		if m.Parameters().Get(par.Name()) != nil {
			return nil, fmt.Errorf("%w: %s is a parameter of %s", ErrDuplicateParameter, par.Name(), m.Name())
		}
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	log.Debugf("site model for %s: %d categories", m.Name(), s.CategoryCount())
	return s, nil
}

// Model returns the substitution model.
func (s *SiteModel) Model() substmodel.Model {
	return s.model
}

// Parameters returns site model parameters followed by the parameters
// of the substitution model.
func (s *SiteModel) Parameters() parameter.FloatParameters {
	pars := make(parameter.FloatParameters, 0, len(s.parameters)+len(s.model.Parameters()))
	pars = append(pars, s.parameters...)
	return append(pars, s.model.Parameters()...)
}

func (s *SiteModel) check() error {
	for _, p := range s.parameters {
		if !p.InRange() {
			return fmt.Errorf("%w: %s=%v", ErrInvalidParameter, p.Name(), p.Get())
		}
	}
	if s.gammaCategories > 1 && s.alpha == 0 {
		return fmt.Errorf("%w: gamma shape is zero", ErrInvalidParameter)
	}
	return nil
}

// CategoryCount returns the number of rate categories.
func (s *SiteModel) CategoryCount() int {
	if s.invariant {
		return s.gammaCategories + 1
	}
	return s.gammaCategories
}

// CategoryRates returns rates of all categories multiplied by mu.
func (s *SiteModel) CategoryRates() ([]float64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rates := make([]float64, 0, s.CategoryCount())
	variable := 1.0
	if s.invariant {
		rates = append(rates, 0)
		variable = 1 - s.pinv
	}
	var gamma []float64
	if s.gammaCategories > 1 {
		gamma = dist.DiscreteGamma(s.alpha, s.alpha, s.gammaCategories, s.median, nil, nil)
	} else {
		gamma = []float64{1}
	}
	for _, r := range gamma {
		rates = append(rates, r*s.mu/variable)
	}
	return rates, nil
}

// CategoryProportions returns proportions of sites in every category.
func (s *SiteModel) CategoryProportions() []float64 {
	props := make([]float64, 0, s.CategoryCount())
	variable := 1.0
	if s.invariant {
		props = append(props, s.pinv)
		variable = 1 - s.pinv
	}
	for i := 0; i < s.gammaCategories; i++ {
		props = append(props, variable/float64(s.gammaCategories))
	}
	return props
}

// TransitionProbabilities computes transition probabilities for every
// category. Categories are computed concurrently.
func (s *SiteModel) TransitionProbabilities(ctx context.Context, time float64) ([][]float64, error) {
	rates, err := s.CategoryRates()
	if err != nil {
		return nil, err
	}
	// decompose once before fanning out
	if _, err := s.model.EigenDecomposition(); err != nil {
		return nil, err
	}

	res := make([][]float64, len(rates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rate := range rates {
		i, rate := i, rate
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := s.model.TransitionProbabilities(time, rate, nil)
			if err != nil {
				return fmt.Errorf("category %d: %w", i, err)
			}
			res[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
