// Package likelihood computes the likelihood of a pair of aligned
// sequences separated by a single branch.
package likelihood

import (
	"context"
	"errors"
	"fmt"
	"math"

	"bitbucket.org/Davydov/ctmc/parameter"
	"bitbucket.org/Davydov/ctmc/sitemodel"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

// ErrAlignment is returned for sequences of different length or with
// states outside of the model.
var ErrAlignment = errors.New("likelihood: bad alignment")

// Pairwise is the likelihood of sequence b evolving from sequence a
// along a branch of length t. Sites with a gap or an ambiguous
// character in any of the sequences are skipped.
type Pairwise struct {
	site       *sitemodel.SiteModel
	a, b       []int
	t          float64
	parameters parameter.FloatParameters
}

// NewPairwise creates the likelihood for two sequences encoded as
// states (see bio.Sequences.Encode). Parameters are the branch length
// t followed by site model parameters except mu, which is confounded
// with t.
func NewPairwise(site *sitemodel.SiteModel, a, b []int, t float64) (*Pairwise, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: sequence lengths %d and %d", ErrAlignment, len(a), len(b))
	}
	n := site.Model().StateCount()
	for i := range a {
		if a[i] >= n || b[i] >= n {
			return nil, fmt.Errorf("%w: state at site %d is out of range", ErrAlignment, i)
		}
	}
	p := &Pairwise{
		site: site,
		a:    a,
		b:    b,
		t:    t,
	}
	p.parameters.Append(parameter.NewPositive(&p.t, "t"))
	for _, par := range site.Parameters() {
		if par.Name() != "mu" {
			p.parameters.Append(par)
		}
	}
	return p, nil
}

// Name returns the checkpoint name.
func (p *Pairwise) Name() string {
	return "pairwise/" + p.site.Model().Name()
}

// Parameters returns all free parameters.
func (p *Pairwise) Parameters() parameter.FloatParameters {
	return p.parameters
}

// Frequencies returns substitution model frequencies.
func (p *Pairwise) Frequencies() substmodel.Frequencies {
	return p.site.Model().Frequencies()
}

// SetFrequencies sets substitution model frequencies.
func (p *Pairwise) SetFrequencies(pi []float64) error {
	return p.site.Model().SetFrequencies(pi)
}

// Sites returns the number of sites without gaps.
func (p *Pairwise) Sites() int {
	n := 0
	for i := range p.a {
		if p.a[i] >= 0 && p.b[i] >= 0 {
			n++
		}
	}
	return n
}

// Store stores the substitution model state.
func (p *Pairwise) Store() substmodel.Snapshot {
	return p.site.Model().Store()
}

// Restore restores the substitution model state.
func (p *Pairwise) Restore(s substmodel.Snapshot) {
	p.site.Model().Restore(s)
}

// LogLikelihood computes the log likelihood summed over sites, every
// site averaged over rate categories.
func (p *Pairwise) LogLikelihood(ctx context.Context) (float64, error) {
	if !p.parameters[0].InRange() {
		return math.Inf(-1), fmt.Errorf("%w: t=%v", substmodel.ErrInvalidParameter, p.t)
	}
	ps, err := p.site.TransitionProbabilities(ctx, p.t)
	if err != nil {
		return math.Inf(-1), err
	}
	props := p.site.CategoryProportions()
	pi := p.site.Model().Frequencies()
	n := len(pi)

	res := 0.0
	for i := range p.a {
		x, y := p.a[i], p.b[i]
		if x < 0 || y < 0 {
			continue
		}
		l := 0.0
		for c, pc := range ps {
			l += props[c] * pc[x*n+y]
		}
		res += math.Log(pi[x] * l)
	}
	return res, nil
}
