// Package mcmc implements a Metropolis-Hastings sampler for
// substitution model parameters.
package mcmc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/ctmc/checkpoint"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

// log is the global logging variable.
var log = logging.MustGetLogger("mcmc")

// ErrNoParameters is returned when there is nothing to sample.
var ErrNoParameters = errors.New("mcmc: no parameters to sample")

// Target is a likelihood with parameters. Store and Restore are
// called around every proposal, a rejected proposal restores the
// stored state instead of recomputing it.
type Target interface {
	checkpoint.Model
	LogLikelihood(ctx context.Context) (float64, error)
	Store() substmodel.Snapshot
	Restore(substmodel.Snapshot)
}

// Summary stores sampler results.
type Summary struct {
	// Iterations is the number of performed iterations.
	Iterations int `json:"iterations"`
	// AcceptanceRate is the proportion of accepted proposals.
	AcceptanceRate float64 `json:"acceptanceRate"`
	// LnL is the final log likelihood.
	LnL float64 `json:"lnL"`
	// MaxLnL is the maximum log likelihood.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters is the maximum likelihood parameter values.
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	// Final are parameter values at the end of sampling.
	Final map[string]float64 `json:"final"`
}

// MH is a Metropolis-Hastings sampler.
type MH struct {
	target Target
	rng    *rand.Rand
	priors map[string]Prior
	out    io.Writer
	cpIO   *checkpoint.IO

	// RepPeriod is how often a sample is written.
	RepPeriod int
	// AccPeriod is how often the acceptance rate is logged.
	AccPeriod int
	// SD is the standard deviation of the normal proposal.
	SD float64

	i        int
	l        float64
	maxL     float64
	maxLPar  map[string]float64
	accepted int
}

// NewMH creates a new MH sampler.
func NewMH(target Target, seed int64) *MH {
	return &MH{
		target:    target,
		rng:       rand.New(rand.NewSource(seed)),
		priors:    make(map[string]Prior),
		out:       io.Discard,
		RepPeriod: 10,
		AccPeriod: 200,
		SD:        1e-2,
	}
}

// SetPrior sets prior for a parameter. Parameters without a prior use
// FlatPrior.
func (m *MH) SetPrior(name string, prior Prior) {
	m.priors[name] = prior
}

// SetOutput sets the writer for the samples.
func (m *MH) SetOutput(w io.Writer) {
	m.out = w
}

// SetCheckpoint enables saving the state to the checkpoint database.
func (m *MH) SetCheckpoint(cpIO *checkpoint.IO) {
	m.cpIO = cpIO
}

func (m *MH) prior(name string) Prior {
	if p, ok := m.priors[name]; ok {
		return p
	}
	return FlatPrior
}

func (m *MH) printHeader() {
	fmt.Fprintf(m.out, "iteration\tlikelihood\t%s\n", m.target.Parameters().NamesString())
}

func (m *MH) printLine() {
	fmt.Fprintf(m.out, "%d\t%f\t%s\n", m.i, m.l, m.target.Parameters().ValuesString())
}

func (m *MH) saveCheckpoint(final bool) {
	if m.cpIO == nil {
		return
	}
	if err := m.cpIO.Save(checkpoint.FromModel(m.target, m.i, final)); err != nil {
		log.Error("Error saving checkpoint:", err)
	}
}

// Run samples for the given number of iterations or until ctx is
// done.
func (m *MH) Run(ctx context.Context, iterations int) error {
	pars := m.target.Parameters()
	if len(pars) == 0 {
		return ErrNoParameters
	}
	for _, par := range pars {
		par.SetProposalFunc(NormalProposal(m.rng, m.SD))
	}

	l, err := m.target.LogLikelihood(ctx)
	if err != nil {
		return fmt.Errorf("mcmc: starting point: %w", err)
	}
	m.l = l
	m.maxL = l
	m.maxLPar = pars.Map()
	m.accepted = 0
	if m.cpIO != nil {
		m.cpIO.SetNow()
	}

	m.printHeader()
	accepted := 0
	for m.i = 0; m.i < iterations; m.i++ {
		if ctx.Err() != nil {
			log.Warningf("Stopping at iteration %d: %v", m.i, ctx.Err())
			break
		}
		if m.i > 0 && m.i%m.AccPeriod == 0 {
			log.Infof("Acceptance rate %.2f%%", 100*float64(accepted)/float64(m.AccPeriod))
			accepted = 0
		}
		if m.i%m.RepPeriod == 0 {
			log.Debugf("%d: L=%f", m.i, m.l)
			m.printLine()
		}

		par := pars[m.rng.Intn(len(pars))]
		prior := m.prior(par.Name())
		oldPrior := prior(par.Get())

		snapshot := m.target.Store()
		par.Propose()
		newL, err := m.target.LogLikelihood(ctx)
		if err != nil {
			if ctx.Err() != nil {
				par.Reject()
				m.target.Restore(snapshot)
				log.Warningf("Stopping at iteration %d: %v", m.i, ctx.Err())
				break
			}
			log.Debugf("%d: %s=%v rejected: %v", m.i, par.Name(), par.Get(), err)
			newL = math.Inf(-1)
		}

		a := math.Exp(prior(par.Get()) - oldPrior + newL - m.l)
		if a > 1 || m.rng.Float64() < a {
			par.Accept()
			m.l = newL
			accepted++
			m.accepted++
			if m.l > m.maxL {
				m.maxL = m.l
				m.maxLPar = pars.Map()
			}
		} else {
			par.Reject()
			m.target.Restore(snapshot)
		}

		if m.cpIO != nil && m.cpIO.Old() {
			m.saveCheckpoint(false)
		}
	}

	m.printLine()
	m.saveCheckpoint(true)
	log.Noticef("Finished MCMC, maxLnL=%f", m.maxL)
	return nil
}

// LnL returns the current log likelihood.
func (m *MH) LnL() float64 {
	return m.l
}

// Summary returns sampling results.
func (m *MH) Summary() Summary {
	s := Summary{
		Iterations:     m.i,
		LnL:            m.l,
		MaxLnL:         m.maxL,
		MaxLParameters: m.maxLPar,
		Final:          m.target.Parameters().Map(),
	}
	if m.i > 0 {
		s.AcceptanceRate = float64(m.accepted) / float64(m.i)
	}
	return s
}
