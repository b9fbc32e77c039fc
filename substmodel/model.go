// Package substmodel implements continuous-time Markov chain
// substitution models: rate matrix construction, eigendecomposition
// caching and transition probabilities.
package substmodel

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/ctmc/eigen"
	"bitbucket.org/Davydov/ctmc/parameter"
)

// log is the global logging variable.
var log = logging.MustGetLogger("substmodel")

// Model is a substitution model.
//
// A parameter change marks the model dirty, the next request rebuilds
// the rate matrix and its decomposition. Store and Restore let an MCMC
// sampler undo a rejected proposal: Store before changing parameters,
// and after rejecting parameter changes call Restore.
type Model interface {
	Name() string
	StateCount() int
	Frequencies() Frequencies
	SetFrequencies([]float64) error
	Parameters() parameter.FloatParameters
	// RateMatrix returns a freshly built normalized rate matrix.
	RateMatrix() (*mat64.Dense, error)
	// EigenDecomposition returns the cached decomposition. The result
	// must not be modified.
	EigenDecomposition() (*eigen.Decomposition, error)
	// TransitionProbabilities computes P(time*rate) into dst.
	TransitionProbabilities(time, rate float64, dst []float64) ([]float64, error)
	State() CacheState
	Invalidate()
	Store() Snapshot
	Restore(Snapshot)
}

// Option configures a model.
type Option func(*BaseModel)

// WithEigenSystem sets the eigendecomposition backend.
func WithEigenSystem(s eigen.System) Option {
	return func(m *BaseModel) {
		m.system = s
	}
}

// BaseModel implements the parts of Model common to all models. Model
// types set rateMatrix and optionally spectrum, which computes the
// decomposition without a numerical solver.
type BaseModel struct {
	name       string
	n          int
	pi         Frequencies
	parameters parameter.FloatParameters
	system     eigen.System
	cache      *cache
	// equalFreq restricts frequencies to 1/n
	equalFreq bool

	rateMatrix func() (*mat64.Dense, error)
	spectrum   func() (*eigen.Decomposition, error)
}

func newBaseModel(name string, pi []float64, opts []Option) (*BaseModel, error) {
	f, err := NewFrequencies(pi)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	m := &BaseModel{
		name:  name,
		n:     len(f),
		pi:    f,
		cache: newCache(name),
	}
	for _, o := range opts {
		o(m)
	}
	if m.system == nil {
		m.system = eigen.NewDefaultSystem(m.n)
	}
	return m, nil
}

// addParameter registers a non-negative parameter which invalidates
// the model on change.
func (m *BaseModel) addParameter(v *float64, name string) *parameter.BasicFloatParameter {
	p := parameter.NewPositive(v, name)
	p.SetOnChange(m.Invalidate)
	m.parameters.Append(p)
	return p
}

// validate checks the model after construction.
func (m *BaseModel) validate() error {
	if _, err := m.RateMatrix(); err != nil {
		return err
	}
	return nil
}

func (m *BaseModel) Name() string {
	return m.name
}

func (m *BaseModel) StateCount() int {
	return m.n
}

// Frequencies returns a copy of the equilibrium frequencies.
func (m *BaseModel) Frequencies() Frequencies {
	return m.pi.Copy()
}

// SetFrequencies validates and sets frequencies, marking the model
// dirty.
func (m *BaseModel) SetFrequencies(pi []float64) error {
	if len(pi) != m.n {
		return fmt.Errorf("%w: %d frequencies for %d states", ErrDimensionMismatch, len(pi), m.n)
	}
	f, err := NewFrequencies(pi)
	if err != nil {
		return err
	}
	if m.equalFreq {
		for _, v := range f {
			if math.Abs(v-1/float64(m.n)) > FreqTolerance {
				return fmt.Errorf("%w: %s requires equal frequencies", ErrInvalidFrequencies, m.name)
			}
		}
	}
	m.pi = f
	m.Invalidate()
	return nil
}

func (m *BaseModel) Parameters() parameter.FloatParameters {
	return m.parameters
}

func (m *BaseModel) checkParameters() error {
	for _, p := range m.parameters {
		v := p.Get()
		if !p.InRange() || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidParameter, p.Name(), v)
		}
	}
	return nil
}

func (m *BaseModel) RateMatrix() (*mat64.Dense, error) {
	if err := m.checkParameters(); err != nil {
		return nil, err
	}
	return m.rateMatrix()
}

func (m *BaseModel) EigenDecomposition() (*eigen.Decomposition, error) {
	return m.cache.get(m.decompose)
}

func (m *BaseModel) decompose() (*eigen.Decomposition, error) {
	if err := m.checkParameters(); err != nil {
		return nil, err
	}
	if m.spectrum != nil {
		return m.spectrum()
	}
	q, err := m.rateMatrix()
	if err != nil {
		return nil, err
	}
	log.Debugf("%s: decomposing %dx%d rate matrix", m.name, m.n, m.n)
	d, err := m.system.Decompose(q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}
	if d.IsComplex() {
		log.Warningf("%s: rate matrix has complex eigenvalues, only real parts are used", m.name)
	}
	return d, nil
}

func (m *BaseModel) TransitionProbabilities(time, rate float64, dst []float64) ([]float64, error) {
	t, err := distance(time, rate)
	if err != nil {
		return nil, err
	}
	d, err := m.EigenDecomposition()
	if err != nil {
		return nil, err
	}
	return TransitionProbabilities(d, t, dst), nil
}

// State returns the current cache state.
func (m *BaseModel) State() CacheState {
	return m.cache.current()
}

// Invalidate marks the model dirty.
func (m *BaseModel) Invalidate() {
	m.cache.invalidate()
}

// Store returns a snapshot of the current cache state.
func (m *BaseModel) Store() Snapshot {
	return m.cache.store()
}

// Restore makes s the current cache state.
func (m *BaseModel) Restore(s Snapshot) {
	m.cache.restore(s)
}

// distance returns time*rate, checking that it is a valid branch
// length.
func distance(time, rate float64) (float64, error) {
	t := time * rate
	if t < 0 || math.IsNaN(t) {
		return 0, fmt.Errorf("%w: distance %v*%v", ErrInvalidParameter, time, rate)
	}
	return t, nil
}

// allocate returns dst or a new slice of length n*n.
func allocate(dst []float64, n int) []float64 {
	if dst == nil {
		return make([]float64, n*n)
	}
	if len(dst) != n*n {
		panic("transition probabilities: wrong destination length")
	}
	return dst
}
