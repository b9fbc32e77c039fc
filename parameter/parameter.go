// Package parameter provides bounded float parameters which notify
// their owner on change and support speculative proposals.
package parameter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknown is returned when a parameter name is not found.
var ErrUnknown = errors.New("parameter: unknown parameter")

// FloatParameter is a named float value owned by a model.
type FloatParameter interface {
	Name() string
	Get() float64
	Set(float64)
	Propose()
	Accept()
	Reject()
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetOnChange(func())
	SetProposalFunc(func(float64) float64)
	InRange() bool
	ValueInRange(float64) bool
}

// FloatParameters is a list of parameters of a model.
type FloatParameters []FloatParameter

// Append adds a parameter.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Names returns parameter names, is is reused if it is not nil.
func (p FloatParameters) Names(is []string) []string {
	s := is
	if s == nil {
		s = make([]string, len(p))
	}
	for i, par := range p {
		s[i] = par.Name()
	}
	return s
}

// Values returns parameter values, iv is reused if it is not nil.
func (p FloatParameters) Values(iv []float64) []float64 {
	v := iv
	if v == nil {
		v = make([]float64, len(p))
	}
	for i, par := range p {
		v[i] = par.Get()
	}
	return v
}

// SetValues sets all the parameter values.
func (p FloatParameters) SetValues(v []float64) error {
	if len(v) != len(p) {
		return fmt.Errorf("parameter: got %d values for %d parameters", len(v), len(p))
	}
	for i, par := range p {
		par.Set(v[i])
	}
	return nil
}

// Get returns parameter by name or nil.
func (p FloatParameters) Get(name string) FloatParameter {
	for _, par := range p {
		if par.Name() == name {
			return par
		}
	}
	return nil
}

// Map returns a name to value map.
func (p FloatParameters) Map() map[string]float64 {
	m := make(map[string]float64, len(p))
	for _, par := range p {
		m[par.Name()] = par.Get()
	}
	return m
}

// SetMap sets values from a name to value map. Every key must name a
// parameter, parameters missing from the map are not changed.
func (p FloatParameters) SetMap(m map[string]float64) error {
	for name := range m {
		if p.Get(name) == nil {
			return fmt.Errorf("%w: %s", ErrUnknown, name)
		}
	}
	for _, par := range p {
		if v, ok := m[par.Name()]; ok {
			par.Set(v)
		}
	}
	return nil
}

// InRange returns true if all the parameters are within their bounds.
func (p FloatParameters) InRange() bool {
	for _, par := range p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// NamesString returns tab separated names.
func (p FloatParameters) NamesString() string {
	return strings.Join(p.Names(nil), "\t")
}

// ValuesString returns tab separated values.
func (p FloatParameters) ValuesString() string {
	s := make([]string, len(p))
	for i, par := range p {
		s[i] = par.String()
	}
	return strings.Join(s, "\t")
}

// BasicFloatParameter stores its value in a float64 owned by the model.
type BasicFloatParameter struct {
	*float64
	old          float64
	name         string
	proposalFunc func(float64) float64
	min          float64
	max          float64
	onChange     func()
}

// NewBasicFloatParameter creates an unbounded parameter backed by par.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64: par,
		name:    name,
		min:     math.Inf(-1),
		max:     math.Inf(+1),
	}
}

// NewPositive creates a parameter bounded to [0, +inf).
func NewPositive(par *float64, name string) *BasicFloatParameter {
	p := NewBasicFloatParameter(par, name)
	p.SetMin(0)
	return p
}

func (p *BasicFloatParameter) SetMin(min float64) {
	p.min = min
}

func (p *BasicFloatParameter) SetMax(max float64) {
	p.max = max
}

func (p *BasicFloatParameter) SetProposalFunc(f func(float64) float64) {
	p.proposalFunc = f
}

// SetOnChange sets a function called every time the value changes.
func (p *BasicFloatParameter) SetOnChange(f func()) {
	p.onChange = f
}

func (p *BasicFloatParameter) Get() float64 {
	return *p.float64
}

// Set sets the value. Nothing happens if the value is the same.
func (p *BasicFloatParameter) Set(v float64) {
	if *p.float64 == v {
		return
	}
	*p.float64 = v
	p.changed()
}

func (p *BasicFloatParameter) GetMin() float64 {
	return p.min
}

func (p *BasicFloatParameter) GetMax() float64 {
	return p.max
}

func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

func (p *BasicFloatParameter) Name() string {
	return p.name
}

func (p *BasicFloatParameter) changed() {
	if p.onChange != nil {
		p.onChange()
	}
}

// reflect mirrors the value back into [min, max].
func (p *BasicFloatParameter) reflect() {
	if math.IsNaN(*p.float64) {
		return
	}
	for !p.InRange() {
		if *p.float64 < p.min {
			*p.float64 = p.min + (p.min - *p.float64)
		}
		if *p.float64 > p.max {
			*p.float64 = p.max - (*p.float64 - p.max)
		}
	}
}

// Propose replaces the value with the proposal function result,
// reflecting it at the bounds. The previous value is kept for Reject.
func (p *BasicFloatParameter) Propose() {
	if p.proposalFunc == nil {
		panic("parameter " + p.name + ": proposal function is not set")
	}
	p.old, *p.float64 = *p.float64, p.proposalFunc(*p.float64)
	p.reflect()
	p.changed()
}

// Reject returns the value from before the last Propose.
func (p *BasicFloatParameter) Reject() {
	*p.float64, p.old = p.old, *p.float64
	p.changed()
}

// Accept keeps the proposed value.
func (p *BasicFloatParameter) Accept() {
	p.old = *p.float64
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
