package main

import (
	"fmt"
	"math"
	"sort"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/ctmc/substmodel"
)

// checkTimes are distances used to check transition probabilities.
var checkTimes = []float64{0.01, 0.1, 0.5, 1, 5}

type checker struct {
	tol    float64
	dev    map[string]float64
	errors []string
}

func (c *checker) add(name string, v float64) {
	if math.IsNaN(v) {
		v = math.Inf(1)
	}
	if cur, ok := c.dev[name]; !ok || v > cur {
		c.dev[name] = v
	}
}

func (c *checker) report() []string {
	names := make([]string, 0, len(c.dev))
	for n := range c.dev {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if c.dev[n] > c.tol {
			c.errors = append(c.errors, fmt.Sprintf("%s: deviation %g exceeds %g", n, c.dev[n], c.tol))
		}
	}
	return c.errors
}

// checkModel verifies rate matrix and transition probability
// properties of m. It returns the maximum deviation for every check and
// the list of failed checks.
func checkModel(m substmodel.Model, tol float64) (map[string]float64, []string, error) {
	c := &checker{tol: tol, dev: make(map[string]float64)}
	n := m.StateCount()
	pi := m.Frequencies()

	reversible := true
	if r, ok := m.(interface{ Reversible() bool }); ok {
		reversible = r.Reversible()
	}

	q, err := m.RateMatrix()
	if err != nil {
		return nil, nil, err
	}
	scale := 0.0
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += q.At(i, j)
			if i != j {
				c.add("offDiagonal", math.Max(0, -q.At(i, j)))
				if reversible {
					c.add("detailedBalance", math.Abs(pi[i]*q.At(i, j)-pi[j]*q.At(j, i)))
				}
			}
		}
		c.add("rowSum", math.Abs(sum))
		scale -= q.At(i, i) * pi[i]
	}
	// hidden class switches are not substitutions
	if s, ok := m.(interface{ SubstitutionScale(mat64.Matrix) float64 }); ok {
		scale = s.SubstitutionScale(q)
	}
	c.add("scale", math.Abs(scale-1))

	d, err := m.EigenDecomposition()
	if err != nil {
		return nil, nil, err
	}
	rq := d.Reconstruct()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c.add("reconstruction", math.Abs(rq.At(i, j)-q.At(i, j)))
		}
	}

	p0, err := m.TransitionProbabilities(0, 1, nil)
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			delta := 0.0
			if i == j {
				delta = 1
			}
			c.add("identity", math.Abs(p0[i*n+j]-delta))
		}
	}

	for _, t := range checkTimes {
		p, err := m.TransitionProbabilities(t, 1, nil)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += p[i*n+j]
			}
			c.add("probabilityRowSum", math.Abs(sum-1))
		}

		p2, err := m.TransitionProbabilities(2*t, 1, nil)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := 0.0
				for k := 0; k < n; k++ {
					v += p[i*n+k] * p[k*n+j]
				}
				c.add("chapmanKolmogorov", math.Abs(v-p2[i*n+j]))
			}
		}
	}

	return c.dev, c.report(), nil
}
