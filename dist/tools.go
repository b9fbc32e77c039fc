// Package dist implements discretization of the gamma distribution
// used for among-site rate variation.
package dist

import (
	"math"

	"github.com/gonum/mathext"
)

/*

QuantileChi2 returns z so that Prob{x<z}=prob where x is Chi2
distributed with df=v. Returns -1 for v<=0. Probabilities outside of
(1e-6, 1-1e-6) give 0 and 9999.

Best DJ & Roberts DE (1975) The percentage points of the Chi2
distribution. Applied Statistics 24: 385-388. (AS91)

*/
func QuantileChi2(prob, v float64) float64 {
	const (
		e     = .5e-6
		aa    = .6931471805
		small = 1e-6
	)
	p := prob

	if p < small {
		return 0
	}
	if p > 1-small {
		return 9999
	}
	if v <= 0 {
		return -1
	}

	g, _ := math.Lgamma(v / 2)
	xx := v / 2
	c := xx - 1

	var ch float64
	switch {
	case v < -1.24*math.Log(p):
		ch = math.Pow(p*xx*math.Exp(g+xx*aa), 1/xx)
		if ch-e < 0 {
			return ch
		}
	case v <= .32:
		ch = 0.4
		a := math.Log(1 - p)
		for {
			q := ch
			p1 := 1 + ch*(4.67+ch)
			p2 := ch * (6.73 + ch*(6.66+ch))
			t := -0.5 + (4.67+2*ch)/p1 - (6.73+ch*(13.32+3*ch))/p2
			ch -= (1 - math.Exp(a+g+.5*ch+c*aa)*p2/p1) / t
			if math.Abs(q/ch-1) <= .01 {
				break
			}
		}
	default:
		x := QuantileNormal(p)
		p1 := 0.222222 / v
		ch = v * math.Pow(x*math.Sqrt(p1)+1-p1, 3)
		if ch > 2.2*v+6 {
			ch = -2 * (math.Log(1-p) - c*math.Log(.5*ch) + g)
		}
	}

	// seven term Taylor series refinement
	for {
		q := ch
		p1 := .5 * ch
		t := IncompleteGamma(p1, xx)
		p2 := p - t
		t = p2 * math.Exp(xx*aa+g+p1-c*math.Log(ch))
		b := t / ch
		a := 0.5*t - b*c

		s1 := (210 + a*(140+a*(105+a*(84+a*(70+60*a))))) / 420
		s2 := (420 + a*(735+a*(966+a*(1141+1278*a)))) / 2520
		s3 := (210 + a*(462+a*(707+932*a))) / 2520
		s4 := (252 + a*(672+1182*a) + c*(294+a*(889+1740*a))) / 5040
		s5 := (84 + 264*a + c*(175+606*a)) / 2520
		s6 := (120 + c*(346+127*c)) / 5040
		ch += t * (1 + 0.5*t*s1 - b*c*(s1-b*(s2-b*(s3-b*(s4-b*(s5-b*s6))))))
		if math.Abs(q/ch-1) <= e {
			return ch
		}
	}
}

// QuantileGamma returns quantile for gamma distribution with shape
// alpha and rate beta.
func QuantileGamma(prob, alpha, beta float64) float64 {
	return QuantileChi2(prob, 2*alpha) / (2 * beta)
}

// QuantileNormal returns quantile for normal distribution.
func QuantileNormal(prob float64) float64 {
	return mathext.NormalQuantile(prob)
}

// IncompleteGamma returns the incomplete gamma ratio I(x,alpha) where
// x is the upper limit of the integration and alpha is the shape
// parameter.
func IncompleteGamma(x, alpha float64) float64 {
	return mathext.GammaInc(alpha, x)
}

// DiscreteGamma returns k rates discretizing G(alpha, beta) with equal
// proportions in each category. With median, every category is
// represented by its median rescaled to keep the mean alpha/beta,
// otherwise by the mean of the category. tmp (k-1 values) and res (k
// values) are allocated if nil.
func DiscreteGamma(alpha, beta float64, k int, median bool, tmp, res []float64) []float64 {
	mean := alpha / beta
	K := float64(k)

	if res == nil {
		res = make([]float64, k)
	}
	if k == 1 {
		res[0] = mean
		return res
	}
	if tmp == nil {
		tmp = make([]float64, k)
	}

	if median {
		t := 0.0
		for i := 0; i < k; i++ {
			res[i] = QuantileGamma((float64(i)*2+1)/(2*K), alpha, beta)
			t += res[i]
		}
		for i := 0; i < k; i++ {
			res[i] *= mean * K / t
		}
		return res
	}

	// cutting points
	for i := 0; i < k-1; i++ {
		tmp[i] = QuantileGamma((float64(i)+1)/K, alpha, beta)
	}
	// proportion of the mean below every cutting point
	for i := 0; i < k-1; i++ {
		tmp[i] = IncompleteGamma(tmp[i]*beta, alpha+1)
	}
	res[0] = tmp[0] * mean * K
	for i := 1; i < k-1; i++ {
		res[i] = (tmp[i] - tmp[i-1]) * mean * K
	}
	res[k-1] = (1 - tmp[k-2]) * mean * K

	return res
}
