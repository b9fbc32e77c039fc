package substmodel

import (
	"errors"
	"math"
	"testing"

	"bitbucket.org/Davydov/ctmc/eigen"
)

// Transition probabilities at distance 0.1 computed with a matrix
// exponential (scaling and squaring).

type hkyReference struct {
	kappa float64
	pi    []float64
	p     []float64
}

var hkyReferences = []hkyReference{
	{2, []float64{.25, .25, .25, .25}, []float64{
		0.906563342722, 0.023790645491, 0.045855366296, 0.023790645491,
		0.023790645491, 0.906563342722, 0.023790645491, 0.045855366296,
		0.045855366296, 0.023790645491, 0.906563342722, 0.023790645491,
		0.023790645491, 0.045855366296, 0.023790645491, 0.906563342722,
	}},
	{2, []float64{.5, .2, .2, .1}, []float64{
		0.928287993055, 0.021032136637, 0.040163801989, 0.010516068319,
		0.052580341593, 0.906092679369, 0.021032136637, 0.020294842401,
		0.100409504972, 0.021032136637, 0.868042290072, 0.010516068319,
		0.052580341593, 0.040589684802, 0.021032136637, 0.885797836968,
	}},
	{5, []float64{.2, .3, .25, .25}, []float64{
		0.904026219693, 0.016708646875, 0.065341261036, 0.013923872396,
		0.011139097917, 0.910170587813, 0.013923872396, 0.064766441875,
		0.052273008829, 0.016708646875, 0.917094471901, 0.013923872396,
		0.011139097917, 0.077719730250, 0.013923872396, 0.897217299437,
	}},
}

type gtrReference struct {
	rates []float64
	p     []float64
}

var gtrReferences = []gtrReference{
	{[]float64{0.2, 1.0, 0.3, 0.4, 1.0, 0.5}, []float64{
		0.9151233523912986, 0.01419463331835106, 0.053614529507541434, 0.017067484782809166,
		0.009463088878900653, 0.9148659231065082, 0.022324155452048293, 0.05334683256254297,
		0.042891623606033207, 0.026788986542458024, 0.9028769239489847, 0.027442465902524332,
		0.01365398782624723, 0.06401619907505152, 0.027442465902524263, 0.8948873471961769,
	}},
	{[]float64{0.2, 10, 0.3, 0.4, 5, 0.5}, []float64{
		0.8780963047046206, 0.0033252855682803723, 0.11461112844510626, 0.003967281281992822,
		0.002216857045520258, 0.9327483979953872, 0.005055665025823634, 0.05997907993326873,
		0.09168890275608481, 0.006066798030988321, 0.8959983003009074, 0.0062459989120190644,
		0.0031738250255942332, 0.07197489591992245, 0.006245998912019033, 0.9186052801424642,
	}},
}

func TestHKYReference(tst *testing.T) {
	for _, r := range hkyReferences {
		hky, err := NewHKY(r.kappa, r.pi)
		if err != nil {
			tst.Fatal(err)
		}
		// the same model through the numerical solver
		gtr, err := NewGTR([]float64{1, r.kappa, 1, 1, r.kappa, 1}, r.pi)
		if err != nil {
			tst.Fatal(err)
		}
		for _, m := range []Model{hky, gtr} {
			p := mustP(tst, m, 0.1)
			if !cmp(p, r.p, 1e-10) {
				tst.Errorf("%s kappa=%v pi=%v: P(0.1)=%v, expected %v", m.Name(), r.kappa, r.pi, p, r.p)
			}
		}
	}
}

func TestGTRReference(tst *testing.T) {
	pi := []float64{.2, .3, .25, .25}
	for _, r := range gtrReferences {
		for _, sys := range []eigen.System{eigen.NewDefaultSystem(4), eigen.GonumSystem{}} {
			m, err := NewGTR(r.rates, pi, WithEigenSystem(sys))
			if err != nil {
				tst.Fatal(err)
			}
			p := mustP(tst, m, 0.1)
			if !cmp(p, r.p, 1e-10) {
				tst.Errorf("rates=%v (%T): P(0.1)=%v, expected %v", r.rates, sys, p, r.p)
			}
		}
	}
}

// TN93 computed in closed form and by the numerical solver.
func TestTN93ClosedForm(tst *testing.T) {
	pis := [][]float64{
		{.25, .25, .25, .25},
		{.1, .4, .3, .2},
		{.45, .05, .05, .45},
		{.7, .1, .1, .1},
	}
	for _, pi := range pis {
		for _, k1 := range []float64{0.1, 1, 4, 30} {
			for _, k2 := range []float64{0.5, 2, 15} {
				tn, err := NewTN93(k1, k2, pi)
				if err != nil {
					tst.Fatal(err)
				}
				for _, sys := range []eigen.System{eigen.NewDefaultSystem(4), eigen.GonumSystem{}} {
					gtr, err := NewGTR([]float64{1, k1, 1, 1, k2, 1}, pi, WithEigenSystem(sys))
					if err != nil {
						tst.Fatal(err)
					}
					for _, t := range []float64{0, 0.01, 0.3, 2, math.Inf(1)} {
						p1 := mustP(tst, tn, t)
						p2 := mustP(tst, gtr, t)
						if !cmp(p1, p2, smallDiff) {
							tst.Errorf("pi=%v k1=%v k2=%v t=%v (%T): closed form %v, numerical %v",
								pi, k1, k2, t, sys, p1, p2)
						}
					}
				}
			}
		}
	}
}

func TestTwoStateClosedForm(tst *testing.T) {
	for _, p0 := range []float64{0.5, 0.1, 0.99} {
		pi := []float64{p0, 1 - p0}
		ts, err := NewTwoState(pi)
		if err != nil {
			tst.Fatal(err)
		}
		g, err := NewGeneral([]float64{1}, pi)
		if err != nil {
			tst.Fatal(err)
		}
		for _, t := range []float64{0, 0.1, 1, 10, math.Inf(1)} {
			p1 := mustP(tst, ts, t)
			p2 := mustP(tst, g, t)
			if !cmp(p1, p2, 1e-10) {
				tst.Errorf("pi=%v t=%v: closed form %v, numerical %v", pi, t, p1, p2)
			}
		}
		// P01(t) = p1*(1-exp(-t/(2*p0*p1)))
		exp := pi[1] * (1 - math.Exp(-1/(2*pi[0]*pi[1])))
		if p := mustP(tst, ts, 1); !appreq(p[1], exp, 1e-12) {
			tst.Errorf("pi=%v: P01(1)=%v, expected %v", pi, p[1], exp)
		}
	}
}

func TestNonReversibleReference(tst *testing.T) {
	m, err := NewNonReversible([]float64{1, 2, 0.5, 3, 0.2, 1.5}, []float64{.3, .3, .4})
	if err != nil {
		tst.Fatal(err)
	}
	q, err := m.RateMatrix()
	if err != nil {
		tst.Fatal(err)
	}
	expQ := []float64{
		-1.1406844106463878, 0.3802281368821293, 0.7604562737642586,
		0.19011406844106465, -1.3307984790874525, 1.1406844106463878,
		0.07604562737642587, 0.5703422053231939, -0.6463878326996197,
	}
	if !cmp(q.RawMatrix().Data, expQ, 1e-12) {
		tst.Errorf("Q=%v, expected %v", q.RawMatrix().Data, expQ)
	}
	expP := []float64{
		0.714816536993, 0.094101960434, 0.191081502574,
		0.042734607658, 0.694622986032, 0.262642406310,
		0.021266336537, 0.129882412302, 0.848851251161,
	}
	if p := mustP(tst, m, 0.3); !cmp(p, expP, 1e-10) {
		tst.Errorf("P(0.3)=%v, expected %v", p, expP)
	}
}

func TestWAGReference(tst *testing.T) {
	m, err := NewWAG()
	if err != nil {
		tst.Fatal(err)
	}
	if len(wagRates) != ReversibleRates(20) {
		tst.Fatalf("WAG has %d rates", len(wagRates))
	}
	p := mustP(tst, m, 0.1)
	exp := []struct {
		i, j int
		p    float64
	}{
		{0, 0, 0.895132724166},
		{0, 1, 0.002523358500},
		{1, 0, 0.004966428321},
		{5, 6, 0.029575869183},
		{19, 19, 0.898449680949},
		{19, 9, 0.035625198601},
	}
	for _, e := range exp {
		if !appreq(p[e.i*20+e.j], e.p, 1e-10) {
			tst.Errorf("P(0.1)[%c,%c]=%v, expected %v", AminoAcids[e.i], AminoAcids[e.j], p[e.i*20+e.j], e.p)
		}
	}
}

func TestCovarionRateMatrix(tst *testing.T) {
	m, err := NewBinaryCovarion(0.01, 0.1, []float64{.4, .6}, []float64{.5, .5}, CovarionUnweighted)
	if err != nil {
		tst.Fatal(err)
	}
	q, err := m.RateMatrix()
	if err != nil {
		tst.Fatal(err)
	}
	exp := []float64{
		-0.437293729372937, 0.0247524752475248, 0.412541254125413, 0,
		0.0165016501650165, -0.429042904290429, 0, 0.412541254125413,
		0.412541254125413, 0, -2.88778877887789, 2.47524752475248,
		0, 0.412541254125413, 1.65016501650165, -2.06270627062706,
	}
	if !cmp(q.RawMatrix().Data, exp, 1e-12) {
		tst.Errorf("Q=%v, expected %v", q.RawMatrix().Data, exp)
	}
	if p := mustP(tst, m, 100); !cmp(p[:4], m.Frequencies(), 1e-8) {
		tst.Errorf("P(100)=%v does not converge to %v", p[:4], m.Frequencies())
	}
}

func TestCovarionProbabilities(tst *testing.T) {
	m, err := NewBinaryCovarion(0.5, 0.3, []float64{.4, .6}, []float64{.7, .3}, CovarionReversible)
	if err != nil {
		tst.Fatal(err)
	}
	exp := []float64{
		0.548947442573, 0.321018938054, 0.071917577252, 0.058116042121,
		0.214012625369, 0.655953755258, 0.038744028081, 0.091289591293,
		0.167807680255, 0.135604098282, 0.342478842331, 0.354109379132,
		0.090402732188, 0.213009046349, 0.236072919421, 0.460515302041,
	}
	if p := mustP(tst, m, 0.5); !cmp(p, exp, 1e-10) {
		tst.Errorf("P(0.5)=%v, expected %v", p, exp)
	}
	if p := mustP(tst, m, 100); !cmp(p[8:12], m.Frequencies(), 1e-8) {
		tst.Errorf("P(100)=%v does not converge to %v", p[8:12], m.Frequencies())
	}

	before := m.Store()
	if err := m.SetCovarionFrequencies([]float64{.5, .5}, []float64{.5, .5}); err != nil {
		tst.Fatal(err)
	}
	if m.State().Status != Dirty {
		tst.Error("changing frequencies should invalidate the model")
	}
	if !cmp(m.Frequencies(), []float64{.25, .25, .25, .25}, 1e-15) {
		tst.Error("wrong product frequencies:", m.Frequencies())
	}
	if err := m.SetFrequencies([]float64{.5, .6}); err == nil {
		tst.Error("invalid frequencies accepted")
	}
	if err := m.SetCovarionFrequencies([]float64{.4, .6}, []float64{.7, .3}); err != nil {
		tst.Fatal(err)
	}
	m.Restore(before)
	if m.State().Decomposition != before.state.Decomposition {
		tst.Error("restore did not bring back the decomposition")
	}
}

func TestCovarionSubstitutionScale(tst *testing.T) {
	for _, mode := range []CovarionMode{CovarionReversible, CovarionUnweighted} {
		m, err := NewBinaryCovarion(0.2, 0.8, []float64{.3, .7}, []float64{.5, .5}, mode)
		if err != nil {
			tst.Fatal(err)
		}
		q, err := m.RateMatrix()
		if err != nil {
			tst.Fatal(err)
		}
		pi := m.Frequencies()
		visible := pi[0]*q.At(0, 1) + pi[1]*q.At(1, 0) + pi[2]*q.At(2, 3) + pi[3]*q.At(3, 2)
		if s := m.SubstitutionScale(q); !appreq(s, 1, 1e-12) || !appreq(visible, 1, 1e-12) {
			tst.Errorf("mode %d: substitution scale %v, visible flux %v, expected 1", mode, s, visible)
		}
		total := 0.0
		for i := range pi {
			total -= q.At(i, i) * pi[i]
		}
		if total <= 1 {
			tst.Errorf("mode %d: total rate %v should include switching", mode, total)
		}
	}
}

func TestCovarionProductFrequencies(tst *testing.T) {
	m, err := NewBinaryCovarion(0.5, 0.3, []float64{.5, .5}, []float64{.5, .5}, CovarionReversible)
	if err != nil {
		tst.Fatal(err)
	}
	mustP(tst, m, 0.1)
	// visible .4/.6, hidden .7/.3
	if err := m.SetFrequencies([]float64{.28, .42, .12, .18}); err != nil {
		tst.Fatal(err)
	}
	if !cmp(m.vfreq, []float64{.4, .6}, 1e-12) || !cmp(m.hfreq, []float64{.7, .3}, 1e-12) {
		tst.Error("wrong marginals:", m.vfreq, m.hfreq)
	}
	if m.State().Status != Dirty {
		tst.Error("changing frequencies should invalidate the model")
	}

	if err := m.SetFrequencies([]float64{.4, .1, .1, .4}); !errors.Is(err, ErrInvalidFrequencies) {
		tst.Error("expected ErrInvalidFrequencies for non-product frequencies, got", err)
	}
	if err := m.SetFrequencies([]float64{.2, .3, .5}); !errors.Is(err, ErrDimensionMismatch) {
		tst.Error("expected ErrDimensionMismatch, got", err)
	}
	if err := m.SetFrequencies([]float64{.5, .5}); err != nil {
		tst.Fatal(err)
	}
	if !cmp(m.Frequencies(), []float64{.35, .35, .15, .15}, 1e-12) {
		tst.Error("visible frequencies should keep hidden ones:", m.Frequencies())
	}
}
