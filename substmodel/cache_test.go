package substmodel

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bitbucket.org/Davydov/ctmc/eigen"
)

func TestCacheStatus(tst *testing.T) {
	m, err := NewHKY(2, []float64{.1, .2, .3, .4})
	if err != nil {
		tst.Fatal(err)
	}
	if m.State().Status != Dirty {
		tst.Error("new model should be dirty")
	}
	d1, err := m.EigenDecomposition()
	if err != nil {
		tst.Fatal(err)
	}
	if m.State().Status != Clean {
		tst.Error("model should be clean after a request")
	}
	d2, _ := m.EigenDecomposition()
	if d1 != d2 {
		tst.Error("clean model recomputed the decomposition")
	}

	kappa := m.Parameters().Get("kappa")
	kappa.Set(3)
	if m.State().Status != Dirty {
		tst.Error("parameter change should invalidate the model")
	}
	d3, _ := m.EigenDecomposition()
	if d3 == d1 {
		tst.Error("dirty model returned the stale decomposition")
	}

	// setting the same value is not a change
	kappa.Set(3)
	if m.State().Status != Clean {
		tst.Error("setting the same value invalidated the model")
	}

	if err := m.SetFrequencies([]float64{.25, .25, .25, .25}); err != nil {
		tst.Fatal(err)
	}
	if m.State().Status != Dirty {
		tst.Error("frequency change should invalidate the model")
	}
	if err := m.SetFrequencies([]float64{.25, .25}); !errors.Is(err, ErrDimensionMismatch) {
		tst.Error("expected ErrDimensionMismatch, got", err)
	}
}

// Propose, reject and restore as a sampler does it.
func TestStoreRestore(tst *testing.T) {
	m, err := NewGTR([]float64{1, 2, 1, 1, 2, 1}, []float64{.2, .3, .25, .25})
	if err != nil {
		tst.Fatal(err)
	}
	p0 := mustP(tst, m, 0.1)
	d0, _ := m.EigenDecomposition()

	misses := cacheRequests.WithLabelValues(m.Name(), "miss")
	nrestores := restores.WithLabelValues(m.Name())
	missBefore := testutil.ToFloat64(misses)
	restoresBefore := testutil.ToFloat64(nrestores)

	s := m.Store()
	if s.Status() != Clean {
		tst.Error("stored snapshot should be clean")
	}
	par := m.Parameters().Get("rateCG")
	par.SetProposalFunc(func(v float64) float64 { return v + 0.5 })
	par.Propose()
	p1 := mustP(tst, m, 0.1)
	if cmp(p0, p1, 1e-6) {
		tst.Error("proposal did not change probabilities")
	}

	par.Reject()
	if m.State().Status != Dirty {
		tst.Error("reject should invalidate the model")
	}
	m.Restore(s)
	if m.State().Status != Clean {
		tst.Error("restored model should be clean")
	}
	d, _ := m.EigenDecomposition()
	if d != d0 {
		tst.Error("restore did not bring back the stored decomposition")
	}
	if !cmp(mustP(tst, m, 0.1), p0, 0) {
		tst.Error("probabilities differ after restore")
	}

	if v := testutil.ToFloat64(misses) - missBefore; v != 1 {
		tst.Errorf("%v recomputations, expected 1", v)
	}
	if v := testutil.ToFloat64(nrestores) - restoresBefore; v != 1 {
		tst.Errorf("%v restores, expected 1", v)
	}
}

// Restoring right after a reject with no request in between.
func TestRestoreWithoutRequest(tst *testing.T) {
	m, err := NewHKY(4, []float64{.1, .2, .3, .4})
	if err != nil {
		tst.Fatal(err)
	}
	p0 := mustP(tst, m, 0.2)
	s := m.Store()

	kappa := m.Parameters().Get("kappa")
	kappa.Set(8)
	kappa.Set(4)
	m.Restore(s)
	if !cmp(mustP(tst, m, 0.2), p0, 0) {
		tst.Error("probabilities differ after restore")
	}

	// a snapshot of a dirty model restores to dirty
	m.Invalidate()
	dirty := m.Store()
	if dirty.Status() != Dirty {
		tst.Error("snapshot of a dirty model should be dirty")
	}
	mustP(tst, m, 0.2)
	m.Restore(dirty)
	if m.State().Status != Dirty {
		tst.Error("restoring a dirty snapshot should leave the model dirty")
	}

	m.Restore(Snapshot{})
	if m.State().Status != Dirty {
		tst.Error("restoring an empty snapshot should leave the model dirty")
	}
	if !cmp(mustP(tst, m, 0.2), p0, 1e-15) {
		tst.Error("recomputed probabilities differ")
	}
}

func TestConcurrentRequests(tst *testing.T) {
	m, err := NewGeneral(sevenStateRates(), EqualFrequencies(7), WithEigenSystem(eigen.NewDefaultSystem(7)))
	if err != nil {
		tst.Fatal(err)
	}
	misses := cacheRequests.WithLabelValues(m.Name(), "miss")
	before := testutil.ToFloat64(misses)

	const workers = 16
	res := make([][]float64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res[i], errs[i] = m.TransitionProbabilities(0.3, 1, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			tst.Fatal(errs[i])
		}
		if !cmp(res[i], res[0], 0) {
			tst.Errorf("worker %d got different probabilities", i)
		}
	}
	if v := testutil.ToFloat64(misses) - before; v != 1 {
		tst.Errorf("%v recomputations, expected 1", v)
	}
}

func sevenStateRates() []float64 {
	rates := make([]float64, ReversibleRates(7))
	for i := range rates {
		rates[i] = float64(i%5 + 1)
	}
	return rates
}

func TestFailedRecomputation(tst *testing.T) {
	m, err := NewGTR([]float64{1, 1, 1, 1, 1, 1}, EqualFrequencies(4))
	if err != nil {
		tst.Fatal(err)
	}
	errs := decompositions.WithLabelValues(m.Name(), "error")
	before := testutil.ToFloat64(errs)
	for _, p := range m.Parameters() {
		p.Set(0)
	}
	if _, err := m.EigenDecomposition(); !errors.Is(err, ErrDegenerateRates) {
		tst.Error("expected ErrDegenerateRates, got", err)
	}
	if m.State().Status != Dirty {
		tst.Error("failed recomputation should leave the model dirty")
	}
	if v := testutil.ToFloat64(errs) - before; v != 1 {
		tst.Errorf("%v failed decompositions, expected 1", v)
	}
}

func TestTransitionDestination(tst *testing.T) {
	d := eigen.NewDecomposition(2)
	copy(d.Vectors, []float64{1, 0, 0, 1})
	copy(d.Inverse, []float64{1, 0, 0, 1})
	defer func() {
		if recover() == nil {
			tst.Error("wrong destination length should panic")
		}
	}()
	TransitionProbabilities(d, 1, make([]float64, 3))
}
