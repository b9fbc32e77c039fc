package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/ctmc/bio"
	"bitbucket.org/Davydov/ctmc/checkpoint"
	"bitbucket.org/Davydov/ctmc/likelihood"
	"bitbucket.org/Davydov/ctmc/mcmc"
	"bitbucket.org/Davydov/ctmc/optimize"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

func runProb(db *bolt.DB, call CallSummary) *ProbSummary {
	start := time.Now()
	_, m := loadModel(*probConf, db)
	p, err := m.TransitionProbabilities(*probTime, *probRate, nil)
	if err != nil {
		log.Fatal(err)
	}
	call.Time = time.Since(start).Seconds()
	return &ProbSummary{
		CallSummary: call,
		Model:       modelSummary(m),
		Distance:    *probTime * *probRate,
		P:           square(p, m.StateCount()),
	}
}

func runEigen(db *bolt.DB, call CallSummary) *EigenSummary {
	start := time.Now()
	_, m := loadModel(*eigenConf, db)
	q, err := m.RateMatrix()
	if err != nil {
		log.Fatal(err)
	}
	d, err := m.EigenDecomposition()
	if err != nil {
		log.Fatal(err)
	}
	if d.IsComplex() {
		log.Warning("Rate matrix has complex eigenvalues")
	}
	n := m.StateCount()

	maxErr := 0.0
	rq := d.Reconstruct()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := rq.At(i, j) - q.At(i, j); v > maxErr {
				maxErr = v
			} else if -v > maxErr {
				maxErr = -v
			}
		}
	}

	summary := &EigenSummary{
		Model:       modelSummary(m),
		RateMatrix:  square(q.RawMatrix().Data, n),
		Values:      d.Values,
		Vectors:     square(d.Vectors, n),
		Inverse:     square(d.Inverse, n),
		Complex:     d.IsComplex(),
		Reconstruct: maxErr,
	}
	if d.IsComplex() {
		summary.Imag = d.Imag
	}
	call.Time = time.Since(start).Seconds()
	summary.CallSummary = call
	return summary
}

// runCheck returns the summary and false if any check failed.
func runCheck(db *bolt.DB, call CallSummary) (*CheckSummary, bool) {
	start := time.Now()
	_, m := loadModel(*checkConf, db)
	dev, errs, err := checkModel(m, *checkTol)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range errs {
		log.Error(e)
	}
	if len(errs) == 0 {
		log.Notice("All checks passed")
	}
	call.Time = time.Since(start).Seconds()
	return &CheckSummary{
		CallSummary:  call,
		Model:        modelSummary(m),
		Errors:       errs,
		MaxDeviation: dev,
	}, len(errs) == 0
}

func runSites(db *bolt.DB, call CallSummary) *SitesSummary {
	start := time.Now()
	c, m := loadModel(*sitesConf, db)
	s, err := c.BuildSiteModel(m)
	if err != nil {
		log.Fatal(err)
	}
	rates, err := s.CategoryRates()
	if err != nil {
		log.Fatal(err)
	}
	props := s.CategoryProportions()
	ps, err := s.TransitionProbabilities(context.Background(), *sitesTime)
	if err != nil {
		log.Fatal(err)
	}
	summary := &SitesSummary{
		Model: modelSummary(m),
		Time:  *sitesTime,
	}
	for i, p := range ps {
		log.Debugf("category %d: rate=%v, proportion=%v", i, rates[i], props[i])
		summary.Categories = append(summary.Categories, CategorySummary{
			Rate:       rates[i],
			Proportion: props[i],
			P:          square(p, m.StateCount()),
		})
	}
	call.Time = time.Since(start).Seconds()
	summary.CallSummary = call
	return summary
}

func runSave(db *bolt.DB, call CallSummary) *SaveSummary {
	start := time.Now()
	if db == nil {
		log.Fatal("Checkpoint database is required (--db)")
	}
	// parameters come from the configuration only
	_, m := loadModel(*saveConf, nil)
	key := m.Name()
	old, err := checkpoint.LoadData(db, []byte(key))
	if err != nil {
		log.Fatal("Error reading checkpoint:", err)
	}
	// make sure the saved parameters give a valid model
	if _, err := m.EigenDecomposition(); err != nil {
		log.Fatal(err)
	}
	if err := checkpoint.NewIO(db, []byte(key), 0).Save(checkpoint.FromModel(m, 0, true)); err != nil {
		log.Fatal(err)
	}
	log.Noticef("Saved %s parameters under %q", m.Name(), key)
	call.Time = time.Since(start).Seconds()
	return &SaveSummary{
		CallSummary: call,
		Model:       modelSummary(m),
		Key:         key,
		Replaced:    old != nil,
	}
}

// readPair reads two aligned sequences encoded in the model alphabet.
func readPair(fn string, states string) (a, b []int) {
	f, err := os.Open(fn)
	if err != nil {
		log.Fatal("Error opening alignment:", err)
	}
	defer f.Close()
	seqs, err := bio.ParseFasta(f)
	if err != nil {
		log.Fatal("Error reading alignment:", err)
	}
	if len(seqs) != 2 {
		log.Fatalf("Expected two sequences, found %d", len(seqs))
	}
	log.Infof("Read sequences %s and %s", seqs[0].Name, seqs[1].Name)
	enc := seqs.Encode(states)
	return enc[0], enc[1]
}

// loadPairwise builds the pairwise likelihood for the configuration
// and the alignment.
func loadPairwise(conf, alignment string, t float64) (substmodel.Model, *likelihood.Pairwise) {
	c, m := loadModel(conf, nil)
	states, ok := c.Alphabet()
	if !ok {
		log.Fatalf("Model %s cannot be used with an alignment", c.Model)
	}
	a, b := readPair(alignment, states)

	s, err := c.BuildSiteModel(m)
	if err != nil {
		log.Fatal(err)
	}
	target, err := likelihood.NewPairwise(s, a, b, t)
	if err != nil {
		log.Fatal(err)
	}
	return m, target
}

// resume applies a checkpoint saved for the target and returns the
// checkpoint writer.
func resume(db *bolt.DB, target checkpoint.Model, seconds float64) *checkpoint.IO {
	cpIO := checkpoint.NewIO(db, []byte(target.Name()), seconds)
	data, err := cpIO.Load()
	if err != nil {
		log.Fatal("Error reading checkpoint:", err)
	}
	if data != nil {
		if err := data.Apply(target); err != nil {
			log.Fatal("Error applying checkpoint:", err)
		}
		log.Noticef("Resuming from %s", target.Parameters().ValuesString())
	}
	return cpIO
}

// output returns the file for the per-iteration output or stdout.
func output(fn string) (io.Writer, func()) {
	if fn == "" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(fn)
	if err != nil {
		log.Fatal("Error creating output file:", err)
	}
	return f, func() { f.Close() }
}

func runSample(db *bolt.DB, call CallSummary) *SampleSummary {
	start := time.Now()
	m, target := loadPairwise(*sampleConf, *sampleAlignment, *sampleTime)

	seed := *sampleSeed
	if seed == -1 {
		seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", seed)

	sampler := mcmc.NewMH(target, seed)
	sampler.SD = *sampleSD
	sampler.RepPeriod = *sampleReport
	for _, par := range target.Parameters() {
		if par.Name() == "t" || par.Name() == "alpha" {
			sampler.SetPrior(par.Name(), mcmc.ExponentialPrior(1))
		}
	}
	if db != nil {
		sampler.SetCheckpoint(resume(db, target, *sampleCheckpoint))
	}
	w, closeOut := output(*sampleOut)
	defer closeOut()
	sampler.SetOutput(w)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sampler.Run(ctx, *sampleIterations); err != nil {
		log.Fatal(err)
	}

	call.Time = time.Since(start).Seconds()
	return &SampleSummary{
		CallSummary: call,
		Model:       modelSummary(m),
		Seed:        seed,
		Sites:       target.Sites(),
		Result:      sampler.Summary(),
	}
}

func runFit(db *bolt.DB, call CallSummary) *FitSummary {
	start := time.Now()
	m, target := loadPairwise(*fitConf, *fitAlignment, *fitTime)

	var cpIO *checkpoint.IO
	if db != nil {
		cpIO = resume(db, target, 0)
	}
	opt := optimize.NewSimplex(target)
	opt.Delta = *fitDelta
	w, closeOut := output(*fitOut)
	defer closeOut()
	opt.SetOutput(w)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := opt.Run(ctx, *fitIterations); err != nil {
		log.Fatal(err)
	}
	res := opt.Summary()
	if cpIO != nil {
		if err := cpIO.Save(checkpoint.FromModel(target, res.Iterations, res.Converged)); err != nil {
			log.Error("Error saving checkpoint:", err)
		}
	}

	call.Time = time.Since(start).Seconds()
	return &FitSummary{
		CallSummary: call,
		Model:       modelSummary(m),
		Sites:       target.Sites(),
		Result:      res,
	}
}
