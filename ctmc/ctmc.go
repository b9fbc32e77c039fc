/*

Ctmc computes transition probabilities of continuous-time Markov chain
substitution models.

The model is described in a YAML file:

	model: HKY
	kappa: 2
	frequencies: [0.1, 0.2, 0.3, 0.4]

Transition probabilities for a branch of length 0.1:

	ctmc prob model.yaml 0.1

Other commands print the eigensystem (eigen), check numerical
properties of the model (check), compute probabilities for every site
rate category (sites), save model parameters to a checkpoint
database (save). Given two aligned sequences, parameters can be
sampled (sample) or estimated by maximum likelihood (fit). To see all the options run:

	ctmc --help

*/
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/ctmc/checkpoint"
	"bitbucket.org/Davydov/ctmc/config"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("ctmc")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("ctmc", "continuous-time Markov chain substitution models").Version(version)

	// global
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	outLogF  = app.Flag("log", "write log to a file").String()
	jsonF    = app.Flag("json", "write json output to a file instead of stdout").String()
	metricsF = app.Flag("metrics", "write metrics in the text exposition format to a file").String()
	dbF      = app.Flag("db", "checkpoint database, parameters are loaded from it if present").String()
	nThreads = app.Flag("nt", "number of threads to use").Int()

	// prob
	probCmd  = app.Command("prob", "compute transition probabilities")
	probConf = probCmd.Arg("config", "model configuration").Required().ExistingFile()
	probTime = probCmd.Arg("time", "branch length").Required().Float64()
	probRate = probCmd.Flag("rate", "rate multiplier").Default("1").Float64()

	// eigen
	eigenCmd  = app.Command("eigen", "print rate matrix and its eigensystem")
	eigenConf = eigenCmd.Arg("config", "model configuration").Required().ExistingFile()

	// check
	checkCmd  = app.Command("check", "check numerical properties of the model")
	checkConf = checkCmd.Arg("config", "model configuration").Required().ExistingFile()
	checkTol  = checkCmd.Flag("tol", "maximum allowed deviation").Default("1e-9").Float64()

	// sites
	sitesCmd  = app.Command("sites", "compute transition probabilities for every site rate category")
	sitesConf = sitesCmd.Arg("config", "model configuration").Required().ExistingFile()
	sitesTime = sitesCmd.Arg("time", "branch length").Required().Float64()

	// save
	saveCmd  = app.Command("save", "save model parameters to the checkpoint database")
	saveConf = saveCmd.Arg("config", "model configuration").Required().ExistingFile()

	// sample
	sampleCmd        = app.Command("sample", "sample model parameters for a pair of aligned sequences")
	sampleConf       = sampleCmd.Arg("config", "model configuration").Required().ExistingFile()
	sampleAlignment  = sampleCmd.Arg("alignment", "fasta file with two aligned sequences").Required().ExistingFile()
	sampleIterations = sampleCmd.Flag("iter", "number of iterations").Short('n').Default("10000").Int()
	sampleSeed       = sampleCmd.Flag("seed", "random generator seed, default time based").Short('s').Default("-1").Int64()
	sampleTime       = sampleCmd.Flag("time", "starting branch length").Default("0.1").Float64()
	sampleSD         = sampleCmd.Flag("sd", "standard deviation of the proposal").Default("0.01").Float64()
	sampleReport     = sampleCmd.Flag("report", "report every N iterations").Default("10").Int()
	sampleOut        = sampleCmd.Flag("out", "write samples to a file").Short('o').String()
	sampleCheckpoint = sampleCmd.Flag("checkpoint", "checkpoint every N seconds").Default("60").Float64()

	// fit
	fitCmd        = app.Command("fit", "maximum likelihood parameters for a pair of aligned sequences")
	fitConf       = fitCmd.Arg("config", "model configuration").Required().ExistingFile()
	fitAlignment  = fitCmd.Arg("alignment", "fasta file with two aligned sequences").Required().ExistingFile()
	fitIterations = fitCmd.Flag("iter", "maximum number of iterations").Short('n').Default("10000").Int()
	fitTime       = fitCmd.Flag("time", "starting branch length").Default("0.1").Float64()
	fitDelta      = fitCmd.Flag("delta", "initial simplex size").Default("0.5").Float64()
	fitOut        = fitCmd.Flag("out", "write progress to a file").Short('o').String()
)

// openDB opens the checkpoint database if requested.
func openDB() *bolt.DB {
	if *dbF == "" {
		return nil
	}
	db, err := bolt.Open(*dbF, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		log.Fatal("Error opening checkpoint database:", err)
	}
	return db
}

// loadModel reads the configuration, builds the model and applies a
// checkpoint saved under the model name if db is not nil.
func loadModel(fn string, db *bolt.DB) (*config.Config, substmodel.Model) {
	c, err := config.Load(fn)
	if err != nil {
		log.Fatal(err)
	}
	m, err := c.Build()
	if err != nil {
		log.Fatal(err)
	}
	if db != nil {
		data, err := checkpoint.NewIO(db, []byte(m.Name()), 0).Load()
		if err != nil {
			log.Fatal("Error reading checkpoint:", err)
		}
		if data != nil {
			if err := data.Apply(m); err != nil {
				log.Fatal("Error applying checkpoint:", err)
			}
		}
	}
	log.Infof("Model %s, %d states, parameters: %s", m.Name(), m.StateCount(), m.Parameters().ValuesString())
	return c, m
}

func modelSummary(m substmodel.Model) ModelSummary {
	return ModelSummary{
		Name:        m.Name(),
		States:      m.StateCount(),
		Frequencies: m.Frequencies(),
		Parameters:  m.Parameters().Map(),
	}
}

// square converts a row-major slice to a matrix.
func square(data []float64, n int) [][]float64 {
	res := make([][]float64, n)
	for i := range res {
		res[i] = data[i*n : (i+1)*n]
	}
	return res
}

// writeMetrics dumps all registered metrics.
func writeMetrics(w io.Writer) error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON writes summary to the json file or stdout.
func writeJSON(summary interface{}) {
	j, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if *jsonF == "" {
		fmt.Println(string(j))
		return
	}
	f, err := os.Create(*jsonF)
	if err != nil {
		log.Fatal("Error creating json output file:", err)
	}
	defer f.Close()
	if _, err := f.Write(j); err != nil {
		log.Error("Error writing json output:", err)
	}
}

func main() {
	os.Exit(run())
}

// run executes the command and returns the exit code.
func run() int {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	startTime := time.Now()

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range []string{"ctmc", "substmodel", "eigen", "sitemodel", "config", "checkpoint", "mcmc", "optimize"} {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	log.Infof("Using threads: %d.", runtime.GOMAXPROCS(0))

	db := openDB()
	if db != nil {
		defer db.Close()
	}

	call := CallSummary{
		Version:     version,
		CommandLine: os.Args,
		NThreads:    runtime.GOMAXPROCS(0),
	}

	code := 0
	var summary interface{}
	switch cmd {
	case probCmd.FullCommand():
		summary = runProb(db, call)
	case eigenCmd.FullCommand():
		summary = runEigen(db, call)
	case checkCmd.FullCommand():
		var ok bool
		summary, ok = runCheck(db, call)
		if !ok {
			code = 1
		}
	case sitesCmd.FullCommand():
		summary = runSites(db, call)
	case saveCmd.FullCommand():
		summary = runSave(db, call)
	case sampleCmd.FullCommand():
		summary = runSample(db, call)
	case fitCmd.FullCommand():
		summary = runFit(db, call)
	}

	log.Noticef("Running time: %v", time.Since(startTime))
	writeJSON(summary)

	if *metricsF != "" {
		f, err := os.Create(*metricsF)
		if err != nil {
			log.Fatal("Error creating metrics file:", err)
		}
		defer f.Close()
		if err := writeMetrics(f); err != nil {
			log.Error("Error writing metrics:", err)
		}
	}
	return code
}
