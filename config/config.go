// Package config reads substitution model settings from YAML.
//
// A configuration looks like this:
//
//	model: HKY
//	kappa: 2
//	frequencies: [0.1, 0.2, 0.3, 0.4]
//	sites:
//	  gammaCategories: 4
//	  alpha: 0.5
//	  invariant: 0.1
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/op/go-logging"
	"gopkg.in/yaml.v3"

	"bitbucket.org/Davydov/ctmc/bio"
	"bitbucket.org/Davydov/ctmc/eigen"
	"bitbucket.org/Davydov/ctmc/sitemodel"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

var log = logging.MustGetLogger("config")

// ErrUnknownModel is returned by Build for models it cannot create.
var ErrUnknownModel = errors.New("config: unknown model")

// ErrNoAlphabet is returned if frequencies cannot be estimated from an
// alignment for the model.
var ErrNoAlphabet = errors.New("config: model has no alphabet")

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("freqsum", validateFreqSum); err != nil {
		panic(err)
	}
}

// validateFreqSum checks that frequencies sum to one.
func validateFreqSum(fl validator.FieldLevel) bool {
	f, ok := fl.Field().Interface().([]float64)
	if !ok {
		return false
	}
	if len(f) == 0 {
		return true
	}
	sum := 0.0
	for _, v := range f {
		sum += v
	}
	return math.Abs(sum-1) <= substmodel.FreqTolerance
}

// Config describes a substitution model and its site model.
type Config struct {
	// Model is the model name.
	Model string `yaml:"model" validate:"required,oneof=JC69 F81 HKY TN93 GTR SYM general nonreversible binary covarion WAG"`
	// Frequencies are equilibrium frequencies, visible ones for
	// covarion. Equal or model default frequencies are used if empty.
	Frequencies []float64 `yaml:"frequencies" validate:"omitempty,min=2,freqsum,dive,gte=0,lte=1"`
	// Alignment is a FASTA file to estimate frequencies from.
	Alignment string `yaml:"alignment" validate:"excluded_with=Frequencies"`
	// Rates are relative rates for GTR, SYM, general and nonreversible.
	Rates []float64 `yaml:"rates" validate:"omitempty,dive,gte=0"`
	// Kappa is used by HKY and as kappa1 by TN93.
	Kappa float64 `yaml:"kappa" validate:"gte=0"`
	// Kappa2 is the pyrimidine transition rate of TN93.
	Kappa2 float64 `yaml:"kappa2" validate:"gte=0"`
	// States is the number of states for general and nonreversible
	// models without explicit frequencies.
	States int `yaml:"states" validate:"omitempty,gte=2"`

	// covarion settings
	Alpha             float64   `yaml:"alpha" validate:"gte=0"`
	SwitchRate        float64   `yaml:"switchRate" validate:"gte=0"`
	HiddenFrequencies []float64 `yaml:"hiddenFrequencies" validate:"omitempty,len=2,freqsum,dive,gte=0,lte=1"`
	Mode              string    `yaml:"mode" validate:"omitempty,oneof=reversible unweighted"`

	// Eigen selects the eigensystem implementation.
	Eigen string `yaml:"eigen" validate:"omitempty,oneof=default gonum"`

	Sites Sites `yaml:"sites"`
}

// Sites describes rate variation among sites.
type Sites struct {
	Mu              float64 `yaml:"mu" validate:"gte=0"`
	GammaCategories int     `yaml:"gammaCategories" validate:"gte=0"`
	Alpha           float64 `yaml:"alpha" validate:"required_with=GammaCategories,gte=0"`
	Median          bool    `yaml:"median"`
	// Invariant is the proportion of invariant sites, nil to disable.
	Invariant *float64 `yaml:"invariant" validate:"omitempty,gte=0,lt=1"`
}

// Default returns a JC69 configuration.
func Default() *Config {
	return &Config{
		Model: "JC69",
		Kappa: 1,
		Sites: Sites{Mu: 1},
	}
}

// Parse reads configuration from YAML. Unknown fields are errors.
// Missing fields take values from Default.
func Parse(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads configuration from a file.
func Load(fn string) (*Config, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	log.Debugf("reading configuration from %s", fn)
	return Parse(bytes.NewReader(data))
}

// Validate checks field values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) options() []substmodel.Option {
	if c.Eigen == "gonum" {
		return []substmodel.Option{substmodel.WithEigenSystem(eigen.GonumSystem{})}
	}
	return nil
}

func (c *Config) frequencies(n int) []float64 {
	if len(c.Frequencies) > 0 {
		return c.Frequencies
	}
	return substmodel.EqualFrequencies(n)
}

// generalStates returns the number of states of a general model.
func (c *Config) generalStates(reversible bool) (int, error) {
	switch {
	case len(c.Frequencies) > 0:
		return len(c.Frequencies), nil
	case c.States > 0:
		return c.States, nil
	}
	// infer from the number of rates
	for n := 2; ; n++ {
		k := substmodel.NonReversibleRates(n)
		if reversible {
			k = substmodel.ReversibleRates(n)
		}
		if k == len(c.Rates) {
			return n, nil
		}
		if k > len(c.Rates) {
			return 0, fmt.Errorf("config: %w: %d rates do not match any number of states", substmodel.ErrDimensionMismatch, len(c.Rates))
		}
	}
}

// model avoids returning a typed nil as a non-nil Model.
func model[M substmodel.Model](m M, err error) (substmodel.Model, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Alphabet returns the characters encoding the model states in an
// alignment. Models with hidden states or an arbitrary number of
// states have no alphabet.
func (c *Config) Alphabet() (string, bool) {
	switch c.Model {
	case "JC69", "F81", "HKY", "TN93", "GTR", "SYM":
		return substmodel.Nucleotides, true
	case "binary":
		return "01", true
	case "WAG":
		return substmodel.AminoAcids, true
	}
	return "", false
}

// alphabet returns the observed states of models with free
// frequencies.
func (c *Config) alphabet() (string, bool) {
	switch c.Model {
	case "JC69", "SYM":
		return "", false
	case "covarion":
		return "01", true
	}
	return c.Alphabet()
}

// readFrequencies sets frequencies to the empirical frequencies of the
// alignment.
func (c *Config) readFrequencies() error {
	states, ok := c.alphabet()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAlphabet, c.Model)
	}
	f, err := os.Open(c.Alignment)
	if err != nil {
		return err
	}
	defer f.Close()
	seqs, err := bio.ParseFasta(f)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", c.Alignment, err)
	}
	freq, err := substmodel.EmpiricalFrequencies(len(states), seqs.Encode(states)...)
	if err != nil {
		return err
	}
	log.Infof("Read %d sequences, empirical frequencies: %v", len(seqs), freq)
	c.Frequencies = freq
	return nil
}

// Build creates the substitution model.
func (c *Config) Build() (substmodel.Model, error) {
	opts := c.options()
	if c.Alignment != "" && len(c.Frequencies) == 0 {
		if err := c.readFrequencies(); err != nil {
			return nil, err
		}
	}
	log.Infof("Using %s model", c.Model)
	switch c.Model {
	case "JC69":
		return model(substmodel.NewJC69(opts...))
	case "F81":
		return model(substmodel.NewF81(c.frequencies(4), opts...))
	case "HKY":
		return model(substmodel.NewHKY(c.Kappa, c.frequencies(4), opts...))
	case "TN93":
		return model(substmodel.NewTN93(c.Kappa, c.Kappa2, c.frequencies(4), opts...))
	case "GTR":
		return model(substmodel.NewGTR(c.Rates, c.frequencies(4), opts...))
	case "SYM":
		return model(substmodel.NewSYM(c.Rates, opts...))
	case "general", "nonreversible":
		reversible := c.Model == "general"
		n, err := c.generalStates(reversible)
		if err != nil {
			return nil, err
		}
		if reversible {
			return model(substmodel.NewGeneral(c.Rates, c.frequencies(n), opts...))
		}
		return model(substmodel.NewNonReversible(c.Rates, c.frequencies(n), opts...))
	case "binary":
		return model(substmodel.NewTwoState(c.frequencies(2), opts...))
	case "covarion":
		mode := substmodel.CovarionReversible
		if c.Mode == "unweighted" {
			mode = substmodel.CovarionUnweighted
		}
		hfreq := c.HiddenFrequencies
		if len(hfreq) == 0 {
			hfreq = substmodel.EqualFrequencies(2)
		}
		return model(substmodel.NewBinaryCovarion(c.Alpha, c.SwitchRate, c.frequencies(2), hfreq, mode, opts...))
	case "WAG":
		m, err := substmodel.NewWAG(opts...)
		if err != nil {
			return nil, err
		}
		if len(c.Frequencies) > 0 {
			if err := m.SetFrequencies(c.Frequencies); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModel, c.Model)
}

// BuildSiteModel creates the site model on top of m.
func (c *Config) BuildSiteModel(m substmodel.Model) (*sitemodel.SiteModel, error) {
	s := c.Sites
	opts := []sitemodel.Option{sitemodel.WithMu(s.Mu)}
	if s.GammaCategories > 1 {
		opts = append(opts, sitemodel.WithGamma(s.Alpha, s.GammaCategories, s.Median))
	}
	if s.Invariant != nil {
		opts = append(opts, sitemodel.WithInvariant(*s.Invariant))
	}
	return sitemodel.New(m, opts...)
}
