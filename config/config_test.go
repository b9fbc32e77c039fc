package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/ctmc/substmodel"
)

func init() {
	logging.SetLevel(logging.CRITICAL, "config")
	logging.SetLevel(logging.CRITICAL, "substmodel")
	logging.SetLevel(logging.CRITICAL, "sitemodel")
}

func TestDefault(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	m, err := c.Build()
	require.NoError(t, err)
	assert.Equal(t, "JC69", m.Name())
}

func TestBuild(t *testing.T) {
	tests := []struct {
		yaml   string
		name   string
		states int
		pars   string
	}{
		{"model: HKY\nkappa: 2\nfrequencies: [0.1, 0.2, 0.3, 0.4]", "HKY", 4, "kappa"},
		{"model: TN93\nkappa: 2\nkappa2: 3", "TN93", 4, "kappa1\tkappa2"},
		{"model: F81\nfrequencies: [0.1, 0.2, 0.3, 0.4]", "F81", 4, ""},
		{"model: GTR\nrates: [1, 2, 1, 1, 2, 1]", "GTR", 4, "rateAC\trateAG\trateAT\trateCG\trateCT\trateGT"},
		{"model: SYM\nrates: [1, 2, 1, 1, 2, 1]\neigen: gonum", "SYM", 4, "rateAC\trateAG\trateAT\trateCG\trateCT\trateGT"},
		{"model: general\nrates: [1, 2, 3]", "general", 3, "rate0_1\trate0_2\trate1_2"},
		{"model: nonreversible\nrates: [1, 2, 3, 4, 5, 6]\nfrequencies: [0.3, 0.3, 0.4]", "nonreversible", 3, "rate0_1\trate0_2\trate1_0\trate1_2\trate2_0\trate2_1"},
		{"model: nonreversible\nrates: [1, 2]", "nonreversible", 2, "rate0_1\trate1_0"},
		{"model: binary\nfrequencies: [0.3, 0.7]", "binary", 2, ""},
		{"model: covarion\nalpha: 0.5\nswitchRate: 0.3\nhiddenFrequencies: [0.7, 0.3]", "covarion", 4, "alpha\tswitchRate"},
		{"model: WAG", "WAG", 20, ""},
	}
	for _, test := range tests {
		c, err := Parse(strings.NewReader(test.yaml))
		require.NoError(t, err, test.yaml)
		m, err := c.Build()
		require.NoError(t, err, test.yaml)
		assert.Equal(t, test.name, m.Name())
		assert.Equal(t, test.states, m.StateCount(), test.name)
		assert.Equal(t, test.pars, m.Parameters().NamesString(), test.name)
		_, err = m.TransitionProbabilities(0.1, 1, nil)
		assert.NoError(t, err, test.name)
	}
}

func TestInvalid(t *testing.T) {
	tests := []string{
		"model: K80",
		"model: HKY\nkappa: -1",
		"model: HKY\nfrequencies: [0.5, 0.6, 0.1, 0.1]",
		"model: HKY\nfrequencies: [1]",
		"model: covarion\nmode: beast",
		"model: covarion\nhiddenFrequencies: [0.2, 0.3, 0.5]",
		"eigen: lapack",
		"sites:\n  invariant: 1",
		"sites:\n  gammaCategories: 4",
	}
	for _, test := range tests {
		_, err := Parse(strings.NewReader(test))
		var verr validator.ValidationErrors
		assert.True(t, errors.As(err, &verr), "%q: expected validation error, got %v", test, err)
	}

	_, err := Parse(strings.NewReader("model: HKY\nomega: 2"))
	assert.Error(t, err, "unknown field should be an error")

	c, err := Parse(strings.NewReader("model: general\nrates: [1, 2, 3, 4]"))
	require.NoError(t, err)
	_, err = c.Build()
	assert.ErrorIs(t, err, substmodel.ErrDimensionMismatch)

	c, err = Parse(strings.NewReader("model: GTR\nrates: [0, 0, 0, 0, 0, 0]"))
	require.NoError(t, err)
	m, err := c.Build()
	assert.ErrorIs(t, err, substmodel.ErrDegenerateRates)
	assert.Nil(t, m)
}

func TestSiteModel(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "model.yaml")
	data := `
model: HKY
kappa: 4
sites:
  mu: 2
  gammaCategories: 4
  alpha: 0.5
  median: true
  invariant: 0.25
`
	require.NoError(t, os.WriteFile(fn, []byte(data), 0644))
	c, err := Load(fn)
	require.NoError(t, err)

	m, err := c.Build()
	require.NoError(t, err)
	s, err := c.BuildSiteModel(m)
	require.NoError(t, err)
	assert.Equal(t, 5, s.CategoryCount())
	assert.Equal(t, "mu\talpha\tpinv\tkappa", s.Parameters().NamesString())

	rates, err := s.CategoryRates()
	require.NoError(t, err)
	mean := 0.0
	for i, p := range s.CategoryProportions() {
		mean += p * rates[i]
	}
	assert.InDelta(t, 2, mean, 1e-9)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAlignment(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "ali.fst")
	require.NoError(t, os.WriteFile(fn, []byte(">a\nAACG\n>b\nAAT-\n"), 0644))

	c, err := Parse(strings.NewReader("model: HKY\nkappa: 2\nalignment: " + fn))
	require.NoError(t, err)
	m, err := c.Build()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4. / 7, 1. / 7, 1. / 7, 1. / 7}, m.Frequencies(), 1e-12)

	c, err = Parse(strings.NewReader("model: general\nrates: [1, 1, 1]\nalignment: " + fn))
	require.NoError(t, err)
	_, err = c.Build()
	assert.ErrorIs(t, err, ErrNoAlphabet)

	_, err = Parse(strings.NewReader("model: HKY\nfrequencies: [0.25, 0.25, 0.25, 0.25]\nalignment: " + fn))
	assert.Error(t, err, "alignment and frequencies are exclusive")
}
