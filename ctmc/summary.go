package main

import (
	"bitbucket.org/Davydov/ctmc/mcmc"
	"bitbucket.org/Davydov/ctmc/optimize"
)

// CallSummary stores information about the program call.
type CallSummary struct {
	// Version stores ctmc version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}

// ModelSummary describes a model.
type ModelSummary struct {
	Name        string             `json:"name"`
	States      int                `json:"states"`
	Frequencies []float64          `json:"frequencies"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
}

// ProbSummary is the output of the prob command.
type ProbSummary struct {
	CallSummary
	Model ModelSummary `json:"model"`
	// Distance is time multiplied by rate.
	Distance float64 `json:"distance"`
	// P is the transition probability matrix, rows are starting states.
	P [][]float64 `json:"p"`
}

// EigenSummary is the output of the eigen command.
type EigenSummary struct {
	CallSummary
	Model       ModelSummary `json:"model"`
	RateMatrix  [][]float64  `json:"rateMatrix"`
	Values      []float64    `json:"values"`
	Imag        []float64    `json:"imag,omitempty"`
	Vectors     [][]float64  `json:"vectors"`
	Inverse     [][]float64  `json:"inverse"`
	Complex     bool         `json:"complex"`
	Reconstruct float64      `json:"reconstructionError"`
}

// CategorySummary is a single site rate category.
type CategorySummary struct {
	Rate       float64     `json:"rate"`
	Proportion float64     `json:"proportion"`
	P          [][]float64 `json:"p"`
}

// SitesSummary is the output of the sites command.
type SitesSummary struct {
	CallSummary
	Model      ModelSummary      `json:"model"`
	Time       float64           `json:"time"`
	Categories []CategorySummary `json:"categories"`
}

// CheckSummary is the output of the check command.
type CheckSummary struct {
	CallSummary
	Model ModelSummary `json:"model"`
	// Errors lists all failed checks, empty if the model is fine.
	Errors []string `json:"errors"`
	// MaxDeviation is the largest deviation per check.
	MaxDeviation map[string]float64 `json:"maxDeviation"`
}

// SaveSummary is the output of the save command.
type SaveSummary struct {
	CallSummary
	Model ModelSummary `json:"model"`
	Key   string       `json:"key"`
	// Replaced is true if a checkpoint with the same key existed.
	Replaced bool `json:"replaced"`
}

// SampleSummary is the output of the sample command.
type SampleSummary struct {
	CallSummary
	Model ModelSummary `json:"model"`
	Seed  int64        `json:"seed"`
	// Sites is the number of sites without gaps.
	Sites  int          `json:"sites"`
	Result mcmc.Summary `json:"result"`
}

// FitSummary is the output of the fit command.
type FitSummary struct {
	CallSummary
	Model  ModelSummary     `json:"model"`
	Sites  int              `json:"sites"`
	Result optimize.Summary `json:"result"`
}
