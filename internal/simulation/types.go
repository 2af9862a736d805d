// Package simulation drives many scenario-kernel trials through
// internal/engine and aggregates their outcomes into success probability,
// percentile bands, and the external response contracts.
package simulation

import (
	"time"

	"github.com/areumfire/retirement-mc/internal/engine"
)

// VarianceReductionConfig toggles the Monte Carlo variance-reduction modes.
type VarianceReductionConfig struct {
	Antithetic bool
	Stratified bool
}

// DriverRequest is the input to Run.
type DriverRequest struct {
	Params            engine.RetirementParams
	Iterations        int
	Seed              uint32 // overrides Params.RandomSeed when non-zero
	Workers           int    // 0 = sequential
	VarianceReduction VarianceReductionConfig
	ReturnConfig      engine.ReturnConfig
	AllowPartial      bool
	Timeout           time.Duration
}

// ConfidenceIntervals holds the ending-balance percentile bands.
type ConfidenceIntervals struct {
	P10 float64 `json:"percentile10"`
	P25 float64 `json:"percentile25"`
	P50 float64 `json:"percentile50"`
	P75 float64 `json:"percentile75"`
	P90 float64 `json:"percentile90"`
}

// Scenarios is the successful/failed/total trial tally.
type Scenarios struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// AgePercentiles is one age's P05/P25/P50/P75/P95 portfolio-balance band.
type AgePercentiles struct {
	Age int     `json:"age"`
	P05 float64 `json:"p05"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// LTCAnalysis reports the success-rate delta attributable to long-term-care
// events, and average event cost/duration.
type LTCAnalysis struct {
	SuccessWithLTC    float64 `json:"successWithLtc"`
	SuccessWithoutLTC float64 `json:"successWithoutLtc"`
	Delta             float64 `json:"delta"`
	AverageEventCost  float64 `json:"averageEventCost"`
	AverageDuration   float64 `json:"averageDuration"`
}

// AggregateResult is the full output of a simulation batch: the
// /simulate-retirement-monte-carlo response body minus the envelope fields
// added by internal/api.
type AggregateResult struct {
	SuccessProbability    float64               `json:"successProbability"`
	ProbabilityOfSuccess  float64               `json:"probabilityOfSuccess"`
	MedianEndingBalance   float64               `json:"medianEndingBalance"`
	ConfidenceIntervals   ConfidenceIntervals    `json:"confidenceIntervals"`
	Scenarios             Scenarios              `json:"scenarios"`
	YearlyCashFlows       []engine.YearlyCashflow `json:"yearlyCashFlows"`
	PercentilesByAge      []AgePercentiles       `json:"percentilesByAge"`
	ProbabilityOfRuinByAge map[int]float64       `json:"probabilityOfRuinByAge"`
	LTCAnalysis           *LTCAnalysis           `json:"ltcAnalysis,omitempty"`
	SafeWithdrawalRate    float64                `json:"safeWithdrawalRate"`
	NonFiniteTrials       int                    `json:"-"`
}
