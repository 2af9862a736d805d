// Package api exposes the engine and simulation packages over the
// JSON-over-HTTP RPC contracts external callers depend on: running a full
// Monte Carlo batch, computing percentile bands, optimizing a Social
// Security claim age, and mapping a single deterministic cashflow year by
// year.
package api

import (
	"time"

	"github.com/areumfire/retirement-mc/internal/engine"
	"github.com/areumfire/retirement-mc/internal/simulation"
)

// simulateRequest is the body of POST /simulate-retirement-monte-carlo.
// Profile (not a bare RetirementParams) is what external callers actually
// hold, per the intake flow: "external caller submits a profile → mapped to
// parameters and validated".
type simulateRequest struct {
	Profile           engine.Profile                      `json:"profile"`
	Iterations        int                                 `json:"iterations"`
	Seed              uint32                              `json:"seed"`
	VarianceReduction simulation.VarianceReductionConfig   `json:"varianceReduction"`
	ReturnConfig      returnConfigRequest                  `json:"returnConfig"`
}

// returnConfigRequest is the wire shape of the request's returnConfig
// overrides; strictBaseline maps to engine.ReturnConfig.StrictBaseline.
type returnConfigRequest struct {
	UseFatTails              bool `json:"useFatTails"`
	DisableCrashOverlay      bool `json:"disableCrashOverlay"`
	StrictBaseline           bool `json:"strictBaseline"`
	UseAssetClassCorrelation bool `json:"useAssetClassCorrelation"`
}

func (r returnConfigRequest) toEngineConfig() engine.ReturnConfig {
	cfg := engine.DefaultReturnConfig()
	cfg.UseFatTails = r.UseFatTails
	cfg.DisableCrashOverlay = r.DisableCrashOverlay
	cfg.StrictBaseline = r.StrictBaseline
	cfg.UseAssetClassCorrelation = r.UseAssetClassCorrelation
	return cfg
}

// simulateResponse is the bit-exact response shape spec'd for
// /simulate-retirement-monte-carlo. CalculationID follows the teacher's
// convention of tagging every simulation response with a uuid (its
// simulation.SimulationResult.RunID), useful for correlating a result with
// the trial-index/seed pairs logged on a numerical anomaly.
type simulateResponse struct {
	CalculationID         string                         `json:"calculationId"`
	SuccessProbability    float64                        `json:"successProbability"`
	ProbabilityOfSuccess  float64                        `json:"probabilityOfSuccess"`
	MedianEndingBalance   float64                        `json:"medianEndingBalance"`
	ConfidenceIntervals   simulation.ConfidenceIntervals `json:"confidenceIntervals"`
	Scenarios             simulation.Scenarios           `json:"scenarios"`
	YearlyCashFlows       []engine.YearlyCashflow        `json:"yearlyCashFlows"`
	LTCAnalysis           *simulation.LTCAnalysis        `json:"ltcAnalysis,omitempty"`
	SafeWithdrawalRate    float64                        `json:"safeWithdrawalRate"`
	CalculatedAt          string                         `json:"calculatedAt"`
	CalculationTimeMillis int64                          `json:"calculationTime"`
}

// errorResponse is returned on 400 (validation), on 504 (timeout) carrying
// the timeout message, and on 500 for any other engine failure.
type errorResponse struct {
	Errors   []engine.ValidationIssue `json:"errors,omitempty"`
	Warnings []engine.ValidationIssue `json:"warnings,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

// bandsRequest is shared by /calculate-retirement-bands and
// /calculate-retirement-bands-optimization; the optimization variant only
// differs in that it runs the SS claim-age optimizer first and substitutes
// the optimal claim ages and their monthly benefits into the mapped
// parameters before simulating.
type bandsRequest struct {
	Profile    engine.Profile `json:"profile"`
	Iterations int            `json:"iterations"`
	Seed       uint32         `json:"seed"`
	Optimize   bool           `json:"-"`
}

type bandsMeta struct {
	CurrentAge    int    `json:"currentAge"`
	RetirementAge int    `json:"retirementAge"`
	LongevityAge  int    `json:"longevityAge"`
	Runs          int    `json:"runs"`
	CalculatedAt  string `json:"calculatedAt"`
}

type bandsPercentiles struct {
	P05 []float64 `json:"p05,omitempty"`
	P25 []float64 `json:"p25"`
	P50 []float64 `json:"p50"`
	P75 []float64 `json:"p75"`
	P95 []float64 `json:"p95,omitempty"`
}

type bandsResponse struct {
	CalculationID     string           `json:"calculationId"`
	Ages              []int            `json:"ages"`
	Percentiles       bandsPercentiles `json:"percentiles"`
	Meta              bandsMeta        `json:"meta"`
	Cached            bool             `json:"cached,omitempty"`
	CalculationTimeMs int64            `json:"calculationTime,omitempty"`
}

// ssOptimizationRequest is the body of POST /calculate-cumulative-ss-optimization.
type ssOptimizationRequest struct {
	Profile       engine.Profile `json:"profile"`
	DiscountRate  float64        `json:"discountRate"`
}

type ssPersonResult struct {
	OptimalAge          int     `json:"optimalAge"`
	MaxLifetimeBenefit  float64 `json:"maxLifetimeBenefit"`
	MonthlyAtOptimal    float64 `json:"monthlyAtOptimal"`
	MonthlyAtRetirement float64 `json:"monthlyAtRetirement"`
}

type ssAgeAnalysisPoint struct {
	UserAge          int     `json:"userAge"`
	SpouseAge        int     `json:"spouseAge,omitempty"`
	UserMonthly      float64 `json:"userMonthly"`
	SpouseMonthly    float64 `json:"spouseMonthly,omitempty"`
	CombinedMonthly  float64 `json:"combinedMonthly"`
	UserCumulative   float64 `json:"userCumulative"`
	SpouseCumulative float64 `json:"spouseCumulative,omitempty"`
	CombinedCumulative float64 `json:"combinedCumulative"`
}

type ssCombinedResult struct {
	OptimalUserAge     int     `json:"optimalUserAge"`
	OptimalSpouseAge    int     `json:"optimalSpouseAge,omitempty"`
	MaxLifetimeBenefit float64 `json:"maxLifetimeBenefit"`
}

type ssOptimizationResponse struct {
	User        ssPersonResult       `json:"user"`
	Spouse      *ssPersonResult      `json:"spouse,omitempty"`
	AgeAnalysis []ssAgeAnalysisPoint `json:"ageAnalysis"`
	Combined    ssCombinedResult     `json:"combined"`
}

// cashflowMapRequest is the body of POST /v2/rpc/cashflow-map. OverlayReturns,
// when non-empty, pins the trial's per-year return draws to these z-scores
// in order (see engine.OverlayRNG) instead of the seeded draws, so
// a caller can stress-test one specific hypothetical sequence of years.
type cashflowMapRequest struct {
	Profile        engine.Profile `json:"profile"`
	Seed           uint32         `json:"seed"`
	OverlayReturns []float64      `json:"overlayReturns,omitempty"`
}

type cashflowInflows struct {
	GrossIncome         float64 `json:"grossIncome"`
	PortfolioWithdrawals float64 `json:"portfolioWithdrawals"`
	SocialSecurity      float64 `json:"socialSecurity"`
}

type cashflowOutflows struct {
	Fixed          float64 `json:"fixed"`
	Discretionary  float64 `json:"discretionary"`
	Insurance      float64 `json:"insurance"`
	GoalOutflows   float64 `json:"goalOutflows"`
	TaxesTotal     float64 `json:"taxesTotal"`
}

type cashflowFlags struct {
	RothConversionSuggested bool `json:"rothConversionSuggested"`
	QCDSuggested            bool `json:"qcdSuggested"`
	DAFBunchingSuggested    bool `json:"dafBunchingSuggested"`
}

type cashflowYear struct {
	Year               int              `json:"year"`
	Inflows            cashflowInflows  `json:"inflows"`
	Outflows           cashflowOutflows `json:"outflows"`
	EffectiveTaxRate   float64          `json:"effectiveTaxRate"`
	BracketThresholds  []float64        `json:"bracketThresholds"`
	TaxableIncome      float64          `json:"taxableIncome"`
	MarginalRate       float64          `json:"marginalRate"`
	Flags              cashflowFlags    `json:"flags"`
}

type cashflowMapResponse struct {
	Years []cashflowYear `json:"years"`
}

func nowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}
