package engine

import "gonum.org/v1/gonum/mat"

// AssetClass indexes the return generator's correlated-shock vector. Order is
// fixed and must never be iterated from a map in the stochastic pipeline —
// changing it changes every downstream seed's reproducibility.
type AssetClass int

const (
	ClassUSStocks AssetClass = iota
	ClassIntlStocks
	ClassBonds
	ClassCash
	ClassAlternatives
	classCount
)

var assetClassOrder = [...]AssetClass{
	ClassUSStocks, ClassIntlStocks, ClassBonds, ClassCash, ClassAlternatives,
}

// AssetClassStats holds a capital market assumption for one asset class.
type AssetClassStats struct {
	MeanRealReturn float64
	Volatility     float64
}

// CMA is a versioned, read-only bundle of expected returns, volatilities and
// a correlation matrix, selected once at process start and never mutated
// mid-simulation.
type CMA struct {
	Version     string
	Classes     map[AssetClass]AssetClassStats
	Correlation [][]float64 // order: assetClassOrder
	InflationMean float64
	InflationVol  float64
	cholesky    [][]float64
}

// DefaultCMA is the baked-in fallback bundle used when no versioned bundle is
// configured. Means/volatilities are representative long-run real-return
// assumptions, grounded on the teacher's GetDefaultStochasticConfig.
func DefaultCMA() *CMA {
	c := &CMA{
		Version: "2025-US",
		Classes: map[AssetClass]AssetClassStats{
			ClassUSStocks:     {MeanRealReturn: 0.07, Volatility: 0.16},
			ClassIntlStocks:   {MeanRealReturn: 0.06, Volatility: 0.20},
			ClassBonds:        {MeanRealReturn: 0.03, Volatility: 0.05},
			ClassCash:         {MeanRealReturn: 0.005, Volatility: 0.01},
			ClassAlternatives: {MeanRealReturn: 0.08, Volatility: 0.25},
		},
		// SPY, Intl, Bond, Cash, Alt
		Correlation: [][]float64{
			{1.00, 0.85, -0.20, 0.00, 0.70},
			{0.85, 1.00, -0.15, 0.00, 0.65},
			{-0.20, -0.15, 1.00, 0.05, -0.10},
			{0.00, 0.00, 0.05, 1.00, 0.00},
			{0.70, 0.65, -0.10, 0.00, 1.00},
		},
		InflationMean: 0.025,
		InflationVol:  0.015,
	}
	c.cholesky = cholesky(c.Correlation)
	return c
}

// Cholesky returns the lower-triangular Cholesky factor of the correlation
// matrix, used to generate correlated shocks across asset classes.
func (c *CMA) Cholesky() [][]float64 { return c.cholesky }

// cholesky factors a symmetric positive-definite matrix via gonum/mat,
// returning the lower-triangular factor as a plain [][]float64 so call sites
// don't need to carry a gonum type through the RNG-facing API.
func cholesky(corr [][]float64) [][]float64 {
	n := len(corr)
	flat := make([]float64, 0, n*n)
	for _, row := range corr {
		flat = append(flat, row...)
	}
	sym := mat.NewSymDense(n, flat)
	var chol mat.Cholesky
	ok := chol.Factorize(sym)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	if !ok {
		// Non-PD input (shouldn't happen for the baked-in matrices, but a
		// custom CMA bundle could supply one) - fall back to identity so the
		// generator degrades to uncorrelated shocks rather than panicking.
		for i := 0; i < n; i++ {
			out[i][i] = 1
		}
		return out
	}
	var lower mat.TriDense
	lower.LFromCholesky(&chol)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out[i][j] = lower.At(i, j)
		}
	}
	return out
}

// activeCMA is the process-wide selected bundle, set once via SetActiveCMA
// at startup and read thereafter. Never mutated during a simulation run.
var activeCMA = DefaultCMA()

// SetActiveCMA installs the process-wide capital market assumption bundle.
// Intended to be called once at process start (see EngineConfig); calling it
// mid-simulation violates the no-mutation-after-construction rule and is the
// caller's responsibility to avoid.
func SetActiveCMA(c *CMA) {
	if c == nil {
		return
	}
	activeCMA = c
}

// ActiveCMA returns the process-wide capital market assumption bundle.
func ActiveCMA() *CMA { return activeCMA }
