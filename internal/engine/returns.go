package engine

import "math"

// CrashConfig holds the overlay probabilities and shock magnitudes for the
// independent black-swan/severe/moderate crash draws applied on top of the
// base return.
type CrashConfig struct {
	BlackSwanProb    float64
	SevereProb       float64
	ModerateProb     float64
	BlackSwanShock   float64
	SevereShock      float64
	ModerateShock    float64
}

// DefaultCrashConfig matches the engine's baked-in defaults.
func DefaultCrashConfig() CrashConfig {
	return CrashConfig{
		BlackSwanProb:  0.002,
		SevereProb:     0.01,
		ModerateProb:   0.03,
		BlackSwanShock: -0.40,
		SevereShock:    -0.25,
		ModerateShock:  -0.12,
	}
}

// ReturnConfig toggles fat tails, the crash overlay, asset-class correlation
// and the strict log-normal calibration baseline.
type ReturnConfig struct {
	UseFatTails              bool
	DisableCrashOverlay      bool
	StrictBaseline           bool
	UseAssetClassCorrelation bool
	Crash                    CrashConfig
	// Overlay, when non-nil, pins the first K draws of the named variate
	// kinds on the trial's returns sub-stream (see OverlayRNG) before
	// falling through to the normal RNG. Used by callers that want to
	// stress-test a specific hypothetical return path rather than a drawn
	// one.
	Overlay map[Variate][]float64
}

// DefaultReturnConfig is the normal simulation mode: crash overlay enabled,
// normal (not fat-tailed) base draws, no strict baseline.
func DefaultReturnConfig() ReturnConfig {
	return ReturnConfig{Crash: DefaultCrashConfig()}
}

// expectedReturnSentinel values a caller passes in place of a literal decimal
// override to select a different mean-return source entirely.
const (
	SentinelGlidePath       = -1.0
	SentinelCurrentAllocationMean = -2.0
)

// blendedMeanReturn resolves a user expected-return override against the
// model-based allocation-weighted mean: a positive decimal override blends
// 50/50 with the model mean; the two sentinels route to glide-path or
// current-allocation mean instead of blending.
func blendedMeanReturn(userOverride float64, modelMean, glidePathMean float64) float64 {
	switch {
	case userOverride == SentinelGlidePath:
		return glidePathMean
	case userOverride == SentinelCurrentAllocationMean:
		return modelMean
	case userOverride > 0:
		return 0.5*userOverride + 0.5*modelMean
	default:
		return modelMean
	}
}

// AllocationMean returns the allocation-weighted expected real return for an
// allocation vector against the active CMA bundle.
func AllocationMean(a Allocation, cma *CMA) float64 {
	return a.USStocks*cma.Classes[ClassUSStocks].MeanRealReturn +
		a.IntlStocks*cma.Classes[ClassIntlStocks].MeanRealReturn +
		a.Bonds*cma.Classes[ClassBonds].MeanRealReturn +
		a.Cash*cma.Classes[ClassCash].MeanRealReturn +
		a.Alternatives*cma.Classes[ClassAlternatives].MeanRealReturn
}

// AllocationVolatility returns the allocation-weighted volatility, ignoring
// cross-asset correlation (used only as a target scale for the base draw;
// correlation structure enters only through correlatedAllocationShock when
// ReturnConfig.UseAssetClassCorrelation is set).
func AllocationVolatility(a Allocation, cma *CMA) float64 {
	return a.USStocks*cma.Classes[ClassUSStocks].Volatility +
		a.IntlStocks*cma.Classes[ClassIntlStocks].Volatility +
		a.Bonds*cma.Classes[ClassBonds].Volatility +
		a.Cash*cma.Classes[ClassCash].Volatility +
		a.Alternatives*cma.Classes[ClassAlternatives].Volatility
}

// GenerateAnnualReturn produces one year's arithmetic portfolio return: blend
// the mean, draw a base shock (fat-tailed, correlation-aware, or plain
// normal), apply the regime adjustment, then overlay an independent crash
// draw.
func GenerateAnnualReturn(
	rng RNG,
	alloc Allocation,
	regime Regime,
	userExpectedReturnOverride float64,
	userVolatilityOverride float64,
	glidePathMean float64,
	cfg ReturnConfig,
) float64 {
	cma := ActiveCMA()
	modelMean := AllocationMean(alloc, cma)
	modelVol := AllocationVolatility(alloc, cma)
	if userVolatilityOverride > 0 {
		modelVol = userVolatilityOverride
	}

	mean := blendedMeanReturn(userExpectedReturnOverride, modelMean, glidePathMean)

	if cfg.StrictBaseline {
		// Pure log-normal draw, no regime or crash overlay, for calibration
		// tests (IID_LOGNORMAL_BASELINE).
		logReturn := mean + modelVol*rng.Normal()
		return math.Exp(logReturn) - 1
	}

	var base float64
	switch {
	case cfg.UseFatTails:
		raw := rng.StudentT(5)
		// Scale a unit-variance-ish t(5) draw (var = df/(df-2) = 5/3) to the
		// target volatility.
		base = raw / math.Sqrt(5.0/3.0) * modelVol
	case cfg.UseAssetClassCorrelation:
		base = correlatedAllocationShock(rng, alloc, cma) * modelVol
	default:
		base = rng.Normal() * modelVol
	}

	rp := regimeAdjusted(regime)
	logReturn := (mean + rp.meanAdjust) + base*rp.volMultiplier

	if !cfg.DisableCrashOverlay {
		logReturn += crashShock(rng, cfg.Crash)
	}

	return math.Exp(logReturn) - 1
}

// crashShock draws independent Bernoulli crash indicators and returns the
// most severe single shock that fires this year (at most one per year).
func crashShock(rng RNG, c CrashConfig) float64 {
	blackSwan := rng.Next() < c.BlackSwanProb
	severe := rng.Next() < c.SevereProb
	moderate := rng.Next() < c.ModerateProb
	switch {
	case blackSwan:
		return c.BlackSwanShock
	case severe:
		return c.SevereShock
	case moderate:
		return c.ModerateShock
	default:
		return 0
	}
}

// CorrelatedAssetShocks draws one correlated normal shock per asset class
// using the CMA's Cholesky factor, in the fixed assetClassOrder.
// correlatedAllocationShock combines them into the portfolio's base draw.
func CorrelatedAssetShocks(rng RNG, cma *CMA) map[AssetClass]float64 {
	chol := cma.Cholesky()
	n := len(chol)
	independent := make([]float64, n)
	for i := range independent {
		independent[i] = rng.Normal()
	}
	out := make(map[AssetClass]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j <= i; j++ {
			sum += chol[i][j] * independent[j]
		}
		if i < len(assetClassOrder) {
			out[assetClassOrder[i]] = sum
		}
	}
	return out
}

// correlatedAllocationShock combines CorrelatedAssetShocks into a single
// allocation-weighted standard-normal shock, so the base draw's implied
// volatility reflects the CMA correlation matrix instead of treating every
// asset class as independent. The raw weighted sum is rescaled to unit
// variance using the same weights against the correlation matrix, so it can
// still be multiplied by modelVol the way the uncorrelated Normal() draw is.
func correlatedAllocationShock(rng RNG, alloc Allocation, cma *CMA) float64 {
	shocks := CorrelatedAssetShocks(rng, cma)
	weights := [...]float64{alloc.USStocks, alloc.IntlStocks, alloc.Bonds, alloc.Cash, alloc.Alternatives}

	raw := 0.0
	for i, cls := range assetClassOrder {
		raw += weights[i] * shocks[cls]
	}

	variance := 0.0
	for i := range assetClassOrder {
		for j := range assetClassOrder {
			variance += weights[i] * weights[j] * cma.Correlation[i][j]
		}
	}
	if variance <= 0 {
		return raw
	}
	return raw / math.Sqrt(variance)
}
