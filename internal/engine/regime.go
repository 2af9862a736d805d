package engine

// regimeParams holds the fixed mean/volatility/duration characteristics of
// one Markov regime state. meanAdjust is added to the blended mean log-return
// and volMultiplier scales the base shock (see GenerateAnnualReturn);
// avgDurationYears is the expected stay implied by the transition matrix's
// diagonal, 1/(1-p_ii).
type regimeParams struct {
	meanAdjust float64
	volMultiplier float64
	avgDurationYears float64
}

var regimeTable = map[Regime]regimeParams{
	RegimeBull:    {meanAdjust: 0.05, volMultiplier: 0.85, avgDurationYears: 5},
	RegimeNormal:  {meanAdjust: 0.00, volMultiplier: 1.00, avgDurationYears: 4},
	RegimeBear:    {meanAdjust: -0.12, volMultiplier: 1.35, avgDurationYears: 2},
	RegimeCrisis:  {meanAdjust: -0.30, volMultiplier: 2.20, avgDurationYears: 1.25},
}

// regimeTransition is a 4x4 row-stochastic transition matrix (rows sum to 1
// within 1e-9) ordered Bull, Normal, Bear, Crisis. Regimes are "sticky":
// the diagonal dominates, with crisis the least persistent (crises resolve
// quickly into bear or normal markets).
var regimeTransition = [4][4]float64{
	// to:   Bull   Normal  Bear   Crisis
	/*Bull*/ {0.80, 0.17, 0.025, 0.005},
	/*Normal*/ {0.15, 0.75, 0.09, 0.01},
	/*Bear*/ {0.10, 0.35, 0.50, 0.05},
	/*Crisis*/ {0.05, 0.35, 0.40, 0.20},
}

// initialRegimeDistribution returns the probability of starting in each
// regime, tilted bearish when retirement is close and bullish when it is
// far off.
func initialRegimeDistribution(yearsToRetirement int) [4]float64 {
	if yearsToRetirement < 0 {
		yearsToRetirement = 0
	}
	// Blend between a bearish-tilted and a bullish-tilted distribution as a
	// function of horizon, saturating by 20 years out.
	t := float64(yearsToRetirement) / 20.0
	if t > 1 {
		t = 1
	}
	nearBull, nearNormal, nearBear, nearCrisis := 0.20, 0.45, 0.28, 0.07
	farBull, farNormal, farBear, farCrisis := 0.35, 0.50, 0.13, 0.02
	return [4]float64{
		nearBull + t*(farBull-nearBull),
		nearNormal + t*(farNormal-nearNormal),
		nearBear + t*(farBear-nearBear),
		nearCrisis + t*(farCrisis-nearCrisis),
	}
}

// DrawInitialRegime samples the starting regime for a trial.
func DrawInitialRegime(rng RNG, yearsToRetirement int) Regime {
	dist := initialRegimeDistribution(yearsToRetirement)
	return sampleRegime(rng, dist)
}

// NextRegime samples next year's regime given the current one.
func NextRegime(rng RNG, current Regime) Regime {
	row := regimeTransition[current]
	return sampleRegime(rng, [4]float64{row[0], row[1], row[2], row[3]})
}

func sampleRegime(rng RNG, dist [4]float64) Regime {
	u := rng.Next()
	cum := 0.0
	for i, p := range dist {
		cum += p
		if u < cum {
			return Regime(i)
		}
	}
	return RegimeNormal
}

// regimeAdjusted returns the mean/vol adjustment for a regime.
func regimeAdjusted(r Regime) regimeParams {
	if p, ok := regimeTable[r]; ok {
		return p
	}
	return regimeTable[RegimeNormal]
}
