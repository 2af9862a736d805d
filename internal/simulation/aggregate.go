package simulation

import (
	"sort"

	"github.com/areumfire/retirement-mc/internal/engine"
	"gonum.org/v1/gonum/stat"
)

// partialAggregate accumulates one worker's (or the single sequential
// run's) trial outcomes. Merging partials is concatenation of ending
// balances and elementwise addition of per-age balance histograms, which is
// order-independent regardless of how many partials the batch was split into.
type partialAggregate struct {
	endingBalances []float64
	successCount   int
	failCount      int
	nonFiniteCount int
	balancesByAge  map[int][]float64
	failureAges    []int // age at which a failed trial went to ruin
	ltcCosts       []float64
	ltcDurations   []int
	ltcTrials      int // trials in which an LTC event occurred
	ltcSuccesses   int // of those, how many still succeeded
	noLTCTrials    int
	noLTCSuccesses int
	medianPath     []engine.YearlyCashflow // cashflows of one representative trial, for the response body
}

func newPartialAggregate() *partialAggregate {
	return &partialAggregate{balancesByAge: map[int][]float64{}}
}

func (p *partialAggregate) add(tr engine.TrialResult) {
	p.endingBalances = append(p.endingBalances, tr.EndingBalance)
	if tr.NonFinite {
		p.nonFiniteCount++
	}
	if tr.Success {
		p.successCount++
	} else {
		p.failCount++
		if len(tr.Cashflows) > 0 {
			p.failureAges = append(p.failureAges, tr.Cashflows[len(tr.Cashflows)-1].Age)
		}
	}
	for _, cf := range tr.Cashflows {
		p.balancesByAge[cf.Age] = append(p.balancesByAge[cf.Age], cf.PortfolioBalance)
	}
	if tr.LTCEventOccurred {
		p.ltcCosts = append(p.ltcCosts, tr.LTCTotalCost)
		p.ltcDurations = append(p.ltcDurations, tr.LTCDuration)
		p.ltcTrials++
		if tr.Success {
			p.ltcSuccesses++
		}
	} else {
		p.noLTCTrials++
		if tr.Success {
			p.noLTCSuccesses++
		}
	}
	if p.medianPath == nil && len(tr.Cashflows) > 0 {
		p.medianPath = tr.Cashflows
	}
}

// mergePartials combines worker partials in a fixed order (by slice index,
// i.e. worker index), never by completion order, so results are
// bit-reproducible regardless of goroutine scheduling.
func mergePartials(parts []*partialAggregate) *partialAggregate {
	merged := newPartialAggregate()
	for _, p := range parts {
		if p == nil {
			continue
		}
		merged.endingBalances = append(merged.endingBalances, p.endingBalances...)
		merged.successCount += p.successCount
		merged.failCount += p.failCount
		merged.nonFiniteCount += p.nonFiniteCount
		merged.failureAges = append(merged.failureAges, p.failureAges...)
		merged.ltcCosts = append(merged.ltcCosts, p.ltcCosts...)
		merged.ltcDurations = append(merged.ltcDurations, p.ltcDurations...)
		merged.ltcTrials += p.ltcTrials
		merged.ltcSuccesses += p.ltcSuccesses
		merged.noLTCTrials += p.noLTCTrials
		merged.noLTCSuccesses += p.noLTCSuccesses
		for age, bals := range p.balancesByAge {
			merged.balancesByAge[age] = append(merged.balancesByAge[age], bals...)
		}
		if merged.medianPath == nil {
			merged.medianPath = p.medianPath
		}
	}
	return merged
}

// quantileSorted returns the q-th quantile (0..1) of a sorted slice using
// gonum's empirical quantile estimator.
func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

func buildConfidenceIntervals(endingBalances []float64) ConfidenceIntervals {
	sorted := append([]float64(nil), endingBalances...)
	sort.Float64s(sorted)
	return ConfidenceIntervals{
		P10: quantileSorted(sorted, 0.10),
		P25: quantileSorted(sorted, 0.25),
		P50: quantileSorted(sorted, 0.50),
		P75: quantileSorted(sorted, 0.75),
		P90: quantileSorted(sorted, 0.90),
	}
}

func buildPercentilesByAge(balancesByAge map[int][]float64) []AgePercentiles {
	ages := make([]int, 0, len(balancesByAge))
	for age := range balancesByAge {
		ages = append(ages, age)
	}
	sort.Ints(ages)

	out := make([]AgePercentiles, 0, len(ages))
	for _, age := range ages {
		sorted := append([]float64(nil), balancesByAge[age]...)
		sort.Float64s(sorted)
		out = append(out, AgePercentiles{
			Age: age,
			P05: quantileSorted(sorted, 0.05),
			P25: quantileSorted(sorted, 0.25),
			P50: quantileSorted(sorted, 0.50),
			P75: quantileSorted(sorted, 0.75),
			P95: quantileSorted(sorted, 0.95),
		})
	}
	return out
}

func buildProbabilityOfRuinByAge(balancesByAge map[int][]float64, failureAges []int, total int) map[int]float64 {
	out := map[int]float64{}
	if total == 0 {
		return out
	}
	for age := range balancesByAge {
		ruined := 0
		for _, fa := range failureAges {
			if fa <= age {
				ruined++
			}
		}
		out[age] = float64(ruined) / float64(total)
	}
	return out
}

func buildLTCAnalysis(p *partialAggregate) *LTCAnalysis {
	if p.ltcTrials == 0 && p.noLTCTrials == 0 {
		return nil
	}

	var withRate, withoutRate float64
	if p.ltcTrials > 0 {
		withRate = float64(p.ltcSuccesses) / float64(p.ltcTrials)
	}
	if p.noLTCTrials > 0 {
		withoutRate = float64(p.noLTCSuccesses) / float64(p.noLTCTrials)
	}

	avgCost, avgDuration := 0.0, 0.0
	if len(p.ltcCosts) > 0 {
		sumCost, sumDur := 0.0, 0
		for i, c := range p.ltcCosts {
			sumCost += c
			sumDur += p.ltcDurations[i]
		}
		avgCost = sumCost / float64(len(p.ltcCosts))
		avgDuration = float64(sumDur) / float64(len(p.ltcDurations))
	}

	return &LTCAnalysis{
		SuccessWithLTC:    withRate,
		SuccessWithoutLTC: withoutRate,
		Delta:             withoutRate - withRate,
		AverageEventCost:  avgCost,
		AverageDuration:   avgDuration,
	}
}

// safeWithdrawalRate estimates a first-year withdrawal rate, as a fraction
// of the starting portfolio, from the requested WithdrawalRate and the
// observed success probability: the requested rate is returned unchanged at
// 95% success or above, and scaled by successProbability/0.95 below that. No
// trials are re-run: this is a convenience figure for the response body, not
// an input to any other component.
func safeWithdrawalRate(requested float64, successProbability float64) float64 {
	if requested <= 0 {
		return 0
	}
	if successProbability >= 0.95 {
		return requested
	}
	scaled := requested * (successProbability / 0.95)
	if scaled < 0 {
		return 0
	}
	return scaled
}

// Aggregate turns one run's accumulated trial outcomes into the response
// shape the API layer serializes.
func Aggregate(p *partialAggregate, requestedWithdrawalRate float64) AggregateResult {
	total := p.successCount + p.failCount
	successProb := 0.0
	if total > 0 {
		successProb = float64(p.successCount) / float64(total)
	}

	sortedBalances := append([]float64(nil), p.endingBalances...)
	sort.Float64s(sortedBalances)
	median := quantileSorted(sortedBalances, 0.50)

	return AggregateResult{
		SuccessProbability:    successProb,
		ProbabilityOfSuccess:  successProb * 100,
		MedianEndingBalance:   median,
		ConfidenceIntervals:   buildConfidenceIntervals(p.endingBalances),
		Scenarios:             Scenarios{Successful: p.successCount, Failed: p.failCount, Total: total},
		YearlyCashFlows:       p.medianPath,
		PercentilesByAge:      buildPercentilesByAge(p.balancesByAge),
		ProbabilityOfRuinByAge: buildProbabilityOfRuinByAge(p.balancesByAge, p.failureAges, total),
		LTCAnalysis:           buildLTCAnalysis(p),
		SafeWithdrawalRate:    safeWithdrawalRate(requestedWithdrawalRate, successProb),
		NonFiniteTrials:       p.nonFiniteCount,
	}
}
