package simulation

import (
	"math"
	"testing"

	"github.com/areumfire/retirement-mc/internal/engine"
)

func trialResult(success bool, ending float64, age int, ltc bool) engine.TrialResult {
	return engine.TrialResult{
		Success:       success,
		EndingBalance: ending,
		Cashflows: []engine.YearlyCashflow{
			{Age: age, PortfolioBalance: ending},
		},
		LTCEventOccurred: ltc,
		LTCTotalCost:     map[bool]float64{true: 50000, false: 0}[ltc],
		LTCDuration:      map[bool]int{true: 2, false: 0}[ltc],
	}
}

func TestMergePartialsIsOrderIndependent(t *testing.T) {
	a := newPartialAggregate()
	a.add(trialResult(true, 100000, 85, false))
	a.add(trialResult(false, -5000, 80, true))

	b := newPartialAggregate()
	b.add(trialResult(true, 200000, 90, false))

	merged1 := mergePartials([]*partialAggregate{a, b})
	merged2 := mergePartials([]*partialAggregate{b, a})

	if merged1.successCount != merged2.successCount {
		t.Errorf("successCount differs by merge order: %d vs %d", merged1.successCount, merged2.successCount)
	}
	if merged1.failCount != merged2.failCount {
		t.Errorf("failCount differs by merge order: %d vs %d", merged1.failCount, merged2.failCount)
	}
	if len(merged1.endingBalances) != len(merged2.endingBalances) {
		t.Fatalf("endingBalances length differs: %d vs %d", len(merged1.endingBalances), len(merged2.endingBalances))
	}

	sum1, sum2 := 0.0, 0.0
	for _, v := range merged1.endingBalances {
		sum1 += v
	}
	for _, v := range merged2.endingBalances {
		sum2 += v
	}
	if sum1 != sum2 {
		t.Errorf("ending balance sums differ by merge order: %v vs %v", sum1, sum2)
	}
}

func TestMergePartialsSkipsNil(t *testing.T) {
	a := newPartialAggregate()
	a.add(trialResult(true, 100000, 85, false))
	merged := mergePartials([]*partialAggregate{a, nil})
	if merged.successCount != 1 {
		t.Errorf("nil partial should be skipped without error, got successCount=%d", merged.successCount)
	}
}

func TestPartialAggregateTracksLTCBuckets(t *testing.T) {
	p := newPartialAggregate()
	p.add(trialResult(true, 100000, 85, true))
	p.add(trialResult(false, 0, 80, true))
	p.add(trialResult(true, 150000, 90, false))

	if p.ltcTrials != 2 {
		t.Errorf("ltcTrials = %d, want 2", p.ltcTrials)
	}
	if p.ltcSuccesses != 1 {
		t.Errorf("ltcSuccesses = %d, want 1", p.ltcSuccesses)
	}
	if p.noLTCTrials != 1 {
		t.Errorf("noLTCTrials = %d, want 1", p.noLTCTrials)
	}
	if p.noLTCSuccesses != 1 {
		t.Errorf("noLTCSuccesses = %d, want 1", p.noLTCSuccesses)
	}
}

func TestBuildLTCAnalysisNilWhenNoTrials(t *testing.T) {
	p := newPartialAggregate()
	if got := buildLTCAnalysis(p); got != nil {
		t.Errorf("expected nil LTCAnalysis for an empty aggregate, got %+v", got)
	}
}

func TestBuildLTCAnalysisComputesDelta(t *testing.T) {
	p := newPartialAggregate()
	p.add(trialResult(true, 100000, 85, true))
	p.add(trialResult(false, 0, 80, true))
	p.add(trialResult(true, 150000, 90, false))
	p.add(trialResult(true, 160000, 90, false))

	analysis := buildLTCAnalysis(p)
	if analysis == nil {
		t.Fatal("expected a non-nil LTCAnalysis")
	}
	wantWith := 0.5    // 1 of 2 LTC trials succeeded
	wantWithout := 1.0 // 2 of 2 non-LTC trials succeeded
	if math.Abs(analysis.SuccessWithLTC-wantWith) > 1e-9 {
		t.Errorf("SuccessWithLTC = %v, want %v", analysis.SuccessWithLTC, wantWith)
	}
	if math.Abs(analysis.SuccessWithoutLTC-wantWithout) > 1e-9 {
		t.Errorf("SuccessWithoutLTC = %v, want %v", analysis.SuccessWithoutLTC, wantWithout)
	}
	if math.Abs(analysis.Delta-(wantWithout-wantWith)) > 1e-9 {
		t.Errorf("Delta = %v, want %v", analysis.Delta, wantWithout-wantWith)
	}
	if analysis.AverageEventCost != 50000 {
		t.Errorf("AverageEventCost = %v, want 50000", analysis.AverageEventCost)
	}
}

func TestBuildConfidenceIntervalsMonotonicPercentiles(t *testing.T) {
	balances := []float64{10000, 50000, 100000, 200000, 500000, 800000, 1200000}
	ci := buildConfidenceIntervals(balances)
	if !(ci.P10 <= ci.P25 && ci.P25 <= ci.P50 && ci.P50 <= ci.P75 && ci.P75 <= ci.P90) {
		t.Errorf("confidence interval percentiles are not monotonic: %+v", ci)
	}
}

func TestBuildPercentilesByAgeMonotonicAndSortedByAge(t *testing.T) {
	balancesByAge := map[int][]float64{
		70: {100000, 200000, 300000, 400000, 500000},
		65: {50000, 150000, 250000, 350000, 450000},
	}
	out := buildPercentilesByAge(balancesByAge)
	if len(out) != 2 {
		t.Fatalf("expected 2 age buckets, got %d", len(out))
	}
	if out[0].Age != 65 || out[1].Age != 70 {
		t.Errorf("ages should be sorted ascending, got %d then %d", out[0].Age, out[1].Age)
	}
	for _, ap := range out {
		if !(ap.P05 <= ap.P25 && ap.P25 <= ap.P50 && ap.P50 <= ap.P75 && ap.P75 <= ap.P95) {
			t.Errorf("age %d percentiles not monotonic: %+v", ap.Age, ap)
		}
	}
}

func TestBuildProbabilityOfRuinByAgeCountsFailuresAtOrBeforeAge(t *testing.T) {
	balancesByAge := map[int][]float64{70: {100}, 80: {200}}
	failureAges := []int{72, 85}
	out := buildProbabilityOfRuinByAge(balancesByAge, failureAges, 10)
	if out[70] != 0 {
		t.Errorf("age 70: no failures at or before 70, got %v", out[70])
	}
	if out[80] != 0.1 {
		t.Errorf("age 80: expected 1/10 = 0.1, got %v", out[80])
	}
}

func TestSafeWithdrawalRateUnscaledAboveHighConfidence(t *testing.T) {
	got := safeWithdrawalRate(0.04, 0.97)
	if got != 0.04 {
		t.Errorf("safeWithdrawalRate at high success probability should be unscaled: got %v", got)
	}
}

func TestSafeWithdrawalRateScalesDownWithLowerSuccess(t *testing.T) {
	got := safeWithdrawalRate(0.04, 0.80)
	want := 0.04 * (0.80 / 0.95)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("safeWithdrawalRate = %v, want %v", got, want)
	}
}

func TestSafeWithdrawalRateZeroRequestIsZero(t *testing.T) {
	if got := safeWithdrawalRate(0, 0.9); got != 0 {
		t.Errorf("zero requested rate should return zero, got %v", got)
	}
}

func TestAggregateComputesSuccessProbabilityAndMedian(t *testing.T) {
	p := newPartialAggregate()
	p.add(trialResult(true, 100000, 85, false))
	p.add(trialResult(true, 200000, 85, false))
	p.add(trialResult(false, 0, 70, false))

	result := Aggregate(p, 0.04)
	wantProb := 2.0 / 3.0
	if math.Abs(result.SuccessProbability-wantProb) > 1e-9 {
		t.Errorf("SuccessProbability = %v, want %v", result.SuccessProbability, wantProb)
	}
	if math.Abs(result.ProbabilityOfSuccess-wantProb*100) > 1e-9 {
		t.Errorf("ProbabilityOfSuccess = %v, want %v", result.ProbabilityOfSuccess, wantProb*100)
	}
	if result.Scenarios.Total != 3 {
		t.Errorf("Scenarios.Total = %d, want 3", result.Scenarios.Total)
	}
}
