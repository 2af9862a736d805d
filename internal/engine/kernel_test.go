package engine

import "testing"

func sampleTrialParams() RetirementParams {
	return RetirementParams{
		CurrentAge:               60,
		RetirementAge:            65,
		LifeExpectancy:           85,
		CurrentRetirementAssets:  500000,
		AnnualSavings:            20000,
		AnnualRetirementExpenses: 50000,
		ExpectedReturn:           0.06,
		InflationRate:            0.025,
		Allocation: Allocation{
			USStocks: 0.5, IntlStocks: 0.1, Bonds: 0.3, Cash: 0.1,
		},
		WithdrawalRate: 0.04,
		TaxRate:        0.22,
		FilingStatus:   FilingSingle,
		RetirementState: "CA",
		Buckets: map[Owner]AssetBuckets{
			OwnerJoint: {
				TaxDeferred:     300000,
				TaxFree:         50000,
				CapitalGains:    100000,
				CashEquivalents: 50000,
			},
		},
		SSMonthly:  map[Owner]float64{OwnerUser: 2000},
		SSClaimAge: map[Owner]int{OwnerUser: 67},
		RMDAge:     73,
	}
}

func TestRunTrialProducesCashflowThroughHorizon(t *testing.T) {
	params := sampleTrialParams()
	rng := NewSeededRNG(123)
	result := RunTrial(params, rng, DefaultReturnConfig())

	if len(result.Cashflows) == 0 {
		t.Fatal("expected at least one yearly cashflow")
	}
	lastAge := result.Cashflows[len(result.Cashflows)-1].Age
	if lastAge < params.RetirementAge {
		t.Errorf("trial ended before retirement age: last age %d", lastAge)
	}
}

func TestRunTrialDeterministicGivenSameSeed(t *testing.T) {
	params := sampleTrialParams()
	r1 := NewSeededRNG(555)
	r2 := NewSeededRNG(555)
	res1 := RunTrial(params, r1, DefaultReturnConfig())
	res2 := RunTrial(params, r2, DefaultReturnConfig())

	if res1.EndingBalance != res2.EndingBalance {
		t.Errorf("same seed should produce identical ending balances: %v vs %v", res1.EndingBalance, res2.EndingBalance)
	}
	if len(res1.Cashflows) != len(res2.Cashflows) {
		t.Fatalf("same seed should produce the same number of cashflow years: %d vs %d", len(res1.Cashflows), len(res2.Cashflows))
	}
	for i := range res1.Cashflows {
		if res1.Cashflows[i] != res2.Cashflows[i] {
			t.Fatalf("cashflow year %d differs between identical-seed runs", i)
		}
	}
}

func TestRunTrialYearsToRetirementStayInAccumulatePhase(t *testing.T) {
	params := sampleTrialParams()
	rng := NewSeededRNG(7)
	result := RunTrial(params, rng, DefaultReturnConfig())
	for _, cf := range result.Cashflows {
		if cf.Age < params.RetirementAge && cf.Withdrawal != 0 {
			t.Errorf("age %d (pre-retirement) should have zero withdrawal, got %v", cf.Age, cf.Withdrawal)
		}
	}
}

func TestRunTrialSuccessReflectsNonNegativeEndingBalance(t *testing.T) {
	params := sampleTrialParams()
	rng := NewSeededRNG(321)
	result := RunTrial(params, rng, DefaultReturnConfig())
	if result.Success != (result.EndingBalance >= 0) {
		t.Errorf("Success flag (%v) inconsistent with EndingBalance (%v)", result.Success, result.EndingBalance)
	}
}

func TestTotalBucketsSumsAcrossOwners(t *testing.T) {
	buckets := map[Owner]AssetBuckets{
		OwnerUser:   {TaxDeferred: 100, TaxFree: 50},
		OwnerSpouse: {CashEquivalents: 25},
	}
	if got := totalBuckets(buckets); got != 175 {
		t.Errorf("totalBuckets = %v, want 175", got)
	}
}

func TestAllocationForFallsBackToHouseholdAllocation(t *testing.T) {
	params := RetirementParams{
		Allocation:      Allocation{USStocks: 0.5, Bonds: 0.5},
		OwnerAllocation: map[Owner]Allocation{},
	}
	got := allocationFor(params, OwnerUser)
	if got != params.Allocation {
		t.Errorf("expected fallback to household allocation, got %+v", got)
	}
}

func TestAllocationForUsesOwnerSpecificAllocationWhenPresent(t *testing.T) {
	ownerAlloc := Allocation{Bonds: 1.0}
	params := RetirementParams{
		Allocation:      Allocation{USStocks: 1.0},
		OwnerAllocation: map[Owner]Allocation{OwnerUser: ownerAlloc},
	}
	got := allocationFor(params, OwnerUser)
	if got != ownerAlloc {
		t.Errorf("expected owner-specific allocation, got %+v", got)
	}
}

func TestRunAccumulateYearRecordsWageMAGI(t *testing.T) {
	params := sampleTrialParams()
	params.AnnualWageIncome = 120000
	params.PartTimeIncome = 5000
	ts := &trialState{buckets: cloneBuckets(params.Buckets), magiHistory: make([]float64, 0, magiHistoryDepth)}
	rng := NewSeededRNG(1)

	runAccumulateYear(params, ts, rng, DefaultReturnConfig(), 0, params.CurrentAge)

	if len(ts.magiHistory) != 1 {
		t.Fatalf("expected one MAGI entry after an accumulation year, got %d", len(ts.magiHistory))
	}
	want := params.AnnualWageIncome + params.PartTimeIncome
	if ts.magiHistory[0] != want {
		t.Errorf("magiHistory[0] = %v, want %v (wage + part-time income)", ts.magiHistory[0], want)
	}
}

func TestRunAccumulateYearTaxesWageIncomeNotPartTimeIncome(t *testing.T) {
	params := sampleTrialParams()
	params.AnnualWageIncome = 150000
	params.PartTimeIncome = 0
	ts := &trialState{buckets: cloneBuckets(params.Buckets), magiHistory: make([]float64, 0, magiHistoryDepth)}
	rng := NewSeededRNG(1)

	cf := runAccumulateYear(params, ts, rng, DefaultReturnConfig(), 0, params.CurrentAge)

	ssFICA, medFICA, addlFICA := CalculateFICATaxes(params.AnnualWageIncome, params.FilingStatus)
	want := ssFICA + medFICA + addlFICA
	if cf.FederalTax != want {
		t.Errorf("FederalTax (FICA) = %v, want %v computed from AnnualWageIncome", cf.FederalTax, want)
	}
}

func TestRunDistributeYearAppliesRothConversionWhenEnabled(t *testing.T) {
	params := sampleTrialParams()
	params.RothConversionsEnabled = true
	params.Buckets = map[Owner]AssetBuckets{
		OwnerJoint: {TaxDeferred: 1000000, TaxFree: 0, CapitalGains: 0, CashEquivalents: 200000},
	}
	ts := &trialState{
		buckets:        cloneBuckets(params.Buckets),
		magiHistory:    make([]float64, 0, magiHistoryDepth),
		colaIndex:      1.0,
		inflationIndex: 1.0,
	}
	rng := NewSeededRNG(1)

	cf := runDistributeYear(params, ts, rng, DefaultReturnConfig(), 0, params.RetirementAge, params.RetirementAge)

	if cf.AdjustmentType != "roth-conversion" {
		t.Fatalf("expected a roth-conversion adjustment, got type=%q reason=%q", cf.AdjustmentType, cf.AdjustmentReason)
	}
	if ts.buckets[OwnerJoint].TaxFree <= 0 {
		t.Errorf("expected some balance converted into TaxFree, got %+v", ts.buckets[OwnerJoint])
	}
}

func TestRunDistributeYearSkipsRothConversionWhenDisabled(t *testing.T) {
	params := sampleTrialParams()
	params.RothConversionsEnabled = false
	params.Buckets = map[Owner]AssetBuckets{
		OwnerJoint: {TaxDeferred: 1000000, CashEquivalents: 200000},
	}
	ts := &trialState{
		buckets:        cloneBuckets(params.Buckets),
		magiHistory:    make([]float64, 0, magiHistoryDepth),
		colaIndex:      1.0,
		inflationIndex: 1.0,
	}
	rng := NewSeededRNG(1)

	runDistributeYear(params, ts, rng, DefaultReturnConfig(), 0, params.RetirementAge, params.RetirementAge)

	if ts.buckets[OwnerJoint].TaxFree != 0 {
		t.Errorf("expected no Roth conversion with RothConversionsEnabled=false, TaxFree = %v", ts.buckets[OwnerJoint].TaxFree)
	}
}

func TestGrowBucketsAppliesAssetSpecificRates(t *testing.T) {
	buckets := map[Owner]AssetBuckets{
		OwnerJoint: {
			TaxDeferred:            1000,
			TaxFree:                1000,
			CapitalGains:           1000,
			CashEquivalents:        1000,
			CashValueLifeInsurance: 1000,
		},
	}
	growBuckets(buckets, 0.10)
	b := buckets[OwnerJoint]
	if b.TaxDeferred != 1100 || b.TaxFree != 1100 || b.CapitalGains != 1100 {
		t.Errorf("market-rate buckets should grow at 10%%, got %+v", b)
	}
	wantCash := 1000 * (1 + savingsExpectedReturn)
	if b.CashEquivalents != wantCash {
		t.Errorf("CashEquivalents = %v, want %v (savingsExpectedReturn, not the 10%% market return)", b.CashEquivalents, wantCash)
	}
	wantCVLI := 1000 * (1 + cashValueLifeInsuranceExpectedReturn)
	if b.CashValueLifeInsurance != wantCVLI {
		t.Errorf("CashValueLifeInsurance = %v, want %v (cashValueLifeInsuranceExpectedReturn)", b.CashValueLifeInsurance, wantCVLI)
	}
}

func TestRunTrialOverlayPinsReturnDraws(t *testing.T) {
	params := sampleTrialParams()
	cfgPlain := DefaultReturnConfig()
	cfgOverlay := DefaultReturnConfig()
	cfgOverlay.Overlay = map[Variate][]float64{VariateNormal: {-3, -3, -3, -3, -3}}

	r1 := NewSeededRNG(1234)
	plain := RunTrial(params, r1, cfgPlain)

	r2 := NewSeededRNG(1234)
	overlaid := RunTrial(params, r2, cfgOverlay)

	if len(plain.Cashflows) == 0 || len(overlaid.Cashflows) == 0 {
		t.Fatal("expected cashflows from both runs")
	}
	if plain.Cashflows[0].PortfolioBalance == overlaid.Cashflows[0].PortfolioBalance {
		t.Error("pinning the return draw to a deep negative z-score should change the first year's portfolio balance")
	}
}

func TestMagiHistoryCarriesWageMAGIAcrossRetirementBoundary(t *testing.T) {
	params := sampleTrialParams()
	params.CurrentAge = 63
	params.RetirementAge = 65
	params.AnnualWageIncome = 250000
	params.Buckets = map[Owner]AssetBuckets{
		OwnerJoint: {TaxDeferred: 500000, CashEquivalents: 100000},
	}
	ts := &trialState{buckets: cloneBuckets(params.Buckets), magiHistory: make([]float64, 0, magiHistoryDepth), colaIndex: 1.0, inflationIndex: 1.0}
	rng := NewSeededRNG(1)

	runAccumulateYear(params, ts, rng, DefaultReturnConfig(), 0, 63) // pre-retirement wage year
	runAccumulateYear(params, ts, rng, DefaultReturnConfig(), 1, 64) // pre-retirement wage year
	runDistributeYear(params, ts, rng, DefaultReturnConfig(), 2, 65, 65)

	lookback := magiTwoYearsAgo(ts.magiHistory)
	wantWageMAGI := params.AnnualWageIncome + params.PartTimeIncome
	if lookback != wantWageMAGI {
		t.Errorf("first Medicare year's MAGI lookback = %v, want %v (the pre-retirement wage MAGI from two years prior)", lookback, wantWageMAGI)
	}
}
