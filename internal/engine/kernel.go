package engine

import (
	"fmt"
	"math"
)

// KernelPhase is the scenario kernel's explicit state: model the per-trial
// lifecycle as a state machine rather than implicit branches, so each
// transition is a single testable point.
type KernelPhase int

const (
	PhaseAccumulate KernelPhase = iota
	PhaseDistribute
	PhaseTerminated
)

// magiHistoryDepth is how many years of MAGI the ring buffer retains: the
// current year plus the two before it, which is exactly what the 2-year
// IRMAA lookback in magiTwoYearsAgo reads.
const magiHistoryDepth = 3

// trialState is one trial's mutable state. It is exclusively owned by the
// goroutine/call running the trial; no other trial ever reads or writes it.
type trialState struct {
	phase         KernelPhase
	buckets       map[Owner]AssetBuckets
	regime        Regime
	magiHistory   []float64
	colaIndex     float64
	inflationIndex float64
	userEOL       int
	spouseEOL     int
	ltcUser       LTCEventDraw
	ltcSpouse     LTCEventDraw
	ltcUserState  LTCEventState
	ltcSpouseState LTCEventState
	initialWithdrawalRate float64
	priorWithdrawal       float64
	priorReturnNegative   bool
}

// RunTrial executes one complete scenario: accumulation through end-of-life,
// emitting one YearlyCashflow per simulated year, through the
// ACCUMULATE -> TRANSITION -> DISTRIBUTE -> END state machine.
func RunTrial(params RetirementParams, rng RNG, returnCfg ReturnConfig) TrialResult {
	mortalityRNG := deriveChild(rng, "mortality")
	ltcRNG := deriveChild(rng, "ltc")
	returnRNG := deriveChild(rng, "returns")
	regimeRNG := deriveChild(rng, "regime")

	var returnStream RNG = returnRNG
	if returnCfg.Overlay != nil {
		returnStream = NewOverlayRNG(returnRNG, returnCfg.Overlay)
	}

	ts := &trialState{
		buckets:        cloneBuckets(params.Buckets),
		magiHistory:    make([]float64, 0, magiHistoryDepth),
		colaIndex:      1.0,
		inflationIndex: 1.0,
		phase:          PhaseAccumulate,
	}

	healthAdj := healthAdjustmentYears(params.Health)
	if params.HasSpouse {
		spouseHealthAdj := healthAdjustmentYears(params.SpouseHealth)
		ts.userEOL, ts.spouseEOL = GenerateCouplesStochasticLifeExpectancy(
			mortalityRNG, params.LifeExpectancy, params.SpouseLifeExpectancy,
			params.CurrentAge, params.SpouseCurrentAge, healthAdj, spouseHealthAdj, 0.4,
		)
	} else {
		ts.userEOL = GenerateStochasticLifeExpectancy(mortalityRNG, params.LifeExpectancy, params.CurrentAge, healthAdj)
	}

	ts.ltcUser = DrawLTCEvent(ltcRNG, params.CurrentAge, ts.userEOL, params.Health)
	if params.HasSpouse {
		ts.ltcSpouse = DrawLTCEvent(DeriveRNG(ltcRNG, "spouse", 0), params.SpouseCurrentAge, ts.spouseEOL, params.SpouseHealth)
	}

	horizonAge := ts.userEOL
	if params.HasSpouse && ts.spouseEOL > horizonAge {
		horizonAge = ts.spouseEOL
	}

	yearsToRetirement := params.RetirementAge - params.CurrentAge
	ts.regime = DrawInitialRegime(regimeRNG, yearsToRetirement)

	var cashflows []YearlyCashflow
	nonFinite := false

	for year := 0; ; year++ {
		age := params.CurrentAge + year
		spouseAge := params.SpouseCurrentAge + year

		if age > horizonAge {
			break
		}
		if params.HasSpouse {
			maxAge := age
			if spouseAge > maxAge {
				maxAge = spouseAge
			}
			if maxAge > ts.userEOL && (!params.HasSpouse || maxAge > ts.spouseEOL) {
				break
			}
		} else if age > ts.userEOL {
			break
		}

		if year > 0 {
			ts.regime = NextRegime(regimeRNG, ts.regime)
		}

		var cf YearlyCashflow
		if age < params.RetirementAge {
			ts.phase = PhaseAccumulate
			cf = runAccumulateYear(params, ts, returnStream, returnCfg, year, age)
		} else {
			if ts.phase == PhaseAccumulate {
				ts.phase = PhaseDistribute
				ts.initialWithdrawalRate = params.WithdrawalRate
			}
			cf = runDistributeYear(params, ts, returnStream, returnCfg, year, age, spouseAge)
		}

		if !finiteCashflow(cf) {
			nonFinite = true
		}
		cashflows = append(cashflows, cf)

		if totalBuckets(ts.buckets) < 0 {
			ts.phase = PhaseTerminated
			return TrialResult{
				Success:          false,
				EndingBalance:    totalBuckets(ts.buckets),
				Cashflows:        cashflows,
				LTCEventOccurred: ts.ltcUser.Occurs || ts.ltcSpouse.Occurs,
				LTCTotalCost:     ltcTotalCost(cashflows),
				LTCDuration:      ts.ltcUser.DurationYears + ts.ltcSpouse.DurationYears,
				NonFinite:        nonFinite,
			}
		}
	}

	ts.phase = PhaseTerminated
	return TrialResult{
		Success:          totalBuckets(ts.buckets) >= 0,
		EndingBalance:    totalBuckets(ts.buckets),
		Cashflows:        cashflows,
		LTCEventOccurred: ts.ltcUser.Occurs || ts.ltcSpouse.Occurs,
		LTCTotalCost:     ltcTotalCost(cashflows),
		LTCDuration:      ts.ltcUser.DurationYears + ts.ltcSpouse.DurationYears,
		NonFinite:        nonFinite,
	}
}

func totalBuckets(buckets map[Owner]AssetBuckets) float64 {
	total := 0.0
	for _, b := range buckets {
		total += b.Total()
	}
	return total
}

func ltcTotalCost(cashflows []YearlyCashflow) float64 {
	total := 0.0
	for _, cf := range cashflows {
		total += cf.LTCCost
	}
	return total
}

func finiteCashflow(cf YearlyCashflow) bool {
	vals := []float64{cf.PortfolioBalance, cf.Withdrawal, cf.NetCashFlow, cf.FederalTax, cf.StateTax}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// runAccumulateYear applies contributions, wage taxes, and portfolio growth
// for one pre-retirement year.
func runAccumulateYear(params RetirementParams, ts *trialState, returnRNG RNG, returnCfg ReturnConfig, year, age int) YearlyCashflow {
	ret := GenerateAnnualReturn(returnRNG, allocationFor(params, OwnerJoint), ts.regime, params.ExpectedReturn, 0, AllocationMean(params.Allocation, ActiveCMA()), returnCfg)
	ts.priorReturnNegative = ret < 0

	growBuckets(ts.buckets, ret)

	contributions := params.AnnualSavings
	addContribution(ts.buckets, contributions)

	ssFICA, medFICA, addlFICA := CalculateFICATaxes(params.AnnualWageIncome, params.FilingStatus)
	seSS, seMed, seAddl := CalculateSelfEmploymentTax(params.PartTimeIncome, params.FilingStatus)
	fica := ssFICA + medFICA + addlFICA + seSS + seMed + seAddl

	wageMAGI := params.AnnualWageIncome + params.PartTimeIncome
	pushMAGI(ts, wageMAGI)

	return YearlyCashflow{
		Year:             year,
		Age:              age,
		PortfolioBalance: totalBuckets(ts.buckets),
		Contributions:    contributions,
		Regime:           ts.regime.String(),
		FederalTax:       fica,
	}
}

// runDistributeYear computes guaranteed income, net withdrawal need, runs
// the withdrawal sequencer and tax engine, applies LTC costs, and grows the
// portfolio for one retirement year.
func runDistributeYear(params RetirementParams, ts *trialState, returnRNG RNG, returnCfg ReturnConfig, year, age, spouseAge int) YearlyCashflow {
	ts.inflationIndex *= 1 + params.InflationRate
	ts.colaIndex *= 1 + params.InflationRate

	guaranteedIncome := guaranteedIncomeForYear(params, ts, age, spouseAge)

	healthcare := params.AnnualHealthcareCosts * ts.inflationIndex
	ltcCost := ltcCostForYear(params, ts, age, spouseAge)

	baseExpenses := params.AnnualRetirementExpenses * ts.inflationIndex
	expenses := baseExpenses

	if params.UseGuardrails && ts.priorWithdrawal > 0 {
		currentRate := ts.priorWithdrawal / math.Max(totalBuckets(ts.buckets), 1)
		mult, skipInflation, _, _ := GuardrailAdjustment(GuardrailState{
			InitialWithdrawalRate:   ts.initialWithdrawalRate,
			PriorYearReturnNegative: ts.priorReturnNegative,
		}, currentRate)
		if skipInflation {
			expenses = baseExpenses / (1 + params.InflationRate)
		}
		expenses *= mult
	}

	netNeed := expenses + healthcare + ltcCost - guaranteedIncome
	var adjType, adjReason string
	if params.UseGuardrails && ts.priorWithdrawal > 0 {
		currentRate := ts.priorWithdrawal / math.Max(totalBuckets(ts.buckets), 1)
		_, _, adjType, adjReason = GuardrailAdjustment(GuardrailState{
			InitialWithdrawalRate:   ts.initialWithdrawalRate,
			PriorYearReturnNegative: ts.priorReturnNegative,
		}, currentRate)
	}

	var plan *WithdrawalPlan
	if netNeed > 0 {
		plan, ts.buckets = SequenceWithdrawal(ts.buckets, netNeed, age, params.RMDAge)
	} else {
		plan = &WithdrawalPlan{}
	}
	ts.priorWithdrawal = plan.Total()

	taxableOrdinary := plan.TaxDeferredWithdrawn + params.PartTimeIncome + params.AnnualPension

	var conversionAmount, topOfBracket float64
	if params.RothConversionsEnabled {
		totalTaxDeferred := 0.0
		for _, b := range ts.buckets {
			totalTaxDeferred += b.TaxDeferred
		}
		topOfBracket = topOfCurrentBracket(taxableOrdinary, params.FilingStatus, currentCalendarYear()+year, params.InflationRate)
		conversionAmount = RothConversionAmount(totalTaxDeferred, taxableOrdinary, topOfBracket, true)
		if conversionAmount > 0 {
			applyRothConversion(ts.buckets, conversionAmount)
			taxableOrdinary += conversionAmount
			if adjType == "" {
				adjType = "roth-conversion"
				adjReason = fmt.Sprintf("converted %.0f of tax-deferred balance to Roth, filling the bracket up to %.0f", conversionAmount, topOfBracket)
			}
		}
	}

	ssBenefitsThisYear := ssIncomeForYear(params, ts, age, spouseAge)
	taxableSS := CalculateTaxableSocialSecurity(taxableOrdinary, ssBenefitsThisYear, params.FilingStatus)

	taxableIncome := taxableOrdinary + taxableSS
	deduction := StandardDeduction(params.FilingStatus, currentCalendarYear()+year, params.InflationRate)
	taxableAfterDeduction := math.Max(taxableIncome-deduction, 0)

	federalTax := CalculateFederalIncomeTax(taxableAfterDeduction, params.FilingStatus, currentCalendarYear()+year, params.InflationRate)
	capGainsTax := CalculateCapitalGainsTax(taxableAfterDeduction, plan.CapitalGainsWithdrawn, params.FilingStatus, currentCalendarYear()+year, params.InflationRate)
	stateTax := CalculateStateIncomeTax(taxableAfterDeduction, params.RetirementState)

	magi := taxableIncome
	pushMAGI(ts, magi)
	lookbackMAGI := magiTwoYearsAgo(ts.magiHistory)

	medicareTotal, _, _, _ := CalculateIRMAA(age, lookbackMAGI, params.FilingStatus)
	medicareAnnual := medicareTotal * 12

	acaSubsidy := 0.0
	if age < 65 {
		acaSubsidy = ACASubsidy(magi, 1, 650)
	}

	ret := GenerateAnnualReturn(returnRNG, allocationFor(params, OwnerJoint), ts.regime, params.ExpectedReturn, 0, AllocationMean(params.Allocation, ActiveCMA()), returnCfg)
	ts.priorReturnNegative = ret < 0
	growBuckets(ts.buckets, ret)

	netCashFlow := guaranteedIncome + plan.Total() - expenses - healthcare - ltcCost - federalTax - capGainsTax - stateTax - medicareAnnual

	return YearlyCashflow{
		Year:             year,
		Age:              age,
		PortfolioBalance: totalBuckets(ts.buckets),
		Withdrawal:       plan.Total(),
		GuaranteedIncome: guaranteedIncome,
		HealthcareCost:   healthcare,
		LTCCost:          ltcCost,
		FederalTax:       federalTax + capGainsTax,
		StateTax:         stateTax,
		MedicarePremium:  medicareAnnual,
		NetCashFlow:      netCashFlow,
		Regime:           ts.regime.String(),
		AdjustmentType:   adjType,
		AdjustmentReason: adjReason,
		ACASubsidy:       acaSubsidy,
	}
}

// currentCalendarYear anchors the federal-bracket indexing to the engine's
// base year; simulations are relative-year, not wall-clock, so this returns
// the fixed base year rather than time.Now().Year() to keep output
// deterministic independent of when the simulation is run.
func currentCalendarYear() int { return federalBracketBaseYear }

func magiTwoYearsAgo(history []float64) float64 {
	if len(history) >= 3 {
		return history[len(history)-3]
	}
	if len(history) > 0 {
		return history[0]
	}
	return 0
}

// topOfCurrentBracket returns the upper edge of the federal bracket
// taxableIncome currently falls in, for the Roth-conversion bracket-fill
// calculation.
func topOfCurrentBracket(taxableIncome float64, fs FilingStatus, year int, annualInflation float64) float64 {
	brackets := FederalBrackets(fs, year, annualInflation)
	for _, b := range brackets {
		if taxableIncome >= b.IncomeMin && taxableIncome < b.IncomeMax {
			return b.IncomeMax
		}
	}
	if len(brackets) > 0 {
		return brackets[len(brackets)-1].IncomeMax
	}
	return taxableIncome
}

// pushMAGI records one year's MAGI into the ring buffer, trimmed to
// magiHistoryDepth, from both accumulation and distribution years — a
// household retiring at or near 65 needs its pre-retirement wage MAGI
// available for the first two years IRMAA's lookback reaches back past the
// retirement date.
func pushMAGI(ts *trialState, magi float64) {
	ts.magiHistory = append(ts.magiHistory, magi)
	if len(ts.magiHistory) > magiHistoryDepth {
		ts.magiHistory = ts.magiHistory[len(ts.magiHistory)-magiHistoryDepth:]
	}
}

func guaranteedIncomeForYear(params RetirementParams, ts *trialState, age, spouseAge int) float64 {
	return ssIncomeForYear(params, ts, age, spouseAge) + params.AnnualPension + params.PartTimeIncome
}

func ssIncomeForYear(params RetirementParams, ts *trialState, age, spouseAge int) float64 {
	total := 0.0
	if claimAge, ok := params.SSClaimAge[OwnerUser]; ok && age >= claimAge {
		total += params.SSMonthly[OwnerUser] * 12 * ts.colaIndex
	}
	if params.HasSpouse {
		if claimAge, ok := params.SSClaimAge[OwnerSpouse]; ok && spouseAge >= claimAge {
			total += params.SSMonthly[OwnerSpouse] * 12 * ts.colaIndex
		}
	}
	return total
}

func ltcCostForYear(params RetirementParams, ts *trialState, age, spouseAge int) float64 {
	total := 0.0
	if ts.ltcUser.Occurs && age >= ts.ltcUser.OnsetAge && age < ts.ltcUser.OnsetAge+ts.ltcUser.DurationYears {
		benefitCap := 0.0
		if params.HasLTCInsurance {
			benefitCap = 50000
		}
		total += LTCAnnualCost(currentCalendarYear()+age-params.CurrentAge, params.HasLTCInsurance, benefitCap)
	}
	if params.HasSpouse && ts.ltcSpouse.Occurs && spouseAge >= ts.ltcSpouse.OnsetAge && spouseAge < ts.ltcSpouse.OnsetAge+ts.ltcSpouse.DurationYears {
		benefitCap := 0.0
		if params.HasLTCInsurance {
			benefitCap = 50000
		}
		total += LTCAnnualCost(currentCalendarYear()+spouseAge-params.SpouseCurrentAge, params.HasLTCInsurance, benefitCap)
	}
	return total
}

func allocationFor(params RetirementParams, owner Owner) Allocation {
	if a, ok := params.OwnerAllocation[owner]; ok {
		return a
	}
	return params.Allocation
}

// growBuckets grows each owner's buckets by one year's return: TaxDeferred,
// TaxFree and CapitalGains at the allocation-weighted market return, while
// CashEquivalents and CashValueLifeInsurance earn their own fixed rates
// instead of riding the household's market allocation.
func growBuckets(buckets map[Owner]AssetBuckets, ret float64) {
	for owner, b := range buckets {
		b.TaxDeferred *= 1 + ret
		b.TaxFree *= 1 + ret
		b.CapitalGains *= 1 + ret
		b.CashEquivalents *= 1 + savingsExpectedReturn
		b.CashValueLifeInsurance *= 1 + cashValueLifeInsuranceExpectedReturn
		buckets[owner] = b
	}
}

func addContribution(buckets map[Owner]AssetBuckets, amount float64) {
	b := buckets[OwnerJoint]
	b.TaxDeferred += amount
	buckets[OwnerJoint] = b
}
