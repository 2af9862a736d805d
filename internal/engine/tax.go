package engine

import "math"

// TaxBracket is one marginal-rate bracket; IncomeMax of +Inf marks the top
// bracket.
type TaxBracket struct {
	IncomeMin float64
	IncomeMax float64
	Rate      float64
}

// federalBracketsBaseYear are the base-year (2024) federal brackets for
// single and married-filing-jointly filers, indexed forward by CPI in
// FederalBrackets. Grounded on the teacher's tax.go progressive-bracket
// structure and CalculateProgressiveTax helper.
var federalBracketsBaseYear = map[FilingStatus][]TaxBracket{
	FilingSingle: {
		{0, 11600, 0.10},
		{11600, 47150, 0.12},
		{47150, 100525, 0.22},
		{100525, 191950, 0.24},
		{191950, 243725, 0.32},
		{243725, 609350, 0.35},
		{609350, math.Inf(1), 0.37},
	},
	FilingMarriedJointly: {
		{0, 23200, 0.10},
		{23200, 94300, 0.12},
		{94300, 201050, 0.22},
		{201050, 383900, 0.24},
		{383900, 487450, 0.32},
		{487450, 731200, 0.35},
		{731200, math.Inf(1), 0.37},
	},
}

const federalBracketBaseYear = 2024

// standardDeductionBaseYear is the 2024 standard deduction by filing status.
var standardDeductionBaseYear = map[FilingStatus]float64{
	FilingSingle:            14600,
	FilingMarriedJointly:    29200,
	FilingMarriedSeparately: 14600,
	FilingHeadOfHousehold:   21900,
}

// CapitalGainsBracket is a long-term capital gains bracket (0/15/20%).
type CapitalGainsBracket struct {
	IncomeMin float64
	IncomeMax float64
	Rate      float64
}

var ltcgBracketsBaseYear = map[FilingStatus][]CapitalGainsBracket{
	FilingSingle: {
		{0, 47025, 0.00},
		{47025, 518900, 0.15},
		{518900, math.Inf(1), 0.20},
	},
	FilingMarriedJointly: {
		{0, 94050, 0.00},
		{94050, 583750, 0.15},
		{583750, math.Inf(1), 0.20},
	},
}

// noTaxStates has zero state income tax.
var noTaxStates = map[string]bool{
	"AK": true, "FL": true, "NV": true, "SD": true,
	"TN": true, "TX": true, "WA": true, "WY": true, "NH": true,
}

// flatTaxStateRates are flat-rate states; all others fall back to a single
// representative marginal rate (stateMarginalFallbackRate) rather than a
// full 50-state bracket table, which is out of this engine's scope.
var flatTaxStateRates = map[string]float64{
	"CO": 0.044, "IL": 0.0495, "IN": 0.0305, "MA": 0.05,
	"MI": 0.0425, "NC": 0.045, "PA": 0.0307, "UT": 0.0465,
}

const stateMarginalFallbackRate = 0.05

// FICA rates and wage base (2024), grounded on teacher's
// CalculateFICATaxes/GetFICATaxRates.
const (
	ficaSocialSecurityRate = 0.062
	ficaMedicareRate       = 0.0145
	ficaAdditionalMedicareRate = 0.009
	ficaSocialSecurityWageBase2024 = 168600.0
)

func additionalMedicareThreshold(fs FilingStatus) float64 {
	if fs == FilingMarriedJointly {
		return 250000
	}
	return 200000
}

// CPIIndex returns the multiplicative CPI adjustment from the federal
// bracket base year to year, compounding at the supplied annual inflation
// rate.
func CPIIndex(year int, annualInflation float64) float64 {
	years := year - federalBracketBaseYear
	if years < 0 {
		years = 0
	}
	return math.Pow(1+annualInflation, float64(years))
}

// FederalBrackets returns the year-indexed federal brackets for a filing
// status, CPI-indexed forward from the base year.
func FederalBrackets(fs FilingStatus, year int, annualInflation float64) []TaxBracket {
	base, ok := federalBracketsBaseYear[fs]
	if !ok {
		base = federalBracketsBaseYear[FilingSingle]
	}
	idx := CPIIndex(year, annualInflation)
	out := make([]TaxBracket, len(base))
	for i, b := range base {
		out[i] = TaxBracket{IncomeMin: b.IncomeMin * idx, IncomeMax: b.IncomeMax * idx, Rate: b.Rate}
	}
	return out
}

// StandardDeduction returns the year-indexed standard deduction.
func StandardDeduction(fs FilingStatus, year int, annualInflation float64) float64 {
	d, ok := standardDeductionBaseYear[fs]
	if !ok {
		d = standardDeductionBaseYear[FilingSingle]
	}
	return d * CPIIndex(year, annualInflation)
}

// calculateProgressiveTax sums marginal tax owed across brackets.
func calculateProgressiveTax(income float64, brackets []TaxBracket) float64 {
	if income <= 0 {
		return 0
	}
	total := 0.0
	for _, b := range brackets {
		if income <= b.IncomeMin {
			break
		}
		upper := math.Min(income, b.IncomeMax)
		total += (upper - b.IncomeMin) * b.Rate
	}
	return total
}

// CalculateFederalIncomeTax computes federal tax on taxable income for year.
func CalculateFederalIncomeTax(taxableIncome float64, fs FilingStatus, year int, annualInflation float64) float64 {
	return calculateProgressiveTax(taxableIncome, FederalBrackets(fs, year, annualInflation))
}

// CalculateStateIncomeTax applies the no-tax/flat-rate/fallback-marginal
// state rules.
func CalculateStateIncomeTax(taxableIncome float64, state string) float64 {
	if taxableIncome <= 0 {
		return 0
	}
	if noTaxStates[state] {
		return 0
	}
	if rate, ok := flatTaxStateRates[state]; ok {
		return taxableIncome * rate
	}
	return taxableIncome * stateMarginalFallbackRate
}

// CalculateCapitalGainsTax applies the LTCG brackets, stacked on top of
// ordinary taxable income (so the LTCG bracket boundaries are evaluated
// against ordinaryIncome+gains, matching IRS stacking rules).
func CalculateCapitalGainsTax(ordinaryTaxableIncome, ltcgIncome float64, fs FilingStatus, year int, annualInflation float64) float64 {
	if ltcgIncome <= 0 {
		return 0
	}
	base, ok := ltcgBracketsBaseYear[fs]
	if !ok {
		base = ltcgBracketsBaseYear[FilingSingle]
	}
	idx := CPIIndex(year, annualInflation)
	total := 0.0
	stackFloor := ordinaryTaxableIncome
	stackCeil := ordinaryTaxableIncome + ltcgIncome
	for _, b := range base {
		lo := b.IncomeMin * idx
		hi := b.IncomeMax * idx
		overlapLo := math.Max(lo, stackFloor)
		overlapHi := math.Min(hi, stackCeil)
		if overlapHi > overlapLo {
			total += (overlapHi - overlapLo) * b.Rate
		}
	}
	return total
}

// CalculateFICATaxes returns the employee-side Social Security, Medicare and
// Additional Medicare tax owed on wage income only (never applied to
// withdrawals or Social Security benefits).
func CalculateFICATaxes(wageIncome float64, fs FilingStatus) (socialSecurity, medicare, additionalMedicare float64) {
	ssWages := math.Min(wageIncome, ficaSocialSecurityWageBase2024)
	socialSecurity = ssWages * ficaSocialSecurityRate
	medicare = wageIncome * ficaMedicareRate
	threshold := additionalMedicareThreshold(fs)
	if wageIncome > threshold {
		additionalMedicare = (wageIncome - threshold) * ficaAdditionalMedicareRate
	}
	return
}

// CalculateSelfEmploymentTax returns FICA-equivalent taxes on 1099/part-time
// self-employment income, applying the 92.35% SE-tax base adjustment.
func CalculateSelfEmploymentTax(selfEmploymentIncome float64, fs FilingStatus) (socialSecurity, medicare, additionalMedicare float64) {
	const seBase = 0.9235
	adjusted := selfEmploymentIncome * seBase
	ssWages := math.Min(adjusted, ficaSocialSecurityWageBase2024)
	socialSecurity = ssWages * ficaSocialSecurityRate
	medicare = adjusted * ficaMedicareRate
	threshold := additionalMedicareThreshold(fs)
	if adjusted > threshold {
		additionalMedicare = (adjusted - threshold) * ficaAdditionalMedicareRate
	}
	return
}

// socialSecurityThresholds are the provisional-income thresholds for the
// 0%/50%/85% taxation tiers.
func socialSecurityThresholds(fs FilingStatus) (t1, t2 float64) {
	if fs == FilingMarriedJointly {
		return 32000, 44000
	}
	return 25000, 34000
}

// CalculateTaxableSocialSecurity applies the IRS provisional-income formula
// to determine how much of a household's Social Security benefit is taxable.
func CalculateTaxableSocialSecurity(otherIncome, ssBenefits float64, fs FilingStatus) float64 {
	if ssBenefits <= 0 {
		return 0
	}
	half := ssBenefits * 0.5
	provisional := otherIncome + half
	t1, t2 := socialSecurityThresholds(fs)

	if provisional <= t1 {
		return 0
	}
	if provisional <= t2 {
		return math.Min(provisional-t1, half)
	}
	tier1 := math.Min(t2-t1, half)
	tier2 := math.Min((provisional-t2)*0.85, ssBenefits*0.35)
	return math.Min(tier1+tier2, ssBenefits*0.85)
}

// CalculateSocialSecurityBenefit returns the monthly benefit at claimAge
// given a primary insurance amount and full retirement age, applying SSA's
// early-reduction (5/9%/month for the first 36 months, 5/12%/month beyond)
// and delayed-credit (2/3%/month, capped at 70) formulas.
func CalculateSocialSecurityBenefit(claimAge int, pia float64, fullRetirementAge int) float64 {
	if pia <= 0 {
		return 0
	}
	if claimAge == fullRetirementAge {
		return pia
	}
	if claimAge < fullRetirementAge {
		monthsEarly := (fullRetirementAge - claimAge) * 12
		var reduction float64
		if monthsEarly <= 36 {
			reduction = float64(monthsEarly) * (5.0 / 9.0) / 100.0
		} else {
			reduction = 36*(5.0/9.0)/100.0 + float64(monthsEarly-36)*(5.0/12.0)/100.0
		}
		return pia * (1 - reduction)
	}
	effective := claimAge
	if effective > 70 {
		effective = 70
	}
	monthsDelayed := (effective - fullRetirementAge) * 12
	increase := float64(monthsDelayed) * (2.0 / 3.0) / 100.0
	return pia * (1 + increase)
}

// FullRetirementAge returns FRA by birth year per SSA's schedule.
func FullRetirementAge(birthYear int) int {
	switch {
	case birthYear <= 1937:
		return 65
	case birthYear >= 1960:
		return 67
	case birthYear <= 1942:
		return 65 // + 2 months per year, approximated to whole years
	case birthYear <= 1954:
		return 66
	default:
		return 66 // +2 months per year from 1955-1959, approximated
	}
}

// medicareBasePartB2024 and medicareBasePartD2024 are the 2024 base monthly
// Part B/D premiums.
const (
	medicareBasePartB2024 = 174.70
	medicareBasePartD2024 = 34.70
)

// irmaaBracket is one MAGI-threshold tier of IRMAA surcharge.
type irmaaBracket struct {
	magiThreshold float64
	partBSurcharge float64
	partDSurcharge float64
}

var irmaaBracketsSingle = []irmaaBracket{
	{103000, 0, 0},
	{129000, 69.90, 13.00},
	{161000, 174.70, 33.60},
	{193000, 279.50, 53.80},
	{500000, 384.30, 74.20},
	{math.Inf(1), 419.30, 81.00},
}

var irmaaBracketsMFJ = []irmaaBracket{
	{206000, 0, 0},
	{258000, 69.90, 13.00},
	{322000, 174.70, 33.60},
	{386000, 279.50, 53.80},
	{750000, 384.30, 74.20},
	{math.Inf(1), 419.30, 81.00},
}

// CalculateIRMAA returns (totalMonthlyMedicare, partB, partD, irmaaSurchargeTotal)
// for a given age and the MAGI that applies under the 2-year lookback rule:
// year t's surcharge uses magiHistory[t-2]. Callers pass the already-looked-up
// MAGI; age<65 always returns zero (Medicare has not started).
func CalculateIRMAA(age int, lookbackMAGI float64, fs FilingStatus) (totalMonthly, partB, partD, surcharge float64) {
	if age < 65 {
		return 0, 0, 0, 0
	}
	brackets := irmaaBracketsSingle
	if fs == FilingMarriedJointly {
		brackets = irmaaBracketsMFJ
	}
	var bSurcharge, dSurcharge float64
	for _, b := range brackets {
		if lookbackMAGI < b.magiThreshold {
			bSurcharge = b.partBSurcharge
			dSurcharge = b.partDSurcharge
			break
		}
	}
	partB = medicareBasePartB2024 + bSurcharge
	partD = medicareBasePartD2024 + dSurcharge
	return partB + partD, partB, partD, bSurcharge + dSurcharge
}

// ACASubsidy estimates a premium-tax-credit subsidy for households retiring
// before Medicare eligibility, based on MAGI relative to the federal poverty
// level. An informational figure layered on top of the core tax calculation,
// not itself fed back into it.
func ACASubsidy(magi float64, householdSize int, benchmarkPremium float64) float64 {
	fpl := 14580.0 + float64(householdSize-1)*5140.0
	if fpl <= 0 {
		return 0
	}
	fplPct := magi / fpl
	if fplPct > 4.0 {
		return 0
	}
	expectedContributionPct := 0.02 + (fplPct-1.0)*0.025
	if expectedContributionPct < 0 {
		expectedContributionPct = 0
	}
	if expectedContributionPct > 0.085 {
		expectedContributionPct = 0.085
	}
	expectedContribution := magi * expectedContributionPct
	subsidy := benchmarkPremium*12 - expectedContribution
	if subsidy < 0 {
		return 0
	}
	return subsidy
}
