package engine

import (
	"fmt"
	"time"
)

// savingsExpectedReturn and cashValueLifeInsuranceExpectedReturn are the
// asset-specific expected returns applied in growBuckets; every other
// asset uses the allocation-weighted return.
const (
	savingsExpectedReturn               = 0.005
	cashValueLifeInsuranceExpectedReturn = 0.03
	healthcareMedicalInflation          = 0.026
	defaultAnnualHealthcareCostAt65     = 12000.0
)

// MapperWarning is a non-fatal note surfaced from ProfileToRetirementParams,
// e.g. an asset with an unrecognized kind routed to AssetOther.
type MapperWarning struct {
	Field   string
	Message string
}

// ProfileToRetirementParams derives an immutable RetirementParams from a
// Profile: checking balances excluded from retirement assets,
// savings/cash-value-life-insurance carried in their own buckets for
// asset-specific returns, owner-specific allocation when tagged, and
// healthcare costs added only when the profile doesn't already include them.
func ProfileToRetirementParams(p Profile, now time.Time) (RetirementParams, []MapperWarning, error) {
	var warnings []MapperWarning

	currentAge, err := ageFromBirthDate(p.BirthDate, now)
	if err != nil {
		return RetirementParams{}, nil, fmt.Errorf("invalid birthDate: %w", err)
	}

	params := RetirementParams{
		CurrentAge:     currentAge,
		RetirementAge:  p.RetirementAge,
		LifeExpectancy: p.LifeExpectancy,
		Gender:         p.Gender,
		Health:         p.HealthStatus,
		Allocation:     p.Allocation,
		WithdrawalRate: p.WithdrawalRate,
		UseGuardrails:  p.UseGuardrails,
		RetirementState: p.RetirementState,
		HasLTCInsurance: p.HasLTCInsurance,
		AnnualPension:   p.AnnualPension,
		PartTimeIncome:  p.PartTimeIncome,
		AnnualWageIncome: p.AnnualIncome + p.SpouseAnnualIncome,
		RothConversionsEnabled: p.EnableRothConversions,
		RMDAge:          73,
		RandomSeed:      p.RandomSeed,
		Buckets:         map[Owner]AssetBuckets{},
		OwnerAllocation: map[Owner]Allocation{},
		SSMonthly:       map[Owner]float64{},
		SSClaimAge:      map[Owner]int{},
	}

	if p.SpouseBirthDate != "" {
		params.HasSpouse = true
		spouseAge, err := ageFromBirthDate(p.SpouseBirthDate, now)
		if err != nil {
			return RetirementParams{}, nil, fmt.Errorf("invalid spouseBirthDate: %w", err)
		}
		params.SpouseCurrentAge = spouseAge
		params.SpouseRetirementAge = p.SpouseRetirementAge
		params.SpouseLifeExpectancy = p.SpouseLifeExpectancy
		params.SpouseGender = p.SpouseGender
		params.SpouseHealth = p.SpouseHealthStatus
	}

	params.FilingStatus = FilingSingle
	if params.HasSpouse {
		params.FilingStatus = FilingMarriedJointly
	}

	params.AnnualSavings = 12*(p.Monthly401kEmployee+p.Monthly401kEmployer) +
		p.AnnualIRATraditional + p.AnnualIRARoth +
		12*(p.SpouseMonthly401kEmployee+p.SpouseMonthly401kEmployer) +
		p.SpouseAnnualIRATraditional + p.SpouseAnnualIRARoth

	params.AnnualRetirementExpenses = 12 * p.MonthlyRetirementExpenses

	if !p.ExpensesIncludeHealthcare {
		yearsToRetirement := p.RetirementAge - currentAge
		if yearsToRetirement < 0 {
			yearsToRetirement = 0
		}
		inflated := defaultAnnualHealthcareCostAt65
		for i := 0; i < yearsToRetirement; i++ {
			inflated *= 1 + healthcareMedicalInflation
		}
		params.AnnualHealthcareCosts = inflated
	}

	params.InflationRate = 0.025
	if p.InflationOverride != 0 {
		params.InflationRate = p.InflationOverride
	}
	params.ExpectedReturn = p.ExpectedReturnOverride

	params.SSMonthly[OwnerUser] = p.SocialSecurityMonthly
	params.SSClaimAge[OwnerUser] = p.SocialSecurityClaimAge
	if params.HasSpouse {
		params.SSMonthly[OwnerSpouse] = p.SpouseSocialSecurityMonthly
		params.SSClaimAge[OwnerSpouse] = p.SpouseSocialSecurityClaimAge
	}

	retirementAssets, bucketWarnings := mapAssetsToBuckets(p, &params)
	warnings = append(warnings, bucketWarnings...)
	params.CurrentRetirementAssets = retirementAssets

	return params, warnings, nil
}

func ageFromBirthDate(birthDate string, now time.Time) (int, error) {
	t, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return 0, err
	}
	age := now.Year() - t.Year()
	if now.YearDay() < t.YearDay() {
		age--
	}
	return age, nil
}

// mapAssetsToBuckets aggregates the profile's assets into per-owner tax
// buckets, excluding checking balances and routing unrecognized kinds to
// AssetOther with a warning rather than dropping them.
func mapAssetsToBuckets(p Profile, params *RetirementParams) (float64, []MapperWarning) {
	var warnings []MapperWarning
	total := 0.0

	for i, a := range p.Assets {
		owner := a.Owner
		if owner == "" {
			owner = OwnerJoint
		}
		b := params.Buckets[owner]

		switch a.Kind {
		case AssetChecking:
			// Never counted as retirement assets.
			continue
		case Asset401k, Asset403b, Asset457b, AssetTraditionalIRA, AssetSEPIRA:
			b.TaxDeferred += a.Value
		case AssetRothIRA:
			b.TaxFree += a.Value
		case AssetTaxableBrokerage:
			b.CapitalGains += a.Value
		case AssetSavings:
			b.CashEquivalents += a.Value
		case AssetCashValueLifeInsurance:
			b.CashValueLifeInsurance += a.Value
		case AssetRealEstate:
			b.CapitalGains += a.Value
		case AssetOther:
			b.CapitalGains += a.Value
		default:
			warnings = append(warnings, MapperWarning{
				Field:   fmt.Sprintf("assets[%d].type", i),
				Message: fmt.Sprintf("unrecognized asset kind %q routed to Other", a.Kind),
			})
			b.CapitalGains += a.Value
		}
		params.Buckets[owner] = b
		total += a.Value
	}

	return total, warnings
}
