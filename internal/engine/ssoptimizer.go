package engine

import "math"

// PIAFromIncome approximates the Primary Insurance Amount via the SSA
// bend-point formula applied to a single representative year of earnings
// (a simplification of SSA's actual 35-year AIME average, documented here
// rather than hidden, since the profile intake supplies only current
// annual income).
func PIAFromIncome(annualIncome float64) float64 {
	aime := annualIncome / 12.0
	const (
		bend1 = 1174.0
		bend2 = 7078.0
	)
	var pia float64
	switch {
	case aime <= bend1:
		pia = aime * 0.90
	case aime <= bend2:
		pia = bend1*0.90 + (aime-bend1)*0.32
	default:
		pia = bend1*0.90 + (bend2-bend1)*0.32 + (aime-bend2)*0.15
	}
	return pia
}

// SSClaimAgeGridPoint is one candidate claim age's NPV.
type SSClaimAgeGridPoint struct {
	Age            int
	MonthlyBenefit float64
	NPV            float64
}

// SSOptimizationResult is the per-spouse claim-age optimization output.
type SSOptimizationResult struct {
	OptimalAge         int
	MaxLifetimeBenefit float64
	MonthlyAtOptimal   float64
	Grid               []SSClaimAgeGridPoint
}

// OptimizeClaimAge computes the NPV-maximizing claim age over
// [max(62, currentAge), 70]: for each candidate age, the monthly benefit
// at that age (via CalculateSocialSecurityBenefit) is
// projected as an annual benefit stream from claiming through
// lifeExpectancy and discounted to present value at discountRate (real,
// no CPI embedded in the PV itself).
func OptimizeClaimAge(currentAge, birthYear int, pia float64, lifeExpectancy int, discountRate float64) SSOptimizationResult {
	fra := FullRetirementAge(birthYear)
	startAge := currentAge
	if startAge < 62 {
		startAge = 62
	}

	var grid []SSClaimAgeGridPoint
	best := SSClaimAgeGridPoint{NPV: math.Inf(-1)}

	for age := startAge; age <= 70; age++ {
		monthly := CalculateSocialSecurityBenefit(age, pia, fra)
		annual := monthly * 12
		npv := 0.0
		for payYear := age; payYear < lifeExpectancy; payYear++ {
			yearsOut := payYear - currentAge
			if yearsOut < 0 {
				yearsOut = 0
			}
			npv += annual / math.Pow(1+discountRate, float64(yearsOut))
		}
		point := SSClaimAgeGridPoint{Age: age, MonthlyBenefit: monthly, NPV: npv}
		grid = append(grid, point)
		if npv > best.NPV {
			best = point
		}
	}

	return SSOptimizationResult{
		OptimalAge:         best.Age,
		MaxLifetimeBenefit: best.NPV,
		MonthlyAtOptimal:   best.MonthlyBenefit,
		Grid:               grid,
	}
}
