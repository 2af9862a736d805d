package engine

import "testing"

func baseValidParams() RetirementParams {
	return RetirementParams{
		CurrentAge:               55,
		RetirementAge:            65,
		LifeExpectancy:           90,
		AnnualRetirementExpenses: 60000,
		CurrentRetirementAssets:  500000,
		ExpectedReturn:           0.06,
		InflationRate:            0.03,
		Allocation: Allocation{
			USStocks: 0.5, IntlStocks: 0.1, Bonds: 0.3, Cash: 0.1,
		},
		WithdrawalRate: 0.04,
		TaxRate:        0.22,
		FilingStatus:   FilingSingle,
	}
}

func TestValidateParametersAcceptsValidBaseline(t *testing.T) {
	res := ValidateParameters(baseValidParams())
	if !res.IsValid {
		t.Fatalf("expected a valid baseline, got errors: %+v", res.Errors)
	}
}

func TestValidateParametersCurrentAgeRange(t *testing.T) {
	p := baseValidParams()
	p.CurrentAge = 10
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("currentAge below 18 should be invalid")
	}

	p.CurrentAge = 150
	res = ValidateParameters(p)
	if res.IsValid {
		t.Fatal("currentAge above 120 should be invalid")
	}
}

func TestValidateParametersRetirementAgeBeforeCurrentAge(t *testing.T) {
	p := baseValidParams()
	p.RetirementAge = p.CurrentAge - 1
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("retirementAge < currentAge should be invalid")
	}
}

func TestValidateParametersLifeExpectancyBeforeRetirementAge(t *testing.T) {
	p := baseValidParams()
	p.LifeExpectancy = p.RetirementAge - 1
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("lifeExpectancy < retirementAge should be invalid")
	}
}

func TestValidateParametersAllocationMustSumToOne(t *testing.T) {
	p := baseValidParams()
	p.Allocation = Allocation{USStocks: 0.5, Bonds: 0.2}
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("allocation summing to 0.7 should be invalid")
	}
}

func TestValidateParametersZeroAllocationIsAllowed(t *testing.T) {
	// Sum()==0 is treated as "not yet specified" and skipped, distinct from
	// a nonzero-but-wrong sum.
	p := baseValidParams()
	p.Allocation = Allocation{}
	res := ValidateParameters(p)
	for _, e := range res.Errors {
		if e.Field == "allocation" {
			t.Fatalf("zero allocation should not raise an allocation error, got: %+v", e)
		}
	}
}

func TestValidateParametersOwnerAllocationMustSumToOne(t *testing.T) {
	p := baseValidParams()
	p.OwnerAllocation = map[Owner]Allocation{
		OwnerUser: {USStocks: 0.9, Bonds: 0.2},
	}
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("owner allocation summing to 1.1 should be invalid")
	}
}

func TestValidateParametersWithdrawalRateBounds(t *testing.T) {
	p := baseValidParams()
	p.WithdrawalRate = 0.30
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("withdrawalRate above 0.25 should be invalid")
	}

	p.WithdrawalRate = 0
	res = ValidateParameters(p)
	if !res.IsValid {
		t.Fatal("withdrawalRate of exactly 0 (unset) should be allowed")
	}
}

func TestValidateParametersInflationRateBounds(t *testing.T) {
	p := baseValidParams()
	p.InflationRate = 0.20
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("inflationRate above 0.15 should be invalid")
	}
}

func TestValidateParametersExpectedReturnOutOfRangeIsWarningNotError(t *testing.T) {
	p := baseValidParams()
	p.ExpectedReturn = 0.50
	res := ValidateParameters(p)
	if !res.IsValid {
		t.Fatalf("out-of-range expectedReturn should only warn, not invalidate: %+v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected at least one warning for extreme expectedReturn")
	}
}

func TestValidateParametersNegativeExpensesOrAssetsAreErrors(t *testing.T) {
	p := baseValidParams()
	p.AnnualRetirementExpenses = -1
	if ValidateParameters(p).IsValid {
		t.Fatal("negative annualRetirementExpenses should be invalid")
	}

	p = baseValidParams()
	p.CurrentRetirementAssets = -1
	if ValidateParameters(p).IsValid {
		t.Fatal("negative currentRetirementAssets should be invalid")
	}
}

func TestValidateParametersTaxRateBounds(t *testing.T) {
	p := baseValidParams()
	p.TaxRate = 0.75
	if ValidateParameters(p).IsValid {
		t.Fatal("taxRate above 0.5 should be invalid")
	}

	p.TaxRate = 0
	if !ValidateParameters(p).IsValid {
		t.Fatal("unset taxRate of 0 should be allowed")
	}
}

func TestValidateParametersSpouseFilingStatusConsistency(t *testing.T) {
	p := baseValidParams()
	p.HasSpouse = true
	p.FilingStatus = FilingSingle
	res := ValidateParameters(p)
	if res.IsValid {
		t.Fatal("hasSpouse with FilingSingle should be invalid")
	}
}

func TestValidateParametersWarningsDoNotInvalidate(t *testing.T) {
	p := baseValidParams()
	p.WithdrawalRate = 0.08
	p.TaxRate = 0.45
	p.RetirementAge = p.CurrentAge + 20
	p.Allocation = Allocation{USStocks: 0.1, Bonds: 0.8, Cash: 0.1}
	res := ValidateParameters(p)
	if !res.IsValid {
		t.Fatalf("warning-triggering-only params should remain valid, got errors: %+v", res.Errors)
	}
	if len(res.Warnings) < 2 {
		t.Fatalf("expected multiple warnings, got %+v", res.Warnings)
	}
}

func TestCheckRequiredParametersReportsMissingFields(t *testing.T) {
	missing := CheckRequiredParameters(Profile{})
	want := map[string]bool{
		"birthDate": true, "retirementAge": true, "lifeExpectancy": true,
		"monthlyRetirementExpenses": true, "allocation": true,
	}
	if len(missing) != len(want) {
		t.Fatalf("got %v missing fields, want %d: %v", len(missing), len(want), missing)
	}
	for _, m := range missing {
		if !want[m] {
			t.Errorf("unexpected missing field reported: %s", m)
		}
	}
}

func TestCheckRequiredParametersCompleteProfile(t *testing.T) {
	p := Profile{
		BirthDate:                 "1970-01-01",
		RetirementAge:             65,
		LifeExpectancy:            90,
		MonthlyRetirementExpenses: 5000,
		Allocation:                Allocation{USStocks: 0.6, Bonds: 0.4},
	}
	missing := CheckRequiredParameters(p)
	if len(missing) != 0 {
		t.Errorf("complete profile reported missing fields: %v", missing)
	}
}
