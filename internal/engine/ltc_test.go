package engine

import (
	"math"
	"testing"
)

func TestLtcEventProbabilityOrderingByHealth(t *testing.T) {
	if ltcEventProbability(HealthExcellent) >= ltcEventProbability(HealthGood) {
		t.Error("excellent health should carry lower LTC probability than good")
	}
	if ltcEventProbability(HealthGood) >= ltcEventProbability(HealthFair) {
		t.Error("good health should carry lower LTC probability than fair")
	}
	if ltcEventProbability(HealthFair) >= ltcEventProbability(HealthPoor) {
		t.Error("fair health should carry lower LTC probability than poor")
	}
}

func TestDrawLTCEventNoEventWhenEndOfLifeNotAfterCurrentAge(t *testing.T) {
	r := NewSeededRNG(2)
	draw := DrawLTCEvent(r, 80, 80, HealthPoor)
	if draw.Occurs {
		t.Error("an LTC event cannot occur when endOfLifeAge <= currentAge")
	}
}

func TestDrawLTCEventOnsetAndDurationWithinBounds(t *testing.T) {
	r := NewSeededRNG(5)
	for i := 0; i < 500; i++ {
		draw := DrawLTCEvent(r, 60, 90, HealthPoor)
		if !draw.Occurs {
			continue
		}
		if draw.OnsetAge <= 60 || draw.OnsetAge >= 90 {
			t.Fatalf("draw %d: onset age %d out of (60,90)", i, draw.OnsetAge)
		}
		if draw.DurationYears < 1 || draw.DurationYears > 5 {
			t.Fatalf("draw %d: duration %d out of [1,5]", i, draw.DurationYears)
		}
		if draw.OnsetAge+draw.DurationYears > 90 {
			t.Fatalf("draw %d: onset+duration %d exceeds endOfLifeAge 90", i, draw.OnsetAge+draw.DurationYears)
		}
	}
}

func TestLTCAnnualCostInflatesForward(t *testing.T) {
	base := LTCAnnualCost(ltcReferenceYear, false, 0)
	if base != ltcReferenceAnnualCost {
		t.Errorf("base year cost = %v, want %v", base, ltcReferenceAnnualCost)
	}
	future := LTCAnnualCost(ltcReferenceYear+10, false, 0)
	want := ltcReferenceAnnualCost * math.Pow(1+ltcCostInflation, 10)
	if math.Abs(future-want) > 0.01 {
		t.Errorf("inflated cost = %v, want %v", future, want)
	}
}

func TestLTCAnnualCostNetOfInsurance(t *testing.T) {
	gross := LTCAnnualCost(ltcReferenceYear, false, 0)
	net := LTCAnnualCost(ltcReferenceYear, true, 20000)
	if math.Abs(net-(gross-20000)) > 0.01 {
		t.Errorf("insured net cost = %v, want %v", net, gross-20000)
	}
}

func TestLTCAnnualCostNeverNegative(t *testing.T) {
	net := LTCAnnualCost(ltcReferenceYear, true, 1000000)
	if net != 0 {
		t.Errorf("benefit cap exceeding cost should floor at zero, got %v", net)
	}
}

func TestLTCAnnualCostPastYearsClampToReferenceYear(t *testing.T) {
	past := LTCAnnualCost(ltcReferenceYear-10, false, 0)
	if past != ltcReferenceAnnualCost {
		t.Errorf("years before the reference year should not discount the cost: got %v", past)
	}
}

func TestCalculateLTCInsurancePremiumIncreasesWithAge(t *testing.T) {
	low := CalculateLTCInsurancePremium(55, "female", HealthGood)
	high := CalculateLTCInsurancePremium(80, "female", HealthGood)
	if high <= low {
		t.Errorf("premium should increase with age: age55=%v age80=%v", low, high)
	}
}

func TestCalculateLTCInsurancePremiumGenderAndHealthMultipliers(t *testing.T) {
	female := CalculateLTCInsurancePremium(65, "female", HealthGood)
	male := CalculateLTCInsurancePremium(65, "male", HealthGood)
	if male >= female {
		t.Errorf("male multiplier should be lower than female: male=%v female=%v", male, female)
	}

	healthy := CalculateLTCInsurancePremium(65, "female", HealthExcellent)
	poor := CalculateLTCInsurancePremium(65, "female", HealthPoor)
	if poor <= healthy {
		t.Errorf("poor health should cost more than excellent health: poor=%v healthy=%v", poor, healthy)
	}
}
