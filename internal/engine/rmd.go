package engine

// uniformLifetimeTable is the IRS Uniform Lifetime Table divisor by age,
// grounded on the teacher's rmd_calculator.go getUniformLifetimeTable.
var uniformLifetimeTable = map[int]float64{
	72: 27.4, 73: 26.5, 74: 25.5, 75: 24.6, 76: 23.7, 77: 22.9, 78: 22.0,
	79: 21.1, 80: 20.2, 81: 19.4, 82: 18.5, 83: 17.7, 84: 16.8, 85: 16.0,
	86: 15.2, 87: 14.4, 88: 13.7, 89: 12.9, 90: 12.2, 91: 11.5, 92: 10.8,
	93: 10.1, 94: 9.5, 95: 8.9, 96: 8.4, 97: 7.8, 98: 7.3, 99: 6.8,
	100: 6.4, 101: 6.0, 102: 5.6, 103: 5.2, 104: 4.9, 105: 4.6,
}

const defaultRMDAge = 73

// RMDDivisor returns the Uniform Lifetime Table divisor for age. Below age
// 72 it returns the age-72 entry; beyond age 105 (tabulated at 4.6) it
// returns a floor of 4.5.
func RMDDivisor(age int) float64 {
	if d, ok := uniformLifetimeTable[age]; ok {
		return d
	}
	if age > 105 {
		return 4.5
	}
	if age < 72 {
		return uniformLifetimeTable[72]
	}
	return 4.5
}

// CalculateRMD returns the required minimum distribution for a tax-deferred
// balance at age, or 0 before the RMD age.
func CalculateRMD(age int, rmdAge int, taxDeferredBalance float64) float64 {
	if rmdAge <= 0 {
		rmdAge = defaultRMDAge
	}
	if age < rmdAge || taxDeferredBalance <= 0 {
		return 0
	}
	return taxDeferredBalance / RMDDivisor(age)
}
