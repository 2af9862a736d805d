// Package engine implements the deterministic retirement Monte Carlo core:
// RNG, capital market assumptions, return generation, regime switching,
// mortality, long-term care, taxes, withdrawal sequencing and the per-trial
// scenario kernel. internal/simulation drives many trials through it and
// aggregates the results.
package engine

// AssetKind is a tagged variant over recognized account categories. Unknown
// kinds from an external profile route to AssetOther with a mapper warning
// rather than being silently dropped.
type AssetKind string

const (
	Asset401k               AssetKind = "401k"
	Asset403b               AssetKind = "403b"
	Asset457b                AssetKind = "457b"
	AssetTraditionalIRA      AssetKind = "traditional-ira"
	AssetRothIRA             AssetKind = "roth-ira"
	AssetSEPIRA              AssetKind = "sep-ira"
	AssetTaxableBrokerage    AssetKind = "taxable-brokerage"
	AssetSavings             AssetKind = "savings"
	AssetChecking            AssetKind = "checking"
	AssetCashValueLifeInsurance AssetKind = "cash-value-life-insurance"
	AssetRealEstate          AssetKind = "real-estate"
	AssetOther               AssetKind = "other"
)

// Owner identifies which member of the household holds an asset or bucket.
type Owner string

const (
	OwnerUser   Owner = "user"
	OwnerSpouse Owner = "spouse"
	OwnerJoint  Owner = "joint"
)

// FilingStatus mirrors the federal filing-status categories the tax engine
// needs brackets and thresholds for.
type FilingStatus string

const (
	FilingSingle             FilingStatus = "single"
	FilingMarriedJointly     FilingStatus = "married-filing-jointly"
	FilingMarriedSeparately  FilingStatus = "married-filing-separately"
	FilingHeadOfHousehold    FilingStatus = "head-of-household"
)

// HealthStatus is an optional coarse health signal that shifts mortality and
// LTC-event probability.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
)

// Asset is one line of a profile's asset list.
type Asset struct {
	Kind  AssetKind `json:"type"`
	Value float64   `json:"value"`
	Owner Owner     `json:"owner"`
}

// Allocation is a household or per-owner target allocation, fractions
// summing to 1 within tolerance.
type Allocation struct {
	USStocks     float64 `json:"usStocks"`
	IntlStocks   float64 `json:"intlStocks"`
	Bonds        float64 `json:"bonds"`
	Cash         float64 `json:"cash"`
	Alternatives float64 `json:"alternatives"`
}

// Sum returns the total of the allocation fractions.
func (a Allocation) Sum() float64 {
	return a.USStocks + a.IntlStocks + a.Bonds + a.Cash + a.Alternatives
}

// Profile is the external, untyped-ish input record the API layer decodes
// requests into before mapping to RetirementParams.
// Sentinel values on ExpectedReturnOverride: -1 = glide-path, -2 = current
// allocation implied mean. Zero means "no override".
type Profile struct {
	BirthDate          string       `json:"birthDate"`
	SpouseBirthDate    string       `json:"spouseBirthDate,omitempty"`
	MaritalStatus      string       `json:"maritalStatus"`
	StateOfResidence   string       `json:"stateOfResidence"`
	RetirementState    string       `json:"retirementState"`
	LifeExpectancy     int          `json:"lifeExpectancy"`
	SpouseLifeExpectancy int        `json:"spouseLifeExpectancy,omitempty"`
	Gender             string       `json:"gender,omitempty"`
	SpouseGender       string       `json:"spouseGender,omitempty"`
	HealthStatus       HealthStatus `json:"healthStatus,omitempty"`
	SpouseHealthStatus HealthStatus `json:"spouseHealthStatus,omitempty"`

	AnnualIncome       float64 `json:"annualIncome"`
	SpouseAnnualIncome float64 `json:"spouseAnnualIncome,omitempty"`
	RetirementAge      int     `json:"retirementAge"`
	SpouseRetirementAge int    `json:"spouseRetirementAge,omitempty"`

	SocialSecurityMonthly      float64 `json:"socialSecurityMonthly"`
	SocialSecurityClaimAge     int     `json:"socialSecurityClaimAge"`
	SpouseSocialSecurityMonthly  float64 `json:"spouseSocialSecurityMonthly,omitempty"`
	SpouseSocialSecurityClaimAge int     `json:"spouseSocialSecurityClaimAge,omitempty"`
	AnnualPension              float64 `json:"annualPension,omitempty"`
	PartTimeIncome             float64 `json:"partTimeIncome,omitempty"`

	MonthlyRetirementExpenses    float64 `json:"monthlyRetirementExpenses"`
	MonthlyDiscretionaryExpenses float64 `json:"monthlyDiscretionaryExpenses,omitempty"`
	ExpensesIncludeHealthcare    bool    `json:"expensesIncludeHealthcare"`

	Assets []Asset `json:"assets"`

	Monthly401kEmployee float64 `json:"monthly401kEmployee,omitempty"`
	Monthly401kEmployer float64 `json:"monthly401kEmployer,omitempty"`
	AnnualIRATraditional float64 `json:"annualIRATraditional,omitempty"`
	AnnualIRARoth       float64 `json:"annualIRARoth,omitempty"`
	SpouseMonthly401kEmployee float64 `json:"spouseMonthly401kEmployee,omitempty"`
	SpouseMonthly401kEmployer float64 `json:"spouseMonthly401kEmployer,omitempty"`
	SpouseAnnualIRATraditional float64 `json:"spouseAnnualIRATraditional,omitempty"`
	SpouseAnnualIRARoth       float64 `json:"spouseAnnualIRARoth,omitempty"`

	Allocation       Allocation            `json:"allocation"`
	OwnerAllocations map[Owner]Allocation  `json:"ownerAllocations,omitempty"`

	HasLTCInsurance bool    `json:"hasLtcInsurance"`
	LegacyGoal      float64 `json:"legacyGoal,omitempty"`

	InflationOverride      float64 `json:"inflationOverride,omitempty"`
	ExpectedReturnOverride float64 `json:"expectedReturnOverride,omitempty"`
	WithdrawalRate         float64 `json:"withdrawalRate,omitempty"`
	UseGuardrails          bool    `json:"useGuardrails,omitempty"`
	EnableRothConversions  bool    `json:"enableRothConversions,omitempty"`

	RandomSeed uint32 `json:"randomSeed,omitempty"`
}

// AssetBuckets aggregates one owner's assets by tax treatment, the unit the
// withdrawal sequencer and tax engine operate on. CashValueLifeInsurance is
// split out from CapitalGains because it compounds at the policy's stated
// crediting rate rather than the household's market allocation.
type AssetBuckets struct {
	TaxDeferred            float64 `json:"taxDeferred"`
	TaxFree                float64 `json:"taxFree"`
	CapitalGains           float64 `json:"capitalGains"`
	CashEquivalents        float64 `json:"cashEquivalents"`
	CashValueLifeInsurance float64 `json:"cashValueLifeInsurance"`
}

// Total returns the sum of all buckets.
func (b AssetBuckets) Total() float64 {
	return b.TaxDeferred + b.TaxFree + b.CapitalGains + b.CashEquivalents + b.CashValueLifeInsurance
}

// RetirementParams is the derived, immutable parameter set a simulation runs
// against.
type RetirementParams struct {
	CurrentAge       int
	RetirementAge    int
	LifeExpectancy   int
	HasSpouse        bool
	SpouseCurrentAge int
	SpouseRetirementAge int
	SpouseLifeExpectancy int
	Gender           string
	SpouseGender     string
	Health           HealthStatus
	SpouseHealth     HealthStatus

	CurrentRetirementAssets float64
	AnnualSavings           float64
	AnnualRetirementExpenses float64
	AnnualHealthcareCosts   float64

	ExpectedReturn  float64
	ReturnVolatility float64
	InflationRate   float64

	Allocation       Allocation
	OwnerAllocation  map[Owner]Allocation

	WithdrawalRate float64
	UseGuardrails  bool

	TaxRate       float64
	FilingStatus  FilingStatus
	RetirementState string

	Buckets map[Owner]AssetBuckets

	SSMonthly         map[Owner]float64
	SSClaimAge        map[Owner]int
	AnnualPension     float64
	PartTimeIncome    float64
	AnnualWageIncome  float64
	HasLTCInsurance   bool

	RMDAge                int
	RothConversionsEnabled bool

	RandomSeed uint32
}

// Regime is a hidden Markov state governing annual return mean/volatility.
type Regime int

const (
	RegimeBull Regime = iota
	RegimeNormal
	RegimeBear
	RegimeCrisis
)

func (r Regime) String() string {
	switch r {
	case RegimeBull:
		return "bull"
	case RegimeNormal:
		return "normal"
	case RegimeBear:
		return "bear"
	case RegimeCrisis:
		return "crisis"
	default:
		return "unknown"
	}
}

// LTCEventState tracks whether a long-term-care event is active, past, or
// has not occurred for a trial's household member.
type LTCEventState int

const (
	LTCStateNone LTCEventState = iota
	LTCStateActive
	LTCStatePast
)

// YearlyCashflow is emitted once per simulated year.
type YearlyCashflow struct {
	Year               int     `json:"year"`
	Age                int     `json:"age"`
	PortfolioBalance   float64 `json:"portfolioBalance"`
	Contributions      float64 `json:"contributions"`
	Withdrawal         float64 `json:"withdrawal"`
	GuaranteedIncome   float64 `json:"guaranteedIncome"`
	HealthcareCost     float64 `json:"healthcareCost"`
	LTCCost            float64 `json:"ltcCost"`
	FederalTax         float64 `json:"federalTax"`
	StateTax           float64 `json:"stateTax"`
	MedicarePremium    float64 `json:"medicarePremium"`
	NetCashFlow        float64 `json:"netCashFlow"`
	Regime             string  `json:"regime"`
	AdjustmentType     string  `json:"adjustmentType,omitempty"`
	AdjustmentReason   string  `json:"adjustmentReason,omitempty"`
	ACASubsidy         float64 `json:"acaSubsidy,omitempty"`
}

// TrialResult is what one completed scenario kernel run hands back to the
// aggregator.
type TrialResult struct {
	Success        bool
	EndingBalance  float64
	Cashflows      []YearlyCashflow
	LTCEventOccurred bool
	LTCTotalCost   float64
	LTCDuration    int
	NonFinite      bool
}
