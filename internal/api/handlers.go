package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/areumfire/retirement-mc/internal/engine"
	"github.com/areumfire/retirement-mc/internal/simulation"
	"github.com/google/uuid"
)

// Server wires the engine and simulation packages to the HTTP handlers. It
// carries no mutable state of its own beyond the bands cache, following the
// teacher's sync.Map session-table pattern (internal/mcp/server.go's
// Server.sessions) adapted to an input-hash cache.
type Server struct {
	cfg   engine.EngineConfig
	bands *bandsCache
}

// NewServer builds a Server from process configuration loaded once at
// startup; no mutated globals once the process is up.
func NewServer(cfg engine.EngineConfig) *Server {
	return &Server{cfg: cfg, bands: newBandsCache()}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/simulate-retirement-monte-carlo", s.handleSimulate)
	mux.HandleFunc("/calculate-retirement-bands", s.handleBands(false))
	mux.HandleFunc("/calculate-retirement-bands-optimization", s.handleBands(true))
	mux.HandleFunc("/calculate-cumulative-ss-optimization", s.handleSSOptimization)
	mux.HandleFunc("/v2/rpc/cashflow-map", s.handleCashflowMap)
	mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"cmaVersion": s.cfg.CMAVersion,
	})
}

// handleSimulate implements POST /simulate-retirement-monte-carlo.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "parse error: " + err.Error()})
		return
	}

	params, validation, ok := s.mapAndValidate(w, req.Profile)
	if !ok {
		return
	}

	iterations := req.Iterations
	if iterations <= 0 {
		iterations = s.cfg.Iterations
	}

	returnCfg := req.ReturnConfig.toEngineConfig()
	if s.cfg.DisableCrashOverlay {
		returnCfg.DisableCrashOverlay = true
	}
	if s.cfg.IIDLognormalBaseline {
		returnCfg.StrictBaseline = true
	}
	returnCfg.Crash = s.cfg.CrashConfig()

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), simulation.DefaultTimeout)
	defer cancel()

	result, err := simulation.Run(ctx, simulation.DriverRequest{
		Params:            params,
		Iterations:        iterations,
		Seed:              req.Seed,
		Workers:           8,
		VarianceReduction: req.VarianceReduction,
		ReturnConfig:      returnCfg,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	_ = validation // mapper and validation warnings are not included in simulateResponse

	writeJSON(w, http.StatusOK, simulateResponse{
		CalculationID:         uuid.New().String(),
		SuccessProbability:    result.SuccessProbability,
		ProbabilityOfSuccess:  result.ProbabilityOfSuccess,
		MedianEndingBalance:   result.MedianEndingBalance,
		ConfidenceIntervals:   result.ConfidenceIntervals,
		Scenarios:             result.Scenarios,
		YearlyCashFlows:       result.YearlyCashFlows,
		LTCAnalysis:           result.LTCAnalysis,
		SafeWithdrawalRate:    result.SafeWithdrawalRate,
		CalculatedAt:          nowISO8601(),
		CalculationTimeMillis: time.Since(start).Milliseconds(),
	})
}

// handleBands returns a handler for /calculate-retirement-bands (optimize
// false) and /calculate-retirement-bands-optimization (optimize true). The
// optimization variant runs the SS claim-age optimizer first and uses the
// optimal claim ages in place of whatever the profile specified.
func (s *Server) handleBands(optimize bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req bandsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "parse error: " + err.Error()})
			return
		}

		cacheKey := bandsCacheKey(req, optimize)
		if cached, ok := s.bands.get(cacheKey); ok {
			cached.Cached = true
			writeJSON(w, http.StatusOK, cached)
			return
		}

		params, _, ok := s.mapAndValidate(w, req.Profile)
		if !ok {
			return
		}

		if optimize {
			applyOptimalClaimAges(&params, req.Profile)
		}

		iterations := req.Iterations
		if iterations <= 0 {
			iterations = s.cfg.Iterations
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), simulation.DefaultTimeout)
		defer cancel()

		result, err := simulation.Run(ctx, simulation.DriverRequest{
			Params:       params,
			Iterations:   iterations,
			Seed:         req.Seed,
			Workers:      8,
			ReturnConfig: engine.DefaultReturnConfig(),
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}

		resp := buildBandsResponse(result, params)
		resp.CalculationID = uuid.New().String()
		resp.CalculationTimeMs = time.Since(start).Milliseconds()
		s.bands.put(cacheKey, resp)
		writeJSON(w, http.StatusOK, resp)
	}
}

func buildBandsResponse(result simulation.AggregateResult, params engine.RetirementParams) bandsResponse {
	ages := make([]int, 0, len(result.PercentilesByAge))
	p05 := make([]float64, 0, len(result.PercentilesByAge))
	p25 := make([]float64, 0, len(result.PercentilesByAge))
	p50 := make([]float64, 0, len(result.PercentilesByAge))
	p75 := make([]float64, 0, len(result.PercentilesByAge))
	p95 := make([]float64, 0, len(result.PercentilesByAge))
	for _, ap := range result.PercentilesByAge {
		ages = append(ages, ap.Age)
		p05 = append(p05, ap.P05)
		p25 = append(p25, ap.P25)
		p50 = append(p50, ap.P50)
		p75 = append(p75, ap.P75)
		p95 = append(p95, ap.P95)
	}

	return bandsResponse{
		Ages: ages,
		Percentiles: bandsPercentiles{
			P05: p05, P25: p25, P50: p50, P75: p75, P95: p95,
		},
		Meta: bandsMeta{
			CurrentAge:    params.CurrentAge,
			RetirementAge: params.RetirementAge,
			LongevityAge:  params.LifeExpectancy,
			Runs:          result.Scenarios.Total,
			CalculatedAt:  nowISO8601(),
		},
	}
}

// applyOptimalClaimAges mutates params in place with the NPV-maximizing
// claim age for the user (and spouse, if present), computed via
// engine.OptimizeClaimAge over the profile's reported annual income.
func applyOptimalClaimAges(params *engine.RetirementParams, profile engine.Profile) {
	birthYear := birthYearOf(profile.BirthDate)
	pia := engine.PIAFromIncome(profile.AnnualIncome)
	opt := engine.OptimizeClaimAge(params.CurrentAge, birthYear, pia, params.LifeExpectancy, 0.02)
	params.SSClaimAge[engine.OwnerUser] = opt.OptimalAge
	params.SSMonthly[engine.OwnerUser] = opt.MonthlyAtOptimal

	if params.HasSpouse {
		spouseBirthYear := birthYearOf(profile.SpouseBirthDate)
		spousePIA := engine.PIAFromIncome(profile.SpouseAnnualIncome)
		spouseOpt := engine.OptimizeClaimAge(params.SpouseCurrentAge, spouseBirthYear, spousePIA, params.SpouseLifeExpectancy, 0.02)
		params.SSClaimAge[engine.OwnerSpouse] = spouseOpt.OptimalAge
		params.SSMonthly[engine.OwnerSpouse] = spouseOpt.MonthlyAtOptimal
	}
}

func birthYearOf(birthDate string) int {
	t, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return 1960
	}
	return t.Year()
}

// handleSSOptimization implements POST /calculate-cumulative-ss-optimization.
func (s *Server) handleSSOptimization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ssOptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "parse error: " + err.Error()})
		return
	}
	discountRate := req.DiscountRate
	if discountRate <= 0 {
		discountRate = 0.02
	}

	params, _, ok := s.mapAndValidate(w, req.Profile)
	if !ok {
		return
	}

	birthYear := birthYearOf(req.Profile.BirthDate)
	pia := engine.PIAFromIncome(req.Profile.AnnualIncome)
	userOpt := engine.OptimizeClaimAge(params.CurrentAge, birthYear, pia, params.LifeExpectancy, discountRate)

	resp := ssOptimizationResponse{
		User: ssPersonResult{
			OptimalAge:          userOpt.OptimalAge,
			MaxLifetimeBenefit:  userOpt.MaxLifetimeBenefit,
			MonthlyAtOptimal:    userOpt.MonthlyAtOptimal,
			MonthlyAtRetirement: engine.CalculateSocialSecurityBenefit(params.RetirementAge, pia, engine.FullRetirementAge(birthYear)),
		},
		Combined: ssCombinedResult{
			OptimalUserAge:     userOpt.OptimalAge,
			MaxLifetimeBenefit: userOpt.MaxLifetimeBenefit,
		},
	}

	var spouseOpt engine.SSOptimizationResult
	var spousePIA float64
	var spouseFRA int
	if params.HasSpouse {
		spouseBirthYear := birthYearOf(req.Profile.SpouseBirthDate)
		spousePIA = engine.PIAFromIncome(req.Profile.SpouseAnnualIncome)
		spouseFRA = engine.FullRetirementAge(spouseBirthYear)
		spouseOpt = engine.OptimizeClaimAge(params.SpouseCurrentAge, spouseBirthYear, spousePIA, params.SpouseLifeExpectancy, discountRate)
		resp.Spouse = &ssPersonResult{
			OptimalAge:          spouseOpt.OptimalAge,
			MaxLifetimeBenefit:  spouseOpt.MaxLifetimeBenefit,
			MonthlyAtOptimal:    spouseOpt.MonthlyAtOptimal,
			MonthlyAtRetirement: engine.CalculateSocialSecurityBenefit(params.SpouseRetirementAge, spousePIA, spouseFRA),
		}
		resp.Combined.OptimalSpouseAge = spouseOpt.OptimalAge
		resp.Combined.MaxLifetimeBenefit = userOpt.MaxLifetimeBenefit + spouseOpt.MaxLifetimeBenefit
	}

	resp.AgeAnalysis = buildSSAgeAnalysis(userOpt, spouseOpt, params.HasSpouse)

	writeJSON(w, http.StatusOK, resp)
}

// buildSSAgeAnalysis zips the user and (optional) spouse claim-age grids
// point-by-point into the per-age cumulative benefit table.
func buildSSAgeAnalysis(user, spouse engine.SSOptimizationResult, hasSpouse bool) []ssAgeAnalysisPoint {
	points := make([]ssAgeAnalysisPoint, 0, len(user.Grid))
	var userCum, spouseCum float64
	for i, g := range user.Grid {
		userCum += g.MonthlyBenefit * 12
		point := ssAgeAnalysisPoint{
			UserAge:        g.Age,
			UserMonthly:    g.MonthlyBenefit,
			UserCumulative: userCum,
		}
		if hasSpouse && i < len(spouse.Grid) {
			sg := spouse.Grid[i]
			spouseCum += sg.MonthlyBenefit * 12
			point.SpouseAge = sg.Age
			point.SpouseMonthly = sg.MonthlyBenefit
			point.SpouseCumulative = spouseCum
		}
		point.CombinedMonthly = point.UserMonthly + point.SpouseMonthly
		point.CombinedCumulative = point.UserCumulative + point.SpouseCumulative
		points = append(points, point)
	}
	return points
}

// handleCashflowMap implements POST /v2/rpc/cashflow-map: one seeded trial
// in strict-baseline mode (plain log-normal return draws: no regime
// adjustment, crash overlay or fat tails), re-presented year by year with tax bracket detail the kernel's internal
// YearlyCashflow record doesn't itself carry.
func (s *Server) handleCashflowMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cashflowMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "parse error: " + err.Error()})
		return
	}

	params, _, ok := s.mapAndValidate(w, req.Profile)
	if !ok {
		return
	}

	returnCfg := engine.DefaultReturnConfig()
	returnCfg.StrictBaseline = true
	returnCfg.DisableCrashOverlay = true
	if len(req.OverlayReturns) > 0 {
		returnCfg.Overlay = map[engine.Variate][]float64{engine.VariateNormal: req.OverlayReturns}
	}

	seed := req.Seed
	if seed == 0 {
		seed = params.RandomSeed
	}
	rng := engine.DeriveRNG(nil, "cashflow-map", seed)
	trial := engine.RunTrial(params, rng, returnCfg)

	years := make([]cashflowYear, 0, len(trial.Cashflows))
	for _, cf := range trial.Cashflows {
		years = append(years, buildCashflowYear(cf, params))
	}

	writeJSON(w, http.StatusOK, cashflowMapResponse{Years: years})
}

// buildCashflowYear derives the presentation-only breakdown (bracket
// thresholds, marginal rate, flags) from one simulated year; these are
// reporting conveniences layered on top of the kernel's actual tax
// computation, not a second tax calculation that could disagree with it.
func buildCashflowYear(cf engine.YearlyCashflow, params engine.RetirementParams) cashflowYear {
	brackets := engine.FederalBrackets(params.FilingStatus, cf.Year, params.InflationRate)
	thresholds := make([]float64, 0, len(brackets))
	for _, b := range brackets {
		thresholds = append(thresholds, b.IncomeMin)
	}

	taxableIncome := cf.Withdrawal + cf.GuaranteedIncome - engine.StandardDeduction(params.FilingStatus, cf.Year, params.InflationRate)
	if taxableIncome < 0 {
		taxableIncome = 0
	}

	marginalRate := 0.0
	for _, b := range brackets {
		if taxableIncome >= b.IncomeMin && taxableIncome < b.IncomeMax {
			marginalRate = b.Rate
			break
		}
	}

	grossIncome := cf.Withdrawal + cf.GuaranteedIncome
	taxesTotal := cf.FederalTax + cf.StateTax
	effectiveRate := 0.0
	if grossIncome > 0 {
		effectiveRate = taxesTotal / grossIncome
	}

	return cashflowYear{
		Year: cf.Year,
		Inflows: cashflowInflows{
			GrossIncome:          grossIncome,
			PortfolioWithdrawals: cf.Withdrawal,
			SocialSecurity:       cf.GuaranteedIncome,
		},
		Outflows: cashflowOutflows{
			Fixed:         0,
			Discretionary: 0,
			Insurance:     cf.MedicarePremium,
			GoalOutflows:  cf.LTCCost,
			TaxesTotal:    taxesTotal,
		},
		EffectiveTaxRate:  effectiveRate,
		BracketThresholds: thresholds,
		TaxableIncome:     taxableIncome,
		MarginalRate:      marginalRate,
		Flags: cashflowFlags{
			RothConversionSuggested: marginalRate <= 0.12 && taxableIncome > 0,
			QCDSuggested:            cf.Age >= 70 && cf.Withdrawal > 0,
			DAFBunchingSuggested:    marginalRate >= 0.32,
		},
	}
}

// mapAndValidate maps a Profile to RetirementParams and validates it,
// writing a 400 error response and returning ok=false on any failure.
func (s *Server) mapAndValidate(w http.ResponseWriter, profile engine.Profile) (engine.RetirementParams, engine.ValidationResult, bool) {
	params, warnings, err := engine.ProfileToRetirementParams(profile, time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return engine.RetirementParams{}, engine.ValidationResult{}, false
	}

	validation := engine.ValidateParameters(params)
	if !validation.IsValid {
		writeJSON(w, http.StatusBadRequest, errorResponse{Errors: validation.Errors, Warnings: validation.Warnings})
		return engine.RetirementParams{}, engine.ValidationResult{}, false
	}
	for _, mw := range warnings {
		validation.Warnings = append(validation.Warnings, engine.ValidationIssue{Field: mw.Field, Message: mw.Message})
	}
	return params, validation, true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *engine.TimeoutError:
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Message: err.Error()})
	case *engine.ValidationError:
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	default:
		log.Printf("simulation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed writing response body: %v", err)
	}
}
