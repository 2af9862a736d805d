package simulation

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/areumfire/retirement-mc/internal/engine"
)

// maxWorkers caps goroutine fan-out regardless of GOMAXPROCS, following the
// bounded-concurrency semaphore pattern the pack's other Monte Carlo driver
// uses (rgehrsitz-rpgo's montecarlo.go: a fixed-size channel gates how many
// simulations run at once while a WaitGroup tracks completion).
const maxWorkers = 8

// nonFiniteAbortFraction is the share of trials allowed to produce a
// non-finite (NaN/Inf) ending balance before the batch is treated as a
// numerical failure rather than reported with a reduced trial count.
const nonFiniteAbortFraction = 0.001

// DefaultTimeout is the deadline internal/api puts on the request context of
// each simulation. Run stops on the context's deadline only; it does not read
// DriverRequest.Timeout.
const DefaultTimeout = 60 * time.Second

// trialUnit is the smallest piece of work a worker claims: one trial index,
// or — under antithetic variance reduction — a mirrored pair that must run
// on the same goroutine so the odd trial can replay the even trial's tape.
type trialUnit struct {
	indices []int
}

// Run executes req.Iterations independent trials and aggregates them. Each
// trial's RNG stream is derived from (req.Seed or req.Params.RandomSeed,
// "trial-<i>", or "trial-pair-<k>" for an antithetic pair) with a nil
// parent, so the derivation is a pure function of
// the trial index and base seed — identical regardless of how trials are
// partitioned across workers, sequential execution, or goroutine scheduling
// order. Changing req.Workers therefore never changes the result, which is
// the driver's core determinism guarantee.
func Run(ctx context.Context, req DriverRequest) (AggregateResult, error) {
	if req.Iterations <= 0 {
		return AggregateResult{}, &engine.ValidationError{Issues: []engine.ValidationIssue{
			{Field: "Iterations", Message: "must be positive"},
		}}
	}

	baseSeed := req.Seed
	if baseSeed == 0 {
		baseSeed = req.Params.RandomSeed
	}

	units := buildTrialUnits(req.Iterations, req.VarianceReduction.Antithetic)
	results := make([]engine.TrialResult, req.Iterations)

	workers := clampWorkers(req.Workers)

	var runErr error
	if workers == 1 {
		runErr = runUnitsSequential(ctx, req, baseSeed, units, results)
	} else {
		runErr = runUnitsParallel(ctx, req, baseSeed, units, results, workers)
	}
	if runErr != nil {
		if req.AllowPartial && isTimeout(runErr) {
			runErr = nil
		} else {
			return AggregateResult{}, runErr
		}
	}

	agg := mergePartials(shardResults(results, workers))
	nonFinite := agg.nonFiniteCount

	if req.Iterations > 0 && float64(nonFinite)/float64(req.Iterations) > nonFiniteAbortFraction && !req.AllowPartial {
		return AggregateResult{}, &engine.NumericalFailure{
			TrialIndex: -1,
			Seed:       baseSeed,
			Detail:     fmt.Sprintf("%d/%d trials produced non-finite results, exceeding the %.3f%% abort threshold", nonFinite, req.Iterations, nonFiniteAbortFraction*100),
		}
	}

	return Aggregate(agg, req.Params.WithdrawalRate), nil
}

// shardResults partitions results into contiguous blocks (in original trial
// index order) and folds each block into its own partialAggregate, so Run's
// final aggregation exercises mergePartials instead of scanning the flat
// slice directly. Because mergePartials concatenates in slice order, this
// produces identical output to a single-pass scan regardless of how many
// workers ran the batch.
func shardResults(results []engine.TrialResult, workers int) []*partialAggregate {
	if workers < 1 {
		workers = 1
	}
	n := len(results)
	shardSize := (n + workers - 1) / workers
	if shardSize < 1 {
		shardSize = 1
	}
	parts := make([]*partialAggregate, 0, workers)
	for start := 0; start < n; start += shardSize {
		end := start + shardSize
		if end > n {
			end = n
		}
		part := newPartialAggregate()
		for _, r := range results[start:end] {
			if r.Cashflows == nil && !r.Success && r.EndingBalance == 0 && !r.NonFinite {
				continue // slot never ran (only possible on a partial timeout)
			}
			part.add(r)
		}
		parts = append(parts, part)
	}
	return parts
}

func clampWorkers(requested int) int {
	workers := requested
	if workers <= 0 {
		workers = 1
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if hw := runtime.GOMAXPROCS(0); workers > hw {
		workers = hw
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func isTimeout(err error) bool {
	_, ok := err.(*engine.TimeoutError)
	return ok
}

// buildTrialUnits partitions [0, n) into units. Without antithetic pairing
// each unit is a single trial; with it, consecutive pairs (0,1), (2,3), ...
// are grouped so the mirrored draw always runs immediately after its
// partner, on the same goroutine. A trailing unpaired trial (odd n) runs
// unmirrored.
func buildTrialUnits(n int, antithetic bool) []trialUnit {
	if !antithetic {
		units := make([]trialUnit, n)
		for i := 0; i < n; i++ {
			units[i] = trialUnit{indices: []int{i}}
		}
		return units
	}
	var units []trialUnit
	for i := 0; i < n; i += 2 {
		if i+1 < n {
			units = append(units, trialUnit{indices: []int{i, i + 1}})
		} else {
			units = append(units, trialUnit{indices: []int{i}})
		}
	}
	return units
}

// stratify wraps root with a Latin Hypercube stratified stream for its unit's
// position among totalUnits, when the request asked for stratification; each
// trial (or antithetic pair) consumes its own stratum of [0,1) so the batch's
// trial-to-trial spread is broader than independent uniform sampling would
// give.
func stratify(req DriverRequest, root *engine.SeededRNG, unitIndex, totalUnits int) engine.RNG {
	if !req.VarianceReduction.Stratified {
		return root
	}
	return engine.NewStratifiedRNG(root, unitIndex, totalUnits)
}

// runUnit executes one trialUnit, deriving RNGs from baseSeed with no
// shared mutable parent stream. A paired unit derives a single root stream
// per pair, records the even trial's draws, then replays them mirrored for
// the odd trial.
func runUnit(req DriverRequest, baseSeed uint32, unit trialUnit, unitIndex, totalUnits int, results []engine.TrialResult) {
	if len(unit.indices) == 1 {
		idx := unit.indices[0]
		root := engine.DeriveRNG(nil, fmt.Sprintf("trial-%d", idx), baseSeed)
		rng := stratify(req, root, unitIndex, totalUnits)
		results[idx] = engine.RunTrial(req.Params, rng, req.ReturnConfig)
		return
	}

	evenIdx, oddIdx := unit.indices[0], unit.indices[1]
	pairIndex := evenIdx / 2
	root := engine.DeriveRNG(nil, fmt.Sprintf("trial-pair-%d", pairIndex), baseSeed)
	rng := stratify(req, root, unitIndex, totalUnits)

	recorder := engine.NewRecordingRNG(rng)
	results[evenIdx] = engine.RunTrial(req.Params, recorder, req.ReturnConfig)

	replay := engine.NewReplayRNG(recorder.Tape(), true)
	results[oddIdx] = engine.RunTrial(req.Params, replay, req.ReturnConfig)
}

func runUnitsSequential(ctx context.Context, req DriverRequest, baseSeed uint32, units []trialUnit, results []engine.TrialResult) error {
	start := time.Now()
	total := len(units)
	for i, u := range units {
		select {
		case <-ctx.Done():
			return &engine.TimeoutError{Elapsed: time.Since(start).String()}
		default:
		}
		runUnitSafely(req, baseSeed, u, i, total, results)
	}
	return nil
}

func runUnitsParallel(ctx context.Context, req DriverRequest, baseSeed uint32, units []trialUnit, results []engine.TrialResult, workers int) error {
	start := time.Now()
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	total := len(units)

	for i, u := range units {
		select {
		case <-ctx.Done():
			wg.Wait()
			return &engine.TimeoutError{Elapsed: time.Since(start).String()}
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(unit trialUnit, unitIndex int) {
			defer wg.Done()
			defer func() { <-sem }()
			runUnitSafely(req, baseSeed, unit, unitIndex, total, results)
		}(u, i)
	}

	wg.Wait()
	return nil
}

// runUnitSafely retries a unit once with a freshly derived stream if
// engine.RunTrial panics (a numerical failure inside a single trial should
// not take down the whole batch). A second panic marks every trial in the
// unit non-finite so it is excluded by the abort-fraction check rather than
// silently reported as a zero-balance success.
func runUnitSafely(req DriverRequest, baseSeed uint32, unit trialUnit, unitIndex, totalUnits int, results []engine.TrialResult) {
	defer func() {
		if rec := recover(); rec != nil {
			retrySeed := baseSeed ^ 0xa5a5a5a5
			func() {
				defer func() {
					if rec2 := recover(); rec2 != nil {
						for _, idx := range unit.indices {
							results[idx] = engine.TrialResult{NonFinite: true}
						}
					}
				}()
				runUnit(req, retrySeed, unit, unitIndex, totalUnits, results)
			}()
		}
	}()
	runUnit(req, baseSeed, unit, unitIndex, totalUnits, results)
}
