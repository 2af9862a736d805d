package engine

import "math"

// WithdrawalPlan is the per-year outcome of running the withdrawal sequencer:
// how much came from each bucket category, across all owners, plus an
// audit trail of what happened.
type WithdrawalPlan struct {
	CashWithdrawn         float64
	CapitalGainsWithdrawn float64
	TaxDeferredWithdrawn  float64
	TaxFreeWithdrawn      float64
	RMDForced             float64
	Sequence              []string
}

// Total returns the sum withdrawn across all categories.
func (p *WithdrawalPlan) Total() float64 {
	return p.CashWithdrawn + p.CapitalGainsWithdrawn + p.TaxDeferredWithdrawn + p.TaxFreeWithdrawn
}

// SequenceWithdrawal draws netNeed out of the household's per-owner buckets.
// RMDs are forced first (even if they exceed net need, with the surplus
// flowing into the taxable/capital-gains bucket), then the default order
// cash -> taxable -> tax-deferred -> tax-free is applied to any remaining
// need, drawing proportionally across owners within each category by
// balance share. Returns the plan and the buckets as they stand after
// withdrawal.
func SequenceWithdrawal(buckets map[Owner]AssetBuckets, netNeed float64, age, rmdAge int) (*WithdrawalPlan, map[Owner]AssetBuckets) {
	plan := &WithdrawalPlan{}
	updated := cloneBuckets(buckets)

	remaining := netNeed

	// RMDs first, mandatory regardless of need.
	for owner, b := range updated {
		rmd := CalculateRMD(age, rmdAge, b.TaxDeferred)
		if rmd <= 0 {
			continue
		}
		b.TaxDeferred -= rmd
		applied := math.Min(rmd, math.Max(remaining, 0))
		surplus := rmd - applied
		b.CapitalGains += surplus
		remaining -= applied
		plan.RMDForced += rmd
		plan.TaxDeferredWithdrawn += rmd
		updated[owner] = b
		plan.Sequence = append(plan.Sequence, "rmd")
	}

	if remaining > 1e-9 {
		remaining, plan.CashWithdrawn = drawCategory(updated, remaining, bucketCash)
		if plan.CashWithdrawn > 0 {
			plan.Sequence = append(plan.Sequence, "cash")
		}
	}
	if remaining > 1e-9 {
		var drawn float64
		remaining, drawn = drawCategory(updated, remaining, bucketCapitalGains)
		plan.CapitalGainsWithdrawn += drawn
		if drawn > 0 {
			plan.Sequence = append(plan.Sequence, "taxable")
		}
	}
	if remaining > 1e-9 {
		var drawn float64
		remaining, drawn = drawCategory(updated, remaining, bucketTaxDeferred)
		plan.TaxDeferredWithdrawn += drawn
		if drawn > 0 {
			plan.Sequence = append(plan.Sequence, "tax-deferred")
		}
	}
	if remaining > 1e-9 {
		var drawn float64
		remaining, drawn = drawCategory(updated, remaining, bucketTaxFree)
		plan.TaxFreeWithdrawn += drawn
		if drawn > 0 {
			plan.Sequence = append(plan.Sequence, "tax-free")
		}
	}

	return plan, updated
}

type bucketCategory int

const (
	bucketCash bucketCategory = iota
	bucketCapitalGains
	bucketTaxDeferred
	bucketTaxFree
)

// categoryBalance folds CashValueLifeInsurance into the cash category: a
// policy's cash value is as liquid as savings for withdrawal-sequencing
// purposes even though it earns its own crediting rate while it grows.
func categoryBalance(b AssetBuckets, cat bucketCategory) float64 {
	switch cat {
	case bucketCash:
		return b.CashEquivalents + b.CashValueLifeInsurance
	case bucketCapitalGains:
		return b.CapitalGains
	case bucketTaxDeferred:
		return b.TaxDeferred
	case bucketTaxFree:
		return b.TaxFree
	}
	return 0
}

func setCategoryBalance(b *AssetBuckets, cat bucketCategory, v float64) {
	switch cat {
	case bucketCash:
		total := b.CashEquivalents + b.CashValueLifeInsurance
		if total <= 0 {
			b.CashEquivalents = v
			return
		}
		ceShare := b.CashEquivalents / total
		b.CashEquivalents = v * ceShare
		b.CashValueLifeInsurance = v * (1 - ceShare)
	case bucketCapitalGains:
		b.CapitalGains = v
	case bucketTaxDeferred:
		b.TaxDeferred = v
	case bucketTaxFree:
		b.TaxFree = v
	}
}

// drawCategory proportionally withdraws up to `need` from one bucket
// category across all owners, by each owner's share of that category's
// total balance. Returns the remaining unmet need and the total drawn.
func drawCategory(buckets map[Owner]AssetBuckets, need float64, cat bucketCategory) (float64, float64) {
	total := 0.0
	for _, b := range buckets {
		total += categoryBalance(b, cat)
	}
	if total <= 0 {
		return need, 0
	}
	draw := math.Min(need, total)
	for owner, b := range buckets {
		bal := categoryBalance(b, cat)
		if bal <= 0 {
			continue
		}
		share := bal / total * draw
		setCategoryBalance(&b, cat, bal-share)
		buckets[owner] = b
	}
	return need - draw, draw
}

func cloneBuckets(buckets map[Owner]AssetBuckets) map[Owner]AssetBuckets {
	out := make(map[Owner]AssetBuckets, len(buckets))
	for k, v := range buckets {
		out[k] = v
	}
	return out
}

// RothConversionAmount returns the taxable amount to convert from
// tax-deferred to tax-free this year, when Roth conversions are enabled:
// bracket-fill up to the top of the household's current federal bracket
// without exceeding the remaining tax-deferred balance.
func RothConversionAmount(taxDeferredBalance, currentTaxableIncome, topOfBracketIncome float64, enabled bool) float64 {
	if !enabled || taxDeferredBalance <= 0 {
		return 0
	}
	room := topOfBracketIncome - currentTaxableIncome
	if room <= 0 {
		return 0
	}
	return math.Min(room, taxDeferredBalance)
}

// applyRothConversion moves amount out of tax-deferred into tax-free
// balances, drawn proportionally across owners by each owner's share of the
// household's total tax-deferred balance. The converted amount is taxed as
// ordinary income in the year it happens; callers fold it into that year's
// taxable income themselves.
func applyRothConversion(buckets map[Owner]AssetBuckets, amount float64) {
	total := 0.0
	for _, b := range buckets {
		total += b.TaxDeferred
	}
	if total <= 0 {
		return
	}
	for owner, b := range buckets {
		if b.TaxDeferred <= 0 {
			continue
		}
		share := b.TaxDeferred / total * amount
		b.TaxDeferred -= share
		b.TaxFree += share
		buckets[owner] = b
	}
}

// GuardrailState tracks the inputs the Guyton-Klinger rules need across
// years: the withdrawal rate fixed at retirement and whether last year's
// portfolio return was negative.
type GuardrailState struct {
	InitialWithdrawalRate float64
	PriorYearReturnNegative bool
}

// GuardrailAdjustment is the Guyton-Klinger decision for the upcoming year's
// withdrawal: a multiplier on the prior withdrawal amount, whether this
// year's inflation adjustment is skipped, and the adjustment's audit
// type/reason for YearlyCashflow. RMDs are applied before guardrails decide
// on the inflation adjustment; callers must compute currentWithdrawalRate
// from the post-RMD withdrawal.
func GuardrailAdjustment(state GuardrailState, currentWithdrawalRate float64) (multiplier float64, skipInflationAdjust bool, adjType, reason string) {
	multiplier = 1.0
	if state.PriorYearReturnNegative {
		skipInflationAdjust = true
		adjType = "portfolio-management"
		reason = "skipped inflation adjustment after a negative portfolio return"
	}
	switch {
	case currentWithdrawalRate > state.InitialWithdrawalRate*1.2:
		multiplier = 0.90
		adjType = "capital-preservation"
		reason = "withdrawal rate exceeded 120% of initial rate; cut 10%"
	case currentWithdrawalRate < state.InitialWithdrawalRate*0.8:
		multiplier = 1.10
		adjType = "prosperity"
		reason = "withdrawal rate fell below 80% of initial rate; raised 10%"
	}
	return
}
