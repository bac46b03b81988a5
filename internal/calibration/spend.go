package calibration

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Reallocation is one planned spend move
type Reallocation struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Amount  float64 `json:"amount"`
	Savings float64 `json:"savings"`
}

// SpendPlan is the OptimizeSpend output
type SpendPlan struct {
	Summary contracts.SpendSummary `json:"summary"`
	Moves   []Reallocation         `json:"moves"`
}

// optimizeSpend flags channels whose cost per result exceeds what a result
// is worth and plans a partial move to the cheapest unflagged channel.
func (r *runContext) optimizeSpend(ctx context.Context) error {
	ledger := r.loop.deps.Spend
	if ledger == nil {
		r.result.Spend = &contracts.SpendSummary{Available: false}
		return fmt.Errorf("no spend ledger configured: %w", errSkipped)
	}

	var channels []contracts.SpendChannel
	err := r.loop.cfg.Retry.Do(ctx, r.log, "fetch_spend", func(ctx context.Context) error {
		var err error
		channels, err = ledger.FetchSpend(ctx, r.tenant, r.period)
		return err
	})
	if err != nil {
		r.result.Spend = &contracts.SpendSummary{Available: false}
		return fmt.Errorf("fetch spend: %w", err)
	}
	if len(channels) == 0 {
		r.result.Spend = &contracts.SpendSummary{Available: false}
		return &contracts.InsufficientDataError{Stage: string(StageOptimizeSpend), What: "spend channels", Have: 0, Need: 1}
	}

	elasticity := 0.0
	if r.result.Calibration != nil {
		elasticity = r.result.Calibration.Elasticity
	}

	plan := PlanSpend(channels, elasticity, r.loop.cfg.PointsPerResult, r.loop.cfg.ReallocationShare)
	r.result.Spend = &plan.Summary
	r.result.Reallocations = plan.Moves
	return nil
}

// PlanSpend computes spend totals and the reallocation plan.
// A non-positive threshold flags nothing.
func PlanSpend(channels []contracts.SpendChannel, elasticity, pointsPerResult, share float64) SpendPlan {
	var s contracts.SpendSummary
	s.Available = true
	for _, c := range channels {
		s.TotalSpend += c.Spend
		s.TotalResults += c.Results
		s.TotalRevenue += c.Revenue
	}
	if s.TotalSpend > 0 {
		s.AdEfficiency = s.TotalResults / s.TotalSpend
		s.ROI = roi(s.TotalRevenue, s.TotalSpend)
	}
	s.Threshold = elasticity * pointsPerResult

	plan := SpendPlan{}
	if s.Threshold <= 0 {
		plan.Summary = s
		return plan
	}

	var flagged, healthy []contracts.SpendChannel
	for _, c := range channels {
		if c.Spend > 0 && c.CostPerResult() > s.Threshold {
			flagged = append(flagged, c)
			s.Flagged = append(s.Flagged, c.Name)
			continue
		}
		if c.Results > 0 {
			healthy = append(healthy, c)
		}
	}
	sort.Strings(s.Flagged)

	if len(flagged) > 0 && len(healthy) > 0 {
		sort.SliceStable(healthy, func(i, j int) bool {
			return healthy[i].CostPerResult() < healthy[j].CostPerResult()
		})
		best := healthy[0]
		bestCPR := best.CostPerResult()

		for _, c := range flagged {
			moved := c.Spend * share
			// CPR_best/+Inf is 0: a channel with no results saves everything moved
			savings := moved * (1 - bestCPR/c.CostPerResult())
			plan.Moves = append(plan.Moves, Reallocation{From: c.Name, To: best.Name, Amount: moved, Savings: savings})
			s.ProjectedSavings += savings
		}

		if spendAfter := s.TotalSpend - s.ProjectedSavings; spendAfter > 0 {
			s.ROIDelta = roi(s.TotalRevenue, spendAfter) - s.ROI
		}
	}

	plan.Summary = s
	return plan
}

func roi(revenue, spend float64) float64 {
	if spend <= 0 || math.IsInf(spend, 0) {
		return 0
	}
	return (revenue - spend) / spend * 100
}
