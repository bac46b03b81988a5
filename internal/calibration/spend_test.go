package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

func TestPlanSpend(t *testing.T) {
	channels := []contracts.SpendChannel{
		{Name: "display", Spend: 1000, Results: 10, Revenue: 1000}, // CPR 100
		{Name: "search", Spend: 1000, Results: 50, Revenue: 2000},  // CPR 20
	}

	plan := PlanSpend(channels, 40, 1.5, 0.3)
	s := plan.Summary

	assert.True(t, s.Available)
	assert.Equal(t, 60.0, s.Threshold)
	assert.Equal(t, []string{"display"}, s.Flagged)
	assert.InDelta(t, 0.03, s.AdEfficiency, 1e-12)
	assert.InDelta(t, 50.0, s.ROI, 1e-9)

	require.Len(t, plan.Moves, 1)
	assert.Equal(t, "display", plan.Moves[0].From)
	assert.Equal(t, "search", plan.Moves[0].To)
	assert.InDelta(t, 300, plan.Moves[0].Amount, 1e-9)
	// 300 × (1 − 20/100)
	assert.InDelta(t, 240, s.ProjectedSavings, 1e-9)
	assert.InDelta(t, (3000.0-1760)/1760*100-50, s.ROIDelta, 1e-9)
}

func TestPlanSpendEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		channels   []contracts.SpendChannel
		elasticity float64
		flagged    []string
		savings    float64
	}{
		{
			name:       "non-positive elasticity flags nothing",
			channels:   []contracts.SpendChannel{{Name: "a", Spend: 100, Results: 1}},
			elasticity: -5,
		},
		{
			name: "zero-result channel moves at full saving",
			channels: []contracts.SpendChannel{
				{Name: "tv", Spend: 1000},
				{Name: "search", Spend: 500, Results: 25},
			},
			elasticity: 100,
			flagged:    []string{"tv"},
			savings:    300,
		},
		{
			name: "no healthy destination plans nothing",
			channels: []contracts.SpendChannel{
				{Name: "a", Spend: 1000, Results: 1},
				{Name: "b", Spend: 1000, Results: 2},
			},
			elasticity: 10,
			flagged:    []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanSpend(tt.channels, tt.elasticity, 1.5, 0.3)
			assert.Equal(t, tt.flagged, plan.Summary.Flagged)
			assert.InDelta(t, tt.savings, plan.Summary.ProjectedSavings, 1e-9)
			assert.False(t, math.IsNaN(plan.Summary.ROIDelta))
		})
	}
}
