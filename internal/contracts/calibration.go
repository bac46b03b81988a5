package contracts

import "time"

// ListingRecord is one VIN-level inventory listing
type ListingRecord struct {
	VIN       string    `json:"vin"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	Mileage   float64   `json:"mileage"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntitySnapshot is what a signal source reports for one dealership entity in a period
type EntitySnapshot struct {
	EntityID      string                 `json:"entity_id"`
	Raw           map[string]interface{} `json:"raw"`
	Listings      []ListingRecord        `json:"listings,omitempty"`
	ListingsURL   string                 `json:"listings_url,omitempty"`
	Outcome       float64                `json:"outcome"`   // revenue (currency)
	Secondary     float64                `json:"secondary"` // leads
	ObservedScore *float64               `json:"observed_score,omitempty"`
	CollectedAt   time.Time              `json:"collected_at"`
	Source        string                 `json:"source"` // api, scraped, mock
}

// PeriodObservation aggregates one tenant period after Ingest
type PeriodObservation struct {
	Tenant       string      `json:"tenant"`
	Period       time.Time   `json:"period"`
	Pillars      SubScoreSet `json:"pillars"`
	Composite    float64     `json:"composite"`
	Outcome      float64     `json:"outcome"`
	Secondary    float64     `json:"secondary"`
	Completeness float64     `json:"completeness"`
	EntityCount  int         `json:"entity_count"`
}

// SpendChannel is one marketing channel from the spend ledger
type SpendChannel struct {
	Name    string  `json:"name"`
	Spend   float64 `json:"spend"`
	Results float64 `json:"results"`
	Revenue float64 `json:"revenue"`
}

// CostPerResult returns spend/results, +Inf when nothing was produced
func (c SpendChannel) CostPerResult() float64 {
	if c.Results <= 0 {
		if c.Spend <= 0 {
			return 0
		}
		return posInf
	}
	return c.Spend / c.Results
}

// CalibrationSummary is the rolling-window regression outcome
type CalibrationSummary struct {
	Elasticity           float64                `json:"elasticity_usd_per_pt"`
	Intercept            float64                `json:"intercept"`
	R2                   float64                `json:"r2"`
	RMSE                 float64                `json:"rmse"`
	MAPE                 float64                `json:"mape"`
	SecondaryCorrelation float64                `json:"secondary_correlation"`
	Gradients            map[SubScoreID]float64 `json:"gradients"`
	WindowSize           int                    `json:"window_size"`
}

// ForecastSummary is what Report keeps of the Predict stage
type ForecastSummary struct {
	Horizon         int       `json:"horizon"`
	Values          []float64 `json:"values"`
	Slope           float64   `json:"slope"`
	Confidence      float64   `json:"confidence"`
	ConfidenceLabel string    `json:"confidence_label"`
	ProjectedGain   float64   `json:"projected_outcome_gain"`
}

// SpendSummary is what Report keeps of the OptimizeSpend stage
type SpendSummary struct {
	Available        bool     `json:"available"`
	TotalSpend       float64  `json:"total_spend"`
	TotalResults     float64  `json:"total_results"`
	TotalRevenue     float64  `json:"total_revenue"`
	AdEfficiency     float64  `json:"ad_efficiency"` // results per currency unit
	ROI              float64  `json:"roi_percent"`
	Threshold        float64  `json:"cpr_threshold"`
	Flagged          []string `json:"flagged_channels"`
	ProjectedSavings float64  `json:"projected_savings"`
	ROIDelta         float64  `json:"roi_delta"`
}

// BenchmarkDeltas compares a run with the previous record
type BenchmarkDeltas struct {
	RMSE         float64 `json:"rmse"`
	R2           float64 `json:"r2"`
	Elasticity   float64 `json:"elasticity"`
	AdEfficiency float64 `json:"ad_efficiency"`
	ROI          float64 `json:"roi"`
}

// SuccessCriteria are the weekly pass/fail checks
type SuccessCriteria struct {
	AccuracyGainMet bool `json:"accuracy_gain_met"`
	AdEfficiencyMet bool `json:"ad_efficiency_met"`
	R2Met           bool `json:"r2_met"`
	Success         bool `json:"success"`
}

// BenchmarkRecord is the immutable weekly report
// ⭐ SSOT: 주간 벤치마크 레코드
type BenchmarkRecord struct {
	ID                      string             `json:"id"`
	RunID                   string             `json:"run_id"`
	Tenant                  string             `json:"tenant"`
	Period                  time.Time          `json:"period"`
	WeightsVersion          int                `json:"weights_version"`
	Calibration             CalibrationSummary `json:"calibration"`
	Forecast                ForecastSummary    `json:"forecast"`
	Spend                   SpendSummary       `json:"spend"`
	HasPrevious             bool               `json:"has_previous"`
	Deltas                  BenchmarkDeltas    `json:"deltas"`
	AccuracyGainPercent     float64            `json:"accuracy_gain_percent"`
	AdEfficiencyGainPercent float64            `json:"ad_efficiency_gain_percent"`
	Criteria                SuccessCriteria    `json:"criteria"`
	DegradedStages          []string           `json:"degraded_stages,omitempty"`
	Recommendations         []string           `json:"recommendations,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
}
