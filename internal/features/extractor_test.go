package features

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func fullPayload() map[string]interface{} {
	return map[string]interface{}{
		"price_age_min":          5.0,
		"availability_age_min":   3.0,
		"mileage_age_min":        60.0,
		"price_parity_ok":        true,
		"avail_parity_ok":        true,
		"gbp_hours_match_site":   true,
		"ai_zero_click_share":    0.42,
		"citation_depth_idx":     0.6,
		"cwv_lcp_ms":             2100.0,
		"cwv_inp_ms":             150.0,
		"cwv_cls":                0.05,
		"review_reply_rate":      85.0,
		"avg_rating":             4.6,
		"review_volume":          320,
		"inventory_recency_idx":  0.9,
		"policy_violation_flag":  false,
		"dishonest_pricing_flag": false,
		"entity_resolve_score":   0.92,
		"schema_completeness":    0.8,
		"nap_consistency":        0.97,
	}
}

func TestExtractFullPayload(t *testing.T) {
	e := NewExtractor(zerolog.Nop())

	got, err := e.Extract(fullPayload(), nil, Metadata{Source: "api", Now: testNow})
	require.NoError(t, err)

	assert.Equal(t, 1.0, got.Completeness)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Empty(t, got.Missing)

	bundle, err := got.Features.Bundle()
	require.NoError(t, err)
	assert.Equal(t, 320.0, bundle.ReviewVolume)
	assert.True(t, bundle.GBPHoursMatchSite)
}

func TestExtractMissingFieldsLowerCompleteness(t *testing.T) {
	payload := fullPayload()
	delete(payload, "cwv_cls")
	payload["price_parity_ok"] = nil

	got, err := NewExtractor(zerolog.Nop()).Extract(payload, nil, Metadata{Source: "api", Now: testNow})
	require.NoError(t, err)

	assert.InDelta(t, 18.0/20.0, got.Completeness, 1e-9)
	assert.Equal(t, []string{"price_parity_ok", "cwv_cls"}, got.Missing)
	assert.Equal(t, []string{"price_parity_ok"}, got.MissingCritical)
	assert.Greater(t, got.Confidence, 0.0)
}

func TestExtractRejectsWrongKinds(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value interface{}
	}{
		{"string for number", "avg_rating", "4.5"},
		{"number for bool", "price_parity_ok", 1.0},
		{"object for number", "cwv_lcp_ms", map[string]interface{}{"p75": 2000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := fullPayload()
			payload[tt.field] = tt.value

			_, err := NewExtractor(zerolog.Nop()).Extract(payload, nil, Metadata{Now: testNow})

			var verr contracts.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	e := NewExtractor(zerolog.Nop())

	got, err := e.ExtractJSON([]byte(`{"avg_rating": 4.2, "unknown": "ignored"}`), nil, Metadata{Now: testNow})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/20.0, got.Completeness, 1e-9)

	_, err = e.ExtractJSON([]byte(`[1,2,3]`), nil, Metadata{})
	assert.Error(t, err)

	_, err = e.ExtractJSON([]byte(`null`), nil, Metadata{})
	assert.Error(t, err)
}

func TestConfidenceBySourceAndStaleness(t *testing.T) {
	e := NewExtractor(zerolog.Nop())

	mock, err := e.Extract(fullPayload(), nil, Metadata{Source: "mock", Now: testNow})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mock.Confidence, 1e-9)

	stale, err := e.Extract(fullPayload(), nil, Metadata{
		Source:      "api",
		CollectedAt: testNow.Add(-10 * 24 * time.Hour),
		Now:         testNow,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, stale.Confidence, 1e-9)
}

func TestListingsFillDerivedFields(t *testing.T) {
	payload := fullPayload()
	delete(payload, "inventory_recency_idx")
	delete(payload, "price_age_min")

	listings := []contracts.ListingRecord{
		{VIN: "1HGCM82633A000001", Price: 21000, Available: true, UpdatedAt: testNow.Add(-1 * time.Hour)},
		{VIN: "1HGCM82633A000002", Price: 18500, Available: true, UpdatedAt: testNow.Add(-3 * time.Hour)},
		{VIN: "1HGCM82633A000003", Price: 0, Available: false, UpdatedAt: testNow.Add(-100 * time.Hour)},
	}

	got, err := NewExtractor(zerolog.Nop()).Extract(payload, listings, Metadata{Source: "api", Now: testNow})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"inventory_recency_idx", "price_age_min"}, got.Derived)
	assert.Equal(t, 1.0, got.Completeness)

	bundle, err := got.Features.Bundle()
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, bundle.InventoryRecencyIdx, 1e-9)
	assert.InDelta(t, 120.0, bundle.PriceAgeMin, 1e-9)
	// supplied value wins over derivation
	assert.Equal(t, 3.0, bundle.AvailabilityAgeMin)

	assert.Equal(t, 3, got.Vin.Count)
	assert.Equal(t, 2, got.Vin.Available)
	assert.InDelta(t, 2.0/3.0, got.Vin.PricedShare, 1e-9)
	assert.InDelta(t, 180.0, got.Vin.MedianAgeMin, 1e-9)
}

func TestRegistry(t *testing.T) {
	assert.Len(t, AllFields(), len(contracts.FeatureFieldNames))
	for i, spec := range AllFields() {
		assert.Equal(t, contracts.FeatureFieldNames[i], spec.Name)
		kind, ok := contracts.FieldKindOf(spec.Name)
		require.True(t, ok)
		assert.Equal(t, kind, spec.Kind)
	}

	critical := FieldsByImportance(Critical)
	assert.NotEmpty(t, critical)
	for _, spec := range critical {
		assert.NotEmpty(t, spec.Description)
	}

	_, ok := Lookup("nope")
	assert.False(t, ok)
}
