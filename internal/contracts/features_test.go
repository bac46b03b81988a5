package contracts

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle() FeatureBundle {
	return FeatureBundle{
		PriceAgeMin:         5,
		AvailabilityAgeMin:  3,
		MileageAgeMin:       60,
		PriceParityOK:       true,
		AvailParityOK:       true,
		GBPHoursMatchSite:   false,
		AIZeroClickShare:    0.4,
		CitationDepthIdx:    0.6,
		CWVLCPMs:            2100,
		CWVINPMs:            180,
		CWVCLS:              0.05,
		ReviewReplyRate:     80,
		AvgRating:           4.5,
		ReviewVolume:        250,
		InventoryRecencyIdx: 0.9,
		EntityResolveScore:  0.9,
		SchemaCompleteness:  0.8,
		NAPConsistency:      0.95,
	}
}

func TestRawFeaturesRoundTrip(t *testing.T) {
	b := sampleBundle()
	raw := b.Raw()

	assert.Empty(t, raw.Missing())
	got, err := raw.Bundle()
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestBundleReportsMissingFieldsInOrder(t *testing.T) {
	raw := sampleBundle().Raw()
	raw.CWVCLS = nil
	raw.PriceAgeMin = nil

	_, err := raw.Bundle()

	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"price_age_min", "cwv_cls"}, missing.Fields)
}

func TestBundleRejectsNonFinite(t *testing.T) {
	raw := sampleBundle().Raw()
	raw.SetNumber("avg_rating", math.NaN())

	_, err := raw.Bundle()

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "avg_rating", verr.Field)
}

func TestSettersAndKinds(t *testing.T) {
	var raw RawFeatures

	assert.True(t, raw.SetNumber("review_volume", 12))
	assert.False(t, raw.SetNumber("price_parity_ok", 1))
	assert.True(t, raw.SetBool("price_parity_ok", true))
	assert.False(t, raw.SetBool("unknown", true))

	assert.True(t, raw.Has("review_volume"))
	assert.Len(t, raw.Missing(), len(FeatureFieldNames)-2)

	kind, ok := FieldKindOf("cwv_lcp_ms")
	assert.True(t, ok)
	assert.Equal(t, KindNumber, kind)

	kind, ok = FieldKindOf("dishonest_pricing_flag")
	assert.True(t, ok)
	assert.Equal(t, KindBool, kind)
}

func TestParityFailRate(t *testing.T) {
	b := sampleBundle()
	assert.InDelta(t, 1.0/3.0, b.ParityFailRate(), 1e-9)

	b.PriceParityOK = false
	assert.InDelta(t, 2.0/3.0, b.ParityFailRate(), 1e-9)
}

func TestInsufficientDataErrorIs(t *testing.T) {
	err := error(&InsufficientDataError{Stage: "learner", Have: 10, Need: 100, What: "training data"})
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.Contains(t, err.Error(), "insufficient training data")
}
