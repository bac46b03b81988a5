package scoring

import "github.com/wonny/dealerai/backend/internal/contracts"

type term struct {
	weight float64
	value  float64
}

// combine is a fixed weighted sum re-clamped to [0,100]
func combine(terms ...term) float64 {
	total := 0.0
	for _, t := range terms {
		total += t.weight * t.value
	}
	return clampScore(total)
}

// SubScores computes the nine sub-scores of a bundle
func (e *Engine) SubScores(b contracts.FeatureBundle) contracts.SubScoreSet {
	c := e.cfg
	priceFresh := freshness(b.PriceAgeMin, c.Freshness.PriceStaleMin)
	availFresh := freshness(b.AvailabilityAgeMin, c.Freshness.AvailabilityStaleMin)
	mileageFresh := freshness(b.MileageAgeMin, c.Freshness.MileageStaleMin)

	entity := ratio(b.EntityResolveScore)
	nap := ratio(b.NAPConsistency)
	schema := ratio(b.SchemaCompleteness)
	citation := ratio(b.CitationDepthIdx)
	stars := rating(b.AvgRating)
	honest := honesty(b.PolicyViolation, b.DishonestPricing)

	return contracts.SubScoreSet{
		contracts.ATI: combine(
			term{0.30, entity}, term{0.25, nap}, term{0.20, schema},
			term{0.15, stars}, term{0.10, honest},
		),
		contracts.AIV: combine(
			term{0.45, ratio(b.AIZeroClickShare)}, term{0.35, citation}, term{0.20, schema},
		),
		contracts.VLI: combine(
			term{0.35, priceFresh}, term{0.25, availFresh}, term{0.15, mileageFresh},
			term{0.25, parityShare([]bool{b.PriceParityOK, b.AvailParityOK})},
		),
		contracts.OI: combine(
			term{0.35, (priceFresh + availFresh) / 2},
			term{0.30, parityShare(b.ParityChecks())},
			term{0.35, honest},
		),
		contracts.GBP: combine(
			term{0.40, boolScore(b.GBPHoursMatchSite)}, term{0.30, nap}, term{0.30, stars},
		),
		contracts.RRS: combine(
			term{0.35, stars}, term{0.35, percent(b.ReviewReplyRate)},
			term{0.30, volume(b.ReviewVolume, c.Reviews.VolumeSaturation)},
		),
		contracts.WX: combine(
			term{0.45, tier(b.CWVLCPMs, c.WebVitals.LCPGoodMs, c.WebVitals.LCPPoorMs)},
			term{0.30, tier(b.CWVINPMs, c.WebVitals.INPGoodMs, c.WebVitals.INPPoorMs)},
			term{0.25, tier(b.CWVCLS, c.WebVitals.CLSGood, c.WebVitals.CLSPoor)},
		),
		contracts.IFR: combine(
			term{0.70, ratio(b.InventoryRecencyIdx)},
			term{0.30, (priceFresh + availFresh + mileageFresh) / 3},
		),
		contracts.CIS: combine(
			term{0.40, schema}, term{0.35, entity}, term{0.25, citation},
		),
	}
}
