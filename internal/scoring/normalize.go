package scoring

import "math"

// clamp bounds v to [lo, hi]; NaN maps to lo
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampScore(v float64) float64 {
	return clamp(v, 0, 100)
}

// freshness decays linearly from 100 at age 0 to 0 at staleAfter
func freshness(ageMin, staleAfter float64) float64 {
	age := math.Max(0, ageMin)
	if math.IsNaN(age) {
		return 0
	}
	return 100 * clamp(1-age/staleAfter, 0, 1)
}

func ratio(x float64) float64 {
	return 100 * clamp(x, 0, 1)
}

func percent(x float64) float64 {
	return clamp(x, 0, 100)
}

// rating maps a 1..5 star average to 0..100
func rating(stars float64) float64 {
	return 100 * clamp((stars-1)/4, 0, 1)
}

// volume is log scaled so the first reviews count most
func volume(count, saturation float64) float64 {
	c := math.Max(0, count)
	return 100 * clamp(math.Log1p(c)/math.Log1p(saturation), 0, 1)
}

// tier scores a lower-is-better metric: 100 up to good, 40 at poor, 0 at 2×poor
func tier(v, good, poor float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= good:
		return 100
	case v <= poor:
		return 100 - 60*(v-good)/(poor-good)
	case v < 2*poor:
		return 40 - 40*(v-poor)/poor
	default:
		return 0
	}
}

func boolScore(ok bool) float64 {
	if ok {
		return 100
	}
	return 0
}

// honesty is 100 with no integrity flag, 50 with one, 0 with both
func honesty(policyViolation, dishonestPricing bool) float64 {
	score := 100.0
	if policyViolation {
		score -= 50
	}
	if dishonestPricing {
		score -= 50
	}
	return score
}

func parityShare(checks []bool) float64 {
	if len(checks) == 0 {
		return 0
	}
	ok := 0
	for _, c := range checks {
		if c {
			ok++
		}
	}
	return 100 * float64(ok) / float64(len(checks))
}
