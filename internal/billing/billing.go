package billing

import (
	"fmt"
	"math"
	"strings"
)

// MaxDurationSeconds is the longest render the service accepts; estimates
// clamp to it.
const MaxDurationSeconds = 600.0

// Tier is one of the closed set of render quality levels, totally ordered
// by quality and cost.
type Tier string

const (
	TierFast        Tier = "fast"
	TierStandard    Tier = "standard"
	TierHighQuality Tier = "high-quality"
)

type rate struct {
	creditsPerSecond float64
	minimumCredits   int
}

var rates = map[Tier]rate{
	TierFast:        {creditsPerSecond: 0.5, minimumCredits: 3},
	TierStandard:    {creditsPerSecond: 1, minimumCredits: 5},
	TierHighQuality: {creditsPerSecond: 2, minimumCredits: 10},
}

// Tiers returns all tiers in ascending quality order.
func Tiers() []Tier {
	return []Tier{TierFast, TierStandard, TierHighQuality}
}

func ParseTier(value string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := rates[t]; !ok {
		return "", fmt.Errorf("unknown billing tier %q", value)
	}
	return t, nil
}

// MinimumCharge returns the tier's floor price in credits.
func MinimumCharge(tier Tier) int {
	return tierRate(tier).minimumCredits
}

// Estimate computes the credit cost of a render from its duration and tier.
// A nil duration means "not yet measured" and prices at the tier minimum.
// The function is total: any duration, including negative or past the cap,
// yields a non-negative result.
func Estimate(durationSeconds *float64, tier Tier) int {
	r := tierRate(tier)
	if durationSeconds == nil {
		return r.minimumCredits
	}

	d := *durationSeconds
	if math.IsNaN(d) || d < 0 {
		d = 0
	}
	if d > MaxDurationSeconds {
		d = MaxDurationSeconds
	}

	credits := int(math.Ceil(d * r.creditsPerSecond))
	if credits < r.minimumCredits {
		return r.minimumCredits
	}
	return credits
}

func tierRate(tier Tier) rate {
	if r, ok := rates[tier]; ok {
		return r
	}
	return rates[TierStandard]
}
