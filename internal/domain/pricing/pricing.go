// Package pricing contains the pure calculation logic for the game economy.
// This package is PURE and must NOT import any infrastructure packages.
package pricing

import "github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"

// Tunable economy constants. The exact coefficients are balance knobs,
// not contracts; tests pin the clamp bounds and the monotonic shape only.
const (
	// DefaultBasePricePerSlot is the rent per rack slot per period, before multipliers.
	DefaultBasePricePerSlot int64 = 500

	// OverProvisionCap limits the reward for handing out a bigger VM than asked.
	OverProvisionCap = 0.25

	// RatingDeltaMin and RatingDeltaMax bound the reputation change per provisioning.
	RatingDeltaMin = -0.5
	RatingDeltaMax = 0.5

	// RenewalProbabilityMin and RenewalProbabilityMax bound the renewal chance.
	RenewalProbabilityMin = 0.10
	RenewalProbabilityMax = 0.95

	// RateMultiplierMin and RateMultiplierMax bound the request-generation speedup.
	RateMultiplierMin = 0.5
	RateMultiplierMax = 3.0
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PaymentAmount computes the rent for one full rental period:
// basePricePerSlot * slots * periodMultiplier * tierMultiplier.
func PaymentAmount(tier request.Tier, period request.Period, basePricePerSlot int64) int64 {
	tp := request.TierRegistry[tier]
	pp := request.PeriodRegistry[period]
	raw := float64(basePricePerSlot) * float64(tp.Slots) * pp.PriceMultiplier * tp.Multiplier
	return int64(raw)
}

// RenewalProbability maps reputation to the chance an expiring rental renews.
func RenewalProbability(reputation float64) float64 {
	return Clamp(0.5+reputation*0.1, RenewalProbabilityMin, RenewalProbabilityMax)
}

// GenerationRateMultiplier maps reputation to how fast new requests arrive.
// Reputation 1.0 is neutral; a 5-star provider attracts 3x the traffic.
func GenerationRateMultiplier(reputation float64) float64 {
	return Clamp(1.0+(reputation-1.0)*0.5, RateMultiplierMin, RateMultiplierMax)
}

// CompareSpecs scores how well the provided VM matches the requested one.
// Over-provisioning is rewarded up to OverProvisionCap; under-provisioning
// is penalized proportionally to the deficit ratio. Zero means exact match.
func CompareSpecs(required, provided request.VMSpec) float64 {
	ratio := (dimRatio(provided.VCPUs, required.VCPUs) +
		dimRatio(provided.RAMGB, required.RAMGB) +
		dimRatio(provided.DiskGB, required.DiskGB)) / 3.0

	if ratio >= 1.0 {
		score := ratio - 1.0
		if score > OverProvisionCap {
			score = OverProvisionCap
		}
		return score
	}
	return ratio - 1.0 // negative, proportional to the deficit
}

// RatingDelta computes the reputation change applied after provisioning.
func RatingDelta(required, provided request.VMSpec, tierMultiplier float64) float64 {
	return Clamp(CompareSpecs(required, provided)*tierMultiplier, RatingDeltaMin, RatingDeltaMax)
}

func dimRatio(provided, required int) float64 {
	if required <= 0 {
		return 1.0
	}
	return float64(provided) / float64(required)
}
