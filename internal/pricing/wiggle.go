package pricing

import "math"

// Classification assigns a negotiation regime to a product.
type Classification string

const (
	// Main is the standard three-stage regime.
	Main Classification = "main"
	// Fallback is the thin-margin two-round regime.
	Fallback Classification = "fallback"
	// NoNegotiation means the margin is smaller than the mandatory wiggle
	// room; negotiation must not proceed at all.
	NoNegotiation Classification = "no_negotiation"
)

// WiggleRoom computes the mandatory minimum discount cushion below list price
// required before negotiation is allowed. It is never larger than the item's
// own margin nor than a configured fraction of it.
func (p Policy) WiggleRoom(listPrice, costPrice float64) float64 {
	availableMargin := math.Max(listPrice-costPrice, p.WiggleFloor)
	calculated := math.Max(listPrice*p.WiggleMinPct, math.Max(p.WiggleMinAmount, p.WiggleFloor))
	safeCap := availableMargin * p.WiggleMaxMarginFrac
	return math.Min(calculated, math.Min(availableMargin, safeCap))
}

// Classify decides the negotiation regime from the item's margin and its
// wiggle room. The fallback threshold is 12% of cost, capped at 100.
func (p Policy) Classify(costPrice, listPrice, wiggleRoom float64) Classification {
	threshold := math.Min(costPrice*0.12, 100)
	margin := listPrice - costPrice
	switch {
	case margin < wiggleRoom:
		return NoNegotiation
	case margin <= threshold:
		return Fallback
	default:
		return Main
	}
}
