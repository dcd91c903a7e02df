package negotiation

import (
	"fmt"
	"math"
)

const fallbackMaxRounds = 2

// fallbackCounter computes the counter-offer for a thin-margin round:
// round 1 concedes a sliver above the floor (10% of the gap, at least 5,
// never above list); round 2 is the floor itself, final and non-negotiable.
func fallbackCounter(offer, floor, listPrice float64, round int) float64 {
	if round == 1 {
		offset := math.Max(math.Trunc(math.Abs(offer-floor)*0.1), 5)
		return math.Min(floor+offset, listPrice)
	}
	return floor
}

// submitFallback applies the fallback-regime rules to one offer. Any offer
// inside [floor, list] closes the deal at the buyer's price; otherwise the
// counter-offers walk down, never up, and the session exhausts after two
// rounds.
func (m *Machine) submitFallback(offer float64) Response {
	s := m.session
	v := s.Variant

	if offer >= s.Floor && offer <= v.ListPrice {
		reply := fmt.Sprintf("Great! We'll proceed at %.2f!", offer)
		counter := offer
		m.record(s.Round, offer, reply, &counter)
		s.Offers = append(s.Offers, offer)
		price := offer
		return m.terminate(StatusAccepted, &price, "", reply)
	}

	counter := fallbackCounter(offer, s.Floor, v.ListPrice, s.Round)
	if s.LastCounter != nil && counter > *s.LastCounter {
		counter = *s.LastCounter
	}
	s.LastCounter = &counter
	s.Offers = append(s.Offers, offer)

	var reply string
	if s.Round == 1 {
		reply = fmt.Sprintf("I can't go that low, but I can do %.2f.", counter)
	} else {
		reply = fmt.Sprintf("That's the lowest possible price: %.2f.", counter)
	}
	m.record(s.Round, offer, reply, s.LastCounter)
	s.Round++

	if s.Round > fallbackMaxRounds {
		reply = fmt.Sprintf("%s We couldn't finalize the deal.", reply)
		resp := m.terminate(StatusNoDeal, nil, "rounds exhausted", reply)
		resp.CounterOffer = s.LastCounter
		return resp
	}
	return Response{Reply: reply, CounterOffer: s.LastCounter}
}
