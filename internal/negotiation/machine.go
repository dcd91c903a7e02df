package negotiation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dealcraft/negotiator/internal/pricing"
	"github.com/dealcraft/negotiator/internal/sessions"
)

var (
	ErrSessionClosed       = errors.New("session closed")
	ErrUnknownSession      = errors.New("unknown session")
	ErrNoPendingSuggestion = errors.New("no pending bulk suggestion")
)

// BulkSuggestion is the side-channel offer to upgrade to the bulk quantity.
// Accepting it recomputes the floor; it never consumes a negotiation round.
type BulkSuggestion struct {
	UpgradeQuantity int     `json:"upgrade_quantity"`
	BulkPrice       float64 `json:"bulk_price"`
	Message         string  `json:"message"`
}

// Response is the counter-party's reply to one protocol step.
type Response struct {
	Reply          string            `json:"reply"`
	CounterOffer   *float64          `json:"counter_offer,omitempty"`
	Accepted       bool              `json:"accepted"`
	Terminal       bool              `json:"terminal"`
	FinalStatus    Status            `json:"final_status,omitempty"`
	FinalPrice     *float64          `json:"final_price,omitempty"`
	BulkSuggestion *BulkSuggestion   `json:"bulk_suggestion,omitempty"`
	Contact        *sessions.Contact `json:"contact_option,omitempty"`
}

// Machine runs the negotiation protocol for one session. It exposes an
// explicit suspend/resume surface: the front end calls SubmitOffer for each
// buyer offer and ResolveBulkSuggestion when a side-channel suggestion is
// outstanding. All methods serialize on the machine's lock, so one session is
// always a single logical thread of control.
type Machine struct {
	mu       sync.Mutex
	session  *Session
	resolver *pricing.Resolver

	bulkSuggestTolerance   float64
	bulkThresholdTolerance int
	contactMessage         string
	now                    func() time.Time

	// pendingOffer holds a buyer offer put on ice while a bulk suggestion
	// awaits a decision; it resumes processing when the buyer declines.
	pendingOffer   *float64
	suggestionOpen bool
}

func (m *Machine) Session() *Session { return m.session }

// startSuggestion returns the pre-negotiation bulk nudge, if the quantity is
// within tolerance of the bulk threshold.
func (m *Machine) startSuggestion() *BulkSuggestion {
	s := m.session
	gap := s.Variant.BulkThreshold - s.Quantity
	if s.Quantity < s.Variant.BulkThreshold && gap <= m.bulkThresholdTolerance {
		m.suggestionOpen = true
		return &BulkSuggestion{
			UpgradeQuantity: s.Variant.BulkThreshold,
			BulkPrice:       s.Variant.BulkPrice,
			Message: fmt.Sprintf("You're only %d unit(s) away from unlocking the bulk price of %.2f per unit.",
				gap, s.Variant.BulkPrice),
		}
	}
	return nil
}

// SubmitOffer feeds one buyer offer through the session's regime.
func (m *Machine) SubmitOffer(ctx context.Context, offer float64) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s.Closed() {
		return Response{}, ErrSessionClosed
	}
	s.UpdatedAt = m.now()

	if s.Regime == pricing.Fallback {
		return m.submitFallback(offer), nil
	}

	// Side channel: an offer near the bulk price suggests a quantity upgrade
	// instead of being processed. The offer is held until the buyer decides.
	if s.Quantity < s.Variant.BulkThreshold &&
		math.Abs(offer-s.Variant.BulkPrice) <= m.bulkSuggestTolerance {
		o := offer
		m.pendingOffer = &o
		m.suggestionOpen = true
		return Response{
			Reply: fmt.Sprintf("If you increase your quantity to %d, you can get the bulk price of %.2f per unit.",
				s.Variant.BulkThreshold, s.Variant.BulkPrice),
			BulkSuggestion: &BulkSuggestion{
				UpgradeQuantity: s.Variant.BulkThreshold,
				BulkPrice:       s.Variant.BulkPrice,
				Message:         fmt.Sprintf("Proceed with a bulk order of %d units?", s.Variant.BulkThreshold),
			},
		}, nil
	}

	return m.processMainOffer(offer), nil
}

// ResolveBulkSuggestion answers an outstanding bulk-upgrade suggestion.
// Accepting upgrades the quantity and recomputes the floor; declining resumes
// the held offer, if any.
func (m *Machine) ResolveBulkSuggestion(ctx context.Context, accept bool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s.Closed() {
		return Response{}, ErrSessionClosed
	}
	if !m.suggestionOpen {
		return Response{}, ErrNoPendingSuggestion
	}
	m.suggestionOpen = false
	s.UpdatedAt = m.now()

	if accept {
		m.pendingOffer = nil
		s.Quantity = s.Variant.BulkThreshold
		quote, err := m.resolver.ResolveMinimum(ctx, s.ProductCode, s.Variant, s.Quantity)
		if err != nil {
			return Response{}, fmt.Errorf("recompute floor: %w", err)
		}
		s.Floor = quote.Minimum
		s.OrderCount = quote.OrderCount
		return Response{
			Reply: fmt.Sprintf("Quantity upgraded to %d units. Let's negotiate at the bulk rate.", s.Quantity),
		}, nil
	}

	if m.pendingOffer != nil {
		offer := *m.pendingOffer
		m.pendingOffer = nil
		resp := m.processMainOffer(offer)
		resp.Reply = fmt.Sprintf("Okay, proceeding with your original quantity of %d units. %s", s.Quantity, resp.Reply)
		return resp, nil
	}
	return Response{
		Reply: fmt.Sprintf("Okay, proceeding with your original quantity of %d units.", s.Quantity),
	}, nil
}

// processMainOffer applies the main-regime rules to one offer.
func (m *Machine) processMainOffer(offer float64) Response {
	s := m.session
	v := s.Variant
	floor := s.Floor

	if offer < floor {
		reply := fmt.Sprintf("Sorry, we can't go below %.2f.", floor)
		counter := floor
		m.record(s.Stage+1, offer, reply, &counter)
		return m.terminate(StatusNoDeal, nil, "offer below negotiation floor", reply)
	}

	accepted := false
	var reply string
	switch {
	case s.LastCounter != nil && offer >= *s.LastCounter:
		// offer >= floor already established above.
		accepted = true
		reply = fmt.Sprintf("Great! We'll proceed at %.2f!", offer)
	// An at-or-above-list offer is accepted unconditionally; the near-list
	// shortcut additionally requires a sub-bulk quantity and clearing the
	// floor.
	case offer >= v.ListPrice || (v.ListPrice-offer <= 5 && s.Quantity < v.BulkThreshold && offer >= floor):
		accepted = true
		reply = fmt.Sprintf("Accepted at %.2f!", offer)
	case s.Quantity >= v.BulkThreshold && offer >= v.BulkPrice:
		accepted = true
		reply = fmt.Sprintf("Bulk deal: %.2f for %d units.", offer, s.Quantity)
	case stageCloseness(s.Stage, v.ListPrice, offer):
		accepted = true
		reply = fmt.Sprintf("Accepted at %.2f!", offer)
	}

	if accepted {
		s.Offers = append(s.Offers, offer)
		m.record(s.Stage, offer, reply, s.LastCounter)
		price := offer
		return m.terminate(StatusAccepted, &price, "", reply)
	}

	// Re-prompts: neither consumes a stage nor enters the transcript.
	if s.offeredBefore(offer) {
		return Response{Reply: fmt.Sprintf("You already offered %.2f.", offer)}
	}
	if best, ok := s.bestOffer(); ok && offer < best {
		return Response{Reply: fmt.Sprintf("That's below your previous best of %.2f.", best)}
	}

	s.Stage++
	var counter float64
	switch s.Stage {
	case 1:
		counter = math.Min(v.ListPrice, offer+30)
	case 2:
		counter = math.Floor((*s.LastCounter + offer) / 2)
	default:
		avg := math.Floor((offer + v.CostPrice) / 2)
		counter = math.Max(offer, avg)
	}
	counter = math.Max(counter, floor)
	s.LastCounter = &counter
	s.Offers = append(s.Offers, offer)

	if counter == offer {
		reply = fmt.Sprintf("Great! We'll proceed at %.2f!", offer)
		m.record(s.Stage, offer, reply, s.LastCounter)
		price := offer
		return m.terminate(StatusAccepted, &price, "", reply)
	}

	reply = fmt.Sprintf("We'd be comfortable at %.2f.", counter)
	m.record(s.Stage, offer, reply, s.LastCounter)
	if s.Stage >= 3 {
		reply = fmt.Sprintf("%s That's as far as we can go; we couldn't finalize the deal.", reply)
		resp := m.terminate(StatusNoDeal, nil, "rounds exhausted", reply)
		resp.CounterOffer = s.LastCounter
		return resp
	}
	return Response{Reply: reply, CounterOffer: s.LastCounter}
}

// stageCloseness implements the stage-dependent near-list acceptance band:
// within 5 at stage 0, 7 at stage 1, 10 at stage 2.
func stageCloseness(stage int, listPrice, offer float64) bool {
	gap := listPrice - offer
	switch stage {
	case 0:
		return gap <= 5
	case 1:
		return gap <= 7
	case 2:
		return gap <= 10
	default:
		return false
	}
}

func (m *Machine) record(round int, offer float64, reply string, counter *float64) {
	var c *float64
	if counter != nil {
		v := *counter
		c = &v
	}
	m.session.Transcript = append(m.session.Transcript, sessions.HistoryEntry{
		Round:           round,
		UserOffer:       offer,
		BotReply:        reply,
		BotCounterOffer: c,
		Timestamp:       m.now(),
	})
}

func (m *Machine) terminate(status Status, finalPrice *float64, reason, reply string) Response {
	s := m.session
	s.FinalStatus = status
	s.FinalPrice = finalPrice
	s.TerminalReason = reason
	resp := Response{
		Reply:       reply,
		Accepted:    status == StatusAccepted,
		Terminal:    true,
		FinalStatus: status,
		FinalPrice:  finalPrice,
	}
	if status == StatusNoDeal {
		s.Contact = sessions.Contact{Show: true, Message: m.contactMessage}
		contact := s.Contact
		resp.Contact = &contact
	}
	return resp
}
