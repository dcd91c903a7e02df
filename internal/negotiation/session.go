package negotiation

import (
	"time"

	"github.com/google/uuid"

	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/pricing"
	"github.com/dealcraft/negotiator/internal/sessions"
)

// Status is a terminal session outcome. Empty while the session is open.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusNoDeal   Status = "no deal"
)

// Session is the mutable, in-memory state of one haggling exchange. It is
// created at negotiation start, mutated only by its Machine, and discarded
// once a terminal status has been reached and reported.
type Session struct {
	ID          uuid.UUID
	Regime      pricing.Classification
	ProductCode string
	ProductName string
	VariantName string
	Firm        string
	Category    string
	Variant     catalog.Variant
	Quantity    int

	Floor      float64
	WiggleRoom float64
	OrderCount int

	// Main regime: stage counts issued counter-offers, 0..3.
	Stage int
	// Fallback regime: round is 1-based, 1..2.
	Round int

	LastCounter *float64
	Offers      []float64
	Transcript  []sessions.HistoryEntry

	FinalStatus    Status
	FinalPrice     *float64
	TerminalReason string
	Contact        sessions.Contact

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) Closed() bool { return s.FinalStatus != "" }

func (s *Session) bestOffer() (float64, bool) {
	if len(s.Offers) == 0 {
		return 0, false
	}
	best := s.Offers[0]
	for _, o := range s.Offers[1:] {
		if o > best {
			best = o
		}
	}
	return best, true
}

func (s *Session) offeredBefore(offer float64) bool {
	for _, o := range s.Offers {
		if o == offer {
			return true
		}
	}
	return false
}

// Record converts the session into its persisted transcript form.
func (s *Session) Record() sessions.Record {
	rec := sessions.Record{
		Quantity:       s.Quantity,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ProductCode:    s.ProductCode,
		ProductName:    s.ProductName,
		Variant:        s.VariantName,
		Price:          s.Variant.ListPrice,
		CostPrice:      s.Variant.CostPrice,
		Firm:           s.Firm,
		Category:       s.Category,
		Classification: string(s.Regime),
		History:        s.Transcript,
		FinalStatus:    string(s.FinalStatus),
		FinalPrice:     s.FinalPrice,
		ContactOption:  s.Contact,
	}
	if s.Regime != pricing.NoNegotiation {
		floor := s.Floor
		rec.NegotiationMin = &floor
	}
	return rec
}
