package pricing

import (
	"time"

	"github.com/dealcraft/negotiator/internal/events"
)

// PlateauState is derived fresh from event history on every query; it is
// never persisted and has no lifecycle of its own.
type PlateauState struct {
	PlateauStart          time.Time // zero when no plateau was ever reached
	UnitsSoldSincePlateau int
	InDecline             bool
	DeclineStart          time.Time // zero unless InDecline
}

func (s PlateauState) OnPlateau() bool { return !s.PlateauStart.IsZero() }

const marginSnapshotEpsilon = 0.01

// DerivePlateau scans a product's events (any order) and derives the current
// plateau/decline state at time now. The most recent margin snapshot at or
// above PlateauMargin marks the plateau start; units sold at or after that
// instant decide whether the plateau has earned its keep. A plateau older
// than PlateauDurationDays with fewer than ActivityThreshold units sold is in
// decline, starting where the plateau duration expired. High activity during
// the window suppresses decline entirely.
func (p Policy) DerivePlateau(evs []events.Event, now time.Time) PlateauState {
	var state PlateauState
	for _, e := range evs {
		if e.MarginPct == nil {
			continue
		}
		if *e.MarginPct >= p.PlateauMargin-marginSnapshotEpsilon {
			if state.PlateauStart.IsZero() || e.Timestamp.After(state.PlateauStart) {
				state.PlateauStart = e.Timestamp
			}
		}
	}
	if state.PlateauStart.IsZero() {
		return state
	}

	for _, e := range evs {
		if e.Timestamp.Before(state.PlateauStart) {
			continue
		}
		if e.Kind != events.KindOrderSummary && e.Kind != events.KindDealClosed {
			continue
		}
		qty := e.Quantity
		if qty == 0 {
			// Legacy records omitted quantity; they still count as one unit.
			qty = 1
		}
		state.UnitsSoldSincePlateau += qty
	}

	daysOnPlateau := wholeDays(state.PlateauStart, now)
	if daysOnPlateau > p.PlateauDurationDays && state.UnitsSoldSincePlateau < p.ActivityThreshold {
		state.InDecline = true
		state.DeclineStart = state.PlateauStart.AddDate(0, 0, p.PlateauDurationDays)
	}
	return state
}

// DynamicMargin resolves the effective incentive margin for a product given
// its plateau state: sigmoid ramp when no plateau ever occurred, the plateau
// ceiling while the plateau holds, and a stepwise decay once in decline. The
// decay never drops below what the sigmoid alone would give at the current
// order count.
func (p Policy) DynamicMargin(orderCount int, state PlateauState, now time.Time) float64 {
	if !state.OnPlateau() {
		return p.Sigmoid(orderCount)
	}
	if !state.InDecline {
		return p.PlateauMargin
	}
	steps := wholeDays(state.DeclineStart, now) / p.DeclineStepDays
	declined := p.PlateauMargin - p.DeclineRate*float64(steps)
	if floor := p.Sigmoid(orderCount); declined < floor {
		return floor
	}
	return declined
}

// wholeDays is the number of complete 24h periods between a and b.
func wholeDays(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
