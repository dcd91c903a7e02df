package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/events"
)

// ClassicMinimum is the guardrail arithmetic that predates the dynamic
// margin: at least 12% or 100 above cost, never above 82% of list, never
// below cost.
func ClassicMinimum(costPrice, listPrice float64) float64 {
	minimum := math.Max(costPrice*1.12, costPrice+100)
	minimum = math.Min(minimum, listPrice*0.82)
	return math.Max(minimum, costPrice)
}

// BulkMargin is the per-unit margin demanded on bulk fallback deals:
// 6% of cost, clamped to [20, 200].
func BulkMargin(costPrice float64) float64 {
	return math.Min(math.Max(costPrice*0.06, 20), 200)
}

// MarginCap bounds the dynamic margin by bulk economics: the gross margin
// percentage the bulk price leaves over cost. Zero when the bulk price does
// not clear cost.
func MarginCap(costPrice, bulkPrice float64) float64 {
	if bulkPrice <= 0 || bulkPrice <= costPrice {
		return 0
	}
	return 100 * (bulkPrice - costPrice) / bulkPrice
}

// Quote is the result of resolving a negotiation minimum. Minimum is only
// meaningful when Classification != NoNegotiation.
type Quote struct {
	Classification Classification
	Minimum        float64
	WiggleRoom     float64
	OrderCount     int
	DynamicMargin  float64
}

// Resolver combines the margin engine with the event store.
type Resolver struct {
	policy Policy
	store  events.Store
	now    func() time.Time
}

func NewResolver(policy Policy, store events.Store) *Resolver {
	return &Resolver{policy: policy, store: store, now: time.Now}
}

// WithClock overrides the resolver's clock; used by tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) Policy() Policy { return r.policy }

// ResolveMinimum computes the final negotiation minimum and classification
// for one variant at one quantity. The ordering is load-bearing: the
// wiggle-room cap is applied last, so every other rule is clamped by it,
// never the reverse.
func (r *Resolver) ResolveMinimum(ctx context.Context, productCode string, v catalog.Variant, qty int) (Quote, error) {
	if err := v.Validate(); err != nil {
		return Quote{}, err
	}
	now := r.now()
	p := r.policy

	wiggleRoom := p.WiggleRoom(v.ListPrice, v.CostPrice)
	classification := p.Classify(v.CostPrice, v.ListPrice, wiggleRoom)
	if classification == NoNegotiation {
		return Quote{Classification: NoNegotiation, WiggleRoom: wiggleRoom}, nil
	}

	orderCount, err := events.RecentOrderCount(ctx, r.store, productCode, p.RollingWindow, now)
	if err != nil {
		return Quote{}, fmt.Errorf("order count for %s: %w", productCode, err)
	}
	history, err := r.store.Query(ctx, events.Filter{ProductCode: productCode})
	if err != nil {
		return Quote{}, fmt.Errorf("event history for %s: %w", productCode, err)
	}

	classicMin := ClassicMinimum(v.CostPrice, v.ListPrice)
	cap := MarginCap(v.CostPrice, v.BulkPrice)
	state := p.DerivePlateau(history, now)
	dynamicMargin := math.Min(p.DynamicMargin(orderCount, state, now), cap)
	sigmoidMin := classicMin + dynamicMargin

	var fallbackMin float64
	if qty >= v.BulkThreshold {
		fallbackMin = math.Max(v.BulkPrice, v.CostPrice+BulkMargin(v.CostPrice))
	} else {
		fallbackMin = v.CostPrice + 0.6*(v.ListPrice-v.CostPrice)
	}

	hardFloor := v.CostPrice + p.MinMarginBuffer
	candidate := math.Max(classicMin, math.Max(sigmoidMin, hardFloor))
	if classification == Fallback {
		candidate = math.Max(fallbackMin, hardFloor)
	}
	final := math.Min(candidate, v.ListPrice-wiggleRoom)

	return Quote{
		Classification: classification,
		Minimum:        final,
		WiggleRoom:     wiggleRoom,
		OrderCount:     orderCount,
		DynamicMargin:  dynamicMargin,
	}, nil
}
