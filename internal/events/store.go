package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	ProductCode string
	Kinds       []Kind
	Since       time.Time
}

func (f Filter) matches(e Event) bool {
	if f.ProductCode != "" && e.ProductCode != f.ProductCode {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if e.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Store is the append-only event log every floor computation reads and every
// terminal outcome writes. Implementations must serialize appends so that
// concurrent sessions never observe a torn record.
type Store interface {
	Append(ctx context.Context, ev Event) error
	Query(ctx context.Context, f Filter) ([]Event, error)
}

// RecentOrderCount sums order_summary quantities for a product over a rolling
// window ending at now.
func RecentOrderCount(ctx context.Context, s Store, productCode string, window time.Duration, now time.Time) (int, error) {
	evs, err := s.Query(ctx, Filter{
		ProductCode: productCode,
		Kinds:       []Kind{KindOrderSummary},
		Since:       now.Add(-window),
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range evs {
		total += e.Quantity
	}
	return total, nil
}

// MemoryStore keeps events in memory; used by tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
