package events

import (
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindOrderSummary       Kind = "order_summary"
	KindDealClosed         Kind = "deal_closed"
	KindNegotiationBlocked Kind = "negotiation_blocked"
	KindMarginSnapshot     Kind = "margin_snapshot"
)

// Event is one immutable record in the append-only business event log.
// Records are never mutated or deleted; aggregation re-scans history at
// query time.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        Kind      `json:"event"`
	ProductCode string    `json:"product_code,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	OrderID     int64     `json:"order_id,omitempty"`

	// MarginPct is present on margin snapshot events only.
	MarginPct *float64 `json:"margin_pct,omitempty"`

	// Context captured at negotiation terminals.
	ListPrice      float64 `json:"lp,omitempty"`
	CostPrice      float64 `json:"cp,omitempty"`
	NegotiationMin float64 `json:"negotiation_min,omitempty"`
	Classification string  `json:"classification,omitempty"`
	OrderCount     int     `json:"order_count,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// Historical producers wrote local timestamps without a zone; accept both.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, aux.Timestamp); err == nil {
			e.Timestamp = ts
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", aux.Timestamp)
}
