package events

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"
)

// PGStore persists events in Postgres. Appends are single INSERTs, so the
// database gives us atomic append for free; queries see committed rows only.
//
// Expected schema:
//
//	CREATE TABLE negotiation_events (
//	    id           BIGSERIAL PRIMARY KEY,
//	    ts           TIMESTAMPTZ NOT NULL,
//	    event        TEXT NOT NULL,
//	    product_code TEXT,
//	    quantity     INTEGER,
//	    margin_pct   DOUBLE PRECISION,
//	    list_price   DOUBLE PRECISION,
//	    cost_price   DOUBLE PRECISION,
//	    negotiation_min DOUBLE PRECISION,
//	    classification TEXT,
//	    order_count  INTEGER,
//	    reason       TEXT
//	);
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, ev Event) error {
	const query = `
		INSERT INTO negotiation_events (ts, event, product_code, quantity, margin_pct, list_price, cost_price, negotiation_min, classification, order_count, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	var marginPct sql.NullFloat64
	if ev.MarginPct != nil {
		marginPct = sql.NullFloat64{Float64: *ev.MarginPct, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query,
		ev.Timestamp, string(ev.Kind), ev.ProductCode, ev.Quantity, marginPct,
		ev.ListPrice, ev.CostPrice, ev.NegotiationMin, ev.Classification, ev.OrderCount, ev.Reason,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PGStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT ts, event, product_code, quantity, margin_pct, list_price, cost_price, negotiation_min, classification, order_count, reason
		FROM negotiation_events
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1
	if f.ProductCode != "" {
		query += fmt.Sprintf(" AND product_code = $%d", argPos)
		args = append(args, f.ProductCode)
		argPos++
	}
	if !f.Since.IsZero() {
		query += fmt.Sprintf(" AND ts >= $%d", argPos)
		args = append(args, f.Since)
		argPos++
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		query += fmt.Sprintf(" AND event = ANY($%d)", argPos)
		args = append(args, pq.Array(kinds))
		argPos++
	}
	query += " ORDER BY ts"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		ev             Event
		kind           string
		productCode    sql.NullString
		quantity       sql.NullInt64
		marginPct      sql.NullFloat64
		listPrice      sql.NullFloat64
		costPrice      sql.NullFloat64
		negotiationMin sql.NullFloat64
		classification sql.NullString
		orderCount     sql.NullInt64
		reason         sql.NullString
	)
	if err := row.Scan(&ev.Timestamp, &kind, &productCode, &quantity, &marginPct,
		&listPrice, &costPrice, &negotiationMin, &classification, &orderCount, &reason); err != nil {
		return Event{}, err
	}
	ev.Kind = Kind(kind)
	ev.ProductCode = productCode.String
	ev.Quantity = int(quantity.Int64)
	if marginPct.Valid {
		v := marginPct.Float64
		ev.MarginPct = &v
	}
	ev.ListPrice = listPrice.Float64
	ev.CostPrice = costPrice.Float64
	ev.NegotiationMin = negotiationMin.Float64
	ev.Classification = classification.String
	ev.OrderCount = int(orderCount.Int64)
	ev.Reason = reason.String
	return ev, nil
}
