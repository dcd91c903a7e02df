package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/events"
	"github.com/dealcraft/negotiator/internal/pricing"
	"github.com/dealcraft/negotiator/internal/sessions"
)

var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// SessionLog persists finished session transcripts.
type SessionLog interface {
	Append(rec sessions.Record) (sessions.Record, error)
}

// ManagerConfig wires a Manager's collaborators.
type ManagerConfig struct {
	Resolver *pricing.Resolver
	Events   events.Store
	Log      SessionLog
	Archiver sessions.Archiver // optional

	ContactEmail string
	ContactPhone string

	BulkSuggestTolerance   float64
	BulkThresholdTolerance int

	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Manager owns the live session registry. It resolves floors at session
// start, routes offers to the right machine, and on any terminal outcome
// persists the transcript and reports the outcome to the event store.
type Manager struct {
	mu       sync.Mutex
	machines map[uuid.UUID]*Machine

	resolver *pricing.Resolver
	store    events.Store
	log      SessionLog
	archiver sessions.Archiver

	contactMessage string

	bulkSuggestTolerance   float64
	bulkThresholdTolerance int

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		machines:               map[uuid.UUID]*Machine{},
		resolver:               cfg.Resolver,
		store:                  cfg.Events,
		log:                    cfg.Log,
		archiver:               cfg.Archiver,
		contactMessage:         fmt.Sprintf("Contact our sales professional at %s or %s for assistance.", cfg.ContactEmail, cfg.ContactPhone),
		bulkSuggestTolerance:   cfg.BulkSuggestTolerance,
		bulkThresholdTolerance: cfg.BulkThresholdTolerance,
		ttl:                    cfg.SessionTTL,
		sweepInterval:          cfg.SweepInterval,
		now:                    time.Now,
	}
}

// WithClock overrides the manager's clock; used by tests.
func (mgr *Manager) WithClock(now func() time.Time) *Manager {
	mgr.now = now
	return mgr
}

// StartInput identifies the item under negotiation.
type StartInput struct {
	ProductCode string
	ProductName string
	Firm        string
	Category    string
	VariantName string
	Variant     catalog.Variant
	Quantity    int
}

// StartResult reports the opening position of a new session.
type StartResult struct {
	SessionID      uuid.UUID              `json:"session_id"`
	Classification pricing.Classification `json:"classification"`
	ListPrice      float64                `json:"list_price"`
	BulkPrice      float64                `json:"bulk_price"`
	BulkThreshold  int                    `json:"bulk_threshold"`
	Reply          string                 `json:"reply"`
	BulkSuggestion *BulkSuggestion        `json:"bulk_suggestion,omitempty"`
	Terminal       bool                   `json:"terminal"`
	Contact        *sessions.Contact      `json:"contact_option,omitempty"`
}

// Start resolves the negotiation minimum for the item and opens a session.
// A no_negotiation classification terminates immediately: the blocked outcome
// is persisted and reported, and no session is registered.
func (mgr *Manager) Start(ctx context.Context, in StartInput) (StartResult, error) {
	if in.Quantity <= 0 {
		return StartResult{}, ErrInvalidQuantity
	}
	quote, err := mgr.resolver.ResolveMinimum(ctx, in.ProductCode, in.Variant, in.Quantity)
	if err != nil {
		return StartResult{}, err
	}

	now := mgr.now()
	session := &Session{
		ID:          uuid.New(),
		Regime:      quote.Classification,
		ProductCode: in.ProductCode,
		ProductName: in.ProductName,
		VariantName: in.VariantName,
		Firm:        in.Firm,
		Category:    in.Category,
		Variant:     in.Variant,
		Quantity:    in.Quantity,
		Floor:       quote.Minimum,
		WiggleRoom:  quote.WiggleRoom,
		OrderCount:  quote.OrderCount,
		Round:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result := StartResult{
		SessionID:      session.ID,
		Classification: quote.Classification,
		ListPrice:      in.Variant.ListPrice,
		BulkPrice:      in.Variant.BulkPrice,
		BulkThreshold:  in.Variant.BulkThreshold,
	}

	if quote.Classification == pricing.NoNegotiation {
		session.FinalStatus = StatusNoDeal
		session.TerminalReason = "margin below wiggle room"
		session.Contact = sessions.Contact{Show: true, Message: mgr.contactMessage}
		mgr.finalize(ctx, session)
		contact := session.Contact
		result.SessionID = uuid.Nil
		result.Terminal = true
		result.Contact = &contact
		result.Reply = "Negotiation is not possible for this product due to tight pricing."
		return result, nil
	}

	machine := &Machine{
		session:                session,
		resolver:               mgr.resolver,
		bulkSuggestTolerance:   mgr.bulkSuggestTolerance,
		bulkThresholdTolerance: mgr.bulkThresholdTolerance,
		contactMessage:         mgr.contactMessage,
		now:                    mgr.now,
	}

	switch quote.Classification {
	case pricing.Fallback:
		result.Reply = "This product is special, let's negotiate!"
	default:
		result.Reply = fmt.Sprintf("Negotiating %s (%s), %d unit(s). Make your offer per unit.", in.ProductName, in.VariantName, in.Quantity)
	}
	result.BulkSuggestion = machine.startSuggestion()

	mgr.mu.Lock()
	mgr.machines[session.ID] = machine
	mgr.mu.Unlock()
	return result, nil
}

func (mgr *Manager) machine(id uuid.UUID) (*Machine, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m, ok := mgr.machines[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return m, nil
}

// SubmitOffer routes one buyer offer to its session.
func (mgr *Manager) SubmitOffer(ctx context.Context, id uuid.UUID, offer float64) (Response, error) {
	m, err := mgr.machine(id)
	if err != nil {
		return Response{}, err
	}
	resp, err := m.SubmitOffer(ctx, offer)
	if err != nil {
		return Response{}, err
	}
	if resp.Terminal {
		mgr.retire(ctx, id, m)
	}
	return resp, nil
}

// ResolveBulkSuggestion answers an outstanding bulk-upgrade suggestion.
func (mgr *Manager) ResolveBulkSuggestion(ctx context.Context, id uuid.UUID, accept bool) (Response, error) {
	m, err := mgr.machine(id)
	if err != nil {
		return Response{}, err
	}
	resp, err := m.ResolveBulkSuggestion(ctx, accept)
	if err != nil {
		return Response{}, err
	}
	if resp.Terminal {
		mgr.retire(ctx, id, m)
	}
	return resp, nil
}

// Transcript returns a snapshot of a live session's transcript.
func (mgr *Manager) Transcript(id uuid.UUID) (sessions.Record, error) {
	m, err := mgr.machine(id)
	if err != nil {
		return sessions.Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Record(), nil
}

// retire persists a finished session and drops it from the registry.
func (mgr *Manager) retire(ctx context.Context, id uuid.UUID, m *Machine) {
	mgr.mu.Lock()
	delete(mgr.machines, id)
	mgr.mu.Unlock()
	mgr.finalize(ctx, m.session)
}

// finalize writes the transcript and reports the outcome to the event store.
func (mgr *Manager) finalize(ctx context.Context, s *Session) {
	rec, err := mgr.log.Append(s.Record())
	if err != nil {
		log.Printf("session log append: %v", err)
	}
	now := mgr.now()

	switch s.FinalStatus {
	case StatusAccepted:
		if err := mgr.store.Append(ctx, events.Event{
			Timestamp:      now,
			Kind:           events.KindDealClosed,
			ProductCode:    s.ProductCode,
			Quantity:       s.Quantity,
			ListPrice:      s.Variant.ListPrice,
			CostPrice:      s.Variant.CostPrice,
			NegotiationMin: s.Floor,
			Classification: string(s.Regime),
			OrderCount:     s.OrderCount,
		}); err != nil {
			log.Printf("append deal_closed: %v", err)
		}
		if err := mgr.store.Append(ctx, events.Event{
			Timestamp:   now,
			Kind:        events.KindOrderSummary,
			ProductCode: s.ProductCode,
			Quantity:    s.Quantity,
			OrderID:     rec.ID,
		}); err != nil {
			log.Printf("append order_summary: %v", err)
		}
	case StatusNoDeal:
		if err := mgr.store.Append(ctx, events.Event{
			Timestamp:      now,
			Kind:           events.KindNegotiationBlocked,
			ProductCode:    s.ProductCode,
			Quantity:       s.Quantity,
			ListPrice:      s.Variant.ListPrice,
			CostPrice:      s.Variant.CostPrice,
			Classification: string(s.Regime),
			OrderCount:     s.OrderCount,
			Reason:         s.TerminalReason,
		}); err != nil {
			log.Printf("append negotiation_blocked: %v", err)
		}
	}

	if mgr.archiver != nil {
		if err := mgr.archiver.ArchiveSession(ctx, rec); err != nil {
			log.Printf("archive session %d: %v", rec.ID, err)
		}
	}
}

// RunSweeper expires idle sessions until ctx is done. An expired session is
// closed as "no deal" with the contact option surfaced, the same terminal
// path as any other failed negotiation.
func (mgr *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(mgr.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.sweep(ctx)
		}
	}
}

func (mgr *Manager) sweep(ctx context.Context) {
	cutoff := mgr.now().Add(-mgr.ttl)
	mgr.mu.Lock()
	expired := make(map[uuid.UUID]*Machine)
	for id, m := range mgr.machines {
		if m.idleSince(cutoff) {
			expired[id] = m
			delete(mgr.machines, id)
		}
	}
	mgr.mu.Unlock()

	for id, m := range expired {
		if m.expire() {
			log.Printf("session %s expired after %s idle", id, mgr.ttl)
			mgr.finalize(ctx, m.session)
		}
	}
}

func (m *Machine) idleSince(cutoff time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.session.Closed() && m.session.UpdatedAt.Before(cutoff)
}

func (m *Machine) expire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Closed() {
		return false
	}
	m.session.UpdatedAt = m.now()
	m.terminate(StatusNoDeal, nil, "session expired", "Session expired.")
	return true
}
