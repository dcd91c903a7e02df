package negotiation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/events"
	"github.com/dealcraft/negotiator/internal/pricing"
)

// thinMarginVariant classifies as fallback with a resolved floor of 95:
// the 96 candidate is capped at list minus the 5 wiggle room.
var thinMarginVariant = catalog.Variant{ListPrice: 100, CostPrice: 90, BulkPrice: 95, BulkThreshold: 50}

func TestFallbackAcceptInsideWindow(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	mgr, fileLog := testManager(t, store)
	res := startSession(t, mgr, thinMarginVariant, 10)
	require.Equal(t, pricing.Fallback, res.Classification)
	assert.Equal(t, "This product is special, let's negotiate!", res.Reply)

	// Round 1: lowball gets a counter a sliver above the floor.
	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 80)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 100.0, *resp.CounterOffer)
	assert.False(t, resp.Terminal)

	// Any offer inside [floor, list] closes at the buyer's price.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 96)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Terminal)
	require.NotNil(t, resp.FinalPrice)
	assert.Equal(t, 96.0, *resp.FinalPrice)

	// Both outcome events land in the store.
	closed, err := store.Query(ctx, events.Filter{Kinds: []events.Kind{events.KindDealClosed}})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "fallback", closed[0].Classification)
	assert.Equal(t, 10, closed[0].Quantity)

	orders, err := store.Query(ctx, events.Filter{Kinds: []events.Kind{events.KindOrderSummary}})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	all := fileLog.All()
	require.Len(t, all, 1)
	require.NotNil(t, all[0].NegotiationMin)
	assert.Equal(t, 95.0, *all[0].NegotiationMin)
	assert.Equal(t, "accepted", all[0].FinalStatus)
}

func TestFallbackAcceptAtFloor(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	mgr, _ := testManager(t, store)
	res := startSession(t, mgr, thinMarginVariant, 10)

	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 95)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 95.0, *resp.FinalPrice)

	got, err := store.Query(ctx, events.Filter{
		Kinds: []events.Kind{events.KindDealClosed, events.KindOrderSummary},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFallbackExhaustsAfterTwoRounds(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	mgr, fileLog := testManager(t, store)
	res := startSession(t, mgr, thinMarginVariant, 10)

	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 80)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	first := *resp.CounterOffer

	// Round 2 is the floor, final and non-negotiable.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 90)
	require.NoError(t, err)
	assert.True(t, resp.Terminal)
	assert.False(t, resp.Accepted)
	assert.Equal(t, StatusNoDeal, resp.FinalStatus)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 95.0, *resp.CounterOffer)
	assert.LessOrEqual(t, *resp.CounterOffer, first, "counter-offers must never walk up")
	require.NotNil(t, resp.Contact)
	assert.True(t, resp.Contact.Show)

	blocked, err := store.Query(ctx, events.Filter{Kinds: []events.Kind{events.KindNegotiationBlocked}})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "rounds exhausted", blocked[0].Reason)

	all := fileLog.All()
	require.Len(t, all, 1)
	require.Len(t, all[0].History, 2)
	assert.Equal(t, 1, all[0].History[0].Round)
	assert.Equal(t, 2, all[0].History[1].Round)
}

func TestFallbackCounterArithmetic(t *testing.T) {
	// Round 1 concedes 10% of the gap, at least 5, capped at list.
	assert.Equal(t, 100.0, fallbackCounter(80, 95, 100, 1))
	assert.Equal(t, 101.0, fallbackCounter(30, 95, 200, 1)) // trunc(6.5) = 6
	assert.Equal(t, 95.0, fallbackCounter(80, 95, 200, 2))
}
