package negotiation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/events"
	"github.com/dealcraft/negotiator/internal/pricing"
	"github.com/dealcraft/negotiator/internal/sessions"
)

// wideMarginVariant classifies as main with a floor of 150 on an empty
// event history: classic minimum max(56, 150) capped by 0.82*200. The bulk
// price sits far below every offer used here so the bulk side channel stays
// out of the way.
var wideMarginVariant = catalog.Variant{ListPrice: 200, CostPrice: 50, BulkPrice: 60, BulkThreshold: 100}

func testManager(t *testing.T, store events.Store) (*Manager, *sessions.FileLog) {
	t.Helper()
	fileLog := sessions.NewFileLog(filepath.Join(t.TempDir(), "sessions.json"))
	mgr := NewManager(ManagerConfig{
		Resolver:               pricing.NewResolver(pricing.DefaultPolicy(), store),
		Events:                 store,
		Log:                    fileLog,
		ContactEmail:           "sales@example.com",
		ContactPhone:           "+1-555-0100",
		BulkSuggestTolerance:   20,
		BulkThresholdTolerance: 5,
		SessionTTL:             30 * time.Minute,
		SweepInterval:          time.Minute,
	})
	return mgr, fileLog
}

func startSession(t *testing.T, mgr *Manager, v catalog.Variant, qty int) StartResult {
	t.Helper()
	res, err := mgr.Start(context.Background(), StartInput{
		ProductCode: "SKU-1",
		ProductName: "Widget",
		VariantName: "standard",
		Variant:     v,
		Quantity:    qty,
	})
	require.NoError(t, err)
	return res
}

func TestMainRegimeCounterProgression(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	mgr, _ := testManager(t, store)
	res := startSession(t, mgr, wideMarginVariant, 1)
	require.Equal(t, pricing.Main, res.Classification)

	// Stage 1: list capped offer+30.
	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 155)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 185.0, *resp.CounterOffer)
	assert.False(t, resp.Terminal)

	// Stage 2: midpoint of last counter and offer, floored.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 160)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 172.0, *resp.CounterOffer)

	// Stage 3: the counter can never undercut the offer, so this closes.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 165)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Terminal)
	require.NotNil(t, resp.FinalPrice)
	assert.Equal(t, 165.0, *resp.FinalPrice)

	closed, err := store.Query(ctx, events.Filter{Kinds: []events.Kind{events.KindDealClosed}})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, 150.0, closed[0].NegotiationMin)

	orders, err := store.Query(ctx, events.Filter{Kinds: []events.Kind{events.KindOrderSummary}})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(1), orders[0].OrderID)
	assert.Equal(t, 1, orders[0].Quantity)
}

func TestMainRegimeBlockedBelowFloor(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	mgr, _ := testManager(t, store)
	res := startSession(t, mgr, wideMarginVariant, 1)

	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 100)
	require.NoError(t, err)
	assert.True(t, resp.Terminal)
	assert.False(t, resp.Accepted)
	assert.Equal(t, StatusNoDeal, resp.FinalStatus)
	require.NotNil(t, resp.Contact)
	assert.True(t, resp.Contact.Show)
	assert.Contains(t, resp.Contact.Message, "sales@example.com")

	blocked, err := store.Query(ctx, events.Filter{Kinds: []events.Kind{events.KindNegotiationBlocked}})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "offer below negotiation floor", blocked[0].Reason)

	// The session is retired; further offers bounce.
	_, err = mgr.SubmitOffer(ctx, res.SessionID, 160)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestMainRegimeBlockedTranscript(t *testing.T) {
	store := events.NewMemoryStore()
	mgr, fileLog := testManager(t, store)
	res := startSession(t, mgr, wideMarginVariant, 1)

	_, err := mgr.SubmitOffer(context.Background(), res.SessionID, 100)
	require.NoError(t, err)

	// The blocked exchange is the sole transcript entry, recorded as round 1
	// with the floor as the bot's final word.
	all := fileLog.All()
	require.Len(t, all, 1)
	rec := all[0]
	require.Len(t, rec.History, 1)
	assert.Equal(t, 1, rec.History[0].Round)
	assert.Equal(t, 100.0, rec.History[0].UserOffer)
	require.NotNil(t, rec.History[0].BotCounterOffer)
	assert.Equal(t, 150.0, *rec.History[0].BotCounterOffer)
	assert.Equal(t, "no deal", rec.FinalStatus)
	assert.True(t, rec.ContactOption.Show)
}

func TestMainRegimeAcceptAtList(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	mgr, _ := testManager(t, store)
	res := startSession(t, mgr, wideMarginVariant, 1)

	resp, err := mgr.SubmitOffer(ctx, res.SessionID, wideMarginVariant.ListPrice)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Terminal)
	require.NotNil(t, resp.FinalPrice)
	assert.Equal(t, wideMarginVariant.ListPrice, *resp.FinalPrice)
}

func TestMainRegimeAcceptsOfferMeetingCounter(t *testing.T) {
	ctx := context.Background()
	mgr, _ := testManager(t, events.NewMemoryStore())
	res := startSession(t, mgr, wideMarginVariant, 1)

	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 155)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer) // 185

	resp, err = mgr.SubmitOffer(ctx, res.SessionID, *resp.CounterOffer)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 185.0, *resp.FinalPrice)
}

func TestMainRegimeNearListBandWidensPerStage(t *testing.T) {
	ctx := context.Background()
	mgr, _ := testManager(t, events.NewMemoryStore())
	res := startSession(t, mgr, wideMarginVariant, 1)

	// Gap of 6 is outside the stage-0 band.
	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 155)
	require.NoError(t, err)
	assert.False(t, resp.Terminal)

	// At stage 1 the band widens to 7, so 194 closes.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 194)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 194.0, *resp.FinalPrice)
}

func TestMainRegimeRepromptsConsumeNoStage(t *testing.T) {
	ctx := context.Background()
	mgr, _ := testManager(t, events.NewMemoryStore())
	res := startSession(t, mgr, wideMarginVariant, 1)

	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 155)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)

	// Repeating an offer is a re-prompt, not a round.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 155)
	require.NoError(t, err)
	assert.Nil(t, resp.CounterOffer)
	assert.Contains(t, resp.Reply, "already offered")

	// Regressing below the best offer is also a re-prompt.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 152)
	require.NoError(t, err)
	assert.Nil(t, resp.CounterOffer)
	assert.Contains(t, resp.Reply, "previous best")

	// Re-prompts never enter the transcript.
	rec, err := mgr.Transcript(res.SessionID)
	require.NoError(t, err)
	require.Len(t, rec.History, 1)

	// Progress resumes at stage 2.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 160)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 172.0, *resp.CounterOffer)
}

func TestMainRegimeStageThreeClosesAtOffer(t *testing.T) {
	ctx := context.Background()
	mgr, _ := testManager(t, events.NewMemoryStore())

	// An expensive item with a margin just over the capped threshold stays in
	// the main regime; the floor collapses to cost plus the buffer.
	res := startSession(t, mgr, catalog.Variant{ListPrice: 2105, CostPrice: 2000, BulkPrice: 2100, BulkThreshold: 500}, 1)
	require.Equal(t, pricing.Main, res.Classification)

	// Floor is cost+buffer = 2002 (dynamic margin is capped near zero).
	resp, err := mgr.SubmitOffer(ctx, res.SessionID, 2010)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 2040.0, *resp.CounterOffer)
	assert.False(t, resp.Terminal)

	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 2015)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 2027.0, *resp.CounterOffer)

	// Stage 3: max(offer, floor((offer+cost)/2)) == offer, so it accepts.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 2020)
	require.NoError(t, err)
	assert.True(t, resp.Terminal)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 2020.0, *resp.FinalPrice)
}

func TestBulkSideChannelDecline(t *testing.T) {
	ctx := context.Background()
	mgr, _ := testManager(t, events.NewMemoryStore())
	v := catalog.Variant{ListPrice: 200, CostPrice: 50, BulkPrice: 180, BulkThreshold: 10}
	res := startSession(t, mgr, v, 5)

	// Quantity 5 is within tolerance of the threshold, so the session opens
	// with a nudge; decline it first.
	require.NotNil(t, res.BulkSuggestion)
	assert.Equal(t, 10, res.BulkSuggestion.UpgradeQuantity)
	resp, err := mgr.ResolveBulkSuggestion(ctx, res.SessionID, false)
	require.NoError(t, err)
	assert.False(t, resp.Terminal)

	// An offer near the bulk price is held, not processed.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 170)
	require.NoError(t, err)
	require.NotNil(t, resp.BulkSuggestion)
	assert.Nil(t, resp.CounterOffer)

	// Declining resumes the held offer through the main rules.
	resp, err = mgr.ResolveBulkSuggestion(ctx, res.SessionID, false)
	require.NoError(t, err)
	require.NotNil(t, resp.CounterOffer)
	assert.Equal(t, 200.0, *resp.CounterOffer)
	assert.Contains(t, resp.Reply, "original quantity of 5")
}

func TestBulkSideChannelAccept(t *testing.T) {
	ctx := context.Background()
	mgr, fileLog := testManager(t, events.NewMemoryStore())
	v := catalog.Variant{ListPrice: 200, CostPrice: 50, BulkPrice: 180, BulkThreshold: 10}
	res := startSession(t, mgr, v, 5)
	require.NotNil(t, res.BulkSuggestion)

	resp, err := mgr.ResolveBulkSuggestion(ctx, res.SessionID, true)
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "upgraded to 10")

	// At the bulk threshold, an offer at the bulk price closes the deal.
	resp, err = mgr.SubmitOffer(ctx, res.SessionID, 180)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 180.0, *resp.FinalPrice)

	rec := fileLog.All()[0]
	assert.Equal(t, 10, rec.Quantity)
}

func TestResolveBulkSuggestionWithoutPending(t *testing.T) {
	ctx := context.Background()
	mgr, _ := testManager(t, events.NewMemoryStore())
	res := startSession(t, mgr, wideMarginVariant, 1)

	_, err := mgr.ResolveBulkSuggestion(ctx, res.SessionID, true)
	assert.ErrorIs(t, err, ErrNoPendingSuggestion)
}
