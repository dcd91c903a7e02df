package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWiggleRoomNeverExceedsMargin(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct{ lp, cp float64 }{
		{100, 90},
		{200, 50},
		{1000, 950},
		{50, 40},
		{5000, 100},
		{120, 118},
	}
	for _, tc := range cases {
		wiggle := p.WiggleRoom(tc.lp, tc.cp)
		margin := tc.lp - tc.cp
		assert.LessOrEqual(t, wiggle, margin, "wiggle room exceeds margin for lp=%v cp=%v", tc.lp, tc.cp)
		available := margin
		if available < p.WiggleFloor {
			available = p.WiggleFloor
		}
		assert.LessOrEqual(t, wiggle, available*p.WiggleMaxMarginFrac,
			"wiggle room exceeds safe cap for lp=%v cp=%v", tc.lp, tc.cp)
	}
}

func TestWiggleRoomScenarioValues(t *testing.T) {
	p := DefaultPolicy()
	// lp=100 cp=90: available=10, calculated=max(5,20,2)=20, safe cap=5.
	assert.Equal(t, 5.0, p.WiggleRoom(100, 90))
	// lp=200 cp=50: available=150, calculated=max(10,20,2)=20, safe cap=75.
	assert.Equal(t, 20.0, p.WiggleRoom(200, 50))
}

func TestClassify(t *testing.T) {
	p := DefaultPolicy()

	// Margin thinner than the wiggle room: negotiation must not proceed.
	assert.Equal(t, NoNegotiation, p.Classify(99.5, 100, p.WiggleRoom(100, 99.5)))

	// Thin but workable margin: threshold = min(90*0.12, 100) = 10.8 >= 10.
	assert.Equal(t, Fallback, p.Classify(90, 100, p.WiggleRoom(100, 90)))

	// Wide margin: threshold = min(6, 100) = 6 < 150.
	assert.Equal(t, Main, p.Classify(50, 200, p.WiggleRoom(200, 50)))
}

func TestClassifyThresholdCap(t *testing.T) {
	p := DefaultPolicy()
	// Threshold caps at 100 for expensive items: margin 105 > 100 -> main.
	assert.Equal(t, Main, p.Classify(2000, 2105, p.WiggleRoom(2105, 2000)))
	// Margin 95 <= 100 -> fallback.
	assert.Equal(t, Fallback, p.Classify(2000, 2095, p.WiggleRoom(2095, 2000)))
}
