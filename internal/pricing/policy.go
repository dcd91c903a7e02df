package pricing

import "time"

// Policy carries every tunable of the price-floor engine. The zero value is
// not usable; construct via DefaultPolicy and override as needed.
type Policy struct {
	// Sigmoid ramp.
	MaxMargin        float64
	K                float64
	Midpoint         float64
	OrderThreshold   int

	// Plateau / decline lifecycle.
	PlateauMargin       float64
	PlateauDurationDays int
	ActivityThreshold   int
	DeclineRate         float64
	DeclineStepDays     int

	// Wiggle room.
	WiggleMinPct        float64
	WiggleMinAmount     float64
	WiggleFloor         float64
	WiggleMaxMarginFrac float64

	MinMarginBuffer float64
	RollingWindow   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxMargin:      20,
		K:              0.01,
		Midpoint:       750,
		OrderThreshold: 50,

		PlateauMargin:       20,
		PlateauDurationDays: 15,
		ActivityThreshold:   25,
		DeclineRate:         2,
		DeclineStepDays:     3,

		WiggleMinPct:        0.05,
		WiggleMinAmount:     20,
		WiggleFloor:         2,
		WiggleMaxMarginFrac: 0.5,

		MinMarginBuffer: 2,
		RollingWindow:   30 * 24 * time.Hour,
	}
}
