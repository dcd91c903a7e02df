package pricing

import "math"

// Sigmoid maps a rolling order count to the base incentive margin percent.
// Below OrderThreshold there is no incentive at all; from the threshold up the
// margin follows a logistic ramp that approaches MaxMargin asymptotically.
// Monotonically non-decreasing in orderCount.
func (p Policy) Sigmoid(orderCount int) float64 {
	if orderCount < p.OrderThreshold {
		return 0
	}
	return p.MaxMargin / (1 + math.Exp(-p.K*(float64(orderCount)-p.Midpoint)))
}
