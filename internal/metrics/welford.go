package metrics

import "math"

// DelayAccumulator keeps running delay statistics using Welford's online
// algorithm, so a run never has to hold every observed delay.
type DelayAccumulator struct {
	count int
	mean  float64
	m2    float64 // sum of squared differences from the mean
}

// Observe adds one delay in seconds.
func (a *DelayAccumulator) Observe(seconds float64) {
	a.count++
	delta := seconds - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (seconds - a.mean)
}

// Count returns the number of observations.
func (a *DelayAccumulator) Count() int {
	return a.count
}

// Mean returns the running mean, 0 when empty.
func (a *DelayAccumulator) Mean() float64 {
	return a.mean
}

// StdDev returns the population standard deviation.
// Returns 0 if fewer than 2 observations.
func (a *DelayAccumulator) StdDev() float64 {
	if a.count < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.count))
}
