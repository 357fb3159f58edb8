// Package clock converts between real-world and virtual (simulated) time and
// provides the scheduling primitives every timer in the engine is built on.
package clock

import "time"

// Transform maps nominal real-world durations to scheduling delays.
//
// In simulated mode ScaleDown divides by Multiplier (the delay to actually
// wait) and ScaleUp multiplies elapsed wall time back to its real-world
// equivalent. Outside simulated mode both are identity.
type Transform struct {
	Simulate   bool
	Multiplier float64
}

// Identity is the real-time transform.
var Identity = Transform{}

func (t Transform) active() bool {
	return t.Simulate && t.Multiplier > 0 && t.Multiplier != 1
}

// ScaleDown converts a nominal duration into the delay to schedule.
func (t Transform) ScaleDown(d time.Duration) time.Duration {
	if !t.active() {
		return d
	}
	return time.Duration(float64(d) / t.Multiplier)
}

// ScaleUp converts an elapsed scheduling duration into nominal time.
func (t Transform) ScaleUp(d time.Duration) time.Duration {
	if !t.active() {
		return d
	}
	return time.Duration(float64(d) * t.Multiplier)
}
