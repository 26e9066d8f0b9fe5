package sysinfo

import "time"

// Now returns an arbitrary-epoch wall-clock reading in seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Tick measures the effective resolution of Now by spinning until the clock
// advances.
func Tick() float64 {
	start := Now()
	end := Now()
	for end == start {
		end = Now()
	}
	return end - start
}
