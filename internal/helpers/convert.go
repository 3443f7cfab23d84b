// Package helpers provides safe numeric conversions that may lose precision.
//
// The gateway uses this for the loop marker's hop counter: MaxHops and the
// running hop count are config/wire int-ish values that must become a
// uint16 for the EDNS0 option without wrapping around, so queryproc clamps
// instead of converting directly.
package helpers

import "math"

// clampInt restricts v to the range [minVal, maxVal].
func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// ClampIntToUint16 converts v to uint16 with clamping.
// Values below 0 become 0; values above math.MaxUint16 become math.MaxUint16.
func ClampIntToUint16(v int) uint16 {
	clamped := clampInt(v, 0, math.MaxUint16)
	return uint16(clamped) //nolint:gosec // clamped to valid range
}
