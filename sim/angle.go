package sim

import "math"

// NormalizeDegrees wraps a to [0, 360)
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	// -1e-20 + 360 rounds to 360
	if a >= 360 {
		a -= 360
	}
	return a
}

// Radians converts degrees to radians
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// AimAt returns the aim angle in degrees for an offset (dx, dy) from the turret.
// Screen coordinates are fine as long as y grows the same way as the world's.
func AimAt(dx, dy float64) float64 {
	return NormalizeDegrees(Degrees(math.Atan2(dy, dx)))
}
