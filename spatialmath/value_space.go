package spatialmath

import "math"

// ValueSpace describes the domain a scalar quantity lives in. Linear quantities such as drive
// velocity live in an unbounded space, steering angles live in a periodic space where -π and π
// are the same value.
type ValueSpace interface {
	// DistancesBetweenValues returns every signed distance that moves start onto end. The first
	// entry is always the shortest.
	DistancesBetweenValues(start, end float64) []float64
	// Normalize maps value onto the canonical range of the space.
	Normalize(value float64) float64
	// SmallestDistanceBetweenValues returns the signed distance with the smallest magnitude.
	SmallestDistanceBetweenValues(start, end float64) float64

	isValueSpace()
}

// LinearSpace is the real number line.
type LinearSpace struct{}

// NewLinearSpace returns the unbounded linear value space.
func NewLinearSpace() LinearSpace {
	return LinearSpace{}
}

// DistancesBetweenValues returns the single distance end - start.
func (LinearSpace) DistancesBetweenValues(start, end float64) []float64 {
	return []float64{end - start}
}

// Normalize returns value unchanged.
func (LinearSpace) Normalize(value float64) float64 {
	return value
}

// SmallestDistanceBetweenValues returns end - start.
func (LinearSpace) SmallestDistanceBetweenValues(start, end float64) float64 {
	return end - start
}

func (LinearSpace) isValueSpace() {}

// CircularSpace is the periodic space of angles in radians, with canonical range (-π, π].
type CircularSpace struct{}

// NewCircularSpace returns the periodic angle space.
func NewCircularSpace() CircularSpace {
	return CircularSpace{}
}

// DistancesBetweenValues returns the shortest signed distance followed by the distance that
// travels the other way around the circle.
func (c CircularSpace) DistancesBetweenValues(start, end float64) []float64 {
	d := c.SmallestDistanceBetweenValues(start, end)
	if d > 0 {
		return []float64{d, d - 2*math.Pi}
	}
	return []float64{d, d + 2*math.Pi}
}

// Normalize wraps value into (-π, π].
func (CircularSpace) Normalize(value float64) float64 {
	wrapped := math.Mod(value, 2*math.Pi)
	if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	}
	if wrapped > math.Pi {
		wrapped -= 2 * math.Pi
	}
	return wrapped
}

// SmallestDistanceBetweenValues returns the signed distance in (-π, π] that moves start onto end.
func (c CircularSpace) SmallestDistanceBetweenValues(start, end float64) float64 {
	return c.Normalize(c.Normalize(end) - c.Normalize(start))
}

func (CircularSpace) isValueSpace() {}
