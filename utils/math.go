package utils

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultEpsilon is the absolute and relative tolerance used when comparing kinematic quantities.
const DefaultEpsilon = 1e-9

// Clamp limits value to the closed interval [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

// Float64AlmostEqual compares two floats using DefaultEpsilon as both the absolute and relative
// tolerance.
func Float64AlmostEqual(a, b float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, DefaultEpsilon, DefaultEpsilon)
}
