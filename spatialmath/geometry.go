package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
)

// parallelTolerance is the tolerance on the homogeneous coordinate below which two lines are
// considered parallel.
const parallelTolerance = 1e-5

// PointAtInfinity is returned for the intersection of parallel lines.
var PointAtInfinity = r3.Vector{X: math.Inf(1), Y: math.Inf(1)}

// IsFinitePoint reports whether p has finite X and Y coordinates.
func IsFinitePoint(p r3.Vector) bool {
	return !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0) && !math.IsNaN(p.X) && !math.IsNaN(p.Y)
}

// LineIntersection returns the point where the line through a1 and a2 crosses the line through
// b1 and b2 in the XY plane. Parallel (or coincident) lines return PointAtInfinity.
func LineIntersection(a1, a2, b1, b2 r3.Vector) r3.Vector {
	lineA := homogeneous(a1).Cross(homogeneous(a2))
	lineB := homogeneous(b1).Cross(homogeneous(b2))
	crossing := lineA.Cross(lineB)
	if scalar.EqualWithinAbsOrRel(crossing.Z, 0, parallelTolerance, parallelTolerance) {
		return PointAtInfinity
	}
	return r3.Vector{X: crossing.X / crossing.Z, Y: crossing.Y / crossing.Z}
}

func homogeneous(p r3.Vector) r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: 1}
}

// AxlePoint returns a second point on the axle line of a wheel whose steering axis sits at
// position and which is steered to steeringAngle. The axle is perpendicular to the rolling
// direction.
func AxlePoint(position r3.Vector, steeringAngle float64) r3.Vector {
	return r3.Vector{X: position.X - math.Sin(steeringAngle), Y: position.Y + math.Cos(steeringAngle)}
}

// InstantaneousCenterOfRotation returns the intersection of the axle lines for every unordered
// pair of wheels. For a kinematically consistent set of steering angles all finite points
// coincide.
func InstantaneousCenterOfRotation(positions []r3.Vector, steeringAngles []float64) ([]r3.Vector, error) {
	if len(positions) != len(steeringAngles) {
		return nil, errors.Errorf(
			"expected one steering angle per wheel, got %d positions and %d angles", len(positions), len(steeringAngles))
	}

	var result []r3.Vector
	for i := 0; i < len(positions); i++ {
		axleI := AxlePoint(positions[i], steeringAngles[i])
		for j := i + 1; j < len(positions); j++ {
			axleJ := AxlePoint(positions[j], steeringAngles[j])
			result = append(result, LineIntersection(positions[i], axleI, positions[j], axleJ))
		}
	}
	return result, nil
}

// ICRSummary describes how tightly a set of axle intersections agree.
type ICRSummary struct {
	Centroid r3.Vector
	// Spread is the standard deviation of the distances between each finite point and the centroid.
	Spread float64
	// Finite counts the intersections that were not at infinity.
	Finite int
}

// SummarizeICR computes the centroid and spread of the finite intersection points. When no point
// is finite the centroid is PointAtInfinity.
func SummarizeICR(points []r3.Vector) (ICRSummary, error) {
	var xs, ys []float64
	for _, p := range points {
		if IsFinitePoint(p) {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
	}
	if len(xs) == 0 {
		return ICRSummary{Centroid: PointAtInfinity}, nil
	}

	meanX, err := stats.Mean(xs)
	if err != nil {
		return ICRSummary{}, err
	}
	meanY, err := stats.Mean(ys)
	if err != nil {
		return ICRSummary{}, err
	}
	centroid := r3.Vector{X: meanX, Y: meanY}

	dists := make([]float64, 0, len(xs))
	for i := range xs {
		dists = append(dists, r3.Vector{X: xs[i], Y: ys[i]}.Distance(centroid))
	}
	spread, err := stats.StandardDeviation(dists)
	if err != nil {
		return ICRSummary{}, err
	}
	return ICRSummary{Centroid: centroid, Spread: spread, Finite: len(xs)}, nil
}
