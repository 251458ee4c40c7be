// Package control implements time-parameterized profiles for single scalar quantities, such as a
// steering angle or a drive velocity, together with their first three time derivatives.
package control

import (
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// impulseWindow is the width, in seconds, over which an instantaneous change in a derivative is
// spread when reporting the next higher derivative.
const impulseWindow = 0.01

// TransientVariableProfile describes how a scalar moves from a start value to an end value over
// [0, EndTime] seconds. Inputs outside that range clamp to the boundary value and report zero
// derivatives.
type TransientVariableProfile interface {
	EndTime() float64
	ValueAt(t float64) float64
	FirstDerivativeAt(t float64) float64
	SecondDerivativeAt(t float64) float64
	ThirdDerivativeAt(t float64) float64
	// InflectionPoints returns the times where the profile changes shape, with the profile
	// state at each.
	InflectionPoints() []ProfilePoint

	isProfile()
}

// ProfilePoint is the state of a profile at a given time.
type ProfilePoint struct {
	Time             float64
	Value            float64
	FirstDerivative  float64
	SecondDerivative float64
	ThirdDerivative  float64
}

// PointAt samples every quantity of profile at t.
func PointAt(profile TransientVariableProfile, t float64) ProfilePoint {
	return ProfilePoint{
		Time:             t,
		Value:            profile.ValueAt(t),
		FirstDerivative:  profile.FirstDerivativeAt(t),
		SecondDerivative: profile.SecondDerivativeAt(t),
		ThirdDerivative:  profile.ThirdDerivativeAt(t),
	}
}

// ProfileKind selects the shape of a two-point profile.
type ProfileKind int

const (
	// LinearProfileKind moves at constant rate.
	LinearProfileKind ProfileKind = iota
	// TrapezoidalProfileKind accelerates, cruises and decelerates for a third of the time each.
	TrapezoidalProfileKind
	// SCurveProfileKind limits jerk with a seven phase motion.
	SCurveProfileKind
)

func (k ProfileKind) String() string {
	switch k {
	case LinearProfileKind:
		return "linear"
	case TrapezoidalProfileKind:
		return "trapezoidal"
	case SCurveProfileKind:
		return "s_curve"
	default:
		return "unknown"
	}
}

// PeakRateFactor is the ratio between the peak and the average rate of change of a profile of
// this kind.
func (k ProfileKind) PeakRateFactor() float64 {
	switch k {
	case TrapezoidalProfileKind:
		return 1.5
	case SCurveProfileKind:
		return 1.6
	default:
		return 1
	}
}

// ProfileKindFromString parses the names produced by ProfileKind.String.
func ProfileKindFromString(s string) (ProfileKind, error) {
	switch strings.ToLower(s) {
	case "linear":
		return LinearProfileKind, nil
	case "trapezoidal", "trapezoid":
		return TrapezoidalProfileKind, nil
	case "s_curve", "scurve":
		return SCurveProfileKind, nil
	}
	return LinearProfileKind, errors.Errorf("unknown profile kind %q", s)
}

// MarshalText encodes the kind by name.
func (k ProfileKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind by name.
func (k *ProfileKind) UnmarshalText(text []byte) error {
	kind, err := ProfileKindFromString(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ProfileGenerator builds a profile from start to end over endTime seconds in the given space.
type ProfileGenerator func(start, end, endTime float64, space spatialmath.ValueSpace) (TransientVariableProfile, error)

// GeneratorFor returns the generator for kind.
func GeneratorFor(kind ProfileKind) (ProfileGenerator, error) {
	switch kind {
	case LinearProfileKind:
		return func(start, end, endTime float64, space spatialmath.ValueSpace) (TransientVariableProfile, error) {
			return NewLinearProfile(start, end, endTime, space)
		}, nil
	case TrapezoidalProfileKind:
		return func(start, end, endTime float64, space spatialmath.ValueSpace) (TransientVariableProfile, error) {
			return NewTrapezoidalProfile(start, end, endTime, space)
		}, nil
	case SCurveProfileKind:
		return func(start, end, endTime float64, space spatialmath.ValueSpace) (TransientVariableProfile, error) {
			return NewSCurveProfile(start, end, endTime, space)
		}, nil
	}
	return nil, errors.Errorf("no profile generator for %v", kind)
}

// twoPoint holds what every start/end profile shares.
type twoPoint struct {
	start   float64
	end     float64
	endTime float64
	// delta is the signed travel from start, taken the short way round in periodic spaces.
	delta float64
	space spatialmath.ValueSpace
}

func newTwoPoint(start, end, endTime float64, space spatialmath.ValueSpace) (twoPoint, error) {
	if endTime <= 0 {
		return twoPoint{}, NewZeroLengthProfileError(endTime)
	}
	if space == nil {
		space = spatialmath.NewLinearSpace()
	}
	return twoPoint{
		start:   start,
		end:     end,
		endTime: endTime,
		delta:   space.SmallestDistanceBetweenValues(start, end),
		space:   space,
	}, nil
}

func (p twoPoint) EndTime() float64 {
	return p.endTime
}

func (p twoPoint) inRange(t float64) bool {
	return t >= 0 && t <= p.endTime
}

func (p twoPoint) clampTime(t float64) float64 {
	return utils.Clamp(t, 0, p.endTime)
}

// valueFromTravel maps travel along delta back into the value space.
func (p twoPoint) valueFromTravel(travel float64) float64 {
	return p.space.Normalize(p.start + travel)
}

func (twoPoint) isProfile() {}
