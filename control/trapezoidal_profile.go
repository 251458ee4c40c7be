package control

import (
	"math"

	"go.viam.com/swerve/spatialmath"
)

// TrapezoidalProfile accelerates for the first third, cruises for the second third and
// decelerates for the last third of its duration.
type TrapezoidalProfile struct {
	twoPoint
	phase        float64
	cruise       float64
	acceleration float64
}

// NewTrapezoidalProfile returns a trapezoidal profile from start to end over endTime seconds.
func NewTrapezoidalProfile(start, end, endTime float64, space spatialmath.ValueSpace) (*TrapezoidalProfile, error) {
	base, err := newTwoPoint(start, end, endTime, space)
	if err != nil {
		return nil, err
	}
	return &TrapezoidalProfile{
		twoPoint:     base,
		phase:        endTime / 3,
		cruise:       1.5 * base.delta / endTime,
		acceleration: 4.5 * base.delta / (endTime * endTime),
	}, nil
}

// ValueAt returns the value at t.
func (p *TrapezoidalProfile) ValueAt(t float64) float64 {
	t = p.clampTime(t)
	var travel float64
	switch {
	case t <= p.phase:
		travel = 0.5 * p.acceleration * t * t
	case t <= 2*p.phase:
		travel = 0.5*p.acceleration*p.phase*p.phase + p.cruise*(t-p.phase)
	default:
		remaining := p.endTime - t
		travel = p.delta - 0.5*p.acceleration*remaining*remaining
	}
	return p.valueFromTravel(travel)
}

// FirstDerivativeAt returns the rate of change at t.
func (p *TrapezoidalProfile) FirstDerivativeAt(t float64) float64 {
	switch {
	case !p.inRange(t):
		return 0
	case t <= p.phase:
		return p.acceleration * t
	case t <= 2*p.phase:
		return p.cruise
	default:
		return p.acceleration * (p.endTime - t)
	}
}

// SecondDerivativeAt returns the piecewise constant acceleration.
func (p *TrapezoidalProfile) SecondDerivativeAt(t float64) float64 {
	switch {
	case !p.inRange(t):
		return 0
	case t < p.phase:
		return p.acceleration
	case t <= 2*p.phase:
		return 0
	default:
		return -p.acceleration
	}
}

// ThirdDerivativeAt reports the steps in acceleration as impulses at the phase boundaries.
func (p *TrapezoidalProfile) ThirdDerivativeAt(t float64) float64 {
	if !p.inRange(t) {
		return 0
	}
	impulse := p.acceleration / impulseWindow
	half := impulseWindow / 2
	switch {
	case t < half:
		return impulse
	case math.Abs(t-p.phase) < half, math.Abs(t-2*p.phase) < half:
		return -impulse
	case t > p.endTime-half:
		return impulse
	default:
		return 0
	}
}

// InflectionPoints returns the phase boundaries.
func (p *TrapezoidalProfile) InflectionPoints() []ProfilePoint {
	times := []float64{0, p.phase, 2 * p.phase, p.endTime}
	points := make([]ProfilePoint, 0, len(times))
	for _, t := range times {
		points = append(points, ProfilePoint{
			Time:             t,
			Value:            p.ValueAt(t),
			FirstDerivative:  p.FirstDerivativeAt(t),
			SecondDerivative: p.SecondDerivativeAt(t),
		})
	}
	return points
}
