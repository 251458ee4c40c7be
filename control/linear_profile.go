package control

import "go.viam.com/swerve/spatialmath"

// LinearProfile moves from start to end at a constant rate. The instantaneous changes in rate at
// the ends are reported as short impulses in the higher derivatives.
type LinearProfile struct {
	twoPoint
}

// NewLinearProfile returns a linear profile from start to end over endTime seconds.
func NewLinearProfile(start, end, endTime float64, space spatialmath.ValueSpace) (*LinearProfile, error) {
	base, err := newTwoPoint(start, end, endTime, space)
	if err != nil {
		return nil, err
	}
	return &LinearProfile{base}, nil
}

func (p *LinearProfile) rate() float64 {
	return p.delta / p.endTime
}

// ValueAt returns the value at t.
func (p *LinearProfile) ValueAt(t float64) float64 {
	return p.valueFromTravel(p.delta * p.clampTime(t) / p.endTime)
}

// FirstDerivativeAt returns the constant rate inside the profile.
func (p *LinearProfile) FirstDerivativeAt(t float64) float64 {
	if !p.inRange(t) {
		return 0
	}
	return p.rate()
}

// SecondDerivativeAt returns the start and end impulses.
func (p *LinearProfile) SecondDerivativeAt(t float64) float64 {
	switch {
	case !p.inRange(t):
		return 0
	case t < impulseWindow:
		return p.rate() / impulseWindow
	case t > p.endTime-impulseWindow:
		return -p.rate() / impulseWindow
	default:
		return 0
	}
}

// ThirdDerivativeAt returns the start and end impulses.
func (p *LinearProfile) ThirdDerivativeAt(t float64) float64 {
	switch {
	case !p.inRange(t):
		return 0
	case t < impulseWindow:
		return p.rate() / (impulseWindow * impulseWindow)
	case t > p.endTime-impulseWindow:
		return -p.rate() / (impulseWindow * impulseWindow)
	default:
		return 0
	}
}

// InflectionPoints returns the start and end of the profile.
func (p *LinearProfile) InflectionPoints() []ProfilePoint {
	return []ProfilePoint{
		{Time: 0, Value: p.ValueAt(0), FirstDerivative: p.rate()},
		{Time: p.endTime, Value: p.ValueAt(p.endTime), FirstDerivative: p.rate()},
	}
}
