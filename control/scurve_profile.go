package control

import (
	"sort"

	"go.viam.com/swerve/spatialmath"
)

// sCurvePhases are the phase boundaries in units of endTime/8 and jerkSigns the jerk applied
// within each phase.
var (
	sCurvePhases = []float64{0, 1, 2, 3, 5, 6, 7, 8}
	jerkSigns    = []float64{1, 0, -1, 0, -1, 0, 1}
)

type motionState struct {
	position     float64
	velocity     float64
	acceleration float64
}

func (s motionState) advance(jerk, dt float64) motionState {
	return motionState{
		position:     s.position + s.velocity*dt + s.acceleration*dt*dt/2 + jerk*dt*dt*dt/6,
		velocity:     s.velocity + s.acceleration*dt + jerk*dt*dt/2,
		acceleration: s.acceleration + jerk*dt,
	}
}

// SCurveProfile is a jerk limited motion with seven phases of relative lengths
// 1, 1, 1, 2, 1, 1, 1: jerk up, constant acceleration, jerk down, cruise, and the mirror image.
type SCurveProfile struct {
	twoPoint
	jerk       float64
	boundaries []float64
	states     []motionState
}

// NewSCurveProfile returns an S-curve profile from start to end over endTime seconds.
func NewSCurveProfile(start, end, endTime float64, space spatialmath.ValueSpace) (*SCurveProfile, error) {
	base, err := newTwoPoint(start, end, endTime, space)
	if err != nil {
		return nil, err
	}
	p := &SCurveProfile{
		twoPoint: base,
		jerk:     512 * base.delta / (10 * endTime * endTime * endTime),
	}

	unit := endTime / 8
	p.boundaries = make([]float64, len(sCurvePhases))
	p.states = make([]motionState, len(sCurvePhases))
	for i, b := range sCurvePhases {
		p.boundaries[i] = b * unit
		if i > 0 {
			p.states[i] = p.states[i-1].advance(jerkSigns[i-1]*p.jerk, p.boundaries[i]-p.boundaries[i-1])
		}
	}
	return p, nil
}

// phaseAt returns the index of the phase containing t, which must be inside the profile.
func (p *SCurveProfile) phaseAt(t float64) int {
	i := sort.SearchFloat64s(p.boundaries, t)
	if i < len(p.boundaries) && p.boundaries[i] == t {
		i++
	}
	phase := i - 1
	if phase < 0 {
		phase = 0
	}
	if phase >= len(jerkSigns) {
		phase = len(jerkSigns) - 1
	}
	return phase
}

func (p *SCurveProfile) stateAt(t float64) motionState {
	phase := p.phaseAt(t)
	return p.states[phase].advance(jerkSigns[phase]*p.jerk, t-p.boundaries[phase])
}

// ValueAt returns the value at t.
func (p *SCurveProfile) ValueAt(t float64) float64 {
	t = p.clampTime(t)
	if t == p.endTime {
		return p.valueFromTravel(p.delta)
	}
	return p.valueFromTravel(p.stateAt(t).position)
}

// FirstDerivativeAt returns the rate of change at t.
func (p *SCurveProfile) FirstDerivativeAt(t float64) float64 {
	if !p.inRange(t) {
		return 0
	}
	return p.stateAt(t).velocity
}

// SecondDerivativeAt returns the acceleration at t.
func (p *SCurveProfile) SecondDerivativeAt(t float64) float64 {
	if !p.inRange(t) {
		return 0
	}
	return p.stateAt(t).acceleration
}

// ThirdDerivativeAt returns the jerk of the phase containing t.
func (p *SCurveProfile) ThirdDerivativeAt(t float64) float64 {
	if !p.inRange(t) {
		return 0
	}
	return jerkSigns[p.phaseAt(t)] * p.jerk
}

// InflectionPoints returns the eight phase boundaries.
func (p *SCurveProfile) InflectionPoints() []ProfilePoint {
	points := make([]ProfilePoint, 0, len(p.boundaries))
	for i, t := range p.boundaries {
		jerk := 0.0
		if i < len(jerkSigns) {
			jerk = jerkSigns[i] * p.jerk
		}
		points = append(points, ProfilePoint{
			Time:             t,
			Value:            p.valueFromTravel(p.states[i].position),
			FirstDerivative:  p.states[i].velocity,
			SecondDerivative: p.states[i].acceleration,
			ThirdDerivative:  jerk,
		})
	}
	return points
}
