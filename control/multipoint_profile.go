package control

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swerve/spatialmath"
)

// timeTolerance is how close two control point times must be to be treated as the same time.
const timeTolerance = 1e-7

// polynomial is a cubic a + b*s + c*s^2 + d*s^3 in s = t - origin.
type polynomial struct {
	origin     float64
	a, b, c, d float64
}

func (p polynomial) value(t float64) float64 {
	s := t - p.origin
	return p.a + s*(p.b+s*(p.c+s*p.d))
}

func (p polynomial) first(t float64) float64 {
	s := t - p.origin
	return p.b + s*(2*p.c+3*p.d*s)
}

func (p polynomial) second(t float64) float64 {
	return 2*p.c + 6*p.d*(t-p.origin)
}

func (p polynomial) third(float64) float64 {
	return 6 * p.d
}

// Interpolation selects how a MultiPointProfile joins more than two control points.
type Interpolation int

const (
	// SplineInterpolation fits the interpolating quadratic through three control points and a
	// clamped cubic spline through four or more.
	SplineInterpolation Interpolation = iota
	// MonotoneInterpolation fits a piecewise cubic Hermite curve with Fritsch-Butland slopes. The
	// curve never leaves the range of the two control points around it, so pinned end derivatives
	// are reduced where they would make the first or last piece overshoot.
	MonotoneInterpolation
)

// Range is a closed interval.
type Range struct {
	Min, Max float64
}

// MultiPointProfile passes through an arbitrary number of control points. With two points it is
// linear. With more it is fit according to its Interpolation, and the first derivative at each
// end is pinned to a configurable value (zero by default).
//
// The curve is fit lazily on the first query after the control points change. When a fit fails
// the points are joined by straight lines and Fit reports the error.
type MultiPointProfile struct {
	mu sync.Mutex

	space           spatialmath.ValueSpace
	interpolation   Interpolation
	times           []float64
	values          []float64
	startDerivative float64
	endDerivative   float64

	fitted   bool
	fitErr   error
	segments []polynomial
}

// NewMultiPointProfile returns a profile through (0, start) and (endTime, end).
func NewMultiPointProfile(start, end, endTime float64, space spatialmath.ValueSpace) (*MultiPointProfile, error) {
	if endTime <= 0 {
		return nil, NewZeroLengthProfileError(endTime)
	}
	if !isFinite(start) || !isFinite(end) {
		return nil, errors.Errorf("control point values must be finite, got %v and %v", start, end)
	}
	if space == nil {
		space = spatialmath.NewLinearSpace()
	}
	return &MultiPointProfile{
		space:  space,
		times:  []float64{0, endTime},
		values: []float64{start, end},
	}, nil
}

// AddValue inserts a control point at t in [0, EndTime]. A point at (nearly) the same time as an
// existing one replaces it.
func (p *MultiPointProfile) AddValue(t, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	endTime := p.times[len(p.times)-1]
	if t < 0 || t > endTime+timeTolerance {
		return NewInvalidTimeFractionError("control point time %v outside [0, %v]", t, endTime)
	}
	if !isFinite(value) {
		return errors.Errorf("control point value must be finite, got %v", value)
	}

	i := sort.SearchFloat64s(p.times, t)
	switch {
	case i < len(p.times) && scalar.EqualWithinAbsOrRel(p.times[i], t, timeTolerance, timeTolerance):
		p.values[i] = value
	case i > 0 && scalar.EqualWithinAbsOrRel(p.times[i-1], t, timeTolerance, timeTolerance):
		p.values[i-1] = value
	default:
		p.times = append(p.times, 0)
		copy(p.times[i+1:], p.times[i:])
		p.times[i] = t
		p.values = append(p.values, 0)
		copy(p.values[i+1:], p.values[i:])
		p.values[i] = value
	}
	p.fitted = false
	return nil
}

// SetEndDerivatives pins the first derivative at the first and last control point. It has no
// effect on two points or on the interpolating quadratic.
func (p *MultiPointProfile) SetEndDerivatives(start, end float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startDerivative = start
	p.endDerivative = end
	p.fitted = false
}

// SetInterpolation changes how the control points are joined.
func (p *MultiPointProfile) SetInterpolation(interpolation Interpolation) error {
	switch interpolation {
	case SplineInterpolation, MonotoneInterpolation:
	default:
		return errors.Errorf("unknown interpolation %d", interpolation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interpolation = interpolation
	p.fitted = false
	return nil
}

// Len returns the number of control points.
func (p *MultiPointProfile) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.times)
}

// Fit forces the curve to be fit now rather than on the next query.
func (p *MultiPointProfile) Fit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fit()
}

func (p *MultiPointProfile) fit() error {
	if p.fitted {
		return p.fitErr
	}

	// Periodic values are unwrapped so that consecutive points are joined the short way round.
	unwrapped := make([]float64, len(p.values))
	unwrapped[0] = p.values[0]
	for i := 1; i < len(p.values); i++ {
		unwrapped[i] = unwrapped[i-1] + p.space.SmallestDistanceBetweenValues(p.values[i-1], p.values[i])
	}

	segments, err := p.fitSegments(unwrapped)
	if err != nil {
		segments = fitPiecewiseLinear(p.times, unwrapped)
	}
	p.segments = segments
	p.fitErr = err
	p.fitted = true
	return err
}

func (p *MultiPointProfile) fitSegments(values []float64) ([]polynomial, error) {
	switch {
	case p.interpolation != SplineInterpolation && p.interpolation != MonotoneInterpolation:
		return nil, errors.Errorf("unknown interpolation %d", p.interpolation)
	case len(p.times) == 2:
		return fitPiecewiseLinear(p.times, values), nil
	case p.interpolation == MonotoneInterpolation:
		return fitMonotone(p.times, values, p.startDerivative, p.endDerivative)
	case len(p.times) == 3:
		return fitQuadratic(p.times, values)
	default:
		return fitClampedSpline(p.times, values, p.startDerivative, p.endDerivative)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func fitPiecewiseLinear(times, values []float64) []polynomial {
	segments := make([]polynomial, len(times)-1)
	for i := range segments {
		segments[i] = polynomial{
			origin: times[i],
			a:      values[i],
			b:      (values[i+1] - values[i]) / (times[i+1] - times[i]),
		}
	}
	return segments
}

// fitMonotone takes the knot slopes from a Fritsch-Butland fit and replaces the end slopes with
// the pinned derivatives, limited to keep the end pieces monotone.
func fitMonotone(times, values []float64, startDerivative, endDerivative float64) ([]polynomial, error) {
	var fb interp.FritschButland
	if err := fb.Fit(times, values); err != nil {
		return nil, errors.Wrap(err, "fitting monotone curve through control points")
	}
	n := len(times)
	slopes := make([]float64, n)
	for i, t := range times {
		slopes[i] = fb.PredictDerivative(t)
	}
	slopes[0] = monotoneEndSlope(startDerivative, (values[1]-values[0])/(times[1]-times[0]))
	slopes[n-1] = monotoneEndSlope(endDerivative, (values[n-1]-values[n-2])/(times[n-1]-times[n-2]))
	return hermiteSegments(times, values, slopes), nil
}

// monotoneEndSlope limits a pinned end slope to [0, 3*secant], inside which a cubic Hermite piece
// with a monotone neighbor stays between its end values.
func monotoneEndSlope(pinned, secant float64) float64 {
	if pinned*secant <= 0 {
		return 0
	}
	if math.Abs(pinned) > 3*math.Abs(secant) {
		return 3 * secant
	}
	return pinned
}

func hermiteSegments(times, values, slopes []float64) []polynomial {
	segments := make([]polynomial, len(times)-1)
	for i := range segments {
		h := times[i+1] - times[i]
		dy := values[i+1] - values[i]
		segments[i] = polynomial{
			origin: times[i],
			a:      values[i],
			b:      slopes[i],
			c:      (3*dy - (2*slopes[i]+slopes[i+1])*h) / (h * h),
			d:      (-2*dy + (slopes[i]+slopes[i+1])*h) / (h * h * h),
		}
	}
	return segments
}

func fitQuadratic(times, values []float64) ([]polynomial, error) {
	origin := times[0]
	vandermonde := mat.NewDense(3, 3, nil)
	for i, t := range times {
		s := t - origin
		vandermonde.SetRow(i, []float64{1, s, s * s})
	}
	var coefficients mat.VecDense
	if err := coefficients.SolveVec(vandermonde, mat.NewVecDense(3, append([]float64(nil), values...))); err != nil {
		return nil, errors.Wrap(err, "fitting quadratic through control points")
	}
	return []polynomial{{
		origin: origin,
		a:      coefficients.AtVec(0),
		b:      coefficients.AtVec(1),
		c:      coefficients.AtVec(2),
	}}, nil
}

// fitClampedSpline solves for the second derivative (moment) at each knot such that the spline
// is C2 continuous inside and has the given first derivative at both ends.
func fitClampedSpline(times, values []float64, startDerivative, endDerivative float64) ([]polynomial, error) {
	n := len(times)
	h := make([]float64, n-1)
	slope := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = times[i+1] - times[i]
		slope[i] = (values[i+1] - values[i]) / h[i]
	}

	system := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)

	system.Set(0, 0, 2*h[0])
	system.Set(0, 1, h[0])
	rhs.SetVec(0, 6*(slope[0]-startDerivative))

	for i := 1; i < n-1; i++ {
		system.Set(i, i-1, h[i-1])
		system.Set(i, i, 2*(h[i-1]+h[i]))
		system.Set(i, i+1, h[i])
		rhs.SetVec(i, 6*(slope[i]-slope[i-1]))
	}

	system.Set(n-1, n-2, h[n-2])
	system.Set(n-1, n-1, 2*h[n-2])
	rhs.SetVec(n-1, 6*(endDerivative-slope[n-2]))

	var moments mat.VecDense
	if err := moments.SolveVec(system, rhs); err != nil {
		return nil, errors.Wrap(err, "solving spline moments")
	}

	segments := make([]polynomial, n-1)
	for i := range segments {
		mi, mj := moments.AtVec(i), moments.AtVec(i+1)
		segments[i] = polynomial{
			origin: times[i],
			a:      values[i],
			b:      slope[i] - h[i]*(2*mi+mj)/6,
			c:      mi / 2,
			d:      (mj - mi) / (6 * h[i]),
		}
	}
	return segments, nil
}

// segmentAt fits if needed and returns the polynomial covering t, which is clamped into range.
func (p *MultiPointProfile) segmentAt(t float64) (polynomial, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// A failed fit leaves straight segments in place and the error is reported by Fit.
	_ = p.fit()

	first, last := p.times[0], p.times[len(p.times)-1]
	inside := t >= first && t <= last
	if t < first {
		t = first
	}
	if t > last {
		t = last
	}

	i := sort.Search(len(p.segments), func(i int) bool { return p.segments[i].origin > t }) - 1
	if i < 0 {
		i = 0
	}
	return p.segments[i], t, inside
}

// DerivativeRanges returns the smallest and largest first and second derivative over
// [0, EndTime]. The error is the one Fit would return.
func (p *MultiPointProfile) DerivativeRanges() (Range, Range, error) {
	firsts, seconds, err := p.PieceDerivativeRanges()
	first := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	second := first
	for i := range firsts {
		first = first.union(firsts[i])
		second = second.union(seconds[i])
	}
	return first, second, err
}

// PieceDerivativeRanges returns the first and second derivative ranges between each pair of
// consecutive control points. The error is the one Fit would return.
func (p *MultiPointProfile) PieceDerivativeRanges() ([]Range, []Range, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.fit()

	firsts := make([]Range, len(p.segments))
	seconds := make([]Range, len(p.segments))
	for i, segment := range p.segments {
		start, end := p.times[i], p.times[i+1]
		first := rangeOf(segment.first(start), segment.first(end))
		// Between the ends the first derivative of a cubic peaks where its second derivative is zero.
		if segment.d != 0 {
			if vertex := segment.origin - segment.c/(3*segment.d); vertex > start && vertex < end {
				first = first.union(rangeOf(segment.first(vertex)))
			}
		}
		firsts[i] = first
		seconds[i] = rangeOf(segment.second(start), segment.second(end))
	}
	return firsts, seconds, err
}

func rangeOf(values ...float64) Range {
	r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	return r
}

func (r Range) union(other Range) Range {
	return Range{Min: math.Min(r.Min, other.Min), Max: math.Max(r.Max, other.Max)}
}

// EndTime returns the time of the last control point.
func (p *MultiPointProfile) EndTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.times[len(p.times)-1]
}

// ValueAt returns the value at t.
func (p *MultiPointProfile) ValueAt(t float64) float64 {
	segment, clamped, _ := p.segmentAt(t)
	return p.space.Normalize(segment.value(clamped))
}

// FirstDerivativeAt returns the rate of change at t.
func (p *MultiPointProfile) FirstDerivativeAt(t float64) float64 {
	segment, clamped, inside := p.segmentAt(t)
	if !inside {
		return 0
	}
	return segment.first(clamped)
}

// SecondDerivativeAt returns the second derivative at t.
func (p *MultiPointProfile) SecondDerivativeAt(t float64) float64 {
	segment, clamped, inside := p.segmentAt(t)
	if !inside {
		return 0
	}
	return segment.second(clamped)
}

// ThirdDerivativeAt returns the third derivative at t.
func (p *MultiPointProfile) ThirdDerivativeAt(t float64) float64 {
	segment, clamped, inside := p.segmentAt(t)
	if !inside {
		return 0
	}
	return segment.third(clamped)
}

// InflectionPoints returns the control points.
func (p *MultiPointProfile) InflectionPoints() []ProfilePoint {
	p.mu.Lock()
	times := append([]float64(nil), p.times...)
	p.mu.Unlock()

	points := make([]ProfilePoint, 0, len(times))
	for _, t := range times {
		points = append(points, PointAt(p, t))
	}
	return points
}

func (*MultiPointProfile) isProfile() {}
