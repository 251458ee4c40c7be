package control

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/swerve/spatialmath"
)

func TestZeroLengthProfilesRejected(t *testing.T) {
	for _, kind := range []ProfileKind{LinearProfileKind, TrapezoidalProfileKind, SCurveProfileKind} {
		t.Run(kind.String(), func(t *testing.T) {
			gen, err := GeneratorFor(kind)
			test.That(t, err, test.ShouldBeNil)
			_, err = gen(0, 1, 0, spatialmath.NewLinearSpace())
			test.That(t, errors.Is(err, ErrZeroLengthProfile), test.ShouldBeTrue)
			_, err = gen(0, 1, -1, spatialmath.NewLinearSpace())
			test.That(t, errors.Is(err, ErrZeroLengthProfile), test.ShouldBeTrue)
		})
	}
	_, err := NewMultiPointProfile(0, 1, 0, nil)
	test.That(t, errors.Is(err, ErrZeroLengthProfile), test.ShouldBeTrue)
}

func TestProfileKindNames(t *testing.T) {
	for _, kind := range []ProfileKind{LinearProfileKind, TrapezoidalProfileKind, SCurveProfileKind} {
		parsed, err := ProfileKindFromString(kind.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, kind)
	}
	var kind ProfileKind
	test.That(t, kind.UnmarshalText([]byte("S_CURVE")), test.ShouldBeNil)
	test.That(t, kind, test.ShouldEqual, SCurveProfileKind)
	_, err := ProfileKindFromString("bezier")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = GeneratorFor(ProfileKind(42))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLinearProfile(t *testing.T) {
	p, err := NewLinearProfile(1, 3, 2, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.EndTime(), test.ShouldEqual, 2)

	test.That(t, p.ValueAt(0), test.ShouldAlmostEqual, 1)
	test.That(t, p.ValueAt(0.5), test.ShouldAlmostEqual, 1.5)
	test.That(t, p.ValueAt(2), test.ShouldAlmostEqual, 3)
	test.That(t, p.FirstDerivativeAt(1), test.ShouldAlmostEqual, 1)

	// Clamped outside the profile.
	test.That(t, p.ValueAt(-1), test.ShouldAlmostEqual, 1)
	test.That(t, p.ValueAt(5), test.ShouldAlmostEqual, 3)
	test.That(t, p.FirstDerivativeAt(-1), test.ShouldEqual, 0)
	test.That(t, p.FirstDerivativeAt(5), test.ShouldEqual, 0)
	test.That(t, p.SecondDerivativeAt(5), test.ShouldEqual, 0)

	// The rate changes at the ends are reported as impulses.
	test.That(t, p.SecondDerivativeAt(0.005), test.ShouldAlmostEqual, 1/impulseWindow)
	test.That(t, p.SecondDerivativeAt(1.995), test.ShouldAlmostEqual, -1/impulseWindow)
	test.That(t, p.SecondDerivativeAt(1), test.ShouldEqual, 0)
	test.That(t, p.ThirdDerivativeAt(0.005), test.ShouldAlmostEqual, 1/(impulseWindow*impulseWindow))
	test.That(t, p.ThirdDerivativeAt(1), test.ShouldEqual, 0)

	points := p.InflectionPoints()
	test.That(t, points, test.ShouldHaveLength, 2)
	test.That(t, points[1].Time, test.ShouldEqual, 2)
	test.That(t, points[1].Value, test.ShouldAlmostEqual, 3)
}

func TestLinearProfileRoundTrip(t *testing.T) {
	for _, tc := range []struct{ start, end, endTime float64 }{
		{0, 1, 1},
		{-4, 7, 0.3},
		{2.5, -2.5, 10},
	} {
		p, err := NewLinearProfile(tc.start, tc.end, tc.endTime, spatialmath.NewLinearSpace())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.ValueAt(0), test.ShouldAlmostEqual, tc.start)
		test.That(t, p.ValueAt(tc.endTime), test.ShouldAlmostEqual, tc.end)
	}
}

func TestLinearProfileWrapsAngles(t *testing.T) {
	// The short way from 3 to -3 radians passes through π.
	p, err := NewLinearProfile(3, -3, 1, spatialmath.NewCircularSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.FirstDerivativeAt(0.5), test.ShouldAlmostEqual, 2*math.Pi-6)
	test.That(t, math.Abs(p.ValueAt(0.5)), test.ShouldAlmostEqual, math.Pi, 1e-9)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, -3)
}

func TestTrapezoidalProfile(t *testing.T) {
	p, err := NewTrapezoidalProfile(0, 3, 3, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, p.ValueAt(0), test.ShouldAlmostEqual, 0)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, 0.75)
	test.That(t, p.ValueAt(1.5), test.ShouldAlmostEqual, 1.5)
	test.That(t, p.ValueAt(2), test.ShouldAlmostEqual, 2.25)
	test.That(t, p.ValueAt(3), test.ShouldAlmostEqual, 3)

	test.That(t, p.FirstDerivativeAt(0), test.ShouldAlmostEqual, 0)
	test.That(t, p.FirstDerivativeAt(1.5), test.ShouldAlmostEqual, 1.5)
	test.That(t, p.FirstDerivativeAt(3), test.ShouldAlmostEqual, 0)

	test.That(t, p.SecondDerivativeAt(0.5), test.ShouldAlmostEqual, 1.5)
	test.That(t, p.SecondDerivativeAt(1.5), test.ShouldEqual, 0)
	test.That(t, p.SecondDerivativeAt(2.5), test.ShouldAlmostEqual, -1.5)

	test.That(t, p.ThirdDerivativeAt(1), test.ShouldAlmostEqual, -1.5/impulseWindow)
	test.That(t, p.ThirdDerivativeAt(0.5), test.ShouldEqual, 0)

	test.That(t, p.InflectionPoints(), test.ShouldHaveLength, 4)
}

func TestSCurveProfile(t *testing.T) {
	const endTime = 2.0
	p, err := NewSCurveProfile(1, 5, endTime, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, p.ValueAt(0), test.ShouldAlmostEqual, 1)
	test.That(t, p.ValueAt(endTime/2), test.ShouldAlmostEqual, 3, 1e-9)
	test.That(t, p.ValueAt(endTime), test.ShouldAlmostEqual, 5)
	test.That(t, p.ValueAt(endTime+1), test.ShouldAlmostEqual, 5)

	test.That(t, p.FirstDerivativeAt(0), test.ShouldAlmostEqual, 0)
	test.That(t, p.FirstDerivativeAt(endTime), test.ShouldAlmostEqual, 0, 1e-9)
	// Cruise velocity is 1.6 times the average velocity.
	test.That(t, p.FirstDerivativeAt(endTime/2), test.ShouldAlmostEqual, 1.6*4/endTime, 1e-9)
	test.That(t, p.SecondDerivativeAt(endTime/2), test.ShouldAlmostEqual, 0, 1e-9)

	jerk := 512 * 4 / (10 * endTime * endTime * endTime)
	unit := endTime / 8
	test.That(t, p.ThirdDerivativeAt(0.5*unit), test.ShouldAlmostEqual, jerk)
	test.That(t, p.ThirdDerivativeAt(1.5*unit), test.ShouldEqual, 0)
	test.That(t, p.ThirdDerivativeAt(2.5*unit), test.ShouldAlmostEqual, -jerk)
	test.That(t, p.ThirdDerivativeAt(5.5*unit), test.ShouldAlmostEqual, -jerk)
	test.That(t, p.ThirdDerivativeAt(7.5*unit), test.ShouldAlmostEqual, jerk)

	// Velocity never reverses.
	for s := 0.0; s <= endTime; s += endTime / 97 {
		test.That(t, p.FirstDerivativeAt(s), test.ShouldBeGreaterThanOrEqualTo, -1e-9)
	}

	points := p.InflectionPoints()
	test.That(t, points, test.ShouldHaveLength, 8)
	test.That(t, points[7].Value, test.ShouldAlmostEqual, 5, 1e-9)
}

func TestMultiPointProfileTwoPoints(t *testing.T) {
	p, err := NewMultiPointProfile(0, 4, 2, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, 2)
	test.That(t, p.FirstDerivativeAt(1), test.ShouldAlmostEqual, 2)
	test.That(t, p.SecondDerivativeAt(1), test.ShouldAlmostEqual, 0)
	test.That(t, p.FirstDerivativeAt(3), test.ShouldEqual, 0)
	test.That(t, p.ValueAt(3), test.ShouldAlmostEqual, 4)
}

func TestMultiPointProfileThreePoints(t *testing.T) {
	p, err := NewMultiPointProfile(0, 0, 2, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.AddValue(1, 1), test.ShouldBeNil)

	// The quadratic through (0, 0), (1, 1), (2, 0) is 2t - t^2.
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, 1)
	test.That(t, p.ValueAt(0.5), test.ShouldAlmostEqual, 0.75)
	test.That(t, p.FirstDerivativeAt(0), test.ShouldAlmostEqual, 2)
	test.That(t, p.SecondDerivativeAt(1.5), test.ShouldAlmostEqual, -2)
	test.That(t, p.ThirdDerivativeAt(1.5), test.ShouldAlmostEqual, 0)
}

func TestMultiPointProfileSpline(t *testing.T) {
	p, err := NewMultiPointProfile(0, 0, 4, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	controls := map[float64]float64{1: 2, 2: -1, 3: 0.5}
	for at, v := range controls {
		test.That(t, p.AddValue(at, v), test.ShouldBeNil)
	}
	p.SetEndDerivatives(1, -0.5)
	test.That(t, p.Fit(), test.ShouldBeNil)
	test.That(t, p.Len(), test.ShouldEqual, 5)

	for at, v := range controls {
		test.That(t, p.ValueAt(at), test.ShouldAlmostEqual, v, 1e-9)
	}
	test.That(t, p.ValueAt(0), test.ShouldAlmostEqual, 0)
	test.That(t, p.ValueAt(4), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.FirstDerivativeAt(0), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, p.FirstDerivativeAt(4), test.ShouldAlmostEqual, -0.5, 1e-9)

	// C1 and C2 continuity across an interior knot.
	const eps = 1e-6
	test.That(t, p.FirstDerivativeAt(2-eps), test.ShouldAlmostEqual, p.FirstDerivativeAt(2+eps), 1e-4)
	test.That(t, p.SecondDerivativeAt(2-eps), test.ShouldAlmostEqual, p.SecondDerivativeAt(2+eps), 1e-4)

	points := p.InflectionPoints()
	test.That(t, points, test.ShouldHaveLength, 5)
	test.That(t, points[2].Time, test.ShouldEqual, 2)
}

func TestMultiPointProfileSplineReproducesLine(t *testing.T) {
	p, err := NewMultiPointProfile(0, 8, 4, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	for _, at := range []float64{1, 2.5, 3} {
		test.That(t, p.AddValue(at, 2*at), test.ShouldBeNil)
	}
	p.SetEndDerivatives(2, 2)
	for s := 0.0; s <= 4; s += 0.37 {
		test.That(t, p.ValueAt(s), test.ShouldAlmostEqual, 2*s, 1e-9)
		test.That(t, p.FirstDerivativeAt(s), test.ShouldAlmostEqual, 2, 1e-9)
	}
}

func TestMultiPointProfileReplacesNearbyTimes(t *testing.T) {
	p, err := NewMultiPointProfile(0, 1, 1, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.AddValue(0.5, 3), test.ShouldBeNil)
	test.That(t, p.Len(), test.ShouldEqual, 3)
	test.That(t, p.ValueAt(0.5), test.ShouldAlmostEqual, 3)

	test.That(t, p.AddValue(0.5+1e-9, 7), test.ShouldBeNil)
	test.That(t, p.Len(), test.ShouldEqual, 3)
	test.That(t, p.ValueAt(0.5), test.ShouldAlmostEqual, 7)

	test.That(t, p.AddValue(1, 2), test.ShouldBeNil)
	test.That(t, p.Len(), test.ShouldEqual, 3)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, 2)

	err = p.AddValue(1.5, 0)
	test.That(t, errors.Is(err, ErrInvalidTimeFraction), test.ShouldBeTrue)
	err = p.AddValue(-0.1, 0)
	test.That(t, errors.Is(err, ErrInvalidTimeFraction), test.ShouldBeTrue)
}

func TestMultiPointProfileUnwrapsAngles(t *testing.T) {
	p, err := NewMultiPointProfile(3, -3, 1, spatialmath.NewCircularSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(p.ValueAt(0.5)), test.ShouldAlmostEqual, math.Pi, 1e-9)
	test.That(t, p.FirstDerivativeAt(0.5), test.ShouldAlmostEqual, 2*math.Pi-6)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, -3)
}

func TestMultiPointProfileMonotone(t *testing.T) {
	// A quarter turn followed by a hold, the shape a steering channel has after a sideways command.
	p, err := NewMultiPointProfile(0, math.Pi/2, 2, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	for _, at := range []float64{0.5, 1, 1.5} {
		test.That(t, p.AddValue(at, math.Pi/2), test.ShouldBeNil)
	}
	test.That(t, p.SetInterpolation(MonotoneInterpolation), test.ShouldBeNil)
	test.That(t, p.Fit(), test.ShouldBeNil)

	for i := 0; i <= 1000; i++ {
		v := p.ValueAt(2 * float64(i) / 1000)
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, math.Pi/2+1e-12)
	}
	for _, at := range []float64{0, 0.5, 1, 1.5, 2} {
		test.That(t, p.ValueAt(at), test.ShouldAlmostEqual, math.Min(at/0.5, 1)*math.Pi/2)
	}
	test.That(t, p.FirstDerivativeAt(1.25), test.ShouldAlmostEqual, 0)

	first, second, err := p.DerivativeRanges()
	test.That(t, err, test.ShouldBeNil)
	// Both slopes of the rising piece are zero, so it peaks at 1.5 times its average rate.
	test.That(t, first.Max, test.ShouldAlmostEqual, 1.5*math.Pi)
	test.That(t, first.Min, test.ShouldAlmostEqual, 0)
	test.That(t, second.Max, test.ShouldAlmostEqual, 12*math.Pi)
	test.That(t, second.Min, test.ShouldAlmostEqual, -12*math.Pi)

	t.Run("pinned end derivatives keep the ends monotone", func(t *testing.T) {
		p.SetEndDerivatives(-1, 0)
		test.That(t, p.FirstDerivativeAt(0), test.ShouldEqual, 0)
		p.SetEndDerivatives(100, 0)
		test.That(t, p.FirstDerivativeAt(0), test.ShouldAlmostEqual, 3*math.Pi)
		p.SetEndDerivatives(2, 0)
		test.That(t, p.FirstDerivativeAt(0), test.ShouldAlmostEqual, 2)
	})
}

func TestMultiPointProfileDerivativeRanges(t *testing.T) {
	p, err := NewMultiPointProfile(0, 0, 2, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.AddValue(1, 1), test.ShouldBeNil)

	// 2t - t^2
	first, second, err := p.DerivativeRanges()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Min, test.ShouldAlmostEqual, -2)
	test.That(t, first.Max, test.ShouldAlmostEqual, 2)
	test.That(t, second.Min, test.ShouldAlmostEqual, -2)
	test.That(t, second.Max, test.ShouldAlmostEqual, -2)
}

func TestMultiPointProfileFitFailure(t *testing.T) {
	_, err := NewMultiPointProfile(math.NaN(), 1, 1, nil)
	test.That(t, err, test.ShouldNotBeNil)

	p, err := NewMultiPointProfile(0, 4, 2, spatialmath.NewLinearSpace())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.AddValue(0.5, math.Inf(1)), test.ShouldNotBeNil)
	test.That(t, p.AddValue(1, 3), test.ShouldBeNil)
	test.That(t, p.SetInterpolation(Interpolation(42)), test.ShouldNotBeNil)

	p.interpolation = Interpolation(42)
	test.That(t, p.Fit(), test.ShouldNotBeNil)
	// The points are still joined, by straight lines.
	test.That(t, p.ValueAt(0.5), test.ShouldAlmostEqual, 1.5)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, 3)
	test.That(t, p.FirstDerivativeAt(1.5), test.ShouldAlmostEqual, 1)
	_, _, err = p.DerivativeRanges()
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, p.SetInterpolation(SplineInterpolation), test.ShouldBeNil)
	test.That(t, p.Fit(), test.ShouldBeNil)
	test.That(t, p.ValueAt(1), test.ShouldAlmostEqual, 3)
}

func TestCompoundProfile(t *testing.T) {
	first, err := NewLinearProfile(0, 1, 1, nil)
	test.That(t, err, test.ShouldBeNil)
	second, err := NewLinearProfile(2, 3, 1, nil)
	test.That(t, err, test.ShouldBeNil)

	c := NewCompoundProfile(nil)
	test.That(t, c.EndTime(), test.ShouldEqual, 0)
	test.That(t, c.ValueAt(1), test.ShouldEqual, 0)

	// Sections may be added out of order.
	test.That(t, c.AddSection(3, 4, second), test.ShouldBeNil)
	test.That(t, c.AddSection(0, 2, first), test.ShouldBeNil)
	test.That(t, c.EndTime(), test.ShouldEqual, 4)

	test.That(t, c.ValueAt(-1), test.ShouldAlmostEqual, 0)
	test.That(t, c.ValueAt(1), test.ShouldAlmostEqual, 0.5)
	test.That(t, c.FirstDerivativeAt(1), test.ShouldAlmostEqual, 0.5)
	// The gap from 2 to 3 is bridged linearly from 1 to 2.
	test.That(t, c.ValueAt(2.5), test.ShouldAlmostEqual, 1.5)
	test.That(t, c.FirstDerivativeAt(2.5), test.ShouldAlmostEqual, 1)
	test.That(t, c.SecondDerivativeAt(2.5), test.ShouldEqual, 0)
	test.That(t, c.ValueAt(3.5), test.ShouldAlmostEqual, 2.5)
	test.That(t, c.FirstDerivativeAt(3.5), test.ShouldAlmostEqual, 1)
	test.That(t, c.ValueAt(10), test.ShouldAlmostEqual, 3)
	test.That(t, c.FirstDerivativeAt(10), test.ShouldEqual, 0)

	points := c.InflectionPoints()
	test.That(t, points, test.ShouldHaveLength, 4)
	test.That(t, points[1].Time, test.ShouldAlmostEqual, 2)
	test.That(t, points[1].FirstDerivative, test.ShouldAlmostEqual, 0.5)
}

func TestCompoundProfileRejectsBadSections(t *testing.T) {
	section, err := NewLinearProfile(0, 1, 1, nil)
	test.That(t, err, test.ShouldBeNil)

	c := NewCompoundProfile(spatialmath.NewLinearSpace())
	test.That(t, c.AddSection(1, 2, section), test.ShouldBeNil)

	for _, bounds := range [][2]float64{
		{3, 3},
		{4, 3},
		{-1, 0.5},
		{1.5, 2.5},
		{0.5, 1.5},
		{0, 3},
	} {
		err := c.AddSection(bounds[0], bounds[1], section)
		test.That(t, errors.Is(err, ErrInvalidTimeFraction), test.ShouldBeTrue)
	}
	test.That(t, c.AddSection(2, 3, section), test.ShouldBeNil)
}

func TestPeakRateFactor(t *testing.T) {
	for _, kind := range []ProfileKind{LinearProfileKind, TrapezoidalProfileKind, SCurveProfileKind} {
		gen, err := GeneratorFor(kind)
		test.That(t, err, test.ShouldBeNil)
		p, err := gen(0, 2, 4, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.FirstDerivativeAt(2), test.ShouldAlmostEqual, kind.PeakRateFactor()*0.5, 1e-9)
	}
}
