package control

import (
	"math"
	"sort"

	"go.viam.com/swerve/spatialmath"
)

type compoundSection struct {
	start   float64
	end     float64
	profile TransientVariableProfile
}

// scale is the rate at which the section's own time advances per unit of compound time.
func (s compoundSection) scale() float64 {
	return s.profile.EndTime() / (s.end - s.start)
}

func (s compoundSection) local(t float64) float64 {
	return (t - s.start) * s.scale()
}

// CompoundProfile chains other profiles along one time axis. Each section stretches its profile
// over [start, end]. Gaps between sections are bridged linearly and times before the first or
// after the last section hold the boundary value.
type CompoundProfile struct {
	space    spatialmath.ValueSpace
	sections []compoundSection
}

// NewCompoundProfile returns an empty compound profile in the given space.
func NewCompoundProfile(space spatialmath.ValueSpace) *CompoundProfile {
	if space == nil {
		space = spatialmath.NewLinearSpace()
	}
	return &CompoundProfile{space: space}
}

// AddSection places profile over [start, end]. The range must be non-empty, non-negative and must
// not overlap an existing section.
func (c *CompoundProfile) AddSection(start, end float64, profile TransientVariableProfile) error {
	if start < 0 || end <= start {
		return NewInvalidTimeFractionError("section [%v, %v] is empty or inverted", start, end)
	}
	i := sort.Search(len(c.sections), func(i int) bool { return c.sections[i].start >= start })
	if i > 0 && c.sections[i-1].end > start {
		return NewInvalidTimeFractionError(
			"section [%v, %v] overlaps [%v, %v]", start, end, c.sections[i-1].start, c.sections[i-1].end)
	}
	if i < len(c.sections) && c.sections[i].start < end {
		return NewInvalidTimeFractionError(
			"section [%v, %v] overlaps [%v, %v]", start, end, c.sections[i].start, c.sections[i].end)
	}

	c.sections = append(c.sections, compoundSection{})
	copy(c.sections[i+1:], c.sections[i:])
	c.sections[i] = compoundSection{start: start, end: end, profile: profile}
	return nil
}

// EndTime returns the end of the last section, or zero when there are none.
func (c *CompoundProfile) EndTime() float64 {
	if len(c.sections) == 0 {
		return 0
	}
	return c.sections[len(c.sections)-1].end
}

// locate returns the section containing t, or the index of the section following the gap that
// contains t. inSection is false for gaps.
func (c *CompoundProfile) locate(t float64) (int, bool) {
	i := sort.Search(len(c.sections), func(i int) bool { return c.sections[i].end >= t })
	if i == len(c.sections) {
		return i, false
	}
	return i, t >= c.sections[i].start
}

type gap struct {
	start, end       float64
	startValue, rate float64
}

func (c *CompoundProfile) gapBefore(i int) gap {
	prev, next := c.sections[i-1], c.sections[i]
	from := prev.profile.ValueAt(prev.profile.EndTime())
	to := next.profile.ValueAt(0)
	return gap{
		start:      prev.end,
		end:        next.start,
		startValue: from,
		rate:       c.space.SmallestDistanceBetweenValues(from, to) / (next.start - prev.end),
	}
}

// ValueAt returns the value at t.
func (c *CompoundProfile) ValueAt(t float64) float64 {
	if len(c.sections) == 0 {
		return 0
	}
	if t <= c.sections[0].start {
		return c.sections[0].profile.ValueAt(0)
	}
	i, inSection := c.locate(t)
	if i == len(c.sections) {
		last := c.sections[i-1]
		return last.profile.ValueAt(last.profile.EndTime())
	}
	if inSection {
		return c.sections[i].profile.ValueAt(c.sections[i].local(t))
	}
	g := c.gapBefore(i)
	return c.space.Normalize(g.startValue + g.rate*(t-g.start))
}

// derivativeAt applies the chain rule to the section containing t.
func (c *CompoundProfile) derivativeAt(
	t float64,
	order int,
	of func(TransientVariableProfile, float64) float64,
) float64 {
	if len(c.sections) == 0 || t < c.sections[0].start || t > c.EndTime() {
		return 0
	}
	i, inSection := c.locate(t)
	if !inSection {
		if order == 1 {
			return c.gapBefore(i).rate
		}
		return 0
	}
	s := c.sections[i]
	return of(s.profile, s.local(t)) * math.Pow(s.scale(), float64(order))
}

// FirstDerivativeAt returns the rate of change at t.
func (c *CompoundProfile) FirstDerivativeAt(t float64) float64 {
	return c.derivativeAt(t, 1, TransientVariableProfile.FirstDerivativeAt)
}

// SecondDerivativeAt returns the second derivative at t.
func (c *CompoundProfile) SecondDerivativeAt(t float64) float64 {
	return c.derivativeAt(t, 2, TransientVariableProfile.SecondDerivativeAt)
}

// ThirdDerivativeAt returns the third derivative at t.
func (c *CompoundProfile) ThirdDerivativeAt(t float64) float64 {
	return c.derivativeAt(t, 3, TransientVariableProfile.ThirdDerivativeAt)
}

// InflectionPoints returns the inflection points of every section mapped onto the compound time
// axis.
func (c *CompoundProfile) InflectionPoints() []ProfilePoint {
	var points []ProfilePoint
	for _, s := range c.sections {
		scale := s.scale()
		for _, p := range s.profile.InflectionPoints() {
			points = append(points, ProfilePoint{
				Time:             s.start + p.Time/scale,
				Value:            p.Value,
				FirstDerivative:  p.FirstDerivative * scale,
				SecondDerivative: p.SecondDerivative * scale * scale,
				ThirdDerivative:  p.ThirdDerivative * scale * scale * scale,
			})
		}
	}
	return points
}

func (*CompoundProfile) isProfile() {}
