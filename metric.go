package treecorr

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/spatial/r3"
)

// Metric defines the separation between two positions. DistSq is the squared
// separation used for binning; Displacement is the full vector p2-p1 in the
// embedding space (wrapped for periodic boxes) and is what trees use to size
// their cells, so it must never be shorter than the binned separation.
type Metric interface {
	Displacement(p1, p2 r3.Vec) r3.Vec
	DistSq(p1, p2 r3.Vec) float64
	// Orientation is positive when p1, p2, p3 run counter-clockwise, negative
	// when clockwise and zero for collinear points.
	Orientation(p1, p2, p3 r3.Vec) float64
}

// LineOfSight is implemented by metrics with a defined line-of-sight axis.
// Rpar returns the signed separation of p2 from p1 along that axis.
type LineOfSight interface {
	Rpar(p1, p2 r3.Vec) float64
}

// Projector is implemented by metrics that define a local direction frame,
// which spin-2 correlations need to rotate values onto separation vectors.
// Phase returns the unit complex number e^{iφ} of the direction from "from"
// towards "to" as seen at "from".
type Projector interface {
	Phase(from, to r3.Vec) complex128
}

// Flat measures separations in the x-y plane; Z is ignored.
type Flat struct{}

func (Flat) Displacement(p1, p2 r3.Vec) r3.Vec {
	return r3.Vec{X: p2.X - p1.X, Y: p2.Y - p1.Y}
}

func (Flat) DistSq(p1, p2 r3.Vec) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	return dx*dx + dy*dy
}

func (Flat) Orientation(p1, p2, p3 r3.Vec) float64 {
	return (p2.X-p1.X)*(p3.Y-p1.Y) - (p2.Y-p1.Y)*(p3.X-p1.X)
}

func (Flat) Phase(from, to r3.Vec) complex128 {
	return unitPhase(complex(to.X-from.X, to.Y-from.Y))
}

// Euclidean is the straight-line 3-D distance. Orientation is judged looking
// along the line of sight from the origin through the triangle.
type Euclidean struct{}

func (Euclidean) Displacement(p1, p2 r3.Vec) r3.Vec { return r3.Sub(p2, p1) }

func (Euclidean) DistSq(p1, p2 r3.Vec) float64 { return r3.Norm2(r3.Sub(p2, p1)) }

func (Euclidean) Orientation(p1, p2, p3 r3.Vec) float64 {
	return losOrientation(p1, p2, p3)
}

// Sphere treats positions as unit vectors on the celestial sphere (see
// ToSphere). Separations are chord lengths. The local frame at a point has x
// pointing east and y pointing north.
type Sphere struct{}

func (Sphere) Displacement(p1, p2 r3.Vec) r3.Vec { return r3.Sub(p2, p1) }

func (Sphere) DistSq(p1, p2 r3.Vec) float64 { return r3.Norm2(r3.Sub(p2, p1)) }

func (Sphere) Orientation(p1, p2, p3 r3.Vec) float64 {
	return losOrientation(p1, p2, p3)
}

func (Sphere) Phase(from, to r3.Vec) complex128 {
	p := from
	if n := r3.Norm(p); n > 0 {
		p = r3.Scale(1/n, p)
	}
	rho := math.Hypot(p.X, p.Y)
	var east, north r3.Vec
	if rho == 0 {
		// At a pole every direction is south (or north); pick a fixed frame.
		east = r3.Vec{Y: 1}
		north = r3.Vec{X: -math.Copysign(1, p.Z)}
	} else {
		east = r3.Vec{X: -p.Y / rho, Y: p.X / rho}
		north = r3.Vec{X: -p.X * p.Z / rho, Y: -p.Y * p.Z / rho, Z: rho}
	}
	d := r3.Sub(to, from)
	return unitPhase(complex(r3.Dot(d, east), r3.Dot(d, north)))
}

// Rperp measures the separation perpendicular to the line of sight. For two
// points at distances r1, r2 from the origin with Euclidean separation d,
// Rpar = r2 - r1 and Rperp² = d² - Rpar².
type Rperp struct{}

func (Rperp) Displacement(p1, p2 r3.Vec) r3.Vec { return r3.Sub(p2, p1) }

func (m Rperp) DistSq(p1, p2 r3.Vec) float64 {
	rpar := m.Rpar(p1, p2)
	dsq := r3.Norm2(r3.Sub(p2, p1)) - rpar*rpar
	if dsq < 0 {
		return 0
	}
	return dsq
}

func (Rperp) Rpar(p1, p2 r3.Vec) float64 { return r3.Norm(p2) - r3.Norm(p1) }

func (Rperp) Orientation(p1, p2, p3 r3.Vec) float64 {
	return losOrientation(p1, p2, p3)
}

// Periodic is the 3-D Euclidean distance in a box with periodic boundaries.
// A zero Period component leaves that axis unwrapped. Orientation is judged
// looking down the z axis.
type Periodic struct {
	Period r3.Vec
}

func (m Periodic) Displacement(p1, p2 r3.Vec) r3.Vec {
	d := r3.Sub(p2, p1)
	d.X = wrap(d.X, m.Period.X)
	d.Y = wrap(d.Y, m.Period.Y)
	d.Z = wrap(d.Z, m.Period.Z)
	return d
}

func (m Periodic) DistSq(p1, p2 r3.Vec) float64 { return r3.Norm2(m.Displacement(p1, p2)) }

func (m Periodic) Orientation(p1, p2, p3 r3.Vec) float64 {
	d12 := m.Displacement(p1, p2)
	d13 := m.Displacement(p1, p3)
	return d12.X*d13.Y - d12.Y*d13.X
}

func wrap(d, period float64) float64 {
	if period <= 0 {
		return d
	}
	return d - period*math.Round(d/period)
}

// losOrientation measures the winding of the triangle about the line of sight
// through its centroid.
func losOrientation(p1, p2, p3 r3.Vec) float64 {
	normal := r3.Add(r3.Add(p1, p2), p3)
	return r3.Dot(r3.Cross(r3.Sub(p2, p1), r3.Sub(p3, p1)), normal)
}

func unitPhase(z complex128) complex128 {
	a := cmplx.Abs(z)
	if a == 0 {
		return 1
	}
	return z / complex(a, 0)
}

// ToSphere converts right ascension and declination (radians) to a unit
// vector suitable for the Sphere metric.
func ToSphere(ra, dec float64) r3.Vec {
	cd := math.Cos(dec)
	return r3.Vec{X: cd * math.Cos(ra), Y: cd * math.Sin(ra), Z: math.Sin(dec)}
}

// MetricByName returns the metric for a configuration name. "Periodic" is
// not accepted here since it needs a box; Config resolves it from Period.
func MetricByName(name string) (Metric, error) {
	switch name {
	case "", "Flat":
		return Flat{}, nil
	case "Euclidean":
		return Euclidean{}, nil
	case "Sphere":
		return Sphere{}, nil
	case "Rperp":
		return Rperp{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", ErrUnsupportedMetric, name)
	}
}
