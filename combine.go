package treecorr

import (
	"math/cmplx"

	"gonum.org/v1/gonum/spatial/r3"
)

// ShearRule combines three spin-2 values at the vertices of a triangle into
// the four third-order correlators accumulated by GGG correlations. It must
// be real-linear in each value so that cell contributions can be split
// between resampling regions.
type ShearRule func(p1, p2, p3 r3.Vec, g1, g2, g3 complex128, proj Projector) [4]complex128

// NaturalComponents is the default ShearRule: each value is rotated into the
// frame pointing from the triangle centroid to its vertex, then combined as
//
//	Γ0 = g1 g2 g3,  Γ1 = g1* g2 g3,  Γ2 = g1 g2* g3,  Γ3 = g1 g2 g3*.
func NaturalComponents(p1, p2, p3 r3.Vec, g1, g2, g3 complex128, proj Projector) [4]complex128 {
	cen := r3.Scale(1.0/3, r3.Add(r3.Add(p1, p2), p3))
	g1 *= rotation(proj.Phase(cen, p1))
	g2 *= rotation(proj.Phase(cen, p2))
	g3 *= rotation(proj.Phase(cen, p3))
	return [4]complex128{
		g1 * g2 * g3,
		cmplx.Conj(g1) * g2 * g3,
		g1 * cmplx.Conj(g2) * g3,
		g1 * g2 * cmplx.Conj(g3),
	}
}

// rotation returns e^{-2iφ} for the unit phase e^{iφ}, the factor that
// projects a spin-2 value onto the direction φ.
func rotation(phase complex128) complex128 {
	c := cmplx.Conj(phase)
	return c * c
}

// pairStats writes the statistic entries of a pair contribution. rot1 and rot2
// project the values at either end onto the separation direction as seen
// there (unused without spin-2).
func pairStats(shape Shape, w1, w2 float64, v1, v2, rot1, rot2 complex128, out *[maxColumns]float64) {
	ww := w1 * w2
	switch shape {
	case ShapeNK:
		out[0] = ww * real(v2)
	case ShapeKK:
		out[0] = ww * real(v1) * real(v2)
	case ShapeNG, ShapeKG:
		// Tangential and cross components of the projected value.
		g := v2 * rot2
		s := ww
		if shape == ShapeKG {
			s *= real(v1)
		}
		out[0] = -s * real(g)
		out[1] = -s * imag(g)
	case ShapeGG:
		g1 := v1 * rot1
		g2 := v2 * rot2
		xip := g1 * cmplx.Conj(g2)
		xim := g1 * g2
		out[0] = ww * real(xip)
		out[1] = ww * imag(xip)
		out[2] = ww * real(xim)
		out[3] = ww * imag(xim)
	}
}

// tripleFrame carries the geometry shared by every sub-contribution of one
// approximated triangle, so that replica splits reuse the parent's frame.
type tripleFrame struct {
	pos  [3]r3.Vec
	rot  [3]complex128 // centroid projection factor per vertex
	proj Projector
	rule ShearRule
}

// tripleStats writes the statistic entries of a triangle contribution.
func tripleStats(shape Shape, w [3]float64, v [3]complex128, f *tripleFrame, out *[maxColumns]float64) {
	www := w[0] * w[1] * w[2]
	switch shape {
	case ShapeNNK:
		out[0] = www * real(v[2])
	case ShapeNKK:
		out[0] = www * real(v[1]) * real(v[2])
	case ShapeKKK:
		out[0] = www * real(v[0]) * real(v[1]) * real(v[2])
	case ShapeNNG, ShapeNKG, ShapeKKG:
		s := www
		if shape == ShapeNKG {
			s *= real(v[1])
		} else if shape == ShapeKKG {
			s *= real(v[0]) * real(v[1])
		}
		g := v[2] * f.rot[2]
		out[0] = s * real(g)
		out[1] = s * imag(g)
	case ShapeNGG, ShapeKGG:
		s := www
		if shape == ShapeKGG {
			s *= real(v[0])
		}
		g2 := v[1] * f.rot[1]
		g3 := v[2] * f.rot[2]
		zp := g2 * cmplx.Conj(g3)
		zm := g2 * g3
		out[0] = s * real(zp)
		out[1] = s * imag(zp)
		out[2] = s * real(zm)
		out[3] = s * imag(zm)
	case ShapeGGG:
		gam := f.rule(f.pos[0], f.pos[1], f.pos[2], v[0], v[1], v[2], f.proj)
		for i, z := range gam {
			out[2*i] = www * real(z)
			out[2*i+1] = www * imag(z)
		}
	}
}

// hasSpin2 reports whether any field of the layout is spin-2.
func hasSpin2(shape Shape) bool {
	switch shape {
	case ShapeNG, ShapeKG, ShapeGG, ShapeNNG, ShapeNKG, ShapeKKG, ShapeNGG, ShapeKGG, ShapeGGG:
		return true
	}
	return false
}
