package treecorr

import (
	"fmt"
	"math"
)

// Binning maps pair separations onto logarithmically spaced bins and holds
// the opening-angle tolerance b. It is immutable once built.
type Binning struct {
	minSep  float64
	maxSep  float64
	nbins   int
	binSize float64
	b       float64
	minRpar float64
	maxRpar float64

	logMinSep float64
	minSepSq  float64
	maxSepSq  float64
	bSq       float64
}

// NewBinning validates the parameters and builds nbins log-spaced bins on
// [minSep, maxSep). minRpar and maxRpar bound the line-of-sight separation
// for metrics that have one; pass ±Inf to disable the window.
func NewBinning(minSep, maxSep float64, nbins int, b, minRpar, maxRpar float64) (Binning, error) {
	if !(minSep > 0) {
		return Binning{}, fmt.Errorf("%w: MinSep must be > 0, got %g", ErrInvalidBinning, minSep)
	}
	if !(maxSep > minSep) {
		return Binning{}, fmt.Errorf("%w: MaxSep (%g) must be > MinSep (%g)", ErrInvalidBinning, maxSep, minSep)
	}
	if nbins <= 0 {
		return Binning{}, fmt.Errorf("%w: NBins must be > 0, got %d", ErrInvalidBinning, nbins)
	}
	if !(b >= 0) {
		return Binning{}, fmt.Errorf("%w: B must be >= 0, got %g", ErrInvalidBinning, b)
	}
	if minRpar > maxRpar || math.IsNaN(minRpar) || math.IsNaN(maxRpar) {
		return Binning{}, fmt.Errorf("%w: MinRpar (%g) must be <= MaxRpar (%g)", ErrInvalidBinning, minRpar, maxRpar)
	}
	return Binning{
		minSep:    minSep,
		maxSep:    maxSep,
		nbins:     nbins,
		binSize:   (math.Log(maxSep) - math.Log(minSep)) / float64(nbins),
		b:         b,
		minRpar:   minRpar,
		maxRpar:   maxRpar,
		logMinSep: math.Log(minSep),
		minSepSq:  minSep * minSep,
		maxSepSq:  maxSep * maxSep,
		bSq:       b * b,
	}, nil
}

func (bn Binning) MinSep() float64  { return bn.minSep }
func (bn Binning) MaxSep() float64  { return bn.maxSep }
func (bn Binning) NBins() int       { return bn.nbins }
func (bn Binning) BinSize() float64 { return bn.binSize }
func (bn Binning) B() float64       { return bn.b }

// BinIndex returns the bin for a squared separation. ok is false when the
// separation is below MinSep, at or above MaxSep, zero or NaN.
func (bn Binning) BinIndex(dsq float64) (k int, ok bool) {
	if !(dsq >= bn.minSepSq) || dsq >= bn.maxSepSq {
		return 0, false
	}
	k = int(math.Floor((0.5*math.Log(dsq) - bn.logMinSep) / bn.binSize))
	if k < 0 || k >= bn.nbins {
		return 0, false
	}
	return k, true
}

// RparAllows reports whether a line-of-sight separation is inside the
// configured [MinRpar, MaxRpar] window.
func (bn Binning) RparAllows(rpar float64) bool {
	return rpar >= bn.minRpar && rpar <= bn.maxRpar
}

func (bn Binning) hasRparWindow() bool {
	return !math.IsInf(bn.minRpar, -1) || !math.IsInf(bn.maxRpar, 1)
}

// CanApproximate reports whether a cell of the given squared size may be
// treated as a point at the given squared separation: size <= b * sep.
func (bn Binning) CanApproximate(sizeSq, dsq float64) bool {
	return sizeSq <= bn.bSq*dsq
}

// LogR returns the nominal log-separation at the center of every bin.
func (bn Binning) LogR() []float64 {
	out := make([]float64, bn.nbins)
	for k := range out {
		out[k] = bn.logMinSep + (float64(k)+0.5)*bn.binSize
	}
	return out
}

// TriangleBinning extends Binning with linear bins in the triangle shape
// parameters u = d3/d2 and v = ±(d1-d2)/d3, where d1 >= d2 >= d3 are the side
// lengths. The radial bins apply to d1.
type TriangleBinning struct {
	Binning

	minU     float64
	maxU     float64
	nuBins   int
	uBinSize float64
	bu       float64

	minV     float64
	maxV     float64
	nvBins   int
	vBinSize float64
	bv       float64
}

// NewTriangleBinning validates the shape parameters on top of radial.
// u bins cover [minU, maxU] within [0, 1] and v bins cover [minV, maxV]
// within [-1, 1]; both upper edges are closed.
func NewTriangleBinning(radial Binning, minU, maxU float64, nuBins int, bu float64,
	minV, maxV float64, nvBins int, bv float64) (TriangleBinning, error) {
	if radial.nbins == 0 {
		return TriangleBinning{}, fmt.Errorf("%w: radial binning is not initialized", ErrInvalidBinning)
	}
	if !(minU >= 0) || !(maxU <= 1) || !(minU < maxU) {
		return TriangleBinning{}, fmt.Errorf("%w: need 0 <= MinU < MaxU <= 1, got [%g, %g]", ErrInvalidBinning, minU, maxU)
	}
	if nuBins <= 0 {
		return TriangleBinning{}, fmt.Errorf("%w: NUBins must be > 0, got %d", ErrInvalidBinning, nuBins)
	}
	if !(bu >= 0) {
		return TriangleBinning{}, fmt.Errorf("%w: BU must be >= 0, got %g", ErrInvalidBinning, bu)
	}
	if !(minV >= -1) || !(maxV <= 1) || !(minV < maxV) {
		return TriangleBinning{}, fmt.Errorf("%w: need -1 <= MinV < MaxV <= 1, got [%g, %g]", ErrInvalidBinning, minV, maxV)
	}
	if nvBins <= 0 {
		return TriangleBinning{}, fmt.Errorf("%w: NVBins must be > 0, got %d", ErrInvalidBinning, nvBins)
	}
	if !(bv >= 0) {
		return TriangleBinning{}, fmt.Errorf("%w: BV must be >= 0, got %g", ErrInvalidBinning, bv)
	}
	return TriangleBinning{
		Binning:  radial,
		minU:     minU,
		maxU:     maxU,
		nuBins:   nuBins,
		uBinSize: (maxU - minU) / float64(nuBins),
		bu:       bu,
		minV:     minV,
		maxV:     maxV,
		nvBins:   nvBins,
		vBinSize: (maxV - minV) / float64(nvBins),
		bv:       bv,
	}, nil
}

func (tb TriangleBinning) NUBins() int { return tb.nuBins }
func (tb TriangleBinning) NVBins() int { return tb.nvBins }

// Size returns the total number of (r, u, v) bins.
func (tb TriangleBinning) Size() int { return tb.nbins * tb.nuBins * tb.nvBins }

// Index flattens a (r, u, v) bin triple.
func (tb TriangleBinning) Index(k, ku, kv int) int {
	return (k*tb.nuBins+ku)*tb.nvBins + kv
}

// AngleBins computes u and v for sides d1 >= d2 >= d3 and bins them. v is
// positive when orientation is counter-clockwise (or zero) and negative
// otherwise. ok is false for degenerate sides or values outside the bins.
func (tb TriangleBinning) AngleBins(d1, d2, d3, orientation float64) (ku, kv int, u, v float64, ok bool) {
	if !(d2 > 0) || !(d3 > 0) {
		return 0, 0, 0, 0, false
	}
	u = d3 / d2
	if !(u >= tb.minU) || u > tb.maxU {
		return 0, 0, 0, 0, false
	}
	v = (d1 - d2) / d3
	if orientation < 0 {
		v = -v
	}
	if !(v >= tb.minV) || v > tb.maxV {
		return 0, 0, 0, 0, false
	}
	ku = linearBin(u, tb.minU, tb.uBinSize, tb.nuBins)
	kv = linearBin(v, tb.minV, tb.vBinSize, tb.nvBins)
	return ku, kv, u, v, true
}

// UCenters returns the nominal u at the center of every u bin.
func (tb TriangleBinning) UCenters() []float64 {
	return linearCenters(tb.minU, tb.uBinSize, tb.nuBins)
}

// VCenters returns the nominal v at the center of every v bin.
func (tb TriangleBinning) VCenters() []float64 {
	return linearCenters(tb.minV, tb.vBinSize, tb.nvBins)
}

// linearBin returns the bin of x, folding the closed upper edge into the
// last bin.
func linearBin(x, lo, width float64, n int) int {
	k := int(math.Floor((x - lo) / width))
	if k >= n {
		k = n - 1
	}
	if k < 0 {
		k = 0
	}
	return k
}

func linearCenters(lo, width float64, n int) []float64 {
	out := make([]float64, n)
	for k := range out {
		out[k] = lo + (float64(k)+0.5)*width
	}
	return out
}
