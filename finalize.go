package treecorr

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FieldVariance returns the weighted population variance of the values of a
// field of the given kind. For spin-2 fields it is the mean of the variances
// of the two components; count fields have no variance.
func FieldVariance(points []Point, kind Kind) float64 {
	if kind == KindCount || len(points) == 0 {
		return 0
	}
	re := make([]float64, len(points))
	w := make([]float64, len(points))
	for i, p := range points {
		re[i] = real(p.Value)
		w[i] = p.Weight
	}
	_, v := stat.PopMeanVariance(re, w)
	if kind != KindSpin2 {
		return v
	}
	im := make([]float64, len(points))
	for i, p := range points {
		im[i] = imag(p.Value)
	}
	_, vi := stat.PopMeanVariance(im, w)
	return 0.5 * (v + vi)
}

// Result2 is a normalized two-point correlation: every statistic and mean
// divided by the total weight of its bin.
type Result2 struct {
	Shape Shape

	// LogR is the nominal log-separation at each bin center.
	LogR     []float64
	MeanR    []float64
	MeanLogR []float64

	// Stat holds the normalized statistic arrays in Shape.StatNames order.
	Stat   [][]float64
	VarXi  []float64
	Weight []float64
	Count  []float64
}

// Finalize normalizes the accumulated sums. var1 and var2 are the field
// variances used for the shot-noise estimate VarXi = var1*var2/weight. Bins
// without weight report the nominal separation and zero statistics. The
// accumulator is left untouched, so more data may still be processed.
func (c *Corr2) Finalize(var1, var2 float64) *Result2 {
	a := c.acc
	nb := a.NBins()
	res := &Result2{
		Shape:    c.shape,
		LogR:     c.binning.LogR(),
		MeanR:    make([]float64, nb),
		MeanLogR: make([]float64, nb),
		Stat:     make([][]float64, c.shape.NumStats()),
		VarXi:    make([]float64, nb),
		Weight:   append([]float64(nil), a.Weight()...),
		Count:    append([]float64(nil), a.Count()...),
	}
	for i := range res.Stat {
		res.Stat[i] = make([]float64, nb)
	}

	meanr, meanlogr := a.MeanR(), a.MeanLogR()
	for k := 0; k < nb; k++ {
		w := res.Weight[k]
		if w == 0 {
			res.MeanLogR[k] = res.LogR[k]
			res.MeanR[k] = math.Exp(res.LogR[k])
			continue
		}
		for i := range res.Stat {
			res.Stat[i][k] = a.Stat(i)[k] / w
		}
		res.MeanR[k] = meanr[k] / w
		res.MeanLogR[k] = meanlogr[k] / w
		res.VarXi[k] = var1 * var2 / w
	}
	return res
}

// Result3 is a normalized three-point correlation over the flattened
// (r, u, v) bins of TriangleBinning.Index.
type Result3 struct {
	Shape Shape

	// LogR, U and V are the nominal bin centers.
	LogR     []float64
	U        []float64
	V        []float64
	MeanLogR []float64
	MeanU    []float64
	MeanV    []float64
	Stat     [][]float64
	Weight   []float64
	Count    []float64
}

// Finalize normalizes the accumulated sums. Bins without weight report their
// nominal centers and zero statistics.
func (c *Corr3) Finalize() *Result3 {
	a := c.acc
	tb := c.binning
	nb := a.NBins()
	res := &Result3{
		Shape:    c.shape,
		LogR:     make([]float64, nb),
		U:        make([]float64, nb),
		V:        make([]float64, nb),
		MeanLogR: make([]float64, nb),
		MeanU:    make([]float64, nb),
		MeanV:    make([]float64, nb),
		Stat:     make([][]float64, c.shape.NumStats()),
		Weight:   append([]float64(nil), a.Weight()...),
		Count:    append([]float64(nil), a.Count()...),
	}
	for i := range res.Stat {
		res.Stat[i] = make([]float64, nb)
	}

	logr, uc, vc := tb.LogR(), tb.UCenters(), tb.VCenters()
	for k := range logr {
		for ku := range uc {
			for kv := range vc {
				j := tb.Index(k, ku, kv)
				res.LogR[j], res.U[j], res.V[j] = logr[k], uc[ku], vc[kv]
			}
		}
	}

	meanlogr, meanu, meanv := a.MeanLogR(), a.MeanU(), a.MeanV()
	for j := 0; j < nb; j++ {
		w := res.Weight[j]
		if w == 0 {
			res.MeanLogR[j], res.MeanU[j], res.MeanV[j] = res.LogR[j], res.U[j], res.V[j]
			continue
		}
		for i := range res.Stat {
			res.Stat[i][j] = a.Stat(i)[j] / w
		}
		res.MeanLogR[j] = meanlogr[j] / w
		res.MeanU[j] = meanu[j] / w
		res.MeanV[j] = meanv[j] / w
	}
	return res
}
