// Package treecorr computes binned two-point and three-point correlation
// functions of point catalogs with dual-tree traversal.
//
// Points carry a position, a weight, an optional region label for jackknife
// resampling and a value whose meaning depends on the field Kind: nothing
// for counts, a real number for scalar fields, a complex number for spin-2
// fields such as shear. Catalogs are indexed by a Tree, and engines walk
// pairs or triples of cells, treating a cell as a single point once it is
// small enough relative to its separation (the opening-angle tolerance B).
//
// Basic usage:
//
//	cfg := treecorr.DefaultConfig()
//	cfg.MinSep, cfg.MaxSep, cfg.NBins = 1, 100, 20
//	tree, err := treecorr.BuildTreeFor(points, cfg)
//	kk, err := treecorr.NewCorr2(cfg, treecorr.KindScalar, treecorr.KindScalar)
//	err = kk.ProcessAuto(tree)
//	v := treecorr.FieldVariance(points, treecorr.KindScalar)
//	res := kk.Finalize(v, v)
//	// res.Stat[0][k] is xi in bin k, centered at exp(res.MeanLogR[k])
//
// Triangles are binned by their longest side d1 and by the shape parameters
// u = d3/d2 and v = ±(d1-d2)/d3:
//
//	ggg, err := treecorr.NewCorr3(cfg, treecorr.KindSpin2, treecorr.KindSpin2, treecorr.KindSpin2)
//	err = ggg.ProcessAuto(tree)
//
// # Accumulators
//
// Engines add raw weighted sums into an Accumulator, which can be merged
// with others of the same layout and, when Config.NRegions > 0, keeps one
// replica per region for leave-one-out estimates (Accumulator.LeaveOut).
// NewCorr2Into and NewCorr3Into accumulate into caller storage wrapped with
// NewBorrowedAccumulator.
//
// # Parallelism
//
// Each traversal cuts the trees Config.MaxTop levels below the root and
// distributes the resulting cell pairs or triples over Config.Workers
// goroutines, each with a private accumulator. Partial results are summed
// at the end, so results may differ from a sequential run in the last bits.
package treecorr
