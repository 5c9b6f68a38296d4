package treecorr

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
)

// Corr2 accumulates binned two-point correlations between fields of kinds
// k1 and k2 into an Accumulator. The kind pair, and with it the statistic
// layout, is fixed at construction.
//
// A Corr2 is not safe for concurrent use, but it runs each traversal on
// Config.Workers goroutines internally.
type Corr2 struct {
	cfg     Config
	binning Binning
	metric  Metric
	los     LineOfSight
	proj    Projector
	k1, k2  Kind
	shape   Shape
	acc     *Accumulator
	logger  *slog.Logger
}

// NewCorr2 returns a pair engine that owns its accumulator. k1 and k2 must
// be in canonical order (see PairShape).
func NewCorr2(cfg Config, k1, k2 Kind) (*Corr2, error) {
	c, err := newCorr2(cfg, k1, k2)
	if err != nil {
		return nil, err
	}
	c.acc, err = NewAccumulator(c.shape, c.binning.NBins(), c.cfg.NRegions)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewCorr2Into returns a pair engine that accumulates into acc, typically
// built over caller storage with NewBorrowedAccumulator. acc must match the
// kinds, NBins and NRegions of the configuration.
func NewCorr2Into(cfg Config, k1, k2 Kind, acc *Accumulator) (*Corr2, error) {
	c, err := newCorr2(cfg, k1, k2)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: nil accumulator", ErrShapeMismatch)
	}
	if acc.Shape() != c.shape || acc.NBins() != c.binning.NBins() || acc.NRegions() != c.cfg.NRegions {
		return nil, fmt.Errorf("%w: accumulator is %v[%d bins, %d regions], engine needs %v[%d bins, %d regions]",
			ErrShapeMismatch, acc.Shape(), acc.NBins(), acc.NRegions(), c.shape, c.binning.NBins(), c.cfg.NRegions)
	}
	c.acc = acc
	return c, nil
}

func newCorr2(cfg Config, k1, k2 Kind) (*Corr2, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	shape, err := PairShape(k1, k2)
	if err != nil {
		return nil, err
	}
	bn, err := cfg.binning()
	if err != nil {
		return nil, err
	}
	c := &Corr2{
		cfg:     cfg,
		binning: bn,
		metric:  cfg.Metric,
		k1:      k1,
		k2:      k2,
		shape:   shape,
		logger:  cfg.Logger.With("component", "corr2", "shape", shape.String()),
	}
	if err := bindMetric(cfg.Metric, bn, hasSpin2(shape), &c.los, &c.proj); err != nil {
		return nil, err
	}
	return c, nil
}

// bindMetric resolves the optional metric capabilities an engine needs.
func bindMetric(m Metric, bn Binning, spin2 bool, los *LineOfSight, proj *Projector) error {
	if bn.hasRparWindow() {
		l, ok := m.(LineOfSight)
		if !ok {
			return fmt.Errorf("%w: %T has no line of sight for MinRpar/MaxRpar", ErrUnsupportedMetric, m)
		}
		*los = l
	}
	if spin2 {
		p, ok := m.(Projector)
		if !ok {
			return fmt.Errorf("%w: %T cannot project spin-2 values", ErrUnsupportedMetric, m)
		}
		*proj = p
	}
	return nil
}

// Binning returns the radial bins.
func (c *Corr2) Binning() Binning { return c.binning }

// Shape returns the statistic layout.
func (c *Corr2) Shape() Shape { return c.shape }

// Accumulator returns the target accumulator.
func (c *Corr2) Accumulator() *Accumulator { return c.acc }

// Clear zeroes the accumulated sums.
func (c *Corr2) Clear() { c.acc.Clear() }

// Merge adds the sums of another accumulator with the same layout.
func (c *Corr2) Merge(other *Accumulator) error { return c.acc.Add(other) }

// ProcessAuto accumulates every unordered pair of distinct points in t once.
// Both kinds must be the same.
func (c *Corr2) ProcessAuto(t *Tree) error {
	if c.k1 != c.k2 {
		return fmt.Errorf("%w: auto-correlation needs one kind, have %v and %v", ErrInvalidKinds, c.k1, c.k2)
	}
	if err := checkTree(t, c.metric, c.cfg.NRegions); err != nil {
		return err
	}
	tops := t.TopLevel(c.cfg.MaxTop)
	tasks := pairTasks(len(tops))
	c.logger.Debug("processing auto-correlation",
		"points", t.NumPoints(), "tasks", len(tasks), "workers", c.cfg.Workers)

	return runPartitioned(c.acc, len(tasks), c.cfg.Workers, func(acc *Accumulator, task int) {
		w := pairWalker{c: c, acc: acc}
		i, j := tasks[task][0], tasks[task][1]
		if i == j {
			w.process2(tops[i])
		} else {
			w.process11(tops[i], tops[j])
		}
	})
}

// ProcessCross accumulates every pair with the first point from t1 (kind k1)
// and the second from t2 (kind k2) once.
func (c *Corr2) ProcessCross(t1, t2 *Tree) error {
	for _, t := range []*Tree{t1, t2} {
		if err := checkTree(t, c.metric, c.cfg.NRegions); err != nil {
			return err
		}
	}
	tops1 := t1.TopLevel(c.cfg.MaxTop)
	tops2 := t2.TopLevel(c.cfg.MaxTop)
	n2 := len(tops2)
	numTasks := len(tops1) * n2
	c.logger.Debug("processing cross-correlation",
		"points1", t1.NumPoints(), "points2", t2.NumPoints(), "tasks", numTasks, "workers", c.cfg.Workers)

	return runPartitioned(c.acc, numTasks, c.cfg.Workers, func(acc *Accumulator, task int) {
		w := pairWalker{c: c, acc: acc}
		w.process11(tops1[task/n2], tops2[task%n2])
	})
}

// ProcessPairwise accumulates only the index-matched pairs (p1[i], p2[i]).
// The slices must have the same length.
func (c *Corr2) ProcessPairwise(p1, p2 []Point) error {
	if len(p1) != len(p2) {
		return fmt.Errorf("treecorr: pairwise inputs differ in length: %d vs %d", len(p1), len(p2))
	}
	for _, pts := range [][]Point{p1, p2} {
		for i, p := range pts {
			if err := checkRegion(p.Region, c.cfg.NRegions); err != nil {
				return fmt.Errorf("point %d: %w", i, err)
			}
		}
	}
	c.logger.Debug("processing pairwise", "pairs", len(p1), "workers", c.cfg.Workers)

	return runPartitioned(c.acc, len(p1), c.cfg.Workers, func(acc *Accumulator, i int) {
		w := pairWalker{c: c, acc: acc}
		a, b := pointCell(p1[i]), pointCell(p2[i])
		w.process11(&a, &b)
	})
}

// pointCell wraps a point as a size-zero cell.
func pointCell(p Point) Cell {
	return Cell{pos: p.Pos, weight: p.Weight, count: 1, value: p.Value, region: p.Region}
}

// checkTree rejects trees that cannot be processed by an engine with the
// given metric and region count.
func checkTree(t *Tree, m Metric, nregions int) error {
	if t == nil {
		return fmt.Errorf("treecorr: nil tree")
	}
	if !sameMetric(t.Metric(), m) {
		return fmt.Errorf("%w: tree built with %T, engine uses %T", ErrUnsupportedMetric, t.Metric(), m)
	}
	return checkRegion(t.MaxRegion(), nregions)
}

func checkRegion(region, nregions int) error {
	if region < NoRegion || (nregions > 0 && region >= nregions) {
		return fmt.Errorf("%w: region %d, engine has %d", ErrRegionOutOfRange, region, nregions)
	}
	return nil
}

func sameMetric(a, b Metric) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	return ta == nil || !ta.Comparable() || a == b
}

// pairGeom is the separation of an approximated cell pair, shared by the
// region-resolved sub-pairs of its replica split.
type pairGeom struct {
	r, logr    float64
	rot1, rot2 complex128
}

// pairWalker is the per-worker traversal state.
type pairWalker struct {
	c   *Corr2
	acc *Accumulator
}

// process2 visits every pair of distinct points within one cell.
func (w *pairWalker) process2(c *Cell) {
	if c.count < 2 {
		return
	}
	if 2*c.size < w.c.binning.MinSep() {
		w.acc.Excluded += c.count * (c.count - 1) / 2
		return
	}
	if c.points != nil {
		for i := range c.points {
			for j := i + 1; j < len(c.points); j++ {
				w.process11(&c.points[i], &c.points[j])
			}
		}
		return
	}
	w.process2(c.left)
	w.process2(c.right)
	w.process11(c.left, c.right)
}

// process11 visits every pair with one point in c1 and one in c2.
func (w *pairWalker) process11(c1, c2 *Cell) {
	if c1.count == 0 || c2.count == 0 {
		return
	}
	bn := &w.c.binning
	dsq := w.c.metric.DistSq(c1.pos, c2.pos)
	s := c1.size + c2.size
	n12 := c1.count * c2.count

	// Every pair is certainly too far apart or too close.
	if hi := bn.MaxSep() + s; dsq >= hi*hi {
		w.acc.Excluded += n12
		return
	}
	if lo := bn.MinSep() - s; lo > 0 && dsq < lo*lo {
		w.acc.Excluded += n12
		return
	}

	straddles := false
	if w.c.los != nil {
		rpar := w.c.los.Rpar(c1.pos, c2.pos)
		if rpar+s < bn.minRpar || rpar-s > bn.maxRpar {
			w.acc.Excluded += n12
			return
		}
		straddles = rpar-s < bn.minRpar || rpar+s > bn.maxRpar
	}

	if s == 0 || (!straddles && bn.CanApproximate(max(c1.sizeSq, c2.sizeSq), dsq)) {
		w.direct(c1, c2, dsq)
		return
	}

	if c1.size >= c2.size {
		c1.parts(func(sub *Cell) { w.process11(sub, c2) })
	} else {
		c2.parts(func(sub *Cell) { w.process11(c1, sub) })
	}
}

// direct adds c1 and c2 as a single pair at their centroid separation.
func (w *pairWalker) direct(c1, c2 *Cell, dsq float64) {
	k, ok := w.c.binning.BinIndex(dsq)
	if ok && w.c.los != nil {
		ok = w.c.binning.RparAllows(w.c.los.Rpar(c1.pos, c2.pos))
	}
	if !ok {
		w.acc.Excluded += c1.count * c2.count
		return
	}

	r := math.Sqrt(dsq)
	g := pairGeom{r: r, logr: math.Log(r), rot1: 1, rot2: 1}
	if w.c.proj != nil {
		g.rot1 = rotation(w.c.proj.Phase(c1.pos, c2.pos))
		g.rot2 = rotation(w.c.proj.Phase(c2.pos, c1.pos))
	}

	var contrib [maxColumns]float64
	w.c.pairContrib(c1, c2, &g, &contrib)
	w.acc.add(k, &contrib)
	if w.acc.nregions > 0 {
		w.addReplicas(c1, c2, k, &g)
	}
}

// addReplicas adds the contribution of c1 and c2 to the replicas of their
// regions. Cells spanning several regions are resolved into their parts,
// which keep the separation and frame of the approximated pair.
func (w *pairWalker) addReplicas(c1, c2 *Cell, k int, g *pairGeom) {
	if c1.region == MixedRegion {
		c1.parts(func(sub *Cell) { w.addReplicas(sub, c2, k, g) })
		return
	}
	if c2.region == MixedRegion {
		c2.parts(func(sub *Cell) { w.addReplicas(c1, sub, k, g) })
		return
	}
	r1, r2 := c1.region, c2.region
	if r1 < 0 && r2 < 0 {
		return
	}
	var contrib [maxColumns]float64
	w.c.pairContrib(c1, c2, g, &contrib)
	if r1 >= 0 {
		w.acc.addReplica(r1, k, &contrib)
	}
	if r2 >= 0 && r2 != r1 {
		w.acc.addReplica(r2, k, &contrib)
	}
}

// pairContrib fills out with every column of the contribution of a cell pair.
func (c *Corr2) pairContrib(c1, c2 *Cell, g *pairGeom, out *[maxColumns]float64) {
	pairStats(c.shape, c1.weight, c2.weight, c1.value, c2.value, g.rot1, g.rot2, out)
	ww := c1.weight * c2.weight
	ns := c.shape.NumStats()
	out[ns] = ww * g.r
	out[ns+1] = ww * g.logr
	out[ns+2] = ww
	out[ns+3] = c1.count * c2.count
}
