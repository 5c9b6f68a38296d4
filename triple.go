package treecorr

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// vertexOrder says which vertex roles of a triangle may be exchanged before
// binning. Binning always uses d1 >= d2 >= d3, where di is the side opposite
// vertex i.
type vertexOrder int

const (
	// orderSorted reorders all three vertices.
	orderSorted vertexOrder = iota
	// orderSwap12 may exchange vertices 1 and 2; vertex 3 keeps its role and
	// the triangle is binned only if the side opposite it is the shortest.
	orderSwap12
	// orderFixed keeps every role; the triangle is binned only if it is
	// already in canonical order.
	orderFixed
)

// Corr3 accumulates binned three-point correlations of fields of kinds k1,
// k2 and k3 into an Accumulator with one entry per (r, u, v) bin, flattened
// by TriangleBinning.Index.
type Corr3 struct {
	cfg     Config
	binning TriangleBinning
	metric  Metric
	proj    Projector
	rule    ShearRule
	kinds   [3]Kind
	shape   Shape
	sorted  bool
	acc     *Accumulator
	logger  *slog.Logger
}

// NewCorr3 returns a triangle engine that owns its accumulator. The kinds
// must be in canonical order (see TripleShape).
func NewCorr3(cfg Config, k1, k2, k3 Kind) (*Corr3, error) {
	c, err := newCorr3(cfg, k1, k2, k3)
	if err != nil {
		return nil, err
	}
	c.acc, err = NewAccumulator(c.shape, c.binning.Size(), c.cfg.NRegions)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewCorr3Into returns a triangle engine that accumulates into acc, which
// must have TriangleBinning.Size bins and Config.NRegions regions.
func NewCorr3Into(cfg Config, k1, k2, k3 Kind, acc *Accumulator) (*Corr3, error) {
	c, err := newCorr3(cfg, k1, k2, k3)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: nil accumulator", ErrShapeMismatch)
	}
	if acc.Shape() != c.shape || acc.NBins() != c.binning.Size() || acc.NRegions() != c.cfg.NRegions {
		return nil, fmt.Errorf("%w: accumulator is %v[%d bins, %d regions], engine needs %v[%d bins, %d regions]",
			ErrShapeMismatch, acc.Shape(), acc.NBins(), acc.NRegions(), c.shape, c.binning.Size(), c.cfg.NRegions)
	}
	c.acc = acc
	return c, nil
}

func newCorr3(cfg Config, k1, k2, k3 Kind) (*Corr3, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	shape, err := TripleShape(k1, k2, k3)
	if err != nil {
		return nil, err
	}
	tb, err := cfg.triangleBinning()
	if err != nil {
		return nil, err
	}
	if tb.hasRparWindow() {
		return nil, fmt.Errorf("%w: MinRpar/MaxRpar are not supported for triangles", ErrInvalidBinning)
	}

	same := k1 == k2 && k2 == k3
	sorted := same
	switch cfg.Sort {
	case SortAlways:
		if !same {
			return nil, fmt.Errorf("%w: sorting triangles needs one kind, have %v%v%v", ErrInvalidKinds, k1, k2, k3)
		}
	case SortNever:
		sorted = false
	}

	c := &Corr3{
		cfg:     cfg,
		binning: tb,
		metric:  cfg.Metric,
		rule:    cfg.ShearRule,
		kinds:   [3]Kind{k1, k2, k3},
		shape:   shape,
		sorted:  sorted,
		logger:  cfg.Logger.With("component", "corr3", "shape", shape.String()),
	}
	var los LineOfSight
	if err := bindMetric(cfg.Metric, tb.Binning, hasSpin2(shape), &los, &c.proj); err != nil {
		return nil, err
	}
	return c, nil
}

// Binning returns the triangle bins.
func (c *Corr3) Binning() TriangleBinning { return c.binning }

// Shape returns the statistic layout.
func (c *Corr3) Shape() Shape { return c.shape }

// Sorted reports whether cross-correlations canonicalize vertex order.
func (c *Corr3) Sorted() bool { return c.sorted }

// Accumulator returns the target accumulator.
func (c *Corr3) Accumulator() *Accumulator { return c.acc }

// Clear zeroes the accumulated sums.
func (c *Corr3) Clear() { c.acc.Clear() }

// Merge adds the sums of another accumulator with the same layout.
func (c *Corr3) Merge(other *Accumulator) error { return c.acc.Add(other) }

// ProcessAuto accumulates every triangle of three distinct points of t once,
// in canonical vertex order. All three kinds must be the same.
func (c *Corr3) ProcessAuto(t *Tree) error {
	if c.kinds[0] != c.kinds[1] || c.kinds[1] != c.kinds[2] {
		return fmt.Errorf("%w: auto-correlation needs one kind, have %v%v%v",
			ErrInvalidKinds, c.kinds[0], c.kinds[1], c.kinds[2])
	}
	if err := checkTree(t, c.metric, c.cfg.NRegions); err != nil {
		return err
	}
	tops := t.TopLevel(c.cfg.MaxTop)
	tasks := tripleTasks(len(tops))
	c.logger.Debug("processing auto-correlation",
		"points", t.NumPoints(), "tasks", len(tasks), "workers", c.cfg.Workers)

	return runPartitioned(c.acc, len(tasks), c.cfg.Workers, func(acc *Accumulator, task int) {
		w := tripleWalker{c: c, acc: acc, order: orderSorted}
		i, j, k := tasks[task][0], tasks[task][1], tasks[task][2]
		switch {
		case j < 0:
			w.process3(tops[i])
		case k < 0:
			w.process21(tops[i], tops[j])
		default:
			w.process111(tops[i], tops[j], tops[k])
		}
	})
}

// ProcessCross accumulates every triangle with vertex 1 from t1, vertex 2
// from t2 and vertex 3 from t3 once. Unsorted engines only bin triangles
// whose vertices are already in canonical order, so the other orientations
// need calls with the trees permuted.
func (c *Corr3) ProcessCross(t1, t2, t3 *Tree) error {
	for _, t := range []*Tree{t1, t2, t3} {
		if err := checkTree(t, c.metric, c.cfg.NRegions); err != nil {
			return err
		}
	}
	tops1 := t1.TopLevel(c.cfg.MaxTop)
	tops2 := t2.TopLevel(c.cfg.MaxTop)
	tops3 := t3.TopLevel(c.cfg.MaxTop)
	n2, n3 := len(tops2), len(tops3)
	numTasks := len(tops1) * n2 * n3
	order := orderFixed
	if c.sorted {
		order = orderSorted
	}
	c.logger.Debug("processing cross-correlation",
		"points1", t1.NumPoints(), "points2", t2.NumPoints(), "points3", t3.NumPoints(),
		"tasks", numTasks, "workers", c.cfg.Workers)

	return runPartitioned(c.acc, numTasks, c.cfg.Workers, func(acc *Accumulator, task int) {
		w := tripleWalker{c: c, acc: acc, order: order}
		w.process111(tops1[task/(n2*n3)], tops2[(task/n3)%n2], tops3[task%n3])
	})
}

// ProcessCross21 accumulates every triangle with two distinct points from
// t12 (vertices 1 and 2, which must share a kind) and one from t3 once.
func (c *Corr3) ProcessCross21(t12, t3 *Tree) error {
	if c.kinds[0] != c.kinds[1] {
		return fmt.Errorf("%w: vertices 1 and 2 share a catalog but have kinds %v and %v",
			ErrInvalidKinds, c.kinds[0], c.kinds[1])
	}
	for _, t := range []*Tree{t12, t3} {
		if err := checkTree(t, c.metric, c.cfg.NRegions); err != nil {
			return err
		}
	}
	tops12 := t12.TopLevel(c.cfg.MaxTop)
	tops3 := t3.TopLevel(c.cfg.MaxTop)
	var tasks [][3]int
	for i := range tops12 {
		for j := i; j < len(tops12); j++ {
			for k := range tops3 {
				tasks = append(tasks, [3]int{i, j, k})
			}
		}
	}
	order := orderSwap12
	if c.sorted {
		order = orderSorted
	}
	c.logger.Debug("processing cross-correlation",
		"points12", t12.NumPoints(), "points3", t3.NumPoints(), "tasks", len(tasks), "workers", c.cfg.Workers)

	return runPartitioned(c.acc, len(tasks), c.cfg.Workers, func(acc *Accumulator, task int) {
		w := tripleWalker{c: c, acc: acc, order: order}
		i, j, k := tasks[task][0], tasks[task][1], tasks[task][2]
		if i == j {
			w.process21(tops12[i], tops3[k])
		} else {
			w.process111(tops12[i], tops12[j], tops3[k])
		}
	})
}

// tripleGeom is the shape of an approximated cell triangle, shared by the
// region-resolved sub-triangles of its replica split.
type tripleGeom struct {
	logd1, u, v float64
	frame       tripleFrame
}

// tripleWalker is the per-worker traversal state.
type tripleWalker struct {
	c     *Corr3
	acc   *Accumulator
	order vertexOrder
}

// process3 visits every triangle of three distinct points within c.
func (w *tripleWalker) process3(c *Cell) {
	n := c.count
	if n < 3 {
		return
	}
	if 2*c.size < w.c.binning.MinSep() {
		w.acc.Excluded += n * (n - 1) * (n - 2) / 6
		return
	}
	if c.points != nil {
		pts := c.points
		for i := range pts {
			for j := i + 1; j < len(pts); j++ {
				for k := j + 1; k < len(pts); k++ {
					w.process111(&pts[i], &pts[j], &pts[k])
				}
			}
		}
		return
	}
	w.process3(c.left)
	w.process3(c.right)
	w.process21(c.left, c.right)
	w.process21(c.right, c.left)
}

// process21 visits every triangle with two distinct points in c12 and one
// in c3.
func (w *tripleWalker) process21(c12, c3 *Cell) {
	if c12.count < 2 || c3.count == 0 {
		return
	}
	bn := &w.c.binning
	n := c12.count * (c12.count - 1) / 2 * c3.count
	d := math.Sqrt(w.c.metric.DistSq(c12.pos, c3.pos))
	s12, s3 := c12.size, c3.size

	// Bounds on the longest side: both sides reaching c3 lie within
	// d ± (s12+s3), the side inside c12 is at most 2*s12.
	lo := d - s12 - s3
	if max(2*s12, d+s12+s3) < bn.MinSep() || lo >= bn.MaxSep() {
		w.acc.Excluded += n
		return
	}
	// u = d3/d2 is at most 2*s12/lo, since d3 is no longer than the side
	// inside c12 and d2 no shorter than the shorter side reaching c3.
	if lo > 0 && 2*s12 < bn.minU*lo {
		w.acc.Excluded += n
		return
	}

	if s3 > s12 {
		c3.parts(func(sub *Cell) { w.process21(c12, sub) })
		return
	}
	if c12.points != nil {
		pts := c12.points
		for i := range pts {
			for j := i + 1; j < len(pts); j++ {
				w.process111(&pts[i], &pts[j], c3)
			}
		}
		return
	}
	w.process21(c12.left, c3)
	w.process21(c12.right, c3)
	w.process111(c12.left, c12.right, c3)
}

// process111 visits every triangle with one point in each cell.
func (w *tripleWalker) process111(c1, c2, c3 *Cell) {
	if c1.count == 0 || c2.count == 0 || c3.count == 0 {
		return
	}
	bn := &w.c.binning
	n := c1.count * c2.count * c3.count
	m := w.c.metric

	cells := [3]*Cell{c1, c2, c3}
	dsq := [3]float64{
		m.DistSq(c2.pos, c3.pos),
		m.DistSq(c1.pos, c3.pos),
		m.DistSq(c1.pos, c2.pos),
	}
	// Side i joins the two other cells, so it is known to within e[i].
	e := [3]float64{c2.size + c3.size, c1.size + c3.size, c1.size + c2.size}
	var d [3]float64
	for i := range d {
		d[i] = math.Sqrt(dsq[i])
	}

	hi := max(d[0]+e[0], d[1]+e[1], d[2]+e[2])
	lo := max(d[0]-e[0], d[1]-e[1], d[2]-e[2])
	if hi < bn.MinSep() || lo >= bn.MaxSep() {
		w.acc.Excluded += n
		return
	}

	uncertain := false
	switch w.order {
	case orderFixed:
		if d[0]+e[0] < d[1]-e[1] || d[1]+e[1] < d[2]-e[2] {
			w.acc.Excluded += n
			return
		}
		uncertain = d[0]-e[0] < d[1]+e[1] || d[1]-e[1] < d[2]+e[2]
	case orderSwap12:
		if d[2]-e[2] > d[0]+e[0] || d[2]-e[2] > d[1]+e[1] {
			w.acc.Excluded += n
			return
		}
		uncertain = d[2]+e[2] > d[0]-e[0] || d[2]+e[2] > d[1]-e[1]
	}

	if e[0] == 0 && e[1] == 0 {
		w.direct(cells, dsq)
		return
	}
	if !uncertain && w.canApproximate(cells, d, e, dsq) {
		w.direct(cells, dsq)
		return
	}

	split := 0
	for i := 1; i < 3; i++ {
		if cells[i].size > cells[split].size {
			split = i
		}
	}
	cells[split].parts(func(sub *Cell) {
		next := cells
		next[split] = sub
		w.process111(next[0], next[1], next[2])
	})
}

// canApproximate reports whether the three cells may be treated as points:
// every side passes the opening-angle test and the errors propagated to u
// and v stay within BU and BV.
func (w *tripleWalker) canApproximate(cells [3]*Cell, d, e, dsq [3]float64) bool {
	bn := &w.c.binning
	for i := range cells {
		j, k := (i+1)%3, (i+2)%3
		if !bn.CanApproximate(max(cells[j].sizeSq, cells[k].sizeSq), dsq[i]) {
			return false
		}
	}

	p := sortedSides(d)
	d1, d2, d3 := d[p[0]], d[p[1]], d[p[2]]
	e1, e2, e3 := e[p[0]], e[p[1]], e[p[2]]
	if d2 == 0 || d3 == 0 {
		return false
	}
	u := d3 / d2
	if u*(e3/d3+e2/d2) > bn.bu {
		return false
	}
	v := (d1 - d2) / d3
	return (e1+e2)/d3+v*e3/d3 <= bn.bv
}

// sortedSides returns the side indices ordered by decreasing length. Ties
// keep their original order.
func sortedSides(d [3]float64) [3]int {
	p := [3]int{0, 1, 2}
	if d[p[0]] < d[p[1]] {
		p[0], p[1] = p[1], p[0]
	}
	if d[p[1]] < d[p[2]] {
		p[1], p[2] = p[2], p[1]
	}
	if d[p[0]] < d[p[1]] {
		p[0], p[1] = p[1], p[0]
	}
	return p
}

// breakTies reorders vertices whose opposite sides are exactly equal, so the
// order of p no longer depends on the input order. Tied vertices are put in
// counter-clockwise order (v >= 0), or in position order for a degenerate
// triangle. An equilateral triangle starts at its lowest vertex. Vertex 3 only
// moves when swap3 is set.
func (w *tripleWalker) breakTies(cells [3]*Cell, dsq [3]float64, p [3]int, swap3 bool) [3]int {
	tie12 := dsq[p[0]] == dsq[p[1]]
	tie23 := swap3 && dsq[p[1]] == dsq[p[2]]
	if !tie12 && !tie23 {
		return p
	}
	if tie12 && tie23 {
		first := 0
		for i := 1; i < 3; i++ {
			if posLess(cells[p[i]].pos, cells[p[first]].pos) {
				first = i
			}
		}
		p = [3]int{p[first], p[(first+1)%3], p[(first+2)%3]}
		tie12 = false
	}
	i, j := 1, 2
	if tie12 {
		i, j = 0, 1
	}
	o := w.c.metric.Orientation(cells[p[0]].pos, cells[p[1]].pos, cells[p[2]].pos)
	if o < 0 || (o == 0 && posLess(cells[p[j]].pos, cells[p[i]].pos)) {
		p[i], p[j] = p[j], p[i]
	}
	return p
}

func posLess(a, b r3.Vec) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// direct adds the three cells as a single triangle at their centroids.
func (w *tripleWalker) direct(cells [3]*Cell, dsq [3]float64) {
	n := cells[0].count * cells[1].count * cells[2].count

	p := [3]int{0, 1, 2}
	switch w.order {
	case orderSorted:
		p = w.breakTies(cells, dsq, sortedSides(dsq), true)
	case orderSwap12:
		if dsq[0] < dsq[1] {
			p[0], p[1] = 1, 0
		}
		if dsq[p[1]] < dsq[2] {
			w.acc.Excluded += n
			return
		}
		p = w.breakTies(cells, dsq, p, false)
	case orderFixed:
		if dsq[0] < dsq[1] || dsq[1] < dsq[2] {
			w.acc.Excluded += n
			return
		}
	}
	// The side opposite a vertex stays with it when vertices are reordered.
	ordered := [3]*Cell{cells[p[0]], cells[p[1]], cells[p[2]]}
	d1sq, d2sq, d3sq := dsq[p[0]], dsq[p[1]], dsq[p[2]]

	bn := &w.c.binning
	k, ok := bn.BinIndex(d1sq)
	if !ok {
		w.acc.Excluded += n
		return
	}
	var g tripleGeom
	for i, c := range ordered {
		g.frame.pos[i] = c.pos
	}
	orient := w.c.metric.Orientation(g.frame.pos[0], g.frame.pos[1], g.frame.pos[2])
	d1 := math.Sqrt(d1sq)
	ku, kv, u, v, ok := bn.AngleBins(d1, math.Sqrt(d2sq), math.Sqrt(d3sq), orient)
	if !ok {
		w.acc.Excluded += n
		return
	}
	g.logd1, g.u, g.v = math.Log(d1), u, v

	g.frame.rot = [3]complex128{1, 1, 1}
	if w.c.proj != nil {
		f := &g.frame
		f.proj = w.c.proj
		f.rule = w.c.rule
		cen := r3.Scale(1.0/3, r3.Add(r3.Add(f.pos[0], f.pos[1]), f.pos[2]))
		for i := range f.rot {
			f.rot[i] = rotation(f.proj.Phase(cen, f.pos[i]))
		}
	}

	bin := bn.Index(k, ku, kv)
	var contrib [maxColumns]float64
	w.c.tripleContrib(ordered, &g, &contrib)
	w.acc.add(bin, &contrib)
	if w.acc.nregions > 0 {
		w.addReplicas(ordered, bin, &g)
	}
}

// addReplicas adds the contribution of a cell triangle to the replicas of
// its regions, resolving cells that span several regions into their parts.
func (w *tripleWalker) addReplicas(cells [3]*Cell, bin int, g *tripleGeom) {
	for i, c := range cells {
		if c.region == MixedRegion {
			c.parts(func(sub *Cell) {
				next := cells
				next[i] = sub
				w.addReplicas(next, bin, g)
			})
			return
		}
	}
	var contrib [maxColumns]float64
	computed := false
	for i, c := range cells {
		r := c.region
		if r < 0 || (i > 0 && r == cells[0].region) || (i > 1 && r == cells[1].region) {
			continue
		}
		if !computed {
			w.c.tripleContrib(cells, g, &contrib)
			computed = true
		}
		w.acc.addReplica(r, bin, &contrib)
	}
}

// tripleContrib fills out with every column of the contribution of a cell
// triangle in canonical vertex order.
func (c *Corr3) tripleContrib(cells [3]*Cell, g *tripleGeom, out *[maxColumns]float64) {
	w := [3]float64{cells[0].weight, cells[1].weight, cells[2].weight}
	v := [3]complex128{cells[0].value, cells[1].value, cells[2].value}
	tripleStats(c.shape, w, v, &g.frame, out)
	www := w[0] * w[1] * w[2]
	ns := c.shape.NumStats()
	out[ns] = www * g.logd1
	out[ns+1] = www * g.u
	out[ns+2] = www * g.v
	out[ns+3] = www
	out[ns+4] = cells[0].count * cells[1].count * cells[2].count
}
