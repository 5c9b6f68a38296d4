package treecorr

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Region markers for points and cells.
const (
	// NoRegion marks a point that belongs to no resampling region.
	NoRegion = -1
	// MixedRegion marks a cell whose points do not all share one region.
	MixedRegion = -2
)

// Point is a single catalog entry. Scalar fields store their value in the
// real part of Value; count fields ignore it.
type Point struct {
	Pos    r3.Vec
	Value  complex128
	Weight float64
	Region int
}

// SplitMethod selects where a cell is divided along its widest dimension.
type SplitMethod string

const (
	// SplitMedian puts half of the points on each side.
	SplitMedian SplitMethod = "median"
	// SplitMiddle splits at the midpoint of the bounding range.
	SplitMiddle SplitMethod = "middle"
	// SplitMean splits at the weighted centroid.
	SplitMean SplitMethod = "mean"
)

// TreeConfig controls tree construction.
type TreeConfig struct {
	// LeafSize is the maximum number of points in a leaf. Default: 1.
	LeafSize int `yaml:"leaf_size"`

	// MinSize stops splitting once a cell is no larger than this. Leaves
	// larger than one point are still resolved point by point whenever the
	// approximation test fails for them. Default: 0.
	MinSize float64 `yaml:"min_size"`

	// SplitMethod defaults to SplitMedian.
	SplitMethod SplitMethod `yaml:"split_method"`
}

// Cell is a node of a correlation tree: a group of points summarized by their
// weighted centroid, their enclosing size and their weight-averaged value.
// A cell either has two children or is a leaf. Leaves holding more than one
// point expose them as size-zero single-point cells through Points.
type Cell struct {
	pos    r3.Vec
	size   float64
	sizeSq float64
	weight float64
	count  float64
	value  complex128
	region int

	left, right *Cell
	points      []Cell
}

func (c *Cell) Pos() r3.Vec            { return c.pos }
func (c *Cell) Size() float64          { return c.size }
func (c *Cell) Weight() float64        { return c.weight }
func (c *Cell) Count() float64         { return c.count }
func (c *Cell) Value() complex128      { return c.value }
func (c *Cell) Region() int            { return c.region }
func (c *Cell) IsLeaf() bool           { return c.left == nil }
func (c *Cell) Children() (l, r *Cell) { return c.left, c.right }

// Points returns the single-point cells of a multi-point leaf, or nil.
func (c *Cell) Points() []Cell { return c.points }

// single reports whether the cell cannot be divided any further.
func (c *Cell) single() bool { return c.left == nil && len(c.points) == 0 }

// Tree is an immutable hierarchy of cells over a point set. It is safe for
// concurrent reads by any number of engines.
type Tree struct {
	root      *Cell
	cells     []Cell // internal and leaf cells
	leafCells []Cell // single-point cells, tree order
	metric    Metric
	cfg       TreeConfig

	n         int
	maxRegion int
	weight    float64
}

// BuildTree partitions points into a binary tree of cells using metric to
// measure cell sizes. The input slice is not modified.
func BuildTree(points []Point, metric Metric, cfg TreeConfig) (*Tree, error) {
	if metric == nil {
		return nil, fmt.Errorf("%w: nil metric", ErrUnsupportedMetric)
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = 1
	}
	if cfg.SplitMethod == "" {
		cfg.SplitMethod = SplitMedian
	}
	if cfg.LeafSize < 1 {
		return nil, fmt.Errorf("treecorr: LeafSize must be >= 1, got %d", cfg.LeafSize)
	}
	if cfg.MinSize < 0 {
		return nil, fmt.Errorf("treecorr: MinSize must be >= 0, got %f", cfg.MinSize)
	}
	switch cfg.SplitMethod {
	case SplitMedian, SplitMiddle, SplitMean:
	default:
		return nil, fmt.Errorf("treecorr: invalid SplitMethod %q", cfg.SplitMethod)
	}

	n := len(points)
	t := &Tree{
		metric:    metric,
		cfg:       cfg,
		n:         n,
		maxRegion: NoRegion,
	}
	if n == 0 {
		return t, nil
	}

	pts := make([]Point, n)
	copy(pts, points)
	for i, p := range pts {
		if p.Region < NoRegion {
			return nil, fmt.Errorf("%w: point %d has region %d", ErrRegionOutOfRange, i, p.Region)
		}
		if p.Region > t.maxRegion {
			t.maxRegion = p.Region
		}
		t.weight += p.Weight
	}

	b := &treeBuilder{
		tree:   t,
		pts:    pts,
		idx:    make([]int, n),
		keys:   make([]float64, n),
		metric: metric,
	}
	for i := range b.idx {
		b.idx[i] = i
	}
	// A binary tree with at most n leaves has at most 2n-1 cells, so the
	// backing slices never grow and cell pointers stay valid.
	t.cells = make([]Cell, 0, 2*n)
	t.leafCells = make([]Cell, n)
	t.root = b.buildCell(0, n)
	return t, nil
}

// Root returns the top cell, or nil for an empty tree.
func (t *Tree) Root() *Cell { return t.root }

// NumPoints returns the number of points in the tree.
func (t *Tree) NumPoints() int { return t.n }

// NumCells returns the number of internal and leaf cells.
func (t *Tree) NumCells() int { return len(t.cells) }

// MaxRegion returns the largest region index of any point, or NoRegion.
func (t *Tree) MaxRegion() int { return t.maxRegion }

// TotalWeight returns the summed weight of every point.
func (t *Tree) TotalWeight() float64 { return t.weight }

// Metric returns the metric the tree was built with.
func (t *Tree) Metric() Metric { return t.metric }

// TopLevel returns the cells found maxDepth levels below the root (or the
// leaves reached before that depth). Together they hold every point exactly
// once, which makes them the units of parallel work.
func (t *Tree) TopLevel(maxDepth int) []*Cell {
	if t.root == nil {
		return nil
	}
	level := []*Cell{t.root}
	for d := 0; d < maxDepth; d++ {
		next := make([]*Cell, 0, 2*len(level))
		split := false
		for _, c := range level {
			if c.IsLeaf() {
				next = append(next, c)
				continue
			}
			next = append(next, c.left, c.right)
			split = true
		}
		level = next
		if !split {
			break
		}
	}
	return level
}

type treeBuilder struct {
	tree   *Tree
	pts    []Point
	idx    []int     // permutation: tree-order position → input index
	keys   []float64 // per input index, coordinate along the current split axis
	metric Metric
}

// buildCell recursively builds the cell for points idx[start:end].
func (b *treeBuilder) buildCell(start, end int) *Cell {
	t := b.tree
	t.cells = append(t.cells, Cell{})
	c := &t.cells[len(t.cells)-1]

	b.summarize(c, start, end)

	count := end - start
	if count == 1 {
		return c
	}
	if count <= t.cfg.LeafSize || c.size <= t.cfg.MinSize || c.size == 0 {
		b.fillLeaf(c, start, end)
		return c
	}

	splitDim := b.findSpreadDim(c, start, end)
	mid := b.partition(c, start, end, splitDim)

	c.left = b.buildCell(start, mid)
	c.right = b.buildCell(mid, end)
	return c
}

// summarize computes centroid, size, weight, count, mean value and region of
// the points idx[start:end].
func (b *treeBuilder) summarize(c *Cell, start, end int) {
	ref := b.pts[b.idx[start]].Pos
	var sumW float64
	var sumPos r3.Vec
	var sumVal complex128
	region := b.pts[b.idx[start]].Region
	for i := start; i < end; i++ {
		p := b.pts[b.idx[i]]
		sumW += p.Weight
		sumPos = r3.Add(sumPos, r3.Scale(p.Weight, b.metric.Displacement(ref, p.Pos)))
		sumVal += complex(p.Weight, 0) * p.Value
		if p.Region != region {
			region = MixedRegion
		}
	}

	count := float64(end - start)
	if sumW != 0 {
		c.pos = r3.Add(ref, r3.Scale(1/sumW, sumPos))
		c.value = sumVal / complex(sumW, 0)
	} else {
		// Zero total weight: fall back to the plain mean position.
		var plain r3.Vec
		for i := start; i < end; i++ {
			plain = r3.Add(plain, b.metric.Displacement(ref, b.pts[b.idx[i]].Pos))
		}
		c.pos = r3.Add(ref, r3.Scale(1/count, plain))
	}
	c.weight = sumW
	c.count = count
	c.region = region

	// Size: max distance from centroid to any point in this cell.
	var sizeSq float64
	for i := start; i < end; i++ {
		d := r3.Norm2(b.metric.Displacement(c.pos, b.pts[b.idx[i]].Pos))
		if d > sizeSq {
			sizeSq = d
		}
	}
	if end-start == 1 {
		sizeSq = 0
		c.pos = b.pts[b.idx[start]].Pos
	}
	c.sizeSq = sizeSq
	c.size = math.Sqrt(sizeSq)
}

// fillLeaf attaches the single-point cells of idx[start:end] to a leaf.
func (b *treeBuilder) fillLeaf(c *Cell, start, end int) {
	leaves := b.tree.leafCells[start:end]
	for i := start; i < end; i++ {
		p := b.pts[b.idx[i]]
		leaves[i-start] = Cell{
			pos:    p.Pos,
			weight: p.Weight,
			count:  1,
			value:  p.Value,
			region: p.Region,
		}
	}
	c.points = leaves
}

// findSpreadDim returns the dimension with the greatest spread of the points
// around the cell centroid.
func (b *treeBuilder) findSpreadDim(c *Cell, start, end int) int {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := start; i < end; i++ {
		d := b.metric.Displacement(c.pos, b.pts[b.idx[i]].Pos)
		v := [3]float64{d.X, d.Y, d.Z}
		for j := range v {
			lo[j] = math.Min(lo[j], v[j])
			hi[j] = math.Max(hi[j], v[j])
		}
	}
	bestDim := 0
	bestSpread := -1.0
	for j := range lo {
		if spread := hi[j] - lo[j]; spread > bestSpread {
			bestSpread = spread
			bestDim = j
		}
	}
	return bestDim
}

// partition reorders idx[start:end] around the split plane and returns the
// first index of the right half. Both halves are always non-empty.
func (b *treeBuilder) partition(c *Cell, start, end, dim int) int {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := start; i < end; i++ {
		d := b.metric.Displacement(c.pos, b.pts[b.idx[i]].Pos)
		k := [3]float64{d.X, d.Y, d.Z}[dim]
		b.keys[b.idx[i]] = k
		lo = math.Min(lo, k)
		hi = math.Max(hi, k)
	}

	var split float64
	switch b.tree.cfg.SplitMethod {
	case SplitMiddle:
		split = 0.5 * (lo + hi)
	case SplitMean:
		split = 0 // keys are relative to the weighted centroid
	default:
		return b.medianSplit(start, end)
	}

	sub := b.idx[start:end]
	i, j := 0, len(sub)-1
	for i <= j {
		if b.keys[sub[i]] < split {
			i++
			continue
		}
		sub[i], sub[j] = sub[j], sub[i]
		j--
	}
	mid := start + i
	if mid == start || mid == end {
		return b.medianSplit(start, end)
	}
	return mid
}

// medianSplit sorts idx[start:end] by the current keys and splits at the median.
func (b *treeBuilder) medianSplit(start, end int) int {
	sub := b.idx[start:end]
	keys := b.keys
	sort.Slice(sub, func(i, j int) bool {
		return keys[sub[i]] < keys[sub[j]]
	})
	return start + (end-start)/2
}

// parts calls fn for each direct sub-cell of c: its two children, or the
// points of a multi-point leaf.
func (c *Cell) parts(fn func(*Cell)) {
	if c.points != nil {
		for i := range c.points {
			fn(&c.points[i])
		}
		return
	}
	if c.left != nil {
		fn(c.left)
		fn(c.right)
	}
}
