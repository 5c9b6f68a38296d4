package treecorr

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Ownership records whether an Accumulator allocated its arrays itself.
type Ownership int

const (
	// Owned arrays were allocated by the accumulator and are dropped by Release.
	Owned Ownership = iota
	// Borrowed arrays belong to the caller; Release leaves them alone.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// maxColumns bounds the number of per-bin arrays of any layout
// (8 statistic arrays for GGG plus five geometry/weight arrays).
const maxColumns = 13

// Accumulator holds per-bin running sums for one correlation: the statistic
// arrays of its Shape, the weighted geometric means, the total weight and the
// raw pair or triangle count. Every array may be replicated once per
// resampling region; replicas live in one contiguous buffer per array,
// indexed by region*NBins + bin.
//
// Columns are stored in a fixed order: the statistic arrays, then meanr and
// meanlogr for pairs or meanlogr, meanu and meanv for triples, then weight
// and count.
type Accumulator struct {
	shape     Shape
	nbins     int
	nregions  int
	ownership Ownership

	cols     [][]float64
	replicas [][]float64

	// Excluded counts pairs or triangles that were considered but fell
	// outside the bins. It is not a per-bin array and has no replicas.
	Excluded float64
}

// Buffers describes caller-owned storage for NewBorrowedAccumulator. Every
// array must have NBins elements; each replica array NRegions*NBins. Pair
// layouts use MeanR and MeanLogR; triple layouts use MeanLogR, MeanU and MeanV.
type Buffers struct {
	Stat     [][]float64
	MeanR    []float64
	MeanLogR []float64
	MeanU    []float64
	MeanV    []float64
	Weight   []float64
	Count    []float64

	// Replicas are optional and follow the column order of the layout.
	Replicas [][]float64
}

func numColumns(shape Shape) int {
	if shape.IsTriple() {
		return shape.NumStats() + 5
	}
	return shape.NumStats() + 4
}

// NewAccumulator allocates zeroed owned storage for nbins bins and nregions
// resampling replicas (0 for none).
func NewAccumulator(shape Shape, nbins, nregions int) (*Accumulator, error) {
	if err := checkAccumulatorArgs(shape, nbins, nregions); err != nil {
		return nil, err
	}
	a := &Accumulator{shape: shape, nbins: nbins, nregions: nregions, ownership: Owned}
	a.newData()
	return a, nil
}

// NewBorrowedAccumulator wraps caller-owned arrays. The arrays are validated
// but neither cleared nor copied.
func NewBorrowedAccumulator(shape Shape, nbins, nregions int, buf Buffers) (*Accumulator, error) {
	if err := checkAccumulatorArgs(shape, nbins, nregions); err != nil {
		return nil, err
	}
	if len(buf.Stat) != shape.NumStats() {
		return nil, fmt.Errorf("%w: %v needs %d statistic arrays, got %d",
			ErrShapeMismatch, shape, shape.NumStats(), len(buf.Stat))
	}
	cols := make([][]float64, 0, numColumns(shape))
	cols = append(cols, buf.Stat...)
	if shape.IsTriple() {
		cols = append(cols, buf.MeanLogR, buf.MeanU, buf.MeanV)
	} else {
		cols = append(cols, buf.MeanR, buf.MeanLogR)
	}
	cols = append(cols, buf.Weight, buf.Count)
	names := columnNames(shape)
	for j, c := range cols {
		if len(c) != nbins {
			return nil, fmt.Errorf("%w: %s has length %d, want %d", ErrShapeMismatch, names[j], len(c), nbins)
		}
	}

	var replicas [][]float64
	if nregions > 0 {
		if len(buf.Replicas) != len(cols) {
			return nil, fmt.Errorf("%w: need %d replica arrays, got %d", ErrShapeMismatch, len(cols), len(buf.Replicas))
		}
		for j, r := range buf.Replicas {
			if len(r) != nregions*nbins {
				return nil, fmt.Errorf("%w: %s replicas have length %d, want %d",
					ErrShapeMismatch, names[j], len(r), nregions*nbins)
			}
		}
		replicas = buf.Replicas
	} else if len(buf.Replicas) != 0 {
		return nil, fmt.Errorf("%w: replica arrays given without regions", ErrShapeMismatch)
	}

	return &Accumulator{
		shape:     shape,
		nbins:     nbins,
		nregions:  nregions,
		ownership: Borrowed,
		cols:      cols,
		replicas:  replicas,
	}, nil
}

func checkAccumulatorArgs(shape Shape, nbins, nregions int) error {
	if shape < ShapeNN || shape > ShapeGGG {
		return fmt.Errorf("%w: unknown shape %d", ErrInvalidKinds, int(shape))
	}
	if nbins <= 0 {
		return fmt.Errorf("%w: accumulator needs at least one bin, got %d", ErrInvalidBinning, nbins)
	}
	if nregions < 0 {
		return fmt.Errorf("%w: NRegions must be >= 0, got %d", ErrInvalidBinning, nregions)
	}
	return nil
}

// newData allocates zeroed columns and replicas.
func (a *Accumulator) newData() {
	nc := numColumns(a.shape)
	a.cols = make([][]float64, nc)
	for j := range a.cols {
		a.cols[j] = make([]float64, a.nbins)
	}
	a.replicas = nil
	if a.nregions > 0 {
		a.replicas = make([][]float64, nc)
		for j := range a.replicas {
			a.replicas[j] = make([]float64, a.nregions*a.nbins)
		}
	}
}

// Release drops owned storage. Borrowed storage is left untouched, since the
// caller owns it. The accumulator must not be used afterwards.
func (a *Accumulator) Release() {
	if a.ownership == Borrowed {
		return
	}
	a.cols = nil
	a.replicas = nil
}

func (a *Accumulator) Shape() Shape         { return a.shape }
func (a *Accumulator) NBins() int           { return a.nbins }
func (a *Accumulator) NRegions() int        { return a.nregions }
func (a *Accumulator) Ownership() Ownership { return a.ownership }

// Stat returns statistic array i (see Shape.StatNames).
func (a *Accumulator) Stat(i int) []float64 { return a.cols[i] }

// MeanR returns the weighted sum of separations (pairs only; nil for triples).
func (a *Accumulator) MeanR() []float64 {
	if a.shape.IsTriple() {
		return nil
	}
	return a.cols[a.shape.NumStats()]
}

// MeanLogR returns the weighted sum of log separations.
func (a *Accumulator) MeanLogR() []float64 {
	if a.shape.IsTriple() {
		return a.cols[a.shape.NumStats()]
	}
	return a.cols[a.shape.NumStats()+1]
}

// MeanU returns the weighted sum of u (triples only; nil for pairs).
func (a *Accumulator) MeanU() []float64 {
	if !a.shape.IsTriple() {
		return nil
	}
	return a.cols[a.shape.NumStats()+1]
}

// MeanV returns the weighted sum of v (triples only; nil for pairs).
func (a *Accumulator) MeanV() []float64 {
	if !a.shape.IsTriple() {
		return nil
	}
	return a.cols[a.shape.NumStats()+2]
}

// Weight returns the total weight per bin.
func (a *Accumulator) Weight() []float64 { return a.cols[len(a.cols)-2] }

// Count returns the raw number of pairs or triangles per bin.
func (a *Accumulator) Count() []float64 { return a.cols[len(a.cols)-1] }

// Column returns the array with the given name, or nil. Names are those of
// Shape.StatNames plus meanr, meanlogr, meanu, meanv, weight and count.
func (a *Accumulator) Column(name string) []float64 {
	for j, n := range columnNames(a.shape) {
		if n == name {
			return a.cols[j]
		}
	}
	return nil
}

// ColumnNames returns the names of every per-bin array in storage order.
func (a *Accumulator) ColumnNames() []string { return columnNames(a.shape) }

func columnNames(shape Shape) []string {
	names := shape.StatNames()
	if shape.IsTriple() {
		names = append(names, "meanlogr", "meanu", "meanv")
	} else {
		names = append(names, "meanr", "meanlogr")
	}
	return append(names, "weight", "count")
}

// ReplicaStat returns the region replica of statistic array i.
func (a *Accumulator) ReplicaStat(i, region int) []float64 { return a.replica(i, region) }

// ReplicaWeight returns the region replica of the weight array.
func (a *Accumulator) ReplicaWeight(region int) []float64 {
	return a.replica(len(a.cols)-2, region)
}

// ReplicaCount returns the region replica of the count array.
func (a *Accumulator) ReplicaCount(region int) []float64 {
	return a.replica(len(a.cols)-1, region)
}

// ReplicaColumn returns the region replica of the named column, or nil.
func (a *Accumulator) ReplicaColumn(name string, region int) []float64 {
	for j, n := range columnNames(a.shape) {
		if n == name {
			return a.replica(j, region)
		}
	}
	return nil
}

func (a *Accumulator) replica(col, region int) []float64 {
	if region < 0 || region >= a.nregions {
		return nil
	}
	return a.replicas[col][region*a.nbins : (region+1)*a.nbins]
}

// Clear zeroes every array and replica in place.
func (a *Accumulator) Clear() {
	for _, c := range a.cols {
		clear(c)
	}
	for _, r := range a.replicas {
		clear(r)
	}
	a.Excluded = 0
}

// compatible returns ErrShapeMismatch unless other has the same layout,
// bin count and region count.
func (a *Accumulator) compatible(other *Accumulator) error {
	if other == nil {
		return fmt.Errorf("%w: nil accumulator", ErrShapeMismatch)
	}
	if a.shape != other.shape || a.nbins != other.nbins || a.nregions != other.nregions {
		return fmt.Errorf("%w: %v[%d bins, %d regions] vs %v[%d bins, %d regions]",
			ErrShapeMismatch, a.shape, a.nbins, a.nregions, other.shape, other.nbins, other.nregions)
	}
	return nil
}

// Add merges other into a elementwise, replicas included.
func (a *Accumulator) Add(other *Accumulator) error {
	if err := a.compatible(other); err != nil {
		return err
	}
	for j := range a.cols {
		floats.Add(a.cols[j], other.cols[j])
	}
	for j := range a.replicas {
		floats.Add(a.replicas[j], other.replicas[j])
	}
	a.Excluded += other.Excluded
	return nil
}

// Assign overwrites a's data with other's. Only data is copied; binning
// parameters live with the engine, not here.
func (a *Accumulator) Assign(other *Accumulator) error {
	if err := a.compatible(other); err != nil {
		return err
	}
	for j := range a.cols {
		copy(a.cols[j], other.cols[j])
	}
	for j := range a.replicas {
		copy(a.replicas[j], other.replicas[j])
	}
	a.Excluded = other.Excluded
	return nil
}

// CloneEmpty returns a zeroed owned accumulator with the same layout. Workers
// accumulate into these private copies and merge them with Add.
func (a *Accumulator) CloneEmpty() *Accumulator {
	c := &Accumulator{shape: a.shape, nbins: a.nbins, nregions: a.nregions, ownership: Owned}
	c.newData()
	return c
}

// Clone returns an owned deep copy of a.
func (a *Accumulator) Clone() *Accumulator {
	c := a.CloneEmpty()
	_ = c.Assign(a)
	return c
}

// LeaveOut returns an owned accumulator without replicas holding the totals
// minus everything region contributed: the leave-one-region-out sums used
// for jackknife resampling.
func (a *Accumulator) LeaveOut(region int) (*Accumulator, error) {
	if region < 0 || region >= a.nregions {
		return nil, fmt.Errorf("%w: region %d, accumulator has %d", ErrRegionOutOfRange, region, a.nregions)
	}
	out := &Accumulator{shape: a.shape, nbins: a.nbins, ownership: Owned}
	out.newData()
	for j := range a.cols {
		floats.SubTo(out.cols[j], a.cols[j], a.replica(j, region))
	}
	return out, nil
}

// add accumulates one contribution into bin k.
func (a *Accumulator) add(k int, contrib *[maxColumns]float64) {
	for j, c := range a.cols {
		c[k] += contrib[j]
	}
}

// addReplica accumulates one contribution into bin k of a region replica.
func (a *Accumulator) addReplica(region, k int, contrib *[maxColumns]float64) {
	i := region*a.nbins + k
	for j, r := range a.replicas {
		r[i] += contrib[j]
	}
}
