package treecorr

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// exactConfig returns a single-worker config that never approximates.
func exactConfig(minSep, maxSep float64, nbins int) Config {
	cfg := DefaultConfig()
	cfg.MinSep, cfg.MaxSep, cfg.NBins = minSep, maxSep, nbins
	cfg.B = 0
	cfg.BU, cfg.BV = 0, 0
	cfg.Workers = 1
	return cfg
}

func mustCorr2(t *testing.T, cfg Config, k1, k2 Kind) *Corr2 {
	t.Helper()
	c, err := NewCorr2(cfg, k1, k2)
	if err != nil {
		t.Fatalf("NewCorr2: %v", err)
	}
	return c
}

func mustTreeFor(t testing.TB, pts []Point, cfg Config) *Tree {
	t.Helper()
	tree, err := BuildTreeFor(pts, cfg)
	if err != nil {
		t.Fatalf("BuildTreeFor: %v", err)
	}
	return tree
}

// compareSlices reports elements of got that differ from want by more than
// tol relative to max(1, |want|), logging up to 5 individual errors.
func compareSlices(t *testing.T, name string, want, got []float64, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s length: want %d, got %d", name, len(want), len(got))
	}
	if floats.EqualApprox(want, got, tol) {
		return
	}
	mismatches := 0
	for i := range want {
		if math.Abs(want[i]-got[i]) > tol*math.Max(1, math.Abs(want[i])) {
			mismatches++
			if mismatches <= 5 {
				t.Errorf("%s[%d]: want %g, got %g", name, i, want[i], got[i])
			}
		}
	}
	if mismatches > 5 {
		t.Errorf("... and %d more %s mismatches beyond tolerance %g", mismatches-5, name, tol)
	}
}

// compareAccumulators compares every column and replica of two accumulators.
func compareAccumulators(t *testing.T, want, got *Accumulator, tol float64) {
	t.Helper()
	for _, name := range want.ColumnNames() {
		compareSlices(t, name, want.Column(name), got.Column(name), tol)
		for r := 0; r < want.NRegions(); r++ {
			compareSlices(t, name+" replica", want.ReplicaColumn(name, r), got.ReplicaColumn(name, r), tol)
		}
	}
	if want.Excluded != got.Excluded {
		t.Errorf("Excluded: want %v, got %v", want.Excluded, got.Excluded)
	}
}

// pairSums are brute-force KK sums.
type pairSums struct {
	xi, meanr, meanlogr, weight, count []float64
	repXi, repCount                    [][]float64
	excluded                           float64
}

// bruteKK sums every pair of p1 × p2 (or of distinct points of p1 when p2 is
// nil) point by point.
func bruteKK(bn Binning, m Metric, nregions int, p1, p2 []Point) pairSums {
	nb := bn.NBins()
	s := pairSums{
		xi:       make([]float64, nb),
		meanr:    make([]float64, nb),
		meanlogr: make([]float64, nb),
		weight:   make([]float64, nb),
		count:    make([]float64, nb),
		repXi:    make([][]float64, nregions),
		repCount: make([][]float64, nregions),
	}
	for r := range s.repXi {
		s.repXi[r] = make([]float64, nb)
		s.repCount[r] = make([]float64, nb)
	}
	los, _ := m.(LineOfSight)
	add := func(a, b Point) {
		dsq := m.DistSq(a.Pos, b.Pos)
		k, ok := bn.BinIndex(dsq)
		if ok && los != nil && bn.hasRparWindow() {
			ok = bn.RparAllows(los.Rpar(a.Pos, b.Pos))
		}
		if !ok {
			s.excluded++
			return
		}
		ww := a.Weight * b.Weight
		xi := ww * real(a.Value) * real(b.Value)
		r := math.Sqrt(dsq)
		s.xi[k] += xi
		s.meanr[k] += ww * r
		s.meanlogr[k] += ww * math.Log(r)
		s.weight[k] += ww
		s.count[k]++
		if a.Region >= 0 {
			s.repXi[a.Region][k] += xi
			s.repCount[a.Region][k]++
		}
		if b.Region >= 0 && b.Region != a.Region {
			s.repXi[b.Region][k] += xi
			s.repCount[b.Region][k]++
		}
	}
	if p2 == nil {
		for i := range p1 {
			for j := i + 1; j < len(p1); j++ {
				add(p1[i], p1[j])
			}
		}
	} else {
		for i := range p1 {
			for j := range p2 {
				add(p1[i], p2[j])
			}
		}
	}
	return s
}

func checkBruteKK(t *testing.T, want pairSums, acc *Accumulator) {
	t.Helper()
	compareSlices(t, "xi", want.xi, acc.Stat(0), 1e-9)
	compareSlices(t, "meanr", want.meanr, acc.MeanR(), 1e-9)
	compareSlices(t, "meanlogr", want.meanlogr, acc.MeanLogR(), 1e-9)
	compareSlices(t, "weight", want.weight, acc.Weight(), 1e-9)
	compareSlices(t, "count", want.count, acc.Count(), 0)
	for r := range want.repXi {
		compareSlices(t, "replica xi", want.repXi[r], acc.ReplicaStat(0, r), 1e-9)
		compareSlices(t, "replica count", want.repCount[r], acc.ReplicaCount(r), 0)
	}
	if acc.Excluded != want.excluded {
		t.Errorf("Excluded = %v, want %v", acc.Excluded, want.excluded)
	}
}

// --- Basic behavior ---

func TestCorr2_ConcreteTwoPoint(t *testing.T) {
	cfg := exactConfig(0.5, 2, 1)
	pts := []Point{
		{Pos: r3.Vec{X: 0}, Value: 2, Weight: 1, Region: NoRegion},
		{Pos: r3.Vec{X: 1}, Value: 3, Weight: 1, Region: NoRegion},
	}
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessAuto(mustTreeFor(t, pts, cfg)); err != nil {
		t.Fatal(err)
	}
	acc := kk.Accumulator()
	if acc.Count()[0] != 1 || acc.Weight()[0] != 1 {
		t.Errorf("count, weight = %v, %v, want 1, 1", acc.Count()[0], acc.Weight()[0])
	}
	if !almostEqual(acc.Stat(0)[0], 6, floatTol) {
		t.Errorf("xi = %v, want 6", acc.Stat(0)[0])
	}
	if !almostEqual(acc.MeanLogR()[0], math.Log(1), floatTol) || !almostEqual(acc.MeanR()[0], 1, floatTol) {
		t.Errorf("meanlogr, meanr = %v, %v, want 0, 1", acc.MeanLogR()[0], acc.MeanR()[0])
	}
}

func TestCorr2_AutoMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	pts := randomPoints(rng, 150, 20, 0)
	for _, leafSize := range []int{1, 5} {
		for _, workers := range []int{1, 3} {
			cfg := exactConfig(0.5, 15, 8)
			cfg.Tree.LeafSize = leafSize
			cfg.Workers = workers
			kk := mustCorr2(t, cfg, KindScalar, KindScalar)
			if err := kk.ProcessAuto(mustTreeFor(t, pts, cfg)); err != nil {
				t.Fatal(err)
			}
			checkBruteKK(t, bruteKK(kk.Binning(), Flat{}, 0, pts, nil), kk.Accumulator())
		}
	}
}

func TestCorr2_CrossMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p1 := randomPoints(rng, 80, 20, 0)
	p2 := randomPoints(rng, 60, 20, 0)
	cfg := exactConfig(0.5, 15, 8)
	cfg.Tree.LeafSize = 3
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessCross(mustTreeFor(t, p1, cfg), mustTreeFor(t, p2, cfg)); err != nil {
		t.Fatal(err)
	}
	checkBruteKK(t, bruteKK(kk.Binning(), Flat{}, 0, p1, p2), kk.Accumulator())
}

func TestCorr2_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	pts := randomPoints(rng, 300, 30, 0)
	n := float64(len(pts))
	for _, b := range []float64{0, 0.05, 0.3} {
		cfg := exactConfig(1, 10, 6)
		cfg.B = b
		cfg.Workers = 4
		nn := mustCorr2(t, cfg, KindCount, KindCount)
		if err := nn.ProcessAuto(mustTreeFor(t, pts, cfg)); err != nil {
			t.Fatal(err)
		}
		var total float64
		for _, c := range nn.Accumulator().Count() {
			total += c
		}
		if got := total + nn.Accumulator().Excluded; got != n*(n-1)/2 {
			t.Errorf("b=%v: binned %v + excluded %v = %v, want %v",
				b, total, nn.Accumulator().Excluded, got, n*(n-1)/2)
		}
	}
}

func TestCorr2_MergeLinearity(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	all := randomPoints(rng, 200, 20, 0)
	a, b := all[:120], all[120:]
	cfg := exactConfig(0.5, 15, 8)

	full := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := full.ProcessAuto(mustTreeFor(t, all, cfg)); err != nil {
		t.Fatal(err)
	}

	ta, tb := mustTreeFor(t, a, cfg), mustTreeFor(t, b, cfg)
	parts := make([]*Corr2, 3)
	for i := range parts {
		parts[i] = mustCorr2(t, cfg, KindScalar, KindScalar)
	}
	if err := parts[0].ProcessAuto(ta); err != nil {
		t.Fatal(err)
	}
	if err := parts[1].ProcessAuto(tb); err != nil {
		t.Fatal(err)
	}
	if err := parts[2].ProcessCross(ta, tb); err != nil {
		t.Fatal(err)
	}
	merged := mustCorr2(t, cfg, KindScalar, KindScalar)
	for _, p := range parts {
		if err := merged.Merge(p.Accumulator()); err != nil {
			t.Fatal(err)
		}
	}
	compareAccumulators(t, full.Accumulator(), merged.Accumulator(), 1e-9)
}

func TestCorr2_ClearThenEmptyTree(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	cfg := exactConfig(0.5, 15, 8)
	cfg.NRegions = 2
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessAuto(mustTreeFor(t, randomPoints(rng, 50, 10, 2), cfg)); err != nil {
		t.Fatal(err)
	}
	kk.Clear()
	if err := kk.ProcessAuto(mustTreeFor(t, nil, cfg)); err != nil {
		t.Fatal(err)
	}
	zero := kk.Accumulator().CloneEmpty()
	compareAccumulators(t, zero, kk.Accumulator(), 0)
}

func TestCorr2_CrossSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	cfg := exactConfig(0.5, 15, 8)
	ta := mustTreeFor(t, randomPoints(rng, 70, 20, 0), cfg)
	tb := mustTreeFor(t, randomPoints(rng, 90, 20, 0), cfg)

	ab := mustCorr2(t, cfg, KindScalar, KindScalar)
	ba := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := ab.ProcessCross(ta, tb); err != nil {
		t.Fatal(err)
	}
	if err := ba.ProcessCross(tb, ta); err != nil {
		t.Fatal(err)
	}
	compareAccumulators(t, ab.Accumulator(), ba.Accumulator(), 1e-9)
}

// --- Approximation ---

func TestCorr2_OpeningAngleBound(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	cluster := make([]Point, 50)
	for i := range cluster {
		r := 0.05 * math.Sqrt(rng.Float64())
		phi := 2 * math.Pi * rng.Float64()
		cluster[i] = Point{
			Pos:    r3.Vec{X: r * math.Cos(phi), Y: r * math.Sin(phi)},
			Value:  complex(rng.NormFloat64(), 0),
			Weight: 0.5 + rng.Float64(),
			Region: NoRegion,
		}
	}
	probe := []Point{{Pos: r3.Vec{X: 8}, Value: 1.5, Weight: 2, Region: NoRegion}}

	run := func(b float64) *Accumulator {
		cfg := exactConfig(1, 100, 10)
		cfg.B = b
		kk := mustCorr2(t, cfg, KindScalar, KindScalar)
		if err := kk.ProcessCross(mustTreeFor(t, cluster, cfg), mustTreeFor(t, probe, cfg)); err != nil {
			t.Fatal(err)
		}
		return kk.Accumulator()
	}
	exact, approx := run(0), run(0.1)

	const bin = 4
	for k := range exact.Count() {
		if exact.Count()[k] != approx.Count()[k] {
			t.Errorf("count[%d]: exact %v, approximate %v", k, exact.Count()[k], approx.Count()[k])
		}
	}
	if exact.Count()[bin] != 50 {
		t.Fatalf("exact count in bin %d = %v, want 50", bin, exact.Count()[bin])
	}
	compareSlices(t, "weight", exact.Weight(), approx.Weight(), 1e-12)
	compareSlices(t, "xi", exact.Stat(0), approx.Stat(0), 1e-12)

	w := exact.Weight()[bin]
	dlog := math.Abs(exact.MeanLogR()[bin]/w - approx.MeanLogR()[bin]/w)
	if dlog > 0.1 {
		t.Errorf("mean log separation differs by %v, want <= b", dlog)
	}
	if dlog > 0.05/8 {
		t.Errorf("mean log separation differs by %v, more than size/separation", dlog)
	}
}

func TestCorr2_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p1 := randomPoints(rng, 400, 50, 3)
	p2 := randomPoints(rng, 300, 50, 3)
	run := func(workers int) (*Accumulator, *Accumulator) {
		cfg := DefaultConfig()
		cfg.MinSep, cfg.MaxSep, cfg.NBins = 1, 40, 10
		cfg.NRegions = 3
		cfg.MaxTop = 3
		cfg.Workers = workers
		t1, t2 := mustTreeFor(t, p1, cfg), mustTreeFor(t, p2, cfg)
		auto := mustCorr2(t, cfg, KindScalar, KindScalar)
		cross := mustCorr2(t, cfg, KindScalar, KindScalar)
		if err := auto.ProcessAuto(t1); err != nil {
			t.Fatal(err)
		}
		if err := cross.ProcessCross(t1, t2); err != nil {
			t.Fatal(err)
		}
		return auto.Accumulator(), cross.Accumulator()
	}
	seqAuto, seqCross := run(1)
	for _, workers := range []int{2, 5, 64} {
		parAuto, parCross := run(workers)
		compareAccumulators(t, seqAuto, parAuto, 1e-9)
		compareAccumulators(t, seqCross, parCross, 1e-9)
	}
}

// --- Resampling replicas ---

func TestCorr2_ReplicasMatchBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	pts := randomPoints(rng, 150, 20, 4)
	cfg := exactConfig(0.5, 15, 8)
	cfg.NRegions = 4
	cfg.Tree.LeafSize = 4
	cfg.Workers = 3
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessAuto(mustTreeFor(t, pts, cfg)); err != nil {
		t.Fatal(err)
	}
	checkBruteKK(t, bruteKK(kk.Binning(), Flat{}, 4, pts, nil), kk.Accumulator())
}

func TestCorr2_ReplicasSplitMixedCells(t *testing.T) {
	// Two clumps of coincident points become size-zero leaves spanning
	// several regions, so every binned pair is an approximated cell pair.
	var pts []Point
	for i, reg := range []int{0, 1, 0, NoRegion} {
		pts = append(pts, Point{Pos: r3.Vec{}, Value: complex(float64(i+1), 0), Weight: float64(i + 1), Region: reg})
	}
	for i, reg := range []int{1, 1, 2} {
		pts = append(pts, Point{Pos: r3.Vec{X: 5}, Value: complex(-float64(i+2), 0), Weight: 0.5, Region: reg})
	}
	cfg := exactConfig(1, 10, 2)
	cfg.NRegions = 3
	tree := mustTreeFor(t, pts, cfg)
	if tree.Root().Region() != MixedRegion {
		t.Fatal("root should span several regions")
	}
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessAuto(tree); err != nil {
		t.Fatal(err)
	}
	want := bruteKK(kk.Binning(), Flat{}, 3, pts, nil)
	if total := want.count[0] + want.count[1]; total != 12 {
		t.Fatalf("reference binned %v pairs, want 12", total)
	}
	checkBruteKK(t, want, kk.Accumulator())

	for r := 0; r < 3; r++ {
		lo, err := kk.Accumulator().LeaveOut(r)
		if err != nil {
			t.Fatal(err)
		}
		for k := range lo.Count() {
			if got, w := lo.Count()[k], want.count[k]-want.repCount[r][k]; got != w {
				t.Errorf("leave out %d: count[%d] = %v, want %v", r, k, got, w)
			}
		}
	}
}

// --- Spin-2 ---

func TestCorr2_TangentialShear(t *testing.T) {
	cfg := exactConfig(1, 3, 1)
	lens := []Point{{Pos: r3.Vec{}, Weight: 1, Region: NoRegion}}
	sources := []Point{
		{Pos: r3.Vec{X: 2}, Value: -0.1, Weight: 1, Region: NoRegion},
		{Pos: r3.Vec{Y: 2}, Value: 0.1, Weight: 1, Region: NoRegion},
		{Pos: r3.Vec{X: -2}, Value: complex(0, 0.3), Weight: 0, Region: NoRegion},
	}
	ng := mustCorr2(t, cfg, KindCount, KindSpin2)
	if err := ng.ProcessCross(mustTreeFor(t, lens, cfg), mustTreeFor(t, sources, cfg)); err != nil {
		t.Fatal(err)
	}
	res := ng.Finalize(0, 0)
	if !almostEqual(res.Stat[0][0], 0.1, floatTol) || !almostEqual(res.Stat[1][0], 0, floatTol) {
		t.Errorf("tangential, cross shear = %v, %v, want 0.1, 0", res.Stat[0][0], res.Stat[1][0])
	}
	if res.Count[0] != 3 || res.Weight[0] != 2 {
		t.Errorf("count, weight = %v, %v, want 3, 2", res.Count[0], res.Weight[0])
	}
}

func rotatePoints(pts []Point, theta float64) []Point {
	c, s := math.Cos(theta), math.Sin(theta)
	spin := cmplx.Exp(complex(0, 2*theta))
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = p
		out[i].Pos = r3.Vec{X: c*p.Pos.X - s*p.Pos.Y, Y: s*p.Pos.X + c*p.Pos.Y}
		out[i].Value = p.Value * spin
	}
	return out
}

func TestCorr2_ShearRotationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	pts := randomPoints(rng, 120, 10, 0)
	run := func(pts []Point) *Accumulator {
		cfg := exactConfig(0.5, 8, 5)
		gg := mustCorr2(t, cfg, KindSpin2, KindSpin2)
		if err := gg.ProcessAuto(mustTreeFor(t, pts, cfg)); err != nil {
			t.Fatal(err)
		}
		return gg.Accumulator()
	}
	base := run(pts)
	rotated := run(rotatePoints(pts, 0.7))
	for i, name := range ShapeGG.StatNames() {
		compareSlices(t, name, base.Stat(i), rotated.Stat(i), 1e-8)
	}
	compareSlices(t, "count", base.Count(), rotated.Count(), 0)
}

// --- Other entry points ---

func TestCorr2_Pairwise(t *testing.T) {
	cfg := exactConfig(0.5, 2, 1)
	cfg.NRegions = 2
	p1 := []Point{
		{Pos: r3.Vec{}, Value: 2, Weight: 1, Region: 0},
		{Pos: r3.Vec{}, Value: 5, Weight: 1, Region: 0},
	}
	p2 := []Point{
		{Pos: r3.Vec{X: 1}, Value: 3, Weight: 1, Region: 1},
		{Pos: r3.Vec{X: 50}, Value: 7, Weight: 1, Region: 1},
	}
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessPairwise(p1, p2); err != nil {
		t.Fatal(err)
	}
	acc := kk.Accumulator()
	if acc.Count()[0] != 1 || acc.Excluded != 1 || !almostEqual(acc.Stat(0)[0], 6, floatTol) {
		t.Errorf("count=%v excluded=%v xi=%v, want 1, 1, 6", acc.Count()[0], acc.Excluded, acc.Stat(0)[0])
	}
	if acc.ReplicaCount(0)[0] != 1 || acc.ReplicaCount(1)[0] != 1 {
		t.Errorf("replica counts = %v, %v, want 1, 1", acc.ReplicaCount(0)[0], acc.ReplicaCount(1)[0])
	}
	if err := kk.ProcessPairwise(p1, p2[:1]); err == nil {
		t.Error("length mismatch accepted")
	}
	p2[0].Region = 2
	if err := kk.ProcessPairwise(p1, p2); !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("region 2 error = %v, want ErrRegionOutOfRange", err)
	}
	p2[0].Region = MixedRegion
	if err := kk.ProcessPairwise(p1, p2); !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("region %d error = %v, want ErrRegionOutOfRange", MixedRegion, err)
	}

	// Negative regions other than NoRegion are rejected without replicas too.
	plain := mustCorr2(t, exactConfig(0.5, 2, 1), KindScalar, KindScalar)
	if err := plain.ProcessPairwise(p1, p2); !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("no replicas, region %d error = %v, want ErrRegionOutOfRange", MixedRegion, err)
	}
	if plain.Accumulator().Count()[0] != 0 {
		t.Error("rejected input was accumulated")
	}
}

func TestCorr2_RparWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	pts := make([]Point, 200)
	for i := range pts {
		pts[i] = Point{
			Pos:    r3.Vec{X: rng.Float64() * 10, Y: rng.Float64() * 10, Z: 1000 + rng.Float64()*20},
			Value:  complex(rng.NormFloat64(), 0),
			Weight: 1,
			Region: NoRegion,
		}
	}
	cfg := exactConfig(0.5, 8, 4)
	cfg.MetricName = "Rperp"
	cfg.MinRpar, cfg.MaxRpar = -5, 5
	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	if err := kk.ProcessAuto(mustTreeFor(t, pts, cfg)); err != nil {
		t.Fatal(err)
	}
	checkBruteKK(t, bruteKK(kk.Binning(), Rperp{}, 0, pts, nil), kk.Accumulator())
}

func TestCorr2_BorrowedStorage(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	pts := randomPoints(rng, 100, 20, 0)
	cfg := exactConfig(0.5, 15, 6)
	tree := mustTreeFor(t, pts, cfg)

	nb := 6
	buf := Buffers{
		Stat:     [][]float64{make([]float64, nb)},
		MeanR:    make([]float64, nb),
		MeanLogR: make([]float64, nb),
		Weight:   make([]float64, nb),
		Count:    make([]float64, nb),
	}
	acc, err := NewBorrowedAccumulator(ShapeKK, nb, 0, buf)
	if err != nil {
		t.Fatal(err)
	}
	borrowed, err := NewCorr2Into(cfg, KindScalar, KindScalar, acc)
	if err != nil {
		t.Fatalf("NewCorr2Into: %v", err)
	}
	owned := mustCorr2(t, cfg, KindScalar, KindScalar)
	for _, c := range []*Corr2{borrowed, owned} {
		if err := c.ProcessAuto(tree); err != nil {
			t.Fatal(err)
		}
	}
	compareSlices(t, "xi", owned.Accumulator().Stat(0), buf.Stat[0], 0)
	compareSlices(t, "count", owned.Accumulator().Count(), buf.Count, 0)
}

func TestNewCorr2Into_ShapeMismatch(t *testing.T) {
	cfg := exactConfig(0.5, 15, 6)
	tests := []struct {
		name  string
		shape Shape
		nbins int
		nreg  int
	}{
		{"kinds", ShapeNK, 6, 0},
		{"bins", ShapeKK, 5, 0},
		{"regions", ShapeKK, 6, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := mustAccumulator(t, tt.shape, tt.nbins, tt.nreg)
			if _, err := NewCorr2Into(cfg, KindScalar, KindScalar, acc); !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("error = %v, want ErrShapeMismatch", err)
			}
		})
	}
	if _, err := NewCorr2Into(cfg, KindScalar, KindScalar, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("nil accumulator error = %v", err)
	}
}

func TestCorr2_Errors(t *testing.T) {
	cfg := exactConfig(0.5, 15, 6)
	pts := []Point{{Pos: r3.Vec{X: 1}, Weight: 1, Region: 2}}

	kk := mustCorr2(t, cfg, KindScalar, KindScalar)
	euclid := mustTree(t, pts, Euclidean{}, TreeConfig{})
	if err := kk.ProcessAuto(euclid); !errors.Is(err, ErrUnsupportedMetric) {
		t.Errorf("metric mismatch error = %v", err)
	}

	withRegions := cfg
	withRegions.NRegions = 2
	kr := mustCorr2(t, withRegions, KindScalar, KindScalar)
	if err := kr.ProcessAuto(mustTreeFor(t, pts, cfg)); !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("region error = %v, want ErrRegionOutOfRange", err)
	}

	nk := mustCorr2(t, cfg, KindCount, KindScalar)
	if err := nk.ProcessAuto(mustTreeFor(t, pts, cfg)); !errors.Is(err, ErrInvalidKinds) {
		t.Errorf("NK auto error = %v, want ErrInvalidKinds", err)
	}

	badCfg := cfg
	badCfg.MetricName = "Euclidean"
	if _, err := NewCorr2(badCfg, KindSpin2, KindSpin2); !errors.Is(err, ErrUnsupportedMetric) {
		t.Errorf("GG on Euclidean error = %v, want ErrUnsupportedMetric", err)
	}
	window := cfg
	window.MinRpar, window.MaxRpar = -1, 1
	if _, err := NewCorr2(window, KindCount, KindCount); !errors.Is(err, ErrUnsupportedMetric) {
		t.Errorf("Rpar window on Flat error = %v, want ErrUnsupportedMetric", err)
	}
	if _, err := NewCorr2(cfg, KindSpin2, KindScalar); !errors.Is(err, ErrInvalidKinds) {
		t.Errorf("GK error = %v, want ErrInvalidKinds", err)
	}
	reversed := cfg
	reversed.MinSep, reversed.MaxSep = 10, 1
	if _, err := NewCorr2(reversed, KindCount, KindCount); !errors.Is(err, ErrInvalidBinning) {
		t.Errorf("reversed separations error = %v, want ErrInvalidBinning", err)
	}
}
