package treecorr

import "errors"

var (
	// ErrInvalidBinning is returned when binning parameters cannot describe
	// a usable set of bins.
	ErrInvalidBinning = errors.New("treecorr: invalid binning")

	// ErrInvalidKinds is returned for kind combinations that have no
	// accumulator layout.
	ErrInvalidKinds = errors.New("treecorr: invalid kinds")

	// ErrShapeMismatch is returned when two accumulators that do not share a
	// layout are merged or copied.
	ErrShapeMismatch = errors.New("treecorr: accumulator shape mismatch")

	// ErrRegionOutOfRange is returned when a point carries a resampling region
	// index that the accumulator has no replica for.
	ErrRegionOutOfRange = errors.New("treecorr: region index out of range")

	// ErrUnsupportedMetric is returned when the metric cannot provide what the
	// correlation needs (e.g. a shear projection angle).
	ErrUnsupportedMetric = errors.New("treecorr: unsupported metric")
)
