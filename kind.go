package treecorr

import "fmt"

// Kind is the semantic type of the per-point value of a field.
type Kind int

const (
	// KindCount fields carry no value; only positions and weights matter.
	KindCount Kind = iota
	// KindScalar fields carry a real value in the real part of Point.Value.
	KindScalar
	// KindSpin2 fields carry a complex spin-2 value (e.g. shear g1 + i g2).
	KindSpin2
)

// String returns the one-letter code used in correlation names (N, K, G).
func (k Kind) String() string {
	switch k {
	case KindCount:
		return "N"
	case KindScalar:
		return "K"
	case KindSpin2:
		return "G"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) valid() bool { return k >= KindCount && k <= KindSpin2 }

// Shape identifies one of the fixed accumulator layouts. The layout depends
// only on how many spin-2 and scalar fields take part, so it is chosen once
// when an engine is built and never per pair.
type Shape int

const (
	ShapeNN Shape = iota
	ShapeNK
	ShapeKK
	ShapeNG
	ShapeKG
	ShapeGG
	ShapeNNN
	ShapeNNK
	ShapeNKK
	ShapeKKK
	ShapeNNG
	ShapeNKG
	ShapeKKG
	ShapeNGG
	ShapeKGG
	ShapeGGG
)

var shapeStatNames = map[Shape][]string{
	ShapeNN:  nil,
	ShapeNK:  {"xi"},
	ShapeKK:  {"xi"},
	ShapeNG:  {"xi", "xi_im"},
	ShapeKG:  {"xi", "xi_im"},
	ShapeGG:  {"xip", "xip_im", "xim", "xim_im"},
	ShapeNNN: nil,
	ShapeNNK: {"zeta"},
	ShapeNKK: {"zeta"},
	ShapeKKK: {"zeta"},
	ShapeNNG: {"zeta", "zeta_im"},
	ShapeNKG: {"zeta", "zeta_im"},
	ShapeKKG: {"zeta", "zeta_im"},
	ShapeNGG: {"zetap", "zetap_im", "zetam", "zetam_im"},
	ShapeKGG: {"zetap", "zetap_im", "zetam", "zetam_im"},
	ShapeGGG: {"gam0", "gam0_im", "gam1", "gam1_im", "gam2", "gam2_im", "gam3", "gam3_im"},
}

var shapeNames = [...]string{
	"NN", "NK", "KK", "NG", "KG", "GG",
	"NNN", "NNK", "NKK", "KKK", "NNG", "NKG", "KKG", "NGG", "KGG", "GGG",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return shapeNames[s]
}

// NumStats returns the number of real statistic arrays the layout needs.
func (s Shape) NumStats() int { return len(shapeStatNames[s]) }

// StatNames returns the names of the statistic arrays in storage order.
func (s Shape) StatNames() []string {
	names := shapeStatNames[s]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// IsTriple reports whether the layout belongs to a 3-point correlation.
func (s Shape) IsTriple() bool { return s >= ShapeNNN }

// PairShape returns the accumulator layout for a 2-point correlation of the
// given kinds. Kinds must be in canonical order (N <= K <= G).
func PairShape(k1, k2 Kind) (Shape, error) {
	if !k1.valid() || !k2.valid() {
		return 0, fmt.Errorf("%w: unknown kind in pair (%d, %d)", ErrInvalidKinds, k1, k2)
	}
	if k1 > k2 {
		return 0, fmt.Errorf("%w: %v%v is not in canonical order, use %v%v and swap the inputs",
			ErrInvalidKinds, k1, k2, k2, k1)
	}
	name := k1.String() + k2.String()
	for s := ShapeNN; s <= ShapeGG; s++ {
		if shapeNames[s] == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: no layout for %s", ErrInvalidKinds, name)
}

// TripleShape returns the accumulator layout for a 3-point correlation of the
// given kinds. Kinds must be in canonical order (N <= K <= G).
func TripleShape(k1, k2, k3 Kind) (Shape, error) {
	if !k1.valid() || !k2.valid() || !k3.valid() {
		return 0, fmt.Errorf("%w: unknown kind in triple (%d, %d, %d)", ErrInvalidKinds, k1, k2, k3)
	}
	if k1 > k2 || k2 > k3 {
		return 0, fmt.Errorf("%w: %v%v%v is not in canonical order", ErrInvalidKinds, k1, k2, k3)
	}
	name := k1.String() + k2.String() + k3.String()
	for s := ShapeNNN; s <= ShapeGGG; s++ {
		if shapeNames[s] == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: no layout for %s", ErrInvalidKinds, name)
}
