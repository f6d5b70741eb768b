package typechecker

import "fmt"

// ShapeKind tags the shape union.
type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	ShapeScalar
	ShapeVector
	ShapeMatrix
	ShapeOperator // square, Hermitian-constrained
	ShapeDensity  // square, PSD + trace-one
	ShapeUnitary  // square
	ShapeChannel  // CPTP map on dim-dimensional operators
	ShapeMeasurement
)

// ScalarKind refines a scalar shape.
type ScalarKind int

const (
	NumUnknown ScalarKind = iota
	NumReal
	NumComplex
)

// Shape is the inferred shape of an expression. Rows/Cols of 0 mean the
// dimension is symbolic (an operator declared without a dimension).
type Shape struct {
	Kind     ShapeKind
	Rows     int
	Cols     int
	Num      ScalarKind
	Outcomes int // measurement outcome count
}

func Scalar(num ScalarKind) Shape { return Shape{Kind: ShapeScalar, Num: num} }

func VectorOf(dim int) Shape { return Shape{Kind: ShapeVector, Rows: dim, Cols: 1} }

func MatrixOf(rows, cols int) Shape { return Shape{Kind: ShapeMatrix, Rows: rows, Cols: cols} }

func OperatorOf(dim int) Shape { return Shape{Kind: ShapeOperator, Rows: dim, Cols: dim} }

func DensityOf(dim int) Shape { return Shape{Kind: ShapeDensity, Rows: dim, Cols: dim} }

func UnitaryOf(dim int) Shape { return Shape{Kind: ShapeUnitary, Rows: dim, Cols: dim} }

func ChannelOf(dim int) Shape { return Shape{Kind: ShapeChannel, Rows: dim, Cols: dim} }

func MeasurementOf(n, dim int) Shape {
	return Shape{Kind: ShapeMeasurement, Rows: dim, Cols: dim, Outcomes: n}
}

func (s Shape) String() string {
	switch s.Kind {
	case ShapeScalar:
		switch s.Num {
		case NumReal:
			return "real scalar"
		case NumComplex:
			return "complex scalar"
		default:
			return "scalar"
		}
	case ShapeVector:
		if s.Rows == 0 {
			return "vector"
		}
		return fmt.Sprintf("vector(%d)", s.Rows)
	case ShapeMatrix:
		if s.Rows == 0 && s.Cols == 0 {
			return "matrix"
		}
		return fmt.Sprintf("matrix(%dx%d)", s.Rows, s.Cols)
	case ShapeOperator:
		if s.Rows == 0 {
			return "operator"
		}
		return fmt.Sprintf("operator(%d)", s.Rows)
	case ShapeDensity:
		return fmt.Sprintf("density(%d)", s.Rows)
	case ShapeUnitary:
		return fmt.Sprintf("unitary(%d)", s.Rows)
	case ShapeChannel:
		return fmt.Sprintf("channel(%d)", s.Rows)
	case ShapeMeasurement:
		return fmt.Sprintf("measurement(%d outcomes, dim %d)", s.Outcomes, s.Rows)
	default:
		return "unknown"
	}
}

// IsScalar reports whether the shape is a scalar of any numeric kind.
func (s Shape) IsScalar() bool { return s.Kind == ShapeScalar }

// IsMatrixLike reports whether the shape has rows and columns.
func (s Shape) IsMatrixLike() bool {
	switch s.Kind {
	case ShapeMatrix, ShapeOperator, ShapeDensity, ShapeUnitary, ShapeVector:
		return true
	}
	return false
}

// IsSquare reports whether the shape is square. A matrix-like shape with
// symbolic dimensions counts as square only for the operator kinds, which
// are square by construction.
func (s Shape) IsSquare() bool {
	switch s.Kind {
	case ShapeOperator, ShapeDensity, ShapeUnitary:
		return true
	case ShapeMatrix:
		return s.Rows != 0 && s.Rows == s.Cols
	}
	return false
}

// Dim returns the square dimension, 0 when symbolic or non-square.
func (s Shape) Dim() int {
	if s.IsSquare() {
		return s.Rows
	}
	return 0
}

// sameDims reports whether two matrix-like shapes agree dimensionally,
// treating a symbolic (zero) dimension as compatible with anything.
func sameDims(a, b Shape) bool {
	if a.Rows != 0 && b.Rows != 0 && a.Rows != b.Rows {
		return false
	}
	if a.Cols != 0 && b.Cols != 0 && a.Cols != b.Cols {
		return false
	}
	return true
}

// joinNum merges two scalar refinements: complex absorbs real.
func joinNum(a, b ScalarKind) ScalarKind {
	if a == NumComplex || b == NumComplex {
		return NumComplex
	}
	if a == NumReal && b == NumReal {
		return NumReal
	}
	return NumUnknown
}
