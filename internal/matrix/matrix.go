// Package matrix provides the 2-D numeric layer for the varq graph engine.
//
// Values are gonum *mat.Dense matrices. Binary elementwise operations accept
// either two matrices of identical dimensions or one matrix and one 1x1
// scalar, which broadcasts against every element. Shape mismatches are
// reported as *ShapeError, never computed through.
package matrix

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ShapeError reports an operand dimension combination an operation cannot
// accept.
type ShapeError struct {
	Op      string // Operation name (e.g., "Dot", "Add")
	A       string // Dimensions of the first operand, as "RxC"
	B       string // Dimensions of the second operand, empty for unary ops
	Details string // Additional details
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.B != "" {
		return fmt.Sprintf("%s: shapes %s and %s: %s", e.Op, e.A, e.B, e.Details)
	}
	return fmt.Sprintf("%s: shape %s: %s", e.Op, e.A, e.Details)
}

// DimsString formats a matrix's dimensions as "RxC" for error reporting.
func DimsString(m *mat.Dense) string {
	r, c := m.Dims()
	return fmt.Sprintf("%dx%d", r, c)
}

// Scalar creates a 1x1 matrix holding v.
func Scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// Vector creates an Nx1 column vector from data.
func Vector(data []float64) *mat.Dense {
	out := mat.NewDense(len(data), 1, nil)
	for i, v := range data {
		out.Set(i, 0, v)
	}
	return out
}

// FromSlice creates a rows x cols matrix from row-major data.
func FromSlice(rows, cols int, data []float64) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("FromSlice: invalid dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, errors.Errorf("FromSlice: %d values for %dx%d matrix", len(data), rows, cols)
	}
	out := mat.NewDense(rows, cols, nil)
	copy(out.RawMatrix().Data, data)
	return out, nil
}

// Zeros creates a rows x cols matrix filled with zeros.
func Zeros(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}

// ZerosLike creates a zero matrix with the same dimensions as m.
func ZerosLike(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	return mat.NewDense(r, c, nil)
}

// OnesLike creates a matrix of ones with the same dimensions as m.
func OnesLike(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	return Full(r, c, 1)
}

// Full creates a rows x cols matrix with every element set to v.
func Full(rows, cols int, v float64) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	data := out.RawMatrix().Data
	for i := range data {
		data[i] = v
	}
	return out
}

// Randn creates a rows x cols matrix with standard normal entries drawn from
// rng. A nil rng falls back to the global math/rand source.
func Randn(rows, cols int, rng *rand.Rand) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	data := out.RawMatrix().Data
	for i := range data {
		if rng != nil {
			data[i] = rng.NormFloat64()
		} else {
			data[i] = rand.NormFloat64() //nolint:gosec // statistical use
		}
	}
	return out
}

// Clone returns a deep copy of m.
func Clone(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.CloneFrom(m)
	return out
}

// IsScalar reports whether m is 1x1.
func IsScalar(m *mat.Dense) bool {
	r, c := m.Dims()
	return r == 1 && c == 1
}

// IsVector reports whether m is a row or column vector.
func IsVector(m *mat.Dense) bool {
	r, c := m.Dims()
	return r == 1 || c == 1
}

// VecLen returns the element count of a row or column vector.
func VecLen(m *mat.Dense) int {
	r, c := m.Dims()
	if r == 1 {
		return c
	}
	return r
}

// VecAt returns element i of a row or column vector.
func VecAt(m *mat.Dense, i int) float64 {
	r, _ := m.Dims()
	if r == 1 {
		return m.At(0, i)
	}
	return m.At(i, 0)
}

// SameDims reports whether a and b share dimensions.
func SameDims(a, b *mat.Dense) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

// elementwise applies f pairwise over a and b with 1x1 broadcast.
func elementwise(op string, a, b *mat.Dense, f func(x, y float64) float64) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	switch {
	case ar == br && ac == bc:
		out := mat.NewDense(ar, ac, nil)
		for i := 0; i < ar; i++ {
			for j := 0; j < ac; j++ {
				out.Set(i, j, f(a.At(i, j), b.At(i, j)))
			}
		}
		return out, nil
	case br == 1 && bc == 1:
		y := b.At(0, 0)
		out := mat.NewDense(ar, ac, nil)
		for i := 0; i < ar; i++ {
			for j := 0; j < ac; j++ {
				out.Set(i, j, f(a.At(i, j), y))
			}
		}
		return out, nil
	case ar == 1 && ac == 1:
		x := a.At(0, 0)
		out := mat.NewDense(br, bc, nil)
		for i := 0; i < br; i++ {
			for j := 0; j < bc; j++ {
				out.Set(i, j, f(x, b.At(i, j)))
			}
		}
		return out, nil
	default:
		return nil, &ShapeError{
			Op:      op,
			A:       DimsString(a),
			B:       DimsString(b),
			Details: "dimensions must match or one operand must be 1x1",
		}
	}
}

// Add computes a + b elementwise with 1x1 broadcast.
func Add(a, b *mat.Dense) (*mat.Dense, error) {
	return elementwise("Add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub computes a - b elementwise with 1x1 broadcast.
func Sub(a, b *mat.Dense) (*mat.Dense, error) {
	return elementwise("Sub", a, b, func(x, y float64) float64 { return x - y })
}

// MulElem computes a * b elementwise with 1x1 broadcast.
func MulElem(a, b *mat.Dense) (*mat.Dense, error) {
	return elementwise("Mul", a, b, func(x, y float64) float64 { return x * y })
}

// DivElem computes a / b elementwise with 1x1 broadcast. Zero divisors
// follow IEEE-754 semantics; callers that need strict domain checking must
// inspect b first.
func DivElem(a, b *mat.Dense) (*mat.Dense, error) {
	return elementwise("Div", a, b, func(x, y float64) float64 { return x / y })
}

// Apply returns f mapped over every element of m.
func Apply(f func(float64) float64, m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
	return out
}

// Scale returns alpha * m.
func Scale(alpha float64, m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.Scale(alpha, m)
	return out
}

// MatMul computes the matrix product a @ b. Inner dimensions must agree.
func MatMul(a, b *mat.Dense) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		return nil, &ShapeError{
			Op:      "Dot",
			A:       DimsString(a),
			B:       DimsString(b),
			Details: "inner dimensions must agree",
		}
	}
	out := mat.NewDense(ar, bc, nil)
	out.Mul(a, b)
	return out, nil
}

// Transpose returns a materialized copy of m's transpose.
func Transpose(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(c, r, nil)
	out.Copy(m.T())
	return out
}

// Inverse computes the inverse of a square matrix. Singular input is
// reported as an error.
func Inverse(m *mat.Dense) (*mat.Dense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, &ShapeError{
			Op:      "Inverse",
			A:       DimsString(m),
			Details: "operand must be square",
		}
	}
	out := mat.NewDense(r, c, nil)
	if err := out.Inverse(m); err != nil {
		return nil, errors.Wrap(err, "Inverse")
	}
	return out, nil
}

// Sum returns the total of all elements of m.
func Sum(m *mat.Dense) float64 {
	return mat.Sum(m)
}

// ReduceLike sums g down to rows x cols. Used to fold a gradient back onto a
// broadcast 1x1 operand; g is returned unchanged when dimensions already
// match.
func ReduceLike(g *mat.Dense, rows, cols int) (*mat.Dense, error) {
	gr, gc := g.Dims()
	if gr == rows && gc == cols {
		return g, nil
	}
	if rows == 1 && cols == 1 {
		return Scalar(mat.Sum(g)), nil
	}
	return nil, &ShapeError{
		Op:      "ReduceLike",
		A:       DimsString(g),
		Details: fmt.Sprintf("cannot reduce to %dx%d", rows, cols),
	}
}
