package autodiff

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/varq-ml/varq/internal/matrix"
)

// Var is a value-semantics handle over one graph node. Copying a Var never
// copies the node; every expression referencing a subterm shares it, and
// gradients accumulate across all shared uses. Var is comparable and keys
// the Gradients map by node identity.
//
// Expressions are composed through Var methods and the package-level
// operator constructors. Composition is lazy: no arithmetic happens until an
// Evaluator visits the graph.
//
// Example:
//
//	a := autodiff.ParameterScalar(3)
//	b := autodiff.ConstantScalar(4)
//	aa, _ := a.Mul(a)
//	c, _ := aa.Add(b)
type Var struct {
	n *node
}

// Constant creates an untrainable leaf holding a copy of m.
func Constant(m *mat.Dense) Var {
	return Var{n: newLeaf(m, false)}
}

// ConstantScalar creates an untrainable 1x1 leaf.
func ConstantScalar(v float64) Var {
	return Constant(matrix.Scalar(v))
}

// Parameter creates a trainable leaf holding a copy of m. Trainable leaves
// are the values an optimizer mutates between passes.
func Parameter(m *mat.Dense) Var {
	return Var{n: newLeaf(m, true)}
}

// ParameterScalar creates a trainable 1x1 leaf.
func ParameterScalar(v float64) Var {
	return Parameter(matrix.Scalar(v))
}

// IsZero reports whether v is the zero handle, which refers to no node.
func (v Var) IsZero() bool { return v.n == nil }

// Kind returns the operator kind of the underlying node.
func (v Var) Kind() OpKind { return v.n.op }

// Trainable reports whether v is a trainable leaf.
func (v Var) Trainable() bool { return v.n.op == OpLeaf && v.n.trainable }

// Dims returns the node's output dimensions, fixed at construction.
func (v Var) Dims() (rows, cols int) { return v.n.rows, v.n.cols }

// Value returns the node's cached value: the leaf value for leaves, or the
// result of the latest evaluation pass for operator nodes (nil before the
// first pass). The matrix is shared with the engine and must be treated as
// read-only.
func (v Var) Value() *mat.Dense { return v.n.value }

// Consumers counts the live expressions built directly on top of v. The
// back-references never keep a consumer alive, so the count drops as
// consumer graphs are collected.
func (v Var) Consumers() int { return v.n.liveConsumers() }

// Equal reports whether two handles name the same node. As the one
// exception, untrainable 1x1 constants compare by numeric value, so equal
// scalar literals used in separate expressions match.
func (v Var) Equal(o Var) bool {
	if v.n == o.n {
		return true
	}
	if v.n == nil || o.n == nil {
		return false
	}
	a, b := v.n, o.n
	if a.op == OpLeaf && b.op == OpLeaf && !a.trainable && !b.trainable &&
		a.rows == 1 && a.cols == 1 && b.rows == 1 && b.cols == 1 {
		return a.value.At(0, 0) == b.value.At(0, 0)
	}
	return false
}

// SetValue overwrites a leaf's value in place. The new value must keep the
// leaf's dimensions. Operator nodes cannot be assigned.
func (v Var) SetValue(m *mat.Dense) error {
	if v.n == nil || v.n.op != OpLeaf {
		return errors.Wrap(ErrConstruction, "SetValue: only leaf values can be assigned")
	}
	r, c := m.Dims()
	if r != v.n.rows || c != v.n.cols {
		return errors.Wrapf(ErrConstruction, "SetValue: value is %dx%d, leaf is %dx%d",
			r, c, v.n.rows, v.n.cols)
	}
	v.n.value.Copy(m)
	return nil
}

// SetScalar overwrites a 1x1 leaf's value in place.
func (v Var) SetScalar(x float64) error {
	return v.SetValue(matrix.Scalar(x))
}

// Add composes v + o elementwise. Dimensions must match or one operand must
// be 1x1.
func (v Var) Add(o Var) (Var, error) {
	return build(&node{op: OpAdd, operands: []Var{v, o}})
}

// Sub composes v - o elementwise with the same broadcast rule as Add.
func (v Var) Sub(o Var) (Var, error) {
	return build(&node{op: OpSub, operands: []Var{v, o}})
}

// Mul composes the elementwise product v * o. The matrix product is Dot.
func (v Var) Mul(o Var) (Var, error) {
	return build(&node{op: OpMul, operands: []Var{v, o}})
}

// Div composes the elementwise quotient v / o.
func (v Var) Div(o Var) (Var, error) {
	return build(&node{op: OpDiv, operands: []Var{v, o}})
}

// Pow composes the elementwise power v^p. The exponent must be 1x1 and
// receives no gradient.
func (v Var) Pow(p Var) (Var, error) {
	return build(&node{op: OpPow, operands: []Var{v, p}})
}

// Exp composes the elementwise exponential.
func (v Var) Exp() (Var, error) {
	return build(&node{op: OpExp, operands: []Var{v}})
}

// Log composes the elementwise natural logarithm.
func (v Var) Log() (Var, error) {
	return build(&node{op: OpLog, operands: []Var{v}})
}

// Sigmoid composes the elementwise logistic function 1 / (1 + exp(-x)).
func (v Var) Sigmoid() (Var, error) {
	return build(&node{op: OpSigmoid, operands: []Var{v}})
}

// Softmax composes the normalized exponential. Each row is normalized
// independently; a column vector is normalized along its single column.
func (v Var) Softmax() (Var, error) {
	return build(&node{op: OpSoftmax, operands: []Var{v}})
}

// Dot composes the matrix product v @ o. Inner dimensions must agree.
func (v Var) Dot(o Var) (Var, error) {
	return build(&node{op: OpDot, operands: []Var{v, o}})
}

// Transpose composes the matrix transpose.
func (v Var) Transpose() (Var, error) {
	return build(&node{op: OpTranspose, operands: []Var{v}})
}

// Inverse composes the matrix inverse. The operand must be square; a
// singular value surfaces as a domain error at evaluation.
func (v Var) Inverse() (Var, error) {
	return build(&node{op: OpInverse, operands: []Var{v}})
}

// Sum composes the 1x1 total over all elements of v.
func (v Var) Sum() (Var, error) {
	return build(&node{op: OpSum, operands: []Var{v}})
}

// Stack concatenates operands along axis: 0 stacks rows, 1 appends columns.
// Every dimension except the stacking axis must agree.
func Stack(axis int, vs ...Var) (Var, error) {
	operands := make([]Var, len(vs))
	copy(operands, vs)
	return build(&node{op: OpStack, axis: axis, operands: operands})
}

// Subscript selects element i of a vector operand as a 1x1 value. The index
// is checked against the operand's length at construction.
func Subscript(v Var, i int) (Var, error) {
	return build(&node{op: OpSubscript, index: i, operands: []Var{v}})
}

// CrossEntropy composes the scalar -sum(label * log(pred)).
func CrossEntropy(pred, label Var) (Var, error) {
	return build(&node{op: OpCrossEntropy, operands: []Var{pred, label}})
}

// Dropout composes elementwise masking of v: each element survives with
// probability keep (a 1x1 value) and is scaled by 1/keep, the rest become
// zero. The mask is drawn from the evaluator's random source on every
// forward pass and reused by the matching backward pass.
func Dropout(v, keep Var) (Var, error) {
	return build(&node{op: OpDropout, operands: []Var{v, keep}})
}

// TrainableLeaves collects the distinct trainable leaves reachable from
// root, in first-visit order.
func TrainableLeaves(root Var) []Var {
	var out []Var
	seen := make(map[*node]bool)
	var walk func(nd *node)
	walk = func(nd *node) {
		if nd == nil || seen[nd] {
			return
		}
		seen[nd] = true
		if nd.op == OpLeaf {
			if nd.trainable {
				out = append(out, Var{n: nd})
			}
			return
		}
		for _, o := range nd.operands {
			walk(o.n)
		}
	}
	walk(root.n)
	return out
}
