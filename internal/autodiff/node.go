package autodiff

import (
	"weak"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/varq-ml/varq/internal/matrix"
)

// node is one vertex of the computation graph. Operand edges own their
// targets; consumer back-references are weak so that a subexpression graph
// is collected as soon as the last external Var handle and the last owning
// parent disappear. A node's cached value is valid only immediately after an
// evaluation pass visits it; mutating an ancestor leaf does not invalidate
// it.
type node struct {
	op        OpKind
	value     *mat.Dense
	trainable bool
	operands  []Var

	// consumers records which nodes were built on top of this one. The
	// entries never keep a consumer alive and may dangle after collection;
	// liveConsumers compacts them on read.
	consumers []weak.Pointer[node]

	// rows and cols are fixed at construction from the operand dimensions,
	// so shape errors surface when an expression is composed rather than
	// when it is evaluated.
	rows, cols int

	axis    int          // stack axis, 0 or 1
	index   int          // subscript position
	mask    *mat.Dense   // dropout mask captured by the latest evaluation
	quantum *quantumNode // expectation / measuredProb payload
}

// newLeaf creates a value node with no operands.
func newLeaf(value *mat.Dense, trainable bool) *node {
	r, c := value.Dims()
	return &node{
		op:        OpLeaf,
		value:     matrix.Clone(value),
		trainable: trainable,
		rows:      r,
		cols:      c,
	}
}

// build validates nd, fixes its output dimensions, and registers it as a
// consumer of each operand. Every operator constructor funnels through here.
func build(nd *node) (Var, error) {
	if want := nd.op.arity(); want >= 0 && len(nd.operands) != want {
		return Var{}, errors.Wrapf(ErrConstruction, "%s: %d operands, want %d",
			nd.op, len(nd.operands), want)
	}
	for _, o := range nd.operands {
		if o.n == nil {
			return Var{}, errors.Wrapf(ErrConstruction, "%s: nil operand", nd.op)
		}
	}
	if err := nd.fixDims(); err != nil {
		return Var{}, err
	}
	for _, o := range nd.operands {
		o.n.consumers = append(o.n.consumers, weak.Make(nd))
	}
	return Var{n: nd}, nil
}

// fixDims checks operand shape compatibility for nd's operator and records
// the output dimensions.
func (nd *node) fixDims() error {
	dims := func(i int) (int, int) { return nd.operands[i].n.rows, nd.operands[i].n.cols }

	switch nd.op {
	case OpAdd, OpSub, OpMul, OpDiv:
		ar, ac := dims(0)
		br, bc := dims(1)
		switch {
		case ar == br && ac == bc:
			nd.rows, nd.cols = ar, ac
		case ar == 1 && ac == 1:
			nd.rows, nd.cols = br, bc
		case br == 1 && bc == 1:
			nd.rows, nd.cols = ar, ac
		default:
			return errors.Wrapf(ErrConstruction,
				"%s: shapes %dx%d and %dx%d must match or one must be 1x1",
				nd.op, ar, ac, br, bc)
		}

	case OpExp, OpLog, OpSigmoid, OpSoftmax:
		nd.rows, nd.cols = dims(0)

	case OpPow:
		pr, pc := dims(1)
		if pr != 1 || pc != 1 {
			return errors.Wrapf(ErrConstruction, "pow: exponent must be 1x1, got %dx%d", pr, pc)
		}
		nd.rows, nd.cols = dims(0)

	case OpDot:
		ar, ac := dims(0)
		br, bc := dims(1)
		if ac != br {
			return errors.Wrapf(ErrConstruction,
				"dot: inner dimensions disagree, %dx%d by %dx%d", ar, ac, br, bc)
		}
		nd.rows, nd.cols = ar, bc

	case OpInverse:
		r, c := dims(0)
		if r != c {
			return errors.Wrapf(ErrConstruction, "inverse: operand must be square, got %dx%d", r, c)
		}
		nd.rows, nd.cols = r, c

	case OpTranspose:
		r, c := dims(0)
		nd.rows, nd.cols = c, r

	case OpSum:
		nd.rows, nd.cols = 1, 1

	case OpCrossEntropy:
		ar, ac := dims(0)
		br, bc := dims(1)
		if ar != br || ac != bc {
			return errors.Wrapf(ErrConstruction,
				"crossEntropy: prediction %dx%d and label %dx%d must match", ar, ac, br, bc)
		}
		nd.rows, nd.cols = 1, 1

	case OpDropout:
		kr, kc := dims(1)
		if kr != 1 || kc != 1 {
			return errors.Wrapf(ErrConstruction,
				"dropout: keep probability must be 1x1, got %dx%d", kr, kc)
		}
		nd.rows, nd.cols = dims(0)

	case OpStack:
		return nd.fixStackDims()

	case OpSubscript:
		r, c := dims(0)
		if r != 1 && c != 1 {
			return errors.Wrapf(ErrConstruction, "subscript: operand must be a vector, got %dx%d", r, c)
		}
		n := r
		if r == 1 {
			n = c
		}
		if nd.index < 0 || nd.index >= n {
			return errors.Wrapf(ErrBounds, "subscript: index %d outside vector of length %d", nd.index, n)
		}
		nd.rows, nd.cols = 1, 1

	case OpExpectation:
		nd.rows, nd.cols = 1, 1

	case OpMeasuredProb:
		nd.rows, nd.cols = len(nd.quantum.components), 1

	case OpLeaf:
		// Dimensions were taken from the value at construction.

	default:
		return errors.Wrapf(ErrConstruction, "unknown operator %d", nd.op)
	}
	return nil
}

// fixStackDims validates the stack operands against the chosen axis. Every
// dimension except the stacking axis must agree.
func (nd *node) fixStackDims() error {
	if nd.axis != 0 && nd.axis != 1 {
		return errors.Wrapf(ErrConstruction, "stack: axis must be 0 or 1, got %d", nd.axis)
	}
	if len(nd.operands) == 0 {
		return errors.Wrap(ErrConstruction, "stack: no operands")
	}
	rows, cols := nd.operands[0].n.rows, nd.operands[0].n.cols
	for _, o := range nd.operands[1:] {
		r, c := o.n.rows, o.n.cols
		if nd.axis == 0 {
			if c != cols {
				return errors.Wrapf(ErrConstruction,
					"stack: axis 0 operands must share column count, got %d and %d", cols, c)
			}
			rows += r
		} else {
			if r != rows {
				return errors.Wrapf(ErrConstruction,
					"stack: axis 1 operands must share row count, got %d and %d", rows, r)
			}
			cols += c
		}
	}
	nd.rows, nd.cols = rows, cols
	return nil
}

// liveConsumers counts consumers that are still reachable, dropping entries
// whose targets have been collected.
func (nd *node) liveConsumers() int {
	kept := nd.consumers[:0]
	for _, w := range nd.consumers {
		if w.Value() != nil {
			kept = append(kept, w)
		}
	}
	nd.consumers = kept
	return len(kept)
}
