package autodiff

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/varq-ml/varq/internal/matrix"
	"github.com/varq-ml/varq/internal/parallel"
)

// Config controls evaluation and differentiation behavior.
type Config struct {
	// Strict makes a zero divisor or a non-positive logarithm input fail
	// with a domain error. When false the IEEE-754 result (infinity or NaN)
	// propagates instead.
	Strict bool

	// Rand drives dropout masks. A nil source falls back to the global
	// math/rand source; set a seeded source for reproducible masks.
	Rand *rand.Rand

	// Parallel batches the independent circuit executions of a
	// parameter-shift sweep. Only exact (shot-free) sweeps fan out, and
	// only when the machine tolerates concurrent calls; shot-based sweeps
	// stay sequential so the sampling stream is reproducible.
	Parallel parallel.Config
}

// DefaultConfig returns strict evaluation with parallel shift sweeps.
func DefaultConfig() Config {
	return Config{
		Strict:   true,
		Parallel: parallel.DefaultConfig(),
	}
}

// Evaluator runs forward and backward passes over an expression graph.
// Traversal is single-threaded and recursive; an Evaluator must not be
// shared between goroutines without external serialization.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator with the given configuration.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Eval computes root's value, evaluating every reachable node at most once.
// The pass is fresh each call: no results are reused from earlier calls,
// and each visited node's cached value is overwritten.
func (e *Evaluator) Eval(root Var) (*mat.Dense, error) {
	if root.n == nil {
		return nil, errors.Wrap(ErrConstruction, "Eval: zero handle")
	}
	seen := make(map[*node]bool)
	if err := e.eval(root.n, seen); err != nil {
		return nil, err
	}
	return root.n.value, nil
}

func (e *Evaluator) eval(nd *node, seen map[*node]bool) error {
	if seen[nd] {
		return nil
	}
	seen[nd] = true
	if nd.op == OpLeaf {
		return nil
	}
	for _, o := range nd.operands {
		if err := e.eval(o.n, seen); err != nil {
			return err
		}
	}
	v, err := e.forward(nd)
	if err != nil {
		return err
	}
	nd.value = v
	if klog.V(2).Enabled() {
		klog.Infof("eval %s -> %dx%d", nd.op, nd.rows, nd.cols)
	}
	return nil
}

// forward applies nd's operator to its operands' current values.
func (e *Evaluator) forward(nd *node) (*mat.Dense, error) {
	x := func(i int) *mat.Dense { return nd.operands[i].n.value }

	switch nd.op {
	case OpAdd:
		return matrix.Add(x(0), x(1))

	case OpSub:
		return matrix.Sub(x(0), x(1))

	case OpMul:
		return matrix.MulElem(x(0), x(1))

	case OpDiv:
		if e.cfg.Strict {
			if i, j, ok := findZero(x(1)); ok {
				return nil, errors.Wrapf(ErrDomain, "div: zero divisor at (%d,%d)", i, j)
			}
		}
		return matrix.DivElem(x(0), x(1))

	case OpExp:
		return matrix.Apply(math.Exp, x(0)), nil

	case OpLog:
		if e.cfg.Strict {
			if i, j, ok := findNonPositive(x(0)); ok {
				return nil, errors.Wrapf(ErrDomain, "log: non-positive input at (%d,%d)", i, j)
			}
		}
		return matrix.Apply(math.Log, x(0)), nil

	case OpPow:
		p := x(1).At(0, 0)
		return matrix.Apply(func(v float64) float64 { return math.Pow(v, p) }, x(0)), nil

	case OpDot:
		return matrix.MatMul(x(0), x(1))

	case OpInverse:
		inv, err := matrix.Inverse(x(0))
		if err != nil {
			return nil, errors.Wrapf(ErrDomain, "inverse: %v", err)
		}
		return inv, nil

	case OpTranspose:
		return matrix.Transpose(x(0)), nil

	case OpSum:
		return matrix.Scalar(matrix.Sum(x(0))), nil

	case OpSigmoid:
		return matrix.Apply(sigmoid, x(0)), nil

	case OpSoftmax:
		return softmaxOf(x(0)), nil

	case OpCrossEntropy:
		if e.cfg.Strict {
			if i, j, ok := findNonPositive(x(0)); ok {
				return nil, errors.Wrapf(ErrDomain, "crossEntropy: non-positive prediction at (%d,%d)", i, j)
			}
		}
		logPred := matrix.Apply(math.Log, x(0))
		prod, err := matrix.MulElem(x(1), logPred)
		if err != nil {
			return nil, err
		}
		return matrix.Scalar(-matrix.Sum(prod)), nil

	case OpDropout:
		return e.forwardDropout(nd, x(0), x(1))

	case OpStack:
		return forwardStack(nd)

	case OpSubscript:
		return matrix.Scalar(matrix.VecAt(x(0), nd.index)), nil

	case OpExpectation:
		return e.evalExpectation(nd)

	case OpMeasuredProb:
		return e.evalMeasuredProb(nd)
	}
	return nil, errors.Wrapf(ErrConstruction, "forward: unknown operator %s", nd.op)
}

// forwardDropout draws a fresh keep mask, stores it for the matching
// backward pass, and applies it. Mask entries are 1/keep for survivors and
// 0 for dropped elements, so the expected value is unchanged.
func (e *Evaluator) forwardDropout(nd *node, v, keepVal *mat.Dense) (*mat.Dense, error) {
	keep := keepVal.At(0, 0)
	if keep <= 0 || keep > 1 {
		return nil, errors.Wrapf(ErrDomain, "dropout: keep probability %v outside (0,1]", keep)
	}
	mask := matrix.ZerosLike(v)
	r, c := v.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if e.randFloat() < keep {
				mask.Set(i, j, 1/keep)
			}
		}
	}
	nd.mask = mask
	return matrix.MulElem(v, mask)
}

func forwardStack(nd *node) (*mat.Dense, error) {
	out := matrix.Zeros(nd.rows, nd.cols)
	offset := 0
	for _, o := range nd.operands {
		v := o.n.value
		r, c := v.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if nd.axis == 0 {
					out.Set(offset+i, j, v.At(i, j))
				} else {
					out.Set(i, offset+j, v.At(i, j))
				}
			}
		}
		if nd.axis == 0 {
			offset += r
		} else {
			offset += c
		}
	}
	return out, nil
}

func (e *Evaluator) randFloat() float64 {
	if e.cfg.Rand != nil {
		return e.cfg.Rand.Float64()
	}
	return rand.Float64() //nolint:gosec // statistical use
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// softmaxOf normalizes each row with the usual max shift. A column vector
// is normalized along its single column instead, so both vector
// orientations behave as one distribution.
func softmaxOf(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if c == 1 && r > 1 {
		return matrix.Transpose(softmaxOf(matrix.Transpose(m)))
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		maxV := math.Inf(-1)
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v > maxV {
				maxV = v
			}
		}
		total := 0.0
		for j := 0; j < c; j++ {
			e := math.Exp(m.At(i, j) - maxV)
			out.Set(i, j, e)
			total += e
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)/total)
		}
	}
	return out
}

func findZero(m *mat.Dense) (int, int, bool) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) == 0 {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func findNonPositive(m *mat.Dense) (int, int, bool) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) <= 0 {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
