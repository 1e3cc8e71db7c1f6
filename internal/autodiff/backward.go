package autodiff

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/varq-ml/varq/internal/matrix"
)

// Gradients accumulates backward sweep results keyed by graph value. Entries
// add up across Backward calls until Reset, so several sweeps through shared
// subexpressions can be pooled before an optimizer step.
type Gradients map[Var]*mat.Dense

// NewGradients creates an empty gradient accumulator.
func NewGradients() Gradients {
	return make(Gradients)
}

// Of returns the accumulated gradient of v. A value no sweep has reached
// yields a zero matrix of v's dimensions. When an entry exists the live
// accumulator is returned, not a copy.
func (g Gradients) Of(v Var) *mat.Dense {
	if v.n == nil {
		return nil
	}
	if m, ok := g[v]; ok {
		return m
	}
	return matrix.Zeros(v.n.rows, v.n.cols)
}

// Reset drops every accumulated gradient.
func (g Gradients) Reset() {
	clear(g)
}

func (g Gradients) add(v Var, m *mat.Dense) {
	if cur, ok := g[v]; ok {
		cur.Add(cur, m)
		return
	}
	g[v] = m
}

type backwardConfig struct {
	seed     *mat.Dense
	restrict []Var
}

// BackwardOption adjusts a single backward sweep.
type BackwardOption func(*backwardConfig)

// WithSeed replaces the implicit all-ones adjoint of the root. The seed must
// match the root's dimensions.
func WithSeed(seed *mat.Dense) BackwardOption {
	return func(c *backwardConfig) { c.seed = seed }
}

// RestrictTo limits recording to the given values and skips every part of
// the graph that cannot reach one of them. The recorded gradients equal the
// unrestricted ones; restriction saves work, it does not change meaning.
func RestrictTo(vs ...Var) BackwardOption {
	return func(c *backwardConfig) { c.restrict = append(c.restrict, vs...) }
}

// Backward propagates adjoints from root down to the leaves, adding results
// into grads. Without restriction every reachable leaf is recorded; with
// RestrictTo exactly the restriction members are. The graph must have been
// evaluated since construction, and each node is expanded only after all of
// its consumers on useful paths have contributed, so shared subexpressions
// are differentiated once.
func (e *Evaluator) Backward(root Var, grads Gradients, opts ...BackwardOption) error {
	if root.n == nil {
		return errors.Wrap(ErrConstruction, "backward: zero root handle")
	}
	if grads == nil {
		return errors.Wrap(ErrConstruction, "backward: nil gradient accumulator")
	}
	var cfg backwardConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	seed := cfg.seed
	if seed == nil {
		seed = matrix.Full(root.n.rows, root.n.cols, 1)
	} else {
		if r, c := seed.Dims(); r != root.n.rows || c != root.n.cols {
			return errors.Wrapf(ErrConstruction,
				"backward: seed is %dx%d, root is %dx%d", r, c, root.n.rows, root.n.cols)
		}
		seed = matrix.Clone(seed)
	}

	reachable, err := collectReachable(root.n)
	if err != nil {
		return err
	}

	restricted := len(cfg.restrict) > 0
	members := make(map[*node]bool, len(cfg.restrict))
	for _, v := range cfg.restrict {
		if v.n == nil {
			return errors.Wrap(ErrConstruction, "backward: zero handle in restriction")
		}
		members[v.n] = true
	}

	useful := reachable
	if restricted {
		useful = markUseful(root.n, members)
		if !useful[root.n] {
			// No member below the root; Of reports zeros for all of them.
			return nil
		}
	}

	// Expected contribution count per node: one per operand slot of each
	// useful consumer, plus the seed for the root.
	counts := make(map[*node]int, len(useful))
	for n := range useful {
		for _, o := range n.operands {
			if useful[o.n] {
				counts[o.n]++
			}
		}
	}

	pending := map[*node]*mat.Dense{root.n: seed}
	queue := []*node{root.n}
	swept := 0
	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		swept++

		g := pending[n]
		delete(pending, n)
		if g == nil {
			g = matrix.Zeros(n.rows, n.cols)
		}
		if restricted && members[n] || !restricted && n.op == OpLeaf {
			grads.add(Var{n: n}, g)
		}
		if len(n.operands) == 0 {
			continue
		}

		needed := func(i int) bool { return useful[n.operands[i].n] }
		ps, err := e.partials(n, g, needed)
		if err != nil {
			return err
		}
		for i, o := range n.operands {
			c := o.n
			if !useful[c] {
				continue
			}
			if ps[i] != nil {
				if buf := pending[c]; buf == nil {
					pending[c] = matrix.Clone(ps[i])
				} else {
					buf.Add(buf, ps[i])
				}
			}
			counts[c]--
			if counts[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("backward: swept %d of %d reachable nodes", swept, len(reachable))
	}
	return nil
}

// collectReachable gathers the root's transitive operands and verifies the
// graph carries values from a prior evaluation.
func collectReachable(root *node) (map[*node]bool, error) {
	seen := make(map[*node]bool)
	var visit func(*node) error
	visit = func(n *node) error {
		if seen[n] {
			return nil
		}
		seen[n] = true
		if n.op != OpLeaf && n.value == nil {
			return errors.Wrapf(ErrNotEvaluated, "%s node has no value, evaluate first", n.op)
		}
		for _, o := range n.operands {
			if err := visit(o.n); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return seen, nil
}

// markUseful flags every node below root from which a restriction member is
// reachable. Adjoints only ever need to flow through flagged nodes.
func markUseful(root *node, members map[*node]bool) map[*node]bool {
	memo := make(map[*node]bool)
	useful := make(map[*node]bool)
	var visit func(*node) bool
	visit = func(n *node) bool {
		if u, ok := memo[n]; ok {
			return u
		}
		u := members[n]
		for _, o := range n.operands {
			if visit(o.n) {
				u = true
			}
		}
		memo[n] = u
		if u {
			useful[n] = true
		}
		return u
	}
	visit(root)
	return useful
}

// partials computes the adjoint of every operand of nd given the adjoint g
// of nd itself. A nil entry means the operand receives no contribution from
// this node. Returned matrices may alias g or operand values; the sweep
// clones before accumulating. needed reports whether an operand's adjoint
// will be consumed, which lets the circuit rules skip machine executions.
func (e *Evaluator) partials(nd *node, g *mat.Dense, needed func(int) bool) ([]*mat.Dense, error) {
	val := func(i int) *mat.Dense { return nd.operands[i].n.value }
	like := func(m *mat.Dense, i int) (*mat.Dense, error) {
		o := nd.operands[i].n
		return matrix.ReduceLike(m, o.rows, o.cols)
	}

	switch nd.op {
	case OpAdd:
		pa, err := like(g, 0)
		if err != nil {
			return nil, err
		}
		pb, err := like(g, 1)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{pa, pb}, nil

	case OpSub:
		pa, err := like(g, 0)
		if err != nil {
			return nil, err
		}
		pb, err := like(matrix.Scale(-1, g), 1)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{pa, pb}, nil

	case OpMul:
		gb, err := matrix.MulElem(g, val(1))
		if err != nil {
			return nil, err
		}
		pa, err := like(gb, 0)
		if err != nil {
			return nil, err
		}
		ga, err := matrix.MulElem(g, val(0))
		if err != nil {
			return nil, err
		}
		pb, err := like(ga, 1)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{pa, pb}, nil

	case OpDiv:
		q, err := matrix.DivElem(g, val(1))
		if err != nil {
			return nil, err
		}
		pa, err := like(q, 0)
		if err != nil {
			return nil, err
		}
		num, err := matrix.MulElem(g, val(0))
		if err != nil {
			return nil, err
		}
		den, err := matrix.MulElem(val(1), val(1))
		if err != nil {
			return nil, err
		}
		frac, err := matrix.DivElem(num, den)
		if err != nil {
			return nil, err
		}
		pb, err := like(matrix.Scale(-1, frac), 1)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{pa, pb}, nil

	case OpExp:
		p, err := matrix.MulElem(g, nd.value)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{p}, nil

	case OpLog:
		p, err := matrix.DivElem(g, val(0))
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{p}, nil

	case OpPow:
		p := val(1).At(0, 0)
		deriv := matrix.Apply(func(x float64) float64 { return p * math.Pow(x, p-1) }, val(0))
		pa, err := matrix.MulElem(g, deriv)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{pa, nil}, nil

	case OpDot:
		pa, err := matrix.MatMul(g, matrix.Transpose(val(1)))
		if err != nil {
			return nil, err
		}
		pb, err := matrix.MatMul(matrix.Transpose(val(0)), g)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{pa, pb}, nil

	case OpInverse:
		it := matrix.Transpose(nd.value)
		left, err := matrix.MatMul(it, g)
		if err != nil {
			return nil, err
		}
		full, err := matrix.MatMul(left, it)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{matrix.Scale(-1, full)}, nil

	case OpTranspose:
		return []*mat.Dense{matrix.Transpose(g)}, nil

	case OpSum:
		o := nd.operands[0].n
		return []*mat.Dense{matrix.Full(o.rows, o.cols, g.At(0, 0))}, nil

	case OpSigmoid:
		ds := matrix.Apply(func(s float64) float64 { return s * (1 - s) }, nd.value)
		p, err := matrix.MulElem(g, ds)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{p}, nil

	case OpSoftmax:
		return []*mat.Dense{softmaxBackward(g, nd.value)}, nil

	case OpCrossEntropy:
		g00 := g.At(0, 0)
		ratio, err := matrix.DivElem(val(1), val(0))
		if err != nil {
			return nil, err
		}
		ppred := matrix.Scale(-g00, ratio)
		plabel := matrix.Scale(-g00, matrix.Apply(math.Log, val(0)))
		return []*mat.Dense{ppred, plabel}, nil

	case OpDropout:
		p, err := matrix.MulElem(g, nd.mask)
		if err != nil {
			return nil, err
		}
		return []*mat.Dense{p, nil}, nil

	case OpStack:
		ps := make([]*mat.Dense, len(nd.operands))
		off := 0
		for i, o := range nd.operands {
			if nd.axis == 0 {
				ps[i] = g.Slice(off, off+o.n.rows, 0, nd.cols).(*mat.Dense)
				off += o.n.rows
			} else {
				ps[i] = g.Slice(0, nd.rows, off, off+o.n.cols).(*mat.Dense)
				off += o.n.cols
			}
		}
		return ps, nil

	case OpSubscript:
		o := nd.operands[0].n
		p := matrix.Zeros(o.rows, o.cols)
		if o.rows == 1 {
			p.Set(0, nd.index, g.At(0, 0))
		} else {
			p.Set(nd.index, 0, g.At(0, 0))
		}
		return []*mat.Dense{p}, nil

	case OpExpectation:
		return e.backwardExpectation(nd, g, needed)

	case OpMeasuredProb:
		return e.backwardMeasuredProb(nd, g, needed)
	}
	return nil, errors.Wrapf(ErrConstruction, "%s has no gradient rule", nd.op)
}

// softmaxBackward computes s*(g - sum(g*s)) per distribution row, matching
// the forward pass's treatment of a single column as one distribution.
func softmaxBackward(g, s *mat.Dense) *mat.Dense {
	r, c := s.Dims()
	if c == 1 && r > 1 {
		return matrix.Transpose(softmaxBackward(matrix.Transpose(g), matrix.Transpose(s)))
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		dot := 0.0
		for j := 0; j < c; j++ {
			dot += g.At(i, j) * s.At(i, j)
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, s.At(i, j)*(g.At(i, j)-dot))
		}
	}
	return out
}
