package autodiff

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/varq-ml/varq/internal/circuit"
	"github.com/varq-ml/varq/internal/matrix"
	"github.com/varq-ml/varq/internal/parallel"
)

// quantumNode carries the circuit adapter state of an expectation or
// measuredProb node. The adapter is stateless across passes: every
// evaluation binds the circuit afresh from the operands' current values and
// executes the machine synchronously.
type quantumNode struct {
	circ       *circuit.Circuit
	obs        *circuit.Observable // nil for measuredProb nodes
	machine    circuit.Machine
	measure    []int // measuredProb: measured qubits, low bit first
	components []int // measuredProb: selected basis states of the measured qubits
	shots      int
}

// QuantumOption configures an expectation or measuredProb node.
type QuantumOption func(*quantumNode)

// WithShots samples executions with the given shot budget instead of
// computing exact values. Results then carry statistical noise with
// variance proportional to 1/shots, and the differentiator's shifted
// evaluations reuse the same budget.
func WithShots(n int) QuantumOption {
	return func(qn *quantumNode) { qn.shots = n }
}

// Expectation composes a node whose value is the observable's weighted
// expectation on the circuit's output state. The node's operands are the
// circuit's symbolic rotation sources plus any symbolic observable
// coefficients; all must be 1x1 graph values. The differentiator estimates
// rotation gradients with the parameter-shift rule rather than analytic
// chain rules.
func Expectation(c *circuit.Circuit, obs *circuit.Observable, m circuit.Machine, opts ...QuantumOption) (Var, error) {
	if c == nil || obs == nil || m == nil {
		return Var{}, errors.Wrap(ErrConstruction, "expectation: nil circuit, observable, or machine")
	}
	if err := obs.Validate(); err != nil {
		return Var{}, errors.Wrapf(ErrConstruction, "expectation: %v", err)
	}
	if q := c.MaxQubit(); q >= m.Qubits() {
		return Var{}, errors.Wrapf(ErrConstruction,
			"expectation: circuit uses qubit %d on a %d-qubit machine", q, m.Qubits())
	}
	if q := obs.MaxQubit(); q >= m.Qubits() {
		return Var{}, errors.Wrapf(ErrConstruction,
			"expectation: observable uses qubit %d on a %d-qubit machine", q, m.Qubits())
	}
	operands, err := symbolOperands(c.Symbols(), obs.Symbols())
	if err != nil {
		return Var{}, err
	}
	qn := &quantumNode{circ: c, obs: obs, machine: m}
	for _, opt := range opts {
		opt(qn)
	}
	if qn.shots < 0 {
		return Var{}, errors.Wrapf(ErrConstruction, "expectation: negative shot count %d", qn.shots)
	}
	return build(&node{op: OpExpectation, quantum: qn, operands: operands})
}

// MeasuredProbs composes a node whose value is the column of probabilities
// of the selected basis states of the measured qubits after running the
// circuit. Component index bit k corresponds to qubits[k], least
// significant first.
func MeasuredProbs(c *circuit.Circuit, m circuit.Machine, qubits []int, components []int, opts ...QuantumOption) (Var, error) {
	if c == nil || m == nil {
		return Var{}, errors.Wrap(ErrConstruction, "measuredProbs: nil circuit or machine")
	}
	if len(qubits) == 0 || len(components) == 0 {
		return Var{}, errors.Wrap(ErrConstruction, "measuredProbs: empty qubit or component list")
	}
	seen := make(map[int]bool)
	for _, q := range qubits {
		if q < 0 || q >= m.Qubits() {
			return Var{}, errors.Wrapf(ErrConstruction,
				"measuredProbs: qubit %d outside %d-qubit machine", q, m.Qubits())
		}
		if seen[q] {
			return Var{}, errors.Wrapf(ErrConstruction, "measuredProbs: qubit %d listed twice", q)
		}
		seen[q] = true
	}
	limit := 1 << len(qubits)
	for _, comp := range components {
		if comp < 0 || comp >= limit {
			return Var{}, errors.Wrapf(ErrBounds,
				"measuredProbs: component %d outside %d measured states", comp, limit)
		}
	}
	if q := c.MaxQubit(); q >= m.Qubits() {
		return Var{}, errors.Wrapf(ErrConstruction,
			"measuredProbs: circuit uses qubit %d on a %d-qubit machine", q, m.Qubits())
	}
	operands, err := symbolOperands(c.Symbols(), nil)
	if err != nil {
		return Var{}, err
	}
	qn := &quantumNode{
		circ:       c,
		machine:    m,
		measure:    append([]int(nil), qubits...),
		components: append([]int(nil), components...),
	}
	for _, opt := range opts {
		opt(qn)
	}
	if qn.shots < 0 {
		return Var{}, errors.Wrapf(ErrConstruction, "measuredProbs: negative shot count %d", qn.shots)
	}
	return build(&node{op: OpMeasuredProb, quantum: qn, operands: operands})
}

// symbolOperands turns circuit and observable symbols into the node's
// operand list, deduplicated in first-use order. Every symbol must be a 1x1
// Var.
func symbolOperands(circSyms, obsSyms []any) ([]Var, error) {
	var out []Var
	seen := make(map[*node]bool)
	add := func(sym any, role string) error {
		v, ok := sym.(Var)
		if !ok {
			return errors.Wrapf(ErrConstruction, "%s must be a graph value, got %T", role, sym)
		}
		if v.n == nil {
			return errors.Wrapf(ErrConstruction, "%s is a zero handle", role)
		}
		if v.n.rows != 1 || v.n.cols != 1 {
			return errors.Wrapf(ErrConstruction, "%s must be 1x1, got %dx%d", role, v.n.rows, v.n.cols)
		}
		if !seen[v.n] {
			seen[v.n] = true
			out = append(out, v)
		}
		return nil
	}
	for _, s := range circSyms {
		if err := add(s, "rotation source"); err != nil {
			return nil, err
		}
	}
	for _, s := range obsSyms {
		if err := add(s, "observable coefficient"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resolver reads symbol values out of the operands' latest evaluation.
func (qn *quantumNode) resolver() circuit.Resolver {
	return func(sym any) (float64, error) {
		v, ok := sym.(Var)
		if !ok || v.n == nil {
			return 0, errors.Wrapf(ErrConstruction, "symbol %T is not a graph value", sym)
		}
		if v.n.value == nil {
			return 0, errors.Wrap(ErrNotEvaluated, "symbolic angle has no value")
		}
		return v.n.value.At(0, 0), nil
	}
}

// termCoefficient resolves a term's effective weight, folding in a
// symbolic factor when present.
func (qn *quantumNode) termCoefficient(t circuit.Term, resolve circuit.Resolver) (float64, error) {
	if t.Symbol == nil {
		return t.Coefficient, nil
	}
	v, err := resolve(t.Symbol)
	if err != nil {
		return 0, err
	}
	return t.Coefficient * v, nil
}

// weighted executes every observable term against the bound base program
// and returns the coefficient-weighted expectation sum.
func (qn *quantumNode) weighted(base *circuit.Program, resolve circuit.Resolver) (float64, error) {
	total := 0.0
	for _, t := range qn.obs.Terms() {
		coeff, err := qn.termCoefficient(t, resolve)
		if err != nil {
			return 0, err
		}
		if coeff == 0 {
			continue
		}
		res, err := qn.machine.Execute(t.Program(base), qn.shots)
		if err != nil {
			return 0, errors.Wrapf(ErrBackend, "%v", err)
		}
		total += coeff * res.Expectation
	}
	return total, nil
}

// componentProbs executes the circuit and selects the configured component
// probabilities of the measured qubits.
func (qn *quantumNode) componentProbs(base *circuit.Program) ([]float64, error) {
	prog := &circuit.Program{Gates: base.Gates, Measure: qn.measure}
	dist, err := qn.machine.Probabilities(prog, qn.shots)
	if err != nil {
		return nil, errors.Wrapf(ErrBackend, "%v", err)
	}
	out := make([]float64, len(qn.components))
	for i, comp := range qn.components {
		out[i] = dist[comp]
	}
	return out, nil
}

func (e *Evaluator) evalExpectation(nd *node) (*mat.Dense, error) {
	qn := nd.quantum
	resolve := qn.resolver()
	base, err := qn.circ.Bind(resolve)
	if err != nil {
		return nil, err
	}
	total, err := qn.weighted(base, resolve)
	if err != nil {
		return nil, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("expectation: %d terms, %d gates, shots=%d -> %.6f",
			len(qn.obs.Terms()), len(base.Gates), qn.shots, total)
	}
	return matrix.Scalar(total), nil
}

func (e *Evaluator) evalMeasuredProb(nd *node) (*mat.Dense, error) {
	qn := nd.quantum
	base, err := qn.circ.Bind(qn.resolver())
	if err != nil {
		return nil, err
	}
	probs, err := qn.componentProbs(base)
	if err != nil {
		return nil, err
	}
	return matrix.Vector(probs), nil
}

// shiftTask is one parameter-shift evaluation pair: a symbolic angle
// occurrence whose central difference contributes to one operand's
// gradient.
type shiftTask struct {
	opIdx int
	point circuit.ShiftPoint
}

// backwardExpectation estimates per-operand gradients. Each rotation
// occurrence contributes (E(+pi/2) - E(-pi/2)) / 2, evaluated with the full
// weighted observable and the occurrence's dagger sign folded into the
// shift direction. A symbolic coefficient receives its term's raw
// expectation (product rule). Shifted executions reuse the node's shot
// budget; exact sweeps fan out through the parallel config.
func (e *Evaluator) backwardExpectation(nd *node, g *mat.Dense, needed func(int) bool) ([]*mat.Dense, error) {
	qn := nd.quantum
	g00 := g.At(0, 0)
	resolve := qn.resolver()

	tasks, err := qn.shiftTasks(nd, needed)
	if err != nil {
		return nil, err
	}
	diffs, err := e.runShiftTasks(qn, tasks, func(base *circuit.Program) (float64, error) {
		return qn.weighted(base, resolve)
	})
	if err != nil {
		return nil, err
	}

	partials := make([]*mat.Dense, len(nd.operands))
	addTo := func(i int, v float64) {
		if partials[i] == nil {
			partials[i] = matrix.Scalar(0)
		}
		partials[i].Set(0, 0, partials[i].At(0, 0)+v)
	}
	for k, t := range tasks {
		addTo(t.opIdx, g00*diffs[k])
	}

	// Product rule for symbolic coefficients: each term's raw expectation
	// scales its coefficient's gradient.
	symIdx := qn.symbolIndex(nd)
	var base *circuit.Program
	for _, t := range qn.obs.Terms() {
		if t.Symbol == nil {
			continue
		}
		i, ok := symIdx[t.Symbol.(Var).n]
		if !ok || !needed(i) {
			continue
		}
		if base == nil {
			if base, err = qn.circ.Bind(resolve); err != nil {
				return nil, err
			}
		}
		res, err := qn.machine.Execute(t.Program(base), qn.shots)
		if err != nil {
			return nil, errors.Wrapf(ErrBackend, "%v", err)
		}
		addTo(i, g00*t.Coefficient*res.Expectation)
	}
	return partials, nil
}

// backwardMeasuredProb mirrors backwardExpectation for probability
// components: each occurrence contributes the gradient-weighted central
// difference of the selected component probabilities.
func (e *Evaluator) backwardMeasuredProb(nd *node, g *mat.Dense, needed func(int) bool) ([]*mat.Dense, error) {
	qn := nd.quantum
	tasks, err := qn.shiftTasks(nd, needed)
	if err != nil {
		return nil, err
	}
	diffs, err := e.runShiftTasks(qn, tasks, func(base *circuit.Program) (float64, error) {
		probs, err := qn.componentProbs(base)
		if err != nil {
			return 0, err
		}
		total := 0.0
		for i, p := range probs {
			total += g.At(i, 0) * p
		}
		return total, nil
	})
	if err != nil {
		return nil, err
	}
	partials := make([]*mat.Dense, len(nd.operands))
	for k, t := range tasks {
		if partials[t.opIdx] == nil {
			partials[t.opIdx] = matrix.Scalar(0)
		}
		cur := partials[t.opIdx].At(0, 0)
		partials[t.opIdx].Set(0, 0, cur+diffs[k])
	}
	return partials, nil
}

// shiftTasks lists every shift evaluation the sweep needs, checking the
// machine's capability per position.
func (qn *quantumNode) shiftTasks(nd *node, needed func(int) bool) ([]shiftTask, error) {
	var tasks []shiftTask
	for i, o := range nd.operands {
		if !needed(i) {
			continue
		}
		for _, pt := range qn.circ.Positions(o) {
			if !qn.machine.SupportsShift(pt.Pos) {
				return nil, errors.Wrapf(ErrBackend,
					"machine cannot evaluate a shifted angle at position %d", pt.Pos)
			}
			tasks = append(tasks, shiftTask{opIdx: i, point: pt})
		}
	}
	return tasks, nil
}

// runShiftTasks evaluates (f(+shift) - f(-shift)) / 2 for every task.
// Exact sweeps run concurrently; the machine sees only bound programs, so
// a deterministic machine may serve all tasks at once.
func (e *Evaluator) runShiftTasks(qn *quantumNode, tasks []shiftTask, f func(*circuit.Program) (float64, error)) ([]float64, error) {
	resolve := qn.resolver()
	diffs := make([]float64, len(tasks))
	errs := make([]error, len(tasks))
	runOne := func(k int) {
		pt := tasks[k].point
		shift := pt.Sign * math.Pi / 2
		plus, err := qn.circ.BindShifted(pt.Pos, shift, resolve)
		if err != nil {
			errs[k] = err
			return
		}
		ep, err := f(plus)
		if err != nil {
			errs[k] = err
			return
		}
		minus, err := qn.circ.BindShifted(pt.Pos, -shift, resolve)
		if err != nil {
			errs[k] = err
			return
		}
		em, err := f(minus)
		if err != nil {
			errs[k] = err
			return
		}
		diffs[k] = (ep - em) / 2
	}
	if qn.shots == 0 {
		parallel.For(len(tasks), runOne, e.cfg.Parallel)
	} else {
		for k := range tasks {
			runOne(k)
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return diffs, nil
}

// symbolIndex maps operand nodes back to their operand positions.
func (qn *quantumNode) symbolIndex(nd *node) map[*node]int {
	out := make(map[*node]int, len(nd.operands))
	for i, o := range nd.operands {
		out[o.n] = i
	}
	return out
}
