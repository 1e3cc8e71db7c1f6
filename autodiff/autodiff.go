// Copyright 2026 Varq ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides the public graph-composition and
// differentiation API of varq.
//
// Expressions over 2-D matrix values are composed lazily from leaves
// (Parameter, Constant) through Var methods and the package-level operator
// constructors. An Evaluator runs forward passes on demand and reverse-mode
// backward sweeps that accumulate gradients per leaf. Quantum expectation
// nodes embed circuit executions in the graph and are differentiated with
// the parameter-shift rule.
//
// Example:
//
//	a := autodiff.ParameterScalar(3)
//	b := autodiff.ConstantScalar(4)
//	aa, _ := a.Mul(a)
//	c, _ := aa.Add(b)
//
//	ev := autodiff.NewEvaluator(autodiff.DefaultConfig())
//	out, _ := ev.Eval(c) // 13
//
//	grads := autodiff.NewGradients()
//	_ = ev.Backward(c, grads)
//	_ = grads.Of(a) // 6
package autodiff

import (
	"gonum.org/v1/gonum/mat"

	internalautodiff "github.com/varq-ml/varq/internal/autodiff"
	internalcircuit "github.com/varq-ml/varq/internal/circuit"
)

// Var is a value-semantics handle over one graph node. Copying a Var never
// copies the node; gradients accumulate across all shared uses.
type Var = internalautodiff.Var

// OpKind identifies the operator a graph node applies to its operands.
type OpKind = internalautodiff.OpKind

// Operator kinds, as reported by Var.Kind.
const (
	OpLeaf         OpKind = internalautodiff.OpLeaf
	OpAdd          OpKind = internalautodiff.OpAdd
	OpSub          OpKind = internalautodiff.OpSub
	OpMul          OpKind = internalautodiff.OpMul
	OpDiv          OpKind = internalautodiff.OpDiv
	OpExp          OpKind = internalautodiff.OpExp
	OpLog          OpKind = internalautodiff.OpLog
	OpPow          OpKind = internalautodiff.OpPow
	OpDot          OpKind = internalautodiff.OpDot
	OpInverse      OpKind = internalautodiff.OpInverse
	OpTranspose    OpKind = internalautodiff.OpTranspose
	OpSum          OpKind = internalautodiff.OpSum
	OpStack        OpKind = internalautodiff.OpStack
	OpSubscript    OpKind = internalautodiff.OpSubscript
	OpSigmoid      OpKind = internalautodiff.OpSigmoid
	OpSoftmax      OpKind = internalautodiff.OpSoftmax
	OpCrossEntropy OpKind = internalautodiff.OpCrossEntropy
	OpDropout      OpKind = internalautodiff.OpDropout
	OpExpectation  OpKind = internalautodiff.OpExpectation
	OpMeasuredProb OpKind = internalautodiff.OpMeasuredProb
)

// Constant creates an untrainable leaf holding a copy of m.
func Constant(m *mat.Dense) Var {
	return internalautodiff.Constant(m)
}

// ConstantScalar creates an untrainable 1x1 leaf.
func ConstantScalar(v float64) Var {
	return internalautodiff.ConstantScalar(v)
}

// Parameter creates a trainable leaf holding a copy of m. Trainable leaves
// are the values an optimizer mutates between passes.
func Parameter(m *mat.Dense) Var {
	return internalautodiff.Parameter(m)
}

// ParameterScalar creates a trainable 1x1 leaf.
func ParameterScalar(v float64) Var {
	return internalautodiff.ParameterScalar(v)
}

// Stack concatenates operands along axis: 0 stacks rows, 1 appends columns.
func Stack(axis int, vs ...Var) (Var, error) {
	return internalautodiff.Stack(axis, vs...)
}

// Subscript selects element i of a vector operand as a 1x1 value.
func Subscript(v Var, i int) (Var, error) {
	return internalautodiff.Subscript(v, i)
}

// CrossEntropy composes the scalar -sum(label * log(pred)).
func CrossEntropy(pred, label Var) (Var, error) {
	return internalautodiff.CrossEntropy(pred, label)
}

// Dropout composes elementwise masking of v with keep probability keep.
func Dropout(v, keep Var) (Var, error) {
	return internalautodiff.Dropout(v, keep)
}

// TrainableLeaves collects the distinct trainable leaves reachable from
// root, in first-visit order.
func TrainableLeaves(root Var) []Var {
	return internalautodiff.TrainableLeaves(root)
}

// Config controls evaluation behavior.
type Config = internalautodiff.Config

// DefaultConfig returns the standard evaluation configuration: strict
// domain checking on and parallel shift sweeps enabled for exact machines.
func DefaultConfig() Config {
	return internalautodiff.DefaultConfig()
}

// Evaluator runs forward and backward passes over composed graphs.
type Evaluator = internalautodiff.Evaluator

// NewEvaluator creates an evaluator with the given configuration.
func NewEvaluator(cfg Config) *Evaluator {
	return internalautodiff.NewEvaluator(cfg)
}

// Gradients accumulates backward sweep results keyed by graph value.
type Gradients = internalautodiff.Gradients

// NewGradients creates an empty gradient accumulator.
func NewGradients() Gradients {
	return internalautodiff.NewGradients()
}

// BackwardOption adjusts a single backward sweep.
type BackwardOption = internalautodiff.BackwardOption

// WithSeed replaces the implicit all-ones adjoint of the root.
func WithSeed(seed *mat.Dense) BackwardOption {
	return internalautodiff.WithSeed(seed)
}

// RestrictTo limits recording to the given values and skips every part of
// the graph that cannot reach one of them.
func RestrictTo(vs ...Var) BackwardOption {
	return internalautodiff.RestrictTo(vs...)
}

// QuantumOption configures an expectation or measuredProb node.
type QuantumOption = internalautodiff.QuantumOption

// WithShots samples circuit executions with the given shot budget instead
// of computing exact values.
func WithShots(n int) QuantumOption {
	return internalautodiff.WithShots(n)
}

// Expectation composes a node whose value is the observable's weighted
// expectation on the circuit's output state, differentiable with respect to
// every symbolic angle and coefficient.
func Expectation(c *internalcircuit.Circuit, obs *internalcircuit.Observable, m internalcircuit.Machine, opts ...QuantumOption) (Var, error) {
	return internalautodiff.Expectation(c, obs, m, opts...)
}

// MeasuredProbs composes a node whose value is the column of probabilities
// of the selected basis states of the measured qubits after running the
// circuit.
func MeasuredProbs(c *internalcircuit.Circuit, m internalcircuit.Machine, qubits []int, components []int, opts ...QuantumOption) (Var, error) {
	return internalautodiff.MeasuredProbs(c, m, qubits, components, opts...)
}

// Sentinel errors, matched with errors.Is.
var (
	// ErrConstruction marks invalid graph composition.
	ErrConstruction = internalautodiff.ErrConstruction
	// ErrDomain marks numeric domain violations found during strict
	// evaluation.
	ErrDomain = internalautodiff.ErrDomain
	// ErrBounds marks out-of-range indexing.
	ErrBounds = internalautodiff.ErrBounds
	// ErrBackend marks machine execution failures.
	ErrBackend = internalautodiff.ErrBackend
	// ErrNotEvaluated marks a backward sweep over a graph with no prior
	// forward pass.
	ErrNotEvaluated = internalautodiff.ErrNotEvaluated
)
