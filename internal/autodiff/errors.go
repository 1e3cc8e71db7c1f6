package autodiff

import "github.com/pkg/errors"

// Failure categories surfaced by the engine. Wrapped errors carry operator
// and shape context; match with errors.Is.
var (
	// ErrConstruction reports an arity or shape mismatch while composing an
	// expression. Fatal to that expression.
	ErrConstruction = errors.New("invalid expression construction")

	// ErrDomain reports an invalid numeric input such as log of a
	// non-positive value, a singular matrix inverse, or a zero divisor in
	// strict mode.
	ErrDomain = errors.New("domain violation")

	// ErrBounds reports a subscript outside its operand's element range.
	ErrBounds = errors.New("subscript out of range")

	// ErrBackend reports a failure of the quantum execution machine.
	// Propagated to the caller, never retried inside the engine.
	ErrBackend = errors.New("machine execution failed")

	// ErrNotEvaluated reports a backward pass over a subgraph that the
	// evaluator has not visited since construction.
	ErrNotEvaluated = errors.New("expression not evaluated")
)
