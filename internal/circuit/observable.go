package circuit

import (
	"sort"

	"github.com/pkg/errors"
)

// Pauli is a single-qubit measurement basis letter.
type Pauli byte

// Basis letters. Identity factors are expressed by omitting the qubit from
// a term.
const (
	PauliX Pauli = 'X'
	PauliY Pauli = 'Y'
	PauliZ Pauli = 'Z'
)

// Factor is one basis letter applied to one qubit inside a term.
type Factor struct {
	Qubit int
	Basis Pauli
}

// FactorX returns an X-basis factor on qubit q.
func FactorX(q int) Factor { return Factor{Qubit: q, Basis: PauliX} }

// FactorY returns a Y-basis factor on qubit q.
func FactorY(q int) Factor { return Factor{Qubit: q, Basis: PauliY} }

// FactorZ returns a Z-basis factor on qubit q.
func FactorZ(q int) Factor { return Factor{Qubit: q, Basis: PauliZ} }

// Term is one weighted Pauli product. The effective coefficient is
// Coefficient times the resolved Symbol value when Symbol is non-nil, so a
// term's weight may bind to a classical graph value. An empty factor list
// is the identity term.
type Term struct {
	Coefficient float64
	Symbol      any
	Factors     []Factor
}

// Observable is a weighted sum of Pauli terms, the measurable quantity of
// an expectation node.
//
// Example, the two-qubit quantity 0.5*Z0*Z1 - X0:
//
//	obs := circuit.NewObservable().
//		Term(0.5, circuit.FactorZ(0), circuit.FactorZ(1)).
//		Term(-1, circuit.FactorX(0))
type Observable struct {
	terms []Term
}

// NewObservable creates an observable with no terms.
func NewObservable() *Observable {
	return &Observable{}
}

// Term appends a weighted Pauli product and returns the observable for
// chaining. No factors makes a constant offset term.
func (o *Observable) Term(coeff float64, fs ...Factor) *Observable {
	o.terms = append(o.terms, Term{Coefficient: coeff, Factors: append([]Factor(nil), fs...)})
	return o
}

// SymTerm appends a Pauli product whose weight binds to the symbolic source
// sym at evaluation time.
func (o *Observable) SymTerm(sym any, fs ...Factor) *Observable {
	o.terms = append(o.terms, Term{
		Coefficient: 1,
		Symbol:      sym,
		Factors:     append([]Factor(nil), fs...),
	})
	return o
}

// Terms returns the term list. The slice is shared; callers must not
// modify it.
func (o *Observable) Terms() []Term { return o.terms }

// Scale returns a new observable with every coefficient multiplied by c.
func (o *Observable) Scale(c float64) *Observable {
	out := &Observable{terms: make([]Term, len(o.terms))}
	for i, t := range o.terms {
		t.Coefficient *= c
		out.terms[i] = t
	}
	return out
}

// Add returns a new observable holding the terms of both summands.
func (o *Observable) Add(p *Observable) *Observable {
	out := &Observable{terms: make([]Term, 0, len(o.terms)+len(p.terms))}
	out.terms = append(out.terms, o.terms...)
	out.terms = append(out.terms, p.terms...)
	return out
}

// Symbols returns the distinct coefficient symbols in term order.
func (o *Observable) Symbols() []any {
	var out []any
	seen := make(map[any]bool)
	for _, t := range o.terms {
		if t.Symbol == nil || seen[t.Symbol] {
			continue
		}
		seen[t.Symbol] = true
		out = append(out, t.Symbol)
	}
	return out
}

// MaxQubit returns the largest qubit index any factor touches, or -1 for an
// observable with only identity terms.
func (o *Observable) MaxQubit() int {
	q := -1
	for _, t := range o.terms {
		for _, f := range t.Factors {
			if f.Qubit > q {
				q = f.Qubit
			}
		}
	}
	return q
}

// Validate checks every term for qubit and basis consistency.
func (o *Observable) Validate() error {
	if len(o.terms) == 0 {
		return errors.New("observable has no terms")
	}
	for i, t := range o.terms {
		seen := make(map[int]bool)
		for _, f := range t.Factors {
			if f.Qubit < 0 {
				return errors.Errorf("term %d: negative qubit %d", i, f.Qubit)
			}
			if seen[f.Qubit] {
				return errors.Errorf("term %d: qubit %d appears twice", i, f.Qubit)
			}
			seen[f.Qubit] = true
			switch f.Basis {
			case PauliX, PauliY, PauliZ:
			default:
				return errors.Errorf("term %d: unknown basis %q on qubit %d", i, f.Basis, f.Qubit)
			}
		}
	}
	return nil
}

// Program appends the term's measurement basis changes to base and selects
// the term's qubit support for measurement. X factors rotate through H, Y
// factors through Sdg then H, so the machine only ever measures in Z.
func (t Term) Program(base *Program) *Program {
	gates := make([]BoundGate, 0, len(base.Gates)+2*len(t.Factors))
	gates = append(gates, base.Gates...)
	measure := make([]int, 0, len(t.Factors))
	for _, f := range t.Factors {
		switch f.Basis {
		case PauliX:
			gates = append(gates, BoundGate{Kind: GateH, Target: f.Qubit})
		case PauliY:
			gates = append(gates, BoundGate{Kind: GateSdg, Target: f.Qubit})
			gates = append(gates, BoundGate{Kind: GateH, Target: f.Qubit})
		}
		measure = append(measure, f.Qubit)
	}
	sort.Ints(measure)
	return &Program{Gates: gates, Measure: measure}
}
