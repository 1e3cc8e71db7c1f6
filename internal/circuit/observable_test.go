package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservable_TermChaining(t *testing.T) {
	o := NewObservable().
		Term(0.5, FactorZ(0), FactorZ(1)).
		Term(-1, FactorX(0))

	terms := o.Terms()
	require.Len(t, terms, 2)
	assert.Equal(t, 0.5, terms[0].Coefficient)
	assert.Equal(t, PauliZ, terms[0].Factors[1].Basis)
	assert.Equal(t, -1.0, terms[1].Coefficient)
}

func TestObservable_SymTerm(t *testing.T) {
	w := &sym{"w"}
	o := NewObservable().SymTerm(w, FactorZ(0))

	terms := o.Terms()
	require.Len(t, terms, 1)
	assert.Equal(t, 1.0, terms[0].Coefficient)
	assert.Same(t, w, terms[0].Symbol)
	assert.Equal(t, []any{w}, o.Symbols())
}

func TestObservable_ScaleAndAdd(t *testing.T) {
	a := NewObservable().Term(2, FactorZ(0))
	b := NewObservable().Term(3, FactorX(1))

	s := a.Scale(0.5)
	assert.Equal(t, 1.0, s.Terms()[0].Coefficient)
	assert.Equal(t, 2.0, a.Terms()[0].Coefficient, "Scale must not modify the receiver")

	sum := a.Add(b)
	require.Len(t, sum.Terms(), 2)
	assert.Equal(t, 2.0, sum.Terms()[0].Coefficient)
	assert.Equal(t, 3.0, sum.Terms()[1].Coefficient)
}

func TestObservable_MaxQubit(t *testing.T) {
	assert.Equal(t, -1, NewObservable().Term(1).MaxQubit())
	assert.Equal(t, 4, NewObservable().Term(1, FactorZ(4), FactorX(2)).MaxQubit())
}

func TestObservable_Validate(t *testing.T) {
	assert.Error(t, NewObservable().Validate(), "no terms")

	ok := NewObservable().Term(1, FactorZ(0), FactorY(1))
	assert.NoError(t, ok.Validate())

	dup := NewObservable().Term(1, FactorZ(0), FactorX(0))
	assert.Error(t, dup.Validate(), "duplicate qubit in one term")

	neg := NewObservable().Term(1, Factor{Qubit: -1, Basis: PauliZ})
	assert.Error(t, neg.Validate())

	bad := NewObservable().Term(1, Factor{Qubit: 0, Basis: Pauli('Q')})
	assert.Error(t, bad.Validate())
}

// TestTermProgram checks the measurement basis changes appended per factor:
// X rotates through H, Y through Sdg then H, Z measures directly.
func TestTermProgram(t *testing.T) {
	base := &Program{Gates: []BoundGate{{Kind: GateH, Target: 0}}}

	term := Term{Coefficient: 1, Factors: []Factor{FactorY(2), FactorX(1), FactorZ(0)}}
	prog := term.Program(base)

	require.Len(t, prog.Gates, 4)
	assert.Equal(t, GateH, prog.Gates[0].Kind, "base program must come first")
	assert.Equal(t, GateSdg, prog.Gates[1].Kind)
	assert.Equal(t, 2, prog.Gates[1].Target)
	assert.Equal(t, GateH, prog.Gates[2].Kind)
	assert.Equal(t, 2, prog.Gates[2].Target)
	assert.Equal(t, GateH, prog.Gates[3].Kind)
	assert.Equal(t, 1, prog.Gates[3].Target)

	assert.Equal(t, []int{0, 1, 2}, prog.Measure, "measured qubits are sorted")
	assert.Len(t, base.Gates, 1, "base program must not grow")
}

func TestTermProgram_IdentityTerm(t *testing.T) {
	base := &Program{}
	prog := Term{Coefficient: 0.7}.Program(base)
	assert.Empty(t, prog.Gates)
	assert.Empty(t, prog.Measure)
}
