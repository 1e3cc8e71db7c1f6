package circuit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sym struct{ name string }

func resolveAll(vals map[any]float64) Resolver {
	return func(s any) (float64, error) { return vals[s], nil }
}

func TestAppendAndSize(t *testing.T) {
	c := New().Append(H(0), X(1)).Append(CNOT(0, 1))
	assert.Equal(t, 3, c.Size())
	assert.Equal(t, 1, c.MaxQubit())
}

func TestMaxQubit_Empty(t *testing.T) {
	assert.Equal(t, -1, New().MaxQubit())
}

func TestMaxQubit_Controls(t *testing.T) {
	c := New().Append(H(0)).Controlled(5)
	assert.Equal(t, 5, c.MaxQubit())
}

// TestNormalized_Dagger checks that a daggered circuit binds in reverse
// order with every gate replaced by its adjoint.
func TestNormalized_Dagger(t *testing.T) {
	c := New().Append(H(0), S(0), RX(0, 0.5)).Dagger()

	prog, err := c.Bind(nil)
	require.NoError(t, err)
	require.Len(t, prog.Gates, 3)

	// Reversed: RX(-0.5), Sdg, H.
	assert.Equal(t, GateRX, prog.Gates[0].Kind)
	assert.InDelta(t, -0.5, prog.Gates[0].Theta, 1e-15)
	assert.Equal(t, GateSdg, prog.Gates[1].Kind)
	assert.Equal(t, GateH, prog.Gates[2].Kind)
}

func TestNormalized_DoubleDagger(t *testing.T) {
	c := New().Append(S(0), RX(0, 0.3)).Dagger().Dagger()
	prog, err := c.Bind(nil)
	require.NoError(t, err)

	assert.Equal(t, GateS, prog.Gates[0].Kind)
	assert.InDelta(t, 0.3, prog.Gates[1].Theta, 1e-15)
}

func TestGateDagger_DoesNotShareControls(t *testing.T) {
	g := CRX(0, 1, 0.5)
	d := g.Dagger()
	d.Controls[0] = 9
	assert.Equal(t, 0, g.Controls[0])
}

func TestControlled_FoldsIntoBoundGates(t *testing.T) {
	c := New().Append(RY(1, 0.2)).Controlled(3)
	prog, err := c.Bind(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, prog.Gates[0].Controls)
}

func TestExtend_AppliesModifiers(t *testing.T) {
	inner := New().Append(S(0), H(0)).Dagger()
	c := New().Append(X(1)).Extend(inner)

	prog, err := c.Bind(nil)
	require.NoError(t, err)
	require.Len(t, prog.Gates, 3)
	assert.Equal(t, GateX, prog.Gates[0].Kind)
	assert.Equal(t, GateH, prog.Gates[1].Kind)
	assert.Equal(t, GateSdg, prog.Gates[2].Kind)
}

func TestSymbols_DistinctInOrder(t *testing.T) {
	a, b := &sym{"a"}, &sym{"b"}
	c := New().Append(RX(0, a), RY(0, b), RZ(0, a))

	got := c.Symbols()
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, b, got[1])
}

func TestPositions_SignUnderDagger(t *testing.T) {
	a := &sym{"a"}
	c := New().Append(RX(0, a), H(0), RY(0, a))

	pts := c.Positions(a)
	require.Len(t, pts, 2)
	assert.Equal(t, ShiftPoint{Pos: 0, Sign: 1}, pts[0])
	assert.Equal(t, ShiftPoint{Pos: 2, Sign: 1}, pts[1])

	// Daggered, the sequence reverses and both occurrences negate.
	pts = c.Dagger().Positions(a)
	require.Len(t, pts, 2)
	assert.Equal(t, ShiftPoint{Pos: 0, Sign: -1}, pts[0])
	assert.Equal(t, ShiftPoint{Pos: 2, Sign: -1}, pts[1])
}

func TestBind_ResolvesSymbols(t *testing.T) {
	a := &sym{"a"}
	c := New().Append(RX(0, a), RY(1, 1.5))

	prog, err := c.Bind(resolveAll(map[any]float64{a: 0.25}))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, prog.Gates[0].Theta, 1e-15)
	assert.InDelta(t, 1.5, prog.Gates[1].Theta, 1e-15)
}

func TestBind_MissingResolver(t *testing.T) {
	c := New().Append(RX(0, &sym{"a"}))
	_, err := c.Bind(nil)
	assert.Error(t, err)
}

func TestBind_DaggerNegatesSymbolValue(t *testing.T) {
	a := &sym{"a"}
	c := New().Append(RX(0, a)).Dagger()

	prog, err := c.Bind(resolveAll(map[any]float64{a: 0.25}))
	require.NoError(t, err)
	assert.InDelta(t, -0.25, prog.Gates[0].Theta, 1e-15)
}

func TestBindShifted(t *testing.T) {
	a := &sym{"a"}
	c := New().Append(RX(0, a), RY(0, a))
	resolve := resolveAll(map[any]float64{a: 1.0})

	prog, err := c.BindShifted(1, math.Pi/2, resolve)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, prog.Gates[0].Theta, 1e-15)
	assert.InDelta(t, 1.0+math.Pi/2, prog.Gates[1].Theta, 1e-15)
}

func TestBindShifted_Errors(t *testing.T) {
	c := New().Append(H(0), RX(0, 0.5))

	_, err := c.BindShifted(0, 0.1, nil)
	assert.Error(t, err, "H carries no angle")

	_, err = c.BindShifted(5, 0.1, nil)
	assert.Error(t, err, "position out of range")

	_, err = c.BindShifted(-1, 0.1, nil)
	assert.Error(t, err)
}

func TestBind_IsRepeatable(t *testing.T) {
	a := &sym{"a"}
	c := New().Append(RX(0, a))

	p1, err := c.Bind(resolveAll(map[any]float64{a: 0.1}))
	require.NoError(t, err)
	p2, err := c.Bind(resolveAll(map[any]float64{a: 0.9}))
	require.NoError(t, err)

	assert.InDelta(t, 0.1, p1.Gates[0].Theta, 1e-15)
	assert.InDelta(t, 0.9, p2.Gates[0].Theta, 1e-15)
}

func TestToAngle_NumericKinds(t *testing.T) {
	assert.Equal(t, 0.5, RX(0, 0.5).Angle.Const)
	assert.Equal(t, 2.0, RX(0, 2).Angle.Const)
	assert.Equal(t, float64(float32(0.25)), RX(0, float32(0.25)).Angle.Const)
	assert.NotNil(t, RX(0, &sym{"x"}).Angle.Symbol)
}

func TestGateKindString(t *testing.T) {
	assert.Equal(t, "CNOT", GateCNOT.String())
	assert.Equal(t, "Sdg", GateSdg.String())
}

func TestRotationKinds(t *testing.T) {
	assert.True(t, GateRX.Rotation())
	assert.True(t, GateCRZ.Rotation())
	assert.False(t, GateH.Rotation())
	assert.False(t, GateCNOT.Rotation())
}
