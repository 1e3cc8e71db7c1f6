package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/varq-ml/varq/internal/matrix"
)

func newEval() *Evaluator {
	return NewEvaluator(DefaultConfig())
}

func fromSlice(t *testing.T, rows, cols int, data []float64) Var {
	t.Helper()
	m, err := matrix.FromSlice(rows, cols, data)
	require.NoError(t, err)
	return Parameter(m)
}

func TestEval_ScalarArithmetic(t *testing.T) {
	a := ParameterScalar(3)
	b := ConstantScalar(4)

	aa, err := a.Mul(a)
	require.NoError(t, err)
	c, err := aa.Add(b)
	require.NoError(t, err)

	out, err := newEval().Eval(c)
	require.NoError(t, err)
	assert.Equal(t, 13.0, out.At(0, 0))
}

func TestEval_LeafPassthrough(t *testing.T) {
	a := ParameterScalar(7)
	out, err := newEval().Eval(a)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out.At(0, 0))
}

func TestEval_ZeroHandle(t *testing.T) {
	_, err := newEval().Eval(Var{})
	assert.ErrorIs(t, err, ErrConstruction)
}

func TestEval_Broadcast(t *testing.T) {
	m := fromSlice(t, 2, 2, []float64{1, 2, 3, 4})
	s := ConstantScalar(10)

	sum, err := m.Add(s)
	require.NoError(t, err)
	out, err := newEval().Eval(sum)
	require.NoError(t, err)
	assert.Equal(t, 11.0, out.At(0, 0))
	assert.Equal(t, 14.0, out.At(1, 1))

	prod, err := s.Mul(m)
	require.NoError(t, err)
	out, err = newEval().Eval(prod)
	require.NoError(t, err)
	assert.Equal(t, 30.0, out.At(1, 0))
}

func TestConstruction_ShapeMismatch(t *testing.T) {
	a := Parameter(matrix.Zeros(2, 2))
	b := Parameter(matrix.Zeros(2, 3))

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrConstruction)

	_, err = a.Dot(Parameter(matrix.Zeros(3, 2)))
	assert.ErrorIs(t, err, ErrConstruction, "inner dimensions disagree")

	_, err = b.Inverse()
	assert.ErrorIs(t, err, ErrConstruction, "inverse needs a square operand")

	_, err = a.Pow(b)
	assert.ErrorIs(t, err, ErrConstruction, "exponent must be 1x1")

	_, err = CrossEntropy(a, b)
	assert.ErrorIs(t, err, ErrConstruction)

	_, err = Dropout(a, b)
	assert.ErrorIs(t, err, ErrConstruction, "keep probability must be 1x1")
}

func TestConstruction_Subscript(t *testing.T) {
	v := fromSlice(t, 3, 1, []float64{1, 2, 3})

	_, err := Subscript(v, 3)
	assert.ErrorIs(t, err, ErrBounds)

	_, err = Subscript(v, -1)
	assert.ErrorIs(t, err, ErrBounds)

	_, err = Subscript(Parameter(matrix.Zeros(2, 2)), 0)
	assert.ErrorIs(t, err, ErrConstruction, "subscript needs a vector")
}

func TestConstruction_Stack(t *testing.T) {
	a := Parameter(matrix.Zeros(2, 3))
	b := Parameter(matrix.Zeros(1, 3))

	v, err := Stack(0, a, b)
	require.NoError(t, err)
	r, c := v.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)

	_, err = Stack(1, a, b)
	assert.ErrorIs(t, err, ErrConstruction, "axis 1 needs matching rows")

	_, err = Stack(2, a, b)
	assert.ErrorIs(t, err, ErrConstruction, "axis must be 0 or 1")

	_, err = Stack(0)
	assert.ErrorIs(t, err, ErrConstruction, "stack needs operands")
}

func TestConstruction_NilOperand(t *testing.T) {
	_, err := Var{}.Add(ParameterScalar(1))
	assert.ErrorIs(t, err, ErrConstruction)
}

func TestEval_ElementwiseFunctions(t *testing.T) {
	x := fromSlice(t, 1, 3, []float64{0, 1, 2})
	ev := newEval()

	e, err := x.Exp()
	require.NoError(t, err)
	out, err := ev.Eval(e)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, math.E, out.At(0, 1), 1e-12)

	s, err := x.Sigmoid()
	require.NoError(t, err)
	out, err = ev.Eval(s)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.At(0, 0), 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-2)), out.At(0, 2), 1e-12)

	p := fromSlice(t, 1, 2, []float64{2, 3})
	pw, err := p.Pow(ConstantScalar(2))
	require.NoError(t, err)
	out, err = ev.Eval(pw)
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.At(0, 0))
	assert.Equal(t, 9.0, out.At(0, 1))
}

func TestEval_StrictDomain(t *testing.T) {
	ev := newEval()

	q, err := ParameterScalar(1).Div(ParameterScalar(0))
	require.NoError(t, err)
	_, err = ev.Eval(q)
	assert.ErrorIs(t, err, ErrDomain, "zero divisor")

	l, err := ParameterScalar(0).Log()
	require.NoError(t, err)
	_, err = ev.Eval(l)
	assert.ErrorIs(t, err, ErrDomain, "log of zero")

	l, err = ParameterScalar(-1).Log()
	require.NoError(t, err)
	_, err = ev.Eval(l)
	assert.ErrorIs(t, err, ErrDomain)

	pred := fromSlice(t, 1, 2, []float64{0, 1})
	label := fromSlice(t, 1, 2, []float64{1, 0})
	ce, err := CrossEntropy(pred, label)
	require.NoError(t, err)
	_, err = ev.Eval(ce)
	assert.ErrorIs(t, err, ErrDomain, "zero prediction")
}

func TestEval_NonStrictDomain(t *testing.T) {
	ev := NewEvaluator(Config{Strict: false})

	q, err := ParameterScalar(1).Div(ParameterScalar(0))
	require.NoError(t, err)
	out, err := ev.Eval(q)
	require.NoError(t, err)
	assert.True(t, math.IsInf(out.At(0, 0), 1))

	l, err := ParameterScalar(0).Log()
	require.NoError(t, err)
	out, err = ev.Eval(l)
	require.NoError(t, err)
	assert.True(t, math.IsInf(out.At(0, 0), -1))
}

func TestEval_SingularInverse(t *testing.T) {
	a := Parameter(matrix.Zeros(2, 2))
	inv, err := a.Inverse()
	require.NoError(t, err)

	_, err = newEval().Eval(inv)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestEval_DotTransposeInverse(t *testing.T) {
	a := fromSlice(t, 2, 2, []float64{4, 7, 2, 6})
	ev := newEval()

	inv, err := a.Inverse()
	require.NoError(t, err)
	ident, err := a.Dot(inv)
	require.NoError(t, err)
	out, err := ev.Eval(ident)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, out.At(1, 0), 1e-12)

	tr, err := a.Transpose()
	require.NoError(t, err)
	out, err = ev.Eval(tr)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.At(0, 1))
	assert.Equal(t, 7.0, out.At(1, 0))
}

func TestEval_SumAndSubscript(t *testing.T) {
	v := fromSlice(t, 3, 1, []float64{1, 2, 4})
	ev := newEval()

	s, err := v.Sum()
	require.NoError(t, err)
	out, err := ev.Eval(s)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out.At(0, 0))

	el, err := Subscript(v, 2)
	require.NoError(t, err)
	out, err = ev.Eval(el)
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.At(0, 0))

	row := fromSlice(t, 1, 3, []float64{5, 6, 7})
	el, err = Subscript(row, 1)
	require.NoError(t, err)
	out, err = ev.Eval(el)
	require.NoError(t, err)
	assert.Equal(t, 6.0, out.At(0, 0))
}

func TestEval_Stack(t *testing.T) {
	a := fromSlice(t, 2, 2, []float64{1, 2, 3, 4})
	b := fromSlice(t, 1, 2, []float64{5, 6})
	ev := newEval()

	v, err := Stack(0, a, b)
	require.NoError(t, err)
	out, err := ev.Eval(v)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.At(0, 0))
	assert.Equal(t, 4.0, out.At(1, 1))
	assert.Equal(t, 5.0, out.At(2, 0))
	assert.Equal(t, 6.0, out.At(2, 1))

	c := fromSlice(t, 2, 1, []float64{7, 8})
	h, err := Stack(1, a, c)
	require.NoError(t, err)
	out, err = ev.Eval(h)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.At(0, 1))
	assert.Equal(t, 7.0, out.At(0, 2))
	assert.Equal(t, 8.0, out.At(1, 2))
}

func TestEval_Softmax(t *testing.T) {
	ev := newEval()

	row := fromSlice(t, 1, 3, []float64{1, 2, 3})
	s, err := row.Softmax()
	require.NoError(t, err)
	out, err := ev.Eval(s)
	require.NoError(t, err)
	total := out.At(0, 0) + out.At(0, 1) + out.At(0, 2)
	assert.InDelta(t, 1.0, total, 1e-12)
	assert.True(t, out.At(0, 0) < out.At(0, 1) && out.At(0, 1) < out.At(0, 2))

	// A column vector is one distribution.
	col := fromSlice(t, 3, 1, []float64{1, 2, 3})
	s, err = col.Softmax()
	require.NoError(t, err)
	out, err = ev.Eval(s)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.At(0, 0)+out.At(1, 0)+out.At(2, 0), 1e-12)

	// Each matrix row normalizes independently.
	m := fromSlice(t, 2, 2, []float64{1, 1, 0, 10})
	s, err = m.Softmax()
	require.NoError(t, err)
	out, err = ev.Eval(s)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, out.At(1, 0)+out.At(1, 1), 1e-12)

	// Degenerate single element.
	one, err := ParameterScalar(3).Softmax()
	require.NoError(t, err)
	out, err = ev.Eval(one)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.At(0, 0))
}

func TestEval_CrossEntropy(t *testing.T) {
	pred := fromSlice(t, 1, 2, []float64{0.5, 0.5})
	label := fromSlice(t, 1, 2, []float64{1, 0})

	ce, err := CrossEntropy(pred, label)
	require.NoError(t, err)
	out, err := newEval().Eval(ce)
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, out.At(0, 0), 1e-12)
}

func TestEval_Dropout(t *testing.T) {
	x := fromSlice(t, 2, 2, []float64{1, 2, 3, 4})

	// keep = 1 passes everything through unscaled.
	d, err := Dropout(x, ConstantScalar(1))
	require.NoError(t, err)
	out, err := newEval().Eval(d)
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.At(1, 1))

	// Each surviving element is scaled by 1/keep, dropped ones are zero.
	keep := 0.5
	d, err = Dropout(x, ConstantScalar(keep))
	require.NoError(t, err)
	ev := NewEvaluator(Config{Strict: true, Rand: rand.New(rand.NewSource(11))})
	out, err = ev.Eval(d)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			v := out.At(i, j)
			orig := x.Value().At(i, j)
			if v != 0 && math.Abs(v-orig/keep) > 1e-12 {
				t.Errorf("dropout value at (%d,%d) = %v, want 0 or %v", i, j, v, orig/keep)
			}
		}
	}
}

func TestEval_DropoutSeededReproducible(t *testing.T) {
	x := Parameter(matrix.Full(4, 4, 1))
	d, err := Dropout(x, ConstantScalar(0.3))
	require.NoError(t, err)

	run := func() *mat.Dense {
		ev := NewEvaluator(Config{Strict: true, Rand: rand.New(rand.NewSource(3))})
		out, err := ev.Eval(d)
		require.NoError(t, err)
		return matrix.Clone(out)
	}
	assert.True(t, mat.Equal(run(), run()))
}

func TestEval_DropoutDomain(t *testing.T) {
	x := fromSlice(t, 1, 2, []float64{1, 2})

	d, err := Dropout(x, ConstantScalar(0))
	require.NoError(t, err)
	_, err = newEval().Eval(d)
	assert.ErrorIs(t, err, ErrDomain)

	d, err = Dropout(x, ConstantScalar(1.5))
	require.NoError(t, err)
	_, err = newEval().Eval(d)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestEval_FreshPassSeesLeafUpdates(t *testing.T) {
	a := ParameterScalar(2)
	b := ParameterScalar(5)
	prod, err := a.Mul(b)
	require.NoError(t, err)

	ev := newEval()
	out, err := ev.Eval(prod)
	require.NoError(t, err)
	assert.Equal(t, 10.0, out.At(0, 0))

	require.NoError(t, a.SetScalar(3))
	out, err = ev.Eval(prod)
	require.NoError(t, err)
	assert.Equal(t, 15.0, out.At(0, 0))
}

func TestVar_SetValue(t *testing.T) {
	a := Parameter(matrix.Zeros(2, 2))
	assert.NoError(t, a.SetValue(matrix.Full(2, 2, 1)))
	assert.ErrorIs(t, a.SetValue(matrix.Zeros(3, 3)), ErrConstruction)

	sum, err := a.Sum()
	require.NoError(t, err)
	assert.ErrorIs(t, sum.SetScalar(0), ErrConstruction, "operator nodes cannot be assigned")
}

func TestVar_Equal(t *testing.T) {
	a := ParameterScalar(1)
	assert.True(t, a.Equal(a))

	// Untrainable scalar constants compare by value.
	assert.True(t, ConstantScalar(2).Equal(ConstantScalar(2)))
	assert.False(t, ConstantScalar(2).Equal(ConstantScalar(3)))

	// Trainable leaves compare by identity only.
	assert.False(t, ParameterScalar(2).Equal(ParameterScalar(2)))
	assert.False(t, a.Equal(Var{}))
}

func TestVar_DimsAndKind(t *testing.T) {
	a := Parameter(matrix.Zeros(2, 3))
	r, c := a.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, OpLeaf, a.Kind())
	assert.True(t, a.Trainable())
	assert.False(t, ConstantScalar(1).Trainable())

	tr, err := a.Transpose()
	require.NoError(t, err)
	r, c = tr.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, OpTranspose, tr.Kind())
}

func TestVar_Consumers(t *testing.T) {
	a := ParameterScalar(1)
	assert.Equal(t, 0, a.Consumers())

	b, err := a.Exp()
	require.NoError(t, err)
	assert.Equal(t, 1, a.Consumers())

	c, err := a.Mul(b)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Consumers())
	assert.Equal(t, 1, b.Consumers())
	_ = c
}

func TestTrainableLeaves(t *testing.T) {
	w := ParameterScalar(1)
	b := ParameterScalar(2)
	k := ConstantScalar(3)

	wx, err := w.Mul(k)
	require.NoError(t, err)
	y, err := wx.Add(b)
	require.NoError(t, err)

	leaves := TrainableLeaves(y)
	require.Len(t, leaves, 2)
	assert.True(t, leaves[0].Equal(w))
	assert.True(t, leaves[1].Equal(b))

	// Shared leaves are reported once.
	yy, err := y.Mul(y)
	require.NoError(t, err)
	assert.Len(t, TrainableLeaves(yy), 2)

	assert.Empty(t, TrainableLeaves(Var{}))
}

func TestOpKindString(t *testing.T) {
	assert.Equal(t, "crossEntropy", OpCrossEntropy.String())
	assert.Equal(t, "leaf", OpLeaf.String())
	assert.Equal(t, "measuredProb", OpMeasuredProb.String())
}
