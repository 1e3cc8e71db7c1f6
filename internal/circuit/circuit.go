package circuit

import (
	"github.com/pkg/errors"
)

// Circuit is an ordered gate sequence with circuit-level dagger and control
// modifiers. The sequence is fixed once built; only symbolic rotation
// angles change between bindings.
//
// Example:
//
//	c := circuit.New().
//		Append(circuit.H(0)).
//		Append(circuit.RX(0, theta)).
//		Append(circuit.CNOT(0, 1))
type Circuit struct {
	gates    []Gate
	dag      bool
	controls []int
}

// New creates an empty circuit.
func New() *Circuit {
	return &Circuit{}
}

// Append adds gates in order and returns the circuit for chaining.
func (c *Circuit) Append(gs ...Gate) *Circuit {
	c.gates = append(c.gates, gs...)
	return c
}

// Extend appends every gate of other (with other's dagger and control
// modifiers applied) and returns the circuit for chaining.
func (c *Circuit) Extend(other *Circuit) *Circuit {
	c.gates = append(c.gates, other.normalized()...)
	return c
}

// Size returns the number of gates appended so far.
func (c *Circuit) Size() int { return len(c.gates) }

// Dagger returns a copy of the circuit with the dagger flag toggled. The
// bound gate order reverses and every gate is replaced by its adjoint.
func (c *Circuit) Dagger() *Circuit {
	out := c.clone()
	out.dag = !out.dag
	return out
}

// Controlled returns a copy of the circuit with qs added to every gate's
// control set at bind time.
func (c *Circuit) Controlled(qs ...int) *Circuit {
	out := c.clone()
	out.controls = append(out.controls, qs...)
	return out
}

func (c *Circuit) clone() *Circuit {
	return &Circuit{
		gates:    append([]Gate(nil), c.gates...),
		dag:      c.dag,
		controls: append([]int(nil), c.controls...),
	}
}

// MaxQubit returns the largest qubit index any gate or control touches, or
// -1 for an empty circuit.
func (c *Circuit) MaxQubit() int {
	q := -1
	for _, g := range c.gates {
		if m := g.maxQubit(); m > q {
			q = m
		}
	}
	for _, ctl := range c.controls {
		if ctl > q {
			q = ctl
		}
	}
	return q
}

// normalized folds the circuit's dagger flag and control set into a flat
// gate sequence. All symbol positions (Positions, BindShifted) index this
// sequence.
func (c *Circuit) normalized() []Gate {
	out := make([]Gate, 0, len(c.gates))
	appendOne := func(g Gate) {
		dag := g.Dag != c.dag
		if dag {
			switch g.Kind {
			case GateS:
				g.Kind = GateSdg
				dag = false
			case GateSdg:
				g.Kind = GateS
				dag = false
			case GateH, GateX, GateCNOT, GateCZ:
				dag = false
			}
		}
		g.Dag = dag // only rotations remain daggered here
		if len(c.controls) > 0 {
			g = g.Controlled(c.controls...)
		}
		out = append(out, g)
	}
	if c.dag {
		for i := len(c.gates) - 1; i >= 0; i-- {
			appendOne(c.gates[i])
		}
	} else {
		for _, g := range c.gates {
			appendOne(g)
		}
	}
	return out
}

// Symbols returns the distinct symbolic angle sources in bound gate order.
func (c *Circuit) Symbols() []any {
	var out []any
	seen := make(map[any]bool)
	for _, g := range c.normalized() {
		s := g.Angle.Symbol
		if s == nil || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ShiftPoint locates one occurrence of a symbolic angle in the bound gate
// sequence. Sign is -1 when the dagger flag negates the source value at
// that position, which flips the direction a parameter shift must take.
type ShiftPoint struct {
	Pos  int
	Sign float64
}

// Positions returns every bound-gate position whose angle binds to sym.
func (c *Circuit) Positions(sym any) []ShiftPoint {
	var out []ShiftPoint
	for i, g := range c.normalized() {
		if g.Angle.Symbol != sym {
			continue
		}
		sign := 1.0
		if g.Dag {
			sign = -1.0
		}
		out = append(out, ShiftPoint{Pos: i, Sign: sign})
	}
	return out
}

// Resolver maps a symbolic angle source to its current numeric value.
type Resolver func(sym any) (float64, error)

// Bind resolves every symbolic angle and produces an immutable program.
// Binding is pure: the circuit is not modified and may be bound again with
// different values.
func (c *Circuit) Bind(resolve Resolver) (*Program, error) {
	return c.bind(-1, 0, resolve)
}

// BindShifted binds the circuit with the rotation angle at bound-gate
// position pos offset by delta. This is the parameter-shift primitive: the
// differentiator binds twice per occurrence, at +pi/2 and -pi/2 (scaled by
// the occurrence's Sign), and differences the expectations.
func (c *Circuit) BindShifted(pos int, delta float64, resolve Resolver) (*Program, error) {
	if pos < 0 || pos >= len(c.gates) {
		return nil, errors.Errorf("BindShifted: position %d outside circuit of %d gates", pos, len(c.gates))
	}
	return c.bind(pos, delta, resolve)
}

func (c *Circuit) bind(shiftPos int, delta float64, resolve Resolver) (*Program, error) {
	norm := c.normalized()
	gates := make([]BoundGate, len(norm))
	for i, g := range norm {
		theta := g.Angle.Const
		if g.Angle.Symbol != nil {
			if resolve == nil {
				return nil, errors.Errorf("Bind: no resolver for symbolic angle at gate %d", i)
			}
			v, err := resolve(g.Angle.Symbol)
			if err != nil {
				return nil, err
			}
			theta = v
		}
		if g.Dag {
			theta = -theta
		}
		if i == shiftPos {
			if !g.Kind.Rotation() {
				return nil, errors.Errorf("BindShifted: gate %d (%s) carries no angle", i, g.Kind)
			}
			theta += delta
		}
		gates[i] = BoundGate{
			Kind:     g.Kind,
			Target:   g.Target,
			Controls: append([]int(nil), g.Controls...),
			Theta:    theta,
		}
	}
	return &Program{Gates: gates}, nil
}
