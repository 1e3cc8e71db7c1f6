// Package circuit provides the hybrid quantum circuit surface of varq:
// gates whose rotation angles may bind to classical graph values, Pauli
// observables with optionally graph-valued coefficients, and the Machine
// interface every execution backend implements.
//
// A Circuit is built once and bound many times. Binding resolves every
// symbolic angle through a caller-supplied Resolver and produces an
// immutable Program a Machine can execute; nothing in this package touches
// quantum state.
package circuit

import "fmt"

// GateKind identifies a gate. The set is closed; rotation kinds carry an
// angle, the rest ignore it.
type GateKind uint8

// Gate kinds. GateS and GateSdg appear in bound programs for measurement
// basis changes and are also accepted in hand-built circuits.
const (
	GateH GateKind = iota
	GateX
	GateS
	GateSdg
	GateRX
	GateRY
	GateRZ
	GateCNOT
	GateCZ
	GateCRX
	GateCRY
	GateCRZ
)

var gateNames = [...]string{
	GateH:    "H",
	GateX:    "X",
	GateS:    "S",
	GateSdg:  "Sdg",
	GateRX:   "RX",
	GateRY:   "RY",
	GateRZ:   "RZ",
	GateCNOT: "CNOT",
	GateCZ:   "CZ",
	GateCRX:  "CRX",
	GateCRY:  "CRY",
	GateCRZ:  "CRZ",
}

// String returns the gate's conventional name.
func (k GateKind) String() string {
	if int(k) < len(gateNames) {
		return gateNames[k]
	}
	return fmt.Sprintf("gate(%d)", k)
}

// Rotation reports whether k is parameterized by an angle.
func (k GateKind) Rotation() bool {
	switch k {
	case GateRX, GateRY, GateRZ, GateCRX, GateCRY, GateCRZ:
		return true
	}
	return false
}

// Angle is a rotation magnitude: either a numeric constant or an opaque
// symbol resolved when the circuit is bound. Symbols are compared with ==
// and must be comparable values.
type Angle struct {
	Const  float64
	Symbol any // non-nil marks a symbolic angle
}

// toAngle accepts a numeric constant or treats any other value as a symbol.
func toAngle(a any) Angle {
	switch x := a.(type) {
	case float64:
		return Angle{Const: x}
	case float32:
		return Angle{Const: float64(x)}
	case int:
		return Angle{Const: float64(x)}
	default:
		return Angle{Symbol: a}
	}
}

// Gate is one entry of a circuit's gate sequence.
type Gate struct {
	Kind     GateKind
	Target   int
	Controls []int
	Angle    Angle
	Dag      bool
}

// H creates a Hadamard gate on qubit q.
func H(q int) Gate { return Gate{Kind: GateH, Target: q} }

// X creates a Pauli-X gate on qubit q.
func X(q int) Gate { return Gate{Kind: GateX, Target: q} }

// S creates the phase gate diag(1, i) on qubit q.
func S(q int) Gate { return Gate{Kind: GateS, Target: q} }

// Sdg creates the adjoint phase gate diag(1, -i) on qubit q.
func Sdg(q int) Gate { return Gate{Kind: GateSdg, Target: q} }

// RX creates an X-axis rotation on qubit q. The angle is a numeric constant
// or an opaque symbol bound later.
func RX(q int, angle any) Gate { return Gate{Kind: GateRX, Target: q, Angle: toAngle(angle)} }

// RY creates a Y-axis rotation on qubit q.
func RY(q int, angle any) Gate { return Gate{Kind: GateRY, Target: q, Angle: toAngle(angle)} }

// RZ creates a Z-axis rotation on qubit q.
func RZ(q int, angle any) Gate { return Gate{Kind: GateRZ, Target: q, Angle: toAngle(angle)} }

// CNOT creates a controlled-X gate.
func CNOT(control, target int) Gate {
	return Gate{Kind: GateCNOT, Target: target, Controls: []int{control}}
}

// CZ creates a controlled-Z gate. The gate is symmetric in its qubits.
func CZ(control, target int) Gate {
	return Gate{Kind: GateCZ, Target: target, Controls: []int{control}}
}

// CRX creates a controlled X-axis rotation.
func CRX(control, target int, angle any) Gate {
	return Gate{Kind: GateCRX, Target: target, Controls: []int{control}, Angle: toAngle(angle)}
}

// CRY creates a controlled Y-axis rotation.
func CRY(control, target int, angle any) Gate {
	return Gate{Kind: GateCRY, Target: target, Controls: []int{control}, Angle: toAngle(angle)}
}

// CRZ creates a controlled Z-axis rotation.
func CRZ(control, target int, angle any) Gate {
	return Gate{Kind: GateCRZ, Target: target, Controls: []int{control}, Angle: toAngle(angle)}
}

// Dagger returns the gate's adjoint. Rotations negate their angle at bind
// time; S and Sdg swap; the remaining kinds are self-adjoint.
func (g Gate) Dagger() Gate {
	g.Dag = !g.Dag
	g.Controls = append([]int(nil), g.Controls...)
	return g
}

// Controlled returns a copy of the gate with extra control qubits.
func (g Gate) Controlled(qs ...int) Gate {
	controls := make([]int, 0, len(g.Controls)+len(qs))
	controls = append(controls, g.Controls...)
	controls = append(controls, qs...)
	g.Controls = controls
	return g
}

// maxQubit returns the largest qubit index the gate touches.
func (g Gate) maxQubit() int {
	q := g.Target
	for _, c := range g.Controls {
		if c > q {
			q = c
		}
	}
	return q
}
