// Copyright 2026 Varq ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package circuit provides the public hybrid quantum circuit API of varq.
//
// A Circuit is an ordered gate sequence whose rotation angles may be numeric
// constants or symbols bound to classical graph values; an Observable is a
// weighted Pauli sum measured against the circuit's output state; a Machine
// executes bound programs. The autodiff package composes all three into
// differentiable expectation nodes.
//
// Example:
//
//	theta := autodiff.ParameterScalar(0.3)
//	c := circuit.New().
//		Append(circuit.H(0)).
//		Append(circuit.RX(0, theta)).
//		Append(circuit.CNOT(0, 1))
//	obs := circuit.NewObservable().
//		Term(1, circuit.FactorZ(0), circuit.FactorZ(1))
package circuit

import (
	internalcircuit "github.com/varq-ml/varq/internal/circuit"
)

// Circuit is an ordered gate sequence with circuit-level dagger and control
// modifiers.
type Circuit = internalcircuit.Circuit

// Gate is one entry of a circuit's gate sequence.
type Gate = internalcircuit.Gate

// GateKind identifies a gate.
type GateKind = internalcircuit.GateKind

// Gate kinds.
const (
	GateH    GateKind = internalcircuit.GateH
	GateX    GateKind = internalcircuit.GateX
	GateS    GateKind = internalcircuit.GateS
	GateSdg  GateKind = internalcircuit.GateSdg
	GateRX   GateKind = internalcircuit.GateRX
	GateRY   GateKind = internalcircuit.GateRY
	GateRZ   GateKind = internalcircuit.GateRZ
	GateCNOT GateKind = internalcircuit.GateCNOT
	GateCZ   GateKind = internalcircuit.GateCZ
	GateCRX  GateKind = internalcircuit.GateCRX
	GateCRY  GateKind = internalcircuit.GateCRY
	GateCRZ  GateKind = internalcircuit.GateCRZ
)

// Angle is a rotation magnitude, either a numeric constant or a symbol
// resolved at bind time.
type Angle = internalcircuit.Angle

// New creates an empty circuit.
func New() *Circuit {
	return internalcircuit.New()
}

// H creates a Hadamard gate on qubit q.
func H(q int) Gate { return internalcircuit.H(q) }

// X creates a Pauli-X gate on qubit q.
func X(q int) Gate { return internalcircuit.X(q) }

// S creates the phase gate diag(1, i) on qubit q.
func S(q int) Gate { return internalcircuit.S(q) }

// Sdg creates the adjoint phase gate diag(1, -i) on qubit q.
func Sdg(q int) Gate { return internalcircuit.Sdg(q) }

// RX creates an X-axis rotation on qubit q. The angle is a numeric constant
// or an opaque symbol bound later; passing an autodiff.Var makes the angle
// differentiable.
func RX(q int, angle any) Gate { return internalcircuit.RX(q, angle) }

// RY creates a Y-axis rotation on qubit q.
func RY(q int, angle any) Gate { return internalcircuit.RY(q, angle) }

// RZ creates a Z-axis rotation on qubit q.
func RZ(q int, angle any) Gate { return internalcircuit.RZ(q, angle) }

// CNOT creates a controlled-X gate.
func CNOT(control, target int) Gate { return internalcircuit.CNOT(control, target) }

// CZ creates a controlled-Z gate.
func CZ(control, target int) Gate { return internalcircuit.CZ(control, target) }

// CRX creates a controlled X-axis rotation.
func CRX(control, target int, angle any) Gate { return internalcircuit.CRX(control, target, angle) }

// CRY creates a controlled Y-axis rotation.
func CRY(control, target int, angle any) Gate { return internalcircuit.CRY(control, target, angle) }

// CRZ creates a controlled Z-axis rotation.
func CRZ(control, target int, angle any) Gate { return internalcircuit.CRZ(control, target, angle) }

// Pauli is a single-qubit measurement basis letter.
type Pauli = internalcircuit.Pauli

// Basis letters.
const (
	PauliX Pauli = internalcircuit.PauliX
	PauliY Pauli = internalcircuit.PauliY
	PauliZ Pauli = internalcircuit.PauliZ
)

// Factor is one basis letter applied to one qubit inside a term.
type Factor = internalcircuit.Factor

// FactorX returns an X-basis factor on qubit q.
func FactorX(q int) Factor { return internalcircuit.FactorX(q) }

// FactorY returns a Y-basis factor on qubit q.
func FactorY(q int) Factor { return internalcircuit.FactorY(q) }

// FactorZ returns a Z-basis factor on qubit q.
func FactorZ(q int) Factor { return internalcircuit.FactorZ(q) }

// Term is one weighted Pauli product of an observable.
type Term = internalcircuit.Term

// Observable is a weighted sum of Pauli terms.
type Observable = internalcircuit.Observable

// NewObservable creates an observable with no terms.
func NewObservable() *Observable {
	return internalcircuit.NewObservable()
}

// Machine executes bound programs. The simulator in backend/sim implements
// it; hardware adapters implement the same contract.
type Machine = internalcircuit.Machine

// Program is an immutable bound gate sequence with a measurement set.
type Program = internalcircuit.Program

// BoundGate is a gate with its angle resolved to a number.
type BoundGate = internalcircuit.BoundGate

// Result is one program execution outcome.
type Result = internalcircuit.Result

// Resolver maps a symbolic angle source to its current numeric value.
type Resolver = internalcircuit.Resolver

// ShiftPoint locates one occurrence of a symbolic angle in the bound gate
// sequence.
type ShiftPoint = internalcircuit.ShiftPoint
