// Copyright 2026 Varq ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sim provides the statevector simulator backend.
//
// The simulator executes bound programs exactly and optionally resamples
// outcomes under a finite shot budget. It supports shifted rotation angles
// at every position, so parameter-shift gradients work without restriction.
//
// Example:
//
//	m, err := sim.New(2, sim.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	e, err := autodiff.Expectation(c, obs, m)
package sim

import (
	internalsim "github.com/varq-ml/varq/internal/backend/sim"

	"github.com/varq-ml/varq/circuit"
)

// Machine is the statevector simulator.
type Machine = internalsim.Machine

// Compile-time check that Machine implements circuit.Machine.
var _ circuit.Machine = (*Machine)(nil)

// Config controls simulator behavior.
type Config = internalsim.Config

// DefaultConfig returns the standard simulator configuration with a fixed
// sampling seed.
func DefaultConfig() Config {
	return internalsim.DefaultConfig()
}

// New creates a simulator over the given number of qubits.
func New(qubits int, cfg Config) (*Machine, error) {
	return internalsim.New(qubits, cfg)
}
