// Package sim provides a dense statevector Machine for varq programs.
//
// Execution is deterministic and stateless: every call builds a fresh
// |0...0> register, applies the program's gates, and reads exact
// probabilities from the final amplitudes. Shot-based calls sample from the
// exact distribution using the machine's seedable random source, so runs
// reproduce bit for bit under the same seed.
package sim

import (
	"math"
	"math/bits"
	"math/rand"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/varq-ml/varq/internal/circuit"
)

// maxQubits caps the register width; the state vector holds 2^qubits
// amplitudes.
const maxQubits = 26

// Config controls simulator behavior.
type Config struct {
	Seed int64 // Seed for the shot-sampling source.
}

// DefaultConfig returns a fixed-seed configuration so shot-based runs are
// reproducible unless the caller chooses otherwise.
func DefaultConfig() Config {
	return Config{Seed: 1}
}

// Machine simulates programs on a dense statevector. It implements
// circuit.Machine.
type Machine struct {
	qubits int
	rng    *rand.Rand
}

// New creates a simulator for the given register width.
func New(qubits int, cfg Config) (*Machine, error) {
	if qubits < 1 || qubits > maxQubits {
		return nil, errors.Errorf("sim: %d qubits outside supported range 1..%d", qubits, maxQubits)
	}
	return &Machine{
		qubits: qubits,
		rng:    rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // statistical sampling
	}, nil
}

// Qubits returns the register width.
func (m *Machine) Qubits() int { return m.qubits }

// SupportsShift reports parameter-shift capability. A simulator evaluates
// any bound program, shifted or not.
func (m *Machine) SupportsShift(pos int) bool { return true }

// Execute runs prog and returns the Z-parity expectation over the measured
// qubits. See circuit.Machine for the exact contract.
func (m *Machine) Execute(prog *circuit.Program, shots int) (circuit.Result, error) {
	dist, err := m.Probabilities(prog, shots)
	if err != nil {
		return circuit.Result{}, err
	}
	e := 0.0
	for s, p := range dist {
		if bits.OnesCount(uint(s))&1 == 0 {
			e += p
		} else {
			e -= p
		}
	}
	res := circuit.Result{Expectation: e}
	if shots > 0 {
		res.Variance = (1 - e*e) / float64(shots)
		res.HasVariance = true
	}
	return res, nil
}

// Probabilities runs prog and returns the distribution over the measured
// qubits' basis states, exact for shots == 0 and sampled otherwise.
func (m *Machine) Probabilities(prog *circuit.Program, shots int) ([]float64, error) {
	if shots < 0 {
		return nil, errors.Errorf("sim: negative shot count %d", shots)
	}
	if err := m.checkMeasure(prog.Measure); err != nil {
		return nil, err
	}
	st, err := m.run(prog)
	if err != nil {
		return nil, err
	}
	dist := marginal(st, prog.Measure)
	if shots > 0 {
		dist = m.sample(dist, shots)
	}
	klog.V(1).Infof("sim: %d gates, %d measured qubits, shots=%d", len(prog.Gates), len(prog.Measure), shots)
	return dist, nil
}

func (m *Machine) checkMeasure(measure []int) error {
	seen := make(map[int]bool, len(measure))
	for _, q := range measure {
		if q < 0 || q >= m.qubits {
			return errors.Errorf("sim: measured qubit %d outside %d-qubit register", q, m.qubits)
		}
		if seen[q] {
			return errors.Errorf("sim: qubit %d measured twice", q)
		}
		seen[q] = true
	}
	return nil
}

// run prepares |0...0> and applies every gate in order.
func (m *Machine) run(prog *circuit.Program) ([]complex128, error) {
	st := make([]complex128, 1<<m.qubits)
	st[0] = 1
	for i, g := range prog.Gates {
		if err := m.apply(st, g); err != nil {
			return nil, errors.Wrapf(err, "sim: gate %d (%s)", i, g.Kind)
		}
	}
	return st, nil
}

// apply updates the state through one controlled single-qubit unitary. For
// each pair of basis states differing only in the target bit, and only
// where every control bit is set, the 2x2 gate matrix mixes the pair's
// amplitudes.
func (m *Machine) apply(st []complex128, g circuit.BoundGate) error {
	if g.Target < 0 || g.Target >= m.qubits {
		return errors.Errorf("target %d outside %d-qubit register", g.Target, m.qubits)
	}
	ctrlMask := 0
	for _, c := range g.Controls {
		if c < 0 || c >= m.qubits {
			return errors.Errorf("control %d outside %d-qubit register", c, m.qubits)
		}
		if c == g.Target {
			return errors.Errorf("control %d equals target", c)
		}
		ctrlMask |= 1 << c
	}
	u, ok := gateMatrix(g)
	if !ok {
		return errors.Errorf("unsupported gate kind %s", g.Kind)
	}
	bit := 1 << g.Target
	for i := range st {
		if i&bit != 0 || i&ctrlMask != ctrlMask {
			continue
		}
		j := i | bit
		a, b := st[i], st[j]
		st[i] = u[0][0]*a + u[0][1]*b
		st[j] = u[1][0]*a + u[1][1]*b
	}
	return nil
}

// gateMatrix returns the 2x2 unitary for g's kind. Controlled kinds reduce
// to their single-qubit matrix; the control qubits are handled by apply.
func gateMatrix(g circuit.BoundGate) ([2][2]complex128, bool) {
	half := g.Theta / 2
	switch g.Kind {
	case circuit.GateH:
		h := complex(1/math.Sqrt2, 0)
		return [2][2]complex128{{h, h}, {h, -h}}, true
	case circuit.GateX, circuit.GateCNOT:
		return [2][2]complex128{{0, 1}, {1, 0}}, true
	case circuit.GateS:
		return [2][2]complex128{{1, 0}, {0, complex(0, 1)}}, true
	case circuit.GateSdg:
		return [2][2]complex128{{1, 0}, {0, complex(0, -1)}}, true
	case circuit.GateCZ:
		return [2][2]complex128{{1, 0}, {0, -1}}, true
	case circuit.GateRX, circuit.GateCRX:
		c := complex(math.Cos(half), 0)
		js := complex(0, -math.Sin(half))
		return [2][2]complex128{{c, js}, {js, c}}, true
	case circuit.GateRY, circuit.GateCRY:
		c := complex(math.Cos(half), 0)
		s := complex(math.Sin(half), 0)
		return [2][2]complex128{{c, -s}, {s, c}}, true
	case circuit.GateRZ, circuit.GateCRZ:
		return [2][2]complex128{
			{complex(math.Cos(half), -math.Sin(half)), 0},
			{0, complex(math.Cos(half), math.Sin(half))},
		}, true
	}
	return [2][2]complex128{}, false
}

// marginal folds the state's probabilities onto the measured qubits. Bit k
// of an output index corresponds to measure[k].
func marginal(st []complex128, measure []int) []float64 {
	out := make([]float64, 1<<len(measure))
	for i, amp := range st {
		p := real(amp)*real(amp) + imag(amp)*imag(amp)
		if p == 0 {
			continue
		}
		idx := 0
		for k, q := range measure {
			if i&(1<<q) != 0 {
				idx |= 1 << k
			}
		}
		out[idx] += p
	}
	return out
}

// sample replaces an exact distribution with frequencies over shots draws.
func (m *Machine) sample(dist []float64, shots int) []float64 {
	counts := make([]float64, len(dist))
	for s := 0; s < shots; s++ {
		u := m.rng.Float64()
		acc := 0.0
		idx := len(dist) - 1
		for k, p := range dist {
			acc += p
			if u < acc {
				idx = k
				break
			}
		}
		counts[idx]++
	}
	for k := range counts {
		counts[k] /= float64(shots)
	}
	return counts
}
