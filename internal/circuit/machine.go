package circuit

// BoundGate is one fully resolved gate of a program: every control is
// explicit and the angle is numeric.
type BoundGate struct {
	Kind     GateKind
	Target   int
	Controls []int
	Theta    float64
}

// Program is an immutable bound circuit plus the qubits whose joint Z-basis
// statistics the machine reports. Basis changes for X and Y measurements
// are already part of the gate sequence.
type Program struct {
	Gates   []BoundGate
	Measure []int
}

// Result is the outcome of one program execution. Variance is populated
// only for shot-based execution, where the estimate carries statistical
// noise with variance proportional to 1/shots.
type Result struct {
	Expectation float64
	Variance    float64
	HasVariance bool
}

// Machine executes bound programs. Implementations may simulate or submit
// to hardware; either way a call is synchronous, and timeout or retry
// policy belongs to the implementation, never to the engine. Any failure is
// propagated to the caller unretried.
type Machine interface {
	// Qubits returns the register width programs may address.
	Qubits() int

	// Execute runs prog and returns the expectation of the Z-parity over
	// prog.Measure: +1 weight for basis states with an even number of set
	// measured bits, -1 for odd. An empty measure set yields expectation 1.
	// shots == 0 requests the exact value; shots > 0 estimates it from that
	// many samples and reports the estimator variance.
	Execute(prog *Program, shots int) (Result, error)

	// Probabilities runs prog and returns the distribution over the
	// 2^len(prog.Measure) basis states of the measured qubits. Bit k of a
	// state index corresponds to prog.Measure[k], least significant first.
	// shots > 0 returns sampled frequencies instead of exact values.
	Probabilities(prog *Program, shots int) ([]float64, error)

	// SupportsShift reports whether the executor can evaluate a program
	// whose rotation angle at bound-gate position pos is offset, the
	// capability the parameter-shift differentiator requires.
	SupportsShift(pos int) bool
}
