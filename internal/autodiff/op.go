package autodiff

// OpKind identifies the operator a graph node applies to its operands. The
// set is closed: forward and backward behavior live in rule tables keyed by
// kind, and every switch over OpKind is exhaustive.
type OpKind uint8

// Operator kinds. OpLeaf marks value nodes with no operands.
const (
	OpLeaf OpKind = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpExp
	OpLog
	OpPow
	OpDot
	OpInverse
	OpTranspose
	OpSum
	OpStack
	OpSubscript
	OpSigmoid
	OpSoftmax
	OpCrossEntropy
	OpDropout
	OpExpectation
	OpMeasuredProb
)

var opNames = [...]string{
	OpLeaf:         "leaf",
	OpAdd:          "add",
	OpSub:          "sub",
	OpMul:          "mul",
	OpDiv:          "div",
	OpExp:          "exp",
	OpLog:          "log",
	OpPow:          "pow",
	OpDot:          "dot",
	OpInverse:      "inverse",
	OpTranspose:    "transpose",
	OpSum:          "sum",
	OpStack:        "stack",
	OpSubscript:    "subscript",
	OpSigmoid:      "sigmoid",
	OpSoftmax:      "softmax",
	OpCrossEntropy: "crossEntropy",
	OpDropout:      "dropout",
	OpExpectation:  "expectation",
	OpMeasuredProb: "measuredProb",
}

// String returns the operator's name.
func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return "unknown"
}

// arity returns the fixed operand count for k, or -1 for variadic kinds
// (stack and the circuit expectation family).
func (k OpKind) arity() int {
	switch k {
	case OpLeaf:
		return 0
	case OpExp, OpLog, OpInverse, OpTranspose, OpSum, OpSubscript, OpSigmoid, OpSoftmax:
		return 1
	case OpAdd, OpSub, OpMul, OpDiv, OpPow, OpDot, OpCrossEntropy, OpDropout:
		return 2
	case OpStack, OpExpectation, OpMeasuredProb:
		return -1
	}
	return -1
}
