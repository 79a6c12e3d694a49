package graph

// Opcode identifies the operation a Node performs. The set is closed: the
// forward and reverse emitters switch over every value below, and anything
// new must grow this list first.
type Opcode uint16

const (
	Input Opcode = iota
	Constant

	// Real-domain arithmetic
	Add
	Sub
	Mul
	Div
	Neg
	Abs
	Square
	Recip
	Mod
	Exp
	Log
	Sqrt
	Pow
	Sin
	Cos
	Tan
	Min
	Max
	If

	// Real-domain comparisons (produce a Bool)
	CmpLT
	CmpLE
	CmpGT
	CmpGE
	CmpEQ
	CmpNE

	// Boolean domain
	BoolConstant
	BoolAnd
	BoolOr
	BoolNot
	BoolEq
	BoolNe

	// Integer domain
	IntConstant
	IntAdd
	IntSub
	IntMul
	IntDiv
	IntMod
	IntNeg
	IntCmpLT
	IntCmpLE
	IntCmpGT
	IntCmpGE
	IntCmpEQ
	IntCmpNE
	IntIf

	// Reserved but never emitted directly by the recorder (see §4.1):
	// array[i] is always lowered to a chain of If nodes at record time.
	ArrayIndex
)

var opcodeNames = map[Opcode]string{
	Input:        "Input",
	Constant:     "Constant",
	Add:          "Add",
	Sub:          "Sub",
	Mul:          "Mul",
	Div:          "Div",
	Neg:          "Neg",
	Abs:          "Abs",
	Square:       "Square",
	Recip:        "Recip",
	Mod:          "Mod",
	Exp:          "Exp",
	Log:          "Log",
	Sqrt:         "Sqrt",
	Pow:          "Pow",
	Sin:          "Sin",
	Cos:          "Cos",
	Tan:          "Tan",
	Min:          "Min",
	Max:          "Max",
	If:           "If",
	CmpLT:        "CmpLT",
	CmpLE:        "CmpLE",
	CmpGT:        "CmpGT",
	CmpGE:        "CmpGE",
	CmpEQ:        "CmpEQ",
	CmpNE:        "CmpNE",
	BoolConstant: "BoolConstant",
	BoolAnd:      "BoolAnd",
	BoolOr:       "BoolOr",
	BoolNot:      "BoolNot",
	BoolEq:       "BoolEq",
	BoolNe:       "BoolNe",
	IntConstant:  "IntConstant",
	IntAdd:       "IntAdd",
	IntSub:       "IntSub",
	IntMul:       "IntMul",
	IntDiv:       "IntDiv",
	IntMod:       "IntMod",
	IntNeg:       "IntNeg",
	IntCmpLT:     "IntCmpLT",
	IntCmpLE:     "IntCmpLE",
	IntCmpGT:     "IntCmpGT",
	IntCmpGE:     "IntCmpGE",
	IntCmpEQ:     "IntCmpEQ",
	IntCmpNE:     "IntCmpNE",
	IntIf:        "IntIf",
	ArrayIndex:   "ArrayIndex",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "?unknown?"
}

// IsComparison reports whether op produces a Bool and has zero real
// derivative during AAD propagation (spec §4.7, point 4).
func (op Opcode) IsComparison() bool {
	switch op {
	case CmpLT, CmpLE, CmpGT, CmpGE, CmpEQ, CmpNE,
		IntCmpLT, IntCmpLE, IntCmpGT, IntCmpGE, IntCmpEQ, IntCmpNE,
		BoolEq, BoolNe:
		return true
	default:
		return false
	}
}

// IsBoolLogic reports whether op is a boolean connective (And/Or/Not),
// also zero real derivative.
func (op Opcode) IsBoolLogic() bool {
	switch op {
	case BoolAnd, BoolOr, BoolNot:
		return true
	default:
		return false
	}
}

// IsIntDomain reports whether op operates purely on the integer domain.
// Integer nodes never generate derivative code (spec §4.7).
func (op Opcode) IsIntDomain() bool {
	switch op {
	case IntConstant, IntAdd, IntSub, IntMul, IntDiv, IntMod, IntNeg,
		IntCmpLT, IntCmpLE, IntCmpGT, IntCmpGE, IntCmpEQ, IntCmpNE, IntIf:
		return true
	default:
		return false
	}
}

// IsBoolDomain reports whether op operates purely on the boolean domain.
func (op Opcode) IsBoolDomain() bool {
	switch op {
	case BoolConstant, BoolAnd, BoolOr, BoolNot, BoolEq, BoolNe:
		return true
	default:
		return false
	}
}

// NumOperands returns how many of a, b, c a node of this opcode uses.
func (op Opcode) NumOperands() int {
	switch op {
	case Input, Constant, BoolConstant, IntConstant:
		return 0
	case Neg, Abs, Square, Recip, Sqrt, Exp, Log, Sin, Cos, Tan, BoolNot, IntNeg:
		return 1
	case If, IntIf:
		return 3
	default:
		return 2
	}
}
