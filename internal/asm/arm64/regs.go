package arm64

import (
	"strconv"

	"github.com/tinyrange/jitasm/internal/asm"
)

// General purpose registers. Register 31 is the stack pointer; the zero
// register is never an operand.
const (
	X0 asm.R = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	SP
)

// AAPCS64 register classes.
var (
	// ARG holds the integer argument registers in order.
	ARG = [...]asm.R{X0, X1, X2, X3, X4, X5, X6, X7}
	// RES holds the integer result registers.
	RES = [...]asm.R{X0, X1}
	// SAVE holds the callee saved registers.
	SAVE = [...]asm.R{X19, X20, X21, X22, X23, X24, X25, X26, X27, X28}
	// SC holds caller saved scratch registers.
	SC = [...]asm.R{X9, X10, X11, X12, X13, X14, X15}
)

// x16 and x17 (ip0, ip1) are reserved for sequences that need scratch space,
// such as large immediates and stack pointer operands.
const (
	tmp0 = X16
	tmp1 = X17
	zr   = 31
)

const numVRegs = 32

// RegName returns the assembler name of r.
func RegName(r asm.R) string {
	if r == SP {
		return "sp"
	}
	return "x" + strconv.Itoa(int(r))
}

func checkRegs(regs ...asm.R) error {
	for _, r := range regs {
		if r > SP || r == tmp0 || r == tmp1 {
			return asm.ErrInvalidRegister
		}
	}
	return nil
}

func checkVRegs(regs ...asm.V) error {
	for _, v := range regs {
		if v >= numVRegs {
			return asm.ErrInvalidRegister
		}
	}
	return nil
}

var condCodes = [...]uint32{
	asm.Eq:  0x0,
	asm.Ne:  0x1,
	asm.Sgt: 0xc,
	asm.Sge: 0xa,
	asm.Slt: 0xb,
	asm.Sle: 0xd,
	asm.Ugt: 0x8,
	asm.Uge: 0x2,
	asm.Ult: 0x3,
	asm.Ule: 0x9,
}

func condCode(c asm.Cond) (uint32, error) {
	if !c.Valid() {
		return 0, asm.ErrUnsupportedOperation
	}
	return condCodes[c], nil
}
