package amd64

import "github.com/tinyrange/jitasm/internal/asm"

// General purpose registers, numbered by their hardware encoding.
const (
	RAX asm.R = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// SP is the stack pointer.
const SP = RSP

// System V calling convention register classes.
var (
	// ARG holds the integer argument registers in order.
	ARG = [...]asm.R{RDI, RSI, RDX, RCX, R8, R9}
	// RES holds the integer result registers.
	RES = [...]asm.R{RAX, RDX}
	// SAVE holds the callee saved registers.
	SAVE = [...]asm.R{RBX, RBP, R12, R13, R14, R15}
	// SC holds caller saved scratch registers.
	SC = [...]asm.R{RAX, RCX, RDX, R8, R9, R10, R11}
)

const (
	numRegs  = 16
	numVRegs = 16
)

var regNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// RegName returns the assembler name of r.
func RegName(r asm.R) string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return r.String()
}

func checkRegs(regs ...asm.R) error {
	for _, r := range regs {
		if r >= numRegs {
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

func low(r asm.R) byte   { return byte(r) & 7 }
func high(r asm.R) bool  { return r >= 8 }
func vlow(v asm.V) byte  { return byte(v) & 7 }
func vhigh(v asm.V) bool { return v >= 8 }

// needsByteREX reports whether an 8-bit access to r needs a REX prefix to
// select spl/bpl/sil/dil instead of ah/ch/dh/bh.
func needsByteREX(r asm.R) bool {
	return r >= RSP
}

// condition codes used by jcc, setcc and cmovcc.
var condCodes = [...]byte{
	asm.Eq:  0x4,
	asm.Ne:  0x5,
	asm.Sgt: 0xf,
	asm.Sge: 0xd,
	asm.Slt: 0xc,
	asm.Sle: 0xe,
	asm.Ugt: 0x7,
	asm.Uge: 0x3,
	asm.Ult: 0x2,
	asm.Ule: 0x6,
}

func condCode(c asm.Cond) (byte, error) {
	if !c.Valid() {
		return 0, asm.ErrUnsupportedOperation
	}
	return condCodes[c], nil
}
