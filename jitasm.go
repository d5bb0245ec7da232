// Package jitasm assembles architecture neutral virtual instructions into
// native x86-64 or AArch64 machine code and runs it in process.
//
// A program is a []Ins. Emit resolves it into a Program on any host; Assemble
// additionally maps it into executable memory so it can be called with
// Executable.Invoke.
package jitasm

import (
	"fmt"

	"github.com/tinyrange/jitasm/internal/asm"
	"github.com/tinyrange/jitasm/internal/asm/amd64"
	"github.com/tinyrange/jitasm/internal/asm/arm64"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from internal/asm
// -----------------------------------------------------------------------------

// Ins is a virtual instruction.
type Ins = asm.Ins

// R is an integer register.
type R = asm.R

// V is a vector register.
type V = asm.V

// Src is a register, vector register or immediate operand.
type Src = asm.Src

// Type is a scalar element type.
type Type = asm.Type

// Vsize is a vector width.
type Vsize = asm.Vsize

// Cond is a comparison outcome tested by B and Sel.
type Cond = asm.Cond

// CpuLevel caps the vector width an assembly may use.
type CpuLevel = asm.CpuLevel

// Label identifies a position in a program.
type Label = asm.Label

// Arch names a target instruction set.
type Arch = asm.Arch

// Program is resolved machine code that has not been mapped.
type Program = asm.Program

// Executable is a Program mapped into executable memory.
type Executable = asm.Executable

// Error wraps an assembly or invocation failure.
type Error = asm.Error

// ELFConfig controls Program.StandaloneELFWithConfig.
type ELFConfig = asm.ELFConfig

// Operation selectors.
type (
	BinOp  = asm.BinOp
	UnOp   = asm.UnOp
	VBinOp = asm.VBinOp
	VUnOp  = asm.VUnOp
)

// Instruction types.
type (
	DefLabel = asm.DefLabel
	Enter    = asm.Enter
	Leave    = asm.Leave
	Addr     = asm.Addr
	Ld       = asm.Ld
	St       = asm.St
	Vld      = asm.Vld
	Vst      = asm.Vst
	Binary   = asm.Binary
	Unary    = asm.Unary
	Cmp      = asm.Cmp
	VBinary  = asm.VBinary
	VUnary   = asm.VUnary
	Vmovi    = asm.Vmovi
	Call     = asm.Call
	Branch   = asm.Branch
	B        = asm.B
	J        = asm.J
	Sel      = asm.Sel
	Ret      = asm.Ret
	Data     = asm.Data
)

// Architectures.
const (
	AMD64 = asm.ArchAMD64
	ARM64 = asm.ArchARM64
)

// Capability levels.
const (
	Scalar      = asm.Scalar
	Simd128     = asm.Simd128
	Simd256     = asm.Simd256
	Simd512     = asm.Simd512
	MaxCpuLevel = asm.MaxCpuLevel
)

// Conditions.
const (
	Eq  = asm.Eq
	Ne  = asm.Ne
	Sgt = asm.Sgt
	Sge = asm.Sge
	Slt = asm.Slt
	Sle = asm.Sle
	Ugt = asm.Ugt
	Uge = asm.Uge
	Ult = asm.Ult
	Ule = asm.Ule
)

// Element types.
const (
	U8   = asm.U8
	U16  = asm.U16
	U32  = asm.U32
	U64  = asm.U64
	U128 = asm.U128
	U256 = asm.U256
	S8   = asm.S8
	S16  = asm.S16
	S32  = asm.S32
	S64  = asm.S64
	S128 = asm.S128
	S256 = asm.S256
	F8   = asm.F8
	F16  = asm.F16
	F32  = asm.F32
	F64  = asm.F64
	F128 = asm.F128
	F256 = asm.F256
)

// Vector widths.
const (
	V128  = asm.V128
	V256  = asm.V256
	V512  = asm.V512
	V1024 = asm.V1024
	V2048 = asm.V2048
)

// Operations.
const (
	OpAdd  = asm.OpAdd
	OpSub  = asm.OpSub
	OpAnd  = asm.OpAnd
	OpOr   = asm.OpOr
	OpXor  = asm.OpXor
	OpShl  = asm.OpShl
	OpShr  = asm.OpShr
	OpSar  = asm.OpSar
	OpMul  = asm.OpMul
	OpUdiv = asm.OpUdiv
	OpSdiv = asm.OpSdiv

	OpMov = asm.OpMov
	OpNot = asm.OpNot
	OpNeg = asm.OpNeg

	OpVadd = asm.OpVadd
	OpVsub = asm.OpVsub
	OpVand = asm.OpVand
	OpVor  = asm.OpVor
	OpVxor = asm.OpVxor
	OpVshl = asm.OpVshl
	OpVshr = asm.OpVshr
	OpVmul = asm.OpVmul

	OpVmov    = asm.OpVmov
	OpVnot    = asm.OpVnot
	OpVneg    = asm.OpVneg
	OpVrecpe  = asm.OpVrecpe
	OpVrsqrte = asm.OpVrsqrte
)

// Sentinel errors.
var (
	ErrInvalidRegister            = asm.ErrInvalidRegister
	ErrInvalidRegs                = asm.ErrInvalidRegs
	ErrInvalidImmediate           = asm.ErrInvalidImmediate
	ErrInvalidType                = asm.ErrInvalidType
	ErrInvalidDataType            = asm.ErrInvalidDataType
	ErrInvalidAddress             = asm.ErrInvalidAddress
	ErrInvalidSrc                 = asm.ErrInvalidSrc
	ErrStackFrameAlignment        = asm.ErrStackFrameAlignment
	ErrDuplicateLabel             = asm.ErrDuplicateLabel
	ErrUnsupportedOperation       = asm.ErrUnsupportedOperation
	ErrUnsupportedVectorOperation = asm.ErrUnsupportedVectorOperation
	ErrVectorSizeNotSupported     = asm.ErrVectorSizeNotSupported
	ErrVectorTypeNotSupported     = asm.ErrVectorTypeNotSupported

	ErrMissingLabel     = asm.ErrMissingLabel
	ErrBranchOutOfRange = asm.ErrBranchOutOfRange
	ErrBranchMisaligned = asm.ErrBranchMisaligned
	ErrOffsetTooLarge   = asm.ErrOffsetTooLarge

	ErrCpuLevelTooLow = asm.ErrCpuLevelTooLow

	ErrCodeTooBig          = asm.ErrCodeTooBig
	ErrInvalidArgs         = asm.ErrInvalidArgs
	ErrInvalidOffset       = asm.ErrInvalidOffset
	ErrClosed              = asm.ErrClosed
	ErrForeignArch         = asm.ErrForeignArch
	ErrUnsupportedPlatform = asm.ErrUnsupportedPlatform
)

// -----------------------------------------------------------------------------
// Operands and instruction helpers
// -----------------------------------------------------------------------------

// Reg is a register operand.
func Reg(r R) Src { return asm.Reg(r) }

// VReg is a vector register operand.
func VReg(v V) Src { return asm.VReg(v) }

// Imm is an immediate operand.
func Imm(v int64) Src { return asm.Imm(v) }

func Add(dst, a R, b Src) Ins  { return asm.Add(dst, a, b) }
func Sub(dst, a R, b Src) Ins  { return asm.Sub(dst, a, b) }
func And(dst, a R, b Src) Ins  { return asm.And(dst, a, b) }
func Or(dst, a R, b Src) Ins   { return asm.Or(dst, a, b) }
func Xor(dst, a R, b Src) Ins  { return asm.Xor(dst, a, b) }
func Shl(dst, a R, b Src) Ins  { return asm.Shl(dst, a, b) }
func Shr(dst, a R, b Src) Ins  { return asm.Shr(dst, a, b) }
func Sar(dst, a R, b Src) Ins  { return asm.Sar(dst, a, b) }
func Mul(dst, a R, b Src) Ins  { return asm.Mul(dst, a, b) }
func Udiv(dst, a R, b Src) Ins { return asm.Udiv(dst, a, b) }
func Sdiv(dst, a R, b Src) Ins { return asm.Sdiv(dst, a, b) }

func Mov(dst R, src Src) Ins { return asm.Mov(dst, src) }
func Not(dst R, src Src) Ins { return asm.Not(dst, src) }
func Neg(dst R, src Src) Ins { return asm.Neg(dst, src) }

// Movi loads the 64-bit pattern v into dst.
func Movi(dst R, v uint64) Ins { return asm.Movi(dst, v) }

// Cmpi compares a with the 64-bit pattern v.
func Cmpi(a R, v uint64) Ins { return asm.Cmpi(a, v) }

// -----------------------------------------------------------------------------
// Assembly
// -----------------------------------------------------------------------------

// Emit assembles ins for arch without mapping it. It works on any host.
func Emit(arch Arch, ins []Ins, level CpuLevel) (Program, error) {
	return asm.Emit(arch, ins, level)
}

// Assemble emits ins for arch and maps the result. arch must be the host
// architecture.
func Assemble(arch Arch, ins []Ins) (*Executable, error) {
	return asm.Assemble(arch, ins)
}

// AssembleWithCeiling is Assemble with vector widths capped by level.
func AssembleWithCeiling(arch Arch, ins []Ins, level CpuLevel) (*Executable, error) {
	return asm.AssembleWithCeiling(arch, ins, level)
}

// HostArch returns the architecture of the running process, or "" when no
// backend targets it.
func HostArch() Arch { return asm.HostArch() }

// ParseArch accepts Go and ELF style architecture names.
func ParseArch(s string) (Arch, error) { return asm.ParseArch(s) }

// ParseCpuLevel returns the capability level named s.
func ParseCpuLevel(s string) (CpuLevel, error) { return asm.ParseCpuLevel(s) }

// Conds lists every condition.
func Conds() []Cond { return asm.Conds() }

// DefaultELFConfig returns the layout used by Program.StandaloneELF.
func DefaultELFConfig() ELFConfig { return asm.DefaultELFConfig() }

// -----------------------------------------------------------------------------
// Calling conventions
// -----------------------------------------------------------------------------

// Convention lists the registers a backend's native calling convention
// assigns to arguments, results, callee saved values and scratch.
type Convention struct {
	Arch    Arch
	Args    []R
	Results []R
	Saved   []R
	Scratch []R
	SP      R
}

// ConventionFor returns the calling convention of arch.
func ConventionFor(arch Arch) (Convention, error) {
	switch arch {
	case AMD64:
		return Convention{
			Arch:    arch,
			Args:    amd64.ARG[:],
			Results: amd64.RES[:],
			Saved:   amd64.SAVE[:],
			Scratch: amd64.SC[:],
			SP:      amd64.SP,
		}, nil
	case ARM64:
		return Convention{
			Arch:    arch,
			Args:    arm64.ARG[:],
			Results: arm64.RES[:],
			Saved:   arm64.SAVE[:],
			Scratch: arm64.SC[:],
			SP:      arm64.SP,
		}, nil
	}
	return Convention{}, fmt.Errorf("jitasm: no calling convention for %q", arch)
}

// RegName returns the hardware name of r on arch, such as "rdi" or "x0".
func RegName(arch Arch, r R) string {
	switch arch {
	case AMD64:
		return amd64.RegName(r)
	case ARM64:
		return arm64.RegName(r)
	}
	return r.String()
}
