package asm

import "fmt"

// R is a virtual integer register. Each backend maps the index directly onto
// its hardware register file.
type R uint8

func (r R) String() string { return fmt.Sprintf("r%d", uint8(r)) }

// V is a virtual vector register.
type V uint8

func (v V) String() string { return fmt.Sprintf("v%d", uint8(v)) }

// Label identifies a position in the emitted code.
type Label uint32

type srcKind uint8

const (
	srcImm srcKind = iota
	srcReg
	srcVReg
)

// Src is the right hand operand of an instruction: an integer register, a
// vector register or a signed 64-bit immediate.
type Src struct {
	kind srcKind
	val  int64
}

// Reg returns a register operand.
func Reg(r R) Src { return Src{kind: srcReg, val: int64(r)} }

// VReg returns a vector register operand.
func VReg(v V) Src { return Src{kind: srcVReg, val: int64(v)} }

// Imm returns an immediate operand.
func Imm(v int64) Src { return Src{kind: srcImm, val: v} }

// IsReg reports whether s names an integer register.
func (s Src) IsReg() bool { return s.kind == srcReg }

// IsVReg reports whether s names a vector register.
func (s Src) IsVReg() bool { return s.kind == srcVReg }

// IsImm reports whether s is an immediate.
func (s Src) IsImm() bool { return s.kind == srcImm }

// Reg returns the integer register held by s.
func (s Src) Reg() (R, bool) {
	if s.kind != srcReg {
		return 0, false
	}
	return R(s.val), true
}

// VReg returns the vector register held by s.
func (s Src) VReg() (V, bool) {
	if s.kind != srcVReg {
		return 0, false
	}
	return V(s.val), true
}

// Imm returns the immediate held by s.
func (s Src) Imm() (int64, bool) {
	if s.kind != srcImm {
		return 0, false
	}
	return s.val, true
}

// Imm8 returns the immediate if it fits a signed byte.
func (s Src) Imm8() (int8, bool) {
	v, ok := s.Imm()
	if !ok || v < -128 || v > 127 {
		return 0, false
	}
	return int8(v), true
}

// Imm32 returns the immediate if it fits a signed 32-bit field.
func (s Src) Imm32() (int32, bool) {
	v, ok := s.Imm()
	if !ok || v < -1<<31 || v > 1<<31-1 {
		return 0, false
	}
	return int32(v), true
}

func (s Src) String() string {
	switch s.kind {
	case srcReg:
		return R(s.val).String()
	case srcVReg:
		return V(s.val).String()
	default:
		return fmt.Sprintf("#%d", s.val)
	}
}

// Type is a scalar element type: width plus signedness or float tag.
type Type uint8

const (
	U8 Type = iota
	U16
	U32
	U64
	U128
	U256
	S8
	S16
	S32
	S64
	S128
	S256
	F8
	F16
	F32
	F64
	F128
	F256
)

var typeNames = [...]string{
	U8: "u8", U16: "u16", U32: "u32", U64: "u64", U128: "u128", U256: "u256",
	S8: "s8", S16: "s16", S32: "s32", S64: "s64", S128: "s128", S256: "s256",
	F8: "f8", F16: "f16", F32: "f32", F64: "f64", F128: "f128", F256: "f256",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Bits returns the width of the type.
func (t Type) Bits() int {
	if t > F256 {
		return 0
	}
	return 8 << (uint(t) % 6)
}

// Bytes returns the width of the type in bytes.
func (t Type) Bytes() int { return t.Bits() / 8 }

// IsSigned reports whether t is a signed integer type.
func (t Type) IsSigned() bool { return t >= S8 && t <= S256 }

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool { return t >= F8 && t <= F256 }

// ParseType returns the type named s.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown type %q", s)
}

// Vsize is the width of a vector operand.
type Vsize uint8

const (
	V128 Vsize = iota
	V256
	V512
	V1024
	V2048
)

// Bits returns the vector width.
func (v Vsize) Bits() int { return 128 << uint(v) }

// Bytes returns the vector width in bytes.
func (v Vsize) Bytes() int { return v.Bits() / 8 }

func (v Vsize) String() string { return fmt.Sprintf("v%d", v.Bits()) }

// ParseVsize returns the vector width named s ("v128", "v256", ...).
func ParseVsize(s string) (Vsize, error) {
	for v := V128; v <= V2048; v++ {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown vector size %q", s)
}

// Cond is an abstract comparison outcome tested after Cmp.
type Cond uint8

const (
	Eq Cond = iota
	Ne
	Sgt
	Sge
	Slt
	Sle
	Ugt
	Uge
	Ult
	Ule
)

var condNames = [...]string{
	Eq: "eq", Ne: "ne", Sgt: "sgt", Sge: "sge", Slt: "slt",
	Sle: "sle", Ugt: "ugt", Uge: "uge", Ult: "ult", Ule: "ule",
}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

// Valid reports whether c is one of the ten defined conditions.
func (c Cond) Valid() bool { return c <= Ule }

// Conds lists every condition in declaration order.
func Conds() []Cond {
	return []Cond{Eq, Ne, Sgt, Sge, Slt, Sle, Ugt, Uge, Ult, Ule}
}

// ParseCond returns the condition named s.
func ParseCond(s string) (Cond, error) {
	for i, name := range condNames {
		if name == s {
			return Cond(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}

// CpuLevel is the capability ceiling for an assembly.
type CpuLevel uint8

const (
	// Scalar forbids vector instructions.
	Scalar CpuLevel = iota + 1
	// Simd128 allows 128-bit vectors (SSE/AVX with VEX.128, NEON).
	Simd128
	// Simd256 allows 256-bit vectors (AVX2).
	Simd256
	// Simd512 allows 512-bit vectors.
	Simd512
)

// MaxCpuLevel is the default ceiling.
const MaxCpuLevel = Simd512

// MaxVectorBits returns the widest vector the level permits.
func (l CpuLevel) MaxVectorBits() int {
	switch l {
	case Simd128:
		return 128
	case Simd256:
		return 256
	case Simd512:
		return 512
	default:
		return 64
	}
}

func (l CpuLevel) String() string {
	switch l {
	case Scalar:
		return "scalar"
	case Simd128:
		return "simd128"
	case Simd256:
		return "simd256"
	case Simd512:
		return "simd512"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// ParseCpuLevel returns the level named s.
func ParseCpuLevel(s string) (CpuLevel, error) {
	for l := Scalar; l <= Simd512; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown cpu level %q", s)
}

// Arch names a target instruction set.
type Arch string

const (
	ArchInvalid Arch = ""
	ArchAMD64   Arch = "amd64"
	ArchARM64   Arch = "arm64"
)

// ParseArch accepts Go and ELF style architecture names.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "amd64", "x86_64", "x86-64":
		return ArchAMD64, nil
	case "arm64", "aarch64":
		return ArchARM64, nil
	default:
		return ArchInvalid, fmt.Errorf("unsupported architecture: %s", s)
	}
}
