package asm

import "fmt"

// Ins is a virtual instruction. The set of implementations is closed: every
// backend handles each of the types declared in this file.
type Ins interface {
	fmt.Stringer
	isIns()
}

// DefLabel marks the current position as label L.
type DefLabel struct {
	L Label
}

// Enter reserves Size bytes of stack. Size must be a multiple of 16.
type Enter struct {
	Size uint32
}

// Leave releases Size bytes of stack reserved by Enter.
type Leave struct {
	Size uint32
}

// Addr loads the absolute address of label L into Dst.
type Addr struct {
	Dst R
	L   Label
}

// Ld loads a value of type T from [Base+Disp] into Dst, zero or sign
// extending it to 64 bits.
type Ld struct {
	T    Type
	Dst  R
	Base R
	Disp int32
}

// St stores the low T bits of Src to [Base+Disp].
type St struct {
	T    Type
	Src  R
	Base R
	Disp int32
}

// Vld loads a Size wide vector from [Base+Disp].
type Vld struct {
	T    Type
	Size Vsize
	Dst  V
	Base R
	Disp int32
}

// Vst stores a Size wide vector to [Base+Disp].
type Vst struct {
	T    Type
	Size Vsize
	Src  V
	Base R
	Disp int32
}

// BinOp selects a two operand integer operation.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
	OpMul
	OpUdiv
	OpSdiv
)

var binOpNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpShl: "shl", OpShr: "shr", OpSar: "sar", OpMul: "mul",
	OpUdiv: "udiv", OpSdiv: "sdiv",
}

func (o BinOp) String() string {
	if int(o) < len(binOpNames) {
		return binOpNames[o]
	}
	return fmt.Sprintf("binop(%d)", uint8(o))
}

// Commutative reports whether the operands of o may be swapped.
func (o BinOp) Commutative() bool {
	switch o {
	case OpAdd, OpAnd, OpOr, OpXor, OpMul:
		return true
	}
	return false
}

// Binary computes Dst = Src1 op Src2 on 64-bit integers.
type Binary struct {
	Op   BinOp
	Dst  R
	Src1 R
	Src2 Src
}

// UnOp selects a single operand integer operation.
type UnOp uint8

const (
	OpMov UnOp = iota
	OpNot
	OpNeg
)

var unOpNames = [...]string{OpMov: "mov", OpNot: "not", OpNeg: "neg"}

func (o UnOp) String() string {
	if int(o) < len(unOpNames) {
		return unOpNames[o]
	}
	return fmt.Sprintf("unop(%d)", uint8(o))
}

// Unary computes Dst = op Src.
type Unary struct {
	Op  UnOp
	Dst R
	Src Src
}

// Cmp compares Src1 with Src2 and sets the flags tested by B and Sel.
type Cmp struct {
	Src1 R
	Src2 Src
}

// VBinOp selects a lane-wise vector operation.
type VBinOp uint8

const (
	OpVadd VBinOp = iota
	OpVsub
	OpVand
	OpVor
	OpVxor
	OpVshl
	OpVshr
	OpVmul
)

var vbinOpNames = [...]string{
	OpVadd: "vadd", OpVsub: "vsub", OpVand: "vand", OpVor: "vor",
	OpVxor: "vxor", OpVshl: "vshl", OpVshr: "vshr", OpVmul: "vmul",
}

func (o VBinOp) String() string {
	if int(o) < len(vbinOpNames) {
		return vbinOpNames[o]
	}
	return fmt.Sprintf("vbinop(%d)", uint8(o))
}

// VBinary computes Dst = Src1 op Src2 lane by lane. Src2 is a vector
// register or an immediate replicated across every lane. Shifts take the
// count for each lane from the matching lane of Src2; Vshr is arithmetic for
// signed types and logical otherwise.
type VBinary struct {
	Op   VBinOp
	T    Type
	Size Vsize
	Dst  V
	Src1 V
	Src2 Src
}

// VUnOp selects a lane-wise single operand vector operation.
type VUnOp uint8

const (
	OpVmov VUnOp = iota
	OpVnot
	OpVneg
	OpVrecpe
	OpVrsqrte
)

var vunOpNames = [...]string{
	OpVmov: "vmov", OpVnot: "vnot", OpVneg: "vneg",
	OpVrecpe: "vrecpe", OpVrsqrte: "vrsqrte",
}

func (o VUnOp) String() string {
	if int(o) < len(vunOpNames) {
		return vunOpNames[o]
	}
	return fmt.Sprintf("vunop(%d)", uint8(o))
}

// VUnary computes Dst = op Src lane by lane.
type VUnary struct {
	Op   VUnOp
	T    Type
	Size Vsize
	Dst  V
	Src  V
}

// Vmovi fills every T lane of Dst with Imm.
type Vmovi struct {
	T    Type
	Size Vsize
	Dst  V
	Imm  uint64
}

// Call calls the address held in Target.
type Call struct {
	Target R
}

// Branch jumps to the address held in Target.
type Branch struct {
	Target R
}

// B jumps to label L when condition C holds.
type B struct {
	C Cond
	L Label
}

// J jumps to label L.
type J struct {
	L Label
}

// Sel sets Dst to T when C holds and to F otherwise.
type Sel struct {
	C   Cond
	Dst R
	T   R
	F   R
}

// Ret returns to the caller.
type Ret struct{}

// Data emits Value inline as a little endian T.
type Data struct {
	T     Type
	Value uint64
}

func (DefLabel) isIns() {}
func (Enter) isIns()    {}
func (Leave) isIns()    {}
func (Addr) isIns()     {}
func (Ld) isIns()       {}
func (St) isIns()       {}
func (Vld) isIns()      {}
func (Vst) isIns()      {}
func (Binary) isIns()   {}
func (Unary) isIns()    {}
func (Cmp) isIns()      {}
func (VBinary) isIns()  {}
func (VUnary) isIns()   {}
func (Vmovi) isIns()    {}
func (Call) isIns()     {}
func (Branch) isIns()   {}
func (B) isIns()        {}
func (J) isIns()        {}
func (Sel) isIns()      {}
func (Ret) isIns()      {}
func (Data) isIns()     {}

func memString(base R, disp int32) string {
	if disp < 0 {
		return fmt.Sprintf("[%s-%d]", base, -int64(disp))
	}
	return fmt.Sprintf("[%s+%d]", base, disp)
}

func (i DefLabel) String() string { return fmt.Sprintf("label %d", i.L) }
func (i Enter) String() string    { return fmt.Sprintf("enter %d", i.Size) }
func (i Leave) String() string    { return fmt.Sprintf("leave %d", i.Size) }
func (i Addr) String() string     { return fmt.Sprintf("addr %s, %d", i.Dst, i.L) }

func (i Ld) String() string {
	return fmt.Sprintf("ld %s %s, %s", i.T, i.Dst, memString(i.Base, i.Disp))
}

func (i St) String() string {
	return fmt.Sprintf("st %s %s, %s", i.T, i.Src, memString(i.Base, i.Disp))
}

func (i Vld) String() string {
	return fmt.Sprintf("vld %s %s %s, %s", i.T, i.Size, i.Dst, memString(i.Base, i.Disp))
}

func (i Vst) String() string {
	return fmt.Sprintf("vst %s %s %s, %s", i.T, i.Size, i.Src, memString(i.Base, i.Disp))
}

func (i Binary) String() string {
	return fmt.Sprintf("%s %s, %s, %s", i.Op, i.Dst, i.Src1, i.Src2)
}

func (i Unary) String() string { return fmt.Sprintf("%s %s, %s", i.Op, i.Dst, i.Src) }
func (i Cmp) String() string   { return fmt.Sprintf("cmp %s, %s", i.Src1, i.Src2) }

func (i VBinary) String() string {
	return fmt.Sprintf("%s %s %s %s, %s, %s", i.Op, i.T, i.Size, i.Dst, i.Src1, i.Src2)
}

func (i VUnary) String() string {
	return fmt.Sprintf("%s %s %s %s, %s", i.Op, i.T, i.Size, i.Dst, i.Src)
}

func (i Vmovi) String() string {
	return fmt.Sprintf("vmovi %s %s %s, #0x%x", i.T, i.Size, i.Dst, i.Imm)
}

func (i Call) String() string   { return fmt.Sprintf("call %s", i.Target) }
func (i Branch) String() string { return fmt.Sprintf("branch %s", i.Target) }
func (i B) String() string      { return fmt.Sprintf("b %s %d", i.C, i.L) }
func (i J) String() string      { return fmt.Sprintf("j %d", i.L) }

func (i Sel) String() string {
	return fmt.Sprintf("sel %s %s, %s, %s", i.C, i.Dst, i.T, i.F)
}

func (Ret) String() string { return "ret" }

func (i Data) String() string { return fmt.Sprintf("data %s #0x%x", i.T, i.Value) }

// Constructors mirroring the instruction mnemonics.

func Add(dst, a R, b Src) Ins  { return Binary{Op: OpAdd, Dst: dst, Src1: a, Src2: b} }
func Sub(dst, a R, b Src) Ins  { return Binary{Op: OpSub, Dst: dst, Src1: a, Src2: b} }
func And(dst, a R, b Src) Ins  { return Binary{Op: OpAnd, Dst: dst, Src1: a, Src2: b} }
func Or(dst, a R, b Src) Ins   { return Binary{Op: OpOr, Dst: dst, Src1: a, Src2: b} }
func Xor(dst, a R, b Src) Ins  { return Binary{Op: OpXor, Dst: dst, Src1: a, Src2: b} }
func Shl(dst, a R, b Src) Ins  { return Binary{Op: OpShl, Dst: dst, Src1: a, Src2: b} }
func Shr(dst, a R, b Src) Ins  { return Binary{Op: OpShr, Dst: dst, Src1: a, Src2: b} }
func Sar(dst, a R, b Src) Ins  { return Binary{Op: OpSar, Dst: dst, Src1: a, Src2: b} }
func Mul(dst, a R, b Src) Ins  { return Binary{Op: OpMul, Dst: dst, Src1: a, Src2: b} }
func Udiv(dst, a R, b Src) Ins { return Binary{Op: OpUdiv, Dst: dst, Src1: a, Src2: b} }
func Sdiv(dst, a R, b Src) Ins { return Binary{Op: OpSdiv, Dst: dst, Src1: a, Src2: b} }

func Mov(dst R, src Src) Ins { return Unary{Op: OpMov, Dst: dst, Src: src} }
func Not(dst R, src Src) Ins { return Unary{Op: OpNot, Dst: dst, Src: src} }
func Neg(dst R, src Src) Ins { return Unary{Op: OpNeg, Dst: dst, Src: src} }

// Movi loads a full 64-bit constant.
func Movi(dst R, v uint64) Ins { return Unary{Op: OpMov, Dst: dst, Src: Imm(int64(v))} }

// Cmpi compares against a full 64-bit constant.
func Cmpi(a R, v uint64) Ins { return Cmp{Src1: a, Src2: Imm(int64(v))} }
