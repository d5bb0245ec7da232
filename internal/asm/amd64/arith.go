package amd64

import (
	"math"

	"github.com/tinyrange/jitasm/internal/asm"
)

// ALU group 1 opcode extensions. The register forms are ext*8+1 (op r/m, r)
// and ext*8+3 (op r, r/m).
const (
	extAdd byte = 0
	extOr  byte = 1
	extAnd byte = 4
	extSub byte = 5
	extXor byte = 6
	extCmp byte = 7
)

var aluExt = map[asm.BinOp]byte{
	asm.OpAdd: extAdd,
	asm.OpOr:  extOr,
	asm.OpAnd: extAnd,
	asm.OpSub: extSub,
	asm.OpXor: extXor,
}

// Shift group 2 opcode extensions.
var shiftExt = map[asm.BinOp]byte{
	asm.OpShl: 4,
	asm.OpShr: 5,
	asm.OpSar: 7,
}

func movRR(s *asm.State, dst, src asm.R) {
	if dst == src {
		return
	}
	emitRR(s, true, []byte{0x89}, src, dst)
}

func movImm(s *asm.State, dst asm.R, v int64) {
	switch {
	case fitsInt32(v):
		emitExt(s, true, []byte{0xc7}, 0, dst)
		s.Emit32(uint32(v))
	case v > 0 && v <= math.MaxUint32:
		// 32-bit moves zero the upper half.
		emitREX(s, rexState{b: high(dst)})
		s.Emit(0xb8 + low(dst))
		s.Emit32(uint32(v))
	default:
		emitREX(s, rexState{w: true, b: high(dst)})
		s.Emit(0xb8 + low(dst))
		s.Emit64(uint64(v))
	}
}

func aluRR(s *asm.State, ext byte, dst, src asm.R) {
	emitRR(s, true, []byte{ext*8 + 1}, src, dst)
}

func aluImm(s *asm.State, ext byte, dst asm.R, v int64) {
	switch {
	case fitsInt8(v):
		emitExt(s, true, []byte{0x83}, ext, dst)
		s.Emit(byte(v))
	case fitsInt32(v):
		emitExt(s, true, []byte{0x81}, ext, dst)
		s.Emit32(uint32(v))
	default:
		emitRip(s, true, []byte{ext*8 + 3}, byte(dst), u64bytes(uint64(v)), 0)
	}
}

func negR(s *asm.State, r asm.R) { emitExt(s, true, []byte{0xf7}, 3, r) }
func notR(s *asm.State, r asm.R) { emitExt(s, true, []byte{0xf7}, 2, r) }

func binary_(s *asm.State, in asm.Binary) error {
	if err := checkRegs(in.Dst, in.Src1); err != nil {
		return err
	}
	if in.Src2.IsVReg() {
		return asm.ErrInvalidSrc
	}
	if r, ok := in.Src2.Reg(); ok {
		if err := checkRegs(r); err != nil {
			return err
		}
	}

	switch in.Op {
	case asm.OpAdd, asm.OpSub, asm.OpAnd, asm.OpOr, asm.OpXor:
		alu(s, in.Op, in.Dst, in.Src1, in.Src2)
		return nil
	case asm.OpShl, asm.OpShr, asm.OpSar:
		return shift(s, shiftExt[in.Op], in.Dst, in.Src1, in.Src2)
	case asm.OpMul:
		mul(s, in.Dst, in.Src1, in.Src2)
		return nil
	case asm.OpUdiv, asm.OpSdiv:
		return div(s, in.Op == asm.OpSdiv, in.Dst, in.Src1, in.Src2)
	default:
		return asm.ErrUnsupportedOperation
	}
}

func alu(s *asm.State, op asm.BinOp, dst, a asm.R, b asm.Src) {
	ext := aluExt[op]
	if v, ok := b.Imm(); ok {
		movRR(s, dst, a)
		aluImm(s, ext, dst, v)
		return
	}
	r, _ := b.Reg()
	switch {
	case dst == a:
		aluRR(s, ext, dst, r)
	case dst == r && op.Commutative():
		aluRR(s, ext, dst, a)
	case dst == r:
		// a - b == -b + a
		negR(s, dst)
		aluRR(s, extAdd, dst, a)
	default:
		movRR(s, dst, a)
		aluRR(s, ext, dst, r)
	}
}

func imulRR(s *asm.State, dst, src asm.R) {
	emitRR(s, true, []byte{0x0f, 0xaf}, dst, src)
}

func mul(s *asm.State, dst, a asm.R, b asm.Src) {
	if v, ok := b.Imm(); ok {
		switch {
		case fitsInt8(v):
			emitRR(s, true, []byte{0x6b}, dst, a)
			s.Emit(byte(v))
		case fitsInt32(v):
			emitRR(s, true, []byte{0x69}, dst, a)
			s.Emit32(uint32(v))
		default:
			movRR(s, dst, a)
			emitRip(s, true, []byte{0x0f, 0xaf}, byte(dst), u64bytes(uint64(v)), 0)
		}
		return
	}
	r, _ := b.Reg()
	switch {
	case dst == a:
		imulRR(s, dst, r)
	case dst == r:
		imulRR(s, dst, a)
	default:
		movRR(s, dst, a)
		imulRR(s, dst, r)
	}
}

func shiftCL(s *asm.State, ext byte, r asm.R) {
	emitExt(s, true, []byte{0xd3}, ext, r)
}

// shift handles the count having to live in cl. rcx is preserved unless it is
// the destination.
func shift(s *asm.State, ext byte, dst, a asm.R, b asm.Src) error {
	if v, ok := b.Imm(); ok {
		if v < 0 || v > 63 {
			return asm.ErrInvalidImmediate
		}
		movRR(s, dst, a)
		emitExt(s, true, []byte{0xc1}, ext, dst)
		s.Emit(byte(v))
		return nil
	}
	cnt, _ := b.Reg()
	if dst == RSP || a == RSP || cnt == RSP {
		return asm.ErrInvalidRegs
	}

	switch {
	case cnt == RCX && dst != RCX:
		movRR(s, dst, a)
		shiftCL(s, ext, dst)
	case dst != RCX:
		push(s, RCX)
		switch {
		case cnt == dst && a == RCX:
			emitRR(s, true, []byte{0x87}, RCX, dst)
		case cnt == dst:
			movRR(s, RCX, cnt)
			movRR(s, dst, a)
		default:
			movRR(s, dst, a)
			movRR(s, RCX, cnt)
		}
		shiftCL(s, ext, dst)
		pop(s, RCX)
	default:
		tmp := scratchExcept(a, cnt, RCX)
		push(s, tmp)
		movRR(s, tmp, a)
		movRR(s, RCX, cnt)
		shiftCL(s, ext, tmp)
		movRR(s, RCX, tmp)
		pop(s, tmp)
	}
	return nil
}

func scratchExcept(avoid ...asm.R) asm.R {
next:
	for _, r := range []asm.R{RAX, RDX, RBX, RSI, RDI} {
		for _, a := range avoid {
			if r == a {
				continue next
			}
		}
		return r
	}
	panic("amd64: no scratch register available")
}

// div computes a / b through rdx:rax. rax and rdx are saved around the
// division unless one of them is the destination.
func div(s *asm.State, signed bool, dst, a asm.R, b asm.Src) error {
	r, isReg := b.Reg()
	v, _ := b.Imm()
	if !isReg && v == 0 {
		return asm.ErrInvalidImmediate
	}
	if dst == RSP || a == RSP || (isReg && r == RSP) {
		return asm.ErrInvalidRegs
	}

	ext := byte(6)
	if signed {
		ext = 7
	}

	if dst != RAX {
		push(s, RAX)
	}
	if dst != RDX {
		push(s, RDX)
	}
	spilled := isReg && (r == RAX || r == RDX)
	if spilled {
		push(s, r)
	}

	movRR(s, RAX, a)
	if signed {
		s.Emit(0x48, 0x99) // cqo
	} else {
		s.Emit(0x31, 0xd2) // xor edx, edx
	}

	switch {
	case spilled:
		s.Emit(0x48, 0xf7, modrm(0, ext, 4), 0x24)
	case isReg:
		emitExt(s, true, []byte{0xf7}, ext, r)
	default:
		emitRip(s, true, []byte{0xf7}, ext, u64bytes(uint64(v)), 0)
	}

	movRR(s, dst, RAX)
	if spilled {
		aluImm(s, extAdd, RSP, 8)
	}
	if dst != RDX {
		pop(s, RDX)
	}
	if dst != RAX {
		pop(s, RAX)
	}
	return nil
}

func unary(s *asm.State, in asm.Unary) error {
	if err := checkRegs(in.Dst); err != nil {
		return err
	}
	if in.Src.IsVReg() {
		return asm.ErrInvalidSrc
	}
	if v, ok := in.Src.Imm(); ok {
		switch in.Op {
		case asm.OpMov:
		case asm.OpNot:
			v = ^v
		case asm.OpNeg:
			v = -v
		default:
			return asm.ErrUnsupportedOperation
		}
		movImm(s, in.Dst, v)
		return nil
	}

	src, _ := in.Src.Reg()
	if err := checkRegs(src); err != nil {
		return err
	}
	movRR(s, in.Dst, src)
	switch in.Op {
	case asm.OpMov:
	case asm.OpNot:
		notR(s, in.Dst)
	case asm.OpNeg:
		negR(s, in.Dst)
	default:
		return asm.ErrUnsupportedOperation
	}
	return nil
}

func cmp(s *asm.State, in asm.Cmp) error {
	if err := checkRegs(in.Src1); err != nil {
		return err
	}
	if v, ok := in.Src2.Imm(); ok {
		aluImm(s, extCmp, in.Src1, v)
		return nil
	}
	r, ok := in.Src2.Reg()
	if !ok {
		return asm.ErrInvalidSrc
	}
	if err := checkRegs(r); err != nil {
		return err
	}
	aluRR(s, extCmp, in.Src1, r)
	return nil
}

func cmov(s *asm.State, cc byte, dst, src asm.R) {
	emitRR(s, true, []byte{0x0f, 0x40 + cc}, dst, src)
}

// sel uses cmov, which leaves the flags from the preceding cmp intact.
func sel(s *asm.State, in asm.Sel) error {
	cc, err := condCode(in.C)
	if err != nil {
		return err
	}
	if err := checkRegs(in.Dst, in.T, in.F); err != nil {
		return err
	}
	switch {
	case in.T == in.F:
		movRR(s, in.Dst, in.T)
	case in.Dst == in.T:
		cmov(s, cc^1, in.Dst, in.F)
	case in.Dst == in.F:
		cmov(s, cc, in.Dst, in.T)
	default:
		movRR(s, in.Dst, in.F)
		cmov(s, cc, in.Dst, in.T)
	}
	return nil
}
