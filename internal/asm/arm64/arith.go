package arm64

import (
	"math"

	"github.com/tinyrange/jitasm/internal/asm"
)

// movImm materialises v with the shortest of a logical immediate or a
// movz/movn plus movk sequence.
func movImm(s *asm.State, dst asm.R, v uint64) {
	if dst == SP {
		movImm(s, tmp0, v)
		commit(s, SP)
		return
	}

	var zeros, ones int
	for hw := 0; hw < 4; hw++ {
		switch uint16(v >> (16 * hw)) {
		case 0:
			zeros++
		case 0xffff:
			ones++
		}
	}
	if 4-max(zeros, ones) > 1 {
		if f, ok := encodeBitmask(v); ok {
			// orr xd, xzr, #v
			s.Emit32(logicalImm[asm.OpOr] | f | rn(zr) | rd(dst))
			return
		}
	}

	invert := ones > zeros
	fill := uint16(0)
	if invert {
		fill = 0xffff
	}
	first := true
	for hw := uint32(0); hw < 4; hw++ {
		h := uint16(v >> (16 * hw))
		if h == fill {
			continue
		}
		switch {
		case first && invert:
			s.Emit32(encodeMovn(dst, ^h, hw))
		case first:
			s.Emit32(encodeMovz(dst, h, hw))
		default:
			s.Emit32(encodeMovk(dst, h, hw))
		}
		first = false
	}
	if first {
		if invert {
			s.Emit32(encodeMovn(dst, 0, 0))
		} else {
			s.Emit32(encodeMovz(dst, 0, 0))
		}
	}
}

func binary_(s *asm.State, in asm.Binary) error {
	if err := checkRegs(in.Dst, in.Src1); err != nil {
		return err
	}
	if in.Src2.IsVReg() {
		return asm.ErrInvalidSrc
	}
	r, isReg := in.Src2.Reg()
	if isReg {
		if err := checkRegs(r); err != nil {
			return err
		}
	}
	v, _ := in.Src2.Imm()
	if _, ok := regOps[in.Op]; !ok {
		return asm.ErrUnsupportedOperation
	}

	switch in.Op {
	case asm.OpAdd, asm.OpSub:
		addSub(s, in.Op == asm.OpSub, in.Dst, in.Src1, in.Src2)
		return nil
	case asm.OpShl, asm.OpShr, asm.OpSar:
		if !isReg && (v < 0 || v > 63) {
			return asm.ErrInvalidImmediate
		}
	case asm.OpUdiv, asm.OpSdiv:
		if !isReg && v == 0 {
			return asm.ErrInvalidImmediate
		}
	}

	a := read(s, in.Src1, tmp0)
	out := result(in.Dst)
	switch {
	case isReg:
		b := read(s, r, tmp1)
		s.Emit32(encodeRRR(regOps[in.Op], out, a, b))
	case in.Op == asm.OpShl || in.Op == asm.OpShr || in.Op == asm.OpSar:
		s.Emit32(encodeShiftImm(in.Op, out, a, uint32(v)))
	default:
		if op, ok := logicalImm[in.Op]; ok {
			if f, ok := encodeBitmask(uint64(v)); ok {
				s.Emit32(op | f | rn(a) | rd(out))
				break
			}
		}
		movImm(s, tmp1, uint64(v))
		s.Emit32(encodeRRR(regOps[in.Op], out, a, tmp1))
	}
	commit(s, in.Dst)
	return nil
}

// addSub uses the forms that accept sp directly.
func addSub(s *asm.State, sub bool, d, n asm.R, src asm.Src) {
	if v, ok := src.Imm(); ok {
		neg, mag := sub, uint64(v)
		if v < 0 && v != math.MinInt64 {
			neg, mag = !sub, uint64(-v)
		}
		if w, ok := encodeAddSubImm(neg, d, n, mag); ok {
			s.Emit32(w)
			return
		}
		movImm(s, tmp1, uint64(v))
		src = asm.Reg(tmp1)
	}
	m, _ := src.Reg()
	if d != SP && n != SP && m != SP {
		op := regOps[asm.OpAdd]
		if sub {
			op = regOps[asm.OpSub]
		}
		s.Emit32(encodeRRR(op, d, n, m))
		return
	}
	if m == SP {
		if !sub && n != SP {
			n, m = m, n
		} else {
			m = read(s, m, tmp1)
		}
	}
	s.Emit32(encodeAddSubExt(sub, d, n, m))
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
		movImm(s, in.Dst, uint64(v))
		return nil
	}

	src, _ := in.Src.Reg()
	if err := checkRegs(src); err != nil {
		return err
	}
	if in.Op == asm.OpMov {
		if in.Dst != src {
			s.Emit32(encodeMov(in.Dst, src))
		}
		return nil
	}

	a := read(s, src, tmp0)
	out := result(in.Dst)
	switch in.Op {
	case asm.OpNot:
		s.Emit32(0xAA2003E0 | rm(a) | rd(out)) // mvn
	case asm.OpNeg:
		s.Emit32(0xCB0003E0 | rm(a) | rd(out))
	default:
		return asm.ErrUnsupportedOperation
	}
	commit(s, in.Dst)
	return nil
}

func cmp(s *asm.State, in asm.Cmp) error {
	if err := checkRegs(in.Src1); err != nil {
		return err
	}
	if v, ok := in.Src2.Imm(); ok {
		// the immediate forms take sp as the first operand
		if v >= 0 {
			if w, ok := encodeCmpImm(in.Src1, uint64(v), false); ok {
				s.Emit32(w)
				return nil
			}
		} else if v != math.MinInt64 {
			if w, ok := encodeCmpImm(in.Src1, uint64(-v), true); ok {
				s.Emit32(w)
				return nil
			}
		}
		a := read(s, in.Src1, tmp0)
		movImm(s, tmp1, uint64(v))
		s.Emit32(encodeCmpReg(a, tmp1))
		return nil
	}
	r, ok := in.Src2.Reg()
	if !ok {
		return asm.ErrInvalidSrc
	}
	if err := checkRegs(r); err != nil {
		return err
	}
	a := read(s, in.Src1, tmp0)
	b := read(s, r, tmp1)
	s.Emit32(encodeCmpReg(a, b))
	return nil
}

func sel(s *asm.State, in asm.Sel) error {
	cond, err := condCode(in.C)
	if err != nil {
		return err
	}
	if err := checkRegs(in.Dst, in.T, in.F); err != nil {
		return err
	}
	t := read(s, in.T, tmp0)
	f := read(s, in.F, tmp1)
	s.Emit32(encodeCsel(cond, result(in.Dst), t, f))
	commit(s, in.Dst)
	return nil
}
