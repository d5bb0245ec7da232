package amd64

import "github.com/tinyrange/jitasm/internal/asm"

// VEX pp and map selectors.
const (
	ppNone byte = 0
	pp66   byte = 1

	map0F   byte = 1
	map0F38 byte = 2
)

type vop struct {
	pp     byte
	m      byte
	w      bool
	opcode byte
}

// lane classes index the per-type opcode tables.
const (
	laneI8 = iota
	laneI16
	laneI32
	laneI64
	laneF32
	laneF64
	numLanes
)

func laneClass(t asm.Type) (int, error) {
	if t.IsFloat() {
		switch t.Bits() {
		case 32:
			return laneF32, nil
		case 64:
			return laneF64, nil
		}
		return 0, asm.ErrVectorTypeNotSupported
	}
	switch t.Bits() {
	case 8:
		return laneI8, nil
	case 16:
		return laneI16, nil
	case 32:
		return laneI32, nil
	case 64:
		return laneI64, nil
	}
	return 0, asm.ErrVectorTypeNotSupported
}

func i66(op byte) vop  { return vop{pp: pp66, m: map0F, opcode: op} }
func ps(op byte) vop   { return vop{pp: ppNone, m: map0F, opcode: op} }
func pd(op byte) vop   { return vop{pp: pp66, m: map0F, opcode: op} }
func v38(op byte) vop  { return vop{pp: pp66, m: map0F38, opcode: op} }
func v38w(op byte) vop { return vop{pp: pp66, m: map0F38, w: true, opcode: op} }

var none vop

var vbinOps = map[asm.VBinOp][numLanes]vop{
	asm.OpVadd: {i66(0xfc), i66(0xfd), i66(0xfe), i66(0xd4), ps(0x58), pd(0x58)},
	asm.OpVsub: {i66(0xf8), i66(0xf9), i66(0xfa), i66(0xfb), ps(0x5c), pd(0x5c)},
	asm.OpVand: {i66(0xdb), i66(0xdb), i66(0xdb), i66(0xdb), ps(0x54), pd(0x54)},
	asm.OpVor:  {i66(0xeb), i66(0xeb), i66(0xeb), i66(0xeb), ps(0x56), pd(0x56)},
	asm.OpVxor: {i66(0xef), i66(0xef), i66(0xef), i66(0xef), ps(0x57), pd(0x57)},
	asm.OpVmul: {none, i66(0xd5), v38(0x40), none, ps(0x59), pd(0x59)},
	asm.OpVshl: {none, none, v38(0x47), v38w(0x47), none, none},
}

// Logical and arithmetic right shifts by a per lane count.
var (
	vshrLogical    = [numLanes]vop{none, none, v38(0x45), v38w(0x45), none, none}
	vshrArithmetic = [numLanes]vop{none, none, v38(0x46), none, none, none}
)

func lookupVop(op asm.VBinOp, t asm.Type) (vop, error) {
	lane, err := laneClass(t)
	if err != nil {
		return vop{}, err
	}
	var table [numLanes]vop
	switch {
	case op == asm.OpVshr && t.IsSigned():
		table = vshrArithmetic
	case op == asm.OpVshr:
		table = vshrLogical
	default:
		var ok bool
		if table, ok = vbinOps[op]; !ok {
			return vop{}, asm.ErrUnsupportedVectorOperation
		}
	}
	v := table[lane]
	if v.opcode == 0 {
		return vop{}, asm.ErrVectorTypeNotSupported
	}
	return v, nil
}

func (o vop) prefix(size asm.Vsize) vex {
	return vex{pp: o.pp, m: o.m, w: o.w, l: size == asm.V256}
}

// vexRR emits op reg, vvvv, rm with register operands.
func vexRR(s *asm.State, v vex, opcode byte, reg, vvvv, rm asm.V) {
	v.r = vhigh(reg)
	v.b = vhigh(rm)
	v.vvvv = byte(vvvv)
	s.Emit(v.bytes()...)
	s.Emit(opcode, modrm(3, vlow(reg), vlow(rm)))
}

// vexRip emits op reg, vvvv, [rip+pool].
func vexRip(s *asm.State, v vex, opcode byte, reg, vvvv asm.V, off int) {
	v.r = vhigh(reg)
	v.vvvv = byte(vvvv)
	s.Emit(v.bytes()...)
	s.Emit(opcode, modrm(0, vlow(reg), 5))
	ripFixup(s, off, 0)
}

func vexMem(s *asm.State, v vex, opcode byte, reg asm.V, m memory) error {
	enc, err := encodeMemoryOperand(m)
	if err != nil {
		return err
	}
	v.r = vhigh(reg)
	v.x = enc.rex.x
	v.b = enc.rex.b
	s.Emit(v.bytes()...)
	s.Emit(opcode, enc.modrm|vlow(reg)<<3)
	s.Emit(enc.sib...)
	s.Emit(enc.disp...)
	return nil
}

func vload(s *asm.State, in asm.Vld) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst); err != nil {
		return err
	}
	return vexMem(s, ps(0x10).prefix(in.Size), 0x10, in.Dst, mem(in.Base, in.Disp))
}

func vstore(s *asm.State, in asm.Vst) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Src); err != nil {
		return err
	}
	return vexMem(s, ps(0x11).prefix(in.Size), 0x11, in.Src, mem(in.Base, in.Disp))
}

// replicate places v repeated in every lane of a size byte pool entry.
func replicate(s *asm.State, v uint64, t asm.Type, size asm.Vsize) int {
	return s.ReplicatedConstant(v, t.Bytes(), size.Bytes())
}

func vbinary(s *asm.State, in asm.VBinary) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst, in.Src1); err != nil {
		return err
	}
	op, err := lookupVop(in.Op, in.T)
	if err != nil {
		return err
	}
	pfx := op.prefix(in.Size)
	if v, ok := in.Src2.Imm(); ok {
		if in.Op == asm.OpVshl || in.Op == asm.OpVshr {
			if err := asm.CheckShiftCount(in.Op, in.T, v); err != nil {
				return err
			}
		}
		vexRip(s, pfx, op.opcode, in.Dst, in.Src1, replicate(s, uint64(v), in.T, in.Size))
		return nil
	}
	src2, ok := in.Src2.VReg()
	if !ok {
		return asm.ErrInvalidSrc
	}
	if err := checkVRegs(src2); err != nil {
		return err
	}
	vexRR(s, pfx, op.opcode, in.Dst, in.Src1, src2)
	return nil
}

func vunary(s *asm.State, in asm.VUnary) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst, in.Src); err != nil {
		return err
	}
	lane, err := laneClass(in.T)
	if err != nil && in.Op != asm.OpVmov && in.Op != asm.OpVnot {
		return err
	}
	l := in.Size == asm.V256

	switch in.Op {
	case asm.OpVmov:
		if in.Dst != in.Src {
			vexRR(s, ps(0x10).prefix(in.Size), 0x10, in.Dst, 0, in.Src)
		}
	case asm.OpVnot:
		ones := s.ReplicatedConstant(^uint64(0), 8, in.Size.Bytes())
		vexRip(s, i66(0xef).prefix(in.Size), 0xef, in.Dst, in.Src, ones)
	case asm.OpVneg:
		switch lane {
		case laneF32:
			mask := replicate(s, 1<<31, in.T, in.Size)
			vexRip(s, ps(0x57).prefix(in.Size), 0x57, in.Dst, in.Src, mask)
		case laneF64:
			mask := replicate(s, 1<<63, in.T, in.Size)
			vexRip(s, pd(0x57).prefix(in.Size), 0x57, in.Dst, in.Src, mask)
		default:
			// -x == ^x - (-1)
			ones := s.ReplicatedConstant(^uint64(0), 8, in.Size.Bytes())
			vexRip(s, i66(0xef).prefix(in.Size), 0xef, in.Dst, in.Src, ones)
			sub := vbinOps[asm.OpVsub][lane]
			vexRip(s, sub.prefix(in.Size), sub.opcode, in.Dst, in.Dst, ones)
		}
	case asm.OpVrecpe, asm.OpVrsqrte:
		if lane != laneF32 {
			return asm.ErrVectorTypeNotSupported
		}
		opcode := byte(0x53)
		if in.Op == asm.OpVrsqrte {
			opcode = 0x52
		}
		vexRR(s, vex{pp: ppNone, m: map0F, l: l}, opcode, in.Dst, 0, in.Src)
	default:
		return asm.ErrUnsupportedVectorOperation
	}
	return nil
}

func vmovi(s *asm.State, in asm.Vmovi) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst); err != nil {
		return err
	}
	if _, err := laneClass(in.T); err != nil {
		return err
	}
	vexRip(s, ps(0x10).prefix(in.Size), 0x10, in.Dst, 0, replicate(s, in.Imm, in.T, in.Size))
	return nil
}
