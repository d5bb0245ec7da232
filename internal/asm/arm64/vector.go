package arm64

import "github.com/tinyrange/jitasm/internal/asm"

func vd(v asm.V) uint32 { return uint32(v) & 31 }
func vn(v asm.V) uint32 { return (uint32(v) & 31) << 5 }
func vm(v asm.V) uint32 { return (uint32(v) & 31) << 16 }

// laneSize returns the NEON size field for integer lanes, or the sz bit for
// floating point lanes.
func laneSize(t asm.Type) (uint32, error) {
	if t.IsFloat() {
		switch t.Bits() {
		case 32:
			return 0, nil
		case 64:
			return 1, nil
		}
		return 0, asm.ErrVectorTypeNotSupported
	}
	switch t.Bits() {
	case 8:
		return 0, nil
	case 16:
		return 1, nil
	case 32:
		return 2, nil
	case 64:
		return 3, nil
	}
	return 0, asm.ErrVectorTypeNotSupported
}

// vbinOp returns the three register opcode for op on lanes of t. Right shifts
// return the left shift by a signed count.
func vbinOp(op asm.VBinOp, t asm.Type) (uint32, error) {
	switch op {
	case asm.OpVand:
		return 0x4E201C00, nil
	case asm.OpVor:
		return 0x4EA01C00, nil
	case asm.OpVxor:
		return 0x6E201C00, nil
	}
	sz, err := laneSize(t)
	if err != nil {
		return 0, err
	}
	if t.IsFloat() {
		switch op {
		case asm.OpVadd:
			return 0x4E20D400 | sz<<22, nil
		case asm.OpVsub:
			return 0x4EA0D400 | sz<<22, nil
		case asm.OpVmul:
			return 0x6E20DC00 | sz<<22, nil
		case asm.OpVshl, asm.OpVshr:
			return 0, asm.ErrVectorTypeNotSupported
		}
		return 0, asm.ErrUnsupportedVectorOperation
	}
	switch op {
	case asm.OpVadd:
		return 0x4E208400 | sz<<22, nil
	case asm.OpVsub:
		return 0x6E208400 | sz<<22, nil
	case asm.OpVmul:
		if sz == 3 {
			return 0, asm.ErrVectorTypeNotSupported
		}
		return 0x4E209C00 | sz<<22, nil
	case asm.OpVshl:
		return 0x6E204400 | sz<<22, nil // ushl
	case asm.OpVshr:
		if t.IsSigned() {
			return 0x4E204400 | sz<<22, nil // sshl
		}
		return 0x6E204400 | sz<<22, nil
	}
	return 0, asm.ErrUnsupportedVectorOperation
}

func vmov(s *asm.State, dst, src asm.V) {
	if dst != src {
		s.Emit32(0x4EA01C00 | vm(src) | vn(src) | vd(dst))
	}
}

func vnegInt(s *asm.State, sz uint32, dst, src asm.V) {
	s.Emit32(0x6E20B800 | sz<<22 | vn(src) | vd(dst))
}

// loadLiteral loads the 16 byte pool entry at off into v.
func loadLiteral(s *asm.State, v asm.V, off int) {
	pos := s.Emit32(0x9C000000 | vd(v))
	s.AddFixup(asm.Fixup{Kind: asm.FixupConst, Pos: pos, End: pos + 4, Const: off})
}

// spillTemp saves a vector register not in busy on the stack and returns it.
// The caller restores it with unspill.
func spillTemp(s *asm.State, busy ...asm.V) asm.V {
	tmp := asm.V(31)
	for {
		free := true
		for _, b := range busy {
			if b == tmp {
				free = false
			}
		}
		if free {
			break
		}
		tmp--
	}
	// str q, [sp, #-16]!
	s.Emit32(0x3C800C00 | (uint32(0x1f0) << 12) | rn(SP) | vd(tmp))
	return tmp
}

func unspill(s *asm.State, tmp asm.V) {
	// ldr q, [sp], #16
	s.Emit32(0x3CC00400 | 16<<12 | rn(SP) | vd(tmp))
}

func vbinary(s *asm.State, in asm.VBinary) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst, in.Src1); err != nil {
		return err
	}
	op, err := vbinOp(in.Op, in.T)
	if err != nil {
		return err
	}
	d, n := in.Dst, in.Src1

	if v, ok := in.Src2.Imm(); ok {
		if in.Op == asm.OpVshl || in.Op == asm.OpVshr {
			return vshiftImm(s, in, v)
		}
		off := s.ReplicatedConstant(uint64(v), min(in.T.Bytes(), 8), in.Size.Bytes())
		if d != n {
			loadLiteral(s, d, off)
			s.Emit32(op | vm(d) | vn(n) | vd(d))
			return nil
		}
		tmp := spillTemp(s, d, n)
		loadLiteral(s, tmp, off)
		s.Emit32(op | vm(tmp) | vn(n) | vd(d))
		unspill(s, tmp)
		return nil
	}

	m, ok := in.Src2.VReg()
	if !ok {
		return asm.ErrInvalidSrc
	}
	if err := checkVRegs(m); err != nil {
		return err
	}
	if in.Op != asm.OpVshr {
		s.Emit32(op | vm(m) | vn(n) | vd(d))
		return nil
	}

	// shift right is shift left by the negated counts
	sz, _ := laneSize(in.T)
	switch {
	case d != n:
		vnegInt(s, sz, d, m)
		s.Emit32(op | vm(d) | vn(n) | vd(d))
	case m != n:
		vnegInt(s, sz, m, m)
		s.Emit32(op | vm(m) | vn(n) | vd(d))
		vnegInt(s, sz, m, m)
	default:
		tmp := spillTemp(s, d)
		vnegInt(s, sz, tmp, m)
		s.Emit32(op | vm(tmp) | vn(n) | vd(d))
		unspill(s, tmp)
	}
	return nil
}

// vshiftImm uses shl, ushr and sshr, which take the count in the opcode.
func vshiftImm(s *asm.State, in asm.VBinary, v int64) error {
	if err := asm.CheckShiftCount(in.Op, in.T, v); err != nil {
		return err
	}
	esize := int64(in.T.Bits())
	d, n := in.Dst, in.Src1
	if in.Op == asm.OpVshl {
		s.Emit32(0x4F005400 | uint32(esize+v)<<16 | vn(n) | vd(d))
		return nil
	}
	if v == 0 {
		vmov(s, d, n)
		return nil
	}
	op := uint32(0x6F000400) // ushr
	if in.T.IsSigned() {
		op = 0x4F000400 // sshr
	}
	s.Emit32(op | uint32(2*esize-v)<<16 | vn(n) | vd(d))
	return nil
}

func vunary(s *asm.State, in asm.VUnary) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst, in.Src); err != nil {
		return err
	}
	d, n := in.Dst, in.Src

	switch in.Op {
	case asm.OpVmov:
		vmov(s, d, n)
		return nil
	case asm.OpVnot:
		s.Emit32(0x6E205800 | vn(n) | vd(d))
		return nil
	}

	sz, err := laneSize(in.T)
	if err != nil {
		return err
	}
	switch in.Op {
	case asm.OpVneg:
		if in.T.IsFloat() {
			s.Emit32(0x6EA0F800 | sz<<22 | vn(n) | vd(d))
		} else {
			vnegInt(s, sz, d, n)
		}
	case asm.OpVrecpe, asm.OpVrsqrte:
		if !in.T.IsFloat() {
			return asm.ErrVectorTypeNotSupported
		}
		op := uint32(0x4EA1D800) // frecpe
		if in.Op == asm.OpVrsqrte {
			op = 0x6EA1D800 // frsqrte
		}
		s.Emit32(op | sz<<22 | vn(n) | vd(d))
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
	if in.T.Bits() > 64 {
		return asm.ErrVectorTypeNotSupported
	}
	loadLiteral(s, in.Dst, s.ReplicatedConstant(in.Imm, in.T.Bytes(), in.Size.Bytes()))
	return nil
}

func vload(s *asm.State, in asm.Vld) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Dst); err != nil {
		return err
	}
	if err := checkRegs(in.Base); err != nil {
		return err
	}
	emitMem(s, vloadOp, asm.R(in.Dst), in.Base, in.Disp)
	return nil
}

func vstore(s *asm.State, in asm.Vst) error {
	if err := s.CheckVector(in.T, in.Size, maxVectorBits); err != nil {
		return err
	}
	if err := checkVRegs(in.Src); err != nil {
		return err
	}
	if err := checkRegs(in.Base); err != nil {
		return err
	}
	emitMem(s, vstoreOp, asm.R(in.Src), in.Base, in.Disp)
	return nil
}
