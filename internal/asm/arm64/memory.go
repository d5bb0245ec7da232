package arm64

import "github.com/tinyrange/jitasm/internal/asm"

type memOp struct {
	// uoff is the unsigned offset form of the instruction.
	uoff  uint32
	scale uint
}

// Loads zero or sign extend to 64 bits.
var loadOps = map[asm.Type]memOp{
	asm.U8:  {0x39400000, 0}, // ldrb
	asm.S8:  {0x39800000, 0}, // ldrsb x
	asm.U16: {0x79400000, 1}, // ldrh
	asm.S16: {0x79800000, 1}, // ldrsh x
	asm.U32: {0xB9400000, 2}, // ldr w
	asm.S32: {0xB9800000, 2}, // ldrsw
	asm.U64: {0xF9400000, 3},
	asm.S64: {0xF9400000, 3},
}

var storeOps = map[asm.Type]memOp{
	asm.U8:  {0x39000000, 0},
	asm.S8:  {0x39000000, 0},
	asm.U16: {0x79000000, 1},
	asm.S16: {0x79000000, 1},
	asm.U32: {0xB9000000, 2},
	asm.S32: {0xB9000000, 2},
	asm.U64: {0xF9000000, 3},
	asm.S64: {0xF9000000, 3},
}

// Q register forms.
var (
	vloadOp  = memOp{0x3DC00000, 4}
	vstoreOp = memOp{0x3D800000, 4}
)

// emitMem emits op t, [base, #disp], falling back to a register offset held
// in x17 when disp has no immediate encoding.
func emitMem(s *asm.State, op memOp, t, base asm.R, disp int32) {
	if w, ok := encodeLoadStore(op.uoff, op.scale, t, base, disp); ok {
		s.Emit32(w)
		return
	}
	movImm(s, tmp1, uint64(int64(disp)))
	s.Emit32(encodeLoadStoreReg(op.uoff, t, base, tmp1))
}

func load(s *asm.State, in asm.Ld) error {
	op, ok := loadOps[in.T]
	if !ok {
		return asm.ErrInvalidType
	}
	if err := checkRegs(in.Dst, in.Base); err != nil {
		return err
	}
	emitMem(s, op, result(in.Dst), in.Base, in.Disp)
	commit(s, in.Dst)
	return nil
}

func store(s *asm.State, in asm.St) error {
	op, ok := storeOps[in.T]
	if !ok {
		return asm.ErrInvalidType
	}
	if err := checkRegs(in.Src, in.Base); err != nil {
		return err
	}
	emitMem(s, op, read(s, in.Src, tmp0), in.Base, in.Disp)
	return nil
}
