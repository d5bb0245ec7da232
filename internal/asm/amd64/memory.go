package amd64

import "github.com/tinyrange/jitasm/internal/asm"

type memOp struct {
	prefix byte
	w      bool
	opcode []byte
}

// Loads zero or sign extend to 64 bits.
var loadOps = map[asm.Type]memOp{
	asm.U8:  {w: true, opcode: []byte{0x0f, 0xb6}},
	asm.S8:  {w: true, opcode: []byte{0x0f, 0xbe}},
	asm.U16: {w: true, opcode: []byte{0x0f, 0xb7}},
	asm.S16: {w: true, opcode: []byte{0x0f, 0xbf}},
	asm.U32: {opcode: []byte{0x8b}},
	asm.S32: {w: true, opcode: []byte{0x63}},
	asm.U64: {w: true, opcode: []byte{0x8b}},
	asm.S64: {w: true, opcode: []byte{0x8b}},
}

var storeOps = map[asm.Type]memOp{
	asm.U8:  {opcode: []byte{0x88}},
	asm.S8:  {opcode: []byte{0x88}},
	asm.U16: {prefix: 0x66, opcode: []byte{0x89}},
	asm.S16: {prefix: 0x66, opcode: []byte{0x89}},
	asm.U32: {opcode: []byte{0x89}},
	asm.S32: {opcode: []byte{0x89}},
	asm.U64: {w: true, opcode: []byte{0x89}},
	asm.S64: {w: true, opcode: []byte{0x89}},
}

func load(s *asm.State, in asm.Ld) error {
	op, ok := loadOps[in.T]
	if !ok {
		return asm.ErrInvalidType
	}
	if err := checkRegs(in.Dst, in.Base); err != nil {
		return err
	}
	return emitMem(s, op.prefix, op.w, op.opcode, byte(in.Dst), false, mem(in.Base, in.Disp))
}

func store(s *asm.State, in asm.St) error {
	op, ok := storeOps[in.T]
	if !ok {
		return asm.ErrInvalidType
	}
	if err := checkRegs(in.Src, in.Base); err != nil {
		return err
	}
	byteReg := in.T.Bits() == 8 && needsByteREX(in.Src)
	return emitMem(s, op.prefix, op.w, op.opcode, byte(in.Src), byteReg, mem(in.Base, in.Disp))
}
