package amd64

import (
	"encoding/binary"

	"github.com/tinyrange/jitasm/internal/asm"
)

type rexState struct {
	w     bool
	r     bool
	x     bool
	b     bool
	force bool
}

func (r rexState) prefix() byte {
	if !r.w && !r.r && !r.x && !r.b && !r.force {
		return 0
	}
	p := byte(0x40)
	if r.w {
		p |= 0x08
	}
	if r.r {
		p |= 0x04
	}
	if r.x {
		p |= 0x02
	}
	if r.b {
		p |= 0x01
	}
	return p
}

func emitREX(s *asm.State, rex rexState) {
	if p := rex.prefix(); p != 0 {
		s.Emit(p)
	}
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// memory is a [base + index*scale + disp] operand.
type memory struct {
	base     asm.R
	index    asm.R
	scale    uint8
	hasIndex bool
	disp     int32
}

func mem(base asm.R, disp int32) memory {
	return memory{base: base, scale: 1, disp: disp}
}

func memIndex(base, index asm.R, scale uint8, disp int32) memory {
	return memory{base: base, index: index, scale: scale, hasIndex: true, disp: disp}
}

type memEncoding struct {
	// mod and rm bits; the reg field is filled by the caller.
	modrm byte
	sib   []byte
	disp  []byte
	rex   rexState
}

func encodeMemoryOperand(m memory) (memEncoding, error) {
	if err := checkRegs(m.base); err != nil {
		return memEncoding{}, err
	}
	var ss byte
	if m.hasIndex {
		if err := checkRegs(m.index); err != nil {
			return memEncoding{}, err
		}
		if m.index == RSP {
			// index field 100 without REX.X means "no index"
			return memEncoding{}, asm.ErrInvalidAddress
		}
		switch m.scale {
		case 1:
			ss = 0
		case 2:
			ss = 1
		case 4:
			ss = 2
		case 8:
			ss = 3
		default:
			return memEncoding{}, asm.ErrInvalidAddress
		}
	}

	enc := memEncoding{
		rex: rexState{
			b: high(m.base),
			x: m.hasIndex && high(m.index),
		},
	}

	rm := low(m.base)

	// rbp and r13 have no mod=00 form, that encoding means rip-relative or
	// disp32-only, so they take an explicit zero disp8.
	disp := m.disp
	switch {
	case disp == 0 && rm != 5:
		enc.modrm = 0x00
	case disp >= -128 && disp <= 127:
		enc.modrm = 0x40
		enc.disp = []byte{byte(disp)}
	default:
		enc.modrm = 0x80
		enc.disp = binary.LittleEndian.AppendUint32(nil, uint32(disp))
	}

	// rsp and r12 in the rm field select a SIB byte.
	if m.hasIndex || rm == 4 {
		index := byte(4)
		if m.hasIndex {
			index = low(m.index)
		}
		enc.sib = []byte{ss<<6 | index<<3 | rm}
		rm = 4
	}
	enc.modrm |= rm
	return enc, nil
}

// emitMem emits [prefix] REX opcode modrm [sib] [disp] for a reg, m operand.
func emitMem(s *asm.State, prefix byte, w bool, opcode []byte, reg byte, forceREX bool, m memory) error {
	enc, err := encodeMemoryOperand(m)
	if err != nil {
		return err
	}
	if prefix != 0 {
		s.Emit(prefix)
	}
	rex := enc.rex
	rex.w = w
	rex.r = reg >= 8
	rex.force = rex.force || forceREX
	emitREX(s, rex)
	s.Emit(opcode...)
	s.Emit(enc.modrm | (reg&7)<<3)
	s.Emit(enc.sib...)
	s.Emit(enc.disp...)
	return nil
}

// emitRR emits REX.W opcode with modrm(11, reg, rm).
func emitRR(s *asm.State, w bool, opcode []byte, reg, rm asm.R) {
	emitREX(s, rexState{w: w, r: high(reg), b: high(rm)})
	s.Emit(opcode...)
	s.Emit(modrm(3, low(reg), low(rm)))
}

// emitExt emits an opcode whose reg field is an opcode extension.
func emitExt(s *asm.State, w bool, opcode []byte, ext byte, rm asm.R) {
	emitREX(s, rexState{w: w, b: high(rm)})
	s.Emit(opcode...)
	s.Emit(modrm(3, ext, low(rm)))
}

// emitRip emits opcode with a rip-relative operand referencing data in the
// constant pool. trailing is the number of immediate bytes the caller emits
// after the displacement.
func emitRip(s *asm.State, w bool, opcode []byte, reg byte, data []byte, trailing int) {
	emitREX(s, rexState{w: w, r: reg >= 8})
	s.Emit(opcode...)
	s.Emit(modrm(0, reg, 5))
	ripFixup(s, s.Constant(data), trailing)
}

// ripFixup emits a zero disp32 and records a constant pool reference for it.
func ripFixup(s *asm.State, off int, trailing int) {
	pos := s.Len()
	s.Emit(0, 0, 0, 0)
	s.AddFixup(asm.Fixup{Kind: asm.FixupConst, Pos: pos, End: pos + 4 + trailing, Const: off})
}

func push(s *asm.State, r asm.R) {
	emitREX(s, rexState{b: high(r)})
	s.Emit(0x50 + low(r))
}

func pop(s *asm.State, r asm.R) {
	emitREX(s, rexState{b: high(r)})
	s.Emit(0x58 + low(r))
}

func u64bytes(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func fitsInt8(v int64) bool  { return v >= -128 && v <= 127 }
func fitsInt32(v int64) bool { return v >= -1<<31 && v <= 1<<31-1 }

// vex describes the fields of a VEX prefix.
type vex struct {
	pp   byte // 0 none, 1 66, 2 f3, 3 f2
	m    byte // 1 0f, 2 0f38, 3 0f3a
	w    bool
	l    bool
	vvvv byte // source register, stored inverted
	r    bool
	x    bool
	b    bool
}

func (v vex) bytes() []byte {
	inv := func(set bool, bit byte) byte {
		if set {
			return 0
		}
		return bit
	}
	var l byte
	if v.l {
		l = 4
	}
	tail := (^v.vvvv&0xf)<<3 | l | v.pp&3
	if !v.x && !v.b && !v.w && v.m == 1 {
		return []byte{0xc5, inv(v.r, 0x80) | tail}
	}
	var w byte
	if v.w {
		w = 0x80
	}
	return []byte{
		0xc4,
		inv(v.r, 0x80) | inv(v.x, 0x40) | inv(v.b, 0x20) | v.m&0x1f,
		w | tail,
	}
}
