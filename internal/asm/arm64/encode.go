package arm64

import (
	"math/bits"

	"github.com/tinyrange/jitasm/internal/asm"
)

func rd(r asm.R) uint32 { return uint32(r) & 31 }
func rn(r asm.R) uint32 { return (uint32(r) & 31) << 5 }
func rm(r asm.R) uint32 { return (uint32(r) & 31) << 16 }

// three register data processing: op Xd, Xn, Xm
func encodeRRR(op uint32, d, n, m asm.R) uint32 {
	return op | rm(m) | rn(n) | rd(d)
}

// encodeMov copies src to dst. Register 31 reads as the zero register in ORR
// so moves involving sp use ADD #0.
func encodeMov(dst, src asm.R) uint32 {
	if dst == SP || src == SP {
		return 0x91000000 | rn(src) | rd(dst)
	}
	return 0xAA0003E0 | rm(src) | rd(dst)
}

func encodeMovz(dst asm.R, imm uint16, hw uint32) uint32 {
	return 0xD2800000 | hw<<21 | uint32(imm)<<5 | rd(dst)
}

func encodeMovn(dst asm.R, imm uint16, hw uint32) uint32 {
	return 0x92800000 | hw<<21 | uint32(imm)<<5 | rd(dst)
}

func encodeMovk(dst asm.R, imm uint16, hw uint32) uint32 {
	return 0xF2800000 | hw<<21 | uint32(imm)<<5 | rd(dst)
}

// encodeAddSubImm encodes ADD/SUB Xd|SP, Xn|SP, #imm with an optional 12 bit
// left shift. ok is false when imm is not representable.
func encodeAddSubImm(sub bool, dst, src asm.R, imm uint64) (uint32, bool) {
	op := uint32(0x91000000)
	if sub {
		op = 0xD1000000
	}
	switch {
	case imm <= 0xfff:
		return op | uint32(imm)<<10 | rn(src) | rd(dst), true
	case imm&0xfff == 0 && imm>>12 <= 0xfff:
		return op | 1<<22 | uint32(imm>>12)<<10 | rn(src) | rd(dst), true
	}
	return 0, false
}

// encodeAddSubExt is the extended register form, which accepts sp as the
// destination and first source.
func encodeAddSubExt(sub bool, dst, n, m asm.R) uint32 {
	op := uint32(0x8B206000)
	if sub {
		op = 0xCB206000
	}
	return encodeRRR(op, dst, n, m)
}

func encodeCmpImm(n asm.R, imm uint64, negate bool) (uint32, bool) {
	op := uint32(0xF100001F)
	if negate {
		op = 0xB100001F // cmn
	}
	switch {
	case imm <= 0xfff:
		return op | uint32(imm)<<10 | rn(n), true
	case imm&0xfff == 0 && imm>>12 <= 0xfff:
		return op | 1<<22 | uint32(imm>>12)<<10 | rn(n), true
	}
	return 0, false
}

func encodeCmpReg(n, m asm.R) uint32 {
	return 0xEB00001F | rm(m) | rn(n)
}

func encodeCsel(cond uint32, d, t, f asm.R) uint32 {
	return 0x9A800000 | rm(f) | cond<<12 | rn(t) | rd(d)
}

// encodeShiftImm uses the UBFM/SBFM aliases for lsl, lsr and asr.
func encodeShiftImm(op asm.BinOp, d, n asm.R, sh uint32) uint32 {
	switch op {
	case asm.OpShl:
		return 0xD3400000 | ((64-sh)&63)<<16 | (63-sh)<<10 | rn(n) | rd(d)
	case asm.OpShr:
		return 0xD3400000 | sh<<16 | 63<<10 | rn(n) | rd(d)
	default:
		return 0x93400000 | sh<<16 | 63<<10 | rn(n) | rd(d)
	}
}

// encodeBitmask returns the N:immr:imms fields of a logical immediate, or
// false when v is not a rotated run of ones repeated across the register.
func encodeBitmask(v uint64) (uint32, bool) {
	if v == 0 || v == ^uint64(0) {
		return 0, false
	}
	size := uint32(64)
	for size > 2 {
		half := size / 2
		mask := uint64(1)<<half - 1
		if v&mask != (v>>half)&mask {
			break
		}
		size = half
	}
	mask := ^uint64(0) >> (64 - size)
	elt := v & mask
	ones := uint32(bits.OnesCount64(elt))
	want := uint64(1)<<ones - 1
	for r := uint32(0); r < size; r++ {
		rot := (elt>>r | elt<<(size-r)) & mask
		if rot != want {
			continue
		}
		immr := (size - r) % size
		imms := (^(size*2 - 1) & 0x3f) | (ones - 1)
		var n uint32
		if size == 64 {
			n = 1
		}
		return n<<22 | immr<<16 | imms<<10, true
	}
	return 0, false
}

// Logical immediate opcodes.
var logicalImm = map[asm.BinOp]uint32{
	asm.OpAnd: 0x92000000,
	asm.OpOr:  0xB2000000,
	asm.OpXor: 0xD2000000,
}

// Register forms of the two operand integer operations.
var regOps = map[asm.BinOp]uint32{
	asm.OpAdd:  0x8B000000,
	asm.OpSub:  0xCB000000,
	asm.OpAnd:  0x8A000000,
	asm.OpOr:   0xAA000000,
	asm.OpXor:  0xCA000000,
	asm.OpMul:  0x9B007C00,
	asm.OpUdiv: 0x9AC00800,
	asm.OpSdiv: 0x9AC00C00,
	asm.OpShl:  0x9AC02000,
	asm.OpShr:  0x9AC02400,
	asm.OpSar:  0x9AC02800,
}

// encodeLoadStore picks the scaled unsigned offset form, then the unscaled
// signed form. It returns false when disp fits neither. uoff is the unsigned
// offset opcode and scale the log2 of the access size.
func encodeLoadStore(uoff uint32, scale uint, t, base asm.R, disp int32) (uint32, bool) {
	if disp >= 0 && disp%(1<<scale) == 0 && disp>>scale <= 0xfff {
		return uoff | uint32(disp>>scale)<<10 | rn(base) | rd(t), true
	}
	if disp >= -256 && disp <= 255 {
		return (uoff &^ 0x01000000) | (uint32(disp)&0x1ff)<<12 | rn(base) | rd(t), true
	}
	return 0, false
}

// encodeLoadStoreReg is the [base, Xm] form of the unsigned offset opcode.
func encodeLoadStoreReg(uoff uint32, t, base, index asm.R) uint32 {
	return (uoff &^ 0x01000000) | 1<<21 | rm(index) | 0x6000 | 0x800 | rn(base) | rd(t)
}

func encodeBranchReg(op uint32, n asm.R) uint32 {
	return op | rn(n)
}

const (
	opBLR = 0xD63F0000
	opBR  = 0xD61F0000
	opRET = 0xD65F03C0
	opADR = 0x10000000
	opBcc = 0x54000000
	opB   = 0x14000000
)
