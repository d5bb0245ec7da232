// Package arm64 encodes virtual instructions as AArch64 machine code.
package arm64

import (
	"encoding/binary"

	"github.com/tinyrange/jitasm/internal/asm"
)

// maxVectorBits is the width of the NEON registers.
const maxVectorBits = 128

type encoder struct{}

func (encoder) Encode(s *asm.State, ins asm.Ins) error {
	switch in := ins.(type) {
	case asm.DefLabel:
		return s.DefineLabel(in.L)
	case asm.Enter:
		return frame(s, in.Size, true)
	case asm.Leave:
		return frame(s, in.Size, false)
	case asm.Addr:
		if err := checkRegs(in.Dst); err != nil {
			return err
		}
		out := result(in.Dst)
		pos := s.Emit32(opADR | rd(out))
		s.AddFixup(asm.Fixup{Kind: asm.FixupAddr, Pos: pos, End: pos + 4, Label: in.L})
		commit(s, in.Dst)
		return nil
	case asm.Ld:
		return load(s, in)
	case asm.St:
		return store(s, in)
	case asm.Vld:
		return vload(s, in)
	case asm.Vst:
		return vstore(s, in)
	case asm.Binary:
		return binary_(s, in)
	case asm.Unary:
		return unary(s, in)
	case asm.Cmp:
		return cmp(s, in)
	case asm.VBinary:
		return vbinary(s, in)
	case asm.VUnary:
		return vunary(s, in)
	case asm.Vmovi:
		return vmovi(s, in)
	case asm.Call:
		return branchReg(s, opBLR, in.Target)
	case asm.Branch:
		return branchReg(s, opBR, in.Target)
	case asm.B:
		cond, err := condCode(in.C)
		if err != nil {
			return err
		}
		pos := s.Emit32(opBcc | cond)
		s.AddFixup(asm.Fixup{Kind: asm.FixupBranch, Pos: pos, End: pos + 4, Label: in.L, Cond: in.C})
		return nil
	case asm.J:
		pos := s.Emit32(opB)
		s.AddFixup(asm.Fixup{Kind: asm.FixupJump, Pos: pos, End: pos + 4, Label: in.L})
		return nil
	case asm.Sel:
		return sel(s, in)
	case asm.Ret:
		s.Emit32(opRET)
		return nil
	case asm.Data:
		return s.EmitData(in.T, in.Value)
	default:
		return asm.ErrUnsupportedOperation
	}
}

// Patch fills the pc relative immediate of the instruction at f.Pos. Offsets
// count from the start of the instruction.
func (encoder) Patch(code []byte, f asm.Fixup, target int) error {
	d := target - f.Pos
	word := binary.LittleEndian.Uint32(code[f.Pos:])

	switch f.Kind {
	case asm.FixupAddr:
		if d < -1<<20 || d >= 1<<20 {
			return asm.ErrOffsetTooLarge
		}
		word |= uint32(d&3)<<29 | uint32(d>>2&0x7ffff)<<5
	case asm.FixupBranch, asm.FixupConst:
		if d%4 != 0 {
			return asm.ErrBranchMisaligned
		}
		if d < -1<<20 || d >= 1<<20 {
			if f.Kind == asm.FixupConst {
				return asm.ErrCodeTooBig
			}
			return asm.ErrBranchOutOfRange
		}
		word |= uint32(d>>2&0x7ffff) << 5
	case asm.FixupJump:
		if d%4 != 0 {
			return asm.ErrBranchMisaligned
		}
		if d < -1<<27 || d >= 1<<27 {
			return asm.ErrBranchOutOfRange
		}
		word |= uint32(d>>2) & 0x3ffffff
	default:
		return asm.ErrUnsupportedOperation
	}

	binary.LittleEndian.PutUint32(code[f.Pos:], word)
	return nil
}

// read returns a register holding the value of r. The zero register shares
// the encoding of sp in most instructions, so sp is first copied to tmp.
func read(s *asm.State, r, tmp asm.R) asm.R {
	if r == SP {
		s.Emit32(encodeMov(tmp, SP))
		return tmp
	}
	return r
}

// result returns the register an instruction targeting dst should write;
// commit moves it into sp when needed.
func result(dst asm.R) asm.R {
	if dst == SP {
		return tmp0
	}
	return dst
}

func commit(s *asm.State, dst asm.R) {
	if dst == SP {
		s.Emit32(encodeMov(SP, tmp0))
	}
}

func branchReg(s *asm.State, op uint32, target asm.R) error {
	if err := checkRegs(target); err != nil {
		return err
	}
	if target == SP {
		return asm.ErrInvalidRegs
	}
	s.Emit32(encodeBranchReg(op, target))
	return nil
}

func frame(s *asm.State, size uint32, sub bool) error {
	if size%16 != 0 {
		return asm.ErrStackFrameAlignment
	}
	if size == 0 {
		return nil
	}
	if w, ok := encodeAddSubImm(sub, SP, SP, uint64(size)); ok {
		s.Emit32(w)
		return nil
	}
	movImm(s, tmp0, uint64(size))
	s.Emit32(encodeAddSubExt(sub, SP, SP, tmp0))
	return nil
}

// Backend is the AArch64 asm.Backend.
type Backend struct{}

func (Backend) Arch() asm.Arch { return asm.ArchARM64 }

// EmitProgram encodes ins and resolves labels and constants.
func (Backend) EmitProgram(ins []asm.Ins, level asm.CpuLevel) (asm.Program, error) {
	return asm.Build(asm.ArchARM64, encoder{}, ins, level)
}

// Emit is EmitProgram at the highest capability level.
func Emit(ins []asm.Ins) (asm.Program, error) {
	return Backend{}.EmitProgram(ins, asm.MaxCpuLevel)
}

// Assemble emits ins and maps the result for execution on the host.
func Assemble(ins []asm.Ins) (*asm.Executable, error) {
	return AssembleWithCeiling(ins, asm.MaxCpuLevel)
}

// AssembleWithCeiling is Assemble with vector widths capped by level.
func AssembleWithCeiling(ins []asm.Ins, level asm.CpuLevel) (*asm.Executable, error) {
	prog, err := Backend{}.EmitProgram(ins, level)
	if err != nil {
		return nil, err
	}
	return asm.NewExecutable(prog)
}

func init() {
	asm.RegisterBackend(Backend{})
}
