// Package amd64 encodes virtual instructions as x86-64 machine code.
package amd64

import (
	"encoding/binary"

	"github.com/tinyrange/jitasm/internal/asm"
)

// maxVectorBits is the widest vector the VEX encodings here can express.
const maxVectorBits = 256

type encoder struct{}

func (encoder) Encode(s *asm.State, ins asm.Ins) error {
	switch in := ins.(type) {
	case asm.DefLabel:
		return s.DefineLabel(in.L)
	case asm.Enter:
		return frame(s, in.Size, 5)
	case asm.Leave:
		return frame(s, in.Size, 0)
	case asm.Addr:
		return addr(s, in)
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
		return indirect(s, in.Target, 2)
	case asm.Branch:
		return indirect(s, in.Target, 4)
	case asm.B:
		cc, err := condCode(in.C)
		if err != nil {
			return err
		}
		pos := s.Len()
		s.Emit(0x0f, 0x80+cc, 0, 0, 0, 0)
		s.AddFixup(asm.Fixup{Kind: asm.FixupBranch, Pos: pos + 2, End: pos + 6, Label: in.L, Cond: in.C})
		return nil
	case asm.J:
		pos := s.Len()
		s.Emit(0xe9, 0, 0, 0, 0)
		s.AddFixup(asm.Fixup{Kind: asm.FixupJump, Pos: pos + 1, End: pos + 5, Label: in.L})
		return nil
	case asm.Sel:
		return sel(s, in)
	case asm.Ret:
		s.Emit(0xc3)
		return nil
	case asm.Data:
		return s.EmitData(in.T, in.Value)
	default:
		return asm.ErrUnsupportedOperation
	}
}

// Patch stores target relative to the end of the instruction.
func (encoder) Patch(code []byte, f asm.Fixup, target int) error {
	var tooFar error
	switch f.Kind {
	case asm.FixupBranch, asm.FixupJump:
		tooFar = asm.ErrBranchOutOfRange
	case asm.FixupAddr:
		tooFar = asm.ErrOffsetTooLarge
	default:
		tooFar = asm.ErrCodeTooBig
	}
	disp, err := asm.Disp32(target-f.End, tooFar)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(code[f.Pos:f.Pos+4], uint32(disp))
	return nil
}

// frame adjusts rsp by size; ext 5 subtracts and 0 adds.
func frame(s *asm.State, size uint32, ext byte) error {
	if size%16 != 0 {
		return asm.ErrStackFrameAlignment
	}
	if size == 0 {
		return nil
	}
	aluImm(s, ext, RSP, int64(size))
	return nil
}

func addr(s *asm.State, in asm.Addr) error {
	if err := checkRegs(in.Dst); err != nil {
		return err
	}
	emitREX(s, rexState{w: true, r: high(in.Dst)})
	s.Emit(0x8d, modrm(0, low(in.Dst), 5))
	pos := s.Len()
	s.Emit(0, 0, 0, 0)
	s.AddFixup(asm.Fixup{Kind: asm.FixupAddr, Pos: pos, End: pos + 4, Label: in.L})
	return nil
}

// indirect emits ff /ext with a register operand.
func indirect(s *asm.State, target asm.R, ext byte) error {
	if err := checkRegs(target); err != nil {
		return err
	}
	emitExt(s, false, []byte{0xff}, ext, target)
	return nil
}

// Backend is the x86-64 asm.Backend.
type Backend struct{}

func (Backend) Arch() asm.Arch { return asm.ArchAMD64 }

// EmitProgram encodes ins and resolves labels and constants.
func (Backend) EmitProgram(ins []asm.Ins, level asm.CpuLevel) (asm.Program, error) {
	return asm.Build(asm.ArchAMD64, encoder{}, ins, level)
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
