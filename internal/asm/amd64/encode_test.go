package amd64

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tinyrange/jitasm/internal/asm"
	"github.com/tinyrange/jitasm/internal/asm/testutil"
)

func emitText(t *testing.T, ins ...asm.Ins) []byte {
	t.Helper()
	prog, err := Emit(ins)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	return prog.Text()
}

func TestEncodeBytes(t *testing.T) {
	tests := []struct {
		name string
		ins  []asm.Ins
		want string
	}{
		{"ret", []asm.Ins{asm.Ret{}}, "c3"},
		{"mov_imm", []asm.Ins{asm.Movi(RAX, 123)}, "48 c7 c0 7b 00 00 00"},
		{"mov_imm_u32", []asm.Ins{asm.Movi(R8, 0xffffffff)}, "41 b8 ff ff ff ff"},
		{"mov_imm64", []asm.Ins{asm.Movi(RAX, 0x1122334455667788)}, "48 b8 88 77 66 55 44 33 22 11"},
		{"mov_reg", []asm.Ins{asm.Mov(R9, asm.Reg(R10))}, "4d 89 d1"},
		{"mov_self", []asm.Ins{asm.Mov(RBX, asm.Reg(RBX))}, ""},
		{"add_three", []asm.Ins{asm.Add(RAX, RDI, asm.Reg(RSI))}, "48 89 f8 48 01 f0"},
		{"add_commuted", []asm.Ins{asm.Add(RSI, RDI, asm.Reg(RSI))}, "48 01 fe"},
		{"sub_aliased", []asm.Ins{asm.Sub(RAX, RDI, asm.Reg(RAX))}, "48 f7 d8 48 01 f8"},
		{"add_imm8_max", []asm.Ins{asm.Add(RAX, RAX, asm.Imm(127))}, "48 83 c0 7f"},
		{"add_imm32_min", []asm.Ins{asm.Add(RAX, RAX, asm.Imm(128))}, "48 81 c0 80 00 00 00"},
		{"add_imm8_min", []asm.Ins{asm.Add(RAX, RAX, asm.Imm(-128))}, "48 83 c0 80"},
		{"add_imm32_neg", []asm.Ins{asm.Add(RAX, RAX, asm.Imm(-129))}, "48 81 c0 7f ff ff ff"},
		{"xor_high", []asm.Ins{asm.Xor(R12, R12, asm.Reg(R13))}, "4d 31 ec"},
		{"mul_imm8", []asm.Ins{asm.Mul(RAX, RDI, asm.Imm(3))}, "48 6b c7 03"},
		{"mul_reg", []asm.Ins{asm.Mul(RAX, RAX, asm.Reg(RSI))}, "48 0f af c6"},
		{"shl_imm", []asm.Ins{asm.Shl(RAX, RDI, asm.Imm(3))}, "48 89 f8 48 c1 e0 03"},
		{"sar_cl", []asm.Ins{asm.Sar(RAX, RDI, asm.Reg(RCX))}, "48 89 f8 48 d3 f8"},
		{"shr_saves_rcx", []asm.Ins{asm.Shr(RAX, RDI, asm.Reg(RSI))}, "51 48 89 f8 48 89 f1 48 d3 e8 59"},
		{"udiv", []asm.Ins{asm.Udiv(RCX, RDI, asm.Reg(RSI))}, "50 52 48 89 f8 31 d2 48 f7 f6 48 89 c1 5a 58"},
		{"sdiv_into_rax", []asm.Ins{asm.Sdiv(RAX, RDI, asm.Reg(RSI))}, "52 48 89 f8 48 99 48 f7 fe 5a"},
		{"udiv_by_rdx", []asm.Ins{asm.Udiv(RAX, RDI, asm.Reg(RDX))}, "52 52 48 89 f8 31 d2 48 f7 34 24 48 83 c4 08 5a"},
		{"not", []asm.Ins{asm.Not(RAX, asm.Reg(RDI))}, "48 89 f8 48 f7 d0"},
		{"neg_imm_folded", []asm.Ins{asm.Neg(RAX, asm.Imm(5))}, "48 c7 c0 fb ff ff ff"},
		{"cmp_reg", []asm.Ins{asm.Cmp{Src1: RDI, Src2: asm.Reg(RSI)}}, "48 39 f7"},
		{"cmp_imm", []asm.Ins{asm.Cmpi(RDI, 1)}, "48 83 ff 01"},
		{"sel", []asm.Ins{asm.Sel{C: asm.Eq, Dst: RAX, T: RDI, F: RSI}}, "48 89 f0 48 0f 44 c7"},
		{"sel_dst_is_t", []asm.Ins{asm.Sel{C: asm.Eq, Dst: RDI, T: RDI, F: RSI}}, "48 0f 45 fe"},
		{"enter", []asm.Ins{asm.Enter{Size: 16}}, "48 83 ec 10"},
		{"leave", []asm.Ins{asm.Leave{Size: 16}}, "48 83 c4 10"},
		{"ld_u64_rsp", []asm.Ins{asm.Ld{T: asm.U64, Dst: RAX, Base: RSP, Disp: 8}}, "48 8b 44 24 08"},
		{"ld_u8", []asm.Ins{asm.Ld{T: asm.U8, Dst: RAX, Base: RDI}}, "48 0f b6 07"},
		{"ld_s32", []asm.Ins{asm.Ld{T: asm.S32, Dst: RAX, Base: RDI, Disp: 0x100}}, "48 63 87 00 01 00 00"},
		{"ld_u32_r13", []asm.Ins{asm.Ld{T: asm.U32, Dst: R8, Base: R13}}, "45 8b 45 00"},
		{"st_u8_sil", []asm.Ins{asm.St{T: asm.U8, Src: RSI, Base: RDI}}, "40 88 37"},
		{"st_u16", []asm.Ins{asm.St{T: asm.U16, Src: RAX, Base: RDI, Disp: 4}}, "66 89 47 04"},
		{"st_u64_r12", []asm.Ins{asm.St{T: asm.U64, Src: RAX, Base: R12, Disp: -8}}, "49 89 44 24 f8"},
		{"call", []asm.Ins{asm.Call{Target: R11}}, "41 ff d3"},
		{"branch", []asm.Ins{asm.Branch{Target: RAX}}, "ff e0"},
		{"data", []asm.Ins{asm.Data{T: asm.U16, Value: 0x1234}, asm.Data{T: asm.U32, Value: 1}}, "34 12 01 00 00 00"},
		{"vld", []asm.Ins{asm.Vld{T: asm.U32, Size: asm.V128, Dst: 0, Base: RAX}}, "c5 f8 10 00"},
		{"vld_rex_b", []asm.Ins{asm.Vld{T: asm.U32, Size: asm.V128, Dst: 0, Base: R8}}, "c4 c1 78 10 00"},
		{"vld_rex_rb", []asm.Ins{asm.Vld{T: asm.U32, Size: asm.V128, Dst: 8, Base: R10}}, "c4 41 78 10 02"},
		{"vst_256", []asm.Ins{asm.Vst{T: asm.U32, Size: asm.V256, Src: 0, Base: RAX}}, "c5 fc 11 00"},
		{"vpaddd", []asm.Ins{asm.VBinary{Op: asm.OpVadd, T: asm.S32, Size: asm.V128, Dst: 0, Src1: 1, Src2: asm.VReg(2)}}, "c5 f1 fe c2"},
		{"vaddps_256", []asm.Ins{asm.VBinary{Op: asm.OpVadd, T: asm.F32, Size: asm.V256, Dst: 0, Src1: 1, Src2: asm.VReg(2)}}, "c5 f4 58 c2"},
		{"vpsllvq", []asm.Ins{asm.VBinary{Op: asm.OpVshl, T: asm.U64, Size: asm.V128, Dst: 0, Src1: 1, Src2: asm.VReg(2)}}, "c4 e2 f1 47 c2"},
		{"vmovups", []asm.Ins{asm.VUnary{Op: asm.OpVmov, T: asm.U8, Size: asm.V128, Dst: 1, Src: 2}}, "c5 f8 10 ca"},
		{"vrcpps", []asm.Ins{asm.VUnary{Op: asm.OpVrecpe, T: asm.F32, Size: asm.V128, Dst: 1, Src: 2}}, "c5 f8 53 ca"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.ExpectBytes(t, tt.name, emitText(t, tt.ins...), tt.want)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		ins   asm.Ins
		level asm.CpuLevel
		want  error
	}{
		{"bad_register", asm.Mov(16, asm.Reg(RAX)), 0, asm.ErrInvalidRegister},
		{"vreg_source", asm.Add(RAX, RAX, asm.VReg(1)), 0, asm.ErrInvalidSrc},
		{"frame_alignment", asm.Enter{Size: 8}, 0, asm.ErrStackFrameAlignment},
		{"shift_range", asm.Shl(RAX, RAX, asm.Imm(64)), 0, asm.ErrInvalidImmediate},
		{"shift_rsp", asm.Shl(RSP, RAX, asm.Reg(RCX)), 0, asm.ErrInvalidRegs},
		{"div_zero", asm.Udiv(RAX, RAX, asm.Imm(0)), 0, asm.ErrInvalidImmediate},
		{"div_rsp", asm.Udiv(RAX, RSP, asm.Reg(RCX)), 0, asm.ErrInvalidRegs},
		{"ld_float", asm.Ld{T: asm.F32, Dst: RAX, Base: RDI}, 0, asm.ErrInvalidType},
		{"st_wide", asm.St{T: asm.U128, Src: RAX, Base: RDI}, 0, asm.ErrInvalidType},
		{"data_range", asm.Data{T: asm.U8, Value: 256}, 0, asm.ErrInvalidImmediate},
		{"data_type", asm.Data{T: asm.U128}, 0, asm.ErrInvalidDataType},
		{"bad_cond", asm.B{C: asm.Cond(99), L: 1}, 0, asm.ErrUnsupportedOperation},
		{"vector_too_wide", asm.Vld{T: asm.U32, Size: asm.V512, Dst: 0, Base: RAX}, 0, asm.ErrVectorSizeNotSupported},
		{"vector_ceiling", asm.Vld{T: asm.U32, Size: asm.V256, Dst: 0, Base: RAX}, asm.Simd128, asm.ErrCpuLevelTooLow},
		{"scalar_level", asm.Vld{T: asm.U32, Size: asm.V128, Dst: 0, Base: RAX}, asm.Scalar, asm.ErrCpuLevelTooLow},
		{"vmul_i8", asm.VBinary{Op: asm.OpVmul, T: asm.U8, Size: asm.V128, Src2: asm.VReg(0)}, 0, asm.ErrVectorTypeNotSupported},
		{"vshr_s64", asm.VBinary{Op: asm.OpVshr, T: asm.S64, Size: asm.V128, Src2: asm.VReg(0)}, 0, asm.ErrVectorTypeNotSupported},
		{"vshl_count", asm.VBinary{Op: asm.OpVshl, T: asm.U32, Size: asm.V128, Src2: asm.Imm(32)}, 0, asm.ErrInvalidImmediate},
		{"vshr_count", asm.VBinary{Op: asm.OpVshr, T: asm.U32, Size: asm.V128, Src2: asm.Imm(33)}, 0, asm.ErrInvalidImmediate},
		{"vshr_negative", asm.VBinary{Op: asm.OpVshr, T: asm.S32, Size: asm.V256, Src2: asm.Imm(-1)}, 0, asm.ErrInvalidImmediate},
		{"vrecpe_f64", asm.VUnary{Op: asm.OpVrecpe, T: asm.F64, Size: asm.V128}, 0, asm.ErrVectorTypeNotSupported},
		{"lane_wider_than_vector", asm.Vmovi{T: asm.U256, Size: asm.V128}, 0, asm.ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := tt.level
			if level == 0 {
				level = asm.MaxCpuLevel
			}
			_, err := Backend{}.EmitProgram([]asm.Ins{asm.Ret{}, tt.ins}, level)
			if !errors.Is(err, tt.want) {
				t.Fatalf("EmitProgram error=%v, want %v", err, tt.want)
			}
			var e *asm.Error
			if !errors.As(err, &e) {
				t.Fatalf("error %T is not *asm.Error", err)
			}
			if e.Index != 1 {
				t.Fatalf("error index=%d, want 1", e.Index)
			}
		})
	}
}

func TestIndexedMemoryOperand(t *testing.T) {
	tests := []struct {
		name string
		dst  asm.R
		m    memory
		want string
	}{
		{"scale1", RAX, memIndex(RAX, RCX, 1, 0), "48 8b 04 08"},
		{"scale2", RAX, memIndex(RAX, RCX, 2, 0), "48 8b 04 48"},
		{"scale4", RAX, memIndex(RAX, RCX, 4, 0), "48 8b 04 88"},
		{"scale8", RAX, memIndex(RAX, RCX, 8, 0), "48 8b 04 c8"},
		{"rbp_base", RDX, memIndex(RBP, R9, 8, 0), "4a 8b 54 cd 00"},
		{"r12_base_disp32", R8, memIndex(R12, RDX, 2, 0x200), "4d 8b 84 54 00 02 00 00"},
		{"r12_index", RAX, memIndex(RSP, R12, 4, -8), "4a 8b 44 a4 f8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := asm.NewState(asm.ArchAMD64, asm.MaxCpuLevel)
			if err := emitMem(s, 0, true, []byte{0x8b}, byte(tt.dst), false, tt.m); err != nil {
				t.Fatalf("emitMem failed: %v", err)
			}
			testutil.ExpectBytes(t, tt.name, s.Code(), tt.want)
		})
	}

	bad := []struct {
		name string
		m    memory
		want error
	}{
		{"rsp_index", memIndex(RAX, RSP, 1, 0), asm.ErrInvalidAddress},
		{"scale3", memIndex(RAX, RCX, 3, 0), asm.ErrInvalidAddress},
		{"index_range", memIndex(RAX, 16, 1, 0), asm.ErrInvalidRegister},
	}
	for _, tt := range bad {
		if _, err := encodeMemoryOperand(tt.m); !errors.Is(err, tt.want) {
			t.Errorf("%s: encodeMemoryOperand error=%v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestRegisterFieldPlacement(t *testing.T) {
	// add r, r, #1 must only differ in REX.B and the modrm rm bits.
	for r := RAX; r <= R15; r++ {
		if r == RSP {
			continue
		}
		got := emitText(t, asm.Add(r, r, asm.Imm(1)))
		want := []byte{0x48, 0x83, 0xc0 | low(r), 0x01}
		if high(r) {
			want[0] |= 0x01
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("add %s: bytes=%s, want %s", RegName(r), testutil.FormatHex(got), testutil.FormatHex(want))
		}
	}
}

func TestLabelResolution(t *testing.T) {
	prog, err := Emit([]asm.Ins{
		asm.B{C: asm.Ne, L: 1},
		asm.Ret{},
		asm.DefLabel{L: 1},
		asm.Ret{},
		asm.DefLabel{L: 2},
		asm.J{L: 1},
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	testutil.ExpectBytes(t, "branches", prog.Text(), "0f 85 01 00 00 00 c3 c3 e9 fa ff ff ff")
	if off, ok := prog.Label(2); !ok || off != 8 {
		t.Fatalf("label 2 offset=%d (%v), want 8", off, ok)
	}
}

func TestAddrAndConstantPool(t *testing.T) {
	prog, err := Emit([]asm.Ins{
		asm.Add(RAX, RAX, asm.Imm(0x123456789)),
		asm.Addr{Dst: RCX, L: 1},
		asm.Ret{},
		asm.DefLabel{L: 1},
		asm.Data{T: asm.U64, Value: 42},
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	// text: add (7) lea (7) ret (1) data (8) = 23 bytes, pool at 32
	testutil.ExpectBytes(t, "text", prog.Text(),
		"48 03 05 19 00 00 00 48 8d 0d 01 00 00 00 c3 2a 00 00 00 00 00 00 00")
	if got, want := prog.Len(), 40; got != want {
		t.Fatalf("program length=%d, want %d", got, want)
	}
	testutil.ExpectBytes(t, "pool", prog.Bytes()[32:], "89 67 45 23 01 00 00 00")
}

func TestConstantPoolSharing(t *testing.T) {
	prog, err := Emit([]asm.Ins{
		asm.Add(RAX, RAX, asm.Imm(1<<40)),
		asm.Sub(RCX, RCX, asm.Imm(1<<40)),
		asm.Ret{},
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if got, want := prog.Len()-16, 8; got != want {
		t.Fatalf("pool size=%d, want %d", got, want)
	}
}

func TestLabelErrors(t *testing.T) {
	_, err := Emit([]asm.Ins{asm.J{L: 7}})
	if !errors.Is(err, asm.ErrMissingLabel) || !asm.IsLabelError(err) {
		t.Fatalf("missing label error=%v", err)
	}
	_, err = Emit([]asm.Ins{asm.DefLabel{L: 1}, asm.DefLabel{L: 1}})
	if !errors.Is(err, asm.ErrDuplicateLabel) {
		t.Fatalf("duplicate label error=%v", err)
	}
}

func TestEmitDeterministic(t *testing.T) {
	ins := []asm.Ins{
		asm.Enter{Size: 32},
		asm.Movi(RAX, 0xdeadbeefcafe),
		asm.Vmovi{T: asm.U16, Size: asm.V256, Dst: 3, Imm: 0x7f},
		asm.VUnary{Op: asm.OpVneg, T: asm.F64, Size: asm.V128, Dst: 1, Src: 2},
		asm.Leave{Size: 32},
		asm.Ret{},
	}
	a, err := Emit(ins)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	b, err := Emit(ins)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("emission differs:\n%s\n%s", a.Hex(), b.Hex())
	}
}

func TestBackendRegistered(t *testing.T) {
	b, err := asm.LookupBackend(asm.ArchAMD64)
	if err != nil {
		t.Fatalf("LookupBackend failed: %v", err)
	}
	if b.Arch() != asm.ArchAMD64 {
		t.Fatalf("backend arch=%s", b.Arch())
	}
}
