package jitasm

import (
	"errors"
	"testing"
)

func TestEmitEveryArch(t *testing.T) {
	for _, arch := range []Arch{AMD64, ARM64} {
		conv, err := ConventionFor(arch)
		if err != nil {
			t.Fatalf("ConventionFor(%s) failed: %v", arch, err)
		}
		a, b, res := conv.Args[0], conv.Args[1], conv.Results[0]
		ins := []Ins{
			Enter{Size: 16},
			Mov(res, Reg(a)),
			Cmp{Src1: b, Src2: Imm(0)},
			B{C: Eq, L: 1},
			Add(res, res, Reg(b)),
			Xor(res, res, Imm(0x123456789)),
			DefLabel{L: 1},
			Leave{Size: 16},
			Ret{},
		}

		first, err := Emit(arch, ins, MaxCpuLevel)
		if err != nil {
			t.Fatalf("Emit(%s) failed: %v", arch, err)
		}
		second, err := Emit(arch, ins, MaxCpuLevel)
		if err != nil {
			t.Fatalf("Emit(%s) failed: %v", arch, err)
		}
		if first.Hex() != second.Hex() {
			t.Fatalf("%s output not deterministic:\n%s\n%s", arch, first.Hex(), second.Hex())
		}
		if first.Arch() != arch {
			t.Fatalf("Arch()=%s, want %s", first.Arch(), arch)
		}
		if _, ok := first.Label(1); !ok {
			t.Fatalf("%s: label 1 missing", arch)
		}
	}
}

func TestCeiling(t *testing.T) {
	for _, arch := range []Arch{AMD64, ARM64} {
		_, err := Emit(arch, []Ins{Vmovi{T: U32, Size: V128, Imm: 1}}, Scalar)
		if !errors.Is(err, ErrCpuLevelTooLow) {
			t.Fatalf("%s: Emit at scalar error=%v, want %v", arch, err, ErrCpuLevelTooLow)
		}
		if _, err := Emit(arch, []Ins{Vmovi{T: U32, Size: V128, Imm: 1}}, Simd128); err != nil {
			t.Fatalf("%s: Emit at simd128 failed: %v", arch, err)
		}
	}
	_, err := Emit(AMD64, []Ins{Vmovi{T: U32, Size: V256, Imm: 1}}, Simd128)
	if !errors.Is(err, ErrCpuLevelTooLow) {
		t.Fatalf("amd64 v256 at simd128 error=%v, want %v", err, ErrCpuLevelTooLow)
	}
}

func TestConventions(t *testing.T) {
	tests := []struct {
		arch Arch
		arg0 string
		res1 string
		sp   string
	}{
		{AMD64, "rdi", "rdx", "rsp"},
		{ARM64, "x0", "x1", "sp"},
	}
	for _, tt := range tests {
		conv, err := ConventionFor(tt.arch)
		if err != nil {
			t.Fatalf("ConventionFor(%s) failed: %v", tt.arch, err)
		}
		if got := RegName(tt.arch, conv.Args[0]); got != tt.arg0 {
			t.Fatalf("%s arg0=%s, want %s", tt.arch, got, tt.arg0)
		}
		if got := RegName(tt.arch, conv.Results[1]); got != tt.res1 {
			t.Fatalf("%s res1=%s, want %s", tt.arch, got, tt.res1)
		}
		if got := RegName(tt.arch, conv.SP); got != tt.sp {
			t.Fatalf("%s sp=%s, want %s", tt.arch, got, tt.sp)
		}
	}
	if _, err := ConventionFor("mips"); err == nil {
		t.Fatalf("ConventionFor(mips) succeeded")
	}
}

func TestForeignAssemble(t *testing.T) {
	foreign := ARM64
	if HostArch() == ARM64 {
		foreign = AMD64
	}
	if _, err := Assemble(foreign, []Ins{Ret{}}); !errors.Is(err, ErrForeignArch) {
		t.Fatalf("Assemble(%s) error=%v, want %v", foreign, err, ErrForeignArch)
	}
}
