package asm

import (
	"errors"
	"runtime"
	"testing"
)

const archTest Arch = "rel32"

type rel32Backend struct{}

func (rel32Backend) Arch() Arch { return archTest }

func (rel32Backend) EmitProgram(ins []Ins, level CpuLevel) (Program, error) {
	return Build(archTest, rel32Encoder{}, ins, level)
}

func init() {
	RegisterBackend(rel32Backend{})
}

func TestBackendRegistry(t *testing.T) {
	b, err := LookupBackend(archTest)
	if err != nil {
		t.Fatalf("LookupBackend failed: %v", err)
	}
	if b.Arch() != archTest {
		t.Fatalf("Arch()=%q, want %q", b.Arch(), archTest)
	}

	if _, err := LookupBackend("mips"); err == nil {
		t.Fatalf("LookupBackend(mips) succeeded")
	}
	if _, err := LookupBackend(ArchInvalid); err == nil {
		t.Fatalf("LookupBackend(\"\") succeeded")
	}

	prog, err := Emit(archTest, []Ins{Ret{}}, MaxCpuLevel)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if got, want := prog.Hex(), "c3"; got != want {
		t.Fatalf("Hex()=%s, want %s", got, want)
	}
}

func TestRegisterBackendPanics(t *testing.T) {
	for name, b := range map[string]Backend{
		"nil":       nil,
		"duplicate": rel32Backend{},
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("RegisterBackend did not panic")
				}
			}()
			RegisterBackend(b)
		})
	}
}

func TestAssembleForeignArch(t *testing.T) {
	_, err := Assemble(archTest, []Ins{Ret{}})
	if !errors.Is(err, ErrForeignArch) {
		t.Fatalf("Assemble error=%v, want %v", err, ErrForeignArch)
	}
}

func TestParseNames(t *testing.T) {
	for in, want := range map[string]Arch{"x86_64": ArchAMD64, "amd64": ArchAMD64, "aarch64": ArchARM64} {
		if got, err := ParseArch(in); err != nil || got != want {
			t.Fatalf("ParseArch(%q)=%q,%v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseArch("riscv64"); err == nil {
		t.Fatalf("ParseArch(riscv64) succeeded")
	}

	for _, c := range Conds() {
		if got, err := ParseCond(c.String()); err != nil || got != c {
			t.Fatalf("ParseCond(%q)=%v,%v", c, got, err)
		}
	}
	for l := Scalar; l <= Simd512; l++ {
		if got, err := ParseCpuLevel(l.String()); err != nil || got != l {
			t.Fatalf("ParseCpuLevel(%q)=%v,%v", l, got, err)
		}
	}
	for ty := U8; ty <= F256; ty++ {
		if got, err := ParseType(ty.String()); err != nil || got != ty {
			t.Fatalf("ParseType(%q)=%v,%v", ty, got, err)
		}
	}
	if got, err := ParseVsize("v256"); err != nil || got != V256 {
		t.Fatalf("ParseVsize(v256)=%v,%v", got, err)
	}
}

func TestHostArch(t *testing.T) {
	want := map[string]Arch{"amd64": ArchAMD64, "arm64": ArchARM64}[runtime.GOARCH]
	if got := HostArch(); got != want {
		t.Fatalf("HostArch()=%q, want %q", got, want)
	}
}

func TestTypeWidths(t *testing.T) {
	tests := []struct {
		t      Type
		bits   int
		signed bool
		float  bool
	}{
		{U8, 8, false, false},
		{S16, 16, true, false},
		{F32, 32, false, true},
		{U64, 64, false, false},
		{S256, 256, true, false},
		{F64, 64, false, true},
	}
	for _, tt := range tests {
		if tt.t.Bits() != tt.bits || tt.t.IsSigned() != tt.signed || tt.t.IsFloat() != tt.float {
			t.Fatalf("%s: bits=%d signed=%v float=%v", tt.t, tt.t.Bits(), tt.t.IsSigned(), tt.t.IsFloat())
		}
	}
	if V1024.Bits() != 1024 || V256.Bytes() != 32 {
		t.Fatalf("Vsize widths wrong: %d %d", V1024.Bits(), V256.Bytes())
	}
}
