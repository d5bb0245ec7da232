package asm

import (
	"bytes"
	"errors"
	"testing"
)

func TestEmitDataRanges(t *testing.T) {
	tests := []struct {
		t    Type
		v    uint64
		want []byte
		err  error
	}{
		{U8, 0xff, []byte{0xff}, nil},
		{U8, 0x100, nil, ErrInvalidImmediate},
		{S8, uint64(0xffffffffffffff80), []byte{0x80}, nil},
		{S8, 0x80, nil, ErrInvalidImmediate},
		{U16, 0x1234, []byte{0x34, 0x12}, nil},
		{S16, uint64(0xffffffffffff7fff), nil, ErrInvalidImmediate},
		{U32, 0xdeadbeef, []byte{0xef, 0xbe, 0xad, 0xde}, nil},
		{F32, 0x3f800000, []byte{0x00, 0x00, 0x80, 0x3f}, nil},
		{S32, uint64(0xffffffffffffffff), []byte{0xff, 0xff, 0xff, 0xff}, nil},
		{U64, 0x0102030405060708, []byte{8, 7, 6, 5, 4, 3, 2, 1}, nil},
		{U128, 0, nil, ErrInvalidDataType},
		{F16, 0, nil, ErrInvalidDataType},
	}
	for _, tt := range tests {
		s := NewState(ArchAMD64, 0)
		err := s.EmitData(tt.t, tt.v)
		if !errors.Is(err, tt.err) {
			t.Fatalf("EmitData(%s, %#x) error=%v, want %v", tt.t, tt.v, err, tt.err)
		}
		if err == nil && !bytes.Equal(s.Code(), tt.want) {
			t.Fatalf("EmitData(%s, %#x)=% x, want % x", tt.t, tt.v, s.Code(), tt.want)
		}
	}
}

func TestConstantPool(t *testing.T) {
	s := NewState(ArchAMD64, 0)

	a := s.Constant([]byte{1})
	b := s.Constant([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	c := s.Constant([]byte{1})
	d := s.Constant(make([]byte, 16))

	if a != 0 || c != a {
		t.Fatalf("byte constant offsets=%d,%d, want 0,0", a, c)
	}
	if b != 8 {
		t.Fatalf("u64 constant offset=%d, want 8", b)
	}
	if d != 16 {
		t.Fatalf("v128 constant offset=%d, want 16", d)
	}
	if got, want := s.PoolLen(), 32; got != want {
		t.Fatalf("PoolLen()=%d, want %d", got, want)
	}
}

func TestReplicatedConstant(t *testing.T) {
	s := NewState(ArchARM64, 0)
	off := s.ReplicatedConstant(0xbeef, 2, 16)
	again := s.ReplicatedConstant(0x1234beef, 2, 16)
	if off != again {
		t.Fatalf("replicated constants not shared: %d vs %d", off, again)
	}
	want := bytes.Repeat([]byte{0xef, 0xbe}, 8)
	if got := s.pool[off : off+16]; !bytes.Equal(got, want) {
		t.Fatalf("pool=% x, want % x", got, want)
	}
}

func TestCheckVector(t *testing.T) {
	tests := []struct {
		name  string
		level CpuLevel
		t     Type
		size  Vsize
		max   int
		want  error
	}{
		{"ok", Simd256, F32, V256, 256, nil},
		{"scalar", Scalar, U8, V128, 256, ErrCpuLevelTooLow},
		{"ceiling", Simd128, U32, V256, 256, ErrCpuLevelTooLow},
		{"backend", Simd512, U32, V512, 256, ErrVectorSizeNotSupported},
		{"lane_too_wide", Simd512, U256, V128, 256, ErrInvalidType},
		{"bad_type", Simd512, Type(99), V128, 256, ErrInvalidType},
		{"bad_size", Simd512, U8, Vsize(9), 256, ErrVectorSizeNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(ArchAMD64, tt.level)
			if err := s.CheckVector(tt.t, tt.size, tt.max); !errors.Is(err, tt.want) {
				t.Fatalf("CheckVector error=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckShiftCount(t *testing.T) {
	tests := []struct {
		op   VBinOp
		t    Type
		v    int64
		want error
	}{
		{OpVshl, U8, 0, nil},
		{OpVshl, U8, 7, nil},
		{OpVshl, U8, 8, ErrInvalidImmediate},
		{OpVshl, U64, -1, ErrInvalidImmediate},
		{OpVshr, U16, 16, nil},
		{OpVshr, S32, 32, nil},
		{OpVshr, S32, 33, ErrInvalidImmediate},
		{OpVshr, U64, -1, ErrInvalidImmediate},
	}
	for _, tt := range tests {
		if err := CheckShiftCount(tt.op, tt.t, tt.v); !errors.Is(err, tt.want) {
			t.Errorf("CheckShiftCount(%s, %s, %d)=%v, want %v", tt.op, tt.t, tt.v, err, tt.want)
		}
	}
}

func TestDefineLabel(t *testing.T) {
	s := NewState(ArchAMD64, 0)
	s.Emit(0x90, 0x90)
	if err := s.DefineLabel(3); err != nil {
		t.Fatalf("DefineLabel failed: %v", err)
	}
	if off, ok := s.LabelOffset(3); !ok || off != 2 {
		t.Fatalf("LabelOffset(3)=%d,%v, want 2,true", off, ok)
	}
	if err := s.DefineLabel(3); !errors.Is(err, ErrDuplicateLabel) {
		t.Fatalf("second DefineLabel error=%v, want %v", err, ErrDuplicateLabel)
	}
}

func TestEmitWidths(t *testing.T) {
	s := NewState(ArchARM64, 0)
	s.Emit(0xaa)
	if pos := s.Emit32(0xd65f03c0); pos != 1 {
		t.Fatalf("Emit32 pos=%d, want 1", pos)
	}
	s.Emit64(0x1122334455667788)
	want := []byte{0xaa, 0xc0, 0x03, 0x5f, 0xd6, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	if !bytes.Equal(s.Code(), want) {
		t.Fatalf("code=% x, want % x", s.Code(), want)
	}
	if s.Len() != len(want) {
		t.Fatalf("Len()=%d, want %d", s.Len(), len(want))
	}
}
