package asm

import (
	"errors"
	"log/slog"
	"math"

	"github.com/tinyrange/jitasm/internal/timeslice"
)

var (
	tsEncode  = timeslice.RegisterKind("asm::encode", 0)
	tsResolve = timeslice.RegisterKind("asm::resolve", 0)
)

// Encoder is the architecture specific half of an assembly: it encodes single
// instructions into a State and later patches the fixups it recorded.
type Encoder interface {
	// Encode appends the bytes for ins.
	Encode(s *State, ins Ins) error
	// Patch writes the displacement from f to target into code.
	Patch(code []byte, f Fixup, target int) error
}

// poolAlign is the alignment of the constant pool relative to the start of
// the code.
const poolAlign = 16

// Build runs enc over ins and resolves the result into a Program.
func Build(arch Arch, enc Encoder, ins []Ins, level CpuLevel) (Program, error) {
	rec := timeslice.NewRecorder()

	s := NewState(arch, level)
	for idx, in := range ins {
		if in == nil {
			return Program{}, &Error{Op: "assemble", Arch: arch, Index: idx, Err: ErrUnsupportedOperation}
		}
		s.SetIndex(idx)
		if err := enc.Encode(s, in); err != nil {
			return Program{}, InsError(arch, idx, in, err)
		}
	}
	rec.Record(tsEncode)

	textLen := len(s.code)
	prog, err := s.resolve(enc, ins)
	if err != nil {
		return Program{}, err
	}
	rec.Record(tsResolve)

	slog.Debug("assembled program",
		"arch", arch,
		"instructions", len(ins),
		"text", textLen,
		"pool", len(s.pool),
		"fixups", len(s.fixups),
	)
	return prog, nil
}

// resolve appends the constant pool and patches every fixup. The layout is
// final at this point so patches never move bytes.
func (s *State) resolve(enc Encoder, ins []Ins) (Program, error) {
	textLen := len(s.code)
	code := s.code
	cbase := textLen
	if len(s.pool) > 0 {
		for len(code)%poolAlign != 0 {
			code = append(code, 0)
		}
		cbase = len(code)
		code = append(code, s.pool...)
	}
	if len(code) > math.MaxInt32 {
		return Program{}, &Error{Op: "resolve", Arch: s.arch, Index: -1, Err: ErrCodeTooBig}
	}

	for _, f := range s.fixups {
		var target int
		if f.Kind == FixupConst {
			target = cbase + f.Const
		} else {
			pos, ok := s.labels[f.Label]
			if !ok {
				return Program{}, LabelError(s.arch, f.Label, ErrMissingLabel)
			}
			target = pos
		}
		if err := enc.Patch(code, f, target); err != nil {
			if f.Kind == FixupConst {
				return Program{}, s.fixupError(f, ins, err)
			}
			return Program{}, LabelError(s.arch, f.Label, err)
		}
	}

	labels := make([]LabelOffset, 0, len(s.order))
	for _, l := range s.order {
		labels = append(labels, LabelOffset{Label: l, Offset: s.labels[l]})
	}
	return NewProgram(s.arch, code, textLen, labels), nil
}

func (s *State) fixupError(f Fixup, ins []Ins, err error) error {
	e := &Error{Op: "resolve", Arch: s.arch, Index: f.Index, Err: err}
	if f.Index >= 0 && f.Index < len(ins) {
		e.Ins = ins[f.Index]
	}
	return e
}

// Disp32 checks that d fits a signed 32-bit displacement.
func Disp32(d int, tooFar error) (int32, error) {
	if d < math.MinInt32 || d > math.MaxInt32 {
		return 0, tooFar
	}
	return int32(d), nil
}

// IsLabelError reports whether err came from label resolution.
func IsLabelError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.HasLabel
}
