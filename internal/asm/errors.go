package asm

import (
	"errors"
	"fmt"
)

// Malformed input.
var (
	ErrInvalidRegister            = errors.New("invalid register number")
	ErrInvalidRegs                = errors.New("invalid register combination")
	ErrInvalidImmediate           = errors.New("immediate out of range")
	ErrInvalidType                = errors.New("invalid type for operation")
	ErrInvalidDataType            = errors.New("invalid data type")
	ErrInvalidAddress             = errors.New("invalid addressing mode")
	ErrInvalidSrc                 = errors.New("invalid source operand")
	ErrStackFrameAlignment        = errors.New("stack frame must be a multiple of 16")
	ErrDuplicateLabel             = errors.New("label already defined")
	ErrUnsupportedOperation       = errors.New("unsupported operation")
	ErrUnsupportedVectorOperation = errors.New("unsupported vector operation")
	ErrVectorSizeNotSupported     = errors.New("vector size not supported")
	ErrVectorTypeNotSupported     = errors.New("vector type not supported")
)

// Label and relocation failures.
var (
	ErrMissingLabel     = errors.New("missing label")
	ErrBranchOutOfRange = errors.New("branch out of range")
	ErrBranchMisaligned = errors.New("branch offset must be a multiple of 4")
	ErrOffsetTooLarge   = errors.New("offset too large")
)

// Capability failures.
var (
	ErrCpuLevelTooLow = errors.New("cpu level too low")
)

// Resource failures.
var (
	ErrCodeTooBig          = errors.New("code too big")
	ErrInvalidArgs         = errors.New("invalid argument count")
	ErrInvalidOffset       = errors.New("invalid entry offset")
	ErrClosed              = errors.New("executable already closed")
	ErrForeignArch         = errors.New("program built for a different architecture")
	ErrUnsupportedPlatform = errors.New("native execution not supported on this platform")
)

// Error wraps an assembly or invocation failure with the instruction or label
// it concerns.
type Error struct {
	Op   string
	Arch Arch
	// Index is the position of the failing instruction, or -1.
	Index int
	Ins   Ins
	// Label is valid when HasLabel is set.
	Label    Label
	HasLabel bool
	Err      error
}

func (e *Error) Error() string {
	prefix := e.Op
	if e.Arch != ArchInvalid {
		prefix += " " + string(e.Arch)
	}
	switch {
	case e.Ins != nil:
		return fmt.Sprintf("%s: instruction %d (%s): %v", prefix, e.Index, e.Ins, e.Err)
	case e.HasLabel:
		return fmt.Sprintf("%s: label %d: %v", prefix, e.Label, e.Err)
	default:
		return prefix + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InsError reports err against instruction idx.
func InsError(arch Arch, idx int, ins Ins, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: "assemble", Arch: arch, Index: idx, Ins: ins, Err: err}
}

// LabelError reports err against label l.
func LabelError(arch Arch, l Label, err error) error {
	return &Error{Op: "resolve", Arch: arch, Index: -1, Label: l, HasLabel: true, Err: err}
}
