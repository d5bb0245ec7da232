package asmtext

import (
	"errors"
	"fmt"
)

// Limits on listings read from untrusted files.
const (
	MaxSourceSize    = 4 << 20
	MaxLineLength    = 4096
	MaxInstructions  = 1 << 20
	maxRegisterIndex = 31
)

var (
	ErrSourceTooLarge      = errors.New("listing exceeds maximum size")
	ErrTooManyInstructions = errors.New("listing exceeds maximum instruction count")
	ErrUnknownMnemonic     = errors.New("unknown mnemonic")
)

// ParseError reports a malformed line.
type ParseError struct {
	Line    int // 1-indexed, 0 if not applicable
	Message string
	Hint    string // optional
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (hint: %s)", msg, e.Hint)
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
