package asm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// LabelOffset is a label bound to its final code offset.
type LabelOffset struct {
	Label  Label
	Offset int
}

// Program is resolved machine code for one architecture: the instruction
// bytes followed by the constant pool, plus the label table.
type Program struct {
	arch    Arch
	code    []byte
	textLen int
	labels  []LabelOffset
}

// NewProgram copies code and labels into a Program.
func NewProgram(arch Arch, code []byte, textLen int, labels []LabelOffset) Program {
	return Program{
		arch:    arch,
		code:    append([]byte(nil), code...),
		textLen: textLen,
		labels:  append([]LabelOffset(nil), labels...),
	}
}

func (p Program) Arch() Arch { return p.arch }

// Bytes returns a copy of the full image including the constant pool.
func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

// Text returns a copy of the instruction bytes without the constant pool.
func (p Program) Text() []byte {
	return append([]byte(nil), p.code[:p.textLen]...)
}

// TextLen is the length of the instruction stream.
func (p Program) TextLen() int { return p.textLen }

// Len is the length of the full image.
func (p Program) Len() int { return len(p.code) }

// Labels returns the label table in definition order.
func (p Program) Labels() []LabelOffset {
	return append([]LabelOffset(nil), p.labels...)
}

// Label returns the offset of l.
func (p Program) Label(l Label) (int, bool) {
	for _, lo := range p.labels {
		if lo.Label == l {
			return lo.Offset, true
		}
	}
	return 0, false
}

func (p Program) Clone() Program {
	return NewProgram(p.arch, p.code, p.textLen, p.labels)
}

// Hex renders the instruction stream for external tools: bytes for x86-64,
// 32-bit words in memory order for AArch64.
func (p Program) Hex() string {
	return strings.Join(p.hexUnits(), " ")
}

// ShellStormURL links the instruction stream to the shell-storm online
// disassembler.
func (p Program) ShellStormURL() string {
	arch := "x86-64"
	if p.arch == ArchARM64 {
		arch = "arm64"
	}
	return fmt.Sprintf("https://shell-storm.org/online/Online-Assembler-and-Disassembler/?opcodes=%s&arch=%s&endianness=little&baddr=0x00000000&dis_with_addr=True&dis_with_raw=True&dis_with_ins=True#disassembly",
		strings.Join(p.hexUnits(), "+"), arch)
}

func (p Program) hexUnits() []string {
	text := p.code[:p.textLen]
	var out []string
	if p.arch == ArchARM64 {
		for len(text) >= 4 {
			out = append(out, fmt.Sprintf("%08x", binary.BigEndian.Uint32(text)))
			text = text[4:]
		}
	}
	for _, b := range text {
		out = append(out, fmt.Sprintf("%02x", b))
	}
	return out
}
