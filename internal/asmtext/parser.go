// Package asmtext reads and writes the line oriented text form of virtual
// instruction listings, the same syntax asm.Ins.String produces.
//
//	label 1
//	ld u16 r0, [r4+6]
//	sub r0, r0, #1   ; comment
//	b ne 1
//	ret
package asmtext

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyrange/jitasm/internal/asm"
	"github.com/tinyrange/jitasm/internal/asm/amd64"
	"github.com/tinyrange/jitasm/internal/asm/arm64"
)

// Options adjusts parsing.
type Options struct {
	// Arch enables hardware register names ("rdi", "x0", "sp") in addition
	// to r0..r31.
	Arch asm.Arch
}

// Parse reads a listing using only generic register names.
func Parse(data []byte) ([]asm.Ins, error) {
	return ParseWithOptions(data, Options{})
}

// ParseString is Parse for a string.
func ParseString(src string) ([]asm.Ins, error) {
	return Parse([]byte(src))
}

// ParseWithOptions reads a listing.
func ParseWithOptions(data []byte, opts Options) ([]asm.Ins, error) {
	if len(data) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("%d bytes", len(data)), Err: ErrSourceTooLarge}
	}
	p := &parser{names: registerNames(opts.Arch)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 256), MaxLineLength)

	var out []asm.Ins
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}
		in, err := p.parseLine(line)
		if err != nil {
			return nil, lineError(lineNum, err)
		}
		out = append(out, in)
		if len(out) > MaxInstructions {
			return nil, &ParseError{Line: lineNum, Message: "too many instructions", Err: ErrTooManyInstructions}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Line: lineNum + 1, Message: err.Error(), Err: err}
	}
	return out, nil
}

// Format renders ins one instruction per line.
func Format(ins []asm.Ins) string {
	var b strings.Builder
	for _, in := range ins {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func lineError(line int, err error) error {
	if pe, ok := err.(*ParseError); ok {
		pe.Line = line
		return pe
	}
	return &ParseError{Line: line, Message: err.Error(), Err: err}
}

// stripComment removes a trailing ';' comment, or a '#' comment. A '#'
// directly followed by a digit or sign is an immediate.
func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		if i+1 < len(line) && isImmStart(line[i+1]) {
			continue
		}
		return line[:i]
	}
	return line
}

func isImmStart(c byte) bool {
	return c == '-' || c == '+' || (c >= '0' && c <= '9')
}

func registerNames(arch asm.Arch) map[string]asm.R {
	names := make(map[string]asm.R)
	switch arch {
	case asm.ArchAMD64:
		for r := asm.R(0); r < 16; r++ {
			names[amd64.RegName(r)] = r
		}
	case asm.ArchARM64:
		for r := asm.R(0); r <= arm64.SP; r++ {
			names[arm64.RegName(r)] = r
		}
		names["fp"] = arm64.X29
		names["lr"] = arm64.X30
	}
	return names
}

type parser struct {
	names map[string]asm.R
}

// splitHead separates n leading space separated words from the comma
// separated operand list.
func splitHead(rest string, n int) ([]string, []string, error) {
	head := make([]string, 0, n)
	for len(head) < n {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil, nil, fmt.Errorf("expected %d modifiers, got %d", n, len(head))
		}
		word, tail, _ := strings.Cut(rest, " ")
		if strings.ContainsRune(word, ',') {
			return nil, nil, fmt.Errorf("expected modifier before %q", word)
		}
		head = append(head, word)
		rest = tail
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return head, nil, nil
	}
	ops := strings.Split(rest, ",")
	for i := range ops {
		ops[i] = strings.TrimSpace(ops[i])
	}
	return head, ops, nil
}

func want(ops []string, n int) error {
	if len(ops) != n {
		return fmt.Errorf("expected %d operands, got %d", n, len(ops))
	}
	return nil
}

var binOps = map[string]asm.BinOp{}
var unOps = map[string]asm.UnOp{}
var vbinOps = map[string]asm.VBinOp{}
var vunOps = map[string]asm.VUnOp{}

func init() {
	for op := asm.OpAdd; op <= asm.OpSdiv; op++ {
		binOps[op.String()] = op
	}
	for op := asm.OpMov; op <= asm.OpNeg; op++ {
		unOps[op.String()] = op
	}
	for op := asm.OpVadd; op <= asm.OpVmul; op++ {
		vbinOps[op.String()] = op
	}
	for op := asm.OpVmov; op <= asm.OpVrsqrte; op++ {
		vunOps[op.String()] = op
	}
}

func (p *parser) parseLine(line string) (asm.Ins, error) {
	mn, rest, _ := strings.Cut(line, " ")
	mn = strings.ToLower(mn)

	if op, ok := binOps[mn]; ok {
		_, ops, err := splitHead(rest, 0)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 3); err != nil {
			return nil, err
		}
		dst, a, err := p.reg2(ops[0], ops[1])
		if err != nil {
			return nil, err
		}
		src, err := p.src(ops[2])
		if err != nil {
			return nil, err
		}
		return asm.Binary{Op: op, Dst: dst, Src1: a, Src2: src}, nil
	}
	if op, ok := unOps[mn]; ok {
		_, ops, err := splitHead(rest, 0)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 2); err != nil {
			return nil, err
		}
		dst, err := p.reg(ops[0])
		if err != nil {
			return nil, err
		}
		src, err := p.src(ops[1])
		if err != nil {
			return nil, err
		}
		return asm.Unary{Op: op, Dst: dst, Src: src}, nil
	}
	if op, ok := vbinOps[mn]; ok {
		t, size, ops, err := vectorHead(rest, 3)
		if err != nil {
			return nil, err
		}
		dst, err := vreg(ops[0])
		if err != nil {
			return nil, err
		}
		a, err := vreg(ops[1])
		if err != nil {
			return nil, err
		}
		src, err := p.src(ops[2])
		if err != nil {
			return nil, err
		}
		return asm.VBinary{Op: op, T: t, Size: size, Dst: dst, Src1: a, Src2: src}, nil
	}
	if op, ok := vunOps[mn]; ok {
		t, size, ops, err := vectorHead(rest, 2)
		if err != nil {
			return nil, err
		}
		dst, err := vreg(ops[0])
		if err != nil {
			return nil, err
		}
		src, err := vreg(ops[1])
		if err != nil {
			return nil, err
		}
		return asm.VUnary{Op: op, T: t, Size: size, Dst: dst, Src: src}, nil
	}

	switch mn {
	case "ret":
		if strings.TrimSpace(rest) != "" {
			return nil, fmt.Errorf("ret takes no operands")
		}
		return asm.Ret{}, nil
	case "label", "j":
		l, err := label(rest)
		if err != nil {
			return nil, err
		}
		if mn == "j" {
			return asm.J{L: l}, nil
		}
		return asm.DefLabel{L: l}, nil
	case "enter", "leave":
		n, err := strconv.ParseUint(strings.TrimSpace(rest), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad frame size %q", strings.TrimSpace(rest))
		}
		if mn == "enter" {
			return asm.Enter{Size: uint32(n)}, nil
		}
		return asm.Leave{Size: uint32(n)}, nil
	case "call", "branch":
		r, err := p.reg(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		if mn == "call" {
			return asm.Call{Target: r}, nil
		}
		return asm.Branch{Target: r}, nil
	case "addr":
		_, ops, err := splitHead(rest, 0)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 2); err != nil {
			return nil, err
		}
		r, err := p.reg(ops[0])
		if err != nil {
			return nil, err
		}
		l, err := label(ops[1])
		if err != nil {
			return nil, err
		}
		return asm.Addr{Dst: r, L: l}, nil
	case "ld", "st":
		head, ops, err := splitHead(rest, 1)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 2); err != nil {
			return nil, err
		}
		t, err := asm.ParseType(head[0])
		if err != nil {
			return nil, err
		}
		r, err := p.reg(ops[0])
		if err != nil {
			return nil, err
		}
		base, disp, err := p.mem(ops[1])
		if err != nil {
			return nil, err
		}
		if mn == "ld" {
			return asm.Ld{T: t, Dst: r, Base: base, Disp: disp}, nil
		}
		return asm.St{T: t, Src: r, Base: base, Disp: disp}, nil
	case "vld", "vst":
		t, size, ops, err := vectorHead(rest, 2)
		if err != nil {
			return nil, err
		}
		v, err := vreg(ops[0])
		if err != nil {
			return nil, err
		}
		base, disp, err := p.mem(ops[1])
		if err != nil {
			return nil, err
		}
		if mn == "vld" {
			return asm.Vld{T: t, Size: size, Dst: v, Base: base, Disp: disp}, nil
		}
		return asm.Vst{T: t, Size: size, Src: v, Base: base, Disp: disp}, nil
	case "vmovi":
		t, size, ops, err := vectorHead(rest, 2)
		if err != nil {
			return nil, err
		}
		v, err := vreg(ops[0])
		if err != nil {
			return nil, err
		}
		imm, err := immBits(ops[1])
		if err != nil {
			return nil, err
		}
		return asm.Vmovi{T: t, Size: size, Dst: v, Imm: imm}, nil
	case "cmp":
		_, ops, err := splitHead(rest, 0)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 2); err != nil {
			return nil, err
		}
		a, err := p.reg(ops[0])
		if err != nil {
			return nil, err
		}
		src, err := p.src(ops[1])
		if err != nil {
			return nil, err
		}
		return asm.Cmp{Src1: a, Src2: src}, nil
	case "b":
		head, ops, err := splitHead(rest, 1)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 1); err != nil {
			return nil, err
		}
		c, err := asm.ParseCond(head[0])
		if err != nil {
			return nil, err
		}
		l, err := label(ops[0])
		if err != nil {
			return nil, err
		}
		return asm.B{C: c, L: l}, nil
	case "sel":
		head, ops, err := splitHead(rest, 1)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 3); err != nil {
			return nil, err
		}
		c, err := asm.ParseCond(head[0])
		if err != nil {
			return nil, err
		}
		dst, tr, err := p.reg2(ops[0], ops[1])
		if err != nil {
			return nil, err
		}
		fr, err := p.reg(ops[2])
		if err != nil {
			return nil, err
		}
		return asm.Sel{C: c, Dst: dst, T: tr, F: fr}, nil
	case "data":
		head, ops, err := splitHead(rest, 1)
		if err != nil {
			return nil, err
		}
		if err := want(ops, 1); err != nil {
			return nil, err
		}
		t, err := asm.ParseType(head[0])
		if err != nil {
			return nil, err
		}
		v, err := immBits(ops[0])
		if err != nil {
			return nil, err
		}
		return asm.Data{T: t, Value: v}, nil
	}
	return nil, &ParseError{Message: fmt.Sprintf("unknown mnemonic %q", mn), Hint: "see asm.Ins for the instruction set", Err: ErrUnknownMnemonic}
}

func vectorHead(rest string, n int) (asm.Type, asm.Vsize, []string, error) {
	head, ops, err := splitHead(rest, 2)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := want(ops, n); err != nil {
		return 0, 0, nil, err
	}
	t, err := asm.ParseType(head[0])
	if err != nil {
		return 0, 0, nil, err
	}
	size, err := asm.ParseVsize(head[1])
	if err != nil {
		return 0, 0, nil, err
	}
	return t, size, ops, nil
}

func (p *parser) reg(s string) (asm.R, error) {
	if r, ok := p.names[s]; ok {
		return r, nil
	}
	n, ok := indexed(s, 'r')
	if !ok {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return asm.R(n), nil
}

func (p *parser) reg2(a, b string) (asm.R, asm.R, error) {
	ra, err := p.reg(a)
	if err != nil {
		return 0, 0, err
	}
	rb, err := p.reg(b)
	if err != nil {
		return 0, 0, err
	}
	return ra, rb, nil
}

func vreg(s string) (asm.V, error) {
	n, ok := indexed(s, 'v')
	if !ok {
		return 0, fmt.Errorf("bad vector register %q", s)
	}
	return asm.V(n), nil
}

func indexed(s string, prefix byte) (int, bool) {
	if len(s) < 2 || s[0] != prefix {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n > maxRegisterIndex {
		return 0, false
	}
	return n, true
}

func (p *parser) src(s string) (asm.Src, error) {
	if strings.HasPrefix(s, "#") {
		v, err := immBits(s)
		if err != nil {
			return asm.Src{}, err
		}
		return asm.Imm(int64(v)), nil
	}
	if strings.HasPrefix(s, "v") {
		v, err := vreg(s)
		if err != nil {
			return asm.Src{}, err
		}
		return asm.VReg(v), nil
	}
	r, err := p.reg(s)
	if err != nil {
		return asm.Src{}, err
	}
	return asm.Reg(r), nil
}

// immBits parses "#123", "#-5" or "#0xffffffffffffffff" as a 64-bit pattern.
func immBits(s string) (uint64, error) {
	body, ok := strings.CutPrefix(s, "#")
	if !ok {
		return 0, fmt.Errorf("bad immediate %q", s)
	}
	if strings.HasPrefix(body, "-") {
		v, err := strconv.ParseInt(body, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad immediate %q", s)
		}
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(body, "+"), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad immediate %q", s)
	}
	return v, nil
}

func label(s string) (asm.Label, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad label %q", s)
	}
	return asm.Label(n), nil
}

// mem parses "[r4+6]", "[r4-8]" or "[r4]".
func (p *parser) mem(s string) (asm.R, int32, error) {
	inner, ok := strings.CutPrefix(s, "[")
	if ok {
		inner, ok = strings.CutSuffix(inner, "]")
	}
	if !ok {
		return 0, 0, fmt.Errorf("bad memory operand %q", s)
	}
	inner = strings.ReplaceAll(inner, " ", "")
	split := strings.IndexAny(inner, "+-")
	if split < 0 {
		r, err := p.reg(inner)
		return r, 0, err
	}
	r, err := p.reg(inner[:split])
	if err != nil {
		return 0, 0, err
	}
	disp, err := strconv.ParseInt(strings.TrimPrefix(inner[split:], "+"), 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad displacement in %q", s)
	}
	return r, int32(disp), nil
}
