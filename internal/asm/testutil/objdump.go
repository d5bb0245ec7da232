// Package testutil checks emitted code against an external disassembler.
package testutil

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/tinyrange/jitasm/internal/asm"
)

// ELF machines understood by the disassemblers.
const (
	MachineX86_64  = elf.EM_X86_64
	MachineAArch64 = elf.EM_AARCH64
)

// DisasmLine is one decoded instruction.
type DisasmLine struct {
	Addr       uint64
	Text       string
	Normalized string
	Mnemonic   string
}

// Contains reports whether the normalized text contains substr. '#'
// immediates are compared by value, so "#0x20" matches "#32".
func (l DisasmLine) Contains(substr string) bool {
	return strings.Contains(CanonicalImmediates(l.Normalized), CanonicalImmediates(substr))
}

var hashImm = regexp.MustCompile(`#(-?)(0[xX][0-9a-fA-F]+|[0-9]+)\b`)

// CanonicalImmediates rewrites every '#' immediate in decimal. Disassemblers
// disagree on the radix of AArch64 immediates.
func CanonicalImmediates(text string) string {
	return hashImm.ReplaceAllStringFunc(text, func(m string) string {
		sub := hashImm.FindStringSubmatch(m)
		v, err := strconv.ParseUint(sub[2], 0, 64)
		if err != nil {
			return m
		}
		return "#" + sub[1] + strconv.FormatUint(v, 10)
	})
}

// MachineFor returns the ELF machine for arch.
func MachineFor(arch asm.Arch) (elf.Machine, bool) {
	switch arch {
	case asm.ArchAMD64:
		return MachineX86_64, true
	case asm.ArchARM64:
		return MachineAArch64, true
	}
	return 0, false
}

// DisassembleProgram runs GNU objdump over the text of prog. The constant
// pool is left out so it is not decoded as instructions.
func DisassembleProgram(t *testing.T, prog asm.Program, extraArgs ...string) []DisasmLine {
	t.Helper()
	machine, ok := MachineFor(prog.Arch())
	if !ok {
		t.Fatalf("no ELF machine for %q", prog.Arch())
	}
	args := append([]string{"-d", "--no-show-raw-insn"}, extraArgs...)
	return DisassembleWithTool(t, "objdump", prog.Text(), machine, args...)
}

// DisassembleWithTool places code in the .text section of a relocatable ELF
// and runs tool over it. The test is skipped when tool is not installed.
func DisassembleWithTool(t *testing.T, tool string, code []byte, machine elf.Machine, args ...string) []DisasmLine {
	t.Helper()

	toolPath, err := exec.LookPath(tool)
	if err != nil {
		t.Skipf("%s not found: %v", tool, err)
	}

	path := filepath.Join(t.TempDir(), "code.o")
	if err := os.WriteFile(path, textObject(code, machine), 0o644); err != nil {
		t.Fatalf("write object: %v", err)
	}

	out, err := exec.Command(toolPath, append(args, path)...).CombinedOutput()
	if err != nil {
		t.Fatalf("%s failed: %v\n\n%s", tool, err, out)
	}

	lines := parseListing(out)
	if len(lines) == 0 {
		t.Fatalf("%s produced no instructions:\n%s", tool, out)
	}
	return lines
}

// textObject builds an ELF64 object holding a single .text section.
func textObject(code []byte, machine elf.Machine) []byte {
	const (
		ehsize    = 64
		shentsize = 64
		textAlign = 16
	)
	names := []byte("\x00.text\x00.shstrtab\x00")

	textOff := uint64(ehsize)
	namesOff := textOff + uint64(len(code))
	shoff := (namesOff + uint64(len(names)) + 7) &^ 7

	var buf bytes.Buffer
	le := binary.LittleEndian

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehsize,
		Shentsize: shentsize,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&buf, le, hdr)

	buf.Write(code)
	buf.Write(names)
	buf.Write(make([]byte, shoff-uint64(buf.Len())))

	sections := []elf.Section64{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       textOff,
			Size:      uint64(len(code)),
			Addralign: textAlign,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       namesOff,
			Size:      uint64(len(names)),
			Addralign: 1,
		},
	}
	binary.Write(&buf, le, sections)
	return buf.Bytes()
}

// parseListing extracts "addr: text" rows from objdump style output.
func parseListing(out []byte) []DisasmLine {
	var lines []DisasmLine
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		addr, text, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		pc, err := strconv.ParseUint(strings.TrimSpace(addr), 16, 64)
		if err != nil {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "<") || strings.HasPrefix(fields[0], ".") {
			continue
		}
		lines = append(lines, DisasmLine{
			Addr:       pc,
			Text:       strings.TrimSpace(text),
			Normalized: strings.Join(fields, " "),
			Mnemonic:   strings.ToLower(fields[0]),
		})
	}
	return lines
}
