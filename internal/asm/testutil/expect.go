package testutil

import (
	"fmt"
	"strings"
	"testing"
)

// Expectation describes one instruction of a disassembly, in order.
type Expectation struct {
	Name     string
	Mnemonic string
	Contains []string
}

func (e Expectation) check(line DisasmLine) string {
	if e.Mnemonic != "" && line.Mnemonic != e.Mnemonic {
		return fmt.Sprintf("mnemonic=%s, want %s", line.Mnemonic, e.Mnemonic)
	}
	for _, needle := range e.Contains {
		if !line.Contains(needle) {
			return fmt.Sprintf("missing %q", needle)
		}
	}
	return ""
}

// VerifyExpectations matches lines against expect one to one. Trailing lines
// are ignored. Every mismatch is reported, followed by the full listing.
func VerifyExpectations(t *testing.T, lines []DisasmLine, expect []Expectation) {
	t.Helper()
	if len(lines) < len(expect) {
		t.Fatalf("disassembly has %d instructions, want at least %d\n%s", len(lines), len(expect), listing(lines))
	}
	failed := false
	for i, exp := range expect {
		if msg := exp.check(lines[i]); msg != "" {
			t.Errorf("%s at 0x%x: %s (got %q)", exp.Name, lines[i].Addr, msg, lines[i].Normalized)
			failed = true
		}
	}
	if failed {
		t.Logf("disassembly:\n%s", listing(lines))
	}
}

func listing(lines []DisasmLine) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%6x: %s\n", l.Addr, l.Normalized)
	}
	return b.String()
}
