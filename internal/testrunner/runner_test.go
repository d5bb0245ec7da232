package testrunner

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinyrange/jitasm/internal/asm"
)

func TestParseSpec(t *testing.T) {
	input := `
name: sample
arch: x86_64
cpu_level: simd128
timeout: 250ms
listing: |
  ret
cases:
  - args: [1, -1, 0x10]
    want: [18446744073709551615]
  - name: named
    timeout: 1s
    label: 3
`
	spec, err := ParseSpec([]byte(input))
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	arch, err := spec.TargetArch()
	if err != nil || arch != asm.ArchAMD64 {
		t.Fatalf("TargetArch()=%v,%v, want amd64", arch, err)
	}
	level, err := spec.Level()
	if err != nil || level != asm.Simd128 {
		t.Fatalf("Level()=%v,%v, want simd128", level, err)
	}
	if len(spec.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(spec.Cases))
	}

	c := spec.Cases[0]
	if c.Name != "case 1" {
		t.Errorf("default name=%q, want %q", c.Name, "case 1")
	}
	if c.Timeout.Duration() != 250*time.Millisecond {
		t.Errorf("inherited timeout=%v, want 250ms", c.Timeout.Duration())
	}
	want := []Value{1, Value(^uint64(0)), 16}
	for i, v := range want {
		if c.Args[i] != v {
			t.Errorf("arg %d=0x%x, want 0x%x", i, uint64(c.Args[i]), uint64(v))
		}
	}
	if c.Want[0] != Value(^uint64(0)) {
		t.Errorf("want=0x%x, want all ones", uint64(c.Want[0]))
	}

	c = spec.Cases[1]
	if c.Timeout.Duration() != time.Second {
		t.Errorf("case timeout=%v, want 1s", c.Timeout.Duration())
	}
	if c.Label == nil || *c.Label != 3 {
		t.Errorf("label=%v, want 3", c.Label)
	}
	if spec.Bench.Iterations != defaultBenchIterations {
		t.Errorf("bench iterations=%d, want %d", spec.Bench.Iterations, defaultBenchIterations)
	}
}

func TestParseSpecErrors(t *testing.T) {
	tests := []string{
		"timeout: forever\n",
		"cases:\n  - args: [banana]\n",
		"cases:\n  - want: [1, 2, 3]\n",
		"cases:\n  - args: [[1]]\n",
	}
	for _, input := range tests {
		if _, err := ParseSpec([]byte(input)); err == nil {
			t.Errorf("ParseSpec(%q) succeeded", input)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"42", 42},
		{"-1", ^uint64(0)},
		{"0x7f", 0x7f},
		{"0b101", 5},
		{"18446744073709551615", ^uint64(0)},
		{"-9223372036854775808", 1 << 63},
	}
	for _, tc := range tests {
		got, err := ParseValue(tc.in)
		if err != nil {
			t.Errorf("ParseValue(%q) failed: %v", tc.in, err)
			continue
		}
		if uint64(got) != tc.want {
			t.Errorf("ParseValue(%q)=0x%x, want 0x%x", tc.in, uint64(got), tc.want)
		}
	}
	if _, err := ParseValue("18446744073709551616"); err == nil {
		t.Errorf("ParseValue accepted 2^64")
	}
}

func TestFindSpecs(t *testing.T) {
	all, err := FindSpecs([]string{"testdata/..."})
	if err != nil {
		t.Fatalf("FindSpecs failed: %v", err)
	}
	if len(all) != 9 {
		t.Fatalf("expected 9 programs, got %d: %v", len(all), all)
	}

	dir, err := FindSpecs([]string{"testdata/arm64", "testdata/arm64/loop.yaml"})
	if err != nil {
		t.Fatalf("FindSpecs failed: %v", err)
	}
	if len(dir) != 4 {
		t.Fatalf("expected 4 programs without duplicates, got %d: %v", len(dir), dir)
	}

	if _, err := FindSpecs([]string{"testdata/nope.yaml"}); err == nil {
		t.Fatalf("FindSpecs accepted a missing file")
	}
}

func TestRunTestdata(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(NewOutput(&buf))
	results, err := r.Run(context.Background(), []string{"testdata/..."})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results.Failed != 0 {
		t.Fatalf("expected no failures, got %d:\n%s", results.Failed, buf.String())
	}
	if results.Passed+results.Skipped != results.Total {
		t.Fatalf("passed %d + skipped %d != total %d", results.Passed, results.Skipped, results.Total)
	}
	if len(results.Programs) != 9 {
		t.Fatalf("expected 9 program results, got %d", len(results.Programs))
	}
	// Assembly error programs pass on every host.
	if results.Passed < 2 {
		t.Fatalf("expected at least 2 passes, got %d", results.Passed)
	}
	if !strings.Contains(buf.String(), "=== PROGRAM RUNNER ===") {
		t.Fatalf("plain banner missing:\n%s", buf.String())
	}
}

func TestRunSpecFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad listing", "arch: amd64\nlisting: frob r0\ncases:\n  - args: [1]\n"},
		{"bad arch", "arch: mips\nlisting: ret\n"},
		{"unexpected success", "arch: arm64\nlisting: ret\nassemble_error: missing label\n"},
	}
	for _, tc := range tests {
		spec, err := ParseSpec([]byte(tc.input))
		if err != nil {
			t.Fatalf("%s: ParseSpec failed: %v", tc.name, err)
		}
		result := NewRunner(nil).RunSpec(context.Background(), spec)
		if result.Failed == 0 {
			t.Errorf("%s: expected a failure, got %+v", tc.name, result)
		}
	}
}

func TestRunNativeMismatch(t *testing.T) {
	arch := asm.HostArch()
	if arch == asm.ArchInvalid {
		t.Skip("no native backend")
	}
	path := filepath.Join("testdata", string(arch), "arith.yaml")
	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("LoadSpec failed: %v", err)
	}
	spec.Cases = spec.Cases[:1]
	spec.Cases[0].Want = []Value{41}

	var buf bytes.Buffer
	result := NewRunner(NewOutput(&buf)).RunSpec(context.Background(), spec)
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", result)
	}
	cr := result.Cases[0]
	if cr.Details == nil || cr.Details.Got[0] != 42 {
		t.Fatalf("details=%+v, want got 42", cr.Details)
	}
	out := buf.String()
	for _, want := range []string{"FAIL", "got 0x2a, want 0x29", "args:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPadCenter(t *testing.T) {
	if got := padCenter("ab", 6); got != "  ab  " {
		t.Fatalf("padCenter=%q, want %q", got, "  ab  ")
	}
	if got := padCenter("✓ ok", 6); got != " ✓ ok " {
		t.Fatalf("padCenter=%q, want %q", got, " ✓ ok ")
	}
	if got := padRight("abcdef", 3); got != "abcdef" {
		t.Fatalf("padRight=%q, want unchanged", got)
	}
}

func TestPrintListing(t *testing.T) {
	var buf bytes.Buffer
	NewOutput(&buf).PrintListing([]asm.Ins{asm.DefLabel{L: 1}, asm.Ret{}})
	want := "0  label 1\n1    ret\n"
	if buf.String() != want {
		t.Fatalf("PrintListing=%q, want %q", buf.String(), want)
	}
}
