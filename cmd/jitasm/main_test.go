package main

import (
	"context"
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyrange/jitasm/internal/asm"
	"github.com/tinyrange/jitasm/internal/timeslice"
)

func writeListing(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"frobnicate"}); err == nil {
		t.Fatalf("unknown command accepted")
	}
	if err := run(context.Background(), nil); err == nil {
		t.Fatalf("empty command line accepted")
	}
}

func TestAsmWritesELF(t *testing.T) {
	src := writeListing(t, "prog.s", "label 1\nmov r0, #7\nret\n")
	out := filepath.Join(t.TempDir(), "prog.elf")

	if err := run(context.Background(), []string{"asm", "-arch", "arm64", "-o", out, src}); err != nil {
		t.Fatalf("asm failed: %v", err)
	}
	f, err := elf.Open(out)
	if err != nil {
		t.Fatalf("elf.Open failed: %v", err)
	}
	defer f.Close()
	if f.Machine != elf.EM_AARCH64 {
		t.Fatalf("Machine=%v, want %v", f.Machine, elf.EM_AARCH64)
	}
}

func TestAsmErrors(t *testing.T) {
	src := writeListing(t, "bad.s", "j 3\n")
	if err := run(context.Background(), []string{"asm", "-arch", "amd64", src}); err == nil {
		t.Fatalf("missing label accepted")
	}
	if err := run(context.Background(), []string{"asm", "-arch", "amd64", "-log-level", "loud", src}); err == nil {
		t.Fatalf("bad log level accepted")
	}
	if err := run(context.Background(), []string{"asm"}); err == nil {
		t.Fatalf("missing input accepted")
	}
}

func TestBenchTimeslice(t *testing.T) {
	src := writeListing(t, "prog.s", "add r0, r0, #1\nret\n")
	ts := filepath.Join(t.TempDir(), "bench.ts")

	if err := run(context.Background(), []string{"bench", "-arch", "amd64", "-n", "20", "-timeslice", ts, src}); err != nil {
		t.Fatalf("bench failed: %v", err)
	}

	f, err := os.Open(ts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	summaries, err := timeslice.Summarize(f)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	counts := make(map[string]int)
	for _, s := range summaries {
		counts[s.Kind] = s.Count
	}
	for _, kind := range []string{"bench::assemble", "asm::encode", "asm::resolve"} {
		if counts[kind] != 20 {
			t.Errorf("%s count=%d, want 20", kind, counts[kind])
		}
	}

	if err := run(context.Background(), []string{"timeslice", ts}); err != nil {
		t.Fatalf("timeslice failed: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" 1, -2 ,0x3")
	want := []string{"1", "-2", "0x3"}
	if len(got) != len(want) {
		t.Fatalf("splitList=%q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitList=%q, want %q", got, want)
		}
	}
	if splitList("  ") != nil {
		t.Fatalf("splitList of blanks not nil")
	}
}

func TestRunArgLimit(t *testing.T) {
	src := writeListing(t, "sum.s", "add r0, r0, r1\nret\n")
	err := run(context.Background(), []string{"run", "-args", "1,2,3", src})
	if !errors.Is(err, asm.ErrInvalidArgs) {
		t.Fatalf("run with 3 arguments=%v, want %v", err, asm.ErrInvalidArgs)
	}
}
