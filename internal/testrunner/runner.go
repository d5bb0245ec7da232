// Package testrunner runs YAML program files: each assembles a listing and
// checks the results of calling into it.
package testrunner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinyrange/jitasm/internal/asm"
	_ "github.com/tinyrange/jitasm/internal/asm/amd64"
	_ "github.com/tinyrange/jitasm/internal/asm/arm64"
	"github.com/tinyrange/jitasm/internal/asmtext"
)

// Runner runs program files.
type Runner struct {
	Verbose bool
	// Level, when non-zero, overrides each program's cpu_level.
	Level asm.CpuLevel
	// Output receives progress; nil runs silently.
	Output *Output
}

// NewRunner creates a new test runner.
func NewRunner(out *Output) *Runner {
	return &Runner{Output: out}
}

// Results contains the results of running programs.
type Results struct {
	Programs []ProgramResult
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// ProgramResult contains results for a single program file.
type ProgramResult struct {
	Name     string
	Path     string
	Arch     asm.Arch
	Cases    []CaseResult
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Error    string
	Duration time.Duration
}

// CaseResult contains the result of a single invocation.
type CaseResult struct {
	Name    string
	Passed  bool
	Skipped bool
	// Abandoned is set when the call had not returned by the deadline.
	Abandoned bool
	Error     string
	Details   *CaseDetails
	Duration  time.Duration
}

// CaseDetails records what a failing case was called with.
type CaseDetails struct {
	Args []uint64
	Got  [2]uint64
	Want []uint64
}

// Run executes every program file matching patterns.
func (r *Runner) Run(ctx context.Context, patterns []string) (*Results, error) {
	start := time.Now()
	results := &Results{}

	paths, err := FindSpecs(patterns)
	if err != nil {
		return nil, fmt.Errorf("finding programs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no program files found matching patterns")
	}

	specs := make([]*ProgramSpec, 0, len(paths))
	cases := 0
	for _, path := range paths {
		spec, err := LoadSpec(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		specs = append(specs, spec)
		cases += len(spec.Cases)
	}
	r.Output.PrintBanner(len(specs), cases)

	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		result := r.RunSpec(ctx, spec)
		results.Programs = append(results.Programs, result)
		results.Total += result.Total
		results.Passed += result.Passed
		results.Failed += result.Failed
		results.Skipped += result.Skipped
	}

	results.Duration = time.Since(start)
	r.Output.PrintResults(results)
	return results, nil
}

// FindSpecs expands patterns into YAML files. "dir/..." walks dir, a
// directory lists its own *.yaml files and anything else is taken as a path.
func FindSpecs(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"./testdata/..."}
	}

	var paths []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	for _, pattern := range patterns {
		if base, ok := strings.CutSuffix(pattern, "/..."); ok {
			err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isYAML(path) {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		info, err := os.Stat(pattern)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(pattern)
			continue
		}
		entries, err := os.ReadDir(pattern)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && isYAML(e.Name()) {
				add(filepath.Join(pattern, e.Name()))
			}
		}
	}
	return paths, nil
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// Compile parses the listing of spec and emits it for its target.
func Compile(spec *ProgramSpec, override asm.CpuLevel) ([]asm.Ins, asm.Program, error) {
	arch, err := spec.TargetArch()
	if err != nil {
		return nil, asm.Program{}, err
	}
	level, err := spec.Level()
	if err != nil {
		return nil, asm.Program{}, err
	}
	if override != 0 {
		level = override
	}

	opts := asmtext.Options{}
	if spec.Names {
		opts.Arch = arch
	}
	ins, err := asmtext.ParseWithOptions([]byte(spec.Listing), opts)
	if err != nil {
		return nil, asm.Program{}, fmt.Errorf("listing: %w", err)
	}

	prog, err := asm.Emit(arch, ins, level)
	if err != nil {
		return ins, asm.Program{}, err
	}
	return ins, prog, nil
}

// RunSpec assembles one program and runs its cases. Cases are skipped when
// the program targets a foreign architecture.
func (r *Runner) RunSpec(ctx context.Context, spec *ProgramSpec) (result ProgramResult) {
	start := time.Now()
	result = ProgramResult{Name: spec.Name, Path: spec.Path}
	defer func() { result.Duration = time.Since(start) }()

	arch, err := spec.TargetArch()
	if err == nil {
		result.Arch = arch
	}
	r.Output.PrintProgramHeader(spec.Name, result.Arch)

	_, prog, err := Compile(spec, r.Level)
	if spec.AssembleError != "" {
		result.Total = 1
		if err != nil && strings.Contains(err.Error(), spec.AssembleError) {
			result.Passed = 1
			r.Output.PrintCasePass("assemble error", time.Since(start))
		} else {
			result.Failed = 1
			msg := fmt.Sprintf("expected assembly error containing %q, got %v", spec.AssembleError, err)
			result.Error = msg
			r.Output.PrintCaseFail("assemble error", msg, nil)
		}
		return result
	}
	if err != nil {
		result.Error = err.Error()
		result.Total = max(len(spec.Cases), 1)
		result.Failed = result.Total
		r.Output.PrintProgramError(result.Error)
		return result
	}

	if r.Verbose {
		slog.Info("assembled", "program", spec.Name, "arch", prog.Arch(), "bytes", prog.Len())
	}

	native := prog.Arch() == asm.HostArch()
	var exe *asm.Executable
	if native {
		exe, err = asm.NewExecutable(prog)
		if err != nil {
			result.Error = err.Error()
			result.Total = len(spec.Cases)
			result.Failed = result.Total
			r.Output.PrintProgramError(result.Error)
			return result
		}
	}
	// A case that timed out may still be running in exe, so it is only
	// released when every case returned.
	abandoned := false
	defer func() {
		if exe != nil && !abandoned {
			exe.Close()
		}
	}()

	for _, c := range spec.Cases {
		if ctx.Err() != nil {
			break
		}
		result.Total++
		if c.Skip || !native {
			reason := "skip"
			if !native {
				reason = fmt.Sprintf("%s code on %s host", prog.Arch(), asm.HostArch())
			}
			result.Skipped++
			result.Cases = append(result.Cases, CaseResult{Name: c.Name, Skipped: true})
			r.Output.PrintCaseSkip(c.Name, reason)
			continue
		}

		cr := runCase(ctx, exe, c)
		if cr.Abandoned {
			abandoned = true
		}
		result.Cases = append(result.Cases, cr)
		if cr.Passed {
			result.Passed++
			r.Output.PrintCasePass(c.Name, cr.Duration)
		} else {
			result.Failed++
			r.Output.PrintCaseFail(c.Name, cr.Error, cr.Details)
		}
	}
	return result
}

const errTimeout = "timed out"

type invokeResult struct {
	r1, r2 uint64
	err    error
}

func runCase(ctx context.Context, exe *asm.Executable, c Case) CaseResult {
	start := time.Now()
	res := CaseResult{Name: c.Name}

	args := make([]uint64, len(c.Args))
	for i, a := range c.Args {
		args[i] = uint64(a)
	}
	details := &CaseDetails{Args: args}
	for _, w := range c.Want {
		details.Want = append(details.Want, uint64(w))
	}

	done := make(chan invokeResult, 1)
	go func() {
		var out invokeResult
		if c.Label != nil {
			out.r1, out.r2, out.err = exe.InvokeLabel(asm.Label(*c.Label), args...)
		} else {
			out.r1, out.r2, out.err = exe.Invoke(0, args...)
		}
		done <- out
	}()

	timer := time.NewTimer(c.Timeout.Duration())
	defer timer.Stop()

	var out invokeResult
	select {
	case out = <-done:
	case <-timer.C:
		res.Error = errTimeout
		res.Abandoned = true
		res.Details = details
		res.Duration = time.Since(start)
		return res
	case <-ctx.Done():
		res.Error = ctx.Err().Error()
		res.Abandoned = true
		res.Duration = time.Since(start)
		return res
	}
	res.Duration = time.Since(start)
	details.Got = [2]uint64{out.r1, out.r2}

	if out.err != nil {
		res.Error = out.err.Error()
		res.Details = details
		return res
	}
	for i, w := range details.Want {
		if details.Got[i] != w {
			res.Error = fmt.Sprintf("result %d: got 0x%x, want 0x%x", i, details.Got[i], w)
			res.Details = details
			return res
		}
	}
	res.Passed = true
	return res
}
