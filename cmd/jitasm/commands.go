package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/jitasm/internal/asm"
	"github.com/tinyrange/jitasm/internal/testrunner"
	"github.com/tinyrange/jitasm/internal/timeslice"
)

var tsBenchAssemble = timeslice.RegisterKind("bench::assemble", 0)

func runAsm(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ContinueOnError)
	var c common
	c.register(fs)
	url := fs.Bool("url", false, "print a shell-storm disassembler link")
	listing := fs.Bool("listing", false, "print the parsed listing before the code")
	out := fs.String("o", "", "write a standalone ELF executable to this path")
	raw := fs.String("raw", "", "write the raw code and constant pool to this path")

	path, err := parseFlags(fs, &c, args)
	if err != nil {
		return err
	}
	_, ins, prog, err := c.compile(path)
	if err != nil {
		return err
	}

	if *listing {
		testrunner.NewOutput(os.Stdout).PrintListing(ins)
		fmt.Println()
	}
	fmt.Println(prog.Hex())
	for _, l := range prog.Labels() {
		fmt.Printf("label %d = 0x%x\n", l.Label, l.Offset)
	}
	fmt.Printf("text %d bytes, pool %d bytes\n", prog.TextLen(), prog.Len()-prog.TextLen())
	if *url {
		fmt.Println(prog.ShellStormURL())
	}

	if *raw != "" {
		if err := os.WriteFile(*raw, prog.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write raw code: %w", err)
		}
	}
	if *out != "" {
		image, err := prog.StandaloneELF()
		if err != nil {
			return fmt.Errorf("build ELF: %w", err)
		}
		if err := os.WriteFile(*out, image, 0o755); err != nil {
			return fmt.Errorf("write ELF: %w", err)
		}
		slog.Info("wrote ELF", "path", *out, "size", len(image))
	}
	return nil
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var c common
	c.register(fs)
	entry := fs.Int64("entry", -1, "label to call; defaults to offset 0")
	argList := fs.String("args", "", fmt.Sprintf("comma separated arguments (at most %d)", asm.MaxArgs))

	path, err := parseFlags(fs, &c, args)
	if err != nil {
		return err
	}

	var callArgs []uint64
	for _, s := range splitList(*argList) {
		v, err := testrunner.ParseValue(s)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, uint64(v))
	}
	if len(callArgs) > asm.MaxArgs {
		return fmt.Errorf("%d arguments: %w", len(callArgs), asm.ErrInvalidArgs)
	}

	_, _, prog, err := c.compile(path)
	if err != nil {
		return err
	}
	exe, err := asm.NewExecutable(prog)
	if err != nil {
		return err
	}
	defer exe.Close()

	var r1, r2 uint64
	if *entry >= 0 {
		r1, r2, err = exe.InvokeLabel(asm.Label(*entry), callArgs...)
	} else {
		r1, r2, err = exe.Invoke(0, callArgs...)
	}
	if err != nil {
		return err
	}
	fmt.Printf("r0 = 0x%x (%d)\nr1 = 0x%x (%d)\n", r1, int64(r1), r2, int64(r2))
	return nil
}

func runTest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setupLogging(); err != nil {
		return err
	}
	level, err := c.ceiling()
	if err != nil {
		return err
	}

	r := testrunner.NewRunner(testrunner.NewOutput(os.Stdout))
	r.Verbose = c.verbose
	r.Level = level
	results, err := r.Run(ctx, fs.Args())
	if err != nil {
		return err
	}
	if results.Failed > 0 {
		return errFailed
	}
	return nil
}

func runBench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	var c common
	c.register(fs)
	n := fs.Int("n", 0, "number of assemblies; defaults to the program's bench.iterations")
	limit := fs.Duration("time", 0, "stop after this long; defaults to the program's bench.time")
	tsFile := fs.String("timeslice", "", "record phase timings to this file")
	exec := fs.Bool("exec", false, "also map each assembly into executable memory")

	path, err := parseFlags(fs, &c, args)
	if err != nil {
		return err
	}
	spec, ins, _, err := c.compile(path)
	if err != nil {
		return err
	}
	arch, err := spec.TargetArch()
	if err != nil {
		return err
	}
	level, err := spec.Level()
	if err != nil {
		return err
	}
	if override, _ := c.ceiling(); override != 0 {
		level = override
	}

	iterations := spec.Bench.Iterations
	if *n > 0 {
		iterations = *n
	}
	budget := spec.Bench.Time.Duration()
	if *limit > 0 {
		budget = *limit
	}

	if *tsFile != "" {
		f, err := os.Create(*tsFile)
		if err != nil {
			return fmt.Errorf("failed to create timeslice file: %w", err)
		}
		defer f.Close()

		closer, err := timeslice.StartRecording(f)
		if err != nil {
			return fmt.Errorf("failed to start recording timeslices: %w", err)
		}
		defer closer.Close()
	}

	pb := progressbar.Default(int64(iterations), spec.Name)
	defer pb.Close()

	start := time.Now()
	done := 0
	for done < iterations {
		if ctx.Err() != nil {
			break
		}
		if budget > 0 && time.Since(start) > budget {
			break
		}
		iter := time.Now()
		if *exec {
			exe, err := asm.AssembleWithCeiling(arch, ins, level)
			if err != nil {
				return err
			}
			if err := exe.Close(); err != nil {
				return err
			}
		} else if _, err := asm.Emit(arch, ins, level); err != nil {
			return err
		}
		timeslice.Record(tsBenchAssemble, time.Since(iter))
		done++
		pb.Add(1)
	}
	pb.Finish()

	elapsed := time.Since(start)
	if done == 0 {
		return fmt.Errorf("no assemblies completed")
	}
	fmt.Printf("\n%s: %d assemblies of %d instructions in %s (%s each)\n",
		spec.Name, done, len(ins), elapsed.Round(time.Millisecond), elapsed/time.Duration(done))
	return nil
}

func runTimeslice(args []string) error {
	fs := flag.NewFlagSet("timeslice", flag.ContinueOnError)
	raw := fs.Bool("raw", false, "print every record instead of per-kind sums")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("timeslice: expected one recording")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open timeslice file: %w", err)
	}
	defer f.Close()

	if *raw {
		return timeslice.ReadAllRecords(f, func(id string, flags timeslice.SliceFlags, d time.Duration) error {
			fmt.Printf("%s %s %s\n", id, flags, d)
			return nil
		})
	}

	summaries, err := timeslice.Summarize(f)
	if err != nil {
		return fmt.Errorf("failed to read timeslice file: %w", err)
	}
	for _, s := range summaries {
		fmt.Printf("% 24s flags=% 8s count=% 8d sum=% 14s min=% 12s max=% 12s avg=% 12s\n",
			s.Kind, s.Flags, s.Count, s.Sum, s.Min, s.Max, s.Mean())
	}
	return nil
}
