// Command jitasm assembles, runs and benchmarks virtual instruction
// listings.
//
//	jitasm asm -arch arm64 prog.s
//	jitasm run -args 40,2 testdata/amd64/arith.yaml
//	jitasm test ./programs/...
//	jitasm bench -n 10000 -timeslice bench.ts prog.yaml
//	jitasm timeslice bench.ts
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tinyrange/jitasm/internal/asm"
	_ "github.com/tinyrange/jitasm/internal/asm/amd64"
	_ "github.com/tinyrange/jitasm/internal/asm/arm64"
	"github.com/tinyrange/jitasm/internal/testrunner"
)

const usage = `usage: jitasm <command> [flags] [args]

commands:
  asm        assemble a listing and print the machine code
  run        assemble a listing and call into it
  test       run YAML program files and check their results
  bench      assemble a listing repeatedly and report timings
  timeslice  summarise a phase recording written by bench
`

var errFailed = errors.New("one or more cases failed")

// common holds the flags shared by every subcommand.
type common struct {
	arch     string
	level    string
	names    bool
	verbose  bool
	logLevel string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.arch, "arch", "", "target architecture (amd64, arm64); defaults to the program's or the host's")
	fs.StringVar(&c.level, "level", "", "cpu level ceiling (scalar, simd128, simd256, simd512)")
	fs.BoolVar(&c.names, "names", false, "accept hardware register names in plain listings")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging (same as -log-level debug)")
	fs.StringVar(&c.logLevel, "log-level", os.Getenv("JITASM_LOG"), "log level (debug, info, warn, error)")
}

func (c *common) setupLogging() error {
	level := slog.LevelWarn
	if c.logLevel != "" {
		if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.logLevel, err)
		}
	}
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func (c *common) ceiling() (asm.CpuLevel, error) {
	if c.level == "" {
		return 0, nil
	}
	return asm.ParseCpuLevel(c.level)
}

// load reads a YAML program file, or wraps a plain listing ("-" for stdin)
// in a program with no cases.
func (c *common) load(path string) (*testrunner.ProgramSpec, error) {
	var spec *testrunner.ProgramSpec
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		s, err := testrunner.LoadSpec(path)
		if err != nil {
			return nil, err
		}
		spec = s
	default:
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("read listing: %w", err)
		}
		spec = &testrunner.ProgramSpec{Name: path, Path: path, Listing: string(data), Names: c.names}
	}
	if c.arch != "" {
		spec.Arch = c.arch
	}
	return spec, nil
}

func (c *common) compile(path string) (*testrunner.ProgramSpec, []asm.Ins, asm.Program, error) {
	spec, err := c.load(path)
	if err != nil {
		return nil, nil, asm.Program{}, err
	}
	level, err := c.ceiling()
	if err != nil {
		return nil, nil, asm.Program{}, err
	}
	ins, prog, err := testrunner.Compile(spec, level)
	if err != nil {
		return nil, nil, asm.Program{}, err
	}
	slog.Debug("compiled", "program", spec.Name, "arch", prog.Arch(), "instructions", len(ins), "bytes", prog.Len())
	return spec, ins, prog, nil
}

// parseFlags parses args and returns the single positional argument.
func parseFlags(fs *flag.FlagSet, c *common, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if err := c.setupLogging(); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%s: expected one input file", fs.Name())
	}
	return fs.Arg(0), nil
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "asm":
		return runAsm(rest)
	case "run":
		return runRun(rest)
	case "test":
		return runTest(ctx, rest)
	case "bench":
		return runBench(ctx, rest)
	case "timeslice":
		return runTimeslice(rest)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) && !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "jitasm: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
