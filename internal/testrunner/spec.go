package testrunner

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/jitasm/internal/asm"
)

// ProgramSpec is one YAML program file: a listing plus the calls to make
// against it.
type ProgramSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Arch defaults to the host architecture.
	Arch string `yaml:"arch"`
	// CpuLevel defaults to simd512.
	CpuLevel string `yaml:"cpu_level"`
	// Names enables hardware register names in the listing.
	Names   bool     `yaml:"hardware_names"`
	Listing string   `yaml:"listing"`
	Timeout Duration `yaml:"timeout"`
	// AssembleError, when set, expects assembly to fail with an error
	// containing this text. Cases are not run.
	AssembleError string      `yaml:"assemble_error"`
	Cases         []Case      `yaml:"cases"`
	Bench         BenchConfig `yaml:"bench"`

	// Path is the file the spec was loaded from.
	Path string `yaml:"-"`
}

// Case is a single invocation.
type Case struct {
	Name string `yaml:"name"`
	// Label selects the entry point; zero-length means offset 0.
	Label *uint32 `yaml:"label"`
	Args  []Value `yaml:"args"`
	// Want holds the expected first result and, optionally, the second.
	Want    []Value  `yaml:"want"`
	Timeout Duration `yaml:"timeout"`
	Skip    bool     `yaml:"skip"`
}

// BenchConfig bounds jitasm bench for this program.
type BenchConfig struct {
	Iterations int      `yaml:"iterations"`
	Time       Duration `yaml:"time"`
}

// Value is a 64-bit argument or result. YAML may spell it as a signed or
// unsigned integer in any base strconv accepts.
type Value uint64

// UnmarshalYAML implements yaml.Unmarshaler for Value.
func (v *Value) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: value must be a scalar", value.Line)
	}
	parsed, err := ParseValue(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*v = parsed
	return nil
}

// ParseValue parses "42", "-1", "0xff" or "18446744073709551615".
func ParseValue(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return Value(uint64(i)), nil
	}
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return Value(u), nil
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const (
	defaultTimeout         = 5 * time.Second
	defaultBenchIterations = 1000
)

// TargetArch returns the architecture the program is assembled for.
func (s *ProgramSpec) TargetArch() (asm.Arch, error) {
	if s.Arch == "" {
		if arch := asm.HostArch(); arch != asm.ArchInvalid {
			return arch, nil
		}
		return asm.ArchInvalid, fmt.Errorf("%s: no arch given and the host has no backend", s.Name)
	}
	return asm.ParseArch(s.Arch)
}

// Level returns the capability ceiling for the program.
func (s *ProgramSpec) Level() (asm.CpuLevel, error) {
	if s.CpuLevel == "" {
		return asm.MaxCpuLevel, nil
	}
	return asm.ParseCpuLevel(s.CpuLevel)
}

// ParseSpec decodes a program file.
func ParseSpec(data []byte) (*ProgramSpec, error) {
	var spec ProgramSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing program file: %w", err)
	}

	// Apply defaults
	if spec.Timeout == 0 {
		spec.Timeout = Duration(defaultTimeout)
	}
	if spec.Bench.Iterations == 0 {
		spec.Bench.Iterations = defaultBenchIterations
	}
	for i := range spec.Cases {
		if spec.Cases[i].Name == "" {
			spec.Cases[i].Name = fmt.Sprintf("case %d", i+1)
		}
		if spec.Cases[i].Timeout == 0 {
			spec.Cases[i].Timeout = spec.Timeout
		}
		if len(spec.Cases[i].Want) > 2 {
			return nil, fmt.Errorf("%s: at most two results, got %d", spec.Cases[i].Name, len(spec.Cases[i].Want))
		}
	}
	return &spec, nil
}

// LoadSpec loads a program from a YAML file.
func LoadSpec(path string) (*ProgramSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program file: %w", err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	spec.Path = path
	if spec.Name == "" {
		spec.Name = path
	}
	return spec, nil
}
