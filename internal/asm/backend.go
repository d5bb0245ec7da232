package asm

import (
	"fmt"
	"runtime"
	"sync"
)

// Backend turns virtual instructions into a Program for one architecture.
type Backend interface {
	Arch() Arch
	EmitProgram(ins []Ins, level CpuLevel) (Program, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[Arch]Backend)
)

// RegisterBackend makes b available to Emit and Assemble. It panics when the
// same architecture is registered twice so mistakes are caught during init.
func RegisterBackend(b Backend) {
	if b == nil {
		panic("asm: backend must be non-nil")
	}
	arch := b.Arch()
	if arch == ArchInvalid {
		panic("asm: cannot register backend for invalid architecture")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("asm: backend for %s already registered", arch))
	}
	backends[arch] = b
}

// LookupBackend returns the backend registered for arch.
func LookupBackend(arch Arch) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if b, ok := backends[arch]; ok {
		return b, nil
	}
	if arch == ArchInvalid {
		return nil, fmt.Errorf("asm: architecture must be specified")
	}
	return nil, fmt.Errorf("asm: no backend registered for %q", arch)
}

// HostArch returns the architecture of the running process, or ArchInvalid
// when it has no backend counterpart.
func HostArch() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchAMD64
	case "arm64":
		return ArchARM64
	default:
		return ArchInvalid
	}
}

// Emit assembles ins for arch without mapping it.
func Emit(arch Arch, ins []Ins, level CpuLevel) (Program, error) {
	b, err := LookupBackend(arch)
	if err != nil {
		return Program{}, err
	}
	return b.EmitProgram(ins, level)
}

// Assemble emits ins for arch at the highest capability level and maps the
// result.
func Assemble(arch Arch, ins []Ins) (*Executable, error) {
	return AssembleWithCeiling(arch, ins, MaxCpuLevel)
}

// AssembleWithCeiling is Assemble limited to vector widths allowed by level.
func AssembleWithCeiling(arch Arch, ins []Ins, level CpuLevel) (*Executable, error) {
	prog, err := Emit(arch, ins, level)
	if err != nil {
		return nil, err
	}
	return NewExecutable(prog)
}
