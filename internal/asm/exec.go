package asm

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/tinyrange/jitasm/internal/timeslice"
)

var (
	tsMaterialize = timeslice.RegisterKind("asm::materialize", 0)
	tsInvoke      = timeslice.RegisterKind("asm::invoke", timeslice.SliceFlagNative)
)

// MaxArgs is the number of integer arguments Invoke can pass.
const MaxArgs = 2

// region is an executable mapping. It is kept apart from Executable so the
// runtime cleanup can release it without holding the Executable alive.
type region struct {
	mem    []byte
	once   sync.Once
	closed atomic.Bool
	err    error
}

func (r *region) base() uintptr {
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

func (r *region) release() error {
	r.once.Do(func() {
		r.closed.Store(true)
		r.err = unmapExecutable(r.mem)
		slog.Debug("released executable region", "size", len(r.mem))
	})
	return r.err
}

// Executable is a Program copied into executable memory. Each label is a
// possible entry point.
type Executable struct {
	prog    Program
	region  *region
	cleanup runtime.Cleanup
}

// NewExecutable maps prog for execution. prog must target the host
// architecture.
func NewExecutable(prog Program) (*Executable, error) {
	if prog.Arch() != HostArch() {
		return nil, &Error{Op: "materialize", Arch: prog.Arch(), Index: -1, Err: ErrForeignArch}
	}
	if prog.Len() == 0 {
		return nil, &Error{Op: "materialize", Arch: prog.Arch(), Index: -1, Err: ErrInvalidOffset}
	}
	rec := timeslice.NewRecorder()

	mem, err := mapExecutable(prog.code)
	if err != nil {
		return nil, &Error{Op: "materialize", Arch: prog.Arch(), Index: -1, Err: err}
	}
	rec.Record(tsMaterialize)

	e := &Executable{
		prog:   prog.Clone(),
		region: &region{mem: mem},
	}
	e.cleanup = runtime.AddCleanup(e, func(r *region) { _ = r.release() }, e.region)

	slog.Debug("mapped executable", "arch", prog.Arch(), "size", len(mem), "base", e.region.base())
	return e, nil
}

// Program returns a copy of the resolved program backing e.
func (e *Executable) Program() Program { return e.prog.Clone() }

// Label returns the entry offset of l.
func (e *Executable) Label(l Label) (int, bool) { return e.prog.Label(l) }

// Labels returns the label table.
func (e *Executable) Labels() []LabelOffset { return e.prog.Labels() }

// Entry returns the address of the code at offset.
func (e *Executable) Entry(offset int) (uintptr, error) {
	if e.region.closed.Load() {
		return 0, &Error{Op: "entry", Arch: e.prog.Arch(), Index: -1, Err: ErrClosed}
	}
	if offset < 0 || offset >= e.prog.TextLen() {
		return 0, &Error{Op: "entry", Arch: e.prog.Arch(), Index: -1, Err: ErrInvalidOffset}
	}
	return e.region.base() + uintptr(offset), nil
}

// DisassemblyHex renders the instruction bytes, see Program.Hex.
func (e *Executable) DisassemblyHex() string { return e.prog.Hex() }

// Invoke calls the code at entry with up to two integer arguments using the
// native calling convention and returns both integer result registers.
// The generated code is trusted: it runs on the calling thread until it
// returns or faults. Close must not run concurrently with Invoke.
func (e *Executable) Invoke(entry int, args ...uint64) (uint64, uint64, error) {
	if len(args) > MaxArgs {
		return 0, 0, &Error{Op: "invoke", Arch: e.prog.Arch(), Index: -1, Err: ErrInvalidArgs}
	}
	fn, err := e.Entry(entry)
	if err != nil {
		return 0, 0, err
	}
	rec := timeslice.NewRecorder()
	r1, r2 := callNative(fn, args)
	rec.Record(tsInvoke)
	runtime.KeepAlive(e)
	return r1, r2, nil
}

// InvokeLabel is Invoke at the offset of label l.
func (e *Executable) InvokeLabel(l Label, args ...uint64) (uint64, uint64, error) {
	off, ok := e.prog.Label(l)
	if !ok {
		return 0, 0, &Error{Op: "invoke", Arch: e.prog.Arch(), Index: -1, Label: l, HasLabel: true, Err: ErrMissingLabel}
	}
	return e.Invoke(off, args...)
}

// Close unmaps the executable memory. It is safe to call more than once.
func (e *Executable) Close() error {
	e.cleanup.Stop()
	return e.region.release()
}
