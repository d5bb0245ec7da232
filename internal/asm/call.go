//go:build (linux || darwin) && (amd64 || arm64)

package asm

import "github.com/ebitengine/purego"

// callNative jumps to fn with the arguments in the first integer argument
// registers and returns the first two integer result registers (rax:rdx or
// x0:x1). Callers have already checked len(args) <= MaxArgs.
func callNative(fn uintptr, args []uint64) (uint64, uint64) {
	var r1, r2 uintptr
	switch len(args) {
	case 0:
		r1, r2, _ = purego.SyscallN(fn)
	case 1:
		r1, r2, _ = purego.SyscallN(fn, uintptr(args[0]))
	default:
		r1, r2, _ = purego.SyscallN(fn, uintptr(args[0]), uintptr(args[1]))
	}
	return uint64(r1), uint64(r2)
}
