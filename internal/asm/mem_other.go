//go:build !((linux || darwin) && (amd64 || arm64))

package asm

func mapExecutable(code []byte) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}

func unmapExecutable(mem []byte) error { return nil }

func callNative(fn uintptr, args []uint64) (uint64, uint64) { return 0, 0 }
