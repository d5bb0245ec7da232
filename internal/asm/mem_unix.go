//go:build (linux || darwin) && (amd64 || arm64) && !(darwin && arm64)

package asm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapExecutable copies code into fresh anonymous pages, then flips them from
// writable to executable.
func mapExecutable(code []byte) ([]byte, error) {
	pageSize := unix.Getpagesize()
	size := ((len(code) + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap executable region: %w", err)
	}
	release := true
	defer func() {
		if release {
			_ = unix.Munmap(mem)
		}
	}()

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return nil, fmt.Errorf("mprotect executable region: %w", err)
	}
	flushICache(mem[:len(code)])

	release = false
	return mem, nil
}

func unmapExecutable(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap executable region: %w", err)
	}
	return nil
}
