//go:build darwin && arm64

package asm

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

var (
	jitInitOnce sync.Once
	jitInitErr  error

	libSystem             uintptr
	jitWriteProtectFn     func(enabled int32)
	sysIcacheInvalidateFn func(start unsafe.Pointer, length uintptr)
)

func ensureJIT() error {
	jitInitOnce.Do(func() {
		var err error
		libSystem, err = purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_GLOBAL)
		if err != nil {
			jitInitErr = err
			return
		}
		purego.RegisterLibFunc(&jitWriteProtectFn, libSystem, "pthread_jit_write_protect_np")
		purego.RegisterLibFunc(&sysIcacheInvalidateFn, libSystem, "sys_icache_invalidate")
	})
	return jitInitErr
}

// mapExecutable uses a MAP_JIT region. Write protection is toggled per
// thread, so the copy happens with the goroutine locked to its thread.
func mapExecutable(code []byte) ([]byte, error) {
	if err := ensureJIT(); err != nil {
		return nil, fmt.Errorf("load libSystem: %w", err)
	}

	pageSize := unix.Getpagesize()
	size := ((len(code) + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_JIT)
	if err != nil {
		return nil, fmt.Errorf("mmap jit region: %w", err)
	}

	runtime.LockOSThread()
	jitWriteProtectFn(0)
	copy(mem, code)
	jitWriteProtectFn(1)
	runtime.UnlockOSThread()

	sysIcacheInvalidateFn(unsafe.Pointer(&mem[0]), uintptr(len(code)))
	return mem, nil
}

func unmapExecutable(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap jit region: %w", err)
	}
	return nil
}
