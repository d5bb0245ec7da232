//go:build linux && arm64

package asm

import (
	"log/slog"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	clearCacheOnce sync.Once
	clearCacheFn   uintptr
)

func loadClearCache() {
	for _, name := range []string{"libgcc_s.so.1", "libgcc_s.so"} {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			continue
		}
		fn, err := purego.Dlsym(lib, "__clear_cache")
		if err != nil {
			continue
		}
		clearCacheFn = fn
		slog.Debug("using __clear_cache for instruction cache maintenance", "library", name)
		return
	}
	slog.Debug("__clear_cache unavailable, relying on mprotect cache maintenance")
}

// flushICache cleans the data cache and invalidates the instruction cache for
// mem. When libgcc is not loadable the kernel's maintenance on the PROT_EXEC
// transition of the fresh pages is relied upon.
func flushICache(mem []byte) {
	if len(mem) == 0 {
		return
	}
	clearCacheOnce.Do(loadClearCache)
	if clearCacheFn == 0 {
		return
	}
	start := uintptr(unsafe.Pointer(&mem[0]))
	purego.SyscallN(clearCacheFn, start, start+uintptr(len(mem)))
}
