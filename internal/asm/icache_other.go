//go:build !(linux && arm64)

package asm

// flushICache is a no-op: x86 keeps instruction fetch coherent with stores
// and darwin/arm64 invalidates through libSystem while mapping.
func flushICache(mem []byte) {}
