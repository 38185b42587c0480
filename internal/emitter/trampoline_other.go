//go:build !arm64

package emitter

import "unsafe"

// Execute is only meaningful on an arm64 host; this build constrains the
// translator itself (decode/allocate/lower/encode) to run anywhere, while
// refusing to pretend it can branch into AArch64 machine code elsewhere.
func Execute(codeAddr uintptr, state unsafe.Pointer, vtable unsafe.Pointer) uint32 {
	panic("emitter: Execute requires GOARCH=arm64")
}
