//go:build arm64

package emitter

import "unsafe"

// callBlock is implemented in trampoline_arm64.s: it branches into the
// native code at codeAddr under the AAPCS64 contract lowered blocks use
// (x0=state, x1=vtable in, x0=next guest address out).
func callBlock(codeAddr uintptr, state unsafe.Pointer, vtable unsafe.Pointer) uint32

// Execute runs one already-encoded, already-mapped-executable block.
// state is the guest register/flag state block; vtable is the
// host-callback dispatch table the block's helper calls index into.
// Both must outlive the call and must not be moved by the Go GC while
// native code holds pointers into them; Engine.Execute passes through
// the state pointer its caller supplies and does not pin it itself.
func Execute(codeAddr uintptr, state unsafe.Pointer, vtable unsafe.Pointer) uint32 {
	return callBlock(codeAddr, state, vtable)
}
