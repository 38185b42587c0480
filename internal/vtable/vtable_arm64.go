//go:build arm64

package vtable

import (
	"reflect"
	"unsafe"
)

// dispatch*Stub are implemented in vtable_arm64.s: each is a bare tail
// branch into the matching Go function below, so the original BLR's link
// register still points back into the generated block when that function
// returns.
func dispatchX87Stub()
func dispatchMMXStub()
func dispatchSSEStub()
func dispatchLookupStub()

func x87Dispatch(state unsafe.Pointer, sel, extra uint64) uint64 {
	return active.X87Op(state, sel, extra)
}

func mmxDispatch(state unsafe.Pointer, sel, extra uint64) uint64 {
	return active.MMXOp(state, sel, extra)
}

func sseDispatch(state unsafe.Pointer, sel, extra uint64) uint64 {
	return active.SSEOp(state, sel, extra)
}

func lookupDispatch(state unsafe.Pointer, guestAddr uint64) uint64 {
	return active.LookupBlock(state, guestAddr)
}

// stubAddr recovers a plain top-level function's entry address. Safe for
// the non-closure, non-method functions declared above.
func stubAddr(fn func()) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
