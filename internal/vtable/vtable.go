// Package vtable builds the four-slot host-callback table that generated
// AArch64 blocks reach through x1 (regVTable in internal/emitter's calling
// convention). Native code never calls back into an arbitrary Go closure
// directly -- it BLRs into one of a handful of fixed assembly stubs, which
// tail-jump into a Go function the linker wraps with the ABIInternal
// adapter. That Go function dispatches to whichever Ops the facade
// installed.
//
// Grounded on translation_cache.cpp's dispatcher-stub pattern (a handful of
// fixed trampoline addresses resolved once, not per-block) and on
// trampoline.go/trampoline_arm64.s's existing callBlock bridge in this
// same package family.
package vtable

import "unsafe"

// Ops is the set of host callbacks the emitter's vtX87Op/vtMMXOp/vtSSEOp/
// vtLookupBlock slots reach. Only one Table is active per process: the
// dispatch stubs are resolved to fixed addresses ahead of time and can't
// carry a closure across the native call boundary, so they read back
// through the package-level `active` value instead.
// extra is a third argument beyond the state pointer and the packed op
// selector: the only case a helper needs a runtime-computed value it
// can't derive from sel alone is a guest-memory operand's effective
// address, which the emitter computes and passes through x2.
type Ops struct {
	X87Op       func(state unsafe.Pointer, sel, extra uint64) uint64
	MMXOp       func(state unsafe.Pointer, sel, extra uint64) uint64
	SSEOp       func(state unsafe.Pointer, sel, extra uint64) uint64
	LookupBlock func(state unsafe.Pointer, guestAddr uint64) uint64
}

var active Ops

// Slot order must match internal/emitter/lower.go's vtX87Op/vtMMXOp/
// vtSSEOp/vtLookupBlock constants.
const (
	slotX87 = iota
	slotMMX
	slotSSE
	slotLookupBlock
	slotCount
)

// Table is the contiguous array of callable addresses passed as x1.
type Table struct {
	slots [slotCount]uintptr
}

// New installs ops as the active handler set and builds a Table pointing
// at the dispatch stubs. Replacing the active Table while a previous one's
// generated code is still executing is the caller's responsibility to
// avoid (in practice there is one Engine, and hence one Table, per
// process).
func New(ops Ops) *Table {
	active = ops
	return &Table{slots: [slotCount]uintptr{
		slotX87:         stubAddr(dispatchX87Stub),
		slotMMX:         stubAddr(dispatchMMXStub),
		slotSSE:         stubAddr(dispatchSSEStub),
		slotLookupBlock: stubAddr(dispatchLookupStub),
	}}
}

// Addr returns the pointer to pass as x1 in the block calling convention.
func (t *Table) Addr() unsafe.Pointer { return unsafe.Pointer(&t.slots[0]) }
