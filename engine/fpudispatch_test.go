package engine

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/xenoarm/jit64/internal/config"
	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/emitter"
	"github.com/xenoarm/jit64/internal/ir"
	"github.com/xenoarm/jit64/internal/memmgr"
)

// newFullMemEngine wires the byte and block Read*/Write* callbacks against
// a single backing map (memmgr builds the 16/32/64-bit accesses out of the
// byte ones), unlike newTestEngine's ReadBlock-only stub, so tests that
// exercise FLDCW/FSTSW/SSE-store-to-memory actually round-trip through it.
func newFullMemEngine(t *testing.T, store map[uint32]byte) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.CacheSize = 1 << 16
	cb := Callbacks{Callbacks: memmgr.Callbacks{
		ReadU8: func(addr uint32) uint8 { return store[addr] },
		WriteU8: func(addr uint32, v uint8) { store[addr] = v },
		ReadBlock: func(addr uint32, buf []byte) {
			for i := range buf {
				buf[i] = store[addr+uint32(i)]
			}
		},
		WriteBlock: func(addr uint32, buf []byte) {
			for i, b := range buf {
				store[addr+uint32(i)] = b
			}
		},
	}}
	e := New(cfg, cb)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

// buildSel mirrors packSel's bit layout (internal/emitter/lower.go) for
// tests that drive the dispatch callbacks directly without running a full
// decode/lower/encode pass.
func buildSel(cond, op byte, dtype ir.DataType, dstIdx, rmIdx byte, hasMem bool) uint64 {
	sel := uint64(cond) | uint64(op)<<8 | uint64(byte(dtype))<<16 | uint64(dstIdx)<<24 | uint64(rmIdx)<<32
	if hasMem {
		sel |= emitter.SelExtraMem
	}
	return sel
}

func newDispatchEngine(t *testing.T) (*Engine, *GuestState) {
	t.Helper()
	e := newTestEngine(t, nil)
	gs := NewGuestState()
	return e, gs
}

func TestDispatchMMX_PAddB(t *testing.T) {
	e, gs := newDispatchEngine(t)
	gs.FPU.WriteMM(0, 0x0807060504030201)
	gs.FPU.WriteMM(1, 0x0101010101010101)

	sel := buildSel(decoder.VecAdd, byte(ir.OpMMXArith), ir.V64B8, 0, 1, false)
	e.dispatchMMX(unsafe.Pointer(gs), sel, 0)

	assert.Equal(t, uint64(0x0908070605040302), gs.FPU.ReadMM(0))
}

func TestDispatchMMX_PXor(t *testing.T) {
	e, gs := newDispatchEngine(t)
	gs.FPU.WriteMM(0, 0xFF00FF00FF00FF00)
	gs.FPU.WriteMM(1, 0x00FF00FF00FF00FF)

	sel := buildSel(decoder.VecXor, byte(ir.OpMMXArith), ir.V64D2, 0, 1, false)
	e.dispatchMMX(unsafe.Pointer(gs), sel, 0)

	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), gs.FPU.ReadMM(0))
}

func TestDispatchMMX_Emms(t *testing.T) {
	e, gs := newDispatchEngine(t)
	gs.FPU.WriteMM(0, 1) // switches to MMX mode
	assert.Equal(t, uint64(1), uint64(gs.FPU.Mode())) // ModeMMX == 1

	sel := buildSel(0, byte(ir.OpMMXEmms), ir.TypeNone, 0xFF, 0xFF, false)
	e.dispatchMMX(unsafe.Pointer(gs), sel, 0)

	assert.Equal(t, uint64(0), uint64(gs.FPU.Mode())) // ModeFPU == 0
}

func TestDispatchX87_FaddSTSTi(t *testing.T) {
	// D8 C1: FADD ST, ST(1) -- ST(0) += ST(1), result stays in ST(0).
	e, gs := newDispatchEngine(t)
	gs.FPU.Push(1.0) // after two pushes, ST(0)=2.0, ST(1)=1.0
	gs.FPU.Push(2.0)

	sel := buildSel(decoder.X87Add, byte(ir.OpX87Arith), ir.F80, 1, 0xFF, false)
	e.dispatchX87(unsafe.Pointer(gs), sel, 0)

	assert.InDelta(t, 3.0, gs.FPU.ST(0), 1e-9)
	assert.InDelta(t, 1.0, gs.FPU.ST(1), 1e-9)
}

func TestDispatchX87_FsubrSTiST_DestForm(t *testing.T) {
	// DC escape's reg=4 maps to X87SubR (table-swapped vs. D8) and sets
	// X87ArithDest: ST(i) <- ST(i) op ST(0), i.e. ST(1) <- ST(0) - ST(1)
	// for the SubR selector under the destSti convention.
	e, gs := newDispatchEngine(t)
	gs.FPU.Push(5.0) // ST(1) after next push = 5.0
	gs.FPU.Push(2.0) // ST(0) = 2.0, ST(1) = 5.0

	cond := decoder.X87SubR | decoder.X87ArithDest
	sel := buildSel(cond, byte(ir.OpX87Arith), ir.F80, 1, 0xFF, false)
	e.dispatchX87(unsafe.Pointer(gs), sel, 0)

	// result = b - a = ST(0) - ST(1) = 2.0 - 5.0 = -3.0, written to ST(1).
	assert.InDelta(t, -3.0, gs.FPU.ST(1), 1e-9)
	assert.InDelta(t, 2.0, gs.FPU.ST(0), 1e-9, "ST(0) must be untouched by the DC-form write")
}

func TestDispatchX87_FaddpPopsAfterDestWrite(t *testing.T) {
	// DE escape's FADDP family: destSti and pop both set.
	e, gs := newDispatchEngine(t)
	gs.FPU.Push(4.0) // ST(1) after next push
	gs.FPU.Push(3.0) // ST(0)=3.0, ST(1)=4.0

	cond := decoder.X87Add | decoder.X87ArithPop | decoder.X87ArithDest
	sel := buildSel(cond, byte(ir.OpX87Arith), ir.F80, 1, 0xFF, false)
	e.dispatchX87(unsafe.Pointer(gs), sel, 0)

	// ST(1) <- ST(1) + ST(0) = 4.0 + 3.0 = 7.0, then pop drops old ST(0),
	// leaving the computed value as the new ST(0).
	assert.InDelta(t, 7.0, gs.FPU.ST(0), 1e-9)
}

func TestDispatchX87_Fsqrt(t *testing.T) {
	e, gs := newDispatchEngine(t)
	gs.FPU.Push(16.0)

	sel := buildSel(decoder.X87Sqrt, byte(ir.OpX87Transcendental), ir.TypeNone, 0xFF, 0xFF, false)
	e.dispatchX87(unsafe.Pointer(gs), sel, 0)

	assert.InDelta(t, 4.0, gs.FPU.ST(0), 1e-9)
}

func TestDispatchX87_FcomSetsCompareFlags(t *testing.T) {
	e, gs := newDispatchEngine(t)
	gs.FPU.Push(2.0) // ST(1)
	gs.FPU.Push(1.0) // ST(0) = 1.0, ST(1) = 2.0 -> ST(0) < ST(1)

	sel := buildSel(decoder.X87UCom, byte(ir.OpX87Compare), ir.F80, 1, 0xFF, false)
	e.dispatchX87(unsafe.Pointer(gs), sel, 0)

	assert.NotZero(t, gs.FPU.FSW&0x0100, "C0 should be set for ST(0) < ST(1)")
}

func TestDispatchX87_FldCWFromMemory(t *testing.T) {
	store := map[uint32]byte{0x2000: 0x7F, 0x2001: 0x03}
	e := newFullMemEngine(t, store)
	gs := NewGuestState()

	sel := buildSel(decoder.X87FldCW, byte(ir.OpX87Ctrl), ir.I16, 0xFF, 0xFF, true)
	e.dispatchX87(unsafe.Pointer(gs), sel, 0x2000)

	assert.Equal(t, uint16(0x037F), gs.FPU.FCW)
}

func TestDispatchSSE_AddPS(t *testing.T) {
	e, gs := newDispatchEngine(t)
	var dst, src [16]byte
	putF32(dst[0:], 1)
	putF32(dst[4:], 2)
	putF32(dst[8:], 3)
	putF32(dst[12:], 4)
	putF32(src[0:], 10)
	putF32(src[4:], 20)
	putF32(src[8:], 30)
	putF32(src[12:], 40)
	gs.FPU.WriteXMM(0, dst)
	gs.FPU.WriteXMM(1, src)

	sel := buildSel(decoder.VecAdd, byte(ir.OpSSEArithFloat), ir.V128Q2, 0, 1, false)
	e.dispatchSSE(unsafe.Pointer(gs), sel, 0)

	out := gs.FPU.ReadXMM(0)
	assert.Equal(t, float32(11), getF32(out[0:]))
	assert.Equal(t, float32(44), getF32(out[12:]))
}

func TestDispatchSSE_MoveStoreToMemory(t *testing.T) {
	store := map[uint32]byte{}
	e := newFullMemEngine(t, store)

	gs := NewGuestState()
	var src [16]byte
	src[0] = 0xAB
	gs.FPU.WriteXMM(2, src)

	sel := buildSel(decoder.SSEMoveStore, byte(ir.OpSSEMove), ir.V128Q2, 0xFF, 2, true)
	e.dispatchSSE(unsafe.Pointer(gs), sel, 0x3000)

	// Read back through the engine's own memory manager to confirm the
	// write actually landed rather than asserting against the backing map
	// directly (the callback shape is an implementation detail of memmgr).
	assert.Equal(t, byte(0xAB), e.mem.ReadU8(0x3000))
}

func putF32(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0], b[1], b[2], b[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
}

func getF32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
