package engine

import (
	"math"
	"unsafe"

	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/emitter"
	"github.com/xenoarm/jit64/internal/fpu"
	"github.com/xenoarm/jit64/internal/ir"
)

// dispatchX87/dispatchMMX/dispatchSSE are the vtable.Ops callbacks wired in
// New: every CatX87/CatMMX/CatSSE* instruction the emitter lowers becomes a
// BLR through one of these three slots, carrying the packed selector
// emitter.DecodeSel decodes back into the same fields packSel built from
// the original ir.Instruction (SPEC_FULL.md §4.4/§4.5/§4.6). state always
// points at the GuestState the host passed to Execute/Run; extra carries a
// guest-memory effective address for instructions with a memory operand,
// or 0 otherwise.
func (e *Engine) dispatchX87(state unsafe.Pointer, sel, extra uint64) uint64 {
	gs := AsGuestState(state)
	d := emitter.DecodeSel(sel)
	switch ir.Op(d.Op) {
	case ir.OpX87Arith:
		return e.x87Arith(gs, d, extra)
	case ir.OpX87Compare:
		return e.x87Compare(gs, d, extra)
	case ir.OpX87Transcendental:
		return e.x87Transcendental(gs, d)
	case ir.OpX87Load:
		return e.x87Load(gs, d, extra)
	case ir.OpX87Store:
		return e.x87Store(gs, d, extra)
	case ir.OpX87Ctrl:
		return e.x87Ctrl(gs, d, extra)
	}
	return 0
}

func (e *Engine) dispatchMMX(state unsafe.Pointer, sel, extra uint64) uint64 {
	gs := AsGuestState(state)
	d := emitter.DecodeSel(sel)
	switch ir.Op(d.Op) {
	case ir.OpMMXArith:
		return e.mmxArith(gs, d, extra)
	case ir.OpMMXMove:
		return e.mmxMove(gs, d, extra)
	case ir.OpMMXEmms:
		gs.FPU.Emms()
	}
	return 0
}

func (e *Engine) dispatchSSE(state unsafe.Pointer, sel, extra uint64) uint64 {
	gs := AsGuestState(state)
	d := emitter.DecodeSel(sel)
	switch ir.Op(d.Op) {
	case ir.OpSSEArithFloat, ir.OpSSEArithInt:
		return e.sseArith(gs, d, extra)
	case ir.OpSSEMove:
		return e.sseMove(gs, d, extra)
	case ir.OpSSECompare:
		// The decoder never produces this op; it falls through to a
		// no-op rather than guessing at semantics.
	}
	return 0
}

// --- x87 ------------------------------------------------------------------

// x87Arith handles the FADD/FSUB/FSUBR/FMUL/FDIV/FDIVR family across all
// three encodings (ST op ST(i) -> ST, ST(i) op ST -> ST(i), and the popping
// ...P forms), and the memory-operand forms (FADD m32/m64 etc): Cond packs
// the 6-bit operation selector plus the X87ArithPop/X87ArithDest flags
// ops_x87.go's emitX87Arith sets.
func (e *Engine) x87Arith(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	base := d.Cond &^ (decoder.X87ArithPop | decoder.X87ArithDest)
	pop := d.Cond&decoder.X87ArithPop != 0
	destSti := d.Cond&decoder.X87ArithDest != 0

	// FCOM/FCOMP share the D8/DC reg-field table with the arithmetic ops
	// and so arrive under OpX87Arith; they go to the compare path.
	if base == decoder.X87Com || base == decoder.X87ComP {
		d.Cond = base
		return e.x87Compare(gs, d, extra)
	}

	// The decoder packs only one explicit operand (ST(i)); the other side
	// of the operation is always the implicit ST(0) accumulator. Which one
	// is "dst" (a) vs. "other" (b) flips with destSti: D8 writes ST(0) with
	// ST(i) as the other operand, DC/DE write ST(i) with ST(0) as the other.
	dstIdx := 0
	if destSti {
		dstIdx = int(d.DstIdx)
	}
	a := gs.FPU.ST(dstIdx)

	var b float64
	switch {
	case d.HasMem:
		b = e.readX87FloatMem(ir.DataType(d.DataType), extra)
	case destSti:
		b = gs.FPU.ST(0)
	default:
		b = gs.FPU.ST(int(d.DstIdx))
	}

	var result float64
	switch base {
	case decoder.X87Add:
		result = a + b
	case decoder.X87Mul:
		result = a * b
	case decoder.X87Sub:
		result = a - b
	case decoder.X87SubR:
		result = b - a
	case decoder.X87Div:
		result = a / b
	case decoder.X87DivR:
		result = b / a
	}
	gs.FPU.SetST(dstIdx, result)
	if pop {
		gs.FPU.Pop()
	}
	return 0
}

// x87Compare handles FCOM/FCOMP/FUCOM/FUCOMP/FCOMPP and FTST, setting
// C0/C2/C3 the way real hardware's three-way compare does and popping the
// stack 0/1/2 times depending on which form this is.
func (e *Engine) x87Compare(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	var b float64
	pops := 0
	switch d.Cond {
	case decoder.X87ComPP:
		b = gs.FPU.ST(1)
		pops = 2
	default:
		if d.HasMem {
			b = e.readX87FloatMem(ir.DataType(d.DataType), extra)
		} else {
			b = gs.FPU.ST(int(d.DstIdx))
		}
		if d.Cond == decoder.X87ComP || d.Cond == decoder.X87UComP {
			pops = 1
		}
	}
	a := gs.FPU.ST(0)
	unordered := math.IsNaN(a) || math.IsNaN(b)
	gs.FPU.SetCompareFlags(!unordered && a < b, unordered, !unordered && a == b)
	for i := 0; i < pops; i++ {
		gs.FPU.Pop()
	}
	return 0
}

// x87Transcendental handles FSQRT/FSIN/FCOS/FPTAN/F2XM1/FYL2X/FSCALE/
// FPREM/FRNDINT, each grounded on internal/fpu/transcendental.go's
// corresponding function.
func (e *Engine) x87Transcendental(gs *GuestState, d emitter.DecodedSel) uint64 {
	switch d.Cond {
	case decoder.X87Sqrt:
		gs.FPU.SetST(0, fpu.Sqrt(gs.FPU.ST(0)).Value)
	case decoder.X87Sin:
		r := fpu.Sin(gs.FPU.ST(0))
		gs.FPU.SetST(0, r.Value)
		e.setX87C2(gs, r.C2Set)
	case decoder.X87Cos:
		r := fpu.Cos(gs.FPU.ST(0))
		gs.FPU.SetST(0, r.Value)
		e.setX87C2(gs, r.C2Set)
	case decoder.X87Tan:
		r := fpu.Tan(gs.FPU.ST(0))
		e.setX87C2(gs, r.C2Set)
		if !r.C2Set {
			gs.FPU.SetST(0, r.Value)
			gs.FPU.Push(1)
		}
	case decoder.X87F2xm1:
		gs.FPU.SetST(0, fpu.F2xm1(gs.FPU.ST(0)).Value)
	case decoder.X87Yl2x:
		r := fpu.Yl2x(gs.FPU.ST(0), gs.FPU.ST(1))
		gs.FPU.Pop()
		gs.FPU.SetST(0, r.Value)
	case decoder.X87Scale:
		gs.FPU.SetST(0, fpu.Scale(gs.FPU.ST(0), gs.FPU.ST(1)).Value)
	case decoder.X87Prem:
		gs.FPU.SetST(0, math.Mod(gs.FPU.ST(0), gs.FPU.ST(1)))
	case decoder.X87RndInt:
		gs.FPU.SetST(0, fpu.RndInt(gs.FPU.ST(0), gs.FPU.FCW).Value)
	}
	return 0
}

func (e *Engine) setX87C2(gs *GuestState, set bool) {
	if set {
		gs.FPU.FSW |= fpu.SwC2
	} else {
		gs.FPU.FSW &^= fpu.SwC2
	}
}

// x87Load handles FLD/FILD (push onto the stack) from either memory or
// another ST(i).
func (e *Engine) x87Load(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	var v float64
	if d.HasMem {
		t := ir.DataType(d.DataType)
		if isX87IntType(t) {
			v = e.readX87IntMem(t, extra)
		} else {
			v = e.readX87FloatMem(t, extra)
		}
	} else {
		v = gs.FPU.ST(int(d.DstIdx))
	}
	gs.FPU.Push(v)
	return 0
}

// x87Store handles FST/FSTP/FIST/FISTP to either memory or another ST(i),
// popping for the P forms.
func (e *Engine) x87Store(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	v := gs.FPU.ST(0)
	pop := d.Cond == decoder.X87FstP || d.Cond == decoder.X87FistP
	isInt := d.Cond == decoder.X87Fist || d.Cond == decoder.X87FistP
	if d.HasMem {
		t := ir.DataType(d.DataType)
		if isInt {
			e.writeX87IntMem(t, extra, v)
		} else {
			e.writeX87FloatMem(t, extra, v)
		}
	} else {
		gs.FPU.SetST(int(d.DstIdx), v)
	}
	if pop {
		gs.FPU.Pop()
	}
	return 0
}

// x87Ctrl handles the remaining x87 control/load-constant/stack-pointer
// instructions that don't fit the arith/compare/transcendental/load/store
// shapes: FXCH, FCHS, FABS, FTST, FXAM, the FLD1/FLDZ/FLDPI/... constant
// loads, FFREE, FLDCW/FSTCW/FSTSW, FNCLEX, FNINIT, FINCSTP/FDECSTP.
func (e *Engine) x87Ctrl(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	switch d.Cond {
	case decoder.X87Fxch:
		i := int(d.DstIdx)
		a, b := gs.FPU.ST(0), gs.FPU.ST(i)
		gs.FPU.SetST(0, b)
		gs.FPU.SetST(i, a)
	case decoder.X87Fchs:
		gs.FPU.SetST(0, -gs.FPU.ST(0))
	case decoder.X87Fabs:
		gs.FPU.SetST(0, math.Abs(gs.FPU.ST(0)))
	case decoder.X87Ftst:
		v := gs.FPU.ST(0)
		unordered := math.IsNaN(v)
		gs.FPU.SetCompareFlags(!unordered && v < 0, unordered, !unordered && v == 0)
	case decoder.X87Fxam:
		e.x87Fxam(gs)
	case decoder.X87Fld1:
		gs.FPU.Push(1)
	case decoder.X87FldZ:
		gs.FPU.Push(0)
	case decoder.X87FldL2E:
		gs.FPU.Push(math.Log2E)
	case decoder.X87FldL2T:
		gs.FPU.Push(math.Log2(10))
	case decoder.X87FldPi:
		gs.FPU.Push(math.Pi)
	case decoder.X87FldLg2:
		gs.FPU.Push(math.Log10(2))
	case decoder.X87FldLn2:
		gs.FPU.Push(math.Ln2)
	case decoder.X87Ffree:
		gs.FPU.Free(int(d.DstIdx))
	case decoder.X87FldCW:
		gs.FPU.FCW = e.mem.ReadU16(uint32(extra))
	case decoder.X87FstCW:
		e.mem.WriteU16(uint32(extra), gs.FPU.FCW)
	case decoder.X87FstSW:
		if d.HasMem {
			e.mem.WriteU16(uint32(extra), gs.FPU.FSW)
		} else {
			gs.SetGPRAt(int(d.DstIdx), uint32(gs.FPU.FSW))
		}
	case decoder.X87FnClex:
		gs.FPU.FSW &^= 0x80FF // exception flags (bits 0-7) and B (bit 15)
	case decoder.X87FnInit:
		gs.FPU.Reset()
	case decoder.X87FincStp:
		gs.FPU.IncStp()
	case decoder.X87FdecStp:
		gs.FPU.DecStp()
	}
	return 0
}

func (e *Engine) x87Fxam(gs *GuestState) {
	v := gs.FPU.ST(0)
	empty := gs.FPU.IsEmpty(0)
	gs.FPU.FSW &^= fpu.SwC0 | fpu.SwC1 | fpu.SwC2 | fpu.SwC3
	if math.Signbit(v) {
		gs.FPU.FSW |= fpu.SwC1
	}
	switch {
	case empty:
		gs.FPU.FSW |= fpu.SwC0 | fpu.SwC3
	case math.IsNaN(v):
		gs.FPU.FSW |= fpu.SwC0
	case math.IsInf(v, 0):
		gs.FPU.FSW |= fpu.SwC0 | fpu.SwC2
	case v == 0:
		gs.FPU.FSW |= fpu.SwC3
	default:
		gs.FPU.FSW |= fpu.SwC2
	}
}

func isX87IntType(t ir.DataType) bool {
	switch t {
	case ir.I16, ir.I32, ir.I64:
		return true
	}
	return false
}

func (e *Engine) readX87FloatMem(t ir.DataType, addr uint64) float64 {
	a := uint32(addr)
	switch t {
	case ir.F32:
		return float64(math.Float32frombits(e.mem.ReadU32(a)))
	case ir.F64:
		return math.Float64frombits(e.mem.ReadU64(a))
	case ir.F80:
		var b [10]byte
		e.mem.ReadBlock(a, b[:])
		return fpu.F80FromBytes(b)
	}
	return 0
}

func (e *Engine) readX87IntMem(t ir.DataType, addr uint64) float64 {
	a := uint32(addr)
	switch t {
	case ir.I16:
		return float64(int16(e.mem.ReadU16(a)))
	case ir.I32:
		return float64(int32(e.mem.ReadU32(a)))
	case ir.I64:
		return float64(int64(e.mem.ReadU64(a)))
	}
	return 0
}

func (e *Engine) writeX87FloatMem(t ir.DataType, addr uint64, v float64) {
	a := uint32(addr)
	switch t {
	case ir.F32:
		e.mem.WriteU32(a, math.Float32bits(float32(v)))
	case ir.F64:
		e.mem.WriteU64(a, math.Float64bits(v))
	case ir.F80:
		b := fpu.F80ToBytes(v)
		e.mem.WriteBlock(a, b[:])
	}
}

func (e *Engine) writeX87IntMem(t ir.DataType, addr uint64, v float64) {
	a := uint32(addr)
	switch t {
	case ir.I16:
		e.mem.WriteU16(a, uint16(int16(math.Round(v))))
	case ir.I32:
		e.mem.WriteU32(a, uint32(int32(math.Round(v))))
	case ir.I64:
		e.mem.WriteU64(a, uint64(int64(math.Round(v))))
	}
}

// --- MMX --------------------------------------------------------------

// mmxArith handles PADDB/PADDW/PADDD/PSUBB/PSUBW/PSUBD/PAND/POR/PXOR,
// dispatching to internal/fpu/packed.go's lane-wise primitives by the
// DataType the selector carries.
func (e *Engine) mmxArith(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	a := gs.FPU.ReadMM(int(d.DstIdx))
	var b uint64
	if d.HasMem {
		b = e.mem.ReadU64(uint32(extra))
	} else {
		b = gs.FPU.ReadMM(int(d.RmIdx))
	}

	var result uint64
	switch d.Cond {
	case decoder.VecAdd:
		switch ir.DataType(d.DataType) {
		case ir.V64B8:
			result = fpu.PAddB(a, b)
		case ir.V64W4:
			result = fpu.PAddW(a, b)
		default:
			result = fpu.PAddD(a, b)
		}
	case decoder.VecSub:
		switch ir.DataType(d.DataType) {
		case ir.V64B8:
			result = fpu.PSubB(a, b)
		case ir.V64W4:
			result = fpu.PSubW(a, b)
		default:
			result = fpu.PSubD(a, b)
		}
	case decoder.VecAnd:
		result = fpu.PAnd(a, b)
	case decoder.VecOr:
		result = fpu.POr(a, b)
	case decoder.VecXor:
		result = fpu.PXor(a, b)
	}
	gs.FPU.WriteMM(int(d.DstIdx), result)
	return result
}

// mmxMove handles MOVQ mm,mm/m64 and both MOVD directions; see ops_mmx_sse.go's
// MovMM* constants for which operand packSel put where.
func (e *Engine) mmxMove(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	switch d.Cond {
	case decoder.MovMMQ:
		var v uint64
		if d.HasMem {
			v = e.mem.ReadU64(uint32(extra))
		} else {
			v = gs.FPU.ReadMM(int(d.RmIdx))
		}
		gs.FPU.WriteMM(int(d.DstIdx), v)
		return v
	case decoder.MovMMDToMM:
		var v uint32
		if d.HasMem {
			v = e.mem.ReadU32(uint32(extra))
		} else {
			v = gs.GPRAt(int(d.RmIdx))
		}
		gs.FPU.WriteMM(int(d.DstIdx), uint64(v))
		return uint64(v)
	case decoder.MovMMDFromMM:
		v := uint32(gs.FPU.ReadMM(int(d.RmIdx)))
		if d.HasMem {
			e.mem.WriteU32(uint32(extra), v)
		} else {
			gs.SetGPRAt(int(d.DstIdx), v)
		}
		return uint64(v)
	}
	return 0
}

// --- SSE ----------------------------------------------------------------

// sseArith handles ADD/SUB/MUL/DIV in their packed-single, packed-double,
// scalar-single and scalar-double forms, all grounded on
// internal/fpu/packed.go's Packed*/Scalar* helpers.
func (e *Engine) sseArith(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	t := ir.DataType(d.DataType)
	a := gs.FPU.ReadXMM(int(d.DstIdx))
	var b [16]byte
	if d.HasMem {
		var buf [16]byte
		e.mem.ReadBlock(uint32(extra), buf[:t.Size()])
		b = buf
	} else {
		b = gs.FPU.ReadXMM(int(d.RmIdx))
	}

	var fn fpu.PackedFloatOp
	switch d.Cond {
	case decoder.VecAdd:
		fn = fpu.FloatAdd
	case decoder.VecSub:
		fn = fpu.FloatSub
	case decoder.VecMul:
		fn = fpu.FloatMul
	case decoder.VecDiv:
		fn = fpu.FloatDiv
	default:
		return 0
	}

	var result [16]byte
	switch t {
	case ir.F32:
		result = fpu.ScalarSingle(a, b, fn)
	case ir.F64:
		result = fpu.ScalarDouble(a, b, fn)
	case ir.V128D4:
		result = fpu.PackedDouble(a, b, fn)
	default: // V128Q2: packed single
		result = fpu.PackedSingle(a, b, fn)
	}
	gs.FPU.WriteXMM(int(d.DstIdx), result)
	return 0
}

// sseMove handles MOVUPS/MOVUPD's load and store directions (see
// ops_mmx_sse.go's SSEMoveLoad/SSEMoveStore).
func (e *Engine) sseMove(gs *GuestState, d emitter.DecodedSel, extra uint64) uint64 {
	t := ir.DataType(d.DataType)
	switch d.Cond {
	case decoder.SSEMoveLoad:
		var v [16]byte
		if d.HasMem {
			e.mem.ReadBlock(uint32(extra), v[:t.Size()])
		} else {
			v = gs.FPU.ReadXMM(int(d.RmIdx))
		}
		gs.FPU.WriteXMM(int(d.DstIdx), v)
	case decoder.SSEMoveStore:
		v := gs.FPU.ReadXMM(int(d.RmIdx))
		if d.HasMem {
			e.mem.WriteBlock(uint32(extra), v[:t.Size()])
		} else {
			gs.FPU.WriteXMM(int(d.DstIdx), v)
		}
	}
	return 0
}
