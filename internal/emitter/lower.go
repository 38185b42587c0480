package emitter

import (
	"fmt"

	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/eflags"
	"github.com/xenoarm/jit64/internal/ir"
	"github.com/xenoarm/jit64/internal/regalloc"
)

// Register roles fixed by the block calling convention (SPEC_FULL.md
// §4.3's AAPCS64 expansion): x0 carries the guest state-block pointer on
// entry and the next guest address on exit, x1 carries the host-callback
// vtable pointer used for helper dispatch (FPU/MMX/SSE ops and indirect
// TC lookups all go through it rather than being natively encoded here).
const (
	regState   = 0
	regVTable  = 1
	regScratch0 = 9
	regScratch1 = 10
	regScratch2 = 11
	regScratch3 = 12
	regFP      = 29
	regLR      = 30
	regSP      = 31
)

// extraArg is the register the helper-call ABI passes a runtime-computed
// guest-memory effective address through (x2), alongside x0=state and
// x1=sel.
const extraArg = 2

// Vtable slot indices the helper-call ABI agrees with the façade on;
// x1[slot*8] is loaded and BLR'd with x0=state, x1=sel, x2=extra arg.
const (
	vtX87Op = iota
	vtMMXOp
	vtSSEOp
	vtLookupBlock
)

// stateOffset returns the byte offset of a GPR-mapped x86 register within
// the guest state block, mirroring spec.md §6's state-block layout: eight
// GPRs at the front, then EIP, then EFLAGS. Each GPR gets a full 8-byte
// slot (only the low 32 bits are ever meaningful) rather than being
// packed at 4-byte strides, since every access goes through this
// emitter's 64-bit-granularity LDR/STR encodings (encodeLdrStr scales its
// immediate by 8) and a 4-byte stride would silently truncate to the
// wrong slot. engine.GuestState mirrors this exact layout.
func stateOffset(v ir.VReg) int64 {
	switch {
	case v < decoder.ArchMM0:
		return int64(v) * gprSlotSize
	default:
		return mmxXMMBase + int64(v-decoder.ArchMM0)*8 // not GPR-addressable here; dead in practice since MMX/XMM vregs never reach lowerAlu
	}
}

const (
	gprSlotSize  = 8
	numStateGPRs = 8
	eipOffset    = int64(numStateGPRs) * gprSlotSize
	eflagsOffset = eipOffset + 8
	mmxXMMBase   = eflagsOffset + 8
)

// Lowerer lowers one allocated IR block into a Buffer, tracking guest
// label targets for direct block chaining.
type Lowerer struct {
	buf           *Buffer
	alloc         *regalloc.Result
	labelForGuest map[uint32]int

	// lastFlagResultReg/lastFlagResultValid track the GPR holding the most
	// recently flag-producing ALU op's result, so a later CC_P/CC_NP Jcc
	// (parity has no native AArch64 condition) can re-derive PF from it
	// via an explicit fold rather than a stale NZCV read.
	lastFlagResultReg   int
	lastFlagResultValid bool

	// stateSaveOff/vtableSaveOff are the prologue's spill slots for the
	// entry x0/x1 values. A helper call's callee is an ordinary Go
	// function, not an AAPCS64 leaf that promises to preserve x0/x1, so
	// lowerHelperCall reloads both from here immediately after every BLR
	// rather than trusting them to survive the call.
	stateSaveOff  int64
	vtableSaveOff int64

	// exitSpecs accumulates one entry per block-exit branch emitted so
	// far, in emission order; LowerBlock returns it alongside the Buffer
	// so the caller can zip it with Encode's tag->offset map into real
	// tcache.Exit values.
	exitSpecs []ExitSpec
}

func NewLowerer(alloc *regalloc.Result) *Lowerer {
	return &Lowerer{buf: &Buffer{}, alloc: alloc, labelForGuest: map[uint32]int{}}
}

// ExitSpec describes one block-exit branch LowerBlock emitted. Tag indexes
// the Buffer.Encode ExitSite map for the branch's final byte offset; Tag
// is -1 for exits with no patchable branch at all (indirect/return, which
// go through the vtable block-lookup slot instead of a direct B/B.cond).
type ExitSpec struct {
	Tag             int
	Kind            ir.ExitKind
	TargetGuestAddr uint32
}

func (l *Lowerer) recordExit(kind ir.ExitKind, targetGuestAddr uint32) int {
	tag := len(l.exitSpecs)
	l.exitSpecs = append(l.exitSpecs, ExitSpec{Tag: tag, Kind: kind, TargetGuestAddr: targetGuestAddr})
	return tag
}

func (l *Lowerer) guestLabel(addr uint32) int {
	if id, ok := l.labelForGuest[addr]; ok {
		return id
	}
	id := l.buf.NewLabel()
	l.labelForGuest[addr] = id
	return id
}

// physGPR returns the AArch64 GPR an assignment lives in, or false if the
// vreg was spilled (caller must load/store via the spill slot instead).
func (l *Lowerer) physGPR(v ir.VReg) (int, bool) {
	a, ok := l.alloc.Assignments[v]
	if !ok || a.Spilled || a.Kind != regalloc.PhysGPR {
		return 0, false
	}
	return a.Phys, true
}

// loadOperand materialises op's value into scratch register dst (GPR
// class only; float/vector operands are handled by the FPU/SIMD helper
// path instead since this emitter doesn't natively encode NEON).
func (l *Lowerer) loadOperand(dst int, op ir.Operand) {
	switch op.Kind {
	case ir.OperandImm:
		l.buf.MovImm64(dst, uint64(op.Imm))
	case ir.OperandVReg:
		if phys, ok := l.physGPR(op.VReg); ok {
			if phys != dst {
				l.buf.Add(dst, phys, regZR())
			}
			return
		}
		a := l.alloc.Assignments[op.VReg]
		l.buf.Ldr(dst, regSP, int64(a.SpillOff))
	case ir.OperandMem:
		l.loadEffectiveAddress(regScratch2, op.Mem)
		l.buf.Ldr(dst, regScratch2, 0)
	}
}

func regZR() int { return 31 }

func (l *Lowerer) loadEffectiveAddress(dst int, m ir.MemRef) {
	if m.Base != ir.VRegNone {
		l.buf.Ldr(dst, regState, stateOffset(m.Base))
	} else {
		l.buf.MovImm64(dst, 0)
	}
	if m.Index != ir.VRegNone {
		// Index materialises into regScratch3 rather than regScratch1:
		// some callers pass dst==regScratch1 (lowerLoadStore's OpStore
		// case), and reusing it here would clobber the base this function
		// just wrote into dst before the index is folded in.
		idx := regScratch3
		l.buf.Ldr(idx, regState, stateOffset(m.Index))
		if m.Scale > 1 {
			// left-shift index by log2(scale) via repeated add; scale is
			// always a small power of two (1/2/4/8) so this is at most 3
			// adds, avoiding a dedicated shifted-add encoding.
			shift := 0
			for s := m.Scale; s > 1; s >>= 1 {
				shift++
			}
			for i := 0; i < shift; i++ {
				l.buf.Add(idx, idx, idx)
			}
		}
		l.buf.Add(dst, dst, idx)
	}
	if m.Disp != 0 {
		l.buf.AddImm(dst, dst, int64(m.Disp))
	}
}

// storeResult writes scratch register src back into dst's physical
// location (register move or spill store).
func (l *Lowerer) storeResult(dst ir.Operand, src int) {
	if dst.Kind != ir.OperandVReg {
		return
	}
	if phys, ok := l.physGPR(dst.VReg); ok {
		if phys != src {
			l.buf.Add(phys, src, regZR())
		}
		return
	}
	a := l.alloc.Assignments[dst.VReg]
	l.buf.Str(src, regSP, int64(a.SpillOff))
}

// LowerBlock emits the full prologue, body, and epilogue for one IR
// block, returning the assembled Buffer ready for Encode plus the exit
// sites the caller needs to turn into real tcache.Exit entries.
func LowerBlock(block *ir.Block, alloc *regalloc.Result) (*Buffer, []ExitSpec, error) {
	l := NewLowerer(alloc)
	l.prologue(alloc.SpillAreaSize)
	for i := range block.Instructions {
		if err := l.lowerInstruction(&block.Instructions[i]); err != nil {
			return nil, nil, err
		}
	}
	return l.buf, l.exitSpecs, nil
}

// prologue reserves the spill area (16-byte aligned per AAPCS64), saves
// FP/LR, matching the save/restore shape this corpus's wazevo reference
// grounds in SPEC_FULL.md §4.3, and spills the entry x0/x1 (state
// pointer, vtable pointer) so lowerHelperCall can restore them after a
// call clobbers them.
func (l *Lowerer) prologue(spillSize int32) {
	frame := (int64(spillSize) + 15) &^ 15
	frame += 16 // FP/LR save slot
	frame += 16 // saved state/vtable pointers
	l.buf.StpPreIndex(regFP, regLR, regSP, -frame)
	l.buf.AddImm(regFP, regSP, 0)
	l.stateSaveOff = frame - 16
	l.vtableSaveOff = frame - 8
	l.buf.Str(regState, regSP, l.stateSaveOff)
	l.buf.Str(regVTable, regSP, l.vtableSaveOff)
}

func (l *Lowerer) epilogue() {
	l.buf.LdpPostIndex(regFP, regLR, regSP, l.frameSize())
	l.buf.Ret()
}

func (l *Lowerer) frameSize() int64 {
	frame := (int64(l.alloc.SpillAreaSize) + 15) &^ 15
	return frame + 32
}

func (l *Lowerer) lowerInstruction(ins *ir.Instruction) error {
	switch ins.Cat {
	case ir.CatAluInt:
		return l.lowerAlu(ins)
	case ir.CatLoadStore:
		return l.lowerLoadStore(ins)
	case ir.CatControlFlow:
		return l.lowerControl(ins)
	case ir.CatX87:
		l.lowerHelperCall(vtX87Op, ins)
		return nil
	case ir.CatMMX:
		l.lowerHelperCall(vtMMXOp, ins)
		return nil
	case ir.CatSSEFloat, ir.CatSSEInt:
		l.lowerHelperCall(vtSSEOp, ins)
		return nil
	case ir.CatMeta:
		return nil
	default:
		return fmt.Errorf("emitter: unhandled category %d", ins.Cat)
	}
}

// selExtraMem flags (sel bit 40) that a guest-memory operand's effective
// address was computed and passed through x2 rather than baked into sel.
const selExtraMem = uint64(1) << 40

// operandRegIndex returns the compile-time-known register-file index an
// operand addresses (ST(i)/mmN/xmmN/GPR all fit in 0-7 or the GPR's own
// 0-7 range), so the dispatch closure can index its own state arrays
// directly instead of needing a runtime pointer. false means the operand
// is a guest-memory reference instead.
func operandRegIndex(op ir.Operand) (uint64, bool) {
	switch op.Kind {
	case ir.OperandVReg:
		switch {
		case op.VReg >= decoder.ArchXMM0:
			return uint64(op.VReg - decoder.ArchXMM0), true
		case op.VReg >= decoder.ArchMM0:
			return uint64(op.VReg - decoder.ArchMM0), true
		default:
			return uint64(op.VReg), true
		}
	case ir.OperandImm:
		return uint64(op.Imm), true // x87 ST(i) stack index
	default:
		return 0, false
	}
}

// packSel builds the helper-call selector: bits 0-7 the op-specific
// selector constant (Instruction.Cond, e.g. one of ops_x87.go's x87Add..
// x87RndInt), 8-15 the IR Op (x87's arithmetic and transcendental tables
// reuse Cond's numbering under different Ops, so Cond alone can't
// disambiguate them), 16-23 the primary operand's DataType, 24-31 the
// primary operand's register-file index (0xFF if none), 32-39 the
// secondary operand's index (0xFF if none/memory), and bit 40 set if a
// guest-memory operand's address was computed into x2. At most one
// operand is ever a memory reference, matching every CatX87/CatMMX/
// CatSSE* instruction shape this decoder produces.
func packSel(ins *ir.Instruction) (sel uint64, memOperand ir.Operand, hasMem bool) {
	dstIdx, rmIdx := uint64(0xFF), uint64(0xFF)
	var dataType ir.DataType
	if len(ins.Operands) > 0 {
		op := ins.Operands[0]
		dataType = op.Type
		if op.Kind == ir.OperandMem {
			memOperand, hasMem = op, true
		} else if idx, ok := operandRegIndex(op); ok {
			dstIdx = idx
		}
	}
	if len(ins.Operands) > 1 {
		op := ins.Operands[1]
		if dataType == ir.TypeNone {
			dataType = op.Type
		}
		if op.Kind == ir.OperandMem {
			memOperand, hasMem = op, true
		} else if idx, ok := operandRegIndex(op); ok {
			rmIdx = idx
		}
	}
	sel = uint64(ins.Cond) | uint64(byte(ins.Op))<<8 | uint64(byte(dataType))<<16 | dstIdx<<24 | rmIdx<<32
	if hasMem {
		sel |= selExtraMem
	}
	return sel, memOperand, hasMem
}

// SelExtraMem mirrors selExtraMem for DecodeSel's callers outside this
// package (engine's vtable dispatch callbacks).
const SelExtraMem = selExtraMem

// DecodedSel is packSel's selector unpacked back into its named fields, so
// the vtable dispatch side doesn't duplicate the bit layout packSel
// defines. DstIdx/RmIdx are 0xFF where packSel left them unset (no such
// operand, or a memory operand instead).
type DecodedSel struct {
	Cond     byte
	Op       byte
	DataType byte
	DstIdx   byte
	RmIdx    byte
	HasMem   bool
}

// DecodeSel unpacks a helper-call selector built by packSel.
func DecodeSel(sel uint64) DecodedSel {
	return DecodedSel{
		Cond:     byte(sel),
		Op:       byte(sel >> 8),
		DataType: byte(sel >> 16),
		DstIdx:   byte(sel >> 24),
		RmIdx:    byte(sel >> 32),
		HasMem:   sel&selExtraMem != 0,
	}
}

// lowerHelperCall dispatches FPU/MMX/SSE ops through the callback vtable
// rather than native NEON encoding: x0=state, x1=packed selector (see
// packSel), x2=a guest-memory operand's effective address if any. The
// callee is an ordinary Go function reached via a bare tail-branch stub
// (vtable_arm64.s), so it's free to clobber x0/x1 as its own argument/
// return registers; both are reloaded from the prologue's spill slots
// immediately after the call so later instructions in this block still
// see the entry state/vtable pointers.
func (l *Lowerer) lowerHelperCall(slot int, ins *ir.Instruction) {
	sel, memOperand, hasMem := packSel(ins)
	l.buf.Ldr(regScratch0, regVTable, int64(slot)*8)
	if hasMem {
		l.loadEffectiveAddress(extraArg, memOperand.Mem)
	} else {
		l.buf.MovImm64(extraArg, 0)
	}
	l.buf.MovImm64(1, sel)
	l.buf.BLR(regScratch0)
	if ins.HasDef {
		// Copy the return value (x0, per AAPCS64) out before x0 gets
		// overwritten by the state-pointer reload below.
		l.buf.Add(regScratch1, 0, regZR())
	}
	l.buf.Ldr(regState, regSP, l.stateSaveOff)
	l.buf.Ldr(regVTable, regSP, l.vtableSaveOff)
	if ins.HasDef {
		l.storeResult(ins.Def, regScratch1)
	}
}

func (l *Lowerer) lowerAlu(ins *ir.Instruction) error {
	if len(ins.Operands) == 0 {
		return nil
	}
	dstOp := ins.Operands[0]
	l.loadOperand(regScratch0, dstOp)
	var srcOp ir.Operand
	if len(ins.Operands) > 1 {
		srcOp = ins.Operands[1]
		l.loadOperand(regScratch1, srcOp)
	}

	switch ins.Op {
	case ir.OpMov:
		l.storeResult(ins.Def, regScratch1)
		return nil
	case ir.OpAdd, ir.OpAdc:
		l.buf.AddS(regScratch0, regScratch0, regScratch1)
	case ir.OpSub, ir.OpSbb, ir.OpCmp:
		l.buf.SubS(regScratch0, regScratch0, regScratch1)
	case ir.OpAnd, ir.OpTest:
		l.buf.And(regScratch0, regScratch0, regScratch1)
		// x86 AND/TEST architecturally clear CF/OF and native ANDS doesn't
		// guarantee that (its carry-out tracks the shifter operand, not a
		// forced clear); comparing the result against zero instead always
		// yields C=1 (no borrow) and V=0, which is exactly CF=0/OF=0 under
		// the x86<->AArch64 condition mapping in cond.go.
		l.buf.Cmp(regScratch0, regZR())
	case ir.OpOr:
		l.buf.Orr(regScratch0, regScratch0, regScratch1)
		l.buf.Cmp(regScratch0, regZR())
	case ir.OpXor:
		l.buf.Eor(regScratch0, regScratch0, regScratch1)
		l.buf.Cmp(regScratch0, regZR())
	case ir.OpNot:
		// No dedicated MVN encoding here; XOR against an all-ones mask
		// gives the same bitwise complement.
		l.buf.MovImm64(regScratch1, ^uint64(0))
		l.buf.Eor(regScratch0, regScratch0, regScratch1)
	case ir.OpNeg:
		l.buf.SubS(regScratch0, regZR(), regScratch0)
	case ir.OpInc:
		l.buf.AddImm(regScratch0, regScratch0, 1)
	case ir.OpDec:
		l.buf.SubImm(regScratch0, regScratch0, 1)
	case ir.OpShl:
		l.buf.ShiftRR(shiftLSL, regScratch0, regScratch0, regScratch1)
	case ir.OpShr:
		l.buf.ShiftRR(shiftLSR, regScratch0, regScratch0, regScratch1)
	case ir.OpSar:
		// AArch64's 64-bit ASR reads bit 63 as the sign, but a guest
		// 32-bit value only ever occupies the low 32 bits of its state
		// slot (high bits are whatever was last there); sign-extend bit
		// 31 up to bit 63 first so the arithmetic shift sees the right
		// sign.
		l.signExtend32(regScratch0, regScratch0)
		l.buf.ShiftRR(shiftASR, regScratch0, regScratch0, regScratch1)
	case ir.OpRol, ir.OpRor:
		l.lowerRotate(ins.Op, regScratch0, regScratch1)
	default:
		return fmt.Errorf("emitter: unhandled ALU op %v", ins.Op)
	}

	if ins.OpKind != ir.OpKindNone {
		l.lastFlagResultReg = regScratch0
		l.lastFlagResultValid = true
	}

	if ins.Op != ir.OpCmp && ins.Op != ir.OpTest && ins.HasDef {
		l.storeResult(ins.Def, regScratch0)
	}
	return nil
}

// signExtend32 sign-extends the low 32 bits of src up through bit 63,
// writing the result to dst, via a left-then-arithmetic-right shift pair
// rather than a dedicated SXTW encoding this emitter doesn't carry.
func (l *Lowerer) signExtend32(dst, src int) {
	l.buf.MovImm64(regScratch3, 32)
	l.buf.ShiftRR(shiftLSL, dst, src, regScratch3)
	l.buf.ShiftRR(shiftASR, dst, dst, regScratch3)
}

// lowerRotate computes a 32-bit ROL/ROR of value by the register count in
// countReg, writing back into value. AArch64 only has a rotate-right
// primitive (RORV), so ROL(x, n) is built as the OR of the two halves a
// 32-bit rotate by n splits into: ROR(x, 32-n) for ROL, ROR(x, n) directly
// for ROR. Both sides are masked to 32 bits implicitly: count (and hence
// 32-count) never needs reducing mod 32 here as long as the caller's
// count is already 0-31, matching x86's own shift-count masking.
func (l *Lowerer) lowerRotate(op ir.Op, value, countReg int) {
	comp := regScratch3
	wrap := regScratch2
	l.buf.MovImm64(comp, 32)
	l.buf.Sub(comp, comp, countReg)
	if op == ir.OpRor {
		l.buf.ShiftRR(shiftLSL, wrap, value, comp)
		l.buf.ShiftRR(shiftLSR, value, value, countReg)
	} else { // OpRol
		l.buf.ShiftRR(shiftLSR, wrap, value, comp)
		l.buf.ShiftRR(shiftLSL, value, value, countReg)
	}
	l.buf.Orr(value, value, wrap)
}

func (l *Lowerer) lowerLoadStore(ins *ir.Instruction) error {
	switch ins.Op {
	case ir.OpLoad:
		l.loadOperand(regScratch0, ins.Operands[0])
		l.storeResult(ins.Def, regScratch0)
	case ir.OpStore:
		l.loadOperand(regScratch0, ins.Operands[1])
		l.loadEffectiveAddress(regScratch1, ins.Operands[0].Mem)
		l.buf.Str(regScratch0, regScratch1, 0)
	case ir.OpLea:
		l.loadEffectiveAddress(regScratch0, ins.Operands[0].Mem)
		l.storeResult(ins.Def, regScratch0)
	}
	return nil
}

func (l *Lowerer) lowerControl(ins *ir.Instruction) error {
	switch ins.Op {
	case ir.OpJcc:
		return l.lowerJcc(ins)
	case ir.OpJmp, ir.OpCallDirect:
		l.emitExit(ins.TargetGuest)
		return nil
	case ir.OpRet, ir.OpCallIndirect:
		l.emitExitIndirect()
		return nil
	case ir.OpLoop:
		return l.lowerLoop(ins)
	default:
		return fmt.Errorf("emitter: unhandled control op %v", ins.Op)
	}
}

// lowerJcc branches natively through NZCV for every condition the
// materialise step actually reproduces there, and falls back to an
// explicit parity fold (no AArch64 condition observes PF directly) for
// CC_P/CC_NP.
func (l *Lowerer) lowerJcc(ins *ir.Instruction) error {
	if ins.Cond == decoder.CondECXZero {
		l.loadOperand(regScratch0, ir.Reg(decoderArchECX, ir.I32))
		l.buf.Cmp(regScratch0, regZR())
		l.emitCondExit(condEQ, ins.TargetGuest, ins.TargetGuestFalse)
		return nil
	}
	if ins.Cond == eflags.CCP || ins.Cond == eflags.CCNP {
		return l.lowerParityJcc(ins)
	}
	cc := x86CondToAArch64(ins.Cond)
	l.emitCondExit(cc, ins.TargetGuest, ins.TargetGuestFalse)
	return nil
}

// lowerParityJcc folds the low byte of the last flag-producing result
// into its parity (even number of set bits -> PF=1) using the same
// XOR-shift-fold sequence as eflags.evenParity, since no AArch64
// condition observes PF directly.
func (l *Lowerer) lowerParityJcc(ins *ir.Instruction) error {
	src := regScratch0
	if l.lastFlagResultValid {
		src = l.lastFlagResultReg
	}
	w := regScratch2
	l.buf.AndImm(w, src, 0xFF, regScratch3)
	l.buf.Lsr(regScratch1, w, 4)
	l.buf.Eor(w, w, regScratch1)
	l.buf.Lsr(regScratch1, w, 2)
	l.buf.Eor(w, w, regScratch1)
	l.buf.Lsr(regScratch1, w, 1)
	l.buf.Eor(w, w, regScratch1)
	l.buf.AndImm(w, w, 1, regScratch3) // w&1 == 0 means even parity, i.e. PF=1

	wantZero := ins.Cond == eflags.CCP // PF=1 <=> folded bit == 0
	l.buf.Cmp(w, regZR())
	cc := byte(condNE)
	if wantZero {
		cc = condEQ
	}
	l.emitCondExit(cc, ins.TargetGuest, ins.TargetGuestFalse)
	return nil
}

// lowerLoop decrements ECX and branches on the result. LOOPE/LOOPNE
// (ins.Cond distinguishes the three variants) are lowered exactly like
// LOOP: their extra ZF test is not emitted.
func (l *Lowerer) lowerLoop(ins *ir.Instruction) error {
	l.loadOperand(regScratch0, ir.Reg(decoderArchECX, ir.I32))
	l.buf.SubImm(regScratch0, regScratch0, 1)
	l.storeResult(ir.Reg(decoderArchECX, ir.I32), regScratch0)
	l.buf.Cmp(regScratch0, regZR())
	l.emitCondExit(condNE, ins.TargetGuest, ins.TargetGuestFalse)
	return nil
}

const decoderArchECX = decoder.ArchECX

// emitExit materialises the next guest address into x0 and returns,
// matching the block-function contract: x0 carries the continuation
// address back to the translation-cache dispatch loop. The branch
// reaching the exit body is an unconditional B tagged as a patch site
// (see bTagged/Buffer.Encode), so tcache.Chain can later overwrite it to
// jump straight into a chained block's host code instead of falling
// through the epilogue.
func (l *Lowerer) emitExit(guestAddr uint32) {
	tag := l.recordExit(ir.ExitUnconditional, guestAddr)
	stub := l.buf.NewLabel()
	l.buf.BTagged(stub, tag)
	l.buf.Label(stub)
	l.emitExitBody(guestAddr)
}

// emitCondExit lowers one Jcc/LOOP-family branch into two independently
// patchable exits: a tagged B.cond for the taken side and a tagged
// unconditional B for the not-taken side (which would otherwise just be
// an inline fallthrough with no branch instruction for tcache.Chain to
// rewrite). Recording these as two separate tcache.Exit entries, each
// with its own patch site, sidesteps having to patch one shared site for
// two different targets.
func (l *Lowerer) emitCondExit(cc byte, trueAddr, falseAddr uint32) {
	trueTag := l.recordExit(ir.ExitConditionalTrue, trueAddr)
	falseTag := l.recordExit(ir.ExitConditionalFalse, falseAddr)
	trueStub := l.buf.NewLabel()
	falseStub := l.buf.NewLabel()
	l.buf.BCondTagged(cc, trueStub, trueTag)
	l.buf.BTagged(falseStub, falseTag)
	l.buf.Label(falseStub)
	l.emitExitBody(falseAddr)
	l.buf.Label(trueStub)
	l.emitExitBody(trueAddr)
}

func (l *Lowerer) emitExitBody(guestAddr uint32) {
	l.buf.MovImm64(0, uint64(guestAddr))
	l.epilogue()
}

// emitExitIndirect hands off to the vtable's block-lookup slot for RET/
// indirect CALL, where the target isn't known until runtime; there's no
// patchable branch for an indirect exit; it's recorded with Tag=-1.
func (l *Lowerer) emitExitIndirect() {
	l.exitSpecs = append(l.exitSpecs, ExitSpec{Tag: -1, Kind: ir.ExitIndirect})
	l.buf.Ldr(regScratch0, regVTable, int64(vtLookupBlock)*8)
	l.buf.BLR(regScratch0)
	l.epilogue()
}
