// Package emitter lowers an allocated IR block into native AArch64 machine
// code: a sequence of tagged instructions, each of which knows how to
// encode itself into the output byte buffer, followed by a branch-fixup
// pass that resolves intra-block and chained-block targets (inserting a
// veneer when a conditional branch's target falls outside its +/-1MiB
// encoding range).
package emitter

import "fmt"

// instKind tags which AArch64 encoding a instruction uses; each field's
// meaning depends on it, mirroring the tagged-union instruction shape this
// corpus's AArch64 backends use instead of one struct-per-opcode.
type instKind int

const (
	kindNop instKind = iota
	kindMovZ
	kindMovK
	kindMovN
	kindAluRRR   // ADD/SUB/AND/ORR/EOR Xd, Xn, Xm
	kindAluRRImm // ADD/SUB Xd, Xn, #imm
	kindCmpRR
	kindLdr
	kindStr
	kindLdp
	kindStp
	kindB
	kindBCond
	kindBL
	kindBLR
	kindBR
	kindRet
	kindCSet
	kindFpuRRR
	kindFMov
	kindLabel   // pseudo: marks a branch target for the fixup pass
	kindVeneer  // pseudo: inserted by the fixup pass for out-of-range bcond
	kindRawWord // a raw pre-encoded 32-bit word (trampoline glue, literals)
	kindLsr     // LSR Xd, Xn, #shift
	kindShiftRR // LSLV/LSRV/ASRV/RORV Xd, Xn, Xm (cond field selects which)
)

// Shift-by-register variants for kindShiftRR, stored in inst.cond (which
// otherwise only ever means a branch condition or CSET condition — this
// kind never needs one, so it doubles as the shift selector per the
// tagged-union convention this file already follows).
const (
	shiftLSL byte = iota
	shiftLSR
	shiftASR
	shiftROR
)

// aluOp selects the ALU operation for kindAluRRR/kindAluRRImm.
type aluOp int

const (
	aluAdd aluOp = iota
	aluSub
	aluAnd
	aluOrr
	aluEor
)

// inst is one emitted instruction. Not every field is meaningful for every
// kind; see the kind's constructor for which ones are.
type inst struct {
	kind instKind

	rd, rn, rm int  // register operands, AArch64 numbering 0-31
	imm        int64
	shift      uint
	op         aluOp
	cond       byte // AArch64 condition code, for kindBCond/kindCSet

	// label is the symbolic branch target this instruction refers to
	// (kindB/kindBCond/kindBL) or defines (kindLabel).
	label int

	raw uint32 // kindRawWord payload

	isFloat     bool // kindAluRRR/kindFpuRRR: route through the FP/NEON file
	flagSetting bool // kindAluRRR: emit the S-suffixed (NZCV-setting) form

	// exitTag identifies this kindB/kindBCond as a block-exit site (an
	// index into the Lowerer's exitSpecs), so Encode can report its final
	// byte offset back to the caller for tcache.Chain to patch later. Not
	// every branch is an exit (intra-block Jcc skip branches aren't), so
	// hasExitTag distinguishes a real tag from the zero value.
	exitTag    int
	hasExitTag bool
}

func (i inst) String() string {
	switch i.kind {
	case kindNop:
		return "nop"
	case kindLabel:
		return fmt.Sprintf("L%d:", i.label)
	case kindB:
		return fmt.Sprintf("b L%d", i.label)
	case kindBCond:
		return fmt.Sprintf("b.%02x L%d", i.cond, i.label)
	default:
		return fmt.Sprintf("<inst kind=%d>", i.kind)
	}
}

func nop() inst                     { return inst{kind: kindNop} }
func movz(rd int, imm uint16, shift uint) inst {
	return inst{kind: kindMovZ, rd: rd, imm: int64(imm), shift: shift}
}
func movk(rd int, imm uint16, shift uint) inst {
	return inst{kind: kindMovK, rd: rd, imm: int64(imm), shift: shift}
}
func aluRRR(op aluOp, rd, rn, rm int) inst {
	return inst{kind: kindAluRRR, op: op, rd: rd, rn: rn, rm: rm}
}
func aluRRImm(op aluOp, rd, rn int, imm int64) inst {
	return inst{kind: kindAluRRImm, op: op, rd: rd, rn: rn, imm: imm}
}
func cmpRR(rn, rm int) inst { return inst{kind: kindCmpRR, rn: rn, rm: rm} }
func ldr(rt, rn int, imm int64) inst {
	return inst{kind: kindLdr, rd: rt, rn: rn, imm: imm}
}
func str(rt, rn int, imm int64) inst {
	return inst{kind: kindStr, rd: rt, rn: rn, imm: imm}
}
func ldp(rt, rt2, rn int, imm int64) inst {
	return inst{kind: kindLdp, rd: rt, rm: rt2, rn: rn, imm: imm}
}
func stp(rt, rt2, rn int, imm int64) inst {
	return inst{kind: kindStp, rd: rt, rm: rt2, rn: rn, imm: imm}
}
func b(label int) inst       { return inst{kind: kindB, label: label} }
func bCond(cond byte, label int) inst { return inst{kind: kindBCond, cond: cond, label: label} }

// bTagged/bCondTagged mark the branch as an exit site: Encode resolves the
// tag to the instruction's final byte offset (and, for bCondTagged, its
// condition) so the caller can hand tcache.Chain a real patch site instead
// of leaving exits unpatchable.
func bTagged(label, tag int) inst {
	return inst{kind: kindB, label: label, exitTag: tag, hasExitTag: true}
}
func bCondTagged(cond byte, label, tag int) inst {
	return inst{kind: kindBCond, cond: cond, label: label, exitTag: tag, hasExitTag: true}
}
func bl(label int) inst      { return inst{kind: kindBL, label: label} }
func blr(rn int) inst        { return inst{kind: kindBLR, rn: rn} }
func br(rn int) inst         { return inst{kind: kindBR, rn: rn} }
func ret() inst              { return inst{kind: kindRet} }
func cset(rd int, cond byte) inst { return inst{kind: kindCSet, rd: rd, cond: cond} }
func label(id int) inst      { return inst{kind: kindLabel, label: id} }
func shiftRR(which byte, rd, rn, rm int) inst {
	return inst{kind: kindShiftRR, cond: which, rd: rd, rn: rn, rm: rm}
}
func rawWord(w uint32) inst  { return inst{kind: kindRawWord, raw: w} }

// AArch64 condition codes (the ones the EFLAGS->NZCV mapping in cond.go
// actually produces).
const (
	condEQ = 0x0
	condNE = 0x1
	condCS = 0x2
	condCC = 0x3
	condMI = 0x4
	condPL = 0x5
	condVS = 0x6
	condVC = 0x7
	condHI = 0x8
	condLS = 0x9
	condGE = 0xA
	condLT = 0xB
	condGT = 0xC
	condLE = 0xD
	condAL = 0xE
)
