package emitter

import "fmt"

// bcondRange is the +/-1MiB signed imm19<<2 reach of a conditional branch;
// a target outside it needs a veneer (an unconditional B, which reaches
// +/-128MiB, inserted right after the bcond and taken instead).
const bcondRange = 1 << 20

// Buffer accumulates instructions for one translated block, resolves
// label references to byte offsets, and emits the final machine-code
// bytes, inserting veneers for any conditional branch that would
// otherwise overflow its encoding range.
type Buffer struct {
	insts     []inst
	nextLabel int
}

// NewLabel allocates a fresh symbolic branch-target id.
func (b *Buffer) NewLabel() int {
	id := b.nextLabel
	b.nextLabel++
	return id
}

func (b *Buffer) emit(i inst) { b.insts = append(b.insts, i) }

func (b *Buffer) Label(id int)                 { b.emit(label(id)) }
func (b *Buffer) MovZ(rd int, imm uint16, hw uint) { b.emit(movz(rd, imm, hw)) }
func (b *Buffer) MovK(rd int, imm uint16, hw uint) { b.emit(movk(rd, imm, hw)) }
func (b *Buffer) Add(rd, rn, rm int)            { b.emit(aluRRR(aluAdd, rd, rn, rm)) }
func (b *Buffer) Sub(rd, rn, rm int)            { b.emit(aluRRR(aluSub, rd, rn, rm)) }
func (b *Buffer) And(rd, rn, rm int)            { b.emit(aluRRR(aluAnd, rd, rn, rm)) }
func (b *Buffer) Orr(rd, rn, rm int)            { b.emit(aluRRR(aluOrr, rd, rn, rm)) }
func (b *Buffer) Eor(rd, rn, rm int)            { b.emit(aluRRR(aluEor, rd, rn, rm)) }
func (b *Buffer) AddImm(rd, rn int, imm int64)  { b.emit(aluRRImm(aluAdd, rd, rn, imm)) }
func (b *Buffer) SubImm(rd, rn int, imm int64)  { b.emit(aluRRImm(aluSub, rd, rn, imm)) }
func (b *Buffer) Cmp(rn, rm int)                { b.emit(cmpRR(rn, rm)) }
func (b *Buffer) Ldr(rt, rn int, imm int64)      { b.emit(ldr(rt, rn, imm)) }
func (b *Buffer) Str(rt, rn int, imm int64)      { b.emit(str(rt, rn, imm)) }
func (b *Buffer) Ldp(rt, rt2, rn int, imm int64) { b.emit(ldp(rt, rt2, rn, imm)) }
func (b *Buffer) Stp(rt, rt2, rn int, imm int64) { b.emit(stp(rt, rt2, rn, imm)) }
func (b *Buffer) B(label int)                   { b.emit(b_(label)) }
func (b *Buffer) BCond(cond byte, label int)    { b.emit(bCond(cond, label)) }
func (b *Buffer) BTagged(label, tag int)        { b.emit(bTagged(label, tag)) }
func (b *Buffer) BCondTagged(cond byte, label, tag int) { b.emit(bCondTagged(cond, label, tag)) }
func (b *Buffer) BL(label int)                  { b.emit(bl(label)) }
func (b *Buffer) BLR(rn int)                    { b.emit(blr(rn)) }
func (b *Buffer) BR(rn int)                     { b.emit(br(rn)) }
func (b *Buffer) Ret()                          { b.emit(ret()) }
func (b *Buffer) CSet(rd int, cond byte)        { b.emit(cset(rd, cond)) }
func (b *Buffer) Tst(rn, rm int)                { b.emit(aluRRR(aluAnd, 31, rn, rm)) }
func (b *Buffer) AddS(rd, rn, rm int)           { b.emit(inst{kind: kindAluRRR, op: aluAdd, rd: rd, rn: rn, rm: rm, flagSetting: true}) }
func (b *Buffer) SubS(rd, rn, rm int)           { b.emit(inst{kind: kindAluRRR, op: aluSub, rd: rd, rn: rn, rm: rm, flagSetting: true}) }

// AndImm masks rn into rd using maskReg as scratch to hold the immediate,
// since the AArch64 logical-immediate encoding this would otherwise need
// (an N:immr:imms bitmask form) only accepts a restricted set of
// repeating-pattern values and this emitter only ever masks small literal
// constants.
func (b *Buffer) AndImm(rd, rn int, mask uint64, maskReg int) {
	b.MovImm64(maskReg, mask)
	b.emit(aluRRR(aluAnd, rd, rn, maskReg))
}
func (b *Buffer) Lsr(rd, rn int, shift uint) { b.emit(inst{kind: kindLsr, rd: rd, rn: rn, shift: shift}) }
func (b *Buffer) ShiftRR(which byte, rd, rn, rm int) { b.emit(shiftRR(which, rd, rn, rm)) }

// StpPreIndex/LdpPostIndex implement the pre-/post-indexed pair forms the
// prologue/epilogue use to open and close the stack frame in one
// instruction, matching the save/restore shape AArch64 JIT backends use
// around a raw jump into compiled bytes.
func (b *Buffer) StpPreIndex(rt, rt2, rn int, imm int64) {
	b.emit(inst{kind: kindStp, rd: rt, rm: rt2, rn: rn, imm: imm, shift: indexPre})
}
func (b *Buffer) LdpPostIndex(rt, rt2, rn int, imm int64) {
	b.emit(inst{kind: kindLdp, rd: rt, rm: rt2, rn: rn, imm: imm, shift: indexPost})
}

const (
	indexSigned = 0
	indexPre    = 1
	indexPost   = 2
)

func b_(label int) inst { return b(label) }

// MovImm64 lowers a full 64-bit immediate as up to four MOVZ/MOVK
// instructions, skipping zero halfwords past the first (matching how a
// constant pool-free backend materialises pointers/guest addresses).
func (b *Buffer) MovImm64(rd int, v uint64) {
	first := true
	for hw := uint(0); hw < 4; hw++ {
		h := uint16(v >> (hw * 16))
		if h == 0 && !first && hw != 3 {
			continue
		}
		if first {
			b.MovZ(rd, h, hw)
			first = false
		} else {
			b.MovK(rd, h, hw)
		}
	}
	if first {
		b.MovZ(rd, 0, 0)
	}
}

// ExitSite is where in the encoded buffer one block-exit branch landed,
// reported by Encode so the caller can turn it into a real tcache.Exit
// patch site instead of leaving exits unpatchable; Offset is where
// PatchDirectBranch's 4-byte rewrite applies.
type ExitSite struct {
	Offset int
	Cond   byte
	IsCond bool
}

// Encode resolves all labels and returns the final machine code, along
// with each tagged exit branch's (see BTagged/BCondTagged) final byte
// offset keyed by its tag — the translation cache uses this to patch a
// direct-exit branch after the block has already been encoded once (see
// tcache.Chain).
func (b *Buffer) Encode() ([]byte, map[int]ExitSite, error) {
	resolved := b.insertVeneers()
	offsets := make(map[int]int) // label id -> byte offset
	pos := 0
	for _, ins := range resolved {
		if ins.kind == kindLabel {
			offsets[ins.label] = pos
			continue
		}
		pos += 4
	}

	sites := make(map[int]ExitSite)
	out := make([]byte, 0, pos)
	pos = 0
	for _, ins := range resolved {
		if ins.kind == kindLabel {
			continue
		}
		word, err := b.encodeOne(ins, pos, offsets)
		if err != nil {
			return nil, nil, err
		}
		if ins.hasExitTag {
			sites[ins.exitTag] = ExitSite{Offset: pos, Cond: ins.cond, IsCond: ins.kind == kindBCond}
		}
		out = append(out, byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
		pos += 4
	}
	return out, sites, nil
}

// insertVeneers makes a first encoding pass using a flat estimate (every
// instruction is 4 bytes, labels contribute 0) to find each bcond's
// displacement; any that would overflow bcondRange gets its condition
// inverted and a veneer B to the true target inserted immediately after,
// with the bcond itself retargeted to skip the veneer.
func (b *Buffer) insertVeneers() []inst {
	type pos struct{ idx, byteOff int }
	offsets := make(map[int]int)
	off := 0
	for _, ins := range b.insts {
		if ins.kind == kindLabel {
			offsets[ins.label] = off
			continue
		}
		off += 4
	}

	out := make([]inst, 0, len(b.insts))
	off = 0
	for _, ins := range b.insts {
		if ins.kind != kindBCond {
			if ins.kind != kindLabel {
				off += 4
			}
			out = append(out, ins)
			continue
		}
		target, ok := offsets[ins.label]
		disp := 0
		if ok {
			disp = target - off
		}
		if disp >= -bcondRange && disp < bcondRange {
			out = append(out, ins)
			off += 4
			continue
		}
		skipLabel := b.NewLabel()
		out = append(out, bCond(ins.cond^1, skipLabel))
		veneer := b_(ins.label)
		veneer.exitTag, veneer.hasExitTag = ins.exitTag, ins.hasExitTag
		out = append(out, veneer)
		out = append(out, label(skipLabel))
		off += 8
	}
	return out
}

func (b *Buffer) encodeOne(ins inst, pos int, offsets map[int]int) (uint32, error) {
	switch ins.kind {
	case kindNop:
		return 0xD503201F, nil
	case kindMovZ:
		return encodeMovWide(0b10, ins.rd, uint16(ins.imm), ins.shift), nil
	case kindMovK:
		return encodeMovWide(0b11, ins.rd, uint16(ins.imm), ins.shift), nil
	case kindAluRRR:
		return encodeAluRRR(ins.op, ins.rd, ins.rn, ins.rm, ins.flagSetting), nil
	case kindLsr:
		return encodeLsr(ins.rd, ins.rn, ins.shift), nil
	case kindShiftRR:
		return encodeShiftRR(ins.cond, ins.rd, ins.rn, ins.rm), nil
	case kindAluRRImm:
		return encodeAluRRImm(ins.op, ins.rd, ins.rn, ins.imm), nil
	case kindCmpRR:
		return encodeCmp(ins.rn, ins.rm), nil
	case kindLdr:
		return encodeLdrStr(true, ins.rd, ins.rn, ins.imm), nil
	case kindStr:
		return encodeLdrStr(false, ins.rd, ins.rn, ins.imm), nil
	case kindLdp:
		return encodeLdpStp(true, ins.rd, ins.rm, ins.rn, ins.imm, int(ins.shift)), nil
	case kindStp:
		return encodeLdpStp(false, ins.rd, ins.rm, ins.rn, ins.imm, int(ins.shift)), nil
	case kindB:
		target, ok := offsets[ins.label]
		if !ok {
			return 0, fmt.Errorf("emitter: unresolved label %d", ins.label)
		}
		return encodeB(int32((target - pos) / 4)), nil
	case kindBCond:
		target, ok := offsets[ins.label]
		if !ok {
			return 0, fmt.Errorf("emitter: unresolved label %d", ins.label)
		}
		return encodeBCond(ins.cond, int32((target-pos)/4)), nil
	case kindBL:
		target, ok := offsets[ins.label]
		if !ok {
			return 0, fmt.Errorf("emitter: unresolved label %d", ins.label)
		}
		return encodeBL(int32((target - pos) / 4)), nil
	case kindBLR:
		return encodeBranchReg(0b01, ins.rn), nil
	case kindBR:
		return encodeBranchReg(0b00, ins.rn), nil
	case kindRet:
		return encodeBranchReg(0b10, 30), nil
	case kindCSet:
		return encodeCSet(ins.rd, ins.cond), nil
	case kindRawWord:
		return ins.raw, nil
	default:
		return 0, fmt.Errorf("emitter: unhandled instruction kind %d", ins.kind)
	}
}
