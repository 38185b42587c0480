package decoder

import "github.com/xenoarm/jit64/internal/ir"

// MMX/SSE sub-op selectors carried in Instruction.Cond, mirroring the x87
// convention in ops_x87.go. Exported since engine's dispatch layer decodes
// the same Cond values back out of the packed helper-call selector.
const (
	VecAdd byte = iota
	VecSub
	VecMul
	VecDiv
	VecAnd
	VecOr
	VecXor
	VecMove
)

func mmRegSpace(i byte) ir.VReg  { return MMVReg(i) }
func xmmRegSpace(i byte) ir.VReg { return XMMVReg(i) }

// registerMMXSSEOps wires the 0x0F-escaped MMX packed-integer opcodes and
// the SSE scalar/packed float opcodes (mandatory-prefix dispatch handled by
// inspecting d.prefixOpSize/d.prefixRep at decode time, since those prefixes
// were already consumed before the 0x0F byte).
func registerMMXSSEOps(t map[byte]opHandler) {
	t[0x77] = emms

	// MMX packed integer arithmetic: lane width depends on the family; this
	// covers the common PADDB/PADDW/PADDD/PSUBB/PSUBW/PSUBD/PAND/POR/PXOR
	// set, matching the "MMX packed-integer forms" semantic category rather
	// than the full opcode matrix (out of scope per spec.md §1).
	t[0xFC] = mmxArith(VecAdd, ir.V64B8) // PADDB
	t[0xFD] = mmxArith(VecAdd, ir.V64W4) // PADDW
	t[0xFE] = mmxArith(VecAdd, ir.V64D2) // PADDD
	t[0xF8] = mmxArith(VecSub, ir.V64B8) // PSUBB
	t[0xF9] = mmxArith(VecSub, ir.V64W4) // PSUBW
	t[0xFA] = mmxArith(VecSub, ir.V64D2) // PSUBD
	t[0xDB] = mmxArith(VecAnd, ir.V64D2) // PAND
	t[0xEB] = mmxArith(VecOr, ir.V64D2)  // POR
	t[0xEF] = mmxArith(VecXor, ir.V64D2) // PXOR
	t[0x6E] = movdToMMX
	t[0x7E] = movdFromMMX
	t[0x6F] = mmxMove // MOVQ mm, mm/m64

	// SSE: packed/scalar single/double float arithmetic and moves. Mandatory
	// prefix selects lane shape: none=V128 single (4x f32), 0x66=V128 double
	// (2x f64), 0xF3=scalar single, 0xF2=scalar double.
	t[0x58] = sseArith(VecAdd)
	t[0x59] = sseArith(VecMul)
	t[0x5C] = sseArith(VecSub)
	t[0x5E] = sseArith(VecDiv)
	t[0x10] = sseMove(true)
	t[0x11] = sseMove(false)
}

func emms(d *decoder, _ byte) error {
	d.block.Append(ir.Instruction{Op: ir.OpMMXEmms, Cat: ir.CatMMX})
	return nil
}

func mmxArith(sel byte, t ir.DataType) opHandler {
	return func(d *decoder, _ byte) error {
		m, err := d.fetchModRM()
		if err != nil {
			return err
		}
		rm, err := d.modRMOperandSpace(t, mmRegSpace)
		if err != nil {
			return err
		}
		dst := ir.Reg(MMVReg(modRMReg(m)), t)
		d.block.Append(ir.Instruction{Op: ir.OpMMXArith, Cat: ir.CatMMX, Cond: sel,
			Operands: []ir.Operand{dst, rm}, Def: dst, HasDef: true})
		return nil
	}
}

// MMX move sub-forms, carried in Instruction.Cond the same way vec* is:
// MOVQ and the two MOVD directions all share ir.OpMMXMove/Cat, and the
// dispatch side otherwise can't tell a 64-bit mm<-mm/m64 move from a
// 32-bit mm<-GPR/m32 move once both are flattened into a selector.
const (
	MovMMQ       byte = iota // MOVQ mm, mm/m64
	MovMMDToMM               // MOVD mm, r/m32 (zero-extended into the mm register)
	MovMMDFromMM             // MOVD r/m32, mm (low 32 bits of the mm register)
)

func mmxMove(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperandSpace(ir.V64D2, mmRegSpace)
	if err != nil {
		return err
	}
	dst := ir.Reg(MMVReg(modRMReg(m)), ir.V64D2)
	d.block.Append(ir.Instruction{Op: ir.OpMMXMove, Cat: ir.CatMMX, Cond: MovMMQ,
		Operands: []ir.Operand{dst, rm}, Def: dst, HasDef: true})
	return nil
}

// movdToMMX / movdFromMMX implement MOVD mm, r/m32 and MOVD r/m32, mm: the
// non-mm operand always addresses the GPR/memory space.
func movdToMMX(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	dst := ir.Reg(MMVReg(modRMReg(m)), ir.V64D2)
	d.block.Append(ir.Instruction{Op: ir.OpMMXMove, Cat: ir.CatMMX, Cond: MovMMDToMM,
		Operands: []ir.Operand{dst, rm}, Def: dst, HasDef: true})
	return nil
}

func movdFromMMX(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	src := ir.Reg(MMVReg(modRMReg(m)), ir.V64D2)
	ins := ir.Instruction{Op: ir.OpMMXMove, Cat: ir.CatMMX, Cond: MovMMDFromMM, Operands: []ir.Operand{rm, src}}
	if rm.Kind == ir.OperandVReg {
		ins.Def, ins.HasDef = rm, true
	}
	d.block.Append(ins)
	return nil
}

func (d *decoder) sseLaneType() ir.DataType {
	switch d.prefixRep {
	case 1: // F3
		return ir.F32
	case 2: // F2
		return ir.F64
	}
	if d.prefixOpSize {
		return ir.V128D4 // 2x f64 packed
	}
	return ir.V128Q2 // 4x f32 packed, reusing the V128 quad-lane tag for packed-single
}

func sseArith(sel byte) opHandler {
	return func(d *decoder, _ byte) error {
		t := d.sseLaneType()
		m, err := d.fetchModRM()
		if err != nil {
			return err
		}
		rm, err := d.modRMOperandSpace(t, xmmRegSpace)
		if err != nil {
			return err
		}
		dst := ir.Reg(XMMVReg(modRMReg(m)), t)
		d.block.Append(ir.Instruction{Op: ir.OpSSEArithFloat, Cat: ir.CatSSEFloat, Cond: sel,
			Operands: []ir.Operand{dst, rm}, Def: dst, HasDef: true})
		return nil
	}
}

// SSE move direction, carried in Cond the same way MovMM* disambiguates
// MMX's move forms: the packed helper-call selector can't otherwise tell
// "load dst(reg), rm" from "store rm, src(reg)" apart when both operands
// happen to be registers.
const (
	SSEMoveLoad byte = iota
	SSEMoveStore
)

func sseMove(loadForm bool) opHandler {
	return func(d *decoder, _ byte) error {
		t := d.sseLaneType()
		m, err := d.fetchModRM()
		if err != nil {
			return err
		}
		rm, err := d.modRMOperandSpace(t, xmmRegSpace)
		if err != nil {
			return err
		}
		reg := ir.Reg(XMMVReg(modRMReg(m)), t)
		if loadForm {
			d.block.Append(ir.Instruction{Op: ir.OpSSEMove, Cat: ir.CatSSEFloat, Cond: SSEMoveLoad,
				Operands: []ir.Operand{reg, rm}, Def: reg, HasDef: true})
		} else {
			ins := ir.Instruction{Op: ir.OpSSEMove, Cat: ir.CatSSEFloat, Cond: SSEMoveStore, Operands: []ir.Operand{rm, reg}}
			if rm.Kind == ir.OperandVReg {
				ins.Def, ins.HasDef = rm, true
			}
			d.block.Append(ins)
		}
		return nil
	}
}
