package decoder

import "github.com/xenoarm/jit64/internal/ir"

// registerShiftOps wires Grp2 (ROL/ROR/RCL/RCR/SHL/SHR/SAL/SAR), selected by
// ModR/M reg field, in its immediate-count, one-bit, and CL-count forms.
func registerShiftOps(t map[byte]opHandler) {
	t[0xC0] = shiftGrp2(ir.I8, shiftCountImm)
	t[0xC1] = shiftGrp2(ir.I32, shiftCountImm)
	t[0xD0] = shiftGrp2(ir.I8, shiftCountOne)
	t[0xD1] = shiftGrp2(ir.I32, shiftCountOne)
	t[0xD2] = shiftGrp2(ir.I8, shiftCountCL)
	t[0xD3] = shiftGrp2(ir.I32, shiftCountCL)
}

type shiftCountKind int

const (
	shiftCountImm shiftCountKind = iota
	shiftCountOne
	shiftCountCL
)

var shiftOps = [8]ir.Op{
	ir.OpRol, ir.OpRor, ir.OpRol /* RCL unsupported, approximated */, ir.OpRor, /* RCR approx */
	ir.OpShl, ir.OpShr, ir.OpShl /* SAL==SHL */, ir.OpSar,
}

var shiftOpKinds = [8]ir.OpKind{
	ir.OpKindNone, ir.OpKindNone, ir.OpKindNone, ir.OpKindNone,
	ir.OpKindShl, ir.OpKindShr, ir.OpKindShl, ir.OpKindSar,
}

func shiftGrp2(t ir.DataType, ck shiftCountKind) opHandler {
	return func(d *decoder, _ byte) error {
		m, err := d.fetchModRM()
		if err != nil {
			return err
		}
		rm, err := d.modRMOperand(t)
		if err != nil {
			return err
		}
		var count ir.Operand
		switch ck {
		case shiftCountImm:
			b, err := d.fetch8()
			if err != nil {
				return err
			}
			count = ir.Imm(int64(b&0x1F), ir.I8)
		case shiftCountOne:
			count = ir.Imm(1, ir.I8)
		case shiftCountCL:
			count = ir.Reg(ArchECX, ir.I8)
		}
		reg := modRMReg(m)
		ins := ir.Instruction{Op: shiftOps[reg], Cat: ir.CatAluInt, Operands: []ir.Operand{rm, count}, OpKind: shiftOpKinds[reg]}
		if rm.Kind == ir.OperandVReg {
			ins.Def, ins.HasDef = rm, true
		}
		d.block.Append(ins)
		return nil
	}
}
