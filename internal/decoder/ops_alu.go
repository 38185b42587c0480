package decoder

import "github.com/xenoarm/jit64/internal/ir"

// registerAluOps wires the integer ALU opcodes: MOV-adjacent arithmetic
// (Grp1, register-form, accumulator-immediate forms), INC/DEC, TEST, and the
// Grp3 NOT/NEG/MUL/IMUL/DIV/IDIV family. The grouping mirrors a classic
// table-driven x86 core's opGrp1/opGrp3 switches (dispatch on the ModR/M reg
// field), generalised to emit IR instead of mutating registers in place.
func registerAluOps(t map[byte]opHandler) {
	// ADD/OR/ADC/SBB/AND/SUB/XOR/CMP, register<->register/memory forms.
	// Encoding families: 0x00-0x3D carries op*8+form in the opcode byte.
	for i := byte(0); i < 8; i++ {
		op := aluOpKinds[i]
		base := i * 8
		t[base+0x00] = makeAluRM(op, ir.I8, false)  // op Eb, Gb
		t[base+0x01] = makeAluRM(op, ir.I32, false) // op Ev, Gv
		t[base+0x02] = makeAluRM(op, ir.I8, true)   // op Gb, Eb
		t[base+0x03] = makeAluRM(op, ir.I32, true)  // op Gv, Ev
		t[base+0x04] = makeAluAccImm(op, ir.I8)      // op AL, Ib
		t[base+0x05] = makeAluAccImm(op, ir.I32)     // op eAX, Iz
	}

	t[0x80] = grp1EbIb
	t[0x81] = grp1EvIz
	t[0x83] = grp1EvIb

	t[0x84] = testEbGb
	t[0x85] = testEvGv
	t[0xA8] = testAlIb
	t[0xA9] = testEaxIz

	t[0xF6] = grp3Eb
	t[0xF7] = grp3Ev

	// INC/DEC reg, short form (0x40-0x4F), and Grp5 (0xFE/0xFF) for mem forms.
	for i := byte(0); i < 8; i++ {
		reg := i
		t[0x40+reg] = incDecShort(reg, ir.OpInc)
		t[0x48+reg] = incDecShort(reg, ir.OpDec)
	}
	t[0xFE] = grp5IncDecByte
	t[0xFF] = grp5IncDecOrCall
}

var aluOpKinds = [8]ir.OpKind{
	ir.OpKindAdd, ir.OpKindOr, ir.OpKindAdc, ir.OpKindSbb,
	ir.OpKindAnd, ir.OpKindSub, ir.OpKindXor, ir.OpKindCmp,
}

func opKindToOp(k ir.OpKind) ir.Op {
	switch k {
	case ir.OpKindAdd:
		return ir.OpAdd
	case ir.OpKindOr:
		return ir.OpOr
	case ir.OpKindAdc:
		return ir.OpAdc
	case ir.OpKindSbb:
		return ir.OpSbb
	case ir.OpKindAnd:
		return ir.OpAnd
	case ir.OpKindSub:
		return ir.OpSub
	case ir.OpKindXor:
		return ir.OpXor
	case ir.OpKindCmp:
		return ir.OpCmp
	default:
		return ir.OpNop
	}
}

// emitAlu appends one ALU instruction. dst is Operands[0]; for a register
// destination it is also the Def. CMP/TEST never define dst.
func (d *decoder) emitAlu(opKind ir.OpKind, dst, src ir.Operand) {
	op := opKindToOp(opKind)
	ins := ir.Instruction{Op: op, Cat: ir.CatAluInt, Operands: []ir.Operand{dst, src}, OpKind: opKind}
	if dst.Kind == ir.OperandVReg && opKind != ir.OpKindCmp {
		ins.Def = dst
		ins.HasDef = true
	}
	d.block.Append(ins)
}

func makeAluRM(opKind ir.OpKind, t ir.DataType, regIsDst bool) opHandler {
	return func(d *decoder, _ byte) error {
		rm, err := d.modRMOperand(t)
		if err != nil {
			return err
		}
		reg, err := d.regOperand(t)
		if err != nil {
			return err
		}
		if regIsDst {
			d.emitAlu(opKind, reg, rm)
		} else {
			d.emitAlu(opKind, rm, reg)
		}
		return nil
	}
}

func makeAluAccImm(opKind ir.OpKind, t ir.DataType) opHandler {
	return func(d *decoder, _ byte) error {
		var imm int64
		var err error
		if t == ir.I8 {
			b, e := d.fetch8()
			imm, err = int64(b), e
		} else {
			v, e := d.fetch32()
			imm, err = int64(int32(v)), e
		}
		if err != nil {
			return err
		}
		d.emitAlu(opKind, ir.Reg(ArchEAX, t), ir.Imm(imm, t))
		return nil
	}
}

func grp1EbIb(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I8)
	if err != nil {
		return err
	}
	b, err := d.fetch8()
	if err != nil {
		return err
	}
	d.emitAlu(aluOpKinds[modRMReg(m)], rm, ir.Imm(int64(b), ir.I8))
	return nil
}

func grp1EvIz(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	v, err := d.fetch32()
	if err != nil {
		return err
	}
	d.emitAlu(aluOpKinds[modRMReg(m)], rm, ir.Imm(int64(int32(v)), ir.I32))
	return nil
}

func grp1EvIb(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	b, err := d.fetch8()
	if err != nil {
		return err
	}
	d.emitAlu(aluOpKinds[modRMReg(m)], rm, ir.Imm(int64(int8(b)), ir.I32))
	return nil
}

func testEbGb(d *decoder, _ byte) error {
	rm, err := d.modRMOperand(ir.I8)
	if err != nil {
		return err
	}
	reg, err := d.regOperand(ir.I8)
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpTest, Cat: ir.CatAluInt, Operands: []ir.Operand{rm, reg}, OpKind: ir.OpKindAnd})
	return nil
}

func testEvGv(d *decoder, _ byte) error {
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	reg, err := d.regOperand(ir.I32)
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpTest, Cat: ir.CatAluInt, Operands: []ir.Operand{rm, reg}, OpKind: ir.OpKindAnd})
	return nil
}

func testAlIb(d *decoder, _ byte) error {
	b, err := d.fetch8()
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpTest, Cat: ir.CatAluInt, Operands: []ir.Operand{ir.Reg(ArchEAX, ir.I8), ir.Imm(int64(b), ir.I8)}, OpKind: ir.OpKindAnd})
	return nil
}

func testEaxIz(d *decoder, _ byte) error {
	v, err := d.fetch32()
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpTest, Cat: ir.CatAluInt, Operands: []ir.Operand{ir.Reg(ArchEAX, ir.I32), ir.Imm(int64(int32(v)), ir.I32)}, OpKind: ir.OpKindAnd})
	return nil
}

// Grp3: NOT/NEG/MUL/IMUL/DIV/IDIV selected by ModR/M reg field.
func grp3Eb(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I8)
	if err != nil {
		return err
	}
	return d.emitGrp3(modRMReg(m), rm, ir.I8)
}

func grp3Ev(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	return d.emitGrp3(modRMReg(m), rm, ir.I32)
}

func (d *decoder) emitGrp3(reg byte, rm ir.Operand, t ir.DataType) error {
	switch reg {
	case 0, 1: // TEST Eb/Ev, Ib/Iz
		var imm int64
		if t == ir.I8 {
			b, err := d.fetch8()
			if err != nil {
				return err
			}
			imm = int64(b)
		} else {
			v, err := d.fetch32()
			if err != nil {
				return err
			}
			imm = int64(int32(v))
		}
		d.block.Append(ir.Instruction{Op: ir.OpTest, Cat: ir.CatAluInt, Operands: []ir.Operand{rm, ir.Imm(imm, t)}, OpKind: ir.OpKindAnd})
	case 2: // NOT
		ins := ir.Instruction{Op: ir.OpNot, Cat: ir.CatAluInt, Operands: []ir.Operand{rm}}
		if rm.Kind == ir.OperandVReg {
			ins.Def, ins.HasDef = rm, true
		}
		d.block.Append(ins)
	case 3: // NEG
		ins := ir.Instruction{Op: ir.OpNeg, Cat: ir.CatAluInt, Operands: []ir.Operand{rm}, OpKind: ir.OpKindNeg}
		if rm.Kind == ir.OperandVReg {
			ins.Def, ins.HasDef = rm, true
		}
		d.block.Append(ins)
	case 4: // MUL
		d.block.Append(ir.Instruction{Op: ir.OpMul, Cat: ir.CatAluInt, Operands: []ir.Operand{ir.Reg(ArchEAX, t), rm}})
	case 5: // IMUL
		d.block.Append(ir.Instruction{Op: ir.OpIMul, Cat: ir.CatAluInt, Operands: []ir.Operand{ir.Reg(ArchEAX, t), rm}})
	case 6: // DIV
		d.block.Append(ir.Instruction{Op: ir.OpDiv, Cat: ir.CatAluInt, Operands: []ir.Operand{ir.Reg(ArchEAX, t), rm}})
	case 7: // IDIV
		d.block.Append(ir.Instruction{Op: ir.OpIDiv, Cat: ir.CatAluInt, Operands: []ir.Operand{ir.Reg(ArchEAX, t), rm}})
	}
	return nil
}

func incDecShort(reg byte, op ir.Op) opHandler {
	return func(d *decoder, _ byte) error {
		v := ir.Reg(archRegVReg(reg), ir.I32)
		kind := ir.OpKindInc
		if op == ir.OpDec {
			kind = ir.OpKindDec
		}
		d.block.Append(ir.Instruction{Op: op, Cat: ir.CatAluInt, Operands: []ir.Operand{v}, Def: v, HasDef: true, OpKind: kind})
		return nil
	}
}

func grp5IncDecByte(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	rm, err := d.modRMOperand(ir.I8)
	if err != nil {
		return err
	}
	return d.emitIncDecGrp5(modRMReg(m), rm)
}

func grp5IncDecOrCall(d *decoder, _ byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	reg := modRMReg(m)
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	if reg == 2 { // CALL Ev (indirect)
		d.block.Append(ir.Instruction{Op: ir.OpCallIndirect, Cat: ir.CatControlFlow, Operands: []ir.Operand{rm}})
		return nil
	}
	return d.emitIncDecGrp5(reg, rm)
}

func (d *decoder) emitIncDecGrp5(reg byte, rm ir.Operand) error {
	var op ir.Op
	var kind ir.OpKind
	switch reg {
	case 0:
		op, kind = ir.OpInc, ir.OpKindInc
	case 1:
		op, kind = ir.OpDec, ir.OpKindDec
	default:
		return d.fail("unsupported Grp5 reg field %d", reg)
	}
	ins := ir.Instruction{Op: op, Cat: ir.CatAluInt, Operands: []ir.Operand{rm}, OpKind: kind}
	if rm.Kind == ir.OperandVReg {
		ins.Def, ins.HasDef = rm, true
	}
	d.block.Append(ins)
	return nil
}
