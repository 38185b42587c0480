package decoder

import "github.com/xenoarm/jit64/internal/ir"

// registerDataOps wires MOV forms, PUSH/POP, LEA, and NOP.
func registerDataOps(t map[byte]opHandler) {
	t[0x88] = movRM(ir.I8, false)  // MOV Eb, Gb
	t[0x89] = movRM(ir.I32, false) // MOV Ev, Gv
	t[0x8A] = movRM(ir.I8, true)   // MOV Gb, Eb
	t[0x8B] = movRM(ir.I32, true)  // MOV Gv, Ev
	t[0x8D] = lea
	t[0xA1] = movEaxMoffs
	t[0xA3] = movMoffsEax
	t[0xC6] = movEbIb
	t[0xC7] = movEvIz
	t[0x90] = nop

	for i := byte(0); i < 8; i++ {
		reg := i
		t[0xB0+reg] = movRegImm8(reg)
		t[0xB8+reg] = movRegImm32(reg)
		t[0x50+reg] = push(reg)
		t[0x58+reg] = pop(reg)
	}
	t[0x68] = pushImm32
	t[0x6A] = pushImm8
	t[0x8F] = popRM
}

func movRM(t ir.DataType, regIsDst bool) opHandler {
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
			d.emitMov(reg, rm)
		} else {
			d.emitMov(rm, reg)
		}
		return nil
	}
}

func (d *decoder) emitMov(dst, src ir.Operand) {
	ins := ir.Instruction{Op: ir.OpMov, Cat: ir.CatLoadStore, Operands: []ir.Operand{dst, src}}
	if dst.Kind == ir.OperandVReg {
		ins.Def, ins.HasDef = dst, true
	}
	d.block.Append(ins)
}

func lea(d *decoder, _ byte) error {
	mem, err := d.modRMOperand(ir.PTR)
	if err != nil {
		return err
	}
	if mem.Kind != ir.OperandMem {
		return d.fail("LEA requires a memory r/m operand")
	}
	reg, err := d.regOperand(ir.PTR)
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpLea, Cat: ir.CatLoadStore, Operands: []ir.Operand{reg, mem}, Def: reg, HasDef: true})
	return nil
}

func movEaxMoffs(d *decoder, _ byte) error {
	addr, err := d.fetch32()
	if err != nil {
		return err
	}
	mem := ir.Mem(ir.MemRef{Base: ir.VRegNone, Index: ir.VRegNone, Disp: int32(addr)}, ir.I32)
	d.emitMov(ir.Reg(ArchEAX, ir.I32), mem)
	return nil
}

func movMoffsEax(d *decoder, _ byte) error {
	addr, err := d.fetch32()
	if err != nil {
		return err
	}
	mem := ir.Mem(ir.MemRef{Base: ir.VRegNone, Index: ir.VRegNone, Disp: int32(addr)}, ir.I32)
	d.emitMov(mem, ir.Reg(ArchEAX, ir.I32))
	return nil
}

func movEbIb(d *decoder, _ byte) error {
	rm, err := d.modRMOperand(ir.I8)
	if err != nil {
		return err
	}
	b, err := d.fetch8()
	if err != nil {
		return err
	}
	d.emitMov(rm, ir.Imm(int64(b), ir.I8))
	return nil
}

func movEvIz(d *decoder, _ byte) error {
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	v, err := d.fetch32()
	if err != nil {
		return err
	}
	d.emitMov(rm, ir.Imm(int64(int32(v)), ir.I32))
	return nil
}

func movRegImm8(reg byte) opHandler {
	return func(d *decoder, _ byte) error {
		b, err := d.fetch8()
		if err != nil {
			return err
		}
		d.emitMov(ir.Reg(archRegVReg(reg), ir.I8), ir.Imm(int64(b), ir.I8))
		return nil
	}
}

func movRegImm32(reg byte) opHandler {
	return func(d *decoder, _ byte) error {
		v, err := d.fetch32()
		if err != nil {
			return err
		}
		d.emitMov(ir.Reg(archRegVReg(reg), ir.I32), ir.Imm(int64(int32(v)), ir.I32))
		return nil
	}
}

func nop(d *decoder, _ byte) error { return nil }

func push(reg byte) opHandler {
	return func(d *decoder, _ byte) error {
		d.block.Append(ir.Instruction{Op: ir.OpStore, Cat: ir.CatLoadStore,
			Operands: []ir.Operand{ir.Reg(archRegVReg(reg), ir.I32)}})
		return nil
	}
}

func pop(reg byte) opHandler {
	return func(d *decoder, _ byte) error {
		v := ir.Reg(archRegVReg(reg), ir.I32)
		d.block.Append(ir.Instruction{Op: ir.OpLoad, Cat: ir.CatLoadStore, Operands: []ir.Operand{v}, Def: v, HasDef: true})
		return nil
	}
}

func pushImm32(d *decoder, _ byte) error {
	v, err := d.fetch32()
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpStore, Cat: ir.CatLoadStore, Operands: []ir.Operand{ir.Imm(int64(int32(v)), ir.I32)}})
	return nil
}

func pushImm8(d *decoder, _ byte) error {
	b, err := d.fetch8()
	if err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpStore, Cat: ir.CatLoadStore, Operands: []ir.Operand{ir.Imm(int64(int8(b)), ir.I32)}})
	return nil
}

func popRM(d *decoder, _ byte) error {
	rm, err := d.modRMOperand(ir.I32)
	if err != nil {
		return err
	}
	ins := ir.Instruction{Op: ir.OpLoad, Cat: ir.CatLoadStore, Operands: []ir.Operand{rm}}
	if rm.Kind == ir.OperandVReg {
		ins.Def, ins.HasDef = rm, true
	}
	d.block.Append(ins)
	return nil
}
