package decoder

import "github.com/xenoarm/jit64/internal/ir"

// x87 sub-opcode selectors, stored in Instruction.Cond and interpreted by
// the emitter/FPU layer according to Instruction.Cat == CatX87. Grouping by
// escape byte (0xD8-0xDF) and mod field (register-stack vs memory operand)
// mirrors spec.md §4.1's x87 sub-decoder. Exported since engine's dispatch
// layer decodes the same Cond values back out of the packed helper-call
// selector (see emitter.DecodeSel).
const (
	X87Add byte = iota
	X87Mul
	X87Sub
	X87SubR
	X87Div
	X87DivR
	X87Com
	X87ComP
	X87UCom
	X87UComP
	X87ComPP
	X87Fld
	X87Fst
	X87FstP
	X87Fild
	X87Fist
	X87FistP
	X87Fxch
	X87Fchs
	X87Fabs
	X87Ftst
	X87Fxam
	X87Fld1
	X87FldZ
	X87FldL2E
	X87FldL2T
	X87FldPi
	X87FldLg2
	X87FldLn2
	X87Ffree
	X87FldCW
	X87FstCW
	X87FstSW
	X87FnClex
	X87FnInit
	X87FincStp
	X87FdecStp
)

// Transcendental selectors, carried the same way (Cat == CatX87Transcendental).
const (
	X87Sqrt byte = iota
	X87Sin
	X87Cos
	X87Tan
	X87F2xm1
	X87Yl2x
	X87Scale
	X87Prem
	X87RndInt
)

func (d *decoder) decodeX87(escape byte) error {
	m, err := d.fetchModRM()
	if err != nil {
		return err
	}
	mod := modRMMod(m)
	reg := modRMReg(m)
	rm := modRMRM(m)

	if mod == 3 {
		return d.decodeX87RegForm(escape, reg, rm, m)
	}
	return d.decodeX87MemForm(escape, reg)
}

// x87Arith{Pop,Dest} are carried in Cond's high two bits alongside the
// 6-bit arithmetic selector (Add..DivR, all < 0x40): Pop marks the FADDP/
// FSUBP/... family (pop after computing), Dest marks that the result
// writes back to ST(i) rather than ST(0), matching the 0xDC/0xDE encodings
// that put the stack register on the left of the operation instead of the
// accumulator.
const (
	X87ArithPop  = 0x80
	X87ArithDest = 0x40
)

func (d *decoder) emitX87Arith(sel byte, sti ir.Operand, pop, destSti bool) {
	cond := sel
	if pop {
		cond |= X87ArithPop
	}
	if destSti {
		cond |= X87ArithDest
	}
	d.block.Append(ir.Instruction{Op: ir.OpX87Arith, Cat: ir.CatX87, Cond: cond, Operands: []ir.Operand{sti}})
}

func (d *decoder) decodeX87RegForm(escape byte, reg, rm byte, modrm byte) error {
	sti := ir.Imm(int64(rm), ir.F80) // ST(i): a rotating-stack offset, not an allocator vreg
	switch escape {
	case 0xD8:
		sel := [8]byte{X87Add, X87Mul, X87Com, X87ComP, X87Sub, X87SubR, X87Div, X87DivR}[reg]
		d.emitX87Arith(sel, sti, false, false)
	case 0xD9:
		return d.decodeD9RegForm(reg, rm, modrm)
	case 0xDA:
		return d.fail("unimplemented x87 0xDA register form (FCMOVcc)")
	case 0xDB:
		if modrm == 0xE2 {
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FnClex})
			return nil
		}
		if modrm == 0xE3 {
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FnInit})
			return nil
		}
		return d.fail("unimplemented x87 0xDB register form 0x%02X", modrm)
	case 0xDC:
		sel := [8]byte{X87Add, X87Mul, X87Com, X87ComP, X87SubR, X87Sub, X87DivR, X87Div}[reg]
		d.emitX87Arith(sel, sti, false, true)
	case 0xDD:
		switch reg {
		case 0:
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Ffree, Operands: []ir.Operand{sti}})
		case 2:
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87Fst, Operands: []ir.Operand{sti}})
		case 3:
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FstP, Operands: []ir.Operand{sti}})
		case 4:
			d.block.Append(ir.Instruction{Op: ir.OpX87Compare, Cat: ir.CatX87, Cond: X87UCom, Operands: []ir.Operand{sti}})
		case 5:
			d.block.Append(ir.Instruction{Op: ir.OpX87Compare, Cat: ir.CatX87, Cond: X87UComP, Operands: []ir.Operand{sti}})
		default:
			return d.fail("unimplemented x87 0xDD register form reg=%d", reg)
		}
	case 0xDE:
		if modrm == 0xD9 {
			d.block.Append(ir.Instruction{Op: ir.OpX87Compare, Cat: ir.CatX87, Cond: X87ComPP})
			return nil
		}
		sel := [8]byte{X87Add, X87Mul, X87Com, X87ComP, X87SubR, X87Sub, X87DivR, X87Div}[reg]
		d.emitX87Arith(sel, sti, true, true)
	case 0xDF:
		if modrm == 0xE0 {
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FstSW, Operands: []ir.Operand{ir.Reg(ArchEAX, ir.I16)}})
			return nil
		}
		return d.fail("unimplemented x87 0xDF register form 0x%02X", modrm)
	}
	return nil
}

func (d *decoder) decodeD9RegForm(reg, rm byte, modrm byte) error {
	switch modrm {
	case 0xE0:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Fchs})
		return nil
	case 0xE1:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Fabs})
		return nil
	case 0xE4:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Ftst})
		return nil
	case 0xE5:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Fxam})
		return nil
	case 0xE8:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Fld1})
		return nil
	case 0xEA:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FldL2E})
		return nil
	case 0xEB:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FldPi})
		return nil
	case 0xEC:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FldLg2})
		return nil
	case 0xED:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FldLn2})
		return nil
	case 0xEE:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FldZ})
		return nil
	case 0xF0:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87F2xm1})
		return nil
	case 0xF1:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Yl2x})
		return nil
	case 0xF2:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Tan})
		return nil
	case 0xF6:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FdecStp})
		return nil
	case 0xF7:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FincStp})
		return nil
	case 0xF8:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Prem})
		return nil
	case 0xFA:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Sqrt})
		return nil
	case 0xFC:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87RndInt})
		return nil
	case 0xFD:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Scale})
		return nil
	case 0xFE:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Sin})
		return nil
	case 0xFF:
		d.block.Append(ir.Instruction{Op: ir.OpX87Transcendental, Cat: ir.CatX87, Cond: X87Cos})
		return nil
	}
	// FLD ST(i) / FXCH ST(i)
	sti := ir.Imm(int64(rm), ir.F80)
	switch reg {
	case 0:
		d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fld, Operands: []ir.Operand{sti}})
		return nil
	case 1:
		d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87Fxch, Operands: []ir.Operand{sti}})
		return nil
	}
	return d.fail("unimplemented x87 0xD9 register form modrm=0x%02X", modrm)
}

func (d *decoder) decodeX87MemForm(escape byte, reg byte) error {
	switch escape {
	case 0xD8:
		mem, err := d.modRMOperand(ir.F32)
		if err != nil {
			return err
		}
		sel := [8]byte{X87Add, X87Mul, X87Com, X87ComP, X87Sub, X87SubR, X87Div, X87DivR}[reg]
		d.block.Append(ir.Instruction{Op: ir.OpX87Arith, Cat: ir.CatX87, Cond: sel, Operands: []ir.Operand{mem}})
		return nil
	case 0xD9:
		switch reg {
		case 0:
			mem, err := d.modRMOperand(ir.F32)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fld, Operands: []ir.Operand{mem}})
		case 2:
			mem, err := d.modRMOperand(ir.F32)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87Fst, Operands: []ir.Operand{mem}})
		case 3:
			mem, err := d.modRMOperand(ir.F32)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FstP, Operands: []ir.Operand{mem}})
		case 5:
			mem, err := d.modRMOperand(ir.I16)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FldCW, Operands: []ir.Operand{mem}})
		case 7:
			mem, err := d.modRMOperand(ir.I16)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FstCW, Operands: []ir.Operand{mem}})
		default:
			return d.fail("unimplemented x87 0xD9 memory form reg=%d", reg)
		}
		return nil
	case 0xDB:
		switch reg {
		case 0:
			mem, err := d.modRMOperand(ir.I32)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fild, Operands: []ir.Operand{mem}})
		case 3:
			mem, err := d.modRMOperand(ir.I32)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FistP, Operands: []ir.Operand{mem}})
		case 5:
			mem, err := d.modRMOperand(ir.F80)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fld, Operands: []ir.Operand{mem}})
		case 7:
			mem, err := d.modRMOperand(ir.F80)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FstP, Operands: []ir.Operand{mem}})
		default:
			return d.fail("unimplemented x87 0xDB memory form reg=%d", reg)
		}
		return nil
	case 0xDC:
		mem, err := d.modRMOperand(ir.F64)
		if err != nil {
			return err
		}
		sel := [8]byte{X87Add, X87Mul, X87Com, X87ComP, X87Sub, X87SubR, X87Div, X87DivR}[reg]
		d.block.Append(ir.Instruction{Op: ir.OpX87Arith, Cat: ir.CatX87, Cond: sel, Operands: []ir.Operand{mem}})
		return nil
	case 0xDD:
		switch reg {
		case 0:
			mem, err := d.modRMOperand(ir.F64)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fld, Operands: []ir.Operand{mem}})
		case 2:
			mem, err := d.modRMOperand(ir.F64)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87Fst, Operands: []ir.Operand{mem}})
		case 3:
			mem, err := d.modRMOperand(ir.F64)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FstP, Operands: []ir.Operand{mem}})
		case 7:
			mem, err := d.modRMOperand(ir.I16)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Ctrl, Cat: ir.CatX87, Cond: X87FstSW, Operands: []ir.Operand{mem}})
		default:
			return d.fail("unimplemented x87 0xDD memory form reg=%d", reg)
		}
		return nil
	case 0xDF:
		switch reg {
		case 0:
			mem, err := d.modRMOperand(ir.I16)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fild, Operands: []ir.Operand{mem}})
		case 3:
			mem, err := d.modRMOperand(ir.I16)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FistP, Operands: []ir.Operand{mem}})
		case 5:
			mem, err := d.modRMOperand(ir.I64)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Load, Cat: ir.CatX87, Cond: X87Fild, Operands: []ir.Operand{mem}})
		case 7:
			mem, err := d.modRMOperand(ir.I64)
			if err != nil {
				return err
			}
			d.block.Append(ir.Instruction{Op: ir.OpX87Store, Cat: ir.CatX87, Cond: X87FistP, Operands: []ir.Operand{mem}})
		default:
			return d.fail("unimplemented x87 0xDF memory form reg=%d", reg)
		}
		return nil
	case 0xDA, 0xDE:
		return d.fail("unimplemented x87 0x%02X memory form (integer-operand arithmetic)", escape)
	}
	return d.fail("unreachable x87 escape 0x%02X", escape)
}
