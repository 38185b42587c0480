package decoder

import "github.com/xenoarm/jit64/internal/ir"

// registerControlOps wires unconditional/conditional branches, calls,
// returns, and the LOOP family. Each terminates the block (checked by
// blockEnded after decodeOne returns).
func registerControlOps(t map[byte]opHandler) {
	for i := byte(0); i < 16; i++ {
		cc := i
		t[0x70+cc] = jccShort(cc)
	}
	t[0xEB] = jmpShort
	t[0xE9] = jmpNear
	t[0xE8] = callNear
	t[0xC3] = retNear
	t[0xC2] = retNearImm16

	t[0xE0] = loopCC(loopne)
	t[0xE1] = loopCC(loope)
	t[0xE2] = loopCC(loopUnconditional)
	t[0xE3] = jcxz
}

// registerControl0FOps wires the 0x0F-escaped near Jcc forms (0x80-0x8F).
func registerControl0FOps(t map[byte]opHandler) {
	for i := byte(0); i < 16; i++ {
		cc := i
		t[0x80+cc] = jccNear(cc)
	}
}

func (d *decoder) appendJcc(cond byte, targetTrue, targetFalse uint32) {
	d.block.Append(ir.Instruction{
		Op: ir.OpJcc, Cat: ir.CatControlFlow, Cond: cond,
		TargetGuest: targetTrue, HasTarget: true,
		TargetGuestFalse: targetFalse, HasTargetFalse: true,
	})
}

func jccShort(cond byte) opHandler {
	return func(d *decoder, _ byte) error {
		rel, err := d.fetch8()
		if err != nil {
			return err
		}
		fallthroughAddr := d.startAddr + uint32(d.pos)
		target := uint32(int32(fallthroughAddr) + int32(int8(rel)))
		d.appendJcc(cond, target, fallthroughAddr)
		return nil
	}
}

func jccNear(cond byte) opHandler {
	return func(d *decoder, _ byte) error {
		rel, err := d.fetch32()
		if err != nil {
			return err
		}
		fallthroughAddr := d.startAddr + uint32(d.pos)
		target := uint32(int32(fallthroughAddr) + int32(rel))
		d.appendJcc(cond, target, fallthroughAddr)
		return nil
	}
}

func jmpShort(d *decoder, _ byte) error {
	rel, err := d.fetch8()
	if err != nil {
		return err
	}
	target := uint32(int32(d.startAddr+uint32(d.pos)) + int32(int8(rel)))
	d.block.Append(ir.Instruction{Op: ir.OpJmp, Cat: ir.CatControlFlow, TargetGuest: target, HasTarget: true})
	return nil
}

func jmpNear(d *decoder, _ byte) error {
	rel, err := d.fetch32()
	if err != nil {
		return err
	}
	target := uint32(int32(d.startAddr+uint32(d.pos)) + int32(rel))
	d.block.Append(ir.Instruction{Op: ir.OpJmp, Cat: ir.CatControlFlow, TargetGuest: target, HasTarget: true})
	return nil
}

func callNear(d *decoder, _ byte) error {
	rel, err := d.fetch32()
	if err != nil {
		return err
	}
	retAddr := d.startAddr + uint32(d.pos)
	target := uint32(int32(retAddr) + int32(rel))
	d.block.Append(ir.Instruction{Op: ir.OpCallDirect, Cat: ir.CatControlFlow, TargetGuest: target, HasTarget: true})
	return nil
}

func retNear(d *decoder, _ byte) error {
	d.block.Append(ir.Instruction{Op: ir.OpRet, Cat: ir.CatControlFlow})
	return nil
}

func retNearImm16(d *decoder, _ byte) error {
	if _, err := d.fetch16(); err != nil {
		return err
	}
	d.block.Append(ir.Instruction{Op: ir.OpRet, Cat: ir.CatControlFlow})
	return nil
}

type loopVariant int

const (
	loopUnconditional loopVariant = iota
	loope
	loopne
)

func loopCC(v loopVariant) opHandler {
	return func(d *decoder, _ byte) error {
		rel, err := d.fetch8()
		if err != nil {
			return err
		}
		fallthroughAddr := d.startAddr + uint32(d.pos)
		target := uint32(int32(fallthroughAddr) + int32(int8(rel)))
		d.block.Append(ir.Instruction{
			Op: ir.OpLoop, Cat: ir.CatControlFlow, Cond: byte(v),
			TargetGuest: target, HasTarget: true,
			TargetGuestFalse: fallthroughAddr, HasTargetFalse: true,
		})
		return nil
	}
}

func jcxz(d *decoder, _ byte) error {
	rel, err := d.fetch8()
	if err != nil {
		return err
	}
	fallthroughAddr := d.startAddr + uint32(d.pos)
	target := uint32(int32(fallthroughAddr) + int32(int8(rel)))
	// JECXZ: conditional on ECX==0, modelled as a Jcc with a reserved
	// condition code (see eflags.CondECXZero) rather than EFLAGS.
	d.appendJcc(condECXZero, target, fallthroughAddr)
	return nil
}

// condECXZero is a pseudo condition code outside the architectural
// 0x0..0xF Jcc range, recognised only by the emitter's JCXZ lowering
// (which tests ECX directly instead of materializing EFLAGS).
const condECXZero = 0x10

// CondECXZero exports condECXZero for the emitter's Jcc lowering.
const CondECXZero = condECXZero
