package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/ir"
)

func TestAllocate_X86MappedNeverSpillsAheadOfTemp(t *testing.T) {
	b := ir.NewBlock(0x1000)
	b.NextVReg = 24
	tmp := b.Alloc()
	b.Append(ir.Instruction{
		Op: ir.OpAdd, Cat: ir.CatAluInt,
		Operands: []ir.Operand{ir.Reg(decoder.ArchEAX, ir.I32), ir.Reg(tmp, ir.I32)},
		Def:      ir.Reg(decoder.ArchEAX, ir.I32), HasDef: true,
	})
	b.Append(ir.Instruction{Op: ir.OpJmp, Cat: ir.CatControlFlow, TargetGuest: 0x2000, HasTarget: true})

	res := Allocate(b)
	eax, ok := res.Assignments[decoder.ArchEAX]
	assert.True(t, ok)
	assert.False(t, eax.Spilled, "x86-mapped register should win a physical slot over a low-priority temp")
}

func TestAllocate_FloatVRegGetsNEONNotGPR(t *testing.T) {
	b := ir.NewBlock(0x1000)
	b.NextVReg = 24
	v := b.Alloc()
	b.Append(ir.Instruction{Op: ir.OpSSEMove, Cat: ir.CatSSEFloat,
		Operands: []ir.Operand{ir.Reg(v, ir.V128Q2)}, Def: ir.Reg(v, ir.V128Q2), HasDef: true})
	b.Append(ir.Instruction{Op: ir.OpRet, Cat: ir.CatControlFlow})

	res := Allocate(b)
	a := res.Assignments[v]
	assert.Equal(t, PhysNEON, a.Kind)
}

func TestAllocate_SpillsWhenPoolExhausted(t *testing.T) {
	b := ir.NewBlock(0x1000)
	b.NextVReg = 24
	var vregs []ir.VReg
	for i := 0; i < 40; i++ {
		vregs = append(vregs, b.Alloc())
	}
	for i, v := range vregs {
		def := ir.Reg(v, ir.I32)
		var src ir.Operand
		if i == 0 {
			src = ir.Imm(0, ir.I32)
		} else {
			src = ir.Reg(vregs[i-1], ir.I32)
		}
		b.Append(ir.Instruction{Op: ir.OpAdd, Cat: ir.CatAluInt, Operands: []ir.Operand{src}, Def: def, HasDef: true})
	}
	b.Append(ir.Instruction{Op: ir.OpRet, Cat: ir.CatControlFlow})

	res := Allocate(b)
	spilled := 0
	for _, a := range res.Assignments {
		if a.Spilled {
			spilled++
		}
	}
	assert.Greater(t, spilled, 0, "40 concurrently-live GPR-class vregs must exceed the 26-slot pool")
	assert.Greater(t, res.SpillAreaSize, int32(0))
}

func TestSpillAllocator_AlignsBySize(t *testing.T) {
	s := &spillAllocator{}
	o1 := s.allocateSlot(ir.I8)
	o2 := s.allocateSlot(ir.F80)
	assert.Equal(t, int32(0), o1)
	assert.Equal(t, int32(16), o2, "F80 slot must be 16-byte aligned even after a 1-byte slot")
	assert.Equal(t, int32(32), s.totalSize())
}
