package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBlock_RootedAtEntryAddr(t *testing.T) {
	b := NewBlock(0x4000)
	assert.Equal(t, uint32(0x4000), b.EntryGuestAddr)
	assert.Empty(t, b.Instructions)
}

func TestBlock_AllocReturnsIncreasingVRegs(t *testing.T) {
	b := NewBlock(0)
	first := b.Alloc()
	second := b.Alloc()
	assert.Less(t, first, second)
	assert.Equal(t, second+1, b.NextVReg)
}

func TestBlock_AppendGrowsInstructions(t *testing.T) {
	b := NewBlock(0)
	b.Append(Instruction{Op: OpMov})
	b.Append(Instruction{Op: OpRet})
	assert.Len(t, b.Instructions, 2)
	assert.Equal(t, OpRet, b.Instructions[1].Op)
}

func TestOperandConstructors(t *testing.T) {
	reg := Reg(VReg(3), I32)
	assert.Equal(t, OperandVReg, reg.Kind)
	assert.Equal(t, VReg(3), reg.VReg)

	imm := Imm(42, I32)
	assert.Equal(t, OperandImm, imm.Kind)
	assert.EqualValues(t, 42, imm.Imm)

	mem := Mem(MemRef{Base: VReg(1), Scale: 4, Disp: 8}, I32)
	assert.Equal(t, OperandMem, mem.Kind)
	assert.EqualValues(t, 4, mem.Mem.Scale)
}

func TestVRegNone_IsDistinctFromAnyRealVReg(t *testing.T) {
	assert.NotEqual(t, VRegNone, VReg(0))
	assert.NotEqual(t, VRegNone, VReg(23))
}
