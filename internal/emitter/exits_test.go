package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenoarm/jit64/internal/ir"
	"github.com/xenoarm/jit64/internal/regalloc"
)

func TestLowerBlock_UnconditionalJmp_OneExitSpec(t *testing.T) {
	block := ir.NewBlock(0x1000)
	block.Append(ir.Instruction{Op: ir.OpJmp, Cat: ir.CatControlFlow, TargetGuest: 0x2000, HasTarget: true})

	alloc := regalloc.Allocate(block)
	buf, specs, err := LowerBlock(block, alloc)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, ir.ExitUnconditional, specs[0].Kind)
	assert.Equal(t, uint32(0x2000), specs[0].TargetGuestAddr)

	code, sites, err := buf.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, code)
	site, ok := sites[specs[0].Tag]
	require.True(t, ok, "the jmp's tag must have a resolved patch site")
	assert.False(t, site.IsCond)
}

func TestLowerBlock_Jcc_TwoIndependentExitSpecs(t *testing.T) {
	block := ir.NewBlock(0x1000)
	block.Append(ir.Instruction{
		Op: ir.OpJcc, Cat: ir.CatControlFlow, Cond: 0x04, // JE
		TargetGuest: 0x2000, TargetGuestFalse: 0x1002,
		HasTarget: true, HasTargetFalse: true,
	})

	alloc := regalloc.Allocate(block)
	buf, specs, err := LowerBlock(block, alloc)
	require.NoError(t, err)
	require.Len(t, specs, 2, "a conditional branch must record one spec per arm")

	var sawTrue, sawFalse bool
	for _, s := range specs {
		switch s.Kind {
		case ir.ExitConditionalTrue:
			sawTrue = true
			assert.Equal(t, uint32(0x2000), s.TargetGuestAddr)
		case ir.ExitConditionalFalse:
			sawFalse = true
			assert.Equal(t, uint32(0x1002), s.TargetGuestAddr)
		}
	}
	assert.True(t, sawTrue)
	assert.True(t, sawFalse)

	_, sites, err := buf.Encode()
	require.NoError(t, err)
	for _, s := range specs {
		site, ok := sites[s.Tag]
		require.True(t, ok)
		if s.Kind == ir.ExitConditionalTrue {
			assert.True(t, site.IsCond, "the taken arm's site must be the B.cond instruction")
		} else {
			assert.False(t, site.IsCond, "the not-taken arm's site must be a plain B")
		}
	}
}

func TestLowerBlock_Ret_IndirectTagIsNegativeOne(t *testing.T) {
	block := ir.NewBlock(0x1000)
	block.Append(ir.Instruction{Op: ir.OpRet, Cat: ir.CatControlFlow})

	alloc := regalloc.Allocate(block)
	_, specs, err := LowerBlock(block, alloc)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, ir.ExitIndirect, specs[0].Kind)
	assert.Equal(t, -1, specs[0].Tag)
}

func TestDecodeSel_RoundTripsPackedFields(t *testing.T) {
	sel := uint64(0x2A) | uint64(0x07)<<8 | uint64(0x03)<<16 | uint64(0x05)<<24 | uint64(0xFF)<<32 | SelExtraMem
	d := DecodeSel(sel)
	assert.Equal(t, byte(0x2A), d.Cond)
	assert.Equal(t, byte(0x07), d.Op)
	assert.Equal(t, byte(0x03), d.DataType)
	assert.Equal(t, byte(0x05), d.DstIdx)
	assert.Equal(t, byte(0xFF), d.RmIdx)
	assert.True(t, d.HasMem)
}

func TestDecodeSel_NoMemFlagClear(t *testing.T) {
	sel := uint64(0x01) | uint64(0x02)<<8
	d := DecodeSel(sel)
	assert.False(t, d.HasMem)
}
