package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenoarm/jit64/internal/ir"
)

func TestDecode_MovRegImm32ThenRet(t *testing.T) {
	// MOV EAX, 0x11223344; RET
	code := []byte{0xB8, 0x44, 0x33, 0x22, 0x11, 0xC3}

	fn, consumed, err := Decode(code, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(code)), consumed)

	block := fn.Entry
	require.Len(t, block.Instructions, 2)
	assert.Equal(t, ir.OpMov, block.Instructions[0].Op)
	assert.Equal(t, ir.OpRet, block.Instructions[1].Op)
}

func TestDecode_AluRegRegProducesFlagSettingAdd(t *testing.T) {
	// ADD EAX, ECX; RET
	code := []byte{0x01, 0xC8, 0xC3}

	fn, consumed, err := Decode(code, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), consumed)
	require.Len(t, fn.Entry.Instructions, 2)
	assert.Equal(t, ir.CatAluInt, fn.Entry.Instructions[0].Cat)
}

func TestDecode_BlockEndsAtFirstControlFlowInstruction(t *testing.T) {
	// RET; MOV EAX, 0 -- the second instruction must never be decoded,
	// since a block ends at its first control-flow instruction.
	code := []byte{0xC3, 0xB8, 0x00, 0x00, 0x00, 0x00}

	fn, consumed, err := Decode(code, 0x3000)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), consumed)
	assert.Len(t, fn.Entry.Instructions, 1)
}

func TestDecode_TruncatedInstructionFails(t *testing.T) {
	// MOV EAX, imm32 with only two of the four immediate bytes present.
	code := []byte{0xB8, 0x01, 0x02}

	_, _, err := Decode(code, 0x4000)
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestDecode_UnimplementedOpcodeFails(t *testing.T) {
	code := []byte{0x0F, 0xFF}
	_, _, err := Decode(code, 0x5000)
	require.Error(t, err)
}

func TestMMVReg_XMMVReg_DisjointFromGPRRange(t *testing.T) {
	assert.Greater(t, MMVReg(0), ArchEDI)
	assert.Greater(t, XMMVReg(0), MMVReg(7))
}
