package eflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xenoarm/jit64/internal/ir"
)

func TestMaterialize_AddOverflow(t *testing.T) {
	s := NewState()
	// 0x7FFFFFFF + 1 = 0x80000000: signed overflow, CF clear.
	s.StoreOpState(0x80000000, 0x7FFFFFFF, 1, ir.OpKindAdd)
	assert.True(t, s.Evaluate(CCO))
	assert.False(t, s.Evaluate(CCB))
	assert.True(t, s.Evaluate(CCS))
}

func TestMaterialize_SubZero(t *testing.T) {
	s := NewState()
	s.StoreOpState(0, 5, 5, ir.OpKindSub)
	assert.True(t, s.Evaluate(CCZ))
	assert.False(t, s.Evaluate(CCB))
}

func TestMaterialize_LogicalClearsCFOF(t *testing.T) {
	s := NewState()
	s.StoreOpState(0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF, ir.OpKindAnd)
	assert.False(t, s.Evaluate(CCO))
	assert.False(t, s.Evaluate(CCB))
	assert.True(t, s.Evaluate(CCS))
}

func TestMaterialize_ShiftCountOneDefinesOF(t *testing.T) {
	s := NewState()
	// SHL 0x40000000, 1 -> 0x80000000: CF = bit shifted out (0), OF = MSB(result) XOR CF.
	s.StoreOpState(0x80000000, 0x40000000, 1, ir.OpKindShl)
	assert.False(t, s.Evaluate(CCB))
	assert.True(t, s.Evaluate(CCO))
}

func TestMaterialize_ShiftCountGreaterThanOneClearsOF(t *testing.T) {
	s := NewState()
	s.StoreOpState(0x10000000, 0x04000000, 2, ir.OpKindShl)
	assert.False(t, s.Evaluate(CCO), "OF is architecturally undefined for shift count>1; this corpus clears it")
}

func TestEvaluate_LazyUntilMaterialized(t *testing.T) {
	s := NewState()
	s.StoreOpState(0, 1, 1, ir.OpKindXor)
	raw := s.Raw()
	assert.NotZero(t, raw&(1<<bitZF))
}

func TestSetRaw_DiscardsLazyState(t *testing.T) {
	s := NewState()
	s.StoreOpState(0, 1, 1, ir.OpKindSub)
	s.SetRaw(0x2)
	assert.False(t, s.Evaluate(CCZ))
}
