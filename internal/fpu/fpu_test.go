package fpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func almostEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	d := math.Abs(a - b)
	return d <= 1e-9 || d <= math.Abs(b)*1e-9
}

func TestReset_DefaultControlWord(t *testing.T) {
	s := New()
	assert.Equal(t, uint16(0x037F), s.FCW)
	assert.Equal(t, uint16(0), s.FSW)
	assert.True(t, s.IsEmpty(0))
}

func TestPushPopStack(t *testing.T) {
	s := New()
	s.Push(1.5)
	s.Push(2.5)
	assert.True(t, almostEqual(s.ST(0), 2.5))
	assert.True(t, almostEqual(s.ST(1), 1.5))
	s.Pop()
	assert.True(t, almostEqual(s.ST(0), 1.5))
	assert.True(t, s.IsEmpty(7), "popped slot should read back empty in FPU mode")
}

func TestEnterMMX_AllTagsValidTopZero(t *testing.T) {
	s := New()
	s.Push(3.0) // leaves one valid, rest empty, TOP != 0
	s.EnterMMX()
	for i := 0; i < 8; i++ {
		assert.False(t, s.IsEmpty(i), "MMX entry must mark every physical slot valid")
	}
	assert.Equal(t, 0, s.top())
}

func TestMMXWriteThenEnterFPU_RederivesTags(t *testing.T) {
	s := New()
	s.WriteMM(0, 0)
	s.WriteMM(1, math.Float64bits(1.0))
	s.EnterFPU()
	assert.True(t, s.IsEmpty(0) == false) // zero classifies as Zero tag, not Empty
	assert.Equal(t, ModeFPU, s.Mode())
}

func TestWriteMMSwitchesMode(t *testing.T) {
	s := New()
	assert.Equal(t, ModeFPU, s.Mode())
	s.WriteMM(2, 0x1122334455667788)
	assert.Equal(t, ModeMMX, s.Mode())
	assert.Equal(t, uint64(0x1122334455667788), s.ReadMM(2))
}

func TestEmmsReturnsToFPUMode(t *testing.T) {
	s := New()
	s.WriteMM(0, 1)
	s.Emms()
	assert.Equal(t, ModeFPU, s.Mode())
}

func TestXMMReadWriteRoundTrip(t *testing.T) {
	s := New()
	var v [16]byte
	for i := range v {
		v[i] = byte(i + 1)
	}
	s.WriteXMM(3, v)
	assert.Equal(t, v, s.ReadXMM(3))
}

func TestTan_OutOfDomainSetsC2(t *testing.T) {
	r := Tan(fptanDomainLimit * 2)
	assert.True(t, r.C2Set)
}

func TestTan_InDomainComputesValue(t *testing.T) {
	r := Tan(math.Pi / 4)
	assert.True(t, almostEqual(r.Value, 1.0))
	assert.False(t, r.C2Set)
}

func TestSin_LargeMagnitudeUsesRangeReduction(t *testing.T) {
	// sin(1e10) via naive math.Sin vs reduced path should still land near
	// the true value within loose tolerance (libm itself range-reduces).
	r := Sin(1e10)
	assert.True(t, almostEqual(r.Value, math.Sin(1e10)))
}

func TestRndInt_RoundingModes(t *testing.T) {
	assert.True(t, almostEqual(RndInt(2.5, 0x0000).Value, 2.0)) // nearest-even
	assert.True(t, almostEqual(RndInt(2.5, 0x0400).Value, 2.0)) // round down
	assert.True(t, almostEqual(RndInt(2.5, 0x0800).Value, 3.0)) // round up
	assert.True(t, almostEqual(RndInt(2.9, 0x0C00).Value, 2.0)) // chop
}
