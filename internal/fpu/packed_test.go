package fpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPAddB_WrapsPerLane(t *testing.T) {
	// Lane 0: 0xFF + 0x01 wraps to 0x00 within its own byte lane without
	// carrying into lane 1, unlike a plain 64-bit add.
	a := uint64(0x00000000000000FF)
	b := uint64(0x0000000000000001)
	assert.Equal(t, uint64(0x0000000000000100), a+b, "sanity: plain add would carry")
	assert.Equal(t, uint64(0x0000000000000000), PAddB(a, b))
}

func TestPAddB_Basic(t *testing.T) {
	// mm0 = 0x0807060504030201, mm1 = 0x0101010101010101
	mm0 := uint64(0x0807060504030201)
	mm1 := uint64(0x0101010101010101)
	got := PAddB(mm0, mm1)
	want := uint64(0x0908070605040302)
	assert.Equal(t, want, got)
}

func TestPAddW_LaneWidth16(t *testing.T) {
	a := uint64(0x0000FFFF00000001)
	b := uint64(0x0000000100000001)
	got := PAddW(a, b)
	want := uint64(0x0000000000000002)
	assert.Equal(t, want, got)
}

func TestPAddD_LaneWidth32(t *testing.T) {
	a := uint64(0xFFFFFFFF00000001)
	b := uint64(0x0000000100000001)
	got := PAddD(a, b)
	want := uint64(0x0000000000000002)
	assert.Equal(t, want, got)
}

func TestPSubB_WrapsPerLane(t *testing.T) {
	a := uint64(0x0000000000000000)
	b := uint64(0x0000000000000001)
	assert.Equal(t, uint64(0x00000000000000FF), PSubB(a, b))
}

func TestPAndOrXor(t *testing.T) {
	a := uint64(0xF0F0F0F0F0F0F0F0)
	b := uint64(0xFF00FF00FF00FF00)
	assert.Equal(t, a&b, PAnd(a, b))
	assert.Equal(t, a|b, POr(a, b))
	assert.Equal(t, a^b, PXor(a, b))
}

func TestPackedSingle_AddPS(t *testing.T) {
	var dst, src [16]byte
	putLeU32(dst[0:], math.Float32bits(1))
	putLeU32(dst[4:], math.Float32bits(2))
	putLeU32(dst[8:], math.Float32bits(3))
	putLeU32(dst[12:], math.Float32bits(4))
	putLeU32(src[0:], math.Float32bits(10))
	putLeU32(src[4:], math.Float32bits(20))
	putLeU32(src[8:], math.Float32bits(30))
	putLeU32(src[12:], math.Float32bits(40))

	out := PackedSingle(dst, src, FloatAdd)
	assert.Equal(t, float32(11), math.Float32frombits(leU32(out[0:])))
	assert.Equal(t, float32(22), math.Float32frombits(leU32(out[4:])))
	assert.Equal(t, float32(33), math.Float32frombits(leU32(out[8:])))
	assert.Equal(t, float32(44), math.Float32frombits(leU32(out[12:])))
}

func TestPackedDouble_MulPD(t *testing.T) {
	var dst, src [16]byte
	putLeU64(dst[0:], math.Float64bits(2))
	putLeU64(dst[8:], math.Float64bits(3))
	putLeU64(src[0:], math.Float64bits(4))
	putLeU64(src[8:], math.Float64bits(5))

	out := PackedDouble(dst, src, FloatMul)
	assert.Equal(t, float64(8), math.Float64frombits(leU64(out[0:])))
	assert.Equal(t, float64(15), math.Float64frombits(leU64(out[8:])))
}

func TestScalarSingle_OnlyLane0Changes(t *testing.T) {
	var dst, src [16]byte
	putLeU32(dst[0:], math.Float32bits(1))
	putLeU32(dst[4:], math.Float32bits(99))
	putLeU32(src[0:], math.Float32bits(4))

	out := ScalarSingle(dst, src, FloatDiv)
	assert.Equal(t, float32(0.25), math.Float32frombits(leU32(out[0:])))
	assert.Equal(t, float32(99), math.Float32frombits(leU32(out[4:])), "lanes 1-3 must pass through untouched")
}

func TestScalarDouble_OnlyLane0Changes(t *testing.T) {
	var dst, src [16]byte
	putLeU64(dst[0:], math.Float64bits(10))
	putLeU64(dst[8:], math.Float64bits(77))
	putLeU64(src[0:], math.Float64bits(3))

	out := ScalarDouble(dst, src, FloatSub)
	assert.Equal(t, float64(7), math.Float64frombits(leU64(out[0:])))
	assert.Equal(t, float64(77), math.Float64frombits(leU64(out[8:])))
}
