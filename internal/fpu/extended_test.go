package fpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestF80RoundTrip_Simple(t *testing.T) {
	for _, v := range []float64{1.0, -1.0, 0.5, 123456.789, -0.000001} {
		b := F80ToBytes(v)
		got := F80FromBytes(b)
		assert.InDelta(t, v, got, math.Abs(v)*1e-15+1e-300, "round trip for %v", v)
	}
}

func TestF80ToBytes_Zero(t *testing.T) {
	b := F80ToBytes(0)
	assert.Equal(t, float64(0), F80FromBytes(b))
}

func TestF80ToBytes_NegativeZero(t *testing.T) {
	b := F80ToBytes(math.Copysign(0, -1))
	got := F80FromBytes(b)
	assert.Equal(t, float64(0), got)
	assert.True(t, math.Signbit(got))
}

func TestF80ToBytes_Infinity(t *testing.T) {
	b := F80ToBytes(math.Inf(1))
	assert.True(t, math.IsInf(F80FromBytes(b), 1))

	b = F80ToBytes(math.Inf(-1))
	assert.True(t, math.IsInf(F80FromBytes(b), -1))
}

func TestF80ToBytes_NaN(t *testing.T) {
	b := F80ToBytes(math.NaN())
	assert.True(t, math.IsNaN(F80FromBytes(b)))
}

func TestF80FromBytes_SignBit(t *testing.T) {
	b := F80ToBytes(-42.5)
	got := F80FromBytes(b)
	assert.True(t, got < 0)
	assert.InDelta(t, -42.5, got, 1e-9)
}
