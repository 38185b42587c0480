package engine

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/xenoarm/jit64/internal/decoder"
)

func TestNewGuestState_FPUReset(t *testing.T) {
	gs := NewGuestState()
	assert.Equal(t, uint16(0x037F), gs.FPU.FCW)
	assert.True(t, gs.FPU.IsEmpty(0))
}

func TestGPRAt_NamedAccessorsAgree(t *testing.T) {
	gs := NewGuestState()
	gs.SetEAX(0x11111111)
	gs.SetEDI(0x77777777)
	assert.Equal(t, uint32(0x11111111), gs.GPRAt(int(decoder.ArchEAX)))
	assert.Equal(t, uint32(0x77777777), gs.GPRAt(int(decoder.ArchEDI)))
	assert.Equal(t, uint32(0x11111111), gs.EAX())
	assert.Equal(t, uint32(0x77777777), gs.EDI())
}

func TestSetGPRAt_WrapsIndexModulo8(t *testing.T) {
	gs := NewGuestState()
	gs.SetGPRAt(8, 0xAAAAAAAA) // wraps to index 0 (EAX)
	assert.Equal(t, uint32(0xAAAAAAAA), gs.EAX())
}

func TestEIPEFLAGSRoundTrip(t *testing.T) {
	gs := NewGuestState()
	gs.SetEIP(0x401000)
	gs.SetEFLAGS(0x202)
	assert.Equal(t, uint32(0x401000), gs.GetEIP())
	assert.Equal(t, uint32(0x202), gs.GetEFLAGS())
}

func TestSTMMXMMForwarding(t *testing.T) {
	gs := NewGuestState()
	gs.SetST(0, 3.5)
	assert.Equal(t, 3.5, gs.ST(0))

	gs.SetMM(1, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), gs.MM(1))

	var v [16]byte
	v[0] = 0xAB
	gs.SetXMM(2, v)
	assert.Equal(t, v, gs.XMM(2))
}

func TestAsGuestState_CastRoundTrip(t *testing.T) {
	gs := NewGuestState()
	gs.SetEAX(42)
	back := AsGuestState(unsafe.Pointer(gs))
	assert.Equal(t, uint32(42), back.EAX())
}
