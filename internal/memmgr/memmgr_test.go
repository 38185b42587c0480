package memmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeInvalidator struct {
	ranges [][2]uint32
}

func (f *fakeInvalidator) InvalidateRange(lo, hi uint32) {
	f.ranges = append(f.ranges, [2]uint32{lo, hi})
}

func TestRegisterCodeMemory_StripsWritePermission(t *testing.T) {
	inv := &fakeInvalidator{}
	m := New(4096, inv, Callbacks{}, false, nil)
	m.RegisterCodeMemory(0x1000, 16)

	m.mu.Lock()
	p := m.pages[0x1000]
	m.mu.Unlock()
	assert.True(t, p.ContainsCode)
	assert.Equal(t, ProtRead, p.Protection)
}

func TestWriteU32_ToCodePageInvalidatesAndRestoresProtection(t *testing.T) {
	inv := &fakeInvalidator{}
	var written uint32
	cb := Callbacks{WriteU32: func(addr uint32, v uint32) { written = v }}
	m := New(4096, inv, cb, false, nil)
	m.RegisterCodeMemory(0x1000, 4)

	m.WriteU32(0x1000, 0xAABBCCDD)

	assert.Equal(t, uint32(0xAABBCCDD), written)
	assert.Len(t, inv.ranges, 1)
	assert.Equal(t, uint32(0x1000), inv.ranges[0][0])

	m.mu.Lock()
	p := m.pages[0x1000]
	m.mu.Unlock()
	assert.Equal(t, ProtRead, p.Protection) // restored to its pre-SMC value
	assert.True(t, p.Dirty)
}

func TestWriteU8_ToDataPageDoesNotInvalidate(t *testing.T) {
	inv := &fakeInvalidator{}
	var written uint8
	cb := Callbacks{WriteU8: func(addr uint32, v uint8) { written = v }}
	m := New(4096, inv, cb, false, nil)

	m.WriteU8(0x2000, 0x42)
	assert.Equal(t, uint8(0x42), written)
	assert.Empty(t, inv.ranges)
}

func TestHandleProtectionFault_CodePageHandled(t *testing.T) {
	inv := &fakeInvalidator{}
	m := New(4096, inv, Callbacks{}, false, nil)
	m.RegisterCodeMemory(0x1000, 4)

	handled := m.HandleProtectionFault(0x1000)
	assert.True(t, handled)
	assert.Len(t, inv.ranges, 1)
}

func TestHandleProtectionFault_NonCodePageForwarded(t *testing.T) {
	inv := &fakeInvalidator{}
	m := New(4096, inv, Callbacks{}, false, nil)

	handled := m.HandleProtectionFault(0x5000)
	assert.False(t, handled)
	assert.Empty(t, inv.ranges)
}

func TestWriteBlock_StraddlingPagesInvalidatesBoth(t *testing.T) {
	inv := &fakeInvalidator{}
	cb := Callbacks{WriteBlock: func(addr uint32, buf []byte) {}}
	m := New(4096, inv, cb, false, nil)
	m.RegisterCodeMemory(0x1000, 4096)
	m.RegisterCodeMemory(0x2000, 4096)

	buf := make([]byte, 8)
	m.WriteBlock(0x1FFC, buf) // straddles the 0x1000 and 0x2000 pages
	assert.Len(t, inv.ranges, 2)
}
