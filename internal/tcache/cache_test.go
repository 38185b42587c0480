package tcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func blockWithHost(guestAddr, guestSize uint32, hostAddr uintptr, code []byte, exits []Exit) *Block {
	return &Block{
		GuestAddr:     guestAddr,
		GuestSize:     guestSize,
		HostCode:      code,
		HostAddr:      hostAddr,
		Exits:         exits,
		IncomingLinks: map[uint32]struct{}{},
	}
}

func TestLookupStore_RoundTrip(t *testing.T) {
	c := New(0x1000, nil)
	b := blockWithHost(0x100, 4, 0x2000, make([]byte, 4), nil)
	c.Store(b)
	assert.Same(t, b, c.Lookup(0x100))
}

func TestStore_OverwriteInvalidatesOld(t *testing.T) {
	c := New(0x1000, nil)
	first := blockWithHost(0x100, 4, 0x2000, make([]byte, 4), nil)
	c.Store(first)
	second := blockWithHost(0x100, 4, 0x3000, make([]byte, 4), nil)
	c.Store(second)
	assert.Same(t, second, c.Lookup(0x100))
}

func TestChain_PatchesDeterministicExitInRange(t *testing.T) {
	c := New(0x1000, nil)
	target := blockWithHost(0x200, 4, 0x4000, make([]byte, 4), nil)
	c.Store(target)

	src := blockWithHost(0x100, 4, 0x3000, make([]byte, 4), []Exit{
		{Kind: ExitJmp, PatchOffset: 0, TargetGuestAddr: 0x200},
	})
	c.Store(src)

	assert.NoError(t, c.Chain(src))
	assert.True(t, src.Exits[0].Patched)
	assert.Contains(t, target.IncomingLinks, uint32(0x100))
	assert.True(t, src.Linked)
}

func TestChain_IsIdempotent(t *testing.T) {
	c := New(0x1000, nil)
	target := blockWithHost(0x200, 4, 0x4000, make([]byte, 4), nil)
	c.Store(target)
	src := blockWithHost(0x100, 4, 0x3000, make([]byte, 4), []Exit{
		{Kind: ExitJmp, PatchOffset: 0, TargetGuestAddr: 0x200},
	})
	c.Store(src)

	assert.NoError(t, c.Chain(src))
	before := append([]byte(nil), src.HostCode...)
	assert.NoError(t, c.Chain(src))
	assert.Equal(t, before, src.HostCode)
}

func TestInvalidate_ClearsIncomingLinksAndUnpatches(t *testing.T) {
	c := New(0x1000, nil)
	target := blockWithHost(0x200, 4, 0x4000, make([]byte, 4), nil)
	c.Store(target)
	src := blockWithHost(0x100, 4, 0x3000, make([]byte, 4), []Exit{
		{Kind: ExitJmp, PatchOffset: 0, TargetGuestAddr: 0x200},
	})
	c.Store(src)
	assert.NoError(t, c.Chain(src))

	c.Invalidate(0x200)
	assert.Nil(t, c.Lookup(0x200))
	assert.False(t, src.Exits[0].Patched)
}

func TestInvalidateRange_OverlapOnly(t *testing.T) {
	c := New(0x1000, nil)
	inside := blockWithHost(0x100, 0x10, 0x3000, make([]byte, 4), nil)
	outside := blockWithHost(0x200, 0x10, 0x4000, make([]byte, 4), nil)
	c.Store(inside)
	c.Store(outside)

	c.InvalidateRange(0x100, 0x110)
	assert.Nil(t, c.Lookup(0x100))
	assert.NotNil(t, c.Lookup(0x200))
}

func TestInvalidateRange_SecondCallIsNoOp(t *testing.T) {
	c := New(0x1000, nil)
	c.Store(blockWithHost(0x100, 0x10, 0x3000, make([]byte, 4), nil))
	c.InvalidateRange(0x100, 0x110)
	c.InvalidateRange(0x100, 0x110) // must not panic or touch anything
	assert.Equal(t, 0, c.ChainedBlockCount())
}

func TestTranslate_SecondCallReusesStoredBlock(t *testing.T) {
	c := New(0x1000, nil)
	calls := 0
	translate := func() (*Block, error) {
		calls++
		return blockWithHost(0x100, 4, 0x3000, make([]byte, 4), nil), nil
	}

	b1, err1 := c.Translate(0x100, translate)
	b2, err2 := c.Translate(0x100, translate)
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Same(t, b1, b2)
	assert.Equal(t, 1, calls)
}
