package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenoarm/jit64/internal/config"
	"github.com/xenoarm/jit64/internal/memmgr"
	"github.com/xenoarm/jit64/internal/xerr"
)

func newTestEngine(t *testing.T, mem map[uint32]byte) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.CacheSize = 1 << 16
	cb := Callbacks{Callbacks: memmgr.Callbacks{
		ReadBlock: func(addr uint32, buf []byte) {
			for i := range buf {
				buf[i] = mem[addr+uint32(i)]
			}
		},
	}}
	e := New(cfg, cb)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func TestLookup_MissBeforeTranslate(t *testing.T) {
	e := newTestEngine(t, nil)
	_, ok := e.Lookup(0x1000)
	assert.False(t, ok)
}

func TestTranslate_InvalidOpcodeSetsLastError(t *testing.T) {
	// 0x0F 0xFF is not wired into any opcode table in the pack this
	// decoder covers; Decode should reject it rather than silently
	// returning garbage IR.
	mem := map[uint32]byte{0x1000: 0x0F, 0x1001: 0xFF}
	e := newTestEngine(t, mem)

	_, err := e.Translate(0x1000)
	require.Error(t, err)

	lastErr, code := e.LastError()
	assert.Equal(t, err, lastErr)
	assert.Equal(t, xerr.CodeTranslationFailed, code)
}

func TestLastError_NoneBeforeAnyFailure(t *testing.T) {
	e := newTestEngine(t, nil)
	err, code := e.LastError()
	assert.NoError(t, err)
	assert.Equal(t, xerr.CodeNone, code)
}

func TestInvalidateRange_EmptyCacheIsNoop(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.NotPanics(t, func() { e.InvalidateRange(0, 0x1000) })
}
