package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlloc_WritesAndCommits(t *testing.T) {
	a := New(4096)
	w, err := a.Alloc(16)
	assert.NoError(t, err)
	copy(w.Bytes(), []byte{0xDE, 0xAD, 0xBE, 0xEF})
	assert.NoError(t, w.Commit())
	assert.NotZero(t, w.Addr())
	assert.NoError(t, a.Reset())
}

func TestAlloc_GrowsANewRegionWhenFull(t *testing.T) {
	a := New(64)
	_, err := a.Alloc(64)
	assert.NoError(t, err)
	assert.Len(t, a.regions, 1)

	_, err = a.Alloc(8)
	assert.NoError(t, err)
	assert.Len(t, a.regions, 2)
	assert.NoError(t, a.Reset())
}

func TestAlloc_RejectsNonPositiveSize(t *testing.T) {
	a := New(4096)
	_, err := a.Alloc(0)
	assert.Error(t, err)
}
