package vtable

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestNew_InstallsActiveOps(t *testing.T) {
	var gotSel, gotExtra uint64
	ops := Ops{
		X87Op: func(state unsafe.Pointer, sel, extra uint64) uint64 {
			gotSel, gotExtra = sel, extra
			return 7
		},
	}
	New(ops)

	ret := active.X87Op(nil, 42, 99)
	assert.Equal(t, uint64(42), gotSel)
	assert.Equal(t, uint64(99), gotExtra)
	assert.Equal(t, uint64(7), ret)
}

func TestTable_AddrPointsAtFirstSlot(t *testing.T) {
	tbl := New(Ops{})
	assert.Equal(t, unsafe.Pointer(&tbl.slots[0]), tbl.Addr())
}
