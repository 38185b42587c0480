//go:build !arm64

package vtable

// Off arm64 there is no generated code to BLR into these stubs; New still
// works (tests build a Table and never execute through it), it just can't
// resolve a real callable address.
func stubAddr(fn func()) uintptr { return 0 }

var (
	dispatchX87Stub    = func() {}
	dispatchMMXStub    = func() {}
	dispatchSSEStub    = func() {}
	dispatchLookupStub = func() {}
)
