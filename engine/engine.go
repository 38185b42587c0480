// Package engine is the public facade over the translation pipeline,
// translation cache, memory manager and executable arena: the single
// entry point a host embedder links against (SPEC_FULL.md §4.8/§6/§7).
// It mirrors the shape of translation_cache.cpp's Engine class in
// original_source -- one struct owning every subsystem, constructed once
// at startup and driven through Translate/Execute from the host's
// dispatch loop.
package engine

import (
	"sync"
	"unsafe"

	"github.com/xenoarm/jit64/internal/arena"
	"github.com/xenoarm/jit64/internal/config"
	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/emitter"
	"github.com/xenoarm/jit64/internal/ir"
	"github.com/xenoarm/jit64/internal/logging"
	"github.com/xenoarm/jit64/internal/memmgr"
	"github.com/xenoarm/jit64/internal/regalloc"
	"github.com/xenoarm/jit64/internal/tcache"
	"github.com/xenoarm/jit64/internal/vtable"
	"github.com/xenoarm/jit64/internal/xerr"
)

// Callbacks is the full host-provided table: memory access plus the
// logging and guest-exception hooks memmgr.Callbacks doesn't need to
// know about.
type Callbacks struct {
	memmgr.Callbacks
	GuestException func(vector uint32, errorCode uint32)
}

// Engine owns every subsystem. Concurrent Translate/Execute calls from
// multiple host threads are safe once guest-state access is externally
// serialized per logical CPU (SPEC_FULL.md §5's single-guest-execution-
// thread contract) -- the cache and memory manager each lock their own
// state, and the Engine's mu serializes allocation from the arena, which
// does no locking of its own.
type Engine struct {
	cfg   config.Config
	log   logging.Logger
	arena *arena.Arena
	cache *tcache.Cache
	mem   *memmgr.Manager
	vt    *vtable.Table
	cb    Callbacks

	mu      sync.Mutex
	lastErr error
}

// dispatcherStubAddr is the sentinel host address patched into an exit's
// branch while it is unchained: it always routes back into the Go-side
// dispatch loop via Translate/Execute rather than into generated code, so
// an unlinked exit can never jump into garbage.
const dispatcherStubAddr = 0

// maxDecodeWindow bounds how many guest bytes a single translation
// request reads ahead of the entry address. No supported x86 instruction
// sequence this translator handles approaches this; the decoder trims to
// the bytes it actually consumed once it's done.
const maxDecodeWindow = 256

// New builds an Engine from cfg and cb. cfg should already have passed
// Validate.
func New(cfg config.Config, cb Callbacks) *Engine {
	log := logging.New(cfg.LogLevelValue())
	e := &Engine{cfg: cfg, log: log, arena: arena.New(cfg.CacheSize), cb: cb}
	e.cache = tcache.New(dispatcherStubAddr, log)
	e.mem = memmgr.New(cfg.PageSize, e.cache, cb.Callbacks, cfg.ConservativeMemory, log)
	e.vt = vtable.New(vtable.Ops{
		X87Op:       e.dispatchX87,
		MMXOp:       e.dispatchMMX,
		SSEOp:       e.dispatchSSE,
		LookupBlock: e.dispatchLookupBlock,
	})
	return e
}

// Shutdown releases the executable arena's backing mappings. The Engine
// must not be used afterwards.
func (e *Engine) Shutdown() error {
	return e.arena.Reset()
}

// Translate returns the host entry address for guestAddr, decoding and
// emitting a fresh block on a cache miss (deduplicated across concurrent
// callers by the cache's singleflight group).
func (e *Engine) Translate(guestAddr uint32) (uintptr, error) {
	block, err := e.cache.Translate(guestAddr, func() (*tcache.Block, error) {
		return e.translateOne(guestAddr)
	})
	if err != nil {
		e.setLastError(err)
		return 0, err
	}
	return block.HostAddr, nil
}

func (e *Engine) translateOne(guestAddr uint32) (*tcache.Block, error) {
	code := make([]byte, maxDecodeWindow)
	e.mem.ReadBlock(guestAddr, code)

	fn, consumed, err := decoder.Decode(code, guestAddr)
	if err != nil {
		return nil, &xerr.DecodeError{Addr: guestAddr, Reason: err.Error()}
	}
	alloc := regalloc.Allocate(fn.Entry)
	buf, specs, err := emitter.LowerBlock(fn.Entry, alloc)
	if err != nil {
		return nil, &xerr.EmitError{GuestAddr: guestAddr, Reason: err.Error()}
	}
	hostCode, sites, err := buf.Encode()
	if err != nil {
		return nil, &xerr.EmitError{GuestAddr: guestAddr, Reason: err.Error()}
	}

	e.mu.Lock()
	block, err := tcache.NewBlockFromArena(e.arena, guestAddr, consumed, hostCode, buildExits(specs, sites))
	e.mu.Unlock()
	if err != nil {
		return nil, &xerr.ArenaError{Reason: err.Error()}
	}
	e.mem.RegisterCodeMemory(guestAddr, consumed)
	e.cache.Store(block)
	if err := e.cache.Chain(block); err != nil {
		e.log.Warn("chain failed", "guest_addr", guestAddr, "err", err)
	}
	return block, nil
}

// buildExits zips LowerBlock's per-exit metadata with Encode's tag->offset
// map into the tcache.Exit values Chain patches. A conditional branch
// produces two independent ExitSpecs (true/false), each with its own
// patchable site, rather than trying to cram both targets into a single
// tcache.Exit.
func buildExits(specs []emitter.ExitSpec, sites map[int]emitter.ExitSite) []tcache.Exit {
	exits := make([]tcache.Exit, 0, len(specs))
	for _, spec := range specs {
		switch spec.Kind {
		case ir.ExitUnconditional, ir.ExitConditionalFalse:
			site := sites[spec.Tag]
			exits = append(exits, tcache.Exit{Kind: tcache.ExitJmp, PatchOffset: site.Offset, TargetGuestAddr: spec.TargetGuestAddr})
		case ir.ExitConditionalTrue:
			site := sites[spec.Tag]
			exits = append(exits, tcache.Exit{Kind: tcache.ExitBrCond, PatchOffset: site.Offset, Cond: site.Cond, TargetGuestAddr: spec.TargetGuestAddr})
		case ir.ExitFallthrough:
			site := sites[spec.Tag]
			exits = append(exits, tcache.Exit{Kind: tcache.ExitFallthrough, PatchOffset: site.Offset, TargetGuestAddr: spec.TargetGuestAddr})
		case ir.ExitReturn:
			exits = append(exits, tcache.Exit{Kind: tcache.ExitReturn})
		default: // ir.ExitIndirect: no patchable branch, Tag is always -1
			exits = append(exits, tcache.Exit{Kind: tcache.ExitIndirect})
		}
	}
	return exits
}

// Execute runs the host code at hostEntry with the given guest state
// pointer and returns the next guest address.
func (e *Engine) Execute(hostEntry uintptr, state unsafe.Pointer) uint32 {
	return emitter.Execute(hostEntry, state, e.vt.Addr())
}

// Run drives the fetch-translate-execute loop starting at entryGuestAddr.
// shouldContinue is consulted after each executed block with the guest
// address it exited to; returning false stops the loop. A nil
// shouldContinue runs forever (the embedder is expected to stop the host
// thread externally in that case).
func (e *Engine) Run(entryGuestAddr uint32, state unsafe.Pointer, shouldContinue func(next uint32) bool) error {
	next := entryGuestAddr
	for {
		hostAddr, err := e.Translate(next)
		if err != nil {
			return err
		}
		next = e.Execute(hostAddr, state)
		if shouldContinue != nil && !shouldContinue(next) {
			return nil
		}
	}
}

// Lookup reports whether guestAddr already has a translated, cached
// block, without triggering translation on a miss.
func (e *Engine) Lookup(guestAddr uint32) (uintptr, bool) {
	b := e.cache.Lookup(guestAddr)
	if b == nil {
		return 0, false
	}
	return b.HostAddr, true
}

// InvalidateRange forwards to the translation cache, dropping any cached
// blocks whose guest range overlaps [lo, hi).
func (e *Engine) InvalidateRange(lo, hi uint32) {
	e.cache.InvalidateRange(lo, hi)
}

// NotifyMemoryModified tells the memory manager that a host-side write it
// didn't mediate itself (e.g. DMA) touched guest memory, so any
// overlapping code pages get invalidated.
func (e *Engine) NotifyMemoryModified(addr, size uint32) {
	e.mem.NotifyMemoryModified(addr, size)
}

// RegisterCodeMemory marks [addr, addr+size) as containing translated
// code, write-protecting it for self-modifying-code detection.
func (e *Engine) RegisterCodeMemory(addr, size uint32) {
	e.mem.RegisterCodeMemory(addr, size)
}

// HandleProtectionFault lets the host forward a write-protection fault it
// caught for a page the engine might have marked read-only; see memmgr's
// doc comment for why there's no Go-side signal handler.
func (e *Engine) HandleProtectionFault(addr uint32) bool {
	return e.mem.HandleProtectionFault(addr)
}

// InsertBarrier emits the named memory/instruction barrier immediately
// from Go, for host-side code wrapping Execute calls -- generated blocks
// already bake in their own barriers per the memory manager's
// guarded-write sequence.
func (e *Engine) InsertBarrier(kind memmgr.BarrierKind) {
	e.mem.InsertBarrier(kind)
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err
}

// LastError returns the most recently recorded translation/execution
// error and its stable code, per spec.md §7's non-negative/negative
// status-code contract.
func (e *Engine) LastError() (error, xerr.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		return nil, xerr.CodeNone
	}
	return e.lastErr, xerr.CodeOf(e.lastErr)
}

func (e *Engine) dispatchLookupBlock(state unsafe.Pointer, guestAddr uint64) uint64 {
	host, err := e.Translate(uint32(guestAddr))
	if err != nil {
		e.setLastError(err)
		return 0
	}
	return uint64(host)
}
