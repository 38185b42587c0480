// Package tcache implements C8, the translation cache: a fingerprint
// (guest entry address) keyed map of translated blocks, direct block
// chaining, and cascaded invalidation, grounded in
// original_source/src/translation_cache/translation_cache.cpp.
package tcache

import (
	"sync"

	"github.com/xenoarm/jit64/internal/arena"
	"github.com/xenoarm/jit64/internal/emitter"
	"github.com/xenoarm/jit64/internal/logging"
	"golang.org/x/sync/singleflight"
)

// ExitKind tags one control-flow exit's shape (spec.md §3's "Translated
// block" data model).
type ExitKind int

const (
	ExitJmp ExitKind = iota
	ExitBrCond
	ExitFallthrough
	ExitIndirect
	ExitReturn
)

// deterministic reports whether this exit kind is a candidate for direct
// chaining (spec.md §4.6: "indirect and return exits never patch").
func (k ExitKind) deterministic() bool {
	return k == ExitJmp || k == ExitBrCond || k == ExitFallthrough
}

// Exit records one control-flow exit of a translated block: its kind, the
// byte offset of its patch site within HostCode, and up to two target
// guest addresses (true/false for a conditional).
type Exit struct {
	Kind             ExitKind
	PatchOffset      int
	Cond             byte // AArch64 condition, meaningful only for ExitBrCond
	TargetGuestAddr  uint32
	TargetGuestAddrFalse uint32
	Patched          bool
}

// Block is one translated block: its guest range, host bytes (backed by
// the executable arena), and the chaining metadata spec.md §3 requires.
// IncomingLinks is keyed by caller guest address rather than holding block
// pointers directly, per §9's "arena indexed by a stable id" design note —
// this cache's stable id already is the guest address.
type Block struct {
	GuestAddr     uint32
	GuestSize     uint32
	HostCode      []byte
	HostAddr      uintptr
	Exits         []Exit
	IncomingLinks map[uint32]struct{}
	Linked        bool
}

func newBlock(guestAddr uint32, guestSize uint32, w *arena.Writer, exits []Exit) *Block {
	return &Block{
		GuestAddr:     guestAddr,
		GuestSize:     guestSize,
		HostCode:      w.Bytes(),
		HostAddr:      w.Addr(),
		Exits:         exits,
		IncomingLinks: map[uint32]struct{}{},
	}
}

// Cache is the fingerprint -> block map plus its chaining graph. It is
// safe for concurrent lookup/invalidate from the SMC fault handler's host
// thread while the single execution thread calls Translate/Execute (spec.md
// §5's lock-ordering contract: page map before TC, always honoured by
// keeping the TC's own lock entirely internal to this type).
type Cache struct {
	mu     sync.Mutex
	blocks map[uint32]*Block

	dispatcherStubAddr uintptr
	log                logging.Logger
	group              singleflight.Group
}

// New creates an empty cache. dispatcherStubAddr is the host address an
// unchained deterministic exit branches to — the short routine that looks
// a guest address up in this same cache and translates on miss.
func New(dispatcherStubAddr uintptr, log logging.Logger) *Cache {
	if log == nil {
		log = logging.Nop{}
	}
	return &Cache{blocks: map[uint32]*Block{}, dispatcherStubAddr: dispatcherStubAddr, log: log}
}

// Lookup returns the block translated for guestAddr, or nil if none.
func (c *Cache) Lookup(guestAddr uint32) *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[guestAddr]
}

// Store inserts block, overwriting and invalidating any pre-existing
// block at the same guest address (spec.md §4.6).
func (c *Cache) Store(block *Block) {
	if block == nil {
		c.log.Error("attempted to store a nil translated block")
		return
	}
	c.mu.Lock()
	_, exists := c.blocks[block.GuestAddr]
	c.mu.Unlock()
	if exists {
		c.log.Warn("overwriting existing translated block", "guest_addr", block.GuestAddr)
		c.Invalidate(block.GuestAddr)
	}
	c.mu.Lock()
	c.blocks[block.GuestAddr] = block
	c.mu.Unlock()
}

// Translate deduplicates concurrent translation attempts for the same
// guest address (SPEC_FULL.md §4.6: the façade may be re-entered for the
// same miss from the normal dispatch path and, transiently, from an SMC
// invalidation retry) via golang.org/x/sync/singleflight, then delegates
// to translateFn and stores the result.
func (c *Cache) Translate(guestAddr uint32, translateFn func() (*Block, error)) (*Block, error) {
	if b := c.Lookup(guestAddr); b != nil {
		return b, nil
	}
	key := singleflightKey(guestAddr)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if b := c.Lookup(guestAddr); b != nil {
			return b, nil
		}
		b, err := translateFn()
		if err != nil {
			return nil, err
		}
		c.Store(b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Block), nil
}

func singleflightKey(guestAddr uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = hexDigits[(guestAddr>>(4*i))&0xF]
	}
	return string(buf)
}

// Chain iterates block's deterministic exits and, for each whose target is
// already translated and not yet patched, rewrites the exit's branch site
// to jump straight to the target's host entry (spec.md §4.6). Chaining is
// idempotent: a second call finds every matching exit already Patched and
// introduces no new patches.
func (c *Cache) Chain(block *Block) error {
	if block == nil {
		return nil
	}
	for i := range block.Exits {
		exit := &block.Exits[i]
		if !exit.Kind.deterministic() || exit.Patched {
			continue
		}
		if err := c.chainExit(block, exit, exit.TargetGuestAddr, false); err != nil {
			return err
		}
		if exit.Kind == ExitBrCond {
			if err := c.chainExit(block, exit, exit.TargetGuestAddrFalse, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cache) chainExit(block *Block, exit *Exit, targetGuestAddr uint32, isFalsePath bool) error {
	target := c.Lookup(targetGuestAddr)
	if target == nil {
		return nil
	}
	siteAddr := block.HostAddr + uintptr(exit.PatchOffset)
	if err := emitter.PatchDirectBranch(block.HostCode, exit.PatchOffset, siteAddr, target.HostAddr, exit.Cond, exit.Kind == ExitBrCond); err != nil {
		c.log.Debug("chain skipped, target out of branch range", "from", block.GuestAddr, "to", targetGuestAddr, "err", err)
		return nil
	}
	if !isFalsePath {
		exit.Patched = true
	}
	c.mu.Lock()
	target.IncomingLinks[block.GuestAddr] = struct{}{}
	block.Linked = true
	c.mu.Unlock()
	c.log.Debug("chained block", "from", block.GuestAddr, "to", targetGuestAddr)
	return nil
}

// Unchain reverts every patched exit of block back to the dispatcher stub
// and removes block from every target's incoming links.
func (c *Cache) Unchain(block *Block) {
	if block == nil {
		return
	}
	for i := range block.Exits {
		exit := &block.Exits[i]
		if !exit.Patched {
			continue
		}
		c.unpatchExit(block, exit)
		targets := []uint32{exit.TargetGuestAddr}
		if exit.Kind == ExitBrCond {
			targets = append(targets, exit.TargetGuestAddrFalse)
		}
		c.mu.Lock()
		for _, addr := range targets {
			if target := c.blocks[addr]; target != nil {
				delete(target.IncomingLinks, block.GuestAddr)
			}
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	incoming := make([]uint32, 0, len(block.IncomingLinks))
	for addr := range block.IncomingLinks {
		incoming = append(incoming, addr)
	}
	block.IncomingLinks = map[uint32]struct{}{}
	block.Linked = false
	c.mu.Unlock()

	for _, callerAddr := range incoming {
		caller := c.Lookup(callerAddr)
		if caller == nil {
			continue
		}
		for i := range caller.Exits {
			e := &caller.Exits[i]
			if e.TargetGuestAddr == block.GuestAddr || (e.Kind == ExitBrCond && e.TargetGuestAddrFalse == block.GuestAddr) {
				c.unpatchExit(caller, e)
			}
		}
	}
}

func (c *Cache) unpatchExit(block *Block, exit *Exit) {
	siteAddr := block.HostAddr + uintptr(exit.PatchOffset)
	if err := emitter.PatchDirectBranch(block.HostCode, exit.PatchOffset, siteAddr, c.dispatcherStubAddr, exit.Cond, exit.Kind == ExitBrCond); err != nil {
		c.log.Error("failed to unpatch exit back to dispatcher stub", "guest_addr", block.GuestAddr, "err", err)
	}
	exit.Patched = false
}

// Invalidate breaks every chain to and from the block at guestAddr, then
// removes it from the cache (spec.md §4.6: unchain + remove + drop).
func (c *Cache) Invalidate(guestAddr uint32) {
	block := c.Lookup(guestAddr)
	if block == nil {
		return
	}
	c.Unchain(block)
	c.mu.Lock()
	delete(c.blocks, guestAddr)
	c.mu.Unlock()
	c.log.Debug("invalidated block", "guest_addr", guestAddr)
}

// InvalidateRange invalidates every block whose [GuestAddr, GuestAddr+
// GuestSize) overlaps [lo, hi), satisfying idempotence: a second call with
// the same range finds nothing left to invalidate.
func (c *Cache) InvalidateRange(lo, hi uint32) {
	c.mu.Lock()
	var victims []uint32
	for addr, b := range c.blocks {
		blockEnd := b.GuestAddr + b.GuestSize
		if b.GuestAddr < hi && blockEnd > lo {
			victims = append(victims, addr)
		}
	}
	c.mu.Unlock()

	for _, addr := range victims {
		c.Invalidate(addr)
	}
}

// ChainedBlockCount returns the number of currently-linked blocks, used by
// tests to assert on chaining behaviour without reaching into internals.
func (c *Cache) ChainedBlockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.blocks {
		if b.Linked {
			n++
		}
	}
	return n
}

// Flush invalidates every block in the cache.
func (c *Cache) Flush() {
	c.mu.Lock()
	addrs := make([]uint32, 0, len(c.blocks))
	for addr := range c.blocks {
		addrs = append(addrs, addr)
	}
	c.mu.Unlock()
	for _, addr := range addrs {
		c.Invalidate(addr)
	}
}

// NewBlockFromArena copies code into a freshly allocated arena region,
// commits it executable, and wraps it as a Block ready to Store. Returning
// an *xerr.ArenaError on allocation/commit failure keeps the façade's
// error taxonomy intact.
func NewBlockFromArena(a *arena.Arena, guestAddr, guestSize uint32, code []byte, exits []Exit) (*Block, error) {
	w, err := a.Alloc(len(code))
	if err != nil {
		return nil, err
	}
	copy(w.Bytes(), code)
	if err := w.Commit(); err != nil {
		return nil, err
	}
	return newBlock(guestAddr, guestSize, w, exits), nil
}
