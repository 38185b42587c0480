// Package memmgr implements C9/C10: the guest page map, the write path that
// detects self-modifying code, and the fault-driven invalidate-then-rearm
// path the host calls into on a write-protection trap. Grounded in
// original_source/src/memory_manager.cpp; the physical fault-delivery
// mechanism itself (installing a SIGSEGV handler) is the host's concern
// per spec.md §1's explicit non-goal list, so this package only exposes
// the handler entry point the host calls.
package memmgr

import (
	"sync"

	"github.com/xenoarm/jit64/internal/logging"
)

// Protection mirrors the POSIX PROT_* bits this core reasons about,
// without importing unix here (page bookkeeping is architecture-neutral;
// only the arena actually mmaps/mprotects memory).
type Protection int

const (
	ProtNone  Protection = 0
	ProtRead  Protection = 1 << 0
	ProtWrite Protection = 1 << 1
	ProtExec  Protection = 1 << 2
)

// Page records one page-aligned guest address's protection and code
// status (spec.md §3's "Page map").
type Page struct {
	Addr             uint32
	Size             uint32
	Protection       Protection
	ContainsCode     bool
	Dirty            bool
}

// Invalidator is the subset of the translation cache the memory manager
// needs: invalidating every block overlapping a guest range. Depending on
// the interface rather than *tcache.Cache keeps this package import-free
// of tcache, matching the original's forward-declared pointer.
type Invalidator interface {
	InvalidateRange(lo, hi uint32)
}

// Callbacks is the host memory-access table (spec.md §6), minus
// guest_exception (owned by the façade) and log (owned by Logger).
type Callbacks struct {
	ReadU8     func(addr uint32) uint8
	ReadU16    func(addr uint32) uint16
	ReadU32    func(addr uint32) uint32
	ReadU64    func(addr uint32) uint64
	ReadBlock  func(addr uint32, buf []byte)
	WriteU8    func(addr uint32, v uint8)
	WriteU16   func(addr uint32, v uint16)
	WriteU32   func(addr uint32, v uint32)
	WriteU64   func(addr uint32, v uint64)
	WriteBlock func(addr uint32, buf []byte)
}

// Manager owns the page map and dispatches guest reads/writes through the
// host Callbacks, detecting and handling SMC on the write path.
type Manager struct {
	mu       sync.Mutex
	pages    map[uint32]*Page
	pageSize uint32

	tc   Invalidator
	cb   Callbacks
	log  logging.Logger

	conservative bool
}

// New creates a Manager with the given page size (spec.md §4.7 defaults
// to 4096) backed by tc for invalidation and cb for guest memory access.
func New(pageSize uint32, tc Invalidator, cb Callbacks, conservative bool, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop{}
	}
	return &Manager{
		pages:        map[uint32]*Page{},
		pageSize:     pageSize,
		tc:           tc,
		cb:           cb,
		conservative: conservative,
		log:          log,
	}
}

func (m *Manager) alignToPage(addr uint32) uint32 {
	return addr &^ (m.pageSize - 1)
}

func (m *Manager) pageOrCreate(addr uint32) *Page {
	p, ok := m.pages[addr]
	if !ok {
		p = &Page{Addr: addr, Size: m.pageSize, Protection: ProtRead | ProtWrite}
		m.pages[addr] = p
	}
	return p
}

// ProtectRange updates the recorded protection for every page overlapping
// [addr, addr+size) without touching ContainsCode (spec.md §4.7).
func (m *Manager) ProtectRange(addr, size uint32, prot Protection) {
	aligned := m.alignToPage(addr)
	alignedSize := m.roundUpToPage(size)

	m.mu.Lock()
	defer m.mu.Unlock()
	for a := aligned; a < aligned+alignedSize; a += m.pageSize {
		p := m.pageOrCreate(a)
		p.Protection = prot
	}
}

func (m *Manager) roundUpToPage(size uint32) uint32 {
	return ((size + m.pageSize - 1) / m.pageSize) * m.pageSize
}

// RegisterCodeMemory marks every page overlapping [addr, addr+size) as
// containing translated code and, unless already explicitly protected,
// strips write permission so the first guest store to it traps (spec.md
// §4.7).
func (m *Manager) RegisterCodeMemory(addr, size uint32) {
	aligned := m.alignToPage(addr)
	alignedSize := m.roundUpToPage(size)

	m.mu.Lock()
	defer m.mu.Unlock()
	for a := aligned; a < aligned+alignedSize; a += m.pageSize {
		p := m.pageOrCreate(a)
		p.ContainsCode = true
		if p.Protection == ProtNone || p.Protection == ProtRead|ProtWrite {
			p.Protection = ProtRead
		}
	}
	m.log.Info("registered code page(s)", "addr", aligned, "size", alignedSize)
}

func (m *Manager) isCodePage(pageAddr uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageAddr]
	return ok && p.ContainsCode
}

func (m *Manager) markDirty(pageAddr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pages[pageAddr]; ok {
		p.Dirty = true
	}
}

// invalidateCodePage invalidates every translation on pageAddr's page and
// marks it dirty (the SMC-detected path shared by the write path and the
// fault-driven path).
func (m *Manager) invalidateCodePage(pageAddr uint32) {
	if m.tc != nil {
		hi := pageAddr + m.pageSize
		if hi < pageAddr { // last page of the 32-bit space
			hi = ^uint32(0)
		}
		m.tc.InvalidateRange(pageAddr, hi)
	}
	m.markDirty(pageAddr)
}

// WriteU8/WriteU16/WriteU32/WriteU64 implement spec.md §4.7's write path:
// on a write to a code page, invalidate affected translations, perform the
// write, then publish it with data-sync/instruction-sync barriers before
// any retranslation could start executing.
func (m *Manager) WriteU8(addr uint32, v uint8) {
	m.guardedWrite(addr, 1, func() {
		if m.cb.WriteU8 != nil {
			m.cb.WriteU8(addr, v)
		}
	})
}

func (m *Manager) WriteU16(addr uint32, v uint16) {
	m.guardedWrite(addr, 2, func() {
		if m.cb.WriteU16 != nil {
			m.cb.WriteU16(addr, v)
			return
		}
		m.WriteU8(addr, uint8(v))
		m.WriteU8(addr+1, uint8(v>>8))
	})
}

func (m *Manager) WriteU32(addr uint32, v uint32) {
	m.guardedWrite(addr, 4, func() {
		if m.cb.WriteU32 != nil {
			m.cb.WriteU32(addr, v)
			return
		}
		m.WriteU16(addr, uint16(v))
		m.WriteU16(addr+2, uint16(v>>16))
	})
}

func (m *Manager) WriteU64(addr uint32, v uint64) {
	m.guardedWrite(addr, 8, func() {
		if m.cb.WriteU64 != nil {
			m.cb.WriteU64(addr, v)
			return
		}
		m.WriteU32(addr, uint32(v))
		m.WriteU32(addr+4, uint32(v>>32))
	})
}

func (m *Manager) WriteBlock(addr uint32, buf []byte) {
	m.guardedWrite(addr, uint32(len(buf)), func() {
		if m.cb.WriteBlock != nil {
			m.cb.WriteBlock(addr, buf)
			return
		}
		for i, b := range buf {
			m.WriteU8(addr+uint32(i), b)
		}
	})
}

// guardedWrite implements the shared shape of every WriteU*/WriteBlock
// entry point: detect whether the write touches one or more code pages,
// and if so invalidate-write-reprotect-barrier around do(); otherwise just
// do() the write.
func (m *Manager) guardedWrite(addr, size uint32, do func()) {
	if size == 0 {
		do()
		return
	}
	startPage := m.alignToPage(addr)
	endPage := m.alignToPage(addr + size - 1)

	var codePages []uint32
	for p := startPage; p <= endPage; p += m.pageSize {
		if m.isCodePage(p) {
			codePages = append(codePages, p)
		}
	}

	if len(codePages) == 0 {
		do()
		if m.conservative {
			InsertDataMemoryBarrier()
		}
		return
	}

	m.log.Info("SMC detected on write", "addr", addr, "pages", len(codePages))
	saved := make(map[uint32]Protection, len(codePages))
	for _, p := range codePages {
		saved[p] = m.protectionOf(p)
		m.ProtectRange(p, m.pageSize, ProtRead|ProtWrite)
		m.invalidateCodePage(p)
	}

	do()

	for _, p := range codePages {
		m.ProtectRange(p, m.pageSize, saved[p])
	}
	InsertDataSyncBarrier()
	InsertInstructionSyncBarrier()
}

func (m *Manager) protectionOf(pageAddr uint32) Protection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pages[pageAddr]; ok {
		return p.Protection
	}
	return ProtRead | ProtWrite
}

// HandleProtectionFault implements spec.md §4.7's fault-driven path: the
// host calls this after delivering a write-protection fault at addr. It
// reports whether the fault was this core's to handle (true = a code
// page, invalidated and rearmed; false = forward upward, non-core fault).
func (m *Manager) HandleProtectionFault(addr uint32) bool {
	pageAddr := m.alignToPage(addr)
	if !m.isCodePage(pageAddr) {
		m.log.Error("protection fault in non-code page", "addr", addr)
		return false
	}

	m.log.Info("SMC detected via protection fault", "addr", addr)
	old := m.protectionOf(pageAddr)
	m.ProtectRange(pageAddr, m.pageSize, ProtRead|ProtWrite)
	m.invalidateCodePage(pageAddr)
	m.ProtectRange(pageAddr, m.pageSize, old)
	return true
}

// ReadU8/ReadU16/ReadU32/ReadU64/ReadBlock pass straight through to the
// host callbacks — reads never interact with SMC detection.
func (m *Manager) ReadU8(addr uint32) uint8 {
	if m.cb.ReadU8 != nil {
		return m.cb.ReadU8(addr)
	}
	return 0
}

func (m *Manager) ReadU16(addr uint32) uint16 {
	if m.cb.ReadU16 != nil {
		return m.cb.ReadU16(addr)
	}
	return uint16(m.ReadU8(addr)) | uint16(m.ReadU8(addr+1))<<8
}

func (m *Manager) ReadU32(addr uint32) uint32 {
	if m.cb.ReadU32 != nil {
		return m.cb.ReadU32(addr)
	}
	return uint32(m.ReadU16(addr)) | uint32(m.ReadU16(addr+2))<<16
}

func (m *Manager) ReadU64(addr uint32) uint64 {
	if m.cb.ReadU64 != nil {
		return m.cb.ReadU64(addr)
	}
	return uint64(m.ReadU32(addr)) | uint64(m.ReadU32(addr+4))<<32
}

func (m *Manager) ReadBlock(addr uint32, buf []byte) {
	if m.cb.ReadBlock != nil {
		m.cb.ReadBlock(addr, buf)
		return
	}
	for i := range buf {
		buf[i] = m.ReadU8(addr + uint32(i))
	}
}

// NotifyMemoryModified lets the embedder tell the core about a write it
// performed itself (bypassing WriteU*), e.g. a DMA transfer; any affected
// code pages are invalidated exactly as on the normal write path.
func (m *Manager) NotifyMemoryModified(addr, size uint32) {
	startPage := m.alignToPage(addr)
	endPage := m.alignToPage(addr + size - 1)
	for p := startPage; p <= endPage; p += m.pageSize {
		if m.isCodePage(p) {
			m.log.Info("invalidating code page due to external memory modification", "page", p)
			m.invalidateCodePage(p)
		}
	}
}

// BarrierKind selects which of the three barrier primitives InsertBarrier
// lowers (spec.md §4.7).
type BarrierKind int

const (
	BarrierDataMemory BarrierKind = iota
	BarrierDataSync
	BarrierInstructionSync
)

// InsertBarrier issues the requested barrier immediately. (spec.md's
// "records an intent in the current IR block for the emitter to lower" is
// the emitted-code-side mechanism for conservative-memory-mode barriers
// around guest loads/stores inside a translated block; this entry point
// additionally lets the façade insert one directly, e.g. around a
// host-side memory operation outside any translated block.)
func (m *Manager) InsertBarrier(kind BarrierKind) {
	switch kind {
	case BarrierDataMemory:
		InsertDataMemoryBarrier()
	case BarrierDataSync:
		InsertDataSyncBarrier()
	case BarrierInstructionSync:
		InsertInstructionSyncBarrier()
	}
}
