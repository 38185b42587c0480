// Package regalloc assigns AArch64 physical registers to the vregs a
// decoded block names, using the same priority-scored linear scan as the
// allocator this corpus descends from: x86-mapped vregs and loop-carried
// vregs are kept resident as long as possible, low-priority vregs spill
// first.
package regalloc

import (
	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/ir"
)

// PhysKind distinguishes the GPR and NEON physical register files.
type PhysKind int

const (
	PhysGPR PhysKind = iota
	PhysNEON
)

// Assignment is where a vreg lives after allocation: either a physical
// register number (within its PhysKind's file) or a spill-slot byte offset.
type Assignment struct {
	VReg     ir.VReg
	Kind     PhysKind
	Phys     int // valid iff !Spilled
	Spilled  bool
	SpillOff int32 // valid iff Spilled
}

// Result is the complete allocation for one block: per-vreg assignment plus
// the total spill-area size the prologue must reserve.
type Result struct {
	Assignments   map[ir.VReg]Assignment
	SpillAreaSize int32
}

// lifetime tracks one vreg's usage within the block being allocated.
type lifetime struct {
	vreg        ir.VReg
	start, end  int // instruction index of first def/use and last use
	useCount    int
	isX86Mapped bool
	isLoop      bool
	dataType    ir.DataType
	priority    float64
}

// isX86Mapped reports whether v is one of the eight GPR-mapped ids
// (0..decoder.ArchEDI) or in the MMX/XMM reserved ranges; all of these are
// treated as x86-mapped for priority
// purposes since they must round-trip through the guest state block.
func isX86Mapped(v ir.VReg) bool {
	return v < decoder.ArchMM0+8 || (v >= decoder.ArchXMM0 && v < decoder.ArchXMM0+8)
}

// Allocate computes physical-register or spill assignments for every vreg
// referenced in block. The GPR pool is x0-x27 minus x16/x17 (platform
// scratch, matching AAPCS64 IP0/IP1); the NEON pool is v8-v31, and
// v0-v7 are left for the emitter's own scratch use and never handed out
// here.
func Allocate(block *ir.Block) *Result {
	lifetimes := computeLifetimes(block)
	detectLoops(block, lifetimes)
	scorePriorities(lifetimes)

	res := &Result{Assignments: make(map[ir.VReg]Assignment, len(lifetimes))}
	spill := &spillAllocator{}

	gprFree := freeGPRPool()
	neonFree := freeNEONPool()

	ordered := make([]*lifetime, 0, len(lifetimes))
	for _, lt := range lifetimes {
		ordered = append(ordered, lt)
	}
	sortByPriorityDesc(ordered)

	for _, lt := range ordered {
		if lt.dataType.IsFloatOrVector() {
			if len(neonFree) > 0 {
				phys := neonFree[0]
				neonFree = neonFree[1:]
				res.Assignments[lt.vreg] = Assignment{VReg: lt.vreg, Kind: PhysNEON, Phys: phys}
				continue
			}
		} else {
			if len(gprFree) > 0 {
				phys := gprFree[0]
				gprFree = gprFree[1:]
				res.Assignments[lt.vreg] = Assignment{VReg: lt.vreg, Kind: PhysGPR, Phys: phys}
				continue
			}
		}
		off := spill.allocateSlot(lt.dataType)
		res.Assignments[lt.vreg] = Assignment{VReg: lt.vreg, Spilled: true, SpillOff: off}
	}
	res.SpillAreaSize = spill.totalSize()
	return res
}

func freeGPRPool() []int {
	pool := make([]int, 0, 26)
	for i := 0; i < 28; i++ {
		if i == 16 || i == 17 {
			continue
		}
		pool = append(pool, i)
	}
	return pool
}

func freeNEONPool() []int {
	pool := make([]int, 0, 24)
	for i := 8; i < 32; i++ {
		pool = append(pool, i)
	}
	return pool
}

func operandVRegs(op ir.Operand) []ir.VReg {
	switch op.Kind {
	case ir.OperandVReg:
		return []ir.VReg{op.VReg}
	case ir.OperandMem:
		var vs []ir.VReg
		if op.Mem.Base != ir.VRegNone {
			vs = append(vs, op.Mem.Base)
		}
		if op.Mem.Index != ir.VRegNone {
			vs = append(vs, op.Mem.Index)
		}
		return vs
	default:
		return nil
	}
}

func computeLifetimes(block *ir.Block) map[ir.VReg]*lifetime {
	lts := make(map[ir.VReg]*lifetime)
	touch := func(v ir.VReg, idx int, t ir.DataType, isUse bool) {
		lt, ok := lts[v]
		if !ok {
			lt = &lifetime{vreg: v, start: idx, end: idx, dataType: t, isX86Mapped: isX86Mapped(v)}
			lts[v] = lt
		}
		if idx < lt.start {
			lt.start = idx
		}
		if idx > lt.end {
			lt.end = idx
		}
		if isUse {
			lt.useCount++
		}
		if lt.dataType == ir.TypeNone {
			lt.dataType = t
		}
	}
	for i, ins := range block.Instructions {
		for _, op := range ins.Operands {
			for _, v := range operandVRegs(op) {
				touch(v, i, op.Type, true)
			}
		}
		if ins.HasDef {
			for _, v := range operandVRegs(ins.Def) {
				touch(v, i, ins.Def.Type, false)
			}
		}
	}
	// x86-mapped vregs are live from block entry: the prologue materialises
	// them from the guest state block whether or not they're named before
	// their first real use.
	for v, lt := range lts {
		if isX86Mapped(v) && lt.start > 0 {
			lt.start = 0
		}
	}
	return lts
}

// detectLoops scans for backward branches (a Jcc/Loop whose guest target
// precedes the branch's own address within the block) and marks any vreg
// whose lifetime overlaps the resulting region as loop-carried.
func detectLoops(block *ir.Block, lts map[ir.VReg]*lifetime) {
	type region struct{ start, end int }
	var regions []region
	for i, ins := range block.Instructions {
		if !ins.HasTarget {
			continue
		}
		switch ins.Op {
		case ir.OpJcc, ir.OpLoop, ir.OpJmp:
		default:
			continue
		}
		if ins.TargetGuest < block.EntryGuestAddr {
			continue
		}
		targetIdx := -1
		for j, other := range block.Instructions {
			if other.TargetGuest == ins.TargetGuest && j < i {
				targetIdx = j
				break
			}
		}
		if targetIdx >= 0 {
			regions = append(regions, region{targetIdx, i})
		}
	}
	for _, lt := range lts {
		for _, r := range regions {
			if lt.start <= r.end && lt.end >= r.start {
				lt.isLoop = true
			}
		}
	}
}

func scorePriorities(lts map[ir.VReg]*lifetime) {
	maxUse, maxLen := 1, 1
	for _, lt := range lts {
		if lt.useCount > maxUse {
			maxUse = lt.useCount
		}
		if l := lt.end - lt.start; l > maxLen {
			maxLen = l
		}
	}
	for _, lt := range lts {
		var p float64
		if lt.isX86Mapped {
			p += 10000
		}
		if lt.isLoop {
			p += 500
		}
		p += 100 * float64(lt.useCount) / float64(maxUse)
		length := lt.end - lt.start
		p += 50 * (1 - float64(length)/float64(maxLen))
		lt.priority = p
	}
}

func sortByPriorityDesc(lts []*lifetime) {
	for i := 1; i < len(lts); i++ {
		for j := i; j > 0 && lts[j].priority > lts[j-1].priority; j-- {
			lts[j], lts[j-1] = lts[j-1], lts[j]
		}
	}
}

// spillAllocator hands out 16-byte-aligned-or-smaller spill slots sized and
// aligned to the operand's own natural size, mirroring SpillAllocator's
// align-to-size rule.
type spillAllocator struct {
	offset int32
}

func (s *spillAllocator) allocateSlot(t ir.DataType) int32 {
	size := int32(t.Size())
	aligned := (s.offset + size - 1) &^ (size - 1)
	s.offset = aligned + size
	return aligned
}

func (s *spillAllocator) totalSize() int32 { return s.offset }
