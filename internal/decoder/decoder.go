// Package decoder implements C1: a table-driven x86 guest-byte decoder that
// produces one IR basic block per call, terminated by its first control-flow
// instruction. It mirrors the dispatch shape of a classic table-driven x86
// interpreter (primary-opcode array plus a 0x0F extended array) but emits IR
// instead of executing, and never issues loads itself — memory operands are
// synthesized as ir.MemRef and left for the emitter to lower.
package decoder

import (
	"fmt"

	"github.com/xenoarm/jit64/internal/ir"
)

// Reserved vreg ids for the eight x86-order general registers. The emitter
// and register allocator treat these as "x86-mapped": their live range is
// considered to begin at block entry (the prologue loads them from the
// guest state block) even though the first IR instruction that names one
// may occur partway through the block.
const (
	ArchEAX ir.VReg = 0
	ArchECX ir.VReg = 1
	ArchEDX ir.VReg = 2
	ArchEBX ir.VReg = 3
	ArchESP ir.VReg = 4
	ArchEBP ir.VReg = 5
	ArchESI ir.VReg = 6
	ArchEDI ir.VReg = 7
	ArchMM0 ir.VReg = 8  // mm0..mm7 occupy 8..15
	ArchXMM0 ir.VReg = 16 // xmm0..xmm7 occupy 16..23
	archFirstTemp ir.VReg = 24
)

// MMVReg and XMMVReg map a 0..7 logical MMX/XMM register index to its
// reserved vreg id, kept in a disjoint range from the eight GPR-mapped ids
// so a PADDB mm0, mm1 and a MOV eax, ecx never alias the same vreg.
func MMVReg(i byte) ir.VReg  { return ArchMM0 + ir.VReg(i) }
func XMMVReg(i byte) ir.VReg { return ArchXMM0 + ir.VReg(i) }

// DecodeError reports why the decoder could not continue: truncated bytes,
// an opcode outside the supported semantic categories, or an invalid
// prefix/opcode combination.
type DecodeError struct {
	Addr   uint32
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at 0x%08X: %s", e.Addr, e.Reason)
}

// decoder holds per-call mutable state: the guest byte window, cursor,
// active prefixes, the block under construction, and cached ModR/M state
// exactly like a single-instruction interpreter step, generalised to emit
// IR rather than mutate a register file.
type decoder struct {
	code      []byte
	pos       int
	startAddr uint32

	block *ir.Block

	prefixSeg      int // -1 = none, else segment override index; flat model, only recorded
	prefixRep      int // 0 none, 1 REP/REPE, 2 REPNE
	prefixOpSize   bool
	prefixAddrSize bool

	modrm       byte
	modrmLoaded bool
	sib         byte
	sibLoaded   bool

	nextTemp ir.VReg
}

// Decode parses one basic block of guest x86 bytes starting at addr. It
// returns the IR function (a single entry block; later calls at branch
// targets produce further blocks) and the number of guest bytes consumed.
func Decode(code []byte, addr uint32) (*ir.Function, uint32, error) {
	d := &decoder{
		code:      code,
		startAddr: addr,
		block:     ir.NewBlock(addr),
		prefixSeg: -1,
		nextTemp:  archFirstTemp,
	}
	d.block.NextVReg = archFirstTemp

	for {
		d.resetPrefixes()
		if err := d.decodeOne(); err != nil {
			return nil, 0, err
		}
		if d.blockEnded() {
			break
		}
	}
	return &ir.Function{Entry: d.block}, uint32(d.pos), nil
}

func (d *decoder) resetPrefixes() {
	d.prefixSeg = -1
	d.prefixRep = 0
	d.prefixOpSize = false
	d.prefixAddrSize = false
	d.modrmLoaded = false
	d.sibLoaded = false
}

func (d *decoder) blockEnded() bool {
	if len(d.block.Instructions) == 0 {
		return false
	}
	switch d.block.Instructions[len(d.block.Instructions)-1].Op {
	case ir.OpJmp, ir.OpJcc, ir.OpCallDirect, ir.OpCallIndirect, ir.OpRet, ir.OpLoop, ir.OpTrap:
		return true
	default:
		return false
	}
}

func (d *decoder) alloc() ir.VReg {
	v := d.nextTemp
	d.nextTemp++
	d.block.NextVReg = d.nextTemp
	return v
}

func (d *decoder) fail(reason string, args ...any) error {
	return &DecodeError{Addr: d.startAddr + uint32(d.pos), Reason: fmt.Sprintf(reason, args...)}
}

// fetch8/16/32 consume guest bytes little-endian, matching x86 guest
// endianness (spec.md §6).
func (d *decoder) fetch8() (byte, error) {
	if d.pos >= len(d.code) {
		return 0, d.fail("truncated instruction stream")
	}
	b := d.code[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) fetch16() (uint16, error) {
	lo, err := d.fetch8()
	if err != nil {
		return 0, err
	}
	hi, err := d.fetch8()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (d *decoder) fetch32() (uint32, error) {
	lo, err := d.fetch16()
	if err != nil {
		return 0, err
	}
	hi, err := d.fetch16()
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

func (d *decoder) peek() (byte, bool) {
	if d.pos >= len(d.code) {
		return 0, false
	}
	return d.code[d.pos], true
}

// --- ModR/M and SIB ---------------------------------------------------

func (d *decoder) fetchModRM() (byte, error) {
	if !d.modrmLoaded {
		b, err := d.fetch8()
		if err != nil {
			return 0, err
		}
		d.modrm = b
		d.modrmLoaded = true
	}
	return d.modrm, nil
}

func modRMReg(m byte) byte { return (m >> 3) & 7 }
func modRMMod(m byte) byte { return (m >> 6) & 3 }
func modRMRM(m byte) byte  { return m & 7 }

func (d *decoder) fetchSIB() (byte, error) {
	if !d.sibLoaded {
		b, err := d.fetch8()
		if err != nil {
			return 0, err
		}
		d.sib = b
		d.sibLoaded = true
	}
	return d.sib, nil
}

// archRegVReg maps an x86 register-field index (0..7) to its reserved vreg.
func archRegVReg(idx byte) ir.VReg {
	return ir.VReg(idx)
}

// modRMOperand decodes the current instruction's r/m field into either a
// register Operand (mod==3) or a synthesized ir.MemRef (mod!=3), following
// the same base/index/scale/disp construction as a 32-bit effective-address
// calculator, but never reading memory itself.
func (d *decoder) modRMOperand(t ir.DataType) (ir.Operand, error) {
	return d.modRMOperandSpace(t, archRegVReg)
}

// modRMOperandSpace is modRMOperand generalised over which register file the
// mod==3 (register-direct) r/m form names. Addressing-mode math (mod!=3)
// always indexes through GPRs regardless of the operand's own register
// file, since x86 has no MMX/XMM-indexed addressing.
func (d *decoder) modRMOperandSpace(t ir.DataType, regSpace func(byte) ir.VReg) (ir.Operand, error) {
	m, err := d.fetchModRM()
	if err != nil {
		return ir.Operand{}, err
	}
	mod := modRMMod(m)
	rm := modRMRM(m)

	if mod == 3 {
		return ir.Reg(regSpace(rm), t), nil
	}

	var base ir.VReg = ir.VRegNone
	var index ir.VReg = ir.VRegNone
	var scale byte = 1
	var disp int32

	if rm == 4 {
		sib, err := d.fetchSIB()
		if err != nil {
			return ir.Operand{}, err
		}
		sc := (sib >> 6) & 3
		idx := (sib >> 3) & 7
		bs := sib & 7
		scale = 1 << sc
		if idx != 4 {
			index = archRegVReg(idx)
		}
		if bs == 5 && mod == 0 {
			v, err := d.fetch32()
			if err != nil {
				return ir.Operand{}, err
			}
			disp = int32(v)
		} else {
			base = archRegVReg(bs)
		}
	} else if rm == 5 && mod == 0 {
		v, err := d.fetch32()
		if err != nil {
			return ir.Operand{}, err
		}
		disp = int32(v)
	} else {
		base = archRegVReg(rm)
	}

	switch mod {
	case 1:
		b, err := d.fetch8()
		if err != nil {
			return ir.Operand{}, err
		}
		disp += int32(int8(b))
	case 2:
		v, err := d.fetch32()
		if err != nil {
			return ir.Operand{}, err
		}
		disp += int32(v)
	}

	return ir.Mem(ir.MemRef{Base: base, Index: index, Scale: scale, Disp: disp}, t), nil
}

func (d *decoder) regOperand(t ir.DataType) (ir.Operand, error) {
	m, err := d.fetchModRM()
	if err != nil {
		return ir.Operand{}, err
	}
	return ir.Reg(archRegVReg(modRMReg(m)), t), nil
}
