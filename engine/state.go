package engine

import (
	"unsafe"

	"github.com/xenoarm/jit64/internal/decoder"
	"github.com/xenoarm/jit64/internal/fpu"
)

// GuestState is the per-guest-thread state block the embedder allocates and
// passes to Execute/Run (SPEC_FULL.md §4.8/§6): the eight x86 GPRs plus
// EIP/EFLAGS, laid out exactly the way the emitter's stateOffset/eipOffset/
// eflagsOffset constants address them (8-byte slots, EIP at byte 64,
// EFLAGS at byte 72), followed immediately by the x87/MMX/XMM register
// file at byte 80 (fpu.State's own layout starts with an 8-byte-aligned
// field, so Go's struct layout places it there with no padding or tag
// needed). Generated block code only ever reads/writes through the first
// 80 bytes via raw offsets; everything from the FPU field on is reached
// exclusively through the vtable's X87Op/MMXOp/SSEOp callbacks, which
// receive this same pointer and cast it back with AsGuestState.
type GuestState struct {
	GPR    [8]uint64 // indexed by ArchEAX..ArchEDI
	EIP    uint64
	EFLAGS uint64
	FPU    fpu.State
}

// NewGuestState returns a zeroed state block with the FPU sub-state reset
// to its power-on form (empty x87 stack, default control word).
func NewGuestState() *GuestState {
	s := &GuestState{}
	s.FPU.Reset()
	return s
}

// AsGuestState recovers the typed state block from the unsafe.Pointer the
// vtable callbacks receive. Every block-exit and helper-call site in the
// emitter agrees this pointer always addresses a GuestState laid out
// exactly as above, so this cast is the one place that assumption is
// spelled out.
func AsGuestState(state unsafe.Pointer) *GuestState {
	return (*GuestState)(state)
}

func (s *GuestState) gprIndex(v int) int { return v & 7 }

// GPRAt/SetGPRAt address a general register by its ArchEAX..ArchEDI index
// (0-7), matching the x86 ModRM reg-field numbering decoder.ArchEAX et al.
// use.
func (s *GuestState) GPRAt(i int) uint32    { return uint32(s.GPR[s.gprIndex(i)]) }
func (s *GuestState) SetGPRAt(i int, v uint32) { s.GPR[s.gprIndex(i)] = uint64(v) }

func (s *GuestState) EAX() uint32 { return s.GPRAt(int(decoder.ArchEAX)) }
func (s *GuestState) ECX() uint32 { return s.GPRAt(int(decoder.ArchECX)) }
func (s *GuestState) EDX() uint32 { return s.GPRAt(int(decoder.ArchEDX)) }
func (s *GuestState) EBX() uint32 { return s.GPRAt(int(decoder.ArchEBX)) }
func (s *GuestState) ESP() uint32 { return s.GPRAt(int(decoder.ArchESP)) }
func (s *GuestState) EBP() uint32 { return s.GPRAt(int(decoder.ArchEBP)) }
func (s *GuestState) ESI() uint32 { return s.GPRAt(int(decoder.ArchESI)) }
func (s *GuestState) EDI() uint32 { return s.GPRAt(int(decoder.ArchEDI)) }

func (s *GuestState) SetEAX(v uint32) { s.SetGPRAt(int(decoder.ArchEAX), v) }
func (s *GuestState) SetECX(v uint32) { s.SetGPRAt(int(decoder.ArchECX), v) }
func (s *GuestState) SetEDX(v uint32) { s.SetGPRAt(int(decoder.ArchEDX), v) }
func (s *GuestState) SetEBX(v uint32) { s.SetGPRAt(int(decoder.ArchEBX), v) }
func (s *GuestState) SetESP(v uint32) { s.SetGPRAt(int(decoder.ArchESP), v) }
func (s *GuestState) SetEBP(v uint32) { s.SetGPRAt(int(decoder.ArchEBP), v) }
func (s *GuestState) SetESI(v uint32) { s.SetGPRAt(int(decoder.ArchESI), v) }
func (s *GuestState) SetEDI(v uint32) { s.SetGPRAt(int(decoder.ArchEDI), v) }

func (s *GuestState) GetEIP() uint32     { return uint32(s.EIP) }
func (s *GuestState) SetEIP(v uint32)    { s.EIP = uint64(v) }
func (s *GuestState) GetEFLAGS() uint32  { return uint32(s.EFLAGS) }
func (s *GuestState) SetEFLAGS(v uint32) { s.EFLAGS = uint64(v) }

// ST/SetST, MM/SetMM and XMM/SetXMM forward to the embedded FPU state,
// giving the embedder the same three register spaces spec.md §6 exposes
// without reaching into the FPU field directly.
func (s *GuestState) ST(i int) float64       { return s.FPU.ST(i) }
func (s *GuestState) SetST(i int, v float64) { s.FPU.SetST(i, v) }
func (s *GuestState) MM(i int) uint64        { return s.FPU.ReadMM(i) }
func (s *GuestState) SetMM(i int, v uint64)  { s.FPU.WriteMM(i, v) }
func (s *GuestState) XMM(i int) [16]byte     { return s.FPU.ReadXMM(i) }
func (s *GuestState) SetXMM(i int, v [16]byte) { s.FPU.WriteXMM(i, v) }
