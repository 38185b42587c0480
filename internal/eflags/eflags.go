// Package eflags implements lazy EFLAGS tracking: the decoder/emitter
// pipeline records an operation's operands and kind instead of computing
// flags immediately, and only materialises CF/PF/AF/ZF/SF/OF when a Jcc,
// SETcc, or other flag-consuming instruction actually needs them.
package eflags

import "github.com/xenoarm/jit64/internal/ir"

// Bit positions within the raw EFLAGS word, matching the x86 layout.
const (
	bitCF = 0
	bitPF = 2
	bitAF = 4
	bitZF = 6
	bitSF = 7
	bitDF = 10
	bitOF = 11
)

// Condition codes for Jcc/SETcc, 0x0-0xF as encoded in the opcode low nibble.
const (
	CCO   = 0x0
	CCNO  = 0x1
	CCB   = 0x2
	CCNB  = 0x3
	CCZ   = 0x4
	CCNZ  = 0x5
	CCBE  = 0x6
	CCNBE = 0x7
	CCS   = 0x8
	CCNS  = 0x9
	CCP   = 0xA
	CCNP  = 0xB
	CCL   = 0xC
	CCNL  = 0xD
	CCLE  = 0xE
	CCNLE = 0xF

	// CondECXZero mirrors decoder.condECXZero: JCXZ/JECXZ never touch
	// EFLAGS at all, so State never materialises this condition — the
	// emitter tests ECX directly instead of calling Evaluate.
	CondECXZero = 0x10
)

// State is the lazy EFLAGS model for one in-flight translation: either a
// materialised raw word, or a pending (result, src1, src2, kind) triple
// recorded by the most recent flag-producing instruction.
type State struct {
	raw        uint32
	lazyValid  bool
	result     uint32
	src1, src2 uint32
	kind       ir.OpKind
}

// NewState returns the x86 reset EFLAGS state: bit 1 always reads as 1.
func NewState() *State {
	return &State{raw: 0x2}
}

// StoreOpState records an arithmetic/logical op's operands for deferred
// flag computation, replacing any previously pending state. Non-flag-
// producing ops (OpKindNone) never call this; the last materialised or
// pending state simply carries forward.
func (s *State) StoreOpState(result, src1, src2 uint32, kind ir.OpKind) {
	s.result, s.src1, s.src2, s.kind = result, src1, src2, kind
	s.lazyValid = true
}

// Materialize forces the pending operand triple (if any) into raw CF/PF/
// AF/ZF/SF/OF bits, following the same per-OpKind derivation as a native
// ALU flag update.
func (s *State) Materialize() {
	if !s.lazyValid {
		return
	}
	s.raw &^= (1 << bitCF) | (1 << bitPF) | (1 << bitAF) | (1 << bitZF) | (1 << bitSF) | (1 << bitOF)

	if s.result == 0 {
		s.setBit(bitZF, true)
	}
	s.setBit(bitSF, (s.result>>31)&1 != 0)
	s.setBit(bitPF, evenParity(byte(s.result)))

	switch s.kind {
	case ir.OpKindAdd, ir.OpKindInc:
		s.setBit(bitCF, s.result < s.src1)
		s.setOverflowSameSign(s.src1, s.src2, s.result, true)
		s.setBit(bitAF, ((s.src1^s.src2^s.result)>>4)&1 != 0)
	case ir.OpKindSub, ir.OpKindCmp, ir.OpKindDec:
		s.setBit(bitCF, s.src1 < s.src2)
		s.setOverflowSameSign(s.src1, s.src2, s.result, false)
		s.setBit(bitAF, ((s.src1^s.src2^s.result)>>4)&1 != 0)
	case ir.OpKindAnd, ir.OpKindOr, ir.OpKindXor:
		s.setBit(bitCF, false)
		s.setBit(bitOF, false)
		s.setBit(bitAF, false)
	case ir.OpKindShl:
		s.materializeShift(true, false)
	case ir.OpKindShr:
		s.materializeShift(false, false)
	case ir.OpKindSar:
		s.materializeShift(false, true)
	case ir.OpKindNeg:
		s.setBit(bitCF, s.result != 0)
		s.setBit(bitOF, s.src1 == 0x80000000)
	}
	s.lazyValid = false
}

// setOverflowSameSign implements the ADD/SUB signed-overflow rule: for ADD,
// overflow requires both operands share a sign that differs from the
// result's; for SUB/CMP, overflow requires the operands differ in sign and
// the result's sign differs from src1's.
func (s *State) setOverflowSameSign(src1, src2, result uint32, isAdd bool) {
	signSrc1 := (src1 >> 31) & 1
	signSrc2 := (src2 >> 31) & 1
	signResult := (result >> 31) & 1
	if isAdd {
		s.setBit(bitOF, signSrc1 == signSrc2 && signResult != signSrc1)
	} else {
		s.setBit(bitOF, signSrc1 != signSrc2 && signResult != signSrc1)
	}
}

// materializeShift encodes the shift-count>1-leaves-OF-undefined rule this
// corpus resolves as "OF cleared for count>1" (see SPEC_FULL.md's recorded
// decision): only a count of exactly 1 defines OF; SAR always clears it.
func (s *State) materializeShift(left, arithmeticRight bool) {
	count := s.src2 & 0x1F
	if count == 0 {
		return
	}
	switch {
	case left:
		s.setBit(bitCF, (s.src1>>(32-count))&1 != 0)
	case arithmeticRight:
		s.setBit(bitCF, (s.src1>>(count-1))&1 != 0)
	default:
		s.setBit(bitCF, (s.src1>>(count-1))&1 != 0)
	}
	if count == 1 {
		switch {
		case left:
			s.setBit(bitOF, (s.result>>31)&1 != boolBit(s.getBit(bitCF)))
		case arithmeticRight:
			s.setBit(bitOF, false)
		default:
			s.setBit(bitOF, (s.src1>>31)&1 != 0)
		}
	} else {
		s.setBit(bitOF, false)
	}
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func evenParity(b byte) bool {
	b ^= b >> 4
	b ^= b >> 2
	b ^= b >> 1
	return b&1 == 0
}

func (s *State) setBit(bit uint, v bool) {
	if v {
		s.raw |= 1 << bit
	} else {
		s.raw &^= 1 << bit
	}
}

func (s *State) getBit(bit uint) bool { return (s.raw>>bit)&1 != 0 }

// Evaluate reports whether condition cc holds, materialising any pending
// flags first.
func (s *State) Evaluate(cc byte) bool {
	s.Materialize()
	cf, zf, sf, of, pf := s.getBit(bitCF), s.getBit(bitZF), s.getBit(bitSF), s.getBit(bitOF), s.getBit(bitPF)
	switch cc {
	case CCO:
		return of
	case CCNO:
		return !of
	case CCB:
		return cf
	case CCNB:
		return !cf
	case CCZ:
		return zf
	case CCNZ:
		return !zf
	case CCBE:
		return cf || zf
	case CCNBE:
		return !cf && !zf
	case CCS:
		return sf
	case CCNS:
		return !sf
	case CCP:
		return pf
	case CCNP:
		return !pf
	case CCL:
		return sf != of
	case CCNL:
		return sf == of
	case CCLE:
		return zf || (sf != of)
	case CCNLE:
		return !zf && (sf == of)
	default:
		return false
	}
}

// Raw returns the materialised EFLAGS word, forcing evaluation first.
func (s *State) Raw() uint32 {
	s.Materialize()
	return s.raw
}

// SetRaw loads a full EFLAGS word (e.g. POPFD), discarding any pending lazy
// state.
func (s *State) SetRaw(v uint32) {
	s.raw = v
	s.lazyValid = false
}

func (s *State) DF() bool { s.Materialize(); return s.getBit(bitDF) }
