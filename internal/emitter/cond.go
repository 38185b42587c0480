package emitter

import "github.com/xenoarm/jit64/internal/eflags"

// x86CondToAArch64 maps an x86 Jcc condition code to the AArch64 condition
// that tests the equivalent NZCV state after lowerAlu's flag-setting
// instruction (ADDS/SUBS, or a compare against zero for the logical ops)
// has left ZF/SF/CF/OF in N/Z/C/V: x86's CF/OF sense needs the carry/overflow-based AArch64
// conditions rather than a literal bit-for-bit copy, since ARM's carry
// convention for subtraction is inverted relative to x86's borrow flag.
func x86CondToAArch64(cc byte) byte {
	switch cc {
	case eflags.CCO:
		return condVS
	case eflags.CCNO:
		return condVC
	case eflags.CCB:
		return condCC // x86 CF=1 (borrow) == ARM carry-clear after CMP
	case eflags.CCNB:
		return condCS
	case eflags.CCZ:
		return condEQ
	case eflags.CCNZ:
		return condNE
	case eflags.CCBE:
		return condLS
	case eflags.CCNBE:
		return condHI
	case eflags.CCS:
		return condMI
	case eflags.CCNS:
		return condPL
	case eflags.CCL:
		return condLT
	case eflags.CCNL:
		return condGE
	case eflags.CCLE:
		return condLE
	case eflags.CCNLE:
		return condGT
	default:
		return condAL
	}
}
