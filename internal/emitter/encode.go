package emitter

// encode.go turns one inst into its 32-bit AArch64 word(s). Encodings
// follow the standard A64 instruction set layout (ARM DDI 0487); this
// emitter only ever targets 64-bit (X) registers plus the double-word FP
// forms SPEC_FULL.md's state-block access needs, so the sf/size bits are
// hardcoded to 1/11 rather than threaded through as a parameter.

func bits(val uint32, width uint) uint32 { return val & ((1 << width) - 1) }

func encodeMovWide(opc uint32, rd int, imm16 uint16, hw uint) uint32 {
	var w uint32
	w |= 1 << 31          // sf=1 (64-bit)
	w |= opc << 29         // opc
	w |= 0x25 << 23        // 100101
	w |= bits(uint32(hw), 2) << 21
	w |= uint32(imm16) << 5
	w |= bits(uint32(rd), 5)
	return w
}

func encodeAluRRR(op aluOp, rd, rn, rm int, flagSetting bool) uint32 {
	switch op {
	case aluAdd, aluSub:
		var w uint32
		w |= 1 << 31
		if op == aluSub {
			w |= 1 << 30
		}
		if flagSetting {
			w |= 1 << 29
		}
		w |= 0x0B << 24 // 01011
		w |= bits(uint32(rm), 5) << 16
		w |= bits(uint32(rn), 5) << 5
		w |= bits(uint32(rd), 5)
		return w
	default: // AND/ORR/EOR
		var opc uint32
		switch op {
		case aluAnd:
			opc = 0b00
		case aluOrr:
			opc = 0b01
		case aluEor:
			opc = 0b10
		}
		var w uint32
		w |= 1 << 31
		w |= opc << 29
		w |= 0x0A << 24 // 01010
		w |= bits(uint32(rm), 5) << 16
		w |= bits(uint32(rn), 5) << 5
		w |= bits(uint32(rd), 5)
		return w
	}
}

func encodeAluRRImm(op aluOp, rd, rn int, imm12 int64) uint32 {
	var w uint32
	w |= 1 << 31
	if op == aluSub {
		w |= 1 << 30
	}
	w |= 0x11 << 24 // 100010
	w |= bits(uint32(imm12), 12) << 10
	w |= bits(uint32(rn), 5) << 5
	w |= bits(uint32(rd), 5)
	return w
}

// encodeCmp is SUBS XZR, Xn, Xm.
func encodeCmp(rn, rm int) uint32 {
	const xzr = 31
	var w uint32
	w |= 1 << 31
	w |= 1 << 30 // SUB
	w |= 1 << 29 // S
	w |= 0x0B << 24
	w |= bits(uint32(rm), 5) << 16
	w |= bits(uint32(rn), 5) << 5
	w |= bits(xzr, 5)
	return w
}

func encodeLdrStr(isLoad bool, rt, rn int, imm12 int64) uint32 {
	var w uint32
	w |= 0x3 << 30 // size=11 (64-bit)
	w |= 0x39 << 24 // 111001
	if isLoad {
		w |= 1 << 22
	}
	w |= bits(uint32(imm12/8), 12) << 10
	w |= bits(uint32(rn), 5) << 5
	w |= bits(uint32(rt), 5)
	return w
}

// encodeLdpStp encodes the 64-bit LDP/STP pair forms. mode selects
// signed-offset (0), pre-index (1), or post-index (2) addressing, which
// only changes bits[24:23] of the opc/class field per the STP/LDP
// encoding table.
func encodeLdpStp(isLoad bool, rt, rt2, rn int, imm7 int64, mode int) uint32 {
	var w uint32
	w |= 0x2 << 30 // opc=10 (64-bit)
	w |= 0x5 << 27 // 0101001 family, 64-bit variant
	switch mode {
	case indexPre:
		w |= 0x3 << 23
	case indexPost:
		w |= 0x1 << 23
	default:
		w |= 0x2 << 23
	}
	if isLoad {
		w |= 1 << 22
	}
	w |= bits(uint32(imm7/8), 7) << 15
	w |= bits(uint32(rt2), 5) << 10
	w |= bits(uint32(rn), 5) << 5
	w |= bits(uint32(rt), 5)
	return w
}

func encodeB(imm26 int32) uint32 {
	return (0x05 << 26) | bits(uint32(imm26), 26)
}

func encodeBCond(cond byte, imm19 int32) uint32 {
	var w uint32 = 0x15 << 25 // 0101010
	w |= bits(uint32(imm19), 19) << 5
	w |= uint32(cond & 0xF)
	return w
}

func encodeBL(imm26 int32) uint32 {
	return (0x25 << 26) | bits(uint32(imm26), 26)
}

func encodeBranchReg(opc uint32, rn int) uint32 {
	// BR=0b00, BLR=0b01, RET=0b10 in bits[22:21].
	var w uint32 = 0xD6 << 24
	w |= opc << 21
	w |= 0x1F << 16
	w |= bits(uint32(rn), 5) << 5
	return w
}

// encodeLsr is LSR Xd, Xn, #shift, the UBFM Xd, Xn, #shift, #63 alias:
// sf(1) 1 0 100110 N(1)=1 immr(6)=shift imms(6)=63 Rn(5) Rd(5).
func encodeLsr(rd, rn int, shift uint) uint32 {
	var w uint32
	w |= 1 << 31
	w |= 0x2 << 29  // opc=10 (UBFM)
	w |= 0x26 << 23 // 10100110 minus sf, i.e. opc=10,100110 region
	w |= 1 << 22    // N
	w |= bits(uint32(shift), 6) << 16
	w |= bits(63, 6) << 10
	w |= bits(uint32(rn), 5) << 5
	w |= bits(uint32(rd), 5)
	return w
}

// encodeShiftRR is the "data-processing (2 source)" encoding for
// LSLV/LSRV/ASRV/RORV Xd, Xn, Xm (the register-controlled, 64-bit-width
// shift amount, auto-masked mod 64 by hardware): sf(1)=1 0 0 11010110
// Rm(5) opcode(6) Rn(5) Rd(5).
func encodeShiftRR(which byte, rd, rn, rm int) uint32 {
	var opc uint32
	switch which {
	case shiftLSL:
		opc = 0b001000
	case shiftLSR:
		opc = 0b001001
	case shiftASR:
		opc = 0b001010
	case shiftROR:
		opc = 0b001011
	}
	var w uint32
	w |= 1 << 31    // sf=1 (64-bit)
	w |= 0xD6 << 21 // 11010110 at bits[28:21]
	w |= bits(uint32(rm), 5) << 16
	w |= opc << 10
	w |= bits(uint32(rn), 5) << 5
	w |= bits(uint32(rd), 5)
	return w
}

// encodeCSet is CSINC Xd, XZR, XZR, invert(cond): sf(1) op(1)=0 S(1)=0
// 11010100 Rm(5) cond(4) o2(1)=0 1 Rn(5) Rd(5).
func encodeCSet(rd int, cond byte) uint32 {
	const xzr = 31
	invCond := cond ^ 1 // CSET uses the inverted condition on CSINC
	var w uint32
	w |= 1 << 31
	w |= 0xD4 << 21 // 11010100 at bits[28:21]
	w |= bits(xzr, 5) << 16
	w |= uint32(invCond&0xF) << 12
	w |= 1 << 10
	w |= bits(xzr, 5) << 5
	w |= bits(uint32(rd), 5)
	return w
}
