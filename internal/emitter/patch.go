package emitter

import "fmt"

// b26Range/bcond19Range are the encodable signed word-displacement ranges
// for B (26-bit imm) and B.cond (19-bit imm), matching spec.md §4.3's patch
// semantics range check.
const (
	b26Range    = 1 << 25
	bcond19Range = 1 << 18
)

// PatchDirectBranch overwrites the 4 bytes at code[offset:offset+4] — which
// must already hold an encoded B or B.cond targeting the dispatcher-return
// stub — so it instead branches directly to targetAddr, implementing
// spec.md §4.3's chaining patch: "compute (target_host - site_host)/4;
// range check against the immediate width; if out of range, leave the
// exit unpatched" (this emitter reserves veneer slack at emission time
// rather than growing code in place at patch time, so an out-of-range
// chain attempt is reported rather than retried with a veneer — see
// DESIGN.md).
func PatchDirectBranch(code []byte, offset int, siteAddr, targetAddr uintptr, cond byte, isCond bool) error {
	if offset < 0 || offset+4 > len(code) {
		return fmt.Errorf("emitter: patch offset %d out of range for %d-byte buffer", offset, len(code))
	}
	disp := int64(targetAddr) - int64(siteAddr)
	if disp%4 != 0 {
		return fmt.Errorf("emitter: patch displacement %d is not word-aligned", disp)
	}
	words := disp / 4

	var word uint32
	if isCond {
		if words >= bcond19Range || words < -bcond19Range {
			return fmt.Errorf("emitter: chain target out of B.cond range (%d words)", words)
		}
		word = encodeBCond(cond, int32(words))
	} else {
		if words >= b26Range || words < -b26Range {
			return fmt.Errorf("emitter: chain target out of B range (%d words)", words)
		}
		word = encodeB(int32(words))
	}
	code[offset] = byte(word)
	code[offset+1] = byte(word >> 8)
	code[offset+2] = byte(word >> 16)
	code[offset+3] = byte(word >> 24)
	return nil
}
