package decoder

// decodeOne decodes prefixes then exactly one instruction, appending IR to
// the block under construction. Prefix handling is recursive (a prefix byte
// loops back into decodeOne); instruction decoding itself is flat, per
// spec.md §4.1.
func (d *decoder) decodeOne() error {
	op, err := d.fetch8()
	if err != nil {
		return err
	}

	switch op {
	case 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65: // segment overrides: ES,CS,SS,DS,FS,GS
		d.prefixSeg = int(op)
		return d.decodeOne()
	case 0x66:
		d.prefixOpSize = true
		return d.decodeOne()
	case 0x67:
		d.prefixAddrSize = true
		return d.decodeOne()
	case 0xF0: // LOCK
		return d.decodeOne()
	case 0xF2:
		d.prefixRep = 2
		return d.decodeOne()
	case 0xF3:
		d.prefixRep = 1
		return d.decodeOne()
	case 0x0F:
		return d.decode0F()
	}

	if op >= 0xD8 && op <= 0xDF {
		return d.decodeX87(op)
	}

	if h, ok := oneByteTable[op]; ok {
		return h(d, op)
	}
	return d.fail("unimplemented opcode 0x%02X", op)
}

func (d *decoder) decode0F() error {
	op, err := d.fetch8()
	if err != nil {
		return err
	}
	if h, ok := twoByteTable[op]; ok {
		return h(d, op)
	}
	return d.fail("unimplemented 0x0F 0x%02X", op)
}

type opHandler func(d *decoder, opcode byte) error

var oneByteTable map[byte]opHandler
var twoByteTable map[byte]opHandler

func init() {
	oneByteTable = make(map[byte]opHandler)
	twoByteTable = make(map[byte]opHandler)
	registerAluOps(oneByteTable)
	registerDataOps(oneByteTable)
	registerControlOps(oneByteTable)
	registerShiftOps(oneByteTable)
	registerMMXSSEOps(twoByteTable)
	registerControl0FOps(twoByteTable)
}
