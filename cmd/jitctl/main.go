// Command jitctl is a small diagnostic front-end for the translation
// engine: it loads a flat binary image of guest code at a fixed address,
// translates a single entry point, and reports what the decoder and
// emitter produced. It does not execute the generated code -- running
// native blocks needs a real host state block and callback table, which
// only an embedding VM can provide; jitctl exists to exercise and inspect
// the decode/translate path in isolation, the way ie32to64 once exercised
// the assembler's source-to-source path.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xenoarm/jit64/engine"
	"github.com/xenoarm/jit64/internal/config"
	"github.com/xenoarm/jit64/internal/memmgr"
)

func main() {
	imagePath := flag.String("image", "", "flat binary file containing guest code")
	loadAddrFlag := flag.Uint("load-addr", 0, "guest address the image is loaded at")
	entryFlag := flag.Uint("entry", 0, "guest address to translate")
	configPath := flag.String("config", "", "optional TOML config file (defaults used otherwise)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jitctl -image FILE [-load-addr N] [-entry N]\n\nTranslates one block from a flat guest image and prints what the\ndecoder/register-allocator/emitter pipeline produced.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(1)
	}
	loadAddr := uint32(*loadAddrFlag)
	entry := uint32(*entryFlag)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	e := engine.New(cfg, engine.Callbacks{Callbacks: flatImageCallbacks(image, loadAddr)})
	defer e.Shutdown()

	hostAddr, err := e.Translate(entry)
	if err != nil {
		last, code := e.LastError()
		fmt.Fprintf(os.Stderr, "translation failed (%s): %v\n", code, last)
		os.Exit(1)
	}
	fmt.Printf("translated guest 0x%08X -> host block at %#x\n", entry, hostAddr)
}

// flatImageCallbacks serves reads from a preloaded byte slice starting at
// loadAddr and discards writes, which is enough to drive translation
// (jitctl never executes the result, so guest writes never occur on this
// path in practice).
func flatImageCallbacks(image []byte, loadAddr uint32) memmgr.Callbacks {
	read := func(addr uint32, n int) []byte {
		off := int(addr - loadAddr)
		if off < 0 || off >= len(image) {
			return make([]byte, n)
		}
		end := off + n
		if end > len(image) {
			end = len(image)
		}
		out := make([]byte, n)
		copy(out, image[off:end])
		return out
	}
	return memmgr.Callbacks{
		ReadU8:  func(addr uint32) uint8 { return read(addr, 1)[0] },
		ReadU16: func(addr uint32) uint16 { b := read(addr, 2); return uint16(b[0]) | uint16(b[1])<<8 },
		ReadU32: func(addr uint32) uint32 {
			b := read(addr, 4)
			return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		},
		ReadBlock: func(addr uint32, buf []byte) { copy(buf, read(addr, len(buf))) },
	}
}
