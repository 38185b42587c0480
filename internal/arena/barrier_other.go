//go:build !arm64

package arena

// syncInstructionCache is a no-op off arm64: the arena's write/execute
// toggling and bump allocation are architecture-independent and useful to
// exercise in tests on any host, but the icache-coherence step is only
// meaningful where the translator actually executes generated code.
func syncInstructionCache(_ []byte) {}
