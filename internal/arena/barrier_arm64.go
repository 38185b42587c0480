//go:build arm64

package arena

// syncInstructionCacheAsm is implemented in barrier_arm64.s.
func syncInstructionCacheAsm()

func syncInstructionCache(_ []byte) { syncInstructionCacheAsm() }
