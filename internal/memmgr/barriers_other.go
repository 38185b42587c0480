//go:build !arm64

package memmgr

// Barriers are meaningless off arm64 (there is no generated code executing
// concurrently to publish cache state to); the page-map and SMC bookkeeping
// above is architecture-independent and worth exercising on any host.
func InsertDataMemoryBarrier()      {}
func InsertDataSyncBarrier()        {}
func InsertInstructionSyncBarrier() {}
