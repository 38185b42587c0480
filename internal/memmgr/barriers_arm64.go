//go:build arm64

package memmgr

func insertDataMemoryBarrierAsm()
func insertDataSyncBarrierAsm()
func insertInstructionSyncBarrierAsm()

func InsertDataMemoryBarrier()      { insertDataMemoryBarrierAsm() }
func InsertDataSyncBarrier()        { insertDataSyncBarrierAsm() }
func InsertInstructionSyncBarrier() { insertInstructionSyncBarrierAsm() }
