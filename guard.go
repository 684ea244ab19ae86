package core

import "sync/atomic"

// opGuard rejects nested state-mutating calls outright instead of queueing
// them. External transfer callbacks re-entering the engine mid-operation hit
// the guard; read-only queries never take it.
type opGuard struct {
	busy int32
}

func (g *opGuard) enter() bool {
	return atomic.CompareAndSwapInt32(&g.busy, 0, 1)
}

func (g *opGuard) exit() {
	atomic.StoreInt32(&g.busy, 0)
}
