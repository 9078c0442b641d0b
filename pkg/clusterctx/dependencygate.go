package clusterctx

import (
	"context"
	"sync"
)

// DependencyGate enforces the group-priority obstruction rule between
// recovery groups: a group-k Recover-Ranges operation for a failed server
// cannot begin until every lower-priority group (ROOT, METADATA, SYSTEM) for
// that same server has reached ACKNOWLEDGE. Each group's completion
// Releases a sentinel (see rangekey.DependencySentinel); the group that
// depends on it Waits on that same string.
//
// A sentinel Release that happens before anyone Waits on it is remembered,
// not lost -- the gate is a set of latched flags, not a broadcast.
type DependencyGate struct {
	mu        sync.Mutex
	cond      *sync.Cond
	satisfied map[string]bool
}

func NewDependencyGate() *DependencyGate {
	g := &DependencyGate{satisfied: map[string]bool{}}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Release latches sentinel as satisfied and wakes any waiters. Idempotent.
func (g *DependencyGate) Release(sentinel string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.satisfied[sentinel] = true
	g.cond.Broadcast()
}

// Wait blocks until sentinel has been Released or ctx is done. An empty
// sentinel is satisfied immediately -- the ROOT group has no dependency.
func (g *DependencyGate) Wait(ctx context.Context, sentinel string) error {
	if sentinel == "" {
		return nil
	}

	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		for !g.satisfied[sentinel] {
			g.cond.Wait()
		}
		g.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear removes every latched sentinel, used between independent recovery
// attempts for the same server (a new attempt needs its dependencies
// re-satisfied, not inherited from the last one).
func (g *DependencyGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.satisfied = map[string]bool{}
}
