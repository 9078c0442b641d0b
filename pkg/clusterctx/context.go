package clusterctx

import (
	"log"
	"sync/atomic"
)

// Context is the Cluster Context: the ServerList plus the three
// recovery-tracker maps, and the op id sequence recovery operations draw
// from. One Context is shared by every in-flight recovery operation in a
// process.
type Context struct {
	Servers *ServerList

	trackers *trackers
	nextOpID int64
}

func NewContext() *Context {
	return &Context{
		Servers:  NewServerList(),
		trackers: newTrackers(),
	}
}

// NewOpID hands out a fresh operation id for a recovery operation to tag
// its outbound requests and trackers with.
func (c *Context) NewOpID() OpID {
	return OpID(atomic.AddInt64(&c.nextOpID, 1))
}

func (c *Context) InstallReplayTracker(id OpID, tr *ReplayTracker) {
	c.trackers.installReplay(id, tr)
}

func (c *Context) EraseReplayTracker(id OpID) {
	c.trackers.eraseReplay(id)
}

func (c *Context) InstallPrepareTracker(id OpID, tr *RangeTracker) {
	c.trackers.installPrepare(id, tr)
}

func (c *Context) ErasePrepareTracker(id OpID) {
	c.trackers.erasePrepare(id)
}

func (c *Context) InstallCommitTracker(id OpID, tr *RangeTracker) {
	c.trackers.installCommit(id, tr)
}

func (c *Context) EraseCommitTracker(id OpID) {
	c.trackers.eraseCommit(id)
}

// ReplayComplete handles a decoded replay-complete wire event: look up the
// tracker for op_id, verify attempt matches, and fan results into it. An
// unknown op_id or stale attempt is logged and dropped -- never fatal, never
// retried.
func (c *Context) ReplayComplete(id OpID, attempt int32, results map[int32]error) {
	c.trackers.mu.Lock()
	tr, ok := c.trackers.replay[id]
	c.trackers.mu.Unlock()
	if !ok {
		log.Printf("clusterctx: replay_complete for unknown op %d, dropped", id)
		return
	}
	if tr.Attempt() != attempt {
		log.Printf("clusterctx: replay_complete for op %d attempt %d, tracker is on attempt %d, dropped", id, attempt, tr.Attempt())
		return
	}
	for fragment, err := range results {
		tr.Complete(fragment, err)
	}
}

// PrepareComplete handles a decoded phantom-prepare-complete wire event.
func (c *Context) PrepareComplete(id OpID, attempt int32, results map[rangeKey]error) {
	c.trackers.mu.Lock()
	tr, ok := c.trackers.prepare[id]
	c.trackers.mu.Unlock()
	if !ok {
		log.Printf("clusterctx: prepare_complete for unknown op %d, dropped", id)
		return
	}
	if tr.Attempt() != attempt {
		log.Printf("clusterctx: prepare_complete for op %d attempt %d, tracker is on attempt %d, dropped", id, attempt, tr.Attempt())
		return
	}
	for key, err := range results {
		tr.Complete(key, err)
	}
}

// CommitComplete handles a decoded phantom-commit-complete wire event.
func (c *Context) CommitComplete(id OpID, attempt int32, results map[rangeKey]error) {
	c.trackers.mu.Lock()
	tr, ok := c.trackers.commit[id]
	c.trackers.mu.Unlock()
	if !ok {
		log.Printf("clusterctx: commit_complete for unknown op %d, dropped", id)
		return
	}
	if tr.Attempt() != attempt {
		log.Printf("clusterctx: commit_complete for op %d attempt %d, tracker is on attempt %d, dropped", id, attempt, tr.Attempt())
		return
	}
	for key, err := range results {
		tr.Complete(key, err)
	}
}
