// Package clusterctx implements the Cluster Context: the
// authoritative, in-memory registry of range-servers, their connection
// state, and the per-recovery synchronization trackers that every
// recovery operation waits on.
package clusterctx

import (
	"fmt"
	"sync"
)

// Server is one entry in the ServerList. Location is the unique key; the
// remaining address fields are only as unique as the deployment makes them.
type Server struct {
	Location   string
	Hostname   string
	PublicAddr string
	LocalAddr  string
	Connected  bool
	Removed    bool // set while a recover-server operation owns this server
	Balanced   bool
}

// ServerList is a five-way-indexed registry of range-servers: a
// sequence for round-robin assignment, plus hash lookups by location
// (unique), hostname, public address (unique) and local address. A single
// coarse mutex guards every mutation; lookups never block.
type ServerList struct {
	mu   sync.Mutex
	cond *sync.Cond

	seq []*Server // insertion order, for round-robin

	byLocation   map[string]*Server
	byHostname   map[string][]*Server
	byPublicAddr map[string]*Server
	byLocalAddr  map[string][]*Server

	connectedCount int
	rrCursor       int
}

func NewServerList() *ServerList {
	sl := &ServerList{
		byLocation:   map[string]*Server{},
		byHostname:   map[string][]*Server{},
		byPublicAddr: map[string]*Server{},
		byLocalAddr:  map[string][]*Server{},
	}
	sl.cond = sync.NewCond(&sl.mu)
	return sl
}

// AddServer registers rs. A duplicate location id is a programming error in
// the caller (who is supposed to have deduplicated already), not a runtime
// condition to recover from.
func (sl *ServerList) AddServer(rs *Server) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if _, ok := sl.byLocation[rs.Location]; ok {
		panic(fmt.Sprintf("clusterctx: duplicate location id %q", rs.Location))
	}

	sl.seq = append(sl.seq, rs)
	sl.byLocation[rs.Location] = rs
	sl.byHostname[rs.Hostname] = append(sl.byHostname[rs.Hostname], rs)
	sl.byLocalAddr[rs.LocalAddr] = append(sl.byLocalAddr[rs.LocalAddr], rs)
	if rs.PublicAddr != "" {
		sl.byPublicAddr[rs.PublicAddr] = rs
	}
	if rs.Connected {
		sl.connectedCount++
		if sl.connectedCount == 1 {
			sl.cond.Broadcast()
		}
	}
}

// ConnectServer marks rs connected, replacing any existing entry for the
// same location. Returns true iff this call caused the connected count to
// rise from 0 to 1, in which case waiters in WaitForServer are woken.
func (sl *ServerList) ConnectServer(location, hostname, localAddr, publicAddr string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	rs, ok := sl.byLocation[location]
	if !ok {
		rs = &Server{Location: location}
		sl.seq = append(sl.seq, rs)
		sl.byLocation[location] = rs
	}

	rs.Hostname = hostname
	rs.LocalAddr = localAddr
	rs.PublicAddr = publicAddr

	wasZero := sl.connectedCount == 0
	if !rs.Connected {
		rs.Connected = true
		sl.connectedCount++
	}

	sl.byHostname[hostname] = append(sl.byHostname[hostname], rs)
	sl.byLocalAddr[localAddr] = append(sl.byLocalAddr[localAddr], rs)
	if publicAddr != "" {
		sl.byPublicAddr[publicAddr] = rs
	}

	transitioned := wasZero && sl.connectedCount == 1
	if transitioned {
		sl.cond.Broadcast()
	}
	return transitioned
}

// DisconnectServer decrements the connected count iff rs was connected. The
// count never goes negative; a redundant disconnect is a no-op.
func (sl *ServerList) DisconnectServer(location string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	rs, ok := sl.byLocation[location]
	if !ok || !rs.Connected {
		return
	}
	rs.Connected = false
	sl.connectedCount--
}

func (sl *ServerList) FindServerByLocation(location string) (*Server, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	rs, ok := sl.byLocation[location]
	return rs, ok
}

func (sl *ServerList) FindServerByHostname(hostname string) (*Server, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	list := sl.byHostname[hostname]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

func (sl *ServerList) FindServerByPublicAddr(addr string) (*Server, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	rs, ok := sl.byPublicAddr[addr]
	return rs, ok
}

func (sl *ServerList) FindServerByLocalAddr(addr string) (*Server, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	list := sl.byLocalAddr[addr]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// NextAvailableServer round-robins over the registration sequence, skipping
// disconnected servers. It returns false only when nothing is connected. It
// never returns the same server twice in a row unless that server is the
// only one connected.
func (sl *ServerList) NextAvailableServer() (*Server, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	n := len(sl.seq)
	if n == 0 {
		return nil, false
	}
	for i := 0; i < n; i++ {
		sl.rrCursor = (sl.rrCursor + 1) % n
		rs := sl.seq[sl.rrCursor]
		if rs.Connected {
			return rs, true
		}
	}
	return nil, false
}

// GetUnbalancedServers returns every server in names that is neither
// removed (mid-recovery) nor already balanced. Used by the balancer after a
// recovery finishes.
func (sl *ServerList) GetUnbalancedServers(names []string) []*Server {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	out := make([]*Server, 0, len(names))
	for _, name := range names {
		rs, ok := sl.byLocation[name]
		if !ok || rs.Removed || rs.Balanced {
			continue
		}
		out = append(out, rs)
	}
	return out
}

// SetRemoved marks or clears the removed flag recovery uses to take a
// server out of normal service during its own recovery.
func (sl *ServerList) SetRemoved(location string, removed bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if rs, ok := sl.byLocation[location]; ok {
		rs.Removed = removed
	}
}

// WaitForServer blocks until at least one server is connected. It is the
// only suspension point in ServerList.
func (sl *ServerList) WaitForServer() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	for sl.connectedCount == 0 {
		sl.cond.Wait()
	}
}

func (sl *ServerList) ConnectedCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.connectedCount
}
