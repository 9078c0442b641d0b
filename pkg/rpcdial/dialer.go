// Package rpcdial resolves a location id to a cached rsrpc.RecoveryClient
// over a plain grpc.ClientConn: grpc.DialContext with grpc.WithInsecure(),
// one connection per remote, reused across calls. It implements
// recoverranges.Dialer, and the same cache backs the range-server side's
// calls to its peers during the replay protocol.
package rpcdial

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// Dialer resolves a location id via a clusterctx.ServerList and caches the
// resulting connection.
type Dialer struct {
	servers *clusterctx.ServerList

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func New(servers *clusterctx.ServerList) *Dialer {
	return &Dialer{servers: servers, conns: map[string]*grpc.ClientConn{}}
}

// Dial returns a RecoveryClient for location, dialing and caching the
// connection on first use. Satisfies recoverranges.Dialer.
func (d *Dialer) Dial(location string) (rsrpc.RecoveryClient, error) {
	rs, ok := d.servers.FindServerByLocation(location)
	if !ok {
		return nil, fmt.Errorf("rpcdial: unknown location %q", location)
	}
	if rs.PublicAddr == "" {
		return nil, fmt.Errorf("rpcdial: %q has no public address", location)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if conn, ok := d.conns[location]; ok {
		return rsrpc.NewRecoveryClient(conn), nil
	}

	conn, err := grpc.DialContext(context.Background(), rs.PublicAddr, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("rpcdial: dial %s (%s): %w", location, rs.PublicAddr, err)
	}
	d.conns[location] = conn
	return rsrpc.NewRecoveryClient(conn), nil
}

// DialAddr dials a fixed address directly, bypassing the ServerList --
// used for the one peer every range-server always knows how to reach
// without a location lookup: the master's recovery-completion endpoint.
func DialAddr(addr string) (rsrpc.RecoveryClient, error) {
	conn, err := grpc.DialContext(context.Background(), addr, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("rpcdial: dial %s: %w", addr, err)
	}
	return rsrpc.NewRecoveryClient(conn), nil
}

// Close tears down every cached connection.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		conn.Close()
	}
	d.conns = map[string]*grpc.ClientConn{}
}
