// Package master implements the master's side of the recovery RPC
// service: the three completion callbacks a player or receiver calls
// back with (replay-complete, phantom-prepare-complete, phantom-commit-
// complete). Everything else in rsrpc.RecoveryServer is the range-server's
// job, not the master's, so this Server only overrides those three and
// embeds rsrpc.UnimplementedRecoveryServer for the rest.
package master

import (
	"context"
	"fmt"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// Server is registered on the master's grpc.Server so players and
// receivers can report per-fragment and per-range outcomes back into the
// Cluster Context's trackers.
type Server struct {
	rsrpc.UnimplementedRecoveryServer

	cctx *clusterctx.Context
}

func New(cctx *clusterctx.Context) *Server {
	return &Server{cctx: cctx}
}

func errForCode(code int32) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("rsrpc: remote error code %d", code)
}

func (s *Server) ReplayComplete(ctx context.Context, in *rsrpc.ReplayCompleteRequest) (*rsrpc.Status, error) {
	results := make(map[int32]error, len(in.Results))
	for _, res := range in.Results {
		results[int32(res.Fragment)] = errForCode(res.Err)
	}
	s.cctx.ReplayComplete(clusterctx.OpID(in.OpID), in.Attempt, results)
	return &rsrpc.Status{}, nil
}

func (s *Server) PhantomPrepareComplete(ctx context.Context, in *rsrpc.PhantomPrepareCompleteRequest) (*rsrpc.Status, error) {
	results := make(map[interface{}]error, len(in.Results))
	for _, res := range in.Results {
		var key interface{} = res.Range
		results[key] = errForCode(res.Err)
	}
	s.cctx.PrepareComplete(clusterctx.OpID(in.OpID), in.Attempt, results)
	return &rsrpc.Status{}, nil
}

func (s *Server) PhantomCommitComplete(ctx context.Context, in *rsrpc.PhantomCommitCompleteRequest) (*rsrpc.Status, error) {
	results := make(map[interface{}]error, len(in.Results))
	for _, res := range in.Results {
		var key interface{} = res.Range
		results[key] = errForCode(res.Err)
	}
	s.cctx.CommitComplete(clusterctx.OpID(in.OpID), in.Attempt, results)
	return &rsrpc.Status{}, nil
}
