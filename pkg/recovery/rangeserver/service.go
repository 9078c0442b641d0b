// Package rangeserver implements the range-server side of the replay
// protocol: the gRPC handlers a destination and a
// player expose to the coordinator and to each other. It is the home of
// the Phantom-Range Engine from the wire's point of view -- pkg/phantom
// owns the per-range state, this package owns the RPCs that drive it and
// the player logic that reads a failed server's fragments and re-routes
// their contents.
package rangeserver

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tessellate-db/tessellate/pkg/blockcodec"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/fragment"
	"github.com/tessellate-db/tessellate/pkg/metalog"
	"github.com/tessellate-db/tessellate/pkg/phantom"
	"github.com/tessellate-db/tessellate/pkg/plan"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// Dialer resolves a location id to an RPC client -- the same shape as
// recoverranges.Dialer (pkg/rpcdial.Dialer satisfies both) so the player
// role can reach whichever destinations the coordinator assigned it to
// route rows to.
type Dialer interface {
	Dial(location string) (rsrpc.RecoveryClient, error)
}

// Service implements rsrpc.RecoveryServer on a range-server: the
// destination-side handlers (phantom-receive, phantom-update,
// phantom-{prepare,commit}-ranges, acknowledge-load) and the player-side
// handler (replay-fragments). One Service is shared by every recovery
// attempt a range-server is participating in concurrently, the way one
// clusterctx.Context is shared by every recovery operation on the master.
type Service struct {
	rsrpc.UnimplementedRecoveryServer

	Location string // this range-server's own location id

	Phantoms *phantom.RangeMap
	Store    fragment.Store // failed servers' log fragments, read by the player role
	RSML     *metalog.Log   // this server's own range-server meta-log

	Dial         Dialer               // reaches peer range-servers (other destinations)
	MasterClient rsrpc.RecoveryClient // reaches the master's completion callbacks

	Cfg      config.Config
	LogDir   string             // base directory for phantom commit logs
	MkLogDir phantom.LogDirFunc // nil -> phantom.DefaultLogDir()
	Codec    blockcodec.ID      // codec used to compress phantom-update blocks; default None
}

// PhantomReceive stands up one phantom range per requested range, each
// expecting exactly the fragment ids in the request.
func (s *Service) PhantomReceive(ctx context.Context, req *rsrpc.PhantomReceiveRequest) (*rsrpc.Status, error) {
	for _, rng := range req.Ranges {
		s.Phantoms.GetOrCreate(rng, req.Fragments)
	}
	return &rsrpc.Status{}, nil
}

// PhantomUpdate buffers one batch of replayed rows for one fragment of one
// range. A range this destination was never told about is a misrouted
// message: this replies with a protocol error and
// leaves phantom state untouched, rather than panicking -- only an
// unexpected *fragment* on a *known* range is the programmer-error case
// pkg/phantom treats as fatal.
func (s *Service) PhantomUpdate(ctx context.Context, req *rsrpc.PhantomUpdateRequest) (*rsrpc.PhantomUpdateResponse, error) {
	pr, ok := s.Phantoms.Get(req.Range)
	if !ok {
		log.Printf("rangeserver: %s: phantom-update for unknown range %s, protocol error", s.Location, req.Range)
		return &rsrpc.PhantomUpdateResponse{Err: 1, Range: req.Range, Fragment: req.Fragment}, nil
	}

	pr.Add(req.Fragment, req.More, req.Block)
	return &rsrpc.PhantomUpdateResponse{Range: req.Range, Fragment: req.Fragment}, nil
}

// PhantomPrepareRanges moves every requested range from RANGE_CREATED to
// RANGE_PREPARED: it creates the live range object, merges every buffered
// fragment into it, and allocates the phantom commit-log directory. Per-range outcomes are
// reported back to the coordinator via phantom-prepare-complete, not in
// this call's own response -- the same asynchronous completion shape
// every later phase uses.
func (s *Service) PhantomPrepareRanges(ctx context.Context, req *rsrpc.PhantomPrepareRangesRequest) (*rsrpc.Status, error) {
	go s.preparePhase(req)
	return &rsrpc.Status{}, nil
}

func (s *Service) preparePhase(req *rsrpc.PhantomPrepareRangesRequest) {
	mkLogDir := s.MkLogDir
	if mkLogDir == nil {
		mkLogDir = phantom.DefaultLogDir()
	}

	results := make([]rsrpc.RangeResult, 0, len(req.Ranges))
	for _, rng := range req.Ranges {
		pr, ok := s.Phantoms.Get(rng)
		if !ok {
			log.Printf("rangeserver: %s: phantom-prepare-ranges for unknown range %s", s.Location, rng)
			results = append(results, rsrpc.RangeResult{Range: rng, Err: 1})
			continue
		}

		pr.CreateRange()
		if _, _, err := pr.PopulateRangeAndLog(s.LogDir, mkLogDir); err != nil {
			log.Printf("rangeserver: %s: populate range and log for %s: %v", s.Location, rng, err)
			results = append(results, rsrpc.RangeResult{Range: rng, Err: 1})
			continue
		}
		results = append(results, rsrpc.RangeResult{Range: rng, Err: 0})
	}

	rc := &rsrpc.PhantomPrepareCompleteRequest{OpID: req.OpID, Attempt: req.Attempt, Results: results}
	if _, err := s.MasterClient.PhantomPrepareComplete(rsrpc.WithUrgent(context.Background()), rc); err != nil {
		log.Printf("rangeserver: %s: report phantom-prepare-complete for op %d: %v", s.Location, req.OpID, err)
	}
}

// PhantomCommitRanges flips every requested range from RANGE_PREPARED to
// LIVE. Same asynchronous-completion shape as PhantomPrepareRanges.
func (s *Service) PhantomCommitRanges(ctx context.Context, req *rsrpc.PhantomCommitRangesRequest) (*rsrpc.Status, error) {
	go s.commitPhase(req)
	return &rsrpc.Status{}, nil
}

func (s *Service) commitPhase(req *rsrpc.PhantomCommitRangesRequest) {
	results := make([]rsrpc.RangeResult, 0, len(req.Ranges))
	for _, rng := range req.Ranges {
		pr, ok := s.Phantoms.Get(rng)
		if !ok {
			log.Printf("rangeserver: %s: phantom-commit-ranges for unknown range %s", s.Location, rng)
			results = append(results, rsrpc.RangeResult{Range: rng, Err: 1})
			continue
		}
		pr.Commit()
		results = append(results, rsrpc.RangeResult{Range: rng, Err: 0})
	}

	rc := &rsrpc.PhantomCommitCompleteRequest{OpID: req.OpID, Attempt: req.Attempt, Results: results}
	if _, err := s.MasterClient.PhantomCommitComplete(rsrpc.WithUrgent(context.Background()), rc); err != nil {
		log.Printf("rangeserver: %s: report phantom-commit-complete for op %d: %v", s.Location, req.OpID, err)
	}
}

// AcknowledgeLoad confirms every requested range is LIVE and, per scenario
// S1, clears it from the phantom map: once acknowledged the range is an
// ordinary live range, not a recovery-in-progress one.
func (s *Service) AcknowledgeLoad(ctx context.Context, req *rsrpc.AcknowledgeLoadRequest) (*rsrpc.AcknowledgeLoadResponse, error) {
	results := make([]rsrpc.RangeResult, 0, len(req.Ranges))
	for _, rng := range req.Ranges {
		pr, ok := s.Phantoms.Get(rng)
		if !ok || pr.State() != phantom.StateLive {
			results = append(results, rsrpc.RangeResult{Range: rng, Err: 1})
			continue
		}

		if s.RSML != nil {
			entry := metalog.RangeEntry{Range: rng, Group: rangekey.GroupUser}
			rec := metalog.Record{Location: s.Location, Type: metalog.EntityLiveRange, Payload: entry.Encode()}
			if err := s.RSML.Append(ctx, rec); err != nil {
				log.Printf("rangeserver: %s: record %s live in RSML: %v", s.Location, rng, err)
				results = append(results, rsrpc.RangeResult{Range: rng, Err: 1})
				continue
			}
		}

		s.Phantoms.Remove(rng)
		results = append(results, rsrpc.RangeResult{Range: rng, Err: 0})
	}
	return &rsrpc.AcknowledgeLoadResponse{Results: results}, nil
}

// ReplayFragments is the player role of the replay protocol: read every assigned
// fragment of the failed server's log, route each row to its receiver via
// the coordinator-supplied receiver plan, buffer per range subject to the
// aggregate and per-range flush thresholds, and report the outcome back to
// the coordinator with a single replay-complete call.
func (s *Service) ReplayFragments(ctx context.Context, req *rsrpc.ReplayFragmentsRequest) (*rsrpc.Status, error) {
	go s.replay(req)
	return &rsrpc.Status{}, nil
}

func (s *Service) replay(req *rsrpc.ReplayFragmentsRequest) {
	rplan, err := plan.DecodeReceiverPlan(req.ReceiverPlan)
	if err != nil {
		log.Printf("rangeserver: %s: decode receiver plan for op %d: %v", s.Location, req.OpID, err)
		s.reportReplayComplete(req, allFailed(req.Fragments))
		return
	}

	p := newPlayer(s, rplan)

	var mu sync.Mutex
	results := make(map[rangekey.FragmentID]int32, len(req.Fragments))

	g, gctx := errgroup.WithContext(context.Background())
	for _, fid := range req.Fragments {
		fid := fid
		g.Go(func() error {
			code := int32(0)
			if err := p.playFragment(gctx, req.RecoverLocation, rangekey.Group(req.Type), fid); err != nil {
				log.Printf("rangeserver: %s: replay fragment %d of %s: %v", s.Location, fid, req.RecoverLocation, err)
				code = 1
			}
			mu.Lock()
			results[fid] = code
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	s.reportReplayComplete(req, results)
}

func allFailed(fragments []rangekey.FragmentID) map[rangekey.FragmentID]int32 {
	out := make(map[rangekey.FragmentID]int32, len(fragments))
	for _, f := range fragments {
		out[f] = 1
	}
	return out
}

func (s *Service) reportReplayComplete(req *rsrpc.ReplayFragmentsRequest, results map[rangekey.FragmentID]int32) {
	out := make([]rsrpc.FragmentResult, 0, len(results))
	for _, f := range req.Fragments {
		out = append(out, rsrpc.FragmentResult{Fragment: f, Err: results[f]})
	}
	rc := &rsrpc.ReplayCompleteRequest{OpID: req.OpID, Attempt: req.Attempt, Results: out}
	if _, err := s.MasterClient.ReplayComplete(rsrpc.WithUrgent(context.Background()), rc); err != nil {
		log.Printf("rangeserver: %s: report replay-complete for op %d: %v", s.Location, req.OpID, err)
	}
}
