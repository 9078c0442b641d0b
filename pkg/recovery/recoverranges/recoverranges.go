// Package recoverranges implements the Recover-Ranges operation: the
// per-group state machine that drives the four-phase replay protocol
// (ISSUE_REQUESTS -> PREPARE -> COMMIT -> ACKNOWLEDGE) for one priority
// group of one failed server's ranges. It builds and repairs the recovery
// plan (pkg/plan), waits for lower-priority groups via a dependency gate
// (pkg/clusterctx), and fans its RPCs out with golang.org/x/sync/errgroup.
package recoverranges

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/faultinjector"
	"github.com/tessellate-db/tessellate/pkg/metalog"
	"github.com/tessellate-db/tessellate/pkg/plan"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// State is one of the Recover-Ranges operation's five observable states.
type State int

const (
	StateInitial State = iota
	StateIssueRequests
	StatePrepare
	StateCommit
	StateAcknowledge
	StateCompleteOK
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateIssueRequests:
		return "ISSUE_REQUESTS"
	case StatePrepare:
		return "PREPARE"
	case StateCommit:
		return "COMMIT"
	case StateAcknowledge:
		return "ACKNOWLEDGE"
	case StateCompleteOK:
		return "COMPLETE_OK"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Dialer resolves a location to an RPC client. Production code dials a real
// grpc.ClientConn and wraps it with rsrpc.NewRecoveryClient; tests supply an
// in-process fake.
type Dialer interface {
	Dial(location string) (rsrpc.RecoveryClient, error)
}

// FragmentSource enumerates a failed server's on-disk log fragments for one
// group, used only when a fresh plan is built with no fragment list
// supplied.
type FragmentSource interface {
	Fragments(ctx context.Context, location string, group rangekey.Group) ([]rangekey.FragmentID, error)
}

// ErrNoConnectedServer is returned by plan construction/repair when no
// candidate destination is available at all.
var ErrNoConnectedServer = fmt.Errorf("recoverranges: no connected server available")

// Operation is one Recover-Ranges instance: a failed server, one
// priority group of its ranges, and everything needed to replay that
// group's log and flip its ranges live on new owners.
type Operation struct {
	Location   string        // the failed server being recovered
	Group      rangekey.Group
	Dependency string // obstruction sentinel this op must wait on; "" means none

	// OnResolved is called once per range, after ACKNOWLEDGE, with the
	// error (if any) reported for it -- the supplemented TableCallback
	// notification hook so waiting client operations can be retried.
	OnResolved func(rangekey.Ident, error)

	cctx    *clusterctx.Context
	gate    *clusterctx.DependencyGate
	dial    Dialer
	fragSrc FragmentSource
	mml     *metalog.Log
	cfg     config.Config

	mu      sync.Mutex
	state   State
	attempt int32

	fragments []rangekey.FragmentID // nil => enumerate from fragSrc on first build
	ranges    []rangekey.Ident

	replayPlan   *plan.ReplayPlan
	receiverPlan *plan.ReceiverPlan

	// opID is minted once at construction and stays fixed across restarts;
	// only the attempt counter moves, so a stale completion from an earlier
	// attempt finds the tracker and is rejected on the attempt check rather
	// than dissolving into an unknown-op drop.
	opID clusterctx.OpID
}

// New constructs a Recover-Ranges operation for one group of one failed
// server's ranges. fragments may be nil, in which case it is enumerated
// from fragSrc the first time a plan is built.
func New(location string, group rangekey.Group, ranges []rangekey.Ident, fragments []rangekey.FragmentID, dependency string, cctx *clusterctx.Context, gate *clusterctx.DependencyGate, dial Dialer, fragSrc FragmentSource, mml *metalog.Log, cfg config.Config) *Operation {
	return &Operation{
		Location:   location,
		Group:      group,
		Dependency: dependency,
		opID:       cctx.NewOpID(),
		cctx:       cctx,
		gate:       gate,
		dial:       dial,
		fragSrc:    fragSrc,
		mml:        mml,
		cfg:        cfg,
		ranges:     ranges,
		fragments:  fragments,
		state:      StateInitial,
	}
}

func (op *Operation) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

func (op *Operation) Attempt() int32 {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.attempt
}

func (op *Operation) setState(s State) {
	op.mu.Lock()
	op.state = s
	op.mu.Unlock()
	op.persist()
}

// persist writes the operation's current state and plan to the MML: each
// success transition is durable before the next phase begins. A nil mml (as in plan-only unit tests) makes this a no-op.
func (op *Operation) persist() {
	if op.mml == nil {
		return
	}
	var payload []byte
	if op.receiverPlan != nil {
		payload = op.receiverPlan.Encode()
	}
	rec := metalog.Record{
		Location: op.Location,
		Type:     metalog.EntityRecoverRanges,
		Attempt:  op.attempt,
		State:    int32(op.state),
		Payload:  payload,
	}
	if err := op.mml.Append(context.Background(), rec); err != nil {
		log.Printf("recoverranges: %s/%s: failed to persist state %s: %v", op.Location, op.Group, op.state, err)
	}
}

func (op *Operation) probe(site string) error {
	return faultinjector.Global.MaybeFail(fmt.Sprintf("recover-ranges-%s-%s-%s", op.Location, op.Group, site))
}

// Run drives the state machine to completion: INITIAL -> ISSUE_REQUESTS ->
// PREPARE -> COMMIT -> ACKNOWLEDGE -> success, or back to INITIAL with a
// bumped attempt counter on any phase failure. It first blocks on the
// dependency gate, enforcing the strict ROOT < METADATA < SYSTEM < USER
// ordering between recovery groups.
func (op *Operation) Run(ctx context.Context) error {
	if op.gate != nil {
		if err := op.gate.Wait(ctx, op.Dependency); err != nil {
			return fmt.Errorf("recoverranges: %s/%s: waiting on dependency %q: %w", op.Location, op.Group, op.Dependency, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			op.setState(StateFatal)
			return err
		}

		if err := op.probe(op.state.String()); err != nil {
			op.setState(StateFatal)
			return err
		}

		switch op.state {
		case StateInitial:
			done, err := op.runInitial(ctx)
			if err != nil {
				op.setState(StateFatal)
				return err
			}
			if done {
				op.setState(StateCompleteOK)
				return nil
			}
			op.setState(StateIssueRequests)

		case StateIssueRequests:
			retry, err := op.runIssueRequests(ctx)
			if err != nil {
				op.setState(StateFatal)
				return err
			}
			if retry {
				op.restart()
				continue
			}
			op.setState(StatePrepare)

		case StatePrepare:
			retry, err := op.runPhase(ctx, "prepare", op.cctx.InstallPrepareTracker, op.cctx.ErasePrepareTracker, plan.RangePrepared, func(c rsrpc.RecoveryClient, rctx context.Context, loc string, ranges []rangekey.Ident) error {
				_, err := c.PhantomPrepareRanges(rctx, &rsrpc.PhantomPrepareRangesRequest{
					OpID: int64(op.opID), Attempt: op.attempt, Location: loc, Ranges: ranges,
					TimeoutMs: timeoutMs(op.cfg.RequestTimeout),
				})
				return err
			})
			if err != nil {
				op.setState(StateFatal)
				return err
			}
			if retry {
				op.restart()
				continue
			}
			op.setState(StateCommit)

		case StateCommit:
			retry, err := op.runPhase(ctx, "commit", op.cctx.InstallCommitTracker, op.cctx.EraseCommitTracker, plan.RangeCommitted, func(c rsrpc.RecoveryClient, rctx context.Context, loc string, ranges []rangekey.Ident) error {
				_, err := c.PhantomCommitRanges(rctx, &rsrpc.PhantomCommitRangesRequest{
					OpID: int64(op.opID), Attempt: op.attempt, Location: loc, Ranges: ranges,
					TimeoutMs: timeoutMs(op.cfg.RequestTimeout),
				})
				return err
			})
			if err != nil {
				op.setState(StateFatal)
				return err
			}
			if retry {
				op.restart()
				continue
			}
			op.setState(StateAcknowledge)

		case StateAcknowledge:
			op.runAcknowledge(ctx)
			op.setState(StateCompleteOK)
			return nil

		case StateCompleteOK, StateFatal:
			return nil
		}
	}
}

// restart bumps the attempt counter and returns to INITIAL for a fresh plan
// repair -- the failure dispatch every phase shares.
func (op *Operation) restart() {
	op.mu.Lock()
	op.attempt++
	op.mu.Unlock()
	op.setState(StateInitial)
}

// runInitial builds or repairs the plan. It reports done=true when there is
// nothing to recover (empty fragment or range list).
func (op *Operation) runInitial(ctx context.Context) (done bool, err error) {
	if err := op.buildOrRepairPlan(ctx); err != nil {
		return false, err
	}
	if len(op.fragments) == 0 || len(op.ranges) == 0 {
		return true, nil
	}
	return false, nil
}

// runIssueRequests validates the plan and, if still valid, runs the replay
// protocol. An invalid plan (a player or receiver no longer connected) is
// reported as retry=true rather than an error.
func (op *Operation) runIssueRequests(ctx context.Context) (retry bool, err error) {
	if !op.validate() {
		return true, nil
	}
	if err := op.replayCommitLog(ctx); err != nil {
		log.Printf("recoverranges: %s/%s: replay failed, retrying: %v", op.Location, op.Group, err)
		return true, nil
	}
	return false, nil
}

// validate reports whether every player and every receiver in the current
// plan is still connected -- run before ISSUE_REQUESTS, PREPARE and COMMIT.
// ACKNOWLEDGE does not validate.
func (op *Operation) validate() bool {
	for _, loc := range op.receiverPlan.GetLocations() {
		if !op.connected(loc) {
			return false
		}
	}
	for _, loc := range op.replayPlan.GetLocations() {
		if !op.connected(loc) {
			return false
		}
	}
	return true
}

func (op *Operation) connected(location string) bool {
	rs, ok := op.cctx.Servers.FindServerByLocation(location)
	return ok && rs.Connected
}

// buildOrRepairPlan builds a fresh plan or repairs a stale one. A fresh
// build assigns every range and fragment round-robin over the currently
// connected set. A repair snapshots the existing plan's keys first (the
// indexes must not be mutated mid-iteration) and reassigns only the
// entries whose location is no longer
// connected, preserving progress already made by still-connected
// destinations.
func (op *Operation) buildOrRepairPlan(ctx context.Context) error {
	if op.receiverPlan == nil {
		op.receiverPlan = plan.NewReceiverPlan()
		op.replayPlan = plan.NewReplayPlan()

		if op.fragments == nil {
			frags, err := op.fragSrc.Fragments(ctx, op.Location, op.Group)
			if err != nil {
				return fmt.Errorf("recoverranges: enumerate fragments: %w", err)
			}
			op.fragments = frags
		}

		for _, r := range op.ranges {
			loc, ok := op.nextConnected()
			if !ok {
				return ErrNoConnectedServer
			}
			op.receiverPlan.Insert(loc, r)
		}
		for _, f := range op.fragments {
			loc, ok := op.nextConnected()
			if !ok {
				return ErrNoConnectedServer
			}
			op.replayPlan.Insert(loc, f)
		}
		return nil
	}

	var staleRanges []rangekey.Ident
	for _, r := range op.receiverPlan.GetKeys() {
		loc, _ := op.receiverPlan.Location(r)
		if !op.connected(loc) {
			staleRanges = append(staleRanges, r)
		}
	}
	for _, r := range staleRanges {
		loc, ok := op.nextConnected()
		if !ok {
			return ErrNoConnectedServer
		}
		op.receiverPlan.Insert(loc, r)
	}

	var staleFragments []rangekey.FragmentID
	for _, f := range op.replayPlan.GetKeys() {
		loc, _ := op.replayPlan.Location(f)
		if !op.connected(loc) {
			staleFragments = append(staleFragments, f)
		}
	}
	for _, f := range staleFragments {
		loc, ok := op.nextConnected()
		if !ok {
			return ErrNoConnectedServer
		}
		op.replayPlan.Insert(loc, f)
	}
	return nil
}

func (op *Operation) nextConnected() (string, bool) {
	rs, ok := op.cctx.Servers.NextAvailableServer()
	if !ok {
		return "", false
	}
	return rs.Location, true
}

// replayCommitLog runs the log phase of the replay protocol:
// phantom-receive to every receiver, then replay-fragments to every
// player, fanned out with errgroup; then it waits on a replay-tracker
// installed in the cluster context.
func (op *Operation) replayCommitLog(ctx context.Context) error {
	if err := op.probe("ISSUE_REQUESTS-receive"); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range op.receiverPlan.GetLocations() {
		loc := loc
		ranges := op.receiverPlan.GetKeysForLocation(loc)
		g.Go(func() error {
			cli, err := op.dial.Dial(loc)
			if err != nil {
				return fmt.Errorf("dial receiver %s: %w", loc, err)
			}
			_, err = cli.PhantomReceive(rsrpc.WithUrgent(gctx), &rsrpc.PhantomReceiveRequest{
				Location:  op.Location,
				Fragments: op.fragments,
				Ranges:    ranges,
			})
			if err != nil {
				return fmt.Errorf("phantom-receive to %s: %w", loc, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tracker := clusterctx.NewReplayTracker(op.attempt, len(op.fragments))
	op.cctx.InstallReplayTracker(op.opID, tracker)
	defer op.cctx.EraseReplayTracker(op.opID)

	encodedReceiverPlan := op.receiverPlan.Encode()

	g2, gctx2 := errgroup.WithContext(ctx)
	for _, loc := range op.replayPlan.GetLocations() {
		loc := loc
		frags := op.replayPlan.GetKeysForLocation(loc)
		g2.Go(func() error {
			cli, err := op.dial.Dial(loc)
			if err != nil {
				return fmt.Errorf("dial player %s: %w", loc, err)
			}
			_, err = cli.ReplayFragments(rsrpc.WithUrgent(gctx2), &rsrpc.ReplayFragmentsRequest{
				OpID:            int64(op.opID),
				Attempt:         op.attempt,
				RecoverLocation: op.Location,
				Type:            int32(op.Group),
				Fragments:       frags,
				ReceiverPlan:    encodedReceiverPlan,
				TimeoutMs:       timeoutMs(op.cfg.ReplayTimeout),
			})
			if err != nil {
				return fmt.Errorf("replay-fragments to %s: %w", loc, err)
			}
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return err
	}

	results := tracker.Wait(op.cfg.ReplayTimeout)
	var failed []rangekey.FragmentID
	for fragment, ferr := range results {
		if ferr != nil {
			failed = append(failed, rangekey.FragmentID(fragment))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("recoverranges: %d fragment(s) failed to replay: %v", len(failed), failed)
	}
	if len(results) < len(op.fragments) {
		return fmt.Errorf("recoverranges: replay timed out with %d of %d fragment(s) reported", len(results), len(op.fragments))
	}
	return nil
}

// runPhase implements the shared shape of PREPARE and COMMIT: validate, issue the phase's RPC to every receiver, wait on a
// range-tracker, and report retry=true on any non-OK result or timeout.
func (op *Operation) runPhase(
	ctx context.Context,
	name string,
	install func(clusterctx.OpID, *clusterctx.RangeTracker),
	erase func(clusterctx.OpID),
	onSuccess plan.RangeState,
	call func(rsrpc.RecoveryClient, context.Context, string, []rangekey.Ident) error,
) (retry bool, err error) {
	if !op.validate() {
		return true, nil
	}
	if err := op.probe(name); err != nil {
		return false, err
	}

	keys := make([]interface{}, 0, op.receiverPlan.Len())
	for _, r := range op.receiverPlan.GetKeys() {
		keys = append(keys, r)
	}
	tracker := clusterctx.NewRangeTracker(op.attempt, keys)
	install(op.opID, tracker)
	defer erase(op.opID)

	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range op.receiverPlan.GetLocations() {
		loc := loc
		ranges := op.receiverPlan.GetKeysForLocation(loc)
		g.Go(func() error {
			cli, derr := op.dial.Dial(loc)
			if derr != nil {
				return fmt.Errorf("dial %s: %w", loc, derr)
			}
			return call(cli, rsrpc.WithUrgent(gctx), loc, ranges)
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("recoverranges: %s/%s: %s request failed, retrying: %v", op.Location, op.Group, name, err)
		return true, nil
	}

	results := tracker.Wait(op.cfg.RequestTimeout)
	ok := true
	for _, res := range results {
		if res.Err != nil {
			ok = false
			continue
		}
		op.receiverPlan.SetState(res.Key.(rangekey.Ident), onSuccess)
	}
	return !ok, nil
}

// runAcknowledge issues acknowledge-load to every receiver. This phase
// is best-effort: a failure here is logged and reported
// through OnResolved, but never rolls the operation back to INITIAL --
// the flip-live it's confirming has already been durably applied.
func (op *Operation) runAcknowledge(ctx context.Context) {
	var wg sync.WaitGroup
	for _, loc := range op.receiverPlan.GetLocations() {
		loc := loc
		ranges := op.receiverPlan.GetKeysForLocation(loc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cli, err := op.dial.Dial(loc)
			if err != nil {
				log.Printf("recoverranges: %s/%s: dial %s for acknowledge-load: %v", op.Location, op.Group, loc, err)
				op.resolveAll(ranges, err)
				return
			}
			resp, err := cli.AcknowledgeLoad(rsrpc.WithUrgent(ctx), &rsrpc.AcknowledgeLoadRequest{Ranges: ranges})
			if err != nil {
				log.Printf("recoverranges: %s/%s: acknowledge-load to %s: %v", op.Location, op.Group, loc, err)
				op.resolveAll(ranges, err)
				return
			}
			for _, res := range resp.Results {
				var rerr error
				if res.Err != 0 {
					rerr = fmt.Errorf("recoverranges: acknowledge-load reported err=%d for %s", res.Err, res.Range)
					log.Printf("recoverranges: %s/%s: %v", op.Location, op.Group, rerr)
				}
				if op.OnResolved != nil {
					op.OnResolved(res.Range, rerr)
				}
			}
		}()
	}
	wg.Wait()
}

func (op *Operation) resolveAll(ranges []rangekey.Ident, err error) {
	if op.OnResolved == nil {
		return
	}
	for _, r := range ranges {
		op.OnResolved(r, err)
	}
}

func timeoutMs(d time.Duration) int32 {
	return int32(d / time.Millisecond)
}
