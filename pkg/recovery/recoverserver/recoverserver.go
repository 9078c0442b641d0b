// Package recoverserver implements the Recover-Server operation: the
// master-side driver for one failed range-server. It
// acquires the coordination lock, waits out the failover grace period,
// classifies the server's ranges into the four priority groups from its
// RSML, and spawns one Recover-Ranges operation per non-empty group,
// gated so a higher group never starts before every lower one has
// acknowledged.
package recoverserver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/faultinjector"
	"github.com/tessellate-db/tessellate/pkg/lock"
	"github.com/tessellate-db/tessellate/pkg/metalog"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/recovery/recoverranges"
)

// State is one of the Recover-Server operation's three observable states.
type State int

const (
	StateInitial State = iota
	StateIssueRequests
	StateFinalize
	StateCompleteOK
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateIssueRequests:
		return "ISSUE_REQUESTS"
	case StateFinalize:
		return "FINALIZE"
	case StateCompleteOK:
		return "COMPLETE_OK"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// RangesRunner runs one group's Recover-Ranges operation. Production code
// constructs a *recoverranges.Operation and calls its Run method; tests can
// substitute a fake to isolate this operation's own sequencing logic.
type RangesRunner interface {
	Run(ctx context.Context, location string, group rangekey.Group, ranges []rangekey.Ident, dependency string) error
}

// liveRangeRunner is the production RangesRunner, wiring up a real
// recoverranges.Operation per group.
type liveRangeRunner struct {
	cctx    *clusterctx.Context
	gate    *clusterctx.DependencyGate
	dial    recoverranges.Dialer
	fragSrc recoverranges.FragmentSource
	mml     *metalog.Log
	cfg     config.Config

	onResolved func(rangekey.Ident, error)
}

func (r *liveRangeRunner) Run(ctx context.Context, location string, group rangekey.Group, ranges []rangekey.Ident, dependency string) error {
	op := recoverranges.New(location, group, ranges, nil, dependency, r.cctx, r.gate, r.dial, r.fragSrc, r.mml, r.cfg)
	op.OnResolved = r.onResolved
	if err := op.Run(ctx); err != nil {
		return err
	}
	// Unblock whichever group is waiting on this one, per the strict
	// ROOT < METADATA < SYSTEM < USER ordering.
	r.gate.Release(rangekey.DependencySentinel(group, location))
	return nil
}

// RSMLReader reads a failed server's range-server meta-log wholesale, the
// way recovery does on every execution rather than diffing against a
// prior read.
type RSMLReader interface {
	ReadLiveRanges(ctx context.Context, location string) ([]metalog.RangeEntry, error)
}

// Operation is one Recover-Server instance: the failed server, the
// collaborators it needs, and the internal bookkeeping for its three-phase
// state machine.
type Operation struct {
	Location string

	locker  *lock.Locker
	cctx    *clusterctx.Context
	rsml    RSMLReader
	runner  RangesRunner
	mml     *metalog.Log // master meta-log: this operation's state transitions
	rsmlLog *metalog.Log // this server's range-server meta-log, reset in FINALIZE
	cfg     config.Config

	state State
	rlock *lock.RecoveryLock

	// groups holds, per priority in rangekey.Order, the ranges classified
	// into it -- built once in INITIAL and consumed in ISSUE_REQUESTS.
	groups map[rangekey.Group][]rangekey.Ident
}

// New constructs a Recover-Server operation. runner drives each group's
// Recover-Ranges operation; a nil runner is replaced with the production
// liveRangeRunner built from the remaining arguments. rsmlLog is the failed
// server's own range-server meta-log, reset wholesale in FINALIZE; it is
// distinct from mml, the master meta-log that records this operation's own
// state transitions.
func New(location string, locker *lock.Locker, cctx *clusterctx.Context, rsml RSMLReader, runner RangesRunner, mml *metalog.Log, rsmlLog *metalog.Log, cfg config.Config) *Operation {
	return &Operation{
		Location: location,
		locker:   locker,
		cctx:     cctx,
		rsml:     rsml,
		runner:   runner,
		mml:      mml,
		rsmlLog:  rsmlLog,
		cfg:      cfg,
		state:    StateInitial,
	}
}

// NewLive is the production constructor, wiring a real RangesRunner that
// drives recoverranges.Operation instances over dial/fragSrc.
func NewLive(location string, locker *lock.Locker, cctx *clusterctx.Context, rsml RSMLReader, dial recoverranges.Dialer, fragSrc recoverranges.FragmentSource, mml *metalog.Log, rsmlLog *metalog.Log, cfg config.Config, onResolved func(rangekey.Ident, error)) *Operation {
	gate := clusterctx.NewDependencyGate()
	runner := &liveRangeRunner{
		cctx:       cctx,
		gate:       gate,
		dial:       dial,
		fragSrc:    fragSrc,
		mml:        mml,
		cfg:        cfg,
		onResolved: onResolved,
	}
	return New(location, locker, cctx, rsml, runner, mml, rsmlLog, cfg)
}

func (op *Operation) State() State {
	return op.state
}

func (op *Operation) setState(s State) {
	op.state = s
	op.persist()
}

func (op *Operation) persist() {
	if op.mml == nil {
		return
	}
	rec := metalog.Record{
		Location: op.Location,
		Type:     metalog.EntityRecoverServer,
		State:    int32(op.state),
	}
	if err := op.mml.Append(context.Background(), rec); err != nil {
		log.Printf("recoverserver: %s: failed to persist state %s: %v", op.Location, op.state, err)
	}
}

func (op *Operation) probe(site string) error {
	return faultinjector.Global.MaybeFail(fmt.Sprintf("recover-server-%s-%s", op.Location, site))
}

// Run drives the state machine: INITIAL (lock + grace period + RSML
// classification) -> ISSUE_REQUESTS (spawn one Recover-Ranges operation
// per non-empty group, priority-ordered) -> FINALIZE (empty RSML, release
// lock). A lock-acquisition failure is fatal; so is any error once
// ISSUE_REQUESTS has begun -- there is no retry loop at this level, only
// within each Recover-Ranges sub-operation.
func (op *Operation) Run(ctx context.Context) error {
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

	if err := op.runIssueRequests(ctx); err != nil {
		op.setState(StateFatal)
		if op.rlock != nil {
			if relErr := op.rlock.Release(); relErr != nil {
				log.Printf("recoverserver: %s: release lock after failure: %v", op.Location, relErr)
			}
		}
		return err
	}
	op.setState(StateFinalize)

	if err := op.runFinalize(ctx); err != nil {
		op.setState(StateFatal)
		return err
	}

	op.setState(StateCompleteOK)
	return nil
}

// runInitial acquires the recovery lock, waits out the failover grace
// period for the server to reconnect on its own, and -- if it hasn't --
// reads its RSML and classifies its ranges into the four priority
// groups. Reconnection during the grace period short-
// circuits the whole operation: nothing to recover, reported as done=true.
func (op *Operation) runInitial(ctx context.Context) (done bool, err error) {
	if err := op.probe("INITIAL"); err != nil {
		return false, err
	}

	rl, err := op.locker.TryAcquireForRecovery(ctx, op.Location)
	if err != nil {
		return false, fmt.Errorf("recoverserver: %s: acquire lock: %w", op.Location, err)
	}
	op.rlock = rl

	op.cctx.Servers.SetRemoved(op.Location, true)

	if op.cfg.FailoverGracePeriod > 0 {
		reconnected := op.waitForReconnect(ctx, op.cfg.FailoverGracePeriod)
		if reconnected {
			log.Printf("recoverserver: %s: reconnected during grace period, aborting recovery", op.Location)
			op.cctx.Servers.SetRemoved(op.Location, false)
			return true, op.rlock.Release()
		}
	}

	return false, op.classifyOnly(ctx)
}

// classifyOnly reads the failed server's RSML and bins its live ranges
// into the four priority groups. Split out from
// runInitial so a resumed operation -- or a test -- can redo classification
// without re-acquiring the lock or re-running the grace period.
func (op *Operation) classifyOnly(ctx context.Context) error {
	entries, err := op.rsml.ReadLiveRanges(ctx, op.Location)
	if err != nil {
		return fmt.Errorf("recoverserver: %s: read RSML: %w", op.Location, err)
	}

	groups := map[rangekey.Group][]rangekey.Ident{}
	for _, e := range entries {
		if e.Phantom {
			continue
		}
		groups[e.Group] = append(groups[e.Group], e.Range)
	}
	op.groups = groups

	return nil
}

// waitForReconnect polls the server list for up to d, returning true the
// moment the server reports connected again.
func (op *Operation) waitForReconnect(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	const pollInterval = 100 * time.Millisecond

	for time.Now().Before(deadline) {
		if rs, ok := op.cctx.Servers.FindServerByLocation(op.Location); ok && rs.Connected {
			return true
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// runIssueRequests spawns one Recover-Ranges operation per non-empty
// priority group and waits for every group to finish. Each group is gated
// on the sentinel of the nearest non-empty lower group -- an empty group
// has no sentinel of its own to wait for or release, so it must not appear
// in the chain at all: gating USER on an empty SYSTEM group's sentinel
// would let USER start the moment SYSTEM was found empty, ahead of a ROOT
// recovery still in flight. A group's failure is fatal to the whole server
// recovery -- each group retries failed phases internally without limit and
// returns an error here only when it stops for good (cancellation, an
// injected fault, no connected server) -- and cancels the groups still
// waiting on it, so they fail instead of blocking forever on a sentinel
// that will never be released.
func (op *Operation) runIssueRequests(ctx context.Context) error {
	if err := op.probe("ISSUE_REQUESTS"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		group rangekey.Group
		err   error
	}
	results := make(chan outcome, len(rangekey.Order))

	var spawned int
	dependency := ""
	for _, g := range rangekey.Order {
		ranges := op.groups[g]
		if len(ranges) == 0 {
			continue
		}

		spawned++
		go func(g rangekey.Group, ranges []rangekey.Ident, dependency string) {
			err := op.runner.Run(runCtx, op.Location, g, ranges, dependency)
			results <- outcome{group: g, err: err}
		}(g, ranges, dependency)

		dependency = rangekey.DependencySentinel(g, op.Location)
	}

	var firstErr error
	for i := 0; i < spawned; i++ {
		res := <-results
		if res.err != nil {
			log.Printf("recoverserver: %s: group %s failed: %v", op.Location, res.group, res.err)
			if firstErr == nil {
				firstErr = res.err
			}
			cancel()
		}
	}
	return firstErr
}

// runFinalize writes an empty RSML for the recovered server and releases
// the coordination lock.
func (op *Operation) runFinalize(ctx context.Context) error {
	if err := op.probe("FINALIZE"); err != nil {
		return err
	}

	if op.rsmlLog != nil {
		if err := op.rsmlLog.Reset(ctx); err != nil {
			return fmt.Errorf("recoverserver: %s: reset RSML: %w", op.Location, err)
		}
	}

	op.cctx.Servers.SetRemoved(op.Location, false)

	if op.rlock != nil {
		if err := op.rlock.Release(); err != nil {
			return fmt.Errorf("recoverserver: %s: release lock: %w", op.Location, err)
		}
	}
	return nil
}
