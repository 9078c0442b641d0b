package rangeserver

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/tessellate-db/tessellate/pkg/fragment"
	"github.com/tessellate-db/tessellate/pkg/plan"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// player reads a failed server's fragments and routes their rows to the
// destinations named in the receiver plan, buffering per (destination,
// range) until a flush threshold trips. One player
// is shared by every fragment a single replay-fragments call assigns to
// this range-server, so the aggregate byte counter is shared across them.
type player struct {
	svc  *Service
	plan *plan.ReceiverPlan

	aggregate int64 // bytes buffered across every range, shared by all fragments

	mu      sync.Mutex
	buffers map[rangekey.Ident]*rangeBuffer
}

type rangeBuffer struct {
	location string
	recs     []fragment.Record
	bytes    int64
}

func newPlayer(svc *Service, rplan *plan.ReceiverPlan) *player {
	return &player{
		svc:     svc,
		plan:    rplan,
		buffers: map[rangekey.Ident]*rangeBuffer{},
	}
}

// playFragment reads one fragment of the failed server's log in order,
// routes each record to its destination range via the receiver plan, and
// flushes each range's buffer whenever it (or the aggregate) crosses its
// configured threshold. A row that misses the plan lookup is dropped --
// it belongs to no range this recovery attempt is
// moving, so there's nowhere to send it.
func (p *player) playFragment(ctx context.Context, location string, group rangekey.Group, fid rangekey.FragmentID) error {
	recs, err := p.svc.Store.Read(ctx, location, group, fid)
	if err != nil {
		return fmt.Errorf("rangeserver: player: read fragment %d of %s: %w", fid, location, err)
	}

	for _, rec := range recs {
		dest, rng, ok := p.plan.Lookup(rec.Table, rec.Row)
		if !ok {
			continue
		}
		if err := p.buffer(ctx, dest, rng, fid, rec); err != nil {
			return err
		}
	}

	return p.flushFragment(ctx, fid)
}

func (p *player) buffer(ctx context.Context, dest string, rng rangekey.Ident, fid rangekey.FragmentID, rec fragment.Record) error {
	p.mu.Lock()
	buf, ok := p.buffers[rng]
	if !ok {
		buf = &rangeBuffer{location: dest}
		p.buffers[rng] = buf
	}
	buf.recs = append(buf.recs, rec)
	buf.bytes += int64(rec.Size())
	atomic.AddInt64(&p.aggregate, int64(rec.Size()))

	overPerRange := buf.bytes >= p.svc.Cfg.FlushLimitPerRange
	overAggregate := atomic.LoadInt64(&p.aggregate) >= p.svc.Cfg.FlushLimitAggregate
	p.mu.Unlock()

	if overPerRange {
		log.Printf("rangeserver: player: range %s buffer hit %s, flushing", rng, humanize.Bytes(uint64(p.svc.Cfg.FlushLimitPerRange)))
		return p.flushRange(ctx, rng, fid, false)
	}
	if overAggregate {
		log.Printf("rangeserver: player: aggregate buffer hit %s, flushing all ranges", humanize.Bytes(uint64(p.svc.Cfg.FlushLimitAggregate)))
		return p.flushAll(ctx, fid, false)
	}
	return nil
}

// flushFragment sends the final, more=false phantom-update for this
// fragment to every range in the receiver plan -- not just the ranges this
// fragment happened to route rows into. A range this fragment never
// touched still has a FragmentData entry waiting on it (the
// expected-fragment set is keyed by fragment id alone, independent of
// whether any row of that fragment landed there), so it must hear a final
// message too or its outstanding-fragment counter never reaches zero.
func (p *player) flushFragment(ctx context.Context, fid rangekey.FragmentID) error {
	p.mu.Lock()
	touched := make(map[rangekey.Ident]bool, len(p.buffers))
	for rng := range p.buffers {
		touched[rng] = true
	}
	p.mu.Unlock()

	for rng := range touched {
		if err := p.flushRange(ctx, rng, fid, true); err != nil {
			return err
		}
	}
	for _, rng := range p.plan.GetKeys() {
		if touched[rng] {
			continue
		}
		if err := p.flushRange(ctx, rng, fid, true); err != nil {
			return err
		}
	}
	return nil
}

func (p *player) flushAll(ctx context.Context, fid rangekey.FragmentID, final bool) error {
	p.mu.Lock()
	ranges := make([]rangekey.Ident, 0, len(p.buffers))
	for rng := range p.buffers {
		ranges = append(ranges, rng)
	}
	p.mu.Unlock()

	for _, rng := range ranges {
		if err := p.flushRange(ctx, rng, fid, final); err != nil {
			return err
		}
	}
	return nil
}

func (p *player) flushRange(ctx context.Context, rng rangekey.Ident, fid rangekey.FragmentID, final bool) error {
	var location string
	var recs []fragment.Record

	p.mu.Lock()
	buf, ok := p.buffers[rng]
	if ok {
		location = buf.location
		recs = buf.recs
		var sent int64
		for _, r := range recs {
			sent += int64(r.Size())
		}
		buf.recs = nil
		buf.bytes = 0
		atomic.AddInt64(&p.aggregate, -sent)
	}
	p.mu.Unlock()

	if !ok {
		if !final {
			return nil
		}
		// Final message for a range this fragment never buffered anything
		// for: still owed, with an empty block.
		loc, ok2 := p.destForRange(rng)
		if !ok2 {
			return fmt.Errorf("rangeserver: player: no destination for range %s", rng)
		}
		location = loc
	}

	block, err := fragment.EncodeBlock(p.svc.Codec, recs)
	if err != nil {
		return fmt.Errorf("rangeserver: player: encode block for %s: %w", rng, err)
	}

	client, err := p.svc.Dial.Dial(location)
	if err != nil {
		return fmt.Errorf("rangeserver: player: dial %s: %w", location, err)
	}

	req := &rsrpc.PhantomUpdateRequest{
		Location: p.svc.Location,
		Range:    rng,
		Fragment: fid,
		More:     !final,
		Block:    block,
	}
	resp, err := client.PhantomUpdate(rsrpc.WithUrgent(ctx), req)
	if err != nil {
		return fmt.Errorf("rangeserver: player: phantom-update %s: %w", rng, err)
	}
	if resp.Err != 0 {
		return fmt.Errorf("rangeserver: player: phantom-update %s rejected by %s", rng, location)
	}
	return nil
}

func (p *player) destForRange(rng rangekey.Ident) (string, bool) {
	return p.plan.Location(rng)
}
