package plan

import (
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/wire"
)

// Encode serializes the plan as a length-prefixed list of (vstr location,
// range-spec, state) entries in ByLocation iteration order.
// Decode(Encode(p)) reproduces p exactly.
func (p *ReceiverPlan) Encode() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.keysLocked()
	w := wire.NewWriter()
	w.PutVi32(int32(len(keys)))
	for _, k := range keys {
		e := p.byRange[k]
		w.PutVstr(e.location)
		w.PutRangeSpec(e.rang)
		w.PutVi32(int32(e.state))
	}
	return w.Bytes()
}

// DecodeReceiverPlan parses the output of ReceiverPlan.Encode.
func DecodeReceiverPlan(buf []byte) (*ReceiverPlan, error) {
	r := wire.NewReader(buf)
	n := r.Vi32()

	p := NewReceiverPlan()
	for i := int32(0); i < n; i++ {
		location := r.Vstr()
		rang := r.RangeSpec()
		state := RangeState(r.Vi32())
		if r.Err() != nil {
			return nil, r.Err()
		}
		p.insertLocked(location, rang, state)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return p, nil
}

// Encode serializes the plan as a length-prefixed list of (vstr location,
// fragment id) entries in ByLocation iteration order.
func (p *ReplayPlan) Encode() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.keysLocked()
	w := wire.NewWriter()
	w.PutVi32(int32(len(keys)))
	for _, k := range keys {
		loc := p.byFragment[k]
		w.PutVstr(loc)
		w.PutVi32(int32(k))
	}
	return w.Bytes()
}

// DecodeReplayPlan parses the output of ReplayPlan.Encode.
func DecodeReplayPlan(buf []byte) (*ReplayPlan, error) {
	r := wire.NewReader(buf)
	n := r.Vi32()

	p := NewReplayPlan()
	for i := int32(0); i < n; i++ {
		location := r.Vstr()
		fragment := rangekey.FragmentID(r.Vi32())
		if r.Err() != nil {
			return nil, r.Err()
		}
		p.Insert(location, fragment)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return p, nil
}
