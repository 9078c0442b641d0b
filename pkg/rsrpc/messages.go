// Package rsrpc implements the recovery-related wire messages and gRPC
// service: phantom-receive, replay-fragments,
// phantom-update, replay-complete, phantom-{prepare,commit}-ranges,
// phantom-{prepare,commit}-complete, and acknowledge-load. Every message
// marshals itself with pkg/wire instead of protobuf reflection; pkg/wire's
// codec registers under grpc's "proto" codec name so these travel over a
// normal grpc.ClientConn without needing generated descriptor code.
package rsrpc

import (
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/wire"
)

// Status is the response to every recovery RPC that reports nothing but an
// error code.
type Status struct {
	Err int32
}

func (m *Status) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi32(m.Err)
	return w.Bytes(), nil
}

func (m *Status) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.Err = r.Vi32()
	return r.Err()
}

func putRangeSpecs(w *wire.Writer, ranges []rangekey.Ident) {
	w.PutVi32(int32(len(ranges)))
	for _, rng := range ranges {
		w.PutRangeSpec(rng)
	}
}

func getRangeSpecs(r *wire.Reader) []rangekey.Ident {
	n := r.Vi32()
	if n <= 0 {
		return nil
	}
	out := make([]rangekey.Ident, n)
	for i := range out {
		out[i] = r.RangeSpec()
	}
	return out
}

func putFragments(w *wire.Writer, fragments []rangekey.FragmentID) {
	w.PutVi32(int32(len(fragments)))
	for _, f := range fragments {
		w.PutVi32(int32(f))
	}
}

func getFragments(r *wire.Reader) []rangekey.FragmentID {
	n := r.Vi32()
	if n <= 0 {
		return nil
	}
	out := make([]rangekey.FragmentID, n)
	for i := range out {
		out[i] = rangekey.FragmentID(r.Vi32())
	}
	return out
}

// PhantomReceiveRequest tells a destination range-server to stand up
// phantom ranges that will receive the listed fragments and ranges.
type PhantomReceiveRequest struct {
	Location  string
	Fragments []rangekey.FragmentID
	Ranges    []rangekey.Ident
}

func (m *PhantomReceiveRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVstr(m.Location)
	putFragments(w, m.Fragments)
	putRangeSpecs(w, m.Ranges)
	return w.Bytes(), nil
}

func (m *PhantomReceiveRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.Location = r.Vstr()
	m.Fragments = getFragments(r)
	m.Ranges = getRangeSpecs(r)
	return r.Err()
}

// ReplayFragmentsRequest tells a player to read the listed fragments of the
// failed server's commit log and re-route their contents per the receiver
// plan.
type ReplayFragmentsRequest struct {
	OpID            int64
	Attempt         int32
	RecoverLocation string
	Type            int32
	Fragments       []rangekey.FragmentID
	ReceiverPlan    []byte // plan.ReceiverPlan.Encode() output
	TimeoutMs       int32
}

func (m *ReplayFragmentsRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi64(m.OpID)
	w.PutVi32(m.Attempt)
	w.PutVstr(m.RecoverLocation)
	w.PutVi32(m.Type)
	putFragments(w, m.Fragments)
	w.PutBytes(m.ReceiverPlan)
	w.PutVi32(m.TimeoutMs)
	return w.Bytes(), nil
}

func (m *ReplayFragmentsRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.OpID = r.Vi64()
	m.Attempt = r.Vi32()
	m.RecoverLocation = r.Vstr()
	m.Type = r.Vi32()
	m.Fragments = getFragments(r)
	m.ReceiverPlan = r.Bytes()
	m.TimeoutMs = r.Vi32()
	return r.Err()
}

// PhantomUpdateRequest carries one batch of replayed (key, value) pairs for
// a single fragment of a single range, from a player to a destination.
type PhantomUpdateRequest struct {
	Location string
	Range    rangekey.Ident
	Fragment rangekey.FragmentID
	More     bool
	Block    []byte // raw, possibly block-compressed key/value pairs
}

func (m *PhantomUpdateRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVstr(m.Location)
	w.PutRangeSpec(m.Range)
	w.PutVi32(int32(m.Fragment))
	w.PutBool(m.More)
	w.PutBytes(m.Block)
	return w.Bytes(), nil
}

func (m *PhantomUpdateRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.Location = r.Vstr()
	m.Range = r.RangeSpec()
	m.Fragment = rangekey.FragmentID(r.Vi32())
	m.More = r.Bool()
	m.Block = r.Bytes()
	return r.Err()
}

// PhantomUpdateResponse acknowledges one phantom-update call.
type PhantomUpdateResponse struct {
	Err      int32
	Range    rangekey.Ident
	Fragment rangekey.FragmentID
}

func (m *PhantomUpdateResponse) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi32(m.Err)
	w.PutRangeSpec(m.Range)
	w.PutVi32(int32(m.Fragment))
	return w.Bytes(), nil
}

func (m *PhantomUpdateResponse) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.Err = r.Vi32()
	m.Range = r.RangeSpec()
	m.Fragment = rangekey.FragmentID(r.Vi32())
	return r.Err()
}

// FragmentResult pairs a fragment with the error code a player reported for it.
type FragmentResult struct {
	Fragment rangekey.FragmentID
	Err      int32
}

// ReplayCompleteRequest is a player reporting the outcome of every fragment
// it was assigned to replay.
type ReplayCompleteRequest struct {
	OpID    int64
	Attempt int32
	Results []FragmentResult
}

func (m *ReplayCompleteRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi64(m.OpID)
	w.PutVi32(m.Attempt)
	w.PutVi32(int32(len(m.Results)))
	for _, res := range m.Results {
		w.PutVi32(int32(res.Fragment))
		w.PutVi32(res.Err)
	}
	return w.Bytes(), nil
}

func (m *ReplayCompleteRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.OpID = r.Vi64()
	m.Attempt = r.Vi32()
	n := r.Vi32()
	if n > 0 {
		m.Results = make([]FragmentResult, n)
		for i := range m.Results {
			m.Results[i] = FragmentResult{Fragment: rangekey.FragmentID(r.Vi32()), Err: r.Vi32()}
		}
	}
	return r.Err()
}

// RangeResult pairs a range with the error code its destination reported for it.
type RangeResult struct {
	Range rangekey.Ident
	Err   int32
}

// PhantomPrepareRangesRequest tells a destination to move the listed ranges
// from RANGE_CREATED to RANGE_PREPARED.
type PhantomPrepareRangesRequest struct {
	OpID      int64
	Attempt   int32
	Location  string
	Ranges    []rangekey.Ident
	TimeoutMs int32
}

func (m *PhantomPrepareRangesRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi64(m.OpID)
	w.PutVi32(m.Attempt)
	w.PutVstr(m.Location)
	putRangeSpecs(w, m.Ranges)
	w.PutVi32(m.TimeoutMs)
	return w.Bytes(), nil
}

func (m *PhantomPrepareRangesRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.OpID = r.Vi64()
	m.Attempt = r.Vi32()
	m.Location = r.Vstr()
	m.Ranges = getRangeSpecs(r)
	m.TimeoutMs = r.Vi32()
	return r.Err()
}

// PhantomPrepareCompleteRequest is a destination reporting the outcome of
// preparing every range it was asked to.
type PhantomPrepareCompleteRequest struct {
	OpID    int64
	Attempt int32
	Results []RangeResult
}

func (m *PhantomPrepareCompleteRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi64(m.OpID)
	w.PutVi32(m.Attempt)
	w.PutVi32(int32(len(m.Results)))
	for _, res := range m.Results {
		w.PutRangeSpec(res.Range)
		w.PutVi32(res.Err)
	}
	return w.Bytes(), nil
}

func (m *PhantomPrepareCompleteRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.OpID = r.Vi64()
	m.Attempt = r.Vi32()
	n := r.Vi32()
	if n > 0 {
		m.Results = make([]RangeResult, n)
		for i := range m.Results {
			m.Results[i] = RangeResult{Range: r.RangeSpec(), Err: r.Vi32()}
		}
	}
	return r.Err()
}

// PhantomCommitRangesRequest tells a destination to move the listed ranges
// from RANGE_PREPARED to LIVE. Same wire shape as prepare-ranges.
type PhantomCommitRangesRequest struct {
	OpID      int64
	Attempt   int32
	Location  string
	Ranges    []rangekey.Ident
	TimeoutMs int32
}

func (m *PhantomCommitRangesRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi64(m.OpID)
	w.PutVi32(m.Attempt)
	w.PutVstr(m.Location)
	putRangeSpecs(w, m.Ranges)
	w.PutVi32(m.TimeoutMs)
	return w.Bytes(), nil
}

func (m *PhantomCommitRangesRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.OpID = r.Vi64()
	m.Attempt = r.Vi32()
	m.Location = r.Vstr()
	m.Ranges = getRangeSpecs(r)
	m.TimeoutMs = r.Vi32()
	return r.Err()
}

// PhantomCommitCompleteRequest is a destination reporting the outcome of
// committing every range it was asked to. Same wire shape as
// phantom-prepare-complete.
type PhantomCommitCompleteRequest struct {
	OpID    int64
	Attempt int32
	Results []RangeResult
}

func (m *PhantomCommitCompleteRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi64(m.OpID)
	w.PutVi32(m.Attempt)
	w.PutVi32(int32(len(m.Results)))
	for _, res := range m.Results {
		w.PutRangeSpec(res.Range)
		w.PutVi32(res.Err)
	}
	return w.Bytes(), nil
}

func (m *PhantomCommitCompleteRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.OpID = r.Vi64()
	m.Attempt = r.Vi32()
	n := r.Vi32()
	if n > 0 {
		m.Results = make([]RangeResult, n)
		for i := range m.Results {
			m.Results[i] = RangeResult{Range: r.RangeSpec(), Err: r.Vi32()}
		}
	}
	return r.Err()
}

// AcknowledgeLoadRequest asks a destination to confirm it has every listed
// range loaded and serving, the final step of a recovery attempt.
type AcknowledgeLoadRequest struct {
	Ranges []rangekey.Ident
}

func (m *AcknowledgeLoadRequest) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	putRangeSpecs(w, m.Ranges)
	return w.Bytes(), nil
}

func (m *AcknowledgeLoadRequest) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.Ranges = getRangeSpecs(r)
	return r.Err()
}

// AcknowledgeLoadResponse reports, per requested range, whether the
// destination actually has it loaded.
type AcknowledgeLoadResponse struct {
	Err     int32
	Results []RangeResult
}

func (m *AcknowledgeLoadResponse) Marshal() ([]byte, error) {
	w := wire.NewWriter()
	w.PutVi32(m.Err)
	w.PutVi32(int32(len(m.Results)))
	for _, res := range m.Results {
		w.PutRangeSpec(res.Range)
		w.PutVi32(res.Err)
	}
	return w.Bytes(), nil
}

func (m *AcknowledgeLoadResponse) Unmarshal(buf []byte) error {
	r := wire.NewReader(buf)
	m.Err = r.Vi32()
	n := r.Vi32()
	if n > 0 {
		m.Results = make([]RangeResult, n)
		for i := range m.Results {
			m.Results[i] = RangeResult{Range: r.RangeSpec(), Err: r.Vi32()}
		}
	}
	return r.Err()
}
