package metalog

import "context"

// ReadLiveRanges replays l and returns every EntityLiveRange row tagged with
// location, decoded. This signature matches recoverserver.RSMLReader
// exactly, so a range-server's own RSML Log satisfies that interface
// directly -- recover-server classifies a failed server's ranges by
// replaying its RSML wholesale each time, never by diffing.
func (l *Log) ReadLiveRanges(ctx context.Context, location string) ([]RangeEntry, error) {
	recs, err := l.Replay(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RangeEntry, 0, len(recs))
	for _, rec := range recs {
		if rec.Type != EntityLiveRange || rec.Location != location {
			continue
		}
		e, err := DecodeRangeEntry(rec.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
