package aggregate

import "fxhistorian/internal/model"

// Merger folds consecutive candles that share a TSStart — produced when a
// period longer than one hour straddles midnight and each day's Bucket
// call emits its own partial for that boundary bucket. It is a one-row
// lookahead fold: open comes from the first fragment seen for a timestamp,
// close from the last, high/low from the running extremes, and volume is
// summed.
type Merger struct {
	buffered *model.Candle
}

// NewMerger returns an empty Merger ready to Feed a chronologically sorted
// candle stream.
func NewMerger() *Merger {
	return &Merger{}
}

// Feed accepts the next candle in chronological order and returns a
// completed, fully-merged candle when the stream moves past its
// timestamp, or ok=false while still accumulating fragments for the
// current timestamp.
func (m *Merger) Feed(c model.Candle) (out model.Candle, ok bool) {
	if m.buffered == nil {
		buf := c
		m.buffered = &buf
		return model.Candle{}, false
	}

	if c.TSStart.Equal(m.buffered.TSStart) {
		m.buffered.Close = c.Close
		m.buffered.High = maxDec(m.buffered.High, c.High)
		m.buffered.Low = minDec(m.buffered.Low, c.Low)
		m.buffered.Volume = m.buffered.Volume.Add(c.Volume)
		m.buffered.Empty = m.buffered.Empty && c.Empty
		return model.Candle{}, false
	}

	out = *m.buffered
	buf := c
	m.buffered = &buf
	return out, true
}

// Flush returns the final buffered candle, if any. Call once after the
// input stream is exhausted.
func (m *Merger) Flush() (out model.Candle, ok bool) {
	if m.buffered == nil {
		return model.Candle{}, false
	}
	out = *m.buffered
	m.buffered = nil
	return out, true
}

// MergeAll runs the full fold over an already chronologically sorted
// candle slice, returning the merged sequence. Convenience wrapper around
// Merger for callers that don't need streaming.
func MergeAll(candles []model.Candle) []model.Candle {
	m := NewMerger()
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if merged, ok := m.Feed(c); ok {
			out = append(out, merged)
		}
	}
	if merged, ok := m.Flush(); ok {
		out = append(out, merged)
	}
	return out
}
