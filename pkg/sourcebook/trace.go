package sourcebook

import "time"

// OperationTrace captures timing for one facade operation.
type OperationTrace struct {
	// Spans contains timing data for each stage of the operation
	Spans []Span `json:"spans"`

	// TotalDurationMs is the sum of span durations in milliseconds
	TotalDurationMs int64 `json:"totalDurationMs"`
}

// Span represents a single timed stage within an operation.
// Stage names are stable:
//   - "decode": document decoding and validation
//   - "fetch": reading snapshots or characters from storage
//   - "merge": updating the snapshot cache
//   - "rewrite": migrating embedded references
//   - "persist": writing to storage
type Span struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	OK         bool   `json:"ok"`

	// ErrorType is the ClassifyError label when OK is false
	ErrorType string `json:"errorType,omitempty"`

	// Counters provides additional counts for the span (optional)
	// Example keys: "fetched", "rewritten", "dropped", "entities"
	Counters map[string]int64 `json:"counters,omitempty"`
}

func newTrace() *OperationTrace {
	return &OperationTrace{Spans: make([]Span, 0, 4)}
}

func (t *OperationTrace) addSpan(span Span) {
	t.Spans = append(t.Spans, span)
	t.TotalDurationMs += span.DurationMs
}

// spanTimer measures one span of a trace.
type spanTimer struct {
	name  string
	start time.Time
	trace *OperationTrace
}

func newSpanTimer(name string, trace *OperationTrace) *spanTimer {
	return &spanTimer{name: name, start: time.Now(), trace: trace}
}

// finish records the span; err decides OK and the error label.
func (st *spanTimer) finish(err error, counters map[string]int64) {
	if st.trace == nil {
		return
	}
	span := Span{
		Name:       st.name,
		DurationMs: time.Since(st.start).Milliseconds(),
		OK:         err == nil,
		ErrorType:  ClassifyError(err),
		Counters:   counters,
	}
	st.trace.addSpan(span)
}
