// Package trace records what a harness run did, step by step, in a
// form that compares byte-identically across runs.
//
// Every stimulus injection and every poll outcome becomes one Event
// with a monotonic sequence number. Because the primitives contain no
// hidden scheduler, two runs of the same scenario produce the same
// event stream — the trace is the harness's proof of determinism, and
// the unit golden files and the journal replay check both lean on it.
package trace

import "sync"

// Event is one recorded harness action.
type Event struct {
	// Seq is the monotonic position of the event in the run.
	Seq int64 `json:"seq"`

	// Kind names the action: "advance", "poll", "try_send",
	// "queue_read", "close_sender", and so on.
	Kind string `json:"kind"`

	// Target names the fixture acted on (channel, stream, or timer
	// name). Empty for actions without a fixture, such as advance.
	Target string `json:"target,omitempty"`

	// Detail carries action-specific fields (outcome, value, hex
	// bytes, duration). Values must be canonical-JSON encodable:
	// strings, ints, bools, nested maps and arrays.
	Detail map[string]any `json:"detail,omitempty"`
}

// Recorder is a thread-safe monotonic sequence source plus event log.
//
// The sequence can be reset so the same scenario replays with
// identical seq values.
type Recorder struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// NewRecorder creates a recorder starting at seq 0; the first
// recorded event gets seq 1.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event, assigning the next sequence number, and
// returns the stored event.
func (r *Recorder) Record(kind, target string, detail map[string]any) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev := Event{Seq: r.seq, Kind: kind, Target: target, Detail: detail}
	r.events = append(r.events, ev)
	return ev
}

// Events returns a copy of the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Current returns the last assigned sequence number.
func (r *Recorder) Current() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Reset clears the log and rewinds the sequence to 0.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = 0
	r.events = nil
}

// canonicalMap converts an event to the map form fed to
// MarshalCanonical. Omits empty optional fields so the canonical form
// matches the JSON struct tags.
func (e Event) canonicalMap() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"kind": e.Kind,
	}
	if e.Target != "" {
		m["target"] = e.Target
	}
	if len(e.Detail) > 0 {
		m["detail"] = e.Detail
	}
	return m
}

// CanonicalEvents converts an event stream to the []any form accepted
// by MarshalCanonical, for callers embedding the trace in a larger
// canonical document.
func CanonicalEvents(events []Event) []any {
	list := make([]any, len(events))
	for i, ev := range events {
		list[i] = ev.canonicalMap()
	}
	return list
}

// MarshalEvents produces the canonical JSON array for an event
// stream. This is the byte form golden files and the journal store.
func MarshalEvents(events []Event) ([]byte, error) {
	return MarshalCanonical(CanonicalEvents(events))
}
