package harness

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario for the harness primitives.
// A scenario declares fixtures (channels, streams, timers), scripts a
// sequence of explicit steps against them, and asserts on the
// resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the
	// golden trace file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Channels declares bounded or unbounded queue fixtures.
	Channels []ChannelDecl `yaml:"channels,omitempty"`

	// Oneshots declares notify-once channel fixtures.
	Oneshots []OneshotDecl `yaml:"oneshots,omitempty"`

	// Streams declares scripted duplex stream fixtures.
	Streams []StreamDecl `yaml:"streams,omitempty"`

	// Timers declares delay fixtures. Deadlines resolve against the
	// scenario clock at construction, before the first step runs.
	Timers []TimerDecl `yaml:"timers,omitempty"`

	// Steps is the scripted run: stimulus injections and polls,
	// executed strictly in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	// Supported types: trace_contains, trace_order, trace_count.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ChannelDecl declares a queue channel fixture with string payloads.
type ChannelDecl struct {
	Name string `yaml:"name"`

	// Kind is "bounded" or "unbounded".
	Kind string `yaml:"kind"`

	// Capacity is required for bounded channels and forbidden for
	// unbounded ones.
	Capacity int `yaml:"capacity,omitempty"`
}

// OneshotDecl declares a notify-once channel fixture.
type OneshotDecl struct {
	Name string `yaml:"name"`
}

// StreamDecl declares a scripted stream fixture.
type StreamDecl struct {
	Name string `yaml:"name"`
}

// TimerDecl declares a delay fixture.
type TimerDecl struct {
	Name string `yaml:"name"`

	// After is a Go duration string; the deadline is now+After on
	// the scenario clock.
	After string `yaml:"after"`
}

// Step is one scripted action. Exactly one directive field must be
// set; Expect optionally validates the action's outcome.
type Step struct {
	// Advance moves the scenario clock forward by a Go duration
	// string, e.g. "150ms".
	Advance string `yaml:"advance,omitempty"`

	// Poll advances a suspendable operation one step.
	Poll *PollStep `yaml:"poll,omitempty"`

	// TrySend is the non-suspending queue send.
	TrySend *ChannelValue `yaml:"try_send,omitempty"`

	// TryRecv is the non-suspending queue receive.
	TryRecv *ChannelRef `yaml:"try_recv,omitempty"`

	// SendValue delivers a value on a notify-once channel.
	SendValue *ChannelValue `yaml:"send_value,omitempty"`

	// QueueRead scripts bytes (hex) for delivery on a stream's read
	// side.
	QueueRead *StreamBytes `yaml:"queue_read,omitempty"`

	// ExpectWrite scripts bytes (hex) the next stream write must
	// match.
	ExpectWrite *StreamBytes `yaml:"expect_write,omitempty"`

	// CloseRead / CloseWrite force a stream side closed.
	CloseRead  *StreamRef `yaml:"close_read,omitempty"`
	CloseWrite *StreamRef `yaml:"close_write,omitempty"`

	// FailRead / FailWrite force a stream side failing with a
	// scripted error message.
	FailRead  *StreamFail `yaml:"fail_read,omitempty"`
	FailWrite *StreamFail `yaml:"fail_write,omitempty"`

	// CloseSender releases one producer handle; CloseReceiver drops
	// the consumer. Both accept queue and notify-once channel names.
	CloseSender   *ChannelRef `yaml:"close_sender,omitempty"`
	CloseReceiver *ChannelRef `yaml:"close_receiver,omitempty"`

	// Expect validates the step outcome. If nil the outcome is only
	// recorded in the trace.
	Expect *Expect `yaml:"expect,omitempty"`
}

// PollStep names an operation to advance one step. Suspended
// operations stay in flight: polling the same op/target again resumes
// the identical operation, so a suspended send still holds its value.
type PollStep struct {
	// Op is one of: recv, send, timer, read, write, oneshot_recv,
	// oneshot_closed.
	Op string `yaml:"op"`

	// Target is the fixture name.
	Target string `yaml:"target"`

	// Value is the payload for send ops.
	Value string `yaml:"value,omitempty"`

	// Hex is the payload for write ops.
	Hex string `yaml:"hex,omitempty"`

	// Buffer is the caller buffer size for read ops (default 64).
	Buffer int `yaml:"buffer,omitempty"`
}

// ChannelValue pairs a channel name with a payload.
type ChannelValue struct {
	Channel string `yaml:"channel"`
	Value   string `yaml:"value"`
}

// ChannelRef names a channel.
type ChannelRef struct {
	Channel string `yaml:"channel"`
}

// StreamRef names a stream.
type StreamRef struct {
	Stream string `yaml:"stream"`
}

// StreamBytes pairs a stream name with hex-encoded bytes.
type StreamBytes struct {
	Stream string `yaml:"stream"`
	Hex    string `yaml:"hex"`
}

// StreamFail pairs a stream name with a scripted error message.
type StreamFail struct {
	Stream string `yaml:"stream"`
	Error  string `yaml:"error"`
}

// Expect validates a step outcome. Only set fields are checked.
type Expect struct {
	// Outcome is the primary expectation:
	//   poll steps:  "suspended" | "completed"
	//   try_send:    "ok" | "full" | "closed"
	//   try_recv:    "value" | "empty" | "closed"
	//   send_value:  "ok" | "closed"
	Outcome string `yaml:"outcome"`

	// Value checks a received or delivered string payload.
	Value string `yaml:"value,omitempty"`

	// Hex checks bytes delivered by a read.
	Hex string `yaml:"hex,omitempty"`

	// N checks the byte count of a read or write completion.
	N *int `yaml:"n,omitempty"`

	// Error checks the completion error: "closed", "eof", or a
	// scripted error message.
	Error string `yaml:"error,omitempty"`

	// EOS checks the end-of-stream marker of a queue receive.
	EOS *bool `yaml:"eos,omitempty"`
}

// Assertion validates the final trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": at least one matching event appears
	// - "trace_order": first occurrences appear in sequence order
	// - "trace_count": exactly Count matching events appear
	Type string `yaml:"type"`

	// Kind and Target filter events; an empty field matches anything
	// (used by trace_contains and trace_count).
	Kind   string `yaml:"kind,omitempty"`
	Target string `yaml:"target,omitempty"`

	// Count is the expected number of matches (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Sequence is the expected first-occurrence order (used by
	// trace_order).
	Sequence []EventRef `yaml:"sequence,omitempty"`
}

// EventRef identifies a class of trace events by kind and optional
// target.
type EventRef struct {
	Kind   string `yaml:"kind"`
	Target string `yaml:"target,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes with strict field
// validation (catches typos like "assertion:" vs "assertions:").
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present, fixture
// declarations are well formed, and every step carries exactly one
// directive.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, ch := range s.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		switch ch.Kind {
		case "bounded":
			if ch.Capacity < 1 {
				return fmt.Errorf("channels[%d]: bounded channel requires capacity >= 1", i)
			}
		case "unbounded":
			if ch.Capacity != 0 {
				return fmt.Errorf("channels[%d]: capacity is not allowed for unbounded channels", i)
			}
		default:
			return fmt.Errorf("channels[%d]: kind must be \"bounded\" or \"unbounded\"", i)
		}
	}

	for i, o := range s.Oneshots {
		if o.Name == "" {
			return fmt.Errorf("oneshots[%d]: name is required", i)
		}
	}

	for i, st := range s.Streams {
		if st.Name == "" {
			return fmt.Errorf("streams[%d]: name is required", i)
		}
	}

	for i, tm := range s.Timers {
		if tm.Name == "" {
			return fmt.Errorf("timers[%d]: name is required", i)
		}
		if _, err := time.ParseDuration(tm.After); err != nil {
			return fmt.Errorf("timers[%d]: invalid duration %q: %v", i, tm.After, err)
		}
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks the exactly-one-directive rule and the
// directive's own required fields.
func validateStep(index int, st *Step) error {
	directives := 0

	if st.Advance != "" {
		directives++
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("steps[%d]: invalid advance duration %q: %v", index, st.Advance, err)
		}
	}

	if st.Poll != nil {
		directives++
		if st.Poll.Target == "" {
			return fmt.Errorf("steps[%d].poll: target is required", index)
		}
		switch st.Poll.Op {
		case "recv", "timer", "oneshot_recv", "oneshot_closed":
		case "send":
			if st.Poll.Value == "" {
				return fmt.Errorf("steps[%d].poll: send requires value", index)
			}
		case "write":
			if _, err := decodeHex(st.Poll.Hex); err != nil {
				return fmt.Errorf("steps[%d].poll: %v", index, err)
			}
		case "read":
			if st.Poll.Buffer < 0 {
				return fmt.Errorf("steps[%d].poll: buffer must be positive", index)
			}
		case "":
			return fmt.Errorf("steps[%d].poll: op is required", index)
		default:
			return fmt.Errorf("steps[%d].poll: unknown op %q", index, st.Poll.Op)
		}
	}

	if st.TrySend != nil {
		directives++
		if st.TrySend.Channel == "" {
			return fmt.Errorf("steps[%d].try_send: channel is required", index)
		}
	}

	if st.TryRecv != nil {
		directives++
		if st.TryRecv.Channel == "" {
			return fmt.Errorf("steps[%d].try_recv: channel is required", index)
		}
	}

	if st.SendValue != nil {
		directives++
		if st.SendValue.Channel == "" {
			return fmt.Errorf("steps[%d].send_value: channel is required", index)
		}
	}

	byteDirectives := []struct {
		name string
		ref  *StreamBytes
	}{
		{"queue_read", st.QueueRead},
		{"expect_write", st.ExpectWrite},
	}
	for _, d := range byteDirectives {
		if d.ref == nil {
			continue
		}
		directives++
		if d.ref.Stream == "" {
			return fmt.Errorf("steps[%d].%s: stream is required", index, d.name)
		}
		if _, err := decodeHex(d.ref.Hex); err != nil {
			return fmt.Errorf("steps[%d].%s: %v", index, d.name, err)
		}
	}

	closeDirectives := []struct {
		name string
		ref  *StreamRef
	}{
		{"close_read", st.CloseRead},
		{"close_write", st.CloseWrite},
	}
	for _, d := range closeDirectives {
		if d.ref == nil {
			continue
		}
		directives++
		if d.ref.Stream == "" {
			return fmt.Errorf("steps[%d].%s: stream is required", index, d.name)
		}
	}

	failDirectives := []struct {
		name string
		ref  *StreamFail
	}{
		{"fail_read", st.FailRead},
		{"fail_write", st.FailWrite},
	}
	for _, d := range failDirectives {
		if d.ref == nil {
			continue
		}
		directives++
		if d.ref.Stream == "" {
			return fmt.Errorf("steps[%d].%s: stream is required", index, d.name)
		}
		if d.ref.Error == "" {
			return fmt.Errorf("steps[%d].%s: error is required", index, d.name)
		}
	}

	handleDirectives := []struct {
		name string
		ref  *ChannelRef
	}{
		{"close_sender", st.CloseSender},
		{"close_receiver", st.CloseReceiver},
	}
	for _, d := range handleDirectives {
		if d.ref == nil {
			continue
		}
		directives++
		if d.ref.Channel == "" {
			return fmt.Errorf("steps[%d].%s: channel is required", index, d.name)
		}
	}

	if directives != 1 {
		return fmt.Errorf("steps[%d]: exactly one directive is required, found %d", index, directives)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" && a.Target == "" {
			return fmt.Errorf("assertions[%d]: kind or target is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Kind == "" && a.Target == "" {
			return fmt.Errorf("assertions[%d]: kind or target is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) < 2 {
			return fmt.Errorf("assertions[%d]: sequence of at least 2 refs is required for trace_order", index)
		}
		for j, ref := range a.Sequence {
			if ref.Kind == "" && ref.Target == "" {
				return fmt.Errorf("assertions[%d].sequence[%d]: kind or target is required", index, j)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// decodeHex parses a hex byte string, tolerating spaces between byte
// pairs ("2a 2b" and "2a2b" are equivalent).
func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %v", s, err)
	}
	return b, nil
}
