package harness

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/lockstep/internal/iomock"
	"github.com/roach88/lockstep/internal/mpsc"
	"github.com/roach88/lockstep/internal/oneshot"
	"github.com/roach88/lockstep/internal/task"
	"github.com/roach88/lockstep/internal/trace"
	"github.com/roach88/lockstep/internal/vclock"
)

// Harness is the scenario execution engine. It owns the fixtures, the
// virtual clock, and the in-flight operation registry.
type Harness struct {
	clock    *vclock.Clock
	recorder *trace.Recorder
	logger   *slog.Logger

	channels map[string]*channelFixture
	oneshots map[string]*oneshotFixture
	streams  map[string]*streamFixture
	timers   map[string]*vclock.Delay

	// In-flight operations, keyed by fixture name. A suspended
	// operation stays registered so the next poll of the same
	// op/target resumes the identical operation; a suspended send
	// therefore still holds the value it was created with.
	recvOps        map[string]*task.Task[mpsc.Msg[string]]
	sendOps        map[string]*sendInFlight
	timerOps       map[string]*task.Task[struct{}]
	readOps        map[string]*readInFlight
	writeOps       map[string]*writeInFlight
	oneshotRecvOps map[string]*task.Task[oneshot.Result[string]]
	closedOps      map[string]*task.Task[struct{}]
}

type channelFixture struct {
	sender   *mpsc.Sender[string]
	receiver *mpsc.Receiver[string]
}

type oneshotFixture struct {
	sender   *oneshot.Sender[string]
	receiver *oneshot.Receiver[string]
}

type streamFixture struct {
	stream *iomock.Stream
	script *iomock.Script
}

type sendInFlight struct {
	t     *task.Task[error]
	value string
}

type readInFlight struct {
	t   *task.Task[iomock.IOResult]
	buf []byte
}

type writeInFlight struct {
	t   *task.Task[iomock.IOResult]
	hex string
}

// Run executes a scenario and returns the result.
//
// Structural problems (unknown fixture names, a poll resuming an
// in-flight operation with a different payload) return an error.
// Expectation mismatches and failed assertions accumulate on the
// Result and flip Pass to false. Scripting-contract violations inside
// the primitives panic, exactly as they would in a unit test.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		clock:    vclock.New(),
		recorder: trace.NewRecorder(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests

		channels: make(map[string]*channelFixture),
		oneshots: make(map[string]*oneshotFixture),
		streams:  make(map[string]*streamFixture),
		timers:   make(map[string]*vclock.Delay),

		recvOps:        make(map[string]*task.Task[mpsc.Msg[string]]),
		sendOps:        make(map[string]*sendInFlight),
		timerOps:       make(map[string]*task.Task[struct{}]),
		readOps:        make(map[string]*readInFlight),
		writeOps:       make(map[string]*writeInFlight),
		oneshotRecvOps: make(map[string]*task.Task[oneshot.Result[string]]),
		closedOps:      make(map[string]*task.Task[struct{}]),
	}

	if err := h.buildFixtures(scenario); err != nil {
		return nil, err
	}

	result := NewResult()
	for i := range scenario.Steps {
		if err := h.executeStep(i, &scenario.Steps[i], result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result.Trace = h.recorder.Events()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// buildFixtures constructs every declared fixture before the first
// step runs. Timer deadlines resolve against the fresh clock here.
func (h *Harness) buildFixtures(scenario *Scenario) error {
	for _, decl := range scenario.Channels {
		if err := h.checkNameFree(decl.Name); err != nil {
			return err
		}
		fx := &channelFixture{}
		if decl.Kind == "bounded" {
			fx.sender, fx.receiver = mpsc.New[string](decl.Capacity)
		} else {
			fx.sender, fx.receiver = mpsc.NewUnbounded[string]()
		}
		h.channels[decl.Name] = fx
	}

	for _, decl := range scenario.Oneshots {
		if err := h.checkNameFree(decl.Name); err != nil {
			return err
		}
		sender, receiver := oneshot.New[string]()
		h.oneshots[decl.Name] = &oneshotFixture{sender: sender, receiver: receiver}
	}

	for _, decl := range scenario.Streams {
		if err := h.checkNameFree(decl.Name); err != nil {
			return err
		}
		stream, script := iomock.New()
		h.streams[decl.Name] = &streamFixture{stream: stream, script: script}
	}

	for _, decl := range scenario.Timers {
		if err := h.checkNameFree(decl.Name); err != nil {
			return err
		}
		after, err := time.ParseDuration(decl.After)
		if err != nil {
			return fmt.Errorf("timer %q: %w", decl.Name, err)
		}
		h.timers[decl.Name] = h.clock.Sleep(after)
	}

	return nil
}

// checkNameFree enforces one flat fixture namespace so a trace target
// is never ambiguous.
func (h *Harness) checkNameFree(name string) error {
	if _, ok := h.channels[name]; ok {
		return fmt.Errorf("duplicate fixture name %q", name)
	}
	if _, ok := h.oneshots[name]; ok {
		return fmt.Errorf("duplicate fixture name %q", name)
	}
	if _, ok := h.streams[name]; ok {
		return fmt.Errorf("duplicate fixture name %q", name)
	}
	if _, ok := h.timers[name]; ok {
		return fmt.Errorf("duplicate fixture name %q", name)
	}
	return nil
}

// executeStep runs one step, records its trace event, and validates
// the expect clause if present.
func (h *Harness) executeStep(index int, step *Step, result *Result) error {
	var (
		kind   string
		target string
		detail map[string]any
		err    error
	)

	switch {
	case step.Advance != "":
		kind = "advance"
		d, perr := time.ParseDuration(step.Advance)
		if perr != nil {
			return perr
		}
		h.clock.Advance(d)
		detail = map[string]any{"duration": d.String()}

	case step.Poll != nil:
		kind = "poll"
		target = step.Poll.Target
		detail, err = h.executePoll(step.Poll)

	case step.TrySend != nil:
		kind = "try_send"
		target = step.TrySend.Channel
		detail, err = h.executeTrySend(step.TrySend)

	case step.TryRecv != nil:
		kind = "try_recv"
		target = step.TryRecv.Channel
		detail, err = h.executeTryRecv(step.TryRecv)

	case step.SendValue != nil:
		kind = "send_value"
		target = step.SendValue.Channel
		detail, err = h.executeSendValue(step.SendValue)

	case step.QueueRead != nil:
		kind = "queue_read"
		target = step.QueueRead.Stream
		detail, err = h.executeStreamBytes(step.QueueRead, true)

	case step.ExpectWrite != nil:
		kind = "expect_write"
		target = step.ExpectWrite.Stream
		detail, err = h.executeStreamBytes(step.ExpectWrite, false)

	case step.CloseRead != nil:
		kind = "close_read"
		target = step.CloseRead.Stream
		err = h.withScript(target, func(s *iomock.Script) { s.CloseRead() })

	case step.CloseWrite != nil:
		kind = "close_write"
		target = step.CloseWrite.Stream
		err = h.withScript(target, func(s *iomock.Script) { s.CloseWrite() })

	case step.FailRead != nil:
		kind = "fail_read"
		target = step.FailRead.Stream
		detail = map[string]any{"error": step.FailRead.Error}
		err = h.withScript(target, func(s *iomock.Script) { s.FailRead(errors.New(step.FailRead.Error)) })

	case step.FailWrite != nil:
		kind = "fail_write"
		target = step.FailWrite.Stream
		detail = map[string]any{"error": step.FailWrite.Error}
		err = h.withScript(target, func(s *iomock.Script) { s.FailWrite(errors.New(step.FailWrite.Error)) })

	case step.CloseSender != nil:
		kind = "close_sender"
		target = step.CloseSender.Channel
		err = h.closeSender(target)

	case step.CloseReceiver != nil:
		kind = "close_receiver"
		target = step.CloseReceiver.Channel
		err = h.closeReceiver(target)

	default:
		return fmt.Errorf("no directive set")
	}

	if err != nil {
		return err
	}

	ev := h.recorder.Record(kind, target, detail)
	h.logger.Info("step executed",
		"step", index,
		"seq", ev.Seq,
		"kind", kind,
		"target", target,
	)

	if step.Expect != nil {
		for _, msg := range checkExpect(index, kind, step.Expect, detail) {
			result.AddError(msg)
		}
	}
	return nil
}

// executePoll advances the named operation one step, creating it on
// first poll and retiring it from the in-flight registry once it
// completes.
func (h *Harness) executePoll(p *PollStep) (map[string]any, error) {
	detail := map[string]any{"op": p.Op}

	switch p.Op {
	case "recv":
		ch, ok := h.channels[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", p.Target)
		}
		tk, ok := h.recvOps[p.Target]
		if !ok {
			tk = task.Spawn[mpsc.Msg[string]](ch.receiver.Recv())
			h.recvOps[p.Target] = tk
		}
		out := tk.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.recvOps, p.Target)
		detail["outcome"] = "completed"
		if !out.Value.OK {
			detail["eos"] = true
		} else {
			detail["value"] = out.Value.Value
		}
		return detail, nil

	case "send":
		ch, ok := h.channels[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", p.Target)
		}
		inflight, ok := h.sendOps[p.Target]
		if !ok {
			inflight = &sendInFlight{
				t:     task.Spawn[error](ch.sender.Send(p.Value)),
				value: p.Value,
			}
			h.sendOps[p.Target] = inflight
		} else if inflight.value != p.Value {
			return nil, fmt.Errorf("send to %q already in flight with value %q, cannot poll with value %q",
				p.Target, inflight.value, p.Value)
		}
		detail["value"] = inflight.value
		out := inflight.t.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.sendOps, p.Target)
		detail["outcome"] = "completed"
		if out.Value != nil {
			detail["error"] = errName(out.Value)
		}
		return detail, nil

	case "timer":
		delay, ok := h.timers[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown timer %q", p.Target)
		}
		tk, ok := h.timerOps[p.Target]
		if !ok {
			tk = task.Spawn[struct{}](delay)
			h.timerOps[p.Target] = tk
		}
		out := tk.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.timerOps, p.Target)
		detail["outcome"] = "completed"
		return detail, nil

	case "read":
		fx, ok := h.streams[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown stream %q", p.Target)
		}
		inflight, ok := h.readOps[p.Target]
		if !ok {
			size := p.Buffer
			if size == 0 {
				size = 64
			}
			buf := make([]byte, size)
			inflight = &readInFlight{
				t:   task.Spawn[iomock.IOResult](fx.stream.Read(buf)),
				buf: buf,
			}
			h.readOps[p.Target] = inflight
		}
		out := inflight.t.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.readOps, p.Target)
		detail["outcome"] = "completed"
		detail["n"] = out.Value.N
		if out.Value.N > 0 {
			detail["hex"] = hex.EncodeToString(inflight.buf[:out.Value.N])
		}
		if out.Value.Err != nil {
			detail["error"] = errName(out.Value.Err)
		}
		return detail, nil

	case "write":
		fx, ok := h.streams[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown stream %q", p.Target)
		}
		data, derr := decodeHex(p.Hex)
		if derr != nil {
			return nil, derr
		}
		normalized := hex.EncodeToString(data)
		inflight, ok := h.writeOps[p.Target]
		if !ok {
			inflight = &writeInFlight{
				t:   task.Spawn[iomock.IOResult](fx.stream.Write(data)),
				hex: normalized,
			}
			h.writeOps[p.Target] = inflight
		} else if inflight.hex != normalized {
			return nil, fmt.Errorf("write to %q already in flight with bytes %s, cannot poll with bytes %s",
				p.Target, inflight.hex, normalized)
		}
		detail["hex"] = inflight.hex
		out := inflight.t.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.writeOps, p.Target)
		detail["outcome"] = "completed"
		detail["n"] = out.Value.N
		if out.Value.Err != nil {
			detail["error"] = errName(out.Value.Err)
		}
		return detail, nil

	case "oneshot_recv":
		of, ok := h.oneshots[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown oneshot %q", p.Target)
		}
		tk, ok := h.oneshotRecvOps[p.Target]
		if !ok {
			tk = task.Spawn[oneshot.Result[string]](of.receiver)
			h.oneshotRecvOps[p.Target] = tk
		}
		out := tk.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.oneshotRecvOps, p.Target)
		detail["outcome"] = "completed"
		if out.Value.Err != nil {
			detail["error"] = errName(out.Value.Err)
		} else {
			detail["value"] = out.Value.Value
		}
		return detail, nil

	case "oneshot_closed":
		of, ok := h.oneshots[p.Target]
		if !ok {
			return nil, fmt.Errorf("unknown oneshot %q", p.Target)
		}
		tk, ok := h.closedOps[p.Target]
		if !ok {
			tk = task.Spawn[struct{}](of.sender.Closed())
			h.closedOps[p.Target] = tk
		}
		out := tk.Poll()
		if !out.Ready {
			detail["outcome"] = "suspended"
			return detail, nil
		}
		delete(h.closedOps, p.Target)
		detail["outcome"] = "completed"
		return detail, nil

	default:
		return nil, fmt.Errorf("unknown poll op %q", p.Op)
	}
}

func (h *Harness) executeTrySend(s *ChannelValue) (map[string]any, error) {
	ch, ok := h.channels[s.Channel]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", s.Channel)
	}
	detail := map[string]any{"value": s.Value}
	switch err := ch.sender.TrySend(s.Value); {
	case err == nil:
		detail["outcome"] = "ok"
	case errors.Is(err, mpsc.ErrFull):
		detail["outcome"] = "full"
	case errors.Is(err, mpsc.ErrClosed):
		detail["outcome"] = "closed"
	default:
		return nil, err
	}
	return detail, nil
}

func (h *Harness) executeTryRecv(s *ChannelRef) (map[string]any, error) {
	ch, ok := h.channels[s.Channel]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", s.Channel)
	}
	detail := map[string]any{}
	v, err := ch.receiver.TryRecv()
	switch {
	case err == nil:
		detail["outcome"] = "value"
		detail["value"] = v
	case errors.Is(err, mpsc.ErrEmpty):
		detail["outcome"] = "empty"
	case errors.Is(err, mpsc.ErrClosed):
		detail["outcome"] = "closed"
	default:
		return nil, err
	}
	return detail, nil
}

func (h *Harness) executeSendValue(s *ChannelValue) (map[string]any, error) {
	of, ok := h.oneshots[s.Channel]
	if !ok {
		return nil, fmt.Errorf("unknown oneshot %q", s.Channel)
	}
	detail := map[string]any{"value": s.Value}
	if err := of.sender.Send(s.Value); err != nil {
		detail["outcome"] = "closed"
	} else {
		detail["outcome"] = "ok"
	}
	return detail, nil
}

func (h *Harness) executeStreamBytes(s *StreamBytes, read bool) (map[string]any, error) {
	fx, ok := h.streams[s.Stream]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", s.Stream)
	}
	data, err := decodeHex(s.Hex)
	if err != nil {
		return nil, err
	}
	if read {
		fx.script.QueueRead(data)
	} else {
		fx.script.ExpectWrite(data)
	}
	return map[string]any{"hex": hex.EncodeToString(data)}, nil
}

func (h *Harness) withScript(name string, fn func(*iomock.Script)) error {
	fx, ok := h.streams[name]
	if !ok {
		return fmt.Errorf("unknown stream %q", name)
	}
	fn(fx.script)
	return nil
}

// closeSender releases the producer handle of a queue or notify-once
// channel.
func (h *Harness) closeSender(name string) error {
	if ch, ok := h.channels[name]; ok {
		ch.sender.Close()
		return nil
	}
	if of, ok := h.oneshots[name]; ok {
		of.sender.Close()
		return nil
	}
	return fmt.Errorf("unknown channel %q", name)
}

// closeReceiver drops the consumer of a queue or notify-once channel.
func (h *Harness) closeReceiver(name string) error {
	if ch, ok := h.channels[name]; ok {
		ch.receiver.Close()
		return nil
	}
	if of, ok := h.oneshots[name]; ok {
		of.receiver.Close()
		return nil
	}
	return fmt.Errorf("unknown channel %q", name)
}

// checkExpect compares an expect clause against the recorded step
// detail. Only set fields are checked; each mismatch yields one error
// message.
func checkExpect(index int, kind string, exp *Expect, detail map[string]any) []string {
	var msgs []string
	mismatch := func(field string, want, got any) {
		msgs = append(msgs, fmt.Sprintf("steps[%d] (%s): expected %s %v, got %v", index, kind, field, want, got))
	}

	if exp.Outcome != "" {
		if got, _ := detail["outcome"].(string); got != exp.Outcome {
			mismatch("outcome", exp.Outcome, got)
		}
	}
	if exp.Value != "" {
		if got, _ := detail["value"].(string); got != exp.Value {
			mismatch("value", exp.Value, got)
		}
	}
	if exp.Hex != "" {
		want := exp.Hex
		if data, err := decodeHex(exp.Hex); err == nil {
			want = hex.EncodeToString(data)
		}
		if got, _ := detail["hex"].(string); got != want {
			mismatch("hex", want, got)
		}
	}
	if exp.N != nil {
		if got, _ := detail["n"].(int); got != *exp.N {
			mismatch("n", *exp.N, got)
		}
	}
	if exp.Error != "" {
		if got, _ := detail["error"].(string); got != exp.Error {
			mismatch("error", exp.Error, got)
		}
	}
	if exp.EOS != nil {
		got, _ := detail["eos"].(bool)
		if got != *exp.EOS {
			mismatch("eos", *exp.EOS, got)
		}
	}
	return msgs
}

// errName maps completion errors to the short names scenarios use in
// expect clauses. Scripted stream errors pass through verbatim.
func errName(err error) string {
	switch {
	case errors.Is(err, mpsc.ErrClosed), errors.Is(err, oneshot.ErrClosed):
		return "closed"
	case errors.Is(err, io.EOF):
		return "eof"
	default:
		return err.Error()
	}
}
