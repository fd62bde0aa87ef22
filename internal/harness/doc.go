// Package harness executes scenario files against the deterministic
// test primitives.
//
// A scenario declares fixtures (queue channels, notify-once channels,
// scripted streams, timers) and a strictly ordered list of steps. The
// harness constructs the fixtures on a fresh virtual clock, executes
// each step exactly once, and records every stimulus injection and
// every poll outcome as a trace event. Because nothing in the
// primitives runs on its own, the trace is a pure function of the
// scenario: running the same file twice produces byte-identical
// canonical traces, which is what the golden files and the journal
// replay check verify.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	channels:
//	  - name: ch
//	    kind: bounded
//	    capacity: 2
//	oneshots:
//	  - name: done
//	streams:
//	  - name: conn
//	timers:
//	  - name: t1
//	    after: 150ms
//	steps:
//	  - poll: { op: recv, target: ch }
//	    expect: { outcome: suspended }
//	  - try_send: { channel: ch, value: "a" }
//	    expect: { outcome: ok }
//	  - poll: { op: recv, target: ch }
//	    expect: { outcome: completed, value: "a" }
//	assertions:
//	  - type: trace_count
//	    kind: poll
//	    target: ch
//	    count: 2
//
// # Steps
//
// Each step carries exactly one directive:
//
//   - advance: move the virtual clock forward
//   - poll: advance a suspendable operation one step (ops: recv,
//     send, timer, read, write, oneshot_recv, oneshot_closed)
//   - try_send / try_recv: non-suspending queue operations
//   - send_value: deliver a value on a notify-once channel
//   - queue_read / expect_write: script stream bytes (hex)
//   - close_read / close_write / fail_read / fail_write: force a
//     stream side into a terminal state
//   - close_sender / close_receiver: release channel handles
//
// A step's optional expect clause validates the outcome; mismatches
// fail the scenario without stopping it.
//
// # Assertion Types
//
// The following assertion types run against the final trace:
//
//   - trace_contains: at least one event matches a kind/target filter
//   - trace_order: first occurrences appear in the listed order
//   - trace_count: exactly N events match a kind/target filter
//
// # Usage
//
// Load a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/bounded_backpressure.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Execute it:
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
