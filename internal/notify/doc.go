// Package notify delivers committed exchange transitions to subscribers.
//
// The engine hands every event to a Sink after its locks are released.
// Delivery is best effort: a Sink failure never rolls back a transition.
//
// Sinks:
//   - Dispatcher: asynchronous FIFO in front of another Sink, drained by Run
//   - Hub: in-process subscribers over buffered channels
//   - KafkaSink: JSON events on a Kafka topic
//   - Fanout: several sinks at once
//
// The audit journal (package journal) is also a Sink.
package notify
