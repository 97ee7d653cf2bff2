// Package audit implements async event dispatching for credential and
// session verdicts.
//
// # Components
//
//   - [Event] is the audit record. [Reason] carries the collapsed rotate
//     verdict and decides the event's log level.
//   - [Sink] is the consumer interface; [ChannelSink] and [LogSink] ship here.
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import sessionkit or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
