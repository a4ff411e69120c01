// Package audit delivers security events off the request path.
//
// # Components
//
//   - [Event]: one outcome (login, refresh, replay, logout) with account, IP and request id.
//   - [Dispatcher]: buffered async relay. Routine events may be dropped when the
//     buffer is full; replay and outage events wait for room.
//   - Sinks: [ChannelSink], [JSONWriterSink], [LogSink], [KafkaSink] and [MultiSink].
//
// # What this package must NOT do
//
//   - Decide which events to emit; the Engine does.
//   - Carry passwords or token material in an Event.
//   - Import couponauth or any sibling internal package other than logging.
package audit
