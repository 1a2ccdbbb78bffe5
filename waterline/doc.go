// Package waterline provides a backpressure-aware byte pump.
//
// A pump session moves chunks from a readable source into a buffered sink,
// pausing the source once the sink's outbound queue passes a high-water
// threshold and resuming after it drains below a low-water threshold. Both
// endpoints are torn down in order once the source is exhausted and the
// sink fully flushed; fatal errors release all owned resources before they
// are reported, never after.
//
// This package is the thin entry point; the state machine lives in pump,
// the source strategies and the buffered sink in stream, per-chunk
// transforms in codec, and a QUIC endpoint helper in transport/quic.
package waterline
