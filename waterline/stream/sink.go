package stream

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// DefaultHighWater is the backlog byte count at which Enqueue starts
	// reporting a nonzero depth (512 KB).
	DefaultHighWater = 512 * 1024
	// DefaultLowWater is the backlog byte count at/below which a paused
	// owner is told to resume (32 KB).
	DefaultLowWater = 32 * 1024
)

var (
	ErrSinkClosed   = errors.New("stream: sink closed")
	ErrSinkShutdown = errors.New("stream: sink shut down")
	ErrInvalidMarks = errors.New("stream: low watermark must be below high watermark")
)

// EventKind identifies an asynchronous sink notification.
type EventKind uint8

const (
	// EventDrainReady reports that the backlog fell to/below the low
	// watermark after the sink signaled a nonzero depth.
	EventDrainReady EventKind = iota + 1
	// EventFlushed reports that the queue fully drained: after a signaled
	// depth, or as the terminal notice after Shutdown. A signaled depth
	// produces exactly one resume notice, drain-ready or flushed, never
	// both.
	EventFlushed
	// EventWriteError reports a failed delivery; Err is a *WriteError.
	// The sink stops delivering permanently.
	EventWriteError
)

func (k EventKind) String() string {
	switch k {
	case EventDrainReady:
		return "drain-ready"
	case EventFlushed:
		return "flushed"
	case EventWriteError:
		return "write-error"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification from a sink to its owner.
type Event struct {
	Kind EventKind
	Err  error
}

// WriteError describes a failed delivery to the underlying resource.
type WriteError struct {
	SinkID string
	Op     string
	Bytes  int
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("stream: sink %s: %s %d bytes: %v", e.SinkID, e.Op, e.Bytes, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Sink queues outbound chunks and delivers them asynchronously, in FIFO
// order, to an underlying writable resource.
type Sink interface {
	// Enqueue appends a chunk to the outbound queue. It returns the queued
	// byte count once the backlog reaches the high watermark; below the
	// mark it returns zero so callers keep filling. The sink takes
	// ownership of the chunk.
	Enqueue(chunk []byte) (int, error)
	// Buffered returns the current undelivered byte count.
	Buffered() int
	// Events delivers drain-ready, flushed and write-error notifications.
	Events() <-chan Event
	// Shutdown half-closes the sink: no further enqueues are accepted and
	// a flushed event is emitted once the queue drains (immediately if it
	// is already empty). Idempotent.
	Shutdown() error
	// Close releases the sink immediately, dropping any queued chunks.
	// Idempotent.
	Close() error
}

// SinkConfig configures a BufferedSink.
type SinkConfig struct {
	ID        string // identifier used in diagnostics; random when empty
	HighWater int    // nonzero Enqueue result threshold (default 512 KB)
	LowWater  int    // drain-ready threshold (default 32 KB)
	Logger    *zap.Logger
}

// BufferedSink is the Sink implementation over an io.Writer.
//
// The queue is unbounded: the high watermark is never enforced as a hard
// limit, it only controls when Enqueue reports depth so the owner can stop
// filling. A single flusher goroutine performs blocking writes in enqueue
// order. If the writer implements CloseWrite() error, Shutdown half-closes
// it after the final flush.
type BufferedSink struct {
	id     string
	w      io.Writer
	high   int
	low    int
	logger *zap.Logger

	mu       sync.Mutex
	queue    [][]byte
	buffered int
	armed    bool // resume notice owed to the owner
	shut     bool
	closed   bool
	failed   error

	queued   atomic.Int64
	events   chan Event
	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewBufferedSink creates a sink over w and starts its flusher.
func NewBufferedSink(w io.Writer, cfg SinkConfig) (*BufferedSink, error) {
	if cfg.HighWater == 0 {
		cfg.HighWater = DefaultHighWater
	}
	if cfg.LowWater == 0 {
		cfg.LowWater = DefaultLowWater
	}
	if cfg.LowWater >= cfg.HighWater || cfg.LowWater < 0 {
		return nil, ErrInvalidMarks
	}
	if cfg.ID == "" {
		cfg.ID = randomID()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &BufferedSink{
		id:     cfg.ID,
		w:      w,
		high:   cfg.HighWater,
		low:    cfg.LowWater,
		logger: cfg.Logger,
		events: make(chan Event, 8),
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go s.flush()
	return s, nil
}

// ID returns the sink identifier used in diagnostics.
func (s *BufferedSink) ID() string { return s.id }

func (s *BufferedSink) Enqueue(chunk []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSinkClosed
	}
	if s.shut {
		s.mu.Unlock()
		return 0, ErrSinkShutdown
	}
	if s.failed != nil {
		depth, err := s.buffered, s.failed
		s.mu.Unlock()
		return depth, err
	}
	s.queue = append(s.queue, chunk)
	s.buffered += len(chunk)
	s.queued.Store(int64(s.buffered))
	depth := 0
	if s.buffered >= s.high {
		depth = s.buffered
		s.armed = true
	}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return depth, nil
}

func (s *BufferedSink) Buffered() int {
	return int(s.queued.Load())
}

func (s *BufferedSink) Events() <-chan Event { return s.events }

func (s *BufferedSink) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if s.shut {
		s.mu.Unlock()
		return nil
	}
	s.shut = true
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

func (s *BufferedSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.buffered = 0
	s.queued.Store(0)
	s.mu.Unlock()

	// Do not wait for the flusher: it may sit in a blocking Write that
	// only the owner can unblock by closing the underlying resource.
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// flush is the delivery loop. It runs on its own goroutine for the life of
// the sink and exits on close, shutdown completion, or write failure.
func (s *BufferedSink) flush() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			if s.shut {
				s.mu.Unlock()
				s.finishShutdown()
				return
			}
			s.mu.Unlock()
			select {
			case <-s.kick:
			case <-s.stop:
				return
			}
			s.mu.Lock()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		chunk := s.queue[0]
		s.mu.Unlock()

		if _, err := s.w.Write(chunk); err != nil {
			s.fail(&WriteError{SinkID: s.id, Op: "write", Bytes: len(chunk), Err: err})
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.queue = s.queue[1:]
		s.buffered -= len(chunk)
		s.queued.Store(int64(s.buffered))
		var notice *Event
		if s.armed && s.buffered <= s.low {
			s.armed = false
			kind := EventDrainReady
			if s.buffered == 0 {
				kind = EventFlushed
			}
			notice = &Event{Kind: kind}
		}
		s.mu.Unlock()

		if notice != nil {
			s.emit(*notice)
		}
	}
}

// finishShutdown runs once the queue has drained after Shutdown: half-close
// the writer when supported, then report flushed.
func (s *BufferedSink) finishShutdown() {
	if cw, ok := s.w.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			s.fail(&WriteError{SinkID: s.id, Op: "close-write", Err: err})
			return
		}
	}
	s.emit(Event{Kind: EventFlushed})
}

func (s *BufferedSink) fail(werr *WriteError) {
	s.mu.Lock()
	s.failed = werr
	s.mu.Unlock()
	s.logger.Warn("sink delivery failed",
		zap.String("sink", s.id),
		zap.String("op", werr.Op),
		zap.Int("bytes", werr.Bytes),
		zap.Error(werr.Err),
	)
	s.emit(Event{Kind: EventWriteError, Err: werr})
}

func (s *BufferedSink) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

// NopWriteCloser wraps an io.Writer with a no-op Close, for destinations
// whose lifetime is managed elsewhere.
func NopWriteCloser(w io.Writer) io.WriteCloser {
	return nopWriteCloser{w}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func randomID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "sink-0"
	}
	return hex.EncodeToString(b[:])
}
