// Package pump moves bytes from a Source to a buffered Sink under
// watermark flow control.
//
// A Session owns exactly one source and one destination, fills the sink
// aggressively until it reports a backlog, then suspends until the sink
// signals drain-ready or flushed. Suspension is a channel select, never a
// poll. Each session runs on its own goroutine, so a blocking source read
// stalls only that session; independent sessions do not share state.
package pump

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/TheusHen/waterline/waterline/codec"
	"github.com/TheusHen/waterline/waterline/stream"
)

var (
	ErrNilSource         = errors.New("pump: nil source")
	ErrNilDestination    = errors.New("pump: nil destination")
	ErrInvalidWatermarks = errors.New("pump: low watermark must be below high watermark")
)

// ReadError reports a source read failure, as opposed to a clean
// end-of-stream.
type ReadError struct {
	SessionID string
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("pump: session %s: read: %v", e.SessionID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Config configures a Session.
type Config struct {
	ID        string      // identifier used in diagnostics; random when empty
	HighWater int         // pause threshold in bytes (default 512 KB)
	LowWater  int         // resume threshold in bytes (default 32 KB)
	Codec     codec.Codec // per-chunk transform (default identity)
	Logger    *zap.Logger // debug logging (default no-op)
	// OnFault, when set, receives the fatal error after teardown has
	// released all owned resources and before Wait returns it.
	OnFault func(error)
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		HighWater: stream.DefaultHighWater,
		LowWater:  stream.DefaultLowWater,
		Codec:     codec.Identity(),
	}
}

// Stats tracks a session's progress.
type Stats struct {
	ChunksRead atomic.Int64
	BytesRead  atomic.Int64
	BytesOut   atomic.Int64 // bytes enqueued after the codec transform
	Pauses     atomic.Int64
}

// Session pumps one source into one destination and owns both for its
// lifetime. Create with New, drive with Start/Wait or Run.
type Session struct {
	id      string
	high    int
	low     int
	logger  *zap.Logger
	onFault func(error)

	// Owned resources; cleared as the state machine releases them.
	// Touched only by the run goroutine after Start.
	src   stream.Source
	dst   io.WriteCloser
	codec codec.Codec
	sink  stream.Sink

	readingComplete bool

	state     atomic.Int32
	stats     Stats
	startOnce sync.Once
	done      chan struct{}
	err       error
}

// New creates a session over src and dst. The session takes exclusive
// ownership of both; no other component may use or close them. The codec
// is cloned so per-session state is never shared.
func New(src stream.Source, dst io.WriteCloser, cfg Config) (*Session, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if dst == nil {
		return nil, ErrNilDestination
	}
	if cfg.HighWater == 0 {
		cfg.HighWater = stream.DefaultHighWater
	}
	if cfg.LowWater == 0 {
		cfg.LowWater = stream.DefaultLowWater
	}
	if cfg.LowWater >= cfg.HighWater || cfg.LowWater < 0 {
		return nil, ErrInvalidWatermarks
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Identity()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ID == "" {
		cfg.ID = randomID()
	}
	return &Session{
		id:      cfg.ID,
		high:    cfg.HighWater,
		low:     cfg.LowWater,
		logger:  cfg.Logger,
		onFault: cfg.OnFault,
		src:     src,
		dst:     dst,
		codec:   cfg.Codec.Clone(),
		done:    make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Stats returns the session's progress counters.
func (s *Session) Stats() *Stats { return &s.stats }

// Start activates the session on its own goroutine. It is idempotent:
// repeated calls do not start additional runs. Cancelling ctx tears the
// session down with the context error as reason.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Done is closed once the session reaches its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the session's fatal error, if any. Valid after Done.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the session terminates and returns its error.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Run starts the session and waits for it to finish.
func (s *Session) Run(ctx context.Context) error {
	s.Start(ctx)
	return s.Wait()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.teardown(fmt.Errorf("pump: session %s: panic: %v", s.id, r))
		}
	}()

	sink, err := stream.NewBufferedSink(s.dst, stream.SinkConfig{
		ID:        s.id,
		HighWater: s.high,
		LowWater:  s.low,
		Logger:    s.logger,
	})
	if err != nil {
		s.teardown(err)
		return
	}
	s.sink = sink
	s.setState(StateFilling)
	s.logger.Debug("session started",
		zap.String("session", s.id),
		zap.Int("high_water", s.high),
		zap.Int("low_water", s.low),
	)

	for {
		if err := s.fill(ctx); err != nil {
			s.teardown(err)
			return
		}
		if s.readingComplete {
			if err := s.sink.Shutdown(); err != nil {
				s.teardown(err)
				return
			}
			if s.awaitFlushed(ctx) {
				s.finalize()
			}
			return
		}
		s.setState(StateAwaitingDrain)
		s.stats.Pauses.Add(1)
		if !s.awaitDrain(ctx) {
			return
		}
		s.setState(StateFilling)
	}
}

// fill reads and enqueues until end-of-stream or until the sink reports a
// backlog. It returns nil on a pause or a completed read; any error is
// fatal to the session.
func (s *Session) fill(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pump: session %s: cancelled: %w", s.id, err)
		}
		chunk, err := s.src.ReadChunk()
		if err == io.EOF {
			s.readingComplete = true
			if cerr := s.src.Close(); cerr != nil {
				s.logger.Warn("source close failed",
					zap.String("session", s.id), zap.Error(cerr))
			}
			s.src = nil
			s.logger.Debug("source exhausted", zap.String("session", s.id),
				zap.Int64("bytes_read", s.stats.BytesRead.Load()))
			return nil
		}
		if err != nil {
			return &ReadError{SessionID: s.id, Err: err}
		}
		if len(chunk) == 0 {
			// Transient zero-length read; only io.EOF ends the stream.
			continue
		}
		s.stats.ChunksRead.Add(1)
		s.stats.BytesRead.Add(int64(len(chunk)))

		out, err := s.codec.Transform(chunk)
		if err != nil {
			return fmt.Errorf("pump: session %s: codec: %w", s.id, err)
		}
		if len(out) == 0 {
			continue
		}
		depth, err := s.sink.Enqueue(out)
		if err != nil {
			return err
		}
		s.stats.BytesOut.Add(int64(len(out)))
		if depth > 0 {
			s.logger.Debug("backlog high, pausing",
				zap.String("session", s.id), zap.Int("backlog", depth))
			return nil
		}
	}
}

// awaitDrain suspends until the sink is ready for more data. It returns
// false when the session was torn down instead.
func (s *Session) awaitDrain(ctx context.Context) bool {
	for {
		select {
		case ev := <-s.sink.Events():
			switch ev.Kind {
			case stream.EventDrainReady, stream.EventFlushed:
				s.logger.Debug("resuming",
					zap.String("session", s.id), zap.Stringer("event", ev.Kind))
				return true
			case stream.EventWriteError:
				s.teardown(ev.Err)
				return false
			}
		case <-ctx.Done():
			s.teardown(fmt.Errorf("pump: session %s: cancelled: %w", s.id, ctx.Err()))
			return false
		}
	}
}

// awaitFlushed suspends after shutdown until the sink reports the terminal
// flush. It returns false when the session was torn down instead.
func (s *Session) awaitFlushed(ctx context.Context) bool {
	s.setState(StateAwaitingDrain)
	for {
		select {
		case ev := <-s.sink.Events():
			switch ev.Kind {
			case stream.EventFlushed:
				// A flushed notice may predate the final enqueues; the
				// terminal one leaves nothing buffered.
				if s.sink.Buffered() == 0 {
					return true
				}
			case stream.EventWriteError:
				s.teardown(ev.Err)
				return false
			}
		case <-ctx.Done():
			s.teardown(fmt.Errorf("pump: session %s: cancelled: %w", s.id, ctx.Err()))
			return false
		}
	}
}

// finalize releases the sink and closes the destination after everything
// has been delivered.
func (s *Session) finalize() {
	s.setState(StateFinalizing)
	_ = s.sink.Close()
	s.sink = nil
	err := s.dst.Close()
	s.dst = nil
	s.setState(StateClosed)
	if err != nil {
		s.fault(&stream.WriteError{SinkID: s.id, Op: "close", Err: err})
		return
	}
	s.logger.Debug("session closed",
		zap.String("session", s.id),
		zap.Int64("bytes_out", s.stats.BytesOut.Load()),
		zap.Int64("pauses", s.stats.Pauses.Load()),
	)
}

// teardown performs best-effort release of whatever is still owned, in
// source, sink, destination order, then records the triggering error. It
// never suppresses the error; Wait returns it unchanged.
func (s *Session) teardown(err error) {
	if s.State() == StateClosed {
		return
	}
	s.setState(StateErrorTeardown)
	if s.src != nil {
		_ = s.src.Close()
		s.src = nil
		s.readingComplete = true
	}
	if s.sink != nil {
		_ = s.sink.Close()
		s.sink = nil
	}
	if s.dst != nil {
		_ = s.dst.Close()
		s.dst = nil
	}
	s.setState(StateClosed)
	s.fault(err)
}

func (s *Session) fault(err error) {
	s.err = err
	s.logger.Warn("session failed", zap.String("session", s.id), zap.Error(err))
	if s.onFault != nil {
		s.onFault(err)
	}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func randomID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "session-0"
	}
	return hex.EncodeToString(b[:])
}
