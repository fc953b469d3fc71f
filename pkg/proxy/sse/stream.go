package sse

import (
	"context"
	"io"
	"sync"
)

// Stream is a typed view over a live event-stream response body.
// Closing the stream closes the underlying connection, which is how
// consumer cancellation reaches the upstream promptly.
type Stream struct {
	body      io.ReadCloser
	parser    *Parser
	closeOnce sync.Once
	closed    chan struct{}
}

// NewStream wraps a response body in a typed event stream.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:   body,
		parser: NewParser(body),
		closed: make(chan struct{}),
	}
}

// Next returns the next event. Cancelling ctx closes the stream and
// returns the context error. io.EOF signals a clean end of stream.
func (s *Stream) Next(ctx context.Context) (*Event, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	default:
	}

	type result struct {
		ev  *Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := s.parser.Next()
		ch <- result{ev, err}
	}()

	select {
	case r := <-ch:
		return r.ev, r.err
	case <-ctx.Done():
		// Closing the body unblocks the parser's pending read.
		_ = s.Close()
		return nil, ctx.Err()
	}
}

// Close terminates the stream and the upstream connection behind it.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.body.Close()
	})
	return err
}
