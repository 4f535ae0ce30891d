// Package transport runs one receive loop per participant connection and
// serializes everything written back to it.
package transport

import (
	"io"
	"sync"

	"tablekit/envelope"
)

// Stream moves whole encoded envelopes. ReadMessage blocks until one message
// is available; WriteMessage is not required to be safe for concurrent use.
type Stream interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
}

// framedStream carries varint length-prefixed envelopes over a byte stream
// such as a TCP connection or net.Pipe.
type framedStream struct {
	rwc       io.ReadWriteCloser
	r         *envelope.FrameReader
	closeOnce sync.Once
	closeErr  error
}

func NewFramedStream(rwc io.ReadWriteCloser) Stream {
	return &framedStream{rwc: rwc, r: envelope.NewFrameReader(rwc)}
}

func (s *framedStream) ReadMessage() ([]byte, error) {
	return s.r.ReadFrame()
}

func (s *framedStream) WriteMessage(b []byte) error {
	if len(b) > envelope.MaxFrameSize {
		return envelope.ErrFrameTooLarge
	}
	_, err := s.rwc.Write(envelope.Frame(b))
	return err
}

func (s *framedStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.rwc.Close() })
	return s.closeErr
}
