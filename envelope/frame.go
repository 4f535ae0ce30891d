package envelope

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize caps a single framed envelope on raw byte streams.
const MaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("frame too large")

// Frame prefixes an encoded envelope with its varint length.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, protowire.SizeVarint(uint64(len(payload)))+len(payload))
	out = protowire.AppendVarint(out, uint64(len(payload)))
	return append(out, payload...)
}

// FrameReader reads length-prefixed frames from a byte stream.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &FrameReader{r: br}
	}
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until one complete frame is available. A clean EOF before
// any prefix byte is returned as io.EOF; a stream that ends mid-frame returns
// io.ErrUnexpectedEOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	n, err := binary.ReadUvarint(fr.r)
	if err != nil {
		return nil, err
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// ReadEnvelope reads and decodes one framed envelope.
func (fr *FrameReader) ReadEnvelope() (*Envelope, error) {
	frame, err := fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Unmarshal(frame)
}

// WriteEnvelope encodes and frames e in a single Write call.
func WriteEnvelope(w io.Writer, e *Envelope) error {
	payload, err := Marshal(e)
	if err != nil {
		return err
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}
	_, err = w.Write(Frame(payload))
	return err
}
