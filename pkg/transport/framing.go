package transport

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/log"
	"github.com/ucbridge/ucbridge-go/pkg/wire"
)

const (
	// ReadChunkSize is the size of each read from the stream.
	ReadChunkSize = 4096

	// MaxLogFrameDataSize caps the frame bytes copied into capture events.
	MaxLogFrameDataSize = 4096
)

// frameTap mirrors frames into a capture logger when one is attached.
type frameTap struct {
	logger log.Logger
	connID string
}

// SetLogger attaches a capture logger; nil detaches it.
func (t *frameTap) SetLogger(logger log.Logger, connID string) {
	t.logger, t.connID = logger, connID
}

func (t *frameTap) capture(frame []byte, dir log.Direction) {
	if t.logger == nil {
		return
	}
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        &log.FrameEvent{Size: len(frame), Data: frame},
	}
	if len(frame) > MaxLogFrameDataSize {
		ev.Frame.Data, ev.Frame.Truncated = frame[:MaxLogFrameDataSize], true
	}
	if len(frame) >= wire.HeaderSize {
		ev.Frame.Type = string(frame[wire.MagicSize+wire.LengthSize : wire.HeaderSize])
	}
	t.logger.Log(ev)
}

// FrameWriter serializes whole frames onto w. Safe for concurrent use.
type FrameWriter struct {
	frameTap
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter returns a writer over w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes one complete frame.
func (fw *FrameWriter) WriteFrame(frame []byte) error {
	if len(frame) < wire.HeaderSize {
		return fmt.Errorf("%w: frame of %d bytes", wire.ErrBadLength, len(frame))
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	fw.capture(frame, log.DirectionOut)
	return nil
}

// WriteMessage encodes msg and writes it as one frame.
func (fw *FrameWriter) WriteMessage(msg wire.Message) error {
	frame, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return fw.WriteFrame(frame)
}

// FrameReader reassembles frames from a byte stream.
//
// Bytes are buffered until a full frame is available. Garbage ahead of the
// next magic is discarded and reported as wire.ErrBadMagic; a header with an
// impossible length is discarded and reported as wire.ErrBadLength. Both are
// recoverable: the next ReadFrame call continues with the remaining bytes.
// Errors from the underlying reader are returned unchanged.
type FrameReader struct {
	frameTap
	r     io.Reader
	buf   []byte
	chunk []byte
}

// NewFrameReader returns a reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, chunk: make([]byte, ReadChunkSize)}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (fr *FrameReader) Buffered() int {
	return len(fr.buf)
}

// Reset discards any partially received frame.
func (fr *FrameReader) Reset() {
	fr.buf = nil
}

// ReadFrame returns the next complete frame, header included.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		frame, err := fr.extract()
		if err != nil || frame != nil {
			return frame, err
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf = append(fr.buf, fr.chunk[:n]...)
		}
		if err != nil {
			// Deliver what completed before the stream ended.
			if n > 0 {
				if frame, ferr := fr.extract(); frame != nil || ferr != nil {
					return frame, ferr
				}
			}
			return nil, err
		}
	}
}

// extract pulls one frame out of the buffer. It returns (nil, nil) when more
// bytes are needed.
func (fr *FrameReader) extract() ([]byte, error) {
	if len(fr.buf) == 0 {
		return nil, nil
	}

	idx := bytes.Index(fr.buf, wire.Magic[:])
	if idx < 0 {
		// Keep a possible magic prefix split across reads.
		keep := wire.MagicSize - 1
		if len(fr.buf) <= keep {
			return nil, nil
		}
		dropped := len(fr.buf) - keep
		fr.buf = append(fr.buf[:0], fr.buf[dropped:]...)
		return nil, fmt.Errorf("%w: skipped %d bytes", wire.ErrBadMagic, dropped)
	}
	if idx > 0 {
		fr.buf = append(fr.buf[:0], fr.buf[idx:]...)
		return nil, fmt.Errorf("%w: skipped %d bytes", wire.ErrBadMagic, idx)
	}

	if len(fr.buf) < wire.MagicSize+wire.LengthSize {
		return nil, nil
	}
	size, err := wire.FrameSize(fr.buf)
	if err != nil {
		// Drop the magic so the next pass resyncs past this header.
		fr.buf = append(fr.buf[:0], fr.buf[wire.MagicSize:]...)
		return nil, err
	}
	if len(fr.buf) < size {
		return nil, nil
	}

	frame := make([]byte, size)
	copy(frame, fr.buf)
	fr.buf = append(fr.buf[:0], fr.buf[size:]...)

	fr.capture(frame, log.DirectionIn)
	return frame, nil
}

// Framer reads and writes frames over one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer returns a Framer over rw.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{FrameReader: NewFrameReader(rw), FrameWriter: NewFrameWriter(rw)}
}

// SetLogger attaches logger to both directions.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}
