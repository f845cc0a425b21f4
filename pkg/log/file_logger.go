package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// captureMagic opens every capture file. The trailing byte is the format
// version.
var captureMagic = []byte("UCLOG\x01")

// FileLogger appends capture events to a file. It is safe for concurrent
// use.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	written int
	dropped int
}

// NewFileLogger opens path for appending, creating it with mode 0644.
// A new or empty file gets the capture header; an existing file must
// already carry it.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if err := ensureHeader(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileLogger{file: f, encoder: NewEncoder(f)}, nil
}

func ensureHeader(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		_, err := f.Write(captureMagic)
		return err
	}
	return checkHeader(io.NewSectionReader(f, 0, int64(len(captureMagic))))
}

func checkHeader(r io.Reader) error {
	header := make([]byte, len(captureMagic))
	n, err := io.ReadFull(r, header)
	if err != nil && n > 0 {
		return ErrNotCapture
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(header, captureMagic) {
		return ErrNotCapture
	}
	return nil
}

// Log appends event. Encoding failures are counted, never returned: a
// broken capture must not disturb the bridge.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.dropped++
		return
	}
	l.written++
}

// Counts returns how many events were written and how many were dropped.
func (l *FileLogger) Counts() (written, dropped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written, l.dropped
}

// Sync commits the file to stable storage.
func (l *FileLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.file.Sync()
}

// Close closes the file. Later calls to Log are ignored and later calls to
// Close return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
