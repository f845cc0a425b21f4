package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uclog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !bytes.Equal(data, captureMagic) {
		t.Errorf("file = %q, want only the header %q", data, captureMagic)
	}
}

func TestFileLoggerWritesCBORAfterHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uclog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionOut,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		DeviceID:     "SL32R-1234",
		Frame:        &FrameEvent{Size: 10, Data: []byte{0x55, 0x43, 0x00, 0x01}, Type: "KA"},
	}
	logger.Log(event)
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	decoded, err := DecodeEvent(data[len(captureMagic):])
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.DeviceID != event.DeviceID {
		t.Errorf("DeviceID = %q, want %q", decoded.DeviceID, event.DeviceID)
	}
	if decoded.Frame == nil || decoded.Frame.Type != "KA" {
		t.Errorf("Frame = %+v, want type KA", decoded.Frame)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uclog")

	for i, id := range []string{"first", "second"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: id})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var ids []string
	err = reader.Each(func(e Event) error {
		ids = append(ids, e.ConnectionID)
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "first" || ids[1] != "second" {
		t.Errorf("ids = %v, want [first second]", ids)
	}
}

func TestFileLoggerRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("shopping list"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileLogger(path)
	if !errors.Is(err, ErrNotCapture) {
		t.Errorf("NewFileLogger error = %v, want ErrNotCapture", err)
	}

	// The foreign file is left untouched.
	data, _ := os.ReadFile(path)
	if string(data) != "shopping list" {
		t.Errorf("file modified: %q", data)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uclog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const goroutines, perG = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				logger.Log(Event{
					Timestamp: time.Now(),
					Layer:     LayerSync,
					Parameter: &ParameterEvent{Path: "line/ch1/volume", Value: float32(i) / perG},
				})
			}
		}()
	}
	wg.Wait()

	written, dropped := logger.Counts()
	if written != goroutines*perG || dropped != 0 {
		t.Errorf("Counts() = (%d, %d), want (%d, 0)", written, dropped, goroutines*perG)
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed after %d events: %v", count, err)
		}
		count++
	}
	if count != goroutines*perG {
		t.Errorf("read %d events, want %d", count, goroutines*perG)
	}
}

func TestFileLoggerClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uclog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{ConnectionID: "before"})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync after Close = %v, want nil", err)
	}

	logger.Log(Event{ConnectionID: "after"})
	written, _ := logger.Counts()
	if written != 1 {
		t.Errorf("written = %d, want 1", written)
	}
}
