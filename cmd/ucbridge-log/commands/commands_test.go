package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.uclog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func latency(d time.Duration) *time.Duration {
	return &d
}

var testTime = time.Date(2026, 10, 18, 20, 15, 32, 123456000, time.UTC)

func sessionEvents() []log.Event {
	return []log.Event{
		{
			Timestamp: testTime,
			Direction: log.DirectionIn,
			Layer:     log.LayerMIDI,
			Category:  log.CategoryState,
			PortID:    "in:X-Touch",
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityPort,
				OldState: "AVAILABLE",
				NewState: "CONNECTED",
			},
		},
		{
			Timestamp:    testTime.Add(time.Second),
			ConnectionID: "0b7a4c2e-51f2-4f2e-9d6e-4c8d1f0a9b11",
			Direction:    log.DirectionOut,
			Layer:        log.LayerSync,
			Category:     log.CategoryMessage,
			DeviceID:     "SL32R-1234",
			Parameter: &log.ParameterEvent{
				Path:    "line/ch1/volume",
				Value:   0.55,
				Latency: latency(2 * time.Millisecond),
			},
		},
		{
			Timestamp:    testTime.Add(2 * time.Second),
			ConnectionID: "0b7a4c2e-51f2-4f2e-9d6e-4c8d1f0a9b11",
			Direction:    log.DirectionOut,
			Layer:        log.LayerSync,
			Category:     log.CategoryMessage,
			DeviceID:     "SL32R-1234",
			Parameter: &log.ParameterEvent{
				Path:    "line/ch2/volume",
				Value:   0.8,
				Latency: latency(14 * time.Millisecond),
			},
		},
		{
			Timestamp:    testTime.Add(3 * time.Second),
			ConnectionID: "0b7a4c2e-51f2-4f2e-9d6e-4c8d1f0a9b11",
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			DeviceID:     "SL32R-1234",
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: "connection reset by peer",
				Context: "read",
			},
		},
	}
}

func TestFormatParameterEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[1])
	output := buf.String()

	for _, want := range []string{
		"2026-10-18T20:15:33.123456Z",
		"[dev:SL32R-1234]",
		"OUT",
		"SYNC",
		"line/ch1/volume = 0.5500",
		"Latency: 2.000ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatFrameEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    testTime,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size: 10,
			Data: []byte{0x55, 0x43, 0x00, 0x01, 0x02, 0x00, 'K', 'A', 0x00, 0x00},
			Type: "KA",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "[conn:abc12345]") {
		t.Errorf("expected shortened connection ID, got: %s", output)
	}
	if !strings.Contains(output, "frame KA") {
		t.Errorf("expected frame type, got: %s", output)
	}
	if !strings.Contains(output, "Data: 554300010200") {
		t.Errorf("expected hex data, got: %s", output)
	}
}

func TestFormatStateAndError(t *testing.T) {
	events := sessionEvents()

	var buf bytes.Buffer
	formatEvent(&buf, events[0])
	if !strings.Contains(buf.String(), "[port:in:X-Touch]") || !strings.Contains(buf.String(), "AVAILABLE -> CONNECTED") {
		t.Errorf("unexpected state output: %s", buf.String())
	}

	buf.Reset()
	formatEvent(&buf, events[3])
	if !strings.Contains(buf.String(), "connection reset by peer") || !strings.Contains(buf.String(), "Context: read") {
		t.Errorf("unexpected error output: %s", buf.String())
	}
}

func TestRunViewFilter(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	filter, err := FilterOptions{Layer: "sync", PathPrefix: "line/ch2/"}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "line/ch2/volume") {
		t.Errorf("expected ch2 event, got: %s", output)
	}
	if strings.Contains(output, "line/ch1/volume") || strings.Contains(output, "X-Touch") {
		t.Errorf("filtered events leaked into output: %s", output)
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	tests := []struct {
		name    string
		opts    FilterOptions
		wantErr bool
	}{
		{"empty", FilterOptions{}, false},
		{"all", FilterOptions{Layer: "MIDI", Direction: "in", Category: "state", TimeStart: "2026-10-18T20:00:00Z"}, false},
		{"bad layer", FilterOptions{Layer: "service"}, true},
		{"bad direction", FilterOptions{Direction: "both"}, true},
		{"bad category", FilterOptions{Category: "snapshot"}, true},
		{"bad time", FilterOptions{TimeEnd: "yesterday"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Build()
			if (err != nil) != tt.wantErr {
				t.Errorf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.uclog")

	count, err := RunFilter(path, outPath, FilterOptions{DeviceID: "SL32R-1234"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	reader, err := log.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	read := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		if event.DeviceID != "SL32R-1234" {
			t.Errorf("DeviceID = %q, want SL32R-1234", event.DeviceID)
		}
		read++
	}
	if read != count {
		t.Errorf("read %d events, want %d", read, count)
	}
}

func TestCollect(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	stats, err := Collect(path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if got := stats.EventsByLayer[log.LayerSync]; got != 2 {
		t.Errorf("EventsByLayer[SYNC] = %d, want 2", got)
	}

	l := stats.Latency
	if l.Count != 2 || l.Min != 2*time.Millisecond || l.Max != 14*time.Millisecond {
		t.Errorf("Latency = %+v, want 2 samples in [2ms, 14ms]", l)
	}
	if l.Average() != 8*time.Millisecond {
		t.Errorf("Average = %v, want 8ms", l.Average())
	}
	if l.OverBudget != 1 {
		t.Errorf("OverBudget = %d, want 1", l.OverBudget)
	}

	dev := stats.Sources["dev:SL32R-1234"]
	if dev == nil || dev.Events != 3 || dev.Parameters != 2 {
		t.Errorf("device stats = %+v, want 3 events and 2 parameters", dev)
	}
}

func TestRunStatsOutput(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, 10*time.Millisecond, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{"Total Events: 4", "SYNC:", "MIDI:", "Sync Latency:", "Errors: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("len(rows) = %d, want 5", len(rows))
	}
	row := rows[2]
	if row[7] != "parameter" || row[8] != "line/ch1/volume" || row[10] != "2000" {
		t.Errorf("parameter row = %v", row)
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Errorf("line %d is not JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 4 {
		t.Errorf("lines = %d, want 4", lines)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}
