package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ucbridge/ucbridge-go/pkg/log"
)

// ExportFormats lists the formats RunExport accepts.
var ExportFormats = []string{"jsonl", "csv"}

// exporter writes events to one output format.
type exporter interface {
	write(log.Event) error
	flush() error
}

func newExporter(format string, w io.Writer) (exporter, error) {
	switch format {
	case "jsonl":
		return jsonlExporter{enc: json.NewEncoder(w)}, nil
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(csvColumns); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		return csvExporter{w: cw}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// RunExport converts the capture at path into format. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	if !validFormat(format) {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	exp, err := newExporter(format, w)
	if err != nil {
		return err
	}
	if err := reader.Each(exp.write); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return exp.flush()
}

func validFormat(format string) bool {
	for _, f := range ExportFormats {
		if f == format {
			return true
		}
	}
	return false
}

type jsonlExporter struct {
	enc *json.Encoder
}

func (e jsonlExporter) write(event log.Event) error { return e.enc.Encode(event) }
func (e jsonlExporter) flush() error                { return nil }

var csvColumns = []string{
	"timestamp", "connection_id", "direction", "layer", "category",
	"device_id", "port_id", "type", "path", "value", "latency_us",
}

type csvExporter struct {
	w *csv.Writer
}

func (e csvExporter) write(event log.Event) error {
	var path, value, latency string
	if p := event.Parameter; p != nil {
		path = p.Path
		value = strconv.FormatFloat(float64(p.Value), 'f', -1, 32)
		if p.Latency != nil {
			latency = strconv.FormatInt(p.Latency.Microseconds(), 10)
		}
	}
	return e.w.Write([]string{
		event.Timestamp.UTC().Format(timestampLayout),
		event.ConnectionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.DeviceID,
		event.PortID,
		eventKind(event),
		path,
		value,
		latency,
	})
}

func (e csvExporter) flush() error {
	e.w.Flush()
	return e.w.Error()
}
