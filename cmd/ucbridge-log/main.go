// Command ucbridge-log views and analyzes ucbridge protocol captures.
//
// Capture files are written by ucbridge when run with -protocol-log.
//
// Usage:
//
//	ucbridge-log <command> [flags] <file.uclog>
//
// Commands:
//
//	view     View a capture in human-readable format
//	export   Export a capture to JSONL or CSV
//	filter   Filter a capture and write to a new file
//	stats    Show event counts and sync latency
//
// Examples:
//
//	# View only sync-layer parameter events
//	ucbridge-log view -layer sync session.uclog
//
//	# Follow one fader
//	ucbridge-log view -device SL32R-1234 -path line/ch1/ session.uclog
//
//	# Latency report against a 5ms budget
//	ucbridge-log stats -budget 5ms session.uclog
//
//	# Export to CSV for plotting
//	ucbridge-log export -format csv -o session.csv session.uclog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ucbridge/ucbridge-go/cmd/ucbridge-log/commands"
	"github.com/ucbridge/ucbridge-go/pkg/service"
)

const usage = `ucbridge-log - ucbridge Protocol Capture Analyzer

Usage:
  ucbridge-log <command> [flags] <file.uclog>

Commands:
  view     View a capture in human-readable format
  export   Export a capture to JSONL or CSV
  filter   Filter a capture and write to a new file
  stats    Show event counts and sync latency

Use "ucbridge-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the filter flags shared by view and filter.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	var opts commands.FilterOptions
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.DeviceID, "device", "", "Filter by device ID")
	fs.StringVar(&opts.PortID, "port", "", "Filter by MIDI port ID (e.g. in:X-Touch)")
	fs.StringVar(&opts.PathPrefix, "path", "", "Filter parameter events by path prefix")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, sync, midi)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
	return &opts
}

func requirePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ucbridge-log view - View a capture in human-readable format

Usage:
  ucbridge-log view [flags] <file.uclog>

Flags:
`)
		fs.PrintDefaults()
	}
	opts := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ucbridge-log export - Export a capture to JSONL or CSV

Usage:
  ucbridge-log export [flags] <file.uclog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ucbridge-log filter - Filter a capture and write to a new file

Usage:
  ucbridge-log filter -o <out.uclog> [flags] <file.uclog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	count, err := commands.RunFilter(path, *output, *opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", count, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ucbridge-log stats - Show event counts and sync latency

Usage:
  ucbridge-log stats [flags] <file.uclog>

Flags:
`)
		fs.PrintDefaults()
	}

	budget := fs.Duration("budget", service.DefaultLatencyWarning, "Latency budget for the over-budget count")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunStats(path, *budget, os.Stdout); err != nil {
		fail(err)
	}
}
