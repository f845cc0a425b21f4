package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/log"
)

// Stats aggregates a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sources           map[string]*SourceStats
	Errors            int
	Latency           LatencySummary
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SourceStats holds statistics for one device or MIDI port.
type SourceStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Parameters int
	Errors     int
}

// LatencySummary aggregates the latencies recorded on outbound parameter
// events.
type LatencySummary struct {
	Count      int
	Min        time.Duration
	Max        time.Duration
	Total      time.Duration
	OverBudget int
}

// Average returns the mean latency, or zero without samples.
func (l LatencySummary) Average() time.Duration {
	if l.Count == 0 {
		return 0
	}
	return l.Total / time.Duration(l.Count)
}

func (l *LatencySummary) add(d, budget time.Duration) {
	if l.Count == 0 || d < l.Min {
		l.Min = d
	}
	if d > l.Max {
		l.Max = d
	}
	l.Count++
	l.Total += d
	if budget > 0 && d > budget {
		l.OverBudget++
	}
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     map[log.Layer]int{},
		EventsByCategory:  map[log.Category]int{},
		EventsByDirection: map[log.Direction]int{},
		Sources:           map[string]*SourceStats{},
	}
}

func (st *Stats) add(event log.Event, budget time.Duration) {
	ts := event.Timestamp
	st.TotalEvents++
	st.EventsByLayer[event.Layer]++
	st.EventsByCategory[event.Category]++
	st.EventsByDirection[event.Direction]++

	if r := &st.TimeRange; r.Start.IsZero() || ts.Before(r.Start) {
		r.Start = ts
	}
	if ts.After(st.TimeRange.End) {
		st.TimeRange.End = ts
	}

	src := st.Sources[source(event)]
	if src == nil {
		src = &SourceStats{FirstSeen: ts, LastSeen: ts}
		st.Sources[source(event)] = src
	}
	src.Events++
	if ts.After(src.LastSeen) {
		src.LastSeen = ts
	}

	if p := event.Parameter; p != nil {
		src.Parameters++
		if p.Latency != nil && event.Direction == log.DirectionOut {
			st.Latency.add(*p.Latency, budget)
		}
	}
	if event.Error != nil {
		src.Errors++
		st.Errors++
	}
}

// Collect aggregates every event of the capture at path. Sync latencies
// above budget count as over budget.
func Collect(path string, budget time.Duration) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	st := newStats()
	if err := reader.Each(func(e log.Event) error {
		st.add(e, budget)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	return st, nil
}

// RunStats prints a summary of the capture at path.
func RunStats(path string, budget time.Duration, w io.Writer) error {
	st, err := Collect(path, budget)
	if err != nil {
		return err
	}
	printStats(w, st, budget)
	return nil
}

type countKey interface {
	comparable
	fmt.Stringer
}

// breakdown prints the non-zero counts of keys under title.
func breakdown[K countKey](w io.Writer, title string, counts map[K]int, keys []K) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", k.String()+":", n)
		}
	}
	fmt.Fprintln(w)
}

func printStats(w io.Writer, st *Stats, budget time.Duration) {
	fmt.Fprint(w, "=== ucbridge capture summary ===\n\n")

	if st.TotalEvents > 0 {
		r := st.TimeRange
		fmt.Fprintf(w, "Time Range: %s .. %s (%s)\n\n",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.End.Sub(r.Start).Round(time.Second))
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", st.TotalEvents)

	breakdown(w, "Layers", st.EventsByLayer,
		[]log.Layer{log.LayerTransport, log.LayerWire, log.LayerSync, log.LayerMIDI})
	breakdown(w, "Categories", st.EventsByCategory,
		[]log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError})
	breakdown(w, "Directions", st.EventsByDirection,
		[]log.Direction{log.DirectionIn, log.DirectionOut})

	if l := st.Latency; l.Count > 0 {
		fmt.Fprintf(w, "Sync Latency: %d samples\n", l.Count)
		fmt.Fprintf(w, "  min %s  avg %s  max %s\n",
			formatDuration(l.Min), formatDuration(l.Average()), formatDuration(l.Max))
		fmt.Fprintf(w, "  over %s: %d\n\n", formatDuration(budget), l.OverBudget)
	}

	ids := make([]string, 0, len(st.Sources))
	for id := range st.Sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return st.Sources[ids[i]].FirstSeen.Before(st.Sources[ids[j]].FirstSeen)
	})
	fmt.Fprintf(w, "Sources: %d\n", len(ids))
	for _, id := range ids {
		src := st.Sources[id]
		fmt.Fprintf(w, "  [%s] %d events, %d parameters, %d errors, active %s\n",
			id, src.Events, src.Parameters, src.Errors, src.LastSeen.Sub(src.FirstSeen).Round(time.Millisecond))
	}

	if st.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", st.Errors)
	}
}
