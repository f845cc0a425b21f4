package log

// Logger receives capture events. Implementations must be safe for
// concurrent use and must not block: every layer logs inline on its hot
// path.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// MultiLogger fans events out to several loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger over the non-nil loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// FilterLogger forwards only the events that match a Filter.
type FilterLogger struct {
	next   Logger
	filter Filter
}

// NewFilterLogger returns a logger that passes matching events to next.
func NewFilterLogger(next Logger, filter Filter) *FilterLogger {
	return &FilterLogger{next: next, filter: filter}
}

// Log forwards event when it matches.
func (f *FilterLogger) Log(event Event) {
	if f.filter.Match(event) {
		f.next.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
	_ Logger = (*MultiLogger)(nil)
	_ Logger = (*FilterLogger)(nil)
)
