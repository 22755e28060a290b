/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-apidispatch/log"
)

// RecordedEntry is a single logged entry captured by Recorder.
type RecordedEntry struct {
	Fields []log.Field
	Level  log.Level
	Time   time.Time
	Text   string
}

// FindField looks up a field of the entry by key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// StringField returns the value of a string field, or "" when absent.
func (re *RecordedEntry) StringField(key string) string {
	if f, ok := re.FindField(key); ok {
		return string(f.Bytes)
	}
	return ""
}

// IntField returns the value of an integer field, or 0 when absent.
func (re *RecordedEntry) IntField(key string) int64 {
	if f, ok := re.FindField(key); ok {
		return f.Int
	}
	return 0
}

type entrySink struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (s *entrySink) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.DerivedFields...)
	fields = append(fields, e.Fields...)

	s.mu.Lock()
	s.entries = append(s.entries, RecordedEntry{
		Fields: fields,
		Level:  fromLogfLevel(e.Level),
		Time:   e.Time,
		Text:   e.Text,
	})
	s.mu.Unlock()
}

// Recorder is a log.FieldLogger that keeps every entry in memory.
// Loggers derived with With or WithLevel share the same storage.
type Recorder struct {
	*log.LogfAdapter
	sink *entrySink
}

var _ log.FieldLogger = (*Recorder)(nil)

// NewRecorder creates a Recorder that accepts all levels.
func NewRecorder() *Recorder {
	sink := &entrySink{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, sink)}, sink}
}

// With returns a derived Recorder with additional fields.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.sink}
}

// WithLevel returns a derived Recorder that drops entries below the given level.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.sink}
}

// Entries returns a snapshot of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.sink.mu.RLock()
	defer r.sink.mu.RUnlock()
	return append([]RecordedEntry(nil), r.sink.entries...)
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	found := r.FindAllEntries(msg)
	if len(found) == 0 {
		return RecordedEntry{}, false
	}
	return found[0], true
}

// FindAllEntries returns every entry with the given message, in logging order.
func (r *Recorder) FindAllEntries(msg string) []RecordedEntry {
	return r.FindAllEntriesByFilter(func(e RecordedEntry) bool { return e.Text == msg })
}

// FindAllEntriesByFilter returns every entry accepted by filter, in logging order.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	r.sink.mu.RLock()
	defer r.sink.mu.RUnlock()
	var res []RecordedEntry
	for _, e := range r.sink.entries {
		if filter(e) {
			res = append(res, e)
		}
	}
	return res
}

// CountEntries returns how many entries with the given message were logged.
func (r *Recorder) CountEntries(msg string) int {
	return len(r.FindAllEntries(msg))
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.sink.mu.Lock()
	r.sink.entries = nil
	r.sink.mu.Unlock()
}

func fromLogfLevel(value logf.Level) log.Level {
	switch value {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
