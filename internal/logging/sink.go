package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const sinkTimeFormat = "2006-01-02 15:04:05"

// Sink is a logrus hook that keeps formatted records in arrival order and
// hands them to subscribers. Records that arrive before anyone subscribes are
// kept (up to the backlog size) and replayed on Subscribe.
type Sink struct {
	mu      sync.Mutex
	backlog []string
	limit   int
	subs    []func(string)
}

func NewSink(backlog int) *Sink {
	return &Sink{limit: backlog}
}

func (s *Sink) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *Sink) Fire(entry *logrus.Entry) error {
	line := Format(entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) == 0 {
		s.backlog = append(s.backlog, line)
		if s.limit > 0 && len(s.backlog) > s.limit {
			s.backlog = s.backlog[len(s.backlog)-s.limit:]
		}
		return nil
	}

	for _, fn := range s.subs {
		fn(line)
	}

	return nil
}

// Subscribe registers fn for every future record. fn is called under the
// sink lock and must not log.
func (s *Sink) Subscribe(fn func(line string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range s.backlog {
		fn(line)
	}
	s.backlog = nil
	s.subs = append(s.subs, fn)
}

// Close drops all subscribers.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = nil
}

// Format renders a record for display: "[LEVEL] time - caller - message".
func Format(entry *logrus.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(entry.Level.String()), entry.Time.Format(sinkTimeFormat))
	if entry.HasCaller() {
		fmt.Fprintf(&b, " - %s.%d", shortFunc(entry.Caller.Function), entry.Caller.Line)
	}
	b.WriteString(" - ")
	b.WriteString(strings.TrimRight(entry.Message, "\n"))
	b.WriteString("\n")

	return b.String()
}

func shortFunc(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}
