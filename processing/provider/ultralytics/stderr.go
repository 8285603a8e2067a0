package ultralytics

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

const tailSize = 2048

// stderrSink forwards bridge stderr to the logger and remembers the last
// bytes for error messages.
type stderrSink struct {
	log  *io.PipeWriter
	tail []byte
}

func (p *Provider) stderrWriter() *stderrSink {
	return &stderrSink{log: p.log.WriterLevel(logrus.DebugLevel)}
}

func (s *stderrSink) Write(b []byte) (int, error) {
	s.tail = append(s.tail, b...)
	if len(s.tail) > tailSize {
		s.tail = s.tail[len(s.tail)-tailSize:]
	}

	s.log.Write(b)

	return len(b), nil
}

func (s *stderrSink) Close() error {
	return s.log.Close()
}

func (s *stderrSink) Tail() string {
	return strings.TrimSpace(string(s.tail))
}
