package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

type Options struct {
	Level string
	// Dir receives rotated log files. Empty disables file output.
	Dir     string
	Console io.Writer
}

// New builds the application logger. Every record also goes to the returned
// sink so the window can display it.
func New(opts Options) (*logrus.Logger, *Sink) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&formatter.Formatter{
		NoColors:        false,
		TimestampFormat: "2006-01-02 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{console}

	if opts.Dir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, fmt.Sprintf("yolodesk-%s.log", time.Now().Format("2006-01-02"))),
			LocalTime:  true,
			Compress:   true,
			MaxSize:    20,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	logger.SetOutput(io.MultiWriter(writers...))
	logger.SetReportCaller(true)

	sink := NewSink(512)
	logger.AddHook(sink)

	return logger, sink
}
