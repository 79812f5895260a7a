// Package log configures logrus for the compositor and its tools.
package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.StampMilli,
	})
	logrus.SetOutput(os.Stderr)

	if v, ok := os.LookupEnv("WLC_LOG_LEVEL"); ok {
		SetLevel(v)
	}
	if Tracing() {
		logrus.SetLevel(logrus.TraceLevel)
	}
}

// SetLevel sets the level of the standard logger from its name. An
// unknown name is reported and otherwise ignored.
func SetLevel(name string) {
	if name == "" {
		return
	}

	level, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		logrus.WithError(err).Warnln("invalid log level")
		return
	}
	logrus.SetLevel(level)
}

// For returns an entry tagged with the given component.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Tracing returns true if WAYLAND_DEBUG asks for wire traces.
func Tracing() bool {
	switch os.Getenv("WAYLAND_DEBUG") {
	case "", "0":
		return false
	default:
		return true
	}
}

// Hook forwards formatted log entries to a channel. Entries are
// dropped if the channel is full so that logging never blocks.
type Hook struct {
	c chan string
}

// NewHook creates a hook with room for size pending entries and adds it
// to the standard logger.
func NewHook(size int) *Hook {
	h := Hook{c: make(chan string, size)}
	logrus.AddHook(&h)
	return &h
}

// Messages returns the channel that entries are delivered on.
func (h *Hook) Messages() <-chan string {
	return h.c
}

func (h *Hook) Levels() []logrus.Level {
	// Traces are not forwarded. Each one would produce more traffic.
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
		logrus.DebugLevel,
	}
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	msg := fmt.Sprintf("[%v] %v", entry.Level, entry.Message)
	if c, ok := entry.Data["component"]; ok {
		msg = fmt.Sprintf("[%v] %v: %v", entry.Level, c, entry.Message)
	}

	select {
	case h.c <- msg:
	default:
	}
	return nil
}
